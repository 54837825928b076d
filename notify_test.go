package collabsync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRelayNotification_DispatchesToMatchingTopicOnly(t *testing.T) {
	e := newTestEngine(t, time.Second)

	var gotPermission, gotSection bool
	e.events.OnPermissionChange(func(PermissionChange) { gotPermission = true })
	e.events.OnSectionChange(func(SectionChange) { gotSection = true })

	e.enqueue(IncomingMessage{
		Notification: &WorkspaceNotification{
			PermissionChange: &PermissionChange{WorkspaceID: "ws-1"},
		},
	})

	assert.Eventually(t, func() bool { return gotPermission }, time.Second, 5*time.Millisecond)
	assert.False(t, gotSection)
}
