package collabsync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/appflowy/collabsync/httpapi"
	"github.com/appflowy/collabsync/internal/idgen"
	"github.com/appflowy/collabsync/localcache"
	"github.com/appflowy/collabsync/transport"
)

// Engine is the single long-lived orchestrator tying together context
// lifecycle, message dispatch, version resets, reverts, batch sync and
// workspace notification relay. One Engine is instantiated per authenticated
// session.
type Engine struct {
	state *sharedState
	opts  *EngineOptions
	log   *zap.Logger

	serverTransport transport.Transport
	localTransport  transport.Transport

	cache  localcache.Store
	http   httpapi.Client
	ids    *idgen.Generator
	events *eventBus
	locks  DistributedLockManager

	workspaceID string
	instanceID  string
}

// Deps collects an Engine's external collaborators. Nil transports, Cache
// and Locks fall back to in-memory implementations suited to tests; a nil
// Logger falls back to the default production logger. HTTP has no fallback:
// operations that need it return ErrNoHTTPClient when it is nil.
type Deps struct {
	WorkspaceID     string
	ServerTransport transport.Transport
	LocalTransport  transport.Transport
	Cache           localcache.Store
	HTTP            httpapi.Client
	Locks           DistributedLockManager
	Logger          *zap.Logger
	SnowflakeNodeID int64
}

// NewEngine wires an Engine from deps and options, defaulting anything left
// unset.
func NewEngine(deps Deps, opts *EngineOptions) (*Engine, error) {
	if opts == nil {
		opts = DefaultEngineOptions()
	}
	if opts.RevertLockTimeout <= 0 {
		opts.RevertLockTimeout = DefaultEngineOptions().RevertLockTimeout
	}
	logger := deps.Logger
	if logger == nil {
		logger = newDefaultLogger()
	}

	serverTransport := deps.ServerTransport
	if serverTransport == nil {
		serverTransport = transport.NewMemoryBus().NewTransport()
	}
	localTransport := deps.LocalTransport
	if localTransport == nil {
		localTransport = transport.NewMemoryBus().NewTransport()
	}
	cache := deps.Cache
	if cache == nil {
		cache = localcache.NewMemoryStore()
	}
	locks := deps.Locks
	if locks == nil {
		locks = NewNoOpDistributedLockManager()
	}

	ids, err := idgen.New(deps.SnowflakeNodeID)
	if err != nil {
		return nil, fmt.Errorf("collabsync: init id generator: %w", err)
	}

	e := &Engine{
		state:           newSharedState(),
		opts:            opts,
		log:             logger.With(zap.String("workspace_id", deps.WorkspaceID)),
		serverTransport: serverTransport,
		localTransport:  localTransport,
		cache:           cache,
		http:            deps.HTTP,
		ids:             ids,
		events:          newEventBus(),
		locks:           locks,
		workspaceID:     deps.WorkspaceID,
		instanceID:      uuid.New().String(),
	}

	go e.watchTransport(serverTransport)
	go e.watchTransport(localTransport)

	return e, nil
}

// Events returns the engine's outbound event bus.
func (e *Engine) Events() *eventBus { return e.events }

// SetCurrentUser attaches the session's active user, used for lazy user
// mapping on local transactions.
func (e *Engine) SetCurrentUser(u *CurrentUser) {
	e.state.mu.Lock()
	defer e.state.mu.Unlock()
	e.state.currentUser = u
}

// Close disposes the engine: cancels all grace timers, marks state disposed
// so in-flight processing returns immediately, and closes owned transports
// and the cache.
func (e *Engine) Close() error {
	e.state.mu.Lock()
	e.state.disposed = true
	for id, t := range e.state.cleanupTimers {
		t.Stop()
		delete(e.state.cleanupTimers, id)
	}
	e.state.mu.Unlock()

	var firstErr error
	if err := e.serverTransport.Close(); err != nil {
		firstErr = err
	}
	if err := e.localTransport.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := e.cache.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// decodeMessage translates a transport.Message into the engine's internal
// IncomingMessage, returning ok=false for malformed envelopes (no object id).
func decodeMessage(msg *transport.Message) (IncomingMessage, bool) {
	if msg.ObjectID == "" {
		return IncomingMessage{}, false
	}
	objectID, err := ParseObjectID(msg.ObjectID)
	if err != nil {
		return IncomingMessage{}, false
	}

	im := IncomingMessage{
		ObjectID:   objectID,
		CollabKind: CollabKind(msg.CollabType),
	}
	if msg.Update != nil {
		up := &UpdatePayload{Update: msg.Update.Update}
		if msg.Update.Version != nil {
			v, err := ParseObjectID(*msg.Update.Version)
			if err == nil {
				up.Version = &v
			}
		}
		if msg.Update.MessageID != nil {
			up.MessageID = &MessageID{
				Timestamp: msg.Update.MessageID.Timestamp,
				Counter:   msg.Update.MessageID.Counter,
			}
		}
		im.Update = up
	}
	if msg.SyncRequest != nil {
		sr := &SyncRequestPayload{}
		if msg.SyncRequest.Version != nil {
			v, err := ParseObjectID(*msg.SyncRequest.Version)
			if err == nil {
				sr.Version = &v
			}
		}
		im.SyncRequest = sr
	}
	return im, true
}

// watchTransport drains one transport's inbound channel and feeds the
// dispatcher. Each transport delivers a given *Message at most once; no
// deduplication is done across the two transports, so a message that
// arrives over both is enqueued and processed twice.
func (e *Engine) watchTransport(t transport.Transport) {
	for msg := range t.Messages() {
		im, ok := decodeMessage(msg)
		if !ok {
			e.log.Debug("dropping message with no object id")
			continue
		}
		e.enqueue(im)
	}
}

func (e *Engine) ctx() context.Context { return context.Background() }
