// Package httpapi implements the three HTTP boundary calls the engine
// makes: reverting a document to a prior version, pushing a full-sync batch,
// and listing version history. Transient failures are retried with backoff
// before being surfaced, so the boundary absorbs retryable errors on its
// own.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Client is the engine's view of the server's collab HTTP endpoints.
type Client interface {
	RevertCollabVersion(ctx context.Context, workspaceID, objectID string, collabType int, versionID string) (*RevertResult, error)
	CollabFullSyncBatch(ctx context.Context, workspaceID string, items []SyncItem) error
	GetCollabVersions(ctx context.Context, workspaceID, objectID string, since *time.Time) ([]VersionDTO, error)
}

// RevertResult is the response to a revert call.
type RevertResult struct {
	StateVector []byte  `json:"stateVector"`
	DocState    []byte  `json:"docState"`
	Version     *string `json:"version"`
}

// SyncItem is one document's payload in a full-sync batch.
type SyncItem struct {
	ObjectID    string `json:"objectId"`
	CollabType  int    `json:"collabType"`
	StateVector []byte `json:"stateVector"`
	DocState    []byte `json:"docState"`
}

// VersionDTO is one entry of a GetCollabVersions response.
type VersionDTO struct {
	VersionID string    `json:"versionId"`
	ParentID  *string   `json:"parentId"`
	Label     *string   `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
	EditorIDs []string  `json:"editorIds"`
	Snapshot  []byte    `json:"snapshot"`
}

// HTTPClient is the net/http-backed Client implementation.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
	backoff    func() backoff.BackOff
}

// NewHTTPClient builds a Client against baseURL. httpClient may be nil, in
// which case http.DefaultClient is used.
func NewHTTPClient(baseURL string, httpClient *http.Client) *HTTPClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &HTTPClient{
		baseURL:    baseURL,
		httpClient: httpClient,
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.MaxElapsedTime = 10 * time.Second
			return b
		},
	}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body any, out any) error {
	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("httpapi: encode request: %w", err)
		}
	}

	op := func() error {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
		if err != nil {
			return backoff.Permanent(fmt.Errorf("httpapi: build request: %w", err))
		}
		req.Header.Set("content-type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("httpapi: request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 500 {
			return fmt.Errorf("httpapi: server error: %d", resp.StatusCode)
		}
		if resp.StatusCode >= 400 {
			return backoff.Permanent(fmt.Errorf("httpapi: client error: %d", resp.StatusCode))
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return backoff.Permanent(fmt.Errorf("httpapi: decode response: %w", err))
			}
		}
		return nil
	}

	return backoff.Retry(op, backoff.WithContext(c.backoff(), ctx))
}

func (c *HTTPClient) RevertCollabVersion(ctx context.Context, workspaceID, objectID string, collabType int, versionID string) (*RevertResult, error) {
	var out RevertResult
	req := map[string]any{
		"workspaceId": workspaceID,
		"objectId":    objectID,
		"collabType":  collabType,
		"versionId":   versionID,
	}
	path := fmt.Sprintf("/api/workspace/%s/collab/%s/revert", workspaceID, objectID)
	if err := c.do(ctx, http.MethodPost, path, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *HTTPClient) CollabFullSyncBatch(ctx context.Context, workspaceID string, items []SyncItem) error {
	path := fmt.Sprintf("/api/workspace/%s/collab/sync-batch", workspaceID)
	return c.do(ctx, http.MethodPost, path, map[string]any{"items": items}, nil)
}

func (c *HTTPClient) GetCollabVersions(ctx context.Context, workspaceID, objectID string, since *time.Time) ([]VersionDTO, error) {
	var out []VersionDTO
	path := fmt.Sprintf("/api/workspace/%s/collab/%s/versions", workspaceID, objectID)
	if since != nil {
		path += "?since=" + since.Format(time.RFC3339)
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}
