// fabric_adapter.go
// -----------------
// FabricAdapter covers the public Fabric REST endpoints: listing workspaces,
// refreshing a SQL analytics endpoint's metadata and creating table shortcuts
// in bulk. Long-running calls are resolved by the client before they return.
package adapters

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	fabricbridge "github.com/opengovern/fabric-bridge"
)

// DefaultFabricBaseURL is the public Fabric REST endpoint.
const DefaultFabricBaseURL = "https://api.fabric.microsoft.com"

// FabricAdapter wraps the Fabric REST API (workspaces, items, SQL endpoints).
type FabricAdapter struct {
	client   Invoker
	baseURL  string
	audience string
}

// NewFabricAdapter returns an adapter rooted at baseURL, or at
// DefaultFabricBaseURL when it is empty.
func NewFabricAdapter(client Invoker, baseURL string) *FabricAdapter {
	if baseURL == "" {
		baseURL = DefaultFabricBaseURL
	}
	return &FabricAdapter{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		audience: fabricbridge.DefaultAudience,
	}
}

type workspacePage struct {
	Value           []Item `json:"value"`
	ContinuationURI string `json:"continuationUri"`
}

// ListWorkspaces returns every workspace the caller can see, following
// continuation pages.
func (f *FabricAdapter) ListWorkspaces(ctx context.Context) ([]Item, error) {
	next := f.baseURL + "/v1/workspaces"
	seen := map[string]bool{}
	var all []Item

	for next != "" {
		if seen[next] {
			return nil, fmt.Errorf("workspace listing loops on %s", next)
		}
		seen[next] = true

		res, err := f.client.Invoke(ctx, next, http.MethodGet, nil, f.audience)
		if err != nil {
			return nil, fmt.Errorf("listing workspaces: %w", err)
		}
		if err := checkResult(res); err != nil {
			return nil, fmt.Errorf("listing workspaces: %w", err)
		}
		var page workspacePage
		if err := decodeInto(res.Body, &page); err != nil {
			return nil, fmt.Errorf("listing workspaces: %w", err)
		}
		all = append(all, page.Value...)
		next = page.ContinuationURI
	}
	return all, nil
}

// RefreshSQLEndpoint asks Fabric to resync a SQL analytics endpoint with its
// lakehouse and returns the operation result.
func (f *FabricAdapter) RefreshSQLEndpoint(ctx context.Context, workspaceID, sqlEndpointID string) (any, error) {
	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/sqlEndpoints/%s/refreshMetadata",
		f.baseURL, url.PathEscape(workspaceID), url.PathEscape(sqlEndpointID))

	res, err := f.client.Invoke(ctx, endpoint, http.MethodPost, map[string]any{}, f.audience)
	if err != nil {
		return nil, fmt.Errorf("refreshing sql endpoint %s: %w", sqlEndpointID, err)
	}
	if err := checkResult(res); err != nil {
		return nil, fmt.Errorf("refreshing sql endpoint %s: %w", sqlEndpointID, err)
	}
	return res.Body, nil
}

// LakehouseRef points at a lakehouse in a workspace.
type LakehouseRef struct {
	WorkspaceID string
	LakehouseID string
}

type oneLakeTarget struct {
	WorkspaceID string `json:"workspaceId"`
	ItemID      string `json:"itemId"`
	Path        string `json:"path"`
}

type shortcutTarget struct {
	OneLake oneLakeTarget `json:"oneLake"`
}

type shortcutRequest struct {
	Path   string         `json:"path"`
	Name   string         `json:"name"`
	Target shortcutTarget `json:"target"`
}

type bulkShortcutPayload struct {
	CreateShortcutRequests []shortcutRequest `json:"createShortcutRequests"`
}

// CreateTableShortcuts creates one shortcut under the target lakehouse's
// Tables folder for each named table of the source lakehouse. Existing
// shortcuts with the same name are overwritten.
func (f *FabricAdapter) CreateTableShortcuts(ctx context.Context, tables []string, source, target LakehouseRef) (any, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("no tables given")
	}

	payload := bulkShortcutPayload{CreateShortcutRequests: make([]shortcutRequest, 0, len(tables))}
	for _, name := range tables {
		payload.CreateShortcutRequests = append(payload.CreateShortcutRequests, shortcutRequest{
			Path: "Tables",
			Name: name,
			Target: shortcutTarget{OneLake: oneLakeTarget{
				WorkspaceID: source.WorkspaceID,
				ItemID:      source.LakehouseID,
				Path:        "Tables/" + name,
			}},
		})
	}

	endpoint := fmt.Sprintf("%s/v1/workspaces/%s/items/%s/shortcuts/bulkCreate?shortcutConflictPolicy=CreateOrOverwrite",
		f.baseURL, url.PathEscape(target.WorkspaceID), url.PathEscape(target.LakehouseID))

	res, err := f.client.Invoke(ctx, endpoint, http.MethodPost, payload, f.audience)
	if err != nil {
		return nil, fmt.Errorf("creating shortcuts: %w", err)
	}
	if err := checkResult(res); err != nil {
		return nil, fmt.Errorf("creating shortcuts: %w", err)
	}
	return res.Body, nil
}
