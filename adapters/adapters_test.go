package adapters

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fabricbridge "github.com/opengovern/fabric-bridge"
	"github.com/opengovern/fabric-bridge/auth"
	"github.com/opengovern/fabric-bridge/mock"
)

func newTestClient(t *testing.T) (*fabricbridge.Client, *mock.Platform) {
	t.Helper()
	p := mock.NewPlatform()
	t.Cleanup(p.Close)
	p.Token = "tok"

	cfg := fabricbridge.DefaultConfig()
	cfg.OperationsBaseURL = p.OperationsBaseURL()
	cfg.Retry.BackoffBase = time.Millisecond
	cfg.Retry.BackoffMax = 10 * time.Millisecond
	cfg.Poll.Interval = 5 * time.Millisecond
	cfg.Poll.MaxWait = 5 * time.Second

	c, err := fabricbridge.NewClient(cfg, auth.StaticTokens{Default: "tok"})
	require.NoError(t, err)
	return c, p
}

func lastBody(t *testing.T, p *mock.Platform) map[string]any {
	t.Helper()
	reqs := p.Requests()
	require.NotEmpty(t, reqs)
	var body map[string]any
	require.NoError(t, json.Unmarshal(reqs[len(reqs)-1].Body, &body))
	return body
}

func TestFabricAdapter_ListWorkspacesFollowsPages(t *testing.T) {
	c, p := newTestClient(t)
	p.On(http.MethodGet, "/v1/workspaces",
		mock.JSON(http.StatusOK, map[string]any{
			"value":           []map[string]string{{"id": "1", "displayName": "Sales [dev]"}},
			"continuationUri": p.URL() + "/v1/workspaces?continuationToken=abc",
		}),
		mock.JSON(http.StatusOK, map[string]any{
			"value": []map[string]string{{"id": "2", "displayName": "Sales [tst]"}},
		}),
	)

	items, err := NewFabricAdapter(c, p.URL()).ListWorkspaces(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "1", items[0].ID)
	assert.Equal(t, "Sales [tst]", items[1].DisplayName)

	reqs := p.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "continuationToken=abc", reqs[1].Query)
}

func TestFabricAdapter_ListWorkspacesDetectsLoop(t *testing.T) {
	c, p := newTestClient(t)
	p.On(http.MethodGet, "/v1/workspaces", mock.JSON(http.StatusOK, map[string]any{
		"value":           []map[string]string{},
		"continuationUri": p.URL() + "/v1/workspaces",
	}))

	_, err := NewFabricAdapter(c, p.URL()).ListWorkspaces(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "loops")
}

func TestFabricAdapter_APIError(t *testing.T) {
	c, p := newTestClient(t)
	p.On(http.MethodGet, "/v1/workspaces", mock.JSON(http.StatusForbidden, map[string]string{"errorCode": "Unauthorized"}))

	_, err := NewFabricAdapter(c, p.URL()).ListWorkspaces(context.Background())

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusForbidden, apiErr.StatusCode)
	assert.False(t, apiErr.IsNotFound())
	assert.Equal(t, map[string]any{"errorCode": "Unauthorized"}, apiErr.Body)
}

func TestFabricAdapter_RefreshSQLEndpoint(t *testing.T) {
	c, p := newTestClient(t)
	p.On(http.MethodPost, "/v1/workspaces/ws1/sqlEndpoints/se1/refreshMetadata", mock.Accepted("op-1"))
	p.Operation("op-1", []string{"Running", "Succeeded"},
		mock.JSON(http.StatusOK, map[string]any{"value": []map[string]string{{"tableName": "sales", "status": "Success"}}}))

	got, err := NewFabricAdapter(c, p.URL()).RefreshSQLEndpoint(context.Background(), "ws1", "se1")
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"value": []any{map[string]any{"tableName": "sales", "status": "Success"}},
	}, got)
	assert.Equal(t, map[string]any{}, lastBodyOf(t, p, http.MethodPost))
	assert.Equal(t, 1, p.Count(http.MethodGet, mock.OperationsPath+"/op-1/result"))
}

func lastBodyOf(t *testing.T, p *mock.Platform, method string) map[string]any {
	t.Helper()
	var body map[string]any
	for _, r := range p.Requests() {
		if r.Method == method {
			body = nil
			require.NoError(t, json.Unmarshal(r.Body, &body))
		}
	}
	return body
}

func TestFabricAdapter_RefreshSQLEndpointFails(t *testing.T) {
	c, p := newTestClient(t)
	p.On(http.MethodPost, "/v1/workspaces/ws1/sqlEndpoints/se1/refreshMetadata", mock.Accepted("op-2"))
	p.Operation("op-2", []string{"Failed"}, mock.Reply{Status: http.StatusOK})

	_, err := NewFabricAdapter(c, p.URL()).RefreshSQLEndpoint(context.Background(), "ws1", "se1")

	var opErr *fabricbridge.OperationFailedError
	require.True(t, errors.As(err, &opErr))
	assert.Equal(t, "op-2", opErr.OperationID)
	require.NotNil(t, opErr.Diagnostics)
	assert.Equal(t, "OperationFailed", opErr.Diagnostics.ErrorCode)
}

func TestFabricAdapter_CreateTableShortcuts(t *testing.T) {
	c, p := newTestClient(t)
	p.On(http.MethodPost, "/v1/workspaces/target-ws/items/target-lh/shortcuts/bulkCreate",
		mock.JSON(http.StatusOK, map[string]any{"value": []any{}}))

	_, err := NewFabricAdapter(c, p.URL()).CreateTableShortcuts(context.Background(),
		[]string{"sales", "customers"},
		LakehouseRef{WorkspaceID: "source-ws", LakehouseID: "source-lh"},
		LakehouseRef{WorkspaceID: "target-ws", LakehouseID: "target-lh"},
	)
	require.NoError(t, err)

	reqs := p.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "shortcutConflictPolicy=CreateOrOverwrite", reqs[0].Query)

	body := lastBody(t, p)
	shortcuts := body["createShortcutRequests"].([]any)
	require.Len(t, shortcuts, 2)
	assert.Equal(t, map[string]any{
		"path": "Tables",
		"name": "customers",
		"target": map[string]any{
			"oneLake": map[string]any{
				"workspaceId": "source-ws",
				"itemId":      "source-lh",
				"path":        "Tables/customers",
			},
		},
	}, shortcuts[1])
}

func TestFabricAdapter_CreateTableShortcutsRequiresTables(t *testing.T) {
	c, p := newTestClient(t)
	_, err := NewFabricAdapter(c, p.URL()).CreateTableShortcuts(context.Background(), nil, LakehouseRef{}, LakehouseRef{})
	assert.Error(t, err)
	assert.Empty(t, p.Requests())
}

type sleepRecorder struct{ waits []time.Duration }

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return ctx.Err()
}

func newTestPowerBI(t *testing.T) (*PowerBIAdapter, *mock.Platform, *sleepRecorder) {
	t.Helper()
	c, p := newTestClient(t)
	a := NewPowerBIAdapter(c, p.URL()+"/v1.0/myorg")
	rec := &sleepRecorder{}
	a.sleep = rec.sleep
	return a, p, rec
}

const clusterContext = "https://wabi-north-europe-redirect.analysis.windows.net/v1.0/myorg/$metadata#capacities"

func TestPowerBIAdapter_ClusterURLFromCapacities(t *testing.T) {
	a, p, rec := newTestPowerBI(t)
	p.On(http.MethodGet, "/v1.0/myorg/capacities", mock.JSON(http.StatusOK, map[string]any{"@odata.context": clusterContext}))

	got, err := a.ClusterURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://wabi-north-europe-redirect.analysis.windows.net/", got)
	assert.Equal(t, 0, p.Count(http.MethodGet, "/v1.0/myorg/datasets"))
	assert.Empty(t, rec.waits)
}

func TestPowerBIAdapter_ClusterURLFallsBackToDatasets(t *testing.T) {
	a, p, _ := newTestPowerBI(t)
	p.On(http.MethodGet, "/v1.0/myorg/capacities", mock.JSON(http.StatusOK, map[string]any{
		"@odata.context": "https://api.powerbi.com/v1.0/myorg/$metadata#capacities",
	}))
	p.On(http.MethodGet, "/v1.0/myorg/datasets", mock.JSON(http.StatusOK, map[string]any{"@odata.context": clusterContext}))

	got, err := a.ClusterURL(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://wabi-north-europe-redirect.analysis.windows.net/", got)
}

func TestPowerBIAdapter_ClusterURLNotFound(t *testing.T) {
	a, p, rec := newTestPowerBI(t)
	p.On(http.MethodGet, "/v1.0/myorg/capacities", mock.JSON(http.StatusOK, map[string]any{}))
	p.On(http.MethodGet, "/v1.0/myorg/datasets", mock.JSON(http.StatusOK, map[string]any{}))

	_, err := a.ClusterURL(context.Background())
	assert.ErrorIs(t, err, ErrClusterURLNotFound)
	assert.Equal(t, 2, p.Count(http.MethodGet, "/v1.0/myorg/capacities"))
	assert.Equal(t, 2, p.Count(http.MethodGet, "/v1.0/myorg/datasets"))
	assert.Equal(t, []time.Duration{time.Second}, rec.waits)
}

func TestPowerBIAdapter_WorkspaceMetadata(t *testing.T) {
	a, p, _ := newTestPowerBI(t)
	p.On(http.MethodGet, "/metadata/folders/ws1", mock.JSON(http.StatusOK, map[string]any{"iconUrl": "/icons/ws1.png"}))

	meta, err := a.WorkspaceMetadata(context.Background(), p.URL(), "ws1")
	require.NoError(t, err)
	assert.Equal(t, "/icons/ws1.png", meta["iconUrl"])
}

func TestPowerBIAdapter_WorkspaceMetadataNotFound(t *testing.T) {
	a, p, _ := newTestPowerBI(t)

	_, err := a.WorkspaceMetadata(context.Background(), p.URL()+"/", "missing")

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.True(t, apiErr.IsNotFound())
}

func TestPowerBIAdapter_SetWorkspaceIcon(t *testing.T) {
	tests := []struct {
		name string
		icon string
		want string
	}{
		{name: "reset", icon: DefaultIcon, want: ""},
		{name: "png", icon: "aGVsbG8=", want: "data:image/png;base64,aGVsbG8="},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, p, _ := newTestPowerBI(t)
			p.On(http.MethodPut, "/metadata/folders/ws1", mock.JSON(http.StatusOK, map[string]any{}))

			_, err := a.SetWorkspaceIcon(context.Background(), p.URL()+"/", "ws1", tt.icon)
			require.NoError(t, err)
			assert.Equal(t, map[string]any{"icon": tt.want}, lastBody(t, p))
		})
	}
}

func TestPowerBIAdapter_SetWorkspaceIconRejectsBadInput(t *testing.T) {
	a, p, _ := newTestPowerBI(t)

	_, err := a.SetWorkspaceIcon(context.Background(), p.URL(), "ws1", "")
	assert.Error(t, err)
	_, err = a.SetWorkspaceIcon(context.Background(), p.URL(), "ws1", "not base64!")
	assert.Error(t, err)
	assert.Empty(t, p.Requests())
}

func TestFilterItems(t *testing.T) {
	items := []Item{
		{ID: "1", DisplayName: "SpaceParts [DEV] Model"},
		{ID: "2", DisplayName: "SpaceParts [tst] Report"},
		{ID: "3", DisplayName: "Other [dev] Model"},
		{ID: "4", DisplayName: "SpaceParts [prd] Notebook"},
	}

	got := FilterItems(items, "spaceparts", []string{"model", "REPORT"})
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, "2", got[1].ID)

	assert.Empty(t, FilterItems(items, "spaceparts", nil))
}

func TestEnvironmentFor(t *testing.T) {
	tests := map[string]string{
		"SpaceParts [tst]":     "tst",
		"SpaceParts [prd]":     "prd",
		"SpaceParts prd":       "prd",
		"SpaceParts [dev]":     "dev",
		"SpaceParts [tst] prd": "tst",
		"":                     "dev",
	}
	for name, want := range tests {
		assert.Equal(t, want, EnvironmentFor(name), name)
	}
}
