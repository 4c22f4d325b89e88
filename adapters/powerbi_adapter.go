// powerbi_adapter.go
// ------------------
// PowerBIAdapter reaches the Power BI cluster ("redirect") host that serves
// the workspace metadata endpoints. Those endpoints are not part of the
// public API, so the cluster host is discovered from the @odata.context of a
// public call before it can be used.
package adapters

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

const (
	DefaultPowerBIBaseURL = "https://api.powerbi.com/v1.0/myorg"

	clusterHostMarker   = "redirect.analysis.windows.net"
	clusterLookupRounds = 2
	clusterLookupWait   = time.Second

	// DefaultIcon resets a workspace to the built-in icon.
	DefaultIcon = "default"
)

// ErrClusterURLNotFound means no cluster URL could be derived from the
// service response.
var ErrClusterURLNotFound = errors.New("cluster url not found")

var clusterURLPattern = regexp.MustCompile(`^(https://[^/]+/)`)

// PowerBIAdapter wraps the Power BI REST API.
type PowerBIAdapter struct {
	client   Invoker
	baseURL  string
	audience string

	sleep func(ctx context.Context, d time.Duration) error
}

// NewPowerBIAdapter returns an adapter rooted at baseURL, or at
// DefaultPowerBIBaseURL when it is empty.
func NewPowerBIAdapter(client Invoker, baseURL string) *PowerBIAdapter {
	if baseURL == "" {
		baseURL = DefaultPowerBIBaseURL
	}
	return &PowerBIAdapter{
		client:   client,
		baseURL:  strings.TrimRight(baseURL, "/"),
		audience: "pbi",
		sleep:    sleep,
	}
}

// ClusterURL returns the tenant's cluster base URL, with a trailing slash.
// Capacities are tried first and datasets second, over two rounds.
func (p *PowerBIAdapter) ClusterURL(ctx context.Context) (string, error) {
	for round := 0; round < clusterLookupRounds; round++ {
		for _, path := range []string{"/capacities", "/datasets"} {
			u, err := p.clusterURLFrom(ctx, p.baseURL+path)
			if err != nil {
				return "", err
			}
			if u != "" {
				return u, nil
			}
		}
		if round < clusterLookupRounds-1 {
			if err := p.sleep(ctx, clusterLookupWait); err != nil {
				return "", err
			}
		}
	}
	return "", ErrClusterURLNotFound
}

func (p *PowerBIAdapter) clusterURLFrom(ctx context.Context, endpoint string) (string, error) {
	res, err := p.client.Invoke(ctx, endpoint, http.MethodGet, nil, p.audience)
	if err != nil {
		return "", fmt.Errorf("discovering cluster url: %w", err)
	}
	body, ok := res.Body.(map[string]any)
	if !ok {
		return "", nil
	}
	odata, _ := body["@odata.context"].(string)
	m := clusterURLPattern.FindStringSubmatch(odata)
	if m == nil || !strings.Contains(m[1], clusterHostMarker) {
		return "", nil
	}
	return m[1], nil
}

func folderURL(clusterURL, workspaceID string) string {
	if !strings.HasSuffix(clusterURL, "/") {
		clusterURL += "/"
	}
	return clusterURL + "metadata/folders/" + url.PathEscape(workspaceID)
}

// WorkspaceMetadata returns the cluster's folder record for a workspace,
// which includes its iconUrl when one is set.
func (p *PowerBIAdapter) WorkspaceMetadata(ctx context.Context, clusterURL, workspaceID string) (map[string]any, error) {
	res, err := p.client.Invoke(ctx, folderURL(clusterURL, workspaceID), http.MethodGet, nil, p.audience)
	if err != nil {
		return nil, fmt.Errorf("getting workspace metadata %s: %w", workspaceID, err)
	}
	if err := checkResult(res); err != nil {
		return nil, fmt.Errorf("getting workspace metadata %s: %w", workspaceID, err)
	}
	meta, _ := res.Body.(map[string]any)
	return meta, nil
}

// SetWorkspaceIcon sets a workspace icon from base64 PNG data, or resets it
// when icon is DefaultIcon. Only workspace admins may change the icon.
func (p *PowerBIAdapter) SetWorkspaceIcon(ctx context.Context, clusterURL, workspaceID, icon string) (any, error) {
	value := ""
	if icon != DefaultIcon {
		if icon == "" {
			return nil, fmt.Errorf("icon is empty")
		}
		if _, err := base64.StdEncoding.DecodeString(icon); err != nil {
			return nil, fmt.Errorf("icon is not base64: %w", err)
		}
		value = "data:image/png;base64," + icon
	}

	res, err := p.client.Invoke(ctx, folderURL(clusterURL, workspaceID), http.MethodPut, map[string]string{"icon": value}, p.audience)
	if err != nil {
		return nil, fmt.Errorf("setting icon on workspace %s: %w", workspaceID, err)
	}
	if err := checkResult(res); err != nil {
		return nil, fmt.Errorf("setting icon on workspace %s (admin rights required): %w", workspaceID, err)
	}
	return res.Body, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
