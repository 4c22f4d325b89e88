// Package adapters wraps the Fabric and Power BI endpoints used for
// workspace administration on top of fabricbridge.Client.Invoke.
package adapters

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	fabricbridge "github.com/opengovern/fabric-bridge"
)

// Invoker is the subset of *fabricbridge.Client the adapters need.
type Invoker interface {
	Invoke(ctx context.Context, url, method string, payload any, audience string) (*fabricbridge.Result, error)
}

// APIError is returned when a call completes with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       any
}

func (e *APIError) Error() string {
	if e.Body == nil {
		return fmt.Sprintf("api returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("api returned status %d: %v", e.StatusCode, e.Body)
}

// IsNotFound reports a 404.
func (e *APIError) IsNotFound() bool { return e.StatusCode == 404 }

func checkResult(res *fabricbridge.Result) error {
	if res == nil {
		return fmt.Errorf("empty result")
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return &APIError{StatusCode: res.StatusCode, Body: res.Body}
	}
	return nil
}

// decodeInto converts a decoded JSON body into a typed value.
func decodeInto(body any, v any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("re-encoding body: %w", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decoding body: %w", err)
	}
	return nil
}

// Item is a workspace or workspace item as listed by Fabric.
type Item struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Description string `json:"description,omitempty"`
	Type        string `json:"type,omitempty"`
	CapacityID  string `json:"capacityId,omitempty"`
}

// FilterItems keeps the items whose display name contains mustContain and at
// least one of eitherContain. Matching ignores case.
func FilterItems(items []Item, mustContain string, eitherContain []string) []Item {
	must := strings.ToLower(mustContain)
	var out []Item
	for _, it := range items {
		name := strings.ToLower(it.DisplayName)
		if !strings.Contains(name, must) {
			continue
		}
		for _, sub := range eitherContain {
			if strings.Contains(name, strings.ToLower(sub)) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// EnvironmentFor derives the deployment stage from a workspace name.
func EnvironmentFor(workspaceName string) string {
	switch {
	case strings.Contains(workspaceName, "[tst]"):
		return "tst"
	case strings.Contains(workspaceName, "prd"):
		return "prd"
	default:
		return "dev"
	}
}
