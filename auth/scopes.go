package auth

import (
	"context"
	"fmt"
	"strings"
)

// DefaultAudienceScopes maps the short audience names callers pass to
// Invoke onto OAuth scopes.
var DefaultAudienceScopes = map[string]string{
	"pbi":      "https://analysis.windows.net/powerbi/api/.default",
	"fabric":   "https://api.fabric.microsoft.com/.default",
	"storage":  "https://storage.azure.com/.default",
	"keyvault": "https://vault.azure.net/.default",
	"arm":      "https://management.azure.com/.default",
}

// ScopeForAudience resolves an audience to a scope. overrides win over the
// defaults, and an audience that is already a resource URL gets "/.default"
// appended.
func ScopeForAudience(audience string, overrides map[string]string) (string, error) {
	if s, ok := overrides[audience]; ok && s != "" {
		return s, nil
	}
	if s, ok := DefaultAudienceScopes[audience]; ok {
		return s, nil
	}
	if strings.HasPrefix(audience, "https://") || strings.HasPrefix(audience, "api://") {
		if strings.HasSuffix(audience, "/.default") {
			return audience, nil
		}
		return strings.TrimRight(audience, "/") + "/.default", nil
	}
	return "", fmt.Errorf("unknown audience %q", audience)
}

// StaticTokens hands out fixed tokens, per audience or one for all.
type StaticTokens struct {
	Default    string
	ByAudience map[string]string
}

func (s StaticTokens) Token(_ context.Context, audience string) (string, error) {
	if tok, ok := s.ByAudience[audience]; ok && tok != "" {
		return tok, nil
	}
	if s.Default != "" {
		return s.Default, nil
	}
	return "", fmt.Errorf("no token configured for audience %q", audience)
}
