package fabricbridge

import (
	"context"
	"net/http"
)

// TokenProvider returns a bearer token for the given audience.
type TokenProvider interface {
	Token(ctx context.Context, audience string) (string, error)
}

// TokenProviderFunc adapts a plain function to TokenProvider.
type TokenProviderFunc func(ctx context.Context, audience string) (string, error)

func (f TokenProviderFunc) Token(ctx context.Context, audience string) (string, error) {
	return f(ctx, audience)
}

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}
