// client.go
// ---------
// Client is the entry point of the SDK. It owns a Transport for single
// requests with retry, and a poller that follows accepted long-running
// operations to completion. Results come back through Normalize, so a caller
// sees the same shape whether a call finished at once or via polling.
package fabricbridge

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/hashicorp/go-hclog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the instrumentation scope used for spans.
const TracerName = "github.com/opengovern/fabric-bridge"

// Client sends requests to the control plane and follows long-running
// operations. It is safe for concurrent use.
type Client struct {
	cfg       Config
	transport *Transport
	poller    *poller
	logger    hclog.Logger
	tracer    trace.Tracer
}

// Option customizes a Client.
type Option func(*options)

type options struct {
	httpClient Doer
	logger     hclog.Logger
	tracer     trace.Tracer
}

// WithHTTPClient replaces the default *http.Client. Connections are reused
// across calls through it.
func WithHTTPClient(d Doer) Option {
	return func(o *options) { o.httpClient = d }
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(l hclog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithTracer sets the tracer used for Invoke spans.
func WithTracer(t trace.Tracer) Option {
	return func(o *options) { o.tracer = t }
}

// NewClient validates cfg and builds a client. cfg is copied; later changes
// to the caller's value have no effect.
func NewClient(cfg Config, tokens TokenProvider, opts ...Option) (*Client, error) {
	if tokens == nil {
		return nil, fmt.Errorf("token provider is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	cfg.Retry = cfg.Retry.clone()

	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{}
	}
	if o.logger == nil {
		o.logger = hclog.NewNullLogger()
	}
	if o.tracer == nil {
		o.tracer = otel.Tracer(TracerName)
	}

	transport := NewTransport(cfg, tokens, o.httpClient, o.logger.Named("transport"))
	return &Client{
		cfg:       cfg,
		transport: transport,
		poller: &poller{
			transport: transport,
			baseURL:   cfg.OperationsBaseURL,
			policy:    cfg.Poll,
			logger:    o.logger.Named("poller"),
			sleep:     sleepContext,
			now:       time.Now,
		},
		logger: o.logger,
		tracer: o.tracer,
	}, nil
}

// Config returns a copy of the client's configuration.
func (c *Client) Config() Config {
	cfg := c.cfg
	cfg.Retry = c.cfg.Retry.clone()
	return cfg
}

// Invoke calls url with the given method and JSON payload using a token for
// audience. An empty method means GET and an empty audience means
// DefaultAudience. The caller decides what the returned status code means.
func (c *Client) Invoke(ctx context.Context, url, method string, payload any, audience string) (*Result, error) {
	return c.Do(ctx, Request{Method: method, URL: url, Payload: payload, Audience: audience})
}

// Do is Invoke with the arguments gathered in a Request.
func (c *Client) Do(ctx context.Context, req Request) (*Result, error) {
	r, err := req.normalized()
	if err != nil {
		return nil, err
	}

	ctx, span := c.tracer.Start(ctx, "fabricbridge.Invoke",
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.request.method", r.Method),
			attribute.String("url.full", r.URL),
			attribute.String("fabricbridge.audience", r.Audience),
		),
	)
	defer span.End()

	resp, err := c.transport.Send(ctx, &r)
	if err == nil && resp.StatusCode == http.StatusAccepted {
		resp, err = c.poller.resolve(ctx, &r, resp)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))
	return Normalize(resp), nil
}
