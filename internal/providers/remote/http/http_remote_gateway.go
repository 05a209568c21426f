package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/metrics"
	"github.com/crmarques/remotable/remote"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	defaultMediaType  = "application/json"
	defaultUserAgent  = "remotable"
	tracerName        = "github.com/crmarques/remotable/remote/http"
	maxResponseBytes  = 8 << 20
	requestIDHeader   = "X-Request-Id"
	validationMessage = "remote resource rejected the request"
)

var _ remote.Gateway = (*HTTPRemoteGateway)(nil)

// HTTPRemoteGateway talks to a JSON REST API rooted at a base URL. Paths
// passed to its methods are relative to that base URL.
type HTTPRemoteGateway struct {
	baseURL        *url.URL
	defaultHeaders map[string]string
	auth           authConfig
	client         *http.Client
	tlsDebug       tlsDebugInfo
	metrics        *metrics.Metrics
	tracer         trace.Tracer

	baseTransport http.RoundTripper
	limiter       requestLimiter
}

type GatewayOption func(*HTTPRemoteGateway)

func WithMetrics(m *metrics.Metrics) GatewayOption {
	return func(g *HTTPRemoteGateway) {
		if g == nil {
			return
		}
		g.metrics = m
	}
}

func WithTracerProvider(provider trace.TracerProvider) GatewayOption {
	return func(g *HTTPRemoteGateway) {
		if g == nil || provider == nil {
			return
		}
		g.tracer = provider.Tracer(tracerName)
	}
}

// WithTransport replaces the base round tripper. Rate limiting and the user
// agent are still layered on top of it.
func WithTransport(transport http.RoundTripper) GatewayOption {
	return func(g *HTTPRemoteGateway) {
		if g == nil || transport == nil {
			return
		}
		g.baseTransport = transport
	}
}

func NewHTTPRemoteGateway(cfg config.Remote, opts ...GatewayOption) (*HTTPRemoteGateway, error) {
	baseURL, err := parseBaseURL(cfg.BaseURL)
	if err != nil {
		return nil, err
	}

	auth, err := buildAuthConfig(cfg.Auth)
	if err != nil {
		return nil, err
	}

	tlsConfig, err := buildTLSConfig(cfg.TLS)
	if err != nil {
		return nil, err
	}

	if cfg.RateLimit < 0 || cfg.Burst < 0 {
		return nil, validationError("remote.rate-limit and remote.burst must not be negative", nil)
	}
	var limiter requestLimiter
	if cfg.RateLimit > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}

	base := http.DefaultTransport.(*http.Transport).Clone()
	base.TLSClientConfig = tlsConfig

	gateway := &HTTPRemoteGateway{
		baseURL:        baseURL,
		defaultHeaders: cloneStringMap(cfg.DefaultHeaders),
		auth:           auth,
		client:         &http.Client{Timeout: timeout},
		tlsDebug:       newTLSDebugInfo(cfg.TLS),
		tracer:         otel.Tracer(tracerName),
		baseTransport:  base,
		limiter:        limiter,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(gateway)
	}
	gateway.client.Transport = buildTransport(gateway.baseTransport, gateway.limiter)
	return gateway, nil
}

func (g *HTTPRemoteGateway) Fetch(ctx context.Context, path string, cond remote.Conditional) (remote.Result, error) {
	ex, err := g.execute(ctx, "fetch", requestSpec{Method: http.MethodGet, Path: path, Conditional: cond})
	if err != nil || ex == nil {
		return unavailableOnTransportFailure(err)
	}
	return classifyResponse(ex)
}

// List fetches a collection. listJQ, when set, reduces the decoded document
// to the array of items before the items are extracted.
func (g *HTTPRemoteGateway) List(ctx context.Context, path string, listJQ string) ([]remote.Payload, remote.Result, error) {
	ex, err := g.execute(ctx, "list", requestSpec{Method: http.MethodGet, Path: path})
	if err != nil || ex == nil {
		result, err := unavailableOnTransportFailure(err)
		return nil, result, err
	}
	if !isSuccess(ex.statusCode) {
		result, err := classifyResponse(ex)
		return nil, result, err
	}

	decoded, err := decodeJSONResponse(ex.body)
	if err != nil {
		return nil, remote.Unavailable{StatusCode: ex.statusCode}, nil
	}
	decoded, err = g.applyListJQ(ctx, decoded, listJQ)
	if err != nil {
		return nil, nil, err
	}
	items, err := extractListItems(decoded)
	if err != nil {
		return nil, nil, err
	}

	payloads := make([]remote.Payload, 0, len(items))
	for _, item := range items {
		itemMap, ok := item.(map[string]any)
		if !ok {
			return nil, nil, validationError("list payload entries must be JSON objects", nil)
		}
		payload, err := remote.NormalizePayload(itemMap)
		if err != nil {
			return nil, nil, err
		}
		payloads = append(payloads, payload)
	}
	return payloads, foundFrom(ex, nil), nil
}

func (g *HTTPRemoteGateway) Create(ctx context.Context, path string, payload remote.Payload) (remote.Result, error) {
	ex, err := g.execute(ctx, "create", requestSpec{Method: http.MethodPost, Path: path, Body: payload})
	if err != nil || ex == nil {
		return unavailableOnTransportFailure(err)
	}
	return classifyResponse(ex)
}

func (g *HTTPRemoteGateway) Update(ctx context.Context, path string, payload remote.Payload) (remote.Result, error) {
	ex, err := g.execute(ctx, "update", requestSpec{Method: http.MethodPut, Path: path, Body: payload})
	if err != nil || ex == nil {
		return unavailableOnTransportFailure(err)
	}
	return classifyResponse(ex)
}

func (g *HTTPRemoteGateway) Destroy(ctx context.Context, path string) (remote.Result, error) {
	ex, err := g.execute(ctx, "destroy", requestSpec{Method: http.MethodDelete, Path: path})
	if err != nil || ex == nil {
		return unavailableOnTransportFailure(err)
	}
	return classifyResponse(ex)
}

// BaseURL returns the configured base URL.
func (g *HTTPRemoteGateway) BaseURL() string {
	return g.baseURL.String()
}

func unavailableOnTransportFailure(err error) (remote.Result, error) {
	if err != nil {
		return nil, err
	}
	return remote.Unavailable{}, nil
}

func parseBaseURL(raw string) (*url.URL, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, validationError("remote.base-url is required", nil)
	}

	parsed, err := url.Parse(value)
	if err != nil {
		return nil, validationError("remote.base-url is invalid", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, validationError("remote.base-url must use http or https", nil)
	}
	if parsed.Host == "" {
		return nil, validationError("remote.base-url host is required", nil)
	}

	if parsed.Path == "" {
		parsed.Path = "/"
	}
	return parsed, nil
}

func cloneStringMap(values map[string]string) map[string]string {
	if len(values) == 0 {
		return nil
	}

	cloned := make(map[string]string, len(values))
	for key, value := range values {
		cloned[key] = value
	}
	return cloned
}
