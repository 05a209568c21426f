package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/crmarques/remotable/remote"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type requestSpec struct {
	Method      string
	Path        string
	Body        remote.Payload
	Conditional remote.Conditional
}

type exchange struct {
	statusCode int
	header     http.Header
	body       []byte
}

// execute performs one request. A timeout is returned as a TimeoutError; any
// other transport failure yields a nil exchange and a nil error so callers
// can report the remote as unavailable.
func (g *HTTPRemoteGateway) execute(ctx context.Context, operation string, spec requestSpec) (*exchange, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, span := g.tracer.Start(ctx, "remote."+operation, trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	request, err := g.newRequest(ctx, spec)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("http.request.method", request.Method),
		attribute.String("url.path", request.URL.EscapedPath()),
		attribute.String("remotable.request_id", request.Header.Get(requestIDHeader)),
	)

	started := time.Now()
	response, err := g.doRequest(ctx, operation, request)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		switch {
		case isTimeout(err):
			g.metrics.ObserveRemoteRequest(request.Method, "timeout", time.Since(started))
			return nil, timeoutError("remote request timed out", err)
		case errors.Is(err, context.Canceled):
			g.metrics.ObserveRemoteRequest(request.Method, "canceled", time.Since(started))
			return nil, transportError("remote request was canceled", err)
		default:
			g.metrics.ObserveRemoteRequest(request.Method, "transport_error", time.Since(started))
			return nil, nil
		}
	}
	defer response.Body.Close()

	body, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if isTimeout(err) {
			g.metrics.ObserveRemoteRequest(request.Method, "timeout", time.Since(started))
			return nil, timeoutError("remote response timed out", err)
		}
		g.metrics.ObserveRemoteRequest(request.Method, "transport_error", time.Since(started))
		return nil, nil
	}

	g.metrics.ObserveRemoteRequest(request.Method, strconv.Itoa(response.StatusCode), time.Since(started))
	span.SetAttributes(attribute.Int("http.response.status_code", response.StatusCode))
	if response.StatusCode >= http.StatusInternalServerError {
		span.SetStatus(codes.Error, http.StatusText(response.StatusCode))
	}

	return &exchange{
		statusCode: response.StatusCode,
		header:     response.Header.Clone(),
		body:       body,
	}, nil
}

func (g *HTTPRemoteGateway) newRequest(ctx context.Context, spec requestSpec) (*http.Request, error) {
	targetURL, err := g.resolveRequestURL(spec.Path)
	if err != nil {
		return nil, err
	}

	requestBody, err := encodeRequestBody(spec.Body)
	if err != nil {
		return nil, err
	}

	var bodyReader io.Reader
	if len(requestBody) > 0 {
		bodyReader = bytes.NewReader(requestBody)
	}

	request, err := http.NewRequestWithContext(ctx, spec.Method, targetURL.String(), bodyReader)
	if err != nil {
		return nil, internalError("failed to create remote request", err)
	}
	request.URL = targetURL

	request.Header.Set("Accept", defaultMediaType)
	if len(requestBody) > 0 {
		request.Header.Set("Content-Type", defaultMediaType)
	}
	if !spec.Conditional.IfModifiedSince.IsZero() {
		request.Header.Set("If-Modified-Since", httpDate(spec.Conditional.IfModifiedSince))
	}
	if spec.Conditional.IfNoneMatch != "" {
		request.Header.Set("If-None-Match", spec.Conditional.IfNoneMatch)
	}

	if len(g.defaultHeaders) > 0 {
		keys := make([]string, 0, len(g.defaultHeaders))
		for key := range g.defaultHeaders {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			request.Header.Set(key, g.defaultHeaders[key])
		}
	}
	request.Header.Set(requestIDHeader, uuid.NewString())

	if err := g.applyAuth(request); err != nil {
		return nil, err
	}
	return request, nil
}

// resolveRequestURL joins an already escaped relative path onto the base URL
// without escaping it a second time.
func (g *HTTPRemoteGateway) resolveRequestURL(requestPath string) (*url.URL, error) {
	trimmed := strings.TrimSpace(requestPath)
	if trimmed == "" {
		return nil, validationError("request path is required", nil)
	}
	if parsed, err := url.Parse(trimmed); err == nil && (parsed.Scheme != "" || parsed.Host != "") {
		return nil, validationError("request path must be relative to remote.base-url", nil)
	}
	if strings.ContainsAny(trimmed, "?#") {
		return nil, validationError("request path must not contain a query or fragment", nil)
	}

	escaped := joinBaseAndRequestPath(g.baseURL.EscapedPath(), trimmed)
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return nil, validationError("request path is not a valid escaped path", err)
	}

	target := *g.baseURL
	target.Path = unescaped
	target.RawPath = escaped
	return &target, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func isSuccess(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}
