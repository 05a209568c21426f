package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/debugctx"
	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/metrics"
	"github.com/crmarques/remotable/remote"
	"github.com/go-logr/logr/funcr"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewHTTPRemoteGatewayValidation(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		cfg  config.Remote
	}{
		{name: "missing_base_url", cfg: config.Remote{}},
		{name: "non_http_scheme", cfg: config.Remote{BaseURL: "ftp://example.com"}},
		{name: "missing_host", cfg: config.Remote{BaseURL: "http:///api"}},
		{name: "two_auth_modes", cfg: config.Remote{
			BaseURL: "https://example.com",
			Auth: &config.HTTPAuth{
				BearerToken: &config.BearerTokenAuth{Token: "token"},
				BasicAuth:   &config.BasicAuth{Username: "u", Password: "p"},
			},
		}},
		{name: "empty_auth", cfg: config.Remote{BaseURL: "https://example.com", Auth: &config.HTTPAuth{}}},
		{name: "custom_header_without_token", cfg: config.Remote{
			BaseURL: "https://example.com",
			Auth:    &config.HTTPAuth{CustomHeader: &config.HeaderTokenAuth{Header: "X-Token"}},
		}},
		{name: "tls_client_pair_must_be_complete", cfg: config.Remote{
			BaseURL: "https://example.com",
			TLS:     &config.TLS{ClientCertFile: "/tmp/only-cert.pem"},
		}},
		{name: "unreadable_ca", cfg: config.Remote{
			BaseURL: "https://example.com",
			TLS:     &config.TLS{CACertFile: "/nonexistent/ca.pem"},
		}},
		{name: "negative_rate_limit", cfg: config.Remote{BaseURL: "https://example.com", RateLimit: -1}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewHTTPRemoteGateway(testCase.cfg)
			assertTypedCategory(t, err, faults.ValidationError)
		})
	}
}

func TestFetchSendsEscapedPathAndConditionalHeaders(t *testing.T) {
	t.Parallel()

	lastModified := time.Date(2024, time.March, 4, 10, 30, 0, 0, time.UTC)
	var captured *http.Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = r.Clone(context.Background())
		w.Header().Set("ETag", `"v2"`)
		w.Header().Set("Last-Modified", lastModified.Add(time.Hour).Format(http.TimeFormat))
		_, _ = fmt.Fprint(w, `{"id":17,"church_name":"First Church","tags":["a"]}`)
	}))
	t.Cleanup(server.Close)

	gateway := mustGateway(t, config.Remote{
		BaseURL:        server.URL + "/api/",
		DefaultHeaders: map[string]string{"X-Client": "remotable-test"},
	})

	result, err := gateway.Fetch(context.Background(), "accounts/by_slug/a%20b%2Fc.json", remote.Conditional{
		IfModifiedSince: lastModified,
		IfNoneMatch:     `"v1"`,
	})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	found, ok := result.(remote.Found)
	if !ok {
		t.Fatalf("expected Found, got %T", result)
	}
	wantPayload := remote.Payload{"id": int64(17), "church_name": "First Church", "tags": []any{"a"}}
	if diff := cmp.Diff(wantPayload, found.Payload); diff != "" {
		t.Fatalf("unexpected payload (-want +got):\n%s", diff)
	}
	if found.ETag != `"v2"` {
		t.Fatalf("expected etag to be captured, got %q", found.ETag)
	}
	if !found.LastModified.Equal(lastModified.Add(time.Hour)) {
		t.Fatalf("expected last-modified to be captured, got %v", found.LastModified)
	}

	if captured.Method != http.MethodGet {
		t.Fatalf("expected GET, got %s", captured.Method)
	}
	if got := captured.URL.EscapedPath(); got != "/api/accounts/by_slug/a%20b%2Fc.json" {
		t.Fatalf("unexpected escaped path %q", got)
	}
	if got := captured.Header.Get("If-Modified-Since"); got != "Mon, 04 Mar 2024 10:30:00 GMT" {
		t.Fatalf("unexpected If-Modified-Since %q", got)
	}
	if got := captured.Header.Get("If-None-Match"); got != `"v1"` {
		t.Fatalf("unexpected If-None-Match %q", got)
	}
	if got := captured.Header.Get("Accept"); got != "application/json" {
		t.Fatalf("unexpected Accept %q", got)
	}
	if got := captured.Header.Get("X-Client"); got != "remotable-test" {
		t.Fatalf("expected default header, got %q", got)
	}
	if got := captured.Header.Get("User-Agent"); got != defaultUserAgent {
		t.Fatalf("unexpected user agent %q", got)
	}
	if captured.Header.Get(requestIDHeader) == "" {
		t.Fatal("expected request id header")
	}
}

func TestFetchOmitsConditionalHeadersWhenUnset(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-Modified-Since") != "" || r.Header.Get("If-None-Match") != "" {
			t.Errorf("unexpected conditional headers: %v", r.Header)
		}
		_, _ = fmt.Fprint(w, `{"id":1}`)
	}))
	t.Cleanup(server.Close)

	gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
	if _, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{}); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		status int
		body   string
		want   remote.Result
	}{
		{name: "not_modified", status: http.StatusNotModified, want: remote.NotModified{}},
		{name: "not_found", status: http.StatusNotFound, body: `{"error":"missing"}`, want: remote.NotFound{}},
		{name: "gone", status: http.StatusGone, want: remote.NotFound{}},
		{
			name:   "unprocessable_with_field_errors",
			status: http.StatusUnprocessableEntity,
			body:   `{"errors":{"church_name":["is already taken"],"what":["nope","ever"]}}`,
			want: remote.ValidationFailed{Errors: faults.FieldErrors{
				"church_name": {"is already taken"},
				"what":        {"nope", "ever"},
			}},
		},
		{
			name:   "unprocessable_with_string_field",
			status: http.StatusUnprocessableEntity,
			body:   `{"errors":{"slug":"is invalid"}}`,
			want:   remote.ValidationFailed{Errors: faults.FieldErrors{"slug": {"is invalid"}}},
		},
		{
			name:   "unprocessable_with_error_list",
			status: http.StatusUnprocessableEntity,
			body:   `{"errors":["locked","archived"]}`,
			want:   remote.ValidationFailed{Errors: faults.FieldErrors{faults.BaseField: {"locked", "archived"}}},
		},
		{
			name:   "unprocessable_without_body",
			status: http.StatusUnprocessableEntity,
			want:   remote.ValidationFailed{Errors: faults.FieldErrors{faults.BaseField: {validationMessage}}},
		},
		{
			name:   "bad_request_with_errors",
			status: http.StatusBadRequest,
			body:   `{"errors":{"name":["can't be blank"]}}`,
			want:   remote.ValidationFailed{Errors: faults.FieldErrors{"name": {"can't be blank"}}},
		},
		{name: "bad_request_without_errors", status: http.StatusBadRequest, body: `oops`, want: remote.Unavailable{StatusCode: http.StatusBadRequest}},
		{name: "unauthorized", status: http.StatusUnauthorized, want: remote.Unavailable{StatusCode: http.StatusUnauthorized}},
		{name: "service_unavailable", status: http.StatusServiceUnavailable, want: remote.Unavailable{StatusCode: http.StatusServiceUnavailable}},
		{name: "internal_error", status: http.StatusInternalServerError, want: remote.Unavailable{StatusCode: http.StatusInternalServerError}},
		{name: "no_content", status: http.StatusNoContent, want: remote.Found{}},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(testCase.status)
				if testCase.body != "" {
					_, _ = fmt.Fprint(w, testCase.body)
				}
			}))
			t.Cleanup(server.Close)

			gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
			result, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{})
			if err != nil {
				t.Fatalf("Fetch returned error: %v", err)
			}
			if diff := cmp.Diff(testCase.want, result); diff != "" {
				t.Fatalf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestUndecodableSuccessBodyIsUnavailable(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name string
		body string
	}{
		{name: "html_page", body: `<html>maintenance</html>`},
		{name: "truncated_json", body: `{"id": 4`},
		{name: "array_for_member", body: `[1,2,3]`},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = fmt.Fprint(w, testCase.body)
			}))
			t.Cleanup(server.Close)

			gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
			result, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{})
			if err != nil {
				t.Fatalf("Fetch returned error: %v", err)
			}
			if diff := cmp.Diff(remote.Result(remote.Unavailable{StatusCode: http.StatusOK}), result); diff != "" {
				t.Fatalf("unexpected result (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFetchTimeoutIsTypedError(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	gateway := mustGateway(t, config.Remote{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	_, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{})
	assertTypedCategory(t, err, faults.TimeoutError)
}

func TestContextDeadlineIsTimeout(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := gateway.Destroy(ctx, "accounts/1.json")
	assertTypedCategory(t, err, faults.TimeoutError)
}

func TestTransportFailureIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	baseURL := server.URL
	server.Close()

	m := metrics.New()
	gateway := mustGateway(t, config.Remote{BaseURL: baseURL}, WithMetrics(m))
	result, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{})
	if err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}
	if diff := cmp.Diff(remote.Result(remote.Unavailable{}), result); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}

	expected := `
# HELP remotable_remote_requests_total Remote requests by HTTP method and response status.
# TYPE remotable_remote_requests_total counter
remotable_remote_requests_total{method="GET",status="transport_error"} 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "remotable_remote_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestWriteOperationsSendJSONBodies(t *testing.T) {
	t.Parallel()

	type capturedRequest struct {
		method      string
		path        string
		contentType string
		body        string
	}

	var (
		mu       sync.Mutex
		requests []capturedRequest
	)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, capturedRequest{
			method:      r.Method,
			path:        r.URL.EscapedPath(),
			contentType: r.Header.Get("Content-Type"),
			body:        string(body),
		})
		mu.Unlock()

		switch r.Method {
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			_, _ = fmt.Fprint(w, `{"id":42,"church_name":"New"}`)
		case http.MethodPut:
			_, _ = fmt.Fprint(w, `{"id":42,"church_name":"Renamed"}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	t.Cleanup(server.Close)

	gateway := mustGateway(t, config.Remote{BaseURL: server.URL + "/api"})
	ctx := context.Background()

	created, err := gateway.Create(ctx, "accounts.json", remote.Payload{"church_name": "New"})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if found, ok := created.(remote.Found); !ok || found.Payload["id"] != int64(42) {
		t.Fatalf("unexpected create result %#v", created)
	}

	updated, err := gateway.Update(ctx, "accounts/42.json", remote.Payload{"church_name": "Renamed"})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if found, ok := updated.(remote.Found); !ok || found.Payload["church_name"] != "Renamed" {
		t.Fatalf("unexpected update result %#v", updated)
	}

	destroyed, err := gateway.Destroy(ctx, "accounts/42.json")
	if err != nil {
		t.Fatalf("Destroy returned error: %v", err)
	}
	if _, ok := destroyed.(remote.Found); !ok {
		t.Fatalf("unexpected destroy result %#v", destroyed)
	}

	want := []capturedRequest{
		{method: http.MethodPost, path: "/api/accounts.json", contentType: "application/json", body: `{"church_name":"New"}`},
		{method: http.MethodPut, path: "/api/accounts/42.json", contentType: "application/json", body: `{"church_name":"Renamed"}`},
		{method: http.MethodDelete, path: "/api/accounts/42.json"},
	}
	if diff := cmp.Diff(want, requests, cmp.AllowUnexported(capturedRequest{})); diff != "" {
		t.Fatalf("unexpected requests (-want +got):\n%s", diff)
	}
}

func TestAuthModes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		auth   *config.HTTPAuth
		header string
		want   string
	}{
		{
			name:   "basic",
			auth:   &config.HTTPAuth{BasicAuth: &config.BasicAuth{Username: "user", Password: "pass"}},
			header: "Authorization",
			want:   "Basic dXNlcjpwYXNz",
		},
		{
			name:   "bearer",
			auth:   &config.HTTPAuth{BearerToken: &config.BearerTokenAuth{Token: "token-1"}},
			header: "Authorization",
			want:   "Bearer token-1",
		},
		{
			name:   "custom_header",
			auth:   &config.HTTPAuth{CustomHeader: &config.HeaderTokenAuth{Header: "X-Api-Key", Token: "key-1"}},
			header: "X-Api-Key",
			want:   "key-1",
		},
		{name: "none", header: "Authorization", want: ""},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if got := r.Header.Get(testCase.header); got != testCase.want {
					t.Errorf("expected %s %q, got %q", testCase.header, testCase.want, got)
				}
				_, _ = fmt.Fprint(w, `{}`)
			}))
			t.Cleanup(server.Close)

			gateway := mustGateway(t, config.Remote{BaseURL: server.URL, Auth: testCase.auth})
			if _, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{}); err != nil {
				t.Fatalf("Fetch returned error: %v", err)
			}
		})
	}
}

func TestListResponseShapes(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		body   string
		listJQ string
		want   []remote.Payload
		fails  bool
	}{
		{
			name: "bare_array",
			body: `[{"id":1},{"id":2}]`,
			want: []remote.Payload{{"id": int64(1)}, {"id": int64(2)}},
		},
		{
			name: "items_field",
			body: `{"items":[{"id":1}],"total":1}`,
			want: []remote.Payload{{"id": int64(1)}},
		},
		{
			name: "single_array_field",
			body: `{"accounts":[{"id":3}]}`,
			want: []remote.Payload{{"id": int64(3)}},
		},
		{
			name:   "list_jq",
			body:   `{"data":{"rows":[{"id":4,"active":true},{"id":5,"active":false}]}}`,
			listJQ: `[.data.rows[] | select(.active)]`,
			want:   []remote.Payload{{"id": int64(4), "active": true}},
		},
		{name: "ambiguous_object", body: `{"a":[],"b":[]}`, fails: true},
		{name: "scalar_entries", body: `[1,2]`, fails: true},
		{name: "invalid_list_jq", body: `[]`, listJQ: `.[`, fails: true},
	}

	for _, testCase := range testCases {
		testCase := testCase
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.EscapedPath() != "/api/accounts.json" {
					t.Errorf("unexpected list path %q", r.URL.EscapedPath())
				}
				_, _ = fmt.Fprint(w, testCase.body)
			}))
			t.Cleanup(server.Close)

			gateway := mustGateway(t, config.Remote{BaseURL: server.URL + "/api/"})
			items, result, err := gateway.List(context.Background(), "accounts.json", testCase.listJQ)
			if testCase.fails {
				assertTypedCategory(t, err, faults.ValidationError)
				return
			}
			if err != nil {
				t.Fatalf("List returned error: %v", err)
			}
			if _, ok := result.(remote.Found); !ok {
				t.Fatalf("expected Found, got %T", result)
			}
			if diff := cmp.Diff(testCase.want, items); diff != "" {
				t.Fatalf("unexpected items (-want +got):\n%s", diff)
			}
		})
	}
}

func TestListUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(server.Close)

	gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
	items, result, err := gateway.List(context.Background(), "accounts.json", "")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if items != nil {
		t.Fatalf("expected no items, got %v", items)
	}
	if diff := cmp.Diff(remote.Result(remote.Unavailable{StatusCode: http.StatusServiceUnavailable}), result); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestListUndecodableBodyIsUnavailable(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `<html>maintenance</html>`)
	}))
	t.Cleanup(server.Close)

	gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
	items, result, err := gateway.List(context.Background(), "accounts.json", "")
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if items != nil {
		t.Fatalf("expected no items, got %v", items)
	}
	if diff := cmp.Diff(remote.Result(remote.Unavailable{StatusCode: http.StatusOK}), result); diff != "" {
		t.Fatalf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestRequestPathValidation(t *testing.T) {
	t.Parallel()

	gateway := mustGateway(t, config.Remote{BaseURL: "http://127.0.0.1:1"})
	for _, path := range []string{"", "https://evil.example/x", "accounts.json?x=1", "accounts.json#frag"} {
		_, err := gateway.Fetch(context.Background(), path, remote.Conditional{})
		assertTypedCategory(t, err, faults.ValidationError)
	}
}

func TestRateLimiterThrottlesRequests(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(server.Close)

	limiter := &countingLimiter{}
	gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
	gateway.client.Transport = buildTransport(http.DefaultTransport, limiter)

	for range 3 {
		if _, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{}); err != nil {
			t.Fatalf("Fetch returned error: %v", err)
		}
	}
	if got := limiter.calls.Load(); got != 3 {
		t.Fatalf("expected limiter to be consulted 3 times, got %d", got)
	}

	limiter.err = errors.New("limiter closed")
	_, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{})
	if err != nil {
		t.Fatalf("expected limiter failure to surface as unavailable, got %v", err)
	}
}

func TestConfiguredRateLimitInstallsLimiter(t *testing.T) {
	t.Parallel()

	gateway := mustGateway(t, config.Remote{BaseURL: "http://127.0.0.1:1", RateLimit: 5})
	if gateway.limiter == nil {
		t.Fatal("expected rate limiter to be configured")
	}
	if _, ok := gateway.client.Transport.(*rateLimitedRoundTripper); !ok {
		t.Fatalf("expected rate limited transport, got %T", gateway.client.Transport)
	}

	unlimited := mustGateway(t, config.Remote{BaseURL: "http://127.0.0.1:1"})
	if unlimited.limiter != nil {
		t.Fatal("expected no rate limiter by default")
	}
}

func TestMetricsRecordRemoteRequests(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(server.Close)

	m := metrics.New()
	gateway := mustGateway(t, config.Remote{BaseURL: server.URL}, WithMetrics(m))
	for range 2 {
		if _, err := gateway.Fetch(context.Background(), "accounts/1.json", remote.Conditional{}); err != nil {
			t.Fatalf("Fetch returned error: %v", err)
		}
	}

	expected := `
# HELP remotable_remote_requests_total Remote requests by HTTP method and response status.
# TYPE remotable_remote_requests_total counter
remotable_remote_requests_total{method="GET",status="404"} 2
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "remotable_remote_requests_total"); err != nil {
		t.Fatalf("unexpected metrics: %v", err)
	}
}

func TestDebugLogsRedactQueryAndReportTLS(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, `{}`)
	}))
	t.Cleanup(server.Close)

	var (
		mu    sync.Mutex
		lines []string
	)
	logger := funcr.New(func(prefix, args string) {
		mu.Lock()
		defer mu.Unlock()
		lines = append(lines, args)
	}, funcr.Options{Verbosity: 1})

	ctx := debugctx.WithLogger(context.Background(), logger)
	ctx = debugctx.WithEnabled(ctx, true)

	gateway := mustGateway(t, config.Remote{BaseURL: server.URL})
	if _, err := gateway.Fetch(ctx, "accounts/1.json", remote.Conditional{IfNoneMatch: `"x"`}); err != nil {
		t.Fatalf("Fetch returned error: %v", err)
	}

	mu.Lock()
	contents := strings.Join(lines, "\n")
	mu.Unlock()
	for _, fragment := range []string{`operation=\"fetch\"`, `conditional=true`, `tls_enabled=false`, `status=200`} {
		if !strings.Contains(contents, fragment) {
			t.Fatalf("expected %s in debug output, got %q", fragment, contents)
		}
	}

	redacted := redactURLForDebug(mustParseURL(t, "https://user:pw@example.com/a?token=secret"))
	if strings.Contains(redacted, "secret") || strings.Contains(redacted, "pw") {
		t.Fatalf("expected credentials to be redacted, got %q", redacted)
	}
}

func TestCachedListJQCodeCachesCompiledExpressions(t *testing.T) {
	t.Parallel()

	expression := `.[] | .id`

	codeOne, err := cachedListJQCode(expression)
	if err != nil {
		t.Fatalf("cachedListJQCode first call returned error: %v", err)
	}
	codeTwo, err := cachedListJQCode(expression)
	if err != nil {
		t.Fatalf("cachedListJQCode second call returned error: %v", err)
	}
	if codeOne == nil || codeOne != codeTwo {
		t.Fatal("expected compiled jq code to be cached and reused")
	}
}

func mustParseURL(t *testing.T, raw string) *url.URL {
	t.Helper()

	parsed, err := url.Parse(raw)
	if err != nil {
		t.Fatalf("url.Parse returned error: %v", err)
	}
	return parsed
}

type countingLimiter struct {
	calls atomic.Int32
	err   error
}

func (l *countingLimiter) Wait(context.Context) error {
	l.calls.Add(1)
	return l.err
}

func mustGateway(t *testing.T, cfg config.Remote, opts ...GatewayOption) *HTTPRemoteGateway {
	t.Helper()

	gateway, err := NewHTTPRemoteGateway(cfg, opts...)
	if err != nil {
		t.Fatalf("NewHTTPRemoteGateway returned error: %v", err)
	}
	return gateway
}

func assertTypedCategory(t *testing.T, err error, category faults.ErrorCategory) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}

	var typedErr *faults.TypedError
	if !errors.As(err, &typedErr) {
		t.Fatalf("expected typed error, got %T", err)
	}
	if typedErr.Category != category {
		t.Fatalf("expected %q category, got %q", category, typedErr.Category)
	}
}
