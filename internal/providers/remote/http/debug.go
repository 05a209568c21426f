package http

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/debugctx"
)

type tlsDebugInfo struct {
	enabled            bool
	insecureSkipVerify bool
	caCertFile         string
	clientCertFile     string
}

func newTLSDebugInfo(tlsSettings *config.TLS) tlsDebugInfo {
	if tlsSettings == nil {
		return tlsDebugInfo{}
	}

	return tlsDebugInfo{
		enabled:            true,
		insecureSkipVerify: tlsSettings.InsecureSkipVerify,
		caCertFile:         strings.TrimSpace(tlsSettings.CACertFile),
		clientCertFile:     strings.TrimSpace(tlsSettings.ClientCertFile),
	}
}

func (g *HTTPRemoteGateway) doRequest(ctx context.Context, operation string, request *http.Request) (*http.Response, error) {
	debugctx.Printf(
		ctx,
		"http request operation=%q method=%q url=%q request_id=%q conditional=%t tls_enabled=%t mtls_enabled=%t tls_insecure_skip_verify=%t tls_ca_cert_file=%q",
		operation,
		request.Method,
		redactURLForDebug(request.URL),
		request.Header.Get(requestIDHeader),
		request.Header.Get("If-Modified-Since") != "" || request.Header.Get("If-None-Match") != "",
		g.tlsDebug.enabled,
		g.tlsDebug.clientCertFile != "",
		g.tlsDebug.insecureSkipVerify,
		g.tlsDebug.caCertFile,
	)

	response, err := g.client.Do(request)
	if err != nil {
		debugctx.Printf(
			ctx,
			"http request failed operation=%q method=%q url=%q error=%v",
			operation,
			request.Method,
			redactURLForDebug(request.URL),
			err,
		)
		return nil, err
	}

	debugctx.Printf(
		ctx,
		"http response operation=%q method=%q url=%q status=%d",
		operation,
		request.Method,
		redactURLForDebug(request.URL),
		response.StatusCode,
	)
	return response, nil
}

func redactURLForDebug(value *url.URL) string {
	if value == nil {
		return ""
	}

	cloned := *value
	cloned.User = nil

	query := cloned.Query()
	if len(query) > 0 {
		for key, values := range query {
			redacted := make([]string, len(values))
			for idx := range values {
				redacted[idx] = "<redacted>"
			}
			query[key] = redacted
		}
		cloned.RawQuery = query.Encode()
	}

	return cloned.String()
}
