// Package lambdahttp serves an http.Handler from API Gateway HTTP API
// (payload format 2.0) Lambda invocations.
package lambdahttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

// Adapter translates API Gateway v2 events to requests on an http.Handler.
type Adapter struct {
	handler http.Handler
}

func New(handler http.Handler) *Adapter {
	return &Adapter{handler: handler}
}

// Handle is the Lambda entry point. It never returns an error for handler
// failures; those are already encoded in the response status.
func (a *Adapter) Handle(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	req, err := toRequest(ctx, evt)
	if err != nil {
		return events.APIGatewayV2HTTPResponse{}, err
	}

	rw := newResponseWriter()
	a.handler.ServeHTTP(rw, req)
	return rw.toResponse(), nil
}

func toRequest(ctx context.Context, evt events.APIGatewayV2HTTPRequest) (*http.Request, error) {
	body := []byte(evt.Body)
	if evt.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(evt.Body)
		if err != nil {
			return nil, fmt.Errorf("decoding base64 request body: %w", err)
		}
		body = decoded
	}

	path := evt.RawPath
	if path == "" {
		path = "/"
	}
	target := path
	if evt.RawQueryString != "" {
		target += "?" + evt.RawQueryString
	}

	method := evt.RequestContext.HTTP.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, target, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.ContentLength = int64(len(body))
	req.RequestURI = target

	// Repeated headers arrive comma-joined and are passed on as one value.
	for k, v := range evt.Headers {
		req.Header.Set(k, v)
	}
	if len(evt.Cookies) > 0 {
		req.Header.Set("Cookie", strings.Join(evt.Cookies, "; "))
	}
	if req.Header.Get("X-Request-Id") == "" && evt.RequestContext.RequestID != "" {
		req.Header.Set("X-Request-Id", evt.RequestContext.RequestID)
	}
	if host := req.Header.Get("Host"); host != "" {
		req.Host = host
	} else {
		req.Host = evt.RequestContext.DomainName
	}
	if ip := evt.RequestContext.HTTP.SourceIP; ip != "" {
		req.RemoteAddr = ip + ":0"
	}
	return req, nil
}

type responseWriter struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: http.Header{}, status: http.StatusOK}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) WriteHeader(status int) {
	if w.wroteHeader {
		return
	}
	w.status = status
	w.wroteHeader = true
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	return w.body.Write(b)
}

func (w *responseWriter) toResponse() events.APIGatewayV2HTTPResponse {
	resp := events.APIGatewayV2HTTPResponse{
		StatusCode: w.status,
		Headers:    map[string]string{},
	}
	for k, vs := range w.header {
		if k == "Set-Cookie" {
			resp.Cookies = append(resp.Cookies, vs...)
			continue
		}
		resp.Headers[k] = strings.Join(vs, ",")
	}

	if isText(w.header.Get("Content-Type")) {
		resp.Body = w.body.String()
	} else if w.body.Len() > 0 {
		resp.Body = base64.StdEncoding.EncodeToString(w.body.Bytes())
		resp.IsBase64Encoded = true
	}
	return resp
}

func isText(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, "text/") ||
		strings.Contains(ct, "json") ||
		strings.Contains(ct, "xml") ||
		strings.Contains(ct, "javascript")
}
