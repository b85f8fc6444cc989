// Package lambdahttp serves API Gateway proxy events with a plain
// http.Handler, so the same router runs behind Lambda and as a server.
package lambdahttp

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/aws/aws-lambda-go/events"
)

type HandlerFunc func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error)

func Handler(h http.Handler) HandlerFunc {
	return func(ctx context.Context, req events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
		r, err := NewRequest(ctx, req)
		if err != nil {
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusBadRequest,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"error":"Invalid payload"}`,
			}, nil
		}

		w := newResponseWriter()
		h.ServeHTTP(w, r)
		return w.proxyResponse(), nil
	}
}

// NewRequest converts an API Gateway proxy event into an *http.Request.
func NewRequest(ctx context.Context, req events.APIGatewayProxyRequest) (*http.Request, error) {
	body := []byte(req.Body)
	if req.IsBase64Encoded {
		decoded, err := base64.StdEncoding.DecodeString(req.Body)
		if err != nil {
			return nil, fmt.Errorf("decode base64 body: %w", err)
		}
		body = decoded
	}

	q := url.Values{}
	for k, vs := range req.MultiValueQueryStringParameters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range req.QueryStringParameters {
		if _, ok := q[k]; !ok {
			q.Set(k, v)
		}
	}

	path := req.Path
	if path == "" {
		path = "/"
	}
	u := url.URL{Path: path, RawQuery: q.Encode()}

	r, err := http.NewRequestWithContext(ctx, req.HTTPMethod, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	for k, vs := range req.MultiValueHeaders {
		for _, v := range vs {
			r.Header.Add(k, v)
		}
	}
	for k, v := range req.Headers {
		if r.Header.Get(k) == "" {
			r.Header.Set(k, v)
		}
	}
	if r.Header.Get("X-Request-ID") == "" && req.RequestContext.RequestID != "" {
		r.Header.Set("X-Request-ID", req.RequestContext.RequestID)
	}
	if ip := req.RequestContext.Identity.SourceIP; ip != "" {
		r.RemoteAddr = ip + ":0"
	}
	r.ContentLength = int64(len(body))
	return r, nil
}

type responseWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newResponseWriter() *responseWriter {
	return &responseWriter{header: http.Header{}}
}

func (w *responseWriter) Header() http.Header { return w.header }

func (w *responseWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}
	return w.body.Write(b)
}

func (w *responseWriter) WriteHeader(status int) {
	if w.status == 0 {
		w.status = status
	}
}

func (w *responseWriter) proxyResponse() events.APIGatewayProxyResponse {
	status := w.status
	if status == 0 {
		status = http.StatusOK
	}
	headers := make(map[string]string, len(w.header))
	multi := make(map[string][]string, len(w.header))
	for k, vs := range w.header {
		headers[k] = strings.Join(vs, ",")
		multi[k] = append([]string(nil), vs...)
	}
	return events.APIGatewayProxyResponse{
		StatusCode:        status,
		Headers:           headers,
		MultiValueHeaders: multi,
		Body:              w.body.String(),
	}
}
