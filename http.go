package hasura

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
)

// ErrSubscriptionUnsupported is returned when a subscription is issued
// through a configuration without a WebSocket endpoint.
var ErrSubscriptionUnsupported = errors.New("hasura: subscriptions require a WebSocket endpoint")

// httpLink sends operations as HTTP POST requests carrying the JSON
// operation envelope and the configured header map.
type httpLink struct {
	url        string
	httpClient *http.Client
	headers    map[string]string
}

func newHTTPLink(url string, httpClient *http.Client, headers map[string]string) *httpLink {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &httpLink{
		url:        url,
		httpClient: httpClient,
		headers:    headers,
	}
}

func (l *httpLink) Do(ctx context.Context, op *Operation) (*Response, error) {
	request, err := l.buildRequest(ctx, op)
	if err != nil {
		return nil, newSimpleErrors(
			ErrRequestError,
			fmt.Errorf("problem constructing request: %w", err),
		)
	}

	resp, err := l.httpClient.Do(request)
	if err != nil {
		return nil, newSimpleErrors(ErrRequestError, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, newSimpleErrors(
			ErrRequestError,
			fmt.Errorf("%v; body: %q", resp.Status, body),
		)
	}

	r, err := decompressResponse(resp, resp.Body)
	if err != nil {
		return nil, newSimpleErrors(ErrJsonDecode, err)
	}
	defer func() { _ = r.Close() }()

	var out Response
	if err := json.NewDecoder(r).Decode(&out); err != nil {
		return nil, newSimpleErrors(ErrJsonDecode, err)
	}

	// GraphQL errors stay inside the Response; the error policy applied by
	// the client decides how they surface.
	return &out, nil
}

func (l *httpLink) Subscribe(
	op *Operation,
	handler func(resp *Response, err error) error,
) (func(), error) {
	return nil, ErrSubscriptionUnsupported
}

// buildRequest constructs the HTTP POST request with JSON body for an
// operation and applies the header map.
func (l *httpLink) buildRequest(ctx context.Context, op *Operation) (*http.Request, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(op); err != nil {
		return nil, err
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		l.url,
		&buf,
	)
	if err != nil {
		return nil, err
	}

	for k, v := range l.headers {
		request.Header.Set(k, v)
	}

	return request, nil
}

// decompressResponse wraps the response body reader with a gzip decompressor
// if the Content-Encoding header indicates gzip compression.
func decompressResponse(resp *http.Response, bodyReader io.Reader) (io.ReadCloser, error) {
	if resp.Header.Get("Content-Encoding") == "gzip" {
		gr, err := gzip.NewReader(bodyReader)
		if err != nil {
			return nil, fmt.Errorf("problem trying to create gzip reader: %w", err)
		}
		return gr, nil
	}
	return io.NopCloser(bodyReader), nil
}
