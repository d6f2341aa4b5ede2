package hasura

import (
	"context"
	"fmt"
	"sync"

	"nhooyr.io/websocket"
)

// link is the transport abstraction: it sends one operation and returns or
// streams its response. The client owns exactly one link.
type link interface {
	// Do executes a single-response operation.
	Do(ctx context.Context, op *Operation) (*Response, error)

	// Subscribe starts a streaming operation and returns a function that
	// stops it.
	Subscribe(op *Operation, handler func(resp *Response, err error) error) (func(), error)
}

// teardownFunc releases the transport's long-lived resources. For HTTP it
// is a no-op; for WebSocket it closes the subscription connection.
type teardownFunc func() error

// connectionKind is the transport selection derived from which endpoint
// URLs are present.
type connectionKind uint8

const (
	connectionHTTP connectionKind = iota
	connectionWebSocket
	connectionBoth
)

func (k connectionKind) String() string {
	switch k {
	case connectionHTTP:
		return "http"
	case connectionWebSocket:
		return "websocket"
	case connectionBoth:
		return "both"
	}
	return fmt.Sprintf("connectionKind(%d)", uint8(k))
}

// resolveConnectionKind derives the transport from URL presence: both URLs
// give a split transport, a lone WebSocket URL a pure WebSocket transport,
// and anything else HTTP.
func resolveConnectionKind(httpURL, wsURL string) connectionKind {
	switch {
	case httpURL != "" && wsURL != "":
		return connectionBoth
	case wsURL != "":
		return connectionWebSocket
	default:
		return connectionHTTP
	}
}

// buildLink constructs the transport for the given endpoints and headers,
// plus the teardown releasing its resources.
func buildLink(httpURL, wsURL string, headers map[string]string, env Environment) (link, teardownFunc, error) {
	return buildLinkForKind(resolveConnectionKind(httpURL, wsURL), httpURL, wsURL, headers, env)
}

func buildLinkForKind(
	kind connectionKind,
	httpURL, wsURL string,
	headers map[string]string,
	env Environment,
) (link, teardownFunc, error) {
	switch kind {
	case connectionHTTP:
		l := newHTTPLink(httpURL, env.HTTPClient, headers)
		return l, func() error { return nil }, nil

	case connectionWebSocket:
		ws := newWSLink(wsURL, headers, env)
		return ws, ws.close, nil

	case connectionBoth:
		h := newHTTPLink(httpURL, env.HTTPClient, headers)
		ws := newWSLink(wsURL, headers, env)
		// Only the WebSocket side holds a persistent resource.
		return &splitLink{http: h, ws: ws}, ws.close, nil

	default:
		return nil, nil, &InvalidConfigurationError{Kind: kind.String()}
	}
}

// wsLink adapts the SubscriptionClient to the link interface. The client's
// Run loop is started lazily on first use and kept alive across reconnects
// by the SubscriptionClient itself.
type wsLink struct {
	sc      *SubscriptionClient
	runOnce sync.Once
}

func newWSLink(url string, headers map[string]string, env Environment) *wsLink {
	sc := NewSubscriptionClient(url).
		WithConnectionParams(map[string]any{
			"headers": headers,
		})
	if env.HTTPClient != nil {
		sc.WithWebSocketOptions(&websocket.DialOptions{HTTPClient: env.HTTPClient})
	}
	return &wsLink{sc: sc}
}

func (l *wsLink) ensureRunning() {
	l.runOnce.Do(func() {
		go func() {
			if err := l.sc.Run(); err != nil {
				l.sc.printLog("subscription client stopped:", err)
			}
		}()
	})
}

func (l *wsLink) Subscribe(
	op *Operation,
	handler func(resp *Response, err error) error,
) (func(), error) {
	l.ensureRunning()
	id, err := l.sc.Subscribe(op.Query, op.OperationName, op.Variables,
		func(data []byte, err error) error {
			return handler(wsResponse(data, err))
		})
	if err != nil {
		return nil, err
	}
	return func() { l.sc.Unsubscribe(id) }, nil
}

// Do executes a one-shot operation over the WebSocket transport: the
// operation is started as a subscription and resolved with its first
// payload. Queries and mutations complete after a single result on this
// protocol.
func (l *wsLink) Do(ctx context.Context, op *Operation) (*Response, error) {
	type result struct {
		resp *Response
		err  error
	}

	l.ensureRunning()
	ch := make(chan result, 1)
	id, err := l.sc.Subscribe(op.Query, op.OperationName, op.Variables,
		func(data []byte, err error) error {
			resp, herr := wsResponse(data, err)
			select {
			case ch <- result{resp: resp, err: herr}:
			default:
			}
			return nil
		})
	if err != nil {
		return nil, err
	}
	defer l.sc.Unsubscribe(id)

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		return res.resp, res.err
	}
}

func (l *wsLink) close() error {
	return l.sc.Close()
}

// wsResponse assembles a Response from a subscription handler invocation.
// Server-reported GraphQL errors travel inside the Response; transport
// errors surface as the error return.
func wsResponse(data []byte, err error) (*Response, error) {
	resp := &Response{Data: data}
	if err == nil {
		return resp, nil
	}
	var gqlErrs Errors
	if ok := asErrors(err, &gqlErrs); ok {
		resp.Errors = gqlErrs
		return resp, nil
	}
	return nil, err
}

func asErrors(err error, target *Errors) bool {
	e, ok := err.(Errors)
	if ok {
		*target = e
	}
	return ok
}

// splitLink routes each operation by its kind: subscriptions to the
// WebSocket link, queries and mutations to the HTTP link.
type splitLink struct {
	http link
	ws   link
}

func (l *splitLink) Do(ctx context.Context, op *Operation) (*Response, error) {
	kind, err := op.Kind()
	if err != nil {
		return nil, err
	}
	if kind == KindSubscription {
		return l.ws.Do(ctx, op)
	}
	return l.http.Do(ctx, op)
}

func (l *splitLink) Subscribe(
	op *Operation,
	handler func(resp *Response, err error) error,
) (func(), error) {
	kind, err := op.Kind()
	if err != nil {
		return nil, err
	}
	if kind == KindSubscription {
		return l.ws.Subscribe(op, handler)
	}
	// Non-subscription operations resolve once over HTTP; the handler is
	// invoked a single time and there is nothing to stop.
	resp, err := l.http.Do(context.Background(), op)
	if herr := handler(resp, err); herr != nil {
		return nil, herr
	}
	return func() {}, nil
}
