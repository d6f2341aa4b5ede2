package hasura

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// subscriptionProtocol is the WebSocket subprotocol negotiated with the
// server (the subscriptions-transport-ws protocol).
//
// https://github.com/apollographql/subscriptions-transport-ws/blob/master/PROTOCOL.md
const subscriptionProtocol = "graphql-ws"

type operationMessageType string

const (
	// Client -> server.
	gqlConnectionInit      operationMessageType = "connection_init"
	gqlConnectionTerminate operationMessageType = "connection_terminate"
	gqlStart               operationMessageType = "start"
	gqlStop                operationMessageType = "stop"

	// Server -> client.
	gqlConnectionAck       operationMessageType = "connection_ack"
	gqlConnectionError     operationMessageType = "connection_error"
	gqlConnectionKeepAlive operationMessageType = "ka"
	gqlData                operationMessageType = "data"
	gqlError               operationMessageType = "error"
	gqlComplete            operationMessageType = "complete"
)

// operationMessage is the frame exchanged over the socket in both
// directions.
type operationMessage struct {
	ID      string               `json:"id,omitempty"`
	Type    operationMessageType `json:"type"`
	Payload json.RawMessage      `json:"payload,omitempty"`
}

// subscription tracks one live operation so it can be restarted after a
// reconnect.
type subscription struct {
	id      string
	payload json.RawMessage
	handler func(data []byte, err error) error
}

// handlerStopError signals that a subscription handler asked the client to
// stop by returning an error; Run unwraps it and returns the handler's
// error unchanged.
type handlerStopError struct {
	err error
}

func (e *handlerStopError) Error() string {
	return e.err.Error()
}

// SubscriptionClient is a WebSocket GraphQL transport for subscriptions.
//
// Unlike the HTTP side, its With* methods modify the receiver and return
// self so configuration can be chained before Run is called:
//
//	sc := NewSubscriptionClient(url).
//		WithConnectionParams(params).
//		WithLog(log.Println)
//
// Run dials the server, replays registered subscriptions, and dispatches
// incoming messages until Close is called, a handler returns an error, or
// the retry budget is exhausted.
type SubscriptionClient struct {
	url              string
	connectionParams map[string]any
	dialOptions      *websocket.DialOptions
	timeout          time.Duration
	retryDelay       time.Duration
	retries          int
	log              func(args ...any)
	onConnected      func()
	onError          func(sc *SubscriptionClient, err error) error

	mu            sync.Mutex
	writeMu       sync.Mutex
	conn          *websocket.Conn
	subscriptions map[string]*subscription
	cancel        context.CancelFunc
	closed        bool
}

// NewSubscriptionClient creates a subscription client targeting the
// specified WebSocket URL.
func NewSubscriptionClient(url string) *SubscriptionClient {
	return &SubscriptionClient{
		url:           url,
		timeout:       30 * time.Second,
		retryDelay:    time.Second,
		subscriptions: make(map[string]*subscription),
	}
}

// WithConnectionParams sets the payload transmitted with the
// connection_init message during the handshake.
func (sc *SubscriptionClient) WithConnectionParams(params map[string]any) *SubscriptionClient {
	sc.connectionParams = params
	return sc
}

// WithWebSocketOptions sets the options passed to the WebSocket dialer. The
// graphql-ws subprotocol is always added to the negotiated subprotocols.
func (sc *SubscriptionClient) WithWebSocketOptions(options *websocket.DialOptions) *SubscriptionClient {
	sc.dialOptions = options
	return sc
}

// WithTimeout sets the handshake and write timeout.
func (sc *SubscriptionClient) WithTimeout(timeout time.Duration) *SubscriptionClient {
	sc.timeout = timeout
	return sc
}

// WithRetries bounds the number of reconnect attempts. Zero means reconnect
// indefinitely until Close.
func (sc *SubscriptionClient) WithRetries(retries int) *SubscriptionClient {
	sc.retries = retries
	return sc
}

// WithLog sets the log callback, e.g. WithLog(log.Println).
func (sc *SubscriptionClient) WithLog(logger func(args ...any)) *SubscriptionClient {
	sc.log = logger
	return sc
}

// OnConnected registers a callback invoked after each successful handshake,
// including reconnects.
func (sc *SubscriptionClient) OnConnected(fn func()) *SubscriptionClient {
	sc.onConnected = fn
	return sc
}

// OnError registers a callback invoked with transport errors. Returning a
// non-nil error stops Run with that error; returning nil lets the client
// reconnect.
func (sc *SubscriptionClient) OnError(fn func(sc *SubscriptionClient, err error) error) *SubscriptionClient {
	sc.onError = fn
	return sc
}

func (sc *SubscriptionClient) printLog(args ...any) {
	if sc.log != nil {
		sc.log(args...)
	}
}

// Subscribe registers a subscription operation and returns its id. The
// handler receives the data payload of each result, or the errors the
// server reported for it; returning a non-nil error from the handler stops
// the client's Run loop with that error. The start message is sent
// immediately when connected, otherwise on the next (re)connect.
func (sc *SubscriptionClient) Subscribe(
	query string,
	operationName string,
	variables map[string]any,
	handler func(data []byte, err error) error,
) (string, error) {
	payload, err := json.Marshal(Operation{
		Query:         query,
		OperationName: operationName,
		Variables:     variables,
	})
	if err != nil {
		return "", err
	}

	sub := &subscription{
		id:      uuid.New().String(),
		payload: payload,
		handler: handler,
	}

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return "", errors.New("subscription client is closed")
	}
	sc.subscriptions[sub.id] = sub
	conn := sc.conn
	sc.mu.Unlock()

	if conn != nil {
		if err := sc.write(conn, operationMessage{
			ID:      sub.id,
			Type:    gqlStart,
			Payload: sub.payload,
		}); err != nil {
			return sub.id, err
		}
	}

	return sub.id, nil
}

// Unsubscribe stops the subscription with the given id. Unknown ids are
// ignored.
func (sc *SubscriptionClient) Unsubscribe(id string) {
	sc.mu.Lock()
	_, ok := sc.subscriptions[id]
	delete(sc.subscriptions, id)
	conn := sc.conn
	sc.mu.Unlock()

	if !ok || conn == nil {
		return
	}
	_ = sc.write(conn, operationMessage{ID: id, Type: gqlStop})
}

// Run connects to the server and dispatches messages until Close is called,
// a subscription handler returns an error (Run returns that error), or the
// retry budget is exhausted.
func (sc *SubscriptionClient) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	sc.mu.Lock()
	sc.cancel = cancel
	sc.mu.Unlock()
	defer cancel()

	var attempts int
	for {
		err := sc.connectAndListen(ctx)
		if err == nil || sc.isClosed() {
			return nil
		}

		var stop *handlerStopError
		if errors.As(err, &stop) {
			return stop.err
		}

		if sc.onError != nil {
			if cbErr := sc.onError(sc, err); cbErr != nil {
				return cbErr
			}
		}

		attempts++
		if sc.retries > 0 && attempts >= sc.retries {
			return err
		}

		sc.printLog("connection lost, reconnecting:", err)
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(sc.retryDelay):
		}
	}
}

// Close terminates the connection and all its operations. Further messages
// are never sent on the closed connection.
func (sc *SubscriptionClient) Close() error {
	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		return nil
	}
	sc.closed = true
	conn := sc.conn
	sc.conn = nil
	cancel := sc.cancel
	sc.mu.Unlock()

	var err error
	if conn != nil {
		_ = sc.write(conn, operationMessage{Type: gqlConnectionTerminate})
		err = conn.Close(websocket.StatusNormalClosure, "")
	}
	if cancel != nil {
		cancel()
	}
	return err
}

func (sc *SubscriptionClient) isClosed() bool {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.closed
}

// connectAndListen performs one connection lifecycle: dial and handshake,
// replay registered subscriptions, then read messages until the connection
// fails or the client is closed. A nil return means a clean shutdown.
func (sc *SubscriptionClient) connectAndListen(ctx context.Context) error {
	conn, err := sc.connect(ctx)
	if err != nil {
		return err
	}

	sc.mu.Lock()
	if sc.closed {
		sc.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
		return nil
	}
	sc.conn = conn
	subs := make([]*subscription, 0, len(sc.subscriptions))
	for _, sub := range sc.subscriptions {
		subs = append(subs, sub)
	}
	sc.mu.Unlock()

	defer func() {
		sc.mu.Lock()
		if sc.conn == conn {
			sc.conn = nil
		}
		sc.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	}()

	if sc.onConnected != nil {
		sc.onConnected()
	}

	for _, sub := range subs {
		if err := sc.write(conn, operationMessage{
			ID:      sub.id,
			Type:    gqlStart,
			Payload: sub.payload,
		}); err != nil {
			return fmt.Errorf("starting subscription %s: %w", sub.id, err)
		}
	}

	for {
		var msg operationMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			if sc.isClosed() || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("reading message: %w", err)
		}

		switch msg.Type {
		case gqlConnectionKeepAlive:
			// Nothing to do.
		case gqlData:
			if err := sc.dispatch(msg.ID, msg.Payload, nil); err != nil {
				return &handlerStopError{err: err}
			}
		case gqlError:
			serverErr := newSimpleErrors(
				ErrRequestError,
				fmt.Errorf("subscription error: %s", msg.Payload),
			)
			if err := sc.dispatch(msg.ID, nil, serverErr); err != nil {
				return &handlerStopError{err: err}
			}
		case gqlComplete:
			sc.mu.Lock()
			delete(sc.subscriptions, msg.ID)
			sc.mu.Unlock()
		case gqlConnectionError:
			return fmt.Errorf("connection error: %s", msg.Payload)
		default:
			sc.printLog("ignoring message type:", msg.Type)
		}
	}
}

// connect dials the server and performs the connection_init handshake,
// waiting for the connection_ack.
func (sc *SubscriptionClient) connect(ctx context.Context) (*websocket.Conn, error) {
	dialCtx, cancel := context.WithTimeout(ctx, sc.timeout)
	defer cancel()

	options := &websocket.DialOptions{}
	if sc.dialOptions != nil {
		clone := *sc.dialOptions
		options = &clone
	}
	options.Subprotocols = append(options.Subprotocols, subscriptionProtocol)

	conn, _, err := websocket.Dial(dialCtx, sc.url, options)
	if err != nil {
		return nil, fmt.Errorf("dialing %s: %w", sc.url, err)
	}

	init := operationMessage{Type: gqlConnectionInit}
	if sc.connectionParams != nil {
		payload, err := json.Marshal(sc.connectionParams)
		if err != nil {
			_ = conn.Close(websocket.StatusProtocolError, "")
			return nil, err
		}
		init.Payload = payload
	}
	if err := sc.write(conn, init); err != nil {
		_ = conn.Close(websocket.StatusProtocolError, "")
		return nil, fmt.Errorf("sending connection_init: %w", err)
	}

	// Wait for the ack; keep-alives may arrive first.
	for {
		var msg operationMessage
		if err := wsjson.Read(dialCtx, conn, &msg); err != nil {
			_ = conn.Close(websocket.StatusProtocolError, "")
			return nil, fmt.Errorf("waiting for connection_ack: %w", err)
		}
		switch msg.Type {
		case gqlConnectionAck:
			return conn, nil
		case gqlConnectionKeepAlive:
			// Keep waiting.
		case gqlConnectionError:
			_ = conn.Close(websocket.StatusProtocolError, "")
			return nil, fmt.Errorf("connection rejected: %s", msg.Payload)
		default:
			_ = conn.Close(websocket.StatusProtocolError, "")
			return nil, fmt.Errorf("unexpected message %q before connection_ack", msg.Type)
		}
	}
}

// dispatch delivers one data or error message to the matching
// subscription's handler. The returned error, if any, is the handler's.
func (sc *SubscriptionClient) dispatch(id string, payload json.RawMessage, serverErr error) error {
	sc.mu.Lock()
	sub := sc.subscriptions[id]
	sc.mu.Unlock()
	if sub == nil {
		return nil
	}

	if serverErr != nil {
		return sub.handler(nil, serverErr)
	}

	var out struct {
		Data   json.RawMessage `json:"data"`
		Errors Errors          `json:"errors"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return sub.handler(nil, newSimpleErrors(ErrJsonDecode, err))
	}

	var handlerErr error
	if len(out.Errors) > 0 {
		handlerErr = out.Errors
	}
	return sub.handler(out.Data, handlerErr)
}

// write serializes one frame to the connection. Writes are serialized;
// wsjson allows only one concurrent writer.
func (sc *SubscriptionClient) write(conn *websocket.Conn, msg operationMessage) error {
	sc.writeMu.Lock()
	defer sc.writeMu.Unlock()
	ctx, cancel := context.WithTimeout(context.Background(), sc.timeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
