package hasura

import (
	"context"
	"sync"
)

// Client is an assembled GraphQL client: it owns a transport link, a cache,
// the per-operation-kind default policies, and the transport teardown. It is
// created by New and lives for the application's session; Close releases it.
type Client struct {
	link     link
	cache    Cache
	options  DefaultOptions
	teardown teardownFunc

	mu       sync.Mutex
	watchers []*Watcher
}

// New assembles a Client from the configuration. The cache mode is resolved
// first (config override, then environment default), and the cache and the
// default request policies are always derived from that same mode, so a
// memory-mode cache is never paired with no-cache policies or vice versa.
func New(cfg Config) (*Client, error) {
	env := BrowserEnvironment()
	if cfg.Environment != nil {
		env = *cfg.Environment
	}

	mode := cfg.CacheMode
	if mode == CacheModeDefault {
		mode = env.DefaultCacheMode
	}

	var cache Cache
	var options DefaultOptions
	if cfg.Cache != nil {
		// Caller-supplied cache: no mode-derived policies apply.
		cache = cfg.Cache
	} else {
		cache = buildCache(mode)
		options = buildCacheOptions(mode)
	}
	if cfg.DefaultOptions != nil {
		options = mergeDefaultOptions(options, *cfg.DefaultOptions)
	}

	headers := BuildHeaders(cfg.AdminSecret, cfg.Token, cfg.Headers)

	l, teardown, err := buildLink(cfg.HTTPURL, cfg.WebSocketURL, headers, env)
	if err != nil {
		return nil, err
	}

	return &Client{
		link:     l,
		cache:    cache,
		options:  options,
		teardown: teardown,
	}, nil
}

// RequestOption adjusts a single request.
type RequestOption func(*requestConfig)

type requestConfig struct {
	operationName string
	fetchPolicy   FetchPolicy
	errorPolicy   ErrorPolicy
}

// OperationName selects the named operation from a multi-operation
// document.
func OperationName(name string) RequestOption {
	return func(rc *requestConfig) {
		rc.operationName = name
	}
}

// WithFetchPolicy overrides the default fetch policy for one request.
func WithFetchPolicy(policy FetchPolicy) RequestOption {
	return func(rc *requestConfig) {
		rc.fetchPolicy = policy
	}
}

// WithErrorPolicy overrides the default error policy for one request.
func WithErrorPolicy(policy ErrorPolicy) RequestOption {
	return func(rc *requestConfig) {
		rc.errorPolicy = policy
	}
}

// Query executes a single GraphQL query document, applying the resolved
// fetch and error policies for queries.
func (c *Client) Query(
	ctx context.Context,
	query string,
	variables map[string]any,
	options ...RequestOption,
) (*Response, error) {
	op, policy := c.prepare(query, variables, c.options.Query, options)
	return c.run(ctx, op, policy, true)
}

// Mutate executes a single GraphQL mutation document. Mutations never read
// from or write to the cache.
func (c *Client) Mutate(
	ctx context.Context,
	mutation string,
	variables map[string]any,
	options ...RequestOption,
) (*Response, error) {
	op, policy := c.prepare(mutation, variables, c.options.Mutate, options)
	return c.run(ctx, op, policy, false)
}

// Do executes an operation with no policies applied: straight to the link,
// cache untouched, server errors returned as-is inside the Response. It is
// the escape hatch for callers managing policies themselves.
func (c *Client) Do(ctx context.Context, op *Operation) (*Response, error) {
	return c.link.Do(ctx, op)
}

// Subscribe starts a streaming operation. The handler is invoked for every
// result; the returned function stops the subscription. Configurations
// without a WebSocket endpoint return ErrSubscriptionUnsupported.
func (c *Client) Subscribe(
	query string,
	variables map[string]any,
	handler func(resp *Response, err error) error,
	options ...RequestOption,
) (func(), error) {
	var rc requestConfig
	for _, opt := range options {
		opt(&rc)
	}
	op := &Operation{
		Query:         query,
		OperationName: rc.operationName,
		Variables:     variables,
	}
	return c.link.Subscribe(op, handler)
}

// Close shuts the client down: watchers are stopped and the cache cleared
// first, then the transport teardown runs, in that order, so in-flight
// consumers are told to stop before the socket is closed. Double invocation
// is not guarded at this layer.
func (c *Client) Close() error {
	c.mu.Lock()
	watchers := c.watchers
	c.watchers = nil
	c.mu.Unlock()

	for _, w := range watchers {
		w.Stop()
	}
	if c.cache != nil {
		c.cache.Clear()
	}
	return c.teardown()
}

func (c *Client) prepare(
	query string,
	variables map[string]any,
	policy RequestPolicy,
	options []RequestOption,
) (*Operation, RequestPolicy) {
	var rc requestConfig
	for _, opt := range options {
		opt(&rc)
	}
	if rc.fetchPolicy != "" {
		policy.FetchPolicy = rc.fetchPolicy
	}
	if rc.errorPolicy != "" {
		policy.ErrorPolicy = rc.errorPolicy
	}
	op := &Operation{
		Query:         query,
		OperationName: rc.operationName,
		Variables:     variables,
	}
	return op, policy
}

// run applies the fetch and error policies around one link round trip.
// cacheable gates store access entirely; mutations pass false.
func (c *Client) run(
	ctx context.Context,
	op *Operation,
	policy RequestPolicy,
	cacheable bool,
) (*Response, error) {
	useCache := cacheable && c.cache != nil &&
		policy.FetchPolicy != FetchPolicyNoCache && policy.FetchPolicy != ""
	var key string
	if useCache {
		key = op.cacheKey()
	}

	if useCache && policy.FetchPolicy == FetchPolicyCacheFirst {
		if cached, ok := c.cache.Lookup(key); ok {
			return cached, nil
		}
	}

	resp, err := c.link.Do(ctx, op)
	if err != nil {
		if useCache && policy.FetchPolicy == FetchPolicyCacheAndNetwork {
			if cached, ok := c.cache.Lookup(key); ok {
				return cached, nil
			}
		}
		return nil, err
	}

	if len(resp.Errors) > 0 {
		if policy.ErrorPolicy == ErrorPolicyAll {
			// Partial success: data and errors surface together.
			return resp, nil
		}
		return nil, resp.Errors
	}

	if useCache {
		c.cache.Store(key, resp)
	}
	return resp, nil
}

// Watcher observes one query over time: it delivers the cached entry
// immediately when the watch policy permits a cache read, and every Refetch
// result afterwards.
type Watcher struct {
	client *Client
	op     *Operation
	policy RequestPolicy

	mu      sync.Mutex
	updates chan *Response
	stopped bool
}

// WatchQuery creates a watcher for a query document. The watch-query
// policies of the client apply to it.
func (c *Client) WatchQuery(
	ctx context.Context,
	query string,
	variables map[string]any,
	options ...RequestOption,
) (*Watcher, error) {
	op, policy := c.prepare(query, variables, c.options.WatchQuery, options)

	w := &Watcher{
		client:  c,
		op:      op,
		policy:  policy,
		updates: make(chan *Response, 1),
	}

	if c.cache != nil &&
		(policy.FetchPolicy == FetchPolicyCacheFirst ||
			policy.FetchPolicy == FetchPolicyCacheAndNetwork) {
		if cached, ok := c.cache.Lookup(op.cacheKey()); ok {
			w.updates <- cached
		}
	}

	c.mu.Lock()
	c.watchers = append(c.watchers, w)
	c.mu.Unlock()

	return w, nil
}

// Updates is the stream of results. It is closed when the watcher stops.
func (w *Watcher) Updates() <-chan *Response {
	return w.updates
}

// Refetch executes the query against the network under the watch policy and
// pushes the result to Updates. Slow consumers only ever see the most
// recent result.
func (w *Watcher) Refetch(ctx context.Context) (*Response, error) {
	w.mu.Lock()
	stopped := w.stopped
	w.mu.Unlock()
	if stopped {
		return nil, context.Canceled
	}

	resp, err := w.client.run(ctx, w.op, w.policy, true)
	if err != nil {
		return nil, err
	}

	w.publish(resp)
	return resp, nil
}

func (w *Watcher) publish(resp *Response) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	// Drop a stale buffered value so the latest result wins.
	select {
	case <-w.updates:
	default:
	}
	w.updates <- resp
}

// Stop ends the watch and closes Updates. Safe to call more than once.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	w.stopped = true
	close(w.updates)
}
