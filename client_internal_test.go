package hasura

import (
	"context"
	"testing"
)

type stubLink struct {
	resp  *Response
	err   error
	calls int
}

func (s *stubLink) Do(ctx context.Context, op *Operation) (*Response, error) {
	s.calls++
	return s.resp, s.err
}

func (s *stubLink) Subscribe(
	op *Operation,
	handler func(resp *Response, err error) error,
) (func(), error) {
	return func() {}, nil
}

type recordingCache struct {
	events *[]string
}

func (c *recordingCache) Lookup(key string) (*Response, bool) { return nil, false }
func (c *recordingCache) Store(key string, resp *Response)    {}
func (c *recordingCache) Clear() {
	*c.events = append(*c.events, "clear")
}

func TestClientClose_ordering(t *testing.T) {
	var events []string
	client := &Client{
		link:  &stubLink{},
		cache: &recordingCache{events: &events},
		teardown: func() error {
			events = append(events, "teardown")
			return nil
		},
	}

	if err := client.Close(); err != nil {
		t.Fatalf("got error: %v, want: nil", err)
	}

	if len(events) != 2 || events[0] != "clear" || events[1] != "teardown" {
		t.Errorf("got events: %v, want: [clear teardown]", events)
	}
}

func TestClientClose_stopsWatchers(t *testing.T) {
	stub := &stubLink{resp: &Response{Data: []byte(`{"ok":true}`)}}
	client := &Client{
		link:     stub,
		teardown: func() error { return nil },
	}

	w, err := client.WatchQuery(context.Background(), `{ users { id } }`, nil)
	if err != nil {
		t.Fatalf("got error: %v, want: nil", err)
	}

	if err := client.Close(); err != nil {
		t.Fatalf("got error: %v, want: nil", err)
	}

	if _, ok := <-w.Updates(); ok {
		t.Error("got open updates channel after Close, want: closed")
	}
	if _, err := w.Refetch(context.Background()); err == nil {
		t.Error("got nil error from Refetch after Close, want: non-nil")
	}
}

func TestNew_modePairingInvariant(t *testing.T) {
	env := ServerEnvironment()

	memory, err := New(Config{
		HTTPURL:     "/graphql",
		CacheMode:   CacheModeMemory,
		Environment: &env,
	})
	if err != nil {
		t.Fatalf("got error: %v, want: nil", err)
	}
	if memory.cache == nil {
		t.Error("got nil cache for memory mode, want: non-nil")
	}
	if got, want := memory.options.Query.FetchPolicy, FetchPolicyCacheAndNetwork; got != want {
		t.Errorf("got fetch policy: %q, want: %q", got, want)
	}

	none, err := New(Config{
		HTTPURL:     "/graphql",
		CacheMode:   CacheModeNone,
		Environment: &env,
	})
	if err != nil {
		t.Fatalf("got error: %v, want: nil", err)
	}
	if none.cache != nil {
		t.Error("got cache for none mode, want: nil")
	}
	if got, want := none.options.Query.FetchPolicy, FetchPolicyNoCache; got != want {
		t.Errorf("got fetch policy: %q, want: %q", got, want)
	}
}

func TestNew_environmentDefaultCacheMode(t *testing.T) {
	server := ServerEnvironment()
	client, err := New(Config{HTTPURL: "/graphql", Environment: &server})
	if err != nil {
		t.Fatalf("got error: %v, want: nil", err)
	}
	if client.cache != nil {
		t.Error("got cache under server environment default, want: nil")
	}

	// Nil environment falls back to the browser profile, which caches.
	client, err = New(Config{HTTPURL: "/graphql"})
	if err != nil {
		t.Fatalf("got error: %v, want: nil", err)
	}
	if client.cache == nil {
		t.Error("got nil cache under browser environment default, want: non-nil")
	}
}
