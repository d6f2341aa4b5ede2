package hasura

import (
	"net/http"
	"net/http/cookiejar"
)

// Environment bundles the runtime-dependent pieces of a client: the HTTP
// client used for the HTTP transport and WebSocket dialing, and the cache
// mode applied when the configuration does not name one. It is supplied
// explicitly through Config rather than detected from the process, so both
// profiles can be exercised in tests without process-level mocking.
type Environment struct {
	// HTTPClient performs HTTP requests and WebSocket handshakes.
	// Nil falls back to http.DefaultClient.
	HTTPClient *http.Client

	// DefaultCacheMode applies when Config.CacheMode is CacheModeDefault.
	DefaultCacheMode CacheMode
}

// ServerEnvironment is the profile for server-side processes: no cookie jar
// and caching disabled by default.
func ServerEnvironment() Environment {
	return Environment{
		HTTPClient:       &http.Client{},
		DefaultCacheMode: CacheModeNone,
	}
}

// BrowserEnvironment is the profile for interactive, browser-like sessions:
// the HTTP client carries a cookie jar so credentials set by the endpoint
// persist across requests, and caching is enabled by default.
func BrowserEnvironment() Environment {
	jar, _ := cookiejar.New(nil)
	return Environment{
		HTTPClient:       &http.Client{Jar: jar},
		DefaultCacheMode: CacheModeMemory,
	}
}

// Config is the input configuration for New. All fields are optional; the
// zero value yields an HTTP client against an empty URL with
// browser-profile defaults, so in practice at least one endpoint URL should
// be set. Config is read once during New and never retained.
type Config struct {
	// HTTPURL is the absolute HTTP(S) endpoint for queries and mutations.
	HTTPURL string

	// WebSocketURL is the absolute WS(S) endpoint for subscriptions. When
	// both URLs are set, operations are routed by kind; when only this one
	// is set, every operation goes over the WebSocket transport.
	WebSocketURL string

	// AdminSecret asserts elevated access via the x-hasura-admin-secret
	// header. Takes precedence over Token.
	AdminSecret string

	// Token is a bearer credential sent as "Authorization: Bearer <token>"
	// when no AdminSecret is set.
	Token string

	// Headers are merged into the outgoing headers last, overriding
	// same-named defaults.
	Headers map[string]string

	// CacheMode selects the cache and the matching default request
	// policies. CacheModeDefault defers to the environment.
	CacheMode CacheMode

	// Cache supplies a pre-built cache implementation. When set it
	// overrides CacheMode and the mode-derived default options are empty.
	Cache Cache

	// DefaultOptions overrides the mode-derived request policies field by
	// field.
	DefaultOptions *DefaultOptions

	// Environment selects the runtime profile. Nil means
	// BrowserEnvironment.
	Environment *Environment
}
