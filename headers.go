package hasura

// Header names and values produced by BuildHeaders.
const (
	headerContentType   = "Content-Type"
	headerAuthorization = "Authorization"
	headerAdminSecret   = "x-hasura-admin-secret"

	contentTypeJSON = "application/json"
)

// BuildHeaders constructs the outgoing request header map. Content-Type is
// always set first; then exactly one authentication header: the admin secret
// when present, else a bearer Authorization header when a token is present,
// else none. Caller-supplied extra headers are merged last and override
// same-named keys. Absence of both credentials is valid (anonymous access).
//
// The same map is sent as HTTP request headers and as the
// connectionParams.headers payload of the WebSocket handshake.
func BuildHeaders(adminSecret, token string, extra map[string]string) map[string]string {
	headers := map[string]string{
		headerContentType: contentTypeJSON,
	}

	switch {
	case adminSecret != "":
		headers[headerAdminSecret] = adminSecret
	case token != "":
		headers[headerAuthorization] = "Bearer " + token
	}

	for k, v := range extra {
		headers[k] = v
	}

	return headers
}
