// Package hasura configures a GraphQL client for a Hasura-style endpoint.
//
// The package is a factory layer: it selects a cache mode and matching
// default request policies, builds authentication headers, picks an HTTP,
// WebSocket, or split transport based on the configured endpoints, and wraps
// shutdown so the WebSocket connection is released after the client's own
// cleanup. It does not validate GraphQL documents beyond their top-level
// operation kind, and it does not retry failed requests.
//
// A minimal client:
//
//	client, err := hasura.New(hasura.Config{
//		HTTPURL:     "https://example.hasura.app/v1/graphql",
//		AdminSecret: secret,
//	})
//	if err != nil {
//		// ...
//	}
//	defer client.Close()
//
//	resp, err := client.Query(ctx, `{ users { id name } }`, nil)
//
// When both HTTPURL and WebSocketURL are set, each operation is routed by
// its kind: subscriptions go over the WebSocket transport, queries and
// mutations over HTTP.
package hasura
