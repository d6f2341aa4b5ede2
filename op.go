package hasura

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// OperationKind classifies a GraphQL operation by its top-level type.
// The kind is decided once per operation from the parsed document and drives
// transport routing: subscriptions go over the WebSocket link, everything
// else over HTTP.
type OperationKind uint8

const (
	KindQuery OperationKind = iota
	KindMutation
	KindSubscription
)

func (k OperationKind) String() string {
	switch k {
	case KindQuery:
		return "query"
	case KindMutation:
		return "mutation"
	case KindSubscription:
		return "subscription"
	}
	return fmt.Sprintf("OperationKind(%d)", uint8(k))
}

// Operation is the request envelope sent to the server, either as the JSON
// body of an HTTP POST or as the payload of a WebSocket start message.
type Operation struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Kind parses the operation's document and reports the kind of its root
// operation definition. When OperationName is set, the named definition is
// used; otherwise the first one. Parse failures and missing definitions are
// reported as Errors with the invalid_operation_error code.
func (o *Operation) Kind() (OperationKind, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: o.Query})
	if err != nil {
		return KindQuery, newSimpleErrors(ErrInvalidOperation, err)
	}

	var def *ast.OperationDefinition
	for _, opDef := range doc.Operations {
		if o.OperationName == "" || opDef.Name == o.OperationName {
			def = opDef
			break
		}
	}
	if def == nil {
		return KindQuery, newSimpleErrors(
			ErrInvalidOperation,
			fmt.Errorf("operation %q not found in document", o.OperationName),
		)
	}

	switch def.Operation {
	case ast.Mutation:
		return KindMutation, nil
	case ast.Subscription:
		return KindSubscription, nil
	default:
		return KindQuery, nil
	}
}

// cacheKey derives a stable cache key for the operation. encoding/json
// marshals map keys in sorted order, so equal variable maps produce equal
// keys regardless of insertion order.
func (o *Operation) cacheKey() string {
	h := sha256.New()
	h.Write([]byte(o.OperationName))
	h.Write([]byte{0})
	h.Write([]byte(o.Query))
	h.Write([]byte{0})
	if len(o.Variables) > 0 {
		vars, err := json.Marshal(o.Variables)
		if err == nil {
			h.Write(vars)
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Response is a single GraphQL execution result: the raw data payload plus
// any errors the server reported alongside it.
type Response struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     Errors          `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

// UnmarshalData decodes the data payload into v. A response without data
// leaves v untouched.
func (r *Response) UnmarshalData(v any) error {
	if len(r.Data) == 0 {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}
