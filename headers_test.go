package hasura

import "testing"

func TestBuildHeaders_adminSecretPrecedence(t *testing.T) {
	headers := BuildHeaders("s", "t", nil)

	if got, want := headers[headerAdminSecret], "s"; got != want {
		t.Errorf("got admin secret header: %q, want: %q", got, want)
	}
	if got, ok := headers[headerAuthorization]; ok {
		t.Errorf("got Authorization header: %q, want: absent", got)
	}
	if got, want := headers[headerContentType], contentTypeJSON; got != want {
		t.Errorf("got Content-Type: %q, want: %q", got, want)
	}
}

func TestBuildHeaders_bearerToken(t *testing.T) {
	headers := BuildHeaders("", "t", nil)

	if got, want := headers[headerAuthorization], "Bearer t"; got != want {
		t.Errorf("got Authorization header: %q, want: %q", got, want)
	}
	if got, ok := headers[headerAdminSecret]; ok {
		t.Errorf("got admin secret header: %q, want: absent", got)
	}
}

func TestBuildHeaders_anonymous(t *testing.T) {
	headers := BuildHeaders("", "", nil)

	if len(headers) != 1 {
		t.Fatalf("got %d headers: %v, want only Content-Type", len(headers), headers)
	}
	if got, want := headers[headerContentType], contentTypeJSON; got != want {
		t.Errorf("got Content-Type: %q, want: %q", got, want)
	}
}

func TestBuildHeaders_extraHeadersOverride(t *testing.T) {
	headers := BuildHeaders("s", "", map[string]string{
		"Content-Type":    "application/graphql",
		"x-custom-header": "custom",
		headerAdminSecret: "override",
	})

	if got, want := headers[headerContentType], "application/graphql"; got != want {
		t.Errorf("got Content-Type: %q, want: %q", got, want)
	}
	if got, want := headers["x-custom-header"], "custom"; got != want {
		t.Errorf("got x-custom-header: %q, want: %q", got, want)
	}
	if got, want := headers[headerAdminSecret], "override"; got != want {
		t.Errorf("got admin secret header: %q, want: %q", got, want)
	}
}
