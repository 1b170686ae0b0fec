package fetch

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"

	"github.com/oidf-tools/ofresolve/internal/ferr"
)

func TestFetchTextSuccess(t *testing.T) {
	f := New()
	httpmock.ActivateNonDefault(f.Client().GetClient())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://ta.example/.well-known/openid-federation",
		httpmock.NewStringResponder(200, "jws-payload"))

	body, err := f.FetchText(context.Background(), "https://ta.example/.well-known/openid-federation")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if body != "jws-payload" {
		t.Fatalf("unexpected body: %q", body)
	}
}

func TestFetchTextHTTPFailure(t *testing.T) {
	f := New()
	httpmock.ActivateNonDefault(f.Client().GetClient())
	defer httpmock.DeactivateAndReset()

	httpmock.RegisterResponder("GET", "https://ta.example/.well-known/openid-federation",
		httpmock.NewStringResponder(404, "not found"))

	_, err := f.FetchText(context.Background(), "https://ta.example/.well-known/openid-federation")
	if !ferr.Is(err, ferr.HTTPFailure) {
		t.Fatalf("expected HTTPFailure, got %v", err)
	}
}

func TestFetchTextNetworkFailure(t *testing.T) {
	f := New()
	httpmock.ActivateNonDefault(f.Client().GetClient())
	defer httpmock.DeactivateAndReset()
	httpmock.RegisterNoResponder(httpmock.NewErrorResponder(context.DeadlineExceeded))

	_, err := f.FetchText(context.Background(), "https://unreachable.example")
	if !ferr.Is(err, ferr.NetworkFailure) {
		t.Fatalf("expected NetworkFailure, got %v", err)
	}
}
