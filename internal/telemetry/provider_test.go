package telemetry

import (
	"context"
	"testing"
)

func TestSetupNoopWhenDisabled(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{Enabled: false, Endpoint: "localhost:4318", ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupNoopWithoutEndpoint(t *testing.T) {
	shutdown, err := Setup(context.Background(), Options{Enabled: true, ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetupCreatesProvider(t *testing.T) {
	// Non-routable address so no actual export happens.
	for _, endpoint := range []string{"192.0.2.1:4318", "http://192.0.2.1:4318"} {
		shutdown, err := Setup(context.Background(), Options{Enabled: true, Endpoint: endpoint, ServiceName: "test", NodeID: "n1"})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", endpoint, err)
		}
		if err := shutdown(context.Background()); err != nil {
			t.Fatalf("%s: shutdown error: %v", endpoint, err)
		}
	}
}
