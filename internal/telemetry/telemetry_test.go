package telemetry

import (
	"context"
	"testing"

	"github.com/koscakluka/ema-agent/internal/config"
)

func TestInitWithoutEndpointIsNoop(t *testing.T) {
	providers, err := Init(context.Background(), config.TelemetryConfig{ServiceName: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if providers.tracerProvider != nil || providers.meterProvider != nil {
		t.Fatalf("expected no providers without an endpoint")
	}
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected shutdown error: %v", err)
	}
}

func TestShutdownNilProviders(t *testing.T) {
	var providers *Providers
	if err := providers.Shutdown(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
