package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/tbourn/go-review-backend/internal/config"
)

func swapSeams(t *testing.T) {
	t.Helper()
	origClient := newOTLPClient
	origExporter := newOTLPExporterFn
	origResource := newServiceResourceFn
	t.Cleanup(func() {
		newOTLPClient = origClient
		newOTLPExporterFn = origExporter
		newServiceResourceFn = origResource
	})
}

func TestSetupOTelDisabledIsNoOp(t *testing.T) {
	swapSeams(t)
	called := false
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		called = true
		return nil, errors.New("must not be reached")
	}

	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if called {
		t.Fatal("exporter constructed for a disabled config")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
}

func TestSetupOTelWiresServiceResource(t *testing.T) {
	swapSeams(t)
	var gotService, gotVersion string
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		// Unstarted exporter: no collector connection is attempted.
		return otlptrace.NewUnstarted(otlptracegrpc.NewClient()), nil
	}
	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		gotService, gotVersion = serviceName, version
		return resource.Empty(), nil
	}

	cfg := config.OTELConfig{
		Enabled:     true,
		Endpoint:    "localhost:4317",
		Insecure:    true,
		ServiceName: "review-backend-test",
		SampleRatio: 1,
	}
	shutdown, err := SetupOTel(context.Background(), cfg, "v-test")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if gotService != "review-backend-test" || gotVersion != "v-test" {
		t.Fatalf("resource built with %q/%q", gotService, gotVersion)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown: %v", err)
	}
}

func TestSetupOTelExporterFailure(t *testing.T) {
	swapSeams(t)
	wantErr := errors.New("dial refused")
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, wantErr
	}

	if _, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: true}, "test"); !errors.Is(err, wantErr) {
		t.Fatalf("SetupOTel error = %v; want the exporter error", err)
	}
}
