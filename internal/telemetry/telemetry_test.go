package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/sdk/resource"
)

func TestExportersFromEnv(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want exporters
	}{
		{
			name: "off by default",
			want: exporters{interval: defaultMetricInterval},
		},
		{
			name: "console",
			env:  map[string]string{"RMIMPORT_OTEL_ENABLED": "true", "RMIMPORT_OTEL_CONSOLE": "true"},
			want: exporters{enabled: true, console: true, interval: defaultMetricInterval},
		},
		{
			name: "metrics endpoint wins over the generic one",
			env: map[string]string{
				"OTEL_EXPORTER_OTLP_METRICS_ENDPOINT": "collector:4318",
				"OTEL_EXPORTER_OTLP_ENDPOINT":         "other:4318",
			},
			want: exporters{endpoint: "collector:4318", interval: defaultMetricInterval},
		},
		{
			name: "generic endpoint",
			env:  map[string]string{"OTEL_EXPORTER_OTLP_ENDPOINT": "other:4318"},
			want: exporters{endpoint: "other:4318", interval: defaultMetricInterval},
		},
		{
			name: "interval",
			env:  map[string]string{"RMIMPORT_OTEL_METRIC_INTERVAL": "2s"},
			want: exporters{interval: 2 * time.Second},
		},
		{
			name: "bad interval keeps the default",
			env:  map[string]string{"RMIMPORT_OTEL_METRIC_INTERVAL": "soon"},
			want: exporters{interval: defaultMetricInterval},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exportersFromEnv(func(k string) string { return tt.env[k] })
			if got != tt.want {
				t.Errorf("exportersFromEnv() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestConsoleSpansGoToWriter(t *testing.T) {
	ctx := context.Background()
	var console bytes.Buffer
	tp, err := buildTraceProvider(resource.Empty(), exporters{enabled: true, console: true}, &console)
	if err != nil {
		t.Fatal(err)
	}

	_, span := tp.Tracer("test").Start(ctx, "import.persisting")
	span.End()
	if err := tp.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	if !bytes.Contains(console.Bytes(), []byte("import.persisting")) {
		t.Errorf("console output lacks the span: %q", console.String())
	}
}

func TestShutdownWithoutInit(t *testing.T) {
	if err := Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() error = %v", err)
	}
}
