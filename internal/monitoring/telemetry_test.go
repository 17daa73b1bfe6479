package monitoring

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupTelemetryWritesMetricsAndSpans(t *testing.T) {
	metricsPath := filepath.Join(t.TempDir(), "cdctrack.prom")
	var spans bytes.Buffer

	shutdown, err := SetupTelemetry(TelemetryConfig{MetricsFile: metricsPath, TraceWriter: &spans})
	require.NoError(t, err)

	ctx, span := StartSpan(context.Background(), "event")
	RecordStage(ctx, "facets", 3*time.Millisecond, 18)
	RecordEvent(ctx, true)
	RecordRejectedTracks(ctx, 2)
	RecordAutomatonPasses(ctx, "facet", 1)
	span.End()

	require.NoError(t, shutdown(context.Background()))

	data, err := os.ReadFile(metricsPath)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, "cdctrack_events"), "metrics textfile should contain the event counter")
	assert.True(t, strings.Contains(text, "cdctrack_stage_objects"), "metrics textfile should contain the stage histogram")
	assert.Contains(t, spans.String(), "event")
}

func TestSetupTelemetryDisabled(t *testing.T) {
	shutdown, err := SetupTelemetry(TelemetryConfig{})
	require.NoError(t, err)
	assert.NoError(t, shutdown(context.Background()))
}
