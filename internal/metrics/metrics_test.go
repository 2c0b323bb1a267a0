package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestTelemetryIncrementsCounters(t *testing.T) {
	before := testutil.ToFloat64(AnalysisFallbackTotal.WithLabelValues("transport"))
	Telemetry{}.RecordFallback("transport")
	assert.Equal(t, before+1, testutil.ToFloat64(AnalysisFallbackTotal.WithLabelValues("transport")))

	before = testutil.ToFloat64(AnalysisTotal.WithLabelValues("mock"))
	Telemetry{}.RecordAnalysis("mock")
	assert.Equal(t, before+1, testutil.ToFloat64(AnalysisTotal.WithLabelValues("mock")))
}
