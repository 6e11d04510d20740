package monitoring

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecordDispatchIncrementsCounters(t *testing.T) {
	m := NewMetrics("metrics_test_dispatch")

	m.RecordDispatch(50*time.Millisecond, 3)
	m.RecordDispatch(10*time.Millisecond, 1)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.DispatchTotal))
}

func TestRecordCompletionSplitsSuccessAndError(t *testing.T) {
	m := NewMetrics("metrics_test_completions")

	m.RecordCompletion("")
	m.RecordCompletion("short-read")
	m.RecordCompletion("short-read")

	assert.Equal(t, float64(1), testutil.ToFloat64(m.CompletionsTotal))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.CompletionErrors.WithLabelValues("short-read")))
}

func TestRecordRecoveryTracksResubmittedCount(t *testing.T) {
	m := NewMetrics("metrics_test_recovery")

	m.RecordRecovery("base", 20*time.Millisecond, 4)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.RecoveryTotal.WithLabelValues("base")))
	assert.Equal(t, float64(4), testutil.ToFloat64(m.ResubmittedSubgraphs.WithLabelValues("base")))
}
