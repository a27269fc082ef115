package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.IncItem("succeeded")
	r.IncItem("succeeded")
	r.IncItem("failed")
	r.IncStageError("generate", "api")
	r.SetWorkingSet(3)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.items.WithLabelValues("succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.items.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.stageErrors.WithLabelValues("generate", "api")))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.workingSetSize))
}

func TestRecordersAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.IncItem("failed")
	assert.Equal(t, 0.0, testutil.ToFloat64(b.items.WithLabelValues("failed")))
}

func TestWriteTextfile(t *testing.T) {
	r := New()
	r.IncItem("succeeded")
	r.ObserveStage("generate", 1500*time.Millisecond)
	r.MarkRunFinished("succeeded", time.Unix(1_700_000_000, 0))

	path := filepath.Join(t.TempDir(), "illustrator.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, `illustrator_items_total{result="succeeded"} 1`)
	assert.Contains(t, out, `illustrator_stage_duration_seconds_count{stage="generate"} 1`)
	assert.Contains(t, out, `illustrator_last_run_timestamp_seconds{outcome="succeeded"} 1.7e+09`)
}
