package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCollectorRecords(t *testing.T) {
	c := NewCollector("test")

	c.RecordGeneration("quiz", "success", 2*time.Second)
	c.RecordGeneration("quiz", "success", time.Second)
	c.RecordGeneration("quiz", "error", time.Second)
	c.RecordOptimizerChunks(2, 3, 1)
	c.RecordJob("completed")
	c.RecordStreamEvent("chunk")

	assert.Equal(t, 2.0, testutil.ToFloat64(c.Generations.WithLabelValues("quiz", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Generations.WithLabelValues("quiz", "error")))
	assert.Equal(t, 3.0, testutil.ToFloat64(c.OptimizerChunks.WithLabelValues("model")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Jobs.WithLabelValues("completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.StreamEvents.WithLabelValues("chunk")))
}

func TestCollectorsAreIsolated(t *testing.T) {
	a := NewCollector("test")
	b := NewCollector("test")

	a.RecordJob("failed")

	assert.Equal(t, 1.0, testutil.ToFloat64(a.Jobs.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.Jobs.WithLabelValues("failed")))
}
