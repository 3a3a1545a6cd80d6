package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	t.Parallel()
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Registered("handlers", 3)
	m.Pruned("handlers", 1)
	m.Size("handlers", 2)
	m.ScanFinished("ok", 20*time.Millisecond)
	m.Resolved("handler", true)
	m.Resolved("handler", false)
	m.FileError()

	assert.Equal(t, 3.0, testutil.ToFloat64(m.registered.WithLabelValues("handlers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pruned.WithLabelValues("handlers")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.size.WithLabelValues("handlers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.scans.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.resolutions.WithLabelValues("handler", "miss")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fileErrors))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestMetrics_NilIsNoop(t *testing.T) {
	t.Parallel()
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Registered("handlers", 1)
		m.Pruned("handlers", 1)
		m.Size("handlers", 1)
		m.ScanFinished("ok", time.Second)
		m.Resolved("publisher", true)
		m.FileError()
	})
}
