package promstats

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/heapcore"
	"github.com/hupe1980/heapcore/alloc"
	htestutil "github.com/hupe1980/heapcore/testutil"
)

func newRuntime(t *testing.T) *heapcore.Runtime {
	t.Helper()
	rt, err := heapcore.New(
		heapcore.WithBackingStore(alloc.GoHeapStore{}),
		heapcore.WithAutoCollect(false),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

func gather(t *testing.T, c prometheus.Collector) map[string]*dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(c))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(mfs))
	for _, mf := range mfs {
		out[mf.GetName()] = mf
	}
	return out
}

func value(t *testing.T, mf *dto.MetricFamily, label string) float64 {
	t.Helper()
	require.NotNil(t, mf)
	for _, m := range mf.GetMetric() {
		if label == "" && len(m.GetLabel()) == 0 {
			return metricValue(m)
		}
		for _, lp := range m.GetLabel() {
			if lp.GetValue() == label {
				return metricValue(m)
			}
		}
	}
	t.Fatalf("no series %q in %s", label, mf.GetName())
	return 0
}

func metricValue(m *dto.Metric) float64 {
	if m.GetCounter() != nil {
		return m.GetCounter().GetValue()
	}
	return m.GetGauge().GetValue()
}

func TestCollector(t *testing.T) {
	rt := newRuntime(t)
	node := htestutil.NewNodeType("node", 1, nil)
	leaf := htestutil.NewLeafType("leaf", 48, nil)

	a, err := rt.Allocate(node)
	require.NoError(t, err)
	b, err := rt.Allocate(node)
	require.NoError(t, err)
	htestutil.SetChild(a, 0, b)
	htestutil.SetChild(b, 0, a)
	a.Release()
	b.Release()
	_, err = rt.Collect()
	require.NoError(t, err)

	kept, err := rt.Allocate(leaf)
	require.NoError(t, err)
	rt.CreateWeakRef(kept, nil)

	mfs := gather(t, New(rt))
	assert.Equal(t, 1.0, value(t, mfs["heapcore_objects_live"], ""))
	assert.Equal(t, 3.0, value(t, mfs["heapcore_objects_allocated_total"], ""))
	assert.Equal(t, 2.0, value(t, mfs["heapcore_objects_freed_total"], ""))
	assert.Equal(t, 1.0, value(t, mfs["heapcore_weakrefs_live"], ""))
	assert.Equal(t, 0.0, value(t, mfs["heapcore_collected_total"], "0"))
	assert.Equal(t, 2.0, value(t, mfs["heapcore_collected_total"], "2"))
	assert.Equal(t, 1.0, value(t, mfs["heapcore_collections_total"], "2"))
	assert.Equal(t, 700.0, value(t, mfs["heapcore_generation_threshold"], "0"))
	assert.Equal(t, 1.0, value(t, mfs["heapcore_class_live_blocks"], "48"))
	assert.Equal(t, 3.0, value(t, mfs["heapcore_class_allocs_total"], "16")+value(t, mfs["heapcore_class_allocs_total"], "48"))
	assert.Equal(t, dto.MetricType_COUNTER, mfs["heapcore_objects_freed_total"].GetType())
	assert.Equal(t, dto.MetricType_GAUGE, mfs["heapcore_objects_live"].GetType())
}

func TestCollector_Count(t *testing.T) {
	rt := newRuntime(t)
	c := New(rt)

	classes := len(rt.Allocator().SizeClasses())
	want := len(c.scalars) + len(c.gens)*heapcore.NumGenerations + len(c.classes)*classes
	assert.Equal(t, want, testutil.CollectAndCount(c))
}

func TestCollector_Options(t *testing.T) {
	rt := newRuntime(t)
	c := New(rt,
		WithNamespace("vm"),
		WithConstLabels(prometheus.Labels{"runtime": "main"}),
	)

	mfs := gather(t, c)
	mf := mfs["vm_objects_live"]
	require.NotNil(t, mf)
	assert.Nil(t, mfs["heapcore_objects_live"])
	labels := mf.GetMetric()[0].GetLabel()
	require.Len(t, labels, 1)
	assert.Equal(t, "runtime", labels[0].GetName())
	assert.Equal(t, "main", labels[0].GetValue())
}

func TestCollector_AfterClose(t *testing.T) {
	rt := newRuntime(t)
	_, err := rt.Allocate(htestutil.NewLeafType("leaf", 16, nil))
	require.NoError(t, err)
	require.NoError(t, rt.Close())

	mfs := gather(t, New(rt))
	assert.Equal(t, 1.0, value(t, mfs["heapcore_objects_live"], ""))
	assert.Equal(t, 0.0, value(t, mfs["heapcore_arenas_active"], ""))
}
