package heapcore_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hupe1980/heapcore"
	"github.com/hupe1980/heapcore/alloc"
	"github.com/hupe1980/heapcore/testutil"
)

func newRuntime(t testing.TB, opts ...heapcore.Option) *heapcore.Runtime {
	t.Helper()
	opts = append([]heapcore.Option{heapcore.WithBackingStore(alloc.GoHeapStore{})}, opts...)
	rt, err := heapcore.New(opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = rt.Close() })
	return rt
}

// catchFault runs fn and returns the fault it panicked with.
func catchFault(t *testing.T, fn func()) (fault *heapcore.Fault) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a fault")
		f, ok := r.(*heapcore.Fault)
		require.True(t, ok, "expected *heapcore.Fault, got %T", r)
		fault = f
	}()
	fn()
	return nil
}

func mustAllocate(t testing.TB, rt *heapcore.Runtime, typ heapcore.Type) heapcore.Object {
	t.Helper()
	obj, err := rt.Allocate(typ)
	require.NoError(t, err)
	return obj
}

// cycle allocates n nodes linked a[i] -> a[i+1] -> ... -> a[0] and drops
// the external references.
func cycle(t testing.TB, rt *heapcore.Runtime, typ *testutil.NodeType, n int) []heapcore.Object {
	t.Helper()
	objs := make([]heapcore.Object, n)
	for i := range objs {
		objs[i] = mustAllocate(t, rt, typ)
	}
	for i := range objs {
		testutil.SetChild(objs[i], 0, objs[(i+1)%n])
	}
	for _, o := range objs {
		o.Release()
	}
	return objs
}
