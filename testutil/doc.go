// Package testutil provides reference object types and helpers for testing
// heapcore.
//
// This package is intended for use in tests and benchmarks only.
//
// # Reference Types
//
// NodeType is a container whose payload is a fixed number of reference
// slots; LeafType is a plain payload without references. Both report their
// callbacks to an optional Recorder:
//
//	rec := testutil.NewRecorder()
//	node := testutil.NewNodeType("node", 2, rec)
//	a, _ := rt.Allocate(node)
//	b, _ := rt.Allocate(node)
//	testutil.SetChild(a, 0, b) // a holds b
//	testutil.SetChild(b, 0, a) // and b holds a
//
// # Random Sequences
//
//	rng := testutil.NewRNG(seed)
//	i := rng.Intn(len(objects))
package testutil
