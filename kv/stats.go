package kv

// Stats is the output of Engine.Analyze: the operator-facing health
// summary the teacher's benchmark harness would otherwise have to
// reconstruct by walking the pool by hand.
type Stats struct {
	TotalKeys      uint64
	TotalLeaves    uint64
	PreallocLeaves uint64
	TreeHeight     int
	FillFactor     float64
}
