package domain

import "time"

// LoadMetrics is the aggregate report a load run ends with.
type LoadMetrics struct {
	RowsProcessed  int64
	ValidRecords   int64
	InvalidRecords int64

	// ReferenceConflicts counts reference-entity keys that were seen again
	// with a different payload. First writer wins; the rest is a known
	// data-quality gap, surfaced here instead of silently dropped.
	ReferenceConflicts int64

	NodesCreated         map[string]int64
	RelationshipsCreated map[string]int64

	Duration time.Duration
}

func NewLoadMetrics() *LoadMetrics {
	return &LoadMetrics{
		NodesCreated:         map[string]int64{},
		RelationshipsCreated: map[string]int64{},
	}
}

func (m *LoadMetrics) ErrorRate() float64 {
	if m.RowsProcessed == 0 {
		return 0
	}
	return float64(m.InvalidRecords) / float64(m.RowsProcessed)
}

// TotalNodes sums the per-label creation counts.
func (m *LoadMetrics) TotalNodes() int64 {
	var n int64
	for _, v := range m.NodesCreated {
		n += v
	}
	return n
}

// TotalRelationships sums the per-type creation counts.
func (m *LoadMetrics) TotalRelationships() int64 {
	var n int64
	for _, v := range m.RelationshipsCreated {
		n += v
	}
	return n
}
