package domain

// UnifiedEmbedding is the fused vector representing a person, combining the
// transcript, professional, and personality embeddings. Weights record how
// much each contributing source counted after renormalization; Degraded is
// set when every input was missing and the vector is all zeros.
type UnifiedEmbedding struct {
	Vector   []float32          `json:"-"`
	Weights  map[string]float64 `json:"weights"`
	Degraded bool               `json:"degraded"`
}
