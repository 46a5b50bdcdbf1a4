package service

import (
	"math"
	"testing"

	"github.com/calebwren/rapport/internal/config"
)

func testFusion(dim int) *VectorFusion {
	return NewVectorFusion(&config.FusionConfig{
		TranscriptWeight:   0.4,
		ProfessionalWeight: 0.4,
		PersonalityWeight:  0.2,
	}, dim)
}

func vectorNorm(vec []float32) float64 {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	return math.Sqrt(sum)
}

func TestFuse_AllInputsMissing(t *testing.T) {
	f := testFusion(4)

	got := f.Fuse(nil, nil, nil)

	if !got.Degraded {
		t.Error("expected degraded=true with all inputs missing")
	}
	if len(got.Vector) != 4 {
		t.Fatalf("expected zero vector of dimension 4, got %d", len(got.Vector))
	}
	for i, v := range got.Vector {
		if v != 0 {
			t.Errorf("expected zero at %d, got %f", i, v)
		}
	}
	if len(got.Weights) != 0 {
		t.Errorf("expected no applied weights, got %v", got.Weights)
	}
}

func TestFuse_TranscriptOnly(t *testing.T) {
	f := testFusion(3)

	got := f.Fuse([]float32{3, 0, 4}, nil, nil)

	if got.Degraded {
		t.Error("one present input is not degraded")
	}
	if w := got.Weights["transcript"]; math.Abs(w-1.0) > 1e-9 {
		t.Errorf("expected transcript weight renormalized to 1.0, got %f", w)
	}
	if len(got.Weights) != 1 {
		t.Errorf("expected only the transcript weight, got %v", got.Weights)
	}
	// Unit-normalized [3,0,4] is [0.6, 0, 0.8].
	want := []float32{0.6, 0, 0.8}
	for i, v := range got.Vector {
		if math.Abs(float64(v-want[i])) > 1e-6 {
			t.Errorf("vector[%d]: expected %f, got %f", i, want[i], v)
		}
	}
}

func TestFuse_TwoInputsRenormalized(t *testing.T) {
	f := testFusion(2)

	got := f.Fuse([]float32{1, 0}, []float32{0, 1}, nil)

	if got.Degraded {
		t.Error("expected degraded=false with two inputs")
	}
	// 0.4/0.8 each.
	if w := got.Weights["transcript"]; math.Abs(w-0.5) > 1e-9 {
		t.Errorf("expected transcript weight 0.5, got %f", w)
	}
	if w := got.Weights["professional"]; math.Abs(w-0.5) > 1e-9 {
		t.Errorf("expected professional weight 0.5, got %f", w)
	}
	if norm := vectorNorm(got.Vector); math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected unit norm, got %f", norm)
	}
	// Equal weights on orthogonal unit inputs give equal components.
	if math.Abs(float64(got.Vector[0]-got.Vector[1])) > 1e-6 {
		t.Errorf("expected symmetric components, got %v", got.Vector)
	}
}

func TestFuse_ZeroVectorInputTreatedAsMissing(t *testing.T) {
	f := testFusion(3)

	got := f.Fuse([]float32{1, 2, 2}, []float32{0, 0, 0}, nil)

	if got.Degraded {
		t.Error("a zero professional vector must not degrade a present transcript")
	}
	if _, ok := got.Weights["professional"]; ok {
		t.Errorf("zero vector should not contribute weight, got %v", got.Weights)
	}
	if w := got.Weights["transcript"]; math.Abs(w-1.0) > 1e-9 {
		t.Errorf("expected transcript weight 1.0, got %f", w)
	}
}

func TestFuse_DimensionMismatchPadded(t *testing.T) {
	f := testFusion(4)

	got := f.Fuse([]float32{1, 1}, nil, nil)

	if len(got.Vector) != 4 {
		t.Fatalf("expected output dimension 4, got %d", len(got.Vector))
	}
	if got.Vector[2] != 0 || got.Vector[3] != 0 {
		t.Errorf("expected zero padding in tail, got %v", got.Vector)
	}
	if norm := vectorNorm(got.Vector); math.Abs(norm-1.0) > 1e-6 {
		t.Errorf("expected unit norm, got %f", norm)
	}
}

func TestFuse_AllThreePresent(t *testing.T) {
	f := testFusion(2)

	got := f.Fuse([]float32{1, 0}, []float32{1, 0}, []float32{1, 0})

	if got.Degraded {
		t.Error("expected degraded=false")
	}
	var wsum float64
	for _, w := range got.Weights {
		wsum += w
	}
	if math.Abs(wsum-1.0) > 1e-9 {
		t.Errorf("applied weights should sum to 1.0, got %f", wsum)
	}
	if math.Abs(float64(got.Vector[0])-1.0) > 1e-6 || got.Vector[1] != 0 {
		t.Errorf("expected unit vector [1,0], got %v", got.Vector)
	}
}
