package forecaster

import (
	"math"
	"testing"

	"gonum.org/v1/gonum/mat"
)

func lineData(n int) (*mat.Dense, []float64) {
	x := mat.NewDense(n, 2, nil)
	y := make([]float64, n)
	for i := 0; i < n; i++ {
		x.Set(i, 0, 1)
		x.Set(i, 1, float64(i))
		y[i] = 2 + 3*float64(i)
	}
	return x, y
}

func TestRidgeSolveRecoversLine(t *testing.T) {
	x, y := lineData(50)
	w := ridgeSolve(x, y, 0) // floored internally
	if math.Abs(w[0]-2) > 1e-3 || math.Abs(w[1]-3) > 1e-3 {
		t.Fatalf("w = %v, want [2 3]", w)
	}
}

func TestHuberRidgeDampsOutlier(t *testing.T) {
	x, y := lineData(30)
	y[29] += 500 // high-leverage spike

	plain := ridgeSolve(x, y, 0)
	robust := huberRidge(x, y, 0)

	if math.Abs(plain[1]-3) < 1 {
		t.Fatalf("outlier should tilt the plain fit, slope = %v", plain[1])
	}
	if math.Abs(robust[1]-3) > 0.2 {
		t.Fatalf("robust slope = %v, want near 3", robust[1])
	}
	if math.Abs(robust[1]-3) >= math.Abs(plain[1]-3) {
		t.Fatal("robust fit must beat the plain fit on the clean slope")
	}
}

func TestPinvSolveMinimumNorm(t *testing.T) {
	a := mat.NewSymDense(2, []float64{4, 0, 0, 0})
	b := mat.NewVecDense(2, []float64{8, 0})
	w := pinvSolve(a, b, 2)
	if math.Abs(w[0]-2) > 1e-9 || math.Abs(w[1]) > 1e-9 {
		t.Fatalf("w = %v, want [2 0]", w)
	}

	zero := mat.NewSymDense(2, nil)
	w = pinvSolve(zero, b, 2)
	if w[0] != 0 || w[1] != 0 {
		t.Fatalf("rank-zero system must yield zero weights, got %v", w)
	}
}

func TestStandardizerMoments(t *testing.T) {
	x := mat.NewDense(4, 3, []float64{
		1, 2, 7,
		1, 4, 7,
		1, 2, 7,
		1, 4, 7,
	})
	st := fitStandardizer(x)

	if st.mean[0] != 0 || st.std[0] != 1 {
		t.Fatalf("bias column moments = (%v, %v), want (0, 1)", st.mean[0], st.std[0])
	}
	if st.mean[1] != 3 || st.std[1] != 1 {
		t.Fatalf("column 1 moments = (%v, %v), want (3, 1)", st.mean[1], st.std[1])
	}
	if st.std[2] != 1 {
		t.Fatalf("constant column std must floor to 1, got %v", st.std[2])
	}

	out := st.apply(x)
	if out.At(0, 0) != 1 {
		t.Error("bias column must pass through unchanged")
	}
	if out.At(0, 1) != -1 || out.At(1, 1) != 1 {
		t.Errorf("column 1 standardized = (%v, %v), want (-1, 1)", out.At(0, 1), out.At(1, 1))
	}
	if out.At(0, 2) != 0 {
		t.Errorf("constant column standardized = %v, want 0", out.At(0, 2))
	}

	row := st.applyRow([]float64{1, 5, 7})
	if row[0] != 1 || row[1] != 2 || row[2] != 0 {
		t.Errorf("applyRow = %v, want [1 2 0]", row)
	}
}

func TestGateProbClamp(t *testing.T) {
	if got := gateProb([]float64{1}, []float64{60}); got != 1 {
		t.Errorf("overflow-high prob = %v, want 1", got)
	}
	if got := gateProb([]float64{1}, []float64{-60}); got != 0 {
		t.Errorf("overflow-low prob = %v, want 0", got)
	}
	if got := gateProb([]float64{1}, []float64{0}); got != 0.5 {
		t.Errorf("neutral prob = %v, want 0.5", got)
	}
	if got := gateProb([]float64{1}, []float64{1}); math.Abs(got-0.7310585786300049) > 1e-12 {
		t.Errorf("sigmoid(1) = %v", got)
	}
}
