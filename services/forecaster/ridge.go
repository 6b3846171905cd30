package forecaster

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

const (
	huberDelta = 5.0
	huberIters = 6

	// alphaFloor keeps the normal matrix positive definite even when a
	// caller asks for a vanishing penalty.
	alphaFloor = 1e-6
)

// ridgeSolve returns the ridge weights for X·w ≈ y with penalty alpha:
// (XᵀX + αI) w = Xᵀy via Cholesky, falling back to a minimum-norm SVD
// solve when the normal matrix is numerically singular. The fallback means
// a fit degrades instead of failing.
func ridgeSolve(x *mat.Dense, y []float64, alpha float64) []float64 {
	rows, cols := x.Dims()
	if alpha < alphaFloor {
		alpha = alphaFloor
	}

	var xtx mat.Dense
	xtx.Mul(x.T(), x)
	a := mat.NewSymDense(cols, nil)
	for i := 0; i < cols; i++ {
		for j := i; j < cols; j++ {
			v := xtx.At(i, j)
			if i == j {
				v += alpha
			}
			a.SetSym(i, j, v)
		}
	}

	var xty mat.VecDense
	xty.MulVec(x.T(), mat.NewVecDense(rows, y))

	var w mat.VecDense
	var chol mat.Cholesky
	if chol.Factorize(a) {
		if err := chol.SolveVecTo(&w, &xty); err == nil {
			return vecSlice(&w, cols)
		}
	}
	return pinvSolve(a, &xty, cols)
}

// pinvSolve handles the near-singular case through the SVD pseudo-inverse.
func pinvSolve(a mat.Matrix, b mat.Vector, cols int) []float64 {
	var svd mat.SVD
	if !svd.Factorize(a, mat.SVDFull) {
		// Non-finite input; zero weights gate everything to the default.
		return make([]float64, cols)
	}
	rank := svd.Rank(1e-15)
	if rank == 0 {
		return make([]float64, cols)
	}
	var w mat.VecDense
	svd.SolveVecTo(&w, b, rank)
	return vecSlice(&w, cols)
}

// weightedRidge scales rows by √w before solving, so w acts as a
// per-observation weight.
func weightedRidge(x *mat.Dense, y, w []float64, alpha float64) []float64 {
	rows, cols := x.Dims()
	xw := mat.NewDense(rows, cols, nil)
	yw := make([]float64, rows)
	for i := 0; i < rows; i++ {
		s := math.Sqrt(w[i])
		src := x.RawRowView(i)
		dst := xw.RawRowView(i)
		for j := 0; j < cols; j++ {
			dst[j] = src[j] * s
		}
		yw[i] = y[i] * s
	}
	return ridgeSolve(xw, yw, alpha)
}

// huberRidge runs iteratively reweighted ridge fits: residuals beyond
// huberDelta get weight δ/|r|, so isolated spikes stop dominating the
// solution while small residuals keep a plain least-squares fit.
func huberRidge(x *mat.Dense, y []float64, alpha float64) []float64 {
	rows, _ := x.Dims()
	w := make([]float64, rows)
	for i := range w {
		w[i] = 1
	}
	coef := weightedRidge(x, y, w, alpha)
	for it := 0; it < huberIters; it++ {
		for i := range w {
			r := math.Abs(y[i] - dot(x.RawRowView(i), coef))
			if r > huberDelta {
				w[i] = huberDelta / math.Max(1e-12, r)
			} else {
				w[i] = 1
			}
		}
		coef = weightedRidge(x, y, w, alpha)
	}
	return coef
}

// standardizer holds per-column train-time moments. The bias column keeps
// mean 0 / std 1 so standardization leaves it untouched.
type standardizer struct {
	mean []float64
	std  []float64
}

func fitStandardizer(x *mat.Dense) *standardizer {
	rows, cols := x.Dims()
	st := &standardizer{mean: make([]float64, cols), std: make([]float64, cols)}
	col := make([]float64, rows)
	for j := 0; j < cols; j++ {
		mat.Col(col, j, x)
		st.mean[j] = stat.Mean(col, nil)
		sd := stat.PopStdDev(col, nil)
		if sd < 1e-12 {
			sd = 1
		}
		st.std[j] = sd
	}
	st.mean[idxBias], st.std[idxBias] = 0, 1
	return st
}

func (st *standardizer) apply(x *mat.Dense) *mat.Dense {
	rows, cols := x.Dims()
	out := mat.NewDense(rows, cols, nil)
	for i := 0; i < rows; i++ {
		src := x.RawRowView(i)
		dst := out.RawRowView(i)
		for j := 0; j < cols; j++ {
			dst[j] = (src[j] - st.mean[j]) / st.std[j]
		}
	}
	return out
}

func (st *standardizer) applyRow(row []float64) []float64 {
	out := make([]float64, len(row))
	for j := range row {
		out[j] = (row[j] - st.mean[j]) / st.std[j]
	}
	return out
}

// gateProb is the gate's probability that the next day carries signal: a
// sigmoid over the linear gate output, exponent clamped against overflow.
func gateProb(x, w []float64) float64 {
	z := dot(x, w)
	if z > 50 {
		return 1
	}
	if z < -50 {
		return 0
	}
	return 1.0 / (1.0 + math.Exp(-z))
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

func vecSlice(v *mat.VecDense, n int) []float64 {
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = v.AtVec(i)
	}
	return out
}
