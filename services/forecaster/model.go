// Package forecaster trains the two-stage interest model: a ridge gate
// deciding whether a day carries signal at all, and a Huber-robust ridge
// regression on a logit-transformed target sizing the days that do. Both
// stages share one feature matrix; a grid search over the ridge penalty
// and the gate threshold picks the pair that best recovers a held-out
// tail, then the winner is refit on the full history. Models are rebuilt
// from scratch every run and never persisted.
package forecaster

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

const (
	// gateAlpha is the fixed ridge penalty of the zero-vs-signal gate.
	gateAlpha = 0.5

	// minPositiveRows is the least positive-interest rows worth fitting
	// the regression on alone; sparser series fall back to all rows.
	minPositiveRows = 10

	// dynTauK scales how hard a trailing zero-run raises the gate bar.
	dynTauK = 0.30

	tauDefault = 0.35
	tauFloor   = 0.25
	tauCeil    = 0.90
)

// tauFactors are the neighborhood multipliers the grid search tries around
// the F1-selected gate threshold.
var tauFactors = []float64{0.7, 0.85, 1.0, 1.15, 1.3}

// Model is one slug's trained two-stage forecaster, valid for a single
// run.
type Model struct {
	Alpha float64 // winning ridge penalty
	Tau   float64 // winning gate threshold
	Score float64 // weighted validation RMSE of the winning grid cell

	gateW []float64
	regW  []float64
	std   *standardizer

	history []float64
	start   time.Time
	tNext   int // Fourier counter for the first forecast step
}

// Train fits the two-stage model for one gap-free daily history beginning
// at start. alphas is the ridge penalty candidate set; validationDays the
// held-out tail length for the grid search. Errors only when the history
// is too short to carve out training and validation rows; numerical
// trouble inside a fit degrades to the pseudo-inverse path instead.
func Train(values []float64, start time.Time, alphas []float64, validationDays int) (*Model, error) {
	x, y, err := designMatrix(values, start)
	if err != nil {
		return nil, err
	}
	m := len(y)
	if m < 12 {
		return nil, fmt.Errorf("need at least %d usable days to train, got %d", maxLag+12, len(values))
	}
	if len(alphas) == 0 {
		alphas = []float64{1.0}
	}

	split := int(0.8 * float64(m))
	if m > validationDays+10 {
		split = m - validationDays
	}
	if split < 10 {
		split = 10
	}
	if split > m-2 {
		split = m - 2
	}

	// Standardize everything with train-time moments so the validation
	// tail never leaks into the scaling.
	std := fitStandardizer(sliceRows(x, 0, split))
	xStd := std.apply(x)
	xTrain := sliceRows(xStd, 0, split)
	yTrain := y[:split]

	tau0 := selectGateThreshold(xTrain, yTrain)

	// One gate and, per alpha, one regression serve every tau candidate;
	// only the threshold changes across the inner loop.
	gateW := ridgeSolve(xTrain, binaryTarget(yTrain), gateAlpha)
	valHist := values[:split+maxLag]
	horizon := validationDays
	if horizon > 7 {
		horizon = 7
	}
	actual := y[split:minInt(split+horizon, m)]
	startWD := weekdayIndex(start)

	best := Model{Alpha: alphas[0], Tau: clip(tau0, tauFloor, tauCeil), Score: math.Inf(1)}
	for _, alpha := range alphas {
		regW := fitRegression(xTrain, yTrain, alpha)
		for _, f := range tauFactors {
			tau := clip(tau0*f, tauFloor, tauCeil)
			preds := recursiveForecast(valHist, startWD, horizon, split, gateW, regW, std, tau)
			score := weightedRMSE(actual, preds)
			if score < best.Score {
				best = Model{Alpha: alpha, Tau: tau, Score: score}
			}
		}
	}

	// Refit both stages on the full history with the winning penalty; the
	// threshold keeps its winning value.
	stdFull := fitStandardizer(x)
	xFull := stdFull.apply(x)
	final := &Model{
		Alpha:   best.Alpha,
		Tau:     best.Tau,
		Score:   best.Score,
		gateW:   ridgeSolve(xFull, binaryTarget(y), gateAlpha),
		regW:    fitRegression(xFull, y, best.Alpha),
		std:     stdFull,
		history: append([]float64(nil), values...),
		start:   start,
		tNext:   m,
	}
	return final, nil
}

// Forecast returns the next horizon days of predicted interest, each in
// [0,100]. Every step feeds the running history, so day k sees the
// model's own predictions for days 1..k-1.
func (m *Model) Forecast(horizon int) []float64 {
	if horizon <= 0 {
		return nil
	}
	return recursiveForecast(m.history, weekdayIndex(m.start), horizon, m.tNext, m.gateW, m.regW, m.std, m.Tau)
}

// selectGateThreshold fits the gate on the first 90% of the training rows
// and sweeps thresholds on the held-out 10%, maximizing F1 against the
// binary has-signal target. The result is floored so the gate never opens
// on noise-level probabilities.
func selectGateThreshold(xTrain *mat.Dense, yTrain []float64) float64 {
	split := len(yTrain)
	g := int(0.9 * float64(split))
	if g < 10 {
		g = 10
	}
	tau := tauDefault
	if g < split {
		gate := ridgeSolve(sliceRows(xTrain, 0, g), binaryTarget(yTrain[:g]), gateAlpha)
		tau = pickTau(sliceRows(xTrain, g, split), yTrain[g:], gate)
	}
	if tau < tauFloor {
		tau = tauFloor
	}
	return tau
}

// pickTau sweeps 11 candidate thresholds over [0.10, 0.60] and keeps the
// first with the best F1 on the holdout; with no winner anywhere it falls
// back to the default.
func pickTau(xHold *mat.Dense, yHold []float64, gateW []float64) float64 {
	rows, _ := xHold.Dims()
	probs := make([]float64, rows)
	for i := 0; i < rows; i++ {
		probs[i] = gateProb(xHold.RawRowView(i), gateW)
	}

	bestTau, bestF1 := tauDefault, 0.0
	for k := 0; k <= 10; k++ {
		tau := 0.10 + 0.05*float64(k)
		var tp, fp, fn int
		for i := 0; i < rows; i++ {
			pred := probs[i] >= tau
			actual := yHold[i] > epsZero
			switch {
			case pred && actual:
				tp++
			case pred && !actual:
				fp++
			case !pred && actual:
				fn++
			}
		}
		var precision, recall float64
		if tp+fp > 0 {
			precision = float64(tp) / float64(tp+fp)
		}
		if tp+fn > 0 {
			recall = float64(tp) / float64(tp+fn)
		}
		if precision+recall == 0 {
			continue
		}
		if f1 := 2 * precision * recall / (precision + recall); f1 > bestF1 {
			bestF1, bestTau = f1, tau
		}
	}
	return bestTau
}

// fitRegression fits the Huber ridge on the logit target, restricted to
// positive-interest rows when enough exist.
func fitRegression(xStd *mat.Dense, y []float64, alpha float64) []float64 {
	rows, cols := xStd.Dims()
	var pos []int
	for i, v := range y {
		if v > epsZero {
			pos = append(pos, i)
		}
	}
	if len(pos) < minPositiveRows {
		z := make([]float64, rows)
		for i, v := range y {
			z[i] = toLogit(v)
		}
		return huberRidge(xStd, z, alpha)
	}
	xp := mat.NewDense(len(pos), cols, nil)
	zp := make([]float64, len(pos))
	for k, i := range pos {
		xp.SetRow(k, xStd.RawRowView(i))
		zp[k] = toLogit(y[i])
	}
	return huberRidge(xp, zp, alpha)
}

// dynamicTau raises the gate threshold the longer a series has sat at
// zero, so a dormant keyword needs a stronger signal to revive than a
// healthy one needs to continue.
func dynamicTau(tau, zeroRun float64) float64 {
	return clip(tau+dynTauK*zeroRun/(zeroRun+4.0), 0.05, 0.95)
}

// recursiveForecast rolls the model forward one day at a time. Each step
// builds a feature row from the running history, gates it against the
// dynamic threshold, soft-scales the regression output by the gate margin
// and caps it against recent levels, then appends the prediction so the
// next step sees it as history.
func recursiveForecast(hist []float64, startWD, horizon, t int, gateW, regW []float64, std *standardizer, tau float64) []float64 {
	run := append([]float64(nil), hist...)
	preds := make([]float64, 0, horizon)
	for step := 0; step < horizon; step++ {
		nextWD := (startWD + len(run)) % 7
		row := forecastRow(run, nextWD, t)
		xs := std.applyRow(row)

		tauDyn := dynamicTau(tau, row[idxZRun])
		p := gateProb(xs, gateW)

		yhat := 0.0
		if p >= tauDyn {
			yhat = fromLogit(dot(xs, regW))
			yhat *= clip((p-tauDyn)/math.Max(1e-6, 1-tauDyn), 0, 1)
			if lim := softCap(row); yhat > lim {
				yhat = lim
			}
		}
		yhat = clip(yhat, 0, 100)
		preds = append(preds, yhat)
		run = append(run, yhat)
		t++
	}
	return preds
}

// softCap bounds a revived prediction by recent history: a forecast may
// beat the trailing 14-day max by a quarter or the last nonzero value by
// half, but never explode past both; the floor of 10 lets a true zero
// series restart at all.
func softCap(row []float64) float64 {
	return math.Max(1.25*row[idxMax14], math.Max(1.5*row[idxPrevNZ], 10.0))
}

// weightedRMSE scores a validation forecast, weighting days whose actual
// value sits at zero three times heavier: inventing interest on dead days
// costs more than missing a small spike.
func weightedRMSE(actual, preds []float64) float64 {
	n := minInt(len(actual), len(preds))
	if n == 0 {
		return math.Inf(1)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		w := 1.0
		if actual[i] < 1e-6 {
			w = 3.0
		}
		d := actual[i] - preds[i]
		sum += w * d * d
	}
	return math.Sqrt(sum / float64(n))
}

func binaryTarget(y []float64) []float64 {
	out := make([]float64, len(y))
	for i, v := range y {
		if v > epsZero {
			out[i] = 1
		}
	}
	return out
}

func sliceRows(x *mat.Dense, from, to int) *mat.Dense {
	_, cols := x.Dims()
	return x.Slice(from, to, 0, cols).(*mat.Dense)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
