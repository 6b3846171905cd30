package forecaster

import (
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/mat"
)

// lags are the autoregressive day offsets fed to both model stages. The
// longest lag fixes how many leading history days produce no design row.
var lags = []int{1, 2, 3, 4, 5, 6, 7, 14, 21, 28, 35}

const (
	maxLag   = 35
	numLags  = 11
	maWindow = 7
	emaSpan  = 7

	// epsZero separates "dormant" from "has signal" days.
	epsZero = 1e-9

	fourierPeriod = 7
	fourierK      = 2

	zeroRunCap = 30
	emaWindow  = 50 // forecast-row EMA looks back at most this far
)

// Feature vector layout. Slot 0 is the bias; training and forecast rows
// must agree on this order.
const (
	idxBias     = 0
	idxLag      = 1                // numLags slots
	idxMA       = idxLag + numLags // 12
	idxWD       = idxMA + 1        // 13, six slots (Tuesday..Sunday)
	idxZLag1    = idxWD + 6        // 19
	idxZRun     = idxZLag1 + 1     // 20
	idxPrevNZ   = idxZRun + 1      // 21
	idxMax14    = idxPrevNZ + 1    // 22
	idxEMA      = idxMax14 + 1     // 23
	idxFourier  = idxEMA + 1       // 24, sin/cos pairs
	numFeatures = idxFourier + 2*fourierK
)

// emaAlpha is the span-7 smoothing constant 2/(span+1).
const emaAlpha = 2.0 / (emaSpan + 1)

// weekdayIndex numbers days Monday=0 through Sunday=6. The weekday
// indicators wd_1..wd_6 cover Tuesday..Sunday; Monday is the dropped
// baseline.
func weekdayIndex(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

// designMatrix builds the training features and raw target from a gap-free
// daily history starting at start. Row r describes day r+maxLag: every
// trailing aggregate is shifted one day so only past values enter, the
// weekday indicators come from the day itself, and the Fourier harmonics
// run on the design-row index (the shift by maxLag is a whole number of
// weeks, so the phase lines up with the forecast continuation).
func designMatrix(values []float64, start time.Time) (*mat.Dense, []float64, error) {
	n := len(values)
	rows := n - maxLag
	if rows < 1 {
		return nil, nil, fmt.Errorf("need more than %d days of history, got %d", maxLag, n)
	}

	// Trailing state per history day: zero-run length, last nonzero value,
	// span-7 EMA seeded from the first observation.
	zeroRun := make([]float64, n)
	prevNZ := make([]float64, n)
	ema := make([]float64, n)
	for i, v := range values {
		if v < epsZero {
			if i > 0 {
				zeroRun[i] = zeroRun[i-1] + 1
			} else {
				zeroRun[i] = 1
			}
		}
		if v != 0 {
			prevNZ[i] = v
		} else if i > 0 {
			prevNZ[i] = prevNZ[i-1]
		}
		if i == 0 {
			ema[i] = v
		} else {
			ema[i] = emaAlpha*v + (1-emaAlpha)*ema[i-1]
		}
	}

	startWD := weekdayIndex(start)
	x := mat.NewDense(rows, numFeatures, nil)
	y := make([]float64, rows)
	row := make([]float64, numFeatures)

	for r := 0; r < rows; r++ {
		i := r + maxLag
		for k := range row {
			row[k] = 0
		}
		row[idxBias] = 1
		for k, lag := range lags {
			row[idxLag+k] = values[i-lag]
		}
		row[idxMA] = mean(values[i-maWindow : i])
		if wd := (startWD + i) % 7; wd >= 1 {
			row[idxWD+wd-1] = 1
		}
		if values[i-1] < epsZero {
			row[idxZLag1] = 1
		}
		row[idxZRun] = math.Min(zeroRun[i-1], zeroRunCap)
		row[idxPrevNZ] = prevNZ[i-1]
		row[idxMax14] = maxOf(values[i-14 : i])
		row[idxEMA] = ema[i-1]
		setFourier(row, r)

		x.SetRow(r, row)
		y[r] = values[i]
	}
	return x, y, nil
}

// forecastRow builds one prediction-time feature row from the running
// history (observations plus any predictions already appended). nextWD is
// the weekday index of the day being predicted, t the Fourier counter.
func forecastRow(hist []float64, nextWD, t int) []float64 {
	n := len(hist)
	row := make([]float64, numFeatures)
	row[idxBias] = 1

	for k, lag := range lags {
		if n >= lag {
			row[idxLag+k] = hist[n-lag]
		} else {
			row[idxLag+k] = hist[0]
		}
	}
	from := n - maWindow
	if from < 0 {
		from = 0
	}
	row[idxMA] = mean(hist[from:])
	if nextWD >= 1 {
		row[idxWD+nextWD-1] = 1
	}
	if math.Abs(hist[n-1]) < epsZero {
		row[idxZLag1] = 1
	}
	row[idxZRun] = trailingZeroRun(hist)
	for i := n - 1; i >= 0; i-- {
		if hist[i] > epsZero {
			row[idxPrevNZ] = hist[i]
			break
		}
	}
	from = n - 14
	if from < 0 {
		from = 0
	}
	row[idxMax14] = maxOf(hist[from:])
	// At prediction time the EMA restarts from zero over a bounded window
	// instead of carrying the train-time seed; the difference fades within
	// a few steps and keeps the row independent of series length.
	from = n - emaWindow
	if from < 0 {
		from = 0
	}
	e := 0.0
	for _, v := range hist[from:] {
		e = emaAlpha*v + (1-emaAlpha)*e
	}
	row[idxEMA] = e
	setFourier(row, t)
	return row
}

func setFourier(row []float64, t int) {
	for k := 1; k <= fourierK; k++ {
		arg := 2 * math.Pi * float64(k) * float64(t) / fourierPeriod
		row[idxFourier+2*(k-1)] = math.Sin(arg)
		row[idxFourier+2*(k-1)+1] = math.Cos(arg)
	}
}

// trailingZeroRun counts consecutive near-zero days at the end of the
// history, capped so a long-dead series cannot push the dynamic threshold
// arbitrarily high.
func trailingZeroRun(vals []float64) float64 {
	run := 0
	for i := len(vals) - 1; i >= 0; i-- {
		if math.Abs(vals[i]) >= epsZero {
			break
		}
		run++
		if run >= zeroRunCap {
			break
		}
	}
	return float64(run)
}

// toLogit maps interest in [0,100] onto an unbounded logit scale so the
// regression never fights the range boundaries; the +0.5/101 offsets keep
// exact 0 and 100 finite.
func toLogit(y float64) float64 {
	p := (y + 0.5) / 101.0
	if p < 1e-6 {
		p = 1e-6
	} else if p > 1-1e-6 {
		p = 1 - 1e-6
	}
	return math.Log(p / (1 - p))
}

// fromLogit inverts toLogit and clips back into the interest range.
func fromLogit(z float64) float64 {
	p := 1.0 / (1.0 + math.Exp(-z))
	return clip(101.0*p-0.5, 0, 100)
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func maxOf(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	m := vals[0]
	for _, v := range vals[1:] {
		if v > m {
			m = v
		}
	}
	return m
}

func clip(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
