package predictor

import (
	"math"

	"github.com/banshee-data/beat.report/internal/beat"
)

// minVariance floors the confidence computation.
const minVariance = 1e-6

// Predictor is the phase/period Kalman filter.
type Predictor struct {
	params Params

	phase       float64
	phaseKnown  bool
	period      float64
	lastObs     float64
	lastObsSeen bool

	// Covariance (2x2).
	p11, p12 float64
	p21, p22 float64

	ibis *ibiWindow
}

// New returns a Predictor with the given parameters. Invalid parameters
// are the caller's concern; see Params.Validate.
func New(p Params) *Predictor {
	return &Predictor{
		params: p,
		period: p.InitPeriod,
		p11:    p.P0,
		p22:    p.P0,
		ibis:   newIBIWindow(p.IBIWindow),
	}
}

// NewDefault returns a Predictor using DefaultParams.
func NewDefault() *Predictor {
	return New(DefaultParams())
}

// Observe feeds one observed beat time. The first observation only seeds
// the phase.
func (k *Predictor) Observe(tObs float64) {
	if !k.phaseKnown {
		k.phase = tObs
		k.phaseKnown = true
		k.lastObs = tObs
		k.lastObsSeen = true
		return
	}

	k.predict()
	k.update(tObs)

	// Clamp to 40–300 BPM. The covariance is intentionally not adjusted.
	k.period = math.Max(k.params.MinPeriod, math.Min(k.period, k.params.MaxPeriod))

	// Track the inter-beat interval, ignoring obvious doubled/halved errors.
	if k.lastObsSeen {
		ibi := tObs - k.lastObs
		if ibi >= k.params.MinPeriod && ibi <= k.params.MaxPeriod {
			k.ibis.push(ibi)
		}
	}
	k.lastObs = tObs
	k.lastObsSeen = true
}

// predict advances the state one beat: x' = F x, P' = F P F^T + Q.
func (k *Predictor) predict() {
	k.phase += k.period

	p11 := k.p11 + k.p12 + k.p21 + k.p22 + k.params.QPhase
	p12 := k.p12 + k.p22
	p21 := k.p21 + k.p22
	p22 := k.p22 + k.params.QPeriod
	k.p11, k.p12, k.p21, k.p22 = p11, p12, p21, p22
}

// update corrects the state with z = tObs, H = [1 0].
func (k *Predictor) update(tObs float64) {
	y := tObs - k.phase // innovation
	s := k.p11 + k.params.RMeas
	k1 := k.p11 / s
	k2 := k.p21 / s

	k.phase += k1 * y
	k.period += k2 * y

	// P' = (I - K H) P, using the pre-update P11 and P12 throughout.
	p11, p12 := k.p11, k.p12
	k.p11 = (1 - k1) * p11
	k.p12 = (1 - k1) * p12
	k.p21 = k.p21 - k2*p11
	k.p22 = k.p22 - k2*p12
}

// PredictNextBeats returns the next k beat times strictly after the most
// recent phase-aligned beat not later than now. It returns nil before the
// first observation, for a non-positive period, or for k <= 0.
func (k *Predictor) PredictNextBeats(now float64, n int) []float64 {
	if !k.phaseKnown || k.period <= 0 || n <= 0 {
		return nil
	}
	m := math.Ceil((now - k.phase) / k.period)
	if m < 1 {
		m = 1
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = k.phase + (m+float64(i))*k.period
	}
	return out
}

// ConfidenceStd is a heuristic 1-sigma bound on next-beat timing.
func (k *Predictor) ConfidenceStd() float64 {
	return math.Sqrt(math.Max(k.p11+k.p22+k.params.RMeas, minVariance))
}

// Predict bundles PredictNextBeats and ConfidenceStd.
func (k *Predictor) Predict(now float64, n int) beat.Prediction {
	return beat.Prediction{
		Times:         k.PredictNextBeats(now, n),
		ConfidenceStd: k.ConfidenceStd(),
	}
}

// Phase returns the current phase estimate and whether it is initialised.
func (k *Predictor) Phase() (float64, bool) {
	return k.phase, k.phaseKnown
}

// Period returns the current period estimate in seconds.
func (k *Predictor) Period() float64 {
	return k.period
}

// Covariance returns P as [P11, P12, P21, P22].
func (k *Predictor) Covariance() [4]float64 {
	return [4]float64{k.p11, k.p12, k.p21, k.p22}
}

// RecentIBIs returns the valid inter-beat intervals in the window, oldest
// first.
func (k *Predictor) RecentIBIs() []float64 {
	return k.ibis.values()
}

// Params returns the parameters the filter was built with.
func (k *Predictor) Params() Params {
	return k.params
}
