package predictor

import (
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/beat.report/internal/beat"
)

// Tempo summarises the current period and the recent inter-beat interval
// window. IBI statistics are zero while the window is empty.
func (k *Predictor) Tempo() beat.TempoEstimate {
	est := beat.TempoEstimate{Period: k.period}
	if k.period > 0 {
		est.BPM = 60 / k.period
	}

	ibis := k.ibis.values()
	est.Samples = len(ibis)
	if len(ibis) == 0 {
		return est
	}
	est.IBIMean, est.IBIStd = stat.MeanStdDev(ibis, nil)
	if len(ibis) == 1 {
		// MeanStdDev reports NaN for a single sample.
		est.IBIStd = 0
	}
	sorted := append([]float64(nil), ibis...)
	sort.Float64s(sorted)
	est.IBIMed = stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return est
}
