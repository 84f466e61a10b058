package predictor

import "fmt"

// Params configures the filter. Zero values are not meaningful; start from
// DefaultParams.
type Params struct {
	InitPeriod float64 // initial period estimate (s)
	QPhase     float64 // process noise on phase
	QPeriod    float64 // process noise on period
	RMeas      float64 // measurement noise on observed beat times
	P0         float64 // initial variance for phase and period
	MinPeriod  float64 // lower clamp (s); 0.2 s = 300 BPM
	MaxPeriod  float64 // upper clamp (s); 1.5 s = 40 BPM
	IBIWindow  int     // number of recent valid inter-beat intervals kept
}

// DefaultParams returns the tuned defaults.
func DefaultParams() Params {
	return Params{
		InitPeriod: 0.5,
		QPhase:     1e-4,
		QPeriod:    5e-5,
		RMeas:      2.5e-3,
		P0:         1e-2,
		MinPeriod:  0.2,
		MaxPeriod:  1.5,
		IBIWindow:  8,
	}
}

// Validate checks the parameters for values the filter cannot run with.
func (p Params) Validate() error {
	if p.MinPeriod <= 0 || p.MaxPeriod <= p.MinPeriod {
		return fmt.Errorf("period clamp must satisfy 0 < min < max, got [%g, %g]", p.MinPeriod, p.MaxPeriod)
	}
	if p.InitPeriod < p.MinPeriod || p.InitPeriod > p.MaxPeriod {
		return fmt.Errorf("init_period %g outside clamp [%g, %g]", p.InitPeriod, p.MinPeriod, p.MaxPeriod)
	}
	if p.QPhase < 0 || p.QPeriod < 0 {
		return fmt.Errorf("process noise must be non-negative, got q_phase=%g q_period=%g", p.QPhase, p.QPeriod)
	}
	if p.RMeas <= 0 {
		return fmt.Errorf("r_meas must be positive, got %g", p.RMeas)
	}
	if p.P0 <= 0 {
		return fmt.Errorf("initial covariance must be positive, got %g", p.P0)
	}
	if p.IBIWindow <= 0 {
		return fmt.Errorf("ibi_window must be positive, got %d", p.IBIWindow)
	}
	return nil
}
