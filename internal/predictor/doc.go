// Package predictor tracks beat phase and period with a two-state Kalman
// filter and forecasts upcoming beats.
//
// State x = [phase, period]. Each observed beat time advances the state
// one beat (F = [[1 1] [0 1]]) and corrects it with the measurement
// z = t_obs (H = [1 0]). The period is clamped to 40–300 BPM after every
// update; the covariance is left as computed when the clamp is active.
//
// A Predictor is not safe for concurrent use. The consumer loop that
// calls Observe owns it.
package predictor
