package timeutil

// DefaultOffsetAlpha is the EMA smoothing factor applied to the
// stream-to-wall offset.
const DefaultOffsetAlpha = 0.1

// ClockMapper maps the detector's "seconds since stream start" onto
// wall-clock seconds. The offset between the two is unknown at start-up
// (device and driver latency) and jitters with scheduling, so it is
// tracked as an exponential moving average of now - streamTime.
//
// A ClockMapper is not safe for concurrent use. It belongs to the
// producer loop, which maps each event at detection time.
type ClockMapper struct {
	alpha  float64
	offset float64
	primed bool
}

// NewClockMapper returns a mapper with the given smoothing factor. A
// factor outside (0, 1] falls back to DefaultOffsetAlpha.
func NewClockMapper(alpha float64) *ClockMapper {
	if !(alpha > 0 && alpha <= 1) {
		alpha = DefaultOffsetAlpha
	}
	return &ClockMapper{alpha: alpha}
}

// Map returns the wall-clock time of streamTime given the wall-clock time
// nowWall at which it was observed. The first call seeds the offset.
func (m *ClockMapper) Map(streamTime, nowWall float64) float64 {
	est := nowWall - streamTime
	if !m.primed {
		m.offset = est
		m.primed = true
	} else {
		m.offset = (1-m.alpha)*m.offset + m.alpha*est
	}
	return streamTime + m.offset
}

// Offset returns the current smoothed offset and whether Map has been
// called yet.
func (m *ClockMapper) Offset() (float64, bool) {
	return m.offset, m.primed
}

// Alpha returns the smoothing factor in use.
func (m *ClockMapper) Alpha() float64 {
	return m.alpha
}
