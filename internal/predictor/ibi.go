package predictor

// ibiWindow is a fixed-capacity ring of inter-beat intervals that drops
// the oldest value on overflow.
type ibiWindow struct {
	buf  []float64
	head int // index of the oldest value
	n    int
}

func newIBIWindow(capacity int) *ibiWindow {
	if capacity <= 0 {
		capacity = 1
	}
	return &ibiWindow{buf: make([]float64, capacity)}
}

func (w *ibiWindow) push(v float64) {
	if w.n < len(w.buf) {
		w.buf[(w.head+w.n)%len(w.buf)] = v
		w.n++
		return
	}
	w.buf[w.head] = v
	w.head = (w.head + 1) % len(w.buf)
}

func (w *ibiWindow) values() []float64 {
	out := make([]float64, w.n)
	for i := range out {
		out[i] = w.buf[(w.head+i)%len(w.buf)]
	}
	return out
}
