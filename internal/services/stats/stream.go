package stats

// Stream maintains a rolling window incrementally. Push is O(1); Window
// evaluates the current window exactly as Compute would.
type Stream struct {
	cfg  config
	buf  []float64
	head int // index of the oldest value
	n    int
}

// NewStream creates an empty stream.
func NewStream(opts ...Option) *Stream {
	cfg := newConfig(opts)
	return &Stream{cfg: cfg, buf: make([]float64, cfg.window)}
}

// Push appends v to the window, evicting the oldest value when full.
// Non-finite values are ignored and Push reports false.
func (s *Stream) Push(v float64) bool {
	if !isFinite(v) {
		return false
	}
	if s.n < len(s.buf) {
		s.buf[(s.head+s.n)%len(s.buf)] = v
		s.n++
		return true
	}
	s.buf[s.head] = v
	s.head = (s.head + 1) % len(s.buf)
	return true
}

// Len returns the number of values currently in the window.
func (s *Stream) Len() int { return s.n }

// Values returns the window contents oldest first.
func (s *Stream) Values() []float64 {
	out := make([]float64, s.n)
	for i := 0; i < s.n; i++ {
		out[i] = s.buf[(s.head+i)%len(s.buf)]
	}
	return out
}

// Window evaluates the current window.
func (s *Stream) Window() Window {
	return evaluate(s.Values(), s.cfg)
}

// Reset empties the stream.
func (s *Stream) Reset() {
	s.head, s.n = 0, 0
}
