package payload

// Slot is the out-parameter a request provider populates.
type Slot struct {
	p      Payload
	filled bool
}

// Fill stores v in the slot, replacing any earlier value.
func Fill[T any](s *Slot, v T) {
	s.Set(New(v))
}

// Set stores an already constructed payload.
func (s *Slot) Set(p Payload) {
	s.p = p
	s.filled = true
}

// Filled reports whether the provider wrote a value.
func (s *Slot) Filled() bool {
	return s.filled
}

// Payload returns the stored payload (empty if unfilled).
func (s *Slot) Payload() Payload {
	return s.p
}
