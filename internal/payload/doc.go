// Package payload provides the type-erased value carried by the event bus.
//
// A Payload holds exactly one value together with the runtime type it was
// constructed with. Extraction is always checked:
//
//	p := payload.New(0.016)
//	dt, err := payload.As[float64](p) // ok
//	_, err = payload.As[int](p)       // errors.Is(err, payload.ErrTypeMismatch)
//
// The check runs on every access; there is no unchecked fast path.
//
// Slot is the out-parameter request providers fill (the last write wins), and
// Batch is the per-frame accumulation of payloads handed to scripts.
package payload
