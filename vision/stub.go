package vision

import "image"

// StubBackend returns a fixed set of detections regardless of input. It
// stands in for a real model in tests and in deployments where no model
// file is available but the rest of the pipeline should still run.
type StubBackend struct {
	// Detections is returned from every Detect call. A nil slice means
	// an empty scene.
	Detections []RawDetection

	// Err, when set, is returned instead of Detections.
	Err error

	calls int
}

func (s *StubBackend) Name() string { return "stub" }

func (s *StubBackend) Detect(_ image.Image) ([]RawDetection, error) {
	s.calls++
	if s.Err != nil {
		return nil, s.Err
	}
	out := make([]RawDetection, len(s.Detections))
	copy(out, s.Detections)
	return out, nil
}

// Calls reports how many times Detect has been invoked.
func (s *StubBackend) Calls() int { return s.calls }
