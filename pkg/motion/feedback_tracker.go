package motion

import "sync"

// FeedbackTracker caches the latest PowerStatus seen on a tee of the link's
// feedback stream, so collaborators that only need current charging state
// (the Charger FSM's stage 8 wait, the mapping engine's batch gate, §4.3
// item 3) don't have to share the single feedback channel Navigation drains.
type FeedbackTracker struct {
	mu     sync.Mutex
	latest PowerStatus
}

// NewFeedbackTracker builds an empty tracker.
func NewFeedbackTracker() *FeedbackTracker { return &FeedbackTracker{} }

// Charging implements navigation.ChargingStatus.
func (t *FeedbackTracker) Charging() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest.Charging
}

// Charged implements navigation.ChargingStatus.
func (t *FeedbackTracker) Charged() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.latest.Charged
}

func (t *FeedbackTracker) record(fb Feedback) {
	t.mu.Lock()
	t.latest = fb.Power
	t.mu.Unlock()
}

// TeeFeedback forwards every frame from in to the returned channel, recording
// each one's power status into t first, mirroring sensors.TeeScans.
func TeeFeedback(t *FeedbackTracker, in <-chan Feedback) <-chan Feedback {
	out := make(chan Feedback, cap(in))
	go func() {
		defer close(out)
		for fb := range in {
			t.record(fb)
			out <- fb
		}
	}()
	return out
}
