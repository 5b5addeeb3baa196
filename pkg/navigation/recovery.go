package navigation

import "time"

// DefaultRecoveryDelay is how long the engine waits for a navigation to settle.
const DefaultRecoveryDelay = 5 * time.Second

// RecoveryPolicy waits for the browser to settle after a possible
// navigation. The browser sends no "navigation finished" signal, so the wait
// is a policy rather than an event. Wait is not cancellable.
type RecoveryPolicy interface {
	Wait()
}

// FixedDelay waits once for Delay.
type FixedDelay struct {
	Delay time.Duration

	// Sleep replaces time.Sleep, for tests
	Sleep func(time.Duration)
}

func (f FixedDelay) Wait() {
	if f.Delay <= 0 {
		return
	}
	if f.Sleep != nil {
		f.Sleep(f.Delay)
		return
	}
	time.Sleep(f.Delay)
}

// NoDelay skips the recovery wait.
var NoDelay RecoveryPolicy = FixedDelay{}
