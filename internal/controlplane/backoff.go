package controlplane

import "time"

// maxPollBackoff caps how far a poller's interval can stretch after
// repeated cycle failures.
const maxPollBackoff = 600 * time.Second

// pollBackoff tracks consecutive poll-cycle failures for one poller
// and applies linear backoff, not exponential: each of the first three
// consecutive failures adds one more base interval (so at most four
// base intervals), and the result is capped at maxPollBackoff.
type pollBackoff struct {
	consecutive int
}

func (b *pollBackoff) interval(base time.Duration) time.Duration {
	if b.consecutive == 0 {
		return base
	}
	d := base * time.Duration(1+b.consecutive)
	if d > maxPollBackoff {
		d = maxPollBackoff
	}
	return d
}

func (b *pollBackoff) recordFailure() {
	if b.consecutive < 3 {
		b.consecutive++
	}
}

func (b *pollBackoff) recordSuccess() { b.consecutive = 0 }
