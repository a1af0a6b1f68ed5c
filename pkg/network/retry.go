package network

import "time"

const (
	retryBase = 2 * time.Second
	retryMax  = 30 * time.Second
)

// Retry tracks a backoff delay that doubles on failure up to a cap.
type Retry struct {
	t    time.Duration
	fail bool
}

func NewRetry() Retry {
	return Retry{t: retryBase}
}

// Fail sleeps for the current delay and grows it for the next attempt.
func (r *Retry) Fail() *Retry {
	r.fail = true
	time.Sleep(r.t)
	if r.t < retryMax {
		r.t *= 2
		if r.t > retryMax {
			r.t = retryMax
		}
	}
	return r
}

func (r *Retry) Success()            { r.t = retryBase; r.fail = false }
func (r *Retry) Time() time.Duration { return r.t }
