package clerk

import "time"

// decision is what to do after one Backend API attempt.
type decision int

const (
	// done means the attempt succeeded.
	done decision = iota

	// retry means the failure is transient and another attempt may succeed.
	retry

	// fail means the failure is final.
	fail
)

// DefaultRetrySchedule is the wait before each retry of a failed request.
var DefaultRetrySchedule = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond}

// retrier decides whether a Backend API call is attempted again.
type retrier struct {
	schedule []time.Duration
}

func newRetrier(schedule []time.Duration) *retrier {
	return &retrier{schedule: schedule}
}

// decide maps an attempt's error to a decision.
//
//   - nil → done
//   - 429 → retry while attempts remain
//   - other 4xx → fail (the request itself is wrong)
//   - 5xx or a transport error → retry while attempts remain
//
// attempt counts from 1.
func (r *retrier) decide(err error, attempt int) decision {
	if err == nil {
		return done
	}

	if code := statusOf(err); code >= 400 && code < 500 && code != 429 {
		return fail
	}

	if attempt > len(r.schedule) {
		return fail
	}
	return retry
}

// delay returns the wait before the attempt after attempt.
func (r *retrier) delay(attempt int) time.Duration {
	if len(r.schedule) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(r.schedule) {
		idx = len(r.schedule) - 1
	}
	return r.schedule[idx]
}
