package edupage

import (
	"sync"
	"time"
)

const (
	defaultBackoffBase = 3 * time.Minute
	defaultBackoffCap  = 6 * time.Hour

	// CaptchaCooldown is the minimum pause after the portal raised a
	// captcha challenge. Hammering the login straight away only deepens
	// the suspicion score.
	CaptchaCooldown = time.Hour
)

// BackoffState is a point-in-time snapshot of the controller.
type BackoffState struct {
	ConsecutiveFailures int
	ResumeNotBefore     time.Time
	LastReason          string
}

// BackoffController is the process-wide gate in front of every
// authentication and protected-call attempt. It outlives any single session
// and is safe for concurrent use.
type BackoffController struct {
	mu sync.Mutex

	base time.Duration
	cap  time.Duration
	now  func() time.Time

	failures        int
	resumeNotBefore time.Time
	lastReason      string
}

// NewBackoffController builds a controller with the given growth unit and
// ceiling; zero values select the defaults.
func NewBackoffController(base, ceiling time.Duration) *BackoffController {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if ceiling <= 0 {
		ceiling = defaultBackoffCap
	}
	return &BackoffController{base: base, cap: ceiling, now: time.Now}
}

// MayProceed is a pure clock check against the resume timestamp. It must be
// consulted before any attempt; it has no side effects.
func (b *BackoffController) MayProceed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return !b.now().Before(b.resumeNotBefore)
}

// RecordFailure bumps the failure count and pushes the resume timestamp out
// geometrically: min(base × 2^(failures−1), cap). A caller-suggested minimum
// delay wins when larger. The resume timestamp never moves backwards while
// failures continue.
func (b *BackoffController) RecordFailure(reason string, minDelay time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++
	b.lastReason = reason

	delay := b.delayLocked(b.failures)
	if minDelay > delay {
		delay = minDelay
	}

	resume := b.now().Add(delay)
	if resume.After(b.resumeNotBefore) {
		b.resumeNotBefore = resume
	}
}

// RecordSuccess resets the controller unconditionally. Called exactly on a
// fully successful protected call, never on a mere login.
func (b *BackoffController) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures = 0
	b.resumeNotBefore = time.Time{}
	b.lastReason = ""
}

// Snapshot returns the current state for logging and diagnostics.
func (b *BackoffController) Snapshot() BackoffState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BackoffState{
		ConsecutiveFailures: b.failures,
		ResumeNotBefore:     b.resumeNotBefore,
		LastReason:          b.lastReason,
	}
}

func (b *BackoffController) delayLocked(failures int) time.Duration {
	if failures < 1 {
		return 0
	}
	shift := failures - 1
	if shift > 20 {
		return b.cap
	}
	delay := b.base << shift
	if delay > b.cap || delay < 0 {
		return b.cap
	}
	return delay
}
