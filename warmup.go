package edupage

import (
	"context"
)

// WarmupStep is one page fetch of the warmup sequence. An empty Referer
// means "the previous step's final URL" (the origin for the first step).
type WarmupStep struct {
	Path    string
	Referer string
}

// WarmupPlan is the fixed fetch sequence that makes the server attach the
// secondary session cookie the protected endpoints depend on, plus the name
// of that cookie. Cookie presence, not HTTP status, is the pass signal: when
// the cookie is missing the server degrades silently with a reload sentinel
// instead of erroring.
type WarmupPlan struct {
	Steps          []WarmupStep
	RequiredCookie string
}

// DefaultWarmupPlan replays the page visits a browser makes between login
// and the first timetable request.
func DefaultWarmupPlan() WarmupPlan {
	return WarmupPlan{
		Steps: []WarmupStep{
			{Path: "/user/"},
			{Path: "/dashboard/eb.php"},
			{Path: "/timetable/"},
		},
		RequiredCookie: "eqsid",
	}
}

// SessionWarmup replays a warmup plan over a session's transport.
type SessionWarmup struct {
	plan   WarmupPlan
	logger Logger
}

// NewSessionWarmup builds a warmup runner; an empty plan selects the default.
func NewSessionWarmup(plan WarmupPlan, logger Logger) *SessionWarmup {
	if len(plan.Steps) == 0 {
		plan = DefaultWarmupPlan()
	}
	if logger == nil {
		logger = NopLogger()
	}
	return &SessionWarmup{plan: plan, logger: logger}
}

// Ensure runs the fetch sequence and verifies the required cookie landed in
// the jar. A missing cookie is a hard SessionIncompleteError, not a retry.
func (w *SessionWarmup) Ensure(ctx context.Context, sess *Session) error {
	referer := sess.Origin.String() + "/"

	for _, step := range w.plan.Steps {
		if step.Referer != "" {
			referer = sess.URL(step.Referer)
		}

		target := sess.URL(step.Path)
		resp, err := sess.transport.Get(ctx, target, sess.profile.NavigationHeader(referer))
		if err != nil {
			return err
		}

		// Status is deliberately ignored; only the jar matters.
		referer = resp.FinalURL
	}

	if _, ok := sess.Cookie(w.plan.RequiredCookie); !ok {
		w.logger.Log("warmup finished without cookie %q", w.plan.RequiredCookie)
		return &SessionIncompleteError{Cookie: w.plan.RequiredCookie}
	}
	return nil
}
