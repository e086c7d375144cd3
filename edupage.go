// Package edupage implements the session-aware protocol client for the
// Edupage portal: cookie-based sessions with manual redirect handling, the
// portal's wrapped-envelope RPC codec with version renegotiation, the
// two-step login handshake with captcha classification, and the process-wide
// backoff gate in front of it all.
//
// The package deliberately stops at decoded JSON payloads. Timetable
// parsing, persistence and scheduling live with the consumer.
package edupage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// Client is the consumer-facing surface: authenticate a session, then
// perform warmed-up protected calls on it. A client owns exactly one Session
// at a time and replaces it wholesale when it goes stale or suspect.
type Client struct {
	cfg     *Config
	logger  Logger
	backoff *BackoffController

	session *Session
	auth    *AuthFlow
	seq     *RPCSequencer
	warmup  *SessionWarmup
}

// NewClient builds a client for one account's portal. backoff may be shared
// across clients; nil constructs a private controller.
func NewClient(cfg *Config, backoff *BackoffController, logger Logger) (*Client, error) {
	if logger == nil {
		logger = NopLogger()
	}
	if backoff == nil {
		backoff = NewBackoffController(cfg.BackoffBase, cfg.BackoffCap)
	}

	sess, err := NewSession(cfg, logger)
	if err != nil {
		return nil, err
	}

	return &Client{
		cfg:     cfg,
		logger:  logger,
		backoff: backoff,
		session: sess,
		auth:    NewAuthFlow(logger),
		seq:     NewRPCSequencer(cfg.MaxEqav, !cfg.DisableEncryption, logger),
		warmup:  NewSessionWarmup(cfg.Warmup, logger),
	}, nil
}

// Session exposes the current session for diagnostics.
func (c *Client) Session() *Session {
	return c.session
}

// ResetSession discards the current session and constructs a fresh one.
// Used on suspected invalidity; the old jar is never patched.
func (c *Client) ResetSession() error {
	sess, err := NewSession(c.cfg, c.logger)
	if err != nil {
		return err
	}
	c.logger.Log("session %s replaced by %s", c.session.ID, sess.ID)
	c.session = sess
	return nil
}

// Authenticate runs the login handshake. captchaText carries the solved
// challenge from an earlier AuthCaptcha outcome; leave it empty otherwise.
// Returns ErrBackoffActive without touching the network when the gate is
// closed. The result feeds the backoff controller; only a later successful
// protected call resets it.
func (c *Client) Authenticate(ctx context.Context, username, password, captchaText string) (*AuthResult, error) {
	if !c.backoff.MayProceed() {
		return nil, ErrBackoffActive
	}

	if c.session.Expired(c.cfg.SessionMaxAge) {
		if err := c.ResetSession(); err != nil {
			return nil, err
		}
	}

	sess := c.session
	sess.mu.Lock()
	defer sess.mu.Unlock()

	result := c.auth.Authenticate(ctx, sess, username, password, captchaText)

	// One inline solver round before the challenge is recorded: a recorded
	// challenge closes the gate for at least CaptchaCooldown.
	if result.Kind == AuthCaptcha && captchaText == "" &&
		c.cfg.CaptchaSolver != nil && result.ChallengeURL != "" {
		if solved, err := c.solveChallenge(ctx, sess, result.ChallengeURL); err != nil {
			c.logger.Log("captcha solver failed: %v", err)
			if IsFatalError(err) {
				return nil, err
			}
		} else {
			c.logger.Log("captcha solved inline, retrying login")
			result = c.auth.Authenticate(ctx, sess, username, password, solved)
		}
	}

	switch result.Kind {
	case AuthCaptcha:
		c.backoff.RecordFailure("captcha challenge: "+result.Reason, CaptchaCooldown)
	case AuthRejected:
		c.backoff.RecordFailure(result.Reason, 0)
	case AuthTransient:
		c.backoff.RecordFailure(fmt.Sprintf("transient: %v", result.Err), 0)
	}

	return result, nil
}

// CallProtected performs warmup and the wrapped RPC, returning the decoded
// JSON payload. A full success resets the backoff controller.
func (c *Client) CallProtected(ctx context.Context, path, action string, params any) (json.RawMessage, error) {
	if !c.backoff.MayProceed() {
		return nil, ErrBackoffActive
	}

	sess := c.session
	sess.mu.Lock()
	defer sess.mu.Unlock()

	if err := c.warmup.Ensure(ctx, sess); err != nil {
		var incomplete *SessionIncompleteError
		if errors.As(err, &incomplete) {
			c.backoff.RecordFailure(incomplete.Error(), 0)
		}
		return nil, err
	}

	payload, err := c.seq.Call(ctx, sess, path, action, params)
	if err != nil {
		return nil, err
	}

	c.backoff.RecordSuccess()
	return payload, nil
}

// Sync authenticates if needed and performs the configured protected call.
func (c *Client) Sync(ctx context.Context, username, password string) (json.RawMessage, *AuthResult, error) {
	result, err := c.Authenticate(ctx, username, password, "")
	if err != nil {
		return nil, nil, err
	}
	if result.Kind != AuthOK {
		return nil, result, nil
	}

	payload, err := c.CallProtected(ctx, c.cfg.SyncPath, c.cfg.SyncAction, map[string]string{})
	if err != nil {
		return nil, result, err
	}
	return payload, result, nil
}

// solveChallenge fetches the challenge image through the session (the image
// endpoint needs the session cookies) and runs the configured solver.
func (c *Client) solveChallenge(ctx context.Context, sess *Session, challengeURL string) (string, error) {
	resp, err := sess.transport.Get(ctx, challengeURL, sess.profile.NavigationHeader(sess.Origin.String()+"/login/"))
	if err != nil {
		return "", err
	}
	if resp.StatusCode != 200 || len(resp.Body) == 0 {
		return "", fmt.Errorf("challenge image fetch returned status %d", resp.StatusCode)
	}
	return c.cfg.CaptchaSolver.SolveImage(ctx, resp.Body)
}
