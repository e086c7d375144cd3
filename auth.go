package edupage

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"

	http "github.com/bogdanfinn/fhttp"
)

// loginEndpoint is the portal's auth RPC path. The action rides in the
// query string, the parameter object in the rpcparams form field.
const loginEndpoint = "/login/eauth"

// AuthKind tags the outcome of one authentication attempt.
type AuthKind int

const (
	// AuthOK permits proceeding to warmup and protected calls.
	AuthOK AuthKind = iota
	// AuthCaptcha means the portal demands human verification. Not an
	// error: the consumer presents ChallengeURL and retries with the
	// solved text.
	AuthCaptcha
	// AuthRejected is a credential or server-side block; terminal for
	// this attempt.
	AuthRejected
	// AuthTransient wraps a transport-level failure.
	AuthTransient
)

func (k AuthKind) String() string {
	switch k {
	case AuthOK:
		return "ok"
	case AuthCaptcha:
		return "captcha-challenge"
	case AuthRejected:
		return "rejected"
	default:
		return "transient"
	}
}

// AuthResult is the tagged outcome of an authentication attempt.
type AuthResult struct {
	Kind AuthKind

	// Session context, set on AuthOK.
	Token     string
	UserID    string
	SessionID string

	// ChallengeURL is absolute when derivable, set on AuthCaptcha.
	ChallengeURL string

	// Reason carries the portal's text on AuthRejected.
	Reason string

	// Err is set on AuthTransient.
	Err error
}

// challengePatterns are case-insensitive substrings the portal uses in
// free-text error messages when it wants human verification but forgets to
// set the explicit flag. Both checks are needed: the portal signals the same
// condition inconsistently across response shapes.
var challengePatterns = []string{"suspicious", "verify", "captcha"}

// AuthFlow drives the two-step login handshake: token acquisition, then
// credentialed login, classified into {ok, captcha-challenge, rejected,
// transient}.
type AuthFlow struct {
	logger Logger
}

// NewAuthFlow returns an auth flow logging through logger.
func NewAuthFlow(logger Logger) *AuthFlow {
	if logger == nil {
		logger = NopLogger()
	}
	return &AuthFlow{logger: logger}
}

type loginReply struct {
	Status      string `json:"status"`
	Token       string `json:"token"`
	NeedCaptcha string `json:"needCaptcha"`
	CaptchaSrc  string `json:"captchaSrc"`
	ErrorText   string `json:"error"`
	Message     string `json:"message"`
	UserID      string `json:"userid"`
	SessionID   string `json:"sessionid"`
}

// Authenticate runs getToken followed by login. captchaText is the solved
// challenge from a previous AuthCaptcha outcome, empty on first attempt.
func (a *AuthFlow) Authenticate(ctx context.Context, sess *Session, username, password, captchaText string) *AuthResult {
	token, failure := a.getToken(ctx, sess, username)
	if failure != nil {
		return failure
	}
	return a.login(ctx, sess, username, password, token, captchaText)
}

// getToken asks the portal for the login token. Some portal releases answer
// the RPC with a full HTML page instead of JSON; the token extractor
// strategies cover that shape.
func (a *AuthFlow) getToken(ctx context.Context, sess *Session, username string) (string, *AuthResult) {
	body, err := a.rpc(ctx, sess, "getToken", map[string]string{
		"username": username,
		"edupage":  subdomainOf(sess.Origin),
	})
	if err != nil {
		return "", &AuthResult{Kind: AuthTransient, Err: err}
	}

	var reply loginReply
	if json.Unmarshal([]byte(body), &reply) == nil && reply.Token != "" {
		return reply.Token, nil
	}

	if token, ok := ExtractToken(body); ok {
		a.logger.Log("getToken fell back to page scraping")
		return token, nil
	}

	return "", &AuthResult{Kind: AuthRejected, Reason: "portal did not issue a login token"}
}

func (a *AuthFlow) login(ctx context.Context, sess *Session, username, password, token, captchaText string) *AuthResult {
	body, err := a.rpc(ctx, sess, "login", map[string]string{
		"username":    username,
		"password":    password,
		"csrfauth":    token,
		"captchaText": captchaText,
		"edupage":     subdomainOf(sess.Origin),
	})
	if err != nil {
		return &AuthResult{Kind: AuthTransient, Err: err}
	}

	var reply loginReply
	if uerr := json.Unmarshal([]byte(body), &reply); uerr != nil {
		return &AuthResult{Kind: AuthTransient, Err: &RpcParseError{Action: "login", Snippet: bodySnippet(body)}}
	}

	return classifyLogin(sess.Origin, token, &reply)
}

// classifyLogin orders the portal's three independent failure signals:
// explicit captcha flag first, challenge-language text second, any other
// non-OK status last.
func classifyLogin(origin *url.URL, token string, reply *loginReply) *AuthResult {
	if reply.NeedCaptcha == "1" || reply.CaptchaSrc != "" {
		return &AuthResult{
			Kind:         AuthCaptcha,
			ChallengeURL: resolveChallengeURL(origin, reply.CaptchaSrc),
			Reason:       messageOf(reply),
		}
	}

	if msg := messageOf(reply); msg != "" && looksLikeChallenge(msg) {
		return &AuthResult{Kind: AuthCaptcha, Reason: msg}
	}

	if !strings.EqualFold(reply.Status, "OK") {
		reason := messageOf(reply)
		if reason == "" {
			reason = "status " + reply.Status
		}
		return &AuthResult{Kind: AuthRejected, Reason: reason}
	}

	return &AuthResult{
		Kind:      AuthOK,
		Token:     token,
		UserID:    reply.UserID,
		SessionID: reply.SessionID,
	}
}

// rpc POSTs one auth action and returns the raw body.
func (a *AuthFlow) rpc(ctx context.Context, sess *Session, action string, params any) (string, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return "", err
	}

	endpoint := sess.URL(loginEndpoint) + "?action=" + url.QueryEscape(action)
	body := url.Values{"rpcparams": {string(paramsJSON)}}.Encode()
	header := sess.profile.FormHeader(sess.Origin.String(), sess.URL("/login/"))

	resp, err := sess.transport.Request(ctx, http.MethodPost, endpoint, []byte(body), header)
	if err != nil {
		return "", err
	}
	return string(resp.Body), nil
}

func looksLikeChallenge(message string) bool {
	lower := strings.ToLower(message)
	for _, p := range challengePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

func messageOf(reply *loginReply) string {
	if reply.ErrorText != "" {
		return reply.ErrorText
	}
	return reply.Message
}

// resolveChallengeURL makes relative challenge-image paths absolute against
// the session origin.
func resolveChallengeURL(origin *url.URL, src string) string {
	if src == "" {
		return ""
	}
	ref, err := url.Parse(src)
	if err != nil {
		return ""
	}
	return origin.ResolveReference(ref).String()
}

func subdomainOf(origin *url.URL) string {
	host := origin.Hostname()
	if i := strings.IndexByte(host, '.'); i > 0 {
		return host[:i]
	}
	return host
}
