package edupage

import (
	"context"
	"net/url"
	"strings"
	"testing"

	http "github.com/bogdanfinn/fhttp"
)

func TestClassifyLogin(t *testing.T) {
	origin, _ := url.Parse("https://school.example")

	cases := []struct {
		name      string
		reply     loginReply
		wantKind  AuthKind
		wantURL   string
		wantMatch string
	}{
		{
			name:     "explicit captcha flag with relative image",
			reply:    loginReply{Status: "X", NeedCaptcha: "1", CaptchaSrc: "/captcha?id=1"},
			wantKind: AuthCaptcha,
			wantURL:  "https://school.example/captcha?id=1",
		},
		{
			name:     "captcha image without flag",
			reply:    loginReply{Status: "Fail", CaptchaSrc: "https://cdn.example/c.png"},
			wantKind: AuthCaptcha,
			wantURL:  "https://cdn.example/c.png",
		},
		{
			name:      "challenge language without flag",
			reply:     loginReply{Status: "Fail", ErrorText: "Suspicious activity detected, please VERIFY your identity"},
			wantKind:  AuthCaptcha,
			wantMatch: "Suspicious",
		},
		{
			name:      "plain rejection",
			reply:     loginReply{Status: "Fail", Message: "wrong password"},
			wantKind:  AuthRejected,
			wantMatch: "wrong password",
		},
		{
			name:      "rejection without message",
			reply:     loginReply{Status: "Blocked"},
			wantKind:  AuthRejected,
			wantMatch: "Blocked",
		},
		{
			name:     "success",
			reply:    loginReply{Status: "OK", UserID: "u-77", SessionID: "s-11"},
			wantKind: AuthOK,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := classifyLogin(origin, "tok", &tc.reply)
			if result.Kind != tc.wantKind {
				t.Fatalf("kind = %s, want %s", result.Kind, tc.wantKind)
			}
			if tc.wantURL != "" && result.ChallengeURL != tc.wantURL {
				t.Errorf("challenge URL = %q, want %q", result.ChallengeURL, tc.wantURL)
			}
			if tc.wantMatch != "" && !strings.Contains(result.Reason, tc.wantMatch) {
				t.Errorf("reason = %q, want substring %q", result.Reason, tc.wantMatch)
			}
			if tc.wantKind == AuthOK {
				if result.UserID != "u-77" || result.SessionID != "s-11" || result.Token != "tok" {
					t.Errorf("session context = %+v", result)
				}
			}
		})
	}
}

func TestAuthenticateHandshake(t *testing.T) {
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		switch call {
		case 0:
			if got := req.URL.Query().Get("action"); got != "getToken" {
				t.Errorf("first action = %q, want getToken", got)
			}
			form, _ := url.ParseQuery(req.Body)
			if !strings.Contains(form.Get("rpcparams"), `"edupage":"school"`) {
				t.Errorf("getToken rpcparams = %q, want portal subdomain", form.Get("rpcparams"))
			}
			return textResponse(200, `{"status":"OK","token":"tok-123"}`)
		case 1:
			if got := req.URL.Query().Get("action"); got != "login" {
				t.Errorf("second action = %q, want login", got)
			}
			form, _ := url.ParseQuery(req.Body)
			params := form.Get("rpcparams")
			if !strings.Contains(params, `"csrfauth":"tok-123"`) {
				t.Errorf("login rpcparams missing token: %q", params)
			}
			if !strings.Contains(params, `"captchaText":"abc"`) {
				t.Errorf("login rpcparams missing captcha text: %q", params)
			}
			return textResponse(200, `{"status":"OK","userid":"u-1","sessionid":"s-1"}`)
		}
		return unexpectedCall(call, req)
	})

	flow := NewAuthFlow(nil)
	sess := newTestSession(t, stub)

	result := flow.Authenticate(context.Background(), sess, "alice", "secret", "abc")
	if result.Kind != AuthOK {
		t.Fatalf("kind = %s (%+v)", result.Kind, result)
	}
	if result.UserID != "u-1" {
		t.Errorf("userid = %q", result.UserID)
	}
}

func TestGetTokenScrapesHTMLFallback(t *testing.T) {
	page := `<html><body><form><input type="hidden" name="csrfauth" value="page-tok"></form></body></html>`
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		if call == 0 {
			return textResponse(200, page)
		}
		return textResponse(200, `{"status":"OK"}`)
	})

	flow := NewAuthFlow(nil)
	sess := newTestSession(t, stub)

	result := flow.Authenticate(context.Background(), sess, "alice", "secret", "")
	if result.Kind != AuthOK {
		t.Fatalf("kind = %s (%+v)", result.Kind, result)
	}
	if result.Token != "page-tok" {
		t.Errorf("token = %q, want scraped page-tok", result.Token)
	}
}

func TestGetTokenWithoutTokenRejects(t *testing.T) {
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		return textResponse(200, `<html><body>maintenance</body></html>`)
	})

	flow := NewAuthFlow(nil)
	sess := newTestSession(t, stub)

	result := flow.Authenticate(context.Background(), sess, "alice", "secret", "")
	if result.Kind != AuthRejected {
		t.Fatalf("kind = %s, want rejected", result.Kind)
	}
	if len(stub.requests) != 1 {
		t.Errorf("requests = %d, want 1 (no login without token)", len(stub.requests))
	}
}

func TestAuthenticateTransientOnNetworkError(t *testing.T) {
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		return nil, &url.Error{Op: "Post", URL: "x", Err: context.DeadlineExceeded}
	})

	flow := NewAuthFlow(nil)
	sess := newTestSession(t, stub)

	result := flow.Authenticate(context.Background(), sess, "alice", "secret", "")
	if result.Kind != AuthTransient {
		t.Fatalf("kind = %s, want transient", result.Kind)
	}
	if result.Err == nil {
		t.Error("transient result without wrapped error")
	}
}
