package edupage

import (
	"context"
	"errors"
	"testing"

	http "github.com/bogdanfinn/fhttp"
)

func TestWarmupAttachesAndVerifiesCookie(t *testing.T) {
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		switch call {
		case 0:
			if req.URL.Path != "/user/" {
				t.Errorf("step 1 path = %s", req.URL.Path)
			}
			if got := req.Header.Get("referer"); got != "https://school.example/" {
				t.Errorf("step 1 referer = %q", got)
			}
			return textResponse(200, "<html>user</html>")
		case 1:
			// Referer chains from the previous step's URL.
			if got := req.Header.Get("referer"); got != "https://school.example/user/" {
				t.Errorf("step 2 referer = %q", got)
			}
			// Secondary cookie lands on the parent domain, not the host.
			return textResponse(200, "<html>eb</html>", "Set-Cookie", "eqsid=xyz; Domain=.school.example; Path=/")
		case 2:
			return textResponse(200, "<html>tt</html>")
		}
		return unexpectedCall(call, req)
	})

	sess := newTestSession(t, stub)
	warmup := NewSessionWarmup(WarmupPlan{}, nil)

	if err := warmup.Ensure(context.Background(), sess); err != nil {
		t.Fatalf("warmup failed: %v", err)
	}
	if len(stub.requests) != 3 {
		t.Errorf("fetches = %d, want 3", len(stub.requests))
	}
}

func TestWarmupFailsWhenCookieNeverAppears(t *testing.T) {
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		// The portal degrades silently: all pages 200, no cookie.
		return textResponse(200, "<html>please reload</html>")
	})

	sess := newTestSession(t, stub)
	warmup := NewSessionWarmup(WarmupPlan{
		Steps:          []WarmupStep{{Path: "/user/"}, {Path: "/timetable/"}},
		RequiredCookie: "eqsid",
	}, nil)

	err := warmup.Ensure(context.Background(), sess)

	var incomplete *SessionIncompleteError
	if !errors.As(err, &incomplete) {
		t.Fatalf("err = %v, want SessionIncompleteError", err)
	}
	if incomplete.Cookie != "eqsid" {
		t.Errorf("error names cookie %q, want eqsid", incomplete.Cookie)
	}
}

func TestWarmupStatusIsIgnored(t *testing.T) {
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		// Cookie presence, not status, is the pass signal.
		return textResponse(500, "oops", "Set-Cookie", "eqsid=ok; Path=/")
	})

	sess := newTestSession(t, stub)
	warmup := NewSessionWarmup(WarmupPlan{
		Steps:          []WarmupStep{{Path: "/user/"}},
		RequiredCookie: "eqsid",
	}, nil)

	if err := warmup.Ensure(context.Background(), sess); err != nil {
		t.Fatalf("warmup failed despite cookie present: %v", err)
	}
}

func TestWarmupExplicitRefererOverride(t *testing.T) {
	stub := newStubClient(func(call int, req *stubRequest) (*http.Response, error) {
		if call == 1 {
			if got := req.Header.Get("referer"); got != "https://school.example/welcome" {
				t.Errorf("override referer = %q", got)
			}
		}
		return textResponse(200, "ok", "Set-Cookie", "eqsid=1; Path=/")
	})

	sess := newTestSession(t, stub)
	warmup := NewSessionWarmup(WarmupPlan{
		Steps: []WarmupStep{
			{Path: "/user/"},
			{Path: "/timetable/", Referer: "/welcome"},
		},
		RequiredCookie: "eqsid",
	}, nil)

	if err := warmup.Ensure(context.Background(), sess); err != nil {
		t.Fatal(err)
	}
}
