package oauth

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"
)

func hitCallback(t *testing.T, l *CallbackListener, query string) *http.Response {
	t.Helper()

	resp, err := http.Get(l.RedirectURI() + "?" + query)
	if err != nil {
		t.Fatalf("callback request failed: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// assertConnectionClosed checks that the listener told the browser not to
// keep the connection alive.
func assertConnectionClosed(t *testing.T, resp *http.Response) {
	t.Helper()

	if !resp.Close {
		t.Errorf("response must carry Connection: close, got header %q", resp.Header.Get("Connection"))
	}
}

func waitFor(t *testing.T, l *CallbackListener) (string, error) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return l.Wait(ctx)
}

func TestListenForCallback_RedirectURI(t *testing.T) {
	l, err := ListenForCallback("state")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}
	defer l.Close()

	if l.Port() == 0 {
		t.Fatal("expected an OS-assigned port")
	}
	if !strings.HasPrefix(l.RedirectURI(), "http://127.0.0.1:") || !strings.HasSuffix(l.RedirectURI(), "/callback") {
		t.Errorf("unexpected redirect URI %q", l.RedirectURI())
	}
}

func TestCallback_Success(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	resp := hitCallback(t, l, "code=abc123&state=right")
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
	assertConnectionClosed(t, resp)
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "Authentication successful") {
		t.Errorf("success page not rendered: %s", body)
	}

	code, err := waitFor(t, l)
	if err != nil {
		t.Fatalf("Wait() failed: %v", err)
	}
	if code != "abc123" {
		t.Errorf("code = %q, want abc123", code)
	}
}

func TestCallback_StateMismatch(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	resp := hitCallback(t, l, "code=abc123&state=wrong")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	assertConnectionClosed(t, resp)

	code, err := waitFor(t, l)
	if !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("Wait() error = %v, want ErrStateMismatch", err)
	}
	if code != "" {
		t.Errorf("code must not be returned on state mismatch, got %q", code)
	}
}

func TestCallback_MissingState(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	hitCallback(t, l, "code=abc123")

	if _, err := waitFor(t, l); !errors.Is(err, ErrStateMismatch) {
		t.Fatalf("Wait() error = %v, want ErrStateMismatch", err)
	}
}

func TestCallback_ErrorFromServer(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	resp := hitCallback(t, l, "error=access_denied&error_description=user+cancelled&state=right")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "access_denied") {
		t.Errorf("error page should name the error code: %s", body)
	}

	_, err = waitFor(t, l)
	var cbErr *CallbackError
	if !errors.As(err, &cbErr) {
		t.Fatalf("Wait() error = %v, want *CallbackError", err)
	}
	if cbErr.Code != "access_denied" || cbErr.Description != "user cancelled" {
		t.Errorf("got %+v, want access_denied / user cancelled", cbErr)
	}
}

func TestCallback_ErrorWithoutDescription(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	hitCallback(t, l, "error=server_error")

	_, err = waitFor(t, l)
	var cbErr *CallbackError
	if !errors.As(err, &cbErr) {
		t.Fatalf("Wait() error = %v, want *CallbackError", err)
	}
	if cbErr.Description != "Unknown error" {
		t.Errorf("Description = %q, want default", cbErr.Description)
	}
}

func TestCallback_MissingCode(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	resp := hitCallback(t, l, "state=right")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}

	if _, err := waitFor(t, l); !errors.Is(err, ErrMissingCode) {
		t.Fatalf("Wait() error = %v, want ErrMissingCode", err)
	}
}

func TestCallback_OtherPathsDoNotConsumeShot(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	base := strings.TrimSuffix(l.RedirectURI(), "/callback")
	resp, err := http.Get(base + "/favicon.ico")
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}

	hitCallback(t, l, "code=abc123&state=right")

	code, err := waitFor(t, l)
	if err != nil || code != "abc123" {
		t.Fatalf("Wait() = %q, %v; want abc123", code, err)
	}
}

func TestCallback_SecondRequestRejected(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}
	defer l.Close()

	hitCallback(t, l, "code=first&state=right")
	resp := hitCallback(t, l, "code=second&state=right")
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("second callback status = %d, want 400", resp.StatusCode)
	}
	assertConnectionClosed(t, resp)

	code, err := waitFor(t, l)
	if err != nil || code != "first" {
		t.Fatalf("Wait() = %q, %v; want first", code, err)
	}
}

func TestCallback_Timeout(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := l.Wait(ctx); !errors.Is(err, ErrCallbackTimeout) {
		t.Fatalf("Wait() error = %v, want ErrCallbackTimeout", err)
	}
}

func TestCallback_Cancelled(t *testing.T) {
	l, err := ListenForCallback("right")
	if err != nil {
		t.Fatalf("ListenForCallback() failed: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := l.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Wait() error = %v, want context.Canceled", err)
	}
}
