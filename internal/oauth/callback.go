package oauth

import (
	"context"
	"crypto/subtle"
	_ "embed"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/Masterminds/sprig/v3"

	"github.com/BoringStuffInc/mooagent/pkg/logging"
)

const (
	// CallbackPath is the path component of the redirect URI.
	CallbackPath = "/callback"

	// DefaultCallbackTimeout is how long a login waits for the browser.
	DefaultCallbackTimeout = 5 * time.Minute

	defaultErrorDescription = "Unknown error"
)

//go:embed templates/callback_success.html
var callbackSuccessHTML string

//go:embed templates/callback_error.html
var callbackErrorHTML string

var (
	successTemplate = template.Must(template.New("success").Funcs(sprig.HtmlFuncMap()).Parse(callbackSuccessHTML))
	errorTemplate   = template.Must(template.New("error").Funcs(sprig.HtmlFuncMap()).Parse(callbackErrorHTML))
)

type callbackResult struct {
	code string
	err  error
}

// CallbackListener is a single-shot loopback HTTP server receiving the
// authorization redirect. It is bound before the authorization URL is built
// so the redirect URI is known up front.
type CallbackListener struct {
	expectedState string

	listener net.Listener
	server   *http.Server
	port     int

	resultCh chan callbackResult
	once     sync.Once
	stopOnce sync.Once
}

// ListenForCallback binds 127.0.0.1 on an OS-assigned port and starts
// serving. Only the first request to CallbackPath is processed.
func ListenForCallback(expectedState string) (*CallbackListener, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("failed to bind callback listener: %w", err)
	}

	l := &CallbackListener{
		expectedState: expectedState,
		listener:      listener,
		port:          listener.Addr().(*net.TCPAddr).Port,
		resultCh:      make(chan callbackResult, 1),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(CallbackPath, l.handleCallback)

	l.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	l.server.SetKeepAlivesEnabled(false)

	go func() {
		if err := l.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			select {
			case l.resultCh <- callbackResult{err: fmt.Errorf("callback server failed: %w", err)}:
			default:
			}
		}
	}()

	logging.Debug("OAuth", "Callback listener bound on 127.0.0.1:%d", l.port)
	return l, nil
}

// RedirectURI returns http://127.0.0.1:<port>/callback.
func (l *CallbackListener) RedirectURI() string {
	return fmt.Sprintf("http://127.0.0.1:%d%s", l.port, CallbackPath)
}

// Port returns the bound port.
func (l *CallbackListener) Port() int {
	return l.port
}

// Wait blocks until the redirect has been processed or ctx is done. A ctx
// deadline is reported as ErrCallbackTimeout. The listener is closed on
// return.
func (l *CallbackListener) Wait(ctx context.Context) (string, error) {
	defer l.Close()

	select {
	case result := <-l.resultCh:
		return result.code, result.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", ErrCallbackTimeout
		}
		return "", ctx.Err()
	}
}

// Close stops the listener. It is safe to call more than once.
func (l *CallbackListener) Close() {
	l.stopOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = l.server.Shutdown(ctx)
		_ = l.listener.Close()
	})
}

func (l *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	handled := false
	l.once.Do(func() {
		handled = true
		code, err := l.processCallback(w, r)
		l.resultCh <- callbackResult{code: code, err: err}
	})

	if !handled {
		w.Header().Set("Connection", "close")
		http.Error(w, "Callback already processed", http.StatusBadRequest)
	}
}

func (l *CallbackListener) processCallback(w http.ResponseWriter, r *http.Request) (string, error) {
	query := r.URL.Query()

	if errCode := query.Get("error"); errCode != "" {
		cbErr := &CallbackError{Code: errCode, Description: query.Get("error_description")}
		if cbErr.Description == "" {
			cbErr.Description = defaultErrorDescription
		}
		logging.Warn("OAuth", "Authorization server returned error: %s", errCode)
		writeCallbackPage(w, http.StatusBadRequest, errorTemplate, map[string]string{
			"Error":       cbErr.Code,
			"Description": cbErr.Description,
		})
		return "", cbErr
	}

	state := query.Get("state")
	if state == "" || subtle.ConstantTimeCompare([]byte(state), []byte(l.expectedState)) != 1 {
		logging.Audit(logging.AuditEvent{
			Action:  "callback_state_mismatch",
			Outcome: "rejected",
		})
		writeCallbackPage(w, http.StatusBadRequest, errorTemplate, map[string]string{
			"Error":       "invalid_state",
			"Description": "The state parameter did not match this login attempt.",
		})
		return "", ErrStateMismatch
	}

	code := query.Get("code")
	if code == "" {
		writeCallbackPage(w, http.StatusBadRequest, errorTemplate, map[string]string{
			"Error":       "invalid_request",
			"Description": "The callback did not include an authorization code.",
		})
		return "", ErrMissingCode
	}

	writeCallbackPage(w, http.StatusOK, successTemplate, nil)
	return code, nil
}

func writeCallbackPage(w http.ResponseWriter, status int, tmpl *template.Template, data map[string]string) {
	h := w.Header()
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Connection", "close")
	h.Set("X-Content-Type-Options", "nosniff")
	h.Set("X-Frame-Options", "DENY")
	h.Set("Content-Security-Policy", "default-src 'none'; style-src 'unsafe-inline'")
	h.Set("Referrer-Policy", "no-referrer")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)

	if err := tmpl.Execute(w, data); err != nil {
		logging.Error("OAuth", err, "Failed to render callback page")
	}
}
