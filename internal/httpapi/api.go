package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"gatekey.org/internal/auth"
	"gatekey.org/internal/obs"
	"gatekey.org/internal/result"
)

// ReadyProbe checks downstream readiness (database ping).
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// API is the HTTP layer over the credential core.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth     *auth.Service
	recovery *auth.Recovery
	tokens   *auth.TokenService

	rateBurst  int
	ratePerSec int
	stopRate   func()
}

// New wires routes onto a fresh mux.
func New(rp ReadyProbe, version string, authSvc *auth.Service, recovery *auth.Recovery, tokens *auth.TokenService) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       authSvc,
		recovery:   recovery,
		tokens:     tokens,
		rateBurst:  20,
		ratePerSec: 10,
	}

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/login", a.handleLogin)
	a.mux.HandleFunc("/v1/auth/google", a.handleGoogleLogin)
	a.mux.HandleFunc("/v1/auth/refresh", a.handleRefresh)
	a.mux.HandleFunc("/v1/auth/register", a.handleRegister)
	a.mux.HandleFunc("/v1/auth/confirm-email", a.handleConfirmEmail)
	a.mux.Handle("/v1/auth/send-confirmation", a.requireUser(a.handleSendConfirmation))

	a.mux.HandleFunc("/v1/recovery/forgot", a.handleForgotPassword)
	a.mux.HandleFunc("/v1/recovery/reset", a.handleResetPassword)
	a.mux.Handle("/v1/recovery/password", a.requireUser(a.handlePassword))

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// SetRateLimit overrides the default per-IP rate limit. Call before
// Handler.
func (a *API) SetRateLimit(burst, perSec int) {
	if burst > 0 {
		a.rateBurst = burst
	}
	if perSec > 0 {
		a.ratePerSec = perSec
	}
}

// Handler returns the mux wrapped in the middleware chain.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.mux
	h, a.stopRate = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = MaxBodyBytes(h, 1<<20)
	h = Logging(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// Close releases background resources held by the middleware chain.
func (a *API) Close() {
	if a.stopRate != nil {
		a.stopRate()
	}
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "gatekey-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "gatekey-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeFailure maps a core failure onto the wire: field name (empty for
// non-field errors) to the ordered reason list, with the status derived
// from the failure kind. Errors that are not Failure values never reach
// clients verbatim.
func writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	var f *result.Failure
	if !errors.As(err, &f) {
		obs.Log("error", "internal error", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"errors": map[string][]string{"": {"Internal server error"}},
		})
		return
	}

	errs := make(map[string][]string, len(f.Fields))
	for _, fe := range f.Fields {
		errs[fe.Field] = append(errs[fe.Field], fe.Reasons...)
	}

	var code int
	switch f.Kind {
	case result.KindNotFound:
		code = http.StatusNotFound
	case result.KindForbidden:
		code = http.StatusForbidden
	default:
		code = http.StatusBadRequest
	}
	writeJSON(w, code, map[string]any{"errors": errs})
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]any{
		"errors": map[string][]string{"": {msg}},
	})
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	reader := http.MaxBytesReader(w, r.Body, 1<<20)
	defer reader.Close()
	dec := json.NewDecoder(reader)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("request body is required")
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}
