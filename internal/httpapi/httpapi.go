package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"basreng/backend/internal/domain"
	"basreng/backend/internal/service"
	"basreng/backend/internal/store"
)

const (
	statusSuccess = "success"
	statusError   = "error"

	requestIDHeader = "X-Request-ID"
	transactionPath = "/api/v1/transactions/"
)

type API struct {
	service       *service.Service
	auth          *AuthManager
	logger        *zap.Logger
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, auth *AuthManager, logger *zap.Logger, allowedOrigin string) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		logger:        logger,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/transactions/create", a.requireAuth(a.handleCreateTransaction, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/transactions/receipt", a.requireAuth(a.handleReceipt, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc("/api/v1/transactions", a.requireAuth(a.handleListTransactions, domain.RoleCashier, domain.RoleAdmin))
	mux.HandleFunc(transactionPath, a.requireAuth(a.handleTransactionActions, domain.RoleCashier, domain.RoleAdmin))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, r, http.StatusUnauthorized, "Unauthorized", errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, r, http.StatusUnauthorized, "Unauthorized", err)
			return
		}

		if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
			a.writeError(w, r, http.StatusForbidden, "Forbidden", errors.New("forbidden role"))
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w, r)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w, r)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, r, http.StatusTooManyRequests, "Too many login attempts", nil)
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, r, http.StatusUnauthorized, "Login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type createTransactionEnvelope struct {
	Status string `json:"status"`
	domain.CreateTransactionResponse
}

func (a *API) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w, r)
		return
	}

	var req domain.CreateTransactionRequest
	if err := decodeLenientJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	resp, err := a.service.CreateTransaction(r.Context(), req)
	if err != nil {
		a.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, createTransactionEnvelope{Status: statusSuccess, CreateTransactionResponse: resp})
}

// handleReceipt answers an unknown code with 400, matching how the POS
// frontend treats a bad receipt lookup as a client input error.
func (a *API) handleReceipt(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w, r)
		return
	}

	var req domain.ReceiptRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	receipt, err := a.service.GetReceipt(r.Context(), req.TransactionCode)
	if err != nil {
		a.writeServiceError(w, r, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": statusSuccess,
		"data":   receipt,
	})
}

func (a *API) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w, r)
		return
	}

	q := r.URL.Query()
	items, err := a.service.ListTransactions(r.Context(), domain.TransactionListQuery{
		Username:  q.Get("username"),
		StartDate: q.Get("start_date"),
		EndDate:   q.Get("end_date"),
	})
	if err != nil {
		a.writeServiceError(w, r, err, http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": statusSuccess,
		"data":   items,
	})
}

func (a *API) handleTransactionActions(w http.ResponseWriter, r *http.Request) {
	code := strings.TrimSpace(strings.Trim(strings.TrimPrefix(r.URL.Path, transactionPath), "/"))
	if code == "" || strings.Contains(code, "/") {
		a.writeError(w, r, http.StatusNotFound, "Transaction not found", nil)
		return
	}

	switch r.Method {
	case http.MethodGet:
		view, err := a.service.GetTransaction(r.Context(), code)
		if err != nil {
			a.writeServiceError(w, r, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status": statusSuccess,
			"data":   view,
		})
	case http.MethodDelete:
		if err := a.service.DeleteTransaction(r.Context(), code); err != nil {
			a.writeServiceError(w, r, err, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"status":  statusSuccess,
			"message": "Transaction deleted successfully",
		})
	default:
		a.writeMethodNotAllowed(w, r)
	}
}

func (a *API) writeServiceError(w http.ResponseWriter, r *http.Request, err error, notFoundStatus int) {
	switch {
	case errors.Is(err, store.ErrInvalidTransaction):
		a.writeError(w, r, http.StatusBadRequest, "Invalid transaction data", err)
	case errors.Is(err, store.ErrNotFound):
		a.writeError(w, r, notFoundStatus, "Transaction not found", nil)
	case errors.Is(err, store.ErrDuplicateCode):
		a.writeError(w, r, http.StatusConflict, "Transaction code already in use, please retry", nil)
	case errors.Is(err, service.ErrForbidden):
		a.writeError(w, r, http.StatusForbidden, "Forbidden", err)
	default:
		a.writeError(w, r, http.StatusInternalServerError, "Failed to process transaction", err)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
			r.Header.Set(requestIDHeader, requestID)
		}

		w.Header().Set(requestIDHeader, requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", time.Since(startedAt)),
			zap.String("request_id", requestID),
		)
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// decodeLenientJSON tolerates extra fields; POS carts echo display-only data
// such as product names back to the server.
func decodeLenientJSON(r *http.Request, dest any) error {
	return json.NewDecoder(r.Body).Decode(dest)
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	a.writeError(w, r, http.StatusMethodNotAllowed, "Method not allowed", nil)
}

// writeError renders {status, message, error}. 5xx responses never carry the
// underlying error; it is logged instead.
func (a *API) writeError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	payload := map[string]any{
		"status":  statusError,
		"message": message,
	}
	if status >= 500 {
		a.logger.Error("request failed",
			zap.Int("status", status),
			zap.String("path", r.URL.Path),
			zap.String("request_id", r.Header.Get(requestIDHeader)),
			zap.Error(err),
		)
	} else if err != nil {
		payload["error"] = err.Error()
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
