package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"
	"time"

	ctxAuth "github.com/MrEthical07/ctxAuth"
	"github.com/MrEthical07/ctxAuth/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Engine is the part of [ctxAuth.Engine] the handlers call.
type Engine interface {
	middleware.Authenticator
	VerifyEmail(ctx context.Context, email, code string) (*ctxAuth.EmailVerification, error)
	VerifyLogin(ctx context.Context, email, code string) (*ctxAuth.LoginResult, error)
	BlockLogin(ctx context.Context, email, contextID string) (*ctxAuth.TrustRecord, error)
	ContextData(ctx context.Context, userID string, kind ctxAuth.ContextKind) ([]ctxAuth.TrustRecord, error)
	DeleteContext(ctx context.Context, userID, contextID string) error
	BlockContext(ctx context.Context, userID, contextID string) (*ctxAuth.TrustRecord, error)
	UnblockContext(ctx context.Context, userID, contextID string) (*ctxAuth.TrustRecord, error)
	ContextAuthEnabled(ctx context.Context, userID string) (bool, error)
	SetContextAuthEnabled(ctx context.Context, userID string, enabled bool) error
	Logout(ctx context.Context, userID string) error
}

// Handlers serves the /auth routes.
type Handlers struct {
	engine         Engine
	logger         logrus.FieldLogger
	trustForwarded bool
}

// Option configures [Handlers].
type Option func(*Handlers)

// WithLogger sets the logger used for request and failure logging.
func WithLogger(l logrus.FieldLogger) Option {
	return func(h *Handlers) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithTrustForwarded takes the client IP from X-Forwarded-For. Only enable
// behind a proxy that overwrites the header.
func WithTrustForwarded(v bool) Option {
	return func(h *Handlers) { h.trustForwarded = v }
}

// NewHandlers creates handlers over engine.
func NewHandlers(engine Engine, opts ...Option) *Handlers {
	h := &Handlers{
		engine: engine,
		logger: logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Router returns a mux.Router with every route registered and the request
// logging middleware installed.
func (h *Handlers) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware(h.logger))
	h.RegisterRoutes(r)
	return r
}

// RegisterRoutes mounts the /auth subrouter on r.
func (h *Handlers) RegisterRoutes(r *mux.Router) {
	s := r.PathPrefix("/auth").Subrouter()
	s.Use(noStore, middleware.RequestMetadata(h.trustForwarded))

	s.HandleFunc("/verify", h.VerifyEmail).Methods("GET")
	s.HandleFunc("/verify-login", h.VerifyLogin).Methods("GET")
	s.HandleFunc("/block-login", h.BlockLogin).Methods("GET")

	guard := middleware.Guard(h.engine)
	protect := func(fn http.HandlerFunc) http.Handler { return guard(fn) }

	s.Handle("/context-data", protect(h.ListContexts)).Methods("GET")
	s.Handle("/context-data/{kind:primary|trusted|blocked}", protect(h.ListContexts)).Methods("GET")
	s.Handle("/context-data", protect(h.DeleteContext)).Methods("DELETE")
	s.Handle("/context-data/block", protect(h.BlockContext)).Methods("PATCH")
	s.Handle("/context-data/unblock", protect(h.UnblockContext)).Methods("PATCH")
	s.Handle("/context-data/block/{contextId}", protect(h.BlockContext)).Methods("PATCH")
	s.Handle("/context-data/unblock/{contextId}", protect(h.UnblockContext)).Methods("PATCH")
	s.Handle("/context-data/{contextId}", protect(h.DeleteContext)).Methods("DELETE")

	s.Handle("/user-preferences", protect(h.GetPreferences)).Methods("GET")
	s.Handle("/user-preferences", protect(h.PutPreferences)).Methods("PUT")
	s.Handle("/logout", protect(h.Logout)).Methods("POST")
}

type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
	Role  string `json:"role,omitempty"`
}

func toUserResponse(u ctxAuth.UserRecord) userResponse {
	return userResponse{ID: u.ID, Email: u.Email, Name: u.Name, Role: u.Role}
}

type contextResponse struct {
	ID         string    `json:"id"`
	Browser    string    `json:"browser"`
	OS         string    `json:"os"`
	Network    string    `json:"network"`
	State      string    `json:"state"`
	Primary    bool      `json:"primary"`
	CreatedAt  time.Time `json:"createdAt"`
	LastSeenAt time.Time `json:"lastSeenAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

func toContextResponse(r ctxAuth.TrustRecord) contextResponse {
	return contextResponse{
		ID:         r.ID,
		Browser:    r.Fingerprint.BrowserFamily,
		OS:         r.Fingerprint.OSFamily,
		Network:    r.Fingerprint.NetworkOrigin,
		State:      r.State.String(),
		Primary:    r.Primary,
		CreatedAt:  r.CreatedAt,
		LastSeenAt: r.LastSeenAt,
		UpdatedAt:  r.UpdatedAt,
	}
}

type loginResponse struct {
	Message     string       `json:"message"`
	AccessToken string       `json:"accessToken"`
	ExpiresAt   time.Time    `json:"expiresAt"`
	ContextID   string       `json:"contextId"`
	User        userResponse `json:"user"`
}

type challengeResponse struct {
	Message   string `json:"message"`
	ContextID string `json:"contextId"`
}

type preferencesResponse struct {
	EnableContextBasedAuth bool `json:"enableContextBasedAuth"`
}

type preferencesRequest struct {
	EnableContextBasedAuth *bool `json:"enableContextBasedAuth"`
}

// GET /auth/verify?code&email
func (h *Handlers) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	email, code, ok := codeQuery(w, r)
	if !ok {
		return
	}

	if _, err := h.engine.VerifyEmail(r.Context(), email, code); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Email verification process was successful")
}

// GET /auth/verify-login?code&email
func (h *Handlers) VerifyLogin(w http.ResponseWriter, r *http.Request) {
	email, code, ok := codeQuery(w, r)
	if !ok {
		return
	}

	res, err := h.engine.VerifyLogin(r.Context(), email, code)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, loginResponse{
		Message:     "Login verified",
		AccessToken: res.AccessToken,
		ExpiresAt:   res.ExpiresAt,
		ContextID:   res.ContextID,
		User:        toUserResponse(res.User),
	})
}

// WriteLoginResult writes the outcome of Engine.Login for a host's own login
// route: 200 with the access token, 202 when a login code was mailed, or the
// [StatusFor] mapping of err.
func (h *Handlers) WriteLoginResult(w http.ResponseWriter, r *http.Request, res *ctxAuth.LoginResult, err error) {
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if res == nil {
		h.writeError(w, r, ctxAuth.ErrEngineNotReady)
		return
	}

	switch res.Outcome {
	case ctxAuth.OutcomeAllowed:
		writeJSON(w, http.StatusOK, loginResponse{
			Message:     "Login successful",
			AccessToken: res.AccessToken,
			ExpiresAt:   res.ExpiresAt,
			ContextID:   res.ContextID,
			User:        toUserResponse(res.User),
		})
	case ctxAuth.OutcomeChallengePending:
		writeJSON(w, http.StatusAccepted, challengeResponse{
			Message:   "Verification email sent",
			ContextID: res.ContextID,
		})
	default:
		h.writeError(w, r, ctxAuth.ErrContextBlocked)
	}
}

// GET /auth/block-login?email&contextId
func (h *Handlers) BlockLogin(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var errs []FieldError

	email, ok := validEmail(q.Get("email"))
	if !ok {
		errs = append(errs, FieldError{Location: "query", Param: "email", Msg: "Invalid email"})
	}
	contextID := strings.TrimSpace(q.Get("contextId"))
	if contextID == "" {
		contextID = strings.TrimSpace(q.Get("id"))
	}
	if contextID == "" {
		errs = append(errs, FieldError{Location: "query", Param: "contextId", Msg: "Context id is required"})
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	if _, err := h.engine.BlockLogin(r.Context(), email, contextID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Login has been blocked")
}

// GET /auth/context-data?type=... and GET /auth/context-data/{kind}
func (h *Handlers) ListContexts(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	raw := mux.Vars(r)["kind"]
	if raw == "" {
		raw = r.URL.Query().Get("type")
	}
	kind, err := ctxAuth.ParseContextKind(raw)
	if err != nil {
		writeValidation(w, []FieldError{{Location: "query", Param: "type", Msg: "Invalid context type"}})
		return
	}

	records, err := h.engine.ContextData(r.Context(), user.ID, kind)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	out := make([]contextResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toContextResponse(rec))
	}
	writeJSON(w, http.StatusOK, out)
}

// DELETE /auth/context-data/{contextId}
func (h *Handlers) DeleteContext(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	contextID, ok := contextIDParam(w, r)
	if !ok {
		return
	}

	if err := h.engine.DeleteContext(r.Context(), user.ID, contextID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Data deleted successfully")
}

// PATCH /auth/context-data/block/{contextId}
func (h *Handlers) BlockContext(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	contextID, ok := contextIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.engine.BlockContext(r.Context(), user.ID, contextID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Blocked successfully")
}

// PATCH /auth/context-data/unblock/{contextId}
func (h *Handlers) UnblockContext(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())
	contextID, ok := contextIDParam(w, r)
	if !ok {
		return
	}

	if _, err := h.engine.UnblockContext(r.Context(), user.ID, contextID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Unblocked successfully")
}

// GET /auth/user-preferences
func (h *Handlers) GetPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	enabled, err := h.engine.ContextAuthEnabled(r.Context(), user.ID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesResponse{EnableContextBasedAuth: enabled})
}

// PUT /auth/user-preferences
func (h *Handlers) PutPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	var req preferencesRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<12))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil || req.EnableContextBasedAuth == nil {
		writeValidation(w, []FieldError{{Location: "body", Param: "enableContextBasedAuth", Msg: "Boolean value required"}})
		return
	}

	if err := h.engine.SetContextAuthEnabled(r.Context(), user.ID, *req.EnableContextBasedAuth); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, preferencesResponse{EnableContextBasedAuth: *req.EnableContextBasedAuth})
}

// POST /auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.UserFromContext(r.Context())

	if err := h.engine.Logout(r.Context(), user.ID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeMessage(w, http.StatusOK, "Logout successful")
}

func codeQuery(w http.ResponseWriter, r *http.Request) (email, code string, ok bool) {
	q := r.URL.Query()
	var errs []FieldError

	email, valid := validEmail(q.Get("email"))
	if !valid {
		errs = append(errs, FieldError{Location: "query", Param: "email", Msg: "Invalid email"})
	}
	code = strings.TrimSpace(q.Get("code"))
	if len(code) != 5 {
		errs = append(errs, FieldError{Location: "query", Param: "code", Msg: "Code must be 5 characters"})
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return "", "", false
	}
	return email, code, true
}

func contextIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(mux.Vars(r)["contextId"])
	if id == "" {
		id = strings.TrimSpace(r.URL.Query().Get("contextId"))
	}
	if id == "" {
		writeValidation(w, []FieldError{{Location: "params", Param: "contextId", Msg: "Context id is required"}})
		return "", false
	}
	return id, true
}

// validEmail accepts a bare address only ("a@b.c", not "A <a@b.c>").
func validEmail(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	addr, err := mail.ParseAddress(raw)
	if err != nil || addr.Address != raw || addr.Name != "" {
		return "", false
	}
	return strings.ToLower(raw), true
}
