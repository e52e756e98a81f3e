// Package handler provides the HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	apierrors "github.com/frozlabs/todovault/internal/errors"
	"github.com/frozlabs/todovault/internal/identity"
	"github.com/frozlabs/todovault/internal/middleware"
	"github.com/frozlabs/todovault/internal/model"
	"github.com/frozlabs/todovault/internal/service"
	"github.com/frozlabs/todovault/internal/store"
)

// Handlers contains all HTTP handlers and their dependencies.
type Handlers struct {
	accounts     *service.AccountService
	sessions     *service.SessionService
	todos        *store.TodoStore
	creds        *identity.Credentials
	resolver     *identity.Resolver
	errorHandler *apierrors.Handler
	logger       *zap.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(
	accounts *service.AccountService,
	sessions *service.SessionService,
	todos *store.TodoStore,
	creds *identity.Credentials,
	resolver *identity.Resolver,
	errorHandler *apierrors.Handler,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		accounts:     accounts,
		sessions:     sessions,
		todos:        todos,
		creds:        creds,
		resolver:     resolver,
		errorHandler: errorHandler,
		logger:       logger,
	}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register handles POST /v1/auth/register.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if !strings.Contains(req.Email, "@") || req.Password == "" {
		h.errorHandler.WriteValidationError(w, "email and password are required", requestID)
		return
	}

	rec, err := h.accounts.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, map[string]any{
		"status":    "created",
		"tenant_id": rec.ID,
		"email":     rec.Email,
	})
}

// Login handles POST /v1/auth/login.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}

	rec, err := h.accounts.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	if err := h.creds.SetUser(w, rec.ID, rec.Email); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"tenant_id": rec.ID,
		"email":     rec.Email,
	})
}

// Logout handles POST /v1/auth/logout.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	h.creds.ClearUser(w)
	w.WriteHeader(http.StatusNoContent)
}

// Validate handles GET /v1/auth/validate.
func (h *Handlers) Validate(w http.ResponseWriter, r *http.Request) {
	res, err := h.resolver.Resolve(w, r)
	if err != nil {
		h.writeJSONResponse(w, http.StatusOK, map[string]any{"valid": false})
		return
	}

	idOrToken := res.UserID
	if res.Kind == model.IdentityGuest {
		idOrToken = res.Token
	}

	h.writeJSONResponse(w, http.StatusOK, map[string]any{
		"valid":       true,
		"type":        res.Kind,
		"id_or_token": idOrToken,
	})
}

// StartGuest handles POST /v1/guest/session. An existing valid guest
// credential is reused rather than replaced.
func (h *Handlers) StartGuest(w http.ResponseWriter, r *http.Request) {
	existing, _ := h.resolver.GuestToken(r)

	token, _, err := h.sessions.StartGuest(r.Context(), existing)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.creds.SetGuest(w, token)
	h.writeJSONResponse(w, http.StatusCreated, map[string]any{
		"status": "active",
		"token":  token,
	})
}

// EndGuest handles DELETE /v1/guest/session. The store destruction is
// irrecoverable by design.
func (h *Handlers) EndGuest(w http.ResponseWriter, r *http.Request) {
	token, _ := h.creds.ReadGuest(r)

	if err := h.sessions.EndGuest(r.Context(), token); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.creds.ClearGuest(w)
	h.writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ended"})
}

type todoRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// ListTodos handles GET /v1/todos.
func (h *Handlers) ListTodos(w http.ResponseWriter, r *http.Request) {
	tenant, ok := middleware.TenantFrom(r.Context())
	if !ok {
		h.errorHandler.WriteInternalError(w, "no tenant attached", r.Header.Get("X-Request-ID"))
		return
	}

	todos, err := h.todos.List(r.Context(), tenant.DB)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, todos)
}

// CreateTodo handles POST /v1/todos.
func (h *Handlers) CreateTodo(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenant, ok := middleware.TenantFrom(r.Context())
	if !ok {
		h.errorHandler.WriteInternalError(w, "no tenant attached", requestID)
		return
	}

	var req todoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if req.Title == "" {
		h.errorHandler.WriteValidationError(w, "title is required", requestID)
		return
	}

	todo, err := h.todos.Create(r.Context(), tenant.DB, req.Title, req.Description)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusCreated, todo)
}

// GetTodo handles GET /v1/todos/{id}.
func (h *Handlers) GetTodo(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	todo, err := h.todos.Get(r.Context(), tenant.DB, id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, todo)
}

// UpdateTodo handles PATCH /v1/todos/{id}. Only supplied fields change.
func (h *Handlers) UpdateTodo(w http.ResponseWriter, r *http.Request) {
	requestID := r.Header.Get("X-Request-ID")

	tenant, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	var patch model.TodoPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		h.errorHandler.WriteValidationError(w, "invalid request body", requestID)
		return
	}
	if patch.Empty() {
		h.errorHandler.WriteValidationError(w, "no fields to update", requestID)
		return
	}

	todo, err := h.todos.Update(r.Context(), tenant.DB, id, patch)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, todo)
}

// ToggleTodo handles POST /v1/todos/{id}/toggle.
func (h *Handlers) ToggleTodo(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	todo, err := h.todos.Toggle(r.Context(), tenant.DB, id)
	if err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	h.writeJSONResponse(w, http.StatusOK, todo)
}

// DeleteTodo handles DELETE /v1/todos/{id}.
func (h *Handlers) DeleteTodo(w http.ResponseWriter, r *http.Request) {
	tenant, id, ok := h.tenantAndID(w, r)
	if !ok {
		return
	}

	if err := h.todos.Delete(r.Context(), tenant.DB, id); err != nil {
		h.errorHandler.HandleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) tenantAndID(w http.ResponseWriter, r *http.Request) (middleware.Tenant, int64, bool) {
	requestID := r.Header.Get("X-Request-ID")

	tenant, ok := middleware.TenantFrom(r.Context())
	if !ok {
		h.errorHandler.WriteInternalError(w, "no tenant attached", requestID)
		return middleware.Tenant{}, 0, false
	}

	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		h.errorHandler.WriteValidationError(w, "invalid todo id", requestID)
		return middleware.Tenant{}, 0, false
	}

	return tenant, id, true
}

func (h *Handlers) writeJSONResponse(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
