package accounts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler exposes account endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.create)
	r.Get("/", h.list)
	r.Put("/{id}/balance", h.setBalance)
	r.Delete("/{id}", h.deactivate)
}

type createAccountRequest struct {
	Name           string          `json:"name" validate:"required,max=120"`
	Type           string          `json:"type" validate:"required"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	sc, err := scope.Resolve(id, scopeOverride(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req createAccountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	account, err := h.service.Create(r.Context(), sc, CreateInput{
		Name:           req.Name,
		Type:           AccountType(req.Type),
		OpeningBalance: req.OpeningBalance,
	})
	if err != nil {
		h.logger.Warn("create account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	sc, err := scope.Resolve(id, scopeOverride(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	accounts, err := h.service.List(r.Context(), sc)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": accounts})
}

type setBalanceRequest struct {
	Balance decimal.Decimal `json:"balance"`
	Reason  string          `json:"reason" validate:"required,max=500"`
}

func (h *Handler) setBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrInvalidQuery)
		return
	}

	var req setBalanceRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	account, err := h.service.SetBalance(r.Context(), shared.IdentityFromContext(r.Context()), accountID, SetBalanceInput{
		Balance: req.Balance,
		Reason:  req.Reason,
	})
	if err != nil {
		h.logger.Warn("set account balance", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivate(w http.ResponseWriter, r *http.Request) {
	accountID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, httpx.ErrInvalidQuery)
		return
	}

	if err := h.service.Deactivate(r.Context(), shared.IdentityFromContext(r.Context()), accountID); err != nil {
		h.logger.Warn("deactivate account", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func scopeOverride(r *http.Request) *scope.Scope {
	st := r.URL.Query().Get("scope_type")
	if st == "" {
		return nil
	}
	scopeID, _ := strconv.ParseInt(r.URL.Query().Get("scope_id"), 10, 64)
	return &scope.Scope{Type: scope.Type(st), ID: scopeID}
}
