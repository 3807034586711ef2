package voucher

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

const (
	mutationRateLimit  = 30
	mutationRateWindow = time.Minute
)

// Handler exposes voucher endpoints.
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

// MountRoutes registers voucher routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)

	r.Group(func(gr chi.Router) {
		gr.Use(httprate.Limit(mutationRateLimit, mutationRateWindow,
			httprate.WithKeyFuncs(rateLimitKey),
		))
		gr.Post("/", h.create)
		gr.Put("/{id}/approve", h.approve)
		gr.Put("/{id}/reject", h.reject)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if id := shared.IdentityFromContext(r.Context()); id != nil {
		return "user:" + strconv.FormatInt(id.UserID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

type createItemRequest struct {
	Name      string          `json:"name" validate:"required,max=200"`
	Quantity  decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

type createVoucherRequest struct {
	Type          string              `json:"type" validate:"required"`
	Category      string              `json:"category" validate:"required,max=100"`
	PaymentMethod string              `json:"payment_method" validate:"required,max=50"`
	Amount        decimal.Decimal     `json:"amount" validate:"required"`
	ScopeType     string              `json:"scope_type,omitempty"`
	ScopeID       int64               `json:"scope_id,omitempty"`
	Notes         string              `json:"notes" validate:"max=1000"`
	Items         []createItemRequest `json:"items" validate:"dive"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())

	var req createVoucherRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	var requested *scope.Scope
	if req.ScopeType != "" {
		requested = &scope.Scope{Type: scope.Type(req.ScopeType), ID: req.ScopeID}
	}
	sc, err := scope.Resolve(id, requested)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	input := CreateInput{
		Type:          Type(req.Type),
		Category:      req.Category,
		PaymentMethod: req.PaymentMethod,
		Amount:        req.Amount,
		Notes:         req.Notes,
	}
	for _, item := range req.Items {
		input.Items = append(input.Items, CreateItemInput{
			Name:      item.Name,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
		})
	}

	v, err := h.service.Create(r.Context(), id, sc, input)
	if err != nil {
		h.logger.Warn("create voucher", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, v)
}

type approveRequest struct {
	Notes string `json:"notes" validate:"max=1000"`
}

func (h *Handler) approve(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	voucherID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "voucher id must be a UUID")
		return
	}
	// Notes are optional; an empty body is a valid approve request.
	var req approveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil && !errors.Is(err, io.EOF) {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}

	v, err := h.service.Approve(r.Context(), id, voucherID, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

type rejectRequest struct {
	RejectionReason string `json:"rejection_reason" validate:"required,max=1000"`
	Notes           string `json:"notes" validate:"max=1000"`
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	voucherID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "voucher id must be a UUID")
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	v, err := h.service.Reject(r.Context(), id, voucherID, req.RejectionReason, req.Notes)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, v)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	sc, err := scope.Resolve(id, scopeOverrideFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	filter, err := listFilterFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	vouchers, pagination, err := h.service.List(r.Context(), sc, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"vouchers":   vouchers,
		"pagination": pagination,
	})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	sc, err := scope.Resolve(id, scopeOverrideFromQuery(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	voucherID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "voucher id must be a UUID")
		return
	}

	detail, err := h.service.Get(r.Context(), sc, voucherID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, detail)
}

func scopeOverrideFromQuery(r *http.Request) *scope.Scope {
	st := r.URL.Query().Get("scope_type")
	if st == "" {
		return nil
	}
	scopeID, _ := strconv.ParseInt(r.URL.Query().Get("scope_id"), 10, 64)
	return &scope.Scope{Type: scope.Type(st), ID: scopeID}
}

func listFilterFromQuery(r *http.Request) (ListFilter, error) {
	q := r.URL.Query()
	filter := ListFilter{
		Status: Status(q.Get("status")),
		Type:   Type(q.Get("type")),
	}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		return ListFilter{}, err
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		return ListFilter{}, err
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))
	return filter, nil
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, httpx.ErrInvalidQuery
	}
	return t, nil
}
