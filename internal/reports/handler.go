package reports

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler exposes report endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/daily", h.daily)
	r.Get("/payment-methods", h.paymentMethods)
	r.Get("/scopes", h.scopes)
	r.Get("/status", h.statuses)
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	sc, dr, err := h.parse(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summaries, err := h.service.Daily(r.Context(), sc, dr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"daily": summaries})
}

func (h *Handler) paymentMethods(w http.ResponseWriter, r *http.Request) {
	sc, dr, err := h.parse(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summaries, err := h.service.PaymentMethods(r.Context(), sc, dr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment_methods": summaries})
}

// scopes is a cross-scope comparison, so unlike the other reports it is
// administrator only rather than scope filtered.
func (h *Handler) scopes(w http.ResponseWriter, r *http.Request) {
	if err := scope.RequireAdmin(shared.IdentityFromContext(r.Context())); err != nil {
		httpx.RespondError(w, err)
		return
	}
	dr, err := rangeFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summaries, err := h.service.Scopes(r.Context(), dr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"scopes": summaries})
}

func (h *Handler) statuses(w http.ResponseWriter, r *http.Request) {
	sc, dr, err := h.parse(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	summary, err := h.service.Statuses(r.Context(), sc, dr)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) parse(r *http.Request) (scope.Scope, DateRange, error) {
	id := shared.IdentityFromContext(r.Context())
	var requested *scope.Scope
	if st := r.URL.Query().Get("scope_type"); st != "" {
		scopeID, _ := strconv.ParseInt(r.URL.Query().Get("scope_id"), 10, 64)
		requested = &scope.Scope{Type: scope.Type(st), ID: scopeID}
	}
	sc, err := scope.Resolve(id, requested)
	if err != nil {
		return scope.Scope{}, DateRange{}, err
	}
	dr, err := rangeFromQuery(r)
	if err != nil {
		return scope.Scope{}, DateRange{}, err
	}
	return sc, dr, nil
}

func rangeFromQuery(r *http.Request) (DateRange, error) {
	var dr DateRange
	var err error
	if dr.From, err = parseDate(r.URL.Query().Get("from")); err != nil {
		return DateRange{}, err
	}
	if dr.To, err = parseDate(r.URL.Query().Get("to")); err != nil {
		return DateRange{}, err
	}
	return dr, nil
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
