package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-pos/meridian/internal/platform/httpx"
	"github.com/meridian-pos/meridian/internal/scope"
	"github.com/meridian-pos/meridian/internal/shared"
)

// Handler exposes ledger endpoints.
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

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/entries", h.appendEntry)
	r.Get("/entries", h.listEntries)
	r.Delete("/entries/{id}", h.deleteEntry)
	r.Get("/balance/{subjectType}/{subjectID}", h.subjectBalance)
}

type appendEntryRequest struct {
	SubjectType string          `json:"subject_type" validate:"required"`
	SubjectID   int64           `json:"subject_id" validate:"required,gt=0"`
	EntryType   string          `json:"entry_type" validate:"required"`
	Debit       decimal.Decimal `json:"debit"`
	Credit      decimal.Decimal `json:"credit"`
	Description string          `json:"description" validate:"max=500"`
}

func (h *Handler) appendEntry(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	sc, err := scope.Resolve(id, scopeOverride(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	var req appendEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	entry, err := h.service.Append(r.Context(), id, sc, AppendEntryInput{
		SubjectType: SubjectType(req.SubjectType),
		SubjectID:   req.SubjectID,
		Type:        EntryType(req.EntryType),
		Debit:       req.Debit,
		Credit:      req.Credit,
		Description: req.Description,
	})
	if err != nil {
		h.logger.Warn("append ledger entry", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	sc, err := scope.Resolve(id, scopeOverride(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	filter, err := filterFromQuery(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	entries, err := h.service.Query(r.Context(), sc, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) subjectBalance(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())
	sc, err := scope.Resolve(id, scopeOverride(r))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	subjectID, err := strconv.ParseInt(chi.URLParam(r, "subjectID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Query", "subject id must be numeric")
		return
	}
	summary, err := h.service.Balance(r.Context(), sc, SubjectType(chi.URLParam(r, "subjectType")), subjectID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

type deleteEntryRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	id := shared.IdentityFromContext(r.Context())

	entryID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "entry id must be a UUID")
		return
	}
	var req deleteEntryRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "malformed JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}

	if err := h.service.AdministrativeDelete(r.Context(), id, entryID, req.Reason); err != nil {
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

func filterFromQuery(r *http.Request) (QueryFilter, error) {
	q := r.URL.Query()
	filter := QueryFilter{
		SubjectType: SubjectType(q.Get("subject_type")),
		Type:        EntryType(q.Get("entry_type")),
	}
	if raw := q.Get("subject_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return QueryFilter{}, httpx.ErrInvalidQuery
		}
		filter.SubjectID = id
	}
	var err error
	if filter.From, err = parseDate(q.Get("from")); err != nil {
		return QueryFilter{}, err
	}
	if filter.To, err = parseDate(q.Get("to")); err != nil {
		return QueryFilter{}, err
	}
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
