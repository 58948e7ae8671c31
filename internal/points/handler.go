package points

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/buildpoint/buildpoint/internal/platform/httpx"
	"github.com/buildpoint/buildpoint/internal/shared"
)

// Handler wires ledger HTTP endpoints. Requests arrive pre-authenticated;
// staff and store identifiers are resolved upstream and passed through the
// body.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	rates    map[Category]decimal.Decimal
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, rates map[Category]decimal.Decimal) *Handler {
	return &Handler{
		logger:   logger,
		service:  service,
		rates:    rates,
		validate: validator.New(),
	}
}

// MountRoutes registers ledger routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/cards/{cardUid}/points/credit", h.credit)
	r.Post("/cards/{cardUid}/points/debit", h.debit)
	r.Get("/cards/{cardUid}/points/expiring", h.expiring)
	r.Get("/cards/{cardUid}/points/history", h.history)
	r.Get("/cards/{cardUid}/balance", h.balance)
	r.Post("/points/{entryId}/void", h.voidEntry)
	r.Post("/cards/transfer", h.transfer)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if shared.IsBusinessError(err) {
		httpx.ProblemCode(w, shared.HTTPStatus(err), shared.ErrorCode(err), err.Error())
		return
	}
	h.logger.Error("points handler", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

type creditRequest struct {
	EntryID  string          `json:"entryId" validate:"required"`
	Category Category        `json:"category" validate:"required,oneof=HARDWARE PLYWOOD"`
	Amount   decimal.Decimal `json:"amount" validate:"required"`
	StaffID  int64           `json:"staffId" validate:"required"`
}

func (h *Handler) credit(w http.ResponseWriter, r *http.Request) {
	var req creditRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.Credit(r.Context(), CreditInput{
		EntryID:        req.EntryID,
		CardUID:        chi.URLParam(r, "cardUid"),
		Category:       req.Category,
		Amount:         req.Amount,
		ConversionRate: h.rate(req.Category),
		StaffID:        req.StaffID,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

type debitRequest struct {
	EntryID  string   `json:"entryId" validate:"required"`
	Category Category `json:"category" validate:"required,oneof=HARDWARE PLYWOOD"`
	Points   int64    `json:"points" validate:"required,gt=0"`
	StaffID  int64    `json:"staffId" validate:"required"`
}

func (h *Handler) debit(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	movement, err := h.service.DebitFIFO(r.Context(), DebitInput{
		EntryID:  req.EntryID,
		CardUID:  chi.URLParam(r, "cardUid"),
		Category: req.Category,
		Points:   req.Points,
		StaffID:  req.StaffID,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, movement)
}

func (h *Handler) expiring(w http.ResponseWriter, r *http.Request) {
	category := Category(r.URL.Query().Get("category"))
	if !category.Valid() {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "category must be HARDWARE or PLYWOOD")
		return
	}
	withinDays, _ := strconv.Atoi(r.URL.Query().Get("withinDays"))
	summary, err := h.service.ExpiringPoints(r.Context(), chi.URLParam(r, "cardUid"), category, withinDays)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

func (h *Handler) history(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.History(r.Context(), chi.URLParam(r, "cardUid"), limit)
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	balances, err := h.service.Balances(r.Context(), chi.URLParam(r, "cardUid"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balances)
}

type voidRequest struct {
	StaffID int64 `json:"staffId" validate:"required"`
}

func (h *Handler) voidEntry(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Void(r.Context(), chi.URLParam(r, "entryId"), req.StaffID); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"voided": true})
}

type transferRequest struct {
	OldCardUID string `json:"oldCardUid" validate:"required"`
	NewCardUID string `json:"newCardUid" validate:"required"`
	StaffID    int64  `json:"staffId" validate:"required"`
	StoreID    int64  `json:"storeId"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Transfer(r.Context(), TransferInput{
		OldCardUID: req.OldCardUID,
		NewCardUID: req.NewCardUID,
		StaffID:    req.StaffID,
		StoreID:    req.StoreID,
	}); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transferred": true})
}

func (h *Handler) rate(category Category) decimal.Decimal {
	if r, ok := h.rates[category]; ok && r.IsPositive() {
		return r
	}
	return decimal.NewFromInt(100)
}
