package cards

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/buildpoint/buildpoint/internal/platform/httpx"
	"github.com/buildpoint/buildpoint/internal/shared"
)

// Handler wires card HTTP endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers card routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/cards/enroll", h.enroll)
	r.Post("/cards/{cardUid}/block", h.block)
	r.Get("/cards/{cardUid}", h.show)
	r.Get("/cards/{cardUid}/blocks", h.listBlocks)
}

func (h *Handler) respondErr(w http.ResponseWriter, err error) {
	if shared.IsBusinessError(err) {
		httpx.ProblemCode(w, shared.HTTPStatus(err), shared.ErrorCode(err), err.Error())
		return
	}
	h.logger.Error("cards handler", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

type enrollRequest struct {
	EntryID      string  `json:"entryId" validate:"required"`
	CardUID      string  `json:"cardUid" validate:"required"`
	FranchiseeID int64   `json:"franchiseeId" validate:"required"`
	Name         string  `json:"name" validate:"required"`
	Mobile       string  `json:"mobile" validate:"required,min=10,max=15"`
	Aadhaar      *string `json:"aadhaar,omitempty" validate:"omitempty,len=12"`
	StaffID      int64   `json:"staffId" validate:"required"`
}

type cardResponse struct {
	CardUID        string  `json:"cardUid"`
	FranchiseeID   int64   `json:"franchiseeId"`
	Status         Status  `json:"status"`
	HardwarePoints int64   `json:"hardwarePoints"`
	PlywoodPoints  int64   `json:"plywoodPoints"`
	HolderName     string  `json:"holderName,omitempty"`
	HolderMobile   string  `json:"holderMobile,omitempty"`
	HolderAadhaar  *string `json:"holderAadhaar,omitempty"`
}

func toCardResponse(card Card, holder *Holder) cardResponse {
	resp := cardResponse{
		CardUID:        card.CardUID,
		FranchiseeID:   card.FranchiseeID,
		Status:         card.Status,
		HardwarePoints: card.HardwarePoints,
		PlywoodPoints:  card.PlywoodPoints,
	}
	if holder != nil {
		resp.HolderName = holder.Name
		resp.HolderMobile = holder.Mobile
		resp.HolderAadhaar = holder.Aadhaar
	}
	return resp
}

func (h *Handler) enroll(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	card, err := h.service.Enroll(r.Context(), req.EntryID, EnrollInput{
		CardUID:      req.CardUID,
		FranchiseeID: req.FranchiseeID,
		Name:         req.Name,
		Mobile:       req.Mobile,
		Aadhaar:      req.Aadhaar,
		StaffID:      req.StaffID,
	})
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toCardResponse(card, nil))
}

type blockRequest struct {
	EntryID string `json:"entryId" validate:"required"`
	Reason  string `json:"reason" validate:"required,oneof=LOST STOLEN DAMAGED FRAUD OTHER"`
	StaffID int64  `json:"staffId" validate:"required"`
}

func (h *Handler) block(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	if err := h.service.Block(r.Context(), req.EntryID, BlockInput{
		CardUID: chi.URLParam(r, "cardUid"),
		Reason:  BlockReason(req.Reason),
		StaffID: req.StaffID,
	}); err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"blocked": true})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	card, holder, err := h.service.Get(r.Context(), chi.URLParam(r, "cardUid"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toCardResponse(card, holder))
}

func (h *Handler) listBlocks(w http.ResponseWriter, r *http.Request) {
	blocks, err := h.service.ListBlocks(r.Context(), chi.URLParam(r, "cardUid"))
	if err != nil {
		h.respondErr(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"blocks": blocks})
}
