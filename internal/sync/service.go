package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/buildpoint/buildpoint/internal/cards"
	"github.com/buildpoint/buildpoint/internal/points"
	"github.com/buildpoint/buildpoint/internal/shared"
)

// PointsPort is the slice of the Point Service the reconciler dispatches to.
type PointsPort interface {
	Credit(ctx context.Context, input points.CreditInput) (points.Movement, error)
	DebitFIFO(ctx context.Context, input points.DebitInput) (points.Movement, error)
	Void(ctx context.Context, originalEntryID string, staffID int64) error
}

// CardsPort covers the card-state mutators reachable from a batch.
type CardsPort interface {
	Enroll(ctx context.Context, entryID string, input cards.EnrollInput) (cards.Card, error)
	Block(ctx context.Context, entryID string, input cards.BlockInput) error
}

// ProcessedPort answers whether an entry id has already been processed.
type ProcessedPort interface {
	Contains(ctx context.Context, entryID string) (bool, error)
}

// Service replays a client's offline action queue against server state.
// Actions run strictly sequentially in the order the client queued them, so
// an enroll is visible to a later credit on the same card within one batch.
// A failure on one action never aborts the batch: every action gets its own
// verdict.
type Service struct {
	pointsSvc PointsPort
	cardsSvc  CardsPort
	processed ProcessedPort
	rates     map[points.Category]decimal.Decimal
	validate  *validator.Validate
	logger    *slog.Logger
}

// NewService builds the reconciler. rates maps each category to its
// amount-per-point conversion rate.
func NewService(pointsSvc PointsPort, cardsSvc CardsPort, processed ProcessedPort, rates map[points.Category]decimal.Decimal, logger *slog.Logger) *Service {
	return &Service{
		pointsSvc: pointsSvc,
		cardsSvc:  cardsSvc,
		processed: processed,
		rates:     rates,
		validate:  validator.New(),
		logger:    logger,
	}
}

func (s *Service) log() *slog.Logger {
	if s.logger != nil {
		return s.logger
	}
	return slog.Default()
}

func (s *Service) rate(category points.Category) decimal.Decimal {
	if r, ok := s.rates[category]; ok && r.IsPositive() {
		return r
	}
	return decimal.NewFromInt(100)
}

// Process runs the batch and returns a per-action result array plus summary
// counts. The caller is expected to have capped the batch size already.
func (s *Service) Process(ctx context.Context, actions []Action) BatchResult {
	result := BatchResult{Results: make([]ActionResult, 0, len(actions))}
	for _, action := range actions {
		outcome := s.processAction(ctx, action)
		result.Processed++
		if outcome.Success {
			result.Successful++
		} else {
			result.Failed++
		}
		result.Results = append(result.Results, outcome)
	}
	return result
}

func (s *Service) processAction(ctx context.Context, action Action) ActionResult {
	if action.EntryID == "" {
		return ActionResult{Success: false, Error: "entryId required", Code: CodeInvalidAction}
	}

	// Replays short-circuit to success without re-running business logic.
	if s.processed != nil {
		done, err := s.processed.Contains(ctx, action.EntryID)
		if err != nil {
			s.log().Error("processed lookup", slog.String("entry_id", action.EntryID), slog.Any("error", err))
			return s.failure(action, err)
		}
		if done {
			return ActionResult{EntryID: action.EntryID, Success: true}
		}
	}

	var err error
	switch action.Type {
	case ActionEnroll:
		err = s.dispatchEnroll(ctx, action)
	case ActionCredit:
		err = s.dispatchCredit(ctx, action)
	case ActionDebit:
		err = s.dispatchDebit(ctx, action)
	case ActionBlock:
		err = s.dispatchBlock(ctx, action)
	case ActionVoid:
		err = s.dispatchVoid(ctx, action)
	default:
		return ActionResult{
			EntryID: action.EntryID,
			Success: false,
			Error:   fmt.Sprintf("unknown action type %q", action.Type),
			Code:    CodeInvalidAction,
		}
	}
	if err != nil {
		return s.failure(action, err)
	}
	return ActionResult{EntryID: action.EntryID, Success: true}
}

// failure classifies an error into a per-action result. Business failures
// carry their own code; anything else is logged and reported INTERNAL_ERROR
// so the client still gets a definitive verdict for the queued item.
func (s *Service) failure(action Action, err error) ActionResult {
	var validationErrs validator.ValidationErrors
	var decodeErr *payloadError
	if errors.As(err, &validationErrs) || errors.As(err, &decodeErr) {
		return ActionResult{EntryID: action.EntryID, Success: false, Error: err.Error(), Code: CodeInvalidAction}
	}
	if shared.IsBusinessError(err) {
		return ActionResult{EntryID: action.EntryID, Success: false, Error: err.Error(), Code: shared.ErrorCode(err)}
	}
	s.log().Error("sync action failed",
		slog.String("entry_id", action.EntryID),
		slog.String("type", string(action.Type)),
		slog.Any("error", err),
	)
	return ActionResult{EntryID: action.EntryID, Success: false, Error: "internal error", Code: shared.CodeInternal}
}

type payloadError struct {
	cause error
}

func (e *payloadError) Error() string { return "invalid payload: " + e.cause.Error() }
func (e *payloadError) Unwrap() error { return e.cause }

func (s *Service) decode(action Action, target any) error {
	if len(action.Payload) == 0 {
		return &payloadError{cause: fmt.Errorf("payload required for %s", action.Type)}
	}
	if err := json.Unmarshal(action.Payload, target); err != nil {
		return &payloadError{cause: err}
	}
	return s.validate.Struct(target)
}

func (s *Service) dispatchEnroll(ctx context.Context, action Action) error {
	var payload EnrollPayload
	if err := s.decode(action, &payload); err != nil {
		return err
	}
	_, err := s.cardsSvc.Enroll(ctx, action.EntryID, cards.EnrollInput{
		CardUID:      payload.CardUID,
		FranchiseeID: payload.FranchiseeID,
		Name:         payload.Name,
		Mobile:       payload.Mobile,
		Aadhaar:      payload.Aadhaar,
		StaffID:      payload.StaffID,
	})
	return err
}

func (s *Service) dispatchCredit(ctx context.Context, action Action) error {
	var payload CreditPayload
	if err := s.decode(action, &payload); err != nil {
		return err
	}
	_, err := s.pointsSvc.Credit(ctx, points.CreditInput{
		EntryID:        action.EntryID,
		CardUID:        payload.CardUID,
		Category:       payload.Category,
		Amount:         payload.Amount,
		ConversionRate: s.rate(payload.Category),
		StaffID:        payload.StaffID,
	})
	return err
}

func (s *Service) dispatchDebit(ctx context.Context, action Action) error {
	var payload DebitPayload
	if err := s.decode(action, &payload); err != nil {
		return err
	}
	_, err := s.pointsSvc.DebitFIFO(ctx, points.DebitInput{
		EntryID:  action.EntryID,
		CardUID:  payload.CardUID,
		Category: payload.Category,
		Points:   payload.Points,
		StaffID:  payload.StaffID,
	})
	return err
}

func (s *Service) dispatchBlock(ctx context.Context, action Action) error {
	var payload BlockPayload
	if err := s.decode(action, &payload); err != nil {
		return err
	}
	return s.cardsSvc.Block(ctx, action.EntryID, cards.BlockInput{
		CardUID: payload.CardUID,
		Reason:  cards.BlockReason(payload.Reason),
		StaffID: payload.StaffID,
	})
}

func (s *Service) dispatchVoid(ctx context.Context, action Action) error {
	var payload VoidPayload
	if err := s.decode(action, &payload); err != nil {
		return err
	}
	return s.pointsSvc.Void(ctx, payload.TargetEntryID, payload.StaffID)
}
