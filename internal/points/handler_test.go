package points

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/buildpoint/buildpoint/internal/cards"
	"github.com/buildpoint/buildpoint/internal/platform/httpx"
)

func newTestRouter(t *testing.T) (http.Handler, *memoryRepo) {
	t.Helper()
	svc, repo, _ := newTestService(t)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := NewHandler(logger, svc, map[Category]decimal.Decimal{
		CategoryHardware: decimal.NewFromInt(100),
		CategoryPlywood:  decimal.NewFromInt(200),
	})
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r, repo
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCreditEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addCard("C-1", 1, cards.StatusActive)

	rec := doJSON(t, router, http.MethodPost, "/cards/C-1/points/credit", map[string]any{
		"entryId": "e1", "category": "HARDWARE", "amount": "250", "staffId": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var mv Movement
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mv))
	require.Equal(t, int64(2), mv.PointsDelta)
	require.Equal(t, int64(2), mv.NewBalance)
}

func TestCreditEndpointBusinessErrorCarriesCode(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addCard("C-1", 1, cards.StatusActive)

	rec := doJSON(t, router, http.MethodPost, "/cards/C-1/points/credit", map[string]any{
		"entryId": "e1", "category": "HARDWARE", "amount": "50", "staffId": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "INSUFFICIENT_AMOUNT", problem.Code)
}

func TestCreditEndpointUnknownCardIs404(t *testing.T) {
	router, _ := newTestRouter(t)

	rec := doJSON(t, router, http.MethodPost, "/cards/C-missing/points/credit", map[string]any{
		"entryId": "e1", "category": "HARDWARE", "amount": "250", "staffId": 1,
	})
	require.Equal(t, http.StatusNotFound, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "CARD_NOT_FOUND", problem.Code)
}

func TestCreditEndpointValidation(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addCard("C-1", 1, cards.StatusActive)

	rec := doJSON(t, router, http.MethodPost, "/cards/C-1/points/credit", map[string]any{
		"entryId": "e1", "category": "CEMENT", "amount": "250", "staffId": 1,
	})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDebitEndpointInsufficientBalance(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addCard("C-1", 1, cards.StatusActive)

	rec := doJSON(t, router, http.MethodPost, "/cards/C-1/points/debit", map[string]any{
		"entryId": "d1", "category": "HARDWARE", "points": 5, "staffId": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "INSUFFICIENT_BALANCE", problem.Code)
}

func TestBalanceEndpoint(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addCard("C-1", 1, cards.StatusActive)

	rec := doJSON(t, router, http.MethodPost, "/cards/C-1/points/credit", map[string]any{
		"entryId": "e1", "category": "PLYWOOD", "amount": "600", "staffId": 1,
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodGet, "/cards/C-1/balance", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var balances CardBalances
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &balances))
	require.Equal(t, int64(3), balances.Plywood)
	require.Equal(t, int64(0), balances.Hardware)
}

func TestTransferEndpointFranchiseeMismatch(t *testing.T) {
	router, repo := newTestRouter(t)
	repo.addCard("C-old", 1, cards.StatusActive)
	repo.addCard("C-new", 2, cards.StatusActive)

	rec := doJSON(t, router, http.MethodPost, "/cards/transfer", map[string]any{
		"oldCardUid": "C-old", "newCardUid": "C-new", "staffId": 1,
	})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var problem httpx.ProblemDetail
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &problem))
	require.Equal(t, "FRANCHISEE_MISMATCH", problem.Code)
}
