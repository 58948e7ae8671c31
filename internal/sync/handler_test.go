package sync

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/buildpoint/buildpoint/internal/points"
)

func newTestHandler(t *testing.T, maxActions int) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(&fakePoints{}, &fakeCards{}, &fakeProcessed{seen: map[string]bool{}}, testRates(), nil)
	h := NewHandler(logger, svc, maxActions)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return r
}

func postSync(t *testing.T, router http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/sync", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestSyncEndpointReturnsVerdicts(t *testing.T) {
	router := newTestHandler(t, 50)

	rec := postSync(t, router, syncRequest{Actions: []Action{
		{Type: ActionCredit, EntryID: "a1", Payload: payload(t, CreditPayload{CardUID: "C-1", Category: points.CategoryHardware, Amount: decimal.NewFromInt(500), StaffID: 1})},
	}})
	require.Equal(t, http.StatusOK, rec.Code)

	var result BatchResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	require.Equal(t, 1, result.Processed)
	require.Equal(t, 1, result.Successful)
}

func TestSyncEndpointCapsBatchSize(t *testing.T) {
	router := newTestHandler(t, 3)

	actions := make([]Action, 4)
	for i := range actions {
		actions[i] = Action{
			Type:    ActionCredit,
			EntryID: fmt.Sprintf("a%d", i),
			Payload: payload(t, CreditPayload{CardUID: "C-1", Category: points.CategoryHardware, Amount: decimal.NewFromInt(500), StaffID: 1}),
		}
	}
	rec := postSync(t, router, syncRequest{Actions: actions})
	require.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestSyncEndpointRejectsEmptyBatch(t *testing.T) {
	router := newTestHandler(t, 50)

	rec := postSync(t, router, syncRequest{})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}
