package api_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/stretchr/testify/require"

	"github.com/punchamoorthee/pointops/internal/api"
	"github.com/punchamoorthee/pointops/internal/models"
	"github.com/punchamoorthee/pointops/internal/pointkey"
	"github.com/punchamoorthee/pointops/internal/service"
	"github.com/punchamoorthee/pointops/internal/store"
)

func newTestServer() *httptest.Server {
	st := store.NewMemory()
	svc := service.NewPointService(st, service.NewConfigProvider(st), pointkey.NewTimeSequence())
	handler := api.NewHandler(svc)

	r := mux.NewRouter()
	r.Use(api.RequestID, api.Logging)
	r.HandleFunc("/health", handler.HealthCheckHandler)

	points := r.PathPrefix("/api/v1/points").Subrouter()
	points.HandleFunc("/earn", handler.EarnHandler).Methods("POST")
	points.HandleFunc("/cancel-earn", handler.CancelEarnHandler).Methods("POST")
	points.HandleFunc("/use", handler.UseHandler).Methods("POST")
	points.HandleFunc("/cancel-use", handler.CancelUseHandler).Methods("POST")
	points.HandleFunc("/balance/{userId}", handler.BalanceHandler).Methods("GET")
	points.HandleFunc("/history/{userId}", handler.HistoryHandler).Methods("GET")

	return httptest.NewServer(r)
}

func postJSON(t *testing.T, base, path, idempotencyKey string, payload any) (*http.Response, []byte) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, base+path, bytes.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func getJSON(t *testing.T, base, path string, out any) *http.Response {
	t.Helper()
	resp, err := http.Get(base + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	return resp
}

func errorCode(t *testing.T, raw []byte) string {
	t.Helper()
	var payload models.ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &payload))
	return payload.Code
}

func TestEarnThenBalanceRoundTrip(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, raw := postJSON(t, srv.URL, "/api/v1/points/earn", uuid.NewString(),
		models.EarnRequest{UserID: "user-1", Amount: 1000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var earned models.EarnResponse
	require.NoError(t, json.Unmarshal(raw, &earned))
	require.Equal(t, int64(1000), earned.TotalBalance)

	var balance models.BalanceResponse
	getJSON(t, srv.URL, "/api/v1/points/balance/user-1", &balance)
	require.Equal(t, int64(1000), balance.TotalBalance)
	require.Len(t, balance.AvailablePoints, 1)
	require.Equal(t, earned.PointKey, balance.AvailablePoints[0].PointKey)
}

func TestMutationRequiresIdempotencyKey(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	resp, raw := postJSON(t, srv.URL, "/api/v1/points/earn", "",
		models.EarnRequest{UserID: "user-1", Amount: 1000})
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "MISSING_IDEMPOTENCY_KEY", errorCode(t, raw))
}

func TestMalformedBodyRejected(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/points/earn",
		bytes.NewReader([]byte(`{"userId": "user-1", "amount": `)))
	require.NoError(t, err)
	req.Header.Set("Idempotency-Key", uuid.NewString())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "MALFORMED_REQUEST", errorCode(t, raw))
}

func TestReplayReturnsIdenticalBody(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	key := uuid.NewString()
	payload := models.EarnRequest{UserID: "user-1", Amount: 500}

	first, firstBody := postJSON(t, srv.URL, "/api/v1/points/earn", key, payload)
	require.Equal(t, http.StatusOK, first.StatusCode)

	second, secondBody := postJSON(t, srv.URL, "/api/v1/points/earn", key, payload)
	require.Equal(t, http.StatusOK, second.StatusCode)
	require.Equal(t, firstBody, secondBody)

	var balance models.BalanceResponse
	getJSON(t, srv.URL, "/api/v1/points/balance/user-1", &balance)
	require.Equal(t, int64(500), balance.TotalBalance)
}

func TestBusinessErrorMapping(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	t.Run("unknown point key maps to 404", func(t *testing.T) {
		resp, raw := postJSON(t, srv.URL, "/api/v1/points/cancel-earn", uuid.NewString(),
			models.CancelEarnRequest{PointKey: "PT0000000000000000000"})
		require.Equal(t, http.StatusNotFound, resp.StatusCode)
		require.Equal(t, "POINT_KEY_NOT_FOUND", errorCode(t, raw))
	})

	t.Run("insufficient balance maps to 400", func(t *testing.T) {
		resp, raw := postJSON(t, srv.URL, "/api/v1/points/use", uuid.NewString(),
			models.UseRequest{UserID: "broke-user", OrderNumber: "order-1", Amount: 100})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "INSUFFICIENT_POINT_BALANCE", errorCode(t, raw))
	})

	t.Run("invalid amount maps to 400", func(t *testing.T) {
		resp, raw := postJSON(t, srv.URL, "/api/v1/points/earn", uuid.NewString(),
			models.EarnRequest{UserID: "user-1", Amount: -5})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
		require.Equal(t, "INVALID_AMOUNT", errorCode(t, raw))
	})
}

func TestUseAndCancelUseOverHTTP(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	postJSON(t, srv.URL, "/api/v1/points/earn", uuid.NewString(),
		models.EarnRequest{UserID: "user-1", Amount: 1000})

	resp, raw := postJSON(t, srv.URL, "/api/v1/points/use", uuid.NewString(),
		models.UseRequest{UserID: "user-1", OrderNumber: "order-1", Amount: 400})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var used models.UseResponse
	require.NoError(t, json.Unmarshal(raw, &used))
	require.Equal(t, int64(600), used.RemainingBalance)

	resp, raw = postJSON(t, srv.URL, "/api/v1/points/cancel-use", uuid.NewString(),
		models.CancelUseRequest{UsePointKey: used.UsePointKey, Amount: 400})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var canceled models.CancelUseResponse
	require.NoError(t, json.Unmarshal(raw, &canceled))
	require.Equal(t, int64(1000), canceled.TotalBalance)

	var history models.HistoryResponse
	getJSON(t, srv.URL, "/api/v1/points/history/user-1?page=0&size=10", &history)
	require.Equal(t, int64(3), history.Page.TotalElements)
	require.Equal(t, models.TypeCancelUse, history.Transactions[0].Type)
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer()
	defer srv.Close()

	t.Run("generated when absent", func(t *testing.T) {
		resp, err := http.Get(srv.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.NotEmpty(t, resp.Header.Get("X-Request-Id"))
	})

	t.Run("echoed when supplied", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodGet, srv.URL+"/health", nil)
		require.NoError(t, err)
		req.Header.Set("X-Request-Id", "req-abc-123")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, "req-abc-123", resp.Header.Get("X-Request-Id"))
	})

	t.Run("propagated into error payloads", func(t *testing.T) {
		body, err := json.Marshal(models.UseRequest{UserID: "ghost", OrderNumber: "o", Amount: 10})
		require.NoError(t, err)
		req, err := http.NewRequest(http.MethodPost, srv.URL+"/api/v1/points/use", bytes.NewReader(body))
		require.NoError(t, err)
		req.Header.Set("Idempotency-Key", uuid.NewString())
		req.Header.Set("X-Request-Id", "req-err-456")

		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		defer resp.Body.Close()

		var payload models.ErrorResponse
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&payload))
		require.Equal(t, "req-err-456", payload.RequestID)
	})
}
