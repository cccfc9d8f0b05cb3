package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"purchase-api/internal/config"
	"purchase-api/internal/purchasing"
	"purchase-api/internal/store/fake"
)

func setupRouter(t *testing.T, apiKey string) (*gin.Engine, *purchasing.Service, *fake.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	config.AppConfig = &config.Config{APIKey: apiKey}

	store := fake.New()
	store.SetAutoComplete(true)

	svc := purchasing.NewService(store)
	require.NoError(t, svc.Initialize(context.Background(),
		purchasing.ProductDef{ID: "gold_100", Kind: purchasing.Consumable},
		purchasing.ProductDef{ID: "premium", Kind: purchasing.NonConsumable},
	))

	r := gin.New()
	SetupRoutes(r, &Handlers{Service: svc, Ingest: store})
	return r, svc, store
}

func doJSON(r *gin.Engine, method, path string, payload interface{}) *httptest.ResponseRecorder {
	var body bytes.Buffer
	if payload != nil {
		_ = json.NewEncoder(&body).Encode(payload)
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeData(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp struct {
		Success bool                   `json:"success"`
		Data    map[string]interface{} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.True(t, resp.Success)
	return resp.Data
}

func TestHealthEndpoint(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"ok"`)
}

func TestListProducts(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Data []ProductView `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, "gold_100", resp.Data[0].ID)
	assert.Equal(t, "ready", resp.Data[0].Status)
}

func TestGetProductNotFound(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodGet, "/api/products/missing", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseEndpointSuccess(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodPost, "/api/purchase", gin.H{"product_id": "gold_100"})
	require.Equal(t, http.StatusOK, w.Code)

	data := decodeData(t, w)
	assert.Equal(t, "gold_100", data["product_id"])
	assert.Equal(t, "successful", data["state"])
	assert.NotEmpty(t, data["id"])
}

func TestPurchaseEndpointCallerTransactionID(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodPost, "/api/purchase", gin.H{
		"product_id":     "premium",
		"transaction_id": "order-42",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "order-42", decodeData(t, w)["id"])
}

func TestPurchaseEndpointUnknownProduct(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodPost, "/api/purchase", gin.H{"product_id": "missing"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPurchaseEndpointInvalidBody(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodPost, "/api/purchase", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRestoreEndpoint(t *testing.T) {
	r, _, store := setupRouter(t, "")

	w := doJSON(r, http.MethodPost, "/api/restore", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, store.Restores())
}

func TestAPIKeyEnforcement(t *testing.T) {
	r, _, _ := setupRouter(t, "top-secret")

	w := doJSON(r, http.MethodGet, "/api/products", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/products", nil)
	req.Header.Set("X-API-Key", "top-secret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/products?api_key=top-secret", nil)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	// The store webhook stays open regardless of the client key.
	w = doJSON(r, http.MethodPost, "/api/store/notifications", gin.H{
		"kind": "purchased", "store_id": "premium",
	})
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestStoreNotificationDrivesOrchestrator(t *testing.T) {
	r, svc, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodPost, "/api/store/notifications", gin.H{
		"notification_id": "n-1",
		"kind":            "purchased",
		"store_id":        "premium",
		"receipt":         "receipt-data",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"accepted":true`)

	premium, err := svc.FindProduct("premium")
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return premium.Status() == purchasing.StatusPurchased
	}, time.Second, time.Millisecond)
}

func TestStoreNotificationRejectsUnknownKind(t *testing.T) {
	r, _, _ := setupRouter(t, "")

	w := doJSON(r, http.MethodPost, "/api/store/notifications", gin.H{
		"kind": "refunded", "store_id": "premium",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
