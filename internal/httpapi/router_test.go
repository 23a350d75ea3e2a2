package httpapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
	"github.com/DaDevFox/task-systems/demand-core/internal/httpapi"
	"github.com/DaDevFox/task-systems/demand-core/testsupport"
)

const testUserID = "user-1"

func startServer(t *testing.T) *testsupport.DemandCoreTestServer {
	t.Helper()
	server, err := testsupport.StartDemandCoreTestServer(t)
	require.NoError(t, err)
	return server
}

func doJSON(t *testing.T, router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func createItem(t *testing.T, router http.Handler, name, category string, quantity, reorderPoint int) domain.InventoryItem {
	t.Helper()
	rec := doJSON(t, router, http.MethodPost, "/api/inventory", map[string]interface{}{
		"userId":       testUserID,
		"name":         name,
		"category":     category,
		"quantity":     quantity,
		"reorderPoint": reorderPoint,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return decode[domain.InventoryItem](t, rec)
}

func TestHealthz(t *testing.T) {
	server := startServer(t)

	rec := doJSON(t, server.Router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestPredictDemandForItem(t *testing.T) {
	server := startServer(t)
	item := createItem(t, server.Router, "Bed Frame", "Bedroom", 3, 2)

	rec := doJSON(t, server.Router, http.MethodPost, "/api/predict-demand", map[string]string{
		"itemId":   item.ID,
		"userId":   testUserID,
		"category": "Bedroom",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[httpapi.PredictDemandResponse](t, rec)
	assert.Equal(t, 10, resp.PredictedQuantity)
	assert.Equal(t, "category_threshold", string(resp.Source))
	require.NotNil(t, resp.Prediction)
	assert.Equal(t, item.ID, resp.Prediction.ItemID)
	require.NotNil(t, resp.Item.Demand)
	assert.Equal(t, 10, *resp.Item.Demand)
}

func TestPredictDemandForUser(t *testing.T) {
	server := startServer(t)
	createItem(t, server.Router, "Desk", "Office", 10, 4)

	rec := doJSON(t, server.Router, http.MethodPost, "/api/predict-demand", map[string]string{"userId": testUserID})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rows := decode[[]map[string]interface{}](t, rec)
	require.Len(t, rows, len(domain.Categories()))
	for _, row := range rows {
		assert.Contains(t, row, "predictedQuantity")
		assert.Nil(t, row["mae"])
	}
}

func TestPredictDemandErrors(t *testing.T) {
	server := startServer(t)
	item := createItem(t, server.Router, "Sofa", "Living Room", 3, 2)

	tests := []struct {
		name   string
		body   map[string]string
		status int
		code   string
	}{
		{"missing user", map[string]string{"itemId": item.ID}, http.StatusBadRequest, "invalid_request"},
		{"unknown category", map[string]string{"itemId": item.ID, "userId": testUserID, "category": "Garage"}, http.StatusBadRequest, "invalid_argument"},
		{"missing item", map[string]string{"itemId": "missing", "userId": testUserID}, http.StatusNotFound, "not_found"},
		{"other user's item", map[string]string{"itemId": item.ID, "userId": "user-2"}, http.StatusNotFound, "not_found"},
		{"category mismatch", map[string]string{"itemId": item.ID, "userId": testUserID, "category": "Office"}, http.StatusBadRequest, "invalid_argument"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doJSON(t, server.Router, http.MethodPost, "/api/predict-demand", tt.body)
			assert.Equal(t, tt.status, rec.Code)
			envelope := decode[httpapi.ErrorEnvelope](t, rec)
			assert.Equal(t, tt.code, envelope.Error.Code)
		})
	}
}

func TestReconcileAndAccuracy(t *testing.T) {
	server := startServer(t)
	item := createItem(t, server.Router, "Armchair", "Living Room", 9, 3)
	accuracyPath := "/api/predictions/accuracy?itemId=" + item.ID + "&userId=" + testUserID

	rec := doJSON(t, server.Router, http.MethodGet, accuracyPath, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, server.Router, http.MethodPost, "/api/predict-demand", map[string]string{"itemId": item.ID, "userId": testUserID})
	require.Equal(t, http.StatusOK, rec.Code)
	predicted := decode[httpapi.PredictDemandResponse](t, rec)
	require.Equal(t, 5, predicted.PredictedQuantity)

	reconcilePath := "/api/predictions/" + predicted.Prediction.ID + "/reconcile"
	rec = doJSON(t, server.Router, http.MethodPost, reconcilePath, map[string]int{"actualQuantity": 8})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	reconciled := decode[domain.Prediction](t, rec)
	assert.Equal(t, 8, *reconciled.ActualQuantity)

	rec = doJSON(t, server.Router, http.MethodGet, accuracyPath, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"mae":3,"rmse":3,"mape":37.5,"accuracy":62.5,"count":1}`, rec.Body.String())

	rec = doJSON(t, server.Router, http.MethodPost, reconcilePath, map[string]int{"actualQuantity": 9})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, server.Router, http.MethodPost, reconcilePath, map[string]int{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server.Router, http.MethodGet, "/api/predictions?itemId="+item.ID+"&state=reconciled", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Prediction](t, rec), 1)

	rec = doJSON(t, server.Router, http.MethodGet, "/api/predictions", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInventoryEndpoints(t *testing.T) {
	server := startServer(t)
	item := createItem(t, server.Router, "Dining Chair", "Dining Room", 7, 5)
	assert.Equal(t, domain.StatusWarning, item.Status)

	rec := doJSON(t, server.Router, http.MethodGet, "/api/inventory/"+item.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, item.Name, decode[domain.InventoryItem](t, rec).Name)

	rec = doJSON(t, server.Router, http.MethodPatch, "/api/inventory/"+item.ID, map[string]int{"quantity": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, domain.StatusDanger, decode[domain.InventoryItem](t, rec).Status)

	rec = doJSON(t, server.Router, http.MethodGet, "/api/inventory?userId="+testUserID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.InventoryItem](t, rec), 1)

	rec = doJSON(t, server.Router, http.MethodGet, "/api/inventory", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server.Router, http.MethodGet, "/api/inventory/missing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server.Router, http.MethodPost, "/api/inventory", map[string]interface{}{
		"userId": testUserID, "name": "Stool", "category": "Garage",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, server.Router, http.MethodDelete, "/api/inventory/"+item.ID, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = doJSON(t, server.Router, http.MethodGet, "/api/inventory/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server.Router, http.MethodDelete, "/api/inventory/"+item.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSalesEndpoints(t *testing.T) {
	server := startServer(t)
	item := createItem(t, server.Router, "Desk", "Office", 10, 4)

	for _, body := range []map[string]interface{}{
		{"itemId": item.ID, "userId": testUserID, "quantity": 3, "date": "2024-02-01T00:00:00Z"},
		{"itemId": item.ID, "userId": testUserID, "quantity": 2, "date": "2024-01-01T00:00:00Z"},
	} {
		rec := doJSON(t, server.Router, http.MethodPost, "/api/sales", body)
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	}

	rec := doJSON(t, server.Router, http.MethodGet, "/api/sales?userId="+testUserID+"&itemId="+item.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	sales := decode[[]domain.SalesRecord](t, rec)
	assert.Equal(t, []int{2, 3}, domain.Quantities(sales))

	rec = doJSON(t, server.Router, http.MethodPost, "/api/sales", map[string]interface{}{"itemId": "missing", "userId": testUserID, "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, server.Router, http.MethodPost, "/api/sales", map[string]interface{}{"itemId": item.ID, "userId": "user-2", "quantity": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCategoryThresholdEndpoints(t *testing.T) {
	server := startServer(t)

	rec := doJSON(t, server.Router, http.MethodGet, "/api/category-thresholds", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.CategoryThreshold](t, rec), len(domain.Categories()))

	rec = doJSON(t, server.Router, http.MethodPost, "/api/category-thresholds", map[string]interface{}{"category": "Office", "defaultThreshold": 12})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 12, decode[domain.CategoryThreshold](t, rec).DefaultThreshold)

	rec = doJSON(t, server.Router, http.MethodPost, "/api/category-thresholds", map[string]interface{}{"category": "Office", "defaultThreshold": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
