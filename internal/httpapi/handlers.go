package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
	"github.com/DaDevFox/task-systems/demand-core/internal/prediction"
	"github.com/DaDevFox/task-systems/demand-core/internal/repository"
	"github.com/DaDevFox/task-systems/demand-core/internal/service"
)

// Handler adapts the forecast service to gin
type Handler struct {
	svc    *service.ForecastService
	logger *logrus.Logger
}

// NewHandler constructs the HTTP handler adapter
func NewHandler(svc *service.ForecastService, logger *logrus.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

type predictDemandRequest struct {
	ItemID   string `json:"itemId"`
	UserID   string `json:"userId" binding:"required"`
	Category string `json:"category"`
}

// PredictDemandResponse is returned for a single-item prediction
type PredictDemandResponse struct {
	PredictedQuantity int                   `json:"predictedQuantity"`
	Source            prediction.Source     `json:"source"`
	Prediction        *domain.Prediction    `json:"prediction"`
	Item              *domain.InventoryItem `json:"item"`
}

// PredictDemand forecasts one item when itemId is given, otherwise every category of the user
func (h *Handler) PredictDemand(c *gin.Context) {
	var req predictDemandRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	if req.ItemID == "" {
		rows, err := h.svc.PredictUserDemand(c.Request.Context(), req.UserID)
		if err != nil {
			h.respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusOK, rows)
		return
	}

	result, err := h.svc.PredictItemDemand(c.Request.Context(), req.ItemID, req.UserID, req.Category)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, PredictDemandResponse{
		PredictedQuantity: result.Forecast.Quantity,
		Source:            result.Forecast.Source,
		Prediction:        result.Prediction,
		Item:              result.Item,
	})
}

// ListPredictions returns stored predictions for a user or item
func (h *Handler) ListPredictions(c *gin.Context) {
	filter := repository.PredictionFilter{
		ItemID: c.Query("itemId"),
		UserID: c.Query("userId"),
	}
	if state := c.Query("state"); state != "" {
		switch domain.PredictionState(state) {
		case domain.PredictionPending, domain.PredictionReconciled:
			filter.State = domain.PredictionState(state)
		default:
			respondError(c, http.StatusBadRequest, codeInvalidArgument, errors.New("state must be pending or reconciled"))
			return
		}
	}

	predictions, err := h.svc.ListPredictions(c.Request.Context(), filter)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, predictions)
}

// GetAccuracy summarises reconciled predictions; 204 when there are none
func (h *Handler) GetAccuracy(c *gin.Context) {
	summary, err := h.svc.GetAccuracy(c.Request.Context(), c.Query("itemId"), c.Query("userId"))
	if errors.Is(err, service.ErrNoReconciledPredictions) {
		c.Status(http.StatusNoContent)
		return
	}
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

type reconcileRequest struct {
	ActualQuantity *int `json:"actualQuantity" binding:"required"`
}

// ReconcilePrediction attaches an observed quantity to a pending prediction
func (h *Handler) ReconcilePrediction(c *gin.Context) {
	var req reconcileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	p, err := h.svc.ReconcilePrediction(c.Request.Context(), c.Param("id"), *req.ActualQuantity)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// ListItems returns the items of the user named by ?userId
func (h *Handler) ListItems(c *gin.Context) {
	items, err := h.svc.ListItems(c.Request.Context(), c.Query("userId"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, items)
}

type createItemRequest struct {
	UserID       string `json:"userId" binding:"required"`
	Name         string `json:"name" binding:"required"`
	Category     string `json:"category" binding:"required"`
	Quantity     int    `json:"quantity"`
	ReorderPoint int    `json:"reorderPoint"`
	Unit         string `json:"unit"`
	Location     string `json:"location"`
	Supplier     string `json:"supplier"`
	Notes        string `json:"notes"`
}

// CreateItem stores a new inventory item
func (h *Handler) CreateItem(c *gin.Context) {
	var req createItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	item, err := h.svc.CreateItem(c.Request.Context(), &domain.InventoryItem{
		UserID:       req.UserID,
		Name:         req.Name,
		Category:     domain.Category(req.Category),
		Quantity:     req.Quantity,
		ReorderPoint: req.ReorderPoint,
		Unit:         req.Unit,
		Location:     req.Location,
		Supplier:     req.Supplier,
		Notes:        req.Notes,
	})
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, item)
}

// GetItem returns one inventory item
func (h *Handler) GetItem(c *gin.Context) {
	item, err := h.svc.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// UpdateItem applies a partial update to an inventory item
func (h *Handler) UpdateItem(c *gin.Context) {
	var update service.ItemUpdate
	if err := c.ShouldBindJSON(&update); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	item, err := h.svc.UpdateItem(c.Request.Context(), c.Param("id"), update)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// DeleteItem removes an inventory item
func (h *Handler) DeleteItem(c *gin.Context) {
	if err := h.svc.DeleteItem(c.Request.Context(), c.Param("id")); err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ListSales returns a user's sales, optionally for one item
func (h *Handler) ListSales(c *gin.Context) {
	sales, err := h.svc.ListSales(c.Request.Context(), c.Query("userId"), c.Query("itemId"))
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, sales)
}

type recordSaleRequest struct {
	ItemID   string     `json:"itemId" binding:"required"`
	UserID   string     `json:"userId" binding:"required"`
	Quantity int        `json:"quantity"`
	Date     *time.Time `json:"date"`
}

// RecordSale stores a sale; a missing date means now
func (h *Handler) RecordSale(c *gin.Context) {
	var req recordSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	sale := &domain.SalesRecord{ItemID: req.ItemID, UserID: req.UserID, Quantity: req.Quantity}
	if req.Date != nil {
		sale.Date = *req.Date
	}

	stored, err := h.svc.RecordSale(c.Request.Context(), sale)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusCreated, stored)
}

// ListCategoryThresholds returns every category threshold
func (h *Handler) ListCategoryThresholds(c *gin.Context) {
	thresholds, err := h.svc.ListCategoryThresholds(c.Request.Context())
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, thresholds)
}

type thresholdRequest struct {
	Category         string `json:"category" binding:"required"`
	DefaultThreshold int    `json:"defaultThreshold"`
}

// SetCategoryThreshold creates or replaces a category threshold
func (h *Handler) SetCategoryThreshold(c *gin.Context) {
	var req thresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, codeInvalidRequest, err)
		return
	}

	threshold, err := h.svc.SetCategoryThreshold(c.Request.Context(), req.Category, req.DefaultThreshold)
	if err != nil {
		h.respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, threshold)
}
