package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// NewRouter wires the gin engine with the demand routes and middlewares
func NewRouter(handler *Handler, logger *logrus.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api")
	{
		api.POST("/predict-demand", handler.PredictDemand)

		api.GET("/predictions", handler.ListPredictions)
		api.GET("/predictions/accuracy", handler.GetAccuracy)
		api.POST("/predictions/:id/reconcile", handler.ReconcilePrediction)

		api.GET("/inventory", handler.ListItems)
		api.POST("/inventory", handler.CreateItem)
		api.GET("/inventory/:id", handler.GetItem)
		api.PATCH("/inventory/:id", handler.UpdateItem)
		api.DELETE("/inventory/:id", handler.DeleteItem)

		api.GET("/sales", handler.ListSales)
		api.POST("/sales", handler.RecordSale)

		api.GET("/category-thresholds", handler.ListCategoryThresholds)
		api.POST("/category-thresholds", handler.SetCategoryThreshold)
	}

	logger.Debug("router initialized")
	return r
}

func requestLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		entry := logger.WithFields(logrus.Fields{
			"method":    c.Request.Method,
			"path":      c.FullPath(),
			"status":    c.Writer.Status(),
			"duration":  time.Since(start),
			"client_ip": c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request completed")
			return
		}
		entry.Info("request completed")
	}
}
