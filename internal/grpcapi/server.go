package grpcapi

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
	"github.com/DaDevFox/task-systems/demand-core/internal/service"
)

const errResponseFormatting = "response formatting failed"

// ForecastServer exposes the forecast service to sibling services over gRPC
type ForecastServer struct {
	svc    *service.ForecastService
	logger *logrus.Logger
}

var _ ForecastServiceServer = (*ForecastServer)(nil)

// NewForecastServer creates a new gRPC adapter
func NewForecastServer(svc *service.ForecastService, logger *logrus.Logger) *ForecastServer {
	return &ForecastServer{svc: svc, logger: logger}
}

// PredictDemand takes {user_id, item_id?, category?}. With an item it returns the
// stored prediction; without one it returns {forecasts: [...]} per category.
func (s *ForecastServer) PredictDemand(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	userID := stringField(req, "user_id")
	if userID == "" {
		return nil, status.Errorf(codes.InvalidArgument, "user_id is required")
	}
	itemID := stringField(req, "item_id")

	if itemID == "" {
		rows, err := s.svc.PredictUserDemand(ctx, userID)
		if err != nil {
			return nil, s.toStatus(err)
		}
		forecasts := make([]interface{}, 0, len(rows))
		for _, row := range rows {
			forecasts = append(forecasts, categoryForecastFields(row))
		}
		return s.respond(map[string]interface{}{"forecasts": forecasts})
	}

	result, err := s.svc.PredictItemDemand(ctx, itemID, userID, stringField(req, "category"))
	if err != nil {
		return nil, s.toStatus(err)
	}

	fields := predictionFields(result.Prediction)
	fields["source"] = string(result.Forecast.Source)
	fields["item_status"] = string(result.Item.Status)
	return s.respond(fields)
}

// GetAccuracy takes {item_id, user_id?} and returns {mae, rmse, mape, accuracy, count}
func (s *ForecastServer) GetAccuracy(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	itemID := stringField(req, "item_id")
	if itemID == "" {
		return nil, status.Errorf(codes.InvalidArgument, "item_id is required")
	}

	summary, err := s.svc.GetAccuracy(ctx, itemID, stringField(req, "user_id"))
	if err != nil {
		return nil, s.toStatus(err)
	}

	return s.respond(map[string]interface{}{
		"mae":      summary.MAE,
		"rmse":     summary.RMSE,
		"mape":     summary.MAPE,
		"accuracy": summary.Accuracy,
		"count":    summary.Count,
	})
}

// ReconcilePrediction takes {prediction_id, actual_quantity}
func (s *ForecastServer) ReconcilePrediction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	id := stringField(req, "prediction_id")
	if id == "" {
		return nil, status.Errorf(codes.InvalidArgument, "prediction_id is required")
	}
	actual, err := intField(req, "actual_quantity")
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "%v", err)
	}

	p, err := s.svc.ReconcilePrediction(ctx, id, actual)
	if err != nil {
		return nil, s.toStatus(err)
	}
	return s.respond(predictionFields(p))
}

func (s *ForecastServer) respond(fields map[string]interface{}) (*structpb.Struct, error) {
	resp, err := structpb.NewStruct(fields)
	if err != nil {
		s.logger.WithError(err).Error("failed to build gRPC response")
		return nil, status.Errorf(codes.Internal, errResponseFormatting)
	}
	return resp, nil
}

func (s *ForecastServer) toStatus(err error) error {
	var (
		invalid           *domain.ValidationError
		unknownCategory   *domain.UnknownCategoryError
		itemNotFound      *domain.InventoryItemNotFoundError
		predictionMissing *domain.PredictionNotFoundError
	)

	switch {
	case errors.As(err, &invalid), errors.As(err, &unknownCategory):
		return status.Errorf(codes.InvalidArgument, "%v", err)
	case errors.As(err, &itemNotFound), errors.As(err, &predictionMissing):
		return status.Errorf(codes.NotFound, "%v", err)
	case errors.Is(err, service.ErrNoReconciledPredictions):
		return status.Errorf(codes.NotFound, "%v", err)
	case errors.Is(err, domain.ErrAlreadyReconciled):
		return status.Errorf(codes.FailedPrecondition, "%v", err)
	default:
		s.logger.WithError(err).Error("forecast request failed")
		return status.Errorf(codes.Internal, "internal error")
	}
}

func stringField(req *structpb.Struct, name string) string {
	if req == nil {
		return ""
	}
	return req.GetFields()[name].GetStringValue()
}

func intField(req *structpb.Struct, name string) (int, error) {
	v, ok := req.GetFields()[name]
	if !ok {
		return 0, fmt.Errorf("%s is required", name)
	}
	n, ok := v.GetKind().(*structpb.Value_NumberValue)
	if !ok {
		return 0, fmt.Errorf("%s must be a number", name)
	}
	if n.NumberValue != math.Trunc(n.NumberValue) {
		return 0, fmt.Errorf("%s must be a whole number", name)
	}
	return int(n.NumberValue), nil
}

func predictionFields(p *domain.Prediction) map[string]interface{} {
	fields := map[string]interface{}{
		"prediction_id":      p.ID,
		"item_id":            p.ItemID,
		"user_id":            p.UserID,
		"category":           string(p.Category),
		"predicted_quantity": p.PredictedQuantity,
		"prediction_date":    p.PredictionDate.Format(time.RFC3339),
		"target_date":        p.TargetDate.Format(time.RFC3339),
		"state":              string(p.State()),
	}
	if p.ActualQuantity != nil {
		fields["actual_quantity"] = *p.ActualQuantity
	}
	if m, ok := p.Metrics(); ok {
		fields["mae"] = m.MAE
		fields["rmse"] = m.RMSE
		fields["mape"] = m.MAPE
		fields["accuracy"] = m.Accuracy
	}
	return fields
}

func categoryForecastFields(row service.CategoryForecast) map[string]interface{} {
	fields := map[string]interface{}{
		"category":           string(row.Category),
		"predicted_quantity": row.PredictedQuantity,
		"source":             string(row.Source),
		"records":            row.Records,
	}
	for name, v := range map[string]*float64{"mae": row.MAE, "rmse": row.RMSE, "mape": row.MAPE, "accuracy": row.Accuracy} {
		if v != nil {
			fields[name] = *v
		}
	}
	return fields
}
