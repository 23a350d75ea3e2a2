package events

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/types/known/anypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"github.com/DaDevFox/task-systems/demand-core/internal/domain"
)

// EventType names a kind of domain event
type EventType string

const (
	PredictionCreated    EventType = "prediction.created"
	PredictionReconciled EventType = "prediction.reconciled"
	ItemStatusChanged    EventType = "item.status_changed"
	SaleRecorded         EventType = "sale.recorded"
)

// Event is the envelope handlers receive. Payload wraps a structpb.Struct.
type Event struct {
	ID            string
	Type          EventType
	SourceService string
	Timestamp     *timestamppb.Timestamp
	Payload       *anypb.Any
}

// Data unpacks the payload
func (e *Event) Data() (*structpb.Struct, error) {
	data := &structpb.Struct{}
	if err := e.Payload.UnmarshalTo(data); err != nil {
		return nil, fmt.Errorf("failed to unpack %s payload: %w", e.Type, err)
	}
	return data, nil
}

// EventHandler defines the interface for handling events
type EventHandler func(ctx context.Context, event *Event) error

// EventBus provides in-memory pub/sub functionality
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]EventHandler
	serviceName string
	logger      *logrus.Logger
	inflight    sync.WaitGroup
}

// NewEventBus creates a new event bus for a service
func NewEventBus(serviceName string, logger *logrus.Logger) *EventBus {
	if logger == nil {
		logger = logrus.New()
	}
	return &EventBus{
		subscribers: make(map[EventType][]EventHandler),
		serviceName: serviceName,
		logger:      logger,
	}
}

// Subscribe registers a handler for a specific event type
func (eb *EventBus) Subscribe(eventType EventType, handler EventHandler) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscribers[eventType] = append(eb.subscribers[eventType], handler)
}

// Publish sends an event to all registered handlers
func (eb *EventBus) Publish(ctx context.Context, eventType EventType, payload map[string]interface{}) error {
	eb.mu.RLock()
	handlers := eb.subscribers[eventType]
	eb.mu.RUnlock()

	if len(handlers) == 0 {
		return nil // No subscribers, which is fine
	}

	data, err := structpb.NewStruct(payload)
	if err != nil {
		return fmt.Errorf("failed to convert payload to Struct: %w", err)
	}
	payloadAny, err := anypb.New(data)
	if err != nil {
		return fmt.Errorf("failed to convert payload to Any: %w", err)
	}

	event := &Event{
		ID:            uuid.New().String(),
		Type:          eventType,
		SourceService: eb.serviceName,
		Timestamp:     timestamppb.Now(),
		Payload:       payloadAny,
	}

	// handlers may outlive the publishing request
	handlerCtx := context.WithoutCancel(ctx)
	for _, handler := range handlers {
		eb.inflight.Add(1)
		go func(h EventHandler) {
			defer eb.inflight.Done()
			if err := h(handlerCtx, event); err != nil {
				eb.logger.WithError(err).WithFields(logrus.Fields{
					"event_id":   event.ID,
					"event_type": event.Type,
				}).Error("event handler failed")
			}
		}(handler)
	}

	return nil
}

// Wait blocks until every handler started so far has returned
func (eb *EventBus) Wait() {
	eb.inflight.Wait()
}

// Convenience methods for publishing common events

// PublishPredictionCreated announces a new pending prediction
func (eb *EventBus) PublishPredictionCreated(ctx context.Context, p *domain.Prediction) error {
	return eb.Publish(ctx, PredictionCreated, map[string]interface{}{
		"prediction_id":      p.ID,
		"item_id":            p.ItemID,
		"user_id":            p.UserID,
		"category":           string(p.Category),
		"predicted_quantity": p.PredictedQuantity,
		"target_date":        p.TargetDate.Format(time.RFC3339),
	})
}

// PublishPredictionReconciled announces that a prediction received its actual quantity
func (eb *EventBus) PublishPredictionReconciled(ctx context.Context, p *domain.Prediction) error {
	payload := map[string]interface{}{
		"prediction_id":      p.ID,
		"item_id":            p.ItemID,
		"user_id":            p.UserID,
		"predicted_quantity": p.PredictedQuantity,
	}
	if p.ActualQuantity != nil {
		payload["actual_quantity"] = *p.ActualQuantity
	}
	if m, ok := p.Metrics(); ok {
		payload["mae"] = m.MAE
		payload["accuracy"] = m.Accuracy
	}
	return eb.Publish(ctx, PredictionReconciled, payload)
}

// PublishItemStatusChanged publishes an item status transition
func (eb *EventBus) PublishItemStatusChanged(ctx context.Context, item *domain.InventoryItem, previous domain.Status) error {
	return eb.Publish(ctx, ItemStatusChanged, map[string]interface{}{
		"item_id":         item.ID,
		"item_name":       item.Name,
		"user_id":         item.UserID,
		"previous_status": string(previous),
		"status":          string(item.Status),
		"quantity":        item.Quantity,
		"reorder_point":   item.ReorderPoint,
	})
}

// PublishSaleRecorded announces a stored sale
func (eb *EventBus) PublishSaleRecorded(ctx context.Context, sale *domain.SalesRecord, category domain.Category) error {
	return eb.Publish(ctx, SaleRecorded, map[string]interface{}{
		"sale_id":  sale.ID,
		"item_id":  sale.ItemID,
		"user_id":  sale.UserID,
		"category": string(category),
		"quantity": sale.Quantity,
		"date":     sale.Date.Format(time.RFC3339),
	})
}
