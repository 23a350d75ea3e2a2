package domain

import (
	"fmt"
	"time"
)

// InventoryItem is the stock record an item's status and demand are derived for
type InventoryItem struct {
	ID           string    `json:"id"`
	UserID       string    `json:"userId"`
	Name         string    `json:"name"`
	Category     Category  `json:"category"`
	Quantity     int       `json:"quantity"`
	ReorderPoint int       `json:"reorderPoint"`
	Unit         string    `json:"unit,omitempty"`
	Location     string    `json:"location,omitempty"`
	Supplier     string    `json:"supplier,omitempty"`
	Notes        string    `json:"notes,omitempty"`
	Status       Status    `json:"status"`
	Demand       *int      `json:"demand,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// RefreshStatus recomputes the derived status from quantity and reorder point.
// It reports whether the status changed.
func (i *InventoryItem) RefreshStatus() bool {
	next := ClassifyStatus(float64(i.Quantity), float64(i.ReorderPoint))
	changed := next != i.Status
	i.Status = next
	return changed
}

// SetDemand records the latest predicted quantity for the item
func (i *InventoryItem) SetDemand(quantity int) {
	i.Demand = &quantity
	i.UpdatedAt = time.Now()
}

// IsLowStock checks if the item is at or below its reorder point
func (i *InventoryItem) IsLowStock() bool {
	return ClassifyStatus(float64(i.Quantity), float64(i.ReorderPoint)) == StatusDanger
}

// Validate checks the fields a caller must supply
func (i *InventoryItem) Validate() error {
	if i.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if i.Name == "" {
		return &ValidationError{Field: "name", Reason: "is required"}
	}
	if _, err := ParseCategory(string(i.Category)); err != nil {
		return err
	}
	if i.Quantity < 0 || i.Quantity > MaxQuantity {
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must be between 0 and %d", MaxQuantity)}
	}
	if i.ReorderPoint < 0 || i.ReorderPoint > MaxQuantity {
		return &ValidationError{Field: "reorder_point", Reason: fmt.Sprintf("must be between 0 and %d", MaxQuantity)}
	}
	return nil
}

// InventoryItemNotFoundError represents an error when an item is not found
type InventoryItemNotFoundError struct {
	ID string
}

func (e *InventoryItemNotFoundError) Error() string {
	return fmt.Sprintf("inventory item with ID '%s' not found", e.ID)
}

// ValidationError marks caller input that can never succeed as submitted
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}
