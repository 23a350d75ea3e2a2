package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// Category is the closed set of product categories the forecaster knows about.
// Declaration order matters: it defines the normalized category feature.
type Category string

const (
	CategoryLivingRoom Category = "Living Room"
	CategoryBedroom    Category = "Bedroom"
	CategoryDiningRoom Category = "Dining Room"
	CategoryOffice     Category = "Office"
)

var categories = []Category{
	CategoryLivingRoom,
	CategoryBedroom,
	CategoryDiningRoom,
	CategoryOffice,
}

// Categories returns the known categories in index order
func Categories() []Category {
	out := make([]Category, len(categories))
	copy(out, categories)
	return out
}

// ParseCategory resolves a raw label to a Category, rejecting anything outside the enumeration
func ParseCategory(raw string) (Category, error) {
	trimmed := strings.TrimSpace(raw)
	for _, c := range categories {
		if string(c) == trimmed {
			return c, nil
		}
	}
	return "", &UnknownCategoryError{Category: raw}
}

// Index returns the category's position in the enumeration
func (c Category) Index() (int, error) {
	for i, known := range categories {
		if known == c {
			return i, nil
		}
	}
	return -1, &UnknownCategoryError{Category: string(c)}
}

// Normalized returns Index()/(len-1), always within [0,1]
func (c Category) Normalized() (float64, error) {
	idx, err := c.Index()
	if err != nil {
		return 0, err
	}
	return float64(idx) / float64(len(categories)-1), nil
}

// UnknownCategoryError is returned for category labels outside the enumeration
type UnknownCategoryError struct {
	Category string
}

func (e *UnknownCategoryError) Error() string {
	return fmt.Sprintf("unknown category %q", e.Category)
}

// MaxQuantity bounds every quantity a caller can record
const MaxQuantity = 1_000_000

// SalesRecord is one recorded sale of an item. Records are immutable once stored.
type SalesRecord struct {
	ID       string    `json:"id"`
	ItemID   string    `json:"itemId"`
	UserID   string    `json:"userId"`
	Quantity int       `json:"quantity"`
	Date     time.Time `json:"date"`
}

// Validate checks a record before it is stored
func (r *SalesRecord) Validate() error {
	if r.ItemID == "" {
		return &ValidationError{Field: "item_id", Reason: "is required"}
	}
	if r.UserID == "" {
		return &ValidationError{Field: "user_id", Reason: "is required"}
	}
	if r.Quantity < 0 {
		return &ValidationError{Field: "quantity", Reason: "must not be negative"}
	}
	if r.Quantity > MaxQuantity {
		return &ValidationError{Field: "quantity", Reason: fmt.Sprintf("must not exceed %d", MaxQuantity)}
	}
	return nil
}

// SortByDate returns a copy of records in chronological order; equal dates keep their input order
func SortByDate(records []SalesRecord) []SalesRecord {
	sorted := make([]SalesRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})
	return sorted
}

// Quantities extracts the quantity column of records
func Quantities(records []SalesRecord) []int {
	out := make([]int, len(records))
	for i, r := range records {
		out[i] = r.Quantity
	}
	return out
}

// CategoryThreshold is the default reorder quantity used when a category has no usable history
type CategoryThreshold struct {
	ID               string   `json:"id"`
	Category         Category `json:"category"`
	DefaultThreshold int      `json:"defaultThreshold"`
}

// DefaultCategoryThresholds are seeded into an empty store
func DefaultCategoryThresholds() []CategoryThreshold {
	return []CategoryThreshold{
		{Category: CategoryLivingRoom, DefaultThreshold: 5},
		{Category: CategoryBedroom, DefaultThreshold: 10},
		{Category: CategoryDiningRoom, DefaultThreshold: 6},
		{Category: CategoryOffice, DefaultThreshold: 8},
	}
}
