package domain

// Status is the three-level stock health shown next to an item
type Status string

const (
	StatusDanger  Status = "danger"
	StatusWarning Status = "warning"
	StatusNormal  Status = "normal"
)

// warningBand is the multiple of the reorder point below which stock is flagged
const warningBand = 1.5

// ClassifyStatus maps a quantity and its reorder point to a stock status.
//
// quantity <= reorderPoint is danger, quantity <= 1.5*reorderPoint is warning,
// anything above is normal. There is no variant that also weighs demand.
func ClassifyStatus(quantity, reorderPoint float64) Status {
	switch {
	case quantity <= reorderPoint:
		return StatusDanger
	case quantity <= reorderPoint*warningBand:
		return StatusWarning
	default:
		return StatusNormal
	}
}
