package checkout

import (
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/marketplace-backend/pkg/errors"
)

// LineRequest is one requested product quantity in a checkout.
type LineRequest struct {
	ProductID uuid.UUID `json:"product_id"`
	Quantity  int       `json:"quantity"`
}

// LineViolationDetail is returned to callers when a requested line is malformed.
type LineViolationDetail struct {
	Index     int       `json:"index"`
	ProductID uuid.UUID `json:"product_id"`
	Reason    string    `json:"reason"`
}

// NormalizeLines validates the requested lines and merges duplicate product ids,
// keeping the order of first appearance.
func NormalizeLines(lines []LineRequest) ([]LineRequest, error) {
	if len(lines) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item is required")
	}

	var violations []LineViolationDetail
	merged := make([]LineRequest, 0, len(lines))
	index := make(map[uuid.UUID]int, len(lines))
	for i, line := range lines {
		switch {
		case line.ProductID == uuid.Nil:
			violations = append(violations, LineViolationDetail{Index: i, Reason: "product_id is required"})
			continue
		case line.Quantity < 1:
			violations = append(violations, LineViolationDetail{Index: i, ProductID: line.ProductID, Reason: "quantity must be at least 1"})
			continue
		}
		if pos, ok := index[line.ProductID]; ok {
			merged[pos].Quantity += line.Quantity
			continue
		}
		index[line.ProductID] = len(merged)
		merged = append(merged, line)
	}

	if len(violations) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid order items").WithDetails(map[string]any{
			"violations": violations,
		})
	}
	return merged, nil
}
