package checkout

import (
	"sort"

	"github.com/shopspring/decimal"
)

// CartLine is one (product, quantity) pair submitted at checkout. Price is
// accepted from clients for display purposes and never used.
type CartLine struct {
	ProductID uint             `json:"product_id"`
	Quantity  int              `json:"quantity"`
	Price     *decimal.Decimal `json:"price,omitempty"`
}

func ValidateCart(lines []CartLine) error {
	if len(lines) == 0 {
		return validationError("Your cart is empty.")
	}
	for i, line := range lines {
		if line.ProductID == 0 {
			return validationError("Cart line %d has no product.", i+1)
		}
		if line.Quantity < 1 {
			return validationError("Quantity for product %d must be at least 1.", line.ProductID)
		}
	}
	return nil
}

// NormalizeCart returns the lines sorted by ascending product id so that
// concurrent checkouts always lock rows in the same order.
func NormalizeCart(lines []CartLine) []CartLine {
	out := make([]CartLine, len(lines))
	copy(out, lines)
	sort.SliceStable(out, func(i, j int) bool { return out[i].ProductID < out[j].ProductID })
	return out
}

func productIDs(lines []CartLine) []uint {
	seen := make(map[uint]struct{}, len(lines))
	ids := make([]uint, 0, len(lines))
	for _, l := range lines {
		if _, ok := seen[l.ProductID]; ok {
			continue
		}
		seen[l.ProductID] = struct{}{}
		ids = append(ids, l.ProductID)
	}
	return ids
}
