package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/muhammadshahms/shoe-shop/internal/models"
)

var (
	ErrInvalidQuantity = errors.New("quantity must be at least 1")
	ErrNotFound        = errors.New("product not found")
	ErrInsufficient    = errors.New("insufficient stock")
)

// StockError describes a reservation that could not be satisfied under lock.
type StockError struct {
	ProductID uint
	Name      string
	Requested uint
	Available uint
}

func (e *StockError) Error() string {
	return fmt.Sprintf("product %d (%s): requested %d, available %d", e.ProductID, e.Name, e.Requested, e.Available)
}

func (e *StockError) Unwrap() error { return ErrInsufficient }

type Reservation struct {
	ProductID uint
	Name      string
	UnitPrice decimal.Decimal
	Quantity  uint
	Remaining uint
}

// Ledger owns the available-quantity counter of every product. Reserve and
// Release must be given a *gorm.DB bound to an open transaction.
type Ledger struct{}

func NewLedger() *Ledger { return &Ledger{} }

func selectForUpdate(tx *gorm.DB, productID uint, dest *models.Product) *gorm.DB {
	return tx.Clauses(clause.Locking{Strength: "UPDATE"}).Where("id = ?", productID).First(dest)
}

func (l *Ledger) lock(ctx context.Context, tx *gorm.DB, productID uint) (*models.Product, error) {
	var p models.Product
	if err := selectForUpdate(tx.WithContext(ctx), productID, &p).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
		}
		return nil, err
	}
	return &p, nil
}

func (l *Ledger) Reserve(ctx context.Context, tx *gorm.DB, productID, quantity uint) (*Reservation, error) {
	if quantity == 0 {
		return nil, ErrInvalidQuantity
	}
	if productID == 0 {
		return nil, fmt.Errorf("product %d: %w", productID, ErrNotFound)
	}

	p, err := l.lock(ctx, tx, productID)
	if err != nil {
		return nil, err
	}
	if p.Quantity < quantity {
		return nil, &StockError{ProductID: p.ID, Name: p.Name, Requested: quantity, Available: p.Quantity}
	}

	res := tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", productID, quantity).
		Update("quantity", gorm.Expr("quantity - ?", quantity))
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected != 1 {
		return nil, &StockError{ProductID: p.ID, Name: p.Name, Requested: quantity, Available: p.Quantity}
	}

	return &Reservation{
		ProductID: p.ID,
		Name:      p.Name,
		UnitPrice: p.Price,
		Quantity:  quantity,
		Remaining: p.Quantity - quantity,
	}, nil
}

// Release puts quantity back on a product, e.g. when an order is cancelled.
func (l *Ledger) Release(ctx context.Context, tx *gorm.DB, productID, quantity uint) error {
	if quantity == 0 {
		return ErrInvalidQuantity
	}
	if _, err := l.lock(ctx, tx, productID); err != nil {
		return err
	}
	return tx.WithContext(ctx).
		Model(&models.Product{}).
		Where("id = ?", productID).
		Update("quantity", gorm.Expr("quantity + ?", quantity)).Error
}

// Snapshot reads products without locking. The result is advisory only and
// must be re-validated under lock before any decrement.
func (l *Ledger) Snapshot(ctx context.Context, db *gorm.DB, ids []uint) (map[uint]models.Product, error) {
	out := make(map[uint]models.Product, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var products []models.Product
	if err := db.WithContext(ctx).Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = p
	}
	return out, nil
}
