package checkout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/muhammadshahms/shoe-shop/internal/db"
	"github.com/muhammadshahms/shoe-shop/internal/events"
	"github.com/muhammadshahms/shoe-shop/internal/inventory"
	"github.com/muhammadshahms/shoe-shop/internal/logging"
	"github.com/muhammadshahms/shoe-shop/internal/models"
)

const maxNumberAttempts = 3

var errNumbersExhausted = errors.New("order number: no unique value after retries")

type State int

const (
	StateStarted State = iota
	StateValidating
	StateReserving
	StatePersisting
	StateCommitted
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStarted:
		return "started"
	case StateValidating:
		return "validating"
	case StateReserving:
		return "reserving"
	case StatePersisting:
		return "persisting"
	case StateCommitted:
		return "committed"
	case StateAborted:
		return "aborted"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Recorder receives checkout outcomes; *metrics.Metrics implements it.
type Recorder interface {
	CheckoutFinished(result string, elapsed time.Duration)
	OrderCommitted(items uint, total float64)
}

type Placement struct {
	OrderID     uint               `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	GrandTotal  decimal.Decimal    `json:"grand_total"`
	ItemCount   uint               `json:"item_count"`
	Status      models.OrderStatus `json:"status"`
}

// Coordinator runs one checkout attempt end to end: validate, reserve stock
// under row locks, persist the order, and commit or roll back as a unit.
type Coordinator struct {
	DB     *gorm.DB
	Ledger *inventory.Ledger
	Events events.Publisher
	// Metrics may be nil.
	Metrics        Recorder
	NewOrderNumber func() string
}

func NewCoordinator(gdb *gorm.DB, ledger *inventory.Ledger, pub events.Publisher, rec Recorder) *Coordinator {
	if pub == nil {
		pub = events.Nop{}
	}
	return &Coordinator{
		DB:             gdb,
		Ledger:         ledger,
		Events:         pub,
		Metrics:        rec,
		NewOrderNumber: NewOrderNumber,
	}
}

// PlaceOrder either creates the order with all of its lines and decrements
// stock, or changes nothing. Failures are always a *Error.
func (c *Coordinator) PlaceOrder(ctx context.Context, userID uint, sub Submission) (*Placement, error) {
	start := time.Now()
	l := logging.FromContext(ctx).With("component", "checkout", "user_id", userID)

	order, err := c.place(ctx, l, userID, sub)
	if err != nil {
		var ce *Error
		if !errors.As(err, &ce) {
			ce = persistenceError(err)
		}
		c.finish(resultLabel(ce.Kind), start)

		if ce.Kind == ErrPersistence {
			l.Error("checkout_aborted", "state", ce.State.String(), "error", ce.Err)
		} else {
			l.Warn("checkout_aborted", "state", ce.State.String(), "reason", ce.Message)
		}
		return nil, ce
	}

	c.finish("committed", start)
	if c.Metrics != nil {
		c.Metrics.OrderCommitted(order.ItemCount, order.GrandTotal.InexactFloat64())
	}
	l.Info("checkout_committed", "order_id", order.ID, "order_number", order.OrderNumber,
		"grand_total", order.GrandTotal.StringFixed(2), "item_count", order.ItemCount)

	c.publish(ctx, l, order)

	return &Placement{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		GrandTotal:  order.GrandTotal,
		ItemCount:   order.ItemCount,
		Status:      order.Status,
	}, nil
}

func (c *Coordinator) place(ctx context.Context, l *slog.Logger, userID uint, sub Submission) (*models.Order, error) {
	state := StateStarted
	abort := func(e *Error) (*models.Order, error) {
		e.State = state
		return nil, e
	}

	state = StateValidating
	if len(sub.Lines) == 0 {
		return abort(validationError("Your cart is empty."))
	}
	if userID == 0 {
		return abort(validationError("You must be signed in to place an order."))
	}
	customer := sub.Customer.Normalize()
	if err := ValidateCustomer(customer); err != nil {
		return abort(err.(*Error))
	}
	if err := ValidateCart(sub.Lines); err != nil {
		return abort(err.(*Error))
	}

	lines := NormalizeCart(sub.Lines)
	known, err := c.Ledger.Snapshot(ctx, c.DB, productIDs(lines))
	if err != nil {
		return abort(persistenceError(err))
	}
	for _, line := range lines {
		if _, ok := known[line.ProductID]; !ok {
			return abort(notFoundError(line.ProductID, inventory.ErrNotFound))
		}
	}

	var order *models.Order
	err = c.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		state = StateReserving
		reserve := func(productID, quantity uint) (*inventory.Reservation, error) {
			res, err := c.Ledger.Reserve(ctx, tx, productID, quantity)
			if err != nil {
				return nil, reservationError(productID, err)
			}
			l.Debug("stock_reserved", "product_id", productID, "quantity", quantity, "remaining", res.Remaining)
			return res, nil
		}

		built, err := BuildOrder(userID, lines, customer, reserve, "")
		if err != nil {
			return err
		}

		state = StatePersisting
		if err := c.insertHeader(ctx, tx, l, built); err != nil {
			return err
		}
		for i := range built.Lines {
			built.Lines[i].OrderID = built.ID
		}
		if err := tx.WithContext(ctx).Create(&built.Lines).Error; err != nil {
			return fmt.Errorf("insert order lines: %w", err)
		}

		order = built
		return nil
	})
	if err != nil {
		var ce *Error
		if errors.As(err, &ce) {
			return abort(ce)
		}
		return abort(persistenceError(err))
	}

	state = StateCommitted
	return order, nil
}

// insertHeader writes the order row inside a savepoint so a duplicate order
// number can be retried without losing the reservations already made in tx.
func (c *Coordinator) insertHeader(ctx context.Context, tx *gorm.DB, l *slog.Logger, order *models.Order) error {
	for attempt := 1; attempt <= maxNumberAttempts; attempt++ {
		order.ID = 0
		order.OrderNumber = c.NewOrderNumber()

		err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.WithContext(ctx).Omit(clause.Associations).Create(order).Error
		})
		if err == nil {
			return nil
		}
		if !db.IsUniqueViolation(err) {
			return fmt.Errorf("insert order: %w", err)
		}
		l.Warn("order_number_collision", "attempt", attempt, "order_number", order.OrderNumber)
	}
	return errNumbersExhausted
}

func reservationError(productID uint, err error) error {
	var stock *inventory.StockError
	switch {
	case errors.As(err, &stock):
		return outOfStockError(stock.Name, err)
	case errors.Is(err, inventory.ErrNotFound):
		return notFoundError(productID, err)
	case errors.Is(err, inventory.ErrInvalidQuantity):
		return &Error{Kind: ErrValidation, Message: fmt.Sprintf("Quantity for product %d must be at least 1.", productID), Err: err}
	}
	return err
}

func (c *Coordinator) publish(ctx context.Context, l *slog.Logger, order *models.Order) {
	ev := events.OrderPlaced{
		Type:        events.TypeOrderPlaced,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      order.UserID,
		GrandTotal:  order.GrandTotal,
		ItemCount:   order.ItemCount,
		Lines:       make([]events.OrderLine, 0, len(order.Lines)),
		OccurredAt:  time.Now().UTC(),
	}
	for _, line := range order.Lines {
		ev.Lines = append(ev.Lines, events.OrderLine{ProductID: line.ProductID, Quantity: line.Quantity, Price: line.Price})
	}
	if err := c.Events.Publish(ctx, order.OrderNumber, ev); err != nil {
		l.Error("order_event_publish_failed", "order_number", order.OrderNumber, "error", err)
	}
}

func (c *Coordinator) finish(result string, start time.Time) {
	if c.Metrics != nil {
		c.Metrics.CheckoutFinished(result, time.Since(start))
	}
}

func resultLabel(kind error) string {
	switch kind {
	case ErrValidation:
		return "validation"
	case ErrProductNotFound:
		return "product_not_found"
	case ErrOutOfStock:
		return "out_of_stock"
	}
	return "persistence"
}
