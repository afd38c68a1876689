package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/muhammadshahms/shoe-shop/internal/cache"
	"github.com/muhammadshahms/shoe-shop/internal/events"
	"github.com/muhammadshahms/shoe-shop/internal/inventory"
	"github.com/muhammadshahms/shoe-shop/internal/logging"
	"github.com/muhammadshahms/shoe-shop/internal/models"
	"github.com/muhammadshahms/shoe-shop/internal/repo"
)

// StatusRecorder is implemented by *metrics.Metrics.
type StatusRecorder interface {
	StatusChanged(to string)
}

type OrderService struct {
	Repo   *repo.GormRepo
	Ledger *inventory.Ledger
	Cache  cache.StatusCache
	Events events.Publisher
	// Metrics may be nil.
	Metrics StatusRecorder
}

func NewOrderService(r *repo.GormRepo, ledger *inventory.Ledger, c cache.StatusCache, pub events.Publisher, rec StatusRecorder) *OrderService {
	if c == nil {
		c = cache.Nop{}
	}
	if pub == nil {
		pub = events.Nop{}
	}
	return &OrderService{Repo: r, Ledger: ledger, Cache: c, Events: pub, Metrics: rec}
}

func (s *OrderService) ListForUser(ctx context.Context, userID uint, offset, limit int) (int64, []models.Order, error) {
	return s.Repo.ListOrders(ctx, userID, offset, limit)
}

// GetForUser hides orders of other users behind ErrNotFound.
func (s *OrderService) GetForUser(ctx context.Context, userID, id uint) (*models.Order, error) {
	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	return order, nil
}

func (s *OrderService) GetByNumber(ctx context.Context, userID uint, number string) (*models.Order, error) {
	order, err := s.Repo.GetOrderByNumber(ctx, strings.TrimSpace(number))
	if err != nil {
		return nil, notFound(err, "order")
	}
	if order.UserID != userID {
		return nil, fmt.Errorf("%w: order", ErrNotFound)
	}
	s.remember(ctx, order)
	return order, nil
}

// StatusByNumber serves the order confirmation poll from the cache when it can.
func (s *OrderService) StatusByNumber(ctx context.Context, userID uint, number string) (models.OrderStatus, error) {
	l := logging.FromContext(ctx).With("svc", "order.status_by_number")

	e, err := s.Cache.Get(ctx, number)
	switch {
	case err == nil:
		if e.UserID != userID {
			return "", fmt.Errorf("%w: order", ErrNotFound)
		}
		return models.OrderStatus(e.Status), nil
	case !errors.Is(err, cache.ErrMiss):
		l.Warn("status_cache_get_failed", "order_number", number, "error", err)
	}

	order, err := s.GetByNumber(ctx, userID, number)
	if err != nil {
		return "", err
	}
	return order.Status, nil
}

func (s *OrderService) ListAll(ctx context.Context, status string, offset, limit int) (int64, []models.Order, error) {
	st := models.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if st != "" && !st.Valid() {
		return 0, nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.Repo.ListAllOrders(ctx, st, offset, limit)
}

// UpdateStatus applies one transition. Cancelling puts every line's quantity
// back on its product in the same transaction.
func (s *OrderService) UpdateStatus(ctx context.Context, id uint, status string) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "order.update_status", "order_id", id)

	to := models.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if !to.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}

	var (
		order *models.Order
		from  models.OrderStatus
	)
	err := s.Repo.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := s.Repo.WithTx(tx)

		o, err := r.LockOrder(ctx, id)
		if err != nil {
			return notFound(err, "order")
		}
		from = o.Status
		if !models.CanTransition(from, to) {
			return fmt.Errorf("%w: cannot move order from %s to %s", ErrConflict, from, to)
		}

		if to == models.OrderStatusCancelled {
			if err := s.restock(ctx, tx, l, o.Lines); err != nil {
				return err
			}
		}

		if err := r.UpdateOrderColumn(ctx, id, "status", to); err != nil {
			return err
		}
		o.Status = to
		order = o
		return nil
	})
	if err != nil {
		return nil, err
	}

	l.Info("order_status_changed", "from", from, "to", to)
	s.forget(ctx, order.OrderNumber)
	if s.Metrics != nil {
		s.Metrics.StatusChanged(string(to))
	}
	ev := events.OrderStatusChanged{
		Type:        events.TypeOrderStatusChanged,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		From:        string(from),
		To:          string(to),
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.Events.Publish(ctx, order.OrderNumber, ev); err != nil {
		l.Error("order_event_publish_failed", "error", err)
	}
	return order, nil
}

func (s *OrderService) restock(ctx context.Context, tx *gorm.DB, l *slog.Logger, lines []models.OrderLine) error {
	sorted := slices.Clone(lines)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	for _, line := range sorted {
		err := s.Ledger.Release(ctx, tx, line.ProductID, line.Quantity)
		if errors.Is(err, inventory.ErrNotFound) {
			l.Warn("restock_skipped", "product_id", line.ProductID, "reason", "product deleted")
			continue
		}
		if err != nil {
			return fmt.Errorf("restock product %d: %w", line.ProductID, err)
		}
	}
	return nil
}

func (s *OrderService) UpdatePaymentStatus(ctx context.Context, id uint, status string) (*models.Order, error) {
	st := strings.ToLower(strings.TrimSpace(status))
	if !slices.Contains(models.PaymentStatuses, st) {
		return nil, fmt.Errorf("%w: unknown payment status %q", ErrValidation, status)
	}
	if err := s.Repo.UpdateOrderColumn(ctx, id, "payment_status", st); err != nil {
		return nil, notFound(err, "order")
	}
	order, err := s.Repo.GetOrder(ctx, id)
	if err != nil {
		return nil, notFound(err, "order")
	}
	logging.FromContext(ctx).Info("order_payment_status_changed", "order_id", id, "payment_status", st)
	return order, nil
}

func (s *OrderService) SoftDelete(ctx context.Context, id uint) error {
	order, err := s.Repo.DeleteOrder(ctx, id)
	if err != nil {
		return notFound(err, "order")
	}
	s.forget(ctx, order.OrderNumber)
	return nil
}

// remember fills a missing cache entry; it never overwrites one, so a read
// racing a status change cannot put an older status back.
func (s *OrderService) remember(ctx context.Context, order *models.Order) {
	e := cache.Entry{UserID: order.UserID, Status: string(order.Status)}
	if err := s.Cache.Add(ctx, order.OrderNumber, e); err != nil {
		logging.FromContext(ctx).Warn("status_cache_set_failed", "order_number", order.OrderNumber, "error", err)
	}
}

func (s *OrderService) forget(ctx context.Context, number string) {
	if err := s.Cache.Delete(ctx, number); err != nil {
		logging.FromContext(ctx).Warn("status_cache_delete_failed", "order_number", number, "error", err)
	}
}
