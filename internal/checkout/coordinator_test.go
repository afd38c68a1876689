package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/muhammadshahms/shoe-shop/internal/dbtest"
	"github.com/muhammadshahms/shoe-shop/internal/events"
	"github.com/muhammadshahms/shoe-shop/internal/inventory"
	"github.com/muhammadshahms/shoe-shop/internal/metrics"
	"github.com/muhammadshahms/shoe-shop/internal/models"
)

type fixture struct {
	db      *gorm.DB
	c       *Coordinator
	events  *events.Recorder
	metrics *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)
	rec := &events.Recorder{}
	m := metrics.New()
	return &fixture{
		db:      db,
		c:       NewCoordinator(db, inventory.NewLedger(), rec, m),
		events:  rec,
		metrics: m,
	}
}

func submission(lines ...CartLine) Submission {
	return Submission{Customer: customer(), Lines: lines}
}

func sequence(numbers ...string) func() string {
	var mu sync.Mutex
	i := 0
	return func() string {
		mu.Lock()
		defer mu.Unlock()
		n := numbers[i]
		if i < len(numbers)-1 {
			i++
		}
		return n
	}
}

func TestPlaceOrder_SingleLine(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 7, "Runner", "10.00", 5)

	p, err := f.c.PlaceOrder(context.Background(), 1, submission(CartLine{ProductID: 7, Quantity: 2}))
	require.NoError(t, err)

	assert.NotZero(t, p.OrderID)
	assert.Regexp(t, `^ORD-[A-Z0-9]{10}$`, p.OrderNumber)
	assert.True(t, decimal.RequireFromString("20.00").Equal(p.GrandTotal))
	assert.Equal(t, uint(2), p.ItemCount)
	assert.Equal(t, models.OrderStatusPending, p.Status)
	assert.Equal(t, uint(3), dbtest.Quantity(t, f.db, 7))

	var order models.Order
	require.NoError(t, f.db.Preload("Lines").First(&order, p.OrderID).Error)
	assert.Equal(t, uint(1), order.UserID)
	assert.Equal(t, "Ada Lovelace", order.Shipping.FullName)
	assert.Equal(t, "ada@example.com", order.Billing.Email)
	require.Len(t, order.Lines, 1)
	assert.Equal(t, uint(7), order.Lines[0].ProductID)
	assert.Equal(t, uint(2), order.Lines[0].Quantity)
	assert.True(t, decimal.RequireFromString("10").Equal(order.Lines[0].Price))

	require.Equal(t, 1, f.events.Len())
	ev, ok := f.events.Events[0].(events.OrderPlaced)
	require.True(t, ok)
	assert.Equal(t, p.OrderNumber, ev.OrderNumber)
	assert.Equal(t, p.OrderNumber, f.events.Keys[0])

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Checkouts.WithLabelValues("committed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.ItemsSold))
}

func TestPlaceOrder_OutOfStock(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 7, "Runner", "10.00", 5)

	_, err := f.c.PlaceOrder(context.Background(), 1, submission(CartLine{ProductID: 7, Quantity: 10}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, "Product Runner is out of stock.", err.Error())

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StateReserving, ce.State)

	assert.Equal(t, uint(5), dbtest.Quantity(t, f.db, 7))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.Order{}))
	assert.Equal(t, 0, f.events.Len())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Checkouts.WithLabelValues("out_of_stock")))
}

func TestPlaceOrder_EmptyCart(t *testing.T) {
	f := newFixture(t)

	sub := submission()
	sub.Shipping = models.Address{}
	_, err := f.c.PlaceOrder(context.Background(), 1, sub)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, "Your cart is empty.", err.Error())

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StateValidating, ce.State)
}

func TestPlaceOrder_SecondLineFailsRollsBackFirst(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 3, "Loafer", "40.00", 4)
	dbtest.Product(t, f.db, 9, "Boot", "80.00", 0)

	_, err := f.c.PlaceOrder(context.Background(), 1, submission(
		CartLine{ProductID: 9, Quantity: 1},
		CartLine{ProductID: 3, Quantity: 1},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrOutOfStock)
	assert.Equal(t, "Product Boot is out of stock.", err.Error())

	assert.Equal(t, uint(4), dbtest.Quantity(t, f.db, 3))
	assert.Equal(t, uint(0), dbtest.Quantity(t, f.db, 9))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.Order{}))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.OrderLine{}))
}

func TestPlaceOrder_ProductNotFound(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 3, "Loafer", "40.00", 4)

	_, err := f.c.PlaceOrder(context.Background(), 1, submission(
		CartLine{ProductID: 3, Quantity: 1},
		CartLine{ProductID: 404, Quantity: 1},
	))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrProductNotFound)
	assert.Equal(t, "Product 404 not found.", err.Error())
	assert.Equal(t, uint(4), dbtest.Quantity(t, f.db, 3))
}

func TestPlaceOrder_ValidationOrder(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 3, "Loafer", "40.00", 4)

	sub := submission(CartLine{ProductID: 3, Quantity: 0})
	sub.Billing.Email = ""
	_, err := f.c.PlaceOrder(context.Background(), 1, sub)
	require.Error(t, err)
	assert.Equal(t, "The billing email field is required.", err.Error())

	_, err = f.c.PlaceOrder(context.Background(), 1, submission(CartLine{ProductID: 3, Quantity: 0}))
	assert.ErrorIs(t, err, ErrValidation)

	_, err = f.c.PlaceOrder(context.Background(), 0, submission(CartLine{ProductID: 3, Quantity: 1}))
	assert.ErrorIs(t, err, ErrValidation)

	assert.Equal(t, uint(4), dbtest.Quantity(t, f.db, 3))
}

func TestPlaceOrder_IgnoresClientPrice(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 3, "Loafer", "40.00", 4)
	dbtest.Product(t, f.db, 9, "Boot", "80.00", 2)

	cheap := decimal.RequireFromString("0.01")
	p, err := f.c.PlaceOrder(context.Background(), 1, submission(
		CartLine{ProductID: 9, Quantity: 2, Price: &cheap},
		CartLine{ProductID: 3, Quantity: 1, Price: &cheap},
	))
	require.NoError(t, err)
	assert.True(t, decimal.RequireFromString("200.00").Equal(p.GrandTotal))
	assert.Equal(t, uint(3), p.ItemCount)
}

func TestPlaceOrder_Conservation(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 1, "Sandal", "15.00", 10)
	dbtest.Product(t, f.db, 2, "Sneaker", "60.00", 3)

	carts := [][]CartLine{
		{{ProductID: 1, Quantity: 4}},
		{{ProductID: 1, Quantity: 2}, {ProductID: 2, Quantity: 2}},
		{{ProductID: 2, Quantity: 2}},
		{{ProductID: 1, Quantity: 5}},
		{{ProductID: 1, Quantity: 4}, {ProductID: 2, Quantity: 1}},
	}
	for _, lines := range carts {
		_, _ = f.c.PlaceOrder(context.Background(), 1, submission(lines...))
	}

	sold := map[uint]uint{}
	var lines []models.OrderLine
	require.NoError(t, f.db.Find(&lines).Error)
	for _, l := range lines {
		sold[l.ProductID] += l.Quantity
	}

	assert.Equal(t, uint(10), dbtest.Quantity(t, f.db, 1)+sold[1])
	assert.Equal(t, uint(3), dbtest.Quantity(t, f.db, 2)+sold[2])

	var orders []models.Order
	require.NoError(t, f.db.Preload("Lines").Find(&orders).Error)
	for _, o := range orders {
		total := decimal.Zero
		var items uint
		for _, l := range o.Lines {
			total = total.Add(l.LineTotal())
			items += l.Quantity
		}
		assert.True(t, total.Equal(o.GrandTotal), "order %s", o.OrderNumber)
		assert.Equal(t, items, o.ItemCount)
	}
}

func TestPlaceOrder_ConcurrentLastUnit(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 1, "Last pair", "99.99", 1)

	const buyers = 2
	var wg sync.WaitGroup
	errs := make([]error, buyers)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.c.PlaceOrder(context.Background(), uint(i+1), submission(CartLine{ProductID: 1, Quantity: 1}))
		}(i)
	}
	wg.Wait()

	var ok, oos int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, ErrOutOfStock):
			oos++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, oos)
	assert.Equal(t, uint(0), dbtest.Quantity(t, f.db, 1))
	assert.Equal(t, int64(1), dbtest.Count(t, f.db, &models.Order{}))
}

func TestPlaceOrder_PersistenceFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 7, "Runner", "10.00", 5)

	err := f.db.Callback().Create().Before("gorm:create").Register("test:fail_order_lines", func(tx *gorm.DB) {
		if tx.Statement.Table == "order_lines" {
			_ = tx.AddError(errors.New("disk full"))
		}
	})
	require.NoError(t, err)

	_, err = f.c.PlaceOrder(context.Background(), 1, submission(CartLine{ProductID: 7, Quantity: 2}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.Equal(t, persistenceMessage, err.Error())
	assert.NotContains(t, err.Error(), "disk full")

	var ce *Error
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, StatePersisting, ce.State)

	assert.Equal(t, uint(5), dbtest.Quantity(t, f.db, 7))
	assert.Equal(t, int64(0), dbtest.Count(t, f.db, &models.Order{}))
	assert.Equal(t, 0, f.events.Len())
}

func TestPlaceOrder_RetriesDuplicateOrderNumber(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 7, "Runner", "10.00", 5)
	f.c.NewOrderNumber = sequence("ORD-AAAAAAAAAA", "ORD-AAAAAAAAAA", "ORD-BBBBBBBBBB")

	first, err := f.c.PlaceOrder(context.Background(), 1, submission(CartLine{ProductID: 7, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, "ORD-AAAAAAAAAA", first.OrderNumber)

	second, err := f.c.PlaceOrder(context.Background(), 2, submission(CartLine{ProductID: 7, Quantity: 1}))
	require.NoError(t, err)
	assert.Equal(t, "ORD-BBBBBBBBBB", second.OrderNumber)

	assert.Equal(t, uint(3), dbtest.Quantity(t, f.db, 7))
	assert.Equal(t, int64(2), dbtest.Count(t, f.db, &models.Order{}))
	assert.Equal(t, int64(2), dbtest.Count(t, f.db, &models.OrderLine{}))
}

func TestPlaceOrder_OrderNumberRetriesExhausted(t *testing.T) {
	f := newFixture(t)
	dbtest.Product(t, f.db, 7, "Runner", "10.00", 5)
	f.c.NewOrderNumber = sequence("ORD-AAAAAAAAAA")

	_, err := f.c.PlaceOrder(context.Background(), 1, submission(CartLine{ProductID: 7, Quantity: 1}))
	require.NoError(t, err)

	_, err = f.c.PlaceOrder(context.Background(), 1, submission(CartLine{ProductID: 7, Quantity: 1}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrPersistence)
	assert.ErrorIs(t, err, errNumbersExhausted)
	assert.Equal(t, uint(4), dbtest.Quantity(t, f.db, 7))
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "reserving", StateReserving.String())
	assert.Equal(t, "aborted", StateAborted.String())
}
