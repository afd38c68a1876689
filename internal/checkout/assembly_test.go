package checkout

import (
	"errors"
	"regexp"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/muhammadshahms/shoe-shop/internal/inventory"
	"github.com/muhammadshahms/shoe-shop/internal/models"
)

func address() models.Address {
	return models.Address{
		FullName: "Ada Lovelace",
		Email:    "ada@example.com",
		Address:  "12 Analytical Row",
		City:     "London",
		Country:  "UK",
		Phone:    "+44 20 0000 0000",
	}
}

func customer() Customer {
	return Customer{
		Shipping:      address(),
		Billing:       address(),
		PaymentMethod: models.PaymentMethodCOD,
	}
}

func TestCustomer_Normalize(t *testing.T) {
	c := Customer{
		Shipping:              models.Address{FullName: "  Ada ", City: "London", Email: "ship@example.com"},
		Billing:               models.Address{FullName: "Other", Email: " bill@example.com "},
		BillingSameAsShipping: true,
		PaymentMethod:         " COD ",
	}.Normalize()

	assert.Equal(t, "Ada", c.Shipping.FullName)
	assert.Equal(t, "Ada", c.Billing.FullName)
	assert.Equal(t, "London", c.Billing.City)
	assert.Equal(t, "bill@example.com", c.Billing.Email)
	assert.Equal(t, "cod", c.PaymentMethod)
	assert.Equal(t, models.PaymentStatusPending, c.PaymentStatus)
}

func TestCustomer_NormalizeSameAsShippingFallsBackToShippingEmail(t *testing.T) {
	c := Customer{
		Shipping:              address(),
		BillingSameAsShipping: true,
	}.Normalize()
	assert.Equal(t, "ada@example.com", c.Billing.Email)
}

func TestValidateCustomer(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Customer)
		want   string
	}{
		{name: "valid", mutate: func(c *Customer) {}},
		{name: "shipping name", mutate: func(c *Customer) { c.Shipping.FullName = "" }, want: "The shipping full name field is required."},
		{name: "shipping phone", mutate: func(c *Customer) { c.Shipping.Phone = "" }, want: "The shipping phone field is required."},
		{name: "billing country", mutate: func(c *Customer) { c.Billing.Country = "" }, want: "The billing country field is required."},
		{name: "billing email missing", mutate: func(c *Customer) { c.Billing.Email = "" }, want: "The billing email field is required."},
		{name: "billing email invalid", mutate: func(c *Customer) { c.Billing.Email = "not-an-email" }, want: "The billing email must be a valid email address."},
		{name: "display name email", mutate: func(c *Customer) { c.Billing.Email = "Ada <ada@example.com>" }, want: "The billing email must be a valid email address."},
		{name: "payment method", mutate: func(c *Customer) { c.PaymentMethod = "barter" }, want: "The selected payment method is invalid."},
		{name: "payment status", mutate: func(c *Customer) { c.PaymentStatus = "refunded" }, want: "The selected payment status is invalid."},
		{name: "optional state and zip", mutate: func(c *Customer) { c.Shipping.State, c.Shipping.Zip = "", "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := customer()
			tt.mutate(&c)
			err := ValidateCustomer(c.Normalize())
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrValidation)
			assert.Equal(t, tt.want, err.Error())
		})
	}
}

func TestValidateCart(t *testing.T) {
	err := ValidateCart(nil)
	require.Error(t, err)
	assert.Equal(t, "Your cart is empty.", err.Error())
	assert.ErrorIs(t, err, ErrValidation)

	err = ValidateCart([]CartLine{{ProductID: 1, Quantity: 0}})
	assert.ErrorIs(t, err, ErrValidation)

	err = ValidateCart([]CartLine{{ProductID: 0, Quantity: 2}})
	assert.ErrorIs(t, err, ErrValidation)

	assert.NoError(t, ValidateCart([]CartLine{{ProductID: 1, Quantity: 1}}))
}

func TestNormalizeCart_SortsWithoutMutatingInput(t *testing.T) {
	in := []CartLine{{ProductID: 9, Quantity: 1}, {ProductID: 3, Quantity: 2}, {ProductID: 5, Quantity: 1}}
	out := NormalizeCart(in)

	assert.Equal(t, []uint{3, 5, 9}, []uint{out[0].ProductID, out[1].ProductID, out[2].ProductID})
	assert.Equal(t, uint(9), in[0].ProductID)
}

func TestBuildOrder_UsesReservedPrices(t *testing.T) {
	prices := map[uint]string{3: "40.00", 9: "12.50"}
	var calls []uint
	reserve := func(id, qty uint) (*inventory.Reservation, error) {
		calls = append(calls, id)
		return &inventory.Reservation{ProductID: id, UnitPrice: decimal.RequireFromString(prices[id]), Quantity: qty}, nil
	}
	clientPrice := decimal.RequireFromString("0.01")
	lines := []CartLine{{ProductID: 3, Quantity: 1, Price: &clientPrice}, {ProductID: 9, Quantity: 3}}

	order, err := BuildOrder(5, lines, customer().Normalize(), reserve, "ORD-TEST")
	require.NoError(t, err)

	assert.Equal(t, []uint{3, 9}, calls)
	assert.Equal(t, "77.5", order.GrandTotal.String())
	assert.Equal(t, uint(4), order.ItemCount)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, models.PaymentStatusPending, order.PaymentStatus)
	require.Len(t, order.Lines, 2)
	assert.Equal(t, "40", order.Lines[0].Price.String())
	assert.Equal(t, uint(5), order.Lines[1].UserID)
}

func TestBuildOrder_StopsAtFirstFailure(t *testing.T) {
	boom := errors.New("boom")
	n := 0
	reserve := func(id, qty uint) (*inventory.Reservation, error) {
		n++
		if id == 9 {
			return nil, boom
		}
		return &inventory.Reservation{ProductID: id, UnitPrice: decimal.NewFromInt(1), Quantity: qty}, nil
	}

	_, err := BuildOrder(1, []CartLine{{ProductID: 3, Quantity: 1}, {ProductID: 9, Quantity: 1}, {ProductID: 11, Quantity: 1}}, customer(), reserve, "")
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, n)
}

func TestNewOrderNumber(t *testing.T) {
	re := regexp.MustCompile(`^ORD-[A-Z0-9]{10}$`)
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		n := NewOrderNumber()
		require.Regexp(t, re, n)
		seen[n] = true
	}
	assert.Len(t, seen, 200)
}
