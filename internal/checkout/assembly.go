package checkout

import (
	"net/mail"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/muhammadshahms/shoe-shop/internal/inventory"
	"github.com/muhammadshahms/shoe-shop/internal/models"
)

// Customer carries the shipping, billing and payment fields of a checkout form.
type Customer struct {
	Shipping              models.Address `json:"shipping"`
	Billing               models.Address `json:"billing"`
	BillingSameAsShipping bool           `json:"billing_same_as_shipping"`
	PaymentMethod         string         `json:"payment_method"`
	PaymentStatus         string         `json:"payment_status"`
	Notes                 string         `json:"notes"`
}

// Submission is everything a client sends to place an order.
type Submission struct {
	Customer
	Lines []CartLine `json:"lines"`
}

// ReserveFunc reserves quantity units of a product inside the open checkout
// transaction and returns the authoritative price.
type ReserveFunc func(productID, quantity uint) (*inventory.Reservation, error)

func trimAddress(a models.Address) models.Address {
	return models.Address{
		FullName: strings.TrimSpace(a.FullName),
		Email:    strings.TrimSpace(a.Email),
		Address:  strings.TrimSpace(a.Address),
		City:     strings.TrimSpace(a.City),
		State:    strings.TrimSpace(a.State),
		Zip:      strings.TrimSpace(a.Zip),
		Country:  strings.TrimSpace(a.Country),
		Phone:    strings.TrimSpace(a.Phone),
	}
}

// Normalize trims every field, applies BillingSameAsShipping and defaults
// the payment status. It does not validate.
func (c Customer) Normalize() Customer {
	c.Shipping = trimAddress(c.Shipping)
	c.Billing = trimAddress(c.Billing)
	if c.BillingSameAsShipping {
		email := c.Billing.Email
		if email == "" {
			email = c.Shipping.Email
		}
		c.Billing = c.Shipping
		c.Billing.Email = email
	}
	c.PaymentMethod = strings.ToLower(strings.TrimSpace(c.PaymentMethod))
	c.PaymentStatus = strings.ToLower(strings.TrimSpace(c.PaymentStatus))
	if c.PaymentStatus == "" {
		c.PaymentStatus = models.PaymentStatusPending
	}
	c.Notes = strings.TrimSpace(c.Notes)
	return c
}

func requireAddress(prefix string, a models.Address) error {
	fields := []struct {
		label string
		value string
	}{
		{"full name", a.FullName},
		{"address", a.Address},
		{"city", a.City},
		{"country", a.Country},
		{"phone", a.Phone},
	}
	for _, f := range fields {
		if f.value == "" {
			return validationError("The %s %s field is required.", prefix, f.label)
		}
	}
	return nil
}

// ValidateCustomer expects a normalized Customer.
func ValidateCustomer(c Customer) error {
	if err := requireAddress("shipping", c.Shipping); err != nil {
		return err
	}
	if err := requireAddress("billing", c.Billing); err != nil {
		return err
	}
	if c.Billing.Email == "" {
		return validationError("The billing email field is required.")
	}
	if addr, err := mail.ParseAddress(c.Billing.Email); err != nil || addr.Address != c.Billing.Email {
		return validationError("The billing email must be a valid email address.")
	}
	if !slices.Contains(models.PaymentMethods, c.PaymentMethod) {
		return validationError("The selected payment method is invalid.")
	}
	if !slices.Contains(models.PaymentStatuses, c.PaymentStatus) {
		return validationError("The selected payment status is invalid.")
	}
	return nil
}

// BuildOrder reserves every line through reserve and composes the order
// header with its lines. The first reservation error is returned unchanged.
func BuildOrder(userID uint, lines []CartLine, c Customer, reserve ReserveFunc, orderNumber string) (*models.Order, error) {
	order := &models.Order{
		UserID:        userID,
		OrderNumber:   orderNumber,
		Status:        models.OrderStatusPending,
		GrandTotal:    decimal.Zero,
		PaymentMethod: c.PaymentMethod,
		PaymentStatus: c.PaymentStatus,
		Shipping:      c.Shipping,
		Billing:       c.Billing,
		Notes:         c.Notes,
		Lines:         make([]models.OrderLine, 0, len(lines)),
	}

	for _, line := range lines {
		res, err := reserve(line.ProductID, uint(line.Quantity))
		if err != nil {
			return nil, err
		}
		ol := models.OrderLine{
			ProductID: res.ProductID,
			UserID:    userID,
			Quantity:  res.Quantity,
			Price:     res.UnitPrice,
		}
		order.GrandTotal = order.GrandTotal.Add(ol.LineTotal())
		order.ItemCount += ol.Quantity
		order.Lines = append(order.Lines, ol)
	}
	return order, nil
}

const orderNumberLen = 10

// NewOrderNumber returns "ORD-" followed by ten upper-case alphanumerics.
func NewOrderNumber() string {
	var b strings.Builder
	b.WriteString("ORD-")
	for b.Len() < 4+orderNumberLen {
		for _, r := range strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")) {
			if b.Len() == 4+orderNumberLen {
				break
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}
