package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Product struct {
	ID          uint            `gorm:"primaryKey;autoIncrement"          json:"id"`
	Name        string          `gorm:"not null"                          json:"name"`
	Description string          `gorm:"not null;default:''"               json:"description"`
	Price       decimal.Decimal `gorm:"type:numeric(12,2);not null"       json:"price"`
	Quantity    uint            `gorm:"not null;default:0;check:quantity >= 0" json:"quantity"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"unique;not null"          json:"username"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"not null;default:user"    json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var validNext = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:    {OrderStatusProcessing: true, OrderStatusCancelled: true},
	OrderStatusProcessing: {OrderStatusCompleted: true, OrderStatusCancelled: true},
	OrderStatusCompleted:  {},
	OrderStatusCancelled:  {},
}

func (s OrderStatus) Valid() bool {
	_, ok := validNext[s]
	return ok
}

func CanTransition(from, to OrderStatus) bool {
	return validNext[from][to]
}

const (
	PaymentMethodCOD          = "cod"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
)

const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
)

var (
	PaymentMethods  = []string{PaymentMethodCOD, PaymentMethodBankTransfer, PaymentMethodCard}
	PaymentStatuses = []string{PaymentStatusPending, PaymentStatusPaid, PaymentStatusFailed}
)

// Address is embedded twice into Order, once per prefix.
type Address struct {
	FullName string `gorm:"size:255"  json:"full_name"`
	Email    string `gorm:"size:255"  json:"email,omitempty"`
	Address  string `gorm:"size:500"  json:"address"`
	City     string `gorm:"size:120"  json:"city"`
	State    string `gorm:"size:120"  json:"state,omitempty"`
	Zip      string `gorm:"size:32"   json:"zip,omitempty"`
	Country  string `gorm:"size:120"  json:"country"`
	Phone    string `gorm:"size:64"   json:"phone"`
}

type Order struct {
	ID            uint            `gorm:"primaryKey"                        json:"id"`
	UserID        uint            `gorm:"index;not null"                    json:"user_id"`
	OrderNumber   string          `gorm:"size:32;uniqueIndex;not null"      json:"order_number"`
	Status        OrderStatus     `gorm:"size:20;index;not null;default:pending" json:"status"`
	GrandTotal    decimal.Decimal `gorm:"type:numeric(12,2);not null"       json:"grand_total"`
	ItemCount     uint            `gorm:"not null"                          json:"item_count"`
	PaymentMethod string          `gorm:"size:32;not null"                  json:"payment_method"`
	PaymentStatus string          `gorm:"size:32;not null"                  json:"payment_status"`
	Shipping      Address         `gorm:"embedded;embeddedPrefix:shipping_" json:"shipping"`
	Billing       Address         `gorm:"embedded;embeddedPrefix:billing_"  json:"billing"`
	Notes         string          `gorm:"type:text"                         json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	DeletedAt     gorm.DeletedAt  `gorm:"index"                             json:"-"`
	Lines         []OrderLine     `gorm:"foreignKey:OrderID"                json:"lines,omitempty"`
}

// OrderLine keeps the unit price captured at checkout; it is never re-read from the product.
type OrderLine struct {
	ID        uint            `gorm:"primaryKey"                        json:"id"`
	OrderID   uint            `gorm:"index;not null"                    json:"order_id"`
	ProductID uint            `gorm:"index;not null"                    json:"product_id"`
	UserID    uint            `gorm:"index;not null"                    json:"user_id"`
	Quantity  uint            `gorm:"not null;check:quantity > 0"       json:"quantity"`
	Price     decimal.Decimal `gorm:"type:numeric(12,2);not null"       json:"price"`
	CreatedAt time.Time       `json:"created_at"`
}

func (OrderLine) TableName() string {
	return "order_lines"
}

// LineTotal is price × quantity.
func (l OrderLine) LineTotal() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func All() []any {
	return []any{&Product{}, &User{}, &Order{}, &OrderLine{}}
}
