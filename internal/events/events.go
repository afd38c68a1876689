package events

import (
	"time"

	"github.com/shopspring/decimal"
)

const (
	TypeOrderPlaced        = "order_placed"
	TypeOrderStatusChanged = "order_status_changed"
	TypeProductUpserted    = "product_upserted"
	TypeProductDeleted     = "product_deleted"
)

type OrderLine struct {
	ProductID uint            `json:"product_id"`
	Quantity  uint            `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
}

type OrderPlaced struct {
	Type        string          `json:"type"`
	OrderID     uint            `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	UserID      uint            `json:"user_id"`
	GrandTotal  decimal.Decimal `json:"grand_total"`
	ItemCount   uint            `json:"item_count"`
	Lines       []OrderLine     `json:"lines"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

type OrderStatusChanged struct {
	Type        string    `json:"type"`
	OrderID     uint      `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	OccurredAt  time.Time `json:"occurred_at"`
}

type ProductChanged struct {
	Type       string          `json:"type"`
	ProductID  uint            `json:"product_id"`
	Name       string          `json:"name,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Quantity   uint            `json:"quantity"`
	OccurredAt time.Time       `json:"occurred_at"`
}
