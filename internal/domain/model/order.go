package model

import "time"

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusCompleted OrderStatus = "completed"
)

// Order is one row per provider order id.
type Order struct {
	PolarOrderID  string // unique
	UserID        string // clerk_id column
	CheckoutID    *string
	Status        OrderStatus
	Amount        int64 // minor units
	Currency      string
	ProductID     string
	ProductName   string
	CustomerEmail string
	CustomerName  *string
	Metadata      map[string]interface{} // JSONB
	CreatedAt     time.Time
	UpdatedAt     time.Time
	CompletedAt   *time.Time
}

func (o *Order) IsCompleted() bool { return o != nil && o.Status == OrderStatusCompleted }
