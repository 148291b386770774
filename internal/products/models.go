package products

import (
	"time"

	"github.com/shopspring/decimal"
)

type Product struct {
	ID          string          `json:"id"`
	Code        string          `json:"code"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Images      []string        `json:"images"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock"`
	OrderCount  int             `json:"orderCount"`
	IsDeleted   bool            `json:"isDeleted"`
	SellerID    string          `json:"sellerId"`
	Seller      *Seller         `json:"seller,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}

// Seller is the slice of a user record that products embed.
type Seller struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Country   *string `json:"country,omitempty"`
	Role      string  `json:"role"`
}

type CreateInput struct {
	Code        string          `json:"code" validate:"required,max=64"`
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description" validate:"max=100"`
	Images      []string        `json:"images" validate:"dive,required"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
	SellerID    string          `json:"-"`
}

type UpdateInput struct {
	Name        string          `json:"name" validate:"required,max=255"`
	Description string          `json:"description" validate:"max=100"`
	Price       decimal.Decimal `json:"price"`
	Stock       int             `json:"stock" validate:"gte=0"`
}

// Direction of a stock ledger batch.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

type StockItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// StockEvent is the payload of stock.decrease / stock.increase.
type StockEvent struct {
	OrderID string      `json:"orderId,omitempty"`
	Items   []StockItem `json:"items"`
}

// stockRow is the locked part of a product row the ledger works on.
type stockRow struct {
	Stock      int
	OrderCount int
	SellerID   string
}
