package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type Shipping string

const (
	ShippingDeliver Shipping = "Deliver"
	ShippingPickup  Shipping = "Pickup"
)

type Order struct {
	ID           string          `json:"id"`
	ReferenceNo  string          `json:"referenceNo"`
	Address      string          `json:"address"`
	City         string          `json:"city"`
	Country      string          `json:"country"`
	Shipping     Shipping        `json:"shipping"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
	Status       Status          `json:"status"` // lihat status.go
	BuyerID      string          `json:"buyerId"`
	Items        []OrderItem     `json:"items"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// OrderItem.UnitPrice is the price the buyer saw, never re-read from the product.
type OrderItem struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
}

type ItemInput struct {
	ProductID string          `json:"productId" validate:"required,uuid"`
	UnitPrice decimal.Decimal `json:"unitPrice"`
	Quantity  int             `json:"quantity" validate:"gt=0"`
}

type CreateInput struct {
	BuyerID      string          `json:"buyerId" validate:"omitempty,uuid"`
	Email        string          `json:"email" validate:"omitempty,email"`
	FirstName    string          `json:"firstName"`
	LastName     string          `json:"lastName"`
	Address      string          `json:"address" validate:"required"`
	City         string          `json:"city" validate:"required"`
	Country      string          `json:"country" validate:"required"`
	Items        []ItemInput     `json:"productQuantities" validate:"required,min=1,dive"`
	Shipping     Shipping        `json:"shipping" validate:"required,oneof=Deliver Pickup"`
	ShippingCost decimal.Decimal `json:"shippingCost"`
}

// ProductInfo is what the product service returns for product.get.details.bulk.
type ProductInfo struct {
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
	Seller      *UserInfo       `json:"seller,omitempty"`
}

type UserInfo struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Country   *string `json:"country,omitempty"`
	Role      string  `json:"role"`
}

type ItemView struct {
	OrderItem
	Product *ProductInfo `json:"product"`
}

// OrderView is an order merged with product and buyer data. Product and Buyer
// are nil when the other service no longer knows the id.
type OrderView struct {
	Order
	Items      []ItemView      `json:"items"`
	Buyer      *UserInfo       `json:"buyer"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

type PageRequest struct {
	Page  int
	Limit int
}

const (
	defaultLimit = 10
	maxLimit     = 100
)

func (p PageRequest) normalize() PageRequest {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit < 1 {
		p.Limit = defaultLimit
	}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	return p
}

func (p PageRequest) offset() int { return (p.Page - 1) * p.Limit }

type Page[T any] struct {
	Data        []T `json:"data"`
	Total       int `json:"total"`
	CurrentPage int `json:"currentPage"`
	PageSize    int `json:"pageSize"`
}

// StockItem and StockEvent are the payload of stock.decrease / stock.increase.
type StockItem struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type StockEvent struct {
	OrderID string      `json:"orderId"`
	Items   []StockItem `json:"items"`
}

// TotalPrice excludes shipping.
func TotalPrice(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.UnitPrice.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	return total
}

func stockItems(items []OrderItem) []StockItem {
	out := make([]StockItem, 0, len(items))
	for _, it := range items {
		out = append(out, StockItem{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return out
}
