package products

const (
	TopicStockDecrease = "stock.decrease"
	TopicStockIncrease = "stock.increase"

	TopicDetailsBulk = "product.get.details.bulk"
	TopicIDsBySeller = "product.ids.by.seller"
)
