package orders

const (
	TopicStockDecrease = "stock.decrease"
	TopicStockIncrease = "stock.increase"

	TopicProductDetailsBulk = "product.get.details.bulk"
	TopicProductIDsBySeller = "product.ids.by.seller"
	TopicUserGetBulk        = "user.get.bulk"
	TopicUserCreateTemp     = "user.create.temp"
)

// Partition key = order_id, supaya semua event 1 order maintain urutan.
func PartitionKey(orderID string) string { return orderID }
