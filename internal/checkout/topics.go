package checkout

const (
	TopicCheckoutEvents       = "checkout.events"
	TopicCashbackRedeemFailed = "checkout.cashback.redeem_failed"
)

// Partition key = order id so every event of one checkout stays ordered.
func PartitionKey(orderID string) []byte { return []byte(orderID) }
