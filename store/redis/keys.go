package redis

// Key prefixes.
const (
	prefixAttribution = "referral:attr:"     // + user ID
	prefixDelivery    = "referral:delivery:" // + delivery ID
)

func attributionKey(userID string) string {
	return prefixAttribution + userID
}

func deliveryKey(deliveryID string) string {
	return prefixDelivery + deliveryID
}
