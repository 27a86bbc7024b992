package events

// Topic constants for domain events emitted by the checkout flow.
const (
	TopicOrderSubmitted     = "checkout.order_submitted"
	TopicValidationMismatch = "checkout.validation_mismatch"
	TopicValidationFallback = "checkout.validation_fallback"
)

// DefaultTopics returns the canonical list of topics that support notifications.
func DefaultTopics() []string {
	return []string{
		TopicOrderSubmitted,
		TopicValidationMismatch,
		TopicValidationFallback,
	}
}
