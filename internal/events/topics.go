package events

// Topic constants for domain events emitted by the storefront.
const (
	TopicOrderCreated   = "order.created"
	TopicOrderPaid      = "order.paid"
	TopicOrderCanceled  = "order.canceled"
	TopicOrderUpdated   = "order.status_changed"
	TopicPaymentFailed  = "payment.failed"
	TopicPaymentExpired = "payment.expired"
)

// CustomerTopics returns the topics that trigger a customer e-mail.
func CustomerTopics() []string {
	return []string{
		TopicOrderPaid,
		TopicPaymentFailed,
		TopicPaymentExpired,
		TopicOrderCanceled,
	}
}
