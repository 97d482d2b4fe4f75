package rabbitmq

// QueueConfig описывает очередь и ключ маршрутизации, с которым она
// привязана к exchange напоминаний.
type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// GetReminderQueues возвращает набор очередей, которые обслуживает sender.
func GetReminderQueues() []QueueConfig {
	return []QueueConfig{
		{QueueName: "reminders.annual_fee", RoutingKey: "annual_fee"},
		{QueueName: "reminders.expiring_credit", RoutingKey: "expiring_credit"},
	}
}
