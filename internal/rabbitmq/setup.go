package rabbitmq

import (
	"fmt"

	"github.com/streadway/amqp"

	"github.com/magabrotheeeer/member-ledger/internal/models"
)

// NotificationsExchange direct-обменник событий учёта.
const NotificationsExchange = "notifications"

type QueueConfig struct {
	QueueName  string
	RoutingKey string
}

// NotificationQueues очереди событий: по одной на каждый вид события,
// routing key совпадает с видом.
func NotificationQueues() []QueueConfig {
	kinds := []models.EventKind{
		models.EventWarning,
		models.EventExpired,
		models.EventActivated,
		models.EventInsufficient,
	}
	queues := make([]QueueConfig, 0, len(kinds))
	for _, k := range kinds {
		queues = append(queues, QueueConfig{
			QueueName:  "notifications." + string(k),
			RoutingKey: string(k),
		})
	}
	return queues
}

// SetupChannel открывает канал, объявляет обменник уведомлений и привязывает к нему очереди.
func SetupChannel(conn *amqp.Connection, queues []QueueConfig) (*amqp.Channel, error) {
	const op = "rabbitmq.SetupChannel"

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if err := ch.Qos(prefetch, 0, false); err != nil {
		return nil, fmt.Errorf("%s: failed to set QoS: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		NotificationsExchange,
		"direct",
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	for _, q := range queues {
		if err := DeclareQueue(ch, q.QueueName); err != nil {
			return nil, fmt.Errorf("%s: %w", op, err)
		}
		err = ch.QueueBind(
			q.QueueName,
			q.RoutingKey,
			NotificationsExchange,
			false,
			nil,
		)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, q.QueueName, q.RoutingKey, err)
		}
	}

	return ch, nil
}

// DeclareQueue объявляет durable-очередь, например входящих транзакций.
func DeclareQueue(ch *amqp.Channel, name string) error {
	_, err := ch.QueueDeclare(
		name,
		true,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", name, err)
	}
	return nil
}
