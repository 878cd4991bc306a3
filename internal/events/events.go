// Package events публикует события жизненного цикла лицензий в RabbitMQ
// для пайплайна уведомлений (отправка кода покупателю, алерты о флагах).
// Публикация — best-effort: сервис лицензий работает и без брокера.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/streadway/amqp"
)

// Exchange имя обменника событий лицензий.
const Exchange = "licenses"

// Publisher публикует сообщение с ключом маршрутизации license.<action>.
type Publisher struct {
	ch *amqp.Channel
}

// Connect подключается к брокеру с повторными попытками и объявляет
// обменник и очередь уведомлений.
func Connect(connection string, retries int, delay time.Duration) (*Publisher, error) {
	const op = "events.Connect"

	if retries < 1 {
		retries = 1
	}

	var conn *amqp.Connection
	var err error
	for range retries {
		conn, err = amqp.Dial(connection)
		if err == nil {
			break
		}
		time.Sleep(delay)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	err = ch.ExchangeDeclare(
		Exchange,
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

	queues := map[string][]string{
		"license_notifications": {"license.created", "license.extended", "license.deactivated"},
	}
	for queue, keys := range queues {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return nil, fmt.Errorf("%s: failed to declare queue %s: %w", op, queue, err)
		}
		for _, key := range keys {
			if err := ch.QueueBind(queue, key, Exchange, false, nil); err != nil {
				return nil, fmt.Errorf("%s: failed to bind queue %s with routing key %s: %w", op, queue, key, err)
			}
		}
	}

	return &Publisher{ch: ch}, nil
}

// Publish сериализует payload в JSON и публикует его в обменник событий.
func (p *Publisher) Publish(routingKey string, payload any) error {
	const op = "events.Publish"

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}

	err = p.ch.Publish(
		Exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
