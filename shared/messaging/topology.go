package messaging

import (
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeadLetterExchange - общий DLX пайплайна. DLQ каждой стадии привязана к нему
// ключом <stage>.dlq.
const DeadLetterExchange = "pipeline.dlx"

// topologyChannel - подмножество *amqp.Channel, нужное для объявления топологии.
type topologyChannel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
}

// DeclareTopology объявляет DLX и для каждой стадии основную очередь (lazy, с dead-letter в DLQ) и DLQ.
// Очереди повторов объявляются при первом повторе с данной задержкой, см. DeclareRetryQueue.
// Объявление идемпотентно, его выполняют и публикующие, и потребляющие сервисы.
func DeclareTopology(ch topologyChannel, stages []Stage) error {
	if err := ch.ExchangeDeclare(DeadLetterExchange, amqp.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare DLX %s: %w", DeadLetterExchange, err)
	}

	for _, stage := range stages {
		dlq := stage.DeadLetterQueueName()
		if _, err := ch.QueueDeclare(dlq, true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare DLQ %s: %w", dlq, err)
		}
		if err := ch.QueueBind(dlq, dlq, DeadLetterExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind DLQ %s: %w", dlq, err)
		}

		if _, err := ch.QueueDeclare(stage.QueueName(), true, false, false, false, mainQueueArgs(stage)); err != nil {
			return fmt.Errorf("failed to declare queue %s: %w", stage.QueueName(), err)
		}
	}
	return nil
}

// DeclareRetryQueue объявляет очередь повторов стадии для задержки delay.
func DeclareRetryQueue(ch topologyChannel, stage Stage, delay time.Duration) (string, error) {
	name := stage.RetryQueueName(delay)
	if _, err := ch.QueueDeclare(name, true, false, false, false, retryQueueArgs(stage, delay)); err != nil {
		return "", fmt.Errorf("failed to declare retry queue %s: %w", name, err)
	}
	return name, nil
}

func mainQueueArgs(stage Stage) amqp.Table {
	return amqp.Table{
		"x-queue-mode":              "lazy",
		"x-dead-letter-exchange":    DeadLetterExchange,
		"x-dead-letter-routing-key": stage.DeadLetterQueueName(),
	}
}

// TTL задается на очередь, а не на сообщение: брокер снимает истекшие
// сообщения только с головы очереди. По истечении сообщение возвращается
// в основную очередь через default exchange.
func retryQueueArgs(stage Stage, delay time.Duration) amqp.Table {
	return amqp.Table{
		"x-queue-mode":              "lazy",
		"x-message-ttl":             delayMillis(delay),
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": stage.QueueName(),
	}
}
