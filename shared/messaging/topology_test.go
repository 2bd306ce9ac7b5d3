package messaging

import (
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingChannel struct {
	exchanges []string
	queues    map[string]amqp.Table
	bindings  map[string]string
}

func (r *recordingChannel) ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error {
	r.exchanges = append(r.exchanges, name+":"+kind)
	return nil
}

func (r *recordingChannel) QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error) {
	r.queues[name] = args
	return amqp.Queue{Name: name}, nil
}

func (r *recordingChannel) QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error {
	r.bindings[name] = exchange + "/" + key
	return nil
}

func TestDeclareTopology(t *testing.T) {
	ch := &recordingChannel{queues: map[string]amqp.Table{}, bindings: map[string]string{}}
	require.NoError(t, DeclareTopology(ch, []Stage{StageCMYK}))

	assert.Equal(t, []string{"pipeline.dlx:direct"}, ch.exchanges)
	require.Len(t, ch.queues, 2)

	main := ch.queues["story.cmyk"]
	assert.Equal(t, "lazy", main["x-queue-mode"])
	assert.Equal(t, "pipeline.dlx", main["x-dead-letter-exchange"])
	assert.Equal(t, "story.cmyk.dlq", main["x-dead-letter-routing-key"])

	assert.Equal(t, "pipeline.dlx/story.cmyk.dlq", ch.bindings["story.cmyk.dlq"])
}

func TestDeclareRetryQueue_OneQueuePerDelay(t *testing.T) {
	ch := &recordingChannel{queues: map[string]amqp.Table{}, bindings: map[string]string{}}
	policy := RetryPolicy{MaxAttempts: 4, BaseDelay: time.Second, MaxDelay: 3 * time.Second}

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		_, err := DeclareRetryQueue(ch, StageCMYK, policy.Delay(attempt))
		require.NoError(t, err)
	}

	// 1s, 2s, 3s (потолок), 3s: потолок делит очередь.
	require.Len(t, ch.queues, 3)
	for name, ttl := range map[string]int64{
		"story.cmyk.retry.1000ms": 1000,
		"story.cmyk.retry.2000ms": 2000,
		"story.cmyk.retry.3000ms": 3000,
	} {
		args, ok := ch.queues[name]
		require.True(t, ok, name)
		assert.Equal(t, ttl, args["x-message-ttl"], name)
		assert.Equal(t, "", args["x-dead-letter-exchange"], name)
		assert.Equal(t, "story.cmyk", args["x-dead-letter-routing-key"], name)
	}
}
