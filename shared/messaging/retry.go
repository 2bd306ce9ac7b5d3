package messaging

import (
	"strconv"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// AttemptHeader хранит число уже выполненных неудачных попыток.
const AttemptHeader = "x-kcs-attempt"

// RetryPolicy - экспоненциальный backoff с потолком.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// DefaultRetryPolicy используется, если политика не задана конфигурацией.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts: 5,
	BaseDelay:   2 * time.Second,
	MaxDelay:    5 * time.Minute,
}

// Delay возвращает задержку перед повтором после attempt-й неудачи (с нуля).
func (p RetryPolicy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := p.BaseDelay
	if base <= 0 {
		base = DefaultRetryPolicy.BaseDelay
	}
	maxDelay := p.MaxDelay
	if maxDelay <= 0 {
		maxDelay = DefaultRetryPolicy.MaxDelay
	}
	d := base
	for i := 0; i < attempt; i++ {
		if d >= maxDelay/2 {
			return maxDelay
		}
		d *= 2
	}
	if d > maxDelay {
		return maxDelay
	}
	return d
}

// Exhausted сообщает, что после failedAttempts неудач повторять больше нельзя.
func (p RetryPolicy) Exhausted(failedAttempts int) bool {
	limit := p.MaxAttempts
	if limit <= 0 {
		limit = DefaultRetryPolicy.MaxAttempts
	}
	return failedAttempts >= limit
}

// attemptFromHeaders читает AttemptHeader. AMQP-таблица может вернуть число в любом целом типе.
func attemptFromHeaders(headers amqp.Table) int {
	raw, ok := headers[AttemptHeader]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case int:
		return v
	case int8:
		return int(v)
	case int16:
		return int(v)
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint8:
		return int(v)
	case uint16:
		return int(v)
	case uint32:
		return int(v)
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0
		}
		return n
	default:
		return 0
	}
}

// delayMillis - задержка в миллисекундах, не меньше 1.
func delayMillis(d time.Duration) int64 {
	ms := d.Milliseconds()
	if ms < 1 {
		ms = 1
	}
	return ms
}
