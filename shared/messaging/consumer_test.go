package messaging

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"kcs-server/shared/models"
)

type fakeAcknowledger struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	a.acked = true
	return nil
}

func (a *fakeAcknowledger) Nack(tag uint64, multiple, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func (a *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return a.Nack(tag, false, requeue)
}

type mockRetryScheduler struct{ mock.Mock }

func (m *mockRetryScheduler) ScheduleRetry(ctx context.Context, stage Stage, body []byte, attempt int, delay time.Duration) error {
	args := m.Called(ctx, stage, body, attempt, delay)
	return args.Error(0)
}

func newDelivery(t *testing.T, orderID uuid.UUID, attempt int) (amqp.Delivery, *fakeAcknowledger) {
	t.Helper()
	ack := &fakeAcknowledger{}
	d := amqp.Delivery{
		Acknowledger: ack,
		DeliveryTag:  1,
		Body:         []byte(fmt.Sprintf(`{"orderId":%q}`, orderID.String())),
	}
	if attempt > 0 {
		d.Headers = amqp.Table{AttemptHeader: int32(attempt)}
	}
	return d, ack
}

func newTestConsumer(retries RetryScheduler) *Consumer {
	return NewConsumer("amqp://unused", "test", RetryPolicy{MaxAttempts: 3, BaseDelay: time.Second, MaxDelay: time.Minute}, retries, zap.NewNop())
}

func TestHandleDelivery_SuccessAcks(t *testing.T) {
	retries := &mockRetryScheduler{}
	c := newTestConsumer(retries)
	orderID := uuid.New()
	d, ack := newDelivery(t, orderID, 0)

	var got StageJob
	c.handleDelivery(context.Background(), StageBinding{
		Stage: StageOutline,
		Handle: func(ctx context.Context, job StageJob) error {
			got = job
			return nil
		},
	}, d)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, orderID, got.OrderID)
	retries.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestHandleDelivery_TransientErrorSchedulesRetry(t *testing.T) {
	retries := &mockRetryScheduler{}
	c := newTestConsumer(retries)
	d, ack := newDelivery(t, uuid.New(), 1)
	retries.On("ScheduleRetry", mock.Anything, StageDraft, d.Body, 2, 2*time.Second).Return(nil).Once()

	c.handleDelivery(context.Background(), StageBinding{
		Stage:  StageDraft,
		Handle: func(ctx context.Context, job StageJob) error { return models.ErrTransient },
	}, d)

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	retries.AssertExpectations(t)
}

func TestHandleDelivery_RetryPublishFailureRequeues(t *testing.T) {
	retries := &mockRetryScheduler{}
	c := newTestConsumer(retries)
	d, ack := newDelivery(t, uuid.New(), 0)
	retries.On("ScheduleRetry", mock.Anything, StageDraft, d.Body, 1, time.Second).Return(errors.New("broker down")).Once()

	c.handleDelivery(context.Background(), StageBinding{
		Stage:  StageDraft,
		Handle: func(ctx context.Context, job StageJob) error { return models.ErrTransient },
	}, d)

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
	retries.AssertExpectations(t)
}

func TestHandleDelivery_DeadLettersTerminalAndExhausted(t *testing.T) {
	cases := map[string]struct {
		attempt int
		err     error
		panics  bool
	}{
		"integrity error":    {attempt: 0, err: models.NewIntegrityError("story.draft", "outline")},
		"attempts exhausted": {attempt: 2, err: models.ErrTransient},
		"handler panic":      {attempt: 0, panics: true},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			retries := &mockRetryScheduler{}
			c := newTestConsumer(retries)
			orderID := uuid.New()
			d, ack := newDelivery(t, orderID, tc.attempt)

			var deadLettered uuid.UUID
			var cause error
			c.handleDelivery(context.Background(), StageBinding{
				Stage: StageDraft,
				Handle: func(ctx context.Context, job StageJob) error {
					if tc.panics {
						panic("boom")
					}
					return tc.err
				},
				OnDeadLetter: func(ctx context.Context, job StageJob, err error) {
					deadLettered = job.OrderID
					cause = err
				},
			}, d)

			assert.True(t, ack.nacked)
			assert.False(t, ack.requeue)
			assert.False(t, ack.acked)
			assert.Equal(t, orderID, deadLettered)
			require.Error(t, cause)
			retries.AssertNotCalled(t, "ScheduleRetry", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		})
	}
}

func TestHandleDelivery_InvalidPayloadGoesToDLQ(t *testing.T) {
	c := newTestConsumer(&mockRetryScheduler{})
	ack := &fakeAcknowledger{}
	called := false

	c.handleDelivery(context.Background(), StageBinding{
		Stage: StageDraft,
		Handle: func(ctx context.Context, job StageJob) error {
			called = true
			return nil
		},
	}, amqp.Delivery{Acknowledger: ack, Body: []byte(`{"orderId":""}`)})

	assert.False(t, called)
	assert.True(t, ack.nacked)
	assert.False(t, ack.requeue)
}

func TestRegister_DefaultsConcurrency(t *testing.T) {
	c := newTestConsumer(&mockRetryScheduler{})
	c.Register(StageBinding{Stage: StageAssets})
	c.Register(StageBinding{Stage: StageDraft, Concurrency: 4})

	assert.Equal(t, 1, c.bindings[0].Concurrency)
	assert.Equal(t, 4, c.bindings[1].Concurrency)
	assert.Equal(t, []Stage{StageAssets, StageDraft}, c.Stages())
}

func TestWatchClose_ChannelExceptionStopsConsumer(t *testing.T) {
	connClosed := make(chan *amqp.Error, 1)
	cmykClosed := make(chan *amqp.Error, 1)
	draftClosed := make(chan *amqp.Error, 1)

	closed := watchClose(map[string]<-chan *amqp.Error{
		"connection":          connClosed,
		"channel story.cmyk":  cmykClosed,
		"channel story.draft": draftClosed,
	})

	select {
	case ev := <-closed:
		t.Fatalf("unexpected close from %s", ev.source)
	case <-time.After(50 * time.Millisecond):
	}

	cmykClosed <- &amqp.Error{Code: amqp.PreconditionFailed, Reason: "PRECONDITION_FAILED - unknown delivery tag 7"}

	select {
	case ev := <-closed:
		assert.Equal(t, "channel story.cmyk", ev.source)
		require.NotNil(t, ev.err)
		assert.Equal(t, amqp.PreconditionFailed, ev.err.Code)
	case <-time.After(time.Second):
		t.Fatal("channel close was not reported")
	}
}

func TestWatchClose_GracefulCloseIsReported(t *testing.T) {
	ch := make(chan *amqp.Error)
	closed := watchClose(map[string]<-chan *amqp.Error{"channel story.draft": ch})
	close(ch)

	select {
	case ev := <-closed:
		assert.Equal(t, "channel story.draft", ev.source)
		assert.Nil(t, ev.err)
	case <-time.After(time.Second):
		t.Fatal("closed channel was not reported")
	}
}
