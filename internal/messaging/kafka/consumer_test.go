package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

type mockConsumerGroup struct {
	consumeFn func(context.Context, []string, sarama.ConsumerGroupHandler) error
	errorsCh  chan error
	closeFn   func() error
}

func (m *mockConsumerGroup) Consume(ctx context.Context, topics []string, handler sarama.ConsumerGroupHandler) error {
	if m.consumeFn != nil {
		return m.consumeFn(ctx, topics, handler)
	}
	return nil
}

func (m *mockConsumerGroup) Errors() <-chan error {
	return m.errorsCh
}

func (m *mockConsumerGroup) Close() error {
	if m.closeFn != nil {
		return m.closeFn()
	}
	if m.errorsCh != nil {
		close(m.errorsCh)
	}
	return nil
}

func (m *mockConsumerGroup) Pause(map[string][]int32)  {}
func (m *mockConsumerGroup) Resume(map[string][]int32) {}
func (m *mockConsumerGroup) PauseAll()                 {}
func (m *mockConsumerGroup) ResumeAll()                {}

type mockSession struct {
	ctx    context.Context
	marked []*sarama.ConsumerMessage
}

func (m *mockSession) Claims() map[string][]int32               { return nil }
func (m *mockSession) MemberID() string                         { return "member" }
func (m *mockSession) GenerationID() int32                      { return 1 }
func (m *mockSession) MarkOffset(string, int32, int64, string)  {}
func (m *mockSession) Commit()                                  {}
func (m *mockSession) ResetOffset(string, int32, int64, string) {}
func (m *mockSession) Context() context.Context                 { return m.ctx }
func (m *mockSession) MarkMessage(msg *sarama.ConsumerMessage, _ string) {
	m.marked = append(m.marked, msg)
}

type mockClaim struct {
	topic     string
	partition int32
	messages  chan *sarama.ConsumerMessage
}

func (m *mockClaim) Topic() string                            { return m.topic }
func (m *mockClaim) Partition() int32                         { return m.partition }
func (m *mockClaim) InitialOffset() int64                     { return 0 }
func (m *mockClaim) HighWaterMarkOffset() int64               { return 0 }
func (m *mockClaim) Messages() <-chan *sarama.ConsumerMessage { return m.messages }

func TestNewConsumer_UnreachableBrokers(t *testing.T) {
	handler := func(context.Context, *sarama.ConsumerMessage) error { return nil }
	_, err := NewConsumer([]string{"invalid-broker:9092"}, "bookshop-coupon-redemption", []string{TopicOrderEvents}, handler)
	require.Error(t, err)
}

func TestConsumerOptions(t *testing.T) {
	dlq := NewProducerWithClient(mocks.NewSyncProducer(t, nil), nil)
	logger := log.WithField("test", "options")

	c := newConsumer(&mockConsumerGroup{}, []string{"topic"}, nil,
		WithDLQ(dlq), WithMaxRetries(5), WithRetryDelay(0), WithConsumerLogger(logger))

	require.Same(t, dlq, c.dlqProducer)
	require.Equal(t, 5, c.maxRetries)
	require.Zero(t, c.retryDelay)
	require.Same(t, logger, c.logger)

	defaults := newConsumer(&mockConsumerGroup{}, nil, nil, WithMaxRetries(0), WithRetryDelay(-1))
	require.Equal(t, 3, defaults.maxRetries)
	require.Equal(t, defaultRetryDelay, defaults.retryDelay)
}

func TestConsumerStartStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumeCalls := 0
	errorsCh := make(chan error, 1)
	group := &mockConsumerGroup{
		errorsCh: errorsCh,
		consumeFn: func(_ context.Context, _ []string, _ sarama.ConsumerGroupHandler) error {
			consumeCalls++
			cancel()
			return nil
		},
		closeFn: func() error {
			close(errorsCh)
			return nil
		},
	}

	consumer := newConsumer(group, []string{"topic-a"}, func(context.Context, *sarama.ConsumerMessage) error { return nil },
		WithConsumerLogger(log.WithField("test", "consumer")))

	errorsCh <- errors.New("background error")
	require.NoError(t, consumer.Start(ctx))
	require.NoError(t, consumer.Stop())
	require.NotZero(t, consumeCalls)
}

func TestConsumerStopError(t *testing.T) {
	errorsCh := make(chan error)
	group := &mockConsumerGroup{errorsCh: errorsCh, closeFn: func() error {
		close(errorsCh)
		return errors.New("close failed")
	}}
	consumer := newConsumer(group, nil, nil)
	require.ErrorContains(t, consumer.Stop(), "close failed")
}

func TestConsumeClaim_MarksOnlyHandledMessages(t *testing.T) {
	cases := []struct {
		name       string
		handlerErr error
		marked     int
	}{
		{name: "handled", marked: 2},
		{name: "handler keeps failing", handlerErr: errors.New("failed"), marked: 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen []int64
			consumer := newConsumer(nil, nil, func(_ context.Context, msg *sarama.ConsumerMessage) error {
				seen = append(seen, msg.Offset)
				return tc.handlerErr
			}, WithMaxRetries(1), WithRetryDelay(0))

			session := &mockSession{ctx: context.Background()}
			claim := &mockClaim{topic: TopicOrderEvents, messages: make(chan *sarama.ConsumerMessage, 2)}
			claim.messages <- &sarama.ConsumerMessage{Topic: TopicOrderEvents, Offset: 7, Key: []byte("order-1"), Value: []byte("{}")}
			claim.messages <- &sarama.ConsumerMessage{Topic: TopicOrderEvents, Offset: 8, Key: []byte("order-2"), Value: []byte("{}")}
			close(claim.messages)

			require.NoError(t, consumer.ConsumeClaim(session, claim))
			require.Equal(t, []int64{7, 8}, seen)
			require.Len(t, session.marked, tc.marked)
		})
	}
}

func retryMessage(count string) *sarama.ConsumerMessage {
	return &sarama.ConsumerMessage{
		Topic:   "topic",
		Key:     []byte("key"),
		Value:   []byte("{}"),
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderRetryCount), Value: []byte(count)}},
	}
}

func TestHandleMessageWithRetry(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		consumer := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error { return nil })
		require.NoError(t, consumer.handleMessageWithRetry(context.Background(), retryMessage("0")))
	})

	t.Run("retries until total limit", func(t *testing.T) {
		attempts := 0
		consumer := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error {
			attempts++
			return errors.New("temporary")
		}, WithMaxRetries(3), WithRetryDelay(0))

		require.Error(t, consumer.handleMessageWithRetry(context.Background(), retryMessage("1")))
		require.Equal(t, 2, attempts)
	})

	t.Run("recovers on second attempt", func(t *testing.T) {
		attempts := 0
		consumer := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error {
			attempts++
			if attempts == 1 {
				return errors.New("temporary")
			}
			return nil
		}, WithMaxRetries(3), WithRetryDelay(0))

		require.NoError(t, consumer.handleMessageWithRetry(context.Background(), retryMessage("0")))
		require.Equal(t, 2, attempts)
	})

	t.Run("context cancelled between attempts", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		consumer := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error {
			cancel()
			return errors.New("temporary")
		}, WithMaxRetries(5), WithRetryDelay(time.Hour))

		require.ErrorIs(t, consumer.handleMessageWithRetry(ctx, retryMessage("0")), context.Canceled)
	})

	t.Run("dlq success", func(t *testing.T) {
		mockProducer := mocks.NewSyncProducer(t, nil)
		mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
			require.Equal(t, TopicDeadLetterQueue, msg.Topic)
			require.Len(t, msg.Headers, 4)

			raw, err := msg.Value.Encode()
			require.NoError(t, err)
			var letter DeadLetter
			require.NoError(t, json.Unmarshal(raw, &letter))
			require.Equal(t, "topic", letter.OriginalTopic)
			require.Equal(t, "key", letter.OriginalKey)
			require.Equal(t, "{}", letter.OriginalValue)
			require.Equal(t, "permanent", letter.ErrorMessage)
			require.Equal(t, 3, letter.RetryCount)
			require.False(t, letter.FailedAt.IsZero())
			return nil
		})
		consumer := newConsumer(nil, nil,
			func(context.Context, *sarama.ConsumerMessage) error { return errors.New("permanent") },
			WithDLQ(NewProducerWithClient(mockProducer, nil)), WithMaxRetries(3), WithRetryDelay(0))

		require.NoError(t, consumer.handleMessageWithRetry(context.Background(), retryMessage("3")))
		require.NoError(t, mockProducer.Close())
	})

	t.Run("dlq failure", func(t *testing.T) {
		mockProducer := mocks.NewSyncProducer(t, nil)
		mockProducer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
		consumer := newConsumer(nil, nil,
			func(context.Context, *sarama.ConsumerMessage) error { return errors.New("permanent") },
			WithDLQ(NewProducerWithClient(mockProducer, nil)), WithMaxRetries(3), WithRetryDelay(0))

		require.Error(t, consumer.handleMessageWithRetry(context.Background(), retryMessage("3")))
		require.NoError(t, mockProducer.Close())
	})
}

func TestGetRetryCount(t *testing.T) {
	consumer := newConsumer(nil, nil, nil)

	require.Equal(t, 5, consumer.getRetryCount(retryMessage("5")))
	require.Zero(t, consumer.getRetryCount(retryMessage("bad")))
	require.Zero(t, consumer.getRetryCount(&sarama.ConsumerMessage{}))
}

func TestConsumeClaimStopsOnContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	consumer := newConsumer(nil, nil, func(context.Context, *sarama.ConsumerMessage) error { return nil })
	session := &mockSession{ctx: ctx}
	claim := &mockClaim{topic: "topic", partition: 0, messages: make(chan *sarama.ConsumerMessage)}

	done := make(chan struct{})
	go func() {
		_ = consumer.ConsumeClaim(session, claim)
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("ConsumeClaim did not stop after context cancellation")
	}
}
