// Команда dlq-reprocess возвращает сообщения из bookshop.dlq в топик событий заказов.
// По умолчанию работает в режиме dry-run и только показывает кандидатов.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/bookshop/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	eventTypes  map[string]bool
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

func parseConfig(args []string, getenv func(string) string) (config, error) {
	var (
		brokersRaw    string
		eventTypesRaw string
		cfg           config
	)
	fs := flag.NewFlagSet("dlq-reprocess", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: BOOKSHOP_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", kafka.TopicDeadLetterQueue, "dead letter topic to scan")
	fs.StringVar(&cfg.targetTopic, "target-topic", kafka.TopicOrderEvents, "topic for replayed outbox events")
	fs.StringVar(&eventTypesRaw, "event-types", "", "replay only these event types, comma-separated")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish messages; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages of each partition")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = getenv("BOOKSHOP_KAFKA_BROKERS")
	}
	cfg.brokers = splitList(brokersRaw)
	if types := splitList(eventTypesRaw); len(types) > 0 {
		cfg.eventTypes = make(map[string]bool, len(types))
		for _, t := range types {
			cfg.eventTypes[t] = true
		}
	}
	cfg.sourceTopic = strings.TrimSpace(cfg.sourceTopic)
	cfg.targetTopic = strings.TrimSpace(cfg.targetTopic)

	var errs []error
	if len(cfg.brokers) == 0 {
		errs = append(errs, errors.New("kafka brokers are required (-brokers or BOOKSHOP_KAFKA_BROKERS)"))
	}
	if cfg.sourceTopic == "" || cfg.targetTopic == "" {
		errs = append(errs, errors.New("source-topic and target-topic are required"))
	}
	if cfg.limit <= 0 {
		errs = append(errs, errors.New("limit must be > 0"))
	}
	if cfg.idleTimeout <= 0 {
		errs = append(errs, errors.New("idle-timeout must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return config{}, err
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, ",") {
		if v := strings.TrimSpace(chunk); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// replayMessage — сообщение, готовое к повторной публикации.
type replayMessage struct {
	topic     string
	key       string
	eventType string
	value     []byte
}

// outboxLetter — полезная нагрузка DLQ-конверта от outbox worker.
type outboxLetter struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}

var errMalformedLetter = errors.New("malformed dead letter")

// decodeLetter восстанавливает исходное сообщение. ok=false, если запись не похожа ни на один формат DLQ.
func decodeLetter(msg *sarama.ConsumerMessage, targetTopic string, now time.Time) (replayMessage, bool, error) {
	var fromConsumer kafka.DeadLetter
	if err := json.Unmarshal(msg.Value, &fromConsumer); err == nil && fromConsumer.OriginalValue != "" {
		topic := strings.TrimSpace(fromConsumer.OriginalTopic)
		if topic == "" {
			topic = targetTopic
		}
		var eventType string
		if env, _, err := kafka.ParseEnvelope([]byte(fromConsumer.OriginalValue)); err == nil {
			eventType = env.EventType
		}
		return replayMessage{
			topic:     topic,
			key:       fromConsumer.OriginalKey,
			eventType: eventType,
			value:     []byte(fromConsumer.OriginalValue),
		}, true, nil
	}

	var env kafka.Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil || len(env.Payload) == 0 {
		return replayMessage{}, false, nil
	}
	var letter outboxLetter
	if err := json.Unmarshal(env.Payload, &letter); err != nil {
		return replayMessage{}, false, fmt.Errorf("%w: %v", errMalformedLetter, err)
	}
	if len(letter.Payload) == 0 {
		return replayMessage{}, false, fmt.Errorf("%w: outbox letter %s has no event payload", errMalformedLetter, env.ID)
	}

	original := kafka.Envelope{
		ID:            firstNonEmpty(letter.OutboxID, env.ID),
		AggregateType: firstNonEmpty(letter.AggregateType, env.AggregateType),
		AggregateID:   firstNonEmpty(letter.AggregateID, env.AggregateID),
		EventType:     firstNonEmpty(letter.EventType, env.EventType),
		Payload:       letter.Payload,
		PublishedAt:   now,
	}
	value, err := json.Marshal(original)
	if err != nil {
		return replayMessage{}, false, fmt.Errorf("encode envelope: %w", err)
	}
	return replayMessage{
		topic:     targetTopic,
		key:       firstNonEmpty(original.AggregateID, original.ID),
		eventType: original.EventType,
		value:     value,
	}, true, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

type offsetSource interface {
	Partitions(topic string) ([]int32, error)
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

type partitionConsumer interface {
	Messages() <-chan *sarama.ConsumerMessage
	Errors() <-chan *sarama.ConsumerError
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error)
}

type saramaPartitions struct {
	consumer sarama.Consumer
}

func (s saramaPartitions) ConsumePartition(topic string, partition int32, offset int64) (partitionConsumer, error) {
	return s.consumer.ConsumePartition(topic, partition, offset)
}

type rawPublisher interface {
	PublishRaw(topic, key string, value []byte, headers ...sarama.RecordHeader) error
}

type stats struct {
	scanned  int
	replayed int
	skipped  int
}

// replayer сканирует партиции DLQ и переотправляет распознанные сообщения.
type replayer struct {
	cfg      config
	offsets  offsetSource
	source   partitionSource
	producer rawPublisher
	logger   *log.Entry
	now      func() time.Time
}

func (r *replayer) run(ctx context.Context) (stats, error) {
	var total stats
	if r.cfg.execute && r.producer == nil {
		return total, errors.New("producer is required in execute mode")
	}

	partitions, err := r.offsets.Partitions(r.cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("list partitions of %s: %w", r.cfg.sourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.scanned >= r.cfg.limit {
			break
		}
		part, err := r.scanPartition(ctx, partition, r.cfg.limit-total.scanned)
		total.scanned += part.scanned
		total.replayed += part.replayed
		total.skipped += part.skipped
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func (r *replayer) scanPartition(ctx context.Context, partition int32, limit int) (stats, error) {
	var st stats
	topic := r.cfg.sourceTopic

	oldest, err := r.offsets.GetOffset(topic, partition, sarama.OffsetOldest)
	if err != nil {
		return st, fmt.Errorf("oldest offset of partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(topic, partition, sarama.OffsetNewest)
	if err != nil {
		return st, fmt.Errorf("newest offset of partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return st, nil
	}

	start := oldest
	if r.cfg.fromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := r.source.ConsumePartition(topic, partition, start)
	if err != nil {
		return st, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(r.cfg.idleTimeout)
	defer idle.Stop()

	for st.scanned < limit {
		select {
		case <-ctx.Done():
			return st, ctx.Err()
		case <-idle.C:
			return st, nil
		case cerr := <-pc.Errors():
			if cerr != nil {
				return st, fmt.Errorf("partition %d: %w", partition, cerr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return st, nil
			}
			idle.Reset(r.cfg.idleTimeout)
			st.scanned++

			if err := r.handle(msg, &st); err != nil {
				return st, err
			}
			if msg.Offset+1 >= newest {
				return st, nil
			}
		}
	}
	return st, nil
}

func (r *replayer) handle(msg *sarama.ConsumerMessage, st *stats) error {
	logger := r.logger.WithFields(log.Fields{"partition": msg.Partition, "offset": msg.Offset})

	replay, ok, err := decodeLetter(msg, r.cfg.targetTopic, r.now())
	switch {
	case err != nil:
		logger.WithError(err).Warn("skip malformed dead letter")
		st.skipped++
		return nil
	case !ok:
		st.skipped++
		return nil
	case len(r.cfg.eventTypes) > 0 && !r.cfg.eventTypes[replay.eventType]:
		st.skipped++
		return nil
	}

	logger = logger.WithFields(log.Fields{"target_topic": replay.topic, "key": replay.key, "event_type": replay.eventType})
	if !r.cfg.execute {
		logger.Info("dlq replay candidate")
		st.replayed++
		return nil
	}

	header := sarama.RecordHeader{Key: []byte(kafka.HeaderEventType), Value: []byte(replay.eventType)}
	if err := r.producer.PublishRaw(replay.topic, replay.key, replay.value, header); err != nil {
		return fmt.Errorf("publish replay of offset %d: %w", msg.Offset, err)
	}
	logger.Info("dlq message replayed")
	st.replayed++
	return nil
}

func run(ctx context.Context, cfg config) error {
	logger := log.WithField("component", "dlq-reprocess")

	saramaCfg := sarama.NewConfig()
	saramaCfg.Consumer.Return.Errors = true
	client, err := sarama.NewClient(cfg.brokers, saramaCfg)
	if err != nil {
		return fmt.Errorf("create kafka client: %w", err)
	}
	defer func() { _ = client.Close() }()

	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		return fmt.Errorf("create kafka consumer: %w", err)
	}
	defer func() { _ = consumer.Close() }()

	r := &replayer{
		cfg:     cfg,
		offsets: client,
		source:  saramaPartitions{consumer: consumer},
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
	if cfg.execute {
		producer, err := kafka.NewProducer(cfg.brokers, logger)
		if err != nil {
			return err
		}
		defer func() { _ = producer.Close() }()
		r.producer = producer
	}

	st, err := r.run(ctx)
	logger.WithFields(log.Fields{
		"execute":  cfg.execute,
		"scanned":  st.scanned,
		"replayed": st.replayed,
		"skipped":  st.skipped,
	}).Info("dlq replay finished")
	return err
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	cfg, err := parseConfig(os.Args[1:], os.Getenv)
	if err != nil {
		fail("%v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
