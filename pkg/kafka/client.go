// Package kafka provides the producer and consumer for program ingestion
// tasks.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/segmentio/kafka-go"

	"partychat-go/internal/config"
	"partychat-go/pkg/log"
	"partychat-go/pkg/tasks"
)

// TaskProcessor is any service able to process an ingestion task. It
// decouples the consumer from the concrete ingestion implementation.
type TaskProcessor interface {
	ProcessTask(ctx context.Context, task tasks.ProgramIngestTask) error
}

// Producer publishes ingestion tasks to the configured topic.
type Producer struct {
	writer *kafka.Writer
}

// NewProducer creates a Kafka producer for the ingestion topic.
func NewProducer(cfg config.KafkaConfig) *Producer {
	return &Producer{
		writer: &kafka.Writer{
			Addr:     kafka.TCP(cfg.Brokers),
			Topic:    cfg.Topic,
			Balancer: &kafka.LeastBytes{},
		},
	}
}

// ProduceIngestTask publishes one ingestion task.
func (p *Producer) ProduceIngestTask(ctx context.Context, task tasks.ProgramIngestTask) error {
	taskBytes, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to marshal ingest task: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{Value: taskBytes})
}

// Close flushes and closes the underlying writer.
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer consumes ingestion tasks and hands them to the processor.
// Offsets are committed manually: a malformed message is committed and
// skipped, a failing task is retried until the Redis attempt counter for
// its object reaches 3, then committed to stop the retry loop.
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, rdb *redis.Client, processor TaskProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  []string{cfg.Brokers},
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 10e3, // 10KB
		MaxBytes: 10e6, // 10MB
	})

	log.Infof("Kafka consumer started, listening on topic '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			log.Error("failed to read message from kafka", err)
			break
		}

		log.Infof("received kafka message: offset %d", m.Offset)

		var task tasks.ProgramIngestTask
		if err := json.Unmarshal(m.Value, &task); err != nil {
			log.Errorf("failed to parse kafka message: %v, value: %s", err, string(m.Value))
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("failed to commit malformed message: %v", err)
			}
			continue
		}

		log.Infof("processing ingest task: object=%s, party=%s", task.ObjectName, task.PartyCode)
		if err := processor.ProcessTask(ctx, task); err != nil {
			log.Errorf("ingest task failed: object=%s, error: %v", task.ObjectName, err)
			attemptsKey := fmt.Sprintf("kafka:attempts:%s", task.ObjectName)
			attempts, incErr := rdb.Incr(ctx, attemptsKey).Result()
			if incErr != nil {
				// Redis down: leave the offset uncommitted and let Kafka retry.
				continue
			}
			_ = rdb.Expire(ctx, attemptsKey, 24*time.Hour).Err()
			if attempts >= 3 {
				log.Errorf("ingest task failed %d times, committing offset to stop retries: object=%s", attempts, task.ObjectName)
				if err := r.CommitMessages(ctx, m); err != nil {
					log.Errorf("failed to commit kafka offset: %v", err)
				}
			}
		} else {
			log.Infof("ingest task succeeded: object=%s", task.ObjectName)
			_ = rdb.Del(ctx, fmt.Sprintf("kafka:attempts:%s", task.ObjectName)).Err()
			if err := r.CommitMessages(ctx, m); err != nil {
				log.Errorf("failed to commit kafka offset: %v", err)
			}
		}
	}

	if err := r.Close(); err != nil {
		log.Errorf("failed to close kafka consumer: %v", err)
	}
}
