package writer

import (
	"context"
	"encoding/json"
	"fmt"

	kafka "github.com/segmentio/kafka-go"

	appconfig "oddsflow/config"
	"oddsflow/logger"
	"oddsflow/models"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSink publishes one message per record, keyed by record id so a
// compacted topic keeps the latest quotation.
type KafkaSink struct {
	writer    messageWriter
	topic     string
	batchSize int
	log       *logger.Log
}

func NewKafkaSink(cfg appconfig.KafkaConfig) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    cfg.BatchSize,
		WriteTimeout: cfg.WriteTimeout,
	}
	ks := newKafkaSink(w, cfg.Topic, cfg.BatchSize, nil)
	ks.log.WithComponent("kafka_sink").WithFields(logger.Fields{
		"brokers": cfg.Brokers,
		"topic":   cfg.Topic,
	}).Debug("kafka sink initialized")
	return ks, nil
}

func newKafkaSink(w messageWriter, topic string, batchSize int, log *logger.Log) *KafkaSink {
	if batchSize <= 0 {
		batchSize = 500
	}
	if log == nil {
		log = logger.GetLogger()
	}
	return &KafkaSink{writer: w, topic: topic, batchSize: batchSize, log: log}
}

func (ks *KafkaSink) Name() string { return "kafka" }

func (ks *KafkaSink) Export(ctx context.Context, snap models.Snapshot) error {
	msgs := make([]kafka.Message, 0, ks.batchSize)
	written, bytesOut := 0, 0

	flush := func() error {
		if len(msgs) == 0 {
			return nil
		}
		if err := ks.writer.WriteMessages(ctx, msgs...); err != nil {
			return fmt.Errorf("failed to write %d messages: %w", len(msgs), err)
		}
		written += len(msgs)
		msgs = msgs[:0]
		return nil
	}

	for _, rec := range snap.Records {
		data, err := json.Marshal(rec)
		if err != nil {
			ks.log.WithComponent("kafka_sink").WithError(err).WithField("record_id", rec.ID).Warn("failed to marshal record")
			continue
		}
		bytesOut += len(data)
		msgs = append(msgs, kafka.Message{
			Key:   []byte(rec.ID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "snapshot_id", Value: []byte(snap.ID)},
				{Key: "status", Value: []byte(rec.Status)},
			},
		})
		if len(msgs) >= ks.batchSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := flush(); err != nil {
		return err
	}

	logger.IncrementExportWrite("kafka", bytesOut)
	ks.log.WithComponent("kafka_sink").WithFields(logger.Fields{
		"snapshot_id": snap.ID,
		"messages":    written,
	}).Debug("snapshot written to kafka")
	return nil
}

func (ks *KafkaSink) Close() error {
	ks.log.WithComponent("kafka_sink").Debug("closing kafka sink")
	return ks.writer.Close()
}
