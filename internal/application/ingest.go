package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"poolscope/internal/domain"
	"poolscope/internal/streaming"

	"github.com/segmentio/kafka-go"
)

// IngestRepository is the write side of the log store.
type IngestRepository interface {
	StoreLogs(ctx context.Context, logs []domain.Log) error
}

type Committer interface {
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
}

func MapToLog(msg streaming.Message) domain.Log {
	return domain.Log{
		Network:     msg.Network,
		Exchange:    msg.Exchange,
		BlockNumber: msg.BlockNumber,
		Strategy:    msg.Strategy,
		TxHash:      msg.TxHash,
		TxIndex:     msg.TxIndex,
		LogIndex:    msg.LogIndex,
		Removed:     msg.Removed,
		CreatedAt:   time.Unix(0, msg.CreatedAt).UTC(),
	}
}

// ApplyMessage stores a single decoded event. Used when batching is off.
func ApplyMessage(ctx context.Context, repo IngestRepository, msg streaming.Message) error {
	if repo == nil {
		return errors.New("ingest repository is required")
	}
	switch msg.Type {
	case streaming.MessageTypePoolLog:
		return repo.StoreLogs(ctx, []domain.Log{MapToLog(msg)})
	default:
		return errors.New("unknown message type")
	}
}

// Batch accumulates decoded events together with their Kafka messages so
// offsets are only committed after the rows are stored.
type Batch struct {
	logs      []domain.Log
	messages  []kafka.Message
	minOffset map[int]int64
	maxOffset map[int]int64
}

func NewBatch() *Batch {
	return &Batch{
		minOffset: make(map[int]int64),
		maxOffset: make(map[int]int64),
	}
}

func (b *Batch) Add(msg streaming.Message, kafkaMsg kafka.Message) {
	if msg.Type == streaming.MessageTypePoolLog {
		b.logs = append(b.logs, MapToLog(msg))
	}
	b.messages = append(b.messages, kafkaMsg)

	partition := kafkaMsg.Partition
	offset := kafkaMsg.Offset
	if min, ok := b.minOffset[partition]; !ok || offset < min {
		b.minOffset[partition] = offset
	}
	if max, ok := b.maxOffset[partition]; !ok || offset > max {
		b.maxOffset[partition] = offset
	}
}

func (b *Batch) Len() int {
	return len(b.messages)
}

func (b *Batch) Flush(ctx context.Context, repo IngestRepository, committer Committer) error {
	if b.Len() == 0 {
		return nil
	}

	start := time.Now()

	if len(b.logs) > 0 {
		if err := repo.StoreLogs(ctx, b.logs); err != nil {
			return fmt.Errorf("failed to store logs: %w", err)
		}
	}

	if err := committer.CommitMessages(ctx, b.messages...); err != nil {
		return fmt.Errorf("failed to commit kafka messages: %w", err)
	}

	slog.Info("flushed batch",
		"count", b.Len(),
		"logs", len(b.logs),
		"duration", time.Since(start),
	)

	b.Reset()
	return nil
}

func (b *Batch) Reset() {
	b.logs = b.logs[:0]
	b.messages = b.messages[:0]
	clear(b.minOffset)
	clear(b.maxOffset)
}
