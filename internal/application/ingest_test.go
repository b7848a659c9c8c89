package application

import (
	"context"
	"testing"
	"time"

	"poolscope/internal/domain"
	"poolscope/internal/streaming"

	"github.com/segmentio/kafka-go"
)

type mockRepo struct {
	logs []domain.Log
}

func (m *mockRepo) StoreLogs(ctx context.Context, logs []domain.Log) error {
	m.logs = append(m.logs, logs...)
	return nil
}

type mockCommitter struct {
	committed []kafka.Message
}

func (m *mockCommitter) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	m.committed = append(m.committed, msgs...)
	return nil
}

func TestBatch_AddAndFlush(t *testing.T) {
	batch := NewBatch()
	repo := &mockRepo{}
	committer := &mockCommitter{}
	ctx := context.Background()

	batch.Add(streaming.Message{
		Type:        streaming.MessageTypePoolLog,
		Network:     "ethereum",
		Exchange:    "uniswap",
		BlockNumber: 19000000,
		Strategy:    "v3",
		TxHash:      "0x1",
		LogIndex:    4,
		CreatedAt:   time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC).UnixNano(),
	}, kafka.Message{Offset: 1})

	batch.Add(streaming.Message{
		Type:      streaming.MessageTypePoolLog,
		Network:   "base",
		TxHash:    "0x2",
		CreatedAt: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC).UnixNano(),
	}, kafka.Message{Offset: 2})

	if batch.Len() != 2 {
		t.Errorf("expected batch len 2, got %d", batch.Len())
	}

	if err := batch.Flush(ctx, repo, committer); err != nil {
		t.Fatalf("flush failed: %v", err)
	}

	if len(repo.logs) != 2 {
		t.Fatalf("expected 2 stored logs, got %d", len(repo.logs))
	}
	if repo.logs[0].Network != "ethereum" || repo.logs[0].TxHash != "0x1" {
		t.Errorf("unexpected first log: %+v", repo.logs[0])
	}
	if got := repo.logs[0].CreatedAt; !got.Equal(time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("created_at not restored from unix nanos: %v", got)
	}

	if len(committer.committed) != 2 {
		t.Errorf("expected 2 committed messages, got %d", len(committer.committed))
	}
	if batch.Len() != 0 {
		t.Errorf("expected batch reset after flush, got len %d", batch.Len())
	}
}

func TestApplyMessageUnknownType(t *testing.T) {
	repo := &mockRepo{}
	err := ApplyMessage(context.Background(), repo, streaming.Message{Type: "reorg", Network: "ethereum"})
	if err == nil {
		t.Fatal("expected error for unknown message type")
	}
	if len(repo.logs) != 0 {
		t.Errorf("unexpected stored logs: %d", len(repo.logs))
	}
}

func TestApplyMessageStoresPoolLog(t *testing.T) {
	repo := &mockRepo{}
	err := ApplyMessage(context.Background(), repo, streaming.Message{
		Type:    streaming.MessageTypePoolLog,
		Network: "ethereum",
		TxHash:  "0xabc",
	})
	if err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(repo.logs) != 1 || repo.logs[0].TxHash != "0xabc" {
		t.Errorf("unexpected stored logs: %+v", repo.logs)
	}
}
