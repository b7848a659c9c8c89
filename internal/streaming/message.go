package streaming

import (
	"encoding/json"
	"errors"
)

type MessageType string

const (
	MessageTypePoolLog MessageType = "pool_log"
)

// Message is the wire form of one pool-creation event on the ingest topic.
// CreatedAt carries unix nanoseconds.
type Message struct {
	Type        MessageType `json:"type"`
	Network     string      `json:"network"`
	Exchange    string      `json:"exchange,omitempty"`
	BlockNumber uint64      `json:"block_number,omitempty"`
	Strategy    string      `json:"strategy,omitempty"`
	TxHash      string      `json:"tx_hash,omitempty"`
	TxIndex     uint64      `json:"tx_index,omitempty"`
	LogIndex    uint64      `json:"log_index,omitempty"`
	Removed     bool        `json:"removed,omitempty"`
	CreatedAt   int64       `json:"created_at,omitempty"`
	TraceID     string      `json:"trace_id,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	if msg.Type == "" {
		return nil, errors.New("message type is required")
	}
	if msg.Network == "" {
		return nil, errors.New("network is required")
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if msg.Type == "" {
		return Message{}, errors.New("message type is missing")
	}
	if msg.Network == "" {
		return Message{}, errors.New("network is missing")
	}
	return msg, nil
}
