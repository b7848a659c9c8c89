package domain

import "time"

// Log is one pool-creation event recorded on chain. The pair
// (TxHash, LogIndex) identifies an entry; the same TxHash may appear on
// several rows of a single transaction under different log indexes.
type Log struct {
	Network     string
	Exchange    string
	BlockNumber uint64
	Strategy    string
	TxHash      string
	TxIndex     uint64
	LogIndex    uint64
	Removed     bool
	CreatedAt   time.Time
}
