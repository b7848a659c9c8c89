package httpapi

import (
	"sync"
	"time"
)

// Metrics collects browsing and ingest counters. It implements
// application.RefreshObserver for the orchestrator side; the ingest loop
// feeds the Kafka counters directly.
type Metrics struct {
	mu                  sync.RWMutex
	startTime           time.Time
	refreshes           uint64
	refreshErrs         uint64
	staleResults        uint64
	optionsErrs         map[string]uint64
	lastRefreshDuration time.Duration
	lastRefreshCount    int
	kafkaMessages       uint64
	kafkaDecodeErrs     uint64
	kafkaApplyErrs      uint64
	kafkaFetchErrs      uint64
	logsIngested        uint64
}

func NewMetrics() *Metrics {
	return &Metrics{
		startTime:   time.Now(),
		optionsErrs: make(map[string]uint64),
	}
}

func (m *Metrics) OnRefresh(duration time.Duration, logCount int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshes++
	m.lastRefreshDuration = duration
	m.lastRefreshCount = logCount
}

func (m *Metrics) OnStaleResult() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.staleResults++
}

func (m *Metrics) OnRefreshError() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshErrs++
}

func (m *Metrics) OnOptionsError(column string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optionsErrs[column]++
}

func (m *Metrics) IncKafkaMessage() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kafkaMessages++
}

func (m *Metrics) IncKafkaDecodeErr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kafkaDecodeErrs++
}

func (m *Metrics) IncKafkaApplyErr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kafkaApplyErrs++
}

func (m *Metrics) IncKafkaFetchErr() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.kafkaFetchErrs++
}

func (m *Metrics) AddLogsIngested(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.logsIngested += uint64(count)
}

type Snapshot struct {
	StartTime           time.Time
	Refreshes           uint64
	RefreshErrs         uint64
	StaleResults        uint64
	OptionsErrs         map[string]uint64
	LastRefreshDuration time.Duration
	LastRefreshCount    int
	KafkaMessages       uint64
	KafkaDecodeErrs     uint64
	KafkaApplyErrs      uint64
	KafkaFetchErrs      uint64
	LogsIngested        uint64
}

func (m *Metrics) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var optionsErrs map[string]uint64
	if len(m.optionsErrs) > 0 {
		optionsErrs = make(map[string]uint64, len(m.optionsErrs))
		for column, count := range m.optionsErrs {
			optionsErrs[column] = count
		}
	}
	return Snapshot{
		StartTime:           m.startTime,
		Refreshes:           m.refreshes,
		RefreshErrs:         m.refreshErrs,
		StaleResults:        m.staleResults,
		OptionsErrs:         optionsErrs,
		LastRefreshDuration: m.lastRefreshDuration,
		LastRefreshCount:    m.lastRefreshCount,
		KafkaMessages:       m.kafkaMessages,
		KafkaDecodeErrs:     m.kafkaDecodeErrs,
		KafkaApplyErrs:      m.kafkaApplyErrs,
		KafkaFetchErrs:      m.kafkaFetchErrs,
		LogsIngested:        m.logsIngested,
	}
}
