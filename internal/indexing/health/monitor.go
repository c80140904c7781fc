package health

import (
	"context"
	"sync"
	"time"

	"github.com/BoostryJP/ibet-Prime-sub007/internal/core/domain"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/indexing/indexer"
	"github.com/BoostryJP/ibet-Prime-sub007/internal/infra/storage"
)

// IndexerStatus reports indexer progress.
type IndexerStatus interface {
	GetStatus(ctx context.Context) (indexer.Status, error)
}

// Thresholds decide when a component is degraded or critical.
type Thresholds struct {
	LagDegraded     int64
	LagCritical     int64
	PendingDegraded int
}

// DefaultThresholds are used for zero fields.
var DefaultThresholds = Thresholds{LagDegraded: 10, LagCritical: 100, PendingDegraded: 100}

// Monitor aggregates health status from various system components.
type Monitor struct {
	indexer    IndexerStatus // nil when the indexer is disabled
	relay      storage.RelayRepository
	queues     []domain.Queue
	thresholds Thresholds
	lastCheck  time.Time
	lastReport *HealthReport
	mu         sync.Mutex
}

// NewMonitor creates a new health monitor.
func NewMonitor(
	ix IndexerStatus,
	relay storage.RelayRepository,
	queues []domain.Queue,
	thresholds Thresholds,
) *Monitor {
	if thresholds.LagDegraded == 0 {
		thresholds.LagDegraded = DefaultThresholds.LagDegraded
	}
	if thresholds.LagCritical == 0 {
		thresholds.LagCritical = DefaultThresholds.LagCritical
	}
	if thresholds.PendingDegraded == 0 {
		thresholds.PendingDegraded = DefaultThresholds.PendingDegraded
	}
	return &Monitor{indexer: ix, relay: relay, queues: queues, thresholds: thresholds}
}

// CheckHealth builds a report, reusing the previous one for 10s.
func (m *Monitor) CheckHealth(ctx context.Context) *HealthReport {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Rate limit checks to avoid spamming RPC
	if time.Since(m.lastCheck) < 10*time.Second && m.lastReport != nil {
		return m.lastReport
	}

	report := &HealthReport{SystemStatus: StatusHealthy, Queues: make(map[string]QueueHealth)}

	if m.indexer != nil {
		ih := &IndexerHealth{Status: StatusHealthy}
		st, err := m.indexer.GetStatus(ctx)
		if err != nil {
			// If we can't get height, that's degradation
			ih.Status = StatusDegraded
		} else {
			ih.CurrentBlock, ih.LatestBlock, ih.BlockLag = st.CurrentBlock, st.LatestBlock, max(st.Lag, 0)
			switch {
			case ih.BlockLag > m.thresholds.LagCritical:
				ih.Status = StatusCritical
			case ih.BlockLag > m.thresholds.LagDegraded:
				ih.Status = StatusDegraded
			}
		}
		report.Indexer = ih
		report.SystemStatus = worst(report.SystemStatus, ih.Status)
	}

	for _, q := range m.queues {
		qh := QueueHealth{Queue: string(q), Status: StatusHealthy}
		pending, err := m.relay.ListByStatus(ctx, q, domain.TxStatusPending)
		if err != nil {
			qh.Status = StatusCritical
		} else {
			qh.Pending = len(pending)
		}
		if sent, err := m.relay.ListByStatus(ctx, q, domain.TxStatusSent); err == nil {
			qh.Sent = len(sent)
		}
		if qh.Status == StatusHealthy && (qh.Pending > m.thresholds.PendingDegraded || qh.Sent > 0) {
			qh.Status = StatusDegraded
		}
		report.Queues[string(q)] = qh
		report.SystemStatus = worst(report.SystemStatus, qh.Status)
	}

	m.lastCheck = time.Now()
	m.lastReport = report
	return report
}
