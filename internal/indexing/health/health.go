// Package health provides system health monitoring and status reporting.
package health

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// IndexerHealth describes the position indexer.
type IndexerHealth struct {
	Status       SystemStatus `json:"status"`
	CurrentBlock uint64       `json:"current_block"`
	LatestBlock  uint64       `json:"latest_block"`
	BlockLag     int64        `json:"block_lag"`
}

// QueueHealth describes one relay queue.
type QueueHealth struct {
	Queue   string       `json:"queue"`
	Status  SystemStatus `json:"status"`
	Pending int          `json:"pending"`
	Sent    int          `json:"sent"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus           `json:"system_status"`
	Indexer      *IndexerHealth         `json:"indexer,omitempty"`
	Queues       map[string]QueueHealth `json:"queues"`
}

// worst returns the more severe of two statuses.
func worst(a, b SystemStatus) SystemStatus {
	rank := map[SystemStatus]int{StatusHealthy: 0, StatusDegraded: 1, StatusCritical: 2}
	if rank[b] > rank[a] {
		return b
	}
	return a
}
