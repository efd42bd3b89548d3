package repository

import (
	"context"
	"sync"

	"QuoteForge/internal/domain/models"
	"QuoteForge/internal/domain/repository"
	pkgkafka "QuoteForge/pkg/kafka"
)

// AuditLog records risk decisions. Records go to the audit Kafka topic when a
// producer is wired and always land in a bounded in-memory ring for the admin
// query surface.
type AuditLog struct {
	mu       sync.Mutex
	producer *pkgkafka.Producer // nil when kafka is disabled
	topic    string
	ring     []*models.InterventionAudit
	next     int
	filled   bool
}

const auditRingSize = 512

// NewAuditLog creates an audit log. producer may be nil.
func NewAuditLog(producer *pkgkafka.Producer, topic string) *AuditLog {
	return &AuditLog{
		producer: producer,
		topic:    topic,
		ring:     make([]*models.InterventionAudit, auditRingSize),
	}
}

// RecordIntervention stores the audit record. Kafka publish failures do not
// fail the call; the ring copy is the fallback of record.
func (l *AuditLog) RecordIntervention(ctx context.Context, audit *models.InterventionAudit) error {
	l.mu.Lock()
	l.ring[l.next] = audit
	l.next = (l.next + 1) % len(l.ring)
	if l.next == 0 {
		l.filled = true
	}
	l.mu.Unlock()

	if l.producer == nil {
		return nil
	}
	return l.producer.Publish(ctx, l.topic, []byte(audit.Symbol), audit)
}

// Recent returns up to n audit records, newest first.
func (l *AuditLog) Recent(n int) []*models.InterventionAudit {
	l.mu.Lock()
	defer l.mu.Unlock()

	size := l.next
	if l.filled {
		size = len(l.ring)
	}
	if n <= 0 || n > size {
		n = size
	}
	out := make([]*models.InterventionAudit, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.ring)) % len(l.ring)
		out = append(out, l.ring[idx])
	}
	return out
}

var _ repository.ActivityLog = (*AuditLog)(nil)
