package repository

import (
	"context"
	"strconv"
	"testing"

	"QuoteForge/internal/domain/models"
)

func TestAuditLogRecentNewestFirst(t *testing.T) {
	l := NewAuditLog(nil, "")
	for i := 1; i <= 3; i++ {
		err := l.RecordIntervention(context.Background(), &models.InterventionAudit{ID: strconv.Itoa(i)})
		if err != nil {
			t.Fatalf("RecordIntervention: %v", err)
		}
	}

	got := l.Recent(2)
	if len(got) != 2 || got[0].ID != "3" || got[1].ID != "2" {
		t.Fatalf("unexpected order: %+v", got)
	}
	if all := l.Recent(0); len(all) != 3 {
		t.Fatalf("Recent(0) = %d records, want all 3", len(all))
	}
}

func TestAuditLogRingWraps(t *testing.T) {
	l := NewAuditLog(nil, "")
	for i := 0; i < auditRingSize+10; i++ {
		_ = l.RecordIntervention(context.Background(), &models.InterventionAudit{ID: strconv.Itoa(i)})
	}

	got := l.Recent(1)
	if len(got) != 1 || got[0].ID != strconv.Itoa(auditRingSize+9) {
		t.Fatalf("expected newest record after wrap, got %+v", got)
	}
	if all := l.Recent(0); len(all) != auditRingSize {
		t.Fatalf("ring must cap at %d, got %d", auditRingSize, len(all))
	}
}

func TestAuditLogEmpty(t *testing.T) {
	l := NewAuditLog(nil, "")
	if got := l.Recent(10); len(got) != 0 {
		t.Fatalf("expected no records, got %d", len(got))
	}
}
