package cache

import (
	"context"
	"time"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

// ValkeyStore is the persistence boundary for SLA configuration, the
// closed-violation archive, and the audit trail. The gateway core never
// blocks on it from the request path; a noop implementation keeps the
// process fully self-contained.
type ValkeyStore interface {
	// General key/value caching
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error

	// SLA configuration (immutable after creation)
	StoreSLA(ctx context.Context, sla *models.ServiceLevelAgreement) error
	GetSLA(ctx context.Context, tenantID string) (*models.ServiceLevelAgreement, error)

	// Closed-violation archive for date-range reporting across restarts
	ArchiveViolation(ctx context.Context, violation *models.SLAViolation) error
	ListViolations(ctx context.Context, tenantID string) ([]*models.SLAViolation, error)

	// Audit trail (bounded list per event stream)
	AppendAuditEvent(ctx context.Context, payload []byte) error
}

const (
	slaKeyPrefix       = "sla:"
	violationKeyPrefix = "sla_violations:"
	auditTrailKey      = "audit_trail"

	// auditTrailCap bounds the audit list so an unattended instance
	// cannot grow the trail without bound.
	auditTrailCap = 100_000
)

func slaKey(tenantID string) string       { return slaKeyPrefix + tenantID }
func violationKey(tenantID string) string { return violationKeyPrefix + tenantID }
