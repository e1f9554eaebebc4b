package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/platformbuilds/sentinel-gate/internal/models"
)

// noopStore is an in-memory ValkeyStore used when cache.enabled=false and
// in tests. It keeps the gateway fully process-local: SLA records and the
// violation archive live in maps, the audit trail in a bounded slice.
type noopStore struct {
	mu         sync.RWMutex
	kv         map[string][]byte
	slas       map[string]*models.ServiceLevelAgreement
	violations map[string][]*models.SLAViolation
	audit      [][]byte
}

// NewNoopStore returns an in-memory store with no external dependencies.
func NewNoopStore() ValkeyStore {
	return &noopStore{
		kv:         make(map[string][]byte),
		slas:       make(map[string]*models.ServiceLevelAgreement),
		violations: make(map[string][]*models.SLAViolation),
	}
}

func (n *noopStore) Get(ctx context.Context, key string) ([]byte, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if data, ok := n.kv[key]; ok {
		return data, nil
	}
	return nil, fmt.Errorf("key not found: %s", key)
}

func (n *noopStore) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.kv[key] = data
	return nil
}

func (n *noopStore) Delete(ctx context.Context, key string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.kv, key)
	return nil
}

func (n *noopStore) StoreSLA(ctx context.Context, sla *models.ServiceLevelAgreement) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	copied := *sla
	n.slas[sla.TenantID] = &copied
	return nil
}

func (n *noopStore) GetSLA(ctx context.Context, tenantID string) (*models.ServiceLevelAgreement, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	sla, ok := n.slas[tenantID]
	if !ok {
		return nil, fmt.Errorf("no SLA for tenant %s", tenantID)
	}
	copied := *sla
	return &copied, nil
}

func (n *noopStore) ArchiveViolation(ctx context.Context, violation *models.SLAViolation) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	copied := *violation
	n.violations[violation.TenantID] = append(n.violations[violation.TenantID], &copied)
	return nil
}

func (n *noopStore) ListViolations(ctx context.Context, tenantID string) ([]*models.SLAViolation, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*models.SLAViolation, len(n.violations[tenantID]))
	copy(out, n.violations[tenantID])
	return out, nil
}

func (n *noopStore) AppendAuditEvent(ctx context.Context, payload []byte) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.audit = append(n.audit, payload)
	if len(n.audit) > auditTrailCap {
		n.audit = n.audit[len(n.audit)-auditTrailCap:]
	}
	return nil
}
