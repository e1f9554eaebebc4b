package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// valkeySingleImpl implements ValkeyStore against a single-node
// Valkey/Redis instance. Used for local development and small footprints.
type valkeySingleImpl struct {
	client *redis.Client
	logger logger.Logger
	ttl    time.Duration
}

func NewValkeySingle(addr string, db int, password string, defaultTTL time.Duration, log logger.Logger) (ValkeyStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		PoolSize:     10,
		MinIdleConns: 5,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Valkey single-node: %w", err)
	}

	return &valkeySingleImpl{
		client: client,
		logger: log,
		ttl:    defaultTTL,
	}, nil
}

func (v *valkeySingleImpl) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := v.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, fmt.Errorf("key not found: %s", key)
	}
	return b, err
}

func (v *valkeySingleImpl) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for %s: %w", key, err)
	}
	if ttl <= 0 {
		ttl = v.ttl
	}
	return v.client.Set(ctx, key, data, ttl).Err()
}

func (v *valkeySingleImpl) Delete(ctx context.Context, key string) error {
	return v.client.Del(ctx, key).Err()
}

func (v *valkeySingleImpl) StoreSLA(ctx context.Context, sla *models.ServiceLevelAgreement) error {
	data, err := json.Marshal(sla)
	if err != nil {
		return fmt.Errorf("failed to marshal SLA for tenant %s: %w", sla.TenantID, err)
	}
	ttl := time.Until(sla.EndDate) + 90*24*time.Hour
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return v.client.Set(ctx, slaKey(sla.TenantID), data, ttl).Err()
}

func (v *valkeySingleImpl) GetSLA(ctx context.Context, tenantID string) (*models.ServiceLevelAgreement, error) {
	data, err := v.Get(ctx, slaKey(tenantID))
	if err != nil {
		return nil, err
	}
	var sla models.ServiceLevelAgreement
	if err := json.Unmarshal(data, &sla); err != nil {
		return nil, fmt.Errorf("failed to unmarshal SLA for tenant %s: %w", tenantID, err)
	}
	return &sla, nil
}

func (v *valkeySingleImpl) ArchiveViolation(ctx context.Context, violation *models.SLAViolation) error {
	data, err := json.Marshal(violation)
	if err != nil {
		return fmt.Errorf("failed to marshal violation %s: %w", violation.ID, err)
	}
	return v.client.RPush(ctx, violationKey(violation.TenantID), data).Err()
}

func (v *valkeySingleImpl) ListViolations(ctx context.Context, tenantID string) ([]*models.SLAViolation, error) {
	entries, err := v.client.LRange(ctx, violationKey(tenantID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	violations := make([]*models.SLAViolation, 0, len(entries))
	for _, entry := range entries {
		var violation models.SLAViolation
		if err := json.Unmarshal([]byte(entry), &violation); err != nil {
			v.logger.Warn("Skipping unreadable archived violation", "tenant", tenantID, "error", err)
			continue
		}
		violations = append(violations, &violation)
	}
	return violations, nil
}

func (v *valkeySingleImpl) AppendAuditEvent(ctx context.Context, payload []byte) error {
	pipe := v.client.TxPipeline()
	pipe.RPush(ctx, auditTrailKey, payload)
	pipe.LTrim(ctx, auditTrailKey, -auditTrailCap, -1)
	_, err := pipe.Exec(ctx)
	return err
}
