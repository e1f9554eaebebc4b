package quota

import (
	"sync"
	"time"

	"github.com/platformbuilds/sentinel-gate/internal/config"
	"github.com/platformbuilds/sentinel-gate/internal/models"
	"github.com/platformbuilds/sentinel-gate/pkg/logger"
)

// clientState is the per-client quota accounting record. Created on first
// request, discarded only by the idle sweep. All fields are guarded by the
// owning Limiter's mutex.
type clientState struct {
	clientID string
	tenantID string
	tier     models.Tier

	// windows holds the pruned timestamp sequence per time-bounded
	// dimension, oldest first.
	windows map[models.LimitDimension][]time.Time

	concurrent int64

	bytesToday int64
	dayStart   time.Time

	burstTokens map[models.LimitDimension]float64
	lastRefill  time.Time

	firstSeen       time.Time
	lastSeen        time.Time
	totalRequests   int64
	blockedRequests int64
}

// Limiter maps clients to their tier limit tables and answers admission
// checks. It owns all ClientQuotaState exclusively; the orchestrator and
// the reporting API go through its methods.
type Limiter struct {
	mu        sync.Mutex
	clients   map[string]*clientState
	cfg       config.QuotaConfig
	overrides map[string]config.TierLimits
	logger    logger.Logger

	// now is a test seam; production code never touches it.
	now func() time.Time
}

func NewLimiter(cfg config.QuotaConfig, log logger.Logger) *Limiter {
	return &Limiter{
		clients: make(map[string]*clientState),
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
	}
}

// ApplyTierOverrides swaps in a hot-reloaded tier table. Overridden tiers
// take effect on the next admission check; accounting history is kept.
func (l *Limiter) ApplyTierOverrides(overrides map[string]config.TierLimits) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.overrides = overrides
	l.logger.Info("Tier limit overrides applied", "tiers", len(overrides))
}

func (l *Limiter) limitsFor(tier models.Tier) config.TierLimits {
	if l.overrides != nil {
		if t, ok := l.overrides[string(tier)]; ok {
			return t
		}
	}
	return l.cfg.Limits(tier)
}

// Admit runs the full multi-dimension admission check for one request and,
// on success, records it: timestamps are appended to every windowed
// dimension, the byte budget is charged, and the concurrency slot is
// reserved — all under one critical section so two racing requests can
// never both win the last slot. The caller must pair every nil return
// with exactly one Release.
//
// A non-nil Denial names the failed dimension, its configured limit, the
// observed value including this request, and a retry hint for windowed
// dimensions.
func (l *Limiter) Admit(clientID, tenantID string, tier models.Tier, bytes int64) *models.Denial {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	state := l.getOrCreate(clientID, tenantID, tier, now)
	limits := l.limitsFor(state.tier)

	state.lastSeen = now
	state.totalRequests++

	// Concurrency: no burst allowance, checked first because it is the
	// cheapest rejection.
	if rule, ok := limits.Rule(models.DimensionConcurrent); ok {
		if state.concurrent >= rule.Ceiling {
			state.blockedRequests++
			return &models.Denial{
				Reason:    models.ReasonRateLimitExceeded,
				Dimension: models.DimensionConcurrent,
				Limit:     rule.Ceiling,
				Current:   state.concurrent,
			}
		}
	}

	// Daily byte budget.
	if rule, ok := limits.Rule(models.DimensionBytesPerDay); ok {
		state.rollDay(now)
		if state.bytesToday+bytes > rule.Ceiling {
			state.blockedRequests++
			return &models.Denial{
				Reason:    models.ReasonRateLimitExceeded,
				Dimension: models.DimensionBytesPerDay,
				Limit:     rule.Ceiling,
				Current:   state.bytesToday + bytes,
			}
		}
	}

	state.refillTokens(limits, l.cfg.BurstRefillInterval, now)

	// Time-windowed dimensions. The check consumes nothing until every
	// dimension has passed; token consumption is rolled back on a later
	// dimension's rejection so a denied request never drains the bucket.
	var spent []models.LimitDimension

	for _, dim := range models.WindowedDimensions {
		rule, ok := limits.Rule(dim)
		if !ok {
			continue
		}
		seq := pruneWindow(state.windows[dim], rule.Window, now)
		state.windows[dim] = seq
		count := int64(len(seq))

		switch {
		case count < rule.Ceiling:
			// Within steady-state limit.
		case float64(count) < float64(rule.Ceiling)*rule.BurstAllowance:
			if state.burstTokens[dim] >= 1 {
				state.burstTokens[dim]--
				spent = append(spent, dim)
				continue
			}
			fallthrough
		default:
			for _, d := range spent {
				state.burstTokens[d]++
			}
			state.blockedRequests++
			return &models.Denial{
				Reason:     models.ReasonRateLimitExceeded,
				Dimension:  dim,
				Limit:      rule.Ceiling,
				Current:    count + 1,
				RetryAfter: retryAfter(seq, rule.Window, now),
			}
		}
	}

	// Admitted: record the request on every windowed dimension, charge
	// the byte budget, reserve the concurrency slot.
	for _, dim := range models.WindowedDimensions {
		if _, ok := limits.Rule(dim); ok {
			state.windows[dim] = append(state.windows[dim], now)
		}
	}
	state.bytesToday += bytes
	state.concurrent++

	return nil
}

// Release frees the concurrency slot reserved by a successful Admit. Safe
// to call for an evicted client; the counter never goes below zero.
func (l *Limiter) Release(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.clients[clientID]
	if !ok {
		return
	}
	if state.concurrent > 0 {
		state.concurrent--
	}
}

// SetTier reassigns a client's tier. The new limit table is consulted on
// the next check; history is not rewritten.
func (l *Limiter) SetTier(clientID string, tier models.Tier) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.clients[clientID]
	if !ok {
		return false
	}
	state.tier = tier
	l.logger.Info("Client tier reassigned", "client", clientID, "tier", tier)
	return true
}

// ResetClient clears all sliding windows, zeroes concurrency and byte
// totals, and restores burst tokens to the tier maximum.
func (l *Limiter) ResetClient(clientID string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.clients[clientID]
	if !ok {
		return false
	}

	now := l.now()
	limits := l.limitsFor(state.tier)
	state.windows = make(map[models.LimitDimension][]time.Time)
	state.concurrent = 0
	state.bytesToday = 0
	state.dayStart = now
	state.lastRefill = now
	state.burstTokens = fullBuckets(limits)
	l.logger.Info("Client quota reset", "client", clientID)
	return true
}

// ClientUsage returns the reporting view for one client.
func (l *Limiter) ClientUsage(clientID string) (*models.ClientUsage, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	state, ok := l.clients[clientID]
	if !ok {
		return nil, false
	}
	return l.usageView(state), true
}

// TenantUsage returns the reporting view for every client of a tenant.
func (l *Limiter) TenantUsage(tenantID string) []*models.ClientUsage {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []*models.ClientUsage
	for _, state := range l.clients {
		if state.tenantID == tenantID {
			out = append(out, l.usageView(state))
		}
	}
	return out
}

// ActiveClients returns the number of tracked client states.
func (l *Limiter) ActiveClients() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

func (l *Limiter) usageView(state *clientState) *models.ClientUsage {
	now := l.now()
	limits := l.limitsFor(state.tier)

	counts := make(map[models.LimitDimension]int64, len(models.WindowedDimensions))
	for _, dim := range models.WindowedDimensions {
		if rule, ok := limits.Rule(dim); ok {
			state.windows[dim] = pruneWindow(state.windows[dim], rule.Window, now)
			counts[dim] = int64(len(state.windows[dim]))
		}
	}

	tokens := make(map[models.LimitDimension]float64, len(state.burstTokens))
	for dim, balance := range state.burstTokens {
		tokens[dim] = balance
	}

	return &models.ClientUsage{
		ClientID:        state.clientID,
		TenantID:        state.tenantID,
		Tier:            state.tier,
		WindowCounts:    counts,
		Concurrent:      state.concurrent,
		BytesToday:      state.bytesToday,
		BurstTokens:     tokens,
		TotalRequests:   state.totalRequests,
		BlockedRequests: state.blockedRequests,
		FirstSeen:       state.firstSeen,
		LastSeen:        state.lastSeen,
	}
}

func (l *Limiter) getOrCreate(clientID, tenantID string, tier models.Tier, now time.Time) *clientState {
	if state, ok := l.clients[clientID]; ok {
		if tier.Valid() && state.tier != tier {
			// The resolver is authoritative for tier changes coming
			// through the auth path.
			state.tier = tier
		}
		return state
	}

	if !tier.Valid() {
		tier = models.TierBasic
	}
	limits := l.limitsFor(tier)
	state := &clientState{
		clientID:    clientID,
		tenantID:    tenantID,
		tier:        tier,
		windows:     make(map[models.LimitDimension][]time.Time),
		dayStart:    now,
		burstTokens: fullBuckets(limits),
		lastRefill:  now,
		firstSeen:   now,
		lastSeen:    now,
	}
	l.clients[clientID] = state
	return state
}

// rollDay resets the daily byte budget once the 24h window has elapsed.
func (s *clientState) rollDay(now time.Time) {
	if now.Sub(s.dayStart) >= 24*time.Hour {
		s.bytesToday = 0
		s.dayStart = now
	}
}

// refillTokens lazily replenishes burst tokens from elapsed time, clamped
// to the tier cap. No background timer is involved.
func (s *clientState) refillTokens(limits config.TierLimits, perToken time.Duration, now time.Time) {
	if perToken <= 0 {
		perToken = 2 * time.Second
	}
	elapsed := now.Sub(s.lastRefill)
	if elapsed <= 0 {
		return
	}
	gained := float64(elapsed) / float64(perToken)
	for _, dim := range models.WindowedDimensions {
		balance := s.burstTokens[dim] + gained
		if balance > limits.BurstTokens {
			balance = limits.BurstTokens
		}
		s.burstTokens[dim] = balance
	}
	s.lastRefill = now
}

func fullBuckets(limits config.TierLimits) map[models.LimitDimension]float64 {
	buckets := make(map[models.LimitDimension]float64, len(models.WindowedDimensions))
	for _, dim := range models.WindowedDimensions {
		buckets[dim] = limits.BurstTokens
	}
	return buckets
}

// pruneWindow drops timestamps older than the window. The sequence is
// ordered, so a single scan from the front is enough.
func pruneWindow(seq []time.Time, window time.Duration, now time.Time) []time.Time {
	cutoff := now.Add(-window)
	i := 0
	for i < len(seq) && !seq[i].After(cutoff) {
		i++
	}
	if i == 0 {
		return seq
	}
	return seq[i:]
}

// retryAfter estimates when the oldest in-window entry falls out.
func retryAfter(seq []time.Time, window time.Duration, now time.Time) time.Duration {
	if len(seq) == 0 {
		return 0
	}
	wait := seq[0].Add(window).Sub(now)
	if wait < 0 {
		return 0
	}
	return wait
}
