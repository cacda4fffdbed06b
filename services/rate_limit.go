package services

import (
	"context"
	"os"
	"strconv"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/dto"
	"github.com/scribeline/meter_api/model"
	"github.com/scribeline/meter_api/shared"
	"github.com/scribeline/meter_api/store"
)

// RateLimitService enforces "at most N successful operations per user per
// UTC calendar day". Counters live either in Redis (when configured) or in
// the local record store; the key embeds the date so counters reset
// implicitly at UTC midnight.
type RateLimitService struct {
	appContext.DefaultService

	dailyLimit int

	storeSvc *RecordStoreService
	redisSvc *RedisService
	auditSvc *AuditDbService

	limits *store.Store

	// nowFn is swapped in tests to cross day boundaries.
	nowFn func() time.Time
}

const RATE_LIMIT_SVC = "rate_limit_svc"

const counterTTL = 24 * time.Hour

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *appContext.Context) error {
	svc.dailyLimit = 5
	if v := os.Getenv("DAILY_RATE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			svc.dailyLimit = n
		} else {
			log.WithField("value", v).Warn("Invalid DAILY_RATE_LIMIT, using default")
		}
	}
	svc.nowFn = time.Now

	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	svc.storeSvc = svc.Service(STORE_SVC).(*RecordStoreService)
	svc.redisSvc = svc.Service(REDIS_SVC).(*RedisService)
	svc.auditSvc = svc.Service(AUDIT_DB_SVC).(*AuditDbService)

	limits, err := svc.storeSvc.Store(shared.StoreRateLimit)
	if err != nil {
		return err
	}
	svc.limits = limits
	return nil
}

func (svc *RateLimitService) DailyLimit() int {
	return svc.dailyLimit
}

func (svc *RateLimitService) today() string {
	return svc.nowFn().UTC().Format("2006-01-02")
}

// Check is check-and-increment: it consumes one call from today's budget or
// fails with UsageLimitExceededError without mutating the stored count.
// Callers that only want to display remaining quota use Usage instead.
func (svc *RateLimitService) Check(userID string) error {
	day := svc.today()
	key := model.LimitKey(userID, day)

	if svc.redisSvc.Enabled() {
		return svc.checkRedis(userID, day, key)
	}
	return svc.checkLocal(userID, day, key)
}

func (svc *RateLimitService) checkLocal(userID, day, key string) error {
	count, _ := svc.limits.GetInt(key)
	if count >= int64(svc.dailyLimit) {
		quotaChecksTotal.WithLabelValues("denied").Inc()
		svc.audit(userID, day, count, false, "local", false)
		return &shared.UsageLimitExceededError{Limit: svc.dailyLimit}
	}

	if err := svc.limits.Set(key, count+1); err != nil {
		// The feature stays available, but the books may be off by one;
		// never swallow that silently.
		log.WithError(err).WithField("user_id", userID).Warn("Quota counter write failed, failing open")
		quotaFailOpenTotal.Inc()
		svc.audit(userID, day, count, true, "local", true)
		return nil
	}

	quotaChecksTotal.WithLabelValues("allowed").Inc()
	svc.audit(userID, day, count+1, true, "local", false)
	return nil
}

func (svc *RateLimitService) checkRedis(userID, day, key string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	raw, err := svc.redisSvc.Get(ctx, key)
	if err != nil {
		return svc.failOpen(userID, day, err)
	}

	var count int64
	if raw != "" {
		if count, err = strconv.ParseInt(raw, 10, 64); err != nil {
			return svc.failOpen(userID, day, err)
		}
	}

	if count >= int64(svc.dailyLimit) {
		quotaChecksTotal.WithLabelValues("denied").Inc()
		svc.audit(userID, day, count, false, "redis", false)
		return &shared.UsageLimitExceededError{Limit: svc.dailyLimit}
	}

	next, err := svc.redisSvc.Increment(ctx, key)
	if err != nil {
		return svc.failOpen(userID, day, err)
	}
	if err := svc.redisSvc.Expire(ctx, key, counterTTL); err != nil {
		log.WithError(err).WithField("key", key).Warn("Failed to set counter expiry")
	}

	quotaChecksTotal.WithLabelValues("allowed").Inc()
	svc.audit(userID, day, next, true, "redis", false)
	return nil
}

// failOpen treats an unreachable counter backend as success: availability of
// the gated feature wins over strict quota enforcement during outages.
func (svc *RateLimitService) failOpen(userID, day string, err error) error {
	log.WithError(err).WithField("user_id", userID).Warn("Quota backend unavailable, failing open")
	quotaFailOpenTotal.Inc()
	svc.audit(userID, day, 0, true, "redis", true)
	return nil
}

// Usage is the non-mutating read path for the /usage display.
func (svc *RateLimitService) Usage(userID string) dto.UsageInfo {
	day := svc.today()
	key := model.LimitKey(userID, day)

	var used int64
	if svc.redisSvc.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		raw, err := svc.redisSvc.Get(ctx, key)
		if err != nil {
			log.WithError(err).Warn("Quota backend unavailable for usage read")
		} else if raw != "" {
			used, _ = strconv.ParseInt(raw, 10, 64)
		}
	} else {
		used, _ = svc.limits.GetInt(key)
	}

	remaining := int64(svc.dailyLimit) - used
	if remaining < 0 {
		remaining = 0
	}

	return dto.UsageInfo{
		UserID:    userID,
		Day:       day,
		Used:      used,
		Limit:     svc.dailyLimit,
		Remaining: remaining,
	}
}

// Reset clears today's counter for a user (admin escape hatch).
func (svc *RateLimitService) Reset(userID string) error {
	key := model.LimitKey(userID, svc.today())

	if svc.redisSvc.Enabled() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		return svc.redisSvc.Delete(ctx, key)
	}

	if _, ok := svc.limits.Get(key); !ok {
		return nil
	}
	return svc.limits.Delete(key)
}

func (svc *RateLimitService) audit(userID, day string, count int64, allowed bool, backend string, failOpen bool) {
	if svc.auditSvc == nil {
		return
	}

	id, _ := uuid.NewV7()
	err := svc.auditSvc.RecordUsage(&model.UsageAudit{
		ID:        id.String(),
		UserID:    userID,
		Day:       day,
		Allowed:   allowed,
		Count:     count,
		Backend:   backend,
		FailOpen:  failOpen,
		CreatedAt: svc.nowFn(),
	})
	if err != nil {
		log.WithError(err).Warn("Failed to record usage audit")
	}
}
