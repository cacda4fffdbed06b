package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	log "github.com/sirupsen/logrus"

	"github.com/scribeline/meter_api/dto"
)

// RateLimitMiddleware throttles request bursts per client IP. This is a
// transport concern, separate from the per-user daily generation quota
// enforced inside the pipeline.
type RateLimitMiddleware struct {
	context.DefaultService

	configs map[string]*limitConfig
	windows map[string]*window
	mutex   sync.Mutex
}

type limitConfig struct {
	maxRequests int
	windowSize  time.Duration
	blockTime   time.Duration
}

type window struct {
	count        int
	windowStart  time.Time
	blockedUntil time.Time
}

const RATE_LIMIT_MIDDLEWARE_SVC = "rate_limit"

func (svc *RateLimitMiddleware) Id() string {
	return RATE_LIMIT_MIDDLEWARE_SVC
}

func (svc *RateLimitMiddleware) Configure(ctx *context.Context) error {
	svc.windows = make(map[string]*window)
	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitMiddleware) Start() error {
	svc.configs = map[string]*limitConfig{
		// General API calls per IP
		"api_general": {
			maxRequests: 1000,
			windowSize:  time.Hour,
			blockTime:   time.Hour,
		},

		// Generation endpoints are expensive upstream
		"generate": {
			maxRequests: 30,
			windowSize:  time.Minute * 15,
			blockTime:   time.Minute * 30,
		},
	}
	return nil
}

func (svc *RateLimitMiddleware) IsAllowed(identifier, endpointType string) (bool, *dto.RateLimitInfo) {
	svc.mutex.Lock()
	defer svc.mutex.Unlock()

	config, exists := svc.configs[endpointType]
	if !exists {
		return true, &dto.RateLimitInfo{Allowed: true, Remaining: -1}
	}

	now := time.Now()
	key := endpointType + ":" + identifier

	win, ok := svc.windows[key]
	if ok && now.Before(win.blockedUntil) {
		return false, &dto.RateLimitInfo{
			Allowed:      false,
			Remaining:    0,
			ResetTime:    &win.blockedUntil,
			BlockedUntil: &win.blockedUntil,
		}
	}

	if !ok || win.windowStart.Before(now.Add(-config.windowSize)) {
		svc.windows[key] = &window{count: 1, windowStart: now}
		resetTime := now.Add(config.windowSize)
		return true, &dto.RateLimitInfo{
			Allowed:   true,
			Remaining: config.maxRequests - 1,
			ResetTime: &resetTime,
		}
	}

	if win.count >= config.maxRequests {
		win.blockedUntil = now.Add(config.blockTime)
		return false, &dto.RateLimitInfo{
			Allowed:      false,
			Remaining:    0,
			ResetTime:    &win.blockedUntil,
			BlockedUntil: &win.blockedUntil,
		}
	}

	win.count++
	resetTime := win.windowStart.Add(config.windowSize)
	return true, &dto.RateLimitInfo{
		Allowed:   true,
		Remaining: config.maxRequests - win.count,
		ResetTime: &resetTime,
	}
}

// General rate limiting by IP
func (svc *RateLimitMiddleware) IPRateLimit() fiber.Handler {
	return svc.limitBy("api_general")
}

// Tighter limit for generation endpoints
func (svc *RateLimitMiddleware) GenerateRateLimit() fiber.Handler {
	return svc.limitBy("generate")
}

func (svc *RateLimitMiddleware) limitBy(endpointType string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ip := c.IP()

		allowed, info := svc.IsAllowed(ip, endpointType)

		if info.ResetTime != nil {
			c.Set("X-RateLimit-Reset", strconv.FormatInt(info.ResetTime.Unix(), 10))
		}
		c.Set("X-RateLimit-Remaining", strconv.Itoa(info.Remaining))

		if !allowed {
			if info.BlockedUntil != nil {
				c.Set("Retry-After", strconv.FormatInt(info.BlockedUntil.Unix(), 10))
			}

			log.WithFields(log.Fields{"ip": ip, "endpoint_type": endpointType}).Warn("IP rate limit exceeded")
			return c.Status(http.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "Rate limit exceeded",
				"message": "Too many requests from this IP address",
			})
		}

		return c.Next()
	}
}
