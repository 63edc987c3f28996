package api

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/RishiKendai/dupcheck/internal/metrics"
	"github.com/RishiKendai/dupcheck/internal/models"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const (
	ctxKeyAPIKey   = "api_key"
	limiterIdleTTL = time.Hour
)

// JWTAuthMiddleware validates HMAC-signed bearer tokens. A non-empty issuer
// is required to match the token's iss claim.
func JWTAuthMiddleware(secret, issuer string) gin.HandlerFunc {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"})}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	parser := jwt.NewParser(opts...)

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortWith(c, http.StatusUnauthorized, "Authorization header required", "UNAUTHORIZED")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortWith(c, http.StatusUnauthorized, "Invalid authorization header format", "UNAUTHORIZED")
			return
		}
		tokenString := parts[1]

		token, err := parser.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, jwt.ErrSignatureInvalid
			}
			return []byte(secret), nil
		})
		if err != nil || !token.Valid {
			log.Debug().Err(err).Msg("Rejected bearer token")
			abortWith(c, http.StatusUnauthorized, "Invalid or expired token", "UNAUTHORIZED")
			return
		}

		apiKey := tokenString
		if claims, ok := token.Claims.(jwt.MapClaims); ok {
			if key, ok := claims["api_key"].(string); ok && key != "" {
				apiKey = key
			} else if sub, err := claims.GetSubject(); err == nil && sub != "" {
				apiKey = sub
			}
		}
		c.Set(ctxKeyAPIKey, apiKey)

		c.Next()
	}
}

// RateLimiter hands out one token bucket per API key. Buckets idle for an
// hour are swept.
type RateLimiter struct {
	limiters map[string]*limiterEntry
	mu       sync.Mutex
	rps      float64
	burst    int
	now      func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func NewRateLimiter(rps float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		rps:      rps,
		burst:    burst,
		now:      time.Now,
	}
}

// GetLimiter gets or creates the limiter for key.
func (rl *RateLimiter) GetLimiter(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if entry, ok := rl.limiters[key]; ok {
		entry.lastSeen = now
		return entry.limiter
	}

	rl.sweepLocked(now)
	entry := &limiterEntry{
		limiter:  rate.NewLimiter(rate.Limit(rl.rps), rl.burst),
		lastSeen: now,
	}
	rl.limiters[key] = entry
	return entry.limiter
}

func (rl *RateLimiter) sweepLocked(now time.Time) {
	for key, entry := range rl.limiters {
		if now.Sub(entry.lastSeen) > limiterIdleTTL {
			delete(rl.limiters, key)
		}
	}
}

func RateLimitMiddleware(limiter *RateLimiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.ClientIP()
		if apiKey, ok := c.Get(ctxKeyAPIKey); ok {
			if s, ok := apiKey.(string); ok {
				key = s
			}
		}

		if !limiter.GetLimiter(key).Allow() {
			abortWith(c, http.StatusTooManyRequests, "Rate limit exceeded", "RATE_LIMIT_EXCEEDED")
			return
		}

		c.Next()
	}
}

// MetricsMiddleware records request count and latency per route template.
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.RequestCount.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		metrics.RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}

// ErrorHandlerMiddleware turns errors attached with c.Error into the
// standard error body when the handler has not written a response.
func ErrorHandlerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last()
		log.Error().Err(err).Str("path", c.Request.URL.Path).Msg("Request error")

		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: err.Error(),
			Code:  "INTERNAL_ERROR",
		})
	}
}

func abortWith(c *gin.Context, status int, message, code string) {
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: message, Code: code})
}

// RequestLogger logs one line per request through the global zerolog logger.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		event := log.Debug()
		switch {
		case status >= http.StatusInternalServerError:
			event = log.Error()
		case status >= http.StatusBadRequest:
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Str("client_ip", c.ClientIP()).
			Msg("HTTP request")
	}
}
