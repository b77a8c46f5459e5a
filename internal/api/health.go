package api

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/campaign-dispatch/internal/pkg/httputil"
)

// ComponentCheck represents the health of a single component.
type ComponentCheck struct {
	Status  string `json:"status"` // "up", "down", "not_configured"
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthChecker reports on the database and the optional Redis.
type HealthChecker struct {
	db          *sql.DB
	redisClient *redis.Client
	startTime   time.Time
}

// NewHealthChecker creates a HealthChecker. Either dependency may be nil.
func NewHealthChecker(db *sql.DB, redisClient *redis.Client) *HealthChecker {
	return &HealthChecker{db: db, redisClient: redisClient, startTime: time.Now()}
}

// HandleHealth returns 200 while the database answers, 503 otherwise.
//
//	GET /health
func (hc *HealthChecker) HandleHealth(w http.ResponseWriter, r *http.Request) {
	checks := map[string]ComponentCheck{
		"database": hc.checkDatabase(r.Context()),
		"redis":    hc.checkRedis(r.Context()),
	}

	status := http.StatusOK
	overall := "healthy"
	if checks["database"].Status != "up" {
		status = http.StatusServiceUnavailable
		overall = "unhealthy"
	}
	httputil.JSON(w, status, map[string]interface{}{
		"status": overall,
		"uptime": time.Since(hc.startTime).Round(time.Second).String(),
		"checks": checks,
	})
}

func (hc *HealthChecker) checkDatabase(ctx context.Context) ComponentCheck {
	if hc.db == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	start := time.Now()
	if err := hc.db.PingContext(pingCtx); err != nil {
		return ComponentCheck{Status: "down", Latency: time.Since(start).String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return ComponentCheck{Status: "up", Latency: time.Since(start).String()}
}

func (hc *HealthChecker) checkRedis(ctx context.Context) ComponentCheck {
	if hc.redisClient == nil {
		return ComponentCheck{Status: "not_configured"}
	}
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	start := time.Now()
	if err := hc.redisClient.Ping(pingCtx).Err(); err != nil {
		return ComponentCheck{Status: "down", Latency: time.Since(start).String(), Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return ComponentCheck{Status: "up", Latency: time.Since(start).String()}
}
