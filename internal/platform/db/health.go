package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

// PoolHealth is the connection-pool section of the health report.
// EmptyAcquires counts acquire calls that had to wait for a free
// connection; a rising value means sync passes are saturating the pool.
type PoolHealth struct {
	TotalConns    int32 `json:"total_conns"`
	IdleConns     int32 `json:"idle_conns"`
	AcquiredConns int32 `json:"acquired_conns"`
	MaxConns      int32 `json:"max_conns"`
	EmptyAcquires int64 `json:"empty_acquires"`
}

// HealthReport is the /health response body.
type HealthReport struct {
	Status string     `json:"status"`
	PingMS int64      `json:"ping_ms"`
	Pool   PoolHealth `json:"pool"`
	Error  string     `json:"error,omitempty"`
}

func poolHealth(pool *pgxpool.Pool) PoolHealth {
	stat := pool.Stat()
	return PoolHealth{
		TotalConns:    stat.TotalConns(),
		IdleConns:     stat.IdleConns(),
		AcquiredConns: stat.AcquiredConns(),
		MaxConns:      stat.MaxConns(),
		EmptyAcquires: stat.EmptyAcquireCount(),
	}
}

// HealthHandler serves GET /health: a bounded ping plus pool pressure
// numbers.
func HealthHandler(pool *pgxpool.Pool) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		start := time.Now()
		pingErr := pool.Ping(ctx)

		report := HealthReport{
			Status: "healthy",
			PingMS: time.Since(start).Milliseconds(),
			Pool:   poolHealth(pool),
		}
		if pingErr != nil {
			report.Status = "unhealthy"
			report.Error = pingErr.Error()
			return c.JSON(http.StatusServiceUnavailable, report)
		}
		return c.JSON(http.StatusOK, report)
	}
}
