package db

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
)

const healthTimeout = 5 * time.Second

// PoolStats is the pgxpool snapshot exposed on /health/db.
type PoolStats struct {
	TotalConns      int32  `json:"total_conns"`
	IdleConns       int32  `json:"idle_conns"`
	AcquiredConns   int32  `json:"acquired_conns"`
	MaxConns        int32  `json:"max_conns"`
	AcquireCount    int64  `json:"acquire_count"`
	AcquireDuration string `json:"acquire_duration"`
	Healthy         bool   `json:"healthy"`
}

func GetPoolStats(pool *pgxpool.Pool) *PoolStats {
	stat := pool.Stat()
	return &PoolStats{
		TotalConns:      stat.TotalConns(),
		IdleConns:       stat.IdleConns(),
		AcquiredConns:   stat.AcquiredConns(),
		MaxConns:        stat.MaxConns(),
		AcquireCount:    stat.AcquireCount(),
		AcquireDuration: stat.AcquireDuration().String(),
		Healthy:         stat.TotalConns() > 0,
	}
}

// SchemaHealth describes how far a facility schema is behind the embedded
// migrations. Order entry against a schema with pending migrations fails.
type SchemaHealth struct {
	Schema  string `json:"schema"`
	Applied int    `json:"applied"`
	Pending int    `json:"pending"`
	Error   string `json:"error,omitempty"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

type statusReader interface {
	Status(ctx context.Context, schema string) ([]MigrationStatus, error)
}

// HealthHandler pings the database and reports the migration state of the
// default facility schema. A nil migrator skips the schema check.
func HealthHandler(pool *pgxpool.Pool, migrator *Migrator, defaultFacility string) echo.HandlerFunc {
	var status statusReader
	if migrator != nil {
		status = migrator
	}
	return healthHandler(pool, status, SchemaFor(defaultFacility), func() *PoolStats { return GetPoolStats(pool) })
}

func healthHandler(p pinger, status statusReader, schema string, stats func() *PoolStats) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx, cancel := context.WithTimeout(c.Request().Context(), healthTimeout)
		defer cancel()

		s := stats()
		if err := p.Ping(ctx); err != nil {
			s.Healthy = false
			return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
				"status": "unhealthy",
				"error":  err.Error(),
				"pool":   s,
			})
		}

		body := map[string]interface{}{
			"status": "healthy",
			"pool":   s,
		}
		if status == nil {
			return c.JSON(http.StatusOK, body)
		}

		sh := checkSchema(ctx, status, schema)
		body["schema"] = sh
		if sh.Error != "" || sh.Pending > 0 {
			body["status"] = "degraded"
		}
		return c.JSON(http.StatusOK, body)
	}
}

func checkSchema(ctx context.Context, status statusReader, schema string) SchemaHealth {
	sh := SchemaHealth{Schema: schema}
	statuses, err := status.Status(ctx, schema)
	if err != nil {
		sh.Error = err.Error()
		return sh
	}
	for _, st := range statuses {
		if st.Applied {
			sh.Applied++
		} else {
			sh.Pending++
		}
	}
	return sh
}
