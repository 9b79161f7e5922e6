package gojob

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-job/queue"
	"github.com/goliatone/go-job/queue/adapters/postgres"
)

const (
	DefaultQueueTable       = "webhook_queue_messages"
	DefaultQueueDLQTable    = "webhook_queue_dlq"
	DefaultQueueStatusTable = "webhook_queue_dispatch_status"
)

// SQLQueueConfig places the delivery queue in the service database.
type SQLQueueConfig struct {
	// Driver is the database/sql driver name: "postgres" or "sqlite3".
	Driver            string
	VisibilityTimeout time.Duration
	Table             string
	DLQTable          string
	StatusTable       string
}

// SQLQueue is the durable go-job broker for delivery messages. Leases
// expire after the visibility timeout, so a message held by a crashed
// consumer is handed out again.
type SQLQueue struct {
	*postgres.Adapter
	storage *postgres.Storage
}

func NewSQLQueue(db *sql.DB, cfg SQLQueueConfig, opts ...postgres.Option) (*SQLQueue, error) {
	if db == nil {
		return nil, fmt.Errorf("gojob: queue database is required")
	}
	dialect, err := queueDialect(cfg.Driver)
	if err != nil {
		return nil, err
	}
	base := []postgres.Option{
		postgres.WithDialect(dialect),
		postgres.WithTableName(firstNonEmpty(cfg.Table, DefaultQueueTable)),
		postgres.WithDLQTableName(firstNonEmpty(cfg.DLQTable, DefaultQueueDLQTable)),
		postgres.WithStatusTableName(firstNonEmpty(cfg.StatusTable, DefaultQueueStatusTable)),
	}
	if cfg.VisibilityTimeout > 0 {
		base = append(base, postgres.WithVisibilityTimeout(cfg.VisibilityTimeout))
	}
	storage := postgres.NewStorage(db, append(base, opts...)...)
	return &SQLQueue{Adapter: postgres.NewAdapter(storage), storage: storage}, nil
}

// Migrate creates the queue, dead letter and dispatch status tables.
func (q *SQLQueue) Migrate(ctx context.Context) error {
	if q == nil || q.storage == nil {
		return fmt.Errorf("gojob: sql queue is not configured")
	}
	if err := q.storage.Migrate(ctx); err != nil {
		return fmt.Errorf("gojob: migrate queue tables: %w", err)
	}
	return nil
}

func queueDialect(driver string) (postgres.Dialect, error) {
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", "postgres", "pgx":
		return postgres.DialectPostgres, nil
	case "sqlite3", "sqlite":
		return postgres.DialectSQLite, nil
	default:
		return "", fmt.Errorf("gojob: unsupported queue driver %q", driver)
	}
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value = strings.TrimSpace(value); value != "" {
			return value
		}
	}
	return ""
}

var (
	_ queue.ScheduledEnqueuer    = (*SQLQueue)(nil)
	_ queue.Dequeuer             = (*SQLQueue)(nil)
	_ queue.DispatchStatusReader = (*SQLQueue)(nil)
)
