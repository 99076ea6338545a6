package tier

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	contractx "github.com/retailmesh/agentcore/core/contract"
)

// BunWarmConfig configures the Postgres-backed warm tier.
type BunWarmConfig struct {
	DSN           string        `envconfig:"DSN" split_words:"true" required:"true"`
	Timeout       time.Duration `envconfig:"TIMEOUT" split_words:"true" default:"5s"`
	RetentionDays int           `envconfig:"RETENTION_DAYS" split_words:"true" default:"90"`
}

type warmRecord struct {
	bun.BaseModel `bun:"table:warm_entries,alias:w"`

	Partition string    `bun:"partition_key,pk"`
	Key       string    `bun:"key,pk"`
	Value     []byte    `bun:"value"`
	UpdatedAt time.Time `bun:"updated_at,notnull"`
	ExpiresAt time.Time `bun:"expires_at,notnull"`
}

// BunWarm stores durable entries in Postgres, partitioned by the caller's
// partition hint. A retention TTL (default 90 days) is stamped on every
// write and enforced both at read time and by Sweep.
type BunWarm struct {
	db        *bun.DB
	retention time.Duration
	now       func() time.Time
}

func NewBunWarm(cfg BunWarmConfig) (*BunWarm, error) {
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("warm tier dsn is required")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	retentionDays := cfg.RetentionDays
	if retentionDays <= 0 {
		retentionDays = 90
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(
		pgdriver.WithDSN(dsn),
		pgdriver.WithTimeout(timeout),
	))
	db := bun.NewDB(sqldb, pgdialect.New())

	return &BunWarm{
		db:        db,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
	}, nil
}

// Migrate creates the warm_entries table if it does not exist.
func (w *BunWarm) Migrate(ctx context.Context) error {
	_, err := w.db.NewCreateTable().
		Model((*warmRecord)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: warm migrate: %v", contractx.ErrTierUnavailable, err)
	}
	return nil
}

func (w *BunWarm) Get(ctx context.Context, partition, key string) ([]byte, error) {
	if strings.TrimSpace(partition) == "" {
		return nil, contractx.ErrMissingPartitionKey
	}

	rec := new(warmRecord)
	err := w.db.NewSelect().
		Model(rec).
		Where("partition_key = ?", partition).
		Where("key = ?", key).
		Where("expires_at > ?", w.now().UTC()).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contractx.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: warm get: %v", contractx.ErrTierUnavailable, err)
	}
	return rec.Value, nil
}

func (w *BunWarm) Put(ctx context.Context, partition, key string, value []byte) error {
	if strings.TrimSpace(partition) == "" {
		return contractx.ErrMissingPartitionKey
	}

	now := w.now().UTC()
	rec := &warmRecord{
		Partition: partition,
		Key:       key,
		Value:     value,
		UpdatedAt: now,
		ExpiresAt: now.Add(w.retention),
	}
	_, err := w.db.NewInsert().
		Model(rec).
		On("CONFLICT (partition_key, key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Set("expires_at = EXCLUDED.expires_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: warm put: %v", contractx.ErrTierUnavailable, err)
	}
	return nil
}

func (w *BunWarm) Delete(ctx context.Context, partition, key string) error {
	if strings.TrimSpace(partition) == "" {
		return contractx.ErrMissingPartitionKey
	}

	_, err := w.db.NewDelete().
		Model((*warmRecord)(nil)).
		Where("partition_key = ?", partition).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: warm delete: %v", contractx.ErrTierUnavailable, err)
	}
	return nil
}

// Sweep deletes entries past their retention deadline. Postgres has no
// native row TTL, so the manager's Sweep hook lands here.
func (w *BunWarm) Sweep(ctx context.Context) error {
	_, err := w.db.NewDelete().
		Model((*warmRecord)(nil)).
		Where("expires_at <= ?", w.now().UTC()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("%w: warm sweep: %v", contractx.ErrTierUnavailable, err)
	}
	return nil
}

// Close releases the connection pool.
func (w *BunWarm) Close() error {
	return w.db.Close()
}
