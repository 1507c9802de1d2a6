package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"sktvault/core/events"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

// Open connects to the configured database and applies migrations.
func Open(driver, dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("indexer: dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case DriverSQLite, "":
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return db, nil
}

// Indexer persists committed events into a relational store.
type Indexer struct {
	db      *gorm.DB
	session string
	logger  *slog.Logger
	now     func() time.Time
}

// New wraps an opened database. The schema is migrated if needed.
func New(db *gorm.DB) (*Indexer, error) {
	if db == nil {
		return nil, fmt.Errorf("indexer: database required")
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return &Indexer{
		db:      db,
		session: uuid.NewString(),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		now:     time.Now,
	}, nil
}

// SetLogger configures the logger used for ingest failures.
func (i *Indexer) SetLogger(l *slog.Logger) {
	if l != nil {
		i.logger = l
	}
}

// Session identifies the event stream this indexer instance consumes.
func (i *Indexer) Session() string { return i.session }

// Store persists a single record. Records already stored are ignored.
func (i *Indexer) Store(ctx context.Context, rec events.Record) error {
	row, err := NewRecord(i.session, rec, i.now())
	if err != nil {
		return err
	}
	return i.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "fingerprint"}}, DoNothing: true}).
		Create(row).Error
}

// Consume implements events.Sink. Attach the indexer to the node's broker so
// every committed record is stored synchronously, in sequence order.
func (i *Indexer) Consume(rec events.Record) {
	i.ingest(context.Background(), rec)
}

func (i *Indexer) ingest(ctx context.Context, rec events.Record) {
	if err := i.Store(ctx, rec); err != nil && !errors.Is(err, context.Canceled) {
		i.logger.Error("index event", "type", rec.Event.Type, "sequence", rec.Sequence, "error", err)
	}
}

// Filter narrows event queries. Zero fields match everything.
type Filter struct {
	Type          string
	Module        string
	Actor         string
	Vault         string
	Raffle        string
	AfterSequence uint64
	Limit         int
}

func (f Filter) apply(q *gorm.DB) *gorm.DB {
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.Module != "" {
		q = q.Where("module = ?", f.Module)
	}
	if f.Actor != "" {
		q = q.Where("actor = ?", f.Actor)
	}
	if f.Vault != "" {
		q = q.Where("vault = ?", f.Vault)
	}
	if f.Raffle != "" {
		q = q.Where("raffle = ?", f.Raffle)
	}
	if f.AfterSequence > 0 {
		q = q.Where("sequence > ?", f.AfterSequence)
	}
	return q
}

// Query returns stored events ordered by ingestion.
func (i *Indexer) Query(ctx context.Context, f Filter) ([]EventRecord, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = defaultQueryLimit
	}
	if limit > maxQueryLimit {
		limit = maxQueryLimit
	}
	var out []EventRecord
	q := f.apply(i.db.WithContext(ctx).Model(&EventRecord{}))
	if err := q.Order("created_at ASC").Order("sequence ASC").Limit(limit).Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// Count reports how many events match the filter, ignoring Limit.
func (i *Indexer) Count(ctx context.Context, f Filter) (int64, error) {
	var n int64
	err := f.apply(i.db.WithContext(ctx).Model(&EventRecord{})).Count(&n).Error
	return n, err
}
