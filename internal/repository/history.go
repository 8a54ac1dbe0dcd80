package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"github.com/joseph-ayodele/labreport/internal/common"
	"github.com/joseph-ayodele/labreport/internal/entity"
)

// HistoryRepository is the append-only result store.
type HistoryRepository interface {
	// Append stores a report and returns the new record id.
	Append(ctx context.Context, report entity.StructuredReport) (int64, error)
	// ListAll returns every record, newest first.
	ListAll(ctx context.Context) ([]entity.HistoryRecord, error)
	Get(ctx context.Context, id int64) (*entity.HistoryRecord, error)
	// Delete removes a record. Deleting a missing id is not an error.
	Delete(ctx context.Context, id int64) error
}

// HistoryOption customizes a history repository.
type HistoryOption func(*historyRepository)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) HistoryOption {
	return func(r *historyRepository) {
		if now != nil {
			r.now = now
		}
	}
}

type historyRepository struct {
	drv     dialect.Driver
	dialect string
	now     func() time.Time
	logger  *slog.Logger

	// writes are serialized; reads run freely
	mu sync.Mutex
}

func NewHistoryRepository(store *Store, logger *slog.Logger, opts ...HistoryOption) HistoryRepository {
	if logger == nil {
		logger = slog.Default()
	}
	r := &historyRepository{
		drv:     store.Driver,
		dialect: store.Dialect,
		now:     time.Now,
		logger:  logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

func (r *historyRepository) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.dialect)
}

func (r *historyRepository) Append(ctx context.Context, report entity.StructuredReport) (int64, error) {
	payload, err := json.Marshal(report)
	if err != nil {
		return 0, fmt.Errorf("encode report: %w", err)
	}
	createdAt := r.now().UTC()

	ins := r.builder().Insert(historyTable).
		Columns(historyColCreatedAt, historyColTitle, historyColSummary, historyColFullPayload).
		Values(createdAt.UnixMilli(), report.Title, report.CoreConclusion, string(payload))

	r.mu.Lock()
	defer r.mu.Unlock()

	var id int64
	if r.dialect == dialect.Postgres {
		query, args := ins.Returning(historyColID).Query()
		rows := &entsql.Rows{}
		if err := r.drv.Query(ctx, query, args, rows); err != nil {
			r.logger.Error("history.append.failed", "error", err)
			return 0, fmt.Errorf("%w: insert history: %v", common.ErrDatabase, err)
		}
		defer rows.Close()
		if !rows.Next() {
			return 0, fmt.Errorf("%w: insert history returned no id", common.ErrDatabase)
		}
		if err := rows.Scan(&id); err != nil {
			return 0, fmt.Errorf("%w: scan history id: %v", common.ErrDatabase, err)
		}
	} else {
		query, args := ins.Query()
		var res sql.Result
		if err := r.drv.Exec(ctx, query, args, &res); err != nil {
			r.logger.Error("history.append.failed", "error", err)
			return 0, fmt.Errorf("%w: insert history: %v", common.ErrDatabase, err)
		}
		if id, err = res.LastInsertId(); err != nil {
			return 0, fmt.Errorf("%w: last insert id: %v", common.ErrDatabase, err)
		}
	}

	r.logger.Info("history.append.ok", "id", id, "title", report.Title)
	return id, nil
}

func (r *historyRepository) selectAll() *entsql.Selector {
	b := r.builder()
	return b.Select(historyColID, historyColCreatedAt, historyColTitle, historyColSummary, historyColFullPayload).
		From(b.Table(historyTable))
}

func (r *historyRepository) ListAll(ctx context.Context) ([]entity.HistoryRecord, error) {
	query, args := r.selectAll().OrderBy(entsql.Desc(historyColID)).Query()
	recs, err := r.query(ctx, query, args)
	if err != nil {
		r.logger.Error("history.list.failed", "error", err)
		return nil, err
	}
	return recs, nil
}

func (r *historyRepository) Get(ctx context.Context, id int64) (*entity.HistoryRecord, error) {
	query, args := r.selectAll().Where(entsql.EQ(historyColID, id)).Query()
	recs, err := r.query(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, fmt.Errorf("history %d: %w", id, common.ErrNotFound)
	}
	return &recs[0], nil
}

func (r *historyRepository) Delete(ctx context.Context, id int64) error {
	query, args := r.builder().Delete(historyTable).Where(entsql.EQ(historyColID, id)).Query()

	r.mu.Lock()
	defer r.mu.Unlock()

	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("history.delete.failed", "id", id, "error", err)
		return fmt.Errorf("%w: delete history: %v", common.ErrDatabase, err)
	}
	n, _ := res.RowsAffected()
	r.logger.Info("history.delete.ok", "id", id, "rows", n)
	return nil
}

func (r *historyRepository) query(ctx context.Context, query string, args []any) ([]entity.HistoryRecord, error) {
	rows := &entsql.Rows{}
	if err := r.drv.Query(ctx, query, args, rows); err != nil {
		return nil, fmt.Errorf("%w: query history: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	out := make([]entity.HistoryRecord, 0)
	for rows.Next() {
		var (
			rec       entity.HistoryRecord
			createdAt int64
		)
		if err := rows.Scan(&rec.ID, &createdAt, &rec.Title, &rec.Summary, &rec.FullPayload); err != nil {
			return nil, fmt.Errorf("%w: scan history: %v", common.ErrDatabase, err)
		}
		rec.CreatedAt = time.UnixMilli(createdAt).UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate history: %v", common.ErrDatabase, err)
	}
	return out, nil
}
