package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gosuda/audittrail/internal/domain"
)

const entryColumns = `id, entity_type, happened_at, entity_key, actor_id, actor_ip, remark, kind, changes, request_url, collect_micros, convert_micros`

// AuditRepo is the append-only audit trail table.
type AuditRepo struct {
	pool  *pgxpool.Pool
	table string
}

var _ domain.AuditRepository = (*AuditRepo)(nil)

func NewAuditRepo(pool *pgxpool.Pool, table string) (*AuditRepo, error) {
	tn, err := parseTableName(table)
	if err != nil {
		return nil, fmt.Errorf("postgres.NewAuditRepo: %w", err)
	}
	return newAuditRepo(pool, tn), nil
}

func newAuditRepo(pool *pgxpool.Pool, tn tableName) *AuditRepo {
	return &AuditRepo{pool: pool, table: tn.Quoted()}
}

func (r *AuditRepo) Write(ctx context.Context, e *domain.Entry) error {
	if err := e.Validate(); err != nil {
		return err
	}

	changes, err := encodeChanges(e.Changes)
	if err != nil {
		return fmt.Errorf("auditRepo.Write: marshal changes: %w", err)
	}
	var collect, convert int64
	if e.Timing != nil {
		collect, convert = e.Timing.CollectMicros, e.Timing.ConvertMicros
	}

	err = r.pool.QueryRow(ctx,
		`INSERT INTO `+r.table+` (entity_type, happened_at, entity_key, actor_id, actor_ip, remark, kind, changes, request_url, collect_micros, convert_micros)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING id`,
		e.EntityType, e.HappenedAt.Unix(), e.EntityKey, e.ActorID, e.ActorIP,
		e.Remark, string(e.Kind), changes, e.RequestURL, collect, convert,
	).Scan(&e.ID)
	if err != nil {
		return fmt.Errorf("auditRepo.Write: %w", err)
	}

	return nil
}

func (r *AuditRepo) QueryByEntity(ctx context.Context, entityType, entityKey string) iter.Seq2[*domain.Entry, error] {
	return r.stream(ctx, "auditRepo.QueryByEntity",
		`SELECT `+entryColumns+` FROM `+r.table+`
		 WHERE entity_type = $1 AND entity_key = $2
		 ORDER BY happened_at DESC, id DESC`,
		entityType, entityKey,
	)
}

func (r *AuditRepo) QueryAll(ctx context.Context, f domain.EntryFilter) iter.Seq2[*domain.Entry, error] {
	w := buildFilter(f)
	limit, offset := f.Page()
	args := append(w.args, limit, offset)

	return r.stream(ctx, "auditRepo.QueryAll",
		`SELECT `+entryColumns+` FROM `+r.table+w.String()+
			fmt.Sprintf(` ORDER BY happened_at DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args)),
		args...,
	)
}

func (r *AuditRepo) Count(ctx context.Context, f domain.EntryFilter) (int64, error) {
	w := buildFilter(f)

	var n int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM `+r.table+w.String(), w.args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("auditRepo.Count: %w", err)
	}
	return n, nil
}

func (r *AuditRepo) GetByID(ctx context.Context, id int64) (*domain.Entry, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+entryColumns+` FROM `+r.table+` WHERE id = $1`, id)

	e, err := scanEntry(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("auditRepo.GetByID: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("auditRepo.GetByID: %w", err)
	}
	return e, nil
}

// stream runs query lazily: rows are fetched as the caller ranges and the
// result set is closed when iteration stops.
func (r *AuditRepo) stream(ctx context.Context, caller, query string, args ...any) iter.Seq2[*domain.Entry, error] {
	return func(yield func(*domain.Entry, error) bool) {
		rows, err := r.pool.Query(ctx, query, args...)
		if err != nil {
			yield(nil, fmt.Errorf("%s: %w", caller, err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			e, err := scanEntry(rows)
			if err != nil {
				yield(nil, fmt.Errorf("%s: scan: %w", caller, err))
				return
			}
			if !yield(e, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(nil, fmt.Errorf("%s: rows: %w", caller, err))
		}
	}
}

func scanEntry(row pgx.Row) (*domain.Entry, error) {
	var (
		e          domain.Entry
		happenedAt int64
		kind       string
		changes    *string
		collect    int64
		convert    int64
	)
	if err := row.Scan(
		&e.ID, &e.EntityType, &happenedAt, &e.EntityKey, &e.ActorID, &e.ActorIP,
		&e.Remark, &kind, &changes, &e.RequestURL, &collect, &convert,
	); err != nil {
		return nil, err
	}

	e.HappenedAt = time.Unix(happenedAt, 0).UTC()
	e.Kind = domain.EntryKind(kind)
	if collect != 0 || convert != 0 {
		e.Timing = &domain.Timing{CollectMicros: collect, ConvertMicros: convert}
	}
	if changes != nil {
		cs, err := decodeChanges(*changes)
		if err != nil {
			return nil, fmt.Errorf("unmarshal changes: %w", err)
		}
		e.Changes = cs
	}
	return &e, nil
}

func encodeChanges(cs []domain.ChangeSet) (*string, error) {
	if len(cs) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(cs)
	if err != nil {
		return nil, err
	}
	s := string(b)
	return &s, nil
}

// decodeChanges keeps numbers as json.Number so integer values survive.
func decodeChanges(s string) ([]domain.ChangeSet, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(s)))
	dec.UseNumber()

	var cs []domain.ChangeSet
	if err := dec.Decode(&cs); err != nil {
		return nil, err
	}
	return cs, nil
}
