package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

const catalogSchema = `
CREATE TABLE IF NOT EXISTS catalog_entities (
	id          UUID PRIMARY KEY,
	scope       TEXT NOT NULL,
	entity_type TEXT NOT NULL,
	natural_key TEXT NOT NULL,
	active      BOOLEAN NOT NULL DEFAULT TRUE,
	fields      JSONB NOT NULL DEFAULT '{}'::jsonb,
	refs        JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT catalog_entities_natural_key_unique UNIQUE (scope, entity_type, natural_key)
);
CREATE INDEX IF NOT EXISTS catalog_entities_scope_type_idx ON catalog_entities (scope, entity_type);
`

const selectEntityColumns = `id::text, scope, entity_type, natural_key, active, fields, refs, created_at, updated_at`

// PostgresCatalog is the pgx-backed catalog adapter. Writes go through
// [PostgresCatalog.Begin]; each transaction holds a transaction-scoped
// advisory lock on its scope so concurrent batches for one scope serialize.
type PostgresCatalog struct {
	pool *pgxpool.Pool
}

var _ Transactor = (*PostgresCatalog)(nil)

// NewPostgresCatalog wraps an existing pool.
func NewPostgresCatalog(pool *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{pool: pool}
}

// Migrate creates the catalog table if it does not exist.
func (c *PostgresCatalog) Migrate(ctx context.Context) error {
	if _, err := c.pool.Exec(ctx, catalogSchema); err != nil {
		return fmt.Errorf("migrate catalog: %w", err)
	}
	return nil
}

func (c *PostgresCatalog) FindByNaturalKey(ctx context.Context, scope string, t EntityType, key NaturalKey) (Entity, bool, error) {
	return findByNaturalKey(ctx, c.pool, scope, t, key)
}

func (c *PostgresCatalog) FindByNaturalKeys(ctx context.Context, scope string, t EntityType, keys []NaturalKey) (map[NaturalKey]Entity, error) {
	return findByNaturalKeys(ctx, c.pool, scope, t, keys)
}

func (c *PostgresCatalog) FindByField(ctx context.Context, scope string, t EntityType, field, value string) ([]Entity, error) {
	return findByField(ctx, c.pool, scope, t, field, value)
}

// Begin starts a transaction and takes the scope's advisory lock. The lock is
// released when the transaction commits or rolls back.
func (c *PostgresCatalog) Begin(ctx context.Context, scope string) (Tx, error) {
	tx, err := c.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, "catalog:"+scope); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("acquire scope lock: %w", err)
	}
	return &pgTx{tx: tx}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) FindByNaturalKey(ctx context.Context, scope string, et EntityType, key NaturalKey) (Entity, bool, error) {
	return findByNaturalKey(ctx, t.tx, scope, et, key)
}

func (t *pgTx) FindByNaturalKeys(ctx context.Context, scope string, et EntityType, keys []NaturalKey) (map[NaturalKey]Entity, error) {
	return findByNaturalKeys(ctx, t.tx, scope, et, keys)
}

func (t *pgTx) FindByField(ctx context.Context, scope string, et EntityType, field, value string) ([]Entity, error) {
	return findByField(ctx, t.tx, scope, et, field, value)
}

func (t *pgTx) Upsert(ctx context.Context, scope string, et EntityType, in UpsertInput) (UpsertResult, error) {
	if in.Key == "" {
		return UpsertResult{}, fmt.Errorf("upsert %s: empty natural key", et)
	}
	fields, err := json.Marshal(nonNilFields(in.Fields))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal fields: %w", err)
	}
	refs, err := json.Marshal(nonNilRefs(in.Refs))
	if err != nil {
		return UpsertResult{}, fmt.Errorf("marshal refs: %w", err)
	}

	var res UpsertResult
	err = t.tx.QueryRow(ctx, `
		INSERT INTO catalog_entities (id, scope, entity_type, natural_key, active, fields, refs)
		VALUES ($1::uuid, $2, $3, $4, $5, $6::jsonb, $7::jsonb)
		ON CONFLICT (scope, entity_type, natural_key) DO UPDATE
		SET active = EXCLUDED.active,
		    fields = EXCLUDED.fields,
		    refs = EXCLUDED.refs,
		    updated_at = now()
		RETURNING id::text, (xmax = 0) AS inserted`,
		uuid.NewString(), scope, string(et), string(in.Key), in.Active, fields, refs,
	).Scan(&res.ID, &res.Created)
	if err != nil {
		return UpsertResult{}, fmt.Errorf("upsert %s %q: %w", et, in.Key, err)
	}
	return res, nil
}

func (t *pgTx) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *pgTx) Rollback(ctx context.Context) error {
	err := t.tx.Rollback(ctx)
	if errors.Is(err, pgx.ErrTxClosed) {
		return nil
	}
	return err
}

func findByNaturalKey(ctx context.Context, db DBTX, scope string, t EntityType, key NaturalKey) (Entity, bool, error) {
	row := db.QueryRow(ctx,
		`SELECT `+selectEntityColumns+` FROM catalog_entities
		 WHERE scope = $1 AND entity_type = $2 AND natural_key = $3`,
		scope, string(t), string(key))
	e, err := scanEntity(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Entity{}, false, nil
	}
	if err != nil {
		return Entity{}, false, fmt.Errorf("find %s %q: %w", t, key, err)
	}
	return e, true, nil
}

func findByNaturalKeys(ctx context.Context, db DBTX, scope string, t EntityType, keys []NaturalKey) (map[NaturalKey]Entity, error) {
	out := make(map[NaturalKey]Entity)
	if len(keys) == 0 {
		return out, nil
	}
	raw := make([]string, len(keys))
	for i, k := range keys {
		raw[i] = string(k)
	}
	rows, err := db.Query(ctx,
		`SELECT `+selectEntityColumns+` FROM catalog_entities
		 WHERE scope = $1 AND entity_type = $2 AND natural_key = ANY($3)`,
		scope, string(t), raw)
	if err != nil {
		return nil, fmt.Errorf("find %s by keys: %w", t, err)
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		out[e.Key] = e
	}
	return out, rows.Err()
}

func findByField(ctx context.Context, db DBTX, scope string, t EntityType, field, value string) ([]Entity, error) {
	want := NormalizeKeyPart(value)
	if want == "" {
		return nil, nil
	}
	rows, err := db.Query(ctx,
		`SELECT `+selectEntityColumns+` FROM catalog_entities
		 WHERE scope = $1 AND entity_type = $2
		   AND lower(regexp_replace(btrim(fields ->> $3), '\s+', ' ', 'g')) = $4
		 ORDER BY id`,
		scope, string(t), field, want)
	if err != nil {
		return nil, fmt.Errorf("find %s by %s: %w", t, field, err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", t, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanEntity(row pgx.Row) (Entity, error) {
	var (
		e          Entity
		entityType string
		key        string
		fields     []byte
		refs       []byte
	)
	if err := row.Scan(&e.ID, &e.Scope, &entityType, &key, &e.Active, &fields, &refs, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return Entity{}, err
	}
	e.Type = EntityType(entityType)
	e.Key = NaturalKey(key)
	if len(fields) > 0 {
		if err := json.Unmarshal(fields, &e.Fields); err != nil {
			return Entity{}, fmt.Errorf("decode fields: %w", err)
		}
	}
	if len(refs) > 0 {
		if err := json.Unmarshal(refs, &e.Refs); err != nil {
			return Entity{}, fmt.Errorf("decode refs: %w", err)
		}
	}
	return e, nil
}

func nonNilFields(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func nonNilRefs(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
