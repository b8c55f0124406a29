package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
)

func createTableDDL(t tableName) string {
	columns := []string{
		"id BIGSERIAL PRIMARY KEY",
		"entity_type VARCHAR(255) NOT NULL",
		"happened_at BIGINT NOT NULL",
		"entity_key VARCHAR(255) NOT NULL",
		"actor_id BIGINT NULL",
		"actor_ip VARCHAR(255) NULL",
		"remark TEXT NULL",
		"kind VARCHAR(16) NOT NULL",
		"changes TEXT NULL",
		"request_url VARCHAR(255) NULL",
		"collect_micros BIGINT NOT NULL DEFAULT 0",
		"convert_micros BIGINT NOT NULL DEFAULT 0",
	}

	return fmt.Sprintf(`
    CREATE TABLE IF NOT EXISTS %s (
        %s
    );
    `, t.Quoted(), strings.Join(columns, ",\n\t"))
}

func createIndexDDL(t tableName) string {
	index := quoteIdent(fmt.Sprintf("idx_%s_type_happened", t.name))
	return fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (entity_type ASC, happened_at DESC);`, index, t.Quoted())
}

func migrate(ctx context.Context, pool *pgxpool.Pool, t tableName) error {
	if _, err := pool.Exec(ctx, createTableDDL(t)); err != nil {
		return fmt.Errorf("postgres.Migrate: create table %s: %w", t, err)
	}
	if _, err := pool.Exec(ctx, createIndexDDL(t)); err != nil {
		return fmt.Errorf("postgres.Migrate: create index on %s: %w", t, err)
	}
	return nil
}
