package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/conformsync/internal/dbx"
	"github.com/dmitrijs2005/conformsync/internal/server/store/migrations"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// Postgres is a Repository backed by PostgreSQL. Every record of a
// collection is a row keyed by its position, so duplicate ids can exist
// until RemoveDuplicates is run.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens dsn with the pgx driver and applies the migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	p := newPostgres(db)
	if err := p.RunMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return p, nil
}

func newPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

func (p *Postgres) RunMigrations(ctx context.Context) error {
	return dbx.Migrate(ctx, p.db, migrations.Migrations, "postgres")
}

func (p *Postgres) Replace(ctx context.Context, userID, table, deviceID string, records []json.RawMessage) error {
	if err := validate(records); err != nil {
		return err
	}
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := writeRecords(ctx, tx, userID, table, records); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO sync_queue (user_id, table_name, device_id, record_count, status) VALUES ($1, $2, $3, $4, $5)`,
			userID, table, deviceID, len(records), QueuePending)
		if err != nil {
			return fmt.Errorf("failed to enqueue sync: %w", err)
		}
		return nil
	})
}

func writeRecords(ctx context.Context, tx dbx.DBTX, userID, table string, records []json.RawMessage) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE user_id = $1 AND table_name = $2`, userID, table); err != nil {
		return fmt.Errorf("failed to clear records: %w", err)
	}
	for i, r := range records {
		h, _ := readHeader(r)
		_, err := tx.ExecContext(ctx,
			`INSERT INTO records (user_id, table_name, position, record_id, data) VALUES ($1, $2, $3, $4, $5::jsonb)`,
			userID, table, i, h.ID, string(r))
		if err != nil {
			return fmt.Errorf("failed to insert record %d: %w", i, err)
		}
	}
	return nil
}

func readRecords(ctx context.Context, db dbx.DBTX, userID, table string) ([]json.RawMessage, error) {
	out := []json.RawMessage{}
	err := dbx.Each(ctx, db, func(rows *sql.Rows) error {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return err
		}
		out = append(out, json.RawMessage(data))
		return nil
	}, `SELECT data FROM records WHERE user_id = $1 AND table_name = $2 ORDER BY position`, userID, table)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	return out, nil
}

func (p *Postgres) Load(ctx context.Context, userID, table string) ([]json.RawMessage, error) {
	return readRecords(ctx, p.db, userID, table)
}

func (p *Postgres) ApplyQueue(ctx context.Context, userID string) (int, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE sync_queue SET status = $1 WHERE user_id = $2 AND status = $3`, QueueApplied, userID, QueuePending)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res)
}

func (p *Postgres) ResetQueue(ctx context.Context, userID string) (int, error) {
	res, err := p.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE user_id = $1`, userID)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return dbx.RowsAffected(res)
}

// rewrite loads a collection, transforms it and writes it back when fn
// reports changes.
func (p *Postgres) rewrite(ctx context.Context, userID, table string, fn func([]json.RawMessage) ([]json.RawMessage, int, error)) (int, error) {
	var changed int
	err := dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		records, err := readRecords(ctx, tx, userID, table)
		if err != nil {
			return err
		}
		out, n, err := fn(records)
		if err != nil {
			return err
		}
		changed = n
		if n == 0 {
			return nil
		}
		return writeRecords(ctx, tx, userID, table, out)
	})
	if err != nil {
		return 0, err
	}
	return changed, nil
}

func (p *Postgres) RemoveDuplicates(ctx context.Context, userID, table string) (int, error) {
	return p.rewrite(ctx, userID, table, func(r []json.RawMessage) ([]json.RawMessage, int, error) {
		out, n := dedupe(r)
		return out, n, nil
	})
}

func (p *Postgres) FixIDs(ctx context.Context, userID, table string) (int, error) {
	return p.rewrite(ctx, userID, table, fixIDs)
}

func (p *Postgres) CheckTables(ctx context.Context, userID string) ([]TableStat, error) {
	var (
		out     []TableStat
		current string
		batch   []json.RawMessage
	)
	err := dbx.Each(ctx, p.db, func(rows *sql.Rows) error {
		var (
			table string
			data  []byte
		)
		if err := rows.Scan(&table, &data); err != nil {
			return err
		}
		if table != current && batch != nil {
			out = append(out, stat(current, batch))
			batch = nil
		}
		current = table
		batch = append(batch, json.RawMessage(data))
		return nil
	}, `SELECT table_name, data FROM records WHERE user_id = $1 ORDER BY table_name, position`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to select records: %w", err)
	}
	if batch != nil {
		out = append(out, stat(current, batch))
	}
	return out, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
