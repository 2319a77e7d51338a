// Package db owns the relational schema and everything that writes to it:
// the reconciler that makes a term agree with a snapshot, and the updater's
// seat-count and new-section writes.
package db

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

//go:embed schema.sql
var Schema string

// DefaultChunkSize is the number of statements sent per batch round trip.
const DefaultChunkSize = 1000

type Database struct {
	Pool      *pgxpool.Pool
	ChunkSize int
	Log       zerolog.Logger
}

// Open connects to url and pings the server.
func Open(ctx context.Context, url string, logger zerolog.Logger) (*Database, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("db: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("db: ping: %w", err)
	}
	return &Database{
		Pool:      pool,
		ChunkSize: DefaultChunkSize,
		Log:       logger.With().Str("component", "db").Logger(),
	}, nil
}

func (d *Database) Close() {
	d.Pool.Close()
}

// EnsureSchema creates any missing table.
func (d *Database) EnsureSchema(ctx context.Context) error {
	if _, err := d.Pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("db: apply schema: %w", err)
	}
	return nil
}

func (d *Database) chunkSize() int {
	if d.ChunkSize <= 0 {
		return DefaultChunkSize
	}
	return d.ChunkSize
}

// sendChunked queues n statements, chunkSize per batch, and returns the
// total number of affected rows.
func (d *Database) sendChunked(ctx context.Context, tx pgx.Tx, n int, queue func(batch *pgx.Batch, i int) *pgx.QueuedQuery) (int64, error) {
	var affected int64
	count := func(ct pgconn.CommandTag) error {
		affected += ct.RowsAffected()
		return nil
	}

	size := d.chunkSize()
	for start := 0; start < n; start += size {
		end := min(start+size, n)

		batch := pgx.Batch{}
		for i := start; i < end; i++ {
			queue(&batch, i).Exec(count)
		}
		if err := tx.SendBatch(ctx, &batch).Close(); err != nil {
			return affected, err
		}
	}
	return affected, nil
}

// idMap runs a query returning (id, key parts...) rows and indexes ids by
// the key parts joined with "/".
func idMap(ctx context.Context, tx pgx.Tx, sql string, args ...any) (map[string]int32, error) {
	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make(map[string]int32)
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, err
		}
		id, ok := values[0].(int32)
		if !ok {
			return nil, fmt.Errorf("db: unexpected id type %T", values[0])
		}
		key := ""
		for i, v := range values[1:] {
			if i > 0 {
				key += "/"
			}
			key += fmt.Sprint(v)
		}
		ids[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return ids, nil
}
