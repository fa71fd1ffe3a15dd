package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bft-labs/walminer/pkg/log"
	"github.com/bft-labs/walminer/pkg/wal"
)

// filenodeQuery resolves through the relation mapper too, so mapped
// catalogs such as pg_class itself are found.
const filenodeQuery = `SELECT pg_filenode_relation($1, $2)::oid`

const databaseQuery = `SELECT oid FROM pg_database WHERE datname = current_database()`

// conn is the part of *pgx.Conn the resolver uses.
type conn interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close(ctx context.Context) error
}

// Postgres resolves against the catalog of a live server. It only knows
// the database it is connected to and shared relations.
type Postgres struct {
	conn     conn
	database uint32
	logger   log.Logger
	cache    map[wal.RelFileLocator]resolved
}

var _ Invalidator = (*Postgres)(nil)

type resolved struct {
	relid uint32
	ok    bool
}

// Connect opens a connection with dsn.
func Connect(ctx context.Context, dsn string, logger log.Logger) (*Postgres, error) {
	if logger == nil {
		logger = log.Nop
	}
	c, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to catalog: %w", err)
	}
	p, err := newPostgres(ctx, c, logger)
	if err != nil {
		c.Close(ctx)
		return nil, err
	}
	return p, nil
}

func newPostgres(ctx context.Context, c conn, logger log.Logger) (*Postgres, error) {
	var dbOid uint32
	if err := c.QueryRow(ctx, databaseQuery).Scan(&dbOid); err != nil {
		return nil, fmt.Errorf("look up current database: %w", err)
	}
	logger.Info("connected to catalog", log.Uint32("database", dbOid))
	return &Postgres{
		conn:     c,
		database: dbOid,
		logger:   logger,
		cache:    make(map[wal.RelFileLocator]resolved),
	}, nil
}

func (p *Postgres) Resolve(ctx context.Context, loc wal.RelFileLocator) (uint32, bool, error) {
	if r, ok := p.cache[loc]; ok {
		return r.relid, r.ok, nil
	}
	if loc.Database != 0 && loc.Database != p.database {
		p.logger.Debug("relation belongs to another database",
			log.Stringer("relation", loc),
			log.Uint32("connected", p.database),
		)
		p.cache[loc] = resolved{}
		return 0, false, nil
	}

	var relid *uint32
	err := p.conn.QueryRow(ctx, filenodeQuery, queryTablespace(loc.Tablespace), loc.RelNumber).Scan(&relid)
	if err != nil {
		return 0, false, fmt.Errorf("resolve %s: %w", loc, err)
	}
	r := resolved{}
	if relid != nil {
		r = resolved{relid: *relid, ok: true}
	}
	p.cache[loc] = r
	return r.relid, r.ok, nil
}

// Invalidate forgets cached answers. Sessions call it when a relation
// file is created, since the mapping of file numbers may have moved.
func (p *Postgres) Invalidate() {
	if len(p.cache) > 0 {
		p.logger.Debug("catalog cache invalidated", log.Int("entries", len(p.cache)))
	}
	clear(p.cache)
}

// Close closes the connection.
func (p *Postgres) Close(ctx context.Context) error {
	return p.conn.Close(ctx)
}

// queryTablespace maps pg_default to 0, which pg_filenode_relation reads
// as the database's default tablespace.
func queryTablespace(ts uint32) uint32 {
	if ts == wal.DefaultTablespace {
		return 0
	}
	return ts
}
