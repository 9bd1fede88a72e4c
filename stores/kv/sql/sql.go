// Package sql implements kv.Store on a single table in postgres or sqlite.
package sql

import (
	"context"
	"database/sql"
	"net/http"
	"net/url"
	"strconv"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/bsv-blockchain/addressindex/util"
	"github.com/bsv-blockchain/addressindex/util/usql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// pageSize bounds how many rows a scan holds in memory. Rows are fetched page by page
// so that no cursor stays open while the index is written.
const pageSize = 256

type SQL struct {
	logger ulogger.Logger
	db     *usql.DB
	engine util.SQLEngine
}

func New(logger ulogger.Logger, storeURL *url.URL, tSettings *settings.Settings) (*SQL, error) {
	db, err := util.InitSQLDB(logger, storeURL, tSettings)
	if err != nil {
		return nil, errors.NewStorageError("failed to init sql db", err)
	}

	engine := util.SQLEngine(storeURL.Scheme)

	switch engine {
	case util.Postgres:
		err = createPostgresSchema(db)
	case util.Sqlite, util.SqliteMemory:
		err = createSqliteSchema(db)
	default:
		err = errors.NewConfigurationError("unknown database engine: %s", storeURL.Scheme)
	}

	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQL{
		logger: logger,
		db:     db,
		engine: engine,
	}, nil
}

func createPostgresSchema(db *usql.DB) error {
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS kv (
	    key    BYTEA PRIMARY KEY
	    ,value BYTEA NOT NULL
	  );
	`); err != nil {
		return errors.NewStorageError("could not create kv table", err)
	}

	return nil
}

func createSqliteSchema(db *usql.DB) error {
	if _, err := db.Exec(`
      CREATE TABLE IF NOT EXISTS kv (
	    key    BLOB PRIMARY KEY
	    ,value BLOB NOT NULL
	  );
	`); err != nil {
		return errors.NewStorageError("could not create kv table", err)
	}

	return nil
}

func (s *SQL) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	if err := s.db.PingContext(ctx); err != nil {
		return http.StatusServiceUnavailable, string(s.engine) + " Store", errors.NewStorageUnavailableError("[sql] ping failed", err)
	}

	return http.StatusOK, string(s.engine) + " Store", nil
}

func (s *SQL) Get(ctx context.Context, key []byte) ([]byte, error) {
	var value []byte

	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = $1`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.ErrNotFound
		}

		return nil, errors.NewStorageError("[sql] get failed", err)
	}

	return value, nil
}

const upsertQuery = `INSERT INTO kv (key, value) VALUES ($1, $2)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value`

const deleteQuery = `DELETE FROM kv WHERE key = $1`

func (s *SQL) Put(ctx context.Context, key []byte, value []byte) error {
	if _, err := s.db.ExecContext(ctx, upsertQuery, key, nonNil(value)); err != nil {
		return errors.NewStorageError("[sql] put failed", err)
	}

	return nil
}

func (s *SQL) Delete(ctx context.Context, key []byte) error {
	if _, err := s.db.ExecContext(ctx, deleteQuery, key); err != nil {
		return errors.NewStorageError("[sql] delete failed", err)
	}

	return nil
}

func (s *SQL) Write(ctx context.Context, ops []kv.Operation) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		for _, op := range ops {
			var err error

			switch op.Type {
			case kv.OperationPut:
				_, err = tx.ExecContext(ctx, upsertQuery, op.Key, nonNil(op.Value))
			case kv.OperationDelete:
				_, err = tx.ExecContext(ctx, deleteQuery, op.Key)
			default:
				return errors.NewInvalidArgumentError("[sql] unknown operation type %d", op.Type)
			}

			if err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, errors.ErrInvalidArgument) {
			return err
		}

		return errors.NewStorageError("[sql] batch write of %d operations failed", len(ops), err)
	}

	return nil
}

func (s *SQL) Scan(ctx context.Context, opts kv.ScanOptions) kv.Iterator {
	start, limit := opts.Range()

	return &pageIterator{
		ctx:     ctx,
		db:      s.db,
		start:   start,
		limit:   limit,
		reverse: opts.Reverse,
		pos:     -1,
	}
}

func (s *SQL) Close() error {
	return s.db.Close()
}

// sqlite rejects a NULL value in a NOT NULL column, and empty values are common.
func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}

	return b
}

type row struct {
	key   []byte
	value []byte
}

type pageIterator struct {
	ctx      context.Context
	db       *usql.DB
	start    []byte
	limit    []byte
	reverse  bool
	page     []row
	pos      int
	last     []byte
	done     bool
	released bool
	err      error
}

func (i *pageIterator) Next() bool {
	if i.err != nil || i.released {
		return false
	}

	if err := i.ctx.Err(); err != nil {
		i.err = err
		return false
	}

	i.pos++
	if i.pos < len(i.page) {
		return true
	}

	if i.done {
		return false
	}

	if err := i.fetch(); err != nil {
		i.err = err
		return false
	}

	i.pos = 0

	return len(i.page) > 0
}

func (i *pageIterator) fetch() error {
	var (
		where []string
		args  []interface{}
	)

	lower, lowerInclusive := i.start, true
	upper := i.limit

	if i.last != nil {
		if i.reverse {
			upper = i.last
		} else {
			lower, lowerInclusive = i.last, false
		}
	}

	if lower != nil {
		args = append(args, lower)
		if lowerInclusive {
			where = append(where, "key >= "+placeholder(len(args)))
		} else {
			where = append(where, "key > "+placeholder(len(args)))
		}
	}

	if upper != nil {
		args = append(args, upper)
		where = append(where, "key < "+placeholder(len(args)))
	}

	q := "SELECT key, value FROM kv"
	for n, w := range where {
		if n == 0 {
			q += " WHERE " + w
		} else {
			q += " AND " + w
		}
	}

	if i.reverse {
		q += " ORDER BY key DESC"
	} else {
		q += " ORDER BY key ASC"
	}

	args = append(args, pageSize)
	q += " LIMIT " + placeholder(len(args))

	rows, err := i.db.QueryContext(i.ctx, q, args...)
	if err != nil {
		return errors.NewStorageError("[sql] scan failed", err)
	}

	defer rows.Close()

	i.page = i.page[:0]

	for rows.Next() {
		var r row
		if err = rows.Scan(&r.key, &r.value); err != nil {
			return errors.NewStorageError("[sql] scan row failed", err)
		}

		i.page = append(i.page, r)
	}

	if err = rows.Err(); err != nil {
		return errors.NewStorageError("[sql] scan rows failed", err)
	}

	if len(i.page) < pageSize {
		i.done = true
	}

	if len(i.page) > 0 {
		i.last = i.page[len(i.page)-1].key
	}

	return nil
}

func placeholder(n int) string {
	return "$" + strconv.Itoa(n)
}

func (i *pageIterator) Key() []byte {
	return i.page[i.pos].key
}

func (i *pageIterator) Value() []byte {
	return i.page[i.pos].value
}

func (i *pageIterator) Err() error {
	return i.err
}

func (i *pageIterator) Release() {
	i.released = true
	i.page = nil
}
