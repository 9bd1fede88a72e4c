// Package leveldb implements kv.Store on top of goleveldb.
package leveldb

import (
	"context"
	"net/http"
	"net/url"
	"os"
	"path/filepath"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
	"github.com/btcsuite/goleveldb/leveldb"
	"github.com/btcsuite/goleveldb/leveldb/iterator"
	"github.com/btcsuite/goleveldb/leveldb/opt"
	"github.com/btcsuite/goleveldb/leveldb/storage"
	"github.com/btcsuite/goleveldb/leveldb/util"
	"github.com/ordishs/gocore"
)

var stat = gocore.NewStat("kv_leveldb")

type Store struct {
	logger ulogger.Logger
	db     *leveldb.DB
	name   string
}

// New opens the database at the URL path, relative to the working directory. The
// "memory" scheme opens a throwaway in-memory database.
func New(logger ulogger.Logger, storeURL *url.URL) (*Store, error) {
	if storeURL.Scheme == "memory" {
		return NewMemory(logger)
	}

	dir := "." + storeURL.Path
	if storeURL.Host != "" {
		dir = filepath.Join(storeURL.Host, storeURL.Path)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.NewStorageError("[leveldb] failed to create folder %s", dir, err)
	}

	db, err := leveldb.OpenFile(dir, &opt.Options{
		BlockCacheCapacity: 8 * opt.MiB,
		WriteBuffer:        16 * opt.MiB,
	})
	if err != nil {
		return nil, errors.NewStorageError("[leveldb] failed to open %s", dir, err)
	}

	logger.Infof("[leveldb] opened %s", dir)

	return &Store{logger: logger, db: db, name: dir}, nil
}

func NewMemory(logger ulogger.Logger) (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.NewStorageError("[leveldb] failed to open memory storage", err)
	}

	return &Store{logger: logger, db: db, name: "memory"}, nil
}

func (s *Store) Health(_ context.Context, checkLiveness bool) (int, string, error) {
	if checkLiveness {
		return http.StatusOK, "OK", nil
	}

	if _, err := s.db.GetProperty("leveldb.num-files-at-level0"); err != nil {
		return http.StatusServiceUnavailable, "LevelDB Store", errors.NewStorageUnavailableError("[leveldb] %s", s.name, err)
	}

	return http.StatusOK, "LevelDB Store", nil
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := gocore.CurrentTime()
	defer stat.NewStat("Get").AddTime(start)

	value, err := s.db.Get(key, nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, errors.ErrNotFound
		}

		return nil, errors.NewStorageError("[leveldb] get failed", err)
	}

	return value, nil
}

func (s *Store) Put(ctx context.Context, key []byte, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.Put(key, value, nil); err != nil {
		return errors.NewStorageError("[leveldb] put failed", err)
	}

	return nil
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := s.db.Delete(key, nil); err != nil {
		return errors.NewStorageError("[leveldb] delete failed", err)
	}

	return nil
}

func (s *Store) Write(ctx context.Context, ops []kv.Operation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := gocore.CurrentTime()
	defer stat.NewStat("Write").AddTime(start)

	batch := new(leveldb.Batch)

	for _, op := range ops {
		switch op.Type {
		case kv.OperationPut:
			batch.Put(op.Key, op.Value)
		case kv.OperationDelete:
			batch.Delete(op.Key)
		default:
			return errors.NewInvalidArgumentError("[leveldb] unknown operation type %d", op.Type)
		}
	}

	if err := s.db.Write(batch, &opt.WriteOptions{Sync: false}); err != nil {
		return errors.NewStorageError("[leveldb] batch write of %d operations failed", len(ops), err)
	}

	return nil
}

func (s *Store) Scan(ctx context.Context, opts kv.ScanOptions) kv.Iterator {
	start, limit := opts.Range()

	return &scanIterator{
		ctx:     ctx,
		it:      s.db.NewIterator(&util.Range{Start: start, Limit: limit}, nil),
		reverse: opts.Reverse,
	}
}

func (s *Store) Close() error {
	return s.db.Close()
}

type scanIterator struct {
	ctx      context.Context
	it       iterator.Iterator
	reverse  bool
	started  bool
	released bool
	err      error
}

func (i *scanIterator) Next() bool {
	if i.err != nil || i.released {
		return false
	}

	if err := i.ctx.Err(); err != nil {
		i.err = err
		return false
	}

	if !i.started {
		i.started = true

		if i.reverse {
			return i.it.Last()
		}

		return i.it.First()
	}

	if i.reverse {
		return i.it.Prev()
	}

	return i.it.Next()
}

func (i *scanIterator) Key() []byte {
	return append([]byte(nil), i.it.Key()...)
}

func (i *scanIterator) Value() []byte {
	return append([]byte(nil), i.it.Value()...)
}

func (i *scanIterator) Err() error {
	if i.err != nil {
		return i.err
	}

	if err := i.it.Error(); err != nil {
		return errors.NewStorageError("[leveldb] iterator failed", err)
	}

	return nil
}

func (i *scanIterator) Release() {
	if i.released {
		return
	}

	i.released = true
	i.it.Release()
}
