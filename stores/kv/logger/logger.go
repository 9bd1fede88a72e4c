// Package logger wraps a kv.Store and logs every operation at debug level together with
// the calling frames.
package logger

import (
	"context"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/ulogger"
)

type Store struct {
	logger ulogger.Logger
	store  kv.Store
}

func New(logger ulogger.Logger, store kv.Store) kv.Store {
	return &Store{
		logger: logger,
		store:  store,
	}
}

func caller() string {
	var callers []string

	depth := 3

	for i := 0; i < depth; i++ {
		pc, file, line, ok := runtime.Caller(2 + i)
		if !ok {
			break
		}

		file = filepath.Join(lastN(strings.Split(file, string(filepath.Separator)), 3)...)

		funcName := runtime.FuncForPC(pc).Name()
		funcPaths := strings.Split(funcName, "/")
		funcName = funcPaths[len(funcPaths)-1]

		callers = append(callers, fmt.Sprintf("called from %s: %s:%d", funcName, file, line))
	}

	return strings.Join(callers, ",")
}

func lastN(parts []string, n int) []string {
	if len(parts) <= n {
		return parts
	}

	return parts[len(parts)-n:]
}

func (s *Store) Health(ctx context.Context, checkLiveness bool) (int, string, error) {
	return s.store.Health(ctx, checkLiveness)
}

func (s *Store) Get(ctx context.Context, key []byte) ([]byte, error) {
	value, err := s.store.Get(ctx, key)
	s.logger.Debugf("[kv][Get] key %s, value %d bytes, err %v : %s", hex.EncodeToString(key), len(value), err, caller())

	return value, err
}

func (s *Store) Put(ctx context.Context, key []byte, value []byte) error {
	err := s.store.Put(ctx, key, value)
	s.logger.Debugf("[kv][Put] key %s, value %d bytes, err %v : %s", hex.EncodeToString(key), len(value), err, caller())

	return err
}

func (s *Store) Delete(ctx context.Context, key []byte) error {
	err := s.store.Delete(ctx, key)
	s.logger.Debugf("[kv][Delete] key %s, err %v : %s", hex.EncodeToString(key), err, caller())

	return err
}

func (s *Store) Write(ctx context.Context, ops []kv.Operation) error {
	err := s.store.Write(ctx, ops)

	puts := 0

	for _, op := range ops {
		if op.Type == kv.OperationPut {
			puts++
		}
	}

	s.logger.Debugf("[kv][Write] %d puts, %d deletes, err %v : %s", puts, len(ops)-puts, err, caller())

	return err
}

func (s *Store) Scan(ctx context.Context, opts kv.ScanOptions) kv.Iterator {
	start, limit := opts.Range()
	s.logger.Debugf("[kv][Scan] start %s, limit %s, reverse %t : %s", hex.EncodeToString(start), hex.EncodeToString(limit), opts.Reverse, caller())

	return s.store.Scan(ctx, opts)
}

func (s *Store) Close() error {
	return s.store.Close()
}
