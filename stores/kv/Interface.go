// Package kv defines the ordered key-value store the address index persists into.
//
// Keys are compared byte-lexicographically. Implementations must support concurrent
// readers and apply a Write batch atomically.
package kv

import (
	"bytes"
	"context"
)

type OperationType uint8

const (
	OperationPut OperationType = iota
	OperationDelete
)

func (t OperationType) String() string {
	switch t {
	case OperationPut:
		return "put"
	case OperationDelete:
		return "del"
	default:
		return "unknown"
	}
}

// Operation is a single mutation inside a Write batch.
type Operation struct {
	Type  OperationType
	Key   []byte
	Value []byte
}

func Put(key, value []byte) Operation {
	return Operation{Type: OperationPut, Key: key, Value: value}
}

func Del(key []byte) Operation {
	return Operation{Type: OperationDelete, Key: key}
}

// ScanOptions bound a range scan. At most one of GT/GTE and one of LT/LTE should be set;
// an unset side is unbounded.
type ScanOptions struct {
	GT      []byte
	GTE     []byte
	LT      []byte
	LTE     []byte
	Reverse bool
}

// Range converts the bounds into the half-open interval [start, limit). A nil start or
// limit means unbounded on that side.
func (o ScanOptions) Range() (start, limit []byte) {
	switch {
	case o.GTE != nil:
		start = o.GTE
	case o.GT != nil:
		start = successor(o.GT)
	}

	switch {
	case o.LT != nil:
		limit = o.LT
	case o.LTE != nil:
		limit = successor(o.LTE)
	}

	return start, limit
}

// Contains reports whether key lies within the bounds.
func (o ScanOptions) Contains(key []byte) bool {
	start, limit := o.Range()

	if start != nil && bytes.Compare(key, start) < 0 {
		return false
	}

	if limit != nil && bytes.Compare(key, limit) >= 0 {
		return false
	}

	return true
}

// successor returns the smallest key strictly greater than key.
func successor(key []byte) []byte {
	s := make([]byte, len(key)+1)
	copy(s, key)

	return s
}

// Iterator walks a scan lazily. Key and Value are only valid until the next call to Next.
// Release must be called once the caller is done, including after an early stop.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Err() error
	Release()
}

type Store interface {
	Health(ctx context.Context, checkLiveness bool) (int, string, error)
	// Get returns errors.ErrNotFound when the key does not exist.
	Get(ctx context.Context, key []byte) ([]byte, error)
	Put(ctx context.Context, key []byte, value []byte) error
	Delete(ctx context.Context, key []byte) error
	// Write commits all operations atomically, in order.
	Write(ctx context.Context, ops []Operation) error
	Scan(ctx context.Context, opts ScanOptions) Iterator
	Close() error
}
