// Package tests holds behaviour checks shared by every kv.Store implementation.
package tests

import (
	"context"
	"testing"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Collect drains an iterator and returns its keys.
func Collect(t *testing.T, it kv.Iterator) [][]byte {
	t.Helper()

	defer it.Release()

	var keys [][]byte
	for it.Next() {
		keys = append(keys, it.Key())
	}

	require.NoError(t, it.Err())

	return keys
}

func seed(t *testing.T, store kv.Store, keys ...string) {
	t.Helper()

	ops := make([]kv.Operation, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, kv.Put([]byte(k), []byte("v"+k)))
	}

	require.NoError(t, store.Write(context.Background(), ops))
}

func asStrings(keys [][]byte) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, string(k))
	}

	return out
}

func GetPutDelete(t *testing.T, store kv.Store) {
	ctx := context.Background()

	_, err := store.Get(ctx, []byte("missing"))
	require.ErrorIs(t, err, errors.ErrNotFound)

	require.NoError(t, store.Put(ctx, []byte("a"), []byte{1, 2, 3}))

	value, err := store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, value)

	require.NoError(t, store.Put(ctx, []byte("a"), []byte{4}))

	value, err = store.Get(ctx, []byte("a"))
	require.NoError(t, err)
	assert.Equal(t, []byte{4}, value)

	require.NoError(t, store.Delete(ctx, []byte("a")))

	_, err = store.Get(ctx, []byte("a"))
	require.ErrorIs(t, err, errors.ErrNotFound)
}

func WriteBatch(t *testing.T, store kv.Store) {
	ctx := context.Background()

	require.NoError(t, store.Write(ctx, []kv.Operation{
		kv.Put([]byte("k1"), []byte("1")),
		kv.Put([]byte("k2"), nil),
		kv.Del([]byte("k1")),
		kv.Put([]byte("k3"), []byte("3")),
	}))

	_, err := store.Get(ctx, []byte("k1"))
	require.ErrorIs(t, err, errors.ErrNotFound)

	value, err := store.Get(ctx, []byte("k2"))
	require.NoError(t, err)
	assert.Empty(t, value)

	err = store.Write(ctx, []kv.Operation{{Type: kv.OperationType(99), Key: []byte("x")}})
	require.Error(t, err)
}

func ScanBounds(t *testing.T, store kv.Store) {
	ctx := context.Background()

	seed(t, store, "b", "b\x00", "c", "d", "e")

	tests := []struct {
		name   string
		opts   kv.ScanOptions
		expect []string
	}{
		{"gte lte", kv.ScanOptions{GTE: []byte("b"), LTE: []byte("d")}, []string{"b", "b\x00", "c", "d"}},
		{"gt lt", kv.ScanOptions{GT: []byte("b"), LT: []byte("d")}, []string{"b\x00", "c"}},
		{"reverse", kv.ScanOptions{GTE: []byte("c"), LTE: []byte("e"), Reverse: true}, []string{"e", "d", "c"}},
		{"unbounded", kv.ScanOptions{}, []string{"b", "b\x00", "c", "d", "e"}},
		{"empty", kv.ScanOptions{GT: []byte("e")}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, asStrings(Collect(t, store.Scan(ctx, tt.opts))))
		})
	}
}

// ScanLarge crosses any internal paging boundary of the implementation.
func ScanLarge(t *testing.T, store kv.Store) {
	ctx := context.Background()

	ops := make([]kv.Operation, 0, 1000)
	for i := 0; i < 1000; i++ {
		ops = append(ops, kv.Put([]byte{0x10, byte(i >> 8), byte(i)}, []byte{byte(i)}))
	}

	require.NoError(t, store.Write(ctx, ops))

	keys := Collect(t, store.Scan(ctx, kv.ScanOptions{GTE: []byte{0x10}, LT: []byte{0x11}}))
	require.Len(t, keys, 1000)
	assert.Equal(t, []byte{0x10, 0x03, 0xe7}, keys[999])

	keys = Collect(t, store.Scan(ctx, kv.ScanOptions{GTE: []byte{0x10}, LT: []byte{0x11}, Reverse: true}))
	require.Len(t, keys, 1000)
	assert.Equal(t, []byte{0x10, 0x00, 0x00}, keys[999])
}

func ScanCancel(t *testing.T, store kv.Store) {
	seed(t, store, "x1", "x2", "x3")

	ctx, cancel := context.WithCancel(context.Background())

	it := store.Scan(ctx, kv.ScanOptions{GTE: []byte("x")})
	defer it.Release()

	require.True(t, it.Next())
	cancel()

	assert.False(t, it.Next())
	assert.ErrorIs(t, it.Err(), context.Canceled)
}

func Health(t *testing.T, store kv.Store) {
	status, _, err := store.Health(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, 200, status)
}

// RunAll runs every shared check, each against a fresh store.
func RunAll(t *testing.T, newStore func(t *testing.T) kv.Store) {
	checks := map[string]func(*testing.T, kv.Store){
		"GetPutDelete": GetPutDelete,
		"WriteBatch":   WriteBatch,
		"ScanBounds":   ScanBounds,
		"ScanLarge":    ScanLarge,
		"ScanCancel":   ScanCancel,
		"Health":       Health,
	}

	for name, check := range checks {
		t.Run(name, func(t *testing.T) {
			store := newStore(t)
			t.Cleanup(func() { _ = store.Close() })

			check(t, store)
		})
	}
}
