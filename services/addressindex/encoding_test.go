package addressindex

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestEncodeHistoryKey(t *testing.T) {
	e := NewEncoding(0x0001)

	txid, err := chainhash.NewHashFromStr(strings.Repeat("00", 32))
	require.NoError(t, err)

	k := &HistoryKey{
		Address:   "mzBc4XEFSdzCDcTxAgf6EZXgsZWpztRhef",
		Height:    500000,
		TxID:      *txid,
		Index:     0,
		Direction: DirectionOutput,
		Timestamp: 1600000000,
	}

	b, err := e.EncodeHistoryKey(k)
	require.NoError(t, err)

	expected := "0001" + "00" + "22" + hex.EncodeToString([]byte(k.Address)) +
		"0007a120" + strings.Repeat("00", 32) + "00000000" + "00" + "5f5e1000"
	assert.Equal(t, expected, hex.EncodeToString(b))

	decoded, err := e.DecodeHistoryKey(b)
	require.NoError(t, err)
	assert.Equal(t, k, decoded)
}

func TestHistoryKeyTxIDDisplayOrder(t *testing.T) {
	e := NewEncoding(0x0001)

	txid, err := chainhash.NewHashFromStr("0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20")
	require.NoError(t, err)

	b, err := e.EncodeHistoryKey(&HistoryKey{Address: "a", Height: 1, TxID: *txid})
	require.NoError(t, err)

	// prefix, tag, length, address and height come first
	assert.Equal(t, "0102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f20", hex.EncodeToString(b[9:41]))
}

func TestHistoryKeyRoundTrip(t *testing.T) {
	e := NewEncoding(0x0001)

	rapid.Check(t, func(rt *rapid.T) {
		var txid chainhash.Hash
		copy(txid[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "txid"))

		k := &HistoryKey{
			Address:   string(rapid.SliceOfN(rapid.Byte(), 1, maxAddressLength).Draw(rt, "address")),
			Height:    rapid.Uint32().Draw(rt, "height"),
			TxID:      txid,
			Index:     rapid.Uint32().Draw(rt, "index"),
			Direction: Direction(rapid.IntRange(0, 1).Draw(rt, "direction")),
			Timestamp: rapid.Uint32().Draw(rt, "timestamp"),
		}

		b, err := e.EncodeHistoryKey(k)
		require.NoError(rt, err)

		decoded, err := e.DecodeHistoryKey(b)
		require.NoError(rt, err)
		assert.Equal(rt, k, decoded)
	})
}

func TestHistoryKeyBoundaries(t *testing.T) {
	e := NewEncoding(0x0001)

	for _, k := range []*HistoryKey{
		{Address: "a", Height: 0, TxID: minHash},
		{Address: "a", Height: 0xffffffff, TxID: maxHash, Index: 0xffffffff, Direction: DirectionInput, Timestamp: 0xffffffff},
		{Address: strings.Repeat("z", maxAddressLength), Height: 1, Index: 0xffffffff},
	} {
		b, err := e.EncodeHistoryKey(k)
		require.NoError(t, err)

		decoded, err := e.DecodeHistoryKey(b)
		require.NoError(t, err)
		assert.Equal(t, k, decoded)
	}
}

func TestHistoryKeyOrdering(t *testing.T) {
	e := NewEncoding(0x0001)

	rapid.Check(t, func(rt *rapid.T) {
		address := string(rapid.SliceOfN(rapid.Byte(), 1, 64).Draw(rt, "address"))
		h1 := rapid.Uint32Range(0, 0xfffffffe).Draw(rt, "h1")
		h2 := rapid.Uint32Range(h1+1, 0xffffffff).Draw(rt, "h2")

		var tx1, tx2 chainhash.Hash
		copy(tx1[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "tx1"))
		copy(tx2[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "tx2"))

		k1, err := e.EncodeHistoryKey(&HistoryKey{Address: address, Height: h1, TxID: tx1, Index: rapid.Uint32().Draw(rt, "i1")})
		require.NoError(rt, err)

		k2, err := e.EncodeHistoryKey(&HistoryKey{Address: address, Height: h2, TxID: tx2, Index: rapid.Uint32().Draw(rt, "i2")})
		require.NoError(rt, err)

		assert.Negative(rt, bytes.Compare(k1, k2))

		// within a height, keys sort by the hex txid
		s1, err := e.EncodeHistoryKey(&HistoryKey{Address: address, Height: h1, TxID: tx1})
		require.NoError(rt, err)

		s2, err := e.EncodeHistoryKey(&HistoryKey{Address: address, Height: h1, TxID: tx2})
		require.NoError(rt, err)

		assert.Equal(rt, strings.Compare(tx1.String(), tx2.String()), bytes.Compare(s1, s2))
	})
}

func TestEncodeInvalidAddress(t *testing.T) {
	e := NewEncoding(0x0001)

	_, err := e.EncodeHistoryKey(&HistoryKey{Address: ""})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	_, err = e.EncodeUtxoKey(&UtxoKey{Address: strings.Repeat("a", maxAddressLength+1)})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))

	_, err = e.EncodeCheckpointKey("")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidArgument))
}

func TestDecodeMalformedKeys(t *testing.T) {
	e := NewEncoding(0x0001)

	valid, err := e.EncodeHistoryKey(&HistoryKey{Address: "addr", Height: 7})
	require.NoError(t, err)

	wrongPrefix := append([]byte{}, valid...)
	wrongPrefix[1] = 0x02

	wrongDirection := append([]byte{}, valid...)
	wrongDirection[len(wrongDirection)-5] = 2

	tests := map[string][]byte{
		"empty":           {},
		"short":           {0x00, 0x01, 0x00},
		"wrong prefix":    wrongPrefix,
		"wrong tag":       append([]byte{0x00, 0x01, tagUtxo}, valid[3:]...),
		"zero length":     {0x00, 0x01, 0x00, 0x00},
		"truncated":       valid[:len(valid)-1],
		"trailing bytes":  append(append([]byte{}, valid...), 0x00),
		"wrong direction": wrongDirection,
		"address overrun": {0x00, 0x01, 0x00, 0x10, 'a'},
	}

	for name, b := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := e.DecodeHistoryKey(b)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrMalformedRecord))
		})
	}
}

func TestUtxoRoundTrip(t *testing.T) {
	e := NewEncoding(0x00ff)

	rapid.Check(t, func(rt *rapid.T) {
		var txid chainhash.Hash
		copy(txid[:], rapid.SliceOfN(rapid.Byte(), 32, 32).Draw(rt, "txid"))

		k := &UtxoKey{
			Address: string(rapid.SliceOfN(rapid.Byte(), 1, maxAddressLength).Draw(rt, "address")),
			TxID:    txid,
			Index:   rapid.Uint32().Draw(rt, "index"),
		}

		kb, err := e.EncodeUtxoKey(k)
		require.NoError(rt, err)

		decodedKey, err := e.DecodeUtxoKey(kb)
		require.NoError(rt, err)
		assert.Equal(rt, k, decodedKey)

		v := &UtxoValue{
			Height:    rapid.Uint32().Draw(rt, "height"),
			Satoshis:  rapid.Uint64().Draw(rt, "satoshis"),
			Timestamp: rapid.Uint32().Draw(rt, "timestamp"),
			Script:    rapid.SliceOfN(rapid.Byte(), 0, 200).Draw(rt, "script"),
		}

		decodedValue, err := e.DecodeUtxoValue(e.EncodeUtxoValue(v))
		require.NoError(rt, err)
		assert.Equal(rt, v.Height, decodedValue.Height)
		assert.Equal(rt, v.Satoshis, decodedValue.Satoshis)
		assert.Equal(rt, v.Timestamp, decodedValue.Timestamp)
		assert.True(rt, bytes.Equal(v.Script, decodedValue.Script))
	})
}

func TestDecodeUtxoValueTooShort(t *testing.T) {
	e := NewEncoding(0x0001)

	_, err := e.DecodeUtxoValue(make([]byte, utxoValueHeaderSize-1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrMalformedRecord))

	v, err := e.DecodeUtxoValue(make([]byte, utxoValueHeaderSize))
	require.NoError(t, err)
	assert.Empty(t, v.Script)
}

func TestCheckpointEncoding(t *testing.T) {
	e := NewEncoding(0x0001)

	cp := &Checkpoint{
		Balance:       1500,
		TotalReceived: 2000,
		TotalSent:     500,
		TxCount:       3,
		LastTxID:      chainhash.DoubleHashH([]byte("tx")),
		LastBlockHash: chainhash.DoubleHashH([]byte("block")),
	}

	b := e.EncodeCheckpointValue(cp)
	require.Len(t, b, CheckpointValueSize)
	assert.Equal(t, 92, CheckpointValueSize)

	decoded, err := e.DecodeCheckpointValue(b)
	require.NoError(t, err)
	assert.Equal(t, cp, decoded)

	_, err = e.DecodeCheckpointValue(b[:91])
	assert.True(t, errors.Is(err, errors.ErrMalformedRecord))

	key, err := e.EncodeCheckpointKey("addr")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x00, 0x01, 0xfe, 0x04, 'a', 'd', 'd', 'r'}, key)

	address, err := e.DecodeCheckpointKey(key)
	require.NoError(t, err)
	assert.Equal(t, "addr", address)
}

func TestKeyFamiliesDoNotOverlap(t *testing.T) {
	e := NewEncoding(0x0001)

	history, err := e.HistoryPrefix("addr")
	require.NoError(t, err)

	utxo, err := e.UtxoPrefix("addr")
	require.NoError(t, err)

	assert.False(t, bytes.HasPrefix(utxo, history))
	assert.False(t, bytes.HasPrefix(history, utxo))

	other, err := NewEncoding(0x0002).HistoryPrefix("addr")
	require.NoError(t, err)
	assert.False(t, bytes.HasPrefix(other, history))
}

func TestHistoryRange(t *testing.T) {
	e := NewEncoding(0x0001)

	cursor := chainhash.DoubleHashH([]byte("cursor"))
	lower := chainhash.Hash{0x01}
	higher := maxHash
	higher[0] = 0xfe

	key := func(address string, height uint32, txid chainhash.Hash, dir Direction) []byte {
		b, err := e.EncodeHistoryKey(&HistoryKey{Address: address, Height: height, TxID: txid, Index: 0xffffffff, Direction: dir, Timestamp: 0xffffffff})
		require.NoError(t, err)

		return b
	}

	t.Run("height window", func(t *testing.T) {
		opts, err := e.HistoryRange("addr", 10, 20, nil, nil)
		require.NoError(t, err)

		assert.False(t, opts.Contains(key("addr", 9, maxHash, DirectionInput)))
		assert.True(t, opts.Contains(key("addr", 10, minHash, DirectionOutput)))
		assert.True(t, opts.Contains(key("addr", 20, maxHash, DirectionInput)))
		assert.False(t, opts.Contains(key("addr", 21, minHash, DirectionOutput)))
		assert.False(t, opts.Contains(key("addrX", 15, minHash, DirectionOutput)))
	})

	t.Run("unbounded", func(t *testing.T) {
		opts, err := e.HistoryRange("addr", 0, 0xffffffff, nil, nil)
		require.NoError(t, err)

		assert.True(t, opts.Contains(key("addr", 0, minHash, DirectionOutput)))
		assert.True(t, opts.Contains(key("addr", 0xffffffff, maxHash, DirectionInput)))
	})

	t.Run("after cursor", func(t *testing.T) {
		opts, err := e.HistoryRange("addr", 15, 0xffffffff, &cursor, nil)
		require.NoError(t, err)

		assert.False(t, opts.Contains(key("addr", 15, cursor, DirectionInput)))
		assert.False(t, opts.Contains(key("addr", 15, lower, DirectionInput)))
		assert.True(t, opts.Contains(key("addr", 15, higher, DirectionOutput)))
		assert.True(t, opts.Contains(key("addr", 16, minHash, DirectionOutput)))
	})

	t.Run("before cursor", func(t *testing.T) {
		opts, err := e.HistoryRange("addr", 0, 15, nil, &cursor)
		require.NoError(t, err)

		assert.False(t, opts.Contains(key("addr", 15, cursor, DirectionOutput)))
		assert.False(t, opts.Contains(key("addr", 15, higher, DirectionOutput)))
		assert.True(t, opts.Contains(key("addr", 15, lower, DirectionInput)))
		assert.True(t, opts.Contains(key("addr", 14, maxHash, DirectionInput)))
	})
}
