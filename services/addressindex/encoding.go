package addressindex

import (
	"encoding/binary"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// Direction tells whether a history entry records an output paying the address or an
// input spending from it.
type Direction uint8

const (
	DirectionOutput Direction = 0
	DirectionInput  Direction = 1
)

func (d Direction) String() string {
	if d == DirectionInput {
		return "input"
	}

	return "output"
}

const (
	tagHistory    byte = 0x00
	tagUtxo       byte = 0x01
	tagCheckpoint byte = 0xfe

	maxAddressLength = 255

	// CheckpointValueSize is balance, received and sent (u64), tx count (u32), the last
	// txid and the block hash that confirmed it.
	CheckpointValueSize = 8 + 8 + 8 + 4 + 32 + 32

	utxoValueHeaderSize = 4 + 8 + 4
)

var (
	minHash = chainhash.Hash{}
	maxHash = chainhash.Hash{
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
		0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff,
	}
)

// HistoryKey is one (address, transaction, input-or-output slot) of a confirmed block.
// History entries carry no value.
type HistoryKey struct {
	Address   string
	Height    uint32
	TxID      chainhash.Hash
	Index     uint32
	Direction Direction
	Timestamp uint32
}

type UtxoKey struct {
	Address string
	TxID    chainhash.Hash
	Index   uint32
}

type UtxoValue struct {
	Height    uint32
	Satoshis  uint64
	Timestamp uint32
	Script    []byte
}

// Checkpoint is the persisted confirmed-only summary of an address, anchored to the last
// transaction it includes.
type Checkpoint struct {
	Balance       uint64
	TotalReceived uint64
	TotalSent     uint64
	TxCount       uint32
	LastTxID      chainhash.Hash
	LastBlockHash chainhash.Hash
}

// Encoding builds and parses the keys and values of the address index. Hashes are written
// in display byte order so that key order matches the order of the hex txid.
type Encoding struct {
	prefix [2]byte
}

func NewEncoding(servicePrefix uint16) *Encoding {
	e := &Encoding{}
	binary.BigEndian.PutUint16(e.prefix[:], servicePrefix)

	return e
}

func (e *Encoding) Prefix() []byte {
	return e.prefix[:]
}

func (e *Encoding) addressPrefix(tag byte, address string, extra int) ([]byte, error) {
	if len(address) == 0 || len(address) > maxAddressLength {
		return nil, errors.NewInvalidArgumentError("address must be between 1 and %d bytes, got %d", maxAddressLength, len(address))
	}

	b := make([]byte, 0, 4+len(address)+extra)
	b = append(b, e.prefix[0], e.prefix[1], tag, byte(len(address)))
	b = append(b, address...)

	return b, nil
}

// HistoryPrefix is the common prefix of every history key of the address.
func (e *Encoding) HistoryPrefix(address string) ([]byte, error) {
	return e.addressPrefix(tagHistory, address, 0)
}

func (e *Encoding) EncodeHistoryKey(k *HistoryKey) ([]byte, error) {
	b, err := e.addressPrefix(tagHistory, k.Address, 4+32+4+1+4)
	if err != nil {
		return nil, err
	}

	b = binary.BigEndian.AppendUint32(b, k.Height)
	b = appendHash(b, &k.TxID)
	b = binary.BigEndian.AppendUint32(b, k.Index)
	b = append(b, byte(k.Direction))
	b = binary.BigEndian.AppendUint32(b, k.Timestamp)

	return b, nil
}

func (e *Encoding) DecodeHistoryKey(b []byte) (*HistoryKey, error) {
	address, rest, err := e.splitAddress(tagHistory, b)
	if err != nil {
		return nil, err
	}

	if len(rest) != 4+32+4+1+4 {
		return nil, errors.NewMalformedRecordError("history key for %s has %d trailing bytes", address, len(rest))
	}

	k := &HistoryKey{
		Address:   address,
		Height:    binary.BigEndian.Uint32(rest[0:4]),
		TxID:      readHash(rest[4:36]),
		Index:     binary.BigEndian.Uint32(rest[36:40]),
		Direction: Direction(rest[40]),
		Timestamp: binary.BigEndian.Uint32(rest[41:45]),
	}

	if k.Direction > DirectionInput {
		return nil, errors.NewMalformedRecordError("history key for %s has direction %d", address, rest[40])
	}

	return k, nil
}

// UtxoPrefix is the common prefix of every unspent output key of the address.
func (e *Encoding) UtxoPrefix(address string) ([]byte, error) {
	return e.addressPrefix(tagUtxo, address, 0)
}

func (e *Encoding) EncodeUtxoKey(k *UtxoKey) ([]byte, error) {
	b, err := e.addressPrefix(tagUtxo, k.Address, 32+4)
	if err != nil {
		return nil, err
	}

	b = appendHash(b, &k.TxID)
	b = binary.BigEndian.AppendUint32(b, k.Index)

	return b, nil
}

func (e *Encoding) DecodeUtxoKey(b []byte) (*UtxoKey, error) {
	address, rest, err := e.splitAddress(tagUtxo, b)
	if err != nil {
		return nil, err
	}

	if len(rest) != 32+4 {
		return nil, errors.NewMalformedRecordError("utxo key for %s has %d trailing bytes", address, len(rest))
	}

	return &UtxoKey{
		Address: address,
		TxID:    readHash(rest[0:32]),
		Index:   binary.BigEndian.Uint32(rest[32:36]),
	}, nil
}

func (e *Encoding) EncodeUtxoValue(v *UtxoValue) []byte {
	b := make([]byte, 0, utxoValueHeaderSize+len(v.Script))
	b = binary.BigEndian.AppendUint32(b, v.Height)
	b = binary.BigEndian.AppendUint64(b, v.Satoshis)
	b = binary.BigEndian.AppendUint32(b, v.Timestamp)

	return append(b, v.Script...)
}

func (e *Encoding) DecodeUtxoValue(b []byte) (*UtxoValue, error) {
	if len(b) < utxoValueHeaderSize {
		return nil, errors.NewMalformedRecordError("utxo value too short: %d bytes", len(b))
	}

	return &UtxoValue{
		Height:    binary.BigEndian.Uint32(b[0:4]),
		Satoshis:  binary.BigEndian.Uint64(b[4:12]),
		Timestamp: binary.BigEndian.Uint32(b[12:16]),
		Script:    append([]byte{}, b[16:]...),
	}, nil
}

func (e *Encoding) EncodeCheckpointKey(address string) ([]byte, error) {
	return e.addressPrefix(tagCheckpoint, address, 0)
}

func (e *Encoding) DecodeCheckpointKey(b []byte) (string, error) {
	address, rest, err := e.splitAddress(tagCheckpoint, b)
	if err != nil {
		return "", err
	}

	if len(rest) != 0 {
		return "", errors.NewMalformedRecordError("checkpoint key for %s has %d trailing bytes", address, len(rest))
	}

	return address, nil
}

func (e *Encoding) EncodeCheckpointValue(c *Checkpoint) []byte {
	b := make([]byte, 0, CheckpointValueSize)
	b = binary.BigEndian.AppendUint64(b, c.Balance)
	b = binary.BigEndian.AppendUint64(b, c.TotalReceived)
	b = binary.BigEndian.AppendUint64(b, c.TotalSent)
	b = binary.BigEndian.AppendUint32(b, c.TxCount)
	b = appendHash(b, &c.LastTxID)

	return appendHash(b, &c.LastBlockHash)
}

func (e *Encoding) DecodeCheckpointValue(b []byte) (*Checkpoint, error) {
	if len(b) != CheckpointValueSize {
		return nil, errors.NewMalformedRecordError("checkpoint value must be %d bytes, got %d", CheckpointValueSize, len(b))
	}

	return &Checkpoint{
		Balance:       binary.BigEndian.Uint64(b[0:8]),
		TotalReceived: binary.BigEndian.Uint64(b[8:16]),
		TotalSent:     binary.BigEndian.Uint64(b[16:24]),
		TxCount:       binary.BigEndian.Uint32(b[24:28]),
		LastTxID:      readHash(b[28:60]),
		LastBlockHash: readHash(b[60:92]),
	}, nil
}

// splitAddress checks the service prefix and tag and returns the address together with
// the remaining bytes of the key.
func (e *Encoding) splitAddress(tag byte, b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errors.NewMalformedRecordError("key too short: %d bytes", len(b))
	}

	if b[0] != e.prefix[0] || b[1] != e.prefix[1] {
		return "", nil, errors.NewMalformedRecordError("key has service prefix %x, expected %x", b[0:2], e.prefix[:])
	}

	if b[2] != tag {
		return "", nil, errors.NewMalformedRecordError("key has tag %02x, expected %02x", b[2], tag)
	}

	addrLen := int(b[3])
	if addrLen == 0 || len(b) < 4+addrLen {
		return "", nil, errors.NewMalformedRecordError("key truncated in address of %d bytes", addrLen)
	}

	return string(b[4 : 4+addrLen]), b[4+addrLen:], nil
}

func appendHash(b []byte, h *chainhash.Hash) []byte {
	return append(b, bt.ReverseBytes(h[:])...)
}

func readHash(b []byte) chainhash.Hash {
	var h chainhash.Hash

	copy(h[:], bt.ReverseBytes(b))

	return h
}
