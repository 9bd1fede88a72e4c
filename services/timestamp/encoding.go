package timestamp

import (
	"encoding/binary"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

const (
	tagBlock     byte = 0x00
	tagTimestamp byte = 0x01
)

// Encoding builds the keys of the two timestamp indexes: block hash to timestamp and
// timestamp to block hash. Block hashes are written in display byte order.
type Encoding struct {
	prefix [2]byte
}

func NewEncoding(servicePrefix uint16) *Encoding {
	e := &Encoding{}
	binary.BigEndian.PutUint16(e.prefix[:], servicePrefix)

	return e
}

func (e *Encoding) EncodeBlockTimestampKey(hash *chainhash.Hash) []byte {
	b := make([]byte, 0, 3+chainhash.HashSize)
	b = append(b, e.prefix[0], e.prefix[1], tagBlock)

	return append(b, bt.ReverseBytes(hash[:])...)
}

func (e *Encoding) DecodeBlockTimestampKey(b []byte) (chainhash.Hash, error) {
	if err := e.checkKey(tagBlock, b, 3+chainhash.HashSize); err != nil {
		return chainhash.Hash{}, err
	}

	return readHash(b[3:]), nil
}

func (e *Encoding) EncodeBlockTimestampValue(ts uint32) []byte {
	return binary.BigEndian.AppendUint32(nil, ts)
}

func (e *Encoding) DecodeBlockTimestampValue(b []byte) (uint32, error) {
	if len(b) != 4 {
		return 0, errors.NewMalformedRecordError("block timestamp value must be 4 bytes, got %d", len(b))
	}

	return binary.BigEndian.Uint32(b), nil
}

func (e *Encoding) EncodeTimestampBlockKey(ts uint32) []byte {
	b := make([]byte, 0, 3+4)
	b = append(b, e.prefix[0], e.prefix[1], tagTimestamp)

	return binary.BigEndian.AppendUint32(b, ts)
}

func (e *Encoding) DecodeTimestampBlockKey(b []byte) (uint32, error) {
	if err := e.checkKey(tagTimestamp, b, 3+4); err != nil {
		return 0, err
	}

	return binary.BigEndian.Uint32(b[3:]), nil
}

func (e *Encoding) EncodeTimestampBlockValue(hash *chainhash.Hash) []byte {
	return bt.ReverseBytes(hash[:])
}

func (e *Encoding) DecodeTimestampBlockValue(b []byte) (chainhash.Hash, error) {
	if len(b) != chainhash.HashSize {
		return chainhash.Hash{}, errors.NewMalformedRecordError("timestamp block value must be %d bytes, got %d", chainhash.HashSize, len(b))
	}

	return readHash(b), nil
}

func (e *Encoding) checkKey(tag byte, b []byte, size int) error {
	if len(b) != size {
		return errors.NewMalformedRecordError("timestamp key must be %d bytes, got %d", size, len(b))
	}

	if b[0] != e.prefix[0] || b[1] != e.prefix[1] || b[2] != tag {
		return errors.NewMalformedRecordError("timestamp key has prefix %x, expected %x%02x", b[0:3], e.prefix[:], tag)
	}

	return nil
}

func readHash(b []byte) chainhash.Hash {
	var h chainhash.Hash

	copy(h[:], bt.ReverseBytes(b))

	return h
}
