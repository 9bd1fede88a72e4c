package model

import (
	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/go-bt/v2"
	"github.com/bsv-blockchain/go-bt/v2/chainhash"
)

// UnconfirmedHeight marks a transaction that is only known to the mempool.
const UnconfirmedHeight uint32 = 0xffffffff

// Block is a confirmed block together with its height in the active chain.
type Block struct {
	Header       *BlockHeader
	Height       uint32
	Transactions []*bt.Tx

	// local
	hash *chainhash.Hash
}

func NewBlock(header *BlockHeader, height uint32, txs []*bt.Tx) *Block {
	return &Block{
		Header:       header,
		Height:       height,
		Transactions: txs,
	}
}

// NewBlockFromBytes parses a block in wire format: an 80 byte header, a varint
// transaction count and the serialized transactions.
func NewBlockFromBytes(blockBytes []byte, height uint32) (*Block, error) {
	if len(blockBytes) < BlockHeaderSize+1 {
		return nil, errors.NewInvalidArgumentError("block too short: %d bytes", len(blockBytes))
	}

	header, err := NewBlockHeaderFromBytes(blockBytes[:BlockHeaderSize])
	if err != nil {
		return nil, err
	}

	offset := BlockHeaderSize

	txCount, size := bt.NewVarIntFromBytes(blockBytes[offset:])
	offset += size

	txs := make([]*bt.Tx, 0, uint64(txCount))

	for i := uint64(0); i < uint64(txCount); i++ {
		if offset >= len(blockBytes) {
			return nil, errors.NewInvalidArgumentError("block truncated at transaction %d", i)
		}

		tx, used, err := bt.NewTxFromStream(blockBytes[offset:])
		if err != nil {
			return nil, errors.NewInvalidArgumentError("could not read transaction %d", i, err)
		}

		txs = append(txs, tx)
		offset += used
	}

	return NewBlock(header, height, txs), nil
}

func (b *Block) Hash() *chainhash.Hash {
	if b.hash != nil {
		return b.hash
	}

	b.hash = b.Header.Hash()

	return b.hash
}

func (b *Block) Timestamp() uint32 {
	return b.Header.Timestamp
}

func (b *Block) String() string {
	return b.Hash().String()
}

func (b *Block) Bytes() []byte {
	out := b.Header.Bytes()
	out = append(out, bt.VarInt(uint64(len(b.Transactions))).Bytes()...)

	for _, tx := range b.Transactions {
		out = append(out, tx.Bytes()...)
	}

	return out
}
