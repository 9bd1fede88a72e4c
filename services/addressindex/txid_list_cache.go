package addressindex

import (
	"encoding/binary"
	"sort"
	"time"

	"github.com/bsv-blockchain/go-bt/v2/chainhash"
	"github.com/cespare/xxhash"
	"github.com/jellydator/ttlcache/v3"
	"go.uber.org/atomic"
)

const txidListCacheSeed uint32 = 0x3233DE

// TxidListCache keeps the sorted txid list of recent paginated history queries so that
// later pages see the same list as the first one. Entries expire a fixed time after
// they were set and the least recently used entry is evicted at capacity.
type TxidListCache struct {
	cache    *ttlcache.Cache[uint32, []txRef]
	minItems int
	stopped  atomic.Bool
}

func NewTxidListCache(capacity uint64, ttl time.Duration, minItems int) *TxidListCache {
	c := &TxidListCache{
		cache: ttlcache.New[uint32, []txRef](
			ttlcache.WithTTL[uint32, []txRef](ttl),
			ttlcache.WithCapacity[uint32, []txRef](capacity),
			ttlcache.WithDisableTouchOnHit[uint32, []txRef](),
		),
		minItems: minItems,
	}

	go c.cache.Start()

	return c
}

// txidListKey folds the xxhash of the concatenated addresses into 32 bits. Collisions only
// cost a wrong page for the lifetime of one entry.
func txidListKey(addresses []string) uint32 {
	size := 4
	for _, address := range addresses {
		size += len(address)
	}

	b := make([]byte, 4, size)
	binary.BigEndian.PutUint32(b, txidListCacheSeed)

	for _, address := range addresses {
		b = append(b, address...)
	}

	h := xxhash.Sum64(b)

	return uint32(h) ^ uint32(h>>32) //nolint:gosec // folding
}

func (c *TxidListCache) Get(addresses []string) ([]txRef, bool) {
	item := c.cache.Get(txidListKey(addresses))
	if item == nil {
		return nil, false
	}

	return item.Value(), true
}

// Set stores the list when it is long enough to be worth keeping.
func (c *TxidListCache) Set(addresses []string, refs []txRef) bool {
	if len(refs) <= c.minItems {
		return false
	}

	c.cache.Set(txidListKey(addresses), refs, ttlcache.DefaultTTL)

	return true
}

func (c *TxidListCache) Len() int {
	return c.cache.Len()
}

// Stop halts the expiry loop. It is safe to call more than once.
func (c *TxidListCache) Stop() {
	if c.stopped.CompareAndSwap(false, true) {
		c.cache.Stop()
	}
}

// sortTxRefs orders refs by height descending with unconfirmed transactions first, then
// by txid ascending.
func sortTxRefs(refs []txRef) {
	sort.SliceStable(refs, func(i, j int) bool {
		if refs[i].Height != refs[j].Height {
			return refs[i].Height > refs[j].Height
		}

		return compareTxIDs(&refs[i].TxID, &refs[j].TxID) < 0
	})
}

// compareTxIDs orders hashes the way their display strings sort, without encoding them.
func compareTxIDs(a, b *chainhash.Hash) int {
	for i := chainhash.HashSize - 1; i >= 0; i-- {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}

			return 1
		}
	}

	return 0
}
