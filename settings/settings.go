package settings

import (
	"net/url"
	"time"

	"github.com/bsv-blockchain/go-chaincfg"
)

type Settings struct {
	ClientName     string
	DataFolder     string
	LogLevel       string
	ChainCfgParams *chaincfg.Params
	AddressIndex   AddressIndexSettings
	Timestamp      TimestampSettings
}

type AddressIndexSettings struct {
	StoreURL                 *url.URL
	ServicePrefix            uint16
	HistoryQueryLimit        int
	UtxoQueryLimit           int
	SummaryQueryLimit        int
	AddressConcurrency       int
	MempoolConcurrency       int
	DedupQueueSize           int
	TxidListCacheItems       uint64
	TxidListCacheTTL         time.Duration
	TxidListCacheMin         int
	CheckpointRefreshWorkers int
	CheckpointEnabled        bool
}

type TimestampSettings struct {
	ServicePrefix uint16
	StoreURL      *url.URL
	CacheSize     uint64
}

func NewSettings() *Settings {
	params, err := chaincfg.GetChainParams(getString("network", "mainnet"))
	if err != nil {
		panic(err)
	}

	storeURL := getString("addressindex_store", "leveldb:///data/addressindex")

	return &Settings{
		ClientName:     getString("clientName", "addrindex"),
		DataFolder:     getString("dataFolder", "data"),
		LogLevel:       getString("logLevel", "INFO"),
		ChainCfgParams: params,
		AddressIndex: AddressIndexSettings{
			StoreURL:                 getURL("addressindex_store", storeURL),
			ServicePrefix:            getUint16("addressindex_servicePrefix", 0x0001),
			HistoryQueryLimit:        getInt("addressindex_historyQueryLimit", 1000),
			UtxoQueryLimit:           getInt("addressindex_utxoQueryLimit", 1000),
			SummaryQueryLimit:        getInt("addressindex_summaryQueryLimit", 500),
			AddressConcurrency:       getInt("addressindex_addressConcurrency", 4),
			MempoolConcurrency:       getInt("addressindex_mempoolConcurrency", 4),
			DedupQueueSize:           getInt("addressindex_dedupQueueSize", 64),
			TxidListCacheItems:       uint64(getInt("addressindex_txidListCacheItems", 250)), //nolint:gosec // configured value
			TxidListCacheTTL:         getDuration("addressindex_txidListCacheTTL", 30*time.Second),
			TxidListCacheMin:         getInt("addressindex_txidListCacheMin", 100),
			CheckpointRefreshWorkers: getInt("addressindex_checkpointRefreshWorkers", 4),
			CheckpointEnabled:        getBool("addressindex_checkpointEnabled", true),
		},
		Timestamp: TimestampSettings{
			ServicePrefix: getUint16("timestamp_servicePrefix", 0x0002),
			StoreURL:      getURL("timestamp_store", storeURL),
			CacheSize:     uint64(getInt("timestamp_cacheSize", 1000)), //nolint:gosec // configured value
		},
	}
}

// IsMainnet reports whether addresses should be encoded with the mainnet version byte.
func (s *Settings) IsMainnet() bool {
	return s.ChainCfgParams != nil && s.ChainCfgParams.Name == chaincfg.MainNetParams.Name
}
