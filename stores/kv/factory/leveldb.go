package factory

import (
	"net/url"

	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/stores/kv/leveldb"
	"github.com/bsv-blockchain/addressindex/ulogger"
)

func init() {
	newLevelDB := func(logger ulogger.Logger, _ *settings.Settings, storeURL *url.URL) (kv.Store, error) {
		return leveldb.New(logger, storeURL)
	}

	availableDatabases["leveldb"] = newLevelDB
	availableDatabases["memory"] = newLevelDB
}
