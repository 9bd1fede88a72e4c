package factory

import (
	"net/url"

	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/stores/kv/sql"
	"github.com/bsv-blockchain/addressindex/ulogger"
)

func init() {
	newSQL := func(logger ulogger.Logger, tSettings *settings.Settings, storeURL *url.URL) (kv.Store, error) {
		return sql.New(logger, storeURL, tSettings)
	}

	availableDatabases["postgres"] = newSQL
	availableDatabases["sqlite"] = newSQL
	availableDatabases["sqlitememory"] = newSQL
}
