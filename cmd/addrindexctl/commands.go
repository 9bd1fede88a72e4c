package main

import (
	"encoding/hex"
	"io"
	"net/url"

	"github.com/bsv-blockchain/addressindex/errors"
	"github.com/bsv-blockchain/addressindex/model"
	"github.com/bsv-blockchain/addressindex/services/addressindex"
	"github.com/bsv-blockchain/addressindex/settings"
	"github.com/bsv-blockchain/addressindex/stores/kv"
	"github.com/bsv-blockchain/addressindex/stores/kv/factory"
	"github.com/bsv-blockchain/addressindex/ulogger"
	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type storeOpener func(tSettings *settings.Settings, storeURL *url.URL) (kv.Store, error)

func openStore(tSettings *settings.Settings, storeURL *url.URL) (kv.Store, error) {
	return factory.NewStore(ulogger.New("addrindexctl"), tSettings, storeURL)
}

type historyRecord struct {
	Height    uint32 `json:"height"`
	TxID      string `json:"txid"`
	Index     uint32 `json:"index"`
	Direction string `json:"direction"`
	Timestamp uint32 `json:"timestamp"`
}

type utxoRecord struct {
	TxID      string `json:"txid"`
	Index     uint32 `json:"vout"`
	Height    uint32 `json:"height"`
	Satoshis  uint64 `json:"satoshis"`
	Timestamp uint32 `json:"timestamp"`
	Script    string `json:"script"`
}

type checkpointRecord struct {
	Address       string `json:"address"`
	Balance       uint64 `json:"balance"`
	TotalReceived uint64 `json:"totalReceived"`
	TotalSent     uint64 `json:"totalSent"`
	TxCount       uint32 `json:"txCount"`
	LastTxID      string `json:"lastTxid"`
	LastBlockHash string `json:"lastBlockHash"`
}

type ctl struct {
	out       io.Writer
	open      storeOpener
	tSettings *settings.Settings
}

func newApp(out io.Writer, open storeOpener) *cli.App {
	c := &ctl{
		out:       out,
		open:      open,
		tSettings: settings.NewSettings(),
	}

	addressFlag := &cli.StringFlag{
		Name:     "address",
		Usage:    "address to inspect",
		Required: true,
	}

	return &cli.App{
		Name:   "addrindexctl",
		Usage:  "Inspect the records of an address index store",
		Writer: out,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "store",
				Usage: "kv store url, defaults to the configured addressindex_store",
			},
			&cli.UintFlag{
				Name:  "prefix",
				Usage: "service prefix of the address index, defaults to addressindex_servicePrefix",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "history",
				Usage: "List the confirmed history entries of an address",
				Flags: []cli.Flag{
					addressFlag,
					&cli.BoolFlag{Name: "reverse", Usage: "newest first"},
					&cli.IntFlag{Name: "limit", Usage: "stop after this many entries, 0 for all"},
					&cli.UintFlag{Name: "start", Usage: "lowest height"},
					&cli.UintFlag{Name: "end", Usage: "highest height, 0 for no bound"},
				},
				Action: c.history,
			},
			{
				Name:   "utxos",
				Usage:  "List the confirmed unspent outputs of an address",
				Flags:  []cli.Flag{addressFlag},
				Action: c.utxos,
			},
			{
				Name:   "checkpoint",
				Usage:  "Show the summary checkpoint of an address",
				Flags:  []cli.Flag{addressFlag},
				Action: c.checkpoint,
			},
			{
				Name:  "decode",
				Usage: "Decode a raw index key and optional value",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "key", Usage: "hex key", Required: true},
					&cli.StringFlag{Name: "value", Usage: "hex value"},
				},
				Action: c.decode,
			},
		},
	}
}

func (c *ctl) encoding(cCtx *cli.Context) *addressindex.Encoding {
	prefix := c.tSettings.AddressIndex.ServicePrefix
	if cCtx.IsSet("prefix") {
		prefix = uint16(cCtx.Uint("prefix")) //nolint:gosec // flag value
	}

	return addressindex.NewEncoding(prefix)
}

func (c *ctl) store(cCtx *cli.Context) (kv.Store, error) {
	storeURL := c.tSettings.AddressIndex.StoreURL

	if raw := cCtx.String("store"); raw != "" {
		var err error

		if storeURL, err = url.Parse(raw); err != nil {
			return nil, errors.NewConfigurationError("invalid store url %q", raw, err)
		}
	}

	return c.open(c.tSettings, storeURL)
}

func (c *ctl) print(v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		return errors.NewProcessingError("could not marshal record", err)
	}

	_, err = c.out.Write(append(b, '\n'))

	return err
}

func (c *ctl) history(cCtx *cli.Context) error {
	store, err := c.store(cCtx)
	if err != nil {
		return err
	}
	defer store.Close()

	enc := c.encoding(cCtx)
	address := cCtx.String("address")

	end := uint32(cCtx.Uint("end")) //nolint:gosec // flag value
	if end == 0 {
		end = model.UnconfirmedHeight
	}

	opts, err := enc.HistoryRange(address, uint32(cCtx.Uint("start")), end, nil, nil) //nolint:gosec // flag value
	if err != nil {
		return err
	}

	opts.Reverse = cCtx.Bool("reverse")

	it := store.Scan(cCtx.Context, opts)
	defer it.Release()

	limit := cCtx.Int("limit")

	for count := 0; it.Next() && (limit == 0 || count < limit); count++ {
		k, err := enc.DecodeHistoryKey(it.Key())
		if err != nil {
			return err
		}

		if err = c.print(historyRecord{
			Height:    k.Height,
			TxID:      k.TxID.String(),
			Index:     k.Index,
			Direction: k.Direction.String(),
			Timestamp: k.Timestamp,
		}); err != nil {
			return err
		}
	}

	return it.Err()
}

func (c *ctl) utxos(cCtx *cli.Context) error {
	store, err := c.store(cCtx)
	if err != nil {
		return err
	}
	defer store.Close()

	// cursors are never resolved, so the engine needs no transaction client
	engine := addressindex.NewRangeQueryEngine(ulogger.TestLogger{}, c.encoding(cCtx), store, nil)

	return engine.ScanUtxos(cCtx.Context, cCtx.String("address"), func(k *addressindex.UtxoKey, v *addressindex.UtxoValue) error {
		return c.print(newUtxoRecord(k, v))
	})
}

func newUtxoRecord(k *addressindex.UtxoKey, v *addressindex.UtxoValue) utxoRecord {
	return utxoRecord{
		TxID:      k.TxID.String(),
		Index:     k.Index,
		Height:    v.Height,
		Satoshis:  v.Satoshis,
		Timestamp: v.Timestamp,
		Script:    hex.EncodeToString(v.Script),
	}
}

func (c *ctl) checkpoint(cCtx *cli.Context) error {
	store, err := c.store(cCtx)
	if err != nil {
		return err
	}
	defer store.Close()

	enc := c.encoding(cCtx)
	address := cCtx.String("address")

	key, err := enc.EncodeCheckpointKey(address)
	if err != nil {
		return err
	}

	value, err := store.Get(cCtx.Context, key)
	if err != nil {
		if errors.Is(err, errors.ErrNotFound) {
			return errors.NewNotFoundError("no checkpoint for %s", address)
		}

		return err
	}

	cp, err := enc.DecodeCheckpointValue(value)
	if err != nil {
		return err
	}

	return c.print(newCheckpointRecord(address, cp))
}

func newCheckpointRecord(address string, cp *addressindex.Checkpoint) checkpointRecord {
	return checkpointRecord{
		Address:       address,
		Balance:       cp.Balance,
		TotalReceived: cp.TotalReceived,
		TotalSent:     cp.TotalSent,
		TxCount:       cp.TxCount,
		LastTxID:      cp.LastTxID.String(),
		LastBlockHash: cp.LastBlockHash.String(),
	}
}

// decode tries each record family in turn; the family tag makes at most one of them
// succeed.
func (c *ctl) decode(cCtx *cli.Context) error {
	enc := c.encoding(cCtx)

	key, err := hex.DecodeString(cCtx.String("key"))
	if err != nil {
		return errors.NewInvalidArgumentError("key is not hex", err)
	}

	value, err := hex.DecodeString(cCtx.String("value"))
	if err != nil {
		return errors.NewInvalidArgumentError("value is not hex", err)
	}

	if k, err := enc.DecodeHistoryKey(key); err == nil {
		return c.print(map[string]interface{}{
			"type":    "history",
			"address": k.Address,
			"record": historyRecord{
				Height:    k.Height,
				TxID:      k.TxID.String(),
				Index:     k.Index,
				Direction: k.Direction.String(),
				Timestamp: k.Timestamp,
			},
		})
	}

	if k, err := enc.DecodeUtxoKey(key); err == nil {
		out := map[string]interface{}{
			"type":    "utxo",
			"address": k.Address,
			"txid":    k.TxID.String(),
			"vout":    k.Index,
		}

		if len(value) > 0 {
			v, err := enc.DecodeUtxoValue(value)
			if err != nil {
				return err
			}

			out["record"] = newUtxoRecord(k, v)
		}

		return c.print(out)
	}

	if address, err := enc.DecodeCheckpointKey(key); err == nil {
		out := map[string]interface{}{
			"type":    "checkpoint",
			"address": address,
		}

		if len(value) > 0 {
			cp, err := enc.DecodeCheckpointValue(value)
			if err != nil {
				return err
			}

			out["record"] = newCheckpointRecord(address, cp)
		}

		return c.print(out)
	}

	return errors.NewMalformedRecordError("key %x is not an address index key", key)
}
