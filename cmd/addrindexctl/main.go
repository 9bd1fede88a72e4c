// Package main implements addrindexctl, an offline inspection tool for address index
// stores. It reads the raw history, utxo and checkpoint records of an address straight
// from the key-value store and prints them as JSON lines.
//
// Usage:
//
//	addrindexctl --store leveldb:///data/addressindex history --address <address>
//	addrindexctl utxos --address <address>
//	addrindexctl checkpoint --address <address>
//	addrindexctl decode --key <hex> [--value <hex>]
package main

import (
	"log"
	"os"
)

func main() {
	if err := newApp(os.Stdout, openStore).Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
