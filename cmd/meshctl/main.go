// Command meshctl is a dev-harness CLI for exercising the mesh core
// outside of the mobile app: generating identities, driving the
// durable-nonce lifecycle against a Solana RPC endpoint (persisting
// state in a local pebble-backed store), and serving the diagnostics
// HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "meshctl",
	Short: "Dev harness for the BLE mesh / Nostr / Solana durable-nonce core",
}

func main() {
	rootCmd.AddCommand(keygenCmd, nonceCmd, serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
