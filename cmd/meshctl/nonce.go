package main

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/solana"
	"github.com/Magicred-1/anon0mesh-sub003/internal/store"
	"github.com/Magicred-1/anon0mesh-sub003/internal/store/pebblestore"
)

var (
	nonceStoreDir    string
	nonceRPCEndpoint string
	nonceAuthSeedB64 string
	nonceCloseTo     string
)

func init() {
	nonceCmd.PersistentFlags().StringVar(&nonceStoreDir, "store", "./meshctl-data", "pebble data directory for persisted nonce account state")
	nonceCmd.PersistentFlags().StringVar(&nonceRPCEndpoint, "rpc", "https://api.devnet.solana.com", "Solana JSON-RPC endpoint")
	nonceCmd.PersistentFlags().StringVar(&nonceAuthSeedB64, "authority-seed", "", "base64-encoded 32-byte Ed25519 seed for the nonce authority (required for create/advance/close)")
	nonceCloseCmd.Flags().StringVar(&nonceCloseTo, "to", "", "base58 address to receive the reclaimed rent")
	nonceCmd.AddCommand(nonceCreateCmd, nonceAdvanceCmd, nonceCloseCmd)
}

var nonceCmd = &cobra.Command{
	Use:   "nonce",
	Short: "Manage a durable-nonce account",
}

func loadAuthority() (ed25519.PrivateKey, error) {
	if nonceAuthSeedB64 == "" {
		return nil, fmt.Errorf("--authority-seed is required")
	}
	seed, err := base64.StdEncoding.DecodeString(nonceAuthSeedB64)
	if err != nil || len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("--authority-seed must be a base64-encoded %d-byte Ed25519 seed", ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func loadPersistedNonceAccount(ctx context.Context, kv store.KV) (solana.PubKey, error) {
	raw, err := kv.Get(ctx, store.KeyDurableNonceAccount)
	if err != nil {
		return solana.PubKey{}, fmt.Errorf("no nonce account persisted under --store=%s: %w", nonceStoreDir, err)
	}
	return solana.ParsePubKey(string(raw))
}

var nonceCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create and persist a new durable-nonce account",
	RunE: func(cmd *cobra.Command, args []string) error {
		authority, err := loadAuthority()
		if err != nil {
			return err
		}

		kv, err := pebblestore.Open(nonceStoreDir)
		if err != nil {
			return err
		}
		defer kv.Close()

		rpc := solana.NewHTTPRPC(nonceRPCEndpoint)
		account, err := solana.CreateNonceAccount(context.Background(), rpc, kv, authority)
		if err != nil {
			return err
		}
		fmt.Printf("nonce_account: %s\n", account)
		return nil
	},
}

var nonceAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Force a new nonce value, invalidating any outstanding envelope",
	RunE: func(cmd *cobra.Command, args []string) error {
		authority, err := loadAuthority()
		if err != nil {
			return err
		}

		kv, err := pebblestore.Open(nonceStoreDir)
		if err != nil {
			return err
		}
		defer kv.Close()

		account, err := loadPersistedNonceAccount(context.Background(), kv)
		if err != nil {
			return err
		}

		rpc := solana.NewHTTPRPC(nonceRPCEndpoint)
		env := solana.NewEnvelope(rpc, kv, clock.New(), account, authority)
		sig, err := env.AdvanceNonce(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("signature: %s\n", sig)
		return nil
	},
}

var nonceCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close a durable-nonce account and reclaim its rent",
	RunE: func(cmd *cobra.Command, args []string) error {
		authority, err := loadAuthority()
		if err != nil {
			return err
		}
		if nonceCloseTo == "" {
			return fmt.Errorf("--to is required")
		}
		to, err := solana.ParsePubKey(nonceCloseTo)
		if err != nil {
			return err
		}

		kv, err := pebblestore.Open(nonceStoreDir)
		if err != nil {
			return err
		}
		defer kv.Close()

		account, err := loadPersistedNonceAccount(context.Background(), kv)
		if err != nil {
			return err
		}

		rpc := solana.NewHTTPRPC(nonceRPCEndpoint)
		env := solana.NewEnvelope(rpc, kv, clock.New(), account, authority)
		sig, err := env.CloseNonceAccount(context.Background(), to)
		if err != nil {
			return err
		}
		fmt.Printf("signature: %s\n", sig)
		return nil
	},
}
