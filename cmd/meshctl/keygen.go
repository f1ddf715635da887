package main

import (
	"encoding/base64"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Magicred-1/anon0mesh-sub003/internal/identity"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a fresh device identity and print its PeerId and seed",
	RunE:  runKeygen,
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cred, err := identity.NewCredential()
	if err != nil {
		return err
	}

	fmt.Printf("peer_id: %x\n", cred.PeerID())
	fmt.Printf("seed:    %s\n", base64.StdEncoding.EncodeToString(cred.Seed()))
	fmt.Printf("pubkey:  %s\n", base64.StdEncoding.EncodeToString(cred.PublicKey()))
	return nil
}
