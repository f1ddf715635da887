package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Magicred-1/anon0mesh-sub003/internal/clock"
	"github.com/Magicred-1/anon0mesh-sub003/internal/diagnostics"
	"github.com/Magicred-1/anon0mesh-sub003/internal/identity"
	"github.com/Magicred-1/anon0mesh-sub003/internal/node"
	"github.com/Magicred-1/anon0mesh-sub003/internal/nostr"
	"github.com/Magicred-1/anon0mesh-sub003/internal/transport"
	"github.com/Magicred-1/anon0mesh-sub003/internal/wire"
)

var (
	serveAddr      string
	serveRelayURLs []string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8787", "listen address for the diagnostics HTTP surface")
	serveCmd.Flags().StringSliceVar(&serveRelayURLs, "relay", nil, "Nostr relay URL to connect for fallback delivery (repeatable)")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run a mesh node and serve its read-only diagnostics HTTP surface",
	RunE:  runServe,
}

// cliSender is the dev-harness Sender. This build has no concrete BLE
// transport bound (see internal/transport), so BLE writes always fail
// and every send falls through to whatever Nostr relays were given on
// the command line.
type cliSender struct {
	pool *nostr.Pool
}

var errNoBLETransport = fmt.Errorf("meshctl: no BLE transport bound in this build")

func (s *cliSender) WriteBLE(peer transport.PeerHandle, data []byte) error {
	return errNoBLETransport
}

func (s *cliSender) PublishNostrNote(content []byte) int {
	if s.pool == nil {
		return 0
	}
	return s.pool.Publish(context.Background(), &nostr.Event{
		Kind:    nostr.KindBroadcastNote,
		Content: string(content),
	})
}

func (s *cliSender) PublishNostrDM(recipient wire.PeerID, content []byte) int {
	if s.pool == nil {
		return 0
	}
	return s.pool.Publish(context.Background(), &nostr.Event{
		Kind:    nostr.KindEncryptedDM,
		Content: string(content),
	})
}

func runServe(cmd *cobra.Command, args []string) error {
	cred, err := identity.NewCredential()
	if err != nil {
		return err
	}

	pool := nostr.NewPool()
	for _, url := range serveRelayURLs {
		if err := pool.Connect(context.Background(), url); err != nil {
			log.Warn().Err(err).Str("relay", url).Msg("[meshctl] relay connect failed")
		}
	}

	n := node.New(cred, clock.New(), nil, &cliSender{pool: pool})
	n.OnMessage(func(from wire.PeerID, content string) {
		log.Info().Str("from", fmt.Sprintf("%x", from)).Str("content", content).Msg("[meshctl] message delivered")
	})

	startedAt := time.Now()
	handler := diagnostics.NewRouter(func() diagnostics.Snapshot {
		snap := n.Snapshot()
		snap.StartedAt = startedAt
		return snap
	})

	log.Info().Str("addr", serveAddr).Str("peer_id", fmt.Sprintf("%x", cred.PeerID())).Msg("[meshctl] serving diagnostics")
	return http.ListenAndServe(serveAddr, handler)
}
