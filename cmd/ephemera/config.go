package main

import (
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/block"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/broadcast"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/discovery"
)

// Config is assembled from flags/env by main, the same split the teacher
// draws between BaseConfiguration and ClusterConfiguration: node-local
// settings versus the initial view of the broadcast group.
type Config struct {
	ListenAddr      string
	DataDir         string
	HTTPAddr        string
	PrivateKeyBase58 string
	Peers           []discovery.PeerInfo
	BootstrapAddrs  []string
	StallTimeout    time.Duration
	BlockInterval   time.Duration
	MaxMessages     int
	Development     bool
}

func parseConfig(args []string) (Config, error) {
	fs := flag.NewFlagSet("ephemera", flag.ContinueOnError)

	listenAddr := fs.String("listen", "/ip4/0.0.0.0/tcp/0", "libp2p listen multiaddress")
	dataDir := fs.String("data-dir", "./ephemera-data", "pebble storage directory")
	httpAddr := fs.String("http-addr", ":7000", "HTTP API listen address")
	privateKey := fs.String("private-key", "", "base58-encoded ed25519 private key; a fresh one is generated if empty")
	peers := fs.String("peers", "", "comma-separated pubkey_base58@multiaddr bootstrap peers")
	stallTimeout := fs.Duration("stall-timeout", broadcast.DefaultStallTimeout, "duration after which a stuck Context is evicted")
	blockInterval := fs.Duration("block-interval", block.DefaultBlockInterval, "maximum time a non-empty pending queue waits before sealing")
	maxMessages := fs.Int("block-max-messages", block.DefaultMaxMessagesPerBlock, "message count that forces an immediate seal")
	development := fs.Bool("dev", false, "use a human-readable development logger")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	infos, addrs, err := parsePeers(*peers)
	if err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddr:       *listenAddr,
		DataDir:          *dataDir,
		HTTPAddr:         *httpAddr,
		PrivateKeyBase58: *privateKey,
		Peers:            infos,
		BootstrapAddrs:   addrs,
		StallTimeout:     *stallTimeout,
		BlockInterval:    *blockInterval,
		MaxMessages:      *maxMessages,
		Development:      *development,
	}, nil
}

// parsePeers splits "pubkey@multiaddr" entries. The multiaddr half is kept
// separately for dialing; the pubkey half is handed to discovery.Reconciler
// the same way a live membership push would be.
func parsePeers(raw string) ([]discovery.PeerInfo, []string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil, nil
	}

	var infos []discovery.PeerInfo
	var addrs []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "@", 2)
		if len(parts) != 2 {
			return nil, nil, fmt.Errorf("bad peer entry %q, want pubkey_base58@multiaddr", entry)
		}
		infos = append(infos, discovery.PeerInfo{
			Name:            parts[1],
			Multiaddress:    parts[1],
			PublicKeyBase58: parts[0],
		})
		addrs = append(addrs, parts[1])
	}
	return infos, addrs, nil
}
