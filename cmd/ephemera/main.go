// Command ephemera runs a single broadcast-consensus node: it loads or
// generates an identity, joins the gossip network, and serves the HTTP
// submit/query API over a Pebble-backed store.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	libp2p "github.com/libp2p/go-libp2p"
	libp2pcrypto "github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/peer"
	pubsub "github.com/libp2p/go-libp2p-pubsub"
	"github.com/mr-tron/base58"
	ma "github.com/multiformats/go-multiaddr"

	"github.com/nymtech/ephemera-sub001/pkg/ephemera/api"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/block"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/broadcast"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/callback"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/crypto"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/discovery"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/engine"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/logging"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/metrics"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/quorum"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/registry"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/storage"
	"github.com/nymtech/ephemera-sub001/pkg/ephemera/transport"

	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "ephemera:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := parseConfig(args)
	if err != nil {
		return err
	}

	log := logging.NewDefault()
	if cfg.Development {
		log = logging.NewDevelopment()
	}

	kp, err := loadOrGenerateKeyPair(cfg.PrivateKeyBase58, log)
	if err != nil {
		return fmt.Errorf("keypair: %w", err)
	}

	reg := registry.New()
	rec := discovery.NewReconciler(reg, log)
	selfInfo := discovery.PeerInfo{Name: "self", PublicKeyBase58: base58.Encode(kp.PublicKey())}
	rec.PushPeers(append([]discovery.PeerInfo{selfInfo}, cfg.Peers...))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	h, err := newHost(cfg.ListenAddr, kp)
	if err != nil {
		return fmt.Errorf("libp2p host: %w", err)
	}
	defer h.Close()

	if err := dialBootstrapPeers(ctx, h, cfg.BootstrapAddrs, log); err != nil {
		log.Warnw("some bootstrap peers could not be dialed", "error", err)
	}

	ps, err := pubsub.NewGossipSub(ctx, h)
	if err != nil {
		return fmt.Errorf("gossipsub: %w", err)
	}

	store, err := storage.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	defer store.Close()

	promReg := prometheus.NewRegistry()
	m := metrics.New(promReg)

	tr := transport.New(h, ps, kp.PeerId(), log)

	hub := api.NewHub(log)
	notifying := api.NotifyingCallback{Callback: callback.Noop{}, Hub: hub}

	coord := broadcast.NewCoordinator(kp.PeerId(), reg, quorum.Unanimous{}, kp, tr, notifying, store, m, log)
	tr.SetHandler(coord.Handle)

	if err := tr.JoinSnapshot(ctx, reg.Current().Id); err != nil {
		return fmt.Errorf("joining snapshot: %w", err)
	}

	producer := block.New(kp.PeerId(), reg, store, coord, block.AlwaysFalse{}, m, log)
	producer.SetBlockInterval(cfg.BlockInterval)
	producer.SetMaxMessagesPerBlock(cfg.MaxMessages)

	eng := engine.New(coord, producer, reg, rec, log)
	eng.SetStallTimeout(cfg.StallTimeout)

	go eng.Run(ctx)

	srv := api.NewServer(eng, store, hub, promReg, log)
	httpServer := &http.Server{Addr: cfg.HTTPAddr, Handler: srv.Handler()}
	go func() {
		log.Infow("http api listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Errorw("http server failed", "error", err)
		}
	}()

	log.Infow("ephemera node started", "peer_id", kp.PeerId().String())

	<-ctx.Done()
	log.Infow("shutting down")
	eng.Shutdown()
	return httpServer.Close()
}

func loadOrGenerateKeyPair(base58Key string, log logging.Logger) (*crypto.Ed25519KeyPair, error) {
	if base58Key == "" {
		kp, err := crypto.Generate()
		if err != nil {
			return nil, err
		}
		log.Warnw("generated an ephemeral identity; pass -private-key to persist it across restarts",
			"private_key_base58", base58.Encode(kp.PrivateKeyBytes()))
		return kp, nil
	}
	raw, err := base58.Decode(base58Key)
	if err != nil {
		return nil, fmt.Errorf("decoding private key: %w", err)
	}
	return crypto.FromPrivateKey(raw)
}

// newHost builds the libp2p host sharing the node's own ed25519 identity, so
// the PeerId used for broadcast signatures is exactly the PeerId libp2p
// dials and gossips under.
func newHost(listenAddr string, kp *crypto.Ed25519KeyPair) (host.Host, error) {
	priv, err := libp2pcrypto.UnmarshalEd25519PrivateKey(kp.PrivateKeyBytes())
	if err != nil {
		return nil, err
	}
	return libp2p.New(
		libp2p.Identity(priv),
		libp2p.ListenAddrStrings(listenAddr),
	)
}

func dialBootstrapPeers(ctx context.Context, h host.Host, addrs []string, log logging.Logger) error {
	var lastErr error
	for _, addr := range addrs {
		maddr, err := ma.NewMultiaddr(addr)
		if err != nil {
			lastErr = err
			continue
		}
		info, err := peer.AddrInfoFromP2pAddr(maddr)
		if err != nil {
			lastErr = err
			continue
		}
		if err := h.Connect(ctx, *info); err != nil {
			log.Warnw("failed to dial bootstrap peer", "addr", addr, "error", err)
			lastErr = err
			continue
		}
	}
	return lastErr
}
