// Command p2pmidi runs a connection node from the terminal.
//
// Two nodes sharing a relay can find each other by seed alone:
//
//	p2pmidi -mode listen -seed 44
//	p2pmidi -mode dial -seed 45 -remote-seed 44
//
// The listener reserves a slot on the relay; the dialer opens a relayed
// circuit and lets hole punching upgrade it to a direct connection in the
// background. Connection lifecycle events are printed as they happen.
//
// Configuration precedence: flags > environment > settings file.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/matheusfillipe/p2pmidi"
	prommetrics "github.com/matheusfillipe/p2pmidi/prometheus"
)

var (
	mode       = flag.String("mode", "listen", "operating mode: listen or dial")
	seed       = flag.Uint("seed", 0, "identity seed (0-255); required unless set in the settings file")
	remoteSeed = flag.Uint("remote-seed", 0, "seed of the peer to dial (dial mode)")
	remotePeer = flag.String("remote-peer", "", "peer ID to dial (dial mode, overrides -remote-seed)")

	relayHost = flag.String("relay", "", "relay hostname or IP")
	relayPort = flag.Uint("relay-port", 0, "relay port")
	relaySeed = flag.Uint("relay-seed", 0, "seed the relay identity derives from")

	port = flag.Uint("port", 0, "local listen port for TCP and QUIC")
	ipv6 = flag.Bool("ipv6", false, "bind the wildcard IPv6 address instead of IPv4")

	peerBook    = flag.String("peers", "", "peer book file path")
	configFile  = flag.String("config", "", "YAML settings file path")
	metricsAddr = flag.String("metrics-addr", "", "serve Prometheus metrics and health checks on this address")

	verbose     = flag.Bool("verbose", false, "log at debug level")
	showVersion = flag.Bool("version", false, "print version and exit")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *showVersion {
		fmt.Printf("p2pmidi %s (protocol %s)\n", p2pmidi.Version(), p2pmidi.ProtocolVersion)
		return nil
	}

	cfg, err := buildConfig()
	if err != nil {
		return err
	}

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	cfg.Logger = p2pmidi.SlogLogger{L: logger}

	registry := prometheus.NewRegistry()
	if *metricsAddr != "" {
		cfg.Metrics = prommetrics.NewMetricsWithRegisterer("p2pmidi", registry)
		cfg.PrometheusRegisterer = registry
	}

	node, err := p2pmidi.New(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = node.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-signalCh
		logger.Info("shutting down", "signal", sig.String())
		cancel()
	}()

	if *metricsAddr != "" {
		go serveMetrics(logger, node, registry)
	}

	fmt.Printf("peer ID: %s\n", node.PeerID())
	fmt.Printf("relay:   %s\n", node.RelayID())

	if err := node.Start(ctx); err != nil {
		// A failed relay handshake leaves the node usable on the local
		// network; report it and keep going.
		logger.Warn("relay handshake failed", "err", err)
	}
	for _, addr := range node.ExternalAddrs() {
		fmt.Printf("external: %s\n", addr)
	}

	switch *mode {
	case "listen":
		if err := node.Listen(ctx); err != nil {
			return fmt.Errorf("failed to listen on relay: %w", err)
		}
		fmt.Println("listening through relay; waiting for peers")

	case "dial":
		target, err := dialTarget(ctx, node)
		if err != nil {
			return err
		}
		fmt.Printf("connected to %s\n", target)

	default:
		return fmt.Errorf("unknown mode %q (want listen or dial)", *mode)
	}

	watchEvents(ctx, node, logger)
	return nil
}

// dialTarget resolves the dial target from flags and dials it.
func dialTarget(ctx context.Context, node *p2pmidi.Node) (peer.ID, error) {
	if *remotePeer != "" {
		target, err := peer.Decode(*remotePeer)
		if err != nil {
			return "", fmt.Errorf("invalid peer ID %q: %w", *remotePeer, err)
		}
		return target, node.DialPeer(ctx, target)
	}
	if *remoteSeed == 0 || *remoteSeed > 255 {
		return "", fmt.Errorf("dial mode needs -remote-peer or -remote-seed (1-255)")
	}
	return node.DialSeed(ctx, uint8(*remoteSeed))
}

// watchEvents prints lifecycle events until the context is cancelled.
func watchEvents(ctx context.Context, node *p2pmidi.Node, logger *slog.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-node.Events():
			if !ok {
				return
			}
			printEvent(ev)
		case <-time.After(time.Minute):
			if dropped := node.DroppedEvents(); dropped > 0 {
				logger.Warn("event buffer overflowed", "dropped", dropped)
			}
		}
	}
}

func printEvent(ev p2pmidi.Event) {
	switch ev.Kind {
	case p2pmidi.EventConnected:
		fmt.Printf("[%s] connected: %s\n", stamp(ev), ev.Peer)
	case p2pmidi.EventCircuitOpened:
		fmt.Printf("[%s] relayed connection: %s\n", stamp(ev), ev.Peer)
	case p2pmidi.EventDisconnected:
		fmt.Printf("[%s] disconnected: %s\n", stamp(ev), ev.Peer)
	case p2pmidi.EventHolePunch:
		fmt.Printf("[%s] hole punch %s: %s\n", stamp(ev), ev.Outcome, ev.Peer)
	case p2pmidi.EventObservedAddress:
		fmt.Printf("[%s] external address: %s\n", stamp(ev), ev.Addr)
	case p2pmidi.EventReservationAccepted:
		fmt.Printf("[%s] relay reservation accepted, expires %s\n",
			stamp(ev), ev.Expiry.Format(time.RFC3339))
	case p2pmidi.EventReservationFailed:
		fmt.Printf("[%s] relay reservation failed: %v\n", stamp(ev), ev.Err)
	case p2pmidi.EventPeerUnresponsive:
		fmt.Printf("[%s] peer unresponsive: %s\n", stamp(ev), ev.Peer)
	case p2pmidi.EventDialFailed:
		fmt.Printf("[%s] dial failed: %s: %v\n", stamp(ev), ev.Peer, ev.Err)
	}
}

func stamp(ev p2pmidi.Event) string {
	return ev.Timestamp.Format("15:04:05")
}

// buildConfig merges the settings file, environment, and flags into a
// node configuration.
func buildConfig() (*p2pmidi.Config, error) {
	path := *configFile
	required := path != ""
	if path == "" {
		path = defaultConfigPath()
	}
	s, err := loadSettings(path, required)
	if err != nil {
		return nil, err
	}
	applyEnvOverrides(s)

	// Flags beat everything else.
	if *seed > 0 {
		if *seed > 255 {
			return nil, fmt.Errorf("seed must be 0-255, got %d", *seed)
		}
		v := uint8(*seed)
		s.Seed = &v
	}
	if *port > 0 {
		s.Port = uint16(*port)
	}
	if *ipv6 {
		s.IPv6 = true
	}
	if *relayHost != "" {
		s.Relay.Host = *relayHost
	}
	if *relayPort > 0 {
		s.Relay.Port = uint16(*relayPort)
	}
	if *relaySeed > 0 {
		if *relaySeed > 255 {
			return nil, fmt.Errorf("relay seed must be 0-255, got %d", *relaySeed)
		}
		v := uint8(*relaySeed)
		s.Relay.Seed = &v
	}
	if *peerBook != "" {
		s.PeerBook = *peerBook
	}

	if s.Seed == nil {
		return nil, fmt.Errorf("an identity seed is required (-seed, P2PMIDI_SEED, or the settings file)")
	}
	if s.PeerBook == "" {
		s.PeerBook = defaultPeerBookPath()
	}

	opts := []p2pmidi.ConfigOption{
		p2pmidi.WithSeed(*s.Seed),
	}
	if s.Port > 0 {
		opts = append(opts, p2pmidi.WithPort(s.Port))
	}
	if s.IPv6 {
		opts = append(opts, p2pmidi.WithIPv6(true))
	}
	if s.Relay.Host != "" {
		relayPort := s.Relay.Port
		if relayPort == 0 {
			relayPort = p2pmidi.DefaultRelayPort
		}
		opts = append(opts, p2pmidi.WithRelay(s.Relay.Host, relayPort))
	}
	if s.Relay.Seed != nil {
		opts = append(opts, p2pmidi.WithRelaySeed(*s.Relay.Seed))
	}

	return p2pmidi.NewConfig(s.PeerBook, opts...), nil
}

// serveMetrics exposes Prometheus metrics and the node health endpoints.
func serveMetrics(logger *slog.Logger, node *p2pmidi.Node, registry *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	mux.Handle("/health", p2pmidi.HealthHandler(node))
	mux.Handle("/live", p2pmidi.LivenessHandler(node))

	logger.Info("serving metrics", "addr", *metricsAddr)
	srv := &http.Server{
		Addr:              *metricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server stopped", "err", err)
	}
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "p2pmidi.yaml"
	}
	return home + "/.p2pmidi/config.yaml"
}

func defaultPeerBookPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "peers.json"
	}
	return home + "/.p2pmidi/peers.json"
}
