// Command p2pmidi-relay runs the public relay server that introduces
// NATed nodes to each other and carries their traffic until hole
// punching gives them a direct path.
//
// The relay derives its identity from a seed so clients can compute its
// peer ID without any exchange:
//
//	p2pmidi-relay -seed 42 -port 8040
//
// Deploy it on a host with a public address; the relay itself performs
// no reachability checks.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	logging "github.com/ipfs/go-log/v2"
	"github.com/libp2p/go-libp2p/core/host"

	"github.com/matheusfillipe/p2pmidi"
	"github.com/matheusfillipe/p2pmidi/pkg/addrutil"
	"github.com/matheusfillipe/p2pmidi/pkg/identity"
	"github.com/matheusfillipe/p2pmidi/pkg/relay"
	"github.com/matheusfillipe/p2pmidi/pkg/transport"
)

var (
	seed = flag.Uint("seed", 42, "identity seed (0-255)")
	port = flag.Uint("port", 8040, "listen port for TCP and QUIC")
	ipv6 = flag.Bool("ipv6", false, "bind the wildcard IPv6 address instead of IPv4")

	maxReservations = flag.Int("max-reservations", 128, "maximum concurrent listening reservations")
	maxCircuits     = flag.Int("max-circuits", 16, "maximum open circuits per peer")
	reservationTTL  = flag.Duration("reservation-ttl", time.Hour, "how long a reservation stays valid")
	unlimited       = flag.Bool("unlimited", false, "remove per-circuit duration and data limits")

	verbose = flag.Bool("verbose", false, "enable debug logging for the relay subsystem")
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	flag.Parse()

	if *seed > 255 {
		return fmt.Errorf("seed must be 0-255, got %d", *seed)
	}
	if *verbose {
		_ = logging.SetLogLevel("relay", "debug")
		_ = logging.SetLogLevel("p2p-holepunch", "debug")
	}

	key, err := identity.FromSeed(uint8(*seed))
	if err != nil {
		return fmt.Errorf("failed to derive identity: %w", err)
	}

	listenAddrs, err := addrutil.ListenAddrs(uint16(*port), *ipv6)
	if err != nil {
		return fmt.Errorf("failed to build listen addresses: %w", err)
	}

	tcfg := transport.DefaultConfig()
	tcfg.Key = key
	tcfg.ListenAddrs = listenAddrs
	tcfg.ProtocolVersion = p2pmidi.ProtocolVersion
	tcfg.UserAgent = p2pmidi.UserAgent()

	h, err := transport.NewHost(tcfg)
	if err != nil {
		return fmt.Errorf("failed to create host: %w", err)
	}
	defer func() { _ = h.Close() }()

	svc, err := relay.New(h, relay.Config{
		ReservationTTL:  *reservationTTL,
		MaxReservations: *maxReservations,
		MaxCircuits:     *maxCircuits,
		Unlimited:       *unlimited,
	})
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	fmt.Printf("relay peer ID: %s\n", h.ID())
	fmt.Println("listening on:")
	for _, addr := range h.Addrs() {
		fmt.Printf("  %s/p2p/%s\n", addr, h.ID())
	}
	fmt.Printf("reservations: %d max, ttl %s\n", *maxReservations, *reservationTTL)
	if *unlimited {
		fmt.Println("circuit limits: none")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signalCh
		cancel()
	}()

	go reportStats(ctx, h)

	<-ctx.Done()
	fmt.Println("shutting down")
	return nil
}

// reportStats prints the connection count periodically so operators can
// see the relay is alive and how loaded it is.
func reportStats(ctx context.Context, h host.Host) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Printf("[stats] %d connected peers, %d connections\n",
				len(h.Network().Peers()), len(h.Network().Conns()))
		}
	}
}
