// Package peerbook persists the peers a node knows how to reach: their
// identities, circuit addresses, and session history. Entries survive
// restarts so a peer dialed once can be dialed again without re-entering
// its address.
package peerbook

import (
	"encoding/json"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// Entry is one known peer.
type Entry struct {
	// PeerID is the peer identity.
	PeerID peer.ID `json:"peer_id"`

	// Multiaddrs are the addresses to dial the peer at, usually circuit
	// addresses through a relay.
	Multiaddrs []multiaddr.Multiaddr `json:"-"`

	// RawMultiaddrs carries the string form for serialization.
	RawMultiaddrs []string `json:"multiaddrs"`

	// Alias is a human-readable name for the peer.
	Alias string `json:"alias,omitempty"`

	// Seed is set when the peer's identity was derived from a shared
	// seed, so its ID can be re-derived rather than exchanged.
	Seed *uint8 `json:"seed,omitempty"`

	// Blocked peers are never dialed and their dials are refused.
	Blocked bool `json:"blocked"`

	// LastConnected is the time of the last established session.
	LastConnected time.Time `json:"last_connected,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MarshalJSON serializes multiaddrs in string form.
func (e *Entry) MarshalJSON() ([]byte, error) {
	raw := make([]string, len(e.Multiaddrs))
	for i, a := range e.Multiaddrs {
		raw[i] = a.String()
	}

	type alias Entry
	return json.Marshal(&struct {
		*alias
		RawMultiaddrs []string `json:"multiaddrs"`
	}{
		alias:         (*alias)(e),
		RawMultiaddrs: raw,
	})
}

// UnmarshalJSON restores multiaddrs from their string form. Entries with
// unparseable addresses keep the rest of their fields; the bad address is
// dropped.
func (e *Entry) UnmarshalJSON(data []byte) error {
	type alias Entry
	aux := &struct {
		*alias
		RawMultiaddrs []string `json:"multiaddrs"`
	}{alias: (*alias)(e)}

	if err := json.Unmarshal(data, aux); err != nil {
		return err
	}

	e.Multiaddrs = make([]multiaddr.Multiaddr, 0, len(aux.RawMultiaddrs))
	for _, s := range aux.RawMultiaddrs {
		a, err := multiaddr.NewMultiaddr(s)
		if err != nil {
			continue
		}
		e.Multiaddrs = append(e.Multiaddrs, a)
	}
	e.RawMultiaddrs = aux.RawMultiaddrs
	return nil
}

// Clone deep-copies the entry.
func (e *Entry) Clone() *Entry {
	if e == nil {
		return nil
	}

	c := &Entry{
		PeerID:        e.PeerID,
		Alias:         e.Alias,
		Blocked:       e.Blocked,
		LastConnected: e.LastConnected,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
	if e.Seed != nil {
		s := *e.Seed
		c.Seed = &s
	}
	if len(e.Multiaddrs) > 0 {
		c.Multiaddrs = make([]multiaddr.Multiaddr, len(e.Multiaddrs))
		copy(c.Multiaddrs, e.Multiaddrs)
	}
	if len(e.RawMultiaddrs) > 0 {
		c.RawMultiaddrs = make([]string, len(e.RawMultiaddrs))
		copy(c.RawMultiaddrs, e.RawMultiaddrs)
	}
	return c
}

// bookData is the on-disk document.
type bookData struct {
	Version int               `json:"version"`
	Peers   map[string]*Entry `json:"peers"`
}
