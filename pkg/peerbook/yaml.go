package peerbook

import (
	"fmt"
	"os"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
	"gopkg.in/yaml.v3"
)

// yamlDoc is the interchange format for sharing peer lists between
// installations. Only the fields worth sharing travel; session history
// stays local.
type yamlDoc struct {
	Peers []yamlPeer `yaml:"peers"`
}

type yamlPeer struct {
	ID    string   `yaml:"id"`
	Alias string   `yaml:"alias,omitempty"`
	Seed  *uint8   `yaml:"seed,omitempty"`
	Addrs []string `yaml:"addrs,omitempty"`
}

// ExportYAML writes the unblocked peers to a YAML file suitable for
// hand-editing or sharing.
func (b *Book) ExportYAML(path string) error {
	entries := b.List()

	doc := yamlDoc{Peers: make([]yamlPeer, 0, len(entries))}
	for _, e := range entries {
		p := yamlPeer{
			ID:    e.PeerID.String(),
			Alias: e.Alias,
			Seed:  e.Seed,
		}
		for _, a := range e.Multiaddrs {
			p.Addrs = append(p.Addrs, a.String())
		}
		doc.Peers = append(doc.Peers, p)
	}

	raw, err := yaml.Marshal(&doc)
	if err != nil {
		return fmt.Errorf("failed to encode peer list: %w", err)
	}
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("failed to write peer list: %w", err)
	}
	return nil
}

// ImportYAML merges peers from a YAML file into the book. Existing
// entries keep their session history; addresses and aliases from the file
// win. Returns the number of peers imported.
func (b *Book) ImportYAML(path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to read peer list: %w", err)
	}

	var doc yamlDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return 0, fmt.Errorf("failed to parse peer list: %w", err)
	}

	imported := 0
	for _, p := range doc.Peers {
		id, err := peer.Decode(p.ID)
		if err != nil {
			return imported, fmt.Errorf("invalid peer id %q: %w", p.ID, err)
		}

		addrs := make([]multiaddr.Multiaddr, 0, len(p.Addrs))
		for _, s := range p.Addrs {
			a, err := multiaddr.NewMultiaddr(s)
			if err != nil {
				return imported, fmt.Errorf("invalid address %q for peer %s: %w", s, p.ID, err)
			}
			addrs = append(addrs, a)
		}

		if err := b.Put(id, addrs); err != nil {
			return imported, err
		}
		if p.Alias != "" {
			if err := b.SetAlias(id, p.Alias); err != nil {
				return imported, err
			}
		}
		if p.Seed != nil {
			if err := b.SetSeed(id, *p.Seed); err != nil {
				return imported, err
			}
		}
		imported++
	}
	return imported, nil
}
