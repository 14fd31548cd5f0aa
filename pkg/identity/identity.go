// Package identity provides node identity derivation for p2pmidi nodes.
// An identity is an Ed25519 keypair together with the libp2p peer ID
// derived from its public key.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"

	"github.com/libp2p/go-libp2p/core/crypto"
	"github.com/libp2p/go-libp2p/core/peer"
)

// Keypair is a node identity: an Ed25519 keypair and the peer ID derived
// from the public key. The peer ID is a pure function of the keypair.
type Keypair struct {
	// Priv is the Ed25519 private key in libp2p format.
	Priv crypto.PrivKey

	// Pub is the corresponding public key.
	Pub crypto.PubKey

	// ID is the peer ID derived from Pub.
	ID peer.ID
}

// Generate creates a new random Ed25519 identity.
// This is the identity scheme for production use.
func Generate() (Keypair, error) {
	priv, pub, err := crypto.GenerateEd25519Key(rand.Reader)
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to generate ed25519 key: %w", err)
	}
	return fromKeys(priv, pub)
}

// FromSeed derives a deterministic Ed25519 identity from a single-byte seed.
// The seed is placed in the first byte of a zero-filled 32-byte Ed25519 seed,
// so the same seed always yields the same peer ID.
//
// This scheme only covers a 256-value identity space and is NOT suitable for
// production identities. It exists so that test and demo deployments can
// address each other by seed ("dial peer 44") without exchanging keys.
func FromSeed(seed byte) (Keypair, error) {
	var seedBytes [ed25519.SeedSize]byte
	seedBytes[0] = seed

	edPriv := ed25519.NewKeyFromSeed(seedBytes[:])

	priv, err := crypto.UnmarshalEd25519PrivateKey(edPriv)
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to convert seeded key: %w", err)
	}
	return fromKeys(priv, priv.GetPublic())
}

// PeerIDFromSeed returns the peer ID a node using FromSeed(seed) would have.
// Dialers use this to address a remote peer by its well-known seed.
func PeerIDFromSeed(seed byte) (peer.ID, error) {
	kp, err := FromSeed(seed)
	if err != nil {
		return "", err
	}
	return kp.ID, nil
}

// FromPrivateKey builds a Keypair from an existing libp2p private key.
func FromPrivateKey(priv crypto.PrivKey) (Keypair, error) {
	if priv == nil {
		return Keypair{}, fmt.Errorf("private key is nil")
	}
	return fromKeys(priv, priv.GetPublic())
}

func fromKeys(priv crypto.PrivKey, pub crypto.PubKey) (Keypair, error) {
	id, err := peer.IDFromPublicKey(pub)
	if err != nil {
		return Keypair{}, fmt.Errorf("failed to derive peer ID: %w", err)
	}
	return Keypair{Priv: priv, Pub: pub, ID: id}, nil
}
