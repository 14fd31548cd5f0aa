package peerbook

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/multiformats/go-multiaddr"
)

// flushInterval is how often batched changes reach disk. Structural
// changes (put, remove, block) are written immediately; session
// timestamps are batched.
const flushInterval = 5 * time.Second

// Book is the persistent peer store. Safe for concurrent use.
type Book struct {
	store *fileStore
	peers map[string]*Entry
	mu    sync.RWMutex

	dirty bool

	ctx    context.Context
	cancel context.CancelFunc
}

// Open loads the book at path, creating an empty one if the file does not
// exist. The book must be closed to persist batched changes.
func Open(path string) (*Book, error) {
	store := newFileStore(path)

	data, err := store.load()
	if err != nil {
		return nil, fmt.Errorf("failed to load peer book: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	b := &Book{
		store:  store,
		peers:  data.Peers,
		ctx:    ctx,
		cancel: cancel,
	}
	go b.flushLoop()
	return b, nil
}

// Put adds or updates a peer's dial addresses. Blocked peers cannot be
// updated; unblock first.
func (b *Book) Put(id peer.ID, addrs []multiaddr.Multiaddr) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := id.String()
	now := time.Now()

	addrsCopy := make([]multiaddr.Multiaddr, len(addrs))
	copy(addrsCopy, addrs)

	if existing, ok := b.peers[key]; ok {
		if existing.Blocked {
			return fmt.Errorf("peer %s is blocked", id)
		}
		existing.Multiaddrs = addrsCopy
		existing.UpdatedAt = now
	} else {
		b.peers[key] = &Entry{
			PeerID:     id,
			Multiaddrs: addrsCopy,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
	}
	return b.saveLocked()
}

// Remove deletes a peer.
func (b *Book) Remove(id peer.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := id.String()
	if _, ok := b.peers[key]; !ok {
		return fmt.Errorf("peer %s not found", id)
	}
	delete(b.peers, key)
	return b.saveLocked()
}

// Get returns a copy of the entry for the peer.
func (b *Book) Get(id peer.ID) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.peers[id.String()]
	if !ok {
		return nil, fmt.Errorf("peer %s not found", id)
	}
	return entry.Clone(), nil
}

// List returns all unblocked peers sorted by alias, then ID.
func (b *Book) List() []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Entry, 0, len(b.peers))
	for _, e := range b.peers {
		if !e.Blocked {
			out = append(out, e.Clone())
		}
	}
	sortEntries(out)
	return out
}

// ListAll returns every peer, blocked included, sorted by alias then ID.
func (b *Book) ListAll() []*Entry {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]*Entry, 0, len(b.peers))
	for _, e := range b.peers {
		out = append(out, e.Clone())
	}
	sortEntries(out)
	return out
}

func sortEntries(entries []*Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Alias != entries[j].Alias {
			return entries[i].Alias < entries[j].Alias
		}
		return entries[i].PeerID < entries[j].PeerID
	})
}

// SetAlias names a peer. An empty alias clears the name.
func (b *Book) SetAlias(id peer.ID, alias string) error {
	if err := ValidateAlias(alias); err != nil {
		return err
	}
	return b.update(id, func(e *Entry) { e.Alias = alias })
}

// SetSeed records the shared seed a peer's identity derives from.
func (b *Book) SetSeed(id peer.ID, seed uint8) error {
	return b.update(id, func(e *Entry) { e.Seed = &seed })
}

// Block marks a peer as blocked.
func (b *Book) Block(id peer.ID) error {
	return b.update(id, func(e *Entry) { e.Blocked = true })
}

// Unblock clears a peer's blocked mark.
func (b *Book) Unblock(id peer.ID) error {
	return b.update(id, func(e *Entry) { e.Blocked = false })
}

func (b *Book) update(id peer.ID, f func(*Entry)) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.peers[id.String()]
	if !ok {
		return fmt.Errorf("peer %s not found", id)
	}
	f(entry)
	entry.UpdatedAt = time.Now()
	return b.saveLocked()
}

// IsBlocked reports whether the peer is blocked. Unknown peers are not
// blocked.
func (b *Book) IsBlocked(id peer.ID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()

	entry, ok := b.peers[id.String()]
	return ok && entry.Blocked
}

// TouchConnected records a session with the peer. Batched; flushed
// periodically rather than written through.
func (b *Book) TouchConnected(id peer.ID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	entry, ok := b.peers[id.String()]
	if !ok {
		return fmt.Errorf("peer %s not found", id)
	}
	now := time.Now()
	entry.LastConnected = now
	entry.UpdatedAt = now
	b.dirty = true
	return nil
}

// Has reports whether the peer is known.
func (b *Book) Has(id peer.ID) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.peers[id.String()]
	return ok
}

// Count returns the number of known peers, blocked included.
func (b *Book) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.peers)
}

// Clear removes every peer.
func (b *Book) Clear() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.peers = make(map[string]*Entry)
	return b.saveLocked()
}

// Reload discards in-memory state and re-reads the file.
func (b *Book) Reload() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	data, err := b.store.load()
	if err != nil {
		return fmt.Errorf("failed to reload peer book: %w", err)
	}
	b.peers = data.Peers
	b.dirty = false
	return nil
}

// Flush writes batched changes through to disk.
func (b *Book) Flush() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.dirty {
		return nil
	}
	return b.saveLocked()
}

// Close stops the flush loop and persists pending changes. The book must
// not be used afterwards.
func (b *Book) Close() error {
	b.cancel()

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.dirty {
		return b.saveLocked()
	}
	return nil
}

// saveLocked writes the book to disk. Caller holds the write lock.
func (b *Book) saveLocked() error {
	if err := b.store.save(&bookData{Version: bookVersion, Peers: b.peers}); err != nil {
		return err
	}
	b.dirty = false
	return nil
}

func (b *Book) flushLoop() {
	ticker := time.NewTicker(flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
			b.mu.Lock()
			if b.dirty {
				// Failed flushes retry next tick.
				_ = b.saveLocked()
			}
			b.mu.Unlock()
		}
	}
}
