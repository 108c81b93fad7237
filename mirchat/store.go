package mirchat

import (
	"sort"
	"sync"
)

// Store holds per-peer threads, the selection and unread flags for one
// session. Writes come from the session loop only; the read lock lets the
// presentation layer take a View from any goroutine.
type Store struct {
	mu       sync.RWMutex
	peers    map[string]Peer
	order    []string
	threads  map[string][]Message
	unread   map[string]bool
	selected string
	unknown  string
}

// NewStore returns an empty store with nothing selected.
func NewStore() *Store {
	return &Store{
		peers:   make(map[string]Peer),
		threads: make(map[string][]Message),
		unread:  make(map[string]bool),
		unknown: "Unknown",
	}
}

// SetUnknownLabel sets the display name given to senders missing from the
// peer set.
func (s *Store) SetUnknownLabel(label string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unknown = label
}

// SelectPeer selects peerID and clears its unread flag. An empty id clears
// the selection.
func (s *Store) SelectPeer(peerID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = peerID
	if peerID != "" {
		s.unread[peerID] = false
	}
}

// AppendMessage appends msg to the peer's thread, creating it if absent.
func (s *Store) AppendMessage(peerID string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.threads[peerID] = append(s.threads[peerID], msg)
}

// SetUnread sets the peer's unread flag. The selected peer is always false.
func (s *Store) SetUnread(peerID string, value bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if peerID == s.selected {
		value = false
	}
	s.unread[peerID] = value
}

// ReplacePeers swaps the peer set wholesale. Threads and the selection of
// peers that remain are untouched, and every peer gets a thread.
func (s *Store) ReplacePeers(peers []Peer) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.peers = make(map[string]Peer, len(peers))
	s.order = s.order[:0]
	for _, p := range peers {
		if p.ID == "" {
			continue
		}
		if _, dup := s.peers[p.ID]; !dup {
			s.order = append(s.order, p.ID)
		}
		s.peers[p.ID] = p
		if _, ok := s.threads[p.ID]; !ok {
			s.threads[p.ID] = []Message{}
		}
	}
	sort.SliceStable(s.order, func(i, j int) bool {
		a, b := s.peers[s.order[i]], s.peers[s.order[j]]
		if a.DisplayName != b.DisplayName {
			return a.DisplayName < b.DisplayName
		}
		return a.ID < b.ID
	})
}

// Peer looks up a peer in the current set.
func (s *Store) Peer(peerID string) (Peer, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.peers[peerID]
	return p, ok
}

// Selected returns the selected peer id, or "" when nothing is selected.
func (s *Store) Selected() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// Thread returns a copy of the peer's thread.
func (s *Store) Thread(peerID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Message(nil), s.threads[peerID]...)
}

func (s *Store) hasThread(peerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.threads[peerID]
	return ok
}

// Unread returns the peer's unread flag.
func (s *Store) Unread(peerID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.unread[peerID]
}

// Reset drops all session state.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.peers = make(map[string]Peer)
	s.order = nil
	s.threads = make(map[string][]Message)
	s.unread = make(map[string]bool)
	s.selected = ""
}

// PeerView is a peer as shown in the peer list. Unlisted peers are senders
// with a non-empty thread that the directory does not know about; their
// DisplayName is the unknown label.
type PeerView struct {
	Peer
	Unread   bool
	Unlisted bool
}

// View is a consistent snapshot for rendering.
type View struct {
	Peers    []PeerView
	Selected string
	Thread   []Message // thread of the selected peer
}

// View returns a snapshot of the store.
func (s *Store) View() View {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v := View{
		Peers:    make([]PeerView, 0, len(s.order)),
		Selected: s.selected,
	}
	for _, id := range s.order {
		v.Peers = append(v.Peers, PeerView{Peer: s.peers[id], Unread: s.unread[id]})
	}
	var others []string
	for id, thread := range s.threads {
		if _, listed := s.peers[id]; !listed && len(thread) > 0 {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	for _, id := range others {
		v.Peers = append(v.Peers, PeerView{
			Peer:     Peer{ID: id, DisplayName: s.unknown},
			Unread:   s.unread[id],
			Unlisted: true,
		})
	}
	if s.selected != "" {
		v.Thread = append([]Message(nil), s.threads[s.selected]...)
	}
	return v
}
