// Package registry implements the Server Registry: the global maps
// of sessions, nicknames, channels, and linked peers, and the
// fan-out/broadcast operations that read them under the documented
// locking order (registry -> channel -> session).
package registry

import (
	"strings"
	"sync"
	"sync/atomic"

	"github.com/paigeadele/clandestine/internal/access"
	"github.com/paigeadele/clandestine/internal/channel"
	"github.com/paigeadele/clandestine/internal/ircmsg"
	"github.com/paigeadele/clandestine/internal/metrics"
	"github.com/paigeadele/clandestine/internal/peer"
	"github.com/paigeadele/clandestine/internal/session"
)

// ErrAlreadyInUse is returned by ReserveNick when the case-folded
// nick is already held by another session.
type ErrAlreadyInUse struct{ Nick string }

func (e ErrAlreadyInUse) Error() string { return "nickname already in use: " + e.Nick }

// ServerInfo carries the static identity used in numerics and
// TS6-facing output.
type ServerInfo struct {
	Name        string
	Description string
	SID         string
	CreatedDate string
	Version     string
	Network     string
}

// Limits holds the soft/advisory caps from the configuration
// surface.
type Limits struct {
	MaxClients  int
	MaxChannels int
	// MaxChannelsPerUser bounds how many channels a single session may
	// be a member of at once; 0 means unlimited. JOIN past this limit
	// fails with 405 (ERR_TOOMANYCHANNELS), per the decision recorded
	// in DESIGN.md.
	MaxChannelsPerUser int
}

// Registry is the single owner of session, nickname, channel, and
// peer state.
type Registry struct {
	Info     ServerInfo
	Limits   Limits
	Access   *access.Policy
	OperAuth access.OperAuth
	Metrics  *metrics.Metrics

	nextID uint64

	mu       sync.RWMutex
	sessions map[uint64]*session.Session
	nicks    map[string]uint64 // lowercased nick -> session id
	channels map[string]*channel.Channel

	peersMu sync.RWMutex
	peers   map[string]*peer.Peer
}

// New builds an empty Registry.
func New(info ServerInfo, limits Limits, pol *access.Policy, operAuth access.OperAuth, m *metrics.Metrics) *Registry {
	return &Registry{
		Info:     info,
		Limits:   limits,
		Access:   pol,
		OperAuth: operAuth,
		Metrics:  m,
		sessions: map[uint64]*session.Session{},
		nicks:    map[string]uint64{},
		channels: map[string]*channel.Channel{},
		peers:    map[string]*peer.Peer{},
	}
}

// AddPeer registers a newly linked peer.
func (r *Registry) AddPeer(p *peer.Peer) {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	r.peers[p.SID] = p
	if r.Metrics != nil {
		r.Metrics.PeerLinks.Inc()
	}
}

// RemovePeer removes a peer by SID.
func (r *Registry) RemovePeer(sid string) {
	r.peersMu.Lock()
	defer r.peersMu.Unlock()
	if _, ok := r.peers[sid]; ok {
		delete(r.peers, sid)
		if r.Metrics != nil {
			r.Metrics.PeerLinks.Dec()
		}
	}
}

// Peers returns a snapshot of currently linked peers.
func (r *Registry) Peers() []*peer.Peer {
	r.peersMu.RLock()
	defer r.peersMu.RUnlock()
	out := make([]*peer.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	return out
}

// NextSessionID returns the next monotonic session id.
func (r *Registry) NextSessionID() uint64 {
	return atomic.AddUint64(&r.nextID, 1)
}

func foldNick(nick string) string { return strings.ToLower(nick) }

// AddSession inserts s into the session map.
func (r *Registry) AddSession(s *session.Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[s.ID] = s
	if r.Metrics != nil {
		r.Metrics.ConnectedSessions.Inc()
		s.OnSendqDrop = func(*session.Session) { r.Metrics.SendqDrops.Inc() }
	}
}

// RemoveSession removes s from the session map, releases its
// nickname, and removes it from every channel it belonged to,
// broadcasting a QUIT with reason to each channel's remaining
// members. It is safe to call more than once.
func (r *Registry) RemoveSession(s *session.Session, reason string) {
	r.mu.Lock()
	nick := s.Nick()
	if id, ok := r.nicks[foldNick(nick)]; ok && id == s.ID {
		delete(r.nicks, foldNick(nick))
	}
	delete(r.sessions, s.ID)
	chans := make([]*channel.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	r.mu.Unlock()

	if r.Metrics != nil {
		r.Metrics.ConnectedSessions.Dec()
		if s.IsRegistered() {
			r.Metrics.RegisteredUsers.Dec()
		}
	}

	quitLine := ircmsg.Message{
		Source:  s.NickUhost(),
		Command: "QUIT",
		Params:  []string{reason},
	}

	for _, ch := range chans {
		if !ch.IsMember(channel.SessionID(s.ID)) {
			continue
		}
		empty := ch.RemoveMember(channel.SessionID(s.ID))
		members := ch.Members()
		for _, id := range members {
			if other, ok := r.GetSession(uint64(id)); ok {
				other.SendMessage(quitLine)
			}
		}
		if empty {
			r.maybeRemoveChannel(ch.Name)
		}
	}
}

// GetSession looks up a session by id.
func (r *Registry) GetSession(id uint64) (*session.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// SessionCount returns the number of connected sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// RegisteredCount returns the number of sessions that have completed
// registration.
func (r *Registry) RegisteredCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, s := range r.sessions {
		if s.IsRegistered() {
			n++
		}
	}
	return n
}

// ReserveNick atomically claims nick for session id, case-folded.
// Reservation is linearizable: once this returns nil, no concurrent
// caller observes the nick as free until ReleaseNick.
func (r *Registry) ReserveNick(nick string, id uint64) error {
	folded := foldNick(nick)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.nicks[folded]; ok && existing != id {
		return ErrAlreadyInUse{Nick: nick}
	}
	r.nicks[folded] = id
	return nil
}

// ReleaseNick removes nick from the nickname map. Idempotent.
func (r *Registry) ReleaseNick(nick string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.nicks, foldNick(nick))
}

// FindByNick resolves a nickname (case-folded) to its session.
func (r *Registry) FindByNick(nick string) (*session.Session, bool) {
	r.mu.RLock()
	id, ok := r.nicks[foldNick(nick)]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return r.GetSession(id)
}

// GetOrCreateChannel atomically fetches or creates a channel with
// default modes +nt.
func (r *Registry) GetOrCreateChannel(name string) (ch *channel.Channel, created bool) {
	folded := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.channels[folded]; ok {
		return existing, false
	}
	ch = channel.New(name)
	r.channels[folded] = ch
	if r.Metrics != nil {
		r.Metrics.Channels.Inc()
	}
	return ch, true
}

// GetChannel looks up a channel by name.
func (r *Registry) GetChannel(name string) (*channel.Channel, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[strings.ToLower(name)]
	return ch, ok
}

// ChannelCount returns the number of known channels.
func (r *Registry) ChannelCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.channels)
}

// IsMember reports whether id belongs to ch.
func (r *Registry) IsMember(ch *channel.Channel, id uint64) bool {
	return ch.IsMember(channel.SessionID(id))
}

// MembershipCount returns how many channels id currently belongs to,
// used to enforce a per-user channel limit on JOIN.
func (r *Registry) MembershipCount(id uint64) int {
	r.mu.RLock()
	chans := make([]*channel.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	r.mu.RUnlock()

	n := 0
	for _, ch := range chans {
		if ch.IsMember(channel.SessionID(id)) {
			n++
		}
	}
	return n
}

// RemoveFromChannel removes id from ch's membership and garbage
// collects ch if it becomes empty.
func (r *Registry) RemoveFromChannel(ch *channel.Channel, id uint64) {
	empty := ch.RemoveMember(channel.SessionID(id))
	if empty {
		r.maybeRemoveChannel(ch.Name)
	}
}

// maybeRemoveChannel garbage-collects a channel left with zero
// members. Channel GC is not performed by the system this design is
// modeled on; this implementation chooses to GC, since retaining
// empty channels forever is unbounded memory growth with no
// offsetting benefit (no persistence of topic across emptiness is
// specified).
func (r *Registry) maybeRemoveChannel(name string) {
	folded := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if ch, ok := r.channels[folded]; ok && ch.MemberCount() == 0 {
		delete(r.channels, folded)
		if r.Metrics != nil {
			r.Metrics.Channels.Dec()
		}
	}
}

// BroadcastToChannel fans msg out to every member of ch, optionally
// skipping one session id (the originator, for echo exclusion). It
// collects the membership snapshot under the channel's own lock,
// then releases it before resolving and enqueueing to each session,
// per the registry's locking order.
func (r *Registry) BroadcastToChannel(ch *channel.Channel, msg ircmsg.Message, skip uint64) {
	members := ch.Members()
	for _, id := range members {
		if uint64(id) == skip {
			continue
		}
		if s, ok := r.GetSession(uint64(id)); ok {
			s.SendMessage(msg)
		}
	}
}

// BroadcastToChannelTailored is BroadcastToChannel for the case where
// the frame differs per recipient (e.g. extended-join's extra JOIN
// params, shown only to sessions that negotiated the capability).
// build is called once per surviving member with that member's
// session and must return the message to send it.
func (r *Registry) BroadcastToChannelTailored(ch *channel.Channel, skip uint64, build func(*session.Session) ircmsg.Message) {
	members := ch.Members()
	for _, id := range members {
		if uint64(id) == skip {
			continue
		}
		if s, ok := r.GetSession(uint64(id)); ok {
			s.SendMessage(build(s))
		}
	}
}

// BroadcastGlobal fans msg out to every connected session's bulk
// queue; used for nick changes. QUITs go to channel members from
// RemoveSession, and WALLOPS to operators via BroadcastToOpers.
func (r *Registry) BroadcastGlobal(msg ircmsg.Message) {
	r.mu.RLock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		s.SendMessage(msg)
	}
}

// BroadcastToOpers sends msg to every registered, local operator.
func (r *Registry) BroadcastToOpers(msg ircmsg.Message) {
	r.mu.RLock()
	all := make([]*session.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	for _, s := range all {
		if s.IsOperator() {
			s.SendMessage(msg)
		}
	}
}

// ChannelListEntry is one row of a LIST reply snapshot.
type ChannelListEntry struct {
	Name        string
	MemberCount int
	Topic       string
}

// ChannelList returns a snapshot of all known channels.
func (r *Registry) ChannelList() []ChannelListEntry {
	r.mu.RLock()
	chans := make([]*channel.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		chans = append(chans, ch)
	}
	r.mu.RUnlock()

	out := make([]ChannelListEntry, 0, len(chans))
	for _, ch := range chans {
		topic, _ := ch.Topic()
		out = append(out, ChannelListEntry{
			Name:        ch.Name,
			MemberCount: ch.MemberCount(),
			Topic:       topic,
		})
	}
	return out
}

// Stats is the aggregate counts used for LUSERS.
type Stats struct {
	Users      int
	Operators  int
	Channels   int
	LocalUsers int
	PeerLinks  int
}

// Stats computes the current aggregate counts.
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	var ops int
	for _, s := range r.sessions {
		if s.IsOperator() {
			ops++
		}
	}
	users := len(r.sessions)
	chans := len(r.channels)
	r.mu.RUnlock()

	r.peersMu.RLock()
	links := len(r.peers)
	r.peersMu.RUnlock()

	return Stats{
		Users:      users,
		Operators:  ops,
		Channels:   chans,
		LocalUsers: users,
		PeerLinks:  links,
	}
}

// CheckAccess runs the access policy's D/K/G/I checks for a
// connecting session.
func (r *Registry) CheckAccess(ip, userHost string) access.Result {
	res := r.Access.CheckAccess(ip, userHost)
	if !res.Allowed && r.Metrics != nil {
		r.Metrics.AccessRejections.WithLabelValues("connect").Inc()
	}
	return res
}
