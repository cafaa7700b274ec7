// Package channel implements the per-channel object: membership,
// topic, modes, and ban/exception lists, each guarded by its own
// lock per the locking order documented in the registry package.
package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/paigeadele/clandestine/internal/access"
)

// SessionID identifies a member by its session id. Defined here
// (rather than imported from session) so this package has no
// dependency on the session package, matching the data model's
// "channels hold only session ids" design note.
type SessionID uint64

// Simple (flag) channel modes that take no parameter.
const SimpleModes = "imnpst"

// ListMode identifies the three list-valued modes: ban, ban
// exception, invite exception.
type ListMode byte

const (
	ModeBan           ListMode = 'b'
	ModeBanException  ListMode = 'e'
	ModeInviteException ListMode = 'I'
)

// BanEntry is one entry in a channel's ban/exception list.
type BanEntry struct {
	Mask   string
	Setter string
	Time   time.Time
}

// Channel holds the state of a single named channel.
type Channel struct {
	mu sync.RWMutex

	Name      string
	CreatedAt time.Time

	topic      string
	topicSet   bool
	topicBy    string
	topicAt    time.Time

	members   map[SessionID]struct{}
	operators map[SessionID]struct{}
	voices    map[SessionID]struct{}

	modes  map[byte]struct{}
	key    string
	limit  int
	hasKey bool
	hasLimit bool

	bans      []BanEntry
	exceptions []BanEntry
	invexes   []BanEntry
}

// New creates a channel with the default modes (+nt) and no members.
// Callers are responsible for adding the creator as a member and
// promoting it to operator (see AddMember).
func New(name string) *Channel {
	c := &Channel{
		Name:      name,
		CreatedAt: time.Now(),
		members:   map[SessionID]struct{}{},
		operators: map[SessionID]struct{}{},
		voices:    map[SessionID]struct{}{},
		modes:     map[byte]struct{}{'n': {}, 't': {}},
	}
	return c
}

// AddMember adds id to the member set. If the channel had zero
// members before this call, id is also promoted to operator. The
// return value reports whether id became the channel's first
// member (and thus an operator).
func (c *Channel) AddMember(id SessionID) (firstMember bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.members[id]; ok {
		return false
	}

	firstMember = len(c.members) == 0
	c.members[id] = struct{}{}
	if firstMember {
		c.operators[id] = struct{}{}
	}
	return firstMember
}

// RemoveMember removes id from membership, operators, and voices.
// It reports whether the channel is now empty (eligible for GC).
func (c *Channel) RemoveMember(id SessionID) (empty bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.members, id)
	delete(c.operators, id)
	delete(c.voices, id)
	return len(c.members) == 0
}

// IsMember reports whether id is a current member.
func (c *Channel) IsMember(id SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.members[id]
	return ok
}

// IsOperator reports whether id holds channel operator status.
func (c *Channel) IsOperator(id SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.operators[id]
	return ok
}

// IsVoiced reports whether id holds voice status.
func (c *Channel) IsVoiced(id SessionID) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.voices[id]
	return ok
}

// MemberCount returns the current number of members.
func (c *Channel) MemberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.members)
}

// Members returns a snapshot of the current member ids. Callers must
// take this snapshot before releasing the channel lock and then
// resolve/enqueue to each session without holding it, per the
// registry's locking order.
func (c *Channel) Members() []SessionID {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]SessionID, 0, len(c.members))
	for id := range c.members {
		out = append(out, id)
	}
	return out
}

// SetTopic overwrites the topic, setter, and set-time. An empty text
// clears the topic but the clear is itself still recorded (setter,
// time) for informational purposes.
func (c *Channel) SetTopic(text, setterMask string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.topic = text
	c.topicSet = text != ""
	c.topicBy = setterMask
	c.topicAt = time.Now()
}

// Topic returns the current topic text and whether one is set.
func (c *Channel) Topic() (text string, isSet bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topic, c.topicSet
}

// TopicDetails returns the topic setter mask and set-time.
func (c *Channel) TopicDetails() (setter string, at time.Time) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.topicBy, c.topicAt
}

// HasMode reports whether simple mode m is set.
func (c *Channel) HasMode(m byte) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.modes[m]
	return ok
}

// Key returns the channel key (mode k) and whether one is set.
func (c *Channel) Key() (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.key, c.hasKey
}

// Limit returns the channel member limit (mode l) and whether one is
// set.
func (c *Channel) Limit() (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.limit, c.hasLimit
}

// SetSimpleMode sets or clears one of the no-parameter modes in
// SimpleModes. Unknown mode characters are ignored.
func (c *Channel) SetSimpleMode(m byte, adding bool) {
	if !strings.ContainsRune(SimpleModes, rune(m)) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if adding {
		c.modes[m] = struct{}{}
	} else {
		delete(c.modes, m)
	}
}

// SetKey sets or clears the channel key.
func (c *Channel) SetKey(key string, adding bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if adding {
		c.key = key
		c.hasKey = true
	} else {
		c.key = ""
		c.hasKey = false
	}
}

// SetLimit sets or clears the channel member limit.
func (c *Channel) SetLimit(limit int, adding bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if adding {
		c.limit = limit
		c.hasLimit = true
	} else {
		c.limit = 0
		c.hasLimit = false
	}
}

// SetOperator grants or revokes operator status for a member.
func (c *Channel) SetOperator(id SessionID, adding bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[id]; !ok {
		return
	}
	if adding {
		c.operators[id] = struct{}{}
	} else {
		delete(c.operators, id)
	}
}

// SetVoice grants or revokes voice status for a member.
func (c *Channel) SetVoice(id SessionID, adding bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.members[id]; !ok {
		return
	}
	if adding {
		c.voices[id] = struct{}{}
	} else {
		delete(c.voices, id)
	}
}

func (c *Channel) listFor(kind ListMode) *[]BanEntry {
	switch kind {
	case ModeBan:
		return &c.bans
	case ModeBanException:
		return &c.exceptions
	case ModeInviteException:
		return &c.invexes
	default:
		return nil
	}
}

// AddToList appends a mask to the given list-valued mode (ban, ban
// exception, or invite exception). Duplicate masks are ignored.
func (c *Channel) AddToList(kind ListMode, mask, setter string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.listFor(kind)
	if list == nil {
		return
	}
	for _, e := range *list {
		if e.Mask == mask {
			return
		}
	}
	*list = append(*list, BanEntry{Mask: mask, Setter: setter, Time: time.Now()})
}

// RemoveFromList removes a mask from the given list-valued mode.
func (c *Channel) RemoveFromList(kind ListMode, mask string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	list := c.listFor(kind)
	if list == nil {
		return
	}
	out := (*list)[:0]
	for _, e := range *list {
		if e.Mask != mask {
			out = append(out, e)
		}
	}
	*list = out
}

// List returns a snapshot of the given list-valued mode's entries.
func (c *Channel) List(kind ListMode) []BanEntry {
	c.mu.RLock()
	defer c.mu.RUnlock()
	list := c.listFor(kind)
	if list == nil {
		return nil
	}
	out := make([]BanEntry, len(*list))
	copy(out, *list)
	return out
}

// MatchesBan reports whether mask (a nick!user@host triple) matches
// any entry in the ban list and none in the exception list.
func (c *Channel) MatchesBan(nickUserHost string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	banned := false
	for _, e := range c.bans {
		if access.MatchMask(e.Mask, nickUserHost) {
			banned = true
			break
		}
	}
	if !banned {
		return false
	}
	for _, e := range c.exceptions {
		if access.MatchMask(e.Mask, nickUserHost) {
			return false
		}
	}
	return true
}

// MatchesInviteException reports whether mask matches an invite
// exception, permitting JOIN to an invite-only channel.
func (c *Channel) MatchesInviteException(nickUserHost string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, e := range c.invexes {
		if access.MatchMask(e.Mask, nickUserHost) {
			return true
		}
	}
	return false
}

// ModesString returns the canonical "+modes [params...]" form:
// simple modes first (stable alphabetical order), then k, then l;
// the parameters of k and l follow all the mode letters, in that
// order (e.g. "+mntkl secret 10").
func (c *Channel) ModesString() string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var flags []byte
	for m := range c.modes {
		flags = append(flags, m)
	}
	sort.Slice(flags, func(i, j int) bool { return flags[i] < flags[j] })

	var params []string
	letters := "+" + string(flags)
	if c.hasKey {
		letters += "k"
		params = append(params, c.key)
	}
	if c.hasLimit {
		letters += "l"
		params = append(params, fmt.Sprintf("%d", c.limit))
	}

	s := letters
	for _, p := range params {
		s += " " + p
	}
	return s
}
