// Package access implements the access-control policy: K/D/G/I/O/U/A
// line matching against (nick, user, host, ip), independent of any
// particular persistence mechanism.
package access

import (
	"time"
)

// Kind identifies the type of an access line.
type Kind byte

const (
	KindK Kind = 'K' // user@host ban
	KindD Kind = 'D' // IP ban
	KindG Kind = 'G' // global ban
	KindI Kind = 'I' // allow rule (optional password/class)
	KindO Kind = 'O' // operator grant
	KindU Kind = 'U' // trusted peer server
	KindA Kind = 'A' // auth allow
)

// Line is an immutable access-control record.
type Line struct {
	Kind     Kind
	Mask     string // user@host or IP mask, depending on Kind
	Reason   string
	Setter   string
	SetTime  time.Time
	Duration time.Duration // 0 = permanent
	Password string        // KindI: connection password; KindO: bcrypt hash
	Class    string        // only meaningful for KindI
}

// Expired reports whether the line's lifetime has elapsed as of now.
func (l Line) Expired(now time.Time) bool {
	if l.Duration == 0 {
		return false
	}
	return now.After(l.SetTime.Add(l.Duration))
}

// LineStore is the opaque persistence boundary for access lines. The
// core only calls these three operations; how lines are stored is
// not this package's concern (see store/sqlite for one concrete
// implementation).
type LineStore interface {
	Load() ([]Line, error)
	Append(Line) error
	Remove(mask string) error
}

// Policy holds the in-memory access lines and evaluates connection
// checks against them. It does not itself talk to a LineStore; callers
// load lines at startup via LineStore.Load and feed them in with Load.
type Policy struct {
	lines map[Kind][]Line
}

// NewPolicy builds an empty Policy.
func NewPolicy() *Policy {
	return &Policy{lines: map[Kind][]Line{}}
}

// Load replaces the in-memory line set for kind.
func (p *Policy) Load(kind Kind, lines []Line) {
	p.lines[kind] = lines
}

// Add appends a single line of its own kind.
func (p *Policy) Add(l Line) {
	p.lines[l.Kind] = append(p.lines[l.Kind], l)
}

// Remove deletes any line of the given kind whose mask matches
// exactly.
func (p *Policy) Remove(kind Kind, mask string) {
	out := p.lines[kind][:0]
	for _, l := range p.lines[kind] {
		if l.Mask != mask {
			out = append(out, l)
		}
	}
	p.lines[kind] = out
}

func (p *Policy) activeMatch(kind Kind, subject string) (Line, bool) {
	now := time.Now()
	for _, l := range p.lines[kind] {
		if l.Expired(now) {
			continue
		}
		if MatchMask(l.Mask, subject) {
			return l, true
		}
	}
	return Line{}, false
}

// IsDlined checks the D-line (IP ban) list.
func (p *Policy) IsDlined(ip string) (Line, bool) { return p.activeMatch(KindD, ip) }

// IsKlined checks the K-line (user@host ban) list.
func (p *Policy) IsKlined(userHost string) (Line, bool) { return p.activeMatch(KindK, userHost) }

// IsGlined checks the G-line (global ban) list.
func (p *Policy) IsGlined(userHost string) (Line, bool) { return p.activeMatch(KindG, userHost) }

// HasIline reports whether userHost matches an I-line (connection
// allow rule).
func (p *Policy) HasIline(userHost string) (Line, bool) { return p.activeMatch(KindI, userHost) }

// Result is the outcome of a connection access check.
type Result struct {
	Allowed bool
	Reason  string
}

// CheckAccess evaluates D -> K -> G -> I in order, per the documented
// access policy: D/K/G reject with the line's reason; missing I-line
// rejects with a fixed message.
func (p *Policy) CheckAccess(ip, userHost string) Result {
	if l, ok := p.IsDlined(ip); ok {
		return Result{Allowed: false, Reason: l.Reason}
	}
	if l, ok := p.IsKlined(userHost); ok {
		return Result{Allowed: false, Reason: l.Reason}
	}
	if l, ok := p.IsGlined(userHost); ok {
		return Result{Allowed: false, Reason: l.Reason}
	}
	if _, ok := p.HasIline(userHost); !ok {
		return Result{Allowed: false, Reason: "No matching I-line"}
	}
	return Result{Allowed: true}
}

// IsUline reports whether name matches a U-line (trusted peer
// server).
func (p *Policy) IsUline(name string) bool {
	_, ok := p.activeMatch(KindU, name)
	return ok
}

// OperLine looks up an O-line by operator name, used by OperAuth
// implementations to find the configured credential for a nick.
func (p *Policy) OperLine(name string) (Line, bool) {
	return p.activeMatch(KindO, name)
}
