// Package session implements the per-connection client session: the
// registration state machine, the reader loop, the dual immediate/
// bulk write queues, and the independent ping supervisor.
package session

import (
	"bufio"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/paigeadele/clandestine/internal/caps"
	"github.com/paigeadele/clandestine/internal/ircmsg"
)

// State is a session's position in the registration state machine.
type State int

const (
	Opened State = iota
	CapNeg
	Registered
	Closed
)

func (s State) String() string {
	switch s {
	case Opened:
		return "Opened"
	case CapNeg:
		return "CapNeg"
	case Registered:
		return "Registered"
	case Closed:
		return "Closed"
	default:
		return "Unknown"
	}
}

const (
	// DefaultMaxBulkBytes is the bulk (sendq) queue byte cap.
	DefaultMaxBulkBytes = 40960
	// DefaultMaxRecvBytes is the receive-buffer byte cap; an oversize
	// input line is a fatal protocol error.
	DefaultMaxRecvBytes = 8192
	// DefaultPingInterval is how often the ping supervisor checks in.
	DefaultPingInterval = 16 * time.Second
	// DefaultPingTimeout is how long a PING may go unanswered before
	// the session is torn down.
	DefaultPingTimeout = 128 * time.Second
	// RegistrationTimeout is how long a session has from accept to
	// reach Registered before being dropped.
	RegistrationTimeout = 60 * time.Second
)

// Handler processes one parsed message for a session. It is supplied
// by the dispatcher; the session package has no knowledge of command
// semantics.
type Handler interface {
	Handle(s *Session, m ircmsg.Message)
}

// Config carries the per-session tunables that come from the
// server's configuration surface.
type Config struct {
	ServerName   string
	PingInterval time.Duration
	PingTimeout  time.Duration
	MaxBulkBytes int
	MaxRecvBytes int
}

func (c Config) withDefaults() Config {
	if c.PingInterval == 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PingTimeout == 0 {
		c.PingTimeout = DefaultPingTimeout
	}
	if c.MaxBulkBytes == 0 {
		c.MaxBulkBytes = DefaultMaxBulkBytes
	}
	if c.MaxRecvBytes == 0 {
		c.MaxRecvBytes = DefaultMaxRecvBytes
	}
	return c
}

// Session is one accepted TCP connection's state.
type Session struct {
	ID   uint64
	Conn net.Conn
	IP   string

	// LogID is a random correlation id for this connection, distinct
	// from ID: ID is a small monotonic counter, never reused during a
	// server's lifetime, and fine to expose in the protocol (numeric
	// replies never need it), while LogID is safe to put in logs and
	// metrics labels without hinting at connection order or volume.
	LogID string

	conf Config

	queues *writeQueues
	pongCh chan struct{}
	doneCh chan struct{}
	closeOnce sync.Once

	mu sync.Mutex

	state          State
	nick           string
	user           string
	realName       string
	hostname       string
	available      caps.Set
	enabled        caps.Set
	userModes      map[byte]struct{}
	account        string
	seenNick       bool
	seenUser       bool
	away           bool
	awayMessage    string

	// OnRegistered is invoked once, holding no locks, the moment the
	// session completes registration (after CAP END / USER, whichever
	// is later).
	OnRegistered func(*Session)

	// OnClose is invoked once, holding no locks, when the session's
	// reader loop exits for any reason (quit, error, kill, timeout).
	OnClose func(*Session, string)

	// OnSendqDrop, if set, is invoked whenever a bulk-queue frame is
	// dropped for exceeding the sendq cap, for metrics/logging. It
	// holds no locks.
	OnSendqDrop func(*Session)
}

// New builds a Session wrapping conn. It does not start any
// goroutines; call Run to do so.
func New(id uint64, conn net.Conn, conf Config) *Session {
	conf = conf.withDefaults()
	host := conn.RemoteAddr().String()
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	return &Session{
		ID:        id,
		LogID:     uuid.NewString(),
		Conn:      conn,
		IP:        host,
		conf:      conf,
		queues:    newWriteQueues(conf.MaxBulkBytes),
		pongCh:    make(chan struct{}, 1),
		doneCh:    make(chan struct{}),
		hostname:  host,
		available: caps.NewSet(caps.All...),
		enabled:   caps.Set{},
		userModes: map[byte]struct{}{},
	}
}

// --- state accessors (all guarded by mu) ---

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Nick() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nick
}

func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

func (s *Session) RealName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.realName
}

func (s *Session) Hostname() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hostname
}

func (s *Session) IsRegistered() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state == Registered
}

func (s *Session) IsOperator() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.userModes['o']
	return ok
}

func (s *Session) SetUserMode(m byte, adding bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if adding {
		s.userModes[m] = struct{}{}
	} else {
		delete(s.userModes, m)
	}
}

func (s *Session) UserModesString() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := "+"
	for m := range s.userModes {
		out += string(m)
	}
	return out
}

// SetNick records a new nickname. The registry, not the session, is
// responsible for uniqueness (reserve_nick); by the time this is
// called the reservation has already succeeded.
func (s *Session) SetNick(nick string) {
	s.mu.Lock()
	s.nick = nick
	s.seenNick = true
	s.mu.Unlock()
}

// SetUser records USER command fields.
func (s *Session) SetUser(user, realName string) {
	s.mu.Lock()
	s.user = user
	s.realName = realName
	s.seenUser = true
	s.mu.Unlock()
}

// NickUhost returns the canonical "nick!user@host" mask for this
// session, used as message Source and in ban matching.
func (s *Session) NickUhost() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fmt.Sprintf("%s!%s@%s", s.nick, s.user, s.hostname)
}

// EnterCapNeg transitions Opened -> CapNeg on the first CAP LS/REQ.
func (s *Session) EnterCapNeg() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Opened {
		s.state = CapNeg
	}
}

// ExitCapNeg transitions CapNeg -> Opened on CAP END, then attempts
// to complete registration if NICK/USER were already both seen.
func (s *Session) ExitCapNeg() {
	s.mu.Lock()
	if s.state == CapNeg {
		s.state = Opened
	}
	ready := s.seenNick && s.seenUser && s.state == Opened
	s.mu.Unlock()

	if ready {
		s.completeRegistration()
	}
}

// MaybeCompleteRegistration transitions to Registered once NICK and
// USER have both been seen and the session is not capability
// negotiating. It is idempotent.
func (s *Session) MaybeCompleteRegistration() {
	s.mu.Lock()
	ready := s.seenNick && s.seenUser && s.state == Opened
	s.mu.Unlock()

	if ready {
		s.completeRegistration()
	}
}

func (s *Session) completeRegistration() {
	s.mu.Lock()
	if s.state != Opened {
		s.mu.Unlock()
		return
	}
	s.state = Registered
	s.mu.Unlock()

	if s.OnRegistered != nil {
		s.OnRegistered(s)
	}
}

// CapNegotiating reports whether the session is currently in CapNeg.
func (s *Session) CapNegotiating() bool {
	return s.State() == CapNeg
}

func (s *Session) AvailableCaps() caps.Set { return s.available }

func (s *Session) EnableCap(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.enabled.Add(name)
}

func (s *Session) HasCap(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.enabled.Has(name)
}

func (s *Session) SetAccount(account string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.account = account
}

func (s *Session) Account() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.account
}

// SetAway sets or clears the session's away status and message.
func (s *Session) SetAway(away bool, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.away = away
	s.awayMessage = message
}

// IsAway reports whether the session has marked itself away.
func (s *Session) IsAway() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.away
}

// AwayMessage returns the current away message, if any.
func (s *Session) AwayMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.awayMessage
}

// --- sending ---

// SendImmediate enqueues a raw line (without CRLF) onto the immediate
// queue.
func (s *Session) SendImmediate(line string) {
	s.queues.PushImmediate(line + "\r\n")
}

// SendBulk enqueues a raw line (without CRLF) onto the bulk queue,
// dropping it (and reporting the drop via OnSendqDrop) if the sendq
// cap would be exceeded.
func (s *Session) SendBulk(line string) {
	if dropped := s.queues.PushBulk(line + "\r\n"); dropped && s.OnSendqDrop != nil {
		s.OnSendqDrop(s)
	}
}

// SendMessage encodes m and routes it to the bulk queue. If this
// session has negotiated server-time and m carries no time tag
// already, one is stamped before encoding.
func (s *Session) SendMessage(m ircmsg.Message) {
	if s.HasCap(caps.ServerTime) {
		if m.Tags == nil {
			m.Tags = map[string]string{}
		}
		if _, ok := m.Tags["time"]; !ok {
			m.Tags["time"] = time.Now().UTC().Format("2006-01-02T15:04:05.000Z")
		}
	}
	line, _ := ircmsg.Encode(m)
	if dropped := s.queues.PushBulk(line); dropped && s.OnSendqDrop != nil {
		s.OnSendqDrop(s)
	}
}

// SendNumeric formats and sends a numeric reply:
// ":<server> <ddd> <nick|*> <params...>".
func (s *Session) SendNumeric(code string, params ...string) {
	nick := s.Nick()
	if nick == "" {
		nick = "*"
	}
	all := append([]string{nick}, params...)
	s.SendMessage(ircmsg.Message{
		Source:  s.conf.ServerName,
		Command: code,
		Params:  all,
	})
}

// Quit sends an ERROR line (if reason is non-empty) and terminates
// the connection, which unblocks the reader/writer loops. The ERROR
// line is written synchronously, ahead of the close, so it is not at
// the mercy of the write queue draining before the socket goes away.
func (s *Session) Quit(reason string) {
	s.mu.Lock()
	s.state = Closed
	s.mu.Unlock()

	if reason != "" {
		_, _ = s.Conn.Write([]byte(fmt.Sprintf("ERROR :%s\r\n", reason)))
	}
	s.closeOnce.Do(func() {
		_ = s.Conn.Close()
	})
}

// NotifyPong signals the ping supervisor that a PONG was received.
func (s *Session) NotifyPong() {
	select {
	case s.pongCh <- struct{}{}:
	default:
	}
}

// Run starts the reader, writer, and registration-timeout goroutines
// and blocks until the session is torn down. handler processes each
// parsed line. The ping supervisor is not started here (see
// RunPingSupervisor). The reason the reader loop exited is passed to
// OnClose.
func (s *Session) Run(handler Handler) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		s.writeLoop()
	}()

	var reason string
	go func() {
		defer wg.Done()
		reason = s.readLoop(handler)
	}()

	go s.registrationTimeoutWatcher()

	wg.Wait()
	close(s.doneCh)

	if s.OnClose != nil {
		s.OnClose(s, reason)
	}
}

func (s *Session) readLoop(handler Handler) (reason string) {
	r := bufio.NewReaderSize(s.Conn, s.conf.MaxRecvBytes)
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			s.queues.Close()
			if err == io.EOF {
				return "Connection closed"
			}
			return "Read error"
		}

		if len(line) > s.conf.MaxRecvBytes {
			s.Quit("Input line too long")
			s.queues.Close()
			return "Recvq exceeded"
		}

		trimmed := strings.TrimRight(line, "\r\n")
		if trimmed == "" {
			continue
		}

		m, err := ircmsg.Parse(trimmed)
		if err != nil {
			s.SendNumeric("421", trimmed, "Unknown command")
			continue
		}

		handler.Handle(s, m)

		if s.State() == Closed {
			s.queues.Close()
			return "Quit"
		}
	}
}

func (s *Session) writeLoop() {
	w := bufio.NewWriter(s.Conn)
	for {
		frame, ok := s.queues.Pop()
		if !ok {
			return
		}
		if _, err := w.WriteString(frame); err != nil {
			return
		}
		if err := w.Flush(); err != nil {
			return
		}
	}
}

func (s *Session) registrationTimeoutWatcher() {
	t := time.NewTimer(RegistrationTimeout)
	defer t.Stop()
	select {
	case <-t.C:
		if !s.IsRegistered() {
			s.Quit("Registration timeout")
		}
	case <-s.doneCh:
	}
}

// RunPingSupervisor should be started once registration completes
// (after the MOTD numerics, per the registration sequence). It exits
// when the session closes.
//
// It tracks a single outstanding-ping marker: every PingInterval, if
// no PONG has arrived since the last PING, a new one is sent; a
// separate timer fires ERROR :Ping timeout if the outstanding PING
// is not answered within PingTimeout of being sent.
func (s *Session) RunPingSupervisor() {
	pingTicker := time.NewTicker(s.conf.PingInterval)
	defer pingTicker.Stop()

	timeoutTimer := time.NewTimer(s.conf.PingTimeout)
	defer timeoutTimer.Stop()
	stopTimeoutTimer(timeoutTimer)

	var outstanding bool

	for {
		select {
		case <-s.doneCh:
			return

		case <-s.pongCh:
			outstanding = false
			stopTimeoutTimer(timeoutTimer)

		case <-timeoutTimer.C:
			if outstanding {
				s.Quit("Ping timeout")
				return
			}

		case <-pingTicker.C:
			if !outstanding {
				s.SendImmediate(fmt.Sprintf(":%s PING :%s", s.conf.ServerName, s.conf.ServerName))
				outstanding = true
				timeoutTimer.Reset(s.conf.PingTimeout)
			}
		}
	}
}

func stopTimeoutTimer(t *time.Timer) {
	if !t.Stop() {
		select {
		case <-t.C:
		default:
		}
	}
}
