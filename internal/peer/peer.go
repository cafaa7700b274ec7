// Package peer implements the TS6 server-to-server link handshake:
// the PASS/CAPAB/SERVER/EOB sequence, and in-line PING/PONG
// keepalive once linked. Burst/routing beyond the initial handshake
// is explicitly out of scope (see the design notes); a successful
// handshake sends an empty burst immediately followed by EOB.
package peer

import (
	"bufio"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/paigeadele/clandestine/internal/ircmsg"
)

// RequiredOutboundCapabs are the capabilities this server always
// advertises on an outbound CAPAB.
var RequiredOutboundCapabs = []string{"QS", "ENCAP", "TB", "SAVE", "SERVICES"}

// TS6Version is the protocol timestamp version exchanged in PASS.
const TS6Version = 6

// Direction indicates which side initiated the connection.
type Direction int

const (
	Outbound Direction = iota
	Inbound
)

// State is a peer link's handshake progress.
type State int

const (
	Connecting State = iota
	AwaitingServer
	Bursting
	Linked
	Closed
)

// Peer is one linked (or linking) server.
type Peer struct {
	Conn net.Conn

	Name        string
	SID         string
	Description string
	secret      string
	Direction   Direction

	mu      sync.Mutex
	state   State
	capabs  map[string]struct{}
	gotPASS bool
	gotCAPAB bool
	gotSERVER bool
}

// NewOutbound starts an outbound link to a configured peer.
func NewOutbound(conn net.Conn, name, sid, description, secret string) *Peer {
	return &Peer{
		Conn:        conn,
		Name:        name,
		SID:         sid,
		Description: description,
		secret:      secret,
		Direction:   Outbound,
		capabs:      map[string]struct{}{},
	}
}

// NewInbound wraps an accepted peer connection awaiting its
// handshake.
func NewInbound(conn net.Conn) *Peer {
	return &Peer{
		Conn:      conn,
		Direction: Inbound,
		capabs:    map[string]struct{}{},
	}
}

func (p *Peer) send(conn net.Conn, m ircmsg.Message) error {
	line, _ := ircmsg.Encode(m)
	_, err := conn.Write([]byte(line))
	return err
}

// SendOutboundHandshake sends PASS, CAPAB, SERVER in sequence, as the
// initiating side of a link.
func (p *Peer) SendOutboundHandshake(localSID, localName, localDesc string) error {
	if err := p.send(p.Conn, ircmsg.Message{
		Command: "PASS",
		Params:  []string{p.secret, "TS", strconv.Itoa(TS6Version), localSID},
	}); err != nil {
		return errors.Wrap(err, "sending PASS")
	}

	if err := p.send(p.Conn, ircmsg.Message{
		Command: "CAPAB",
		Params:  []string{strings.Join(RequiredOutboundCapabs, " ")},
	}); err != nil {
		return errors.Wrap(err, "sending CAPAB")
	}

	if err := p.send(p.Conn, ircmsg.Message{
		Command: "SERVER",
		Params:  []string{localName, "1", localDesc},
	}); err != nil {
		return errors.Wrap(err, "sending SERVER")
	}

	return nil
}

// ValidateSID reports whether sid is a well-formed TS6 server id:
// exactly three characters, the first a digit, the rest digits or
// uppercase ASCII letters.
func ValidateSID(sid string) bool {
	if len(sid) != 3 {
		return false
	}
	if sid[0] < '0' || sid[0] > '9' {
		return false
	}
	for i := 1; i < 3; i++ {
		c := sid[i]
		isDigit := c >= '0' && c <= '9'
		isUpper := c >= 'A' && c <= 'Z'
		if !isDigit && !isUpper {
			return false
		}
	}
	return true
}

// HandlePASS processes an inbound PASS line: "PASS <secret> TS 6 <sid>".
func (p *Peer) HandlePASS(m ircmsg.Message, expectedSecret string) error {
	if len(m.Params) != 4 {
		return errors.New("malformed PASS")
	}
	if m.Params[1] != "TS" || m.Params[2] != strconv.Itoa(TS6Version) {
		return errors.New("unsupported TS version")
	}
	if m.Params[0] != expectedSecret {
		return errors.New("password mismatch")
	}
	if !ValidateSID(m.Params[3]) {
		return errors.New("malformed SID")
	}

	p.mu.Lock()
	p.secret = m.Params[0]
	p.SID = m.Params[3]
	p.gotPASS = true
	p.mu.Unlock()
	return nil
}

// HandleCAPAB processes an inbound CAPAB line, requiring at least QS
// and ENCAP.
func (p *Peer) HandleCAPAB(m ircmsg.Message) error {
	if len(m.Params) == 0 {
		return errors.New("malformed CAPAB")
	}
	capabs := map[string]struct{}{}
	for _, c := range strings.Fields(m.Params[0]) {
		capabs[c] = struct{}{}
	}
	if _, ok := capabs["QS"]; !ok {
		return errors.New("peer missing required QS capability")
	}
	if _, ok := capabs["ENCAP"]; !ok {
		return errors.New("peer missing required ENCAP capability")
	}

	p.mu.Lock()
	p.capabs = capabs
	p.gotCAPAB = true
	p.mu.Unlock()
	return nil
}

// HandleSERVER processes an inbound SERVER line:
// "SERVER <name> <hopcount> <description>". hopcount must be 1 for a
// directly linked peer.
func (p *Peer) HandleSERVER(m ircmsg.Message) error {
	if len(m.Params) < 3 {
		return errors.New("malformed SERVER")
	}
	if m.Params[1] != "1" {
		return errors.New("unexpected hopcount on direct link")
	}

	p.mu.Lock()
	p.Name = m.Params[0]
	p.Description = m.Params[2]
	p.gotSERVER = true
	ready := p.gotPASS && p.gotCAPAB && p.gotSERVER
	p.mu.Unlock()

	if ready {
		p.mu.Lock()
		p.state = Bursting
		p.mu.Unlock()
	}
	return nil
}

// SendEmptyBurstAndEOB sends an end-of-burst marker with no
// intervening UID/SJOIN traffic, per the design notes: multi-server
// state reconciliation is out of scope, so the burst is empty.
func (p *Peer) SendEmptyBurstAndEOB() error {
	if err := p.send(p.Conn, ircmsg.Message{
		Source:  p.SID,
		Command: "EOB",
	}); err != nil {
		return errors.Wrap(err, "sending EOB")
	}
	p.mu.Lock()
	p.state = Linked
	p.mu.Unlock()
	return nil
}

// Linked reports whether the handshake has completed.
func (p *Peer) Linked() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Linked
}

// ReadyToBurst reports whether PASS, CAPAB, and SERVER have all been
// received and the link is waiting to send its (empty) burst and EOB.
func (p *Peer) ReadyToBurst() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state == Bursting
}

// SendPing sends a PING carrying this server's SID as the cookie.
func (p *Peer) SendPing(localSID string) error {
	return p.send(p.Conn, ircmsg.Message{
		Source:  localSID,
		Command: "PING",
		Params:  []string{localSID},
	})
}

// SendPong echoes a PING's cookie back, sourced from localName.
func (p *Peer) SendPong(localName, cookie string) error {
	return p.send(p.Conn, ircmsg.Message{
		Source:  localName,
		Command: "PONG",
		Params:  []string{localName, cookie},
	})
}

// SendSquit terminates the link with reason and closes the
// connection.
func (p *Peer) SendSquit(reason string) error {
	err := p.send(p.Conn, ircmsg.Message{
		Command: "SQUIT",
		Params:  []string{p.Name, reason},
	})
	p.mu.Lock()
	p.state = Closed
	p.mu.Unlock()
	_ = p.Conn.Close()
	return err
}

// ReadLoop reads lines from the peer connection and dispatches them
// to handle until an error or SQUIT is received.
func (p *Peer) ReadLoop(ioTimeout time.Duration, handle func(ircmsg.Message) error) error {
	r := bufio.NewReader(p.Conn)
	for {
		if ioTimeout > 0 {
			_ = p.Conn.SetReadDeadline(time.Now().Add(ioTimeout))
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return err
		}
		line = strings.TrimRight(line, "\r\n")
		if line == "" {
			continue
		}
		m, err := ircmsg.Parse(line)
		if err != nil {
			continue
		}
		if err := handle(m); err != nil {
			return err
		}
		if m.Command == "SQUIT" {
			return fmt.Errorf("peer sent SQUIT")
		}
	}
}
