// Package dispatch implements the Command Dispatcher: a table keyed
// by command name, gated by the session's registration phase, that
// routes parsed lines to handlers which mutate the Server Registry
// and Channel Objects.
package dispatch

import (
	"strings"
	"sync"
	"time"

	"github.com/paigeadele/clandestine/internal/channel"
	"github.com/paigeadele/clandestine/internal/ircmsg"
	"github.com/paigeadele/clandestine/internal/registry"
	"github.com/paigeadele/clandestine/internal/session"
)

// handlerFunc is one command's implementation.
type handlerFunc func(d *Dispatcher, s *session.Session, m ircmsg.Message)

// phase restricts which states a handler may run in.
type phase int

const (
	phaseAny          phase = iota // Registered only, the common case
	phaseAnytime                   // allowed in Opened and Registered (not CapNeg, handled separately)
	phasePreAndPost                // allowed in Opened and Registered (CAP/NICK/USER/PASS/PING/PONG/QUIT); in CapNeg only CAP and QUIT run
)

type entry struct {
	fn    handlerFunc
	phase phase
}

// Dispatcher holds the command table and the static server context
// (MOTD, network name) handlers need.
type Dispatcher struct {
	Registry *registry.Registry
	MOTD     []string
	Network  string

	table map[string]entry

	// whowas is a small ring buffer of recently departed nicks.
	whowasMu sync.Mutex
	whowas   []whowasEntry
}

type whowasEntry struct {
	Nick     string
	User     string
	Host     string
	RealName string
	When     time.Time
}

const whowasCapacity = 10

// New builds a Dispatcher wired to reg.
func New(reg *registry.Registry, motd []string, network string) *Dispatcher {
	d := &Dispatcher{Registry: reg, MOTD: motd, Network: network}
	d.table = map[string]entry{
		"CAP":     {cmdCAP, phasePreAndPost},
		"NICK":    {cmdNICK, phasePreAndPost},
		"USER":    {cmdUSER, phasePreAndPost},
		"PASS":    {cmdPASS, phasePreAndPost},
		"PING":    {cmdPING, phasePreAndPost},
		"PONG":    {cmdPONG, phasePreAndPost},
		"QUIT":    {cmdQUIT, phasePreAndPost},

		"JOIN":     {cmdJOIN, phaseAny},
		"PART":     {cmdPART, phaseAny},
		"TOPIC":    {cmdTOPIC, phaseAny},
		"NAMES":    {cmdNAMES, phaseAny},
		"MODE":     {cmdMODE, phaseAny},
		"PRIVMSG":  {cmdPRIVMSG, phaseAny},
		"NOTICE":   {cmdNOTICE, phaseAny},
		"WHOIS":    {cmdWHOIS, phaseAny},
		"WHO":      {cmdWHO, phaseAny},
		"WHOWAS":   {cmdWHOWAS, phaseAny},
		"LIST":     {cmdLIST, phaseAny},
		"MOTD":     {cmdMOTD, phaseAny},
		"LUSERS":   {cmdLUSERS, phaseAny},
		"VERSION":  {cmdVERSION, phaseAny},
		"ADMIN":    {cmdADMIN, phaseAny},
		"INFO":     {cmdINFO, phaseAny},
		"TIME":     {cmdTIME, phaseAny},
		"OPER":     {cmdOPER, phaseAny},
		"KILL":     {cmdKILL, phaseAny},
		"DIE":      {cmdDIE, phaseAny},
		"REHASH":   {cmdREHASH, phaseAny},
		"RESTART":  {cmdRESTART, phaseAny},
		"WALLOPS":  {cmdWALLOPS, phaseAny},
		"INVITE":   {cmdINVITE, phaseAny},
		"KICK":     {cmdKICK, phaseAny},
		"AWAY":     {cmdAWAY, phaseAny},
		"ISON":     {cmdISON, phaseAny},
		"USERHOST": {cmdUSERHOST, phaseAny},
	}
	return d
}

// Handle implements session.Handler. It enforces the phase gating
// documented for the Command Dispatcher.
func (d *Dispatcher) Handle(s *session.Session, m ircmsg.Message) {
	if m.Command == "" {
		return
	}

	e, known := d.table[m.Command]

	switch s.State() {
	case session.CapNeg:
		if m.Command == "CAP" || m.Command == "QUIT" {
			if known {
				e.fn(d, s, m)
			}
		}
		// everything else is buffered-and-ignored
		return

	case session.Opened:
		if !known || e.phase != phasePreAndPost {
			s.SendNumeric("451", "You have not registered")
			return
		}
		e.fn(d, s, m)
		return

	case session.Registered:
		if !known {
			s.SendNumeric("421", m.Command, "Unknown command")
			return
		}
		e.fn(d, s, m)
		return

	default: // Closed
		return
	}
}

func isChannelName(name string) bool {
	return strings.HasPrefix(name, "#")
}

func asChannelID(id uint64) channel.SessionID { return channel.SessionID(id) }
