package dispatch

import (
	"fmt"
	"strings"

	"github.com/paigeadele/clandestine/internal/caps"
	"github.com/paigeadele/clandestine/internal/ircmsg"
	"github.com/paigeadele/clandestine/internal/session"
)

// isupportTokens is the numeric 005 token set this server advertises.
func (d *Dispatcher) isupportTokens() []string {
	network := d.Network
	if network == "" {
		network = "clandestine"
	}
	return []string{
		"CHANTYPES=#",
		"EXCEPTS",
		"INVEX",
		"CHANMODES=eIbq,k,flj,CFLMPQScgimnprstuz",
		"CHANLIMIT=#:100",
		"PREFIX=(ov)@+",
		"MAXLIST=bqeI:100",
		"MODES=4",
		"NETWORK=" + network,
		"STATUSMSG=@+",
		"CALLERID=g",
		"CASEMAPPING=rfc1459",
	}
}

// OnRegistered is wired as the session's registration-complete
// callback. It emits the fixed registration numeric sequence and
// starts the session's ping supervisor.
func (d *Dispatcher) OnRegistered(s *session.Session) {
	srv := d.Registry.Info.Name
	nick := s.Nick()

	if d.Registry.Metrics != nil {
		d.Registry.Metrics.RegisteredUsers.Inc()
	}

	s.SendMessage(ircmsg.Message{Source: srv, Command: "001", Params: []string{nick,
		fmt.Sprintf("Welcome to the %s Internet Relay Chat Network %s", d.networkName(), s.NickUhost())}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "002", Params: []string{nick,
		fmt.Sprintf("Your host is %s, running version %s", srv, d.Registry.Info.Version)}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "003", Params: []string{nick,
		fmt.Sprintf("This server was created %s", d.Registry.Info.CreatedDate)}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "004", Params: []string{
		nick, srv, d.Registry.Info.Version, "ioC", "ntsikl"}})

	tokens := d.isupportTokens()
	s.SendMessage(ircmsg.Message{Source: srv, Command: "005",
		Params: append(append([]string{nick}, tokens...), "are supported by this server")})

	d.sendLusers(s)

	d.sendMOTD(s)

	go s.RunPingSupervisor()
}

func (d *Dispatcher) networkName() string {
	if d.Network != "" {
		return d.Network
	}
	return d.Registry.Info.Name
}

func (d *Dispatcher) sendLusers(s *session.Session) {
	srv := d.Registry.Info.Name
	nick := s.Nick()
	stats := d.Registry.Stats()

	s.SendMessage(ircmsg.Message{Source: srv, Command: "251", Params: []string{nick,
		fmt.Sprintf("There are %d users and 0 invisible on 1 servers", stats.Users)}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "252", Params: []string{nick,
		fmt.Sprintf("%d", stats.Operators), "operator(s) online"}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "253", Params: []string{nick,
		"0", "unknown connection(s)"}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "254", Params: []string{nick,
		fmt.Sprintf("%d", stats.Channels), "channels formed"}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "255", Params: []string{nick,
		fmt.Sprintf("I have %d clients and %d servers", stats.LocalUsers, stats.PeerLinks+1)}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "265", Params: []string{nick,
		fmt.Sprintf("%d", stats.LocalUsers), fmt.Sprintf("%d", d.Registry.Limits.MaxClients),
		"Current local users"}})
	s.SendMessage(ircmsg.Message{Source: srv, Command: "266", Params: []string{nick,
		fmt.Sprintf("%d", stats.Users), fmt.Sprintf("%d", d.Registry.Limits.MaxClients),
		"Current global users"}})
}

func (d *Dispatcher) sendMOTD(s *session.Session) {
	srv := d.Registry.Info.Name
	nick := s.Nick()

	if len(d.MOTD) == 0 {
		s.SendNumeric("422", "MOTD File is missing")
		return
	}

	s.SendMessage(ircmsg.Message{Source: srv, Command: "375", Params: []string{nick,
		fmt.Sprintf("- %s Message of the day -", srv)}})
	for _, line := range d.MOTD {
		s.SendMessage(ircmsg.Message{Source: srv, Command: "372", Params: []string{nick, "- " + line}})
	}
	s.SendMessage(ircmsg.Message{Source: srv, Command: "376", Params: []string{nick, "End of /MOTD command."}})
}

// cmdCAP implements CAP LS/REQ/LIST/END.
func cmdCAP(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		return
	}
	sub := strings.ToUpper(m.Params[0])
	srv := d.Registry.Info.Name
	nick := s.Nick()
	if nick == "" {
		nick = "*"
	}

	switch sub {
	case "LS":
		s.EnterCapNeg()
		s.SendMessage(ircmsg.Message{Source: srv, Command: "CAP",
			Params: []string{nick, "LS", caps.FormatList(caps.All)}})

	case "LIST":
		var enabled []string
		for _, c := range caps.All {
			if s.HasCap(c) {
				enabled = append(enabled, c)
			}
		}
		s.SendMessage(ircmsg.Message{Source: srv, Command: "CAP",
			Params: []string{nick, "LIST", caps.FormatList(enabled)}})

	case "REQ":
		s.EnterCapNeg()
		if len(m.Params) < 2 {
			return
		}
		requested := caps.ParseTokenList(m.Params[1])
		ok := true
		for _, c := range requested {
			if !caps.Supported(strings.TrimPrefix(c, "-")) {
				ok = false
				break
			}
		}
		if !ok {
			s.SendMessage(ircmsg.Message{Source: srv, Command: "CAP",
				Params: []string{nick, "NAK", caps.FormatList(requested)}})
			return
		}
		for _, c := range requested {
			s.EnableCap(strings.TrimPrefix(c, "-"))
		}
		s.SendMessage(ircmsg.Message{Source: srv, Command: "CAP",
			Params: []string{nick, "ACK", caps.FormatList(requested)}})

	case "END":
		s.ExitCapNeg()
	}
}
