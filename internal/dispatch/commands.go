package dispatch

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/paigeadele/clandestine/internal/caps"
	"github.com/paigeadele/clandestine/internal/channel"
	"github.com/paigeadele/clandestine/internal/ircmsg"
	"github.com/paigeadele/clandestine/internal/session"
)

func param(m ircmsg.Message, i int) string {
	if i < len(m.Params) {
		return m.Params[i]
	}
	return ""
}

func cmdNICK(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	newNick := param(m, 0)
	if newNick == "" {
		s.SendNumeric("431", "No nickname given")
		return
	}
	if !validNick(newNick) {
		s.SendNumeric("432", newNick, "Erroneous nickname")
		return
	}

	oldNick := s.Nick()
	if oldNick == newNick {
		return
	}

	if err := d.Registry.ReserveNick(newNick, s.ID); err != nil {
		s.SendNumeric("433", newNick, "Nickname is already in use")
		return
	}
	if oldNick != "" {
		d.Registry.ReleaseNick(oldNick)
	}

	wasRegistered := s.IsRegistered()
	source := s.NickUhost()
	s.SetNick(newNick)

	if wasRegistered {
		d.Registry.BroadcastGlobal(ircmsg.Message{Source: source, Command: "NICK", Params: []string{newNick}})
	} else {
		s.MaybeCompleteRegistration()
	}
}

func validNick(n string) bool {
	if n == "" || len(n) > 30 {
		return false
	}
	for i, c := range n {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		case strings.ContainsRune("-_[]\\^{}|`", c):
		default:
			return false
		}
	}
	return true
}

func cmdUSER(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if s.IsRegistered() {
		s.SendNumeric("462", "You may not reregister")
		return
	}
	if len(m.Params) < 4 {
		s.SendNumeric("461", "USER", "Not enough parameters")
		return
	}
	s.SetUser(m.Params[0], m.Params[3])
	s.MaybeCompleteRegistration()
}

func cmdPASS(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	// PASS is accepted silently and its value is discarded: it is not
	// stored on the session, and CheckAccess does not compare it with
	// an I-line Password.
}

func cmdPING(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	s.SendImmediate(fmt.Sprintf(":%s PONG %s :%s", d.Registry.Info.Name, d.Registry.Info.Name, param(m, 0)))
}

func cmdPONG(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	s.NotifyPong()
}

func cmdQUIT(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	reason := param(m, 0)
	if reason == "" {
		reason = "Client quit"
	}
	s.Quit(reason)
}

func cmdJOIN(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.SendNumeric("461", "JOIN", "Not enough parameters")
		return
	}

	names := strings.Split(m.Params[0], ",")
	var keys []string
	if len(m.Params) > 1 {
		keys = strings.Split(m.Params[1], ",")
	}

	for i, name := range names {
		if !isChannelName(name) {
			s.SendNumeric("403", name, "No such channel")
			continue
		}

		limit := d.Registry.Limits.MaxChannelsPerUser
		if limit > 0 && d.Registry.MembershipCount(s.ID) >= limit {
			s.SendNumeric("405", name, "You have joined too many channels")
			continue
		}

		ch, created := d.Registry.GetOrCreateChannel(name)

		if !created {
			if ch.HasMode('i') && !ch.MatchesInviteException(s.NickUhost()) {
				s.SendNumeric("473", name, "Cannot join channel (+i)")
				continue
			}
			if ch.MatchesBan(s.NickUhost()) {
				s.SendNumeric("474", name, "Cannot join channel (+b)")
				continue
			}
			if key, hasKey := ch.Key(); hasKey {
				given := ""
				if i < len(keys) {
					given = keys[i]
				}
				if given != key {
					s.SendNumeric("475", name, "Cannot join channel (+k)")
					continue
				}
			}
			if chLimit, hasLimit := ch.Limit(); hasLimit && ch.MemberCount() >= chLimit {
				s.SendNumeric("471", name, "Cannot join channel (+l)")
				continue
			}
		}

		ch.AddMember(channel.SessionID(s.ID))

		account := s.Account()
		if account == "" {
			account = "*"
		}
		d.Registry.BroadcastToChannelTailored(ch, 0, func(recipient *session.Session) ircmsg.Message {
			if recipient.HasCap(caps.ExtendedJoin) {
				return ircmsg.Message{Source: s.NickUhost(), Command: "JOIN",
					Params: []string{ch.Name, account, s.RealName()}}
			}
			return ircmsg.Message{Source: s.NickUhost(), Command: "JOIN", Params: []string{ch.Name}}
		})

		if topic, isSet := ch.Topic(); isSet {
			s.SendNumeric("332", ch.Name, topic)
		} else {
			s.SendNumeric("331", ch.Name, "No topic is set")
		}

		sendNames(d, s, ch)
	}
}

// sendNames emits RPL_NAMREPLY (353) in chunks of at most 10 nicks
// per line, followed by RPL_ENDOFNAMES (366).
func sendNames(d *Dispatcher, s *session.Session, ch *channel.Channel) {
	members := ch.Members()
	var names []string
	for _, id := range members {
		other, ok := d.Registry.GetSession(uint64(id))
		if !ok {
			continue
		}
		prefix := ""
		isOp := ch.IsOperator(id)
		isVoiced := ch.IsVoiced(id)
		switch {
		case isOp && isVoiced && s.HasCap("multi-prefix"):
			prefix = "@+"
		case isOp:
			prefix = "@"
		case isVoiced:
			prefix = "+"
		}
		names = append(names, prefix+other.Nick())
	}

	const chunkSize = 10
	for i := 0; i < len(names); i += chunkSize {
		end := i + chunkSize
		if end > len(names) {
			end = len(names)
		}
		s.SendNumeric("353", "=", ch.Name, strings.Join(names[i:end], " "))
	}
	s.SendNumeric("366", ch.Name, "End of /NAMES list.")
}

func cmdPART(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.SendNumeric("461", "PART", "Not enough parameters")
		return
	}
	reason := param(m, 1)

	for _, name := range strings.Split(m.Params[0], ",") {
		ch, ok := d.Registry.GetChannel(name)
		if !ok {
			s.SendNumeric("403", name, "No such channel")
			continue
		}
		if !ch.IsMember(channel.SessionID(s.ID)) {
			s.SendNumeric("442", name, "You're not on that channel")
			continue
		}

		params := []string{ch.Name}
		if reason != "" {
			params = append(params, reason)
		}
		partLine := ircmsg.Message{Source: s.NickUhost(), Command: "PART", Params: params}
		d.Registry.BroadcastToChannel(ch, partLine, 0)

		d.Registry.RemoveFromChannel(ch, s.ID)
	}
}

func cmdTOPIC(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.SendNumeric("461", "TOPIC", "Not enough parameters")
		return
	}
	name := m.Params[0]
	ch, ok := d.Registry.GetChannel(name)
	if !ok {
		s.SendNumeric("403", name, "No such channel")
		return
	}
	if !ch.IsMember(channel.SessionID(s.ID)) {
		s.SendNumeric("442", name, "You're not on that channel")
		return
	}

	if len(m.Params) == 1 {
		if topic, isSet := ch.Topic(); isSet {
			s.SendNumeric("332", ch.Name, topic)
			setter, at := ch.TopicDetails()
			s.SendNumeric("333", ch.Name, setter, strconv.FormatInt(at.Unix(), 10))
		} else {
			s.SendNumeric("331", ch.Name, "No topic is set")
		}
		return
	}

	if ch.HasMode('t') && !ch.IsOperator(channel.SessionID(s.ID)) {
		s.SendNumeric("482", ch.Name, "You're not channel operator")
		return
	}

	ch.SetTopic(m.Params[1], s.NickUhost())
	topicLine := ircmsg.Message{Source: s.NickUhost(), Command: "TOPIC", Params: []string{ch.Name, m.Params[1]}}
	d.Registry.BroadcastToChannel(ch, topicLine, 0)
}

func cmdNAMES(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		return
	}
	for _, name := range strings.Split(m.Params[0], ",") {
		ch, ok := d.Registry.GetChannel(name)
		if !ok {
			continue
		}
		sendNames(d, s, ch)
	}
}

func cmdMODE(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.SendNumeric("461", "MODE", "Not enough parameters")
		return
	}
	target := m.Params[0]
	if isChannelName(target) {
		channelMode(d, s, target, m.Params[1:])
		return
	}
	userMode(d, s, target, m.Params[1:])
}

func userMode(d *Dispatcher, s *session.Session, target string, args []string) {
	if !strings.EqualFold(target, s.Nick()) {
		s.SendNumeric("502", "Cannot change mode for other users")
		return
	}
	if len(args) == 0 {
		s.SendNumeric("221", s.UserModesString())
		return
	}
	adding := true
	for _, c := range args[0] {
		switch c {
		case '+':
			adding = true
		case '-':
			adding = false
		case 'o':
			if !adding {
				s.SetUserMode('o', false)
			}
		case 'i', 'w', 's':
			s.SetUserMode(byte(c), adding)
		}
	}
	s.SendNumeric("221", s.UserModesString())
}

func channelMode(d *Dispatcher, s *session.Session, target string, args []string) {
	ch, ok := d.Registry.GetChannel(target)
	if !ok {
		s.SendNumeric("403", target, "No such channel")
		return
	}

	if len(args) == 0 {
		s.SendNumeric("324", ch.Name, ch.ModesString())
		return
	}

	isOp := ch.IsOperator(channel.SessionID(s.ID))
	modeStr := args[0]
	rest := args[1:]
	argIdx := 0
	nextArg := func() string {
		if argIdx < len(rest) {
			v := rest[argIdx]
			argIdx++
			return v
		}
		return ""
	}

	var added, removed strings.Builder
	var addedParams, removedParams []string
	adding := true

	for _, c := range modeStr {
		switch c {
		case '+':
			adding = true
		case '-':
			adding = false

		case 'b':
			mask := nextArg()
			if mask == "" {
				for _, e := range ch.List(channel.ModeBan) {
					s.SendNumeric("367", ch.Name, e.Mask, e.Setter, strconv.FormatInt(e.Time.Unix(), 10))
				}
				s.SendNumeric("368", ch.Name, "End of Channel Ban List")
				continue
			}
			if !isOp {
				s.SendNumeric("482", ch.Name, "You're not channel operator")
				continue
			}
			if adding {
				ch.AddToList(channel.ModeBan, mask, s.NickUhost())
				added.WriteByte('b')
				addedParams = append(addedParams, mask)
			} else {
				ch.RemoveFromList(channel.ModeBan, mask)
				removed.WriteByte('b')
				removedParams = append(removedParams, mask)
			}

		case 'e':
			mask := nextArg()
			if !isOp || mask == "" {
				continue
			}
			if adding {
				ch.AddToList(channel.ModeBanException, mask, s.NickUhost())
				added.WriteByte('e')
				addedParams = append(addedParams, mask)
			} else {
				ch.RemoveFromList(channel.ModeBanException, mask)
				removed.WriteByte('e')
				removedParams = append(removedParams, mask)
			}

		case 'I':
			mask := nextArg()
			if !isOp || mask == "" {
				continue
			}
			if adding {
				ch.AddToList(channel.ModeInviteException, mask, s.NickUhost())
				added.WriteByte('I')
				addedParams = append(addedParams, mask)
			} else {
				ch.RemoveFromList(channel.ModeInviteException, mask)
				removed.WriteByte('I')
				removedParams = append(removedParams, mask)
			}

		case 'o', 'v':
			nickArg := nextArg()
			if !isOp || nickArg == "" {
				continue
			}
			other, ok := d.Registry.FindByNick(nickArg)
			if !ok || !ch.IsMember(channel.SessionID(other.ID)) {
				s.SendNumeric("441", nickArg, ch.Name, "They aren't on that channel")
				continue
			}
			if c == 'o' {
				ch.SetOperator(channel.SessionID(other.ID), adding)
			} else {
				ch.SetVoice(channel.SessionID(other.ID), adding)
			}
			if adding {
				added.WriteByte(byte(c))
			} else {
				removed.WriteByte(byte(c))
			}
			if adding {
				addedParams = append(addedParams, nickArg)
			} else {
				removedParams = append(removedParams, nickArg)
			}

		case 'k':
			key := nextArg()
			if !isOp {
				continue
			}
			ch.SetKey(key, adding)
			if adding {
				added.WriteByte('k')
				addedParams = append(addedParams, key)
			} else {
				removed.WriteByte('k')
			}

		case 'l':
			if !isOp {
				continue
			}
			if adding {
				n := nextArg()
				limit, err := strconv.Atoi(n)
				if err != nil {
					continue
				}
				ch.SetLimit(limit, true)
				added.WriteByte('l')
				addedParams = append(addedParams, n)
			} else {
				ch.SetLimit(0, false)
				removed.WriteByte('l')
			}

		default:
			if strings.ContainsRune(channel.SimpleModes, c) {
				if !isOp {
					continue
				}
				ch.SetSimpleMode(byte(c), adding)
				if adding {
					added.WriteByte(byte(c))
				} else {
					removed.WriteByte(byte(c))
				}
			}
		}
	}

	if added.Len() == 0 && removed.Len() == 0 {
		return
	}

	var change strings.Builder
	var allParams []string
	if added.Len() > 0 {
		change.WriteByte('+')
		change.WriteString(added.String())
		allParams = append(allParams, addedParams...)
	}
	if removed.Len() > 0 {
		change.WriteByte('-')
		change.WriteString(removed.String())
		allParams = append(allParams, removedParams...)
	}

	modeLine := ircmsg.Message{Source: s.NickUhost(), Command: "MODE",
		Params: append([]string{ch.Name, change.String()}, allParams...)}
	d.Registry.BroadcastToChannel(ch, modeLine, 0)
}

func cmdPRIVMSG(d *Dispatcher, s *session.Session, m ircmsg.Message) { sendToTarget(d, s, m, "PRIVMSG") }
func cmdNOTICE(d *Dispatcher, s *session.Session, m ircmsg.Message)  { sendToTarget(d, s, m, "NOTICE") }

func sendToTarget(d *Dispatcher, s *session.Session, m ircmsg.Message, command string) {
	if len(m.Params) < 2 {
		if command == "PRIVMSG" {
			s.SendNumeric("412", "No text to send")
		}
		return
	}
	target := m.Params[0]
	text := m.Params[1]

	if isChannelName(target) {
		ch, ok := d.Registry.GetChannel(target)
		if !ok {
			if command == "PRIVMSG" {
				s.SendNumeric("401", target, "No such nick/channel")
			}
			return
		}
		if !ch.IsMember(channel.SessionID(s.ID)) {
			if command == "PRIVMSG" {
				s.SendNumeric("404", target, "Cannot send to channel")
			}
			return
		}
		line := ircmsg.Message{Source: s.NickUhost(), Command: command, Params: []string{target, text}}
		d.Registry.BroadcastToChannel(ch, line, s.ID)
		return
	}

	other, ok := d.Registry.FindByNick(target)
	if !ok {
		if command == "PRIVMSG" {
			s.SendNumeric("401", target, "No such nick/channel")
		}
		return
	}
	other.SendMessage(ircmsg.Message{Source: s.NickUhost(), Command: command, Params: []string{target, text}})

	if command == "PRIVMSG" && other.IsAway() {
		s.SendNumeric("301", other.Nick(), other.AwayMessage())
	}
}

func cmdWHOIS(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) == 0 {
		s.SendNumeric("431", "No nickname given")
		return
	}
	target, ok := d.Registry.FindByNick(m.Params[0])
	if !ok {
		s.SendNumeric("401", m.Params[0], "No such nick/channel")
		return
	}

	s.SendNumeric("311", target.Nick(), target.User(), target.Hostname(), "*", target.RealName())
	s.SendNumeric("312", target.Nick(), d.Registry.Info.Name, d.Registry.Info.Description)
	if target.IsOperator() {
		s.SendNumeric("313", target.Nick(), "is an IRC operator")
	}
	if target.IsAway() {
		s.SendNumeric("301", target.Nick(), target.AwayMessage())
	}
	s.SendNumeric("318", target.Nick(), "End of /WHOIS list.")
}

func cmdWHO(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	mask := param(m, 0)
	if mask == "" {
		s.SendNumeric("315", mask, "End of /WHO list.")
		return
	}

	if isChannelName(mask) {
		ch, ok := d.Registry.GetChannel(mask)
		if !ok {
			s.SendNumeric("315", mask, "End of /WHO list.")
			return
		}
		for _, id := range ch.Members() {
			other, ok := d.Registry.GetSession(uint64(id))
			if !ok {
				continue
			}
			flags := "H"
			if other.IsOperator() {
				flags += "*"
			}
			if ch.IsOperator(id) {
				flags += "@"
			} else if ch.IsVoiced(id) {
				flags += "+"
			}
			s.SendNumeric("352", ch.Name, other.User(), other.Hostname(), d.Registry.Info.Name,
				other.Nick(), flags, "0 "+other.RealName())
		}
		s.SendNumeric("315", mask, "End of /WHO list.")
		return
	}

	if other, ok := d.Registry.FindByNick(mask); ok {
		s.SendNumeric("352", "*", other.User(), other.Hostname(), d.Registry.Info.Name,
			other.Nick(), "H", "0 "+other.RealName())
	}
	s.SendNumeric("315", mask, "End of /WHO list.")
}

func cmdWHOWAS(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	nick := param(m, 0)
	if nick == "" {
		s.SendNumeric("431", "No nickname given")
		return
	}

	d.whowasMu.Lock()
	var matches []whowasEntry
	for _, e := range d.whowas {
		if strings.EqualFold(e.Nick, nick) {
			matches = append(matches, e)
		}
	}
	d.whowasMu.Unlock()

	if len(matches) == 0 {
		s.SendNumeric("406", nick, "There was no such nickname")
		s.SendNumeric("369", nick, "End of WHOWAS")
		return
	}
	for _, e := range matches {
		s.SendNumeric("314", e.Nick, e.User, e.Host, "*", e.RealName)
	}
	s.SendNumeric("369", nick, "End of WHOWAS")
}

// NoteDeparture is called from the session's OnClose hook, before the
// registry forgets the session, to retain a bounded history of
// departed nicks for WHOWAS.
func (d *Dispatcher) NoteDeparture(s *session.Session) {
	if s.Nick() == "" {
		return
	}
	d.whowasMu.Lock()
	defer d.whowasMu.Unlock()
	d.whowas = append(d.whowas, whowasEntry{
		Nick: s.Nick(), User: s.User(), Host: s.Hostname(), RealName: s.RealName(), When: time.Now(),
	})
	if len(d.whowas) > whowasCapacity {
		d.whowas = d.whowas[len(d.whowas)-whowasCapacity:]
	}
}

func cmdLIST(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	var filter map[string]struct{}
	if len(m.Params) > 0 {
		filter = map[string]struct{}{}
		for _, n := range strings.Split(m.Params[0], ",") {
			filter[strings.ToLower(n)] = struct{}{}
		}
	}

	s.SendNumeric("321", "Channel", "Users Name")
	for _, entry := range d.Registry.ChannelList() {
		if filter != nil {
			if _, ok := filter[strings.ToLower(entry.Name)]; !ok {
				continue
			}
		}
		s.SendNumeric("322", entry.Name, strconv.Itoa(entry.MemberCount), entry.Topic)
	}
	s.SendNumeric("323", "End of /LIST")
}

func cmdMOTD(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	d.sendMOTD(s)
}

func cmdLUSERS(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	d.sendLusers(s)
}

func cmdVERSION(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	s.SendNumeric("351", d.Registry.Info.Version, d.Registry.Info.Name, "")
}

func cmdADMIN(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	s.SendNumeric("256", d.Registry.Info.Name, "Administrative info")
	s.SendNumeric("257", d.Registry.Info.Description)
}

func cmdINFO(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	s.SendNumeric("371", d.Registry.Info.Name)
	s.SendNumeric("374", "End of /INFO list.")
}

func cmdTIME(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	s.SendNumeric("391", d.Registry.Info.Name, time.Now().UTC().Format(time.RFC1123))
}

func cmdOPER(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) < 2 {
		s.SendNumeric("461", "OPER", "Not enough parameters")
		return
	}
	if d.Registry.OperAuth == nil || !d.Registry.OperAuth(m.Params[0], m.Params[1]) {
		s.SendNumeric("491", "No O-lines for your host")
		return
	}
	s.SetUserMode('o', true)
	s.SendNumeric("381", "You are now an IRC operator")
}

func cmdKILL(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if !s.IsOperator() {
		s.SendNumeric("481", "Permission Denied- You're not an IRC operator")
		return
	}
	if len(m.Params) < 1 {
		s.SendNumeric("461", "KILL", "Not enough parameters")
		return
	}
	target, ok := d.Registry.FindByNick(m.Params[0])
	if !ok {
		s.SendNumeric("401", m.Params[0], "No such nick/channel")
		return
	}
	reason := param(m, 1)
	if reason == "" {
		reason = "Killed"
	}
	target.Quit("Killed by " + s.Nick() + ": " + reason)
}

func cmdDIE(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if !s.IsOperator() {
		s.SendNumeric("481", "Permission Denied- You're not an IRC operator")
		return
	}
	// Process shutdown is the entrypoint's concern, not the
	// dispatcher's; this is a no-op placeholder for oper-gating.
}

func cmdREHASH(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if !s.IsOperator() {
		s.SendNumeric("481", "Permission Denied- You're not an IRC operator")
		return
	}
	s.SendNumeric("382", "ircd.conf", "Rehashing")
}

func cmdRESTART(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if !s.IsOperator() {
		s.SendNumeric("481", "Permission Denied- You're not an IRC operator")
	}
}

func cmdWALLOPS(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if !s.IsOperator() {
		s.SendNumeric("481", "Permission Denied- You're not an IRC operator")
		return
	}
	text := param(m, 0)
	d.Registry.BroadcastToOpers(ircmsg.Message{Source: s.NickUhost(), Command: "WALLOPS", Params: []string{text}})
}

func cmdINVITE(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) < 2 {
		s.SendNumeric("461", "INVITE", "Not enough parameters")
		return
	}
	nick, chanName := m.Params[0], m.Params[1]

	target, ok := d.Registry.FindByNick(nick)
	if !ok {
		s.SendNumeric("401", nick, "No such nick/channel")
		return
	}
	ch, ok := d.Registry.GetChannel(chanName)
	if ok {
		if !ch.IsMember(channel.SessionID(s.ID)) {
			s.SendNumeric("442", chanName, "You're not on that channel")
			return
		}
		if ch.HasMode('i') && !ch.IsOperator(channel.SessionID(s.ID)) {
			s.SendNumeric("482", chanName, "You're not channel operator")
			return
		}
		if ch.IsMember(channel.SessionID(target.ID)) {
			s.SendNumeric("443", nick, chanName, "is already on channel")
			return
		}
		ch.AddToList(channel.ModeInviteException, target.NickUhost(), s.NickUhost())
	}

	target.SendMessage(ircmsg.Message{Source: s.NickUhost(), Command: "INVITE", Params: []string{nick, chanName}})
	s.SendNumeric("341", nick, chanName)
}

func cmdKICK(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	if len(m.Params) < 2 {
		s.SendNumeric("461", "KICK", "Not enough parameters")
		return
	}
	chanName, nick := m.Params[0], m.Params[1]
	reason := param(m, 2)
	if reason == "" {
		reason = s.Nick()
	}

	ch, ok := d.Registry.GetChannel(chanName)
	if !ok {
		s.SendNumeric("403", chanName, "No such channel")
		return
	}
	if !ch.IsOperator(channel.SessionID(s.ID)) {
		s.SendNumeric("482", chanName, "You're not channel operator")
		return
	}
	target, ok := d.Registry.FindByNick(nick)
	if !ok || !ch.IsMember(channel.SessionID(target.ID)) {
		s.SendNumeric("441", nick, chanName, "They aren't on that channel")
		return
	}

	kickLine := ircmsg.Message{Source: s.NickUhost(), Command: "KICK", Params: []string{chanName, nick, reason}}
	d.Registry.BroadcastToChannel(ch, kickLine, 0)
	d.Registry.RemoveFromChannel(ch, target.ID)
}

func cmdAWAY(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	msg := param(m, 0)
	if msg == "" {
		s.SetAway(false, "")
		s.SendNumeric("305", "You are no longer marked as being away")
		return
	}
	s.SetAway(true, msg)
	s.SendNumeric("306", "You have been marked as being away")
}

func cmdISON(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	var online []string
	for _, nick := range m.Params {
		if _, ok := d.Registry.FindByNick(nick); ok {
			online = append(online, nick)
		}
	}
	s.SendNumeric("303", strings.Join(online, " "))
}

func cmdUSERHOST(d *Dispatcher, s *session.Session, m ircmsg.Message) {
	var replies []string
	for _, nick := range m.Params {
		other, ok := d.Registry.FindByNick(nick)
		if !ok {
			continue
		}
		op := ""
		if other.IsOperator() {
			op = "*"
		}
		away := "+"
		if other.IsAway() {
			away = "-"
		}
		replies = append(replies, fmt.Sprintf("%s%s=%s%s", other.Nick(), op, away, other.Hostname()))
	}
	s.SendNumeric("302", strings.Join(replies, " "))
}
