package session

import (
	"bufio"
	"net"
	"testing"
	"time"

	"github.com/paigeadele/clandestine/internal/ircmsg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoHandler struct{}

func (echoHandler) Handle(s *Session, m ircmsg.Message) {
	if m.Command == "QUIT" {
		s.Quit("")
		return
	}
	s.SendMessage(m)
}

func newPipeSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	s := New(1, server, Config{ServerName: "irc.test"})
	return s, client
}

func TestSessionEchoesAndQuits(t *testing.T) {
	s, client := newPipeSession(t)
	go s.Run(echoHandler{})

	_, err := client.Write([]byte("PING :abc\r\n"))
	require.NoError(t, err)

	r := bufio.NewReader(client)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "PING :abc\r\n", line)

	_, err = client.Write([]byte("QUIT\r\n"))
	require.NoError(t, err)

	_ = client.Close()
}

func TestRegistrationP1Invariant(t *testing.T) {
	s, client := newPipeSession(t)
	defer client.Close()
	go s.Run(echoHandler{})

	assert.False(t, s.IsRegistered())

	s.SetNick("alice")
	s.MaybeCompleteRegistration()
	assert.False(t, s.IsRegistered(), "nick alone must not register")

	s.SetUser("alice", "Alice")
	s.MaybeCompleteRegistration()
	assert.True(t, s.IsRegistered())
	assert.False(t, s.CapNegotiating())
}

func TestCapNegGatesRegistration(t *testing.T) {
	s, client := newPipeSession(t)
	defer client.Close()
	go s.Run(echoHandler{})

	s.EnterCapNeg()
	s.SetNick("x")
	s.SetUser("x", "x")
	s.MaybeCompleteRegistration()
	assert.False(t, s.IsRegistered(), "must not register during CapNeg")

	s.ExitCapNeg()
	assert.True(t, s.IsRegistered())
}

func TestPingSupervisorTimesOut(t *testing.T) {
	s, client := newPipeSession(t)
	defer client.Close()
	s.conf.PingInterval = 30 * time.Millisecond
	s.conf.PingTimeout = 60 * time.Millisecond

	go s.Run(echoHandler{})
	go s.RunPingSupervisor()

	r := bufio.NewReader(client)
	_ = client.SetReadDeadline(time.Now().Add(time.Second))

	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "PING")

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "Ping timeout")
}
