package registry

import (
	"net"
	"testing"

	"github.com/paigeadele/clandestine/internal/access"
	"github.com/paigeadele/clandestine/internal/channel"
	"github.com/paigeadele/clandestine/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry() *Registry {
	return New(ServerInfo{Name: "irc.test", SID: "001"}, Limits{}, access.NewPolicy(), nil, nil)
}

func newTestSession(t *testing.T, r *Registry) *session.Session {
	t.Helper()
	server, _ := net.Pipe()
	t.Cleanup(func() { _ = server.Close() })
	return session.New(r.NextSessionID(), server, session.Config{ServerName: r.Info.Name})
}

func TestReserveNickExclusive(t *testing.T) {
	r := newTestRegistry()

	require.NoError(t, r.ReserveNick("Alice", 1))
	err := r.ReserveNick("alice", 2)
	assert.Error(t, err, "case-folded collision must fail")

	r.ReleaseNick("Alice")
	require.NoError(t, r.ReserveNick("alice", 2), "released nick is free again")
}

func TestFindByNickCaseFold(t *testing.T) {
	r := newTestRegistry()
	s := newTestSession(t, r)
	s.SetNick("Bob")
	require.NoError(t, r.ReserveNick("Bob", s.ID))
	r.AddSession(s)

	found, ok := r.FindByNick("bob")
	assert.True(t, ok)
	assert.Equal(t, s.ID, found.ID)
}

func TestGetOrCreateChannelIdempotent(t *testing.T) {
	r := newTestRegistry()
	ch1, created1 := r.GetOrCreateChannel("#room")
	assert.True(t, created1)
	ch2, created2 := r.GetOrCreateChannel("#ROOM")
	assert.False(t, created2)
	assert.Same(t, ch1, ch2)
}

func TestRemoveSessionClearsNickAndMembership(t *testing.T) {
	r := newTestRegistry()
	s := newTestSession(t, r)
	s.SetNick("carol")
	require.NoError(t, r.ReserveNick("carol", s.ID))
	r.AddSession(s)

	ch, _ := r.GetOrCreateChannel("#room")
	ch.AddMember(channel.SessionID(s.ID))

	r.RemoveSession(s, "bye")

	_, ok := r.FindByNick("carol")
	assert.False(t, ok, "P6: nick map must not resolve a dead session")
	assert.False(t, ch.IsMember(channel.SessionID(s.ID)), "P6: channel must not retain a dead member")
}
