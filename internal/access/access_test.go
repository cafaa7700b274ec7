package access

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckAccessOrder(t *testing.T) {
	p := NewPolicy()
	p.Add(Line{Kind: KindI, Mask: "*@*"})

	res := p.CheckAccess("1.2.3.4", "user@host")
	assert.True(t, res.Allowed)

	p.Add(Line{Kind: KindK, Mask: "user@host", Reason: "banned user"})
	res = p.CheckAccess("1.2.3.4", "user@host")
	assert.False(t, res.Allowed)
	assert.Equal(t, "banned user", res.Reason)
}

func TestCheckAccessNoIline(t *testing.T) {
	p := NewPolicy()
	res := p.CheckAccess("1.2.3.4", "user@host")
	assert.False(t, res.Allowed)
	assert.Equal(t, "No matching I-line", res.Reason)
}

func TestExpiredLineIgnored(t *testing.T) {
	p := NewPolicy()
	p.Add(Line{Kind: KindI, Mask: "*@*"})
	p.Add(Line{
		Kind:     KindK,
		Mask:     "user@host",
		SetTime:  time.Now().Add(-2 * time.Hour),
		Duration: time.Hour,
	})

	res := p.CheckAccess("1.2.3.4", "user@host")
	assert.True(t, res.Allowed)
}

func TestBcryptOperAuth(t *testing.T) {
	hash, err := HashOperPassword("s3cret")
	require.NoError(t, err)

	p := NewPolicy()
	p.Add(Line{Kind: KindO, Mask: "admin", Password: hash})

	auth := BcryptOperAuth(p)
	assert.True(t, auth("admin", "s3cret"))
	assert.False(t, auth("admin", "wrong"))
	assert.False(t, auth("nobody", "s3cret"))
}
