package channel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewChannelDefaults(t *testing.T) {
	c := New("#room")
	assert.True(t, c.HasMode('n'))
	assert.True(t, c.HasMode('t'))
	assert.False(t, c.HasMode('m'))
	assert.Equal(t, "+nt", c.ModesString())
}

func TestFirstMemberBecomesOperator(t *testing.T) {
	c := New("#room")
	first := c.AddMember(1)
	assert.True(t, first)
	assert.True(t, c.IsOperator(1))

	second := c.AddMember(2)
	assert.False(t, second)
	assert.False(t, c.IsOperator(2))
}

func TestRemoveMemberClearsOpAndVoice(t *testing.T) {
	c := New("#room")
	c.AddMember(1)
	c.SetVoice(1, true)
	assert.True(t, c.IsVoiced(1))

	empty := c.RemoveMember(1)
	assert.True(t, empty)
	assert.False(t, c.IsMember(1))
	assert.False(t, c.IsOperator(1))
	assert.False(t, c.IsVoiced(1))
}

func TestModesStringOrderingAndParams(t *testing.T) {
	c := New("#room")
	c.SetSimpleMode('m', true)
	c.SetKey("secret", true)
	c.SetLimit(10, true)
	assert.Equal(t, "+mntkl secret 10", c.ModesString())
}

func TestBanAndException(t *testing.T) {
	c := New("#room")
	c.AddToList(ModeBan, "*!*@bad.example", "op")
	assert.True(t, c.MatchesBan("evil!user@bad.example"))
	assert.False(t, c.MatchesBan("good!user@good.example"))

	c.AddToList(ModeBanException, "evil!*@bad.example", "op")
	assert.False(t, c.MatchesBan("evil!user@bad.example"))

	c.RemoveFromList(ModeBan, "*!*@bad.example")
	assert.Empty(t, c.List(ModeBan))
}

func TestTopic(t *testing.T) {
	c := New("#room")
	_, isSet := c.Topic()
	assert.False(t, isSet)

	c.SetTopic("hello", "alice!alice@host")
	text, isSet := c.Topic()
	assert.True(t, isSet)
	assert.Equal(t, "hello", text)

	setter, _ := c.TopicDetails()
	assert.Equal(t, "alice!alice@host", setter)
}
