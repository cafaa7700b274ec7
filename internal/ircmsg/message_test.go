package ircmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		input   string
		source  string
		command string
		params  []string
	}{
		{"PRIVMSG", "", "PRIVMSG", nil},
		{":irc PRIVMSG", "irc", "PRIVMSG", nil},
		{"PRIVMSG :hi there", "", "PRIVMSG", []string{"hi there"}},
		{":irc 001 :Welcome", "irc", "001", []string{"Welcome"}},
		{":irc 000 hi", "irc", "000", []string{"hi"}},
		{":nick!user@host TOPIC #test :", "nick!user@host", "TOPIC", []string{"#test", ""}},
		{":nick!user@host MODE #test +o blah1 :blah", "nick!user@host", "MODE",
			[]string{"#test", "+o", "blah1", "blah"}},
		{"@id=123;server-time PRIVMSG #chan :hi", "", "PRIVMSG", []string{"#chan", "hi"}},
	}

	for _, tc := range tests {
		m, err := Parse(tc.input)
		require.NoError(t, err, tc.input)
		assert.Equal(t, tc.source, m.Source, tc.input)
		assert.Equal(t, tc.command, m.Command, tc.input)
		assert.Equal(t, tc.params, m.Params, tc.input)
	}
}

func TestParseErrors(t *testing.T) {
	bad := []string{
		"",
		":irc",
		"@unterminated",
	}
	for _, in := range bad {
		_, err := Parse(in)
		assert.Error(t, err, in)
	}
}

func TestTags(t *testing.T) {
	m, err := Parse("@a=1;b PRIVMSG #x :hi")
	require.NoError(t, err)
	assert.Equal(t, "1", m.Tags["a"])
	assert.Equal(t, "", m.Tags["b"])
	_, hasC := m.Tags["c"]
	assert.False(t, hasC)
}

// Round-trip identity: parse then serialize then parse again yields
// an equal Message, for canonical-form inputs.
func TestRoundTripIdentity(t *testing.T) {
	inputs := []string{
		":alice!alice@host PRIVMSG #room :hello there",
		"PING :cookie",
		":server 001 alice :Welcome",
		":a MODE #c +o b",
	}

	for _, in := range inputs {
		m1, err := Parse(in)
		require.NoError(t, err, in)

		serialized := Serialize(m1)
		m2, err := Parse(serialized)
		require.NoError(t, err, serialized)

		assert.Equal(t, m1, m2, in)
	}
}

func TestEncodeTruncation(t *testing.T) {
	long := make([]byte, 600)
	for i := range long {
		long[i] = 'a'
	}
	m := Message{Command: "PRIVMSG", Params: []string{"#x", string(long)}}
	line, err := Encode(m)
	assert.Equal(t, ErrTruncated, err)
	assert.LessOrEqual(t, len(line), MaxLineLength)
	assert.True(t, len(line) >= 2 && line[len(line)-2:] == "\r\n")
}
