package caps

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet(t *testing.T) {
	s := NewSet(MultiPrefix)
	assert.True(t, s.Has(MultiPrefix))
	assert.False(t, s.Has(ServerTime))
	s.Add(ServerTime)
	assert.True(t, s.Has(ServerTime))
}

func TestParseTokenList(t *testing.T) {
	assert.Equal(t, []string{"multi-prefix", "server-time"},
		ParseTokenList(" multi-prefix  server-time "))
	assert.Nil(t, ParseTokenList("   "))
}

func TestSupported(t *testing.T) {
	assert.True(t, Supported(ExtendedJoin))
	assert.False(t, Supported("sasl"))
}
