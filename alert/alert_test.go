package alert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
)

func TestAlertSuite(t *testing.T) {
	suite.Run(t, new(AlertSuite))
}

type AlertSuite struct {
	suite.Suite
}

func (s *AlertSuite) TestParse() {
	a, err := Parse([]byte{TypeWarning, DescCloseNotify})
	assert.Nil(s.T(), err)
	assert.True(s.T(), a.IsCloseNotify())
	assert.False(s.T(), a.IsFatal())
	assert.Equal(s.T(), "warning: close notify", a.String())

	_, err = Parse([]byte{TypeFatal})
	assert.NotNil(s.T(), err)
}

func (s *AlertSuite) TestBytes() {
	a := New(TypeFatal, DescDecryptError)
	assert.Equal(s.T(), []byte{2, 51}, a.Bytes())
	assert.True(s.T(), a.IsFatal())
}

func (s *AlertSuite) TestToString() {
	assert.Equal(s.T(), "fatal", TypeToString(TypeFatal))
	assert.Equal(s.T(), "unknown(9)", TypeToString(9))
	assert.Equal(s.T(), "unknown psk identity", DescToString(DescUnknownPskIdentity))
	assert.Equal(s.T(), "unknown(200)", DescToString(200))
}
