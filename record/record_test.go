package record

import (
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/qwerty-iot/dtlssocket/common"
)

func TestRecordSuite(t *testing.T) {
	suite.Run(t, new(RecordSuite))
}

type RecordSuite struct {
	suite.Suite
}

func (s *RecordSuite) TestRecordDecode() {
	rb, _ := hex.DecodeString("16fefd000000000000000100560100004a000100000000004afefd00000001145b1fb384c7e5ba7585664c931759ab2305c5e5f7b776635e176db60020d76679b19ce7b6060c71dd9e55830ca2a8e02652a5b66ebe9a9c652ee75342d80002c0a80100")

	rec, rem, err := Parse(rb)

	assert.Nil(s.T(), err)
	assert.Nil(s.T(), rem)
	assert.NotNil(s.T(), rec)

	assert.Equal(s.T(), ContentType_Handshake, rec.ContentType)
	assert.Equal(s.T(), common.DtlsVersion12, rec.Version)
	assert.Equal(s.T(), uint16(0), rec.Epoch)
	assert.Equal(s.T(), uint64(1), rec.Sequence)
	assert.Equal(s.T(), uint16(0x56), rec.Length)
	assert.Equal(s.T(), 86, len(rec.Data))
	assert.True(s.T(), rec.IsHandshake())
}

func (s *RecordSuite) TestRecordEncode() {
	data := common.RandomBytes(40)
	newRec := New(ContentType_Handshake, 1, 22, data)

	rec, rem, err := Parse(newRec.Bytes())

	assert.Nil(s.T(), err)
	assert.Nil(s.T(), rem)
	assert.NotNil(s.T(), rec)

	assert.Equal(s.T(), ContentType_Handshake, rec.ContentType)
	assert.Equal(s.T(), uint16(1), rec.Epoch)
	assert.Equal(s.T(), uint64(22), rec.Sequence)
	assert.Equal(s.T(), uint16(len(data)), rec.Length)
	assert.Equal(s.T(), data, rec.Data)
}

func (s *RecordSuite) TestMultiRecordDecode() {
	rb, _ := hex.DecodeString("16fefd00000000000000010052020000460001000000000046fefd58218d545f4507f138c23097f5e754cf43cff524d0015aceda2be2d3794e1e892058218d541a9e9b958203308bc0d650408a6070dd1f99437db5bcc5d709322a85c0a80016fefd0000000000000002000c0e0000000002000000000000")

	rec, rem, err := Parse(rb)

	assert.Nil(s.T(), err)
	assert.NotNil(s.T(), rem)
	assert.Equal(s.T(), uint64(1), rec.Sequence)
	assert.Equal(s.T(), uint16(0x52), rec.Length)

	rec, rem, err = Parse(rem)

	assert.Nil(s.T(), err)
	assert.Nil(s.T(), rem)
	assert.Equal(s.T(), uint64(2), rec.Sequence)
	assert.Equal(s.T(), uint16(0xc), rec.Length)
	assert.True(s.T(), rec.IsHandshake())
}

func (s *RecordSuite) TestContentTypes() {
	rec := New(ContentType_Appdata, 1, 22, nil)
	assert.True(s.T(), rec.IsAppData())
	assert.False(s.T(), rec.IsHandshake())

	rec = New(ContentType_Alert, 1, 22, nil)
	assert.True(s.T(), rec.IsAlert())
}

func (s *RecordSuite) TestPrint() {
	newRec := New(ContentType_Handshake, 1, 22, nil)

	rec, _, _ := Parse(newRec.Bytes())
	assert.Equal(s.T(), "contentType[Handshake(22)] version[FEFD] epoch[1] seq[22] length[0] data[]", rec.Print())
}

func (s *RecordSuite) TestUnderflow() {
	data := New(ContentType_Handshake, 1, 22, nil).Bytes()

	_, _, err := Parse(data[:10])
	assert.ErrorIs(s.T(), err, ErrTooSmall)
}

func (s *RecordSuite) TestTruncatedBody() {
	data := New(ContentType_Appdata, 1, 22, []byte{1, 2, 3, 4}).Bytes()

	_, _, err := Parse(data[:len(data)-1])
	assert.ErrorIs(s.T(), err, ErrBadLength)
}

func (s *RecordSuite) TestBadVersion() {
	data := New(ContentType_Appdata, 1, 22, nil).Bytes()
	data[1] = 0x03
	data[2] = 0x03

	_, _, err := Parse(data)
	assert.ErrorIs(s.T(), err, ErrBadVersion)
}
