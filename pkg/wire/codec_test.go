package wire

import (
	"testing"

	"github.com/plgd-dev/go-coap/v3/message"
	"github.com/plgd-dev/go-coap/v3/message/codes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeRequest(t *testing.T) {
	req, err := NewRequest(OpObserve, "/3/0/9")
	require.NoError(t, err)
	req.Query = []string{"pmin=5", "pmax=60"}

	data, err := Encode(req)
	require.NoError(t, err)

	kind, err := PeekKind(data)
	require.NoError(t, err)
	assert.Equal(t, KindRequest, kind)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, OpObserve, got.Operation)
	assert.Equal(t, req.Token, got.Token)

	pmin, ok, err := got.QueryInt(QueryMinPeriod)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(5), pmin)

	_, ok, err = got.QueryInt("missing")
	assert.NoError(t, err)
	assert.False(t, ok)
}

func TestValidate(t *testing.T) {
	token := []byte{1, 2, 3, 4}

	tests := []struct {
		name string
		msg  Message
		want error
	}{
		{"no token", Message{Kind: KindRequest, Operation: OpRead}, ErrMissingToken},
		{"bad op", Message{Kind: KindRequest, Token: token, Operation: 99}, ErrInvalidOp},
		{"response without code", Message{Kind: KindResponse, Token: token}, ErrMissingCode},
		{"notify without seq", Message{Kind: KindNotify, Token: token}, ErrMissingObserve},
		{"bad kind", Message{Kind: 7, Token: token}, ErrInvalidKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(&tt.msg)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestDecodeGarbage(t *testing.T) {
	_, err := Decode([]byte{0xff, 0x00, 0x13})
	assert.Error(t, err)
}

func TestResponseAndNotify(t *testing.T) {
	req, err := NewRequest(OpRead, "/3/0")
	require.NoError(t, err)

	resp := NewResponse(req, codes.Content)
	assert.Equal(t, req.Token, resp.Token)
	assert.True(t, resp.IsSuccess())
	assert.False(t, NewResponse(req, codes.NotFound).IsSuccess())

	n := NewNotify(req.Token, 3, FormatSenMLJSON, []byte(`[]`))
	require.NoError(t, n.Validate())
	assert.Equal(t, uint32(3), n.ObserveSeq())
}

func TestOperationClassification(t *testing.T) {
	assert.True(t, OpDiscover.IsServerInitiated())
	assert.False(t, OpRegister.IsServerInitiated())
	assert.True(t, OpAuth.IsValid())
	assert.False(t, Operation(7).IsValid())
	assert.Equal(t, "CANCEL-OBSERVE", OpCancelObserve.String())
}

func TestAckAndReset(t *testing.T) {
	token := message.Token{0x0a, 0x0b}

	data, err := Encode(NewAck(token))
	require.NoError(t, err)
	ack, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, KindAck, ack.Kind)
	assert.Equal(t, token, ack.Token)

	assert.NoError(t, NewReset(token).Validate())
	assert.ErrorIs(t, NewReset(nil).Validate(), ErrMissingToken)
	assert.Equal(t, "RESET", KindReset.String())
}

func TestContentFormatsMatchCoAPRegistry(t *testing.T) {
	assert.Equal(t, message.TextPlain, FormatText)
	assert.Equal(t, message.AppLinkFormat, FormatLinkFormat)
	assert.Equal(t, message.AppOctets, FormatOpaque)
	assert.Equal(t, message.MediaType(110), FormatSenMLJSON)
	assert.Equal(t, message.MediaType(112), FormatSenMLCBOR)
}
