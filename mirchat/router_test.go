package mirchat

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(state ConnectionState) (*Router, *Store, *fakeChannel) {
	store := NewStore()
	store.ReplacePeers([]Peer{{ID: "a", DisplayName: "Alice"}, {ID: "b", DisplayName: "Bob"}})
	ch := &fakeChannel{state: state}
	r := newRouter(DefaultConfig().Messages, store, ch, discardLogger())
	r.SetSelf("me")
	return r, store, ch
}

func TestRouteOutboundValidation(t *testing.T) {
	tests := []struct {
		name     string
		selected string
		body     string
		state    ConnectionState
		want     error
	}{
		{"no recipient", "", "hello", StateOpen, ErrNoRecipientSelected},
		{"no recipient wins over empty", "", "", StateClosed, ErrNoRecipientSelected},
		{"empty", "b", "", StateOpen, ErrEmptyMessage},
		{"whitespace", "b", " \t\n ", StateOpen, ErrEmptyMessage},
		{"too long", "b", strings.Repeat("x", 501), StateOpen, ErrMessageTooLong},
		{"too long wins over closed", "b", strings.Repeat("x", 501), StateClosed, ErrMessageTooLong},
		{"closed", "b", "hello", StateClosed, ErrChannelUnavailable},
		{"idle", "b", "hello", StateIdle, ErrChannelUnavailable},
		{"connecting", "b", "hello", StateConnecting, ErrChannelUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, ch := newTestRouter(tt.state)

			err := r.RouteOutbound(tt.selected, tt.body)

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, IsValidationError(err) || IsConnectionError(err))
			assert.Empty(t, ch.sent)
			assert.Empty(t, store.Thread("b"))
		})
	}
}

func TestRouteOutboundLengthBoundary(t *testing.T) {
	r, store, ch := newTestRouter(StateOpen)

	require.NoError(t, r.RouteOutbound("b", strings.Repeat("x", 500)))
	// Length counts characters, not bytes.
	require.NoError(t, r.RouteOutbound("b", strings.Repeat("é", 500)))
	assert.ErrorIs(t, r.RouteOutbound("b", strings.Repeat("é", 501)), ErrMessageTooLong)

	assert.Len(t, ch.sent, 2)
	assert.Len(t, store.Thread("b"), 2)
}

func TestRouteOutboundSendsAndAppends(t *testing.T) {
	r, store, ch := newTestRouter(StateOpen)

	require.NoError(t, r.RouteOutbound("b", "hi"))

	require.Len(t, ch.sent, 1)
	assert.Equal(t, OutboundFrame{Route: "sendmessage", From: "me", To: "b", Message: "hi"}, ch.sent[0])
	assert.Equal(t, []Message{{SenderLabel: "Me", Body: "hi", Self: true}}, store.Thread("b"))
	assert.False(t, store.Unread("b"))
}

func TestRouteOutboundTransportRefusal(t *testing.T) {
	r, store, ch := newTestRouter(StateOpen)
	ch.err = WrapError(ErrorChannelUnavailable, "write queue full", nil)

	err := r.RouteOutbound("b", "hi")

	assert.ErrorIs(t, err, ErrChannelUnavailable)
	assert.Empty(t, store.Thread("b"))
}

func TestRouteInbound(t *testing.T) {
	r, store, _ := newTestRouter(StateOpen)
	store.SelectPeer("a")

	require.True(t, r.RouteInbound([]byte(`{"from_user":"b","message":"hey"}`)))
	require.True(t, r.RouteInbound([]byte(`{"from_user":"a","message":"yo"}`)))

	assert.Equal(t, []Message{{SenderLabel: "Bob", Body: "hey"}}, store.Thread("b"))
	assert.True(t, store.Unread("b"))
	assert.Equal(t, []Message{{SenderLabel: "Alice", Body: "yo"}}, store.Thread("a"))
	assert.False(t, store.Unread("a"))
}

func TestRouteInboundUnknownSender(t *testing.T) {
	r, store, _ := newTestRouter(StateOpen)

	require.True(t, r.RouteInbound([]byte(`{"from_user":"x","message":"who am i"}`)))

	assert.Equal(t, []Message{{SenderLabel: "Unknown", Body: "who am i"}}, store.Thread("x"))
	assert.True(t, store.Unread("x"))
	_, listed := store.Peer("x")
	assert.False(t, listed)

	// The thread still shows up in the peer list, after the directory peers.
	v := store.View()
	require.Len(t, v.Peers, 3)
	assert.Equal(t, PeerView{Peer: Peer{ID: "x", DisplayName: "Unknown"}, Unread: true, Unlisted: true}, v.Peers[2])
}

func TestRouteInboundNumericSender(t *testing.T) {
	r, store, _ := newTestRouter(StateOpen)
	store.ReplacePeers([]Peer{{ID: "42", DisplayName: "Deep Thought"}})

	require.True(t, r.RouteInbound([]byte(`{"from_user":42,"message":"hi"}`)))

	assert.Equal(t, []Message{{SenderLabel: "Deep Thought", Body: "hi"}}, store.Thread("42"))
	assert.True(t, store.Unread("42"))
}

func TestRouteInboundEmptyBodyIsKept(t *testing.T) {
	r, store, _ := newTestRouter(StateOpen)

	require.True(t, r.RouteInbound([]byte(`{"from_user":"b","message":""}`)))
	assert.Len(t, store.Thread("b"), 1)
}

func TestRouteInboundDropsMalformed(t *testing.T) {
	payloads := []string{
		`not json`,
		`{"message":"no sender"}`,
		`{"from_user":"b"}`,
		`{"from_user":"","message":"blank sender"}`,
		`{"from_user":null,"message":"null sender"}`,
		`{"from_user":true,"message":"bool sender"}`,
		`{"from_user":{"id":1},"message":"object sender"}`,
		`[]`,
	}
	for _, p := range payloads {
		t.Run(p, func(t *testing.T) {
			r, store, _ := newTestRouter(StateOpen)
			before := store.View()

			assert.False(t, r.RouteInbound([]byte(p)))

			assert.Equal(t, before, store.View())
			assert.Empty(t, store.Thread("b"))
			assert.False(t, store.Unread("b"))
		})
	}
}

func TestDecodeInbound(t *testing.T) {
	from, body, err := DecodeInbound([]byte(`{"from_user":"u1","message":"hello","extra":1}`))
	require.NoError(t, err)
	assert.Equal(t, "u1", from)
	assert.Equal(t, "hello", body)

	_, _, err = DecodeInbound([]byte(`{"from_user":"u1"}`))
	assert.ErrorIs(t, err, ErrMalformedInbound)
	assert.Equal(t, ErrorMalformedInbound, CodeOf(err))

	for raw, want := range map[string]string{
		`{"from_user":42,"message":"hi"}`:    "42",
		`{"from_user": 7 ,"message":"hi"}`:   "7",
		`{"from_user":1.5e3,"message":"hi"}`: "1.5e3",
		`{"from_user":"42","message":"hi"}`:  "42",
	} {
		from, _, err := DecodeInbound([]byte(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, from, raw)
	}
}
