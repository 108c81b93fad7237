package mirchat

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
)

const routeSendMessage = "sendmessage"

// Peer is an addressable user returned by the directory.
type Peer struct {
	ID          string
	DisplayName string
}

// Message is one entry of a conversation thread. Threads are ordered by
// local arrival, so no timestamp is carried.
type Message struct {
	SenderLabel string
	Body        string
	Self        bool
}

// Credential is the bearer token plus the stable subject id of the session.
type Credential struct {
	Token   string
	Subject string
}

// OutboundFrame is the envelope client -> server.
type OutboundFrame struct {
	Route   string `json:"customroute"`
	From    string `json:"from"`
	To      string `json:"to"`
	Message string `json:"message"`
}

// InboundFrame is the envelope server -> client. FromUser is kept raw
// because backends send user ids as strings or numbers; Message is a pointer
// so a missing key can be told apart from an empty body.
type InboundFrame struct {
	FromUser json.RawMessage `json:"from_user"`
	Message  *string         `json:"message"`
}

// DecodeInbound parses an untrusted payload. It fails with
// ErrMalformedInbound when the payload is not JSON or lacks a sender or body.
// Numeric senders are returned in their decimal form, matching the ids the
// directory hands out.
func DecodeInbound(raw []byte) (from, body string, err error) {
	var in InboundFrame
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", "", WrapError(ErrorMalformedInbound, "decode frame", err)
	}
	from, err = senderID(in.FromUser)
	if err != nil {
		return "", "", WrapError(ErrorMalformedInbound, "decode from_user", err)
	}
	if strings.TrimSpace(from) == "" {
		return "", "", NewError(ErrorMalformedInbound, "missing from_user")
	}
	if in.Message == nil {
		return "", "", NewError(ErrorMalformedInbound, "missing message")
	}
	return from, *in.Message, nil
}

// senderID returns "" for an absent or null id.
func senderID(raw json.RawMessage) (string, error) {
	id := bytes.TrimSpace(raw)
	if len(id) == 0 || bytes.Equal(id, []byte("null")) {
		return "", nil
	}
	if id[0] == '"' {
		var s string
		err := json.Unmarshal(id, &s)
		return s, err
	}
	var n json.Number
	if err := json.Unmarshal(id, &n); err != nil {
		return "", err
	}
	if _, err := strconv.ParseFloat(n.String(), 64); err != nil {
		return "", err
	}
	return n.String(), nil
}

// NoticeLevel classifies a Notice.
type NoticeLevel int

const (
	NoticeInfo NoticeLevel = iota
	NoticeWarning
)

// String returns the string representation of a NoticeLevel.
func (l NoticeLevel) String() string {
	if l == NoticeWarning {
		return "warning"
	}
	return "info"
}

// Notice is a transient, dismissable advisory for the presentation layer.
type Notice struct {
	Level NoticeLevel
	Code  ErrorCode
	Text  string
}

func noticeFor(err error) Notice {
	n := Notice{Level: NoticeWarning, Code: CodeOf(err), Text: err.Error()}
	var e *Error
	if errors.As(err, &e) {
		n.Text = e.Message
	}
	return n
}
