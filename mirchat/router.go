package mirchat

import (
	"log/slog"
	"strings"
	"unicode/utf8"
)

// channel is the part of the Manager the router depends on.
type channel interface {
	State() ConnectionState
	Send(payload any) error
}

// Router maps inbound channel payloads to threads and outbound intents to
// addressed payloads.
type Router struct {
	store  *Store
	ch     channel
	logger *slog.Logger

	self         string
	selfLabel    string
	unknownLabel string
	maxLength    int
}

func newRouter(cfg MessagesConfig, store *Store, ch channel, logger *slog.Logger) *Router {
	return &Router{
		store:        store,
		ch:           ch,
		logger:       logger,
		selfLabel:    cfg.SelfLabel,
		unknownLabel: cfg.UnknownLabel,
		maxLength:    cfg.MaxLength,
	}
}

// SetSelf sets the subject id used as the sender of outbound frames.
func (r *Router) SetSelf(subject string) { r.self = subject }

// RouteInbound appends a valid payload to the sender's thread and flags it
// unread unless the sender is selected. Malformed payloads are dropped.
func (r *Router) RouteInbound(raw []byte) bool {
	from, body, err := DecodeInbound(raw)
	if err != nil {
		r.logger.Debug("dropping inbound frame", "error", err.Error(), "size", len(raw))
		return false
	}

	label := r.unknownLabel
	if p, ok := r.store.Peer(from); ok {
		label = p.DisplayName
	}
	r.store.AppendMessage(from, Message{SenderLabel: label, Body: body})
	if r.store.Selected() != from {
		r.store.SetUnread(from, true)
	}
	return true
}

// RouteOutbound validates body for the selected peer, transmits it and
// appends it to the recipient's thread. Checks run in order and stop at the
// first failure.
func (r *Router) RouteOutbound(selectedPeer, body string) error {
	if selectedPeer == "" {
		return ErrNoRecipientSelected
	}
	if strings.TrimSpace(body) == "" {
		return ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(body); n > r.maxLength {
		return NewError(ErrorMessageTooLong, "message exceeds the maximum length")
	}
	if r.ch.State() != StateOpen {
		return ErrChannelUnavailable
	}

	frame := OutboundFrame{
		Route:   routeSendMessage,
		From:    r.self,
		To:      selectedPeer,
		Message: body,
	}
	if err := r.ch.Send(frame); err != nil {
		return err
	}
	r.store.AppendMessage(selectedPeer, Message{SenderLabel: r.selfLabel, Body: body, Self: true})
	return nil
}
