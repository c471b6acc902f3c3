package handler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"party-rsvp/internal/conversation"
	"party-rsvp/internal/models"
	"party-rsvp/internal/storage"
)

const (
	defaultTimeout = 10 * time.Second
	msgFailure     = "Sorry, something went wrong on our side. Please try again in a moment."
)

// Sender delivers replies.
type Sender interface {
	SendText(ctx context.Context, chat types.JID, text string, quickReplies []string) error
	SendMessage(ctx context.Context, phoneNumber, text string, quickReplies []string) error
}

// Conversation is the dialogue logic the handler drives.
type Conversation interface {
	Step(ctx context.Context, state conversation.State, ev conversation.Event) (conversation.Reply, conversation.State, error)
	Stats(ctx context.Context, requester models.UserID) (conversation.Reply, error)
}

// Inbound is a message addressed to the bot.
type Inbound struct {
	Chat  types.JID
	Event conversation.Event
}

type RSVPHandler struct {
	sender   Sender
	machine  Conversation
	sessions *Sessions
	fatal    chan error
	timeout  time.Duration
	log      zerolog.Logger
}

// NewRSVPHandler creates a new RSVP handler
func NewRSVPHandler(sender Sender, machine Conversation, logger zerolog.Logger) *RSVPHandler {
	return &RSVPHandler{
		sender:   sender,
		machine:  machine,
		sessions: NewSessions(),
		fatal:    make(chan error, 1),
		timeout:  defaultTimeout,
		log:      logger.With().Str("component", "RSVP").Logger(),
	}
}

// Fatal delivers errors after which the guest list can no longer be saved.
// The process should shut down when one arrives.
func (h *RSVPHandler) Fatal() <-chan error {
	return h.fatal
}

// Sessions exposes the per-user conversation table.
func (h *RSVPHandler) Sessions() *Sessions {
	return h.sessions
}

// HandleMessage processes incoming WhatsApp messages
func (h *RSVPHandler) HandleMessage(msg *events.Message) error {
	in, ok := ParseMessage(msg)
	if !ok {
		return nil
	}
	return h.Handle(context.Background(), in)
}

// ParseMessage extracts the user event from a WhatsApp message. It reports
// false for messages the bot ignores: its own, group chats, reactions and
// protocol messages.
func ParseMessage(msg *events.Message) (Inbound, bool) {
	if msg == nil || msg.Message == nil || msg.Info.IsFromMe || msg.Info.IsGroup {
		return Inbound{}, false
	}
	m := msg.Message
	if m.GetReactionMessage() != nil || m.GetProtocolMessage() != nil {
		return Inbound{}, false
	}

	text := m.GetConversation()
	if text == "" {
		text = m.GetExtendedTextMessage().GetText()
	}
	if text == "" {
		// Media still gets an answer so a user stuck on a question is
		// re-prompted instead of ignored.
		switch {
		case m.GetImageMessage() != nil:
			text = m.GetImageMessage().GetCaption()
		case m.GetVideoMessage() != nil:
			text = m.GetVideoMessage().GetCaption()
		case m.GetDocumentMessage() != nil, m.GetAudioMessage() != nil, m.GetStickerMessage() != nil:
		default:
			return Inbound{}, false
		}
	}

	return Inbound{
		Chat: msg.Info.Chat,
		Event: conversation.Event{
			UserID:    models.UserID(senderPhone(msg.Info.MessageSource).User),
			Text:      text,
			IsCommand: strings.HasPrefix(strings.TrimSpace(text), "/"),
		},
	}, true
}

// senderPhone returns the phone-number JID of the sender. Chats addressed by
// LID carry the phone number in SenderAlt.
func senderPhone(src types.MessageSource) types.JID {
	if src.Sender.Server == types.HiddenUserServer && !src.SenderAlt.IsEmpty() {
		return src.SenderAlt
	}
	return src.Sender
}

// Handle runs one inbound event through the conversation and sends the
// reply.
func (h *RSVPHandler) Handle(ctx context.Context, in Inbound) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	log := h.log.With().
		Str("event", uuid.NewString()).
		Str("user", string(in.Event.UserID)).
		Logger()

	if in.Event.IsCommand && conversation.CommandName(in.Event.Text) == conversation.CommandStats {
		reply, err := h.machine.Stats(ctx, in.Event.UserID)
		if err != nil {
			return h.fail(ctx, in.Chat, log, err)
		}
		return h.send(ctx, in.Chat, reply)
	}

	var reply conversation.Reply
	err := h.sessions.Do(in.Event.UserID, func(state conversation.State) (conversation.State, error) {
		r, next, err := h.machine.Step(ctx, state, in.Event)
		if err != nil {
			return state, err
		}
		if next != state {
			log.Debug().Stringer("from", state).Stringer("to", next).Msg("State changed")
		}
		reply = r
		return next, nil
	})
	if err != nil {
		return h.fail(ctx, in.Chat, log, err)
	}
	return h.send(ctx, in.Chat, reply)
}

// SendInvitation sends the greeting and main menu to a phone number. No
// guest record is created until the contact answers.
func (h *RSVPHandler) SendInvitation(ctx context.Context, phoneNumber string) error {
	greeting := conversation.Greeting()
	if err := h.sender.SendMessage(ctx, phoneNumber, greeting.Text, greeting.QuickReplies); err != nil {
		return fmt.Errorf("failed to send invitation: %w", err)
	}
	h.log.Info().Str("phone", phoneNumber).Msg("Invitation sent")
	return nil
}

func (h *RSVPHandler) send(ctx context.Context, chat types.JID, reply conversation.Reply) error {
	if err := h.sender.SendText(ctx, chat, reply.Text, reply.QuickReplies); err != nil {
		return fmt.Errorf("failed to send reply: %w", err)
	}
	return nil
}

func (h *RSVPHandler) fail(ctx context.Context, chat types.JID, log zerolog.Logger, err error) error {
	if errors.Is(err, storage.ErrWriteDenied) {
		log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Guest list can no longer be saved")
		select {
		case h.fatal <- err:
		default:
		}
		return err
	}

	log.Error().Err(err).Msg("Failed to process message")
	if sendErr := h.sender.SendText(ctx, chat, msgFailure, nil); sendErr != nil {
		log.Warn().Err(sendErr).Msg("Failed to send failure notice")
	}
	return err
}
