package handler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"party-rsvp/internal/conversation"
	"party-rsvp/internal/models"
	"party-rsvp/internal/registry"
	"party-rsvp/internal/storage"
)

const (
	adminPhone = "972500000000"
	guestPhone = "972501234567"
)

type sent struct {
	to           string
	text         string
	quickReplies []string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sent
	err  error
}

func (f *fakeSender) SendText(_ context.Context, chat types.JID, text string, quickReplies []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: chat.User, text: text, quickReplies: quickReplies})
	return f.err
}

func (f *fakeSender) SendMessage(_ context.Context, phoneNumber, text string, quickReplies []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{to: phoneNumber, text: text, quickReplies: quickReplies})
	return f.err
}

func (f *fakeSender) last(t *testing.T) sent {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent)
	return f.sent[len(f.sent)-1]
}

// stubConversation fails every call with err.
type stubConversation struct {
	err error
}

func (s stubConversation) Step(_ context.Context, state conversation.State, _ conversation.Event) (conversation.Reply, conversation.State, error) {
	return conversation.Reply{}, state, s.err
}

func (s stubConversation) Stats(context.Context, models.UserID) (conversation.Reply, error) {
	return conversation.Reply{}, s.err
}

func newHandler(t *testing.T) (*RSVPHandler, *fakeSender, *registry.Registry) {
	t.Helper()
	reg := registry.New(storage.NewStorage(filepath.Join(t.TempDir(), "guests.json"), zerolog.Nop()))
	machine := conversation.NewMachine(reg, conversation.Config{AdminID: adminPhone})
	sender := &fakeSender{}
	return NewRSVPHandler(sender, machine, zerolog.Nop()), sender, reg
}

func textMessage(from, text string) *events.Message {
	jid := types.NewJID(from, types.DefaultUserServer)
	return &events.Message{
		Info: types.MessageInfo{
			MessageSource: types.MessageSource{Chat: jid, Sender: jid},
		},
		Message: &waE2E.Message{Conversation: &text},
	}
}

func TestParseMessage(t *testing.T) {
	in, ok := ParseMessage(textMessage(guestPhone, "/start"))
	require.True(t, ok)
	assert.Equal(t, models.UserID(guestPhone), in.Event.UserID)
	assert.Equal(t, guestPhone, in.Chat.User)
	assert.True(t, in.Event.IsCommand)

	ext := "Guest list"
	msg := textMessage(guestPhone, "")
	msg.Message = &waE2E.Message{ExtendedTextMessage: &waE2E.ExtendedTextMessage{Text: &ext}}
	in, ok = ParseMessage(msg)
	require.True(t, ok)
	assert.Equal(t, "Guest list", in.Event.Text)
	assert.False(t, in.Event.IsCommand)

	msg = textMessage(guestPhone, "")
	msg.Message = &waE2E.Message{DocumentMessage: &waE2E.DocumentMessage{}}
	in, ok = ParseMessage(msg)
	require.True(t, ok)
	assert.Empty(t, in.Event.Text)

	caption := "my song"
	msg = textMessage(guestPhone, "")
	msg.Message = &waE2E.Message{ImageMessage: &waE2E.ImageMessage{Caption: &caption}}
	in, ok = ParseMessage(msg)
	require.True(t, ok)
	assert.Equal(t, "my song", in.Event.Text)
}

func TestParseMessageLIDSender(t *testing.T) {
	lid := types.NewJID("123456789012345", types.HiddenUserServer)
	phone := types.NewJID(adminPhone, types.DefaultUserServer)

	msg := textMessage(adminPhone, "/stats")
	msg.Info.Chat = lid
	msg.Info.Sender = lid
	msg.Info.SenderAlt = phone

	in, ok := ParseMessage(msg)
	require.True(t, ok)
	assert.Equal(t, models.UserID(adminPhone), in.Event.UserID)
	assert.Equal(t, lid, in.Chat, "replies go back to the chat the message came from")

	msg.Info.SenderAlt = types.JID{}
	in, ok = ParseMessage(msg)
	require.True(t, ok)
	assert.Equal(t, models.UserID("123456789012345"), in.Event.UserID)
}

func TestStatsFromLIDChat(t *testing.T) {
	h, sender, _ := newHandler(t)

	msg := textMessage(adminPhone, "/stats")
	lid := types.NewJID("123456789012345", types.HiddenUserServer)
	msg.Info.Chat = lid
	msg.Info.Sender = lid
	msg.Info.SenderAlt = types.NewJID(adminPhone, types.DefaultUserServer)

	require.NoError(t, h.HandleMessage(msg))
	assert.Equal(t, "Guest stats:\nTotal guests: 0", sender.last(t).text)
}

func TestParseMessageIgnored(t *testing.T) {
	fromMe := textMessage(guestPhone, "hi")
	fromMe.Info.IsFromMe = true

	group := textMessage(guestPhone, "hi")
	group.Info.IsGroup = true

	emoji := "👍"
	reaction := textMessage(guestPhone, "")
	reaction.Message = &waE2E.Message{ReactionMessage: &waE2E.ReactionMessage{Text: &emoji}}

	empty := textMessage(guestPhone, "")
	empty.Message = &waE2E.Message{}

	noBody := textMessage(guestPhone, "")
	noBody.Message = nil

	for name, msg := range map[string]*events.Message{
		"from me": fromMe, "group": group, "reaction": reaction, "empty": empty, "nil body": noBody,
	} {
		_, ok := ParseMessage(msg)
		assert.False(t, ok, name)
	}
}

func TestOnboardingOverWhatsApp(t *testing.T) {
	h, sender, reg := newHandler(t)

	steps := []struct {
		text  string
		state conversation.State
	}{
		{"/start", conversation.StateChoosing},
		{conversation.LabelAttend, conversation.StateAwaitingName},
		{"Dana", conversation.StateAwaitingSong},
		{"Dancing Queen", conversation.StateAwaitingDress},
		{"Formal", conversation.StateChoosing},
	}
	for _, s := range steps {
		require.NoError(t, h.HandleMessage(textMessage(guestPhone, s.text)))
		assert.Equal(t, s.state, h.Sessions().State(guestPhone), s.text)
	}
	assert.Zero(t, h.Sessions().Len(), "finished users leave the session table")

	last := sender.last(t)
	assert.Equal(t, guestPhone, last.to)
	assert.Equal(t, conversation.MainMenu(), last.quickReplies)

	g, ok, err := reg.Get(context.Background(), guestPhone)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Dana", *g.Name)
	assert.Equal(t, "Dancing Queen", *g.Song)
	assert.Equal(t, models.DressFormal, *g.Dress)
}

func TestStatsBypassesConversation(t *testing.T) {
	h, sender, _ := newHandler(t)

	require.NoError(t, h.HandleMessage(textMessage(adminPhone, conversation.LabelAttend)))
	require.Equal(t, conversation.StateAwaitingName, h.Sessions().State(adminPhone))

	require.NoError(t, h.HandleMessage(textMessage(adminPhone, "/stats")))
	assert.Equal(t, "Guest stats:\nTotal guests: 1", sender.last(t).text)
	assert.Equal(t, conversation.StateAwaitingName, h.Sessions().State(adminPhone), "stats must not move the conversation")

	require.NoError(t, h.HandleMessage(textMessage(guestPhone, "/stats")))
	assert.NotContains(t, sender.last(t).text, "Total guests")
	assert.Equal(t, guestPhone, sender.last(t).to)
}

func TestFatalStorageError(t *testing.T) {
	denied := fmt.Errorf("%w: permission denied", storage.ErrWriteDenied)
	sender := &fakeSender{}
	h := NewRSVPHandler(sender, stubConversation{err: denied}, zerolog.Nop())

	err := h.HandleMessage(textMessage(guestPhone, conversation.LabelAttend))
	require.ErrorIs(t, err, storage.ErrWriteDenied)

	select {
	case got := <-h.Fatal():
		assert.ErrorIs(t, got, storage.ErrWriteDenied)
	case <-time.After(time.Second):
		t.Fatal("fatal error was not escalated")
	}
	assert.Empty(t, sender.sent)
}

func TestTransientErrorApologizes(t *testing.T) {
	sender := &fakeSender{}
	h := NewRSVPHandler(sender, stubConversation{err: errors.New("lock timeout")}, zerolog.Nop())

	err := h.HandleMessage(textMessage(guestPhone, "Dana"))
	require.Error(t, err)
	assert.Equal(t, msgFailure, sender.last(t).text)
	assert.Len(t, h.Fatal(), 0)
}

func TestSendInvitation(t *testing.T) {
	h, sender, reg := newHandler(t)

	require.NoError(t, h.SendInvitation(context.Background(), "050-123-4567"))
	last := sender.last(t)
	assert.Equal(t, "050-123-4567", last.to)
	assert.Equal(t, conversation.Greeting().Text, last.text)
	assert.Equal(t, conversation.MainMenu(), last.quickReplies)

	n, err := reg.Count(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n, "invitations do not create guest records")

	sender.err = errors.New("not on WhatsApp")
	assert.Error(t, h.SendInvitation(context.Background(), "123"))
}
