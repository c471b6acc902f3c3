package whatsapp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/skip2/go-qrcode"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"
)

// MessageHandler is a callback function for handling messages
type MessageHandler func(*events.Message) error

type Config struct {
	DataDir string
	// CountryCode replaces the leading trunk 0 of local numbers.
	CountryCode string
}

type Service struct {
	client         *whatsmeow.Client
	cfg            *Config
	log            zerolog.Logger
	messageHandler MessageHandler
}

// NewService creates a new WhatsApp service. The paired device lives in a
// sqlite database under cfg.DataDir.
func NewService(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Service, error) {
	log := logger.With().Str("component", "WhatsApp").Logger()

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_foreign_keys=on", filepath.Join(cfg.DataDir, "whatsmeow.db"))
	container, err := sqlstore.New(ctx, "sqlite3", dsn, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	deviceStore, err := container.GetFirstDevice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get device: %w", err)
	}

	client := whatsmeow.NewClient(deviceStore, nil)

	service := &Service{
		client: client,
		cfg:    cfg,
		log:    log,
	}
	client.AddEventHandler(service.eventHandler)

	return service, nil
}

// NormalizePhoneNumber strips formatting from a phone number and turns a
// local number (leading 0) into international form using countryCode.
func NormalizePhoneNumber(phoneNumber, countryCode string) string {
	phoneNumber = strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, phoneNumber)

	if countryCode == "" {
		return phoneNumber
	}

	// 05XXXXXXXX -> <cc>5XXXXXXXX
	if strings.HasPrefix(phoneNumber, "0") && !strings.HasPrefix(phoneNumber, "00") {
		return countryCode + phoneNumber[1:]
	}
	// <cc>0XXXXXXXX -> <cc>XXXXXXXX
	if strings.HasPrefix(phoneNumber, countryCode+"0") {
		return countryCode + phoneNumber[len(countryCode)+1:]
	}
	return phoneNumber
}

// FormatQuickReplies appends the suggested replies to text. Plain accounts
// cannot send button messages, so the labels are listed for the user to
// type back.
func FormatQuickReplies(text string, labels []string) string {
	if len(labels) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	b.WriteString("\n\nReply with:")
	for _, label := range labels {
		b.WriteString("\n• *")
		b.WriteString(label)
		b.WriteString("*")
	}
	return b.String()
}

// Connect connects to WhatsApp, printing a pairing QR code on first run.
func (s *Service) Connect(ctx context.Context) error {
	if s.client.Store.ID != nil {
		if err := s.client.Connect(); err != nil {
			return fmt.Errorf("failed to connect: %w", err)
		}
		return nil
	}

	qrChan, err := s.client.GetQRChannel(ctx)
	if err != nil {
		return fmt.Errorf("failed to get QR channel: %w", err)
	}
	if err := s.client.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	for evt := range qrChan {
		if evt.Event != "code" {
			s.log.Info().Str("event", evt.Event).Msg("Login event")
			continue
		}
		q, err := qrcode.New(evt.Code, qrcode.Medium)
		if err != nil {
			fmt.Printf("QR Code: %s\n", evt.Code)
			fmt.Println("Please scan this QR code with WhatsApp to connect.")
			continue
		}
		fmt.Println("\n" + q.ToSmallString(false))
		fmt.Println("📱 Please scan the QR code above with WhatsApp:")
		fmt.Println("   1. Open WhatsApp on your phone")
		fmt.Println("   2. Go to Settings > Linked Devices")
		fmt.Println("   3. Tap 'Link a Device'")
		fmt.Println("   4. Scan the QR code shown above")
	}
	return nil
}

// Disconnect disconnects from WhatsApp
func (s *Service) Disconnect() {
	s.client.Disconnect()
}

// SendMessage sends text to a phone number after checking it is on WhatsApp.
func (s *Service) SendMessage(ctx context.Context, phoneNumber, text string, quickReplies []string) error {
	phoneNumber = NormalizePhoneNumber(phoneNumber, s.cfg.CountryCode)

	jid, err := s.resolveJID(ctx, phoneNumber)
	if err != nil {
		return err
	}
	if err := s.SendText(ctx, jid, text, quickReplies); err != nil {
		if strings.Contains(err.Error(), "unknown server") || strings.Contains(err.Error(), "can't send message") {
			return fmt.Errorf("%w. Note: the recipient must be in your WhatsApp contacts, or message you first", err)
		}
		return err
	}
	return nil
}

// SendText sends text to an existing chat.
func (s *Service) SendText(ctx context.Context, chat types.JID, text string, quickReplies []string) error {
	body := FormatQuickReplies(text, quickReplies)

	s.log.Debug().Str("jid", chat.String()).Msg("Sending message")
	sent, err := s.client.SendMessage(ctx, chat, &waE2E.Message{
		Conversation: &body,
	})
	if err != nil {
		return fmt.Errorf("failed to send message to %s: %w", chat.String(), err)
	}
	s.log.Debug().Str("id", string(sent.ID)).Time("timestamp", sent.Timestamp).Msg("Message sent")
	return nil
}

func (s *Service) resolveJID(ctx context.Context, phoneNumber string) (types.JID, error) {
	resp, err := s.client.IsOnWhatsApp(ctx, []string{"+" + phoneNumber})
	if err != nil {
		return types.JID{}, fmt.Errorf("failed to verify number on WhatsApp: %w", err)
	}
	if len(resp) == 0 || !resp[0].IsIn {
		return types.JID{}, fmt.Errorf("number %s is not registered on WhatsApp", phoneNumber)
	}

	s.log.Debug().Str("phone", phoneNumber).Str("jid", resp[0].JID.String()).Msg("Number verified on WhatsApp")
	return resp[0].JID, nil
}

// eventHandler handles incoming WhatsApp events
func (s *Service) eventHandler(evt interface{}) {
	switch evt := evt.(type) {
	case *events.Message:
		s.handleMessage(evt)
	case *events.Connected:
		s.log.Info().Msg("Connected to WhatsApp")
	case *events.Disconnected:
		s.log.Info().Msg("Disconnected from WhatsApp")
	case *events.LoggedOut:
		s.log.Warn().Msg("Logged out from WhatsApp")
	}
}

// handleMessage processes incoming messages
func (s *Service) handleMessage(msg *events.Message) {
	if msg.Info.IsFromMe {
		return
	}

	if s.messageHandler == nil {
		s.log.Info().
			Str("sender", msg.Info.Sender.String()).
			Msg("Received message with no handler set")
		return
	}
	if err := s.messageHandler(msg); err != nil {
		s.log.Error().Err(err).Str("sender", msg.Info.Sender.String()).Msg("Error handling message")
	}
}

// SetMessageHandler sets a custom handler for incoming messages
func (s *Service) SetMessageHandler(handler MessageHandler) {
	s.messageHandler = handler
}
