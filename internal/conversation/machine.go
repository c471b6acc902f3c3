// Package conversation implements the RSVP dialogue as a state machine.
//
// Machine.Step takes the user's current State and an inbound Event and
// returns the Reply to send and the next State. The machine keeps no
// per-user memory of its own; the caller stores the returned State.
// Guest changes go through the registry, one Update per step, so each step
// is applied and flushed as a unit.
package conversation

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"party-rsvp/internal/metrics"
	"party-rsvp/internal/models"
	"party-rsvp/internal/registry"
)

// GuestRegistry is the subset of the registry the machine needs.
type GuestRegistry interface {
	Get(ctx context.Context, id models.UserID) (models.Guest, bool, error)
	Update(ctx context.Context, fn func(tx *registry.Tx) error) error
	ListAttending(ctx context.Context) ([]models.Guest, error)
	Count(ctx context.Context) (int, error)
}

// Event is one inbound message.
type Event struct {
	UserID    models.UserID
	Text      string
	IsCommand bool
}

// Reply is one outbound message. QuickReplies are suggested labels for the
// transport to present; they are not stored anywhere.
type Reply struct {
	Text         string
	QuickReplies []string
}

type Config struct {
	AdminID models.UserID
}

type Machine struct {
	registry GuestRegistry
	adminID  models.UserID
	metrics  *metrics.Metrics
	log      zerolog.Logger
}

// Option configures the Machine.
type Option func(*Machine)

// WithMetrics counts transitions and stats requests.
func WithMetrics(m *metrics.Metrics) Option {
	return func(mc *Machine) {
		mc.metrics = m
	}
}

// WithLogger sets the machine logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(mc *Machine) {
		mc.log = logger.With().Str("component", "Conversation").Logger()
	}
}

// NewMachine creates a state machine backed by reg.
func NewMachine(reg GuestRegistry, cfg Config, opts ...Option) *Machine {
	m := &Machine{
		registry: reg,
		adminID:  cfg.AdminID,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Step handles ev for a user in state. On error the reply is empty and the
// returned state equals the input state; nothing was committed.
func (m *Machine) Step(ctx context.Context, state State, ev Event) (Reply, State, error) {
	var (
		reply Reply
		next  State
		err   error
	)

	switch {
	case ev.IsCommand:
		reply, next, err = m.handleCommand(ctx, state, ev)
	case state == StateChoosing:
		reply, next, err = m.handleChoice(ctx, ev)
	case state == StateAwaitingName:
		reply, next, err = m.handleName(ctx, ev)
	case state == StateAwaitingSong:
		reply, next, err = m.handleSong(ctx, ev)
	case state == StateAwaitingDress:
		reply, next, err = m.handleDress(ctx, ev)
	default:
		reply, next = fallback()
	}
	if err != nil {
		return Reply{}, state, err
	}

	m.metrics.ObserveTransition(state.String(), next.String())
	m.log.Debug().
		Str("user", string(ev.UserID)).
		Stringer("from", state).
		Stringer("to", next).
		Msg("Conversation step")
	return reply, next, nil
}

// Stats answers the admin stats command. It never changes any state.
func (m *Machine) Stats(ctx context.Context, requester models.UserID) (Reply, error) {
	if m.adminID == "" || requester != m.adminID {
		m.metrics.ObserveStats(false)
		m.log.Info().Str("user", string(requester)).Msg("Denied stats request from non-admin")
		return Reply{Text: msgAdminOnly}, nil
	}

	n, err := m.registry.Count(ctx)
	if err != nil {
		return Reply{}, fmt.Errorf("failed to count guests: %w", err)
	}
	m.metrics.ObserveStats(true)
	m.log.Info().Str("user", string(requester)).Int("guests", n).Msg("Served stats request")
	return Reply{Text: fmt.Sprintf(msgStats, n)}, nil
}

func (m *Machine) handleCommand(ctx context.Context, state State, ev Event) (Reply, State, error) {
	if state != StateChoosing || CommandName(ev.Text) != CommandStart {
		reply, next := fallback()
		return reply, next, nil
	}

	_, attending, err := m.registry.Get(ctx, ev.UserID)
	if err != nil {
		return Reply{}, state, err
	}
	if attending {
		return menuReply(msgAlreadyAttending), StateChoosing, nil
	}
	return Greeting(), StateChoosing, nil
}

func (m *Machine) handleChoice(ctx context.Context, ev Event) (Reply, State, error) {
	switch {
	case matchLabel(ev.Text, LabelList):
		guests, err := m.registry.ListAttending(ctx)
		if err != nil {
			return Reply{}, StateChoosing, err
		}
		return menuReply(FormatRoster(guests)), StateChoosing, nil

	case matchLabel(ev.Text, LabelDecline):
		err := m.registry.Update(ctx, func(tx *registry.Tx) error {
			if tx.Remove(ev.UserID) {
				m.log.Info().Str("user", string(ev.UserID)).Msg("Guest declined")
			}
			return nil
		})
		if err != nil {
			return Reply{}, StateChoosing, err
		}
		return menuReply(msgDeclined), StateChoosing, nil

	case matchLabel(ev.Text, LabelAttend):
		already := false
		err := m.registry.Update(ctx, func(tx *registry.Tx) error {
			if _, ok := tx.Get(ev.UserID); ok {
				already = true
				return nil
			}
			tx.Put(ev.UserID, models.NewAttendingGuest(ev.UserID))
			return nil
		})
		if err != nil {
			return Reply{}, StateChoosing, err
		}
		if already {
			return menuReply(msgAlreadyAttending), StateChoosing, nil
		}
		m.log.Info().Str("user", string(ev.UserID)).Msg("Guest attending")
		return Reply{Text: msgAskName}, StateAwaitingName, nil
	}

	reply, next := fallback()
	return reply, next, nil
}

func (m *Machine) handleName(ctx context.Context, ev Event) (Reply, State, error) {
	name, ok := cleanText(ev.Text, MaxNameLength)
	if !ok {
		return Reply{Text: msgInvalidName}, StateAwaitingName, nil
	}

	found, err := m.updateGuest(ctx, ev.UserID, func(g *models.Guest) {
		g.Name = &name
	})
	if err != nil {
		return Reply{}, StateAwaitingName, err
	}
	if !found {
		reply, next := fallback()
		return reply, next, nil
	}
	return Reply{Text: msgAskSong}, StateAwaitingSong, nil
}

func (m *Machine) handleSong(ctx context.Context, ev Event) (Reply, State, error) {
	song, ok := cleanText(ev.Text, MaxSongLength)
	if !ok {
		return Reply{Text: msgInvalidSong}, StateAwaitingSong, nil
	}

	found, err := m.updateGuest(ctx, ev.UserID, func(g *models.Guest) {
		g.Song = &song
	})
	if err != nil {
		return Reply{}, StateAwaitingSong, err
	}
	if !found {
		reply, next := fallback()
		return reply, next, nil
	}
	return Reply{Text: msgAskDress, QuickReplies: DressMenu()}, StateAwaitingDress, nil
}

func (m *Machine) handleDress(ctx context.Context, ev Event) (Reply, State, error) {
	dress, ok := models.ParseDressCode(ev.Text)
	if !ok {
		return Reply{Text: msgInvalidDress, QuickReplies: DressMenu()}, StateAwaitingDress, nil
	}

	found, err := m.updateGuest(ctx, ev.UserID, func(g *models.Guest) {
		g.Dress = &dress
	})
	if err != nil {
		return Reply{}, StateAwaitingDress, err
	}
	if !found {
		reply, next := fallback()
		return reply, next, nil
	}
	return menuReply(msgDone), StateChoosing, nil
}

// updateGuest applies set to the user's record and flushes. It reports false
// when the record no longer exists.
func (m *Machine) updateGuest(ctx context.Context, id models.UserID, set func(g *models.Guest)) (bool, error) {
	found := false
	err := m.registry.Update(ctx, func(tx *registry.Tx) error {
		g, ok := tx.Get(id)
		if !ok {
			return nil
		}
		found = true
		set(&g)
		tx.Put(id, g)
		return nil
	})
	if err == nil && !found {
		m.log.Warn().Str("user", string(id)).Msg("Guest record disappeared during onboarding")
	}
	return found, err
}

func menuReply(text string) Reply {
	return Reply{Text: text, QuickReplies: MainMenu()}
}

func fallback() (Reply, State) {
	return menuReply(msgInvalidInput), StateChoosing
}
