// Package client keeps a chat client's local view consistent with the
// server: roster, presence, unseen counters, the open conversation and its
// messages, including optimistic sends that are confirmed later.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/events"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/models"
	"go.uber.org/zap"
)

var (
	// ErrUnauthorized means the session is gone. The engine has already
	// cleared its state when a call returns it.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrNoConversation is returned by Send when nothing is selected.
	ErrNoConversation = errors.New("no conversation selected")
)

// API is the request/response half of the server.
type API interface {
	ListUsers(ctx context.Context, query string) (*models.Roster, error)
	History(ctx context.Context, peerID uuid.UUID) ([]models.MessageView, error)
	Send(ctx context.Context, peerID uuid.UUID, text string, image *media.Object) (*models.MessageView, error)
	MarkSeen(ctx context.Context, messageID uuid.UUID) error
}

// LocalMessage is a message as the client holds it. Pending entries are
// optimistic sends not yet confirmed; they carry a TempID and no server ID.
type LocalMessage struct {
	models.MessageView
	TempID  string `json:"temp_id,omitempty"`
	Pending bool   `json:"pending"`
}

// State is a copy of the engine's view.
type State struct {
	Roster   []models.RosterEntry
	Online   map[uuid.UUID]bool
	Unseen   map[uuid.UUID]int
	Selected *models.UserSummary
	Messages []LocalMessage
}

// Engine merges server pushes and local actions into one consistent view.
//
// Every handler reads the selection under the mutex at the moment it runs.
// Nothing captures the selection ahead of time, so a conversation switch
// between an event being sent and being handled cannot misroute it.
type Engine struct {
	api    API
	self   models.UserSummary
	logger *zap.Logger

	mu     sync.Mutex
	roster []models.RosterEntry
	online map[uuid.UUID]bool
	unseen map[uuid.UUID]int
	// counted maps message id to sender for every newMessage already added
	// to unseen. A sender's entries go when their conversation is opened.
	counted  map[uuid.UUID]uuid.UUID
	selected *models.UserSummary
	messages []LocalMessage

	// epoch guards the gap between releasing the mutex for a network call
	// and taking it back for the answer.
	//
	// Why not compare the selected peer instead?
	//   - Switching A → B → A while A's first history fetch is in flight
	//     leaves the same peer selected, yet the first response predates
	//     messages the second fetch already merged.
	//   - Deselect and Reset must invalidate in-flight calls too, and
	//     after them there is no peer to compare against.
	//
	// Every Select, Deselect and Reset bumps it. Send and Select capture
	// it before calling out and drop their result if it moved.
	epoch uint64
}

func NewEngine(api API, self models.UserSummary, logger *zap.Logger) *Engine {
	e := &Engine{api: api, self: self, logger: logger}
	e.resetLocked()
	return e
}

// Send appends a provisional message right away, then confirms it with the
// server. On failure the provisional message is removed and the error is
// returned; there is no retry.
func (e *Engine) Send(ctx context.Context, text string, image *media.Object) (*models.MessageView, error) {
	e.mu.Lock()
	if e.selected == nil {
		e.mu.Unlock()
		return nil, ErrNoConversation
	}
	peer := *e.selected
	epoch := e.epoch
	tempID := "temp-" + uuid.NewString()
	e.messages = append(e.messages, LocalMessage{
		MessageView: models.MessageView{
			Message: models.Message{
				SenderID:   e.self.ID,
				ReceiverID: peer.ID,
				Text:       text,
				CreatedAt:  time.Now().UTC(),
			},
			Sender:   e.self,
			Receiver: peer,
		},
		TempID:  tempID,
		Pending: true,
	})
	e.mu.Unlock()

	view, err := e.api.Send(ctx, peer.ID, text, image)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.removeTempLocked(tempID)
		return nil, e.failLocked(fmt.Errorf("send message: %w", err))
	}
	if e.epoch != epoch {
		return view, nil
	}

	i := e.indexOfTempLocked(tempID)
	if i < 0 {
		return view, nil
	}
	if e.indexOfLocked(view.ID) >= 0 {
		e.messages = append(e.messages[:i], e.messages[i+1:]...)
		return view, nil
	}

	confirmed := LocalMessage{MessageView: *view}
	// Receipts that raced ahead of the response already touched the
	// provisional entry.
	confirmed.Seen = confirmed.Seen || e.messages[i].Seen
	confirmed.Delivered = confirmed.Delivered || e.messages[i].Delivered
	e.messages[i] = confirmed
	return view, nil
}

// HandleEvent applies one server push.
func (e *Engine) HandleEvent(ctx context.Context, env events.Envelope) error {
	switch env.Event {
	case events.NewMessage:
		var view models.MessageView
		if err := env.Payload(&view); err != nil {
			return err
		}
		return e.onNewMessage(ctx, view)

	case events.IncrementUnread:
		// newMessage already counted it. Acting on both would double count.
		return nil

	case events.MessageDelivered:
		var p events.DeliveredPayload
		if err := env.Payload(&p); err != nil {
			return err
		}
		e.mu.Lock()
		if i := e.indexOfLocked(p.MessageID); i >= 0 {
			e.messages[i].Delivered = true
		}
		e.mu.Unlock()
		return nil

	case events.MessagesSeen:
		var p events.FromPayload
		if err := env.Payload(&p); err != nil {
			return err
		}
		e.mu.Lock()
		if e.selected != nil && e.selected.ID == p.From {
			for i := range e.messages {
				if e.messages[i].SenderID == e.self.ID && e.messages[i].ReceiverID == p.From {
					e.messages[i].Seen = true
				}
			}
		}
		e.mu.Unlock()
		return nil

	case events.OnlineUsers:
		var ids []uuid.UUID
		if err := env.Payload(&ids); err != nil {
			return err
		}
		e.mu.Lock()
		e.online = make(map[uuid.UUID]bool, len(ids))
		for _, id := range ids {
			e.online[id] = true
		}
		e.mu.Unlock()
		return e.RefreshRoster(ctx)

	default:
		e.logger.Debug("ignoring unknown event", zap.String("event", env.Event))
		return nil
	}
}

func (e *Engine) onNewMessage(ctx context.Context, view models.MessageView) error {
	e.mu.Lock()
	if e.selected == nil || e.selected.ID != view.SenderID {
		if _, dup := e.counted[view.ID]; !dup && view.SenderID != e.self.ID {
			e.counted[view.ID] = view.SenderID
			e.unseen[view.SenderID]++
		}
		e.mu.Unlock()
		return nil
	}

	if e.indexOfLocked(view.ID) >= 0 {
		e.mu.Unlock()
		return nil
	}
	e.messages = append(e.messages, LocalMessage{MessageView: view})
	e.mu.Unlock()

	if err := e.api.MarkSeen(ctx, view.ID); err != nil {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.failLocked(fmt.Errorf("mark seen: %w", err))
	}
	return nil
}

// Select opens the conversation with peer. Its unseen counter drops to
// zero at once; fetching history is what marks the messages seen server
// side.
func (e *Engine) Select(ctx context.Context, peer models.UserSummary) error {
	e.mu.Lock()
	e.selected = &peer
	delete(e.unseen, peer.ID)
	for id, sender := range e.counted {
		if sender == peer.ID {
			delete(e.counted, id)
		}
	}
	e.messages = nil
	e.epoch++
	epoch := e.epoch
	e.mu.Unlock()

	views, err := e.api.History(ctx, peer.ID)

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		return e.failLocked(fmt.Errorf("load history: %w", err))
	}
	if e.epoch != epoch {
		return nil
	}

	merged := make([]LocalMessage, 0, len(views)+len(e.messages))
	known := make(map[uuid.UUID]struct{}, len(views))
	for _, v := range views {
		merged = append(merged, LocalMessage{MessageView: v})
		known[v.ID] = struct{}{}
	}
	// Keep anything that arrived or was sent while history was loading.
	for _, m := range e.messages {
		if _, dup := known[m.ID]; m.Pending || !dup {
			merged = append(merged, m)
		}
	}
	e.messages = merged
	delete(e.unseen, peer.ID)
	return nil
}

// Deselect closes the open conversation.
func (e *Engine) Deselect() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = nil
	e.messages = nil
	e.epoch++
}

// RefreshRoster re-fetches users and unseen counts in full. The server
// counts replace the local ones outright, so a newMessage still in flight
// when the roster was read is counted twice until the next refresh.
func (e *Engine) RefreshRoster(ctx context.Context) error {
	roster, err := e.api.ListUsers(ctx, "")

	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		return e.failLocked(fmt.Errorf("list users: %w", err))
	}

	e.roster = append([]models.RosterEntry(nil), roster.Users...)
	e.unseen = make(map[uuid.UUID]int, len(roster.Unseen))
	for id, n := range roster.Unseen {
		e.unseen[id] = n
	}
	if e.selected != nil {
		delete(e.unseen, e.selected.ID)
	}
	return nil
}

// Reset drops all local state, as on logout or an expired session.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.resetLocked()
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	s := State{
		Roster:   append([]models.RosterEntry(nil), e.roster...),
		Online:   make(map[uuid.UUID]bool, len(e.online)),
		Unseen:   make(map[uuid.UUID]int, len(e.unseen)),
		Messages: append([]LocalMessage(nil), e.messages...),
	}
	for id := range e.online {
		s.Online[id] = true
	}
	for id, n := range e.unseen {
		if n > 0 {
			s.Unseen[id] = n
		}
	}
	if e.selected != nil {
		sel := *e.selected
		s.Selected = &sel
	}
	return s
}

func (e *Engine) resetLocked() {
	e.roster = nil
	e.online = make(map[uuid.UUID]bool)
	e.unseen = make(map[uuid.UUID]int)
	e.counted = make(map[uuid.UUID]uuid.UUID)
	e.selected = nil
	e.messages = nil
	e.epoch++
}

func (e *Engine) failLocked(err error) error {
	if errors.Is(err, ErrUnauthorized) {
		e.logger.Info("session rejected, clearing local state")
		e.resetLocked()
	}
	return err
}

func (e *Engine) indexOfLocked(id uuid.UUID) int {
	if id == uuid.Nil {
		return -1
	}
	for i := range e.messages {
		if e.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (e *Engine) indexOfTempLocked(tempID string) int {
	for i := range e.messages {
		if e.messages[i].TempID == tempID {
			return i
		}
	}
	return -1
}

func (e *Engine) removeTempLocked(tempID string) {
	if i := e.indexOfTempLocked(tempID); i >= 0 {
		e.messages = append(e.messages[:i], e.messages[i+1:]...)
	}
}
