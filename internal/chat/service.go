// Package chat implements message delivery: send, history with read
// receipts, explicit seen acknowledgements and the roster.
//
// Every push goes through the presence registry. A user without a live
// handle simply gets nothing pushed; they catch up through history.
package chat

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sinchita-code/quickchat/internal/events"
	"github.com/sinchita-code/quickchat/internal/media"
	"github.com/sinchita-code/quickchat/internal/metrics"
	"github.com/sinchita-code/quickchat/internal/models"
	"github.com/sinchita-code/quickchat/internal/presence"
	"github.com/sinchita-code/quickchat/internal/repository"
	"go.uber.org/zap"
)

type Service struct {
	users         repository.UserRepository
	messages      repository.MessageRepository
	media         media.Store
	presence      *presence.Registry
	lastSeen      presence.LastSeenStore
	logger        *zap.Logger
	maxImageBytes int64
}

func NewService(
	users repository.UserRepository,
	messages repository.MessageRepository,
	store media.Store,
	registry *presence.Registry,
	lastSeen presence.LastSeenStore,
	logger *zap.Logger,
	maxImageBytes int64,
) *Service {
	if lastSeen == nil {
		lastSeen = presence.NopLastSeen{}
	}
	return &Service{
		users:         users,
		messages:      messages,
		media:         store,
		presence:      registry,
		lastSeen:      lastSeen,
		logger:        logger,
		maxImageBytes: maxImageBytes,
	}
}

// SendInput is one outgoing message. Image is nil for text-only sends.
type SendInput struct {
	SenderID   uuid.UUID
	ReceiverID uuid.UUID
	Text       string
	Image      *media.Object
}

// Send validates, uploads, persists and then pushes.
//
// The returned view is the stored message. Push outcomes never change the
// result: an offline receiver just leaves Delivered false.
func (s *Service) Send(ctx context.Context, in SendInput) (*models.MessageView, error) {
	text := strings.TrimSpace(in.Text)
	if text == "" && in.Image == nil {
		return nil, fmt.Errorf("%w: message must have text or an image", ErrValidation)
	}
	if in.SenderID == in.ReceiverID {
		return nil, fmt.Errorf("%w: cannot message yourself", ErrValidation)
	}
	if in.Image != nil {
		if err := s.checkImage(in.Image); err != nil {
			return nil, err
		}
	}

	// A client hanging up mid-request must not abort a write that may
	// already be half done.
	ctx = context.WithoutCancel(ctx)

	sender, receiver, err := s.pair(ctx, in.SenderID, in.ReceiverID)
	if err != nil {
		return nil, err
	}

	var imageURL *string
	if in.Image != nil {
		obj := *in.Image
		obj.UploadedBy = in.SenderID.String()
		url, err := s.media.Upload(ctx, obj)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrUpload, err)
		}
		imageURL = &url
	}

	msg, err := s.messages.Create(ctx, repository.NewMessage{
		SenderID:   in.SenderID,
		ReceiverID: in.ReceiverID,
		Text:       text,
		Image:      imageURL,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: create message: %w", ErrPersistence, err)
	}
	metrics.MessagesSent.WithLabelValues(messageKind(msg)).Inc()

	view := &models.MessageView{Message: *msg, Sender: sender.Summary(), Receiver: receiver.Summary()}
	s.deliver(ctx, view)

	return view, nil
}

// deliver marks the message delivered when the receiver is live, then
// pushes. Delivered is made durable before anything claims it.
func (s *Service) deliver(ctx context.Context, view *models.MessageView) {
	h, ok := s.presence.Lookup(view.ReceiverID)
	if !ok {
		return
	}

	if err := s.messages.MarkDelivered(ctx, view.ID); err != nil {
		s.logger.Warn("failed to mark message delivered",
			zap.String("message_id", view.ID.String()),
			zap.Error(err),
		)
		return
	}
	view.Delivered = true

	s.pushTo(h, events.Message(*view))
	s.pushTo(h, events.Unread(view.SenderID))
	s.push(view.SenderID, events.Delivered(view.ID))
}

// History returns the conversation oldest first. It marks everything the
// peer sent the viewer as seen and tells the peer with one messagesSeen.
func (s *Service) History(ctx context.Context, viewerID, peerID uuid.UUID) ([]models.MessageView, error) {
	viewer, peer, err := s.pair(ctx, viewerID, peerID)
	if err != nil {
		return nil, err
	}

	// Read before marking: a failed read must not leave messages seen that
	// the viewer never got.
	msgs, err := s.messages.ListConversation(ctx, viewerID, peerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list conversation: %w", ErrPersistence, err)
	}

	if _, err := s.messages.MarkConversationSeen(ctx, peerID, viewerID); err != nil {
		return nil, fmt.Errorf("%w: mark conversation seen: %w", ErrPersistence, err)
	}

	views := make([]models.MessageView, len(msgs))
	for i, m := range msgs {
		views[i] = models.MessageView{Message: m}
		if m.SenderID == viewerID {
			views[i].Sender, views[i].Receiver = viewer.Summary(), peer.Summary()
		} else {
			views[i].Seen = true
			views[i].Sender, views[i].Receiver = peer.Summary(), viewer.Summary()
		}
	}

	s.push(peerID, events.Seen(viewerID))
	return views, nil
}

// MarkSeen acknowledges one message. Only its receiver may do that. The
// sender hears about it only when the flag actually flipped.
func (s *Service) MarkSeen(ctx context.Context, viewerID, messageID uuid.UUID) (bool, error) {
	msg, err := s.messages.GetByID(ctx, messageID)
	if err != nil {
		return false, fmt.Errorf("%w: get message: %w", ErrPersistence, err)
	}
	if msg == nil || msg.ReceiverID != viewerID {
		return false, fmt.Errorf("%w: message %s", ErrNotFound, messageID)
	}

	flipped, err := s.messages.MarkSeen(ctx, messageID, viewerID)
	if err != nil {
		return false, fmt.Errorf("%w: mark seen: %w", ErrPersistence, err)
	}
	if flipped {
		s.push(msg.SenderID, events.Seen(viewerID))
	}
	return flipped, nil
}

// MarkAllSeen is History's seen marking without the read.
func (s *Service) MarkAllSeen(ctx context.Context, viewerID, peerID uuid.UUID) (int64, error) {
	if _, _, err := s.pair(ctx, viewerID, peerID); err != nil {
		return 0, err
	}

	n, err := s.messages.MarkConversationSeen(ctx, peerID, viewerID)
	if err != nil {
		return 0, fmt.Errorf("%w: mark conversation seen: %w", ErrPersistence, err)
	}

	s.push(peerID, events.Seen(viewerID))
	return n, nil
}

// Roster lists everyone but the viewer with presence and the viewer's
// unseen counts. query filters by a case-insensitive name substring.
func (s *Service) Roster(ctx context.Context, viewerID uuid.UUID, query string) (*models.Roster, error) {
	users, err := s.users.ListExcept(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: list users: %w", ErrPersistence, err)
	}

	if q := strings.ToLower(strings.TrimSpace(query)); q != "" {
		filtered := users[:0]
		for _, u := range users {
			if strings.Contains(strings.ToLower(u.FullName), q) {
				filtered = append(filtered, u)
			}
		}
		users = filtered
	}

	counts, err := s.messages.UnseenCounts(ctx, viewerID)
	if err != nil {
		return nil, fmt.Errorf("%w: unseen counts: %w", ErrPersistence, err)
	}

	entries := make([]models.RosterEntry, len(users))
	var offline []uuid.UUID
	for i, u := range users {
		entries[i] = models.RosterEntry{User: u, Online: s.presence.IsOnline(u.ID)}
		if !entries[i].Online {
			offline = append(offline, u.ID)
		}
	}

	if len(offline) > 0 {
		seen, err := s.lastSeen.Get(ctx, offline)
		if err != nil {
			s.logger.Warn("failed to load last seen", zap.Error(err))
		}
		for i := range entries {
			if t, ok := seen[entries[i].ID]; ok && !entries[i].Online {
				entries[i].LastSeen = &t
			}
		}
	}

	unseen := make(map[uuid.UUID]int, len(counts))
	for id, n := range counts {
		if n > 0 {
			unseen[id] = n
		}
	}

	return &models.Roster{Users: entries, Unseen: unseen}, nil
}

// push sends evt to userID's live handle, if any.
func (s *Service) push(userID uuid.UUID, evt events.Event) {
	if h, ok := s.presence.Lookup(userID); ok {
		s.pushTo(h, evt)
	}
}

func (s *Service) pushTo(h presence.Handle, evt events.Event) {
	queued := h.Push(evt)
	metrics.RecordPush(evt.Name, queued)
	if !queued {
		s.logger.Debug("push dropped", zap.String("event", evt.Name), zap.String("conn", h.ID()))
	}
}

// pair resolves both participants. Either one missing is ErrNotFound.
func (s *Service) pair(ctx context.Context, a, b uuid.UUID) (*models.User, *models.User, error) {
	first, err := s.users.GetByID(ctx, a)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get user: %w", ErrPersistence, err)
	}
	if first == nil {
		return nil, nil, fmt.Errorf("%w: user %s", ErrNotFound, a)
	}

	second, err := s.users.GetByID(ctx, b)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: get user: %w", ErrPersistence, err)
	}
	if second == nil {
		return nil, nil, fmt.Errorf("%w: user %s", ErrNotFound, b)
	}
	return first, second, nil
}

func (s *Service) checkImage(img *media.Object) error {
	if len(img.Data) == 0 {
		return fmt.Errorf("%w: empty image", ErrValidation)
	}
	if s.maxImageBytes > 0 && int64(len(img.Data)) > s.maxImageBytes {
		return fmt.Errorf("%w: image larger than %d bytes", ErrValidation, s.maxImageBytes)
	}
	img.ContentType = media.DetectContentType(img.ContentType, img.Data)
	if !img.IsImage() {
		return fmt.Errorf("%w: unsupported image type %q", ErrValidation, img.ContentType)
	}
	return nil
}

func messageKind(m *models.Message) string {
	switch {
	case m.Text != "" && m.Image != nil:
		return "mixed"
	case m.Image != nil:
		return "image"
	default:
		return "text"
	}
}
