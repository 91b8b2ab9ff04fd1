package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/medora-health/realtime/internal/domain"
	"github.com/medora-health/realtime/internal/transport/ws"
	"github.com/medora-health/realtime/pkg/errs"

	"github.com/google/uuid"
)

// ChatAPI is the REST collaborator the session loads from and sends through.
type ChatAPI interface {
	Messages(ctx context.Context, consultationID int64, page int) ([]domain.Message, bool, error)
	Send(ctx context.Context, consultationID int64, content string, att *domain.Upload) (domain.Message, error)
	Edit(ctx context.Context, consultationID int64, messageID, content string) (domain.Message, error)
	Delete(ctx context.Context, consultationID int64, messageID string) error
	Attachment(ctx context.Context, consultationID int64, messageID string) ([]byte, string, error)
}

// BlobCache caches attachment bytes per confirmed message id.
type BlobCache interface {
	Attachment(messageID string) ([]byte, bool)
	PutAttachment(messageID string, data []byte) error
}

// Anchor is the scroll reference of the view rendering the sequence. LoadMore
// measures content height before the prepend and shifts the offset by the
// delta afterwards, so the visible content does not jump.
type Anchor interface {
	ContentHeight() int
	ScrollBy(delta int)
}

// ChatSession owns the ordered, deduplicated message sequence of one open
// consultation. It reconciles the initial page load, backward pagination,
// live push events and the caller's own optimistic sends. A session is
// discarded when the user navigates to another conversation.
type ChatSession struct {
	api            ChatAPI
	cache          BlobCache
	consultationID int64
	selfID         string

	mu      sync.Mutex
	msgs    []domain.Message
	page    int
	hasMore bool
	loading bool
}

func NewChatSession(api ChatAPI, cache BlobCache, consultationID int64, selfID string) *ChatSession {
	if cache == nil {
		cache = make(memCache)
	}
	return &ChatSession{
		api:            api,
		cache:          cache,
		consultationID: consultationID,
		selfID:         selfID,
		page:           1,
	}
}

// Bind subscribes the session to conversation-scoped push frames.
func (s *ChatSession) Bind(c *ws.Client) {
	c.On(ws.TypeMessage, func(f ws.Frame) {
		var ev ws.MessageEvent
		if err := ws.DecodeData(f, &ev); err != nil {
			slog.Debug("chat: undecodable message event", "err", err)
			return
		}
		var msg domain.Message
		if err := json.Unmarshal(ev.Message, &msg); err != nil || msg.ID == "" {
			return
		}
		switch ev.State {
		case ws.MessageCreated:
			s.HandlePush(msg)
		case ws.MessageUpdated:
			s.ApplyEdit(msg)
		case ws.MessageDeleted:
			at := time.Now()
			if msg.DeletedAt != nil {
				at = *msg.DeletedAt
			}
			s.ApplyDelete(msg.ID, at)
		}
	})
	c.On(ws.TypeConsultationMessage, func(f ws.Frame) {
		var msg domain.Message
		if err := ws.DecodeData(f, &msg); err != nil || msg.ID == "" {
			return
		}
		s.HandlePush(msg)
	})
}

// LoadInitial replaces the sequence with page 1 in chronological order.
func (s *ChatSession) LoadInitial(ctx context.Context) error {
	msgs, hasMore, err := s.api.Messages(ctx, s.consultationID, 1)
	if err != nil {
		return fmt.Errorf("chat: initial load: %w", err)
	}
	s.mu.Lock()
	s.msgs = reverse(msgs)
	s.page = 1
	s.hasMore = hasMore
	s.loading = false
	s.mu.Unlock()
	return nil
}

// LoadMore prepends the next older page. Refused while a load is in flight or
// once the server reported no further pages. On failure the page counter
// rolls back so a retry re-requests the same page.
func (s *ChatSession) LoadMore(ctx context.Context, anchor Anchor) error {
	s.mu.Lock()
	if s.loading {
		s.mu.Unlock()
		return domain.ErrLoadInFlight
	}
	if !s.hasMore {
		s.mu.Unlock()
		return domain.ErrNoMorePages
	}
	s.loading = true
	s.page++
	page := s.page
	s.mu.Unlock()

	msgs, hasMore, err := s.api.Messages(ctx, s.consultationID, page)
	if err != nil {
		s.mu.Lock()
		s.loading = false
		s.page--
		s.mu.Unlock()
		return fmt.Errorf("chat: load page %d: %w", page, err)
	}

	before := 0
	if anchor != nil {
		before = anchor.ContentHeight()
	}

	s.mu.Lock()
	older := make([]domain.Message, 0, len(msgs))
	for _, m := range reverse(msgs) {
		if s.indexOfLocked(m.ID) < 0 {
			older = append(older, m)
		}
	}
	s.msgs = append(older, s.msgs...)
	s.hasMore = hasMore
	s.loading = false
	s.mu.Unlock()

	if anchor != nil {
		anchor.ScrollBy(anchor.ContentHeight() - before)
	}
	return nil
}

// HandlePush appends a live-pushed message at the chronological tail. Feeding
// the same id twice is a no-op.
func (s *ChatSession) HandlePush(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.indexOfLocked(msg.ID) >= 0 {
		return
	}
	s.msgs = append(s.msgs, msg)
}

// Send appends an optimistic entry, fires the network request, and replaces
// the entry in place with the confirmed message. On rejection the optimistic
// entry is removed and the error returned for display.
func (s *ChatSession) Send(ctx context.Context, content string, att *domain.Upload) (domain.Message, error) {
	tmp := domain.Message{
		ID:        "tmp-" + uuid.NewString(),
		AuthorID:  s.selfID,
		Content:   content,
		CreatedAt: time.Now(),
		Pending:   true,
	}
	if att != nil {
		tmp.Attachment = &domain.Attachment{
			Name:        att.Name,
			ContentType: att.ContentType,
			Size:        int64(len(att.Data)),
		}
	}
	s.mu.Lock()
	s.msgs = append(s.msgs, tmp)
	s.mu.Unlock()

	confirmed, err := s.api.Send(ctx, s.consultationID, content, att)
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOfLocked(tmp.ID)
	if err != nil {
		if i >= 0 {
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
		}
		return domain.Message{}, fmt.Errorf("%w: %v", domain.ErrSendRejected, err)
	}
	if i >= 0 {
		if s.indexOfLocked(confirmed.ID) >= 0 {
			// the push event landed first; keep its copy, drop ours
			s.msgs = append(s.msgs[:i], s.msgs[i+1:]...)
		} else {
			// same position, so the message does not visually jump
			s.msgs[i] = confirmed
		}
	} else if s.indexOfLocked(confirmed.ID) < 0 {
		s.msgs = append(s.msgs, confirmed)
	}
	return confirmed, nil
}

// Edit rewrites a confirmed message through the API and projects the result.
func (s *ChatSession) Edit(ctx context.Context, messageID, content string) error {
	if isTempID(messageID) {
		return domain.ErrPendingMessage
	}
	msg, err := s.api.Edit(ctx, s.consultationID, messageID, content)
	if err != nil {
		return fmt.Errorf("chat: edit: %w", err)
	}
	s.ApplyEdit(msg)
	return nil
}

// Delete removes a confirmed message server-side and tombstones it locally.
func (s *ChatSession) Delete(ctx context.Context, messageID string) error {
	if isTempID(messageID) {
		return domain.ErrPendingMessage
	}
	if err := s.api.Delete(ctx, s.consultationID, messageID); err != nil {
		return fmt.Errorf("chat: delete: %w", err)
	}
	s.ApplyDelete(messageID, time.Now())
	return nil
}

// ApplyEdit projects an edit event onto a known id in place.
func (s *ChatSession) ApplyEdit(msg domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOfLocked(msg.ID)
	if i < 0 {
		return
	}
	s.msgs[i].Content = msg.Content
	s.msgs[i].IsEdited = true
	if msg.UpdatedAt != nil {
		s.msgs[i].UpdatedAt = msg.UpdatedAt
	} else {
		now := time.Now()
		s.msgs[i].UpdatedAt = &now
	}
}

// ApplyDelete tombstones the row: content and attachment cleared, deletion
// timestamp set. The row stays because its position anchors pagination.
func (s *ChatSession) ApplyDelete(messageID string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexOfLocked(messageID)
	if i < 0 {
		return
	}
	s.msgs[i].Content = ""
	s.msgs[i].Attachment = nil
	s.msgs[i].DeletedAt = &at
}

// Attachment fetches lazily and caches per message id. Optimistic ids are
// never sent to the server.
func (s *ChatSession) Attachment(ctx context.Context, messageID string) ([]byte, error) {
	s.mu.Lock()
	i := s.indexOfLocked(messageID)
	pending := i >= 0 && s.msgs[i].Pending
	s.mu.Unlock()
	if i < 0 {
		return nil, domain.ErrMessageNotFound
	}
	if pending || isTempID(messageID) {
		return nil, domain.ErrPendingMessage
	}
	if data, ok := s.cache.Attachment(messageID); ok {
		return data, nil
	}
	data, _, err := s.api.Attachment(ctx, s.consultationID, messageID)
	if err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", domain.ErrAttachmentMissed, messageID)
		}
		return nil, fmt.Errorf("chat: attachment %s: %w", messageID, err)
	}
	if err := s.cache.PutAttachment(messageID, data); err != nil {
		slog.Warn("chat: attachment cache write failed", "id", messageID, "err", err)
	}
	return data, nil
}

// Messages returns a snapshot of the sequence, oldest first.
func (s *ChatSession) Messages() []domain.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Message, len(s.msgs))
	copy(out, s.msgs)
	return out
}

// HasMore reports whether older pages remain.
func (s *ChatSession) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

func (s *ChatSession) indexOfLocked(id string) int {
	for i := range s.msgs {
		if s.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

func isTempID(id string) bool {
	return strings.HasPrefix(id, "tmp-")
}

func reverse(in []domain.Message) []domain.Message {
	out := make([]domain.Message, len(in))
	for i, m := range in {
		out[len(in)-1-i] = m
	}
	return out
}

// memCache is the fallback per-session cache when no store is wired.
type memCache map[string][]byte

func (m memCache) Attachment(id string) ([]byte, bool) {
	v, ok := m[id]
	return v, ok
}

func (m memCache) PutAttachment(id string, data []byte) error {
	m[id] = data
	return nil
}
