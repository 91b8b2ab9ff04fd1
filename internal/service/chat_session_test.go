package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/medora-health/realtime/internal/domain"
	"github.com/medora-health/realtime/pkg/errs"

	"github.com/stretchr/testify/require"
)

type pageResult struct {
	msgs    []domain.Message
	hasMore bool
	err     error
}

type fakeAPI struct {
	mu        sync.Mutex
	pages     map[int]pageResult
	requested []int
	pageBlock chan struct{}

	sendBlock chan struct{}
	onSend    func()
	sendMsg   domain.Message
	sendErr   error

	attData  []byte
	attErr   error
	attCalls int
}

func (f *fakeAPI) Messages(ctx context.Context, consultationID int64, page int) ([]domain.Message, bool, error) {
	f.mu.Lock()
	f.requested = append(f.requested, page)
	res := f.pages[page]
	block := f.pageBlock
	f.mu.Unlock()
	if block != nil {
		<-block
	}
	return res.msgs, res.hasMore, res.err
}

func (f *fakeAPI) Send(ctx context.Context, consultationID int64, content string, att *domain.Upload) (domain.Message, error) {
	if f.sendBlock != nil {
		<-f.sendBlock
	}
	if f.onSend != nil {
		f.onSend()
	}
	return f.sendMsg, f.sendErr
}

func (f *fakeAPI) Edit(ctx context.Context, consultationID int64, messageID, content string) (domain.Message, error) {
	now := time.Now()
	return domain.Message{ID: messageID, Content: content, IsEdited: true, UpdatedAt: &now}, nil
}

func (f *fakeAPI) Delete(ctx context.Context, consultationID int64, messageID string) error {
	return nil
}

func (f *fakeAPI) Attachment(ctx context.Context, consultationID int64, messageID string) ([]byte, string, error) {
	f.mu.Lock()
	f.attCalls++
	f.mu.Unlock()
	if f.attErr != nil {
		return nil, "", f.attErr
	}
	return f.attData, "application/octet-stream", nil
}

func (f *fakeAPI) requestedPages() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int, len(f.requested))
	copy(out, f.requested)
	return out
}

// newestFirst builds a server-order page: highest id first.
func newestFirst(from, to int) []domain.Message {
	out := make([]domain.Message, 0, to-from+1)
	for i := to; i >= from; i-- {
		out = append(out, domain.Message{
			ID:        fmt.Sprintf("%d", i),
			AuthorID:  "a",
			Content:   fmt.Sprintf("msg %d", i),
			CreatedAt: time.Unix(int64(1700000000+i), 0),
		})
	}
	return out
}

func ids(msgs []domain.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = m.ID
	}
	return out
}

// heightAnchor mimics a scroll container: height grows with the sequence.
type heightAnchor struct {
	s       *ChatSession
	scrolls []int
}

func (a *heightAnchor) ContentHeight() int { return 10 * len(a.s.Messages()) }
func (a *heightAnchor) ScrollBy(delta int) { a.scrolls = append(a.scrolls, delta) }

func TestLoadInitialReversesToChronological(t *testing.T) {
	api := &fakeAPI{pages: map[int]pageResult{1: {msgs: newestFirst(1, 3), hasMore: false}}}
	s := NewChatSession(api, nil, 9, "me")

	require.NoError(t, s.LoadInitial(context.Background()))
	require.Equal(t, []string{"1", "2", "3"}, ids(s.Messages()))
	require.False(t, s.HasMore())
}

func TestLoadMorePrependsOlderPage(t *testing.T) {
	api := &fakeAPI{pages: map[int]pageResult{
		1: {msgs: newestFirst(21, 40), hasMore: true},
		2: {msgs: newestFirst(1, 20), hasMore: false},
	}}
	s := NewChatSession(api, nil, 9, "me")
	require.NoError(t, s.LoadInitial(context.Background()))

	anchor := &heightAnchor{s: s}
	require.NoError(t, s.LoadMore(context.Background(), anchor))

	msgs := s.Messages()
	require.Len(t, msgs, 40)
	require.Equal(t, "1", msgs[0].ID)
	require.Equal(t, "21", msgs[20].ID, "the original page sits at the tail")
	require.Equal(t, "40", msgs[39].ID)
	require.False(t, s.HasMore())

	// 20 prepended rows at 10 units each
	require.Equal(t, []int{200}, anchor.scrolls)

	// chronological order, no duplicates
	seen := map[string]bool{}
	var last time.Time
	for _, m := range msgs {
		require.False(t, seen[m.ID], "duplicate id %s", m.ID)
		seen[m.ID] = true
		require.False(t, m.CreatedAt.Before(last))
		last = m.CreatedAt
	}
}

func TestLoadMoreFailureRetriesSamePage(t *testing.T) {
	api := &fakeAPI{pages: map[int]pageResult{
		1: {msgs: newestFirst(21, 40), hasMore: true},
		2: {err: fmt.Errorf("boom")},
	}}
	s := NewChatSession(api, nil, 9, "me")
	require.NoError(t, s.LoadInitial(context.Background()))

	require.Error(t, s.LoadMore(context.Background(), nil))
	require.Len(t, s.Messages(), 20)

	api.mu.Lock()
	api.pages[2] = pageResult{msgs: newestFirst(1, 20), hasMore: false}
	api.mu.Unlock()

	require.NoError(t, s.LoadMore(context.Background(), nil))
	require.Equal(t, []int{1, 2, 2}, api.requestedPages())
	require.Len(t, s.Messages(), 40)
}

func TestLoadMoreStopsWhenExhausted(t *testing.T) {
	api := &fakeAPI{pages: map[int]pageResult{1: {msgs: newestFirst(1, 5), hasMore: false}}}
	s := NewChatSession(api, nil, 9, "me")
	require.NoError(t, s.LoadInitial(context.Background()))

	require.ErrorIs(t, s.LoadMore(context.Background(), nil), domain.ErrNoMorePages)
	require.Equal(t, []int{1}, api.requestedPages(), "no fetch once the server reported the last page")
}

func TestLoadMoreRefusedWhileInFlight(t *testing.T) {
	block := make(chan struct{})
	api := &fakeAPI{pages: map[int]pageResult{
		1: {msgs: newestFirst(21, 40), hasMore: true},
		2: {msgs: newestFirst(1, 20), hasMore: false},
	}}
	s := NewChatSession(api, nil, 9, "me")
	require.NoError(t, s.LoadInitial(context.Background()))

	api.mu.Lock()
	api.pageBlock = block
	api.mu.Unlock()

	first := make(chan error, 1)
	go func() { first <- s.LoadMore(context.Background(), nil) }()

	require.Eventually(t, func() bool { return len(api.requestedPages()) == 2 },
		time.Second, 5*time.Millisecond)

	require.ErrorIs(t, s.LoadMore(context.Background(), nil), domain.ErrLoadInFlight)

	close(block)
	require.NoError(t, <-first)
	require.Len(t, s.Messages(), 40)
}

func TestPushIsIdempotent(t *testing.T) {
	s := NewChatSession(&fakeAPI{}, nil, 9, "me")
	m := domain.Message{ID: "5", Content: "hello", CreatedAt: time.Now()}

	s.HandlePush(m)
	s.HandlePush(m)

	require.Equal(t, []string{"5"}, ids(s.Messages()))
}

func TestOptimisticSendConfirmedInPlace(t *testing.T) {
	api := &fakeAPI{sendMsg: domain.Message{ID: "57", AuthorID: "me", Content: "hi", CreatedAt: time.Now()}}
	s := NewChatSession(api, nil, 9, "me")
	s.HandlePush(domain.Message{ID: "55", CreatedAt: time.Now()})
	s.HandlePush(domain.Message{ID: "56", CreatedAt: time.Now()})

	confirmed, err := s.Send(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Equal(t, "57", confirmed.ID)

	msgs := s.Messages()
	require.Len(t, msgs, 3)
	require.Equal(t, "57", msgs[2].ID, "confirmed entry keeps the optimistic position")
	require.False(t, msgs[2].Pending)
}

func TestOptimisticSendRejectedIsRemoved(t *testing.T) {
	api := &fakeAPI{sendErr: fmt.Errorf("503")}
	s := NewChatSession(api, nil, 9, "me")

	_, err := s.Send(context.Background(), "hi", nil)
	require.ErrorIs(t, err, domain.ErrSendRejected)
	require.Empty(t, s.Messages())
}

func TestSendConfirmedByPushBeforeResponse(t *testing.T) {
	confirmed := domain.Message{ID: "57", AuthorID: "me", Content: "hi", CreatedAt: time.Now()}
	api := &fakeAPI{sendMsg: confirmed}
	s := NewChatSession(api, nil, 9, "me")
	s.HandlePush(domain.Message{ID: "56", CreatedAt: time.Now()})

	// the server pushes the created message before the send call returns
	api.onSend = func() { s.HandlePush(confirmed) }

	got, err := s.Send(context.Background(), "hi", nil)
	require.NoError(t, err)
	require.Equal(t, "57", got.ID)

	msgs := s.Messages()
	require.Equal(t, []string{"56", "57"}, ids(msgs), "pushed copy stays, optimistic entry goes")
	count := 0
	for _, m := range msgs {
		if m.ID == "57" {
			count++
		}
	}
	require.Equal(t, 1, count)
}

func TestEditProjectsInPlace(t *testing.T) {
	s := NewChatSession(&fakeAPI{}, nil, 9, "me")
	s.HandlePush(domain.Message{ID: "5", Content: "old", CreatedAt: time.Now()})

	require.NoError(t, s.Edit(context.Background(), "5", "new"))

	msgs := s.Messages()
	require.Equal(t, "new", msgs[0].Content)
	require.True(t, msgs[0].IsEdited)
	require.NotNil(t, msgs[0].UpdatedAt)
}

func TestDeleteLeavesTombstone(t *testing.T) {
	s := NewChatSession(&fakeAPI{}, nil, 9, "me")
	s.HandlePush(domain.Message{ID: "4", Content: "a", CreatedAt: time.Now()})
	s.HandlePush(domain.Message{
		ID: "5", Content: "b", CreatedAt: time.Now(),
		Attachment: &domain.Attachment{Name: "scan.pdf"},
	})

	require.NoError(t, s.Delete(context.Background(), "5"))

	msgs := s.Messages()
	require.Len(t, msgs, 2, "tombstones stay in the sequence")
	require.True(t, msgs[1].Deleted())
	require.Empty(t, msgs[1].Content)
	require.Nil(t, msgs[1].Attachment)
}

func TestAttachmentNeverFetchedForPendingMessage(t *testing.T) {
	api := &fakeAPI{
		sendBlock: make(chan struct{}),
		sendMsg:   domain.Message{ID: "57", CreatedAt: time.Now()},
	}
	s := NewChatSession(api, nil, 9, "me")

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.Send(context.Background(), "hi", &domain.Upload{Name: "x.png", Data: []byte{1}})
	}()

	require.Eventually(t, func() bool { return len(s.Messages()) == 1 },
		time.Second, 5*time.Millisecond)
	tmpID := s.Messages()[0].ID

	_, err := s.Attachment(context.Background(), tmpID)
	require.ErrorIs(t, err, domain.ErrPendingMessage)
	require.Zero(t, api.attCalls)

	close(api.sendBlock)
	<-done
}

func TestAttachmentCachedPerMessage(t *testing.T) {
	api := &fakeAPI{attData: []byte("blob")}
	s := NewChatSession(api, nil, 9, "me")
	s.HandlePush(domain.Message{ID: "5", CreatedAt: time.Now(), Attachment: &domain.Attachment{Name: "x"}})

	for i := 0; i < 3; i++ {
		data, err := s.Attachment(context.Background(), "5")
		require.NoError(t, err)
		require.Equal(t, []byte("blob"), data)
	}
	require.Equal(t, 1, api.attCalls)
}

func TestAttachmentGoneOnServer(t *testing.T) {
	api := &fakeAPI{attErr: errs.ErrNotFound}
	s := NewChatSession(api, nil, 9, "me")
	s.HandlePush(domain.Message{ID: "5", CreatedAt: time.Now(), Attachment: &domain.Attachment{Name: "x"}})

	_, err := s.Attachment(context.Background(), "5")
	require.ErrorIs(t, err, domain.ErrAttachmentMissed)
}
