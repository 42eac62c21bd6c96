package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/crmnexus/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMessageStore struct {
	mu         sync.Mutex
	inserted   []model.Message
	direct     map[string][]model.Message // ключ — peerID
	groupMsgs  map[string][]model.Message
	markedRead []string // peerID каждой отметки
	contacts   []model.Contact
	insertErr  error

	// Выборка истории slowPeer сообщает о старте в slowEntered и ждёт slowGate.
	slowPeer    string
	slowEntered chan struct{}
	slowGate    chan struct{}
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		direct:    make(map[string][]model.Message),
		groupMsgs: make(map[string][]model.Message),
	}
}

func (f *fakeMessageStore) Insert(ctx context.Context, m *model.Message) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserted = append(f.inserted, *m)
	return nil
}

func (f *fakeMessageStore) DirectHistory(ctx context.Context, userID, peerID string, limit int) ([]model.Message, error) {
	if f.slowPeer != "" && peerID == f.slowPeer {
		f.slowEntered <- struct{}{}
		<-f.slowGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.direct[peerID], nil
}

func (f *fakeMessageStore) GroupHistory(ctx context.Context, groupID string, limit int) ([]model.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.groupMsgs[groupID], nil
}

func (f *fakeMessageStore) MarkDirectRead(ctx context.Context, userID, peerID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markedRead = append(f.markedRead, peerID)
	return nil
}

func (f *fakeMessageStore) ContactsOverview(ctx context.Context, userID string) ([]model.Contact, error) {
	return f.contacts, nil
}

type fakeGroupStore struct {
	mu         sync.Mutex
	created    []model.Group
	members    map[string][]string
	lastRead   map[string]time.Time // ключ groupID:userID
	failAdd    map[string]error     // userID → ошибка AddMember
	summaries  []model.GroupSummary
	createErr  error
	memberErrs int
}

func newFakeGroupStore() *fakeGroupStore {
	return &fakeGroupStore{
		members:  make(map[string][]string),
		lastRead: make(map[string]time.Time),
		failAdd:  make(map[string]error),
	}
}

func (f *fakeGroupStore) Create(ctx context.Context, g *model.Group) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, *g)
	return nil
}

func (f *fakeGroupStore) AddMember(ctx context.Context, m *model.GroupMember) error {
	if err, ok := f.failAdd[m.UserID]; ok {
		f.memberErrs++
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.members[m.GroupID] = append(f.members[m.GroupID], m.UserID)
	return nil
}

func (f *fakeGroupStore) IsMember(ctx context.Context, groupID, userID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range f.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeGroupStore) UpdateMemberLastRead(ctx context.Context, groupID, userID string, t time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastRead[groupID+":"+userID] = t
	return nil
}

func (f *fakeGroupStore) ListForUser(ctx context.Context, userID string) ([]model.GroupSummary, error) {
	return f.summaries, nil
}

type fakeBus struct {
	mu        sync.Mutex
	published []model.Message
}

func (f *fakeBus) PublishMessage(ctx context.Context, msg *model.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, *msg)
	return nil
}

func newTestSession(t *testing.T) (*Session, *fakeMessageStore, *fakeGroupStore, *fakeBus) {
	t.Helper()
	msgs := newFakeMessageStore()
	groups := newFakeGroupStore()
	bus := &fakeBus{}
	svc := NewService(msgs, groups, bus)
	return NewSession(svc, "me"), msgs, groups, bus
}

func strptr(s string) *string { return &s }

func TestOpenDirectLoadsHistoryAndMarksRead(t *testing.T) {
	s, msgs, _, _ := newTestSession(t)
	msgs.direct["peer"] = []model.Message{
		{ID: "m1", SenderID: "peer", ReceiverID: strptr("me"), Content: "hi"},
		{ID: "m2", SenderID: "me", ReceiverID: strptr("peer"), Content: "hello"},
	}

	history, err := s.Open(context.Background(), DirectConversation("peer"))
	require.NoError(t, err)
	assert.Len(t, history, 2)
	assert.Equal(t, []string{"peer"}, msgs.markedRead)
	assert.Zero(t, s.UnreadCount(DirectConversation("peer")))
}

func TestOpenResetsUnreadCounter(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	conv := DirectConversation("peer")

	// Три входящих при закрытой переписке.
	for _, id := range []string{"m1", "m2", "m3"} {
		s.HandleInserted(&model.Message{ID: id, SenderID: "peer", ReceiverID: strptr("me")})
	}
	assert.Equal(t, 3, s.UnreadCount(conv))

	_, err := s.Open(context.Background(), conv)
	require.NoError(t, err)
	assert.Zero(t, s.UnreadCount(conv))
}

func TestSendAppendsOnceAndEchoIsDeduped(t *testing.T) {
	s, _, _, bus := newTestSession(t)
	_, err := s.Open(context.Background(), DirectConversation("peer"))
	require.NoError(t, err)

	m, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)
	require.Len(t, bus.published, 1)
	assert.Len(t, s.Messages(), 1)

	// Эхо собственной отправки из шины: дубликата нет, счётчик не растёт.
	eff := s.HandleInserted(m)
	assert.Nil(t, eff.Appended)
	assert.Empty(t, eff.Unread)
	assert.Len(t, s.Messages(), 1)
	assert.Zero(t, s.UnreadCount(DirectConversation("peer")))
}

// syncEchoBus доставляет событие сессии прямо из публикации — так ведёт
// себя шина в памяти с подписанным хабом: эхо приходит ещё до возврата Send.
type syncEchoBus struct {
	session *Session
}

func (b *syncEchoBus) PublishMessage(ctx context.Context, msg *model.Message) error {
	if b.session != nil {
		b.session.HandleInserted(msg)
	}
	return nil
}

func TestSendSynchronousEchoAppendsOnce(t *testing.T) {
	msgs := newFakeMessageStore()
	groups := newFakeGroupStore()
	bus := &syncEchoBus{}
	svc := NewService(msgs, groups, bus)
	s := NewSession(svc, "me")
	bus.session = s

	_, err := s.Open(context.Background(), DirectConversation("peer"))
	require.NoError(t, err)

	m, err := s.Send(context.Background(), "hello")
	require.NoError(t, err)

	history := s.Messages()
	require.Len(t, history, 1)
	assert.Equal(t, m.ID, history[0].ID)
	assert.Empty(t, s.pending)

	// Повторная доставка того же события (другой инстанс) тоже не дублирует.
	eff := s.HandleInserted(m)
	assert.Nil(t, eff.Appended)
	assert.Len(t, s.Messages(), 1)
}

func TestSendFailureLeavesStateUntouched(t *testing.T) {
	s, msgs, _, bus := newTestSession(t)
	_, err := s.Open(context.Background(), DirectConversation("peer"))
	require.NoError(t, err)

	msgs.insertErr = errors.New("insert failed")
	_, err = s.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Empty(t, s.Messages())
	assert.Empty(t, bus.published)
}

func TestSendWithoutConversation(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	_, err := s.Send(context.Background(), "hello")
	assert.ErrorIs(t, err, ErrNoActiveConversation)
}

func TestSendEmptyContent(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	_, err := s.Open(context.Background(), DirectConversation("peer"))
	require.NoError(t, err)
	_, err = s.Send(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyContent)
	assert.Empty(t, s.Messages())
}

func TestInboundToActiveConversationAppendsAndMarksRead(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	conv := DirectConversation("peer")
	_, err := s.Open(context.Background(), conv)
	require.NoError(t, err)

	eff := s.HandleInserted(&model.Message{ID: "m1", SenderID: "peer", ReceiverID: strptr("me"), Content: "hi"})
	require.NotNil(t, eff.Appended)
	require.NotNil(t, eff.ReadMark)
	assert.Equal(t, conv, *eff.ReadMark)
	assert.Len(t, s.Messages(), 1)
	assert.Zero(t, s.UnreadCount(conv))
}

func TestInboundToInactiveConversationIncrementsUnread(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	_, err := s.Open(context.Background(), DirectConversation("peer"))
	require.NoError(t, err)

	other := DirectConversation("other")
	eff := s.HandleInserted(&model.Message{ID: "m1", SenderID: "other", ReceiverID: strptr("me")})
	assert.Nil(t, eff.Appended)
	assert.Equal(t, 1, eff.Unread[other])
	assert.Len(t, s.Messages(), 0)
}

func TestOwnMessageNeverIncrementsUnread(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	// Собственное сообщение с другого устройства в закрытую переписку.
	eff := s.HandleInserted(&model.Message{ID: "m1", SenderID: "me", ReceiverID: strptr("peer")})
	assert.Empty(t, eff.Unread)
	assert.Zero(t, s.UnreadCount(DirectConversation("peer")))
}

func TestOwnMessageFromOtherDeviceAppendsToActive(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	conv := DirectConversation("peer")
	_, err := s.Open(context.Background(), conv)
	require.NoError(t, err)

	eff := s.HandleInserted(&model.Message{ID: "m1", SenderID: "me", ReceiverID: strptr("peer")})
	require.NotNil(t, eff.Appended)
	assert.Nil(t, eff.ReadMark)
	assert.Len(t, s.Messages(), 1)
}

func TestForeignDirectMessageIgnored(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	eff := s.HandleInserted(&model.Message{ID: "m1", SenderID: "a", ReceiverID: strptr("b")})
	assert.Nil(t, eff.Appended)
	assert.Empty(t, eff.Unread)
}

func TestGroupUnreadIncrementAndReset(t *testing.T) {
	s, _, groups, _ := newTestSession(t)
	groups.members["g1"] = []string{"me", "peer"}
	conv := GroupConversation("g1")

	s.HandleInserted(&model.Message{ID: "m1", SenderID: "peer", GroupID: strptr("g1")})
	s.HandleInserted(&model.Message{ID: "m2", SenderID: "peer", GroupID: strptr("g1")})
	assert.Equal(t, 2, s.UnreadCount(conv))

	_, err := s.Open(context.Background(), conv)
	require.NoError(t, err)
	assert.Zero(t, s.UnreadCount(conv))
	assert.Contains(t, groups.lastRead, "g1:me")
}

func TestSeedUnreadStartsFromStoredCounts(t *testing.T) {
	s, msgs, groups, _ := newTestSession(t)
	msgs.contacts = []model.Contact{
		{Profile: model.Profile{UserID: "peer"}, UnreadCount: 4},
		{Profile: model.Profile{UserID: "quiet"}, UnreadCount: 0},
	}
	groups.summaries = []model.GroupSummary{
		{Group: model.Group{ID: "g1"}, UnreadCount: 2},
	}

	require.NoError(t, s.SeedUnread(context.Background()))
	assert.Equal(t, 4, s.UnreadCount(DirectConversation("peer")))
	assert.Equal(t, 2, s.UnreadCount(GroupConversation("g1")))
	assert.Zero(t, s.UnreadCount(DirectConversation("quiet")))

	// Входящее после переподключения продолжает счёт от фактического
	// значения, а не от нуля.
	eff := s.HandleInserted(&model.Message{ID: "m9", SenderID: "peer", ReceiverID: strptr("me")})
	assert.Equal(t, 5, eff.Unread[DirectConversation("peer")])
}

func TestOpenGroupRequiresMembership(t *testing.T) {
	s, _, _, _ := newTestSession(t)
	_, err := s.Open(context.Background(), GroupConversation("g1"))
	assert.ErrorIs(t, err, ErrNotMember)
}

func TestStaleFetchDiscarded(t *testing.T) {
	s, msgs, _, _ := newTestSession(t)
	msgs.direct["slow"] = []model.Message{{ID: "old", SenderID: "slow", ReceiverID: strptr("me")}}
	msgs.direct["fast"] = []model.Message{{ID: "new", SenderID: "fast", ReceiverID: strptr("me")}}

	msgs.slowPeer = "slow"
	msgs.slowEntered = make(chan struct{})
	msgs.slowGate = make(chan struct{})

	errCh := make(chan error, 1)
	go func() {
		_, err := s.Open(context.Background(), DirectConversation("slow"))
		errCh <- err
	}()
	<-msgs.slowEntered

	// Вторая выборка стартует позже, но завершается первой.
	_, err := s.Open(context.Background(), DirectConversation("fast"))
	require.NoError(t, err)

	close(msgs.slowGate)
	require.ErrorIs(t, <-errCh, ErrStaleFetch)

	// Состояние принадлежит последней открытой переписке.
	assert.Equal(t, DirectConversation("fast"), s.Active())
	history := s.Messages()
	require.Len(t, history, 1)
	assert.Equal(t, "new", history[0].ID)
}

func TestCreateGroupPartialFailure(t *testing.T) {
	_, msgs, groups, bus := newTestSession(t)
	svc := NewService(msgs, groups, bus)
	groups.failAdd["bad"] = errors.New("insert failed")

	g, failed, err := svc.CreateGroup(context.Background(), "me", "Team", "", []string{"a", "bad", "b"})
	require.NoError(t, err)
	require.NotNil(t, g)
	assert.Equal(t, []string{"bad"}, failed)
	assert.ElementsMatch(t, []string{"me", "a", "b"}, groups.members[g.ID])
}

func TestCreateGroupCreatorNotDuplicated(t *testing.T) {
	_, msgs, groups, bus := newTestSession(t)
	svc := NewService(msgs, groups, bus)

	g, failed, err := svc.CreateGroup(context.Background(), "me", "Team", "", []string{"me", "a"})
	require.NoError(t, err)
	assert.Empty(t, failed)
	assert.ElementsMatch(t, []string{"me", "a"}, groups.members[g.ID])
}

func TestCreateGroupEmptyName(t *testing.T) {
	_, msgs, groups, bus := newTestSession(t)
	svc := NewService(msgs, groups, bus)
	_, _, err := svc.CreateGroup(context.Background(), "me", "  ", "", nil)
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.Empty(t, groups.created)
}

func TestSendGroupRequiresMembership(t *testing.T) {
	_, msgs, groups, bus := newTestSession(t)
	svc := NewService(msgs, groups, bus)
	_, err := svc.SendGroup(context.Background(), "me", "g1", "hi")
	assert.ErrorIs(t, err, ErrNotMember)
}
