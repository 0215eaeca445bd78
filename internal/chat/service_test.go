package chat

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/apperrors"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/db"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/models"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/notify"
	"github.com/ADartsmelia/georgia-connects-hub-backend-sub000/internal/repositories"
)

type delivery struct {
	conversationID int64
	userID         int64
	exclude        int64
	event          models.Event
}

type fakeBroadcaster struct {
	mu           sync.Mutex
	toConv       []delivery
	toIdentity   []delivery
	unsubscribed [][2]int64
}

func (f *fakeBroadcaster) ToConversation(_ context.Context, conversationID int64, event models.Event, exclude int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toConv = append(f.toConv, delivery{conversationID: conversationID, exclude: exclude, event: event})
}

func (f *fakeBroadcaster) ToIdentity(userID int64, event models.Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.toIdentity = append(f.toIdentity, delivery{userID: userID, event: event})
}

func (f *fakeBroadcaster) Unsubscribe(conversationID, userID int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, [2]int64{conversationID, userID})
}

func (f *fakeBroadcaster) convEvents(eventType string) []delivery {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []delivery
	for _, d := range f.toConv {
		if d.event.Type == eventType {
			out = append(out, d)
		}
	}
	return out
}

type fakePresence map[int64]bool

func (f fakePresence) IsOnline(userID int64) bool { return f[userID] }

type fakeLimiter struct {
	allow bool
	err   error
}

func (f fakeLimiter) Allow(context.Context, string) (bool, error) { return f.allow, f.err }

type recordingSink struct {
	mu   sync.Mutex
	sent []notify.Notification
}

func (r *recordingSink) Notify(_ context.Context, n notify.Notification) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, n)
	return nil
}

type fakeDirectory struct{ err error }

func (f fakeDirectory) Users(_ context.Context, ids []int64) (map[int64]models.UserSummary, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := map[int64]models.UserSummary{}
	for _, id := range ids {
		out[id] = models.UserSummary{ID: id, Username: fmt.Sprintf("user%d", id)}
	}
	return out, nil
}

type fixture struct {
	svc       *Service
	broadcast *fakeBroadcaster
	sink      *recordingSink
	presence  fakePresence
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	conn, err := db.Connect(context.Background(), db.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	f := fixture{broadcast: &fakeBroadcaster{}, sink: &recordingSink{}, presence: fakePresence{}}
	opts.Broadcaster = f.broadcast
	opts.Notifier = f.sink
	opts.Presence = f.presence
	if opts.Directory == nil {
		opts.Directory = fakeDirectory{}
	}
	f.svc = NewService(repositories.NewConversationRepo(conn), repositories.NewMessageRepo(conn), opts)
	return f
}

func strPtr(s string) *string { return &s }

func (f fixture) group(t *testing.T, creator int64, members ...int64) models.Conversation {
	t.Helper()
	conv, err := f.svc.CreateGroup(context.Background(), creator, models.NewGroup{Name: strPtr("team"), MemberIDs: members})
	require.NoError(t, err)
	return conv
}

func (f fixture) send(t *testing.T, sender, convID int64, body string) models.Message {
	t.Helper()
	msg, err := f.svc.SendMessage(context.Background(), sender, convID, SendInput{Content: strPtr(body)})
	require.NoError(t, err)
	return msg
}

func assertKind(t *testing.T, err error, kind apperrors.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, apperrors.KindOf(err), "error: %v", err)
}

func TestCreateDirectIdempotent(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first, created, err := f.svc.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.True(t, created)
	second, created, err := f.svc.CreateDirect(ctx, 2, 1)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	require.Len(t, f.broadcast.toIdentity, 1)
	assert.Equal(t, int64(2), f.broadcast.toIdentity[0].userID)
	assert.Equal(t, models.EventConversationCreated, f.broadcast.toIdentity[0].event.Type)
	require.Len(t, second.Members, 2)
	assert.NotNil(t, second.Members[0].User)
}

func TestCreateDirectValidation(t *testing.T) {
	f := newFixture(t, Options{})

	_, _, err := f.svc.CreateDirect(context.Background(), 1, 1)
	assertKind(t, err, apperrors.KindValidation)
	_, _, err = f.svc.CreateDirect(context.Background(), 1, 0)
	assertKind(t, err, apperrors.KindValidation)
}

func TestCreateDirectRestoresParticipantWhoLeft(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	first, _, err := f.svc.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	_, err = f.svc.Leave(ctx, 1, first.ID)
	require.NoError(t, err)

	again, created, err := f.svc.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, again.ID)
	require.Len(t, again.Members, 2)
	for _, m := range again.Members {
		assert.Equal(t, models.RoleAdmin, m.Role)
	}

	msg := f.send(t, 1, again.ID, "back again")
	assert.Equal(t, int64(1), msg.SenderID)
}

func TestCreateGroupValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.CreateGroup(ctx, 1, models.NewGroup{Name: strPtr("solo"), MemberIDs: []int64{1}})
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.svc.CreateGroup(ctx, 1, models.NewGroup{Name: strPtr("  "), MemberIDs: []int64{2}})
	assertKind(t, err, apperrors.KindValidation)

	conv := f.group(t, 1, 2, 3)
	assert.Equal(t, models.KindGroup, conv.Kind)
	assert.Len(t, f.broadcast.toIdentity, 2)
}

func TestAddMemberRules(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2)

	_, err := f.svc.AddMember(ctx, 2, conv.ID, 3, models.RoleMember)
	assertKind(t, err, apperrors.KindAuthorization)

	m, err := f.svc.AddMember(ctx, 1, conv.ID, 3, "")
	require.NoError(t, err)
	assert.Equal(t, models.RoleMember, m.Role)
	require.NotNil(t, m.User)

	_, err = f.svc.AddMember(ctx, 1, conv.ID, 3, models.RoleMember)
	assertKind(t, err, apperrors.KindConflict)

	_, err = f.svc.AddMember(ctx, 1, conv.ID, 4, models.Role("owner"))
	assertKind(t, err, apperrors.KindValidation)

	joined := f.broadcast.convEvents(models.EventUserJoinedConversation)
	require.Len(t, joined, 1)
	assert.Equal(t, int64(3), joined[0].event.Data.(models.MembershipChange).UserID)

	direct, _, err := f.svc.CreateDirect(ctx, 1, 9)
	require.NoError(t, err)
	_, err = f.svc.AddMember(ctx, 1, direct.ID, 5, models.RoleMember)
	assertKind(t, err, apperrors.KindValidation)
}

func TestModeratorCannotGrantOrRemoveAdmins(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2, 3)
	_, err := f.svc.UpdateRole(ctx, 1, conv.ID, 2, models.RoleModerator)
	require.NoError(t, err)

	_, err = f.svc.AddMember(ctx, 2, conv.ID, 4, models.RoleAdmin)
	assertKind(t, err, apperrors.KindAuthorization)

	_, err = f.svc.RemoveMember(ctx, 2, conv.ID, 1)
	assertKind(t, err, apperrors.KindAuthorization)

	_, err = f.svc.RemoveMember(ctx, 2, conv.ID, 3)
	require.NoError(t, err)

	_, err = f.svc.RemoveMember(ctx, 3, conv.ID, 2)
	assertKind(t, err, apperrors.KindAuthorization)
}

func TestSoleAdminCannotLeaveButOtherAdminCan(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2, 3)

	_, err := f.svc.Leave(ctx, 1, conv.ID)
	assertKind(t, err, apperrors.KindValidation)
	_, err = f.svc.RemoveMember(ctx, 1, conv.ID, 1)
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.svc.UpdateRole(ctx, 1, conv.ID, 2, models.RoleAdmin)
	require.NoError(t, err)

	_, err = f.svc.RemoveMember(ctx, 2, conv.ID, 1)
	require.NoError(t, err)

	_, err = f.svc.UpdateRole(ctx, 2, conv.ID, 2, models.RoleMember)
	assertKind(t, err, apperrors.KindAuthorization)
}

func TestLastMemberLeavingDeactivates(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2)

	_, err := f.svc.Leave(ctx, 2, conv.ID)
	require.NoError(t, err)
	res, err := f.svc.Leave(ctx, 1, conv.ID)
	require.NoError(t, err)
	assert.True(t, res.ConversationDeactivated)

	assert.Contains(t, f.broadcast.unsubscribed, [2]int64{conv.ID, 2})
	left := f.broadcast.convEvents(models.EventUserLeftConversation)
	assert.Len(t, left, 2)
}

func TestRemovedMemberCannotSend(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2, 3)

	_, err := f.svc.RemoveMember(ctx, 1, conv.ID, 2)
	require.NoError(t, err)

	_, err = f.svc.SendMessage(ctx, 2, conv.ID, SendInput{Content: strPtr("still here?")})
	assertKind(t, err, apperrors.KindAuthorization)

	var notified bool
	for _, d := range f.broadcast.toIdentity {
		if d.userID == 2 && d.event.Type == models.EventUserLeftConversation {
			notified = true
		}
	}
	assert.True(t, notified)
}

func TestDirectChatReplyScenario(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	conv, _, err := f.svc.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)

	hi := f.send(t, 2, conv.ID, "hi")
	hello, err := f.svc.SendMessage(ctx, 1, conv.ID, SendInput{Content: strPtr("hello"), ReplyToID: &hi.ID})
	require.NoError(t, err)

	msgs, err := f.svc.ListMessages(ctx, 1, conv.ID, 0, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", *msgs[0].Content)
	assert.Equal(t, "hello", *msgs[1].Content)
	require.NotNil(t, msgs[1].ReplyToID)
	assert.Equal(t, hi.ID, *msgs[1].ReplyToID)
	assert.Equal(t, hello.ID, msgs[1].ID)
	require.NotNil(t, msgs[0].Sender)
	assert.Equal(t, int64(2), msgs[0].Sender.ID)

	again, err := f.svc.ListMessages(ctx, 1, conv.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, msgs[0].ID, again[0].ID)
	assert.Equal(t, msgs[1].ID, again[1].ID)
}

func TestSendValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2)
	other := f.group(t, 1, 3)
	foreign := f.send(t, 1, other.ID, "elsewhere")

	_, err := f.svc.SendMessage(ctx, 1, conv.ID, SendInput{Content: strPtr("   ")})
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.svc.SendMessage(ctx, 1, conv.ID, SendInput{Type: "sticker", Content: strPtr("x")})
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.svc.SendMessage(ctx, 1, conv.ID, SendInput{Content: strPtr("re"), ReplyToID: &foreign.ID})
	assertKind(t, err, apperrors.KindValidation)

	img, err := f.svc.SendMessage(ctx, 1, conv.ID, SendInput{Type: models.MessageImage, MediaURL: strPtr("https://cdn/x.png")})
	require.NoError(t, err)
	assert.Nil(t, img.Content)

	_, err = f.svc.SendMessage(ctx, 1, 999, SendInput{Content: strPtr("nowhere")})
	assertKind(t, err, apperrors.KindNotFound)
}

func TestSendFansOutExcludingSender(t *testing.T) {
	f := newFixture(t, Options{})
	conv := f.group(t, 1, 2)

	msg := f.send(t, 1, conv.ID, "ping")

	events := f.broadcast.convEvents(models.EventNewMessage)
	require.Len(t, events, 1)
	assert.Equal(t, int64(1), events[0].exclude)
	assert.Equal(t, msg.ID, events[0].event.Data.(models.Message).ID)
	require.NotNil(t, msg.Sender)
	assert.Equal(t, "user1", msg.Sender.Username)
}

func TestSenderSummaryDegradesWhenDirectoryFails(t *testing.T) {
	f := newFixture(t, Options{Directory: fakeDirectory{err: errors.New("user service down")}})
	conv := f.group(t, 1, 2)

	msg := f.send(t, 1, conv.ID, "ping")
	require.NotNil(t, msg.Sender)
	assert.Equal(t, models.UserSummary{ID: 1}, *msg.Sender)
}

func TestUnreadCounter(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2, 3)

	f.send(t, 2, conv.ID, "a")
	require.NoError(t, f.svc.MarkRead(ctx, 1, conv.ID))
	require.NoError(t, f.svc.MarkRead(ctx, 1, conv.ID))

	list, err := f.svc.ListConversations(ctx, 1, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Zero(t, list[0].UnreadCount)

	const n = 3
	for i := 0; i < n; i++ {
		f.send(t, 2, conv.ID, "b")
	}
	f.send(t, 1, conv.ID, "mine")

	list, err = f.svc.ListConversations(ctx, 1, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, n, list[0].UnreadCount)
	require.NotNil(t, list[0].LastMessage)
	assert.Equal(t, "mine", *list[0].LastMessage.Content)
	require.NotNil(t, list[0].LastMessage.Sender)

	err = f.svc.MarkRead(ctx, 9, conv.ID)
	assertKind(t, err, apperrors.KindAuthorization)
}

func TestEditAndDeletePermissions(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2, 3)
	msg := f.send(t, 2, conv.ID, "original")

	_, err := f.svc.EditMessage(ctx, 3, msg.ID, "hijack")
	assertKind(t, err, apperrors.KindAuthorization)
	_, err = f.svc.EditMessage(ctx, 1, msg.ID, "even admins cannot edit")
	assertKind(t, err, apperrors.KindAuthorization)

	edited, err := f.svc.EditMessage(ctx, 2, msg.ID, "fixed")
	require.NoError(t, err)
	assert.True(t, edited.IsEdited)
	assert.Len(t, f.broadcast.convEvents(models.EventMessageEdited), 1)

	_, err = f.svc.DeleteMessage(ctx, 3, msg.ID)
	assertKind(t, err, apperrors.KindAuthorization)

	deleted, err := f.svc.DeleteMessage(ctx, 1, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
	assert.Equal(t, models.DeletedMessageMarker, *deleted.Content)

	again, err := f.svc.DeleteMessage(ctx, 2, msg.ID)
	require.NoError(t, err)
	assert.True(t, again.IsDeleted)
	assert.Len(t, f.broadcast.convEvents(models.EventMessageDeleted), 1)

	_, err = f.svc.EditMessage(ctx, 2, msg.ID, "resurrect")
	assertKind(t, err, apperrors.KindValidation)

	_, err = f.svc.DeleteMessage(ctx, 2, 12345)
	assertKind(t, err, apperrors.KindNotFound)
}

func TestAuthorDeletesOwnMessage(t *testing.T) {
	f := newFixture(t, Options{})
	conv := f.group(t, 1, 2)
	msg := f.send(t, 2, conv.ID, "oops")

	deleted, err := f.svc.DeleteMessage(context.Background(), 2, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
}

func TestDirectParticipantCannotDeletePeerMessage(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv, _, err := f.svc.CreateDirect(ctx, 1, 2)
	require.NoError(t, err)
	msg := f.send(t, 2, conv.ID, "mine")

	_, err = f.svc.DeleteMessage(ctx, 1, msg.ID)
	assertKind(t, err, apperrors.KindAuthorization)

	deleted, err := f.svc.DeleteMessage(ctx, 2, msg.ID)
	require.NoError(t, err)
	assert.True(t, deleted.IsDeleted)
}

func TestOfflineNotificationsSkipOnlineAndMuted(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2, 3, 4)

	f.presence[2] = true
	until := time.Now().Add(time.Hour)
	_, err := f.svc.SetMute(ctx, 4, conv.ID, true, &until)
	require.NoError(t, err)

	msg := f.send(t, 1, conv.ID, "anyone there?")

	require.Len(t, f.sink.sent, 1)
	n := f.sink.sent[0]
	assert.Equal(t, int64(3), n.RecipientID)
	assert.Equal(t, notify.TypeMessageOffline, n.Type)
	assert.Equal(t, msg.ID, n.MessageID)
	assert.Equal(t, "anyone there?", n.Preview)
}

func TestSetMuteRejectsPastDeadline(t *testing.T) {
	f := newFixture(t, Options{})
	conv := f.group(t, 1, 2)
	past := time.Now().Add(-time.Minute)

	_, err := f.svc.SetMute(context.Background(), 2, conv.ID, true, &past)
	assertKind(t, err, apperrors.KindValidation)
}

func TestRateLimitedSend(t *testing.T) {
	f := newFixture(t, Options{Limiter: fakeLimiter{allow: false}})
	conv := f.group(t, 1, 2)

	_, err := f.svc.SendMessage(context.Background(), 1, conv.ID, SendInput{Content: strPtr("spam")})
	assertKind(t, err, apperrors.KindRateLimited)
}

func TestLimiterFailureFailsOpen(t *testing.T) {
	f := newFixture(t, Options{Limiter: fakeLimiter{err: errors.New("redis down")}})
	conv := f.group(t, 1, 2)

	f.send(t, 1, conv.ID, "still delivered")
}

func TestGetConversationRequiresMembership(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2)

	got, err := f.svc.GetConversation(ctx, 2, conv.ID)
	require.NoError(t, err)
	assert.Len(t, got.Members, 2)

	_, err = f.svc.GetConversation(ctx, 7, conv.ID)
	assertKind(t, err, apperrors.KindAuthorization)

	_, err = f.svc.GetConversation(ctx, 1, 404)
	assertKind(t, err, apperrors.KindNotFound)
}

func TestContacts(t *testing.T) {
	f := newFixture(t, Options{})
	f.group(t, 1, 2, 3)

	ids, err := f.svc.Contacts(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3}, ids)
}

func TestListMessagesPagination(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	conv := f.group(t, 1, 2)
	for _, body := range []string{"1", "2", "3", "4"} {
		f.send(t, 1, conv.ID, body)
	}

	page, err := f.svc.ListMessages(ctx, 2, conv.ID, 2, 0)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, "3", *page[0].Content)
	assert.Equal(t, "4", *page[1].Content)

	older, err := f.svc.ListMessages(ctx, 2, conv.ID, 2, 2)
	require.NoError(t, err)
	require.Len(t, older, 2)
	assert.Equal(t, "1", *older[0].Content)

	all, err := f.svc.ListMessages(ctx, 2, conv.ID, 1000, -5)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt))
	}
}
