package client_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/chatsync/internal/chat"
	"github.com/omochice/chatsync/internal/client"
	"github.com/omochice/chatsync/internal/persist"
	"github.com/omochice/chatsync/internal/storage"
)

func TestClient_SendThenAckLeavesOneEntry(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "hello"))

	log := f.client.Conversation("bob")
	require.Len(t, log, 1)
	assert.Equal(t, "hello", log[0].Content)
	assert.Equal(t, chat.OriginLocal, log[0].Origin)
	assert.Equal(t, "alice", log[0].Sender)
	assert.True(t, f.client.Awaiting("bob"))

	cmds := f.conn.GetWritten(t)
	require.Len(t, cmds, 1)
	assert.Equal(t, "onchat", cmds[0].Action)
	assert.Equal(t, "SEND_CHAT", cmds[0].Data.Event)
	assert.JSONEq(t, `{"type":"people","to":"bob","mes":"hello"}`, string(cmds[0].Data.Data))

	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"bob","mes":"hello"}}`)

	assert.Equal(t, []string{"hello"}, contents(f.client.Conversation("bob")))
	assert.False(t, f.client.Awaiting("bob"))
}

func TestClient_SendToRoomUsesRoomTarget(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	f.frame(`{"event":"JOIN_ROOM","status":"success","data":{"name":"team","own":"carol","userList":[{"name":"alice"}]}}`)
	require.NoError(t, f.client.SendTo(ctx, "team", "hi all"))

	cmds := f.conn.GetWritten(t)
	require.Len(t, cmds, 1)
	assert.JSONEq(t, `{"type":"room","to":"team","mes":"hi all"}`, string(cmds[0].Data.Data))
	assert.Empty(t, f.client.Active())
}

func TestClient_ConcurrentConversationsDoNotMix(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "to bob"))
	require.NoError(t, f.client.Select(ctx, "carol"))
	require.NoError(t, f.client.Send(ctx, "to carol"))

	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"carol","mes":"to carol"}}`)
	assert.True(t, f.client.Awaiting("bob"))
	assert.False(t, f.client.Awaiting("carol"))
	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"bob","mes":"to bob"}}`)

	assert.Equal(t, []string{"to bob"}, contents(f.client.Conversation("bob")))
	assert.Equal(t, []string{"to carol"}, contents(f.client.Conversation("carol")))
}

func TestClient_AckWithoutTargetConfirmsOldest(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.SendTo(ctx, "bob", "one"))
	require.NoError(t, f.client.SendTo(ctx, "carol", "two"))

	f.frame(`{"event":"SEND_CHAT","status":"success"}`)

	assert.False(t, f.client.Awaiting("bob"))
	assert.True(t, f.client.Awaiting("carol"))
}

func TestClient_AckForOtherConversationIsUnmatched(t *testing.T) {
	f := newFixture(t, client.Options{OptimisticSend: false})
	ctx := context.Background()

	require.NoError(t, f.client.SendTo(ctx, "bob", "hi bob"))
	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"carol","mes":"hi carol"}}`)

	assert.Empty(t, f.client.Conversation("bob"))
	assert.Empty(t, f.client.Conversation("carol"))
	assert.True(t, f.client.Awaiting("bob"))

	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"bob","mes":"hi bob"}}`)

	assert.Equal(t, []string{"hi bob"}, contents(f.client.Conversation("bob")))
	assert.False(t, f.client.Awaiting("bob"))
}

func TestClient_FailedAckKeepsOptimisticEntry(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "hello"))
	f.frame(`{"event":"SEND_CHAT","status":"error","mes":"user offline","data":{"to":"bob"}}`)

	assert.Equal(t, []string{"hello"}, contents(f.client.Conversation("bob")))
	assert.False(t, f.client.Awaiting("bob"))

	sig, ok := f.signals.last(client.SignalSendFailed)
	require.True(t, ok)
	assert.Equal(t, "bob", sig.Conversation)
	assert.True(t, errors.Is(sig.Err, client.ErrRejected))
}

func TestClient_NonOptimisticAppendsOnAck(t *testing.T) {
	f := newFixture(t, client.Options{OptimisticSend: false})
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "hello"))
	assert.Empty(t, f.client.Conversation("bob"))

	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"bob","mes":"hello"}}`)
	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"bob","mes":"hello"}}`)

	log := f.client.Conversation("bob")
	require.Len(t, log, 1)
	assert.Equal(t, chat.OriginLocal, log[0].Origin)
}

func TestClient_EchoOfOwnMessageIsNotDuplicated(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.SendTo(ctx, "bob", "hello"))
	f.frame(`{"event":"RECEIVE_CHAT","status":"success","data":{"name":"alice","to":"bob","mes":"hello"}}`)

	assert.Equal(t, []string{"hello"}, contents(f.client.Conversation("bob")))
	assert.Empty(t, f.client.Conversation("alice"))
	assert.False(t, f.client.Awaiting("bob"))
}

func TestClient_ReceiveRoutesBySenderOrRoom(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	f.frame(`{"event":"CREATE_ROOM","status":"success","data":{"name":"team","own":"alice"}}`)
	f.frame(`{"event":"RECEIVE_CHAT","status":"success","data":{"name":"carol","to":"alice","mes":"direct","createAt":"2024-06-01 09:00:00"}}`)
	f.frame(`{"event":"RECEIVE_CHAT","status":"success","data":{"name":"carol","to":"team","mes":"to room"}}`)

	direct := f.client.Conversation("carol")
	require.Len(t, direct, 1)
	assert.Equal(t, "direct", direct[0].Content)
	assert.Equal(t, chat.OriginRemote, direct[0].Origin)
	assert.True(t, direct[0].Timestamp.Equal(time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)))

	room := f.client.Conversation("team")
	require.Len(t, room, 1)
	assert.Equal(t, "carol", room[0].Sender)
}

func TestClient_ReceiveKeepsTimestampOrder(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	f.frame(`{"event":"RECEIVE_CHAT","data":{"name":"bob","to":"alice","mes":"late","createAt":"2024-06-01 09:05:00"}}`)
	f.frame(`{"event":"RECEIVE_CHAT","data":{"name":"bob","to":"alice","mes":"early","createAt":"2024-06-01 09:01:00"}}`)

	assert.Equal(t, []string{"early", "late"}, contents(f.client.Conversation("bob")))
}

func TestClient_RoomHistoryEmptyClearsLog(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	f.frame(`{"event":"JOIN_ROOM","status":"success","data":{"name":"team","own":"carol","chatData":[{"name":"carol","to":"team","mes":"old","createAt":"2024-06-01 08:00:00"}]}}`)
	require.Len(t, f.client.Conversation("team"), 1)

	f.frame(`{"event":"GET_ROOM_CHAT_MES","status":"success","data":{"name":"team","chatData":[]}}`)

	assert.Empty(t, f.client.Conversation("team"))
	assert.Contains(t, f.client.Conversations(), "team")
}

func TestClient_RoomJoinedReplacesHistorySorted(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	f.frame(`{"event":"JOIN_ROOM","status":"success","data":{"name":"team","own":"carol","userList":[{"name":"dave"}],"chatData":[
		{"name":"alice","to":"team","mes":"second","createAt":"2024-06-01 08:02:00"},
		{"name":"carol","to":"team","mes":"first","createAt":"2024-06-01 08:01:00"}
	]}}`)

	log := f.client.Conversation("team")
	assert.Equal(t, []string{"first", "second"}, contents(log))
	assert.Equal(t, chat.OriginLocal, log[1].Origin)

	room, ok := f.client.Room("team")
	require.True(t, ok)
	assert.Equal(t, []string{"carol", "dave"}, room.Members)
	assert.Equal(t, 1, f.signals.count(client.SignalRoomJoined))

	// a second join does not merge membership
	f.frame(`{"event":"JOIN_ROOM","status":"success","data":{"name":"team","own":"mallory","userList":[{"name":"eve"}]}}`)
	room, _ = f.client.Room("team")
	assert.Equal(t, "carol", room.Owner)
	assert.Equal(t, []string{"carol", "dave"}, room.Members)
}

func TestClient_PeopleHistoryTarget(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  string
	}{
		{
			name:  "first item sent by peer",
			frame: `{"event":"GET_PEOPLE_CHAT_MES","status":"success","data":[{"name":"bob","to":"alice","mes":"x"}]}`,
			want:  "bob",
		},
		{
			name:  "first item sent by me",
			frame: `{"event":"GET_PEOPLE_CHAT_MES","status":"success","data":[{"name":"alice","to":"bob","mes":"x"}]}`,
			want:  "bob",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, client.DefaultOptions())
			f.frame(tt.frame)
			assert.Equal(t, []string{"x"}, contents(f.client.Conversation(tt.want)))
		})
	}
}

func TestClient_EmptyPeopleHistoryUsesPendingRequest(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()
	f.store.Append("bob", chat.Message{Content: "cached", Origin: chat.OriginRemote})

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.FetchHistory(ctx, 0))

	cmds := f.conn.GetWritten(t)
	require.Len(t, cmds, 1)
	assert.Equal(t, "GET_PEOPLE_CHAT_MES", cmds[0].Data.Event)
	assert.JSONEq(t, `{"name":"bob","page":1}`, string(cmds[0].Data.Data))

	f.frame(`{"event":"GET_PEOPLE_CHAT_MES","status":"success","data":[]}`)

	assert.Empty(t, f.client.Conversation("bob"))
}

func TestClient_FetchHistoryOnSelect(t *testing.T) {
	f := newFixture(t, client.Options{OptimisticSend: true, FetchHistoryOnSelect: true})
	f.frame(`{"event":"CREATE_ROOM","status":"success","data":{"name":"team","own":"alice"}}`)

	require.NoError(t, f.client.Select(context.Background(), "team"))

	cmds := f.conn.GetWritten(t)
	require.Len(t, cmds, 1)
	assert.Equal(t, "GET_ROOM_CHAT_MES", cmds[0].Data.Event)
}

func TestClient_AuthRejectedExpiresSessionOnce(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	f.session.SetReconnectToken("code")

	f.frame(`{"event":"AUTH","status":"error","mes":"User not Login"}`)

	assert.Empty(t, f.session.CurrentUser())
	assert.Empty(t, f.session.ReconnectToken())
	assert.Equal(t, 1, f.signals.count(client.SignalSessionExpired))
	sig, _ := f.signals.last(client.SignalSessionExpired)
	assert.True(t, errors.Is(sig.Err, client.ErrSessionExpired))

	// any request kind can carry the rejection
	f.frame(`{"event":"GET_USER_LIST","status":"error","mes":"User not Login"}`)
	assert.Equal(t, 2, f.signals.count(client.SignalSessionExpired))
}

func TestClient_LoginStoresSessionAndFetchesRoster(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	f.session.Clear()
	ctx := context.Background()

	require.NoError(t, f.client.Login(ctx, "dave", "secret"))
	f.frame(`{"event":"LOGIN","status":"success","data":{"RE_LOGIN_CODE":"nlu_123"}}`)

	assert.Equal(t, "dave", f.session.CurrentUser())
	assert.Equal(t, "nlu_123", f.session.ReconnectToken())
	assert.Equal(t, 1, f.signals.count(client.SignalLoggedIn))
	assert.Equal(t, []string{"LOGIN", "GET_USER_LIST"}, f.conn.events(t))

	cmds := f.conn.GetWritten(t)
	assert.JSONEq(t, `{"user":"dave","pass":"secret"}`, string(cmds[0].Data.Data))
}

func TestClient_LoginFailure(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	require.NoError(t, f.client.Login(context.Background(), "dave", "wrong"))
	f.frame(`{"event":"LOGIN","status":"error","mes":"Wrong password"}`)

	assert.Equal(t, "alice", f.session.CurrentUser())
	sig, ok := f.signals.last(client.SignalLoginFailed)
	require.True(t, ok)
	assert.ErrorContains(t, sig.Err, "Wrong password")
}

func TestClient_AttachResumesSession(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	f.session.SetReconnectToken("nlu_123")

	conn := newMockConn()
	require.NoError(t, f.client.Attach(context.Background(), conn))

	cmds := conn.GetWritten(t)
	require.Len(t, cmds, 1)
	assert.Equal(t, "RE_LOGIN", cmds[0].Data.Event)
	assert.JSONEq(t, `{"user":"alice","code":"nlu_123"}`, string(cmds[0].Data.Data))

	f.frame(`{"event":"RE_LOGIN","status":"success","data":{"RE_LOGIN_CODE":"nlu_456"}}`)
	assert.Equal(t, "alice", f.session.CurrentUser())
	assert.Equal(t, "nlu_456", f.session.ReconnectToken())
}

func TestClient_Register(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	require.NoError(t, f.client.Register(context.Background(), "erin", "pw"))
	f.frame(`{"event":"REGISTER","status":"error","mes":"Creating a user error"}`)
	f.frame(`{"event":"REGISTER","status":"success"}`)

	assert.Equal(t, 1, f.signals.count(client.SignalRegisterFailed))
	assert.Equal(t, 1, f.signals.count(client.SignalRegistered))
}

func TestClient_EditLocalMessage(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "helo"))
	f.frame(`{"event":"RECEIVE_CHAT","data":{"name":"bob","to":"alice","mes":"hey"}}`)

	_, err := f.client.BeginEdit(1)
	assert.True(t, errors.Is(err, chat.ErrNotEditable))
	_, err = f.client.BeginEdit(7)
	assert.True(t, errors.Is(err, chat.ErrIndexOutOfRange))

	content, err := f.client.BeginEdit(0)
	require.NoError(t, err)
	assert.Equal(t, "helo", content)

	require.NoError(t, f.client.Send(ctx, "hello"))

	log := f.client.Conversation("bob")
	assert.Equal(t, []string{"hello", "hey"}, contents(log))
	assert.Equal(t, "alice", log[0].Sender)
	_, pending := f.client.PendingEdit()
	assert.False(t, pending)
	assert.Len(t, f.conn.GetWritten(t), 1, "an edit is not sent to the peer")
}

func TestClient_SelectAndCancelClearEdit(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "a"))

	_, err := f.client.BeginEdit(0)
	require.NoError(t, err)
	f.client.CancelEdit()
	_, pending := f.client.PendingEdit()
	assert.False(t, pending)

	_, err = f.client.BeginEdit(0)
	require.NoError(t, err)
	require.NoError(t, f.client.Select(ctx, "carol"))
	_, pending = f.client.PendingEdit()
	assert.False(t, pending)
}

func TestClient_DeleteMessage(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "a"))
	require.NoError(t, f.client.Send(ctx, "b"))

	f.confirm = false
	err := f.client.DeleteMessage(0)
	assert.True(t, errors.Is(err, client.ErrNotConfirmed))
	assert.Len(t, f.client.Conversation("bob"), 2)

	f.confirm = true
	err = f.client.DeleteMessage(5)
	assert.True(t, errors.Is(err, chat.ErrIndexOutOfRange))
	assert.Len(t, f.client.Conversation("bob"), 2)

	require.NoError(t, f.client.DeleteMessage(0))
	assert.Equal(t, []string{"b"}, contents(f.client.Conversation("bob")))
}

func TestClient_DeleteKeepsPendingEditOnItsMessage(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "a"))
	require.NoError(t, f.client.Send(ctx, "b"))

	_, err := f.client.BeginEdit(1)
	require.NoError(t, err)
	require.NoError(t, f.client.DeleteMessage(0))

	edit, ok := f.client.PendingEdit()
	require.True(t, ok)
	assert.Equal(t, 0, edit.Index)

	require.NoError(t, f.client.DeleteMessage(0))
	_, ok = f.client.PendingEdit()
	assert.False(t, ok)
}

func TestClient_EditFollowsMessageAcrossEarlierReceive(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "first"))
	require.NoError(t, f.client.Send(ctx, "second"))

	content, err := f.client.BeginEdit(1)
	require.NoError(t, err)
	assert.Equal(t, "second", content)

	f.frame(`{"event":"RECEIVE_CHAT","data":{"name":"bob","to":"alice","mes":"old","createAt":"2020-01-01 00:00:00"}}`)

	edit, ok := f.client.PendingEdit()
	require.True(t, ok)
	assert.Equal(t, 2, edit.Index)

	require.NoError(t, f.client.Send(ctx, "second (fixed)"))
	assert.Equal(t, []string{"old", "first", "second (fixed)"}, contents(f.client.Conversation("bob")))
}

func TestClient_EditFollowsMessageAcrossAckedSend(t *testing.T) {
	f := newFixture(t, client.Options{OptimisticSend: false})
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "early"))
	f.store.Append("bob", chat.Message{
		Content:   "mine",
		Sender:    "alice",
		Timestamp: time.Date(2024, 6, 1, 11, 0, 0, 0, time.UTC),
		Origin:    chat.OriginLocal,
	})

	_, err := f.client.BeginEdit(0)
	require.NoError(t, err)

	f.frame(`{"event":"SEND_CHAT","status":"success","data":{"to":"bob","mes":"early"}}`)
	require.NoError(t, f.client.Send(ctx, "mine (fixed)"))

	assert.Equal(t, []string{"early", "mine (fixed)"}, contents(f.client.Conversation("bob")))
}

func TestClient_EditTargetReplacedByHistory(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "draft"))
	_, err := f.client.BeginEdit(0)
	require.NoError(t, err)

	f.frame(`{"event":"GET_PEOPLE_CHAT_MES","status":"success","data":[{"name":"bob","to":"alice","mes":"server copy"}]}`)

	_, ok := f.client.PendingEdit()
	assert.False(t, ok)

	err = f.client.Send(ctx, "draft v2")
	assert.True(t, errors.Is(err, client.ErrEditTargetGone))
	assert.Equal(t, []string{"server copy"}, contents(f.client.Conversation("bob")))
	assert.Len(t, f.conn.GetWritten(t), 1)

	_, ok = f.client.PendingEdit()
	assert.False(t, ok)
}

func TestClient_ClearConversation(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "a"))

	f.confirm = false
	assert.True(t, errors.Is(f.client.ClearConversation(), client.ErrNotConfirmed))
	assert.Len(t, f.client.Conversation("bob"), 1)

	f.confirm = true
	require.NoError(t, f.client.ClearConversation())
	assert.Empty(t, f.client.Conversation("bob"))
}

func TestClient_RosterSearchIsDestructive(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	roster := `{"event":"GET_USER_LIST","status":"success","data":[{"name":"bob","type":0,"actionTime":"2024-06-01 09:00:00"},{"name":"carol","type":1}]}`
	f.frame(roster)
	f.frame(roster)
	require.Len(t, f.client.Roster(), 2)

	found := f.client.SearchRoster("CAR")
	require.Len(t, found, 1)
	assert.Equal(t, "carol", found[0].Name)
	assert.Len(t, f.client.Roster(), 1)

	require.NoError(t, f.client.ExitSearch(ctx))
	assert.Equal(t, []string{"GET_USER_LIST"}, f.conn.events(t))

	f.frame(`{"event":"USER_LIST","status":"success","data":{"users":[{"name":"bob"},{"name":"carol"},{"name":"dave"}]}}`)
	assert.Len(t, f.client.Roster(), 3)
}

func TestClient_Logout(t *testing.T) {
	f := newFixture(t, client.Options{OptimisticSend: true, PurgeOnLogout: true})
	ctx := context.Background()
	f.session.SetReconnectToken("code")

	f.frame(`{"event":"CREATE_ROOM","status":"success","data":{"name":"team","own":"alice"}}`)
	require.NoError(t, f.client.Select(ctx, "bob"))
	require.NoError(t, f.client.Send(ctx, "a"))

	require.NoError(t, f.client.Logout(ctx))

	assert.Contains(t, f.conn.events(t), "LOGOUT")
	assert.Empty(t, f.session.CurrentUser())
	assert.Empty(t, f.session.ReconnectToken())
	assert.Empty(t, f.client.Active())
	assert.Empty(t, f.client.Conversations())
	assert.Empty(t, f.client.Rooms())
	assert.Equal(t, 1, f.signals.count(client.SignalLoggedOut))
}

func TestClient_LogoutPurgesPersistedCache(t *testing.T) {
	ctx := context.Background()
	kv := storage.NewMemory()
	adapter := persist.New(kv, nil)
	store := chat.NewStore(adapter, nil)
	dir := chat.NewDirectory(adapter, nil)

	c := client.New(client.Deps{
		Store:     store,
		Directory: dir,
		Cache:     adapter,
	}, client.Options{PurgeOnLogout: true})

	store.Append("bob", chat.Message{Content: "hi", Sender: "alice", Origin: chat.OriginLocal})
	dir.UpsertRoom(chat.Room{Name: "team", Owner: "alice"})
	_, ok := adapter.LoadSnapshot(ctx)
	require.True(t, ok)

	require.NoError(t, c.Logout(ctx))

	_, ok = adapter.LoadSnapshot(ctx)
	assert.False(t, ok)
	_, err := kv.Get(ctx, persist.KeyMessages)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestClient_LogoutKeepsCacheByDefault(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.SendTo(ctx, "bob", "a"))
	require.NoError(t, f.client.Logout(ctx))

	assert.Len(t, f.client.Conversation("bob"), 1)
}

func TestClient_IntentErrors(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	assert.True(t, errors.Is(f.client.Send(ctx, "hi"), client.ErrNoConversation))
	assert.True(t, errors.Is(f.client.Select(ctx, "  "), client.ErrNoConversation))
	assert.True(t, errors.Is(f.client.CreateRoom(ctx, ""), client.ErrEmptyName))

	require.NoError(t, f.client.Select(ctx, "bob"))
	assert.True(t, errors.Is(f.client.Send(ctx, "   "), client.ErrEmptyMessage))
	assert.Empty(t, f.client.Conversation("bob"))

	detached := client.New(client.Deps{Store: chat.NewStore(nil, nil), Directory: chat.NewDirectory(nil, nil)}, client.DefaultOptions())
	require.NoError(t, detached.Select(ctx, "bob"))
	assert.True(t, errors.Is(detached.Send(ctx, "hi"), client.ErrNotConnected))
	assert.True(t, errors.Is(detached.RefreshRoster(ctx), client.ErrNotConnected))
	assert.Empty(t, detached.Conversation("bob"))
}

func TestClient_RoomCommands(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx := context.Background()

	require.NoError(t, f.client.CreateRoom(ctx, "team"))
	require.NoError(t, f.client.JoinRoom(ctx, " other "))

	cmds := f.conn.GetWritten(t)
	require.Len(t, cmds, 2)
	assert.Equal(t, "CREATE_ROOM", cmds[0].Data.Event)
	assert.JSONEq(t, `{"name":"team"}`, string(cmds[0].Data.Data))
	assert.Equal(t, "JOIN_ROOM", cmds[1].Data.Event)
	assert.JSONEq(t, `{"name":"other"}`, string(cmds[1].Data.Data))

	f.frame(`{"event":"JOIN_ROOM","status":"error","mes":"Room not found"}`)
	sig, ok := f.signals.last(client.SignalRequestFailed)
	require.True(t, ok)
	assert.ErrorContains(t, sig.Err, "Room not found")
}

func TestClient_MalformedAndUnknownFramesAreIgnored(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	f.frame(`not json`)
	f.frame(`{"status":"success"}`)
	f.frame(`{"event":"SOMETHING_NEW","data":{}}`)
	f.frame(`{"event":"RECEIVE_CHAT","data":"oops"}`)

	assert.Empty(t, f.client.Conversations())
	assert.Equal(t, 0, f.signals.count(client.SignalConversationUpdated))
}

func TestClient_RunDispatchesUntilClosed(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())

	msg, err := json.Marshal(map[string]any{
		"event": "RECEIVE_CHAT",
		"data":  map[string]string{"name": "bob", "to": "alice", "mes": "ping"},
	})
	require.NoError(t, err)
	f.conn.readCh <- msg
	close(f.conn.readCh)

	done := make(chan error, 1)
	go func() { done <- f.client.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after the connection closed")
	}

	assert.Equal(t, []string{"ping"}, contents(f.client.Conversation("bob")))
	assert.False(t, f.client.Connected())
	assert.Equal(t, 1, f.signals.count(client.SignalDisconnected))
}

func TestClient_RunStopsOnContextCancel(t *testing.T) {
	f := newFixture(t, client.DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.client.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClient_SignalsDeliveredOutsideLock(t *testing.T) {
	ctx := context.Background()

	var c *client.Client
	var seen string
	c = client.New(client.Deps{
		Store:     chat.NewStore(nil, nil),
		Directory: chat.NewDirectory(nil, nil),
		Handler: func(s client.Signal) {
			if s.Kind == client.SignalActiveChanged {
				seen = c.Active()
			}
		},
	}, client.DefaultOptions())

	require.NoError(t, c.Select(ctx, "bob"))
	assert.Equal(t, "bob", seen)
}
