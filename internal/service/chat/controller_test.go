package chat_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/z-chatroom/backend/internal/service/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/completion"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/room"
	"github.com/zhouzirui/z-chatroom/backend/internal/storage"
)

const systemPrompt = "You are a helpful assistant."

// stubClient answers every request with the next scripted result.
type stubClient struct {
	mu       sync.Mutex
	results  []stubResult
	requests []completion.Request
	ctxErrs  []error
}

type stubResult struct {
	resp *completion.Response
	err  error
}

func reply(content string) stubResult {
	return stubResult{resp: &completion.Response{Choices: []completion.Choice{{Message: chat.AssistantMessage(content)}}}}
}

func failure(err error) stubResult {
	return stubResult{err: err}
}

func (c *stubClient) Send(ctx context.Context, req completion.Request) (*completion.Response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests = append(c.requests, req)
	c.ctxErrs = append(c.ctxErrs, ctx.Err())
	if len(c.results) == 0 {
		return nil, errors.New("no scripted result")
	}
	next := c.results[0]
	c.results = c.results[1:]
	return next.resp, next.err
}

// gatedClient blocks each Send until release is closed.
type gatedClient struct {
	entered chan completion.Request
	release chan struct{}
	result  stubResult
}

func newGatedClient(result stubResult) *gatedClient {
	return &gatedClient{
		entered: make(chan completion.Request, 1),
		release: make(chan struct{}),
		result:  result,
	}
}

func (c *gatedClient) Send(_ context.Context, req completion.Request) (*completion.Response, error) {
	c.entered <- req
	<-c.release
	return c.result.resp, c.result.err
}

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2025, 6, 5, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type fixture struct {
	store *room.Store
	room  chat.Room
	clock *clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := room.Open(ctx, storage.NewMemoryBackend(), "chatRooms")
	c := newClock()
	r := chat.NewRoom(c.Now())
	require.NoError(t, store.Add(ctx, r))
	return &fixture{store: store, room: r, clock: c}
}

func (f *fixture) controller(client completion.Client) *chatservice.Controller {
	return chatservice.NewController(f.room, f.store, client, chatservice.ControllerOptions{
		Model:        "gpt-3.5-turbo",
		SystemPrompt: systemPrompt,
		Now:          f.clock.Now,
	})
}

func (f *fixture) persisted(t *testing.T) chat.Room {
	t.Helper()
	got, err := f.store.Get(context.Background(), f.room.ID)
	require.NoError(t, err)
	return got
}

func roles(messages []chat.Message) []chat.Role {
	out := make([]chat.Role, len(messages))
	for i, m := range messages {
		out[i] = m.Role
	}
	return out
}

func TestSendMessageSuccess(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{results: []stubResult{reply("Hi")}}
	ctl := f.controller(client)

	outcome, err := ctl.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)
	require.False(t, outcome.Failed())
	require.NotNil(t, outcome.Reply)
	assert.Equal(t, "Hi", outcome.Reply.Content)

	live := ctl.Messages()
	require.Len(t, live, 3)
	assert.Equal(t, []chat.Role{chat.RoleSystem, chat.RoleUser, chat.RoleAssistant}, roles(live))
	assert.Equal(t, systemPrompt, live[0].Content)
	assert.Empty(t, live[0].Status)
	assert.Equal(t, "Hello", live[1].Content)
	assert.Equal(t, chat.StatusSent, live[1].Status)
	assert.Equal(t, "Hi", live[2].Content)
	assert.Empty(t, live[2].Status)
	require.NotNil(t, live[2].Timestamp)
	assert.True(t, live[2].Timestamp.After(*live[1].Timestamp))

	assert.False(t, ctl.Loading())
	assert.Empty(t, ctl.Error())
	assert.Equal(t, live, outcome.Messages)

	persisted := f.persisted(t)
	assert.Equal(t, "Hello", persisted.Title)
	assert.Equal(t, live, persisted.Messages)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "gpt-3.5-turbo", req.Model)
	require.Len(t, req.Messages, 2)
	assert.Equal(t, chat.RoleSystem, req.Messages[0].Role)
	assert.Equal(t, "Hello", req.Messages[1].Content)
}

func TestSendMessageResendsFullHistory(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{results: []stubResult{reply("one"), reply("two")}}
	ctl := f.controller(client)

	_, err := ctl.SendMessage(context.Background(), "first")
	require.NoError(t, err)
	_, err = ctl.SendMessage(context.Background(), "second")
	require.NoError(t, err)

	require.Len(t, client.requests, 2)
	second := client.requests[1].Messages
	require.Len(t, second, 4)
	assert.Equal(t, []string{systemPrompt, "first", "one", "second"},
		[]string{second[0].Content, second[1].Content, second[2].Content, second[3].Content})
	assert.Equal(t, "first", f.persisted(t).Title, "title is claimed only once")
}

func TestSendMessageWhileInFlightIsRejected(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient(reply("Hi"))
	ctl := f.controller(client)

	done := make(chan chatservice.Outcome, 1)
	go func() {
		outcome, err := ctl.SendMessage(context.Background(), "Hello")
		assert.NoError(t, err)
		done <- outcome
	}()

	<-client.entered
	assert.True(t, ctl.Loading())
	before := ctl.Messages()
	require.Len(t, before, 2)
	assert.Equal(t, chat.StatusSending, before[1].Status)

	_, err := ctl.SendMessage(context.Background(), "X")
	require.ErrorIs(t, err, chatservice.ErrSendInFlight)
	assert.Equal(t, before, ctl.Messages())
	assert.True(t, ctl.Loading())

	close(client.release)
	outcome := <-done
	require.False(t, outcome.Failed())
	assert.Len(t, ctl.Messages(), 3)
	assert.False(t, ctl.Loading())
}

func TestTitleClaimedBeforeCompletionResolves(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient(failure(errors.New("boom")))
	ctl := f.controller(client)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ctl.SendMessage(context.Background(), "Plan my trip")
	}()

	<-client.entered
	assert.Equal(t, "Plan my trip", f.persisted(t).Title)
	close(client.release)
	<-done
	assert.Equal(t, "Plan my trip", f.persisted(t).Title)
}

func TestSendMessageRateLimited(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{results: []stubResult{failure(completion.FromStatus(http.StatusTooManyRequests, nil))}}
	ctl := f.controller(client)

	outcome, err := ctl.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)
	require.True(t, outcome.Failed())
	assert.Equal(t, completion.KindRateLimited, completion.KindOf(outcome.Err))
	assert.Equal(t, chatservice.MsgRetryLater, outcome.ErrorMessage)
	assert.Equal(t, chatservice.MsgRetryLater, ctl.Error())
	assert.Nil(t, outcome.Reply)

	live := ctl.Messages()
	require.Len(t, live, 2)
	assert.Equal(t, chat.StatusFailed, live[1].Status)

	persisted := f.persisted(t)
	assert.Equal(t, "Hello", persisted.Title)
	assert.Equal(t, live, persisted.Messages)
}

func TestSendMessageEmptyChoices(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{results: []stubResult{{resp: &completion.Response{}}}}
	ctl := f.controller(client)

	outcome, err := ctl.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)
	require.ErrorIs(t, outcome.Err, chatservice.ErrNoResponse)
	assert.Equal(t, chatservice.MsgNoResponse, outcome.ErrorMessage)

	live := ctl.Messages()
	require.Len(t, live, 2)
	assert.Equal(t, chat.StatusFailed, live[1].Status)
}

func TestRetryAfterFailureClearsError(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{results: []stubResult{
		failure(completion.FromStatus(http.StatusServiceUnavailable, nil)),
		reply("better now"),
	}}
	ctl := f.controller(client)

	var seen []string
	ctl.Subscribe(chatservice.ObserverFuncs{OnError: func(_ string, msg string) {
		seen = append(seen, msg)
	}})

	_, err := ctl.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Equal(t, chatservice.MsgServiceUnavailable, ctl.Error())

	_, err = ctl.SendMessage(context.Background(), "Hello")
	require.NoError(t, err)
	assert.Empty(t, ctl.Error())

	assert.Equal(t, []string{"", chatservice.MsgServiceUnavailable, "", ""}, seen)

	live := ctl.Messages()
	require.Len(t, live, 4)
	assert.Equal(t, chat.StatusFailed, live[1].Status)
	assert.Equal(t, chat.StatusSent, live[2].Status)
	assert.Equal(t, "better now", live[3].Content)
}

func TestLiveListIsAppendOnly(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{results: []stubResult{
		reply("a"),
		failure(completion.FromStatus(http.StatusUnauthorized, nil)),
		{resp: &completion.Response{}},
		reply("b"),
		failure(context.DeadlineExceeded),
	}}
	ctl := f.controller(client)

	prev := ctl.Messages()
	for i, text := range []string{"one", "two", "three", "four", "five"} {
		_, err := ctl.SendMessage(context.Background(), text)
		require.NoError(t, err)
		cur := ctl.Messages()

		require.GreaterOrEqual(t, len(cur), len(prev)+1, "send %d", i)
		changed := 0
		for j := range prev {
			assert.Equal(t, prev[j].Role, cur[j].Role)
			assert.Equal(t, prev[j].Content, cur[j].Content)
			assert.Equal(t, prev[j].Timestamp, cur[j].Timestamp)
			if prev[j].Status != cur[j].Status {
				changed++
			}
		}
		assert.Zero(t, changed, "earlier messages keep their status")
		prev = cur
	}

	assert.Equal(t, f.persisted(t).Messages, prev)
}

func TestObserversSeeSendingThenOutcome(t *testing.T) {
	f := newFixture(t)
	client := newGatedClient(reply("Hi"))
	ctl := f.controller(client)

	var (
		mu     sync.Mutex
		events []string
		lists  [][]chat.Message
	)
	record := func(e string) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}
	unsubscribe := ctl.Subscribe(chatservice.ObserverFuncs{
		OnMessages: func(roomID string, messages []chat.Message) {
			assert.Equal(t, f.room.ID, roomID)
			mu.Lock()
			lists = append(lists, messages)
			mu.Unlock()
			record("messages")
		},
		OnLoading: func(_ string, loading bool) {
			if loading {
				record("loading:true")
			} else {
				record("loading:false")
			}
		},
		OnError: func(_ string, msg string) { record("error:" + msg) },
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = ctl.SendMessage(context.Background(), "Hello")
	}()

	<-client.entered
	mu.Lock()
	assert.Equal(t, []string{"messages", "loading:true", "error:"}, events)
	require.Len(t, lists, 1)
	require.Len(t, lists[0], 2)
	assert.Equal(t, chat.StatusSending, lists[0][1].Status)
	mu.Unlock()

	close(client.release)
	<-done

	mu.Lock()
	assert.Equal(t, []string{"messages", "loading:true", "error:", "messages", "loading:false", "error:"}, events)
	require.Len(t, lists, 2)
	require.Len(t, lists[1], 3)
	assert.Equal(t, chat.StatusSent, lists[1][1].Status)
	mu.Unlock()

	unsubscribe()
	unsubscribe()
	go func() { <-client.entered }()
	_, err := ctl.SendMessage(context.Background(), "after unsubscribe")
	require.NoError(t, err)

	mu.Lock()
	assert.Len(t, events, 6)
	mu.Unlock()
}

func TestControllerSeedsFromPersistedMessages(t *testing.T) {
	f := newFixture(t)
	f.room.Title = "existing"
	f.room.Messages = []chat.Message{
		chat.SystemMessage("custom prompt"),
		chat.UserMessage("earlier", f.clock.Now()),
	}
	ctl := f.controller(&stubClient{})

	live := ctl.Messages()
	require.Len(t, live, 2)
	assert.Equal(t, "custom prompt", live[0].Content)
}

func TestSendMessageValidation(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{}
	ctl := f.controller(client)

	_, err := ctl.SendMessage(context.Background(), "   ")
	require.ErrorIs(t, err, chatservice.ErrEmptyMessage)
	assert.Len(t, ctl.Messages(), 1)
	assert.Empty(t, client.requests)
	assert.True(t, f.persisted(t).Untitled())

	noClient := f.controller(nil)
	_, err = noClient.SendMessage(context.Background(), "Hello")
	require.ErrorIs(t, err, chatservice.ErrCompletionUnavailable)
	assert.Len(t, noClient.Messages(), 1)
}

func TestSendMessageIgnoresCallerCancellation(t *testing.T) {
	f := newFixture(t)
	client := &stubClient{results: []stubResult{reply("Hi")}}
	ctl := f.controller(client)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := ctl.SendMessage(ctx, "Hello")
	require.NoError(t, err)
	assert.False(t, outcome.Failed())
	require.Len(t, client.ctxErrs, 1)
	assert.NoError(t, client.ctxErrs[0])
}

func TestClosedControllerRejectsSends(t *testing.T) {
	f := newFixture(t)
	ctl := f.controller(&stubClient{results: []stubResult{reply("Hi")}})
	ctl.Close()

	_, err := ctl.SendMessage(context.Background(), "Hello")
	assert.ErrorIs(t, err, chatservice.ErrRoomClosed)
}

func TestStateReadableWhileObserverBlocks(t *testing.T) {
	f := newFixture(t)
	ctl := f.controller(&stubClient{results: []stubResult{reply("one"), reply("two")}})

	blocked := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	ctl.Subscribe(chatservice.ObserverFuncs{OnLoading: func(_ string, loading bool) {
		if !loading {
			once.Do(func() {
				close(blocked)
				<-release
			})
		}
	}})

	first := make(chan error, 1)
	go func() {
		_, err := ctl.SendMessage(context.Background(), "first")
		first <- err
	}()
	<-blocked

	second := make(chan error, 1)
	go func() {
		_, err := ctl.SendMessage(context.Background(), "second")
		second <- err
	}()

	// the second send is queued behind the blocked notification, yet the
	// live state stays readable
	require.Eventually(t, func() bool {
		return len(ctl.Messages()) == 4 && ctl.Loading()
	}, 2*time.Second, 10*time.Millisecond)

	close(release)
	require.NoError(t, <-first)
	require.NoError(t, <-second)

	live := ctl.Messages()
	require.Len(t, live, 5)
	assert.Equal(t, "two", live[4].Content)
	assert.False(t, ctl.Loading())
}
