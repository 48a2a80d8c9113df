package chat

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zhouzirui/z-chatroom/backend/internal/metrics"
	"github.com/zhouzirui/z-chatroom/backend/internal/model/chat"
	"github.com/zhouzirui/z-chatroom/backend/internal/service/completion"
)

// RoomWriter persists a room by id.
type RoomWriter interface {
	Update(ctx context.Context, room chat.Room) error
}

// ControllerOptions tunes a Controller.
type ControllerOptions struct {
	Model        string
	SystemPrompt string
	Now          func() time.Time
}

// Outcome describes how a send resolved. Err is nil on success; otherwise
// ErrorMessage holds the text for the user and the user message is marked
// failed.
type Outcome struct {
	Messages     []chat.Message
	Reply        *chat.Message
	Err          error
	ErrorMessage string
}

// Failed reports whether the send failed.
func (o Outcome) Failed() bool { return o.Err != nil }

// Controller owns the live message list of one room. At most one send is in
// flight at a time; a send issued meanwhile is rejected without touching
// state. Every outcome is written back through the store before observers
// are told about it.
type Controller struct {
	mu sync.Mutex

	// Notifications are numbered under mu and delivered in ticket order
	// without holding mu.
	notifyMu   sync.Mutex
	notifyCond *sync.Cond
	nextTicket uint64
	serving    uint64

	room    chat.Room
	live    []chat.Message
	sending bool
	errMsg  string
	closed  bool

	store  RoomWriter
	client completion.Client
	model  string
	now    func() time.Time

	observers map[int]Observer
	nextObs   int
}

// NewController seeds the live list from the room's messages, or with a
// single system prompt when the room has none.
func NewController(room chat.Room, store RoomWriter, client completion.Client, opts ControllerOptions) *Controller {
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	room = room.Clone()
	live := chat.CloneMessages(room.Messages)
	if len(live) == 0 && opts.SystemPrompt != "" {
		live = append(live, chat.SystemMessage(opts.SystemPrompt))
	}

	c := &Controller{
		room:      room,
		live:      live,
		store:     store,
		client:    client,
		model:     opts.Model,
		now:       now,
		observers: make(map[int]Observer),
	}
	c.notifyCond = sync.NewCond(&c.notifyMu)
	return c
}

// RoomID returns the id of the controlled room.
func (c *Controller) RoomID() string {
	return c.room.ID
}

// Room returns the room with its live message list.
func (c *Controller) Room() chat.Room {
	c.mu.Lock()
	defer c.mu.Unlock()

	r := c.room.Clone()
	r.Messages = chat.CloneMessages(c.live)
	return r
}

// Messages returns a copy of the live message list.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return chat.CloneMessages(c.live)
}

// Loading reports whether a send is in flight.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sending
}

// Error returns the user-facing error of the last send, or "".
func (c *Controller) Error() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.errMsg
}

// Subscribe registers obs and returns a function that removes it.
func (c *Controller) Subscribe(obs Observer) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = obs
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.observers, id)
			c.mu.Unlock()
		})
	}
}

// Close detaches all observers and rejects further sends. A send already in
// flight still resolves and persists.
func (c *Controller) Close() {
	c.mu.Lock()
	c.closed = true
	c.observers = make(map[int]Observer)
	c.mu.Unlock()
}

// SendMessage appends text as a user message and relays the whole live list
// to the completion client. It blocks until the outcome is applied and
// persisted. The send is detached from ctx cancellation: once dispatched it
// always runs to completion.
//
// A send issued while another is in flight returns ErrSendInFlight and
// changes nothing. Completion failures are not returned as errors; they are
// reported in the Outcome.
func (c *Controller) SendMessage(ctx context.Context, text string) (Outcome, error) {
	if strings.TrimSpace(text) == "" {
		return Outcome{}, ErrEmptyMessage
	}
	ctx = context.WithoutCancel(ctx)
	logger := log.With().Str("room_id", c.room.ID).Logger()

	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return Outcome{}, ErrRoomClosed
	case c.client == nil:
		c.mu.Unlock()
		return Outcome{}, ErrCompletionUnavailable
	case c.sending:
		c.mu.Unlock()
		metrics.SendsRejected.Inc()
		logger.Warn().Msg("send rejected: another send is in flight")
		return Outcome{}, ErrSendInFlight
	}

	c.live = append(c.live, chat.UserMessage(text, c.now()))

	if c.room.Untitled() {
		c.room.Title = text
		if err := c.store.Update(ctx, c.room.Clone()); err != nil {
			logger.Error().Err(err).Msg("failed to persist room title")
		}
	}

	c.sending = true
	c.errMsg = ""
	req := completion.Request{Model: c.model, Messages: chat.CloneMessages(c.live)}
	c.publishLocked()

	logger.Debug().Int("history", len(req.Messages)).Msg("sending completion request")
	resp, err := c.client.Send(ctx, req)

	c.mu.Lock()
	outcome := c.resolveLocked(resp, err)

	c.room.Messages = chat.CloneMessages(c.live)
	if perr := c.store.Update(ctx, c.room.Clone()); perr != nil {
		logger.Error().Err(perr).Msg("failed to persist room messages")
	}

	c.sending = false
	outcome.Messages = chat.CloneMessages(c.live)
	c.publishLocked()

	if outcome.Failed() {
		metrics.MessagesSent.WithLabelValues(string(chat.StatusFailed)).Inc()
		logger.Warn().Err(outcome.Err).Str("user_error", outcome.ErrorMessage).Msg("send failed")
	} else {
		metrics.MessagesSent.WithLabelValues(string(chat.StatusSent)).Inc()
		logger.Info().Int("messages", len(outcome.Messages)).Msg("reply received")
	}
	return outcome, nil
}

// resolveLocked applies a completion result: mark the pending user message,
// then append the reply.
func (c *Controller) resolveLocked(resp *completion.Response, err error) Outcome {
	if err == nil && (resp == nil || len(resp.Choices) == 0) {
		err = ErrNoResponse
	}

	if err != nil {
		c.markLastUserLocked(chat.StatusFailed)
		c.errMsg = describeError(err)
		return Outcome{Err: err, ErrorMessage: c.errMsg}
	}

	reply := resp.Choices[0].Message.Stamped(c.now())
	if reply.Role == "" {
		reply.Role = chat.RoleAssistant
	}
	reply.Status = ""

	c.markLastUserLocked(chat.StatusSent)
	c.live = append(c.live, reply)
	return Outcome{Reply: &reply}
}

// markLastUserLocked sets the status of the most recent user message. Safe
// only because a room never has more than one send in flight.
func (c *Controller) markLastUserLocked(status chat.Status) {
	if i := chat.LastUserIndex(c.live); i >= 0 {
		c.live[i].Status = status
	}
}

// publishLocked snapshots state, releases mu and notifies observers in
// order: messages, loading, error. Snapshots taken earlier are delivered
// first.
func (c *Controller) publishLocked() {
	roomID := c.room.ID
	messages := chat.CloneMessages(c.live)
	loading := c.sending
	errMsg := c.errMsg
	observers := make([]Observer, 0, len(c.observers))
	for i := 0; i < c.nextObs; i++ {
		if obs, ok := c.observers[i]; ok {
			observers = append(observers, obs)
		}
	}
	ticket := c.nextTicket
	c.nextTicket++
	c.mu.Unlock()

	c.notifyMu.Lock()
	for c.serving != ticket {
		c.notifyCond.Wait()
	}
	c.notifyMu.Unlock()

	defer func() {
		c.notifyMu.Lock()
		c.serving++
		c.notifyCond.Broadcast()
		c.notifyMu.Unlock()
	}()

	for _, obs := range observers {
		obs.MessagesChanged(roomID, chat.CloneMessages(messages))
		obs.LoadingChanged(roomID, loading)
		obs.ErrorChanged(roomID, errMsg)
	}
}
