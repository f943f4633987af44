// ABOUTME: Stream session controller: one exchange at a time over an NDJSON chat stream
// ABOUTME: Owns the transcript, activity, diagnostics and fire-and-forget persistence

package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/2389/mahakaal/internal/activity"
	"github.com/2389/mahakaal/internal/conversation"
	"github.com/2389/mahakaal/internal/dedupe"
	"github.com/2389/mahakaal/internal/message"
	"github.com/2389/mahakaal/internal/metrics"
	"github.com/2389/mahakaal/internal/stream"
)

// ErrSuperseded is the result error of an exchange replaced by a newer Send.
var ErrSuperseded = errors.New("exchange superseded")

// ErrClosed is returned by Send after Close.
var ErrClosed = errors.New("session controller closed")

const (
	finishedText = "Agent finished."
	sendingText  = "Sending request to Agent..."

	defaultPersistTimeout = 10 * time.Second
)

// State is the controller's exchange state.
type State int

// Exchange states
const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Transport opens the chat stream for a transcript snapshot.
type Transport interface {
	Chat(ctx context.Context, msgs []message.Message) (io.ReadCloser, error)
}

// Persister saves a message to a backend session.
type Persister interface {
	SaveMessage(ctx context.Context, sessionID string, msg message.Message) error
}

// HistoryLoader fetches a session's stored messages.
type HistoryLoader interface {
	GetSession(ctx context.Context, sessionID string) ([]message.Message, error)
}

// Result is the terminal outcome of an exchange.
type Result struct {
	State      State
	Err        error
	Superseded bool
}

// Exchange is one request/response cycle started by Send.
type Exchange struct {
	ID string

	gen     uint64
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}
	result  Result
}

// Done is closed once the exchange has finished.
func (e *Exchange) Done() <-chan struct{} {
	return e.done
}

// Wait blocks until the exchange finishes and returns its result.
func (e *Exchange) Wait() Result {
	<-e.done
	return e.result
}

// Option configures a Controller.
type Option func(*Controller)

// WithPersister enables saving messages to the active session.
func WithPersister(p Persister) Option {
	return func(c *Controller) { c.persister = p }
}

// WithHistoryLoader sets the source used by Load.
func WithHistoryLoader(l HistoryLoader) Option {
	return func(c *Controller) { c.loader = l }
}

// WithDedupe skips saving a tool call or tool result twice.
func WithDedupe(d *dedupe.Cache) Option {
	return func(c *Controller) { c.dedupe = d }
}

// WithMetrics records exchange and persistence metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithClock overrides the time source for diagnostics timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithPersistTimeout bounds each save call.
func WithPersistTimeout(d time.Duration) Option {
	return func(c *Controller) { c.persistTimeout = d }
}

// Controller runs chat exchanges. All methods are safe for concurrent use.
type Controller struct {
	transport      Transport
	persister      Persister
	loader         HistoryLoader
	dedupe         *dedupe.Cache
	metrics        *metrics.Metrics
	logger         *slog.Logger
	now            func() time.Time
	persistTimeout time.Duration

	observers *broadcaster
	saves     sync.WaitGroup

	mu          sync.Mutex
	transcript  *conversation.Transcript
	diagnostics []LogEntry
	activity    activity.Descriptor
	state       State
	sessionID   string
	gen         uint64
	current     *Exchange
	closed      bool
}

// New creates an idle controller with an empty transcript.
func New(transport Transport, opts ...Option) *Controller {
	c := &Controller{
		transport:      transport,
		logger:         slog.Default(),
		now:            time.Now,
		persistTimeout: defaultPersistTimeout,
		transcript:     conversation.New(nil),
		activity:       activity.Idle(),
		state:          StateIdle,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "session")
	c.observers = newBroadcaster(c.logger)
	return c
}

// Send starts a new exchange for text. Empty or whitespace-only text is
// rejected before anything changes. A running exchange is superseded.
// The exchange inherits ctx; cancelling it fails the exchange.
func (c *Controller) Send(ctx context.Context, text string) (*Exchange, error) {
	user, err := message.NewUser(text)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, ErrClosed
	}

	if prev := c.current; prev != nil {
		c.logger.Info("superseding exchange", "exchange_id", prev.ID)
		prev.cancel()
		// The previous exchange will see the new generation and skip its
		// terminal handling, so its partial answer is saved here.
		c.persistAnswerLocked()
	}

	mut, err := c.transcript.AppendUser(user)
	if err != nil {
		return nil, err
	}

	c.gen++
	exCtx, cancel := context.WithCancel(ctx)
	ex := &Exchange{
		ID:      uuid.New().String(),
		gen:     c.gen,
		cancel:  cancel,
		started: c.now(),
		done:    make(chan struct{}),
	}
	c.current = ex

	c.diagnostics = nil
	c.setStateLocked(ex, StateSending)
	c.publishMutationLocked(ex, mut)
	c.setActivityLocked(ex, activity.Default())
	c.addEntryLocked(ex, EntryStatus, sendingText, nil)
	c.persistLocked(ex.gen, mut.Message)

	snapshot := c.transcript.Messages()

	c.logger.Info("exchange started",
		"exchange_id", ex.ID,
		"session_id", c.sessionID,
		"messages", len(snapshot),
	)

	go c.run(exCtx, ex, snapshot)
	return ex, nil
}

// SendAndWait runs an exchange to completion. A rejected message returns
// the validation error and a zero Result.
func (c *Controller) SendAndWait(ctx context.Context, text string) (Result, error) {
	ex, err := c.Send(ctx, text)
	if err != nil {
		return Result{}, err
	}
	return ex.Wait(), nil
}

// Cancel aborts the running exchange, if any. It finishes as Failed.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.cancel()
	}
}

func (c *Controller) run(ctx context.Context, ex *Exchange, snapshot []message.Message) {
	defer close(ex.done)
	defer ex.cancel()

	body, err := c.transport.Chat(ctx, snapshot)
	if err != nil {
		c.finish(ex, fmt.Errorf("open chat stream: %w", err), 0)
		return
	}
	defer func() { _ = body.Close() }()

	if !c.enterStreaming(ex) {
		c.finish(ex, ErrSuperseded, 0)
		return
	}

	discarded, err := stream.Lines(ctx, body, func(line string) error {
		return c.handleLine(ex, line)
	})
	c.finish(ex, err, discarded)
}

func (c *Controller) enterStreaming(ex *Exchange) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ex.gen != c.gen {
		return false
	}
	c.setStateLocked(ex, StateStreaming)
	return true
}

// handleLine parses and dispatches one line. Lines of a superseded
// exchange stop the loop before touching any state.
func (c *Controller) handleLine(ex *Exchange, line string) error {
	ev, perr := stream.Parse(line)

	c.mu.Lock()
	defer c.mu.Unlock()

	if ex.gen != c.gen {
		return ErrSuperseded
	}

	if perr != nil {
		c.metrics.ParseFailed()
		c.logger.Warn("skipping malformed stream line", "exchange_id", ex.ID, "error", perr)
		c.addEntryLocked(ex, EntryParse, perr.Error(), nil)
		return nil
	}

	c.metrics.EventReconciled(string(ev.Kind()))
	c.logger.Debug("stream event", "exchange_id", ex.ID, "kind", ev.Kind())

	switch e := ev.(type) {
	case stream.StatusEvent:
		c.addEntryLocked(ex, EntryStatus, e.Text, nil)
		c.setActivityLocked(ex, activity.Classify(e.Text))

	case stream.LogEvent:
		c.addEntryLocked(ex, EntryLog, e.Text, e.Data)
		c.setActivityLocked(ex, activity.Classify(e.Text))

	case stream.ErrorEvent:
		c.addEntryLocked(ex, EntryError, e.Text, nil)

	case stream.HistoryAppendEvent:
		// Appending ends the answer being coalesced; save it before the
		// target moves on.
		c.persistAnswerLocked()
		mut := c.transcript.Apply(e)
		c.publishMutationLocked(ex, mut)
		c.persistLocked(ex.gen, mut.Message)

	case stream.AnswerEvent:
		c.publishMutationLocked(ex, c.transcript.Apply(e))
	}
	return nil
}

// finish records the terminal state of ex unless it was superseded.
func (c *Controller) finish(ex *Exchange, err error, discarded int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elapsed := c.now().Sub(ex.started)

	if ex.gen != c.gen {
		ex.result = Result{State: StateFailed, Err: ErrSuperseded, Superseded: true}
		c.metrics.ExchangeFinished(metrics.OutcomeSuperseded, elapsed)
		c.logger.Info("superseded exchange stopped", "exchange_id", ex.ID)
		return
	}
	c.current = nil

	if discarded > 0 {
		c.logger.Warn("discarded unterminated stream tail", "exchange_id", ex.ID, "bytes", discarded)
	}

	c.persistAnswerLocked()
	c.setActivityLocked(ex, activity.Idle())

	if err != nil {
		ex.result = Result{State: StateFailed, Err: err}
		c.addEntryLocked(ex, EntryError, err.Error(), nil)
		c.setStateLocked(ex, StateFailed)
		c.metrics.ExchangeFinished(metrics.OutcomeFailed, elapsed)
		c.logger.Error("exchange failed", "exchange_id", ex.ID, "error", err, "duration", elapsed)
	} else {
		ex.result = Result{State: StateCompleted}
		c.addEntryLocked(ex, EntryStatus, finishedText, nil)
		c.setStateLocked(ex, StateCompleted)
		c.metrics.ExchangeFinished(metrics.OutcomeCompleted, elapsed)
		c.logger.Info("exchange completed", "exchange_id", ex.ID, "duration", elapsed)
	}

	c.setStateLocked(ex, StateIdle)
}

// Load replaces the transcript with the stored history of sessionID and
// makes it the active session. A running exchange is superseded. When the
// history cannot be fetched the transcript is left empty and the error is
// returned.
func (c *Controller) Load(ctx context.Context, sessionID string) error {
	var (
		history []message.Message
		err     error
	)
	if c.loader != nil {
		history, err = c.loader.GetSession(ctx, sessionID)
		if err != nil {
			c.logger.Warn("failed to load session history", "session_id", sessionID, "error", err)
			history = nil
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(sessionID, history)
	return err
}

// SetSession switches to sessionID with an empty transcript.
func (c *Controller) SetSession(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked(sessionID, nil)
}

func (c *Controller) resetLocked(sessionID string, history []message.Message) {
	if c.current != nil {
		c.current.cancel()
		c.current = nil
	}
	c.gen++
	c.sessionID = sessionID
	c.transcript = conversation.New(history)
	c.diagnostics = nil
	c.activity = activity.Idle()
	c.state = StateIdle

	c.observers.publish(Update{Kind: UpdateState, State: StateIdle})
	c.observers.publish(Update{Kind: UpdateActivity, Activity: c.activity})
}

// SessionID returns the active backend session, or "" for none.
func (c *Controller) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// State returns the current exchange state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Activity returns the current activity descriptor.
func (c *Controller) Activity() activity.Descriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.activity
}

// Transcript returns a copy of the conversation.
func (c *Controller) Transcript() []message.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.transcript.Messages()
}

// Diagnostics returns a copy of the current exchange's diagnostics log.
func (c *Controller) Diagnostics() []LogEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	return cloneEntries(c.diagnostics)
}

// Subscribe streams updates until ctx is done.
func (c *Controller) Subscribe(ctx context.Context) <-chan Update {
	return c.observers.subscribe(ctx)
}

// Flush waits for outstanding saves or until ctx is done.
func (c *Controller) Flush(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		c.saves.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close cancels the running exchange and closes all subscriptions.
// Outstanding saves are not waited for; call Flush first.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.current != nil {
		c.current.cancel()
	}
	c.gen++
	c.mu.Unlock()

	c.observers.close()
}

func (c *Controller) setStateLocked(ex *Exchange, s State) {
	c.state = s
	c.observers.publish(Update{Kind: UpdateState, ExchangeID: ex.ID, State: s})
}

func (c *Controller) setActivityLocked(ex *Exchange, d activity.Descriptor) {
	c.activity = d
	c.observers.publish(Update{Kind: UpdateActivity, ExchangeID: ex.ID, Activity: d})
}

func (c *Controller) publishMutationLocked(ex *Exchange, mut conversation.Mutation) {
	if mut.Op == conversation.OpNone {
		return
	}
	c.observers.publish(Update{Kind: UpdateTranscript, ExchangeID: ex.ID, Mutation: mut})
}

func (c *Controller) addEntryLocked(ex *Exchange, kind EntryKind, text string, data []byte) {
	entry := LogEntry{
		ID:        uuid.New().String(),
		Kind:      kind,
		Text:      text,
		Data:      data,
		Timestamp: c.now(),
	}
	c.diagnostics = append(c.diagnostics, entry)

	var exchangeID string
	if ex != nil {
		exchangeID = ex.ID
	}
	c.observers.publish(Update{Kind: UpdateLog, ExchangeID: exchangeID, Entry: entry})
}

// persistAnswerLocked saves the answer being coalesced, if any. It runs
// when that answer is complete: before history is appended, when the
// exchange ends or when it is superseded.
func (c *Controller) persistAnswerLocked() {
	idx, ok := c.transcript.CoalesceTarget()
	if !ok {
		return
	}
	c.persistLocked(c.gen, c.transcript.At(idx))
}

// persistLocked saves msg in the background. Tool calls and tool results
// already saved to the session within the dedupe TTL are skipped.
func (c *Controller) persistLocked(gen uint64, msg message.Message) {
	if c.persister == nil || c.sessionID == "" {
		return
	}
	sessionID := c.sessionID

	var key string
	if k := msg.Key(); k != "" && c.dedupe != nil {
		key = sessionID + "/" + k
		if c.dedupe.CheckAndMark(key) {
			c.metrics.Persisted(metrics.PersistSkipped)
			c.logger.Debug("skipping duplicate save", "session_id", sessionID, "key", k)
			return
		}
	}

	c.saves.Add(1)
	go func() {
		defer c.saves.Done()

		ctx, cancel := context.WithTimeout(context.Background(), c.persistTimeout)
		defer cancel()

		if err := c.persister.SaveMessage(ctx, sessionID, msg); err != nil {
			if key != "" {
				c.dedupe.Forget(key)
			}
			c.metrics.Persisted(metrics.PersistFailed)
			c.logger.Error("failed to save message",
				"session_id", sessionID,
				"role", msg.Role,
				"error", err,
			)
			c.reportSaveFailure(gen, err)
			return
		}
		c.metrics.Persisted(metrics.PersistSaved)
	}()
}

// reportSaveFailure adds a diagnostics entry if the exchange that issued
// the save is still the latest one.
func (c *Controller) reportSaveFailure(gen uint64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.closed {
		return
	}
	c.addEntryLocked(c.current, EntryError, "failed to save message: "+err.Error(), nil)
}
