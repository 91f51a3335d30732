package live

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/buildtrack/voice-expense-service/internal/audio"
	"github.com/buildtrack/voice-expense-service/internal/intent"
	"github.com/buildtrack/voice-expense-service/internal/ledger"
	"github.com/buildtrack/voice-expense-service/internal/metrics"
)

// Status is the controller lifecycle state.
type Status string

// Controller states. Start moves idle -> connecting -> active; Stop always
// returns to idle; transport failures land in error until the next Stop
// or Start.
const (
	StatusIdle       Status = "idle"
	StatusConnecting Status = "connecting"
	StatusActive     Status = "active"
	StatusError      Status = "error"
)

// CaptureSource yields 16 kHz mono capture frames. The channel closes when
// the capture device shuts down.
type CaptureSource interface {
	Frames() <-chan []float32
}

// Recorder persists expenses produced by tool calls.
type Recorder interface {
	Append(e ledger.Expense) error
}

// BudgetReader supplies the project contract and spend totals. When the
// recorder also implements it, a budget snapshot taken at session start is
// appended to the system instruction so the assistant can speak to the
// remaining budget.
type BudgetReader interface {
	GetContract() (ledger.Contract, error)
	Summary() (ledger.Summary, error)
}

// Config contains voice session configuration
type Config struct {
	URL               string
	APIKey            string
	Model             string
	SystemInstruction string
	DialTimeout       time.Duration
	WriteTimeout      time.Duration
	SetupTimeout      time.Duration
	MaxRetries        int
	RetryBackoff      time.Duration
}

func (c *Config) applyDefaults() {
	if c.SetupTimeout <= 0 {
		c.SetupTimeout = 15 * time.Second
	}
}

// Controller runs at most one voice session at a time. It owns the
// connection to the conversational endpoint, schedules inbound speech for
// playback, tracks rolling transcripts, and dispatches tool calls into
// the ledger.
type Controller struct {
	config   Config
	logger   *slog.Logger
	recorder Recorder
	sink     audio.Sink
	metrics  *metrics.Metrics

	mu      sync.Mutex
	status  Status
	lastErr error
	sess    *session
}

// session is the per-connection state. Goroutines hold the session pointer
// they were started with, so completions from a replaced session can be
// recognized and discarded.
type session struct {
	id        string
	startTime time.Time
	conn      *Conn
	sched     *audio.Scheduler
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	mu               sync.Mutex
	inputTranscript  string
	outputTranscript string
	framesSent       uint64
	framesDropped    uint64
	expensesRecorded int
}

// SessionInfo is a point-in-time snapshot of the controller for monitoring
// and APIs.
type SessionInfo struct {
	Status           Status        `json:"status"`
	SessionID        string        `json:"session_id,omitempty"`
	Speaking         bool          `json:"speaking"`
	InputTranscript  string        `json:"input_transcript"`
	OutputTranscript string        `json:"output_transcript"`
	FramesSent       uint64        `json:"frames_sent"`
	FramesDropped    uint64        `json:"frames_dropped"`
	ExpensesRecorded int           `json:"expenses_recorded"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
}

// NewController creates a voice session controller. sink may be nil when no
// playback device is attached.
func NewController(config Config, logger *slog.Logger, recorder Recorder, sink audio.Sink, m *metrics.Metrics) (*Controller, error) {
	if config.URL == "" {
		return nil, fmt.Errorf("endpoint URL cannot be empty")
	}
	if config.Model == "" {
		return nil, fmt.Errorf("model cannot be empty")
	}
	config.applyDefaults()

	return &Controller{
		config:   config,
		logger:   logger,
		recorder: recorder,
		sink:     sink,
		metrics:  m,
		status:   StatusIdle,
	}, nil
}

// Start connects to the endpoint, performs the setup handshake, and begins
// streaming capture frames from source. Starting while a session is
// connecting or active is an error. On a failed start all resources are
// released and the controller lands in the error state.
func (c *Controller) Start(ctx context.Context, source CaptureSource) error {
	c.mu.Lock()
	if c.status == StatusConnecting || c.status == StatusActive {
		c.mu.Unlock()
		return fmt.Errorf("voice session already running")
	}
	sess := &session{
		id:        uuid.NewString(),
		startTime: time.Now(),
		sched:     audio.NewScheduler(c.sink),
	}
	c.status = StatusConnecting
	c.lastErr = nil
	c.sess = sess
	c.mu.Unlock()

	c.logger.Info("Starting voice session",
		slog.String("session_id", sess.id),
		slog.String("model", c.config.Model),
	)

	conn, err := NewConn(ConnConfig{
		URL:          c.endpointURL(),
		DialTimeout:  c.config.DialTimeout,
		WriteTimeout: c.config.WriteTimeout,
		MaxRetries:   c.config.MaxRetries,
		RetryBackoff: c.config.RetryBackoff,
	}, c.logger)
	if err != nil {
		c.abortStart(sess, err)
		return err
	}

	if err := conn.Dial(ctx); err != nil {
		err = fmt.Errorf("connecting to endpoint: %w", err)
		c.abortStart(sess, err)
		return err
	}

	if err := c.handshake(ctx, conn, c.budgetContext()); err != nil {
		conn.Close()
		c.abortStart(sess, err)
		return err
	}

	sessCtx, cancel := context.WithCancel(context.Background())

	c.mu.Lock()
	if c.sess != sess {
		// Stopped while connecting.
		c.mu.Unlock()
		cancel()
		conn.Close()
		sess.sched.Stop()
		return fmt.Errorf("voice session stopped during startup")
	}
	sess.conn = conn
	sess.cancel = cancel
	c.status = StatusActive
	c.mu.Unlock()

	c.metrics.RecordSessionStarted()

	sess.wg.Add(2)
	go c.captureLoop(sessCtx, sess, source)
	go c.receiveLoop(sessCtx, sess)

	c.logger.Info("Voice session active", slog.String("session_id", sess.id))
	return nil
}

// Stop tears down the current session, if any, and returns the controller
// to idle. Stopping an idle or errored controller is a no-op beyond
// clearing the error.
func (c *Controller) Stop() {
	c.mu.Lock()
	sess := c.sess
	wasActive := c.status == StatusActive
	c.sess = nil
	c.status = StatusIdle
	c.lastErr = nil
	c.mu.Unlock()

	if sess == nil {
		return
	}

	sess.shutdown()
	if wasActive {
		c.metrics.RecordSessionEnded(time.Since(sess.startTime).Seconds(), false)
	}
	c.logger.Info("Voice session stopped",
		slog.String("session_id", sess.id),
		slog.Duration("duration", time.Since(sess.startTime)),
	)
}

// Status returns the controller lifecycle state.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Err returns the error that moved the controller into the error state.
func (c *Controller) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

// Speaking reports whether a playback segment is still outstanding.
func (c *Controller) Speaking() bool {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess == nil {
		return false
	}
	return sess.sched.Speaking()
}

// Info returns a snapshot for monitoring endpoints.
func (c *Controller) Info() SessionInfo {
	c.mu.Lock()
	sess := c.sess
	info := SessionInfo{Status: c.status}
	if c.lastErr != nil {
		info.Error = c.lastErr.Error()
	}
	c.mu.Unlock()

	if sess == nil {
		return info
	}

	sess.mu.Lock()
	info.SessionID = sess.id
	info.InputTranscript = sess.inputTranscript
	info.OutputTranscript = sess.outputTranscript
	info.FramesSent = sess.framesSent
	info.FramesDropped = sess.framesDropped
	info.ExpensesRecorded = sess.expensesRecorded
	sess.mu.Unlock()

	info.Speaking = sess.sched.Speaking()
	info.Duration = time.Since(sess.startTime)
	return info
}

// endpointURL appends the API key to the websocket URL when one is set.
func (c *Controller) endpointURL() string {
	if c.config.APIKey == "" {
		return c.config.URL
	}
	return c.config.URL + "?key=" + c.config.APIKey
}

// budgetContext renders the contract and spend snapshot taken at session
// start. The snapshot is read once; mid-session ledger changes do not
// refresh it.
func (c *Controller) budgetContext() string {
	reader, ok := c.recorder.(BudgetReader)
	if !ok {
		return ""
	}

	contract, err := reader.GetContract()
	if err != nil || contract.TotalValue <= 0 {
		return ""
	}
	summary, err := reader.Summary()
	if err != nil {
		return ""
	}

	return fmt.Sprintf(
		"Project %q has a total contract value of %.0f, of which %.0f has been spent so far.",
		contract.ProjectName, contract.TotalValue, summary.TotalSpent,
	)
}

// handshake sends the setup message and waits for the acknowledgment. No
// audio may be exchanged before setupComplete arrives.
func (c *Controller) handshake(ctx context.Context, conn *Conn, budget string) error {
	setup := ClientMessage{
		Setup: &Setup{
			Model: c.config.Model,
			GenerationConfig: &GenerationConfig{
				ResponseModalities: []string{"AUDIO"},
			},
			Tools: []Tool{
				{FunctionDeclarations: []intent.Declaration{intent.AddExpenseDeclaration()}},
			},
		},
	}
	instruction := c.config.SystemInstruction
	if budget != "" {
		if instruction != "" {
			instruction += "\n\n"
		}
		instruction += budget
	}
	if instruction != "" {
		setup.Setup.SystemInstruction = &Content{
			Parts: []Part{{Text: instruction}},
		}
	}

	if err := conn.Send(setup); err != nil {
		return fmt.Errorf("sending setup: %w", err)
	}

	setupCtx, cancel := context.WithTimeout(ctx, c.config.SetupTimeout)
	defer cancel()

	data, err := conn.Receive(setupCtx)
	if err != nil {
		return fmt.Errorf("waiting for setup acknowledgment: %w", err)
	}

	var msg ServerMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return fmt.Errorf("parsing setup acknowledgment: %w", err)
	}
	if msg.SetupComplete == nil {
		return fmt.Errorf("endpoint did not acknowledge setup")
	}
	return nil
}

// abortStart releases a session that never became active.
func (c *Controller) abortStart(sess *session, err error) {
	sess.sched.Stop()

	c.mu.Lock()
	if c.sess == sess {
		c.sess = nil
		c.status = StatusError
		c.lastErr = err
	}
	c.mu.Unlock()

	c.metrics.SessionsFailed.Inc()
	c.logger.Error("Voice session failed to start",
		slog.String("session_id", sess.id),
		slog.String("error", err.Error()),
	)
}

// fail tears down an active session after a transport error. A completion
// arriving for a session the controller no longer owns is discarded.
func (c *Controller) fail(sess *session, err error) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.status = StatusError
	c.lastErr = err
	c.mu.Unlock()

	sess.cancel()
	sess.conn.Close()
	sess.sched.Stop()
	c.metrics.RecordSessionEnded(time.Since(sess.startTime).Seconds(), true)

	c.logger.Error("Voice session failed",
		slog.String("session_id", sess.id),
		slog.String("error", err.Error()),
	)
}

// captureLoop encodes capture frames and sends them upstream. Sends are
// fire-and-forget: a failed write drops that frame and never stalls
// capture.
func (c *Controller) captureLoop(ctx context.Context, sess *session, source CaptureSource) {
	defer sess.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source.Frames():
			if !ok {
				return
			}
			msg := ClientMessage{
				RealtimeInput: &RealtimeInput{
					MediaChunks: []MediaChunk{{
						MimeType: CaptureMimeType,
						Data:     audio.Encode(audio.FrameToPCM16(frame)),
					}},
				},
			}
			go func() {
				if err := sess.conn.Send(msg); err != nil {
					sess.mu.Lock()
					sess.framesDropped++
					sess.mu.Unlock()
					c.metrics.RecordFrameDropped()
					return
				}
				sess.mu.Lock()
				sess.framesSent++
				sess.mu.Unlock()
				c.metrics.RecordFrameSent()
			}()
		}
	}
}

// receiveLoop is the single ordered consumer of server messages.
func (c *Controller) receiveLoop(ctx context.Context, sess *session) {
	defer sess.wg.Done()

	for {
		data, err := sess.conn.Receive(ctx)
		if err != nil {
			if ctx.Err() != nil || sess.conn.IsClosed() {
				return
			}
			if IsRemoteClose(err) {
				c.logger.Info("Endpoint closed the session",
					slog.String("session_id", sess.id),
				)
				c.remoteClose(sess)
				return
			}
			c.fail(sess, fmt.Errorf("receiving from endpoint: %w", err))
			return
		}

		var msg ServerMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.logger.Warn("Discarding unparseable server message",
				slog.String("session_id", sess.id),
				slog.String("error", err.Error()),
			)
			continue
		}

		switch {
		case msg.ServerContent != nil:
			c.handleContent(sess, msg.ServerContent)
		case msg.ToolCall != nil:
			c.handleToolCall(sess, msg.ToolCall)
		case msg.GoAway != nil:
			c.handleGoAway(sess, msg.GoAway)
		}
	}
}

// handleContent processes model output: playback audio, transcripts, and
// turn boundaries. A segment that fails to decode is dropped without
// ending the session.
func (c *Controller) handleContent(sess *session, content *ServerContent) {
	if content.Interrupted {
		sess.sched.Interrupt()
		c.logger.Debug("Playback interrupted by user speech",
			slog.String("session_id", sess.id),
		)
	}

	if content.InputTranscription != nil {
		sess.mu.Lock()
		sess.inputTranscript = content.InputTranscription.Text
		sess.mu.Unlock()
	}
	if content.OutputTranscription != nil {
		sess.mu.Lock()
		sess.outputTranscript = content.OutputTranscription.Text
		sess.mu.Unlock()
	}

	if content.ModelTurn != nil {
		for _, part := range content.ModelTurn.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			pcm, err := audio.Decode(part.InlineData.Data)
			if err != nil {
				c.metrics.RecordSegmentDropped()
				c.logger.Warn("Dropping undecodable speech segment",
					slog.String("session_id", sess.id),
					slog.String("error", err.Error()),
				)
				continue
			}
			buf, err := audio.Reconstruct(pcm, audio.PlaybackSampleRate, 1)
			if err != nil {
				c.metrics.RecordSegmentDropped()
				c.logger.Warn("Dropping malformed speech segment",
					slog.String("session_id", sess.id),
					slog.String("error", err.Error()),
				)
				continue
			}
			sess.sched.Schedule(buf)
			c.metrics.RecordSegmentScheduled(sess.sched.ActiveSegments())
		}
	}

	if content.TurnComplete {
		c.logger.Debug("Model turn complete", slog.String("session_id", sess.id))
	}
}

// handleToolCall dispatches function calls and always answers them, so the
// endpoint can resume its turn even after a malformed call.
func (c *Controller) handleToolCall(sess *session, tc *ToolCallMsg) {
	responses := make([]FunctionResponse, 0, len(tc.FunctionCalls))
	for _, call := range tc.FunctionCalls {
		responses = append(responses, c.dispatch(sess, call))
	}

	msg := ClientMessage{ToolResponse: &ToolResponse{FunctionResponses: responses}}
	if err := sess.conn.Send(msg); err != nil {
		c.logger.Warn("Failed to send tool response",
			slog.String("session_id", sess.id),
			slog.String("error", err.Error()),
		)
	}
}

func (c *Controller) dispatch(sess *session, call FunctionCall) FunctionResponse {
	if call.Name != intent.AddExpenseName {
		c.metrics.RecordToolCall(call.Name, "unknown")
		c.logger.Warn("Rejected call to undeclared function",
			slog.String("session_id", sess.id),
			slog.String("function", call.Name),
		)
		return failureResponse(call, fmt.Sprintf("unknown function %q", call.Name))
	}

	expense, err := intent.BuildExpense(call.Args)
	if err != nil {
		c.metrics.RecordToolCall(call.Name, "invalid")
		c.logger.Warn("Rejected malformed expense call",
			slog.String("session_id", sess.id),
			slog.String("error", err.Error()),
		)
		return failureResponse(call, err.Error())
	}

	if err := c.recorder.Append(expense); err != nil {
		c.metrics.RecordToolCall(call.Name, "error")
		c.logger.Error("Failed to append voice expense",
			slog.String("session_id", sess.id),
			slog.String("expense_id", expense.ID),
			slog.String("error", err.Error()),
		)
		return failureResponse(call, err.Error())
	}

	sess.mu.Lock()
	sess.expensesRecorded++
	sess.mu.Unlock()
	c.metrics.RecordToolCall(call.Name, "ok")
	c.metrics.RecordExpenseRecorded()

	c.logger.Info("Expense recorded from voice",
		slog.String("session_id", sess.id),
		slog.String("expense_id", expense.ID),
		slog.Float64("amount", expense.Amount),
		slog.String("category", string(expense.Category)),
		slog.String("payee", expense.Payee),
	)

	return FunctionResponse{
		ID:   call.ID,
		Name: call.Name,
		Response: map[string]any{
			"success":   true,
			"expenseId": expense.ID,
		},
	}
}

// handleGoAway winds the session down cleanly before the server closes
// the connection.
func (c *Controller) handleGoAway(sess *session, g *GoAway) {
	c.logger.Warn("Endpoint ending connection",
		slog.String("session_id", sess.id),
		slog.String("time_left", g.TimeLeft),
	)
	c.remoteClose(sess)
}

// remoteClose returns the controller to idle after the endpoint ends the
// session, whether by goAway or a plain close frame. A remote close is a
// state change, not an error.
func (c *Controller) remoteClose(sess *session) {
	c.mu.Lock()
	if c.sess != sess {
		c.mu.Unlock()
		return
	}
	c.sess = nil
	c.status = StatusIdle
	c.mu.Unlock()

	sess.cancel()
	sess.conn.Close()
	sess.sched.Stop()
	c.metrics.RecordSessionEnded(time.Since(sess.startTime).Seconds(), false)
}

func failureResponse(call FunctionCall, reason string) FunctionResponse {
	return FunctionResponse{
		ID:   call.ID,
		Name: call.Name,
		Response: map[string]any{
			"success": false,
			"error":   reason,
		},
	}
}

// shutdown releases all session resources and waits for its goroutines.
func (s *session) shutdown() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.conn != nil {
		s.conn.Close()
	}
	s.sched.Stop()
	s.wg.Wait()
}
