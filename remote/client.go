// Package remote submits scheduled circuits to a hardware backend over a
// websocket and waits for their probability results.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"qbranch/circuit"
	"qbranch/schedule"
	"qbranch/state"
)

var (
	// ErrMalformedResult is returned when a result frame carries no usable
	// probability array.
	ErrMalformedResult = errors.New("remote: malformed result")
	// ErrClosed is returned by Run once the client is closed or its
	// connection has failed.
	ErrClosed = errors.New("remote: client closed")
	// ErrLogin is returned by Dial when the backend refuses the credentials.
	ErrLogin = errors.New("remote: login refused")
	// ErrRejected is returned when the backend refuses a task.
	ErrRejected = errors.New("remote: task rejected")
	// ErrUnsupported is returned for circuits the backend cannot run.
	ErrUnsupported = errors.New("remote: unsupported circuit")
)

const (
	typeLogin            = "login"
	typeLoginResponse    = "login_response"
	typePushTask         = "push_task"
	typePushTaskResponse = "push_task_response"
	typeTaskFinished     = "task_finished"

	statusOK = "ok"
)

// Message is one JSON frame on the wire.
type Message struct {
	Type     string      `json:"type"`
	TaskID   string      `json:"task_id,omitempty"`
	User     string      `json:"user,omitempty"`
	Password string      `json:"password,omitempty"`
	Status   string      `json:"status,omitempty"`
	Message  string      `json:"message,omitempty"`
	TaskName string      `json:"task_name,omitempty"`
	TaskDesc string      `json:"task_desc,omitempty"`
	QNum     int         `json:"qnum,omitempty"`
	Circuit  []Operation `json:"circuit,omitempty"`
	Result   string      `json:"result,omitempty"`
}

// Operation is the wire form of a scheduled gate. Angle is in degrees.
type Operation struct {
	Name     string   `json:"name"`
	TimeSlot int      `json:"time_slot"`
	Qubits   []int    `json:"qubits"`
	Angle    *float64 `json:"angle,omitempty"`
}

// Task is one circuit ready for submission.
type Task struct {
	Name        string
	Description string
	Qubits      int
	Operations  []schedule.Operation
}

// NewTask schedules c for the backend. The backend has no classical control,
// so conditioned gates are rejected.
func NewTask(name, desc string, c *circuit.Circuit) (Task, error) {
	dag, err := schedule.Build(c)
	if err != nil {
		return Task{}, err
	}
	ops := dag.Schedule()
	for _, op := range ops {
		if op.Cond != nil {
			return Task{}, fmt.Errorf("conditioned %s at slot %d: %w", op.Name, op.TimeSlot, ErrUnsupported)
		}
	}
	return Task{Name: name, Description: desc, Qubits: c.QubitNum, Operations: ops}, nil
}

func (t Task) wire() []Operation {
	out := make([]Operation, len(t.Operations))
	for i, op := range t.Operations {
		out[i] = Operation{Name: op.Name, TimeSlot: op.TimeSlot, Qubits: op.Qubits}
		if op.HasAngle {
			a := op.Angle
			out[i].Angle = &a
		}
	}
	return out
}

// Client owns one backend connection. Run calls are serialized.
type Client struct {
	conn   *websocket.Conn
	dialer *websocket.Dialer
	logger *log.Logger

	user     string
	password string

	mu     sync.Mutex
	closed atomic.Bool
}

type Option func(*Client)

// WithCredentials logs in with user and password right after connecting.
func WithCredentials(user, password string) Option {
	return func(c *Client) {
		c.user = user
		c.password = password
	}
}

func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithHandshakeTimeout bounds the websocket handshake.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		dialer := *c.dialer
		dialer.HandshakeTimeout = d
		c.dialer = &dialer
	}
}

// Dial connects to url and, when credentials are set, logs in.
func Dial(ctx context.Context, url string, opts ...Option) (*Client, error) {
	c := &Client{
		dialer: websocket.DefaultDialer,
		logger: log.New(io.Discard),
	}
	for _, opt := range opts {
		opt(c)
	}

	conn, _, err := c.dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("remote: dial %s: %w", url, err)
	}
	c.conn = conn
	c.logger.Debug("connected", "url", url)

	if c.user != "" {
		if err := c.login(ctx); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

func (c *Client) login(ctx context.Context) error {
	stop := c.watch(ctx)
	defer stop()

	if err := c.conn.WriteJSON(Message{Type: typeLogin, User: c.user, Password: c.password}); err != nil {
		return c.broken(ctx, err)
	}
	for {
		msg, err := c.read(ctx)
		if err != nil {
			return err
		}
		if msg.Type != typeLoginResponse {
			c.logger.Debug("ignoring frame before login", "type", msg.Type)
			continue
		}
		if msg.Status != statusOK {
			return fmt.Errorf("user %s: %s: %w", c.user, msg.Message, ErrLogin)
		}
		c.logger.Debug("logged in", "user", c.user)
		return nil
	}
}

// Run pushes task and blocks until its task_finished frame arrives or ctx
// ends. Frames for other tasks are skipped. A cancelled Run leaves the
// connection unusable, and later calls return ErrClosed.
func (c *Client) Run(ctx context.Context, task Task) ([]float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, ErrClosed
	}
	if task.Qubits < 1 || task.Qubits > state.MaxQubits {
		return nil, fmt.Errorf("task with %d qubits: %w", task.Qubits, state.ErrQubitOutOfRange)
	}

	stop := c.watch(ctx)
	defer stop()

	id := uuid.NewString()
	push := Message{
		Type:     typePushTask,
		TaskID:   id,
		TaskName: task.Name,
		TaskDesc: task.Description,
		QNum:     task.Qubits,
		Circuit:  task.wire(),
	}
	if err := c.conn.WriteJSON(push); err != nil {
		return nil, c.broken(ctx, err)
	}
	c.logger.Debug("task pushed", "task", id, "name", task.Name, "ops", len(push.Circuit))

	for {
		msg, err := c.read(ctx)
		if err != nil {
			return nil, err
		}
		switch msg.Type {
		case typePushTaskResponse:
			if msg.TaskID == id && msg.Status != statusOK {
				return nil, fmt.Errorf("task %s: %s: %w", id, msg.Message, ErrRejected)
			}
		case typeTaskFinished:
			if msg.TaskID != id {
				c.logger.Debug("ignoring result for another task", "task", msg.TaskID)
				continue
			}
			c.logger.Debug("task finished", "task", id)
			return ParseResult(msg.Result, task.Qubits)
		default:
			c.logger.Debug("ignoring frame", "type", msg.Type)
		}
	}
}

func (c *Client) read(ctx context.Context) (Message, error) {
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, c.broken(ctx, err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("frame: %v: %w", err, ErrMalformedResult)
	}
	return msg, nil
}

// watch interrupts blocking I/O when ctx ends.
func (c *Client) watch(ctx context.Context) func() bool {
	return context.AfterFunc(ctx, func() {
		now := time.Now()
		c.conn.SetReadDeadline(now)
		c.conn.SetWriteDeadline(now)
	})
}

func (c *Client) broken(ctx context.Context, err error) error {
	wasClosed := c.closed.Swap(true)
	c.conn.Close()
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case wasClosed:
		return ErrClosed
	}
	return fmt.Errorf("remote: %w", err)
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once and concurrently with Run.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	return c.conn.Close()
}
