package control

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vnykmshr/greenpool/internal/logging"
	gferrors "github.com/vnykmshr/greenpool/pkg/common/errors"
	"github.com/vnykmshr/greenpool/pkg/common/validation"
)

// DefaultChannel is the pub/sub channel revoke messages travel on.
const DefaultChannel = "greenpool:revoke"

// Message is the JSON payload of a revoke request.
type Message struct {
	JobID  string `json:"job_id"`
	Signal string `json:"signal,omitempty"`
	Origin string `json:"origin,omitempty"`
}

// Terminator kills tracked jobs. *taskpool.TaskPool satisfies it.
type Terminator interface {
	TerminateJob(jobID string, sig os.Signal)
}

// Config holds configuration for a revoke listener.
type Config struct {
	// Redis client used to subscribe.
	Redis redis.UniversalClient

	// Channel to subscribe to (default: DefaultChannel).
	Channel string

	// Terminator receives every valid revoke.
	Terminator Terminator

	// InstanceID identifies this listener in logs (default: generated).
	InstanceID string

	// Logger receives listener events (default: discard).
	Logger *slog.Logger
}

// Listener applies revoke messages from a Redis channel to a Terminator.
type Listener struct {
	rdb        redis.UniversalClient
	channel    string
	terminator Terminator
	instanceID string
	logger     *slog.Logger

	readyOnce sync.Once
	ready     chan struct{}
	handled   atomic.Int64
	rejected  atomic.Int64
}

// NewListener validates cfg and creates a listener. Run starts it.
func NewListener(cfg Config) (*Listener, error) {
	if cfg.Redis == nil {
		return nil, validation.ValidateNotNil("control", "Redis", nil)
	}
	if cfg.Terminator == nil {
		return nil, validation.ValidateNotNil("control", "Terminator", nil)
	}
	if cfg.Channel == "" {
		cfg.Channel = DefaultChannel
	}
	if cfg.InstanceID == "" {
		cfg.InstanceID = GenerateInstanceID()
	}

	return &Listener{
		rdb:        cfg.Redis,
		channel:    cfg.Channel,
		terminator: cfg.Terminator,
		instanceID: cfg.InstanceID,
		logger: logging.OrDiscard(cfg.Logger).With(
			"component", "control", "channel", cfg.Channel, "instance", cfg.InstanceID),
		ready: make(chan struct{}),
	}, nil
}

// Ready is closed once the subscription is confirmed by Redis.
func (l *Listener) Ready() <-chan struct{} {
	return l.ready
}

// Handled returns how many revokes were passed to the Terminator.
func (l *Listener) Handled() int64 { return l.handled.Load() }

// Rejected returns how many messages could not be decoded.
func (l *Listener) Rejected() int64 { return l.rejected.Load() }

// Run subscribes and applies revokes until ctx is done. It returns nil on
// cancellation and an error if the subscription fails or is closed.
func (l *Listener) Run(ctx context.Context) error {
	sub := l.rdb.Subscribe(ctx, l.channel)
	defer sub.Close()

	// Receive blocks until Redis confirms the subscription.
	if _, err := sub.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return gferrors.NewOperationError("control", "subscribe", err).WithContext(l.channel)
	}
	l.readyOnce.Do(func() { close(l.ready) })
	l.logger.Info("revoke listener subscribed")

	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			l.logger.Info("revoke listener stopped", "handled", l.Handled())
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return gferrors.NewOperationError("control", "receive", gferrors.ErrClosed).WithContext(l.channel)
			}
			l.handle(msg.Payload)
		}
	}
}

func (l *Listener) handle(payload string) {
	var m Message
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		l.rejected.Add(1)
		l.logger.Warn("malformed revoke message", "error", err)
		return
	}
	if m.JobID == "" {
		l.rejected.Add(1)
		l.logger.Warn("revoke message without job id", "origin", m.Origin)
		return
	}

	sig, err := ParseSignal(m.Signal)
	if err != nil {
		// The intent to revoke is clear even if the signal is not.
		l.logger.Warn("unknown revoke signal, terminating without one", "job_id", m.JobID, "signal", m.Signal)
	}
	l.terminator.TerminateJob(m.JobID, sig)
	l.handled.Add(1)
	l.logger.Debug("revoke applied", "job_id", m.JobID, "signal", m.Signal, "origin", m.Origin)
}

// Revoke publishes a revoke for jobID on channel and returns the number of
// listeners that received it.
func Revoke(ctx context.Context, rdb redis.UniversalClient, channel, jobID string, sig os.Signal) (int64, error) {
	if err := validation.ValidateNotEmpty("control", "jobID", jobID); err != nil {
		return 0, err
	}
	if channel == "" {
		channel = DefaultChannel
	}

	m := Message{JobID: jobID, Origin: GenerateInstanceID()}
	if sig != nil {
		m.Signal = SignalName(sig)
	}
	payload, err := json.Marshal(m)
	if err != nil {
		return 0, fmt.Errorf("encode revoke: %w", err)
	}

	n, err := rdb.Publish(ctx, channel, payload).Result()
	if err != nil {
		return 0, gferrors.NewOperationError("control", "revoke", err).WithContext(jobID)
	}
	return n, nil
}

var signals = map[string]syscall.Signal{
	"SIGTERM": syscall.SIGTERM,
	"SIGKILL": syscall.SIGKILL,
	"SIGINT":  syscall.SIGINT,
	"SIGQUIT": syscall.SIGQUIT,
	"SIGHUP":  syscall.SIGHUP,
}

// ParseSignal maps names such as "SIGTERM" or "term" to a signal. An empty
// name yields a nil signal.
func ParseSignal(name string) (os.Signal, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	if name == "" {
		return nil, nil
	}
	if !strings.HasPrefix(name, "SIG") {
		name = "SIG" + name
	}
	sig, ok := signals[name]
	if !ok {
		return nil, gferrors.NewValidationError("control", "signal", name, "unsupported signal").
			WithHint("use one of SIGTERM, SIGKILL, SIGINT, SIGQUIT, SIGHUP")
	}
	return sig, nil
}

// SignalName is the inverse of ParseSignal for the supported signals.
func SignalName(sig os.Signal) string {
	if sig == nil {
		return ""
	}
	for name, s := range signals {
		if s == sig {
			return name
		}
	}
	return sig.String()
}

// GenerateInstanceID creates a unique identifier for this process.
func GenerateInstanceID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 4)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s-%d-%x-%d", hostname, os.Getpid(), randomBytes, time.Now().Unix())
}
