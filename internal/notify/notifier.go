// Package notify forwards build status transitions to NATS.
package notify

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	"git.home.luguber.info/inful/cicdsim/internal/events"
	ferrors "git.home.luguber.info/inful/cicdsim/internal/foundation/errors"
	"git.home.luguber.info/inful/cicdsim/internal/logfields"
)

// Publisher is the subset of *nats.Conn used by the notifier.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// Message is the JSON payload published for each transition.
type Message struct {
	BuildID       string    `json:"build_id"`
	Root          string    `json:"root"`
	TriggerID     string    `json:"trigger_id,omitempty"`
	Status        string    `json:"status"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Image         string    `json:"image,omitempty"`
	Commit        string    `json:"commit,omitempty"`
	At            time.Time `json:"at"`
}

// Notifier publishes build transitions to <subject>.<status>.
type Notifier struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

// New wraps an existing publisher.
func New(pub Publisher, subject string, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{pub: pub, subject: subject, logger: logger}
}

// Connect dials NATS and returns a notifier plus a close function that drains
// the connection.
func Connect(url, subject string, logger *slog.Logger) (*Notifier, func(), error) {
	if logger == nil {
		logger = slog.Default()
	}
	conn, err := nats.Connect(url,
		nats.Name("cicdsim"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", logfields.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", slog.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, nil, ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to connect to NATS").
			WithContext("url", url).
			Build()
	}

	logger.Info("NATS notifier connected", slog.String("url", url), slog.String("subject", subject))

	closeFn := func() {
		if err := conn.Drain(); err != nil {
			logger.Warn("NATS drain failed", logfields.Error(err))
			conn.Close()
		}
	}
	return New(conn, subject, logger), closeFn, nil
}

// Subject returns the subject a transition to status is published on.
func (n *Notifier) Subject(status string) string {
	return n.subject + "." + status
}

// Notify publishes one transition.
func (n *Notifier) Notify(evt events.BuildTransitioned) error {
	msg := Message{
		BuildID:       evt.BuildID,
		Root:          evt.Root,
		TriggerID:     evt.TriggerID,
		Status:        string(evt.To),
		FailureReason: evt.FailureReason,
		Image:         evt.Image,
		Commit:        evt.Commit,
		At:            evt.At,
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return ferrors.InternalError("failed to marshal notification").WithCause(err).Build()
	}

	subject := n.Subject(msg.Status)
	if err := n.pub.Publish(subject, data); err != nil {
		return ferrors.WrapError(err, ferrors.CategoryRuntime, "failed to publish notification").
			WithContext("subject", subject).
			Build()
	}

	n.logger.Debug("Published build notification",
		logfields.BuildID(msg.BuildID),
		logfields.Status(msg.Status),
		slog.String("subject", subject))
	return nil
}

// Run forwards transitions from ch until ctx is done or ch is closed.
// Publish failures are logged and do not stop the loop.
func (n *Notifier) Run(ctx context.Context, ch <-chan events.BuildTransitioned) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			if err := n.Notify(evt); err != nil {
				n.logger.Warn("Build notification failed",
					logfields.BuildID(evt.BuildID),
					logfields.Error(err))
			}
		}
	}
}
