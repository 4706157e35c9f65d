package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

// flushTimeout bounds the server round trip when ctx has no deadline.
const flushTimeout = 5 * time.Second

// NATS publishes each document as JSON on prefix.namespace.
type NATS struct {
	conn   *nats.Conn
	prefix string
	owned  bool
	logger *logging.Logger
}

// DialNATS connects to cfg.URL. Close drains the connection.
func DialNATS(cfg config.NATSConfig, logger *logging.Logger) (*NATS, error) {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("repodescribe"),
		nats.MaxReconnects(5),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", cfg.URL, err)
	}
	s := NewNATS(nc, cfg.SubjectPrefix, logger)
	s.owned = true
	return s, nil
}

// NewNATS publishes over an existing connection, which the caller keeps.
func NewNATS(nc *nats.Conn, prefix string, logger *logging.Logger) *NATS {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &NATS{conn: nc, prefix: prefix, logger: logger}
}

// Subject returns the subject used for namespace.
func (n *NATS) Subject(namespace string) string {
	if n.prefix == "" {
		return namespace
	}
	return n.prefix + "." + namespace
}

func (n *NATS) Upload(ctx context.Context, doc Document, namespace string) error {
	if err := ValidateNamespace(namespace); err != nil {
		return storageError("nats", namespace, err)
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return storageError("nats", namespace, err)
	}

	subject := n.Subject(namespace)
	msg := nats.NewMsg(subject)
	msg.Data = data
	msg.Header.Set("Content-Type", "application/json")
	msg.Header.Set(nats.MsgIdHdr, doc.ID)
	if err := n.conn.PublishMsg(msg); err != nil {
		return storageError("nats", namespace, err)
	}
	fctx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	if err := n.conn.FlushWithContext(fctx); err != nil {
		return storageError("nats", namespace, fmt.Errorf("flushing: %w", err))
	}
	n.logger.Info(ctx, "summary published", zap.String("subject", subject), zap.String("id", doc.ID))
	return nil
}

func (n *NATS) Close() error {
	if !n.owned {
		return nil
	}
	return n.conn.Drain()
}
