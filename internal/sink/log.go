package sink

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

// Log writes each document as one JSON line.
type Log struct {
	mu     sync.Mutex
	w      io.Writer
	logger *logging.Logger
}

// NewLog writes to w, or stdout when w is nil.
func NewLog(w io.Writer, logger *logging.Logger) *Log {
	if w == nil {
		w = os.Stdout
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Log{w: w, logger: logger}
}

type logRecord struct {
	Namespace string `json:"namespace"`
	Document
}

func (l *Log) Upload(ctx context.Context, doc Document, namespace string) error {
	line, err := json.Marshal(logRecord{Namespace: namespace, Document: doc})
	if err != nil {
		return storageError("log", namespace, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.w.Write(line); err != nil {
		return storageError("log", namespace, err)
	}
	l.logger.Debug(ctx, "summary written", zap.String("namespace", namespace), zap.String("id", doc.ID))
	return nil
}

func (l *Log) Close() error { return nil }

// Discard drops documents. It is the sink when none is configured.
type Discard struct {
	logger *logging.Logger
}

// NewDiscard returns a sink that only logs.
func NewDiscard(logger *logging.Logger) *Discard {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Discard{logger: logger}
}

func (d *Discard) Upload(ctx context.Context, doc Document, namespace string) error {
	d.logger.Debug(ctx, "no sink configured, summary not stored",
		zap.String("namespace", namespace),
		zap.String("id", doc.ID),
	)
	return nil
}

func (d *Discard) Close() error { return nil }
