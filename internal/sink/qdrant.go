package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"github.com/tmc/langchaingo/embeddings"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
	"github.com/fyrsmithlabs/repodescribe/internal/logging"
)

const instrumentationName = "github.com/fyrsmithlabs/repodescribe/internal/sink"

var tracer = otel.Tracer(instrumentationName)

// maxMessageSize bounds gRPC messages; one summary is far below it.
const maxMessageSize = 16 * 1024 * 1024

// qdrantPoints is the part of *qdrant.Client the sink uses.
type qdrantPoints interface {
	GetCollectionInfo(ctx context.Context, name string) (*qdrant.CollectionInfo, error)
	CreateCollection(ctx context.Context, req *qdrant.CreateCollection) error
	Upsert(ctx context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error)
	Close() error
}

// Qdrant upserts one point per summary over gRPC.
type Qdrant struct {
	client      qdrantPoints
	embedder    embeddings.Embedder
	vectorSize  int
	logger      *logging.Logger
	collections sync.Map
}

// DialQdrant connects and health-checks the server.
func DialQdrant(ctx context.Context, cfg config.QdrantConfig, emb embeddings.Embedder, logger *logging.Logger) (*Qdrant, error) {
	if cfg.Host == "" || cfg.Port == 0 {
		return nil, fmt.Errorf("%w: qdrant host and port required", ErrInvalidConfig)
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if !cfg.UseTLS {
		logger.Warn(ctx, "qdrant gRPC using plaintext (TLS disabled)", zap.String("host", cfg.Host))
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey.Value(),
		UseTLS: cfg.UseTLS,
		GrpcOptions: []grpc.DialOption{
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(maxMessageSize),
				grpc.MaxCallSendMsgSize(maxMessageSize),
			),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connecting to qdrant: %w", err)
	}

	hctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := client.HealthCheck(hctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("qdrant health check: %w", err)
	}
	return newQdrant(client, emb, cfg.VectorSize, logger), nil
}

func newQdrant(client qdrantPoints, emb embeddings.Embedder, vectorSize int, logger *logging.Logger) *Qdrant {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Qdrant{client: client, embedder: emb, vectorSize: vectorSize, logger: logger}
}

func (q *Qdrant) Upload(ctx context.Context, doc Document, namespace string) error {
	ctx, span := tracer.Start(ctx, "Qdrant.Upload")
	defer span.End()
	span.SetAttributes(attribute.String("collection", namespace))

	if err := ValidateNamespace(namespace); err != nil {
		return storageError("qdrant", namespace, err)
	}

	vector, err := q.embedder.EmbedQuery(ctx, doc.PageContent)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "embedding failed")
		return storageError("qdrant", namespace, fmt.Errorf("embedding: %w", err))
	}
	if q.vectorSize > 0 && len(vector) != q.vectorSize {
		return storageError("qdrant", namespace, fmt.Errorf("embedding has %d dimensions, collection expects %d", len(vector), q.vectorSize))
	}

	if err := q.ensureCollection(ctx, namespace, len(vector)); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "collection setup failed")
		return storageError("qdrant", namespace, err)
	}

	_, err = q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: namespace,
		Points:         []*qdrant.PointStruct{qdrantPoint(doc, vector)},
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "upsert failed")
		return storageError("qdrant", namespace, fmt.Errorf("upserting point: %w", err))
	}

	q.logger.Info(ctx, "summary stored in qdrant", zap.String("collection", namespace), zap.String("id", doc.ID))
	span.SetStatus(codes.Ok, "success")
	return nil
}

func (q *Qdrant) ensureCollection(ctx context.Context, name string, size int) error {
	if _, ok := q.collections.Load(name); ok {
		return nil
	}

	_, err := q.client.GetCollectionInfo(ctx, name)
	if err == nil {
		q.collections.Store(name, true)
		return nil
	}
	if st, ok := status.FromError(err); !ok || st.Code() != grpccodes.NotFound {
		return fmt.Errorf("checking collection: %w", err)
	}

	err = q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(size),
			Distance: qdrant.Distance_Cosine,
		}),
	})
	if err != nil {
		return fmt.Errorf("creating collection: %w", err)
	}
	q.collections.Store(name, true)
	return nil
}

func qdrantPoint(doc Document, vector []float32) *qdrant.PointStruct {
	payload := map[string]*qdrant.Value{
		"content": {Kind: &qdrant.Value_StringValue{StringValue: doc.PageContent}},
		"id":      {Kind: &qdrant.Value_StringValue{StringValue: doc.ID}},
	}
	for k, v := range doc.Metadata {
		payload[k] = &qdrant.Value{Kind: &qdrant.Value_StringValue{StringValue: v}}
	}
	return &qdrant.PointStruct{
		Id:      qdrant.NewIDUUID(doc.ID),
		Vectors: qdrant.NewVectors(vector...),
		Payload: payload,
	}
}

func (q *Qdrant) Close() error {
	return q.client.Close()
}
