package sink

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	grpccodes "google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/fyrsmithlabs/repodescribe/internal/config"
)

type fakeQdrant struct {
	mu        sync.Mutex
	existing  map[string]bool
	created   []*qdrant.CreateCollection
	upserts   []*qdrant.UpsertPoints
	infoErr   error
	upsertErr error
}

func (f *fakeQdrant) GetCollectionInfo(_ context.Context, name string) (*qdrant.CollectionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	if !f.existing[name] {
		return nil, status.Error(grpccodes.NotFound, "collection not found")
	}
	return &qdrant.CollectionInfo{}, nil
}

func (f *fakeQdrant) CreateCollection(_ context.Context, req *qdrant.CreateCollection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	f.existing[req.CollectionName] = true
	return nil
}

func (f *fakeQdrant) Upsert(_ context.Context, req *qdrant.UpsertPoints) (*qdrant.UpdateResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return nil, f.upsertErr
	}
	f.upserts = append(f.upserts, req)
	return &qdrant.UpdateResult{}, nil
}

func (f *fakeQdrant) Close() error { return nil }

func TestQdrant_UploadCreatesCollectionOnce(t *testing.T) {
	fake := &fakeQdrant{existing: map[string]bool{}}
	q := newQdrant(fake, fakeEmbedder{dims: 4}, 4, nil)
	ctx := context.Background()

	require.NoError(t, q.Upload(ctx, summary.Document(), "octo_hello"))
	require.NoError(t, q.Upload(ctx, summary.Document(), "octo_hello"))

	require.Len(t, fake.created, 1)
	assert.Equal(t, "octo_hello", fake.created[0].CollectionName)
	require.Len(t, fake.upserts, 2)

	point := fake.upserts[0].Points[0]
	assert.Equal(t, summary.Document().ID, point.Id.GetUuid())
	assert.Equal(t, summary.Paragraph, point.Payload["content"].GetStringValue())
	assert.Equal(t, "octo", point.Payload["author"].GetStringValue())
}

func TestQdrant_ExistingCollection(t *testing.T) {
	fake := &fakeQdrant{existing: map[string]bool{"octo_hello": true}}
	q := newQdrant(fake, fakeEmbedder{dims: 4}, 0, nil)

	require.NoError(t, q.Upload(context.Background(), summary.Document(), "octo_hello"))
	assert.Empty(t, fake.created)
	assert.Len(t, fake.upserts, 1)
}

func TestQdrant_Failures(t *testing.T) {
	ctx := context.Background()

	q := newQdrant(&fakeQdrant{existing: map[string]bool{}}, fakeEmbedder{dims: 4}, 8, nil)
	err := q.Upload(ctx, summary.Document(), "octo_hello")
	require.ErrorIs(t, err, ErrStorage)
	assert.Contains(t, err.Error(), "dimensions")

	q = newQdrant(&fakeQdrant{existing: map[string]bool{}}, fakeEmbedder{dims: 4, err: errors.New("no quota")}, 4, nil)
	assert.ErrorIs(t, q.Upload(ctx, summary.Document(), "octo_hello"), ErrStorage)

	q = newQdrant(&fakeQdrant{existing: map[string]bool{}, infoErr: status.Error(grpccodes.Unavailable, "down")}, fakeEmbedder{dims: 4}, 4, nil)
	assert.ErrorIs(t, q.Upload(ctx, summary.Document(), "octo_hello"), ErrStorage)

	q = newQdrant(&fakeQdrant{existing: map[string]bool{"octo_hello": true}, upsertErr: errors.New("rejected")}, fakeEmbedder{dims: 4}, 4, nil)
	assert.ErrorIs(t, q.Upload(ctx, summary.Document(), "octo_hello"), ErrStorage)

	assert.ErrorIs(t, q.Upload(ctx, summary.Document(), "Not Valid"), ErrInvalidNamespace)
}

func TestDialQdrant_RequiresAddress(t *testing.T) {
	_, err := DialQdrant(context.Background(), config.QdrantConfig{}, fakeEmbedder{dims: 4}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestQdrantREST_Upload(t *testing.T) {
	var mu sync.Mutex
	var paths []string
	var bodies []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		paths = append(paths, r.URL.Path)
		bodies = append(bodies, string(body))
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"result":{"operation_id":1,"status":"completed"},"status":"ok","time":0.001}`))
	}))
	defer srv.Close()

	q, err := NewQdrantREST(config.QdrantConfig{URL: srv.URL}, fakeEmbedder{dims: 4}, nil)
	require.NoError(t, err)
	require.NoError(t, q.Upload(context.Background(), summary.Document(), "octo_hello"))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, paths)
	assert.Contains(t, paths[len(paths)-1], "/collections/octo_hello/points")
	assert.Contains(t, bodies[len(bodies)-1], "describes repositories")
}

func TestNewQdrantREST_InvalidURL(t *testing.T) {
	_, err := NewQdrantREST(config.QdrantConfig{URL: "not a url"}, fakeEmbedder{dims: 4}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}
