package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
)

const BackendMilvus = "milvus"

// Common errors for Milvus operations
var (
	ErrInvalidDimension = errors.New("invalid vector dimension")
	ErrConnectionFailed = errors.New("failed to connect to Milvus")
	ErrInsertFailed     = errors.New("failed to insert records")
	ErrSearchFailed     = errors.New("failed to search vectors")
	ErrMissingMilvusRef = errors.New("milvus collection missing")
)

// milvusFields maps filter keys to column names; bare start/end collide
// with expression keywords.
var milvusFields = map[string]string{
	FieldVideoID:    FieldVideoID,
	FieldCourseName: FieldCourseName,
	FieldStart:      "start_time",
	FieldEnd:        "end_time",
}

var collectionPrefixPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// insertBatchSize keeps each gRPC insert well below Milvus message limits.
const insertBatchSize = 1000

// MilvusConfig holds configuration for Milvus connection and collections
type MilvusConfig struct {
	Address          string // Milvus server address (e.g., "localhost:19530")
	CollectionPrefix string // Each build creates <prefix>_<unix nanos>

	// HNSW index parameters
	M              int // HNSW M parameter (default: 16)
	EfConstruction int // HNSW efConstruction (default: 256)
	EfSearch       int // HNSW ef at query time (default: 64)
}

// DefaultMilvusConfig returns default configuration from environment variables
func DefaultMilvusConfig() MilvusConfig {
	address := os.Getenv("MILVUS_ADDRESS")
	if address == "" {
		address = "localhost:19530"
	}

	return MilvusConfig{
		Address:          address,
		CollectionPrefix: "lectern_chunks",
		M:                16,
		EfConstruction:   256,
		EfSearch:         64,
	}
}

// MilvusBackend stores each build in its own collection so that readers of
// the previous build are unaffected until the new manifest is persisted.
type MilvusBackend struct {
	client client.Client
	config MilvusConfig
}

// NewMilvusBackend connects to Milvus.
func NewMilvusBackend(ctx context.Context, config MilvusConfig) (*MilvusBackend, error) {
	if !collectionPrefixPattern.MatchString(config.CollectionPrefix) {
		return nil, fmt.Errorf("invalid collection prefix %q", config.CollectionPrefix)
	}

	c, err := client.NewGrpcClient(ctx, config.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}

	return &MilvusBackend{
		client: c,
		config: config,
	}, nil
}

func (m *MilvusBackend) Name() string { return BackendMilvus }

// Materialize creates a new collection, indexes it and inserts all chunks.
func (m *MilvusBackend) Materialize(ctx context.Context, manifest Manifest, chunks []EmbeddedChunk) (Engine, string, error) {
	if manifest.Dimension <= 0 {
		return nil, "", ErrInvalidDimension
	}

	name := fmt.Sprintf("%s_%d", m.config.CollectionPrefix, time.Now().UnixNano())
	if err := m.createCollection(ctx, name, manifest.Dimension); err != nil {
		return nil, "", err
	}

	if err := m.insert(ctx, name, manifest.Dimension, chunks); err != nil {
		_ = m.Drop(ctx, name)
		return nil, "", err
	}

	return &milvusEngine{backend: m, collection: name, dimension: manifest.Dimension}, name, nil
}

// Attach loads the collection named by the manifest.
func (m *MilvusBackend) Attach(ctx context.Context, manifest Manifest, chunks []EmbeddedChunk) (Engine, error) {
	if manifest.EngineRef == "" {
		return nil, fmt.Errorf("%w: manifest has no collection reference", ErrMissingMilvusRef)
	}

	has, err := m.client.HasCollection(ctx, manifest.EngineRef)
	if err != nil {
		return nil, fmt.Errorf("failed to check collection existence: %w", err)
	}
	if !has {
		return nil, fmt.Errorf("%w: %s", ErrMissingMilvusRef, manifest.EngineRef)
	}

	if err := m.client.LoadCollection(ctx, manifest.EngineRef, false); err != nil {
		return nil, fmt.Errorf("failed to load collection: %w", err)
	}

	return &milvusEngine{backend: m, collection: manifest.EngineRef, dimension: manifest.Dimension}, nil
}

// Drop deletes a collection.
func (m *MilvusBackend) Drop(ctx context.Context, ref string) error {
	if ref == "" {
		return nil
	}
	if err := m.client.DropCollection(ctx, ref); err != nil {
		return fmt.Errorf("failed to drop collection %s: %w", ref, err)
	}
	return nil
}

// Retire drops every collection under the configured prefix except keep.
func (m *MilvusBackend) Retire(ctx context.Context, keep ...string) error {
	collections, err := m.client.ListCollections(ctx)
	if err != nil {
		return fmt.Errorf("failed to list collections: %w", err)
	}

	keepSet := make(map[string]bool, len(keep))
	for _, k := range keep {
		keepSet[k] = true
	}

	var errs []error
	for _, c := range collections {
		if !strings.HasPrefix(c.Name, m.config.CollectionPrefix+"_") || keepSet[c.Name] {
			continue
		}
		if err := m.Drop(ctx, c.Name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close releases resources and closes the Milvus connection
func (m *MilvusBackend) Close() error {
	if m.client != nil {
		return m.client.Close()
	}
	return nil
}

func (m *MilvusBackend) createCollection(ctx context.Context, name string, dimension int) error {
	varchar := func(field string, maxLen int) *entity.Field {
		return &entity.Field{
			Name:     field,
			DataType: entity.FieldTypeVarChar,
			TypeParams: map[string]string{
				"max_length": strconv.Itoa(maxLen),
			},
		}
	}

	schema := &entity.Schema{
		CollectionName: name,
		AutoID:         true,
		Fields: []*entity.Field{
			{
				Name:       "id",
				DataType:   entity.FieldTypeInt64,
				PrimaryKey: true,
				AutoID:     true,
			},
			varchar("chunk_id", 64),
			varchar(FieldVideoID, 256),
			varchar(FieldCourseName, 256),
			varchar(milvusFields[FieldStart], 32),
			varchar(milvusFields[FieldEnd], 32),
			{
				Name:     "embedding",
				DataType: entity.FieldTypeFloatVector,
				TypeParams: map[string]string{
					"dim": strconv.Itoa(dimension),
				},
			},
		},
	}

	if err := m.client.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
		return fmt.Errorf("failed to create collection: %w", err)
	}

	idx, err := entity.NewIndexHNSW(entity.COSINE, m.config.M, m.config.EfConstruction)
	if err != nil {
		_ = m.Drop(ctx, name)
		return fmt.Errorf("failed to create index config: %w", err)
	}

	if err := m.client.CreateIndex(ctx, name, "embedding", idx, false); err != nil {
		_ = m.Drop(ctx, name)
		return fmt.Errorf("failed to create index: %w", err)
	}

	if err := m.client.LoadCollection(ctx, name, false); err != nil {
		_ = m.Drop(ctx, name)
		return fmt.Errorf("failed to load collection: %w", err)
	}

	return nil
}

func (m *MilvusBackend) insert(ctx context.Context, name string, dimension int, chunks []EmbeddedChunk) error {
	for start := 0; start < len(chunks); start += insertBatchSize {
		end := min(start+insertBatchSize, len(chunks))
		batch := chunks[start:end]

		chunkIDs := make([]string, len(batch))
		videoIDs := make([]string, len(batch))
		courses := make([]string, len(batch))
		starts := make([]string, len(batch))
		ends := make([]string, len(batch))
		vectors := make([][]float32, len(batch))

		for i, ec := range batch {
			meta := chunkMetadata(ec.Chunk)
			chunkIDs[i] = ec.Chunk.ID
			videoIDs[i] = meta[FieldVideoID]
			courses[i] = meta[FieldCourseName]
			starts[i] = meta[FieldStart]
			ends[i] = meta[FieldEnd]
			vectors[i] = ec.Vector
		}

		columns := []entity.Column{
			entity.NewColumnVarChar("chunk_id", chunkIDs),
			entity.NewColumnVarChar(FieldVideoID, videoIDs),
			entity.NewColumnVarChar(FieldCourseName, courses),
			entity.NewColumnVarChar(milvusFields[FieldStart], starts),
			entity.NewColumnVarChar(milvusFields[FieldEnd], ends),
			entity.NewColumnFloatVector("embedding", dimension, vectors),
		}

		if _, err := m.client.Insert(ctx, name, "", columns...); err != nil {
			return fmt.Errorf("%w: %v", ErrInsertFailed, err)
		}
	}

	// Flush to ensure data is persisted
	if err := m.client.Flush(ctx, name, false); err != nil {
		return fmt.Errorf("failed to flush data: %w", err)
	}
	return nil
}

type milvusEngine struct {
	backend    *MilvusBackend
	collection string
	dimension  int
}

// Search performs top-K similarity search filtered by metadata equality
func (e *milvusEngine) Search(ctx context.Context, vector []float32, k int, where map[string]string) ([]ScoredID, error) {
	if len(vector) != e.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrInvalidDimension, e.dimension, len(vector))
	}

	sp, err := entity.NewIndexHNSWSearchParam(e.backend.config.EfSearch)
	if err != nil {
		return nil, fmt.Errorf("failed to create search params: %w", err)
	}

	results, err := e.backend.client.Search(
		ctx,
		e.collection,
		nil, // partition names
		milvusExpr(where),
		[]string{"chunk_id"},
		[]entity.Vector{entity.FloatVector(vector)},
		"embedding",
		entity.COSINE,
		k,
		sp,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}

	if len(results) == 0 {
		return []ScoredID{}, nil
	}

	ids := make([]ScoredID, 0, results[0].ResultCount)
	for i := 0; i < results[0].ResultCount; i++ {
		for _, field := range results[0].Fields {
			if field.Name() != "chunk_id" {
				continue
			}
			col, ok := field.(*entity.ColumnVarChar)
			if !ok {
				return nil, fmt.Errorf("%w: unexpected chunk_id column type %T", ErrSearchFailed, field)
			}
			ids = append(ids, ScoredID{ID: col.Data()[i], Score: results[0].Scores[i]})
		}
	}

	return ids, nil
}

// Stats returns collection statistics
func (e *milvusEngine) Stats(ctx context.Context) (map[string]string, error) {
	stats, err := e.backend.client.GetCollectionStatistics(ctx, e.collection)
	if err != nil {
		return nil, fmt.Errorf("failed to get stats: %w", err)
	}

	out := map[string]string{
		"engine":     BackendMilvus,
		"collection": e.collection,
	}
	for k, v := range stats {
		out[k] = v
	}
	return out, nil
}

// milvusExpr renders an equality filter as a boolean expression with keys in
// a fixed order.
func milvusExpr(where map[string]string) string {
	if len(where) == 0 {
		return ""
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, len(keys))
	for i, k := range keys {
		clauses[i] = fmt.Sprintf(`%s == "%s"`, milvusFields[k], escapeExprString(where[k]))
	}
	return strings.Join(clauses, " && ")
}

func escapeExprString(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
