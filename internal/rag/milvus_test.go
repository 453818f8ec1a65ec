package rag

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestDefaultMilvusConfig(t *testing.T) {
	t.Setenv("MILVUS_ADDRESS", "")
	config := DefaultMilvusConfig()

	if config.Address != "localhost:19530" {
		t.Errorf("expected default address, got %s", config.Address)
	}
	if config.CollectionPrefix == "" {
		t.Error("expected non-empty collection prefix")
	}
	if config.M != 16 || config.EfConstruction != 256 || config.EfSearch != 64 {
		t.Errorf("unexpected HNSW parameters: %+v", config)
	}

	t.Setenv("MILVUS_ADDRESS", "milvus:19530")
	if got := DefaultMilvusConfig().Address; got != "milvus:19530" {
		t.Errorf("expected address from environment, got %s", got)
	}
}

func TestNewMilvusBackend_InvalidPrefix(t *testing.T) {
	config := DefaultMilvusConfig()
	config.CollectionPrefix = "bad-prefix"

	if _, err := NewMilvusBackend(context.Background(), config); err == nil {
		t.Error("expected error for invalid collection prefix")
	}
}

func TestMilvusExpr(t *testing.T) {
	tests := []struct {
		name  string
		where map[string]string
		want  string
	}{
		{name: "empty", where: nil, want: ""},
		{name: "video", where: map[string]string{FieldVideoID: "v1"}, want: `video_id == "v1"`},
		{
			name:  "sorted and mapped",
			where: map[string]string{FieldVideoID: "v1", FieldStart: "30", FieldCourseName: "go"},
			want:  `course_name == "go" && start_time == "30" && video_id == "v1"`,
		},
		{name: "escaped", where: map[string]string{FieldVideoID: `a"b\c`}, want: `video_id == "a\"b\\c"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := milvusExpr(tt.where); got != tt.want {
				t.Errorf("milvusExpr() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMilvusBackend_Attach_MissingRef(t *testing.T) {
	b := &MilvusBackend{config: DefaultMilvusConfig()}
	if _, err := b.Attach(context.Background(), Manifest{}, nil); err == nil {
		t.Error("expected error for manifest without collection")
	}
}

// Integration test: build, reload and filtered search against a live Milvus.
func TestMilvusBackend_Integration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test")
	}
	if os.Getenv("MILVUS_ADDRESS") == "" {
		t.Skip("MILVUS_ADDRESS not set")
	}

	ctx := context.Background()
	config := DefaultMilvusConfig()
	config.CollectionPrefix = "lectern_test_integration"

	backend, err := NewMilvusBackend(ctx, config)
	if err != nil {
		t.Fatalf("failed to create backend: %v", err)
	}
	defer func() {
		_ = backend.Retire(ctx)
		backend.Close()
	}()

	emb := newMockEmbedder(t)
	indexConfig := DefaultIndexConfig()
	indexConfig.Path = filepath.Join(t.TempDir(), "index.idx")

	ix, err := NewIndex(indexConfig, emb, backend, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create index: %v", err)
	}

	manifest, err := ix.Build(ctx, testChunks(), BuildOptions{})
	if err != nil {
		t.Fatalf("build failed: %v", err)
	}
	if manifest.EngineRef == "" {
		t.Fatal("expected a collection reference in the manifest")
	}

	ix.Invalidate()
	snap, err := ix.MustLoad(ctx)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	hits, err := snap.Search(ctx, "goroutines", 10, VideoFilter("v2"))
	if err != nil {
		t.Fatalf("search failed: %v", err)
	}
	if len(hits) == 0 {
		t.Fatal("expected hits for v2")
	}
	for _, h := range hits {
		if h.Chunk.VideoID != "v2" {
			t.Errorf("filter leaked chunk from %s", h.Chunk.VideoID)
		}
	}

	stats, err := snap.EngineStats(ctx)
	if err != nil {
		t.Fatalf("stats failed: %v", err)
	}
	if stats["collection"] != manifest.EngineRef {
		t.Errorf("stats report collection %s, expected %s", stats["collection"], manifest.EngineRef)
	}
}
