package cmd

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Yates-Labs/lectern/internal/config"
	"github.com/Yates-Labs/lectern/internal/rag"
)

func writeTestConfig(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	corpus := filepath.Join(dir, "corpus", "go")
	if err := os.MkdirAll(corpus, 0o755); err != nil {
		t.Fatal(err)
	}
	transcript := "0-30,welcome to the course\n30-60,goroutines are cheap to start\n"
	if err := os.WriteFile(filepath.Join(corpus, "v1.csv"), []byte(transcript), 0o644); err != nil {
		t.Fatal(err)
	}

	content := `
corpus:
  root: ` + filepath.Join(dir, "corpus") + `
embedding:
  provider: hashing
  dimension: 32
llm:
  provider: ollama
  model: llama3
index:
  path: ` + filepath.Join(dir, "index", "lectern.idx") + `
log:
  level: error
`
	path := filepath.Join(dir, "lectern.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestIngestInspectAsk(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	path := writeTestConfig(t)

	out, err := execute(t, "--config", path, "ingest")
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !strings.Contains(out, "Indexed 2 chunks from 1 videos") {
		t.Errorf("unexpected ingest output:\n%s", out)
	}

	out, err = execute(t, "--config", path, "inspect")
	if err != nil {
		t.Fatalf("inspect failed: %v", err)
	}
	if !strings.Contains(out, "hashing-32") || !strings.Contains(out, "v1") {
		t.Errorf("unexpected inspect output:\n%s", out)
	}

	out, err = execute(t, "--config", path, "inspect", "v1")
	if err != nil {
		t.Fatalf("inspect video failed: %v", err)
	}
	if !strings.Contains(out, "goroutines are cheap") {
		t.Errorf("expected chunk text in output:\n%s", out)
	}

	exported := filepath.Join(t.TempDir(), "v1.json")
	out, err = execute(t, "--config", path, "inspect", "v1", "--export", exported)
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	data, err := os.ReadFile(exported)
	if err != nil {
		t.Fatalf("export file missing: %v", err)
	}
	if !strings.Contains(string(data), `"chunk_count": 2`) {
		t.Errorf("unexpected export:\n%s", data)
	}
	exportFile = ""

	if _, err := execute(t, "--config", path, "inspect", "missing"); err == nil {
		t.Error("expected error for unknown video")
	}

	// A moment past the end of the transcript is answered without the LLM.
	out, err = execute(t, "--config", path, "ask", "what is she saying right now?", "--video-id", "v1", "--at", "500")
	if err != nil {
		t.Fatalf("ask failed: %v", err)
	}
	if !strings.Contains(out, "8:20") {
		t.Errorf("expected apology naming the moment:\n%s", out)
	}
}

func TestInspect_NotBuilt(t *testing.T) {
	path := writeTestConfig(t)
	_, err := execute(t, "--config", path, "inspect")
	if err == nil || !strings.Contains(err.Error(), "lectern ingest") {
		t.Errorf("expected hint to run ingest, got %v", err)
	}
}

func TestWireConversions(t *testing.T) {
	c := &config.Config{
		Corpus:    config.CorpusConfig{Root: "r", Catalog: "c.yaml", Strict: false},
		Chunking:  config.ChunkingConfig{ChunkSize: 500, ChunkOverlap: 50},
		Embedding: config.EmbeddingConfig{Provider: "hashing", Dimension: 16, BatchSize: 8, Concurrency: 2, RequestsPerSecond: 3},
		LLM:       config.LLMConfig{Provider: "ollama", Model: "m", Temperature: 0.5, MaxTokens: 10, Timeout: time.Second},
		Index:     config.IndexConfig{Path: "p", Engine: "chromem", LoadTimeout: time.Second},
		Milvus:    config.MilvusConfig{Address: "a", CollectionPrefix: "x", M: 8, EfConstruction: 64, EfSearch: 32},
		Router:    config.RouterConfig{RetrievalK: 3, ScanLimit: 10, TimePhrases: []string{"this slide"}},
	}

	ic := ingestConfig(c)
	if !ic.Corpus.SkipInvalid || ic.Catalog != "c.yaml" || ic.Chunking.ChunkSize != 500 {
		t.Errorf("unexpected ingest config %+v", ic)
	}
	ix := indexConfig(c)
	if ix.Options.BatchSize != 8 || ix.Options.Concurrency != 2 || ix.Options.RequestsPerSecond != 3 {
		t.Errorf("unexpected index options %+v", ix.Options)
	}
	if lc := llmConfig(c); lc.Temperature != 0.5 || lc.Timeout != time.Second {
		t.Errorf("unexpected llm config %+v", lc)
	}
	if rc := routerConfig(c); rc.RetrievalK != 3 || len(rc.TimePhrases) != 1 {
		t.Errorf("unexpected router config %+v", rc)
	}
	if mc := milvusConfig(c); mc.Address != "a" || mc.EfSearch != 32 {
		t.Errorf("unexpected milvus config %+v", mc)
	}

	backend, err := newBackend(t.Context(), c)
	if err != nil {
		t.Fatal(err)
	}
	if backend.Name() != rag.BackendChromem {
		t.Errorf("expected chromem backend, got %s", backend.Name())
	}
	c.Index.Engine = "faiss"
	if _, err := newBackend(t.Context(), c); err == nil {
		t.Error("expected error for unknown engine")
	}
}
