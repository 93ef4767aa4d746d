// Command ragcore answers questions about a single document from the
// terminal. It wires the configured providers, optionally ingests a local
// text file into the vector store, and reads questions from stdin.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/google/uuid"
	"github.com/joho/godotenv"

	ragcore "github.com/scholarmind/ragcore"
	"github.com/scholarmind/ragcore/common/logger"
	"github.com/scholarmind/ragcore/config"
	"github.com/scholarmind/ragcore/conversation"
	"github.com/scholarmind/ragcore/embedding"
	"github.com/scholarmind/ragcore/llm"
	"github.com/scholarmind/ragcore/schema"
	"github.com/scholarmind/ragcore/vectordb"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to a YAML or JSON config file")
		docID      = flag.String("doc", "", "document id to answer questions about")
		ingestPath = flag.String("ingest", "", "plain-text file to chunk and index under -doc before answering")
		owner      = flag.String("owner", "cli", "owner id for the conversation session")
	)
	flag.Parse()

	if err := run(*configPath, *docID, *ingestPath, *owner); err != nil {
		fmt.Fprintln(os.Stderr, "ragcore:", err)
		os.Exit(1)
	}
}

func run(configPath, docID, ingestPath, owner string) error {
	_ = godotenv.Load()

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if err := logger.Setup(os.Stderr, cfg.Log.Format, cfg.Log.Level); err != nil {
		return err
	}
	if docID == "" {
		return fmt.Errorf("-doc is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := buildStore(ctx, cfg)
	if err != nil {
		return err
	}
	persist, err := buildPersistence(ctx, cfg)
	if err != nil {
		return err
	}

	var embedder embedding.Provider
	if p, err := embedding.NewOpenAIProvider(cfg.Embedding); err != nil {
		logger.Warnf("embedding provider unavailable, retrieval will be lexical only: %v", err)
	} else {
		embedder = p
	}
	generator, err := llm.NewOpenAIProvider(cfg.LLM)
	if err != nil {
		return fmt.Errorf("llm provider: %w", err)
	}

	deps := ragcore.Deps{Embedder: embedder, Generator: generator, Store: store, Persistence: persist}
	svc, err := ragcore.New(cfg, deps)
	if err != nil {
		return err
	}

	if ingestPath != "" {
		n, err := ingestFile(ctx, store, embedder, docID, ingestPath)
		if err != nil {
			return fmt.Errorf("ingest %s: %w", ingestPath, err)
		}
		logger.Infof("indexed %d chunks from %s into %s", n, ingestPath, docID)
	}

	return repl(ctx, svc, docID, owner)
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	return config.LoadFile(path)
}

func buildStore(ctx context.Context, cfg *config.Config) (vectordb.Store, error) {
	switch cfg.VectorDB.Provider {
	case "milvus":
		return vectordb.NewMilvusStore(ctx, cfg.VectorDB)
	default:
		return vectordb.NewMemoryStore(), nil
	}
}

func buildPersistence(ctx context.Context, cfg *config.Config) (conversation.Persistence, error) {
	switch cfg.Session.Backend {
	case "dynamodb":
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Session.Region))
		if err != nil {
			return nil, fmt.Errorf("aws config: %w", err)
		}
		return conversation.NewDynamoPersistence(dynamodb.NewFromConfig(awsCfg), cfg.Session.Table)
	default:
		return conversation.NewMemoryPersistence(), nil
	}
}

// chunkIndexer is the write side both concrete stores provide. The retrieval
// core itself only reads.
type chunkIndexer interface {
	Upsert(ctx context.Context, documentID string, chunks []schema.Chunk) error
}

// ingestFile splits a plain-text file on blank lines and indexes each
// non-empty block as one chunk. Blocks are embedded when an embedding
// provider is configured; otherwise only the lexical path can reach them.
func ingestFile(ctx context.Context, store vectordb.Store, embedder embedding.Provider, docID, path string) (int, error) {
	indexer, ok := store.(chunkIndexer)
	if !ok {
		return 0, fmt.Errorf("store does not support ingestion")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	blocks := strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n\n")
	chunks := make([]schema.Chunk, 0, len(blocks))
	for _, block := range blocks {
		text := strings.TrimSpace(block)
		if text == "" {
			continue
		}
		chunk := schema.Chunk{
			ID:         uuid.NewString(),
			DocumentID: docID,
			Ordinal:    len(chunks),
			Text:       text,
		}
		if embedder != nil {
			vec, err := embedder.GetEmbedding(ctx, text)
			if err != nil {
				logger.Warnf("embedding chunk %d failed, indexing without a vector: %v", chunk.Ordinal, err)
			} else {
				chunk.Vector = vec
			}
		}
		chunks = append(chunks, chunk)
	}
	if len(chunks) == 0 {
		return 0, fmt.Errorf("no text blocks found")
	}
	return len(chunks), indexer.Upsert(ctx, docID, chunks)
}

func repl(ctx context.Context, svc *ragcore.Service, docID, owner string) error {
	fmt.Println("Ask a question about the document. Commands: /presets, /health, /quit")
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024)

	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue
		case line == "/quit":
			return nil
		case line == "/presets":
			for _, p := range svc.Presets() {
				fmt.Println(" -", p)
			}
			continue
		case line == "/health":
			printJSON(svc.Health())
			continue
		}

		resp, err := svc.Answer(ctx, ragcore.Request{
			Question:       line,
			DocumentID:     docID,
			OwnerID:        owner,
			IncludeHistory: true,
		})
		if err != nil {
			fmt.Println("error:", err)
			continue
		}
		printResponse(resp)
	}
}

func printResponse(resp schema.Response) {
	fmt.Println(resp.Answer.Text)
	for _, f := range resp.Answer.KeyFindings {
		fmt.Println("  *", f)
	}
	if resp.Answer.Limitations != "" {
		fmt.Println("Limitations:", resp.Answer.Limitations)
	}
	for _, c := range resp.Answer.Citations {
		fmt.Printf("  [chunk %d] %s\n", c.Ordinal, c.Excerpt)
	}
	if resp.Degraded {
		fmt.Printf("(degraded response, tier=%s)\n", resp.Tier)
	}
	fmt.Printf("(confidence %.2f, session %s)\n", resp.Answer.Confidence, resp.SessionID)
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}
