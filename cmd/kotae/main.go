// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/answer"
	"github.com/hyperjump/kotae/internal/chunker"
	"github.com/hyperjump/kotae/internal/cli"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/provider"
	"github.com/hyperjump/kotae/internal/retrieval"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/storage"
	"github.com/hyperjump/kotae/internal/token"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watch"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used,
// so that "kotae server" from the project dir uses the project's config (including debug).
// Returns the config and the path that was actually loaded (for saving, etc.).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "ask":
		runAsk()
	case "search":
		runSearch()
	case "ingest":
		runIngest()
	case "delete":
		runDelete()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "version", "--version", "-v":
		fmt.Printf("kotae version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (retrieval, drop folder events, etc.)")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()

	var dropFolder *watch.DropFolder
	srvOpts := []server.Option{server.WithSnapshot(cfg.Storage.SnapshotPath)}
	if len(cfg.Watch.Directories) > 0 {
		watchOpts := []watch.Option{}
		if debugMode {
			watchOpts = append(watchOpts, watch.WithLogger(logger))
		}
		dropFolder = watch.New(
			components.Ingestor,
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			watchOpts...,
		)
		if err := dropFolder.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start drop folder", zap.Error(err))
		}
		dropFolder.SyncExistingFiles(watchCtx)
		srvOpts = append(srvOpts, server.WithWatch(dropFolder, resolvedConfigPath, cfg))
	}

	srv := server.NewServer(
		components.Orchestrator,
		components.Ingestor,
		components.Index,
		components.Store,
		&cfg.Server,
		logger,
		srvOpts...,
	)
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	if cfg.Storage.SnapshotPath != "" {
		if err := components.Index.Save(cfg.Storage.SnapshotPath); err != nil {
			logger.Warn("index snapshot save failed", zap.String("path", cfg.Storage.SnapshotPath), zap.Error(err))
		}
	}
	watchCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// argsReorder moves any flags (and their values) that appear after positional
// arguments to the front of the slice so that flag.Parse() sees them. Go's
// flag package stops at the first non-flag argument.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func runAsk() {
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	topK := fs.Int("top-k", 5, "number of chunks retrieved per question")
	contextWindow := fs.Int("context-window", 0, "neighboring chunks attached per side")
	dedup := fs.Bool("dedup", true, "drop near-duplicate chunks")
	boostRecent := fs.Bool("boost-recent", false, "prefer newer documents at equal similarity")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae ask [flags] <question> [question...]\n\n")
		fmt.Fprintf(fs.Output(), "Each positional argument is one question; all are answered in order.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.QueryRequest{
		Questions:     fs.Args(),
		TopK:          *topK,
		ContextWindow: *contextWindow,
		Deduplicate:   *dedup,
		BoostRecent:   *boostRecent,
	}
	var response models.QueryResponse
	if err := postJSON(*serverURL+"/api/v1/query", req, &response); err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteAnswers(os.Stdout, &response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	topK := fs.Int("top-k", 5, "number of results")
	contextWindow := fs.Int("context-window", 0, "neighboring chunks attached per side")
	dedup := fs.Bool("dedup", true, "drop near-duplicate chunks")
	boostRecent := fs.Bool("boost-recent", false, "prefer newer documents at equal similarity")
	combine := fs.String("combine", "average", "score combination for multiple queries: average, min, max, or weighted")
	outputFormat := fs.String("output", "text", "output format: text or json")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: kotae search [flags] <query> [query...]\n\n")
		fmt.Fprintf(fs.Output(), "Multiple queries are treated as paraphrases and their scores combined.\n\n")
		fs.PrintDefaults()
	}
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	req := &models.QueryRequest{
		Questions:     fs.Args(),
		TopK:          *topK,
		ContextWindow: *contextWindow,
		Deduplicate:   *dedup,
		BoostRecent:   *boostRecent,
		CombineMethod: models.CombineMethod(*combine),
	}
	var response struct {
		Results []*models.SearchResult `json:"results"`
	}
	if err := postJSON(*serverURL+"/api/v1/search", req, &response); err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response.Results, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	source := fs.String("source", "", "source label (default: file basename, or \"stdin\")")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	var text, label string
	if fs.NArg() < 1 {
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read stdin: %v\n", err)
			os.Exit(1)
		}
		text, label = string(data), "stdin"
	} else {
		path := fs.Arg(0)
		data, err := os.ReadFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read file: %v\n", err)
			os.Exit(1)
		}
		text, label = string(data), filepath.Base(path)
	}
	if *source != "" {
		label = *source
	}

	var created struct {
		ID     string `json:"id"`
		Chunks int    `json:"chunks"`
	}
	req := &models.IngestRequest{Text: text, SourceLabel: label}
	if err := postJSON(*serverURL+"/api/v1/documents", req, &created); err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Document ingested: %s (%d chunks)\n", created.ID, created.Chunks)
}

func runDelete() {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(argsReorder(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kotae delete [flags] <document-id>")
		os.Exit(1)
	}
	docID := fs.Arg(0)
	req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/documents/"+url.PathEscape(docID), nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Request failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Delete failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	fmt.Printf("Document deleted: %s\n", docID)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/api/v1/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Status failed (%d): %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status struct {
		Documents int64 `json:"documents"`
		Chunks    int64 `json:"chunks"`
		Vectors   int   `json:"vectors"`
		Dimension int   `json:"dimension"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Parse failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(status); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		fmt.Printf("documents:  %d   # count of indexed documents\n", status.Documents)
		fmt.Printf("chunks:     %d   # count of text chunks\n", status.Chunks)
		fmt.Printf("vectors:    %d   # count of vectors in the index\n", status.Vectors)
		fmt.Printf("dimension:  %d   # embedding dimension\n", status.Dimension)
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: kotae watch <add|remove|list> [path]")
		fmt.Println("  kotae watch add <path>     Add directory to watch")
		fmt.Println("  kotae watch remove <path>  Remove directory from watch")
		fmt.Println("  kotae watch list           List watched directories")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	_ = fs.Parse(argsReorder(os.Args[3:]))
	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kotae watch add <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body, _ := json.Marshal(map[string]interface{}{"path": path, "sync": true})
		resp, err := http.Post(*serverURL+"/api/v1/watch/directories", "application/json", bytes.NewReader(body))
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Add failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kotae watch remove <path>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, *serverURL+"/api/v1/watch/directories?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("Remove failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(*serverURL + "/api/v1/watch/directories")
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			fmt.Printf("List failed (%d): %s\n", resp.StatusCode, string(b))
			os.Exit(1)
		}
		var out struct {
			Directories []string `json:"directories"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
			fmt.Printf("Parse failed: %v\n", err)
			os.Exit(1)
		}
		for _, d := range out.Directories {
			fmt.Println(d)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// postJSON posts payload to endpoint and decodes a 2xx response into out.
func postJSON(endpoint string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// Components holds initialized services for the server.
type Components struct {
	Store        storage.Store
	Index        *vector.Index
	Ingestor     *ingest.Ingestor
	Orchestrator *answer.Orchestrator
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	client, err := provider.NewOpenAIClient(provider.OpenAIConfig{
		APIKey:         cfg.Provider.APIKey,
		BaseURL:        cfg.Provider.BaseURL,
		EmbeddingModel: cfg.Provider.EmbeddingModel,
		ChatModel:      cfg.Provider.ChatModel,
		MaxTokens:      cfg.Provider.MaxTokens,
		Temperature:    cfg.Provider.Temperature,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize provider: %w", err)
	}

	index := vector.New(vector.WithLogger(logger))
	if cfg.Storage.SnapshotPath != "" {
		if err := index.Load(cfg.Storage.SnapshotPath); err != nil {
			logger.Warn("index snapshot load skipped", zap.String("path", cfg.Storage.SnapshotPath), zap.Error(err))
		}
	}

	ch := chunker.New(chunker.Config{
		MinTokens:    cfg.Chunking.MinTokens,
		TargetTokens: cfg.Chunking.TargetTokens,
		MaxTokens:    cfg.Chunking.MaxTokens,
	}, token.Estimator{})

	ingestor := ingest.New(ch, client, index, store, ingest.Config{
		BatchSize:   cfg.Ingest.BatchSize,
		Concurrency: cfg.Ingest.Concurrency,
		Retry:       provider.DefaultRetryPolicy,
	}, logger)

	// Recover from a lost snapshot: re-embed documents still in the store.
	if index.Stats().TotalDocuments == 0 {
		if n, err := ingestor.Rebuild(context.Background()); err != nil {
			logger.Warn("index rebuild from store failed", zap.Error(err))
		} else if n > 0 {
			logger.Info("index rebuilt from store", zap.Int("documents", n))
		}
	}

	retriever := retrieval.New(index, retrieval.Config{
		DefaultTopK:         cfg.Retrieval.DefaultTopK,
		MaxTopK:             cfg.Retrieval.MaxTopK,
		DedupWindow:         cfg.Retrieval.DedupWindow,
		RecencyHalfLifeDays: cfg.Retrieval.RecencyHalfLifeDays,
		RecencyFactor:       cfg.Retrieval.RecencyFactor,
		DominanceMargin:     cfg.Retrieval.DominanceMargin,
	}, logger)

	orchestrator := answer.New(client, client, retriever, answer.Config{
		Retry:         provider.DefaultRetryPolicy,
		ContextChunks: cfg.Retrieval.ContextChunks,
	}, logger)

	return &Components{
		Store:        store,
		Index:        index,
		Ingestor:     ingestor,
		Orchestrator: orchestrator,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - Retrieval-augmented document question answering

Usage:
  kotae server [flags]             Start the HTTP server
  kotae ask [flags] <question>     Answer questions against indexed documents
  kotae search [flags] <query>     Retrieve matching chunks without generation
  kotae ingest [flags] [file]      Ingest a text file (or stdin)
  kotae delete [flags] <id>        Delete a document
  kotae status [flags]             Show index status
  kotae watch <add|remove|list>    Manage drop-folder directories
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging (retrieval, drop folder events, etc.)

Ask / Search Flags:
  --server string          Server URL (default: http://localhost:8080)
  --top-k int              Chunks retrieved per question (default: 5)
  --context-window int     Neighboring chunks attached per side (default: 0)
  --dedup                  Drop near-duplicate chunks (default: true)
  --boost-recent           Prefer newer documents at equal similarity
  --combine string         Search only: average, min, max, or weighted (default: average)
  --output string          Output format: text or json (default: text)

Examples:
  kotae server
  kotae ask "What is the grace period for premium payment?"
  kotae ask --top-k 10 --context-window 1 "What are the exclusions?" "What is covered?"
  kotae search --combine min "waiting period" "how long before coverage starts"
  kotae ingest policy.txt
  kotae delete 2f1c9a7e-3b9f-4f2d-8a4e-1d2c3b4a5f6e
  kotae status
  kotae watch add /path/to/docs`)
}
