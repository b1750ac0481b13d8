// Package main is the Kotae CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kotae/internal/builder"
	"github.com/hyperjump/kotae/internal/cache"
	"github.com/hyperjump/kotae/internal/config"
	"github.com/hyperjump/kotae/internal/embedding"
	"github.com/hyperjump/kotae/internal/generator"
	"github.com/hyperjump/kotae/internal/ingest"
	"github.com/hyperjump/kotae/internal/models"
	"github.com/hyperjump/kotae/internal/ollama"
	"github.com/hyperjump/kotae/internal/rag"
	"github.com/hyperjump/kotae/internal/retriever"
	"github.com/hyperjump/kotae/internal/server"
	"github.com/hyperjump/kotae/internal/store"
	"github.com/hyperjump/kotae/internal/vector"
	"github.com/hyperjump/kotae/internal/watcher"
	"github.com/hyperjump/kotae/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kotae/config.yaml"

// loadConfig loads config from path. When path is the default, it first looks
// for config.yaml in the current directory (for development); if that exists
// it is used. Returns the config and the path actually loaded.
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
	// Optional .env next to the working directory, e.g. KOTAE_REDIS_PASSWORD.
	_ = godotenv.Load()

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "query":
		runQuery()
	case "rebuild":
		runRebuild()
	case "ingest":
		runIngest()
	case "status":
		runStatus()
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
	debug := fs.Bool("debug", false, "enable debug logging")
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

	ctx := context.Background()
	if err := loadOrBuildSnapshot(ctx, cfg, components, logger); err != nil {
		logger.Fatal("Failed to prepare index snapshot", zap.Error(err))
	}

	watchCtx, watchCancel := context.WithCancel(ctx)
	defer watchCancel()
	snapWatcher := watcher.New(cfg.Storage.IndexRoot, components.Registry, logger)
	if err := snapWatcher.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start snapshot watcher", zap.Error(err))
	}

	srv := server.NewServer(
		components.Service,
		components.Builder,
		components.Registry,
		components.Store,
		cfg,
		logger,
	)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	watchCancel()
	snapWatcher.Stop()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(shutdownCtx)
}

// loadOrBuildSnapshot publishes a first build when none exists and the store
// has eligible rows; otherwise it loads the published one.
func loadOrBuildSnapshot(ctx context.Context, cfg *config.Config, c *Components, logger *zap.Logger) error {
	snap, err := vector.LoadCurrent(cfg.Storage.IndexRoot)
	switch {
	case err == nil:
		c.Registry.Swap(snap)
		logger.Info("index snapshot loaded",
			zap.String("build_id", snap.Manifest.BuildID),
			zap.Int("size", snap.Index.Size()),
		)
		return nil
	case errors.Is(err, os.ErrNotExist):
		count, countErr := c.Store.CountReviews(ctx)
		if countErr != nil {
			return countErr
		}
		if count == 0 {
			logger.Warn("no index snapshot and no reviews; serving degraded until data is ingested")
			return nil
		}
		logger.Info("no index snapshot, building at startup", zap.Int64("reviews", count))
		snap, buildErr := c.Builder.Build(ctx)
		if buildErr != nil {
			return buildErr
		}
		c.Registry.Swap(snap)
		return nil
	default:
		return err
	}
}

// buildQueryString joins all positional args with spaces so multi-word
// queries work the same with or without shell quoting.
func buildQueryString(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// queryArgsReorder moves flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them.
func queryArgsReorder(args []string) []string {
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

func runQuery() {
	queryArgs := queryArgsReorder(os.Args[2:])
	fs := flag.NewFlagSet("query", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	topK := fs.Int("top-k", models.DefaultTopK, "number of records to retrieve")
	maxLength := fs.Int("max-length", models.DefaultMaxLength, "maximum answer length in tokens")
	minLength := fs.Int("min-length", models.DefaultMinLength, "minimum answer length in tokens")
	productName := fs.String("product-name", "", "filter by product name")
	productType := fs.String("product-type", "", "filter by product type")
	country := fs.String("country", "", "filter by reviewer country")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(queryArgs)

	queryStr := buildQueryString(fs.Args())
	if queryStr == "" {
		fmt.Println("Usage: kotae query [flags] <question>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	req := models.QueryRequest{
		Query:       queryStr,
		TopK:        *topK,
		MaxLength:   *maxLength,
		MinLength:   *minLength,
		ProductName: *productName,
		ProductType: *productType,
		Country:     *country,
	}
	resp, err := queryViaHTTP(*serverURL, req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Query failed: %v\n", err)
		os.Exit(1)
	}

	switch *outputFormat {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(resp); err != nil {
			fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
			os.Exit(1)
		}
	case "text":
		if resp.Error != "" {
			fmt.Fprintf(os.Stderr, "Generation failed: %s\n", resp.Error)
			os.Exit(1)
		}
		fmt.Println(resp.Response)
		if len(resp.Records) > 0 {
			fmt.Printf("\nBased on %d review(s):\n", len(resp.Records))
			for _, rec := range resp.Records {
				fmt.Printf("  [%d] %s (%s): %s\n",
					rec.ReviewID, rec.ProductName, rec.Country, utils.Truncate(rec.ReviewText, 120))
			}
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

func queryViaHTTP(serverURL string, req models.QueryRequest) (*models.QueryResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := http.Post(serverURL+"/api/v1/query", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var response models.QueryResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &response, nil
}

func runRebuild() {
	fs := flag.NewFlagSet("rebuild", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "http://localhost:8080", "server URL (empty = rebuild in-process)")
	_ = fs.Parse(os.Args[2:])

	if *serverURL != "" {
		resp, err := http.Post(*serverURL+"/api/v1/rebuild", "application/json", nil)
		if err == nil {
			defer resp.Body.Close()
			b, _ := io.ReadAll(resp.Body)
			if resp.StatusCode != http.StatusOK {
				fmt.Fprintf(os.Stderr, "Rebuild failed (%d): %s\n", resp.StatusCode, string(b))
				os.Exit(1)
			}
			fmt.Printf("Rebuild complete: %s\n", strings.TrimSpace(string(b)))
			return
		}
		// Fall through to an in-process rebuild when no server is running; a
		// running server picks the publish up through its snapshot watcher.
		fmt.Printf("Server unreachable (%v), rebuilding in-process\n", err)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	snap, err := components.Builder.Build(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Rebuild complete: build %s, %d vectors, %d dimensions\n",
		snap.Manifest.BuildID, snap.Index.Size(), snap.Index.Dimensions())
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	usersPath := fs.String("users", "", "users file (.csv or .xlsx)")
	reviewsPath := fs.String("reviews", "", "reviews file (.csv or .xlsx)")
	rebuild := fs.Bool("rebuild", false, "rebuild the index after loading")
	_ = fs.Parse(os.Args[2:])

	if *usersPath == "" && *reviewsPath == "" {
		fmt.Println("Usage: kotae ingest [flags] --users <file> --reviews <file>")
		fs.PrintDefaults()
		os.Exit(1)
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	components, err := initializeComponents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx := context.Background()
	loader := ingest.New(components.Store, logger)
	if *usersPath != "" {
		n, err := loader.LoadUsers(ctx, *usersPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Loading users failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %d user(s) from %s\n", n, *usersPath)
	}
	if *reviewsPath != "" {
		n, err := loader.LoadReviews(ctx, *reviewsPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Loading reviews failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Loaded %d review(s) from %s\n", n, *reviewsPath)
	}
	if *rebuild {
		snap, err := components.Builder.Build(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Rebuild failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Rebuild complete: build %s, %d vectors\n", snap.Manifest.BuildID, snap.Index.Size())
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", "http://localhost:8080", "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	resp, err := http.Get(*serverURL + "/status")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		fmt.Fprintf(os.Stderr, "Server returned %d: %s\n", resp.StatusCode, string(b))
		os.Exit(1)
	}
	var status map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		fmt.Fprintf(os.Stderr, "Decode response: %v\n", err)
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
		fmt.Printf("users:    %v\n", status["users"])
		fmt.Printf("reviews:  %v\n", status["reviews"])
		switch index := status["index"].(type) {
		case map[string]interface{}:
			fmt.Printf("index:    build %v, %v vector(s), %v dimensions\n",
				index["build_id"], index["size"], index["dimensions"])
		default:
			fmt.Printf("index:    %v\n", index)
		}
		if du, ok := status["disk_usage_bytes"]; ok {
			fmt.Printf("disk:     %v bytes\n", du)
		}
	default:
		fmt.Fprintf(os.Stderr, "Unknown output format %q; use text or json\n", *outputFormat)
		os.Exit(1)
	}
}

// Components holds initialized services.
type Components struct {
	Store    *store.SQLiteStore
	Embedder embedding.Embedder
	Cache    cache.ResponseCache
	Registry *vector.Registry
	Builder  *builder.Builder
	Service  *rag.Service
}

func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if closer, ok := c.Cache.(io.Closer); ok {
		_ = closer.Close()
	}
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	st, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize record store: %w", err)
	}

	client := ollama.New(cfg.Ollama.URL)

	var embedder embedding.Embedder
	switch cfg.Embedding.Provider {
	case "ollama":
		embedder, err = embedding.NewOllamaEmbedder(client, cfg.Embedding.Model, cfg.Embedding.Dimensions, cfg.Embedding.CacheSize)
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to initialize ollama embedder: %w", err)
		}
		if !client.IsRunning(context.Background()) {
			logger.Warn("ollama server not reachable; embedding will fail until it is up",
				zap.String("url", cfg.Ollama.URL))
		}
	case "onnx":
		onnxEmbedder, onnxErr := embedding.NewONNXEmbedder(
			cfg.Embedding.ModelPath,
			cfg.Embedding.Dimensions,
			cfg.Embedding.MaxTokens,
			cfg.Embedding.CacheSize,
		)
		if onnxErr != nil {
			logger.Warn("ONNX embedder unavailable, falling back to mock", zap.Error(onnxErr))
			embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
		} else {
			embedder = onnxEmbedder
		}
	case "mock":
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	default:
		_ = st.Close()
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Embedding.Provider)
	}

	var responseCache cache.ResponseCache
	switch cfg.Cache.Backend {
	case "redis":
		redisCache := cache.NewRedisCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB, logger)
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if pingErr := redisCache.Ping(pingCtx); pingErr != nil {
			logger.Warn("redis not reachable; cache degrades to misses", zap.Error(pingErr))
		}
		cancel()
		responseCache = redisCache
	case "memory":
		responseCache = cache.NewMemoryCache()
	default:
		_ = st.Close()
		_ = embedder.Close()
		return nil, fmt.Errorf("unknown cache backend %q", cfg.Cache.Backend)
	}

	registry := vector.NewRegistry()
	b := builder.New(st, embedder, cfg.Storage.IndexRoot, cfg.Build.BatchSize, cfg.Build.Parallelism, logger)
	r := retriever.New(embedder, registry, st, logger)
	g := generator.New(
		generator.NewOllamaModel(client, cfg.Generation.Model),
		cfg.Generation.ContextBudget,
		cfg.Generation.Timeout(),
		logger,
	)
	svc := rag.New(r, g, responseCache, cfg.Cache.TTL(), logger)

	return &Components{
		Store:    st,
		Embedder: embedder,
		Cache:    responseCache,
		Registry: registry,
		Builder:  b,
		Service:  svc,
	}, nil
}

func printUsage() {
	fmt.Println(`kotae - retrieval-augmented answers over customer reviews

Usage:
  kotae server [flags]             Start the HTTP server
  kotae query [flags] <question>   Ask a question against a running server
  kotae rebuild [flags]            Rebuild and publish the vector index
  kotae ingest [flags]             Load users/reviews from CSV or XLSX
  kotae status [flags]             Show store and index status
  kotae version                    Show version
  kotae help                       Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kotae/config.yaml)
  --debug            Enable debug logging

Query Flags:
  --server string        Server URL (default: http://localhost:8080)
  --top-k int            Number of records to retrieve (default: 5)
  --max-length int       Maximum answer length in tokens (default: 100)
  --min-length int       Minimum answer length in tokens (default: 25)
  --product-name string  Filter by product name
  --product-type string  Filter by product type
  --country string       Filter by reviewer country
  --output string        Output format: text or json (default: text)

Rebuild Flags:
  --config string    Config file path (for in-process rebuild)
  --server string    Server URL; empty rebuilds in-process (default: http://localhost:8080)

Ingest Flags:
  --config string    Config file path
  --users string     Users file (.csv or .xlsx)
  --reviews string   Reviews file (.csv or .xlsx)
  --rebuild          Rebuild the index after loading

Examples:
  kotae server
  kotae ingest --users users.csv --reviews reviews.xlsx --rebuild
  kotae query what do people say about battery life
  kotae query --product-type phone --output json "battery life"
  kotae rebuild
  kotae status --output json`)
}
