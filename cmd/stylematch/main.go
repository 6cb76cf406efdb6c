// Package main is the stylematch CLI entry point.
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
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/airrygarments/stylematch/internal/cli"
	"github.com/airrygarments/stylematch/internal/config"
	"github.com/airrygarments/stylematch/internal/inventory"
	"github.com/airrygarments/stylematch/internal/models"
	"github.com/airrygarments/stylematch/internal/outreach"
	"github.com/airrygarments/stylematch/internal/server"
	"github.com/airrygarments/stylematch/internal/storage"
	"github.com/airrygarments/stylematch/internal/watcher"
	"github.com/airrygarments/stylematch/pkg/utils"
)

var version = "dev"

const (
	defaultConfigPath = "/usr/local/etc/stylematch/config.yaml"
	defaultServerURL  = "http://localhost:8080"
)

// loadConfig loads config from path. When path is the default, config.yaml in the current
// directory takes precedence; when neither exists the built-in defaults are used. A .env
// file in the current directory and the process environment are applied last.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	cfg, resolved, err := readConfig(path)
	if err != nil {
		return nil, "", err
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, "", fmt.Errorf("failed to load .env: %w", err)
	}
	config.ApplyEnv(cfg)
	return cfg, resolved, nil
}

func readConfig(path string) (*config.Config, string, error) {
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
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg := &config.Config{}
			config.ApplyDefaults(cfg)
			return cfg, "", nil
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
	case "ingest":
		runIngest()
	case "search":
		runSearch()
	case "fetch":
		runFetch()
	case "status":
		runStatus()
	case "watch":
		runWatch()
	case "outreach":
		runOutreach()
	case "version", "--version", "-v":
		fmt.Printf("stylematch version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// setup loads config, builds the logger and initializes components for direct commands.
// The returned cleanup closes components and flushes the logger.
func setup(configPath string, debugFlag bool) (*Components, *zap.Logger, string, func()) {
	cfg, resolvedConfigPath, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)
	components, err := initializeComponents(context.Background(), cfg, logger, debugMode)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	return components, logger, resolvedConfigPath, func() {
		components.Close()
		_ = logger.Sync()
	}
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging (ingest runs, watched file changes, etc.)")
	_ = fs.Parse(os.Args[2:])

	components, logger, resolvedConfigPath, cleanup := setup(*configPath, *debug)
	defer cleanup()
	cfg := components.Config

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("backend", components.Store.Type()),
		zap.String("index", components.Index.Name()),
	)

	watchSvc := watcher.NewWatcher(
		cfg.Watch.Files,
		cfg.Watch.Debounce,
		func(path string) {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.RequestTimeout)
			defer cancel()
			report, err := components.ingest(ctx, path, "")
			if err != nil {
				logger.Warn("watch ingest failed", zap.String("path", path), zap.Error(err))
				return
			}
			logger.Info("watch ingest finished",
				zap.String("path", path),
				zap.String("run_id", report.RunID),
				zap.Int("inserted", report.Inserted),
				zap.Int("skipped", report.Skipped))
		},
		watcher.WithLogger(logger),
		watcher.WithExtensions(inventory.SupportedExtensions),
	)
	watchCtx, watchCancel := context.WithCancel(context.Background())
	defer watchCancel()
	if err := watchSvc.Start(watchCtx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	watchSvc.SyncExistingFiles()

	var generator server.EmailGenerator
	if pipeline, err := components.pipeline(); err != nil {
		logger.Warn("email generation disabled", zap.Error(err))
	} else {
		generator = pipeline
	}

	srv := server.NewServer(
		components.Engine,
		generator,
		components.Store,
		cfg,
		logger,
		watchSvc,
		resolvedConfigPath,
		components.Metrics,
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
	watchSvc.Stop()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

func runIngest() {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	imageRoot := fs.String("image-root", "", "directory relative Image paths resolve against (default: inventory.image_root, else the file's directory)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	components, _, _, cleanup := setup(*configPath, *debug)
	defer cleanup()

	path := components.Config.Inventory.Path
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}
	if path == "" {
		fmt.Println("Usage: stylematch ingest [flags] <inventory.csv|inventory.xlsx>")
		os.Exit(1)
	}

	report, err := components.ingest(context.Background(), path, *imageRoot)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ingest failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteIngestReport(os.Stdout, report, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// printSearchUsage prints search subcommand usage.
func printSearchUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: stylematch search [flags] <query>\n\n")
	fmt.Fprintf(fs.Output(), "Query is all remaining arguments joined by spaces. Multi-word queries work with or without quotes.\n\n")
	fs.PrintDefaults()
	fmt.Fprint(fs.Output(), `
  • --mode fabric matches the literal fabric composition (sparse only).
  • --mode likeliness matches overall visual similarity (dense only).
  • --weight blends both: 0 is pure fabric, 1 is pure likeliness. It overrides --mode.

Examples:
  stylematch search 100% cotton twill
  stylematch search --mode fabric "Shell: 60% wool, 40% polyester"
  stylematch search --weight 0.3 --top-k 5 quilted bomber jacket
`)
}

// buildSearchQuery joins all positional args with spaces so multi-word queries
// work the same with or without shell quoting.
func buildSearchQuery(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchArgsReorder moves any flags (and their values) that appear after the query
// to the front of the slice so that flag.Parse() sees them. Go's flag package
// stops at the first non-flag argument, so "stylematch search cotton --mode fabric"
// would otherwise leave --mode unparsed.
func searchArgsReorder(args []string) []string {
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

// flagSet reports whether name was given on the command line.
func flagSet(fs *flag.FlagSet, name string) bool {
	set := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

func runSearch() {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the index directly)")
	mode := fs.String("mode", "", "search mode: fabric or likeliness (default: likeliness)")
	weight := fs.Float64("weight", 0, "style similarity in [0,1]; overrides --mode")
	topK := fs.Int("top-k", 0, "number of results (default from config)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	fs.Usage = func() { printSearchUsage(fs) }
	_ = fs.Parse(searchArgsReorder(os.Args[2:]))

	queryStr := buildSearchQuery(fs.Args())
	if queryStr == "" {
		printSearchUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	req := &models.SearchRequest{
		Query: queryStr,
		Mode:  models.SearchMode(*mode),
		TopK:  *topK,
	}
	if flagSet(fs, "weight") {
		w := *weight
		req.Weight = &w
	}

	var response *models.SearchResponse
	var err error
	if *serverURL != "" {
		response, err = searchViaHTTP(*serverURL, req)
	} else {
		components, _, _, cleanup := setup(*configPath, false)
		defer cleanup()
		response, err = components.Engine.SearchText(context.Background(), req)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Search failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteSearchResults(os.Stdout, response, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func searchViaHTTP(serverURL string, req *models.SearchRequest) (*models.SearchResponse, error) {
	var response models.SearchResponse
	if err := postJSON(serverURL+"/api/v1/search", req, http.StatusOK, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

func runFetch() {
	fs := flag.NewFlagSet("fetch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Println("Usage: stylematch fetch [flags] <style-id>")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	id := fs.Arg(0)

	components, _, _, cleanup := setup(*configPath, false)
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), components.Config.Index.RequestTimeout)
	defer cancel()
	items, err := components.Index.Fetch(ctx, []string{id})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Fetch failed: %v\n", err)
		os.Exit(1)
	}
	item, ok := items[id]
	if !ok {
		fmt.Fprintf(os.Stderr, "Style not found: %s\n", id)
		os.Exit(1)
	}
	if err := cli.WriteItem(os.Stdout, item, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", defaultServerURL, "server URL (empty = open the index directly)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var status *models.Status
	var err error
	if *serverURL != "" {
		status, err = statusViaHTTP(*serverURL)
	} else {
		components, _, _, cleanup := setup(*configPath, false)
		defer cleanup()
		ctx, cancel := context.WithTimeout(context.Background(), components.Config.Index.RequestTimeout)
		defer cancel()
		status, err = storage.BuildStatus(ctx, components.Store, components.Index, components.Config)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	if err := cli.WriteStatus(os.Stdout, status, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(serverURL string) (*models.Status, error) {
	resp, err := http.Get(serverURL + "/api/v1/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	var s models.Status
	if err := decodeResponse(resp, http.StatusOK, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func runWatch() {
	if len(os.Args) < 3 {
		fmt.Println("Usage: stylematch watch <add|remove|list> [path]")
		fmt.Println("  stylematch watch add <file>     Watch an inventory file and ingest it on change")
		fmt.Println("  stylematch watch remove <file>  Stop watching an inventory file")
		fmt.Println("  stylematch watch list           List watched inventory files")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	noSync := fs.Bool("no-sync", false, "do not ingest the file immediately when adding")
	_ = fs.Parse(os.Args[3:])
	endpoint := *serverURL + "/api/v1/watch/files"

	switch sub {
	case "add":
		if fs.NArg() < 1 {
			fmt.Println("Usage: stylematch watch add <file>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		body := map[string]interface{}{"path": path, "sync": !*noSync}
		if err := postJSON(endpoint, body, http.StatusCreated, nil); err != nil {
			fmt.Printf("Add failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Added: %s\n", path)
	case "remove":
		if fs.NArg() < 1 {
			fmt.Println("Usage: stylematch watch remove <file>")
			os.Exit(1)
		}
		path, _ := filepath.Abs(fs.Arg(0))
		req, _ := http.NewRequest(http.MethodDelete, endpoint+"?path="+url.QueryEscape(path), nil)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		if err := decodeResponse(resp, http.StatusOK, nil); err != nil {
			fmt.Printf("Remove failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Removed: %s\n", path)
	case "list":
		resp, err := http.Get(endpoint)
		if err != nil {
			fmt.Printf("Request failed: %v\n", err)
			os.Exit(1)
		}
		defer resp.Body.Close()
		var out struct {
			Files []string `json:"files"`
		}
		if err := decodeResponse(resp, http.StatusOK, &out); err != nil {
			fmt.Printf("List failed: %v\n", err)
			os.Exit(1)
		}
		for _, f := range out.Files {
			fmt.Println(f)
		}
	default:
		fmt.Printf("Unknown watch subcommand: %s\n", sub)
		os.Exit(1)
	}
}

// generateEmailResponse mirrors the body of POST /api/v1/generate-email.
type generateEmailResponse struct {
	Status       string           `json:"status"`
	EmailContent string           `json:"email_content"`
	Message      string           `json:"message"`
	Result       *outreach.Result `json:"result"`
}

func runOutreach() {
	fs := flag.NewFlagSet("outreach", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path (direct mode)")
	serverURL := fs.String("server", "", "server URL (empty = run the pipeline locally)")
	productURL := fs.String("product-url", "", "URL of the product page (HTML or PDF)")
	clientURL := fs.String("client-url", "", "URL of the prospective client's page")
	outputFormat := fs.String("output", "text", "output format: text or json")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	if *productURL == "" || *clientURL == "" {
		fmt.Println("Usage: stylematch outreach --product-url <url> --client-url <url> [flags]")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)

	var result *outreach.Result
	if *serverURL != "" {
		var out generateEmailResponse
		body := map[string]string{"product_url": *productURL, "client_url": *clientURL}
		if err := postJSON(*serverURL+"/api/v1/generate-email", body, http.StatusOK, &out); err != nil {
			fmt.Fprintf(os.Stderr, "Outreach failed: %v\n", err)
			os.Exit(1)
		}
		result = out.Result
		if result == nil {
			result = &outreach.Result{Email: out.EmailContent}
		}
	} else {
		components, _, _, cleanup := setup(*configPath, *debug)
		defer cleanup()
		pipeline, err := components.pipeline()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Outreach unavailable: %v\n", err)
			os.Exit(1)
		}
		ctx, cancel := context.WithTimeout(context.Background(), components.Config.Server.RequestTimeout)
		defer cancel()
		result, err = pipeline.Run(ctx, *productURL, *clientURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Outreach failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteOutreach(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// postJSON sends body as JSON and decodes the response into out (when non-nil).
func postJSON(endpoint string, body interface{}, wantStatus int, out interface{}) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := http.Post(endpoint, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, wantStatus, out)
}

// decodeResponse checks the status code and decodes the JSON body into out (when non-nil).
func decodeResponse(resp *http.Response, wantStatus int, out interface{}) error {
	if resp.StatusCode != wantStatus {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func printUsage() {
	fmt.Println(`stylematch - Garment catalog matching and cold-outreach generation

Usage:
  stylematch server [flags]                 Start the HTTP server
  stylematch ingest [flags] [inventory]     Load a CSV/XLSX inventory into the index
  stylematch search [flags] <query>         Find matching styles
  stylematch fetch [flags] <style-id>       Show one stored style
  stylematch status [flags]                 Show index and configuration status
  stylematch watch <add|remove|list>        Manage watched inventory files
  stylematch outreach [flags]               Generate an outreach email
  stylematch version                        Show version
  stylematch help                           Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/stylematch/config.yaml)
  --debug            Enable debug logging

Ingest Flags:
  --config string      Config file path
  --image-root string  Directory relative Image paths resolve against
  --output string      Output format: text, compact, or json (default: text)

Search Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" to open the index directly.
  --mode string      fabric or likeliness (default: likeliness)
  --weight float     Style similarity in [0,1]; overrides --mode
  --top-k int        Number of results (default from config)
  --output string    Output format: text, compact, or json (default: text)

Status Flags:
  --server string    Server URL (default: http://localhost:8080). Use --server "" for direct mode.
  --output string    Output format: text or json (default: text)

Watch Flags:
  --server string    Server URL (default: http://localhost:8080)
  --no-sync          Do not ingest the file immediately when adding

Outreach Flags:
  --product-url string  Product page URL
  --client-url string   Client page URL
  --server string       Use a running server instead of the local pipeline
  --output string       Output format: text or json (default: text)

Examples:
  stylematch ingest ./inventory.xlsx
  stylematch server
  stylematch search --mode fabric "60% cotton 40% linen"
  stylematch search --weight 0.5 --output json denim jacket
  stylematch status --output json
  stylematch watch add ./inventory.csv
  stylematch outreach --product-url https://example.com/p/123 --client-url https://example.com/about`)
}
