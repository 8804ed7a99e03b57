// Command spawn runs programs and reports their output as structured results.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/deixis/spawn"
	"github.com/deixis/spawn/internal/config"
	"github.com/deixis/spawn/internal/logging"
	spawnmcp "github.com/deixis/spawn/internal/mcp"
	"github.com/deixis/spawn/internal/metrics"
	"github.com/deixis/spawn/internal/report"
	"github.com/deixis/spawn/internal/runner"
)

func main() {
	log.SetFlags(0)
	log.SetPrefix("spawn: ")

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "run":
		var code int
		code, err = runMain(args)
		if err == nil && code != 0 {
			os.Exit(code)
		}
	case "which":
		err = whichMain(args)
	case "mcp":
		err = mcpMain(args)
	case "version":
		fmt.Println(spawn.Version)
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "spawn: unknown command %q\n", cmd)
		usage()
		os.Exit(2)
	}

	if err != nil {
		log.Fatal(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage: spawn <command> [flags] [arguments]

Commands:
  run         Run a program and capture its output
  which       Resolve an executable through the PATH
  mcp         Start the MCP server
  version     Print the version
  help        Show this help

Use "spawn <command> -h" for command-specific flags.`)
}

// --- run ---

func runMain(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	timeoutFlag := fs.Duration("timeout", 0, "kill the program after this long (e.g. 30s); overrides .spawn")
	dirFlag := fs.String("dir", "", "working directory")
	shellFlag := fs.Bool("shell", false, "run the command line through the system shell")
	quietFlag := fs.Bool("quiet", false, "do not echo captured output")
	interactiveFlag := fs.Bool("interactive", false, "hand the terminal to the program; nothing is captured")
	keepFlag := fs.Bool("keep-temp", false, "keep generated command scripts")
	noThrowFlag := fs.Bool("no-throw", false, "do not print the failure diagnostic")
	jsonFlag := fs.Bool("json", false, "print the execution record as JSON")
	encodingFlag := fs.String("encoding", "", "charset of the program's output (e.g. windows-1252)")
	signalFlag := fs.String("kill-signal", "", "signal sent on timeout (default TERM)")
	verboseFlag := fs.Bool("v", false, "verbose output")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "Usage: spawn run [flags] program [args...]")
		fs.PrintDefaults()
	}
	_ = fs.Parse(args)

	if fs.NArg() == 0 {
		fs.Usage()
		return 2, nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	workspace, err := os.Getwd()
	if err != nil {
		return 0, fmt.Errorf("determining workspace: %w", err)
	}
	loaded, err := config.Load(workspace)
	if err != nil {
		return 0, fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	logger := logging.NewLogger(cfg.LogFormat(), cfg.LogLevel(), *verboseFlag)

	opts := cfg.Options()
	if *timeoutFlag > 0 {
		opts.Timeout = *timeoutFlag
	}
	opts.Dir = *dirFlag
	cfg.ApplyShell(opts, *shellFlag)
	opts.Interactive = *interactiveFlag
	opts.KeepTempFiles = opts.KeepTempFiles || *keepFlag
	opts.NoThrow = *noThrowFlag
	if *encodingFlag != "" {
		opts.Encoding = *encodingFlag
	}
	if *quietFlag || *jsonFlag {
		opts.SuppressOutput = runner.Bool(true)
	}
	if *signalFlag != "" {
		sig, err := runner.ParseSignal(*signalFlag)
		if err != nil {
			return 0, err
		}
		opts.KillSignal = sig
	}

	r := runner.New(logger, nil)
	defer r.Close()

	out, err := r.Run(ctx, fs.Arg(0), fs.Args()[1:], opts)
	var runErr *runner.Error
	switch {
	case errors.As(err, &runErr):
		out = runErr
		if !*jsonFlag {
			log.Print(runErr.Message)
		}
	case err != nil:
		return 0, err
	}

	if *jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(report.FromOutcome(out)); err != nil {
			return 0, err
		}
	}

	return exitStatus(out.Summary().ExitCode), nil
}

// exitStatus maps a child's exit code onto a valid process status.
func exitStatus(code int) int {
	switch {
	case code == 0:
		return 0
	case code < 0 || code > 255:
		return 1
	default:
		return code
	}
}

// --- which ---

func whichMain(args []string) error {
	fs := flag.NewFlagSet("which", flag.ExitOnError)
	_ = fs.Parse(args)
	if fs.NArg() == 0 {
		return errors.New("usage: spawn which name...")
	}

	r := runner.New(nil, nil)
	var missing []string
	for _, name := range fs.Args() {
		path, ok := r.Which(name)
		if !ok {
			missing = append(missing, name)
			continue
		}
		fmt.Println(path)
	}
	if len(missing) > 0 {
		return fmt.Errorf("not found in PATH: %v", missing)
	}
	return nil
}

// --- mcp ---

func mcpMain(args []string) error {
	fs := flag.NewFlagSet("mcp", flag.ExitOnError)
	instructions := fs.Bool("instructions", false, "print model instructions and exit")
	httpAddr := fs.String("http", "", "start HTTP server on address (e.g. :9090)")
	metricsAddr := fs.String("metrics", "", "serve Prometheus metrics on address (e.g. :9464); overrides .spawn")
	verbose := fs.Bool("v", false, "verbose logging")
	_ = fs.Parse(args)

	if *instructions {
		fmt.Print(spawnmcp.Instructions)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	return serve(ctx, *httpAddr, *metricsAddr, *verbose)
}

func serve(ctx context.Context, httpAddr, metricsAddr string, verbose bool) error {
	workspace, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("determining workspace: %w", err)
	}

	loaded, err := config.Load(workspace)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	cfg := loaded.Config
	logger := logging.NewLogger(cfg.LogFormat(), cfg.LogLevel(), verbose)

	disk := report.NewDiskStore()
	defer disk.RemoveAll()
	store := report.NewLRUStore(cfg.StoreCapacity(), disk)

	collector := metrics.NewCollector()
	if metricsAddr == "" {
		metricsAddr = cfg.Metrics.Addr
	}
	if metricsAddr != "" {
		ms := metrics.NewServer(metricsAddr, logger)
		ms.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	r := runner.New(logger, collector)
	defer r.Close()

	server := spawnmcp.NewServer(cfg, r, store, workspace, logger)

	if httpAddr != "" {
		return serveHTTP(ctx, server, httpAddr, logger)
	}
	return server.Run(ctx, &mcpsdk.StdioTransport{})
}

func serveHTTP(ctx context.Context, server *mcpsdk.Server, addr string, logger *slog.Logger) error {
	handler := mcpsdk.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcpsdk.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	go func() {
		<-ctx.Done()
		_ = httpServer.Close()
	}()

	logger.Info("listening", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}
