package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iconidentify/reelscribe/internal/config"
	"github.com/iconidentify/reelscribe/internal/domain"
	"github.com/iconidentify/reelscribe/internal/downloader"
	"github.com/iconidentify/reelscribe/internal/logging"
	"github.com/iconidentify/reelscribe/internal/preflight"
	"github.com/iconidentify/reelscribe/internal/service"
	"github.com/iconidentify/reelscribe/internal/transcriber"
	"github.com/iconidentify/reelscribe/pkg/gemini"
)

// Backend is the transcription service driven by the CLI.
type Backend interface {
	transcriber.Backend
	ListModels(ctx context.Context) ([]string, error)
	Close() error
}

// ToolChecker resolves external executables.
type ToolChecker interface {
	RequireTool(name string) (string, error)
}

// App wires the CLI. Nil fields get production implementations.
type App struct {
	Version string
	Stdout  io.Writer
	Stderr  io.Writer

	LoadConfig    func(path string) (*config.Config, error)
	Tools         ToolChecker
	Probe         service.NetworkChecker
	NewBackend    func(ctx context.Context, cfg config.GeminiConfig) (Backend, error)
	NewDownloader func(cfg config.DownloadConfig, logger *slog.Logger) downloader.Downloader
}

type options struct {
	file       string
	configPath string
	debug      bool
	listModels bool
	version    bool
}

// Execute runs the CLI against the process arguments and returns the exit code.
func Execute(version string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &App{Version: version}
	return app.Run(ctx, os.Args[1:])
}

// Run executes the command line args and returns the exit code.
func (a *App) Run(ctx context.Context, args []string) int {
	a.setDefaults()

	code := domain.ExitOK
	cmd := a.newRootCmd(&code)
	cmd.SetArgs(args)
	cmd.SetOut(a.Stdout)
	cmd.SetErr(a.Stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		a.printError(err)
		return domain.KindOf(err, domain.KindInvalidInput).ExitCode()
	}
	return code
}

func (a *App) setDefaults() {
	if a.Stdout == nil {
		a.Stdout = os.Stdout
	}
	if a.Stderr == nil {
		a.Stderr = os.Stderr
	}
	if a.Version == "" {
		a.Version = "dev"
	}
	if a.LoadConfig == nil {
		a.LoadConfig = config.Load
	}
	if a.Tools == nil {
		a.Tools = preflight.NewChecker()
	}
	if a.NewBackend == nil {
		a.NewBackend = func(ctx context.Context, cfg config.GeminiConfig) (Backend, error) {
			return gemini.NewClient(ctx, gemini.Config{APIKey: cfg.APIKey, Model: cfg.Model})
		}
	}
	if a.NewDownloader == nil {
		a.NewDownloader = func(cfg config.DownloadConfig, logger *slog.Logger) downloader.Downloader {
			return downloader.NewYtdlpDownloader(cfg, logger)
		}
	}
}

func (a *App) newRootCmd(code *int) *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "reelscribe [url...]",
		Short: "Transcribe Instagram, TikTok and Facebook videos",
		Long: `reelscribe downloads short-form videos with yt-dlp and transcribes
them with Google Gemini.

Pass one or more URLs, or a file with one URL per line (blank lines and
lines starting with # are skipped). A single URL prints only the transcript;
several URLs print a batch report.

GEMINI_API_KEY must be set in the environment or in a .env file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.run(cmd.Context(), opts, args)
			*code = c
			return err
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&opts.file, "file", "f", "", "Read URLs from a file, one per line")
	flags.StringVar(&opts.configPath, "config", "", "Path to YAML config file")
	flags.BoolVar(&opts.debug, "debug", false, "Print diagnostic logs to stderr")
	flags.BoolVar(&opts.listModels, "list-models", false, "List Gemini models that support content generation")
	flags.BoolVar(&opts.version, "version", false, "Show version and exit")

	return cmd
}

// run returns the exit code for completed processing, or an error for
// failures that stop the run before any URL is processed.
func (a *App) run(ctx context.Context, opts *options, args []string) (int, error) {
	if opts.version {
		fmt.Fprintf(a.Stdout, "reelscribe %s\n", a.Version)
		return domain.ExitOK, nil
	}

	cfg, err := a.LoadConfig(opts.configPath)
	if err != nil {
		return 0, domain.NewError(domain.KindInvalidInput, "config", err)
	}

	level := slog.LevelWarn
	if opts.debug {
		level = slog.LevelDebug
	}
	logger := logging.NewText(a.Stderr, level)

	if opts.listModels {
		return a.listModels(ctx, cfg, logger)
	}

	urls := append([]string(nil), args...)
	if opts.file != "" {
		fromFile, err := service.ReadURLFile(opts.file)
		if err != nil {
			return 0, err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return 0, domain.Errorf(domain.KindInvalidInput, "", "No URLs provided. Usage: reelscribe <url> [url...] or reelscribe --file urls.txt")
	}

	if err := a.preflight(ctx, cfg, logger); err != nil {
		return 0, err
	}

	backend, err := a.NewBackend(ctx, cfg.Gemini)
	if err != nil {
		return 0, err
	}
	defer backend.Close()

	dl := a.NewDownloader(cfg.Download, logger)
	tr := transcriber.New(backend, cfg.Gemini, logger)
	proc := service.NewProcessor(nil, dl, tr, logger)
	batch := service.NewBatch(proc, cfg.Batch, opts.debug, a.Stderr, logger)

	logger.Debug("processing", "urls", len(urls), "model", cfg.Gemini.Model)
	summary := batch.Run(ctx, urls)

	if len(urls) == 1 {
		res := summary.Results[0]
		if res.Success() {
			fmt.Fprintln(a.Stdout, res.Transcript)
		} else {
			fmt.Fprintf(a.Stderr, "ERROR: %s\n", res.Message())
		}
	} else if err := service.WriteReport(a.Stdout, summary); err != nil {
		logger.Warn("failed to write report", "error", err)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		return domain.ExitCancelled, nil
	}
	return summary.ExitCode(), nil
}

// preflight checks the tool, the API key and connectivity, in that order.
func (a *App) preflight(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	path, err := a.Tools.RequireTool(cfg.Download.YtdlpPath)
	if err != nil {
		return err
	}
	logger.Debug("found yt-dlp", "path", path)

	if !cfg.HasAPIKey() {
		return domain.NewError(domain.KindAPIKeyMissing, "", nil)
	}

	probe := a.Probe
	if probe == nil {
		probe = preflight.NewProbe(cfg.Network.ProbeAddress, cfg.Network.ProbeTimeout)
	}
	if err := probe.Require(ctx); err != nil {
		return err
	}

	logger.Debug("pre-flight passed",
		"temp_path", cfg.Download.TempPath,
		"temp_free_bytes", preflight.FreeDiskSpace(cfg.Download.TempPath),
	)
	return nil
}

func (a *App) listModels(ctx context.Context, cfg *config.Config, logger *slog.Logger) (int, error) {
	if !cfg.HasAPIKey() {
		return 0, domain.NewError(domain.KindAPIKeyMissing, "", nil)
	}

	backend, err := a.NewBackend(ctx, cfg.Gemini)
	if err != nil {
		return 0, err
	}
	defer backend.Close()

	models, err := backend.ListModels(ctx)
	if err != nil {
		return 0, err
	}
	logger.Debug("listed models", "count", len(models))

	for _, m := range models {
		fmt.Fprintln(a.Stdout, m)
	}
	return domain.ExitOK, nil
}

func (a *App) printError(err error) {
	if de, ok := domain.AsError(err); ok {
		fmt.Fprintf(a.Stderr, "ERROR: %s\n", de.UserMessage())
		return
	}
	fmt.Fprintf(a.Stderr, "ERROR: %v\n", err)
}
