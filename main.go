package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/intelsk/reid/cmd/server"
	"github.com/intelsk/reid/config"
	"github.com/intelsk/reid/models"
	"github.com/intelsk/reid/prompt"
	"github.com/intelsk/reid/services"
	"github.com/lmittmann/tint"
	"gopkg.in/yaml.v3"
)

var configDir string

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	var err error
	switch command {
	case "serve":
		err = runServe(os.Args[2:])
	case "prompt":
		err = runPrompt(os.Args[2:])
	case "search":
		err = runSearch(os.Args[2:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: reid <command> [flags]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  serve     Start the session API server")
	fmt.Fprintln(os.Stderr, "  prompt    Print the description synthesized from a selection file")
	fmt.Fprintln(os.Stderr, "  search    Register videos and targets, search, and print the matches")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Common flags:")
	fmt.Fprintln(os.Stderr, "  -config   Directory holding app.yaml and backend.yaml (default: config)")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "Run 'reid <command> -help' for details.")
}

func addConfigFlag(fs *flag.FlagSet) {
	fs.StringVar(&configDir, "config", "config", "directory holding app.yaml and backend.yaml")
}

func loadAppConfig() (*config.AppConfig, error) {
	return config.LoadConfig(
		filepath.Join(configDir, "app.yaml"),
		filepath.Join(configDir, "backend.yaml"),
	)
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	}))
}

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addConfigFlag(fs)
	fs.Parse(args)

	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.App.LogLevel)
	slog.SetDefault(logger)
	return server.Start(cfg, logger)
}

// loadSelection decodes a YAML selection file over the builder defaults.
func loadSelection(path string) (prompt.Selection, error) {
	sel := prompt.NewSelection()
	data, err := os.ReadFile(path)
	if err != nil {
		return sel, err
	}
	if err := yaml.Unmarshal(data, &sel); err != nil {
		return sel, fmt.Errorf("parsing %s: %w", path, err)
	}
	return sel, sel.Validate()
}

func runPrompt(args []string) error {
	fs := flag.NewFlagSet("prompt", flag.ExitOnError)
	file := fs.String("file", "", "YAML selection file (required)")
	fs.Parse(args)

	if *file == "" {
		fmt.Fprintln(os.Stderr, "error: -file flag is required")
		fs.Usage()
		os.Exit(1)
	}

	sel, err := loadSelection(*file)
	if err != nil {
		return err
	}
	fmt.Println(prompt.Synthesize(sel))
	return nil
}

type stringList []string

func (l *stringList) String() string { return strings.Join(*l, ",") }
func (l *stringList) Set(v string) error { *l = append(*l, v); return nil }

func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ExitOnError)
	var videos, images, texts, prompts stringList
	fs.Var(&videos, "video", "video file to upload (repeatable, required)")
	fs.Var(&images, "image", "reference image of the person (repeatable)")
	fs.Var(&texts, "text", "free text description of the person (repeatable)")
	fs.Var(&prompts, "prompt", "YAML selection file compiled into a description (repeatable)")
	report := fs.String("report", "", "also write the session to this SQLite report file")
	addConfigFlag(fs)
	fs.Parse(args)

	if len(videos) == 0 || len(images)+len(texts)+len(prompts) == 0 {
		fmt.Fprintln(os.Stderr, "error: at least one -video and one -image, -text or -prompt are required")
		fs.Usage()
		os.Exit(1)
	}

	cfg, err := loadAppConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := newLogger(cfg.App.LogLevel)

	backend := services.NewBackendClient(cfg.Backend.URL, cfg.Backend.MediaURL, cfg.BackendTimeout())
	ctx := context.Background()
	if err := backend.HealthCheck(ctx); err != nil {
		return fmt.Errorf("backend health check failed: %w", err)
	}

	session := services.NewSession(cfg, backend, logger)
	defer session.Close()

	var pending []<-chan error
	var videoIDs, targetIDs []string

	for _, path := range videos {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		v, done, err := session.Videos.RegisterVideo(ctx, services.Upload{Filename: path, Body: f})
		f.Close()
		if err != nil {
			return err
		}
		videoIDs = append(videoIDs, v.LocalID)
		pending = append(pending, done)
	}

	register := func(t models.Target, done <-chan error, err error) error {
		if err != nil {
			return err
		}
		targetIDs = append(targetIDs, t.LocalID)
		pending = append(pending, done)
		return nil
	}
	for _, path := range images {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := register(session.Cropper.RegisterImage(ctx, path, data, "")); err != nil {
			return err
		}
	}
	for i, text := range texts {
		if err := register(session.Targets.RegisterTarget(ctx, models.TargetDraft{
			Name:        fmt.Sprintf("text-%d", i+1),
			Description: text,
		})); err != nil {
			return err
		}
	}
	for _, path := range prompts {
		sel, err := loadSelection(path)
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		if err := register(session.Targets.RegisterTarget(ctx, models.TargetDraft{
			Name:        name,
			Description: prompt.Synthesize(sel),
		})); err != nil {
			return err
		}
	}

	var failures []error
	for _, done := range pending {
		if err := <-done; err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		return errors.Join(failures...)
	}

	if err := session.Searcher.Search(ctx, videoIDs, targetIDs); err != nil {
		return err
	}
	fmt.Print(services.FormatResultsTable(session.Searcher.Results()))

	if *report != "" {
		summary, err := session.ExportReport(ctx, *report)
		if err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		fmt.Printf("Report written to %s (%d pairs, %d matches)\n", summary.Path, summary.Pairs, summary.Matches)
	}
	return nil
}
