package services

import (
	"context"
	"log/slog"

	"github.com/intelsk/reid/config"
)

// Backend is everything the session needs from the re-identification
// service. BackendClient implements it.
type Backend interface {
	Gateway
	FetchFrame(ctx context.Context, framePath string) ([]byte, error)
	MediaURL(framePath string) string
	HealthCheck(ctx context.Context) error
}

var _ Backend = (*BackendClient)(nil)

// Session owns the state of one client session. It is built once at startup
// and handed to whoever needs it; nothing outlives Close.
type Session struct {
	Backend  Backend
	Settings *SettingsService
	Videos   *VideoStore
	Targets  *TargetStore
	Results  *ResultIndex
	Searcher *Searcher
	Cropper  *Cropper

	log *slog.Logger
}

func NewSession(cfg *config.AppConfig, backend Backend, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	settings := NewSettingsService(cfg)
	videos := NewVideoStore(backend, logger)
	targets := NewTargetStore(backend, logger)
	results := NewResultIndex()

	return &Session{
		Backend:  backend,
		Settings: settings,
		Videos:   videos,
		Targets:  targets,
		Results:  results,
		Searcher: NewSearcher(videos, targets, results, backend, settings, backend.MediaURL, logger),
		Cropper:  NewCropper(backend, targets, settings, logger),
		log:      logger,
	}
}

// ExportReport writes the current session state to a new SQLite report.
func (s *Session) ExportReport(ctx context.Context, path string) (ExportSummary, error) {
	report, err := NewReportStore(path)
	if err != nil {
		return ExportSummary{}, err
	}
	defer report.Close()

	summary, err := report.Export(ctx, s.Videos.All(), s.Targets.All(), s.Results, s.Backend.MediaURL)
	if err != nil {
		return summary, err
	}
	s.log.Info("report exported", "path", summary.Path, "pairs", summary.Pairs, "matches", summary.Matches)
	return summary, nil
}

// Wait blocks until all in-flight registrations have reconciled.
func (s *Session) Wait() {
	s.Videos.Wait()
	s.Targets.Wait()
}

// Close ends the session. Pending registrations are allowed to finish so
// their goroutines do not outlive the process state they write to.
func (s *Session) Close() {
	s.Wait()
	s.log.Info("session closed",
		"videos", len(s.Videos.All()), "targets", len(s.Targets.All()), "result_pairs", s.Results.Len())
}
