package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path/filepath"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/intelsk/reid/models"
)

type Upload struct {
	Filename string
	Body     io.Reader
}

// VideoStore holds the videos of the session. Videos are inserted with a
// local id before the backend has seen them; the processing result is
// attached later to the entry with that same local id.
type VideoStore struct {
	store   *EntityStore[models.Video]
	gateway Gateway
	tracker *RegistrationTracker
	log     *slog.Logger
	wg      sync.WaitGroup
}

func NewVideoStore(gateway Gateway, logger *slog.Logger) *VideoStore {
	if logger == nil {
		logger = slog.Default()
	}
	s := &VideoStore{
		store:   NewEntityStore(func(v models.Video) string { return v.LocalID }),
		gateway: gateway,
		tracker: NewRegistrationTracker(),
		log:     logger.With("store", "videos"),
	}
	s.store.Subscribe(func(_, next []models.Video) {
		StoreEntities.WithLabelValues("videos").Set(float64(len(next)))
	})
	return s
}

// RegisterVideo inserts a provisional video and starts processing it on the
// backend. The returned channel receives the reconciliation outcome once and
// is then closed: nil on success, ErrStaleResponse if the video was deleted
// meanwhile, or the backend error.
func (s *VideoStore) RegisterVideo(ctx context.Context, up Upload) (models.Video, <-chan error, error) {
	data, err := io.ReadAll(up.Body)
	if err != nil {
		return models.Video{}, nil, fmt.Errorf("reading upload %s: %w", up.Filename, err)
	}

	name := filepath.Base(up.Filename)
	if name == "." || name == "/" {
		name = "upload.mp4"
	}
	localID := uuid.NewString()
	video := models.Video{
		LocalID:   localID,
		Filename:  name,
		SourceURL: "local://videos/" + localID + "/" + url.PathEscape(name),
		Size:      int64(len(data)),
	}
	if err := s.store.Add(video); err != nil {
		return models.Video{}, nil, err
	}
	s.tracker.Start(localID)
	s.log.Info("video registered", "local_id", localID, "file", name, "size", humanize.Bytes(uint64(len(data))))

	done := make(chan error, 1)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer close(done)
		done <- s.reconcile(context.WithoutCancel(ctx), localID, name, data)
	}()
	return video, done, nil
}

func (s *VideoStore) reconcile(ctx context.Context, localID, name string, data []byte) error {
	result, err := s.gateway.ProcessVideo(ctx, name, bytes.NewReader(data))
	if err != nil {
		err = fmt.Errorf("processing video %s: %w", name, err)
		s.log.Error("video processing failed", "local_id", localID, "error", err)
	} else if !s.store.Update(localID, func(v *models.Video) { v.ProcessingResult = result }) {
		err = fmt.Errorf("video %s: %w", localID, ErrStaleResponse)
		s.log.Warn("discarding processing result", "local_id", localID, "video_id", result.VideoID)
	} else {
		s.log.Info("video processed", "local_id", localID, "video_id", result.VideoID,
			"frames", result.TotalFrames, "frames_with_detections", len(result.FramesWithDetections))
	}
	state := s.tracker.Finish(localID, err)
	ReconciliationsTotal.WithLabelValues("video", string(state)).Inc()
	return err
}

func (s *VideoStore) Get(localID string) (models.Video, bool) {
	return s.store.Get(localID)
}

func (s *VideoStore) All() []models.Video {
	return s.store.All()
}

// Delete removes the video locally; nothing is sent to the backend.
func (s *VideoStore) Delete(localID string) bool {
	ok := s.store.Remove(localID)
	if ok {
		s.tracker.Forget(localID)
	}
	return ok
}

// Searchable reports whether the video exists and has been processed.
func (s *VideoStore) Searchable(localID string) bool {
	v, ok := s.store.Get(localID)
	return ok && v.Searchable()
}

// ServerID resolves the backend video id of a processed video.
func (s *VideoStore) ServerID(localID string) (string, bool) {
	v, ok := s.store.Get(localID)
	if !ok || !v.Searchable() {
		return "", false
	}
	return v.ServerID(), true
}

// ByServerID finds the video the backend knows as videoID.
func (s *VideoStore) ByServerID(videoID string) (models.Video, bool) {
	for _, v := range s.store.All() {
		if v.ServerID() == videoID {
			return v, true
		}
	}
	return models.Video{}, false
}

func (s *VideoStore) Registration(localID string) (models.Registration, bool) {
	return s.tracker.Get(localID)
}

func (s *VideoStore) Subscribe(fn func(prev, next []models.Video)) func() {
	return s.store.Subscribe(fn)
}

// Wait blocks until every in-flight registration has reconciled.
func (s *VideoStore) Wait() {
	s.wg.Wait()
}
