package services

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/intelsk/reid/config"
	"github.com/intelsk/reid/models"
)

type addCall struct {
	Kind models.Kind
	Data string
	Name string
}

// fakeBackend is an in-memory Backend. Calls block on gate when it is set,
// which lets tests delete entities while a registration is in flight.
type fakeBackend struct {
	mu sync.Mutex

	gate chan struct{}

	processErr error
	addErr     error
	searchErr  error

	searchResp models.SearchResponse
	results    map[PairKey][]models.Match
	frames     map[string][]byte

	// videoIDs and targetIDs override the ids handed out by filename and
	// target name. Defaults are "srv-<filename>" and "tgt-<name>".
	videoIDs  map[string]string
	targetIDs map[string]string

	processed   []string
	added       []addCall
	searchCalls [][2][]string
	lookups     []PairKey
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results:   make(map[PairKey][]models.Match),
		frames:    make(map[string][]byte),
		videoIDs:  make(map[string]string),
		targetIDs: make(map[string]string),
	}
}

func (f *fakeBackend) wait(ctx context.Context) error {
	f.mu.Lock()
	gate := f.gate
	f.mu.Unlock()
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeBackend) ProcessVideo(ctx context.Context, filename string, body io.Reader) (*models.ProcessingResult, error) {
	if _, err := io.ReadAll(body); err != nil {
		return nil, err
	}
	if err := f.wait(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processed = append(f.processed, filename)
	if f.processErr != nil {
		return nil, f.processErr
	}
	videoID, ok := f.videoIDs[filename]
	if !ok {
		videoID = "srv-" + filename
	}
	return &models.ProcessingResult{
		VideoID:     videoID,
		TotalFrames: 100,
		FPS:         25,
		FramesWithDetections: []models.FrameDetections{{
			FrameIdx:   5,
			Timestamp:  0.2,
			Filename:   "frames/f5.jpg",
			Detections: []models.Detection{{Box: [4]float64{2, 2, 30, 60}, Score: 0.9}},
		}},
	}, nil
}

func (f *fakeBackend) AddTarget(ctx context.Context, kind models.Kind, data, name string) (string, error) {
	if err := f.wait(ctx); err != nil {
		return "", err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.added = append(f.added, addCall{Kind: kind, Data: data, Name: name})
	if f.addErr != nil {
		return "", f.addErr
	}
	if id, ok := f.targetIDs[name]; ok {
		return id, nil
	}
	return "tgt-" + name, nil
}

func (f *fakeBackend) SearchTargets(ctx context.Context, videoIDs, targetIDs []string) (models.SearchResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, [2][]string{videoIDs, targetIDs})
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.searchResp, nil
}

func (f *fakeBackend) GetResults(ctx context.Context, videoID, targetID string) ([]models.Match, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := PairKey{VideoID: videoID, TargetID: targetID}
	f.lookups = append(f.lookups, key)
	m, ok := f.results[key]
	return m, ok, nil
}

func (f *fakeBackend) FetchFrame(ctx context.Context, framePath string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.frames[framePath]
	if !ok {
		return nil, &BackendError{Op: "fetch frame", Status: 404}
	}
	return data, nil
}

func (f *fakeBackend) MediaURL(framePath string) string {
	return "http://media.test/" + framePath
}

func (f *fakeBackend) HealthCheck(ctx context.Context) error {
	return nil
}

func (f *fakeBackend) hold() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gate = make(chan struct{})
}

func (f *fakeBackend) release() {
	f.mu.Lock()
	defer f.mu.Unlock()
	close(f.gate)
	f.gate = nil
}

func (f *fakeBackend) searchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.searchCalls)
}

func (f *fakeBackend) addedCalls() []addCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]addCall(nil), f.added...)
}

var errBackendDown = errors.New("backend down")

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func newTestSession(t *testing.T, backend *fakeBackend) *Session {
	t.Helper()
	s := NewSession(config.Default(), backend, discardLogger())
	t.Cleanup(s.Wait)
	return s
}

// recv reads the outcome of an asynchronous registration.
func recv(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("registration did not finish")
		return nil
	}
}
