package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/intelsk/reid/models"
)

// Searcher resolves local selections to backend ids, runs searches and
// lookups, and feeds the result index. It is the only component that reads
// both stores.
type Searcher struct {
	videos   *VideoStore
	targets  *TargetStore
	index    *ResultIndex
	gateway  Gateway
	settings *SettingsService
	mediaURL func(framePath string) string
	log      *slog.Logger
}

func NewSearcher(videos *VideoStore, targets *TargetStore, index *ResultIndex, gateway Gateway,
	settings *SettingsService, mediaURL func(string) string, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		videos:   videos,
		targets:  targets,
		index:    index,
		gateway:  gateway,
		settings: settings,
		mediaURL: mediaURL,
		log:      logger.With("component", "searcher"),
	}
}

// resolve maps local ids to backend ids. Nothing is sent to the backend when
// any id is missing or unresolved.
func (s *Searcher) resolve(localVideoIDs, localTargetIDs []string) (videoIDs, targetIDs []string, err error) {
	if len(localVideoIDs) == 0 || len(localTargetIDs) == 0 {
		return nil, nil, ErrEmptySelection
	}

	var missing []string
	for _, id := range localVideoIDs {
		serverID, ok := s.videos.ServerID(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		videoIDs = append(videoIDs, serverID)
	}
	if len(missing) > 0 {
		return nil, nil, &ReferenceError{Kind: ErrVideoNotProcessed, IDs: missing}
	}

	for _, id := range localTargetIDs {
		backendID, ok := s.targets.BackendID(id)
		if !ok {
			missing = append(missing, id)
			continue
		}
		targetIDs = append(targetIDs, backendID)
	}
	if len(missing) > 0 {
		return nil, nil, &ReferenceError{Kind: ErrTargetNotRegistered, IDs: missing}
	}
	return videoIDs, targetIDs, nil
}

// Search runs one backend search over every selected video and target and
// merges the response into the index.
func (s *Searcher) Search(ctx context.Context, localVideoIDs, localTargetIDs []string) error {
	videoIDs, targetIDs, err := s.resolve(localVideoIDs, localTargetIDs)
	if err != nil {
		s.log.Warn("search rejected", "error", err)
		return err
	}

	resp, err := s.gateway.SearchTargets(ctx, videoIDs, targetIDs)
	if err != nil {
		return fmt.Errorf("searching targets: %w", err)
	}
	s.index.MergeSearch(videoIDs, targetIDs, resp)
	s.log.Info("search complete", "videos", len(videoIDs), "targets", len(targetIDs), "pairs_reported", countPairs(resp))
	return nil
}

// Lookup fetches the stored results of one pair. A pair the backend does not
// report leaves the index unchanged.
func (s *Searcher) Lookup(ctx context.Context, localVideoID, localTargetID string) error {
	videoIDs, targetIDs, err := s.resolve([]string{localVideoID}, []string{localTargetID})
	if err != nil {
		s.log.Warn("lookup rejected", "error", err)
		return err
	}

	matches, found, err := s.gateway.GetResults(ctx, videoIDs[0], targetIDs[0])
	if err != nil {
		return fmt.Errorf("getting results: %w", err)
	}
	if !found {
		s.log.Info("pair not reported", "video_id", videoIDs[0], "target_id", targetIDs[0])
		return nil
	}
	s.index.MergeSingle(videoIDs[0], targetIDs[0], matches)
	return nil
}

// Results renders the index for display. When localVideoIDs is non-empty
// only pairs of those videos are returned. Matches below the
// results.min_similarity setting are hidden; the order is kept as received.
func (s *Searcher) Results(localVideoIDs ...string) models.ResultsResponse {
	var only map[string]bool
	if len(localVideoIDs) > 0 {
		only = make(map[string]bool)
		for _, id := range localVideoIDs {
			if serverID, ok := s.videos.ServerID(id); ok {
				only[serverID] = true
			}
		}
	}

	minSimilarity := 0.0
	showOrphaned := true
	if s.settings != nil {
		minSimilarity = s.settings.GetFloat64("results.min_similarity")
		showOrphaned = s.settings.GetBool("results.show_orphaned")
	}

	out := models.ResultsResponse{Results: []models.PairResult{}}
	for _, key := range s.index.Pairs() {
		if only != nil && !only[key.VideoID] {
			continue
		}
		matches, _ := s.index.Get(key.VideoID, key.TargetID)

		pr := models.PairResult{
			VideoID:  key.VideoID,
			TargetID: key.TargetID,
			Matches:  []models.MatchView{},
		}
		video, videoOK := s.videos.ByServerID(key.VideoID)
		target, targetOK := s.targets.ByBackendID(key.TargetID)
		if videoOK {
			pr.VideoLocalID = video.LocalID
		}
		if targetOK {
			pr.TargetLocalID = target.LocalID
			pr.TargetName = target.Name
		}
		pr.Orphaned = !videoOK || !targetOK
		if pr.Orphaned && !showOrphaned {
			continue
		}

		for _, m := range matches {
			if m.Similarity < minSimilarity {
				continue
			}
			pr.Matches = append(pr.Matches, models.MatchView{
				FrameIdx:   m.FrameIdx,
				Similarity: m.Similarity,
				FramePath:  m.FramePath,
				FrameURL:   s.mediaURL(m.FramePath),
			})
		}
		out.Results = append(out.Results, pr)
	}
	out.Total = len(out.Results)
	return out
}

func countPairs(resp models.SearchResponse) int {
	n := 0
	for _, byTarget := range resp {
		n += len(byTarget)
	}
	return n
}
