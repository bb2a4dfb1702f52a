package services

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	"image/draw"
	"image/jpeg"
	_ "image/png"
	"iter"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"
	"sync"

	"github.com/corona10/goimagehash"
	"github.com/intelsk/reid/models"
	"github.com/nfnt/resize"
)

type frameFetcher interface {
	FetchFrame(ctx context.Context, framePath string) ([]byte, error)
}

// Cropper turns person detections and uploaded pictures into image targets.
// It remembers the perception hash of every image target it created and
// refuses near duplicates of them. A hash is forgotten when its target fails
// to register or is deleted.
type Cropper struct {
	fetcher  frameFetcher
	targets  *TargetStore
	settings *SettingsService
	log      *slog.Logger

	mu       sync.Mutex
	hashes   map[string]*goimagehash.ImageHash // by target local id
	reserved map[uint64]*goimagehash.ImageHash // admitted, target not yet created
	nextRes  uint64
}

func NewCropper(fetcher frameFetcher, targets *TargetStore, settings *SettingsService, logger *slog.Logger) *Cropper {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cropper{
		fetcher:  fetcher,
		targets:  targets,
		settings: settings,
		log:      logger.With("component", "cropper"),
		hashes:   make(map[string]*goimagehash.ImageHash),
		reserved: make(map[uint64]*goimagehash.ImageHash),
	}
	targets.Subscribe(c.pruneDeleted)
	return c
}

// CropDetection cuts detection detIdx of frame frameIdx out of a processed
// video and registers it as an image target.
func (c *Cropper) CropDetection(ctx context.Context, video models.Video, frameIdx, detIdx int, name string) (models.Target, <-chan error, error) {
	if strings.TrimSpace(name) == "" {
		return models.Target{}, nil, fmt.Errorf("%w: name is required", ErrInvalidTarget)
	}
	if !video.Searchable() {
		return models.Target{}, nil, &ReferenceError{Kind: ErrVideoNotProcessed, IDs: []string{video.LocalID}}
	}
	frame, ok := video.ProcessingResult.Frame(frameIdx)
	if !ok {
		return models.Target{}, nil, fmt.Errorf("frame %d of video %s: %w", frameIdx, video.LocalID, ErrNotFound)
	}
	if detIdx < 0 || detIdx >= len(frame.Detections) {
		return models.Target{}, nil, fmt.Errorf("detection %d of frame %d: %w", detIdx, frameIdx, ErrNotFound)
	}

	data, err := c.fetcher.FetchFrame(ctx, frame.Filename)
	if err != nil {
		return models.Target{}, nil, err
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Target{}, nil, fmt.Errorf("decoding frame %s: %w", frame.Filename, err)
	}

	box := frame.Detections[detIdx].Box
	crop, err := cropBox(img, box)
	if err != nil {
		return models.Target{}, nil, err
	}

	dataURL, res, err := c.admit(crop)
	if err != nil {
		return models.Target{}, nil, err
	}
	c.log.Info("detection cropped", "video", video.LocalID, "frame", frameIdx, "detection", detIdx)

	return c.register(ctx, res, models.TargetDraft{
		Name:        name,
		Description: fmt.Sprintf("Cropped from video at %.2fs", frame.Timestamp),
		ImageURL:    dataURL,
	})
}

// RegisterImage registers an uploaded picture as an image target.
func (c *Cropper) RegisterImage(ctx context.Context, filename string, data []byte, name string) (models.Target, <-chan error, error) {
	if ct := http.DetectContentType(data); !strings.HasPrefix(ct, "image/") {
		return models.Target{}, nil, fmt.Errorf("%w: %s is %s, not an image", ErrInvalidTarget, filename, ct)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return models.Target{}, nil, fmt.Errorf("%w: decoding %s: %v", ErrInvalidTarget, filename, err)
	}
	dataURL, res, err := c.admit(img)
	if err != nil {
		return models.Target{}, nil, err
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	}
	return c.register(ctx, res, models.TargetDraft{
		Name:        name,
		Description: "Image target: " + filepath.Base(filename),
		ImageURL:    dataURL,
	})
}

// admit shrinks img, rejects it when it is perceptually close to an image
// target of the session, and returns it as a JPEG data URL. The hash stays
// reserved under the returned token until register settles it.
func (c *Cropper) admit(img image.Image) (string, uint64, error) {
	maxDim := uint(c.settings.GetInt("cropper.max_dimension"))
	threshold := c.settings.GetInt("cropper.dedup_threshold")

	thumb := resize.Thumbnail(maxDim, maxDim, img, resize.Lanczos3)
	hash, err := goimagehash.PerceptionHash(thumb)
	if err != nil {
		return "", 0, fmt.Errorf("hashing crop: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for h := range c.known() {
		dist, err := hash.Distance(h)
		if err != nil {
			return "", 0, fmt.Errorf("comparing hashes: %w", err)
		}
		if dist < threshold {
			return "", 0, ErrDuplicateCrop
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 90}); err != nil {
		return "", 0, fmt.Errorf("encoding crop: %w", err)
	}
	c.nextRes++
	c.reserved[c.nextRes] = hash
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), c.nextRes, nil
}

// known yields every remembered hash; callers hold c.mu.
func (c *Cropper) known() iter.Seq[*goimagehash.ImageHash] {
	return func(yield func(*goimagehash.ImageHash) bool) {
		for _, h := range c.hashes {
			if !yield(h) {
				return
			}
		}
		for _, h := range c.reserved {
			if !yield(h) {
				return
			}
		}
	}
}

// register creates the target for an admitted image and keys its hash by the
// target's local id. The hash is dropped when the target cannot be created or
// its backend registration fails, so the same image can be submitted again.
func (c *Cropper) register(ctx context.Context, res uint64, draft models.TargetDraft) (models.Target, <-chan error, error) {
	target, done, err := c.targets.RegisterTarget(ctx, draft)

	c.mu.Lock()
	hash := c.reserved[res]
	delete(c.reserved, res)
	if err == nil {
		// A target deleted before this point was already pruned.
		if _, ok := c.targets.Get(target.LocalID); ok {
			c.hashes[target.LocalID] = hash
		}
	}
	c.mu.Unlock()
	if err != nil {
		return models.Target{}, nil, err
	}

	out := make(chan error, 1)
	go func() {
		defer close(out)
		err := <-done
		if err != nil {
			c.forget(target.LocalID)
		}
		out <- err
	}()
	return target, out, nil
}

func (c *Cropper) forget(localID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.hashes, localID)
}

// pruneDeleted drops the hashes of targets that left the store.
func (c *Cropper) pruneDeleted(_, next []models.Target) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.hashes) == 0 {
		return
	}
	live := make(map[string]bool, len(next))
	for _, t := range next {
		live[t.LocalID] = true
	}
	for id := range c.hashes {
		if !live[id] {
			delete(c.hashes, id)
		}
	}
}

// cropBox returns the part of img inside box ([x1, y1, x2, y2]) clipped to
// the image bounds.
func cropBox(img image.Image, box [4]float64) (image.Image, error) {
	rect := image.Rect(int(box[0]), int(box[1]), int(box[2]), int(box[3])).Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("detection box %v lies outside the frame", box)
	}
	if sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		return sub.SubImage(rect), nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	draw.Draw(dst, dst.Bounds(), img, rect.Min, draw.Src)
	return dst, nil
}
