// Package archive persists finished recordings as a JSON collection of base64 payloads under a
// single key of a pluggable blob store.
package archive

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/andresmejia3/facetrack/internal/types"
	"github.com/google/uuid"
	"github.com/mdobak/go-xerrors"
)

// ErrNotFound is returned by Get for an unknown id.
var ErrNotFound = errors.New("video not found")

// SavedVideo is one archived recording. Blob holds the encoded payload in standard base64.
type SavedVideo struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Blob      string  `json:"blob"`
	Timestamp int64   `json:"timestamp"` // epoch milliseconds
	Duration  float64 `json:"duration"`  // seconds
	Size      int64   `json:"size"`      // decoded payload bytes
}

// CreatedAt returns Timestamp as a time.
func (v SavedVideo) CreatedAt() time.Time { return time.UnixMilli(v.Timestamp) }

// Decode returns the original payload bytes.
func (v SavedVideo) Decode() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(v.Blob)
	if err != nil {
		return nil, fmt.Errorf("video %s has a corrupt payload: %w", v.ID, err)
	}
	return data, nil
}

type Option func(*Archive)

func WithLogger(l *slog.Logger) Option { return func(a *Archive) { a.logger = l } }

func WithClock(now func() time.Time) Option { return func(a *Archive) { a.now = now } }

// Archive is a read-modify-write view over the collection. It assumes a single writer process.
type Archive struct {
	kv     KV
	logger *slog.Logger
	now    func() time.Time
	mu     sync.Mutex
}

func New(kv KV, opts ...Option) *Archive {
	a := &Archive{kv: kv, logger: slog.Default(), now: time.Now}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func newID(now time.Time) string {
	return fmt.Sprintf("video_%d_%s", now.UnixMilli(), strings.ReplaceAll(uuid.NewString(), "-", "")[:9])
}

// Save encodes payload, assigns a fresh id, and persists the collection with the new entry
// appended. An unreadable collection is never overwritten.
func (a *Archive) Save(ctx context.Context, payload []byte, name string, durationSeconds float64) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	videos, err := a.load(ctx)
	if err != nil {
		return "", err
	}

	now := a.now()
	v := SavedVideo{
		ID:        newID(now),
		Name:      name,
		Blob:      base64.StdEncoding.EncodeToString(payload),
		Timestamp: now.UnixMilli(),
		Duration:  durationSeconds,
		Size:      int64(len(payload)),
	}
	if err := a.store(ctx, append(videos, v)); err != nil {
		return "", err
	}

	a.logger.InfoContext(ctx, "video archived", "id", v.ID, "name", v.Name, "size", v.Size)
	return v.ID, nil
}

// List returns every saved video, newest first. A storage failure is logged and yields an empty list.
func (a *Archive) List(ctx context.Context) []SavedVideo {
	a.mu.Lock()
	defer a.mu.Unlock()

	videos, err := a.load(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to load saved videos", slog.Any("error", xerrors.New(err)))
		return []SavedVideo{}
	}
	sort.SliceStable(videos, func(i, j int) bool { return videos[i].Timestamp > videos[j].Timestamp })
	return videos
}

// Get returns the video with id, or ErrNotFound.
func (a *Archive) Get(ctx context.Context, id string) (SavedVideo, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	videos, err := a.load(ctx)
	if err != nil {
		return SavedVideo{}, err
	}
	for _, v := range videos {
		if v.ID == id {
			return v, nil
		}
	}
	return SavedVideo{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Delete removes the entry with id. An unknown id is a no-op.
func (a *Archive) Delete(ctx context.Context, id string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	videos, err := a.load(ctx)
	if err != nil {
		return err
	}
	kept := videos[:0]
	for _, v := range videos {
		if v.ID != id {
			kept = append(kept, v)
		}
	}
	if len(kept) == len(videos) {
		return nil
	}
	if err := a.store(ctx, kept); err != nil {
		return err
	}
	a.logger.InfoContext(ctx, "video deleted", "id", id)
	return nil
}

// Reset empties the collection.
func (a *Archive) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.store(ctx, []SavedVideo{})
}

func (a *Archive) Close() error { return a.kv.Close() }

func (a *Archive) load(ctx context.Context) ([]SavedVideo, error) {
	data, err := a.kv.Get(ctx, CollectionKey)
	if err != nil {
		return nil, &types.StorageError{Op: "read", Err: err}
	}
	if len(data) == 0 {
		return []SavedVideo{}, nil
	}

	var videos []SavedVideo
	if err := json.Unmarshal(data, &videos); err != nil {
		return nil, &types.StorageError{Op: "read", Err: fmt.Errorf("corrupt collection: %w", err)}
	}
	if videos == nil {
		videos = []SavedVideo{}
	}
	return videos, nil
}

func (a *Archive) store(ctx context.Context, videos []SavedVideo) error {
	data, err := json.Marshal(videos)
	if err != nil {
		return &types.StorageError{Op: "write", Err: err}
	}
	if err := a.kv.Set(ctx, CollectionKey, data); err != nil {
		return &types.StorageError{Op: "write", Err: err}
	}
	return nil
}
