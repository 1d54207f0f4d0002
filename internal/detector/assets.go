package detector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/andresmejia3/facetrack/internal/types"
)

// Model manifests that must be reachable under the model base path.
const (
	TinyFaceDetectorManifest = "tiny_face_detector_model-weights_manifest.json"
	FaceLandmark68Manifest   = "face_landmark_68_model-weights_manifest.json"
)

// Manifests lists the assets loaded by every backend, in load order.
var Manifests = []string{TinyFaceDetectorManifest, FaceLandmark68Manifest}

// manifestGroup is one entry of a weights manifest. Paths are relative to the manifest.
type manifestGroup struct {
	Paths []string `json:"paths"`
}

// DefaultCacheDir is where assets fetched from a remote base are kept.
func DefaultCacheDir() string {
	return filepath.Join(os.TempDir(), "facetrack-models")
}

// IsRemote reports whether base is an http(s) URL rather than a directory.
func IsRemote(base string) bool {
	return strings.HasPrefix(base, "http://") || strings.HasPrefix(base, "https://")
}

// ResolveAssets makes the model manifests and their weight shards available locally and returns
// the directory holding them. A local base is verified in place. A remote base is downloaded into
// cacheDir. Any missing or malformed asset is reported as *types.ModelLoadError.
func ResolveAssets(ctx context.Context, base, cacheDir string, client *http.Client) (string, error) {
	if !IsRemote(base) {
		for _, m := range Manifests {
			if err := verifyLocal(base, m); err != nil {
				return "", err
			}
		}
		return base, nil
	}

	if client == nil {
		client = http.DefaultClient
	}
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return "", &types.ModelLoadError{Asset: cacheDir, Err: err}
	}
	for _, m := range Manifests {
		if err := fetchManifest(ctx, client, base, cacheDir, m); err != nil {
			return "", err
		}
	}
	return cacheDir, nil
}

func verifyLocal(dir, manifest string) error {
	data, err := os.ReadFile(filepath.Join(dir, manifest))
	if err != nil {
		return &types.ModelLoadError{Asset: manifest, Err: err}
	}
	shards, err := shardPaths(data)
	if err != nil {
		return &types.ModelLoadError{Asset: manifest, Err: err}
	}
	for _, s := range shards {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(s))); err != nil {
			return &types.ModelLoadError{Asset: s, Err: err}
		}
	}
	return nil
}

func fetchManifest(ctx context.Context, client *http.Client, base, dir, manifest string) error {
	data, err := fetch(ctx, client, joinURL(base, manifest))
	if err != nil {
		return &types.ModelLoadError{Asset: manifest, Err: err}
	}
	shards, err := shardPaths(data)
	if err != nil {
		return &types.ModelLoadError{Asset: manifest, Err: err}
	}
	if err := writeAsset(dir, manifest, data); err != nil {
		return &types.ModelLoadError{Asset: manifest, Err: err}
	}

	for _, s := range shards {
		shard, err := fetch(ctx, client, joinURL(base, s))
		if err != nil {
			return &types.ModelLoadError{Asset: s, Err: err}
		}
		if err := writeAsset(dir, s, shard); err != nil {
			return &types.ModelLoadError{Asset: s, Err: err}
		}
	}
	return nil
}

func shardPaths(manifest []byte) ([]string, error) {
	var groups []manifestGroup
	if err := json.Unmarshal(manifest, &groups); err != nil {
		return nil, fmt.Errorf("invalid weights manifest: %w", err)
	}
	var out []string
	for _, g := range groups {
		for _, p := range g.Paths {
			clean := path.Clean(p)
			if path.IsAbs(clean) || strings.HasPrefix(clean, "..") {
				return nil, fmt.Errorf("weights path %q escapes the model directory", p)
			}
			out = append(out, clean)
		}
	}
	return out, nil
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: %s", url, resp.Status)
	}
	return io.ReadAll(resp.Body)
}

// writeAsset writes through a temp file so an interrupted download never leaves a truncated asset.
func writeAsset(dir, name string, data []byte) error {
	dst := filepath.Join(dir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".asset-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}

func joinURL(base, name string) string {
	return strings.TrimRight(base, "/") + "/" + name
}
