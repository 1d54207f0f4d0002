package detector

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/andresmejia3/facetrack/internal/types"
)

const testManifest = `[{"paths":["shard1"],"weights":[{"name":"conv0/filters","shape":[3,3,3,16],"dtype":"float32"}]}]`

func writeModels(t *testing.T, dir string, withShards bool) {
	t.Helper()
	for _, m := range Manifests {
		if err := os.WriteFile(filepath.Join(dir, m), []byte(testManifest), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if withShards {
		if err := os.WriteFile(filepath.Join(dir, "shard1"), []byte{1, 2, 3}, 0o644); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveAssets_Local(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir, true)

	got, err := ResolveAssets(context.Background(), dir, "", nil)
	if err != nil {
		t.Fatalf("ResolveAssets failed: %v", err)
	}
	if got != dir {
		t.Errorf("Expected local dir %q, got %q", dir, got)
	}
}

func TestResolveAssets_MissingShard(t *testing.T) {
	dir := t.TempDir()
	writeModels(t, dir, false)

	_, err := ResolveAssets(context.Background(), dir, "", nil)
	var mle *types.ModelLoadError
	if !errors.As(err, &mle) {
		t.Fatalf("Expected ModelLoadError, got %v", err)
	}
	if mle.Asset != "shard1" {
		t.Errorf("Expected failing asset shard1, got %q", mle.Asset)
	}
}

func TestResolveAssets_Remote(t *testing.T) {
	src := t.TempDir()
	writeModels(t, src, true)
	srv := httptest.NewServer(http.FileServer(http.Dir(src)))
	defer srv.Close()

	cache := t.TempDir()
	got, err := ResolveAssets(context.Background(), srv.URL+"/", cache, srv.Client())
	if err != nil {
		t.Fatalf("ResolveAssets failed: %v", err)
	}
	if got != cache {
		t.Errorf("Expected cache dir, got %q", got)
	}
	for _, name := range append(Manifests, "shard1") {
		if _, err := os.Stat(filepath.Join(cache, name)); err != nil {
			t.Errorf("Expected %s to be downloaded: %v", name, err)
		}
	}
}

func TestResolveAssets_RemoteUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	_, err := ResolveAssets(context.Background(), srv.URL, t.TempDir(), srv.Client())
	var mle *types.ModelLoadError
	if !errors.As(err, &mle) || mle.Asset != TinyFaceDetectorManifest {
		t.Fatalf("Expected ModelLoadError for the detector manifest, got %v", err)
	}
}

func TestShardPathsRejectsEscapes(t *testing.T) {
	if _, err := shardPaths([]byte(`[{"paths":["../../etc/passwd"]}]`)); err == nil {
		t.Error("Expected escaping shard path to be rejected")
	}
}
