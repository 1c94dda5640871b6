package testsupport

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"callpipe/internal/queue"
)

const fillByte = 0x42

// WriteFile fills the target path with the requested number of bytes using a
// simple repeating pattern. A size <= 0 writes a single byte.
func WriteFile(t testing.TB, path string, size int64) {
	t.Helper()

	if size <= 0 {
		size = 1
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir for %s: %v", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create %s: %v", path, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, io.LimitReader(patternReader{}, size)); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

// MemoryArtifact builds an in-memory artifact of size bytes. Each Open returns
// a fresh reader so retries start from the beginning.
func MemoryArtifact(name string, size int64) queue.Artifact {
	contentType, ok := queue.ContentTypeFor(name)
	if !ok {
		contentType = "application/octet-stream"
	}
	return queue.Artifact{
		Name:        name,
		Size:        size,
		ContentType: contentType,
		Source: queue.SourceFunc(func() (io.ReadCloser, error) {
			return io.NopCloser(io.LimitReader(patternReader{}, size)), nil
		}),
	}
}

// patternReader yields fillByte forever without allocating the whole artifact.
type patternReader struct{}

func (patternReader) Read(p []byte) (int, error) {
	for i := range p {
		p[i] = fillByte
	}
	return len(p), nil
}
