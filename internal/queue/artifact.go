package queue

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LargeFileThreshold is the size above which submissions are flagged as slow uploads.
const LargeFileThreshold int64 = 100 * 1024 * 1024

var (
	// ErrInvalidArtifact is returned for artifacts that cannot be submitted.
	ErrInvalidArtifact = errors.New("invalid artifact")
	// ErrUnsupportedFormat is returned for files whose extension is not a known audio format.
	ErrUnsupportedFormat = fmt.Errorf("%w: unsupported audio format", ErrInvalidArtifact)
)

var supportedFormats = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".ogg":  "audio/ogg",
	".aac":  "audio/aac",
	".wma":  "audio/x-ms-wma",
}

var supportedOrder = []string{".mp3", ".wav", ".m4a", ".flac", ".ogg", ".aac", ".wma"}

// Source opens the artifact's bytes. Each call returns a fresh reader so a
// retried transfer can start from the beginning.
type Source interface {
	Open() (io.ReadCloser, error)
}

// SourceFunc adapts a function to the Source interface.
type SourceFunc func() (io.ReadCloser, error)

// Open calls f.
func (f SourceFunc) Open() (io.ReadCloser, error) {
	return f()
}

// FileSource reads an artifact from the local filesystem.
type FileSource struct {
	Path string
}

// Open implements Source.
func (s FileSource) Open() (io.ReadCloser, error) {
	return os.Open(s.Path)
}

// Artifact references the caller-owned binary for a task. The bytes are never
// copied into the task; Source is opened once per transfer attempt.
type Artifact struct {
	Name        string
	Size        int64
	ContentType string
	Source      Source
}

// SupportedExtensions returns the accepted file extensions.
func SupportedExtensions() []string {
	cp := make([]string, len(supportedOrder))
	copy(cp, supportedOrder)
	return cp
}

// ContentTypeFor returns the MIME type for a supported file name.
func ContentTypeFor(name string) (string, bool) {
	ct, ok := supportedFormats[strings.ToLower(filepath.Ext(name))]
	return ct, ok
}

// NewArtifact validates a caller-provided source. maxSize of 0 disables the size ceiling.
func NewArtifact(name string, size int64, source Source, maxSize int64) (Artifact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Artifact{}, fmt.Errorf("%w: name is required", ErrInvalidArtifact)
	}
	if source == nil {
		return Artifact{}, fmt.Errorf("%w: %s: source is required", ErrInvalidArtifact, name)
	}
	contentType, ok := ContentTypeFor(name)
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s (supported: %s)", ErrUnsupportedFormat, name, strings.Join(SupportedExtensions(), ", "))
	}
	if size <= 0 {
		return Artifact{}, fmt.Errorf("%w: %s: file is empty", ErrInvalidArtifact, name)
	}
	if maxSize > 0 && size > maxSize {
		return Artifact{}, fmt.Errorf("%w: %s: size %d exceeds limit %d", ErrInvalidArtifact, name, size, maxSize)
	}
	return Artifact{Name: name, Size: size, ContentType: contentType, Source: source}, nil
}

// NewFileArtifact stats a local file and builds an Artifact for it.
func NewFileArtifact(path string, maxSize int64) (Artifact, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Artifact{}, fmt.Errorf("%w: %w", ErrInvalidArtifact, err)
	}
	if info.IsDir() {
		return Artifact{}, fmt.Errorf("%w: %s is a directory", ErrInvalidArtifact, path)
	}
	return NewArtifact(filepath.Base(path), info.Size(), FileSource{Path: path}, maxSize)
}
