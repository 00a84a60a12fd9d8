package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/akave-ai/browserlog/internal/model"
)

// Mirror is the object store a failure artifact is copied to.
type Mirror interface {
	PutObject(ctx context.Context, key string, data []byte, contentType string) error
	GetObject(ctx context.Context, key string) ([]byte, error)
}

// Artifacts writes one diagnostic text file per failed ingestion into dir and,
// when a mirror is set, uploads the same bytes to object storage.
type Artifacts struct {
	dir    string
	mirror Mirror
}

// NewArtifacts returns an artifact writer rooted at dir. o3 may be nil.
func NewArtifacts(dir string, o3 *O3Client) *Artifacts {
	a := &Artifacts{dir: dir}
	if o3 != nil {
		a.mirror = o3
	}
	return a
}

// Path returns where the artifact for id is written on disk.
func (a *Artifacts) Path(id string) string {
	return filepath.Join(a.dir, artifactName(id))
}

// WriteFailure writes the artifact to disk and to the mirror. Both writes are
// attempted; their errors are joined.
func (a *Artifacts) WriteFailure(ctx context.Context, failed *model.FailedLogEntry, raw []byte) error {
	data := FormatFailure(failed, raw)
	id := failed.ID.String()

	var diskErr error
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		diskErr = fmt.Errorf("create artifact dir: %w", err)
	} else if err := os.WriteFile(a.Path(id), data, 0o644); err != nil {
		diskErr = fmt.Errorf("write artifact: %w", err)
	}

	var mirrorErr error
	if a.mirror != nil {
		key := KeyForFailure(id, failed.ReceivedAt)
		if err := a.mirror.PutObject(ctx, key, data, "text/plain; charset=utf-8"); err != nil {
			mirrorErr = fmt.Errorf("mirror artifact %s: %w", key, err)
		}
	}
	return errors.Join(diskErr, mirrorErr)
}

// Read returns the artifact of a failed entry, from disk first and then from
// the mirror. It returns ErrObjectNotFound when neither has it.
func (a *Artifacts) Read(ctx context.Context, failed *model.FailedLogEntry) ([]byte, error) {
	id := failed.ID.String()
	data, err := os.ReadFile(a.Path(id))
	if err == nil {
		return data, nil
	}
	if !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	if a.mirror == nil {
		return nil, ErrObjectNotFound
	}
	return a.mirror.GetObject(ctx, KeyForFailure(id, failed.ReceivedAt))
}

// FormatFailure renders the artifact: header lines followed by the raw body,
// with invalid UTF-8 replaced.
func FormatFailure(failed *model.FailedLogEntry, raw []byte) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "ID: %s\n", failed.ID)
	fmt.Fprintf(&b, "Time: %s\n", formatStamp(failed.ReceivedAt))
	fmt.Fprintf(&b, "IP: %s\n", failed.IPAddress)
	fmt.Fprintf(&b, "Error: %s\n", failed.ErrorMessage)
	b.WriteString("Raw data:\n")
	b.WriteString(strings.ToValidUTF8(string(raw), "\uFFFD"))
	return b.Bytes()
}

func artifactName(id string) string {
	return "failed_" + id + ".txt"
}

// formatStamp renders t as 20060102_150405_<microseconds>.
func formatStamp(t time.Time) string {
	t = t.UTC()
	return fmt.Sprintf("%s_%06d", t.Format("20060102_150405"), t.Nanosecond()/1000)
}
