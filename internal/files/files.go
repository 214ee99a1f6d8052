// Package files provides the downloadable file sources: a local directory or
// an S3-compatible bucket.
package files

import (
	"context"
	"errors"
	"io"
	"io/fs"
	"mime"
	"path"
	"time"
)

var (
	// ErrNotFound is returned when the named file does not exist.
	ErrNotFound = errors.New("file not found")

	// ErrInvalidName is returned for names that are not clean relative
	// paths, such as "../secret" or "/etc/passwd".
	ErrInvalidName = errors.New("invalid file name")
)

// Source lists and opens downloadable files.
type Source interface {
	// List returns the sorted names of the regular files at the top level.
	List(ctx context.Context) ([]string, error)

	// Open returns the named file. The caller must close Object.Body.
	Open(ctx context.Context, name string) (*Object, error)
}

// Object is an opened file ready to stream.
type Object struct {
	Name        string
	Size        int64
	ModTime     time.Time
	ContentType string

	// Body also implements io.Seeker for sources that support it, which
	// lets HTTP handlers serve range requests.
	Body io.ReadCloser
}

// Close closes the object body.
func (o *Object) Close() error {
	if o.Body == nil {
		return nil
	}
	return o.Body.Close()
}

// ValidateName rejects anything that is not a clean, slash-separated relative
// path naming a file.
func ValidateName(name string) error {
	if name == "" || name == "." || !fs.ValidPath(name) {
		return ErrInvalidName
	}
	return nil
}

// contentType guesses the MIME type from the file extension.
func contentType(name string) string {
	if ct := mime.TypeByExtension(path.Ext(name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
