// Package evidence validates and stores photo and video files attached to
// incident reports.
package evidence

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"mime"
	"mime/multipart"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/patrickwarner/pollwatch/internal/apperr"
	"github.com/patrickwarner/pollwatch/internal/observability"
)

// PathPrefix is the URL prefix of returned evidence references.
const PathPrefix = "uploads"

var allowedExtensions = map[string]bool{
	".jpeg": true, ".jpg": true, ".png": true, ".gif": true,
	".mp4": true, ".mov": true, ".avi": true,
}

var allowedMIME = []string{
	"image/jpeg", "image/png", "image/gif",
	"video/mp4", "video/quicktime", "video/x-msvideo", "video/avi", "video/msvideo",
}

// File is one uploaded file awaiting intake.
type File struct {
	Name        string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromMultipart adapts a multipart file header.
func FromMultipart(fh *multipart.FileHeader) File {
	return File{
		Name:        fh.Filename,
		ContentType: fh.Header.Get("Content-Type"),
		Size:        fh.Size,
		Open: func() (io.ReadCloser, error) {
			return fh.Open()
		},
	}
}

// FromBytes wraps in-memory content.
func FromBytes(name, contentType string, data []byte) File {
	return File{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(data)), nil
		},
	}
}

// Intake validates batches of files and writes accepted ones to Dir.
type Intake struct {
	dir      string
	maxFiles int
	maxBytes int64
	logger   *zap.Logger
	metrics  observability.MetricsRegistry
	now      func() time.Time
	suffix   func() int
}

// NewIntake creates the upload directory if needed.
func NewIntake(dir string, maxFiles int, maxBytes int64, logger *zap.Logger, metrics observability.MetricsRegistry) (*Intake, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if metrics == nil {
		metrics = observability.NewNoOpRegistry()
	}
	return &Intake{
		dir:      dir,
		maxFiles: maxFiles,
		maxBytes: maxBytes,
		logger:   logger,
		metrics:  metrics,
		now:      time.Now,
		suffix:   func() int { return rand.IntN(1_000_000_000) },
	}, nil
}

// Dir returns the directory files are written to.
func (in *Intake) Dir() string { return in.dir }

// MaxFiles returns the per-report file limit.
func (in *Intake) MaxFiles() int { return in.maxFiles }

// MaxBytes returns the per-file size limit.
func (in *Intake) MaxBytes() int64 { return in.maxBytes }

// Accept validates every file and then stores them, returning one reference
// per file in input order. Nothing is stored unless the whole batch is valid.
func (in *Intake) Accept(ctx context.Context, files []File) ([]string, error) {
	if len(files) == 0 {
		return []string{}, nil
	}
	if len(files) > in.maxFiles {
		return nil, in.reject(apperr.Validation(apperr.ReasonTooMany, "Too many files; at most %d allowed", in.maxFiles))
	}
	for _, f := range files {
		if err := in.validate(f); err != nil {
			return nil, in.reject(err)
		}
	}

	refs := make([]string, 0, len(files))
	written := make([]string, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			in.cleanup(written)
			return nil, apperr.Internal("store evidence", err)
		}
		name, n, err := in.write(f)
		if err != nil {
			in.cleanup(written)
			if apperr.Is(err, apperr.KindValidation) {
				return nil, in.reject(err)
			}
			return nil, apperr.Internal("store evidence", err)
		}
		written = append(written, filepath.Join(in.dir, name))
		refs = append(refs, path.Join(PathPrefix, name))
		in.metrics.AddEvidenceStoredBytes(n)
	}
	return refs, nil
}

// Remove deletes previously accepted files by reference. Missing files are
// ignored.
func (in *Intake) Remove(refs []string) {
	for _, ref := range refs {
		name := path.Base(ref)
		if name == "." || name == "/" || name == ".." {
			continue
		}
		if err := os.Remove(filepath.Join(in.dir, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
			in.logger.Warn("remove evidence", zap.String("ref", ref), zap.Error(err))
		}
	}
}

func (in *Intake) validate(f File) error {
	ext := strings.ToLower(filepath.Ext(f.Name))
	if !allowedExtensions[ext] {
		return invalidType()
	}
	ok, err := in.mimeAllowed(f)
	if err != nil {
		return apperr.Internal("inspect evidence", err)
	}
	if !ok {
		return invalidType()
	}
	if f.Size > in.maxBytes {
		return tooLarge(in.maxBytes)
	}
	return nil
}

func (in *Intake) mimeAllowed(f File) (bool, error) {
	declared := f.ContentType
	if mt, _, err := mime.ParseMediaType(declared); err == nil {
		declared = mt
	}
	declared = strings.ToLower(declared)
	if declared != "" && declared != "application/octet-stream" {
		for _, a := range allowedMIME {
			if declared == a {
				return true, nil
			}
		}
		return false, nil
	}

	rc, err := f.Open()
	if err != nil {
		return false, err
	}
	defer rc.Close()
	detected, err := mimetype.DetectReader(rc)
	if err != nil {
		return false, err
	}
	for _, a := range allowedMIME {
		if detected.Is(a) {
			return true, nil
		}
	}
	return false, nil
}

func (in *Intake) write(f File) (string, int64, error) {
	src, err := f.Open()
	if err != nil {
		return "", 0, err
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(f.Name))
	var (
		dst  *os.File
		name string
	)
	for attempt := 0; attempt < 3; attempt++ {
		name = fmt.Sprintf("%d-%09d%s", in.now().UnixMilli(), in.suffix(), ext)
		dst, err = os.OpenFile(filepath.Join(in.dir, name), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if !errors.Is(err, os.ErrExist) {
			break
		}
	}
	if err != nil {
		return "", 0, err
	}

	n, err := io.Copy(dst, io.LimitReader(src, in.maxBytes+1))
	cerr := dst.Close()
	switch {
	case err != nil:
	case cerr != nil:
		err = cerr
	case n > in.maxBytes:
		err = tooLarge(in.maxBytes)
	}
	if err != nil {
		_ = os.Remove(dst.Name())
		return "", 0, err
	}
	return name, n, nil
}

func (in *Intake) cleanup(paths []string) {
	for _, p := range paths {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			in.logger.Warn("clean up evidence", zap.String("path", p), zap.Error(err))
		}
	}
}

func (in *Intake) reject(err error) error {
	if r := apperr.ReasonOf(err); r != apperr.ReasonNone {
		in.metrics.IncrementEvidenceRejected(string(r))
	}
	return err
}

func invalidType() error {
	return apperr.Validation(apperr.ReasonInvalidType, "Only images and videos are allowed")
}

func tooLarge(limit int64) error {
	return apperr.Validation(apperr.ReasonTooLarge, "File too large; limit is %d MB", limit/(1024*1024))
}
