package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"accman/internal/accounts/codec"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/requestcontext"
)

// LocationUpload is the request field import errors are reported against.
const LocationUpload = "upload"

// ErrUnreadable is the only parse failure callers ever see; the cause is logged.
var ErrUnreadable = dErrors.New(dErrors.CodeBadRequest, "could not read file").At(LocationUpload)

// Importer turns an uploaded file into records via a short-lived temp file.
type Importer struct {
	tempDir  string
	maxBytes int64
	logger   *slog.Logger
}

type ImporterOption func(*Importer)

// WithMaxBytes rejects uploads larger than n bytes. Zero disables the limit.
func WithMaxBytes(n int64) ImporterOption {
	return func(im *Importer) {
		im.maxBytes = n
	}
}

func NewImporter(tempDir string, logger *slog.Logger, opts ...ImporterOption) *Importer {
	im := &Importer{tempDir: tempDir, logger: logger}
	for _, opt := range opts {
		opt(im)
	}
	return im
}

// Extract parses the upload. The temp file is removed on every return path.
func (im *Importer) Extract(ctx context.Context, upload Upload, charset codec.Charset) ([]codec.Record, error) {
	requestID := requestcontext.RequestID(ctx)
	name := filepath.Base(upload.Filename())

	format, err := codec.DetermineFormat(name)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, err.Error()).At(LocationUpload)
	}
	if err := ctx.Err(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "import cancelled")
	}

	path, err := im.persist(upload, name, format)
	if path != "" {
		defer im.remove(ctx, path)
	}
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to reopen upload")
	}
	defer f.Close()

	records, err := codec.Decode(f, format, codec.Options{Charset: charset})
	if err != nil {
		im.logger.WarnContext(ctx, "file error",
			"filename", name,
			"format", format,
			"error", err,
			"request_id", requestID,
		)
		return nil, ErrUnreadable
	}
	return records, nil
}

var errTooLarge = errors.New("upload exceeds size limit")

// persist copies the upload into tempDir and returns the path it wrote, if any.
func (im *Importer) persist(upload Upload, name string, format codec.Format) (string, error) {
	if err := os.MkdirAll(im.tempDir, 0o700); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to prepare temp dir")
	}

	src, err := upload.Open()
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeBadRequest, "could not read file").At(LocationUpload)
	}
	defer src.Close()

	stem := strings.TrimSuffix(name, "."+format.Ext())
	dst, err := os.CreateTemp(im.tempDir, stem+"-*."+format.Ext())
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to create temp file")
	}
	path := dst.Name()

	if err := im.copy(dst, src); err != nil {
		_ = dst.Close()
		if errors.Is(err, errTooLarge) {
			return path, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("file is larger than %d bytes", im.maxBytes)).At(LocationUpload)
		}
		return path, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}
	if err := dst.Close(); err != nil {
		return path, dErrors.Wrap(err, dErrors.CodeInternal, "failed to store upload")
	}
	return path, nil
}

func (im *Importer) copy(dst io.Writer, src io.Reader) error {
	if im.maxBytes <= 0 {
		_, err := io.Copy(dst, src)
		return err
	}
	n, err := io.Copy(dst, io.LimitReader(src, im.maxBytes+1))
	if err != nil {
		return err
	}
	if n > im.maxBytes {
		return errTooLarge
	}
	return nil
}

func (im *Importer) remove(ctx context.Context, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		im.logger.ErrorContext(ctx, "failed to remove upload temp file",
			"path", path,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
	}
}
