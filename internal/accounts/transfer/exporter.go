package transfer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"accman/internal/accounts/codec"
	dErrors "accman/pkg/domain-errors"
	"accman/pkg/requestcontext"
)

// Exporter writes records to a fresh temp file the caller must Close.
type Exporter struct {
	tempDir string
	indent  int
	logger  *slog.Logger
}

func NewExporter(tempDir string, indent int, logger *slog.Logger) *Exporter {
	return &Exporter{tempDir: tempDir, indent: indent, logger: logger}
}

// ExportFile is a written export. Close deletes it and is safe to call twice.
type ExportFile struct {
	Path         string
	DownloadName string
	Format       codec.Format

	once     sync.Once
	closeErr error
}

// Open opens the export for streaming.
func (f *ExportFile) Open() (*os.File, error) {
	return os.Open(f.Path)
}

func (f *ExportFile) Close() error {
	f.once.Do(func() {
		if err := os.Remove(f.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			f.closeErr = err
		}
	})
	return f.closeErr
}

// DownloadName is the attachment name offered to clients.
func DownloadName(format codec.Format) string {
	return "Accounts." + format.Ext()
}

// Export encodes records in format and charset into a temp file named after
// the request time.
func (ex *Exporter) Export(ctx context.Context, records []codec.Record, format codec.Format, charset codec.Charset) (*ExportFile, error) {
	if !format.Valid() {
		return nil, dErrors.New(dErrors.CodeBadRequest, fmt.Sprintf("unsupported file format: '%s'", format)).At("export_type")
	}
	if err := os.MkdirAll(ex.tempDir, 0o700); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to prepare temp dir")
	}

	stamp := requestcontext.Now(ctx).Unix()
	f, err := os.CreateTemp(ex.tempDir, fmt.Sprintf("%d-*.%s", stamp, format.Ext()))
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to create export file")
	}
	out := &ExportFile{Path: f.Name(), DownloadName: DownloadName(format), Format: format}

	werr := codec.Encode(f, records, format, codec.Options{Indent: ex.indent, Charset: charset})
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		_ = out.Close()
		ex.logger.ErrorContext(ctx, "failed to write export",
			"format", format,
			"charset", charset,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to write export")
	}

	ex.logger.DebugContext(ctx, "export written",
		"path", out.Path,
		"records", len(records),
		"request_id", requestcontext.RequestID(ctx),
	)
	return out, nil
}
