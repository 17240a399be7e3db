package transfer

import (
	"bytes"
	"io"
	"mime/multipart"
)

// Upload is an uploaded file: its client-supplied name and its bytes.
type Upload interface {
	Filename() string
	Open() (io.ReadCloser, error)
}

type multipartUpload struct {
	header *multipart.FileHeader
}

// FromMultipart adapts a multipart form file.
func FromMultipart(header *multipart.FileHeader) Upload {
	return multipartUpload{header: header}
}

func (u multipartUpload) Filename() string { return u.header.Filename }

func (u multipartUpload) Open() (io.ReadCloser, error) {
	return u.header.Open()
}

type bytesUpload struct {
	name string
	data []byte
}

// NewUpload wraps in-memory content, e.g. a file read by the CLI.
func NewUpload(filename string, data []byte) Upload {
	return bytesUpload{name: filename, data: data}
}

func (u bytesUpload) Filename() string { return u.name }

func (u bytesUpload) Open() (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(u.data)), nil
}
