package ztm

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spkg/bom"
	"golang.org/x/text/encoding/charmap"
)

const (
	EncodingWindows1250 = "windows-1250"
	EncodingUTF8        = "utf-8"
)

// A re-readable timetable export. Every call to Open starts a fresh
// traversal from the beginning, decoded to UTF-8.
type Source interface {
	Open() (io.ReadCloser, error)
}

// An export on the local filesystem.
type FileSource struct {
	Path     string
	Encoding string
}

func (s FileSource) Open() (io.ReadCloser, error) {
	buf, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", s.Path, err)
	}
	return BytesSource{Data: buf, Encoding: s.Encoding}.Open()
}

// An export held in memory, e.g. as downloaded. Zipped exports are
// unpacked.
type BytesSource struct {
	Data     []byte
	Encoding string
}

func (s BytesSource) Open() (io.ReadCloser, error) {
	data := s.Data

	if isZip(data) {
		unzipped, err := unzipExport(data)
		if err != nil {
			return nil, err
		}
		data = unzipped
	}

	r, err := decode(bytes.NewReader(data), s.Encoding)
	if err != nil {
		return nil, err
	}

	return io.NopCloser(r), nil
}

func decode(r io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", EncodingWindows1250, "cp1250":
		return charmap.Windows1250.NewDecoder().Reader(r), nil
	case EncodingUTF8, "utf8":
		return bom.NewReader(r), nil
	}
	return nil, fmt.Errorf("unsupported encoding '%s'", encoding)
}

func isZip(data []byte) bool {
	return bytes.HasPrefix(data, []byte("PK\x03\x04"))
}

// Returns the first .txt file in a zip archive.
func unzipExport(data []byte) ([]byte, error) {
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("unzipping: %w", err)
	}

	for _, f := range r.File {
		if f.FileInfo().IsDir() {
			continue
		}
		if !strings.HasSuffix(strings.ToLower(f.Name), ".txt") {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", f.Name, err)
		}
		defer rc.Close()

		buf, err := io.ReadAll(rc)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", f.Name, err)
		}
		return buf, nil
	}

	return nil, fmt.Errorf("no .txt file in archive")
}
