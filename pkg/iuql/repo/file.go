package repo

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"gopkg.in/yaml.v3"

	"github.com/sambeau/iuql/pkg/iuql/metadata"
)

// Document is the on-disk form of a repository.
type Document struct {
	Name  string                      `yaml:"name,omitempty" json:"name,omitempty"`
	Units []*metadata.InstallableUnit `yaml:"units" json:"units"`
}

// Format is a document encoding.
type Format int

const (
	FormatYAML Format = iota
	FormatJSON
)

// Compression is a document compression scheme.
type Compression int

const (
	CompressNone Compression = iota
	CompressGzip
	CompressZstd
)

// DetectFormat derives the encoding and compression of a document from its
// file name.
func DetectFormat(path string) (Format, Compression, error) {
	name := strings.ToLower(filepath.Base(path))
	comp := CompressNone
	switch {
	case strings.HasSuffix(name, ".gz"):
		comp, name = CompressGzip, strings.TrimSuffix(name, ".gz")
	case strings.HasSuffix(name, ".zst"):
		comp, name = CompressZstd, strings.TrimSuffix(name, ".zst")
	}
	switch filepath.Ext(name) {
	case ".yaml", ".yml":
		return FormatYAML, comp, nil
	case ".json":
		return FormatJSON, comp, nil
	}
	return 0, 0, fmt.Errorf("%s: unknown repository format (want .yaml, .yml or .json)", path)
}

// LoadFile reads a repository document.
func LoadFile(path string) (*Memory, error) {
	format, comp, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening repository: %w", err)
	}
	defer f.Close()

	r, err := decompress(f, comp)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer r.Close()

	doc, err := ReadDocument(r, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return NewMemory(path, doc.Units)
}

// ReadDocument decodes a repository document.
func ReadDocument(r io.Reader, format Format) (*Document, error) {
	var doc Document
	switch format {
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&doc); err != nil {
			return nil, fmt.Errorf("parsing JSON: %w", err)
		}
	default:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil && err != io.EOF {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}
	return &doc, nil
}

// WriteFile writes units as a repository document, encoded and compressed
// according to the file name.
func WriteFile(path string, doc *Document) error {
	format, comp, err := DetectFormat(path)
	if err != nil {
		return err
	}

	var buf bytes.Buffer
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(&buf)
		enc.SetIndent("", "  ")
		err = enc.Encode(doc)
	default:
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		err = enc.Encode(doc)
		if err == nil {
			err = enc.Close()
		}
	}
	if err != nil {
		return fmt.Errorf("encoding repository: %w", err)
	}

	data, err := compress(buf.Bytes(), comp)
	if err != nil {
		return fmt.Errorf("compressing repository: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func decompress(r io.Reader, comp Compression) (io.ReadCloser, error) {
	switch comp {
	case CompressGzip:
		return gzip.NewReader(r)
	case CompressZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, err
		}
		return zr.IOReadCloser(), nil
	}
	return io.NopCloser(r), nil
}

func compress(data []byte, comp Compression) ([]byte, error) {
	switch comp {
	case CompressGzip:
		var buf bytes.Buffer
		zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
		if err != nil {
			return nil, err
		}
		if _, err := zw.Write(data); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case CompressZstd:
		zw, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, err
		}
		defer zw.Close()
		return zw.EncodeAll(data, nil), nil
	}
	return data, nil
}
