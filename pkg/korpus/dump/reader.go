// Package dump streams article records out of compressed MediaWiki-style
// XML dumps without materializing the dump in memory.
package dump

import (
	"compress/bzip2"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// Record is one extracted page: the title and the raw markup body.
// Records are ephemeral; callers must not retain them across iterations.
type Record struct {
	Title   string
	RawBody string
}

// Reader walks a dump file page by page. It is strictly sequential and
// single-goroutine; there is no resume point inside a pass. Resumability
// across runs is handled at the title level by the cache package.
type Reader struct {
	file    *os.File
	closer  io.Closer // decompressor, when it needs closing
	dec     *xml.Decoder
	skipped int
}

// Open opens a dump file, picking the decompressor from the extension:
// .bz2, .gz, .zst, or none for plain XML.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dump: %w", err)
	}

	var (
		src    io.Reader
		closer io.Closer
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".bz2":
		src = bzip2.NewReader(f)
	case ".gz":
		gz, err := gzip.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open gzip dump: %w", err)
		}
		src = gz
		closer = gz
	case ".zst":
		zr, err := zstd.NewReader(f)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("open zstd dump: %w", err)
		}
		src = zr.IOReadCloser()
	default:
		src = f
	}

	return &Reader{
		file:   f,
		closer: closer,
		dec:    xml.NewDecoder(src),
	}, nil
}

// Next returns the next page with a non-empty title and body. Pages missing
// either field are skipped silently; they are non-events, not errors. Next
// returns io.EOF after the last page and any other error verbatim -- a
// broken stream is fatal to the whole pass.
func (r *Reader) Next() (Record, error) {
	var (
		inPage bool
		field  string // "title" or "text" while inside that element
		title  strings.Builder
		body   strings.Builder
	)

	for {
		tok, err := r.dec.Token()
		if err != nil {
			if err == io.EOF {
				return Record{}, io.EOF
			}
			return Record{}, fmt.Errorf("read dump: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "page":
				inPage = true
				title.Reset()
				body.Reset()
			case "title", "text":
				if inPage {
					field = t.Name.Local
				}
			}
		case xml.CharData:
			if field == "title" {
				title.Write(t)
			} else if field == "text" {
				body.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "title", "text":
				field = ""
			case "page":
				inPage = false
				rec := Record{
					Title:   strings.TrimSpace(title.String()),
					RawBody: body.String(),
				}
				if rec.Title == "" || strings.TrimSpace(rec.RawBody) == "" {
					r.skipped++
					continue
				}
				return rec, nil
			}
		}
	}
}

// Skipped reports how many malformed pages were dropped so far.
func (r *Reader) Skipped() int { return r.skipped }

// Close releases the underlying file and decompressor.
func (r *Reader) Close() error {
	if r.closer != nil {
		r.closer.Close()
	}
	return r.file.Close()
}
