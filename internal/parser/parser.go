// Package parser turns uploaded support documents into normalized plain text.
package parser

import (
	"fmt"
	"path/filepath"
	"strings"

	"qaforge/internal/failure"
)

type Format string

const (
	FormatMarkdown Format = "md"
	FormatText     Format = "txt"
	FormatJSON     Format = "json"
	FormatYAML     Format = "yaml"
	FormatTOML     Format = "toml"
	FormatHTML     Format = "html"
	FormatPDF      Format = "pdf"
)

var extensions = map[string]Format{
	"md":       FormatMarkdown,
	"markdown": FormatMarkdown,
	"txt":      FormatText,
	"json":     FormatJSON,
	"yaml":     FormatYAML,
	"yml":      FormatYAML,
	"toml":     FormatTOML,
	"html":     FormatHTML,
	"htm":      FormatHTML,
	"pdf":      FormatPDF,
}

// Document is the immutable output of a successful parse.
type Document struct {
	Filename  string `json:"filename"`
	Format    Format `json:"format"`
	SizeBytes int    `json:"size_bytes"`
	RawText   string `json:"-"`
}

type Result struct {
	Filename string         `json:"filename"`
	Success  bool           `json:"success"`
	Document *Document      `json:"document,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
	Err      error          `json:"-"`
}

// Error returns the failure message or an empty string.
func (r Result) Error() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

type File struct {
	Name string
	Data []byte
}

type Batch struct {
	Total      int      `json:"total"`
	Successful int      `json:"successful"`
	Failed     int      `json:"failed"`
	Results    []Result `json:"results"`
}

// Extension returns the lower-cased extension of name without the dot.
func Extension(name string) string {
	return strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))
}

// FormatOf resolves the format for a filename.
func FormatOf(name string) (Format, bool) {
	f, ok := extensions[Extension(name)]
	return f, ok
}

// Supported reports whether name has a parseable extension.
func Supported(name string) bool {
	_, ok := FormatOf(name)
	return ok
}

// Parse never panics or returns a bare error: failures are reported inside
// the Result and always carry a failure kind.
func Parse(filename string, data []byte) (res Result) {
	res = Result{Filename: filename}

	format, ok := FormatOf(filename)
	if !ok {
		res.Err = failure.Unsupported("." + Extension(filename))
		return res
	}

	defer func() {
		if r := recover(); r != nil {
			res = Result{
				Filename: filename,
				Err:      failure.New(failure.ErrParse, "parse "+filename, fmt.Errorf("%v", r)),
			}
		}
	}()

	meta := map[string]any{
		"filename":   filename,
		"file_type":  string(format),
		"size_bytes": len(data),
	}

	var (
		text string
		err  error
	)
	switch format {
	case FormatMarkdown, FormatText:
		text = Normalize(string(data))
	case FormatJSON:
		text, err = flattenJSON(data)
	case FormatYAML:
		text, err = flattenYAML(data)
	case FormatTOML:
		text, err = flattenTOML(data)
	case FormatHTML:
		text, err = parseMarkup(data, meta)
	case FormatPDF:
		text, err = parsePDF(data, meta)
	}
	if err != nil {
		res.Err = failure.New(failure.ErrParse, "parse "+filename, err)
		return res
	}

	res.Success = true
	res.Metadata = meta
	res.Document = &Document{
		Filename:  filename,
		Format:    format,
		SizeBytes: len(data),
		RawText:   text,
	}
	return res
}

// ParseAll parses every file; one failing file does not stop the batch.
func ParseAll(files []File) Batch {
	b := Batch{Total: len(files), Results: make([]Result, 0, len(files))}
	for _, f := range files {
		r := Parse(f.Name, f.Data)
		if r.Success {
			b.Successful++
		} else {
			b.Failed++
		}
		b.Results = append(b.Results, r)
	}
	return b
}
