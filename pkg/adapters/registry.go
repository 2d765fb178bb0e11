/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: registry.go
Description: Format registry for the Akaylee Reader. Maps format tags to adapter
constructors and file extensions. Text formats are routed through the charset
normalizer before their adapter sees a byte; binary formats receive the raw source.
Every stream handed out is guarded so it latches after a terminal error.
*/

package adapters

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/kleascm/akaylee-reader/pkg/charset"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/source"
	"github.com/sirupsen/logrus"
)

// Input is everything an adapter constructor receives
type Input struct {
	Source  *source.Source
	Text    io.Reader         // UTF-8 text, set for text formats only
	Charset charset.Decision  // how Text was decoded
	Tag     string            // the tag the adapter was selected under
	Options *interfaces.Options
	Logger  logrus.FieldLogger
}

// Factory builds a stream for one input. The stream owns in.Source.
type Factory func(ctx context.Context, in *Input) (interfaces.RecordStream, error)

// Format describes one registered format family
type Format struct {
	Tag         string   `json:"tag"`
	Aliases     []string `json:"aliases,omitempty"`
	Extensions  []string `json:"extensions"`
	Binary      bool     `json:"binary"`
	Description string   `json:"description"`
	Open        Factory  `json:"-"`
}

// Registry maps tags and extensions to formats
type Registry struct {
	mu      sync.RWMutex
	formats map[string]*Format
	aliases map[string]string
	byExt   map[string]string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		formats: make(map[string]*Format),
		aliases: make(map[string]string),
		byExt:   make(map[string]string),
	}
}

// Register adds a format. Tags, aliases and extensions must be unique.
func (r *Registry) Register(f Format) error {
	if f.Tag == "" || f.Open == nil {
		return fmt.Errorf("format must have a tag and a constructor")
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	tag := strings.ToLower(f.Tag)
	if _, exists := r.formats[tag]; exists {
		return fmt.Errorf("format already registered: %s", tag)
	}
	f.Tag = tag
	r.formats[tag] = &f
	for _, alias := range f.Aliases {
		r.aliases[strings.ToLower(alias)] = tag
	}
	for _, ext := range f.Extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if owner, taken := r.byExt[ext]; taken {
			return fmt.Errorf("extension %s already owned by %s", ext, owner)
		}
		r.byExt[ext] = tag
	}
	return nil
}

// Lookup resolves a tag or alias
func (r *Registry) Lookup(tag string) (*Format, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key := strings.ToLower(strings.TrimSpace(tag))
	if canonical, ok := r.aliases[key]; ok {
		key = canonical
	}
	f, ok := r.formats[key]
	if !ok {
		return nil, &interfaces.UnsupportedFormatError{Tag: tag}
	}
	return f, nil
}

// ForExtension returns the tag owning a file extension
func (r *Registry) ForExtension(ext string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	tag, ok := r.byExt[strings.ToLower(ext)]
	return tag, ok
}

// Formats lists registered formats sorted by tag
func (r *Registry) Formats() []Format {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Format, 0, len(r.formats))
	for _, f := range r.formats {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out
}

// Open builds a guarded stream for src under tag. On any error src is closed.
func (r *Registry) Open(ctx context.Context, tag string, src *source.Source, opts *interfaces.Options, logger logrus.FieldLogger) (interfaces.RecordStream, error) {
	f, err := r.Lookup(tag)
	if err != nil {
		src.Close()
		return nil, err
	}
	if opts == nil {
		opts = interfaces.DefaultOptions()
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	in := &Input{
		Source:  src,
		Tag:     f.Tag,
		Options: opts,
		Logger:  logger.WithFields(logrus.Fields{"format": f.Tag, "source": src.Location()}),
	}
	if !f.Binary {
		text, decision, err := charset.NewNormalizer(opts, logger).Normalize(src, src.Location())
		if err != nil {
			src.Close()
			return nil, err
		}
		in.Text = text
		in.Charset = decision
	}

	stream, err := f.Open(ctx, in)
	if err != nil {
		src.Close()
		return nil, err
	}
	return interfaces.Guard(stream), nil
}

// Default returns a registry with every built-in format
func Default() *Registry {
	r := NewRegistry()
	for _, f := range builtins() {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
	return r
}

func builtins() []Format {
	return []Format{
		{Tag: "csv", Extensions: []string{".csv"}, Description: "Comma separated values, one record per row", Open: openCSV},
		{Tag: "tsv", Extensions: []string{".tsv", ".tab"}, Description: "Tab separated values, one record per row", Open: openCSV},
		{Tag: "json", Extensions: []string{".json"}, Description: "JSON, one record per top-level array element", Open: openJSON},
		{Tag: "jsonl", Aliases: []string{"ndjson"}, Extensions: []string{".jsonl", ".ndjson"}, Description: "JSON Lines, one record per line", Open: openJSONLines},
		{Tag: "yaml", Aliases: []string{"yml"}, Extensions: []string{".yaml", ".yml"}, Description: "YAML, one record per document or top-level sequence element", Open: openYAML},
		{Tag: "toml", Extensions: []string{".toml"}, Description: "TOML, one record per document", Open: openTOML},
		{Tag: "xml", Extensions: []string{".xml"}, Description: "XML, one record per element at the target depth", Open: openXML},
		{Tag: "html", Aliases: []string{"htm"}, Extensions: []string{".html", ".htm"}, Description: "HTML tables or text blocks", Open: openHTML},
		{Tag: "markdown", Aliases: []string{"md"}, Extensions: []string{".md", ".markdown"}, Description: "Markdown, one record per block", Open: openMarkdown},
		{Tag: "txt", Aliases: []string{"text"}, Extensions: []string{".txt", ".log", ".text"}, Description: "Plain text, one record per line", Open: openText},
		{Tag: "excel", Aliases: []string{"xlsx"}, Extensions: []string{".xlsx", ".xlsm"}, Binary: true, Description: "Excel workbooks, one record per row of every sheet", Open: openExcel},
		{Tag: "sqlite", Extensions: []string{".sqlite", ".sqlite3", ".db"}, Binary: true, Description: "SQLite databases, one record per row of every table", Open: openSQLite},
		{Tag: "parquet", Extensions: []string{".parquet", ".pq"}, Binary: true, Description: "Apache Parquet, one record per row", Open: openParquet},
		{Tag: "pdf", Extensions: []string{".pdf"}, Binary: true, Description: "PDF documents, one record per page", Open: openPDF},
		{Tag: "image", Extensions: []string{".jpg", ".jpeg", ".png", ".gif", ".tif", ".tiff", ".webp"}, Binary: true, Description: "Image metadata, one record per file", Open: openImage},
	}
}
