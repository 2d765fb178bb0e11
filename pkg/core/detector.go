/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: detector.go
Description: Format detection. Combines the format implied by a file extension with the
format implied by the leading bytes and reconciles the two under the configured
precedence policy.
*/

package core

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kleascm/akaylee-reader/pkg/adapters"
	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/source"
)

// Detection records both detection signals and the decision taken
type Detection struct {
	ByExtension string      `json:"by_extension,omitempty"` // Tag owning the extension, if any
	ByContent   string      `json:"by_content,omitempty"`   // Tag implied by the magic prefix, if any
	Kind        source.Kind `json:"kind,omitempty"`         // Raw sniffed kind
	Chosen      string      `json:"chosen"`                 // Tag the stream is opened with
	Conflict    bool        `json:"conflict"`               // Signals named incompatible formats
}

// contentTags maps sniffed kinds onto format tags. Compression, zip and plain
// text carry no format of their own.
var contentTags = map[source.Kind]string{
	source.KindParquet: "parquet",
	source.KindSQLite:  "sqlite",
	source.KindPDF:     "pdf",
	source.KindImage:   "image",
	source.KindJSON:    "json",
	source.KindJSONL:   "jsonl",
	source.KindXML:     "xml",
	source.KindHTML:    "html",
	source.KindYAML:    "yaml",
}

// compatible lists pairs where the extension refines a weak content signal
var compatible = map[[2]string]bool{
	{"jsonl", "json"}:    true,
	{"json", "jsonl"}:    true,
	{"yaml", "json"}:     true,
	{"yaml", "jsonl"}:    true,
	{"html", "xml"}:      true,
	{"xml", "html"}:      true,
	{"markdown", "yaml"}: true,
	{"markdown", "html"}: true,
	{"markdown", "xml"}:  true,
	{"txt", "yaml"}:      true,
}

// Detector chooses a format for a source
type Detector struct {
	registry   *adapters.Registry
	precedence interfaces.Precedence
}

// NewDetector creates a detector over a registry.
// An empty precedence means content first.
func NewDetector(registry *adapters.Registry, precedence interfaces.Precedence) *Detector {
	if precedence == "" {
		precedence = interfaces.PrecedenceContent
	}
	return &Detector{registry: registry, precedence: precedence}
}

// Detect decides the format for a file name and its leading bytes.
// Returns *UnsupportedFormatError when neither signal names a registered
// format and *FormatError when strict precedence meets a conflict.
func (d *Detector) Detect(name string, prefix []byte) (Detection, error) {
	kind := source.Sniff(prefix)
	det := Detection{Kind: kind, ByContent: contentTags[kind]}
	if tag, ok := d.registry.ForExtension(strings.ToLower(filepath.Ext(name))); ok {
		det.ByExtension = tag
	}
	return d.decide(name, det)
}

func (d *Detector) decide(name string, det Detection) (Detection, error) {
	ext, content := det.ByExtension, det.ByContent

	switch {
	case ext == "" && content == "":
		if det.Kind == source.KindText {
			det.Chosen = "txt"
			return det, nil
		}
		return det, &interfaces.UnsupportedFormatError{Tag: strings.TrimPrefix(filepath.Ext(name), ".")}
	case content == "":
		// plain text or unknown bytes defer to the extension
		det.Chosen = ext
		return det, nil
	case ext == "":
		det.Chosen = content
		return det, nil
	case ext == content || compatible[[2]string{ext, content}]:
		det.Chosen = ext
		return det, nil
	}

	det.Conflict = true
	switch d.precedence {
	case interfaces.PrecedenceExtension:
		det.Chosen = ext
	case interfaces.PrecedenceStrict:
		return det, interfaces.NewFormatError(ext, name,
			fmt.Errorf("extension says %s but content says %s", ext, content))
	default:
		det.Chosen = content
	}
	return det, nil
}
