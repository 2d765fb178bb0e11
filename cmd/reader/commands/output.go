/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: output.go
Description: Output rendering for records and schemas. Records are written as JSON
lines or YAML documents with mapping order preserved; schemas are rendered as
indented JSON or YAML.
*/

package commands

import (
	"encoding/base64"
	"fmt"
	"io"
	"math"
	"strconv"

	json "github.com/goccy/go-json"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"gopkg.in/yaml.v3"
)

// Output formats
const (
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// RecordWriter writes records one at a time
type RecordWriter interface {
	Write(rec value.Record) error
	Close() error
}

// NewRecordWriter returns a writer for the named output format
func NewRecordWriter(w io.Writer, format string, withProvenance bool) (RecordWriter, error) {
	switch format {
	case OutputJSON, "":
		return &jsonLinesWriter{w: w, provenance: withProvenance}, nil
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		return &yamlWriter{enc: enc, provenance: withProvenance}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

type jsonLinesWriter struct {
	w          io.Writer
	provenance bool
}

func (j *jsonLinesWriter) Write(rec value.Record) error {
	var (
		data []byte
		err  error
	)
	if j.provenance {
		data, err = json.Marshal(rec)
	} else {
		data, err = rec.Value.MarshalJSON()
	}
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	data = append(data, '\n')
	_, err = j.w.Write(data)
	return err
}

func (j *jsonLinesWriter) Close() error { return nil }

type yamlWriter struct {
	enc        *yaml.Encoder
	provenance bool
}

func (y *yamlWriter) Write(rec value.Record) error {
	node := ToYAMLNode(rec.Value)
	if y.provenance {
		node = &yaml.Node{
			Kind: yaml.MappingNode,
			Content: []*yaml.Node{
				scalar("!!str", "value"), node,
				scalar("!!str", "provenance"), scalar("!!str", rec.Provenance.String()),
			},
		}
	}
	if err := y.enc.Encode(node); err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	return nil
}

func (y *yamlWriter) Close() error { return y.enc.Close() }

// ToYAMLNode converts a value into a YAML node keeping mapping order
func ToYAMLNode(v value.Value) *yaml.Node {
	switch v.Kind() {
	case value.KindBool:
		b, _ := v.AsBool()
		return scalar("!!bool", strconv.FormatBool(b))
	case value.KindInt:
		i, _ := v.AsInt()
		return scalar("!!int", strconv.FormatInt(i, 10))
	case value.KindFloat:
		f, _ := v.AsFloat()
		switch {
		case math.IsNaN(f):
			return scalar("!!float", ".nan")
		case math.IsInf(f, 1):
			return scalar("!!float", ".inf")
		case math.IsInf(f, -1):
			return scalar("!!float", "-.inf")
		}
		return scalar("!!float", strconv.FormatFloat(f, 'g', -1, 64))
	case value.KindString:
		s, _ := v.AsString()
		return scalar("!!str", s)
	case value.KindBytes:
		b, _ := v.AsBytes()
		return scalar("!!binary", base64.StdEncoding.EncodeToString(b))
	case value.KindSequence:
		node := &yaml.Node{Kind: yaml.SequenceNode}
		for _, item := range v.Items() {
			node.Content = append(node.Content, ToYAMLNode(item))
		}
		return node
	case value.KindMapping:
		node := &yaml.Node{Kind: yaml.MappingNode}
		for _, p := range v.Pairs() {
			node.Content = append(node.Content, scalar("!!str", p.Key), ToYAMLNode(p.Value))
		}
		return node
	default:
		return scalar("!!null", "null")
	}
}

func scalar(tag, v string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: v}
}

// WriteDocument renders a plain Go document, such as an exported schema
func WriteDocument(w io.Writer, format string, doc interface{}) error {
	switch format {
	case OutputJSON, "":
		data, err := json.MarshalIndent(doc, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		data = append(data, '\n')
		_, err = w.Write(data)
		return err
	case OutputYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("failed to encode document: %w", err)
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format: %s", format)
	}
}
