/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: yaml.go
Description: YAML adapter. Documents are decoded one at a time into node trees
so mapping key order survives. A document whose root is a sequence yields one
record per element; any other document is one record. Empty documents are skipped.
*/

package adapters

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"gopkg.in/yaml.v3"
)

const maxYAMLDepth = 512

// Alias expansion may materialize at most yamlAliasRatio values per node in
// the document, and never less than yamlMinBudget.
const (
	yamlAliasRatio = 100
	yamlMinBudget  = 10000
)

var errExcessiveAliasing = errors.New("yaml document has excessive aliasing")

type yamlStream struct {
	base
	dec     *yaml.Decoder
	pending []*yaml.Node
	budget  int
	doc     int
	row     int64
	done    bool
}

func openYAML(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	return &yamlStream{base: newBase(in), dec: yaml.NewDecoder(in.Text)}, nil
}

func (s *yamlStream) Next(ctx context.Context) (value.Record, error) {
	for {
		if len(s.pending) > 0 {
			node := s.pending[0]
			s.pending = s.pending[1:]
			return s.emit(node)
		}
		if s.done {
			return value.Record{}, io.EOF
		}

		var doc yaml.Node
		err := s.dec.Decode(&doc)
		if err == io.EOF {
			s.done = true
			return value.Record{}, io.EOF
		}
		if err != nil {
			s.done = true
			return value.Record{}, s.formatError(err)
		}
		s.doc++
		s.budget = yamlBudget(&doc)

		root := &doc
		if root.Kind == yaml.DocumentNode {
			if len(root.Content) == 0 {
				continue
			}
			root = root.Content[0]
		}
		if root.Kind == yaml.SequenceNode {
			s.pending = root.Content
			continue
		}
		if root.Kind == yaml.ScalarNode && root.Tag == "!!null" && root.Value == "" {
			continue
		}
		s.pending = []*yaml.Node{root}
	}
}

func (s *yamlStream) emit(node *yaml.Node) (value.Record, error) {
	s.row++
	prov := s.prov
	prov.Row = s.row
	prov.Line = int64(node.Line)
	prov.Section = fmt.Sprintf("document %d", s.doc)

	v, err := convertYAML(node, 0, &s.budget)
	if errors.Is(err, errExcessiveAliasing) {
		s.done = true
		s.pending = nil
		return value.Record{}, s.formatError(fmt.Errorf("document %d: %w", s.doc, err))
	}
	if err != nil {
		return value.Record{}, s.recordError(prov, err)
	}
	return s.record(v, prov), nil
}

// yamlBudget sizes the alias expansion allowance of one document
func yamlBudget(doc *yaml.Node) int {
	budget := countYAML(doc) * yamlAliasRatio
	if budget < yamlMinBudget {
		budget = yamlMinBudget
	}
	return budget
}

// countYAML counts the nodes written in the document, not following aliases
func countYAML(node *yaml.Node) int {
	n := 1
	for _, child := range node.Content {
		n += countYAML(child)
	}
	return n
}

// convertYAML materializes node, charging every value against budget
func convertYAML(node *yaml.Node, depth int, budget *int) (value.Value, error) {
	if depth > maxYAMLDepth {
		return value.Null(), errors.New("yaml nesting too deep")
	}
	if *budget <= 0 {
		return value.Null(), errExcessiveAliasing
	}
	*budget--
	switch node.Kind {
	case yaml.DocumentNode:
		if len(node.Content) == 0 {
			return value.Null(), nil
		}
		return convertYAML(node.Content[0], depth+1, budget)
	case yaml.AliasNode:
		if node.Alias == nil {
			return value.Null(), nil
		}
		return convertYAML(node.Alias, depth+1, budget)
	case yaml.SequenceNode:
		items := make([]value.Value, 0, len(node.Content))
		for _, child := range node.Content {
			item, err := convertYAML(child, depth+1, budget)
			if err != nil {
				return value.Null(), err
			}
			items = append(items, item)
		}
		return value.Sequence(items...), nil
	case yaml.MappingNode:
		b := value.NewMappingBuilder(len(node.Content) / 2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			keyNode, valNode := node.Content[i], node.Content[i+1]
			if keyNode.Kind == yaml.ScalarNode && keyNode.Tag == "!!merge" {
				if err := mergeYAML(b, valNode, depth+1, budget); err != nil {
					return value.Null(), err
				}
				continue
			}
			v, err := convertYAML(valNode, depth+1, budget)
			if err != nil {
				return value.Null(), err
			}
			b.Set(keyNode.Value, v)
		}
		return b.Build(), nil
	case yaml.ScalarNode:
		var native interface{}
		if err := node.Decode(&native); err != nil {
			return value.Null(), err
		}
		return value.FromNative(native), nil
	}
	return value.Null(), fmt.Errorf("unsupported yaml node kind %d", node.Kind)
}

// mergeYAML applies a "<<" merge key without overriding explicit keys
func mergeYAML(b *value.MappingBuilder, node *yaml.Node, depth int, budget *int) error {
	v, err := convertYAML(node, depth, budget)
	if err != nil {
		return err
	}
	sources := []value.Value{v}
	if v.Kind() == value.KindSequence {
		sources = v.Items()
	}
	for _, src := range sources {
		for _, p := range src.Pairs() {
			if _, exists := b.Lookup(p.Key); !exists {
				b.Set(p.Key, p.Value)
			}
		}
	}
	return nil
}
