/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: toml.go
Description: TOML adapter. A TOML document is one record. Values are decoded by
go-toml; key order is recovered from the document's expressions so tables keep
the order their keys were written in.
*/

package adapters

import (
	"context"
	"errors"
	"io"
	"sort"

	"github.com/kleascm/akaylee-reader/pkg/interfaces"
	"github.com/kleascm/akaylee-reader/pkg/value"
	"github.com/pelletier/go-toml/v2"
	"github.com/pelletier/go-toml/v2/unstable"
)

func openTOML(ctx context.Context, in *Input) (interfaces.RecordStream, error) {
	b := newBase(in)
	raw, err := io.ReadAll(in.Text)
	if err != nil {
		return nil, interfaces.NewSourceError(in.Source.Location(), "read", err)
	}

	var doc map[string]interface{}
	if err := toml.Unmarshal(raw, &doc); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			b.logger.WithField("row", row).WithField("column", col).Debug("TOML decode failed")
		}
		return nil, b.formatError(err)
	}

	prov := b.prov
	prov.Row = 1
	return &sliceStream{base: b, records: []value.Record{b.record(orderedTOML(doc, tomlKeyOrder(raw)), prov)}}, nil
}

// tomlOrder holds the first-seen key order of one table. Elements of an
// array share the order of the array's key.
type tomlOrder struct {
	keys     []string
	children map[string]*tomlOrder
}

func (o *tomlOrder) at(key string) *tomlOrder {
	if o.children == nil {
		o.children = make(map[string]*tomlOrder)
	}
	child, ok := o.children[key]
	if !ok {
		child = &tomlOrder{}
		o.keys = append(o.keys, key)
		o.children[key] = child
	}
	return child
}

func (o *tomlOrder) child(key string) *tomlOrder {
	if o == nil {
		return nil
	}
	return o.children[key]
}

// tomlKeyOrder walks the document's expressions. The document has already
// decoded, so a parse error only costs ordering.
func tomlKeyOrder(raw []byte) *tomlOrder {
	root := &tomlOrder{}
	current := root

	var p unstable.Parser
	p.Reset(raw)
	for p.NextExpression() {
		expr := p.Expression()
		switch expr.Kind {
		case unstable.Table, unstable.ArrayTable:
			current = walkTOMLKey(root, expr.Key())
		case unstable.KeyValue:
			recordTOMLValue(walkTOMLKey(current, expr.Key()), expr.Value())
		}
	}
	if p.Error() != nil {
		return nil
	}
	return root
}

func walkTOMLKey(o *tomlOrder, it unstable.Iterator) *tomlOrder {
	for it.Next() {
		o = o.at(string(it.Node().Data))
	}
	return o
}

func recordTOMLValue(o *tomlOrder, v *unstable.Node) {
	switch v.Kind {
	case unstable.InlineTable:
		it := v.Children()
		for it.Next() {
			kv := it.Node()
			if kv.Kind == unstable.KeyValue {
				recordTOMLValue(walkTOMLKey(o, kv.Key()), kv.Value())
			}
		}
	case unstable.Array:
		it := v.Children()
		for it.Next() {
			recordTOMLValue(o, it.Node())
		}
	}
}

// orderedTOML converts decoded TOML, laying out tables in document order.
// Keys the walk missed follow in sorted order.
func orderedTOML(v interface{}, o *tomlOrder) value.Value {
	switch t := v.(type) {
	case map[string]interface{}:
		b := value.NewMappingBuilder(len(t))
		if o != nil {
			for _, k := range o.keys {
				if item, ok := t[k]; ok {
					b.Set(k, orderedTOML(item, o.children[k]))
				}
			}
		}
		rest := make([]string, 0, len(t))
		for k := range t {
			if _, seen := b.Lookup(k); !seen {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		for _, k := range rest {
			b.Set(k, orderedTOML(t[k], o.child(k)))
		}
		return b.Build()
	case []interface{}:
		items := make([]value.Value, len(t))
		for i, item := range t {
			items[i] = orderedTOML(item, o)
		}
		return value.Sequence(items...)
	case []map[string]interface{}:
		items := make([]value.Value, len(t))
		for i, item := range t {
			items[i] = orderedTOML(item, o)
		}
		return value.Sequence(items...)
	}
	return value.FromNative(v)
}
