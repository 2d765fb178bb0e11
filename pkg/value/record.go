/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: record.go
Description: Record and provenance types. A record is one normalized value plus
best-effort metadata describing where in the input it came from.
*/

package value

import (
	"fmt"
	"strings"
)

// Provenance locates a record inside its input. Zero fields are unknown.
type Provenance struct {
	Source  string `json:"source,omitempty"`
	Entry   string `json:"entry,omitempty"`   // archive member path
	Section string `json:"section,omitempty"` // sheet or table name
	Row     int64  `json:"row,omitempty"`     // 1-based
	Line    int64  `json:"line,omitempty"`    // 1-based
	Page    int    `json:"page,omitempty"`    // 1-based
	Offset  int64  `json:"offset,omitempty"`
}

// String renders the provenance as source[:entry][#section][@row]
func (p Provenance) String() string {
	var sb strings.Builder
	sb.WriteString(p.Source)
	if p.Entry != "" {
		sb.WriteString(":")
		sb.WriteString(p.Entry)
	}
	if p.Section != "" {
		sb.WriteString("#")
		sb.WriteString(p.Section)
	}
	switch {
	case p.Row > 0:
		sb.WriteString(fmt.Sprintf("@row %d", p.Row))
	case p.Line > 0:
		sb.WriteString(fmt.Sprintf("@line %d", p.Line))
	case p.Page > 0:
		sb.WriteString(fmt.Sprintf("@page %d", p.Page))
	case p.Offset > 0:
		sb.WriteString(fmt.Sprintf("@offset %d", p.Offset))
	}
	return sb.String()
}

// Record is one normalized unit of input
type Record struct {
	Value      Value      `json:"value"`
	Provenance Provenance `json:"provenance"`
}
