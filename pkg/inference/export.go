/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: export.go
Description: Converts a schema tree into plain maps and slices for rendering.
*/

package inference

import "sort"

// Export renders a schema tree as nested maps. Field lists are sorted so the
// output does not depend on the order records were merged in.
func Export(n *SchemaNode) map[string]interface{} {
	if n == nil {
		return nil
	}
	return exportNode(n, 0)
}

func exportNode(n *SchemaNode, parentMaps int64) map[string]interface{} {
	out := map[string]interface{}{
		"types":      n.Types.Names(),
		"nullable":   n.Nullable(),
		"count":      n.Count,
		"null_count": n.Nulls,
	}
	if parentMaps > 0 {
		out["presence"] = float64(n.Present) / float64(parentMaps)
	}

	if len(n.Fields) > 0 {
		fields := make(map[string]interface{}, len(n.Fields))
		required := []string{}
		optional := []string{}
		for _, f := range n.Fields {
			fields[f.Name] = exportNode(f.Node, n.Maps)
			if f.Node.Missing == 0 {
				required = append(required, f.Name)
			} else {
				optional = append(optional, f.Name)
			}
		}
		sort.Strings(required)
		sort.Strings(optional)
		out["fields"] = fields
		out["required"] = required
		out["optional"] = optional
	}

	if n.Elem != nil {
		out["element"] = exportNode(n.Elem, 0)
	}
	return out
}
