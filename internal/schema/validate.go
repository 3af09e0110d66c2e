package schema

import (
	"fmt"
	"strings"
)

// identifierBlacklist mirrors the original system's check_identifier: any of
// these characters in a table or column name is rejected outright rather
// than escaped, since they are never needed for a legitimate OSM tag-derived
// name and their presence is far more likely a quoting mistake.
const identifierBlacklist = `"',.;$%&/()<>{}=?^*#`

// DefinitionError reports a problem with a table or column declaration.
type DefinitionError struct {
	Kind   string // "table", "column", "index"
	Name   string
	Reason string
}

func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid %s %q: %s", e.Kind, e.Name, e.Reason)
}

// checkIdentifier rejects names containing any blacklisted character.
func checkIdentifier(name, kind string) error {
	if name == "" {
		return &DefinitionError{Kind: kind, Name: name, Reason: "name must not be empty"}
	}
	if pos := strings.IndexAny(name, identifierBlacklist); pos >= 0 {
		return &DefinitionError{
			Kind:   kind,
			Name:   name,
			Reason: fmt.Sprintf("special characters are not allowed, found %q", name[pos]),
		}
	}
	return nil
}

// ValidateTable checks a single table definition's internal consistency.
// It does not touch the database; tablespace/schema existence is checked by
// Capabilities.Probe once a connection is available.
func ValidateTable(t *Table) error {
	if err := checkIdentifier(t.Name, "table name"); err != nil {
		return err
	}
	if t.Schema != "" {
		if err := checkIdentifier(t.Schema, "schema name"); err != nil {
			return err
		}
	}
	if t.DataTablespace != "" {
		if err := checkIdentifier(t.DataTablespace, "data tablespace"); err != nil {
			return err
		}
	}
	if t.IndexTablespace != "" {
		if err := checkIdentifier(t.IndexTablespace, "index tablespace"); err != nil {
			return err
		}
	}

	if len(t.Columns) == 0 && t.IDColumn == nil {
		return &DefinitionError{Kind: "table", Name: t.Name, Reason: "table needs at least one column or an id column"}
	}

	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := checkIdentifier(c.Name, "column name"); err != nil {
			return err
		}
		if seen[c.Name] {
			return &DefinitionError{Kind: "column", Name: c.Name, Reason: "column is declared more than once in " + t.Name}
		}
		seen[c.Name] = true

		if c.Projection != 0 && !c.Type.IsGeometry() && c.Type != TypeArea {
			return &DefinitionError{Kind: "column", Name: c.Name, Reason: "projection is only valid on geometry or area columns"}
		}
	}

	if t.IDColumn != nil {
		idCol := t.IDColumn.Column
		if idCol == "" {
			idCol = "osm_id"
		}
		if err := checkIdentifier(idCol, "id column"); err != nil {
			return err
		}
		if seen[idCol] {
			return &DefinitionError{Kind: "column", Name: idCol, Reason: "id column collides with a declared column in " + t.Name}
		}
		switch t.IDColumn.Kind {
		case IDKindNode, IDKindWay, IDKindRelation, IDKindArea, IDKindAny:
		default:
			return &DefinitionError{Kind: "table", Name: t.Name, Reason: fmt.Sprintf("unknown ids type %q", t.IDColumn.Kind)}
		}
		if t.IDColumn.Kind == IDKindAny && t.IDColumn.TypeColumn != "" {
			if err := checkIdentifier(t.IDColumn.TypeColumn, "type column"); err != nil {
				return err
			}
			if seen[t.IDColumn.TypeColumn] {
				return &DefinitionError{Kind: "column", Name: t.IDColumn.TypeColumn, Reason: "type column collides with a declared column in " + t.Name}
			}
		}
		if t.IDColumn.CreateIndex != "" && t.IDColumn.CreateIndex != CreateIndexAuto && t.IDColumn.CreateIndex != CreateIndexAlways {
			return &DefinitionError{Kind: "table", Name: t.Name, Reason: fmt.Sprintf("unknown create_index mode %q", t.IDColumn.CreateIndex)}
		}
	}

	for _, idx := range t.Indexes {
		for _, col := range idx.Columns {
			if col == (func() string {
				if t.IDColumn != nil && t.IDColumn.Column != "" {
					return t.IDColumn.Column
				}
				return "osm_id"
			}()) {
				continue
			}
			if !seen[col] {
				return &DefinitionError{Kind: "index", Name: strings.Join(idx.Columns, ","), Reason: fmt.Sprintf("index references unknown column %q in %s", col, t.Name)}
			}
		}
	}

	if t.Cluster == "auto" && t.GeometryColumn() == nil {
		return &DefinitionError{Kind: "table", Name: t.Name, Reason: "cluster=auto requires a geometry column"}
	}
	if t.Cluster != "" && t.Cluster != "auto" && !seen[t.Cluster] {
		return &DefinitionError{Kind: "table", Name: t.Name, Reason: fmt.Sprintf("cluster references unknown column %q", t.Cluster)}
	}

	return nil
}
