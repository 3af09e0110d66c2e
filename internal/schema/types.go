// Package schema holds the in-memory representation of user-declared output
// tables: columns, id-column policy, indexes, and tablespace preferences.
// It is populated by the evaluator bridge as the style script calls
// define_table, and consulted by the sink when it builds DDL and staged rows.
package schema

import "fmt"

// LogicalType is the fixed set of column types a style script may declare.
// Each has a default SQL type; a column's sql_type option overrides it.
type LogicalType int

const (
	TypeText LogicalType = iota
	TypeBoolean
	TypeInt2
	TypeInt4
	TypeInt8
	TypeReal
	TypeNumeric
	TypeHstore
	TypeJSON
	TypeJSONB
	TypeDirection
	TypeArea
	TypeIDNum
	TypeIDType
	TypeGeometry
	TypePoint
	TypeLineString
	TypePolygon
	TypeMultiPoint
	TypeMultiLineString
	TypeMultiPolygon
	TypeGeometryCollection
)

// IsGeometry reports whether the type is one of the geometry subtypes
// (plain "geometry" included) that projection options may target.
func (t LogicalType) IsGeometry() bool {
	switch t {
	case TypeGeometry, TypePoint, TypeLineString, TypePolygon,
		TypeMultiPoint, TypeMultiLineString, TypeMultiPolygon, TypeGeometryCollection:
		return true
	}
	return false
}

// DefaultSQLType returns the SQL type used when a column has no sql_type override.
func (t LogicalType) DefaultSQLType() string {
	switch t {
	case TypeText, TypeDirection:
		return "TEXT"
	case TypeBoolean:
		return "BOOLEAN"
	case TypeInt2:
		return "SMALLINT"
	case TypeInt4, TypeIDType:
		return "INTEGER"
	case TypeInt8, TypeIDNum:
		return "BIGINT"
	case TypeReal, TypeArea:
		return "REAL"
	case TypeNumeric:
		return "NUMERIC"
	case TypeHstore:
		return "HSTORE"
	case TypeJSON:
		return "JSON"
	case TypeJSONB:
		return "JSONB"
	case TypeGeometry:
		return "GEOMETRY"
	case TypePoint:
		return "GEOMETRY(Point,4326)"
	case TypeLineString:
		return "GEOMETRY(LineString,4326)"
	case TypePolygon:
		return "GEOMETRY(Polygon,4326)"
	case TypeMultiPoint:
		return "GEOMETRY(MultiPoint,4326)"
	case TypeMultiLineString:
		return "GEOMETRY(MultiLineString,4326)"
	case TypeMultiPolygon:
		return "GEOMETRY(MultiPolygon,4326)"
	case TypeGeometryCollection:
		return "GEOMETRY(GeometryCollection,4326)"
	default:
		return "TEXT"
	}
}

// ParseLogicalType maps a style script's "type" string to a LogicalType.
func ParseLogicalType(s string) (LogicalType, error) {
	switch s {
	case "", "text", "string":
		return TypeText, nil
	case "bool", "boolean":
		return TypeBoolean, nil
	case "int2", "smallint":
		return TypeInt2, nil
	case "int4", "int", "integer":
		return TypeInt4, nil
	case "int8", "bigint":
		return TypeInt8, nil
	case "real", "float", "double":
		return TypeReal, nil
	case "numeric", "decimal":
		return TypeNumeric, nil
	case "hstore":
		return TypeHstore, nil
	case "json":
		return TypeJSON, nil
	case "jsonb":
		return TypeJSONB, nil
	case "direction":
		return TypeDirection, nil
	case "area":
		return TypeArea, nil
	case "id_num":
		return TypeIDNum, nil
	case "id_type":
		return TypeIDType, nil
	case "geometry":
		return TypeGeometry, nil
	case "point":
		return TypePoint, nil
	case "linestring":
		return TypeLineString, nil
	case "polygon":
		return TypePolygon, nil
	case "multipoint":
		return TypeMultiPoint, nil
	case "multilinestring":
		return TypeMultiLineString, nil
	case "multipolygon":
		return TypeMultiPolygon, nil
	case "geometrycollection":
		return TypeGeometryCollection, nil
	default:
		return TypeText, fmt.Errorf("unknown column type %q", s)
	}
}

// Column is one column of a user table.
type Column struct {
	Name       string
	Type       LogicalType
	SQLType    string // overrides Type.DefaultSQLType() when non-empty
	NotNull    bool
	CreateOnly bool // declared in DDL, never written by the evaluator bridge
	Projection int  // target SRID for reprojection; 0 means no reprojection
	SRID       int  // storage SRID for geometry columns, defaults to 4326
}

// SQLTypeName returns the effective SQL type for the column.
func (c *Column) SQLTypeName() string {
	if c.SQLType != "" {
		return c.SQLType
	}
	return c.Type.DefaultSQLType()
}

// IDColumnKind names which primitive type(s) an id column reflects.
type IDColumnKind string

const (
	IDKindNode     IDColumnKind = "node"
	IDKindWay      IDColumnKind = "way"
	IDKindRelation IDColumnKind = "relation"
	IDKindArea     IDColumnKind = "area"
	IDKindAny      IDColumnKind = "any"
)

// CreateIndexMode controls whether an implicit index is created on the id column.
type CreateIndexMode string

const (
	CreateIndexAuto   CreateIndexMode = "auto"
	CreateIndexAlways CreateIndexMode = "always"
)

// IDColumn is a table's id-column policy, set via the ids option.
type IDColumn struct {
	Kind        IDColumnKind
	Column      string          // name of the id column itself, defaults to "osm_id"
	TypeColumn  string          // only meaningful when Kind == IDKindAny
	CreateIndex CreateIndexMode // only meaningful when Kind == IDKindAny
}

// Index is a secondary index declared on a table.
type Index struct {
	Columns    []string
	Method     string // "gist", "btree", ... ; defaults chosen by the sink
	Unique     bool
	Where      string
	Fillfactor int // 0 means unset, use the table/database default
}

// Table is a user-declared output table.
type Table struct {
	Name            string
	Schema          string // empty means the connection's search path
	Columns         []Column
	IDColumn        *IDColumn
	Indexes         []Index
	Cluster         string // "auto", a column name, or "" for no clustering
	DataTablespace  string
	IndexTablespace string
}

// GeometryColumn returns the table's geometry column, if any.
func (t *Table) GeometryColumn() *Column {
	for i := range t.Columns {
		if t.Columns[i].Type.IsGeometry() {
			return &t.Columns[i]
		}
	}
	return nil
}

// QualifiedName returns "schema"."name", or just "name" with no schema set.
func (t *Table) QualifiedName() string {
	if t.Schema == "" {
		return t.Name
	}
	return t.Schema + "." + t.Name
}
