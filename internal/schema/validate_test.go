package schema

import "testing"

func TestValidateTableIdentifiers(t *testing.T) {
	tests := []struct {
		name    string
		table   Table
		wantErr bool
	}{
		{
			name:    "plain name ok",
			table:   Table{Name: "planet_osm_point", Columns: []Column{{Name: "highway"}}},
			wantErr: false,
		},
		{
			name:    "semicolon in table name rejected",
			table:   Table{Name: "points;drop", Columns: []Column{{Name: "highway"}}},
			wantErr: true,
		},
		{
			name:    "quote in column name rejected",
			table:   Table{Name: "points", Columns: []Column{{Name: `na"me`}}},
			wantErr: true,
		},
		{
			name:    "no columns and no id column rejected",
			table:   Table{Name: "empty"},
			wantErr: true,
		},
		{
			name:    "id column alone is sufficient",
			table:   Table{Name: "ids_only", IDColumn: &IDColumn{Kind: IDKindNode}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTable(&tt.table)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateTable() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateTableDuplicateColumns(t *testing.T) {
	tbl := Table{
		Name: "points",
		Columns: []Column{
			{Name: "highway", Type: TypeText},
			{Name: "highway", Type: TypeText},
		},
	}
	if err := ValidateTable(&tbl); err == nil {
		t.Error("expected error for duplicate column name")
	}
}

func TestValidateTableProjectionOnNonGeometry(t *testing.T) {
	tbl := Table{
		Name: "points",
		Columns: []Column{
			{Name: "name", Type: TypeText, Projection: 3857},
		},
	}
	if err := ValidateTable(&tbl); err == nil {
		t.Error("expected error for projection on a non-geometry, non-area column")
	}
}

func TestValidateTableProjectionOnGeometryAllowed(t *testing.T) {
	tbl := Table{
		Name: "points",
		Columns: []Column{
			{Name: "geom", Type: TypePoint, Projection: 3857},
		},
	}
	if err := ValidateTable(&tbl); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateTableClusterAutoRequiresGeometry(t *testing.T) {
	noGeom := Table{
		Name:    "stats",
		Columns: []Column{{Name: "count", Type: TypeInt8}},
		Cluster: "auto",
	}
	if err := ValidateTable(&noGeom); err == nil {
		t.Error("expected error for cluster=auto without a geometry column")
	}

	withGeom := Table{
		Name: "points",
		Columns: []Column{
			{Name: "geom", Type: TypePoint},
			{Name: "name", Type: TypeText},
		},
		Cluster: "auto",
	}
	if err := ValidateTable(&withGeom); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestValidateTableIndexReferencesKnownColumn(t *testing.T) {
	tbl := Table{
		Name:    "points",
		Columns: []Column{{Name: "highway", Type: TypeText}},
		Indexes: []Index{{Columns: []string{"nonexistent"}}},
	}
	if err := ValidateTable(&tbl); err == nil {
		t.Error("expected error for index referencing unknown column")
	}
}

func TestRegistryRejectsDuplicateTableNames(t *testing.T) {
	r := NewRegistry()
	t1 := &Table{Name: "points", Columns: []Column{{Name: "highway"}}}
	t2 := &Table{Name: "points", Columns: []Column{{Name: "railway"}}}

	if err := r.Register(t1); err != nil {
		t.Fatalf("first registration failed: %v", err)
	}
	if err := r.Register(t2); err == nil {
		t.Error("expected error registering a duplicate table name")
	}
}

func TestSQLTypeNameOverride(t *testing.T) {
	c := Column{Name: "osm_id", Type: TypeInt8, SQLType: "bigint"}
	if got := c.SQLTypeName(); got != "bigint" {
		t.Errorf("SQLTypeName() = %q, want %q", got, "bigint")
	}

	c2 := Column{Name: "osm_id", Type: TypeInt8}
	if got := c2.SQLTypeName(); got != "BIGINT" {
		t.Errorf("SQLTypeName() = %q, want %q", got, "BIGINT")
	}
}
