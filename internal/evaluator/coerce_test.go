package evaluator

import (
	"testing"

	lua "github.com/yuin/gopher-lua"

	"github.com/flexosm/flex2pg/internal/schema"
)

func TestCoerceValueBoolean(t *testing.T) {
	col := &schema.Column{Name: "oneway", Type: schema.TypeBoolean}

	tests := []struct {
		in      lua.LValue
		want    bool
		wantErr bool
	}{
		{lua.LString("yes"), true, false},
		{lua.LString("no"), false, false},
		{lua.LBool(true), true, false},
		{lua.LNumber(1), true, false},
		{lua.LString("maybe"), false, true},
	}

	for _, tt := range tests {
		v, _, err := coerceValue(col, tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("coerceValue(%v) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if err == nil && v.(bool) != tt.want {
			t.Errorf("coerceValue(%v) = %v, want %v", tt.in, v, tt.want)
		}
	}
}

func TestCoerceValueDirectionNeverErrors(t *testing.T) {
	col := &schema.Column{Name: "direction", Type: schema.TypeDirection}

	tests := []struct {
		in   lua.LValue
		want int
	}{
		{lua.LString("yes"), 1},
		{lua.LString("-1"), -1},
		{lua.LString("garbage"), 0},
		{lua.LNumber(5), 1},
		{lua.LNumber(-5), -1},
	}

	for _, tt := range tests {
		v, _, err := coerceValue(col, tt.in)
		if err != nil {
			t.Fatalf("coerceValue(%v) unexpected error: %v", tt.in, err)
		}
		if v.(int) != tt.want {
			t.Errorf("coerceValue(%v) = %v, want %v", tt.in, v, tt.want)
		}
	}
}

func TestCoerceValueIntegerTruncation(t *testing.T) {
	col := &schema.Column{Name: "count", Type: schema.TypeInt4}
	v, _, err := coerceValue(col, lua.LNumber(3.9))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.(int64) != 3 {
		t.Errorf("coerceValue() = %v, want 3", v)
	}
}

func asInt16(n int64) int64 { return int64(int16(n)) }
func asInt32(n int64) int64 { return int64(int32(n)) }

func TestCoerceValueIntegerWidthTruncation(t *testing.T) {
	tests := []struct {
		name string
		typ  schema.LogicalType
		in   float64
		want int64
	}{
		{"int2 wraps above int16 range", schema.TypeInt2, 40000, asInt16(40000)},
		{"int4 wraps above int32 range", schema.TypeInt4, 5000000000, asInt32(5000000000)},
		{"idtype wraps like int4", schema.TypeIDType, 5000000000, asInt32(5000000000)},
		{"int8 keeps full width", schema.TypeInt8, 5000000000, 5000000000},
		{"idnum keeps full width", schema.TypeIDNum, 123456789012, 123456789012},
	}

	for _, tt := range tests {
		col := &schema.Column{Name: "n", Type: tt.typ}
		v, _, err := coerceValue(col, lua.LNumber(tt.in))
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", tt.name, err)
		}
		if v.(int64) != tt.want {
			t.Errorf("%s: coerceValue() = %v, want %v", tt.name, v, tt.want)
		}
	}
}

func TestCoerceValueGeometryRequiresHandle(t *testing.T) {
	col := &schema.Column{Name: "geom", Type: schema.TypePoint}
	_, _, err := coerceValue(col, lua.LString("not a geometry"))
	if err == nil {
		t.Error("expected an error for a non-geometry value on a geometry column")
	}

	handle := &lua.LTable{}
	handle.RawSetString("_wkb", lua.LString("fakebytes"))
	_, wkbBytes, err := coerceValue(col, handle)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(wkbBytes) != "fakebytes" {
		t.Errorf("wkb = %q, want %q", wkbBytes, "fakebytes")
	}
}

func TestCoerceValueNilPassesThrough(t *testing.T) {
	col := &schema.Column{Name: "name", Type: schema.TypeText}
	v, wkbBytes, err := coerceValue(col, lua.LNil)
	if err != nil || v != nil || wkbBytes != nil {
		t.Errorf("coerceValue(nil) = (%v, %v, %v), want (nil, nil, nil)", v, wkbBytes, err)
	}
}
