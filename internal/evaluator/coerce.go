package evaluator

import (
	"strconv"
	"strings"

	lua "github.com/yuin/gopher-lua"

	"github.com/flexosm/flex2pg/internal/schema"
)

// coerceError reports that a value could not be coerced to a column's
// declared type; the caller treats the whole row as rejected, not the run.
type coerceError struct {
	column string
	reason string
}

func (e *coerceError) Error() string {
	return "column " + e.column + ": " + e.reason
}

// coerceValue converts a Lua value to the Go representation matching col's
// logical type, following the widened coercion rules: numerics truncate to
// the declared width, booleans accept {yes, no, true, false, 1, 0},
// direction maps {yes, true, 1} to 1, {-1, reverse, backward} to -1 and
// anything else to 0.
func coerceValue(col *schema.Column, lv lua.LValue) (value interface{}, geomWKB []byte, err error) {
	if lv == lua.LNil {
		return nil, nil, nil
	}

	if col.Type.IsGeometry() {
		wkb, ok := extractWKB(lv)
		if !ok {
			return nil, nil, &coerceError{column: col.Name, reason: "expected a geometry handle from as_point/as_linestring/as_polygon/as_multipolygon/as_geometrycollection"}
		}
		return nil, wkb, nil
	}

	switch col.Type {
	case schema.TypeBoolean:
		b, ok := coerceBool(lv)
		if !ok {
			return nil, nil, &coerceError{column: col.Name, reason: "expected a boolean-like value"}
		}
		return b, nil, nil

	case schema.TypeDirection:
		return coerceDirection(lv), nil, nil

	case schema.TypeInt2, schema.TypeInt4, schema.TypeInt8, schema.TypeIDNum, schema.TypeIDType:
		n, ok := coerceInt(lv)
		if !ok {
			return nil, nil, &coerceError{column: col.Name, reason: "expected a number"}
		}
		return truncateInt(col.Type, n), nil, nil

	case schema.TypeReal, schema.TypeArea, schema.TypeNumeric:
		f, ok := coerceFloat(lv)
		if !ok {
			return nil, nil, &coerceError{column: col.Name, reason: "expected a number"}
		}
		return f, nil, nil

	case schema.TypeHstore:
		if tbl, ok := lv.(*lua.LTable); ok {
			return tableToStringMap(tbl), nil, nil
		}
		return nil, nil, &coerceError{column: col.Name, reason: "expected a table for an hstore column"}

	case schema.TypeJSON, schema.TypeJSONB:
		switch v := lv.(type) {
		case *lua.LTable:
			return tableToMap(v), nil, nil
		case lua.LString:
			return string(v), nil, nil
		}
		return nil, nil, &coerceError{column: col.Name, reason: "expected a table or a JSON string"}

	default: // TypeText and anything else not explicitly numeric/boolean
		return lua.LVAsString(lv), nil, nil
	}
}

func extractWKB(lv lua.LValue) ([]byte, bool) {
	tbl, ok := lv.(*lua.LTable)
	if !ok {
		return nil, false
	}
	wkbField := tbl.RawGetString("_wkb")
	s, ok := wkbField.(lua.LString)
	if !ok {
		return nil, false
	}
	return []byte(string(s)), true
}

func coerceBool(lv lua.LValue) (bool, bool) {
	switch v := lv.(type) {
	case lua.LBool:
		return bool(v), true
	case lua.LNumber:
		return v != 0, true
	case lua.LString:
		switch strings.ToLower(strings.TrimSpace(string(v))) {
		case "yes", "true", "1":
			return true, true
		case "no", "false", "0":
			return false, true
		}
		return false, false
	}
	return false, false
}

// coerceDirection accepts the same vocabulary as parse_direction and
// always succeeds, clamping to {-1, 0, 1} since direction has no "invalid" state.
func coerceDirection(lv lua.LValue) int {
	switch v := lv.(type) {
	case lua.LNumber:
		n := int(v)
		if n > 0 {
			return 1
		}
		if n < 0 {
			return -1
		}
		return 0
	case lua.LString:
		switch strings.ToLower(strings.TrimSpace(string(v))) {
		case "yes", "true", "1":
			return 1
		case "-1", "reverse", "backward":
			return -1
		}
	}
	return 0
}

// truncateInt wraps n to the declared column width, matching the SQL type
// coerceValue hands the value to (SMALLINT/INTEGER/BIGINT), rather than
// handing pgx a full int64 that Postgres would reject outright on overflow.
func truncateInt(t schema.LogicalType, n int64) int64 {
	switch t {
	case schema.TypeInt2:
		return int64(int16(n))
	case schema.TypeInt4, schema.TypeIDType:
		return int64(int32(n))
	default: // TypeInt8, TypeIDNum: already 64-bit wide
		return n
	}
}

func coerceInt(lv lua.LValue) (int64, bool) {
	switch v := lv.(type) {
	case lua.LNumber:
		return int64(v), true
	case lua.LString:
		s := strings.TrimSpace(string(v))
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, true
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f), true
		}
	}
	return 0, false
}

func coerceFloat(lv lua.LValue) (float64, bool) {
	switch v := lv.(type) {
	case lua.LNumber:
		return float64(v), true
	case lua.LString:
		if f, err := strconv.ParseFloat(strings.TrimSpace(string(v)), 64); err == nil {
			return f, true
		}
	}
	return 0, false
}

func tableToStringMap(tbl *lua.LTable) map[string]string {
	result := make(map[string]string)
	tbl.ForEach(func(k, v lua.LValue) {
		if key := lua.LVAsString(k); key != "" {
			result[key] = lua.LVAsString(v)
		}
	})
	return result
}

func tableToMap(tbl *lua.LTable) map[string]interface{} {
	result := make(map[string]interface{})
	tbl.ForEach(func(key, value lua.LValue) {
		keyStr := lua.LVAsString(key)
		if keyStr == "" {
			return
		}
		switch v := value.(type) {
		case lua.LString:
			result[keyStr] = string(v)
		case lua.LNumber:
			result[keyStr] = float64(v)
		case lua.LBool:
			result[keyStr] = bool(v)
		case *lua.LTable:
			result[keyStr] = tableToMap(v)
		}
	})
	return result
}
