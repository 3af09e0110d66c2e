package evaluator

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	lua "github.com/yuin/gopher-lua"
)

// Tag transform helper functions exposed to style scripts. These are
// generic string/tag utilities with no OSM-schema-specific behavior of
// their own, so they are registered the same way regardless of which
// table or column is being built.

var (
	whitespaceRegex = regexp.MustCompile(`\s+`)
)

// registerTransforms registers osm2pgsql.transforms plus a handful of
// convenience globals (trim, parse_int, parse_bool, get_name).
func registerTransforms(L *lua.LState) {
	transforms := L.NewTable()

	L.SetField(transforms, "trim", L.NewFunction(luaTrim))
	L.SetField(transforms, "lower", L.NewFunction(luaLower))
	L.SetField(transforms, "upper", L.NewFunction(luaUpper))
	L.SetField(transforms, "clean_spaces", L.NewFunction(luaCleanSpaces))
	L.SetField(transforms, "truncate", L.NewFunction(luaTruncate))

	L.SetField(transforms, "parse_int", L.NewFunction(luaParseInt))
	L.SetField(transforms, "parse_real", L.NewFunction(luaParseReal))
	L.SetField(transforms, "parse_bool", L.NewFunction(luaParseBool))
	L.SetField(transforms, "parse_direction", L.NewFunction(luaParseDirection))
	L.SetField(transforms, "parse_layer", L.NewFunction(luaParseLayer))

	L.SetField(transforms, "get_name", L.NewFunction(luaGetName))
	L.SetField(transforms, "get_name_localized", L.NewFunction(luaGetNameLocalized))

	L.SetField(transforms, "tags_to_json", L.NewFunction(luaTagsToJSON))
	L.SetField(transforms, "tags_to_hstore", L.NewFunction(luaTagsToHstore))
	L.SetField(transforms, "filter_tags", L.NewFunction(luaFilterTags))

	L.SetField(transforms, "calc_z_order", L.NewFunction(luaCalcZOrder))
	L.SetField(transforms, "is_area", L.NewFunction(luaIsArea))

	osm2pgsql := L.GetGlobal("osm2pgsql")
	if osm2pgsql == lua.LNil {
		osm2pgsql = L.NewTable()
		L.SetGlobal("osm2pgsql", osm2pgsql)
	}
	L.SetField(osm2pgsql.(*lua.LTable), "transforms", transforms)

	L.SetGlobal("trim", L.NewFunction(luaTrim))
	L.SetGlobal("parse_int", L.NewFunction(luaParseInt))
	L.SetGlobal("parse_bool", L.NewFunction(luaParseBool))
	L.SetGlobal("get_name", L.NewFunction(luaGetName))
}

func luaTrim(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.TrimSpace(s)))
	return 1
}

func luaLower(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToLower(s)))
	return 1
}

func luaUpper(L *lua.LState) int {
	s := L.CheckString(1)
	L.Push(lua.LString(strings.ToUpper(s)))
	return 1
}

func luaCleanSpaces(L *lua.LState) int {
	s := L.CheckString(1)
	cleaned := whitespaceRegex.ReplaceAllString(s, " ")
	cleaned = strings.TrimSpace(cleaned)
	L.Push(lua.LString(cleaned))
	return 1
}

func luaTruncate(L *lua.LState) int {
	s := L.CheckString(1)
	maxLen := L.CheckInt(2)

	runes := []rune(s)
	if len(runes) <= maxLen {
		L.Push(lua.LString(s))
	} else {
		L.Push(lua.LString(string(runes[:maxLen])))
	}
	return 1
}

func luaParseInt(L *lua.LState) int {
	s := L.CheckString(1)
	defaultVal := int64(0)
	if L.GetTop() >= 2 {
		defaultVal = L.CheckInt64(2)
	}

	s = strings.TrimSpace(s)
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		L.Push(lua.LNumber(val))
	} else if fval, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(int64(fval)))
	} else {
		L.Push(lua.LNumber(defaultVal))
	}
	return 1
}

func luaParseReal(L *lua.LState) int {
	s := L.CheckString(1)
	defaultVal := float64(0)
	if L.GetTop() >= 2 {
		defaultVal = float64(L.CheckNumber(2))
	}

	s = strings.TrimSpace(s)
	if val, err := strconv.ParseFloat(s, 64); err == nil {
		L.Push(lua.LNumber(val))
	} else {
		L.Push(lua.LNumber(defaultVal))
	}
	return 1
}

// luaParseBool reads {yes, true, 1, on} as true and {no, false, 0, off, ""}
// as false. Any other non-empty string also reads as true, whereas a
// boolean column's coercion rejects such a value.
func luaParseBool(L *lua.LState) int {
	s := L.CheckString(1)
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "yes", "true", "1", "on":
		L.Push(lua.LTrue)
	case "no", "false", "0", "off", "":
		L.Push(lua.LFalse)
	default:
		L.Push(lua.LBool(s != ""))
	}
	return 1
}

// luaParseDirection returns 1 (forward), -1 (backward), or 0 (both/none).
func luaParseDirection(L *lua.LState) int {
	s := L.CheckString(1)
	s = strings.ToLower(strings.TrimSpace(s))

	switch s {
	case "yes", "true", "1":
		L.Push(lua.LNumber(1))
	case "-1", "reverse", "backward":
		L.Push(lua.LNumber(-1))
	default:
		L.Push(lua.LNumber(0))
	}
	return 1
}

func luaParseLayer(L *lua.LState) int {
	s := strings.TrimSpace(L.CheckString(1))

	layer := int64(0)
	if val, err := strconv.ParseInt(s, 10, 64); err == nil {
		layer = val
	}

	if layer < -10 {
		layer = -10
	} else if layer > 10 {
		layer = 10
	}

	L.Push(lua.LNumber(layer))
	return 1
}

// luaGetName picks the best available name: name, then int_name, then name:en.
func luaGetName(L *lua.LState) int {
	tags := L.CheckTable(1)

	for _, key := range []string{"name", "int_name", "name:en"} {
		if v := L.GetField(tags, key); v != lua.LNil {
			if s := lua.LVAsString(v); s != "" {
				L.Push(lua.LString(s))
				return 1
			}
		}
	}

	L.Push(lua.LNil)
	return 1
}

// luaGetNameLocalized looks up name:<lang>, falling back to name.
func luaGetNameLocalized(L *lua.LState) int {
	tags := L.CheckTable(1)
	lang := L.CheckString(2)

	if v := L.GetField(tags, "name:"+lang); v != lua.LNil {
		if s := lua.LVAsString(v); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}
	if v := L.GetField(tags, "name"); v != lua.LNil {
		if s := lua.LVAsString(v); s != "" {
			L.Push(lua.LString(s))
			return 1
		}
	}

	L.Push(lua.LNil)
	return 1
}

func luaTagsToJSON(L *lua.LState) int {
	tags := L.CheckTable(1)

	m := make(map[string]string)
	tags.ForEach(func(k, v lua.LValue) {
		if key := lua.LVAsString(k); key != "" {
			m[key] = lua.LVAsString(v)
		}
	})

	jsonBytes, err := json.Marshal(m)
	if err != nil {
		L.Push(lua.LString("{}"))
	} else {
		L.Push(lua.LString(string(jsonBytes)))
	}
	return 1
}

func luaTagsToHstore(L *lua.LState) int {
	tags := L.CheckTable(1)

	var parts []string
	tags.ForEach(func(k, v lua.LValue) {
		key := lua.LVAsString(k)
		val := lua.LVAsString(v)
		if key == "" {
			return
		}
		key = strings.ReplaceAll(key, `"`, `\"`)
		val = strings.ReplaceAll(val, `"`, `\"`)
		parts = append(parts, `"`+key+`"=>"`+val+`"`)
	})

	L.Push(lua.LString(strings.Join(parts, ", ")))
	return 1
}

// luaFilterTags keeps only the named keys. Usage: filter_tags(tags, {"name", "highway"}).
func luaFilterTags(L *lua.LState) int {
	tags := L.CheckTable(1)
	keepKeys := L.CheckTable(2)

	keep := make(map[string]bool)
	keepKeys.ForEach(func(_, v lua.LValue) {
		if s := lua.LVAsString(v); s != "" {
			keep[s] = true
		}
	})

	result := L.NewTable()
	tags.ForEach(func(k, v lua.LValue) {
		if keep[lua.LVAsString(k)] {
			L.SetField(result, lua.LVAsString(k), v)
		}
	})

	L.Push(result)
	return 1
}

var highwayZOrder = map[string]int{
	"motorway":       380,
	"motorway_link":  375,
	"trunk":          370,
	"trunk_link":     365,
	"primary":        360,
	"primary_link":   355,
	"secondary":      350,
	"secondary_link": 345,
	"tertiary":       340,
	"tertiary_link":  335,
	"residential":    330,
	"unclassified":   330,
	"road":           330,
	"living_street":  320,
	"pedestrian":     310,
	"service":        300,
	"track":          290,
	"path":           280,
	"footway":        280,
	"cycleway":       280,
	"bridleway":      280,
	"steps":          270,
}

var railwayZOrder = map[string]int{
	"rail":         440,
	"subway":       420,
	"tram":         410,
	"light_rail":   430,
	"narrow_gauge": 420,
	"monorail":     420,
}

func luaCalcZOrder(L *lua.LState) int {
	tags := L.CheckTable(1)
	z := 0

	if hw := L.GetField(tags, "highway"); hw != lua.LNil {
		if val, ok := highwayZOrder[lua.LVAsString(hw)]; ok {
			z = val
		} else {
			z = 300
		}
	}

	if rw := L.GetField(tags, "railway"); rw != lua.LNil {
		if val, ok := railwayZOrder[lua.LVAsString(rw)]; ok && val > z {
			z = val
		}
	}

	if layer := L.GetField(tags, "layer"); layer != lua.LNil {
		if layerVal, err := strconv.Atoi(lua.LVAsString(layer)); err == nil {
			z += layerVal * 10
		}
	}

	if bridge := L.GetField(tags, "bridge"); bridge != lua.LNil {
		if s := lua.LVAsString(bridge); s != "" && s != "no" {
			z += 100
		}
	}

	if tunnel := L.GetField(tags, "tunnel"); tunnel != lua.LNil {
		if s := lua.LVAsString(tunnel); s != "" && s != "no" {
			z -= 100
		}
	}

	L.Push(lua.LNumber(z))
	return 1
}

var areaHintTags = []string{
	"building", "landuse", "natural", "water", "waterway",
	"leisure", "amenity", "shop", "tourism", "place",
}

func luaIsArea(L *lua.LState) int {
	tags := L.CheckTable(1)
	isClosed := true
	if L.GetTop() >= 2 {
		isClosed = L.CheckBool(2)
	}

	if !isClosed {
		L.Push(lua.LFalse)
		return 1
	}

	if area := L.GetField(tags, "area"); area != lua.LNil {
		switch strings.ToLower(lua.LVAsString(area)) {
		case "yes":
			L.Push(lua.LTrue)
			return 1
		case "no":
			L.Push(lua.LFalse)
			return 1
		}
	}

	for _, tag := range areaHintTags {
		if v := L.GetField(tags, tag); v != lua.LNil && lua.LVAsString(v) != "" {
			L.Push(lua.LTrue)
			return 1
		}
	}

	L.Push(lua.LFalse)
	return 1
}

// cleanTagKey strips characters unsuitable for a SQL identifier derived from a tag key.
func cleanTagKey(key string) string {
	var b strings.Builder
	for _, r := range key {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_':
			b.WriteRune(r)
		case r == ':' || r == '-':
			b.WriteRune('_')
		}
	}
	return b.String()
}
