package evaluator

import (
	lua "github.com/yuin/gopher-lua"

	"github.com/flexosm/flex2pg/internal/geombuild"
	"github.com/flexosm/flex2pg/internal/proj"
)

// objectToLua builds the table passed to process_node/process_way/process_relation,
// attaching the grab_tag and geometry-constructor helper methods.
func (e *LuaEvaluator) objectToLua(obj *Object) *lua.LTable {
	L := e.L
	tbl := L.NewTable()

	tbl.RawSetString("id", lua.LNumber(obj.ID))
	tbl.RawSetString("type", lua.LString(obj.Type))
	tbl.RawSetString("version", lua.LNumber(obj.Version))
	tbl.RawSetString("changeset", lua.LNumber(obj.Changeset))
	tbl.RawSetString("uid", lua.LNumber(obj.UID))
	tbl.RawSetString("user", lua.LString(obj.User))

	tags := L.NewTable()
	for k, v := range obj.Tags {
		tags.RawSetString(k, lua.LString(v))
	}
	tbl.RawSetString("tags", tags)

	switch obj.Type {
	case "node":
		tbl.RawSetString("lat", lua.LNumber(obj.Lat))
		tbl.RawSetString("lon", lua.LNumber(obj.Lon))
	case "way":
		tbl.RawSetString("is_closed", lua.LBool(obj.IsClosed))
		nodes := L.NewTable()
		for i, ref := range obj.NodeRefs {
			nodes.RawSetInt(i+1, lua.LNumber(ref))
		}
		tbl.RawSetString("nodes", nodes)
	case "relation":
		members := L.NewTable()
		for i, m := range obj.Members {
			mt := L.NewTable()
			mt.RawSetString("type", lua.LString(m.Type))
			mt.RawSetString("ref", lua.LNumber(m.Ref))
			mt.RawSetString("role", lua.LString(m.Role))
			members.RawSetInt(i+1, mt)
		}
		tbl.RawSetString("members", members)
	}

	L.SetField(tbl, "grab_tag", L.NewFunction(e.grabTag(obj)))
	L.SetField(tbl, "as_point", L.NewFunction(e.asPoint(obj)))
	L.SetField(tbl, "as_linestring", L.NewFunction(e.asLineString(obj)))
	L.SetField(tbl, "as_polygon", L.NewFunction(e.asPolygon(obj)))
	L.SetField(tbl, "as_multilinestring", L.NewFunction(e.asMultiLineString(obj)))
	L.SetField(tbl, "as_multipolygon", L.NewFunction(e.asMultiPolygon(obj)))
	L.SetField(tbl, "as_geometrycollection", L.NewFunction(e.asGeometryCollection(obj)))
	L.SetField(tbl, "as_area", L.NewFunction(e.asArea(obj)))

	return tbl
}

func (e *LuaEvaluator) grabTag(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		key := L.CheckString(1)
		if val, ok := obj.Tags[key]; ok {
			delete(obj.Tags, key)
			L.Push(lua.LString(val))
		} else {
			L.Push(lua.LNil)
		}
		return 1
	}
}

// reprojectTarget reads an optional {project = <srid>} argument table,
// returning 0 when no reprojection was requested.
func reprojectTarget(L *lua.LState, argIndex int) int {
	if L.GetTop() < argIndex {
		return 0
	}
	opts, ok := L.Get(argIndex).(*lua.LTable)
	if !ok {
		return 0
	}
	if v := opts.RawGetString("project"); v.Type() == lua.LTNumber {
		return int(v.(lua.LNumber))
	}
	return 0
}

func maybeReproject(coords []float64, builderSRID, targetSRID int) []float64 {
	if targetSRID == 0 || targetSRID == builderSRID {
		return coords
	}
	r, err := proj.NewReprojector(builderSRID, targetSRID)
	if err != nil {
		return coords
	}
	out := append([]float64(nil), coords...)
	r.ReprojectCoords(out)
	return out
}

func geomHandle(L *lua.LState, wkbBytes []byte) lua.LValue {
	if wkbBytes == nil {
		return lua.LNil
	}
	geom := L.NewTable()
	geom.RawSetString("_wkb", lua.LString(string(wkbBytes)))
	return geom
}

func (e *LuaEvaluator) asPoint(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		if obj.Type != "node" {
			L.Push(lua.LNil)
			return 1
		}
		lon, lat := obj.Lon, obj.Lat
		if target := reprojectTarget(L, 2); target != 0 {
			coords := maybeReproject([]float64{lon, lat}, e.builder.SRID(), target)
			lon, lat = coords[0], coords[1]
		}
		L.Push(geomHandle(L, e.builder.Point(lon, lat)))
		return 1
	}
}

func (e *LuaEvaluator) asLineString(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		if obj.Type != "way" || len(obj.Coords) < 4 {
			L.Push(lua.LNil)
			return 1
		}
		coords := maybeReproject(obj.Coords, e.builder.SRID(), reprojectTarget(L, 2))
		wkbBytes, err := e.builder.LineString(coords)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(geomHandle(L, wkbBytes))
		return 1
	}
}

func (e *LuaEvaluator) asPolygon(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		if obj.Type != "way" || !obj.IsClosed || len(obj.Coords) < 8 {
			L.Push(lua.LNil)
			return 1
		}
		coords := maybeReproject(obj.Coords, e.builder.SRID(), reprojectTarget(L, 2))
		wkbBytes, err := e.builder.Polygon(coords)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(geomHandle(L, wkbBytes))
		return 1
	}
}

func (e *LuaEvaluator) asMultiLineString(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		if obj.Type != "relation" || len(obj.MemberWays) == 0 {
			L.Push(lua.LNil)
			return 1
		}
		wkbBytes, err := e.builder.MultiLineString(obj.MemberWays)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(geomHandle(L, wkbBytes))
		return 1
	}
}

func (e *LuaEvaluator) asMultiPolygon(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		if obj.Type != "relation" || len(obj.MemberWays) == 0 {
			L.Push(lua.LNil)
			return 1
		}
		wkbBytes, err := e.builder.Multipolygon(obj.ID, obj.MemberWays)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(geomHandle(L, wkbBytes))
		return 1
	}
}

func (e *LuaEvaluator) asGeometryCollection(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		if obj.Type != "relation" || len(obj.MemberWays) == 0 {
			L.Push(lua.LNil)
			return 1
		}
		wkbBytes, err := e.builder.GeometryCollection(obj.MemberWays)
		if err != nil {
			L.Push(lua.LNil)
			return 1
		}
		L.Push(geomHandle(L, wkbBytes))
		return 1
	}
}

// asArea renders a way or relation as a polygon/multipolygon regardless of
// the usual tag-based area heuristics, for scripts that already know the
// primitive should be treated as one.
func (e *LuaEvaluator) asArea(obj *Object) lua.LGFunction {
	return func(L *lua.LState) int {
		switch obj.Type {
		case "way":
			if !obj.IsClosed || len(obj.Coords) < 8 {
				L.Push(lua.LNil)
				return 1
			}
			wkbBytes, err := e.builder.Polygon(obj.Coords)
			if err != nil {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(geomHandle(L, wkbBytes))
		case "relation":
			if len(obj.MemberWays) == 0 {
				L.Push(lua.LNil)
				return 1
			}
			wkbBytes, err := e.builder.Multipolygon(obj.ID, obj.MemberWays)
			if err != nil {
				L.Push(lua.LNil)
				return 1
			}
			L.Push(geomHandle(L, wkbBytes))
		default:
			L.Push(lua.LNil)
		}
		return 1
	}
}

// computeArea returns the planar area of whatever geometry the object
// would produce, for automatically filling an "area"-typed column when
// the style script did not supply one explicitly.
func computeArea(obj *Object) float64 {
	switch obj.Type {
	case "way":
		if obj.IsClosed && len(obj.Coords) >= 8 {
			return geombuild.RingArea(obj.Coords)
		}
	case "relation":
		polygons, err := geombuild.BuildMultipolygon(obj.ID, obj.MemberWays)
		if err != nil {
			return 0
		}
		total := 0.0
		for _, poly := range polygons {
			total += geombuild.RingArea(poly[0])
			for _, hole := range poly[1:] {
				total -= geombuild.RingArea(hole)
			}
		}
		return total
	}
	return 0
}
