package evaluator

import (
	"fmt"
	"strings"
	"sync/atomic"

	lua "github.com/yuin/gopher-lua"

	"github.com/flexosm/flex2pg/internal/geombuild"
	"github.com/flexosm/flex2pg/internal/schema"
)

// LuaEvaluator runs a style script in its own gopher-lua VM. Dispatcher
// workers each own one instance (a VM per worker, not per call) so the
// script's global state is never shared across goroutines.
type LuaEvaluator struct {
	L       *lua.LState
	tables  *schema.Registry
	builder *geombuild.Builder

	defaultSchema string

	currentObject *Object
	pendingRows   []Row

	processNode     lua.LValue
	processWay      lua.LValue
	processRelation lua.LValue

	rejectedRows atomic.Int64
}

// NewLuaEvaluator creates a VM, registers the osm2pgsql API and tag
// transform helpers, and loads the style script at path.
func NewLuaEvaluator(path string, srid int, defaultSchema string) (*LuaEvaluator, error) {
	e := &LuaEvaluator{
		L:             lua.NewState(lua.Options{SkipOpenLibs: false}),
		tables:        schema.NewRegistry(),
		builder:       geombuild.NewBuilder(srid),
		defaultSchema: defaultSchema,
	}

	e.registerAPI(srid)

	if err := e.L.DoFile(path); err != nil {
		e.L.Close()
		return nil, fmt.Errorf("loading style script %s: %w", path, err)
	}
	e.extractCallbacks()

	return e, nil
}

// Close releases the VM.
func (e *LuaEvaluator) Close() {
	e.L.Close()
}

// Tables returns the tables the style script declared via define_table.
func (e *LuaEvaluator) Tables() *schema.Registry { return e.tables }

// RejectedRows returns the number of table:insert calls dropped for
// failing type coercion or a not_null violation since the VM started.
func (e *LuaEvaluator) RejectedRows() int64 { return e.rejectedRows.Load() }

func (e *LuaEvaluator) registerAPI(srid int) {
	L := e.L

	osm2pgsql := L.NewTable()
	osm2pgsql.RawSetString("version", lua.LString("1.0"))
	osm2pgsql.RawSetString("mode", lua.LString("flex"))
	osm2pgsql.RawSetString("srid", lua.LNumber(srid))
	osm2pgsql.RawSetString("stage", lua.LNumber(1))

	L.SetField(osm2pgsql, "define_table", L.NewFunction(e.defineTable))
	L.SetGlobal("osm2pgsql", osm2pgsql)

	registerTransforms(L)

	L.SetGlobal("print", L.NewFunction(e.luaPrint))
}

func (e *LuaEvaluator) luaPrint(L *lua.LState) int {
	n := L.GetTop()
	parts := make([]string, 0, n)
	for i := 1; i <= n; i++ {
		parts = append(parts, L.ToStringMeta(L.Get(i)).String())
	}
	fmt.Println(strings.Join(parts, "\t"))
	return 0
}

func (e *LuaEvaluator) extractCallbacks() {
	g := e.L.GetGlobal("osm2pgsql")
	tbl, ok := g.(*lua.LTable)
	if !ok {
		return
	}
	e.processNode = tbl.RawGetString("process_node")
	e.processWay = tbl.RawGetString("process_way")
	e.processRelation = tbl.RawGetString("process_relation")
}

// defineTable implements osm2pgsql.define_table(def).
func (e *LuaEvaluator) defineTable(L *lua.LState) int {
	def := L.CheckTable(1)

	t := &schema.Table{Schema: e.defaultSchema}

	if name := def.RawGetString("name"); name.Type() == lua.LTString {
		t.Name = string(name.(lua.LString))
	} else {
		L.RaiseError("define_table: name is required")
		return 0
	}

	if s := def.RawGetString("schema"); s.Type() == lua.LTString {
		t.Schema = string(s.(lua.LString))
	}
	if s := def.RawGetString("data_tablespace"); s.Type() == lua.LTString {
		t.DataTablespace = string(s.(lua.LString))
	}
	if s := def.RawGetString("index_tablespace"); s.Type() == lua.LTString {
		t.IndexTablespace = string(s.(lua.LString))
	}
	if c := def.RawGetString("cluster"); c.Type() == lua.LTString {
		t.Cluster = string(c.(lua.LString))
	} else if c.Type() == lua.LTBool && bool(c.(lua.LBool)) {
		t.Cluster = "auto"
	}

	if ids := def.RawGetString("ids"); ids.Type() == lua.LTTable {
		idc, err := parseIDColumn(ids.(*lua.LTable))
		if err != nil {
			L.RaiseError("define_table %s: %s", t.Name, err)
			return 0
		}
		t.IDColumn = idc
	}

	if cols := def.RawGetString("columns"); cols.Type() == lua.LTTable {
		var parseErr error
		cols.(*lua.LTable).ForEach(func(_, v lua.LValue) {
			if parseErr != nil {
				return
			}
			colDef, ok := v.(*lua.LTable)
			if !ok {
				return
			}
			col, err := parseColumn(colDef)
			if err != nil {
				parseErr = err
				return
			}
			t.Columns = append(t.Columns, col)
		})
		if parseErr != nil {
			L.RaiseError("define_table %s: %s", t.Name, parseErr)
			return 0
		}
	}

	if idxs := def.RawGetString("indexes"); idxs.Type() == lua.LTTable {
		idxs.(*lua.LTable).ForEach(func(_, v lua.LValue) {
			idxDef, ok := v.(*lua.LTable)
			if !ok {
				return
			}
			t.Indexes = append(t.Indexes, parseIndex(idxDef))
		})
	}

	if err := e.tables.Register(t); err != nil {
		L.RaiseError("%s", err)
		return 0
	}

	tableLua := L.NewTable()
	L.SetField(tableLua, "name", lua.LString(t.Name))
	L.SetField(tableLua, "insert", L.NewFunction(e.tableInsert(t)))
	L.Push(tableLua)
	return 1
}

func parseIDColumn(tbl *lua.LTable) (*schema.IDColumn, error) {
	idc := &schema.IDColumn{}

	typeVal := tbl.RawGetString("type")
	if typeVal.Type() != lua.LTString {
		return nil, fmt.Errorf("ids.type is required")
	}
	idc.Kind = schema.IDColumnKind(string(typeVal.(lua.LString)))

	if c := tbl.RawGetString("column"); c.Type() == lua.LTString {
		idc.Column = string(c.(lua.LString))
	}
	if c := tbl.RawGetString("type_column"); c.Type() == lua.LTString {
		idc.TypeColumn = string(c.(lua.LString))
	}
	if c := tbl.RawGetString("create_index"); c.Type() == lua.LTString {
		idc.CreateIndex = schema.CreateIndexMode(string(c.(lua.LString)))
	}

	return idc, nil
}

func parseColumn(tbl *lua.LTable) (schema.Column, error) {
	col := schema.Column{}

	if name := tbl.RawGetString("column"); name.Type() == lua.LTString {
		col.Name = string(name.(lua.LString))
	} else {
		return col, fmt.Errorf("column definition is missing 'column'")
	}

	typeStr := "text"
	if typ := tbl.RawGetString("type"); typ.Type() == lua.LTString {
		typeStr = strings.ToLower(string(typ.(lua.LString)))
	}
	logicalType, err := schema.ParseLogicalType(typeStr)
	if err != nil {
		return col, fmt.Errorf("column %s: %w", col.Name, err)
	}
	col.Type = logicalType

	if sqlType := tbl.RawGetString("sql_type"); sqlType.Type() == lua.LTString {
		col.SQLType = string(sqlType.(lua.LString))
	}
	if nn := tbl.RawGetString("not_null"); nn.Type() == lua.LTBool {
		col.NotNull = bool(nn.(lua.LBool))
	}
	if co := tbl.RawGetString("create_only"); co.Type() == lua.LTBool {
		col.CreateOnly = bool(co.(lua.LBool))
	}
	if srid := tbl.RawGetString("srid"); srid.Type() == lua.LTNumber {
		col.SRID = int(srid.(lua.LNumber))
	}
	if proj := tbl.RawGetString("projection"); proj.Type() == lua.LTNumber {
		col.Projection = int(proj.(lua.LNumber))
	}

	return col, nil
}

func parseIndex(tbl *lua.LTable) schema.Index {
	idx := schema.Index{}

	if col := tbl.RawGetString("column"); col.Type() == lua.LTString {
		idx.Columns = []string{string(col.(lua.LString))}
	}
	if cols := tbl.RawGetString("columns"); cols.Type() == lua.LTTable {
		cols.(*lua.LTable).ForEach(func(_, v lua.LValue) {
			if s := lua.LVAsString(v); s != "" {
				idx.Columns = append(idx.Columns, s)
			}
		})
	}
	if method := tbl.RawGetString("method"); method.Type() == lua.LTString {
		idx.Method = string(method.(lua.LString))
	}
	if unique := tbl.RawGetString("unique"); unique.Type() == lua.LTBool {
		idx.Unique = bool(unique.(lua.LBool))
	}
	if where := tbl.RawGetString("where"); where.Type() == lua.LTString {
		idx.Where = string(where.(lua.LString))
	}
	if ff := tbl.RawGetString("fillfactor"); ff.Type() == lua.LTNumber {
		idx.Fillfactor = int(ff.(lua.LNumber))
	}

	return idx
}

// tableInsert implements <table>:insert(row).
func (e *LuaEvaluator) tableInsert(t *schema.Table) lua.LGFunction {
	return func(L *lua.LState) int {
		var rowData *lua.LTable
		if L.GetTop() >= 2 {
			rowData = L.CheckTable(2)
		} else {
			rowData = L.CheckTable(1)
		}

		row := Row{Table: t.Name, Values: make(map[string]interface{})}
		columnsByName := make(map[string]*schema.Column, len(t.Columns))
		for i := range t.Columns {
			columnsByName[t.Columns[i].Name] = &t.Columns[i]
		}

		rejected := false
		rowData.ForEach(func(key, value lua.LValue) {
			if rejected || key.Type() != lua.LTString {
				return
			}
			name := string(key.(lua.LString))
			col, known := columnsByName[name]
			if !known {
				rejected = true
				return
			}
			if col.CreateOnly {
				rejected = true
				return
			}

			v, geomWKB, err := coerceValue(col, value)
			if err != nil {
				rejected = true
				return
			}
			if geomWKB != nil {
				row.GeomWKB = geomWKB
				return
			}
			if v == nil {
				if col.NotNull {
					rejected = true
				}
				return
			}
			row.Values[name] = v
		})

		if rejected {
			e.rejectedRows.Add(1)
			return 0
		}

		for _, col := range t.Columns {
			if col.Type == schema.TypeArea && !col.CreateOnly {
				if _, present := row.Values[col.Name]; !present && e.currentObject != nil {
					row.Values[col.Name] = computeArea(e.currentObject)
				}
			}
		}

		if t.IDColumn != nil && e.currentObject != nil {
			idCol := t.IDColumn.Column
			if idCol == "" {
				idCol = "osm_id"
			}
			if _, present := row.Values[idCol]; !present {
				row.Values[idCol] = e.currentObject.ID
			}
			if t.IDColumn.Kind == schema.IDKindAny && t.IDColumn.TypeColumn != "" {
				if _, present := row.Values[t.IDColumn.TypeColumn]; !present {
					row.Values[t.IDColumn.TypeColumn] = e.currentObject.Type
				}
			}
		}

		if row.GeomWKB == nil && e.currentObject != nil {
			if wkb, _ := e.currentObject.Geometry(); wkb != nil {
				row.GeomWKB = wkb
			}
		}

		// A column the script never set is indistinguishable, from Lua's side,
		// from one explicitly set to nil: rowData.ForEach above only visits
		// keys actually present in the table. Catch a not_null column left
		// unset here, rather than let it reach sink.Insert as a NULL value
		// against a NOT NULL DDL column.
		for _, col := range t.Columns {
			if !col.NotNull || col.CreateOnly || col.Type.IsGeometry() {
				continue
			}
			if _, present := row.Values[col.Name]; !present {
				e.rejectedRows.Add(1)
				return 0
			}
		}

		e.pendingRows = append(e.pendingRows, row)
		return 0
	}
}

// collectRows drains and clears the rows produced since the last call.
func (e *LuaEvaluator) collectRows() []Row {
	rows := e.pendingRows
	e.pendingRows = nil
	return rows
}

func (e *LuaEvaluator) HasProcessNode() bool {
	return e.processNode != nil && e.processNode.Type() == lua.LTFunction
}

func (e *LuaEvaluator) HasProcessWay() bool {
	return e.processWay != nil && e.processWay.Type() == lua.LTFunction
}

func (e *LuaEvaluator) HasProcessRelation() bool {
	return e.processRelation != nil && e.processRelation.Type() == lua.LTFunction
}

func (e *LuaEvaluator) ProcessNode(obj *Object) ([]Row, error) {
	if !e.HasProcessNode() {
		return nil, nil
	}
	return e.runCallback(e.processNode, obj)
}

func (e *LuaEvaluator) ProcessWay(obj *Object) ([]Row, error) {
	if !e.HasProcessWay() {
		return nil, nil
	}
	return e.runCallback(e.processWay, obj)
}

func (e *LuaEvaluator) ProcessRelation(obj *Object) ([]Row, error) {
	if !e.HasProcessRelation() {
		return nil, nil
	}
	return e.runCallback(e.processRelation, obj)
}

func (e *LuaEvaluator) runCallback(fn lua.LValue, obj *Object) ([]Row, error) {
	e.currentObject = obj
	objTable := e.objectToLua(obj)

	if err := e.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, objTable); err != nil {
		e.currentObject = nil
		e.pendingRows = nil
		return nil, fmt.Errorf("style script callback failed for %s %d: %w", obj.Type, obj.ID, err)
	}

	rows := e.collectRows()
	e.currentObject = nil
	return rows, nil
}
