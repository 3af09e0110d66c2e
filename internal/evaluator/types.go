// Package evaluator bridges OSM primitives to user-defined output tables
// through an embedded scripting runtime. It owns the table registry built
// from the style script's define_table calls and turns process_node /
// process_way / process_relation callbacks into rows ready for the sink.
package evaluator

import (
	"time"

	"github.com/flexosm/flex2pg/internal/geombuild"
)

// Member is one member of a relation, as declared by its tags (type/ref/role).
type Member struct {
	Type string // "node", "way", "relation"
	Ref  int64
	Role string
}

// Object is an OSM primitive passed into the evaluator for one process_*
// callback invocation. The dispatcher fills in Coords/MemberWays from the
// middle before invoking the callback, since the evaluator itself never
// talks to the middle directly.
type Object struct {
	ID        int64
	Type      string // "node", "way", "relation"
	Version   int
	Timestamp time.Time
	Changeset int64
	UID       int
	User      string
	Tags      map[string]string

	// Node-specific.
	Lat float64
	Lon float64

	// Way-specific.
	NodeRefs []int64
	IsClosed bool
	Coords   []float64 // flat [lon0, lat0, lon1, lat1, ...] for this way

	// Relation-specific.
	Members    []Member
	MemberWays []geombuild.Member // resolved way geometry for each way member, in member order

	geometry     []byte
	geometryType string
}

func (o *Object) Tag(key string) string {
	return o.Tags[key]
}

func (o *Object) HasTag(key string) bool {
	_, ok := o.Tags[key]
	return ok
}

func (o *Object) HasTags(keys ...string) bool {
	for _, key := range keys {
		if _, ok := o.Tags[key]; ok {
			return true
		}
	}
	return false
}

func (o *Object) TagCount() int {
	return len(o.Tags)
}

func (o *Object) SetGeometry(wkb []byte, geomType string) {
	o.geometry = wkb
	o.geometryType = geomType
}

func (o *Object) Geometry() ([]byte, string) {
	return o.geometry, o.geometryType
}

func (o *Object) HasGeometry() bool {
	return o.geometry != nil
}

// Row is a row the evaluator produced via <table>:insert(row), ready for
// the sink's type coercion to have already run (Values holds Go-typed
// data, not Lua values).
type Row struct {
	Table   string
	Values  map[string]interface{}
	GeomWKB []byte
}
