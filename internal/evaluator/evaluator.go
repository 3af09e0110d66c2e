package evaluator

import "github.com/flexosm/flex2pg/internal/schema"

// Evaluator runs a style script's process_node/process_way/process_relation
// hooks against OSM primitives and returns the rows produced by table
// insert calls made during that run.
type Evaluator interface {
	Tables() *schema.Registry

	HasProcessNode() bool
	HasProcessWay() bool
	HasProcessRelation() bool

	ProcessNode(obj *Object) ([]Row, error)
	ProcessWay(obj *Object) ([]Row, error)
	ProcessRelation(obj *Object) ([]Row, error)

	Close()
}
