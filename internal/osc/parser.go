package osc

import (
	"compress/gzip"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/flexosm/flex2pg/internal/middle"
)

// Parser decodes an OSC (OSM Change) document into a stream of Change
// values, in document order, as the <create>/<modify>/<delete> blocks and
// their <node>/<way>/<relation> children are encountered.
type Parser struct {
	stats Stats
}

func NewParser() *Parser {
	return &Parser{}
}

// Stats reports the running create/modify/delete counts for everything
// decoded so far.
func (p *Parser) Stats() Stats {
	return p.stats
}

// ParseFile decodes a .osc or .osc.gz file.
func (p *Parser) ParseFile(ctx context.Context, filename string) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errCh := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errCh)

		f, err := os.Open(filename)
		if err != nil {
			errCh <- fmt.Errorf("opening OSC file: %w", err)
			return
		}
		defer f.Close()

		var reader io.Reader = f
		if strings.HasSuffix(filename, ".gz") {
			gz, err := gzip.NewReader(f)
			if err != nil {
				errCh <- fmt.Errorf("opening gzip stream: %w", err)
				return
			}
			defer gz.Close()
			reader = gz
		}

		if err := p.parse(ctx, reader, changes); err != nil {
			errCh <- err
		}
	}()

	return changes, errCh
}

// ParseReader decodes OSC XML already available as an io.Reader, e.g. a
// response body the replication fetcher already holds open.
func (p *Parser) ParseReader(ctx context.Context, reader io.Reader) (<-chan Change, <-chan error) {
	changes := make(chan Change, 1000)
	errCh := make(chan error, 1)

	go func() {
		defer close(changes)
		defer close(errCh)
		if err := p.parse(ctx, reader, changes); err != nil {
			errCh <- err
		}
	}()

	return changes, errCh
}

func (p *Parser) parse(ctx context.Context, reader io.Reader, changes chan<- Change) error {
	decoder := xml.NewDecoder(reader)
	var action Action

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		token, err := decoder.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("osc: XML decode error: %w", err)
		}

		se, ok := token.(xml.StartElement)
		if !ok {
			continue
		}

		switch se.Name.Local {
		case "create":
			action = ActionCreate
		case "modify":
			action = ActionModify
		case "delete":
			action = ActionDelete
		case "node":
			node, err := p.parseNode(decoder, se, action)
			if err != nil {
				return err
			}
			if err := p.emit(ctx, changes, Change{Action: action, Type: "node", Node: node}, "node", action); err != nil {
				return err
			}
		case "way":
			way, err := p.parseWay(decoder, se, action)
			if err != nil {
				return err
			}
			if err := p.emit(ctx, changes, Change{Action: action, Type: "way", Way: way}, "way", action); err != nil {
				return err
			}
		case "relation":
			rel, err := p.parseRelation(decoder, se, action)
			if err != nil {
				return err
			}
			if err := p.emit(ctx, changes, Change{Action: action, Type: "relation", Relation: rel}, "relation", action); err != nil {
				return err
			}
		}
	}
}

// emit sends a decoded change downstream and folds it into stats, unless
// the context was cancelled first.
func (p *Parser) emit(ctx context.Context, changes chan<- Change, c Change, objType string, action Action) error {
	select {
	case changes <- c:
		p.updateStats(action, objType)
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// primitiveAttrs holds the attribute set every OSC primitive element
// (node/way/relation) carries, independent of its own geometry/member data.
type primitiveAttrs struct {
	id        int64
	version   int32
	changeset int64
	timestamp time.Time
	user      string
	uid       int32
}

func parsePrimitiveAttrs(attrs []xml.Attr) primitiveAttrs {
	var a primitiveAttrs
	for _, attr := range attrs {
		switch attr.Name.Local {
		case "id":
			a.id, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "version":
			v, _ := strconv.ParseInt(attr.Value, 10, 32)
			a.version = int32(v)
		case "changeset":
			a.changeset, _ = strconv.ParseInt(attr.Value, 10, 64)
		case "timestamp":
			a.timestamp, _ = time.Parse(time.RFC3339, attr.Value)
		case "user":
			a.user = attr.Value
		case "uid":
			uid, _ := strconv.ParseInt(attr.Value, 10, 32)
			a.uid = int32(uid)
		}
	}
	return a
}

// parseTag reads a <tag k="..." v="..."/> element's attributes.
func parseTag(attrs []xml.Attr) (k, v string) {
	for _, attr := range attrs {
		switch attr.Name.Local {
		case "k":
			k = attr.Value
		case "v":
			v = attr.Value
		}
	}
	return k, v
}

// skipToEnd discards tokens up to and including the matching end element,
// the shortcut taken for a <delete> primitive: OSC only guarantees the id
// attribute is meaningful there, so any children are irrelevant.
func skipToEnd(decoder *xml.Decoder, elementName string) error {
	for {
		token, err := decoder.Token()
		if err != nil {
			return err
		}
		if ee, ok := token.(xml.EndElement); ok && ee.Name.Local == elementName {
			return nil
		}
	}
}

func (p *Parser) parseNode(decoder *xml.Decoder, start xml.StartElement, action Action) (*middle.RawNode, error) {
	attrs := parsePrimitiveAttrs(start.Attr)
	node := &middle.RawNode{
		ID: attrs.id, Version: attrs.version, Changeset: attrs.changeset,
		Timestamp: attrs.timestamp, User: attrs.user, UID: attrs.uid,
		Tags: make(map[string]string),
	}
	for _, attr := range start.Attr {
		switch attr.Name.Local {
		case "lat":
			lat, _ := strconv.ParseFloat(attr.Value, 64)
			node.Lat = middle.ScaleCoord(lat)
		case "lon":
			lon, _ := strconv.ParseFloat(attr.Value, 64)
			node.Lon = middle.ScaleCoord(lon)
		}
	}

	if action == ActionDelete {
		return node, skipToEnd(decoder, "node")
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			if se.Name.Local == "tag" {
				if k, v := parseTag(se.Attr); k != "" {
					node.Tags[k] = v
				}
			}
		case xml.EndElement:
			if se.Name.Local == "node" {
				return node, nil
			}
		}
	}
}

func (p *Parser) parseWay(decoder *xml.Decoder, start xml.StartElement, action Action) (*middle.RawWay, error) {
	attrs := parsePrimitiveAttrs(start.Attr)
	way := &middle.RawWay{
		ID: attrs.id, Version: attrs.version, Changeset: attrs.changeset,
		Timestamp: attrs.timestamp, User: attrs.user, UID: attrs.uid,
		Nodes: make([]int64, 0, 100),
		Tags:  make(map[string]string),
	}

	if action == ActionDelete {
		return way, skipToEnd(decoder, "way")
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "nd":
				for _, attr := range se.Attr {
					if attr.Name.Local == "ref" {
						ref, _ := strconv.ParseInt(attr.Value, 10, 64)
						way.Nodes = append(way.Nodes, ref)
					}
				}
			case "tag":
				if k, v := parseTag(se.Attr); k != "" {
					way.Tags[k] = v
				}
			}
		case xml.EndElement:
			if se.Name.Local == "way" {
				return way, nil
			}
		}
	}
}

// memberTypeCode maps OSC's spelled-out member type to the single-letter
// code the middle tables' reverse indexes are keyed on.
func memberTypeCode(t string) string {
	switch t {
	case "node":
		return "n"
	case "way":
		return "w"
	case "relation":
		return "r"
	default:
		return t
	}
}

func (p *Parser) parseRelation(decoder *xml.Decoder, start xml.StartElement, action Action) (*middle.RawRelation, error) {
	attrs := parsePrimitiveAttrs(start.Attr)
	rel := &middle.RawRelation{
		ID: attrs.id, Version: attrs.version, Changeset: attrs.changeset,
		Timestamp: attrs.timestamp, User: attrs.user, UID: attrs.uid,
		Members: make([]middle.RelationMember, 0, 10),
		Tags:    make(map[string]string),
	}

	if action == ActionDelete {
		return rel, skipToEnd(decoder, "relation")
	}

	for {
		token, err := decoder.Token()
		if err != nil {
			return nil, err
		}
		switch se := token.(type) {
		case xml.StartElement:
			switch se.Name.Local {
			case "member":
				var member middle.RelationMember
				for _, attr := range se.Attr {
					switch attr.Name.Local {
					case "type":
						member.Type = memberTypeCode(attr.Value)
					case "ref":
						member.Ref, _ = strconv.ParseInt(attr.Value, 10, 64)
					case "role":
						member.Role = attr.Value
					}
				}
				rel.Members = append(rel.Members, member)
			case "tag":
				if k, v := parseTag(se.Attr); k != "" {
					rel.Tags[k] = v
				}
			}
		case xml.EndElement:
			if se.Name.Local == "relation" {
				return rel, nil
			}
		}
	}
}

func (p *Parser) updateStats(action Action, objType string) {
	switch objType {
	case "node":
		switch action {
		case ActionCreate:
			p.stats.NodesCreated++
		case ActionModify:
			p.stats.NodesModified++
		case ActionDelete:
			p.stats.NodesDeleted++
		}
	case "way":
		switch action {
		case ActionCreate:
			p.stats.WaysCreated++
		case ActionModify:
			p.stats.WaysModified++
		case ActionDelete:
			p.stats.WaysDeleted++
		}
	case "relation":
		switch action {
		case ActionCreate:
			p.stats.RelationsCreated++
		case ActionModify:
			p.stats.RelationsModified++
		case ActionDelete:
			p.stats.RelationsDeleted++
		}
	}
}
