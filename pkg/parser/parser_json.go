// Copyright 2025 KrakLabs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//
// SPDX-License-Identifier: Apache-2.0

package parser

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// =============================================================================
// JSON CONFIG PARSER (.json)
// =============================================================================

// JSONParser reads schema-agnostic pipeline configs. There is no fixed
// schema for these files in the wild, so a shape classifier recognizes
// conventional key families (stages, jobs, connections, schema, source/
// target mappings) and retains unknown top-level scalars as document
// custom attributes.
type JSONParser struct{}

func NewJSONParser() *JSONParser { return &JSONParser{} }

func (p *JSONParser) Extensions() []string  { return []string{".json"} }
func (p *JSONParser) Kind() ir.DocumentKind { return ir.DocJSON }

func (p *JSONParser) Validate(path string) bool {
	head, err := readHead(path, 64)
	if err != nil {
		return false
	}
	trimmed := bytes.TrimLeft(head, " \t\r\n")
	return len(trimmed) > 0 && trimmed[0] == '{'
}

func (p *JSONParser) Parse(ctx context.Context, path string) (*ir.ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot read file", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}

	var root map[string]any
	if err := json.Unmarshal(data, &root); err != nil {
		return nil, errors.NewMalformedInput(path, "invalid JSON or top-level value is not an object", err)
	}

	doc := ir.Document{
		ID:          ir.DocumentID(path),
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:        ir.DocJSON,
		SourcePath:  ir.NormalizePath(path),
		ContentHash: ir.ContentHash(data),
		Custom:      map[string]string{},
	}
	acc := newDocAccum(doc)
	w := &jsonWalk{acc: acc, components: make(map[string]string)}

	if name, ok := root["name"].(string); ok && name != "" {
		acc.doc.Name = name
	}
	if desc, ok := root["description"].(string); ok {
		acc.doc.Description = desc
	}

	// Fixed processing order keeps synthesized names and PRECEDES
	// sequences stable across runs.
	for _, key := range []string{"connections", "datasources"} {
		if v, ok := root[key]; ok {
			w.connections(key, v)
		}
	}
	for _, key := range []string{"schema", "tables"} {
		if v, ok := root[key]; ok {
			w.tables(key, v)
		}
	}
	for _, key := range []string{"parameters", "variables"} {
		if v, ok := root[key]; ok {
			w.parameters(key, v)
		}
	}
	for _, key := range []string{"pipeline", "stages"} {
		if v, ok := root[key]; ok {
			w.stages(key, v)
		}
	}
	for _, key := range []string{"jobs", "tasks"} {
		if v, ok := root[key]; ok {
			w.jobs(key, v)
		}
	}
	for _, key := range []string{"mappings", "lineage"} {
		if v, ok := root[key]; ok {
			w.mappings(key, v)
		}
	}
	// The document itself can be a single source/target mapping.
	if hasKeys(root, "source", "target") {
		w.mapping(acc.doc.Name, root)
	}

	w.customScalars(root)
	return acc.build(), nil
}

type jsonWalk struct {
	acc        *docAccum
	components map[string]string // component name -> ID, for depends_on
	synth      int               // counter for unnamed mapping components
}

// Top-level keys claimed by the classifier; everything else scalar lands
// in Document.Custom.
var jsonClaimedKeys = map[string]struct{}{
	"name": {}, "description": {},
	"connections": {}, "datasources": {},
	"schema": {}, "tables": {},
	"parameters": {}, "variables": {},
	"pipeline": {}, "stages": {},
	"jobs": {}, "tasks": {},
	"mappings": {}, "lineage": {},
	"source": {}, "target": {},
}

// connections reads either {"name": "connstr"} maps or arrays of
// connection objects.
func (w *jsonWalk) connections(key string, v any) {
	switch vv := v.(type) {
	case map[string]any:
		for _, name := range sortedKeys(vv) {
			w.connection(name, vv[name])
		}
	case []any:
		for i, item := range vv {
			obj, ok := item.(map[string]any)
			if !ok {
				w.acc.warnf("%s[%d]: not an object", key, i)
				continue
			}
			name := stringField(obj, "name")
			if name == "" {
				name = fmt.Sprintf("%s_%d", key, i)
			}
			w.connection(name, obj)
		}
	default:
		w.acc.warnf("%s: unrecognized shape", key)
	}
}

func (w *jsonWalk) connection(name string, v any) {
	src := ir.DataSource{Name: name, Kind: ir.SourceUnknown, Properties: map[string]string{}}
	switch vv := v.(type) {
	case string:
		src.Locator = vv
	case map[string]any:
		src.Locator = firstStringField(vv, "connection_string", "locator", "dsn", "path", "url")
		if t := firstStringField(vv, "type", "kind"); t != "" {
			src.Kind = classifySourceKind(t)
			src.Properties["type"] = t
		}
		if srv := firstStringField(vv, "server", "host"); srv != "" {
			src.Properties["server"] = srv
		}
		if db := firstStringField(vv, "database", "catalog"); db != "" {
			src.Properties["database"] = db
		}
	default:
		w.acc.warnf("connection %s: unrecognized shape", name)
		return
	}
	if src.Locator == "" {
		src.Locator = name
	}
	if src.Kind == ir.SourceUnknown {
		src.Kind = classifySourceKind(src.Locator)
	}
	src.ID = ir.DataSourceID(src.Kind, src.Locator)
	interned := w.acc.internSource(src)
	w.acc.addDep(ir.Dependency{FromID: w.acc.doc.ID, ToID: interned.ID, Kind: ir.DepUses})
}

// classifySourceKind maps a declared type or a locator's texture onto the
// closed SourceKind set.
func classifySourceKind(hint string) ir.SourceKind {
	h := strings.ToLower(hint)
	switch {
	case strings.Contains(h, "sql"), strings.Contains(h, "db"), strings.Contains(h, "oracle"),
		strings.Contains(h, "postgres"), strings.Contains(h, "mysql"), strings.Contains(h, "odbc"),
		strings.Contains(h, "oledb"), strings.Contains(h, "data source="), strings.Contains(h, "server="):
		return ir.SourceDB
	case strings.HasPrefix(h, "ftp://"), h == "ftp":
		return ir.SourceFTP
	case strings.HasPrefix(h, "http://"), strings.HasPrefix(h, "https://"), h == "http", h == "api":
		return ir.SourceHTTP
	case strings.Contains(h, "file"), strings.Contains(h, "/"), strings.Contains(h, "\\"),
		strings.Contains(h, "csv"), strings.Contains(h, "flat"):
		return ir.SourceFile
	default:
		return ir.SourceUnknown
	}
}

// tables reads schema declarations into exact-confidence table entities.
func (w *jsonWalk) tables(key string, v any) {
	switch vv := v.(type) {
	case map[string]any:
		for _, name := range sortedKeys(vv) {
			w.table(name, vv[name])
		}
	case []any:
		for i, item := range vv {
			obj, ok := item.(map[string]any)
			if !ok {
				w.acc.warnf("%s[%d]: not an object", key, i)
				continue
			}
			name := stringField(obj, "name")
			if name == "" {
				w.acc.warnf("%s[%d]: table without name", key, i)
				continue
			}
			w.table(name, obj)
		}
	default:
		w.acc.warnf("%s: unrecognized shape", key)
	}
}

func (w *jsonWalk) table(name string, v any) {
	schema, _ := ir.NormalizeEntityName(ir.EntityTable, name)
	e := ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityTable, name),
		Name:       lastDotPart(name),
		EntityType: ir.EntityTable,
		Schema:     schema,
		Confidence: ir.ConfidenceExact,
	}
	switch vv := v.(type) {
	case map[string]any:
		if cols, ok := vv["columns"].([]any); ok {
			e.Columns = jsonColumns(cols)
		}
	case []any:
		e.Columns = jsonColumns(vv)
	}
	w.acc.internEntity(e)
}

func jsonColumns(cols []any) []ir.Column {
	var out []ir.Column
	for _, c := range cols {
		switch cv := c.(type) {
		case string:
			out = append(out, ir.Column{Name: cv})
		case map[string]any:
			col := ir.Column{
				Name:     stringField(cv, "name"),
				DataType: firstStringField(cv, "type", "data_type"),
			}
			if col.Name != "" {
				out = append(out, col)
			}
		}
	}
	return out
}

// parameters reads either {"name": value} maps or arrays of parameter
// objects.
func (w *jsonWalk) parameters(key string, v any) {
	add := func(name, value, dataType string) {
		w.acc.addParameter(ir.Parameter{
			ID:       ir.ParameterID(w.acc.doc.ID, "", name),
			Name:     name,
			DataType: dataType,
			Value:    value,
		})
	}
	switch vv := v.(type) {
	case map[string]any:
		for _, name := range sortedKeys(vv) {
			add(name, scalarString(vv[name]), jsonTypeName(vv[name]))
		}
	case []any:
		for i, item := range vv {
			obj, ok := item.(map[string]any)
			if !ok {
				w.acc.warnf("%s[%d]: not an object", key, i)
				continue
			}
			name := stringField(obj, "name")
			if name == "" {
				w.acc.warnf("%s[%d]: parameter without name", key, i)
				continue
			}
			dt := firstStringField(obj, "type", "data_type")
			if dt == "" {
				dt = jsonTypeName(obj["value"])
			}
			add(name, scalarString(obj["value"]), dt)
		}
	default:
		w.acc.warnf("%s: unrecognized shape", key)
	}
}

// stages reads an ordered pipeline array; order induces PRECEDES.
func (w *jsonWalk) stages(key string, v any) {
	arr, ok := v.([]any)
	if !ok {
		w.acc.warnf("%s: not an array", key)
		return
	}
	var prev string
	for i, item := range arr {
		var name, typ, desc string
		var obj map[string]any
		switch sv := item.(type) {
		case string:
			name = sv
		case map[string]any:
			obj = sv
			name = stringField(sv, "name")
			typ = stringField(sv, "type")
			desc = stringField(sv, "description")
		}
		if name == "" {
			name = fmt.Sprintf("stage_%d", i+1)
		}
		if typ == "" {
			typ = "stage"
		}
		id := w.addComponent(name, typ, desc)
		if prev != "" {
			w.acc.addDep(ir.Dependency{FromID: prev, ToID: id, Kind: ir.DepPrecedes})
		}
		prev = id
		if obj != nil && hasKeys(obj, "source", "target") {
			w.mappingEdges(id, obj)
		}
	}
}

// jobs reads named tasks whose depends_on lists induce PRECEDES edges
// from prerequisite to dependent.
func (w *jsonWalk) jobs(key string, v any) {
	arr, ok := v.([]any)
	if !ok {
		w.acc.warnf("%s: not an array", key)
		return
	}
	type edge struct{ from, toID string }
	var deps []edge
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok {
			w.acc.warnf("%s[%d]: not an object", key, i)
			continue
		}
		name := stringField(obj, "name")
		if name == "" {
			w.acc.warnf("%s[%d]: job without name skipped", key, i)
			continue
		}
		typ := stringField(obj, "type")
		if typ == "" {
			typ = strings.TrimSuffix(key, "s")
		}
		id := w.addComponent(name, typ, stringField(obj, "description"))
		for _, dep := range stringList(obj["depends_on"]) {
			deps = append(deps, edge{from: dep, toID: id})
		}
		if hasKeys(obj, "source", "target") {
			w.mappingEdges(id, obj)
		}
	}
	// Resolve depends_on after all jobs exist; forward references are
	// legal in these configs.
	for _, d := range deps {
		fromID, ok := w.components[d.from]
		if !ok {
			w.acc.warnf("depends_on %q: no such job", d.from)
			continue
		}
		w.acc.addDep(ir.Dependency{FromID: fromID, ToID: d.toID, Kind: ir.DepPrecedes})
	}
}

// mappings reads arrays of source/target pairs.
func (w *jsonWalk) mappings(key string, v any) {
	arr, ok := v.([]any)
	if !ok {
		w.acc.warnf("%s: not an array", key)
		return
	}
	for i, item := range arr {
		obj, ok := item.(map[string]any)
		if !ok || !hasKeys(obj, "source", "target") {
			w.acc.warnf("%s[%d]: not a source/target mapping", key, i)
			continue
		}
		w.mapping(stringField(obj, "name"), obj)
	}
}

// mapping synthesizes a component for a bare source/target pair so the
// lineage chain entity -> component -> entity holds.
func (w *jsonWalk) mapping(name string, obj map[string]any) {
	if name == "" {
		w.synth++
		name = fmt.Sprintf("mapping_%d", w.synth)
	}
	id := w.addComponent(name, "mapping", stringField(obj, "transformation"))
	w.mappingEdges(id, obj)
}

// mappingEdges wires component READS_FROM source and WRITES_TO target.
func (w *jsonWalk) mappingEdges(componentID string, obj map[string]any) {
	src := stringField(obj, "source")
	tgt := stringField(obj, "target")
	if src != "" {
		e := w.acc.internEntity(declaredTableEntity(src))
		w.acc.addDep(ir.Dependency{FromID: componentID, ToID: e.ID, Kind: ir.DepReadsFrom})
	}
	if tgt != "" {
		e := w.acc.internEntity(declaredTableEntity(tgt))
		dep := ir.Dependency{FromID: componentID, ToID: e.ID, Kind: ir.DepWritesTo}
		if t := stringField(obj, "transformation"); t != "" {
			dep.Properties = map[string]string{"transformation": t}
		}
		w.acc.addDep(dep)
	}
}

func declaredTableEntity(name string) ir.DataEntity {
	schema, _ := ir.NormalizeEntityName(ir.EntityTable, name)
	return ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityTable, name),
		Name:       lastDotPart(name),
		EntityType: ir.EntityTable,
		Schema:     schema,
		Confidence: ir.ConfidenceExact,
	}
}

func (w *jsonWalk) addComponent(name, typ, desc string) string {
	if id, ok := w.components[name]; ok {
		w.acc.warnf("duplicate component %q", name)
		return id
	}
	c := ir.Component{
		ID:            ir.ComponentID(w.acc.doc.ID, name),
		Name:          name,
		ComponentType: typ,
		Description:   desc,
	}
	w.acc.addComponent(c)
	w.components[name] = c.ID
	return c.ID
}

// customScalars retains unclaimed top-level scalar values as document
// custom attributes.
func (w *jsonWalk) customScalars(root map[string]any) {
	for _, key := range sortedKeys(root) {
		if _, claimed := jsonClaimedKeys[key]; claimed {
			continue
		}
		switch root[key].(type) {
		case string, float64, bool, json.Number:
			w.acc.doc.Custom[key] = scalarString(root[key])
		}
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func hasKeys(m map[string]any, keys ...string) bool {
	for _, k := range keys {
		if _, ok := m[k]; !ok {
			return false
		}
	}
	return true
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func firstStringField(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if s := stringField(m, k); s != "" {
			return s
		}
	}
	return ""
}

func stringList(v any) []string {
	switch vv := v.(type) {
	case string:
		return []string{vv}
	case []any:
		var out []string
		for _, item := range vv {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func scalarString(v any) string {
	switch vv := v.(type) {
	case nil:
		return ""
	case string:
		return vv
	case bool:
		return fmt.Sprintf("%t", vv)
	case float64:
		// Render integers without the trailing .0 JSON decoding adds.
		if vv == float64(int64(vv)) {
			return fmt.Sprintf("%d", int64(vv))
		}
		return fmt.Sprintf("%g", vv)
	default:
		b, _ := json.Marshal(vv)
		return string(b)
	}
}

func jsonTypeName(v any) string {
	switch v.(type) {
	case string:
		return "string"
	case float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return ""
	}
}
