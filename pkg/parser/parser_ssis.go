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
	"encoding/xml"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// =============================================================================
// SSIS PARSER (.dtsx)
// =============================================================================

// SSISParser extracts packages from SQL Server Integration Services .dtsx
// files. It walks XML tokens rather than unmarshalling a fixed schema, so
// 2012/2016/2019 dialect differences and unknown elements are ignored
// instead of fatal.
type SSISParser struct{}

func NewSSISParser() *SSISParser { return &SSISParser{} }

func (p *SSISParser) Extensions() []string  { return []string{".dtsx"} }
func (p *SSISParser) Kind() ir.DocumentKind { return ir.DocSSIS }

// Validate sniffs for an XML prolog or a DTS element in the head of the
// file without parsing it.
func (p *SSISParser) Validate(path string) bool {
	head, err := readHead(path, 512)
	if err != nil {
		return false
	}
	return bytes.Contains(head, []byte("<?xml")) || bytes.Contains(head, []byte("DTS:"))
}

// precedence is a raw PrecedenceConstraint awaiting endpoint resolution.
type precedence struct {
	From, To   string
	Value      string
	Expression string
}

// ssisWalk carries mutable state for one token-walk of a package.
type ssisWalk struct {
	acc *docAccum

	// Element stack of local names, innermost last.
	stack []string

	// Open executables, innermost last. The first Executable element is
	// the package itself and is not pushed here.
	packageSeen bool
	openTasks   []string // component IDs

	// Connection manager being assembled (outer element).
	curSource     *ir.DataSource
	curSourceDTS  string // DTSID of the manager, for USES resolution
	dtsidToSource map[string]string

	// Variable being assembled.
	curParam   *ir.Parameter
	inVarValue bool

	// Reference resolution tables for precedence constraints.
	refToComponent  map[string]string // DTS:refId -> component ID
	dtsidToComp     map[string]string
	nameToComponent map[string]string

	constraints []precedence
	taskSQL     map[string]string // component ID -> concatenated SQL
}

// Parse extracts the package document, its executables, connection
// managers, variables, and precedence constraints.
func (p *SSISParser) Parse(ctx context.Context, path string) (*ir.ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot read file", err)
	}

	doc := ir.Document{
		ID:          ir.DocumentID(path),
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:        ir.DocSSIS,
		SourcePath:  ir.NormalizePath(path),
		ContentHash: ir.ContentHash(data),
		Custom:      map[string]string{},
	}

	w := &ssisWalk{
		acc:             newDocAccum(doc),
		dtsidToSource:   make(map[string]string),
		refToComponent:  make(map[string]string),
		dtsidToComp:     make(map[string]string),
		nameToComponent: make(map[string]string),
		taskSQL:         make(map[string]string),
	}

	dec := xml.NewDecoder(bytes.NewReader(data))
	tokens := 0
	for {
		tokens++
		if tokens%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, errors.FromContext(ctx)
			}
		}
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.NewMalformedInput(path, "invalid XML", err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			w.startElement(t)
		case xml.EndElement:
			w.endElement(t)
		case xml.CharData:
			w.charData(t)
		}
	}

	if !w.packageSeen {
		return nil, errors.NewMalformedInput(path, "no DTS Executable package element", nil)
	}

	w.resolveConstraints()
	w.attachSQL()
	return w.acc.build(), nil
}

func (w *ssisWalk) parent() string {
	if len(w.stack) == 0 {
		return ""
	}
	return w.stack[len(w.stack)-1]
}

func (w *ssisWalk) startElement(t xml.StartElement) {
	local := t.Name.Local
	parent := w.parent()

	switch local {
	case "Executable":
		if !w.packageSeen {
			w.packageSeen = true
			w.packageAttrs(t)
		} else {
			w.openExecutable(t)
		}

	case "ConnectionManager":
		if parent == "ConnectionManagers" {
			w.openConnectionManager(t)
		} else if parent == "ObjectData" && w.curSource != nil {
			// Nested manager element carries the actual string.
			if cs := attrLocal(t, "ConnectionString"); cs != "" {
				w.applyConnectionString(cs)
			}
		}

	case "Variable":
		if parent == "Variables" {
			w.openVariable(t)
		}

	case "VariableValue":
		if w.curParam != nil {
			w.inVarValue = true
			if dt := attrLocal(t, "DataType"); dt != "" && w.curParam.DataType == "" {
				w.curParam.DataType = dt
			}
		}

	case "SqlTaskData":
		if len(w.openTasks) > 0 {
			owner := w.openTasks[len(w.openTasks)-1]
			if sql := attrLocal(t, "SqlStatementSource"); sql != "" {
				if prev := w.taskSQL[owner]; prev != "" {
					w.taskSQL[owner] = prev + "\n" + sql
				} else {
					w.taskSQL[owner] = sql
				}
			}
			if conn := attrLocal(t, "Connection"); conn != "" {
				if srcID, ok := w.dtsidToSource[conn]; ok {
					w.acc.addDep(ir.Dependency{FromID: owner, ToID: srcID, Kind: ir.DepUses})
				}
			}
		}

	case "PrecedenceConstraint":
		w.constraints = append(w.constraints, precedence{
			From:       attrLocal(t, "From"),
			To:         attrLocal(t, "To"),
			Value:      attrLocal(t, "Value"),
			Expression: attrLocal(t, "Expression"),
		})
	}

	w.stack = append(w.stack, local)
}

func (w *ssisWalk) endElement(t xml.EndElement) {
	if len(w.stack) > 0 {
		w.stack = w.stack[:len(w.stack)-1]
	}
	switch t.Name.Local {
	case "Executable":
		if len(w.openTasks) > 0 {
			w.openTasks = w.openTasks[:len(w.openTasks)-1]
		}
	case "ConnectionManager":
		// Only close on the outer element.
		if w.curSource != nil && w.parent() == "ConnectionManagers" {
			if w.curSource.ID == "" {
				// No connection string anywhere; locate by name.
				w.curSource.Locator = w.curSource.Name
				w.curSource.ID = ir.DataSourceID(w.curSource.Kind, w.curSource.Locator)
			}
			src := w.acc.internSource(*w.curSource)
			if w.curSourceDTS != "" {
				w.dtsidToSource[w.curSourceDTS] = src.ID
			}
			w.acc.addDep(ir.Dependency{FromID: w.acc.doc.ID, ToID: src.ID, Kind: ir.DepUses})
			w.curSource = nil
			w.curSourceDTS = ""
		}
	case "Variable":
		if w.curParam != nil {
			w.acc.addParameter(*w.curParam)
			w.curParam = nil
		}
	case "VariableValue":
		w.inVarValue = false
	}
}

func (w *ssisWalk) charData(t xml.CharData) {
	if w.inVarValue && w.curParam != nil {
		w.curParam.Value += strings.TrimSpace(string(t))
	}
}

func (w *ssisWalk) packageAttrs(t xml.StartElement) {
	doc := &w.acc.doc
	if name := attrLocal(t, "ObjectName"); name != "" {
		doc.Name = name
	}
	doc.Description = attrLocal(t, "Description")
	setCustom(doc, "dtsid", attrLocal(t, "DTSID"))
	setCustom(doc, "creator_name", attrLocal(t, "CreatorName"))
	setCustom(doc, "creation_date", attrLocal(t, "CreationDate"))
	major, minor := attrLocal(t, "VersionMajor"), attrLocal(t, "VersionMinor")
	if major != "" {
		setCustom(doc, "version", major+"."+minor)
	}
}

// openExecutable records a nested Executable element as a task component.
// Tasks missing an ObjectName still produce a component, flagged
// parse_partial on the CONTAINS edge with a document warning.
func (w *ssisWalk) openExecutable(t xml.StartElement) {
	name := attrLocal(t, "ObjectName")
	refID := attrLocal(t, "refId")
	dtsid := attrLocal(t, "DTSID")
	partial := false
	if name == "" {
		if refID != "" {
			name = refID[strings.LastIndexByte(refID, '\\')+1:]
		} else {
			name = "task_" + dtsid
		}
		partial = true
		w.acc.warnf("executable without ObjectName recorded as %q", name)
	}

	c := ir.Component{
		ID:            ir.ComponentID(w.acc.doc.ID, name),
		Name:          name,
		ComponentType: ssisComponentType(t),
		Description:   attrLocal(t, "Description"),
	}
	w.acc.components = append(w.acc.components, c)

	contains := ir.Dependency{FromID: w.acc.doc.ID, ToID: c.ID, Kind: ir.DepContains}
	if partial {
		contains.Properties = map[string]string{"parse_partial": "true"}
	}
	w.acc.addDep(contains)

	if refID != "" {
		w.refToComponent[refID] = c.ID
	}
	if dtsid != "" {
		w.dtsidToComp[dtsid] = c.ID
	}
	w.nameToComponent[name] = c.ID
	w.openTasks = append(w.openTasks, c.ID)
}

// ssisComponentType derives the task type tag from the executable type,
// e.g. "Microsoft.ExecuteSQLTask" becomes "DtsExecutable:ExecuteSQLTask".
func ssisComponentType(t xml.StartElement) string {
	sub := attrLocal(t, "ExecutableType")
	if sub == "" {
		sub = attrLocal(t, "CreationName")
	}
	if i := strings.LastIndexByte(sub, '.'); i >= 0 {
		sub = sub[i+1:]
	}
	if sub == "" {
		sub = "Unknown"
	}
	return "DtsExecutable:" + sub
}

func (w *ssisWalk) openConnectionManager(t xml.StartElement) {
	name := attrLocal(t, "ObjectName")
	if name == "" {
		name = "connection_" + attrLocal(t, "DTSID")
	}
	src := ir.DataSource{
		Name:       name,
		Kind:       ir.SourceUnknown,
		Properties: map[string]string{},
	}
	if cn := attrLocal(t, "CreationName"); cn != "" {
		src.Properties["creation_name"] = cn
		switch {
		case strings.HasPrefix(cn, "OLEDB"), strings.HasPrefix(cn, "ADO"), strings.HasPrefix(cn, "ODBC"):
			src.Kind = ir.SourceDB
		case strings.HasPrefix(cn, "FLATFILE"), cn == "FILE", strings.HasPrefix(cn, "EXCEL"):
			src.Kind = ir.SourceFile
		case cn == "FTP":
			src.Kind = ir.SourceFTP
		case cn == "HTTP":
			src.Kind = ir.SourceHTTP
		}
	}
	w.curSource = &src
	w.curSourceDTS = attrLocal(t, "DTSID")
	// Some dialects put the string on the outer element directly.
	if cs := attrLocal(t, "ConnectionString"); cs != "" {
		w.applyConnectionString(cs)
	}
}

// applyConnectionString fills in the locator and splits out the server and
// database halves of a provider connection string.
func (w *ssisWalk) applyConnectionString(cs string) {
	src := w.curSource
	src.Locator = cs
	for _, pair := range strings.Split(cs, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k, v = strings.TrimSpace(k), strings.TrimSpace(v)
		switch strings.ToLower(k) {
		case "data source", "server":
			src.Properties["server"] = v
		case "initial catalog", "database":
			src.Properties["database"] = v
			if src.Kind == ir.SourceUnknown {
				src.Kind = ir.SourceDB
			}
		case "provider":
			src.Properties["provider"] = v
			if src.Kind == ir.SourceUnknown {
				src.Kind = ir.SourceDB
			}
		}
	}
	if src.Kind == ir.SourceUnknown && !strings.Contains(cs, "=") {
		// A bare path rather than a key=value connection string.
		src.Kind = ir.SourceFile
	}
	src.ID = ir.DataSourceID(src.Kind, src.Locator)
}

func (w *ssisWalk) openVariable(t xml.StartElement) {
	ns := attrLocal(t, "Namespace")
	if ns == "" {
		ns = "User"
	}
	name := attrLocal(t, "ObjectName")
	if name == "" {
		w.acc.warnf("variable without ObjectName skipped")
		return
	}
	w.curParam = &ir.Parameter{
		ID:       ir.ParameterID(w.acc.doc.ID, ns, name),
		Name:     ns + "::" + name,
		DataType: attrLocal(t, "DataType"),
	}
}

// resolveConstraints maps raw From/To references onto component IDs and
// emits PRECEDES edges. Value encodes the condition; absent means success.
func (w *ssisWalk) resolveConstraints() {
	for _, pc := range w.constraints {
		from, okF := w.resolveRef(pc.From)
		to, okT := w.resolveRef(pc.To)
		if !okF || !okT {
			w.acc.warnf("precedence constraint %q -> %q references unknown executables", pc.From, pc.To)
			continue
		}
		props := map[string]string{"condition": ssisCondition(pc.Value)}
		if pc.Expression != "" {
			props["expression"] = pc.Expression
		}
		w.acc.addDep(ir.Dependency{FromID: from, ToID: to, Kind: ir.DepPrecedes, Properties: props})
	}
}

// ssisCondition decodes the DTS Value attribute: 1 success, 2 failure,
// 3 completion. Packages omit the attribute for the success default.
func ssisCondition(value string) string {
	switch value {
	case "2":
		return "failure"
	case "3":
		return "completion"
	default:
		return "success"
	}
}

func (w *ssisWalk) resolveRef(ref string) (string, bool) {
	if ref == "" {
		return "", false
	}
	if id, ok := w.refToComponent[ref]; ok {
		return id, true
	}
	if id, ok := w.dtsidToComp[ref]; ok {
		return id, true
	}
	// Fall back to the last path segment of a refId-style reference.
	if i := strings.LastIndexByte(ref, '\\'); i >= 0 {
		if id, ok := w.nameToComponent[ref[i+1:]]; ok {
			return id, true
		}
	}
	id, ok := w.nameToComponent[ref]
	return id, ok
}

// attachSQL feeds collected SQL statements through the shared scanner and
// keeps an excerpt on the owning component.
func (w *ssisWalk) attachSQL() {
	for i := range w.acc.components {
		c := &w.acc.components[i]
		sql, ok := w.taskSQL[c.ID]
		if !ok {
			continue
		}
		c.SourceExcerpt = excerpt(sql, 500)
		applySQLRefs(w.acc, c.ID, sql)
	}
}

func setCustom(doc *ir.Document, key, val string) {
	if val != "" {
		doc.Custom[key] = val
	}
}

// attrLocal returns an attribute value matched by local name, ignoring the
// namespace so DTS:ObjectName and bare ObjectName both resolve.
func attrLocal(t xml.StartElement, local string) string {
	for _, a := range t.Attr {
		if a.Name.Local == local {
			return a.Value
		}
	}
	return ""
}

func excerpt(s string, limit int) string {
	s = strings.TrimSpace(s)
	if len(s) <= limit {
		return s
	}
	return s[:limit]
}

// readHead reads up to n bytes from the start of a file.
func readHead(path string, n int) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	buf := make([]byte, n)
	read, err := io.ReadFull(f, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return nil, err
	}
	return buf[:read], nil
}
