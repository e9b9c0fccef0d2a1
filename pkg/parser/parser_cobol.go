// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <https://www.gnu.org/licenses/>.
//
// For commercial licensing, contact: licensing@kraklabs.com
//
// SPDX-License-Identifier: AGPL-3.0-or-later

package parser

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// =============================================================================
// COBOL PARSER (.cbl, .cob)
// =============================================================================

// COBOLParser extracts programs from COBOL source. Fixed-form layout is
// the default: columns 1-6 are sequence numbers, column 7 is the indicator
// (* or / comments, - continuation), columns 8-72 are source text.
type COBOLParser struct {
	// FreeForm disables column slicing and treats whole lines as source,
	// with *> starting a comment.
	FreeForm bool
}

func NewCOBOLParser() *COBOLParser { return &COBOLParser{} }

func (p *COBOLParser) Extensions() []string  { return []string{".cbl", ".cob"} }
func (p *COBOLParser) Kind() ir.DocumentKind { return ir.DocCOBOL }

func (p *COBOLParser) Validate(path string) bool {
	head, err := readHead(path, 2048)
	if err != nil {
		return false
	}
	up := strings.ToUpper(string(head))
	return strings.Contains(up, "IDENTIFICATION DIVISION") ||
		strings.Contains(up, "PROGRAM-ID")
}

var (
	reDivision  = regexp.MustCompile(`^\s*(IDENTIFICATION|ID|ENVIRONMENT|DATA|PROCEDURE)\s+DIVISION`)
	reSection   = regexp.MustCompile(`^\s*([A-Z0-9][A-Z0-9-]*)\s+SECTION\s*\.`)
	reProgramID = regexp.MustCompile(`PROGRAM-ID\s*\.?\s*([A-Za-z0-9][\w-]*)?`)
	reParagraph = regexp.MustCompile(`^([A-Za-z0-9][\w-]*)\s*\.\s*$`)
	reLevelItem = regexp.MustCompile(`^\s*(\d{1,2})\s+([A-Za-z0-9][\w-]*)\b(.*)$`)
	rePicClause = regexp.MustCompile(`\bPIC(?:TURE)?\s+(?:IS\s+)?([A-Z0-9()VSXZ.,+-]+)`)
	rePerform   = regexp.MustCompile(`\bPERFORM\s+([A-Za-z0-9][\w-]*)`)
	reCallLit   = regexp.MustCompile(`\bCALL\s+['"]([\w.-]+)['"]`)
	reFileIO    = regexp.MustCompile(`\b(READ|WRITE|REWRITE|DELETE)\s+([A-Za-z0-9][\w-]*)`)
	reAssignTo  = regexp.MustCompile(`ASSIGN\s+TO\s+([^\s.,;]+)`)
)

// PERFORM captures that are clause keywords, not paragraph names.
var performKeywords = map[string]struct{}{
	"UNTIL": {}, "VARYING": {}, "TIMES": {}, "WITH": {}, "TEST": {},
	"THRU": {}, "THROUGH": {},
}

type cobolPerform struct {
	fromID string
	target string // paragraph name, uppercase
}

type cobolWalk struct {
	acc *docAccum

	division string // identification, environment, data, procedure
	section  string // uppercase section or paragraph within the division

	fileSources map[string]string // COBOL file name -> source ID
	paragraphs  map[string]string // paragraph name -> component ID
	curPara     string            // component ID of the active paragraph
	performs    []cobolPerform

	fcText strings.Builder // FILE-CONTROL text awaiting SELECT extraction

	curRecord *ir.DataEntity

	inSQL    bool
	sqlOwner string
	sqlBuf   strings.Builder
}

// Parse tokenizes the program by division: IDENTIFICATION names the
// document, FILE-CONTROL declares file data sources, WORKING-STORAGE
// 01-levels declare record entities, and PROCEDURE paragraphs become
// components with their I/O and call statements as edges.
func (p *COBOLParser) Parse(ctx context.Context, path string) (*ir.ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot read file", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}

	lines := cobolSourceLines(string(data), p.FreeForm)

	doc := ir.Document{
		ID:          ir.DocumentID(path),
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:        ir.DocCOBOL,
		SourcePath:  ir.NormalizePath(path),
		ContentHash: ir.ContentHash(data),
	}

	w := &cobolWalk{
		acc:         newDocAccum(doc),
		fileSources: make(map[string]string),
		paragraphs:  make(map[string]string),
	}

	sawProgramID := false
	pendingProgramID := false
	for _, line := range lines {
		up := strings.ToUpper(line)
		trimmed := strings.TrimSpace(up)
		if trimmed == "" {
			continue
		}

		if pendingProgramID {
			pendingProgramID = false
			name := strings.Trim(strings.Fields(trimmed)[0], ".")
			if name != "" {
				w.acc.doc.Name = name
				sawProgramID = true
			}
		}

		if w.inSQL {
			w.continueSQL(trimmed)
			continue
		}

		if m := reDivision.FindStringSubmatch(up); m != nil {
			w.enterDivision(strings.ToLower(m[1]))
			continue
		}
		if m := reSection.FindStringSubmatch(up); m != nil {
			w.enterSection(m[1])
			continue
		}

		switch w.division {
		case "identification", "id":
			if m := reProgramID.FindStringSubmatch(up); m != nil {
				if m[1] != "" {
					w.acc.doc.Name = m[1]
					sawProgramID = true
				} else {
					pendingProgramID = true
				}
			}
		case "environment":
			if trimmed == "FILE-CONTROL." {
				w.section = "FILE-CONTROL"
				continue
			}
			if w.section == "FILE-CONTROL" {
				w.fcText.WriteString(" " + trimmed)
			}
		case "data":
			if w.section == "WORKING-STORAGE" {
				w.dataItem(trimmed)
			}
		case "procedure":
			w.procedureLine(line, trimmed)
		}
	}
	w.flushFileControl()
	w.flushRecord()
	w.flushSQL()
	w.resolvePerforms()

	if !sawProgramID && w.division == "" {
		return nil, errors.NewMalformedInput(path, "no COBOL divisions found", nil)
	}
	if !sawProgramID {
		w.acc.warnf("no PROGRAM-ID found; document named after file")
	}
	return w.acc.build(), nil
}

// cobolSourceLines strips comments and applies fixed-form column slicing.
// Continuation lines (- in column 7) are appended to their predecessor.
func cobolSourceLines(src string, freeForm bool) []string {
	raw := strings.Split(strings.ReplaceAll(src, "\r\n", "\n"), "\n")
	var out []string
	for _, line := range raw {
		if freeForm {
			if i := strings.Index(line, "*>"); i >= 0 {
				line = line[:i]
			}
			out = append(out, line)
			continue
		}
		if len(line) < 7 {
			continue
		}
		indicator := line[6]
		if indicator == '*' || indicator == '/' {
			continue
		}
		end := len(line)
		if end > 72 {
			end = 72
		}
		content := line[7:end]
		if indicator == '-' && len(out) > 0 {
			out[len(out)-1] += " " + strings.TrimSpace(content)
			continue
		}
		out = append(out, content)
	}
	return out
}

func (w *cobolWalk) enterDivision(name string) {
	w.flushFileControl()
	w.flushRecord()
	w.division = name
	w.section = ""
}

func (w *cobolWalk) enterSection(name string) {
	w.flushRecord()
	w.section = name
	// A section header inside the procedure division is itself a
	// performable unit, so it becomes a component like a paragraph.
	if w.division == "procedure" {
		w.openParagraph(name, "section")
	}
}

// flushFileControl extracts SELECT ... ASSIGN TO pairs from the collected
// FILE-CONTROL text and interns one file DataSource per SELECT.
func (w *cobolWalk) flushFileControl() {
	text := w.fcText.String()
	w.fcText.Reset()
	if text == "" {
		return
	}
	for _, seg := range strings.Split(text, "SELECT ")[1:] {
		fields := strings.Fields(seg)
		if len(fields) == 0 {
			continue
		}
		fileName := strings.Trim(fields[0], ".")
		if fileName == "OPTIONAL" && len(fields) > 1 {
			fileName = strings.Trim(fields[1], ".")
		}
		if fileName == "" {
			continue
		}
		locator := fileName
		if m := reAssignTo.FindStringSubmatch(seg); m != nil {
			locator = strings.Trim(m[1], `'".`)
		}
		src := w.acc.internSource(ir.DataSource{
			ID:      ir.DataSourceID(ir.SourceFile, locator),
			Name:    fileName,
			Kind:    ir.SourceFile,
			Locator: locator,
		})
		w.fileSources[fileName] = src.ID
		w.acc.addDep(ir.Dependency{FromID: w.acc.doc.ID, ToID: src.ID, Kind: ir.DepUses})
	}
}

// dataItem handles one WORKING-STORAGE line: 01-levels open a record
// entity, lower levels with PIC clauses contribute columns.
func (w *cobolWalk) dataItem(trimmed string) {
	m := reLevelItem.FindStringSubmatch(trimmed)
	if m == nil {
		return
	}
	level, name, rest := m[1], m[2], m[3]
	switch level {
	case "01", "1":
		w.flushRecord()
		e := ir.DataEntity{
			ID:         ir.DataEntityID(ir.EntityRecord, name),
			Name:       name,
			EntityType: ir.EntityRecord,
			Confidence: ir.ConfidenceExact,
		}
		w.curRecord = &e
	case "66", "77", "88":
		// Renames, standalone items, and condition names are not records.
	default:
		if w.curRecord == nil {
			return
		}
		if pic := rePicClause.FindStringSubmatch(rest); pic != nil {
			// A trailing dot is the sentence period, not part of the
			// picture: "PIC 9(8)." carries type 9(8).
			w.curRecord.Columns = append(w.curRecord.Columns, ir.Column{
				Name:     name,
				DataType: strings.TrimSuffix(pic[1], "."),
			})
		}
	}
}

func (w *cobolWalk) flushRecord() {
	if w.curRecord != nil {
		w.acc.internEntity(*w.curRecord)
		w.curRecord = nil
	}
}

// procedureLine handles one PROCEDURE DIVISION line: paragraph headers in
// area A open components, everything else is statements attributed to the
// active paragraph.
func (w *cobolWalk) procedureLine(content, trimmed string) {
	// Area A check: paragraph names start at the first content column.
	inAreaA := len(content) > 0 && content[0] != ' ' && content[0] != '\t'
	if inAreaA {
		if m := reParagraph.FindStringSubmatch(trimmed); m != nil {
			name := m[1]
			if !isCobolReserved(name) {
				w.openParagraph(name, "paragraph")
				return
			}
		}
	}
	w.statements(trimmed)
}

func (w *cobolWalk) openParagraph(name, typ string) {
	if id, ok := w.paragraphs[name]; ok {
		w.acc.warnf("duplicate paragraph %s", name)
		w.curPara = id
		return
	}
	c := ir.Component{
		ID:            ir.ComponentID(w.acc.doc.ID, name),
		Name:          name,
		ComponentType: typ,
	}
	w.acc.addComponent(c)
	w.paragraphs[name] = c.ID
	w.curPara = c.ID
}

// owner returns the component owning statements at this point, creating an
// implicit MAIN paragraph for statements before the first header.
func (w *cobolWalk) owner() string {
	if w.curPara == "" {
		w.openParagraph("MAIN", "paragraph")
	}
	return w.curPara
}

func (w *cobolWalk) statements(trimmed string) {
	if i := strings.Index(trimmed, "EXEC SQL"); i >= 0 {
		w.inSQL = true
		w.sqlOwner = w.owner()
		w.continueSQL(trimmed[i+len("EXEC SQL"):])
		return
	}

	for _, m := range rePerform.FindAllStringSubmatch(trimmed, -1) {
		target := m[1]
		if _, kw := performKeywords[target]; kw {
			continue
		}
		w.performs = append(w.performs, cobolPerform{fromID: w.owner(), target: target})
	}
	for _, m := range reCallLit.FindAllStringSubmatch(trimmed, -1) {
		w.acc.addDep(ir.Dependency{
			FromID:   w.owner(),
			ToID:     m[1],
			Kind:     ir.DepCalls,
			Deferred: true,
		})
	}
	for _, m := range reFileIO.FindAllStringSubmatch(trimmed, -1) {
		verb, file := m[1], m[2]
		srcID, ok := w.fileSources[file]
		if !ok {
			// I/O against a file with no SELECT clause still records
			// lineage under the bare name.
			src := w.acc.internSource(ir.DataSource{
				ID:      ir.DataSourceID(ir.SourceFile, file),
				Name:    file,
				Kind:    ir.SourceFile,
				Locator: file,
			})
			w.fileSources[file] = src.ID
			srcID = src.ID
		}
		kind := ir.DepWritesTo
		if verb == "READ" {
			kind = ir.DepReadsFrom
		}
		w.acc.addDep(ir.Dependency{FromID: w.owner(), ToID: srcID, Kind: kind})
	}
}

// continueSQL accumulates an EXEC SQL block until END-EXEC, then feeds it
// to the shared scanner.
func (w *cobolWalk) continueSQL(fragment string) {
	if i := strings.Index(fragment, "END-EXEC"); i >= 0 {
		w.sqlBuf.WriteString(" " + fragment[:i])
		applySQLRefs(w.acc, w.sqlOwner, w.sqlBuf.String())
		w.sqlBuf.Reset()
		w.inSQL = false
		return
	}
	w.sqlBuf.WriteString(" " + fragment)
}

// flushSQL closes an unterminated EXEC SQL block at end of file.
func (w *cobolWalk) flushSQL() {
	if !w.inSQL {
		return
	}
	applySQLRefs(w.acc, w.sqlOwner, w.sqlBuf.String())
	w.sqlBuf.Reset()
	w.inSQL = false
	w.acc.warnf("EXEC SQL block without END-EXEC")
}

// resolvePerforms emits intra-document CALLS edges for PERFORM targets
// that name a real paragraph. Unknown targets are clause artifacts or
// typos; either way there is nothing to link.
func (w *cobolWalk) resolvePerforms() {
	for _, p := range w.performs {
		if toID, ok := w.paragraphs[p.target]; ok && toID != p.fromID {
			w.acc.addDep(ir.Dependency{FromID: p.fromID, ToID: toID, Kind: ir.DepCalls})
		}
	}
}

func isCobolReserved(name string) bool {
	switch name {
	case "PROCEDURE", "DECLARATIVES", "END", "EXIT", "STOP", "GOBACK", "EJECT", "SKIP1", "SKIP2", "SKIP3":
		return true
	}
	return false
}
