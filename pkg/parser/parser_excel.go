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
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// =============================================================================
// EXCEL PARSER (.xlsx)
// =============================================================================

// ExcelParser reads Office Open XML workbooks through excelize. Only the
// formula layer matters for lineage: cross-sheet references link sheet
// components, and lookups into named tables read those ranges. Cell values
// and rendering are ignored.
type ExcelParser struct{}

func NewExcelParser() *ExcelParser { return &ExcelParser{} }

func (p *ExcelParser) Extensions() []string  { return []string{".xlsx"} }
func (p *ExcelParser) Kind() ir.DocumentKind { return ir.DocExcel }

// Validate checks the ZIP container magic; an .xlsx is a ZIP archive.
func (p *ExcelParser) Validate(path string) bool {
	head, err := readHead(path, 4)
	if err != nil {
		return false
	}
	return bytes.HasPrefix(head, []byte("PK\x03\x04"))
}

var (
	// 'Quarterly Data'!A1 and Sheet2!B3:C9 style references.
	reQuotedSheetRef = regexp.MustCompile(`'([^'\[\]]+)'!`)
	reBareSheetRef   = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.]*)!`)
	// Table1[Column] structured references.
	reStructuredRef = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_.]*)\[`)
	reLookupFunc    = regexp.MustCompile(`(?i)\b(VLOOKUP|HLOOKUP|XLOOKUP|INDEX)\s*\(`)
)

func (p *ExcelParser) Parse(ctx context.Context, path string) (*ir.ParsedDocument, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot open workbook", err)
	}
	defer f.Close()

	// Hash the container bytes, not the parsed model, so unchanged files
	// are byte-stable no-ops.
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot read file", err)
	}

	doc := ir.Document{
		ID:          ir.DocumentID(path),
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:        ir.DocExcel,
		SourcePath:  ir.NormalizePath(path),
		ContentHash: ir.ContentHash(raw),
		Custom:      map[string]string{},
	}
	if props, err := f.GetDocProps(); err == nil && props != nil {
		doc.Description = props.Description
		setCustom(&doc, "title", props.Title)
		setCustom(&doc, "creator", props.Creator)
	}

	sheets := f.GetSheetList()
	doc.Custom["sheet_count"] = fmt.Sprintf("%d", len(sheets))

	acc := newDocAccum(doc)
	sheetComp := make(map[string]string, len(sheets))
	for _, sheet := range sheets {
		c := ir.Component{
			ID:            ir.ComponentID(doc.ID, sheet),
			Name:          sheet,
			ComponentType: "sheet",
		}
		acc.addComponent(c)
		sheetComp[sheet] = c.ID
	}

	// Defined names become parameters; their targets stay opaque.
	for _, dn := range f.GetDefinedName() {
		acc.addParameter(ir.Parameter{
			ID:    ir.ParameterID(doc.ID, dn.Scope, dn.Name),
			Name:  dn.Name,
			Value: dn.RefersTo,
		})
	}

	// Tables become range entities keyed by table name.
	tableEntity := make(map[string]string)
	for _, sheet := range sheets {
		tables, err := f.GetTables(sheet)
		if err != nil {
			acc.warnf("sheet %s: cannot read tables: %v", sheet, err)
			continue
		}
		for _, tbl := range tables {
			e := acc.internEntity(ir.DataEntity{
				ID:         ir.DataEntityID(ir.EntityRange, tbl.Name),
				Name:       tbl.Name,
				EntityType: ir.EntityRange,
				Confidence: ir.ConfidenceExact,
				Properties: map[string]string{"sheet": sheet, "range": tbl.Range},
			})
			tableEntity[strings.ToLower(tbl.Name)] = e.ID
		}
	}

	for _, sheet := range sheets {
		if err := ctx.Err(); err != nil {
			return nil, errors.FromContext(ctx)
		}
		p.scanFormulas(acc, f, sheet, sheetComp, tableEntity)
	}

	return acc.build(), nil
}

// scanFormulas walks every cell in a sheet's used range and lifts formula
// references into edges. The bounds union the value extent with the sheet
// dimension because formula cells without cached values fall outside what
// GetRows reports.
func (p *ExcelParser) scanFormulas(acc *docAccum, f *excelize.File, sheet string, sheetComp, tableEntity map[string]string) {
	rows, err := f.GetRows(sheet)
	if err != nil {
		acc.warnf("sheet %s: cannot read rows: %v", sheet, err)
		return
	}
	maxR, maxC := len(rows), 0
	for _, row := range rows {
		if len(row) > maxC {
			maxC = len(row)
		}
	}
	if dim, err := f.GetSheetDimension(sheet); err == nil && dim != "" {
		end := dim
		if _, after, ok := strings.Cut(dim, ":"); ok {
			end = after
		}
		if c, r, err := excelize.CellNameToCoordinates(end); err == nil {
			if r > maxR {
				maxR = r
			}
			if c > maxC {
				maxC = c
			}
		}
	}

	fromID := sheetComp[sheet]
	for r := 1; r <= maxR; r++ {
		for c := 1; c <= maxC; c++ {
			cell, err := excelize.CoordinatesToCellName(c, r)
			if err != nil {
				continue
			}
			formula, err := f.GetCellFormula(sheet, cell)
			if err != nil || formula == "" {
				continue
			}
			p.formulaEdges(acc, fromID, sheet, formula, sheetComp, tableEntity)
		}
	}
}

// formulaEdges extracts cross-sheet CALLS and lookup READS_FROM edges
// from one formula.
func (p *ExcelParser) formulaEdges(acc *docAccum, fromID, sheet, formula string, sheetComp, tableEntity map[string]string) {
	addSheetRef := func(target string) {
		if target == sheet {
			return
		}
		toID, ok := sheetComp[target]
		if !ok {
			return // external workbook or a name that is not a sheet
		}
		acc.addDep(ir.Dependency{FromID: fromID, ToID: toID, Kind: ir.DepCalls})
	}
	for _, m := range reQuotedSheetRef.FindAllStringSubmatch(formula, -1) {
		addSheetRef(m[1])
	}
	// Blank quoted spans before the bare-name pass so 'Raw Data'!A1 does
	// not also surface a bogus bare reference.
	bare := reQuotedSheetRef.ReplaceAllString(formula, " ")
	for _, m := range reBareSheetRef.FindAllStringSubmatch(bare, -1) {
		addSheetRef(m[1])
	}

	if !reLookupFunc.MatchString(formula) {
		return
	}
	for _, m := range reStructuredRef.FindAllStringSubmatch(formula, -1) {
		if entID, ok := tableEntity[strings.ToLower(m[1])]; ok {
			acc.addDep(ir.Dependency{FromID: fromID, ToID: entID, Kind: ir.DepReadsFrom})
		}
	}
	// Bare table names as lookup ranges: VLOOKUP(A1, Customers, 2, 0).
	for name, entID := range tableEntity {
		if containsWordFold(formula, name) {
			acc.addDep(ir.Dependency{FromID: fromID, ToID: entID, Kind: ir.DepReadsFrom})
		}
	}
}

// containsWordFold reports whether word appears in s case-insensitively
// with non-identifier characters on both sides.
func containsWordFold(s, word string) bool {
	ls, lw := strings.ToLower(s), strings.ToLower(word)
	idx := 0
	for {
		i := strings.Index(ls[idx:], lw)
		if i < 0 {
			return false
		}
		i += idx
		before := i == 0 || !isIdentChar(ls[i-1])
		afterIdx := i + len(lw)
		after := afterIdx >= len(ls) || !isIdentChar(ls[afterIdx])
		if before && after {
			return true
		}
		idx = i + len(lw)
	}
}

func isIdentChar(b byte) bool {
	return b == '_' || b == '.' ||
		(b >= 'a' && b <= 'z') || (b >= 'A' && b <= 'Z') || (b >= '0' && b <= '9')
}
