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
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

// =============================================================================
// CSV LINEAGE PARSER (.csv, .tsv)
// =============================================================================

// CSVParser reads lineage mapping files: one source/target pair per row.
// Each row becomes a synthetic mapping component between two interned
// table entities, so lineage traversal passes through the mapping the
// same way it passes through an SSIS task or a COBOL paragraph.
type CSVParser struct{}

func NewCSVParser() *CSVParser { return &CSVParser{} }

func (p *CSVParser) Extensions() []string  { return []string{".csv", ".tsv"} }
func (p *CSVParser) Kind() ir.DocumentKind { return ir.DocCSV }

func (p *CSVParser) Validate(path string) bool {
	head, err := readHead(path, 1024)
	if err != nil {
		return false
	}
	// Plausible text with at least one delimiter in the first line.
	line, _, _ := bytes.Cut(head, []byte("\n"))
	return bytes.ContainsAny(line, ",;\t")
}

// Column families recognized in the header, checked in order.
var (
	csvSourceCols    = []string{"source_table", "source_field", "source_column", "source", "from_table", "from_field", "from"}
	csvTargetCols    = []string{"target_table", "target_field", "target_column", "target", "to_table", "to_field", "to"}
	csvTransformCols = []string{"transformation_logic", "mapping_logic", "transformation", "transform", "logic"}
	csvJobCols       = []string{"job_name", "job", "etl_job", "etl_name", "process_name", "pipeline"}
	csvDescCols      = []string{"description", "desc"}
)

func (p *CSVParser) Parse(ctx context.Context, path string) (*ir.ParsedDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot read file", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.FromContext(ctx)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.NewMalformedInput(path, "empty file", nil)
	}

	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = sniffDelimiter(data)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		return nil, errors.NewMalformedInput(path, "cannot read header row", err)
	}
	for i := range header {
		header[i] = strings.ToLower(strings.TrimSpace(header[i]))
	}

	doc := ir.Document{
		ID:          ir.DocumentID(path),
		Name:        strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)),
		Kind:        ir.DocCSV,
		SourcePath:  ir.NormalizePath(path),
		ContentHash: ir.ContentHash(data),
		Custom: map[string]string{
			"columns": strings.Join(header, ","),
		},
	}
	acc := newDocAccum(doc)

	srcCol := findColumn(header, csvSourceCols)
	tgtCol := findColumn(header, csvTargetCols)

	var rows int
	switch {
	case srcCol >= 0 && tgtCol >= 0:
		rows = p.lineageRows(acc, r, header, srcCol, tgtCol)
	case findColumn(header, csvJobCols) >= 0:
		rows = p.metadataRows(acc, r, header)
	default:
		return nil, errors.NewMalformedInput(path,
			fmt.Sprintf("header %q has no source/target lineage columns", strings.Join(header, ",")), nil)
	}

	acc.doc.Custom["row_count"] = fmt.Sprintf("%d", rows)
	acc.doc.Description = fmt.Sprintf("CSV lineage map with %d rows", rows)
	return acc.build(), nil
}

// sniffDelimiter picks the most frequent candidate delimiter in the first
// line; comma wins ties.
func sniffDelimiter(data []byte) rune {
	line, _, _ := bytes.Cut(data, []byte("\n"))
	best, bestCount := ',', bytes.Count(line, []byte(","))
	for _, c := range []struct {
		r rune
		b []byte
	}{{';', []byte(";")}, {'\t', []byte("\t")}} {
		if n := bytes.Count(line, c.b); n > bestCount {
			best, bestCount = c.r, n
		}
	}
	return best
}

// lineageRows interns an entity pair per row and threads the data flow
// through a per-row mapping component.
func (p *CSVParser) lineageRows(acc *docAccum, r *csv.Reader, header []string, srcCol, tgtCol int) int {
	transformCol := findColumn(header, csvTransformCols)
	rows := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		rows++
		if err != nil {
			acc.warnf("row %d: %v", rows, err)
			continue
		}
		src := fieldAt(record, srcCol)
		tgt := fieldAt(record, tgtCol)
		if src == "" || tgt == "" {
			continue
		}
		transform := ""
		if transformCol >= 0 {
			transform = fieldAt(record, transformCol)
		}

		srcEnt := acc.internEntity(declaredTableEntity(src))
		tgtEnt := acc.internEntity(declaredTableEntity(tgt))

		c := ir.Component{
			ID:            ir.ComponentID(acc.doc.ID, fmt.Sprintf("mapping_%d", rows)),
			Name:          src + " -> " + tgt,
			ComponentType: "mapping",
			SourceExcerpt: transform,
		}
		acc.addComponent(c)

		acc.addDep(ir.Dependency{FromID: c.ID, ToID: srcEnt.ID, Kind: ir.DepReadsFrom})
		write := ir.Dependency{FromID: c.ID, ToID: tgtEnt.ID, Kind: ir.DepWritesTo}
		if transform != "" {
			write.Properties = map[string]string{"transformation": transform}
		}
		acc.addDep(write)
	}
	return rows
}

// metadataRows handles the ETL-catalog shape (job_name, description, ...):
// one component per row, no lineage edges.
func (p *CSVParser) metadataRows(acc *docAccum, r *csv.Reader, header []string) int {
	nameCol := findColumn(header, csvJobCols)
	descCol := findColumn(header, csvDescCols)
	rows := 0
	seen := make(map[string]struct{})
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		rows++
		if err != nil {
			acc.warnf("row %d: %v", rows, err)
			continue
		}
		name := fieldAt(record, nameCol)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			acc.warnf("row %d: duplicate job %q", rows, name)
			continue
		}
		seen[name] = struct{}{}
		acc.addComponent(ir.Component{
			ID:            ir.ComponentID(acc.doc.ID, name),
			Name:          name,
			ComponentType: "etl_job",
			Description:   fieldAt(record, descCol),
		})
	}
	return rows
}

func findColumn(header []string, candidates []string) int {
	for _, cand := range candidates {
		for i, col := range header {
			if col == cand {
				return i
			}
		}
	}
	return -1
}

func fieldAt(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}
