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
	"regexp"
	"strings"

	"github.com/kraklabs/traceai/pkg/ir"
)

// =============================================================================
// SHARED SQL SCANNER
// =============================================================================
//
// Regex extraction of table references from embedded SQL text. Used by the
// SSIS parser (SqlStatementSource) and the COBOL parser (EXEC SQL blocks).
// This is best-effort lineage: CTEs, dynamic SQL, and vendor syntax can
// under-report, so every extracted entity carries heuristic confidence.

// A SQL identifier atom: bracketed [dbo], quoted "dbo", or bare dbo.
// A full identifier chains up to three atoms: db.schema.table.
const (
	sqlIdentAtom = `(?:\[[^\]\n]+\]|"[^"\n]+"|[A-Za-z_][A-Za-z0-9_$#]*)`
	sqlIdent     = `(` + sqlIdentAtom + `(?:\.` + sqlIdentAtom + `){0,2})`
)

var (
	// Write statements, scanned first so their identifiers are not
	// re-claimed by the read patterns below.
	reInsertInto = regexp.MustCompile(`(?i)\bINSERT\s+INTO\s+` + sqlIdent)
	reUpdate     = regexp.MustCompile(`(?i)\bUPDATE\s+` + sqlIdent)
	reDeleteFrom = regexp.MustCompile(`(?i)\bDELETE\s+FROM\s+` + sqlIdent)
	reMergeInto  = regexp.MustCompile(`(?i)\bMERGE\s+(?:INTO\s+)?` + sqlIdent)
	reSelectInto = regexp.MustCompile(`(?i)\bINTO\s+` + sqlIdent)

	// Read statements.
	reFrom  = regexp.MustCompile(`(?i)\bFROM\s+` + sqlIdent)
	reJoin  = regexp.MustCompile(`(?i)\bJOIN\s+` + sqlIdent)
	reUsing = regexp.MustCompile(`(?i)\bUSING\s+` + sqlIdent)
)

// Identifiers that the loose regexes capture but that are never tables.
var sqlStopWords = map[string]struct{}{
	"select": {}, "values": {}, "where": {}, "set": {}, "dual": {},
	"on": {}, "table": {}, "into": {}, "as": {}, "when": {},
}

// sqlRefs lists table names referenced by one SQL statement, reads and
// writes separately, each deduplicated in first-appearance order.
type sqlRefs struct {
	Reads  []string
	Writes []string
}

// scanSQL extracts table references from a SQL statement.
//
// Writes come from INSERT INTO, UPDATE, DELETE FROM, MERGE [INTO], and
// SELECT ... INTO. Reads come from FROM, JOIN, and MERGE ... USING. Write
// matches are blanked out of the text before the read pass so "DELETE FROM
// X" does not also count X as a read.
func scanSQL(stmt string) sqlRefs {
	var refs sqlRefs
	seenR := make(map[string]struct{})
	seenW := make(map[string]struct{})

	addWrite := func(raw string) {
		name := cleanSQLIdent(raw)
		if name == "" {
			return
		}
		if _, dup := seenW[strings.ToLower(name)]; dup {
			return
		}
		seenW[strings.ToLower(name)] = struct{}{}
		refs.Writes = append(refs.Writes, name)
	}
	addRead := func(raw string) {
		name := cleanSQLIdent(raw)
		if name == "" {
			return
		}
		if _, dup := seenR[strings.ToLower(name)]; dup {
			return
		}
		seenR[strings.ToLower(name)] = struct{}{}
		refs.Reads = append(refs.Reads, name)
	}

	// Pass 1: write statements. Blank each full match so the read pass
	// does not see the keyword or the identifier it already claimed.
	for _, re := range []*regexp.Regexp{reInsertInto, reMergeInto, reUpdate, reDeleteFrom} {
		stmt = consumeMatches(stmt, re, addWrite)
	}
	// SELECT ... INTO x: any INTO left after INSERT INTO was consumed.
	stmt = consumeMatches(stmt, reSelectInto, addWrite)

	// Pass 2: read statements.
	stmt = consumeMatches(stmt, reUsing, addRead)
	stmt = consumeMatches(stmt, reFrom, addRead)
	consumeMatches(stmt, reJoin, addRead)

	return refs
}

// consumeMatches invokes fn with the identifier group of each match, then
// returns the text with matched spans replaced by spaces.
func consumeMatches(stmt string, re *regexp.Regexp, fn func(string)) string {
	idxs := re.FindAllStringSubmatchIndex(stmt, -1)
	if len(idxs) == 0 {
		return stmt
	}
	blanked := []byte(stmt)
	for _, m := range idxs {
		fn(stmt[m[2]:m[3]])
		for i := m[0]; i < m[1]; i++ {
			blanked[i] = ' '
		}
	}
	return string(blanked)
}

// cleanSQLIdent strips brackets and quotes from each dotted part of an
// identifier and rejects stop words. Returns "" for non-table captures.
func cleanSQLIdent(raw string) string {
	parts := strings.Split(raw, ".")
	for i, p := range parts {
		p = strings.TrimSpace(p)
		p = strings.Trim(p, `[]"`)
		parts[i] = p
	}
	name := strings.Join(parts, ".")
	if name == "" {
		return ""
	}
	if _, stop := sqlStopWords[strings.ToLower(parts[0])]; stop {
		return ""
	}
	return name
}

// applySQLRefs scans a SQL statement and folds the discovered tables into
// the accumulator as heuristic DataEntities with READS_FROM/WRITES_TO
// edges from the owning component.
func applySQLRefs(acc *docAccum, componentID, stmt string) {
	refs := scanSQL(stmt)
	for _, name := range refs.Reads {
		e := acc.internEntity(sqlTableEntity(name))
		acc.addDep(ir.Dependency{FromID: componentID, ToID: e.ID, Kind: ir.DepReadsFrom})
	}
	for _, name := range refs.Writes {
		e := acc.internEntity(sqlTableEntity(name))
		acc.addDep(ir.Dependency{FromID: componentID, ToID: e.ID, Kind: ir.DepWritesTo})
	}
}

func sqlTableEntity(name string) ir.DataEntity {
	schema, _ := ir.NormalizeEntityName(ir.EntityTable, name)
	display := name
	if schema != "" {
		// Display the bare table name; the qualifier lives in Schema.
		display = lastDotPart(name)
	}
	return ir.DataEntity{
		ID:         ir.DataEntityID(ir.EntityTable, name),
		Name:       display,
		EntityType: ir.EntityTable,
		Schema:     schema,
		Confidence: ir.ConfidenceHeuristic,
	}
}

func lastDotPart(s string) string {
	if i := strings.LastIndexByte(s, '.'); i >= 0 {
		return s[i+1:]
	}
	return s
}
