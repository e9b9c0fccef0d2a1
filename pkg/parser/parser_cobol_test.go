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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kraklabs/traceai/internal/errors"
	"github.com/kraklabs/traceai/pkg/ir"
)

const cobolFixture = "testdata/cobol/cust001.cbl"

func TestCOBOLParser_ProgramDocument(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	assert.Equal(t, "CUST001", doc.Document.Name, "PROGRAM-ID names the document")
	assert.Equal(t, ir.DocCOBOL, doc.Document.Kind)
	assert.Empty(t, doc.Warnings)
}

func TestCOBOLParser_Paragraphs(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	require.Len(t, doc.Components, 4)
	for _, name := range []string{"MAIN-CONTROL", "INIT-FILES", "PROCESS-CUSTOMERS", "CLOSE-FILES"} {
		c := componentByName(t, doc, name)
		assert.Equal(t, "paragraph", c.ComponentType)
	}
}

func TestCOBOLParser_FileControl(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	in := sourceByName(t, doc, "CUSTOMER-FILE")
	assert.Equal(t, ir.SourceFile, in.Kind)
	assert.Equal(t, "CUSTIN", in.Locator, "quoted ASSIGN TO target")
	assert.True(t, hasEdge(doc, doc.Document.ID, in.ID, ir.DepUses))

	out := sourceByName(t, doc, "CUSTMAST")
	assert.Equal(t, "CUSTOUT", out.Locator, "bare ASSIGN TO target")
}

func TestCOBOLParser_WorkingStorageRecords(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	rec := entityByName(t, doc, "CUSTOMER-RECORD")
	assert.Equal(t, ir.EntityRecord, rec.EntityType)
	assert.Equal(t, ir.ConfidenceExact, rec.Confidence)
	require.Len(t, rec.Columns, 3)
	assert.Equal(t, ir.Column{Name: "CUST-ID", DataType: "9(8)"}, rec.Columns[0])
	assert.Equal(t, ir.Column{Name: "CUST-NAME", DataType: "X(40)"}, rec.Columns[1])
	assert.Equal(t, ir.Column{Name: "CUST-BALANCE", DataType: "S9(7)V99"}, rec.Columns[2])

	counters := entityByName(t, doc, "WS-COUNTERS")
	assert.Len(t, counters.Columns, 2)

	// 77-level items are standalone, not records.
	for _, e := range doc.DataEntities {
		assert.NotEqual(t, "WS-EOF-FLAG", e.Name)
	}
}

func TestCOBOLParser_Performs(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	main := componentByName(t, doc, "MAIN-CONTROL")
	calls := edgesFrom(doc, main.ID, ir.DepCalls)
	require.Len(t, calls, 3, "MAIN-CONTROL performs three paragraphs")
	for _, name := range []string{"INIT-FILES", "PROCESS-CUSTOMERS", "CLOSE-FILES"} {
		target := componentByName(t, doc, name)
		assert.True(t, hasEdge(doc, main.ID, target.ID, ir.DepCalls))
	}
}

func TestCOBOLParser_FileIO(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	process := componentByName(t, doc, "PROCESS-CUSTOMERS")
	in := sourceByName(t, doc, "CUSTOMER-FILE")
	out := sourceByName(t, doc, "CUSTMAST")

	assert.True(t, hasEdge(doc, process.ID, in.ID, ir.DepReadsFrom))
	assert.True(t, hasEdge(doc, process.ID, out.ID, ir.DepWritesTo))
}

func TestCOBOLParser_EmbeddedSQL(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	accounts := entityByName(t, doc, "ACCOUNTS")
	assert.Equal(t, ir.EntityTable, accounts.EntityType)
	assert.Equal(t, "db2admin", accounts.Schema)
	assert.Equal(t, ir.ConfidenceHeuristic, accounts.Confidence)

	process := componentByName(t, doc, "PROCESS-CUSTOMERS")
	assert.True(t, hasEdge(doc, process.ID, accounts.ID, ir.DepReadsFrom))
}

func TestCOBOLParser_DeferredCall(t *testing.T) {
	doc := mustParse(t, NewCOBOLParser(), cobolFixture)

	process := componentByName(t, doc, "PROCESS-CUSTOMERS")
	dep := edgeBetween(t, doc, process.ID, "AUDITLOG", ir.DepCalls)
	assert.True(t, dep.Deferred, "CALL to another program resolves at commit time")
}

func TestCOBOLParser_ProgramIDOnNextLine(t *testing.T) {
	src := "" +
		"       IDENTIFICATION DIVISION.\n" +
		"       PROGRAM-ID.\n" +
		"           CUST002.\n" +
		"       PROCEDURE DIVISION.\n" +
		"       RUN-IT.\n" +
		"           STOP RUN.\n"
	path := filepath.Join(t.TempDir(), "cust002.cbl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	doc := mustParse(t, NewCOBOLParser(), path)
	assert.Equal(t, "CUST002", doc.Document.Name)
}

func TestCOBOLParser_MissingProgramID(t *testing.T) {
	src := "" +
		"       IDENTIFICATION DIVISION.\n" +
		"       PROCEDURE DIVISION.\n" +
		"       RUN-IT.\n" +
		"           STOP RUN.\n"
	path := filepath.Join(t.TempDir(), "anon.cbl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	doc := mustParse(t, NewCOBOLParser(), path)
	assert.Equal(t, "anon", doc.Document.Name, "falls back to the file name")
	require.Len(t, doc.Warnings, 1)
	assert.Contains(t, doc.Warnings[0], "no PROGRAM-ID")
}

func TestCOBOLParser_NotCOBOL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.cbl")
	require.NoError(t, os.WriteFile(path, []byte("meeting notes from tuesday\nnothing cobol here\n"), 0o644))

	_, err := NewCOBOLParser().Parse(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, errors.KindMalformedInput, errors.KindOf(err))
}

func TestCOBOLParser_ContinuationLines(t *testing.T) {
	// Column 7 '-' joins the line onto its predecessor before scanning.
	src := "" +
		"       IDENTIFICATION DIVISION.\n" +
		"       PROGRAM-ID. SPLIT01.\n" +
		"       PROCEDURE DIVISION.\n" +
		"       DO-WORK.\n" +
		"           PERFORM\n" +
		"      -        NEXT-STEP.\n" +
		"       NEXT-STEP.\n" +
		"           STOP RUN.\n"
	path := filepath.Join(t.TempDir(), "split01.cbl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	doc := mustParse(t, NewCOBOLParser(), path)
	work := componentByName(t, doc, "DO-WORK")
	next := componentByName(t, doc, "NEXT-STEP")
	assert.True(t, hasEdge(doc, work.ID, next.ID, ir.DepCalls))
}

func TestCOBOLParser_UnterminatedSQL(t *testing.T) {
	src := "" +
		"       IDENTIFICATION DIVISION.\n" +
		"       PROGRAM-ID. BADSQL.\n" +
		"       PROCEDURE DIVISION.\n" +
		"       DO-WORK.\n" +
		"           EXEC SQL\n" +
		"               SELECT X FROM REFDATA.CODES\n"
	path := filepath.Join(t.TempDir(), "badsql.cbl")
	require.NoError(t, os.WriteFile(path, []byte(src), 0o644))

	doc := mustParse(t, NewCOBOLParser(), path)
	require.NotEmpty(t, doc.Warnings)
	assert.Contains(t, doc.Warnings[0], "END-EXEC")

	// The partial block still yields lineage.
	codes := entityByName(t, doc, "CODES")
	assert.Equal(t, "refdata", codes.Schema)
}
