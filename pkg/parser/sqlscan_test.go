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
	"reflect"
	"testing"

	"github.com/kraklabs/traceai/pkg/ir"
)

func TestScanSQL(t *testing.T) {
	tests := []struct {
		name   string
		stmt   string
		reads  []string
		writes []string
	}{
		{
			name:  "plain select",
			stmt:  "SELECT id, name FROM dbo.Customer WHERE id > 10",
			reads: []string{"dbo.Customer"},
		},
		{
			name:   "insert select",
			stmt:   "INSERT INTO dbo.SalesAgg SELECT region, SUM(amount) FROM dbo.Sales s JOIN dbo.Customer c ON s.cust_id = c.id",
			reads:  []string{"dbo.Sales", "dbo.Customer"},
			writes: []string{"dbo.SalesAgg"},
		},
		{
			name:   "update",
			stmt:   "UPDATE accounts SET balance = 0 WHERE closed = 1",
			writes: []string{"accounts"},
		},
		{
			name:   "delete is not a read",
			stmt:   "DELETE FROM audit_log WHERE age > 90",
			writes: []string{"audit_log"},
		},
		{
			name:   "merge with using",
			stmt:   "MERGE INTO dbo.Customer AS t USING staging.Delta AS s ON t.id = s.id WHEN MATCHED THEN UPDATE SET t.x = s.x",
			reads:  []string{"staging.Delta"},
			writes: []string{"dbo.Customer"},
		},
		{
			name:   "merge without into",
			stmt:   "MERGE target_dim t USING src_stage s ON t.k = s.k",
			reads:  []string{"src_stage"},
			writes: []string{"target_dim"},
		},
		{
			name:   "select into",
			stmt:   "SELECT name INTO tmp_customers FROM customers",
			reads:  []string{"customers"},
			writes: []string{"tmp_customers"},
		},
		{
			name:   "bracketed and quoted identifiers",
			stmt:   `INSERT INTO [dbo].[Order Details] SELECT * FROM "dbo"."Orders"`,
			reads:  []string{"dbo.Orders"},
			writes: []string{"dbo.Order Details"},
		},
		{
			name:  "lowercase keywords",
			stmt:  "select * from warehouse.dim_date join warehouse.fact_sales on 1=1",
			reads: []string{"warehouse.dim_date", "warehouse.fact_sales"},
		},
		{
			name:  "duplicates collapse",
			stmt:  "SELECT * FROM t1 JOIN t1 ON 1=1 JOIN T1 ON 2=2",
			reads: []string{"t1"},
		},
		{
			name: "stop words rejected",
			stmt: "SELECT 1 FROM DUAL",
		},
		{
			name: "host variables are not identifiers",
			stmt: "SELECT BALANCE INTO :CUST-BALANCE WHERE ID = :CUST-ID",
		},
		{
			name: "no sql at all",
			stmt: "this is a plain sentence",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := scanSQL(tt.stmt)
			if !reflect.DeepEqual(got.Reads, tt.reads) {
				t.Errorf("reads = %v, want %v", got.Reads, tt.reads)
			}
			if !reflect.DeepEqual(got.Writes, tt.writes) {
				t.Errorf("writes = %v, want %v", got.Writes, tt.writes)
			}
		})
	}
}

func TestApplySQLRefs(t *testing.T) {
	doc := ir.Document{ID: "doc:test", Name: "test", Kind: ir.DocSSIS}
	acc := newDocAccum(doc)
	compID := "doc:test/Load"

	applySQLRefs(acc, compID, "INSERT INTO dbo.Target SELECT * FROM dbo.Source")
	parsed := acc.build()

	if len(parsed.DataEntities) != 2 {
		t.Fatalf("entities = %d, want 2", len(parsed.DataEntities))
	}
	for _, e := range parsed.DataEntities {
		if e.Confidence != ir.ConfidenceHeuristic {
			t.Errorf("entity %s confidence = %s, want heuristic", e.Name, e.Confidence)
		}
		if e.Schema != "dbo" {
			t.Errorf("entity %s schema = %q, want dbo", e.Name, e.Schema)
		}
	}

	srcID := ir.DataEntityID(ir.EntityTable, "dbo.Source")
	tgtID := ir.DataEntityID(ir.EntityTable, "dbo.Target")
	if !hasEdge(parsed, compID, srcID, ir.DepReadsFrom) {
		t.Errorf("missing READS_FROM %s -> %s", compID, srcID)
	}
	if !hasEdge(parsed, compID, tgtID, ir.DepWritesTo) {
		t.Errorf("missing WRITES_TO %s -> %s", compID, tgtID)
	}
}

// Qualified and bare mentions of one table must intern to one entity.
func TestSQLTableEntity_SchemaInsensitiveID(t *testing.T) {
	a := sqlTableEntity("dbo.Customer")
	b := sqlTableEntity("Customer")
	c := sqlTableEntity("warehouse.dbo.customer")

	if a.ID != b.ID || b.ID != c.ID {
		t.Fatalf("IDs differ: %s / %s / %s", a.ID, b.ID, c.ID)
	}
	if a.Name != "Customer" {
		t.Errorf("display name = %q, want Customer", a.Name)
	}
	if a.Schema != "dbo" {
		t.Errorf("schema = %q, want dbo", a.Schema)
	}
}
