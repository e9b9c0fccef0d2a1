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

const ssisFixture = "testdata/ssis/load_customers.dtsx"

func TestSSISParser_PackageDocument(t *testing.T) {
	doc := mustParse(t, NewSSISParser(), ssisFixture)

	d := doc.Document
	assert.Equal(t, "LoadCustomers", d.Name, "package ObjectName wins over the file name")
	assert.Equal(t, ir.DocSSIS, d.Kind)
	assert.Equal(t, "Nightly customer load into the warehouse", d.Description)
	assert.NotEmpty(t, d.ContentHash)
	assert.Equal(t, "etl_admin", d.Custom["creator_name"])
	assert.Equal(t, "1.3", d.Custom["version"])
	assert.NotEmpty(t, d.Custom["dtsid"])
}

func TestSSISParser_Tasks(t *testing.T) {
	doc := mustParse(t, NewSSISParser(), ssisFixture)

	require.Len(t, doc.Components, 3)
	for _, name := range []string{"ExtractCustomers", "AggregateSales", "MergeToWarehouse"} {
		c := componentByName(t, doc, name)
		assert.Equal(t, "DtsExecutable:ExecuteSQLTask", c.ComponentType)
		assert.True(t, hasEdge(doc, doc.Document.ID, c.ID, ir.DepContains),
			"document must contain %s", name)
	}

	extract := componentByName(t, doc, "ExtractCustomers")
	assert.Contains(t, extract.SourceExcerpt, "SELECT id, name, region")
	assert.Equal(t, "Pull changed customer rows", extract.Description)
}

func TestSSISParser_ConnectionManagers(t *testing.T) {
	doc := mustParse(t, NewSSISParser(), ssisFixture)

	require.Len(t, doc.DataSources, 2)

	wh := sourceByName(t, doc, "WarehouseDB")
	assert.Equal(t, ir.SourceDB, wh.Kind)
	assert.Equal(t, "DWHSQL01", wh.Properties["server"])
	assert.Equal(t, "Warehouse", wh.Properties["database"])
	assert.Equal(t, "SQLNCLI11.1", wh.Properties["provider"])
	assert.True(t, hasEdge(doc, doc.Document.ID, wh.ID, ir.DepUses))

	flat := sourceByName(t, doc, "CustomerExtract")
	assert.Equal(t, ir.SourceFile, flat.Kind)
	assert.Equal(t, `C:\feeds\customer_extract.txt`, flat.Locator)

	// Tasks bound to a connection manager by GUID use it.
	extract := componentByName(t, doc, "ExtractCustomers")
	assert.True(t, hasEdge(doc, extract.ID, wh.ID, ir.DepUses))
}

func TestSSISParser_Variables(t *testing.T) {
	doc := mustParse(t, NewSSISParser(), ssisFixture)

	require.Len(t, doc.Parameters, 2)
	var batch ir.Parameter
	for _, p := range doc.Parameters {
		if p.Name == "User::BatchDate" {
			batch = p
		}
	}
	require.NotEmpty(t, batch.ID)
	assert.Equal(t, "DateTime", batch.DataType)
	assert.Equal(t, "2019-03-11", batch.Value)
	assert.Equal(t, ir.ParameterID(doc.Document.ID, "User", "BatchDate"), batch.ID)
}

func TestSSISParser_SQLLineage(t *testing.T) {
	doc := mustParse(t, NewSSISParser(), ssisFixture)

	customer := entityByName(t, doc, "Customer")
	assert.Equal(t, ir.EntityTable, customer.EntityType)
	assert.Equal(t, "dbo", customer.Schema)
	assert.Equal(t, ir.ConfidenceHeuristic, customer.Confidence)

	extract := componentByName(t, doc, "ExtractCustomers")
	agg := componentByName(t, doc, "AggregateSales")
	merge := componentByName(t, doc, "MergeToWarehouse")

	assert.True(t, hasEdge(doc, extract.ID, customer.ID, ir.DepReadsFrom))
	assert.True(t, hasEdge(doc, agg.ID, customer.ID, ir.DepReadsFrom))
	assert.True(t, hasEdge(doc, merge.ID, customer.ID, ir.DepWritesTo))

	salesAgg := entityByName(t, doc, "SalesAgg")
	assert.True(t, hasEdge(doc, agg.ID, salesAgg.ID, ir.DepWritesTo))

	delta := entityByName(t, doc, "CustomerDelta")
	assert.Equal(t, "staging", delta.Schema)
	assert.True(t, hasEdge(doc, merge.ID, delta.ID, ir.DepReadsFrom))
}

func TestSSISParser_PrecedenceConstraints(t *testing.T) {
	doc := mustParse(t, NewSSISParser(), ssisFixture)

	extract := componentByName(t, doc, "ExtractCustomers")
	agg := componentByName(t, doc, "AggregateSales")
	merge := componentByName(t, doc, "MergeToWarehouse")

	first := edgeBetween(t, doc, extract.ID, agg.ID, ir.DepPrecedes)
	assert.Equal(t, "success", first.Properties["condition"], "missing Value defaults to success")

	second := edgeBetween(t, doc, agg.ID, merge.ID, ir.DepPrecedes)
	assert.Equal(t, "completion", second.Properties["condition"])
	assert.Contains(t, second.Properties["expression"], "User::RowLimit")
}

func TestSSISParser_MalformedXML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.dtsx")
	require.NoError(t, os.WriteFile(path, []byte("<DTS:Executable><unclosed"), 0o644))

	_, err := NewSSISParser().Parse(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, errors.KindMalformedInput, errors.KindOf(err))
}

func TestSSISParser_NotAPackage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain.dtsx")
	require.NoError(t, os.WriteFile(path, []byte(`<?xml version="1.0"?><other/>`), 0o644))

	_, err := NewSSISParser().Parse(context.Background(), path)
	require.Error(t, err)
	assert.Equal(t, errors.KindMalformedInput, errors.KindOf(err))
}

func TestSSISParser_Validate(t *testing.T) {
	assert.True(t, NewSSISParser().Validate(ssisFixture))

	path := filepath.Join(t.TempDir(), "not_xml.dtsx")
	require.NoError(t, os.WriteFile(path, []byte("PK\x03\x04 definitely a zip"), 0o644))
	assert.False(t, NewSSISParser().Validate(path))
}
