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

package ir

import (
	"strings"
	"testing"
)

func TestDocumentID_Deterministic(t *testing.T) {
	path := "/etl/packages/load_customers.dtsx"

	id1 := DocumentID(path)
	id2 := DocumentID(path)

	if id1 != id2 {
		t.Errorf("DocumentID should be deterministic: got %q and %q", id1, id2)
	}
	if !strings.HasPrefix(id1, "doc:") {
		t.Errorf("DocumentID should start with 'doc:': got %q", id1)
	}
}

func TestDocumentID_IgnoresContent(t *testing.T) {
	// Identity follows the path; a changed file must map to the same
	// document node so re-ingestion replaces instead of duplicating.
	id1 := DocumentID("/etl/jobs/daily.jcl")
	id2 := DocumentID("/etl/jobs/daily.jcl")
	other := DocumentID("/etl/jobs/nightly.jcl")

	if id1 != id2 {
		t.Errorf("same path should yield same ID: got %q and %q", id1, id2)
	}
	if id1 == other {
		t.Errorf("different paths should yield different IDs: both got %q", id1)
	}
}

func TestDocumentID_NormalizesPath(t *testing.T) {
	id1 := DocumentID("./etl/pkg.dtsx")
	id2 := DocumentID("etl/pkg.dtsx")
	id3 := DocumentID("etl//pkg.dtsx")

	if id1 != id2 || id2 != id3 {
		t.Errorf("DocumentID should normalize paths: got %q, %q, %q", id1, id2, id3)
	}
}

func TestComponentID_ScopedToDocument(t *testing.T) {
	doc := DocumentID("/etl/pkg.dtsx")
	id := ComponentID(doc, "Extract Customers")

	if id != doc+"/Extract Customers" {
		t.Errorf("ComponentID should be document-scoped: got %q", id)
	}
}

func TestParameterID_DefaultNamespace(t *testing.T) {
	doc := DocumentID("/etl/pkg.dtsx")

	withNS := ParameterID(doc, "User", "BatchSize")
	noNS := ParameterID(doc, "", "BatchSize")

	if !strings.HasSuffix(withNS, "/var/User.BatchSize") {
		t.Errorf("namespaced parameter ID wrong: %q", withNS)
	}
	if !strings.HasSuffix(noNS, "/var/default.BatchSize") {
		t.Errorf("empty namespace should default: %q", noNS)
	}
}

func TestDataSourceID_InternsByKindAndLocator(t *testing.T) {
	a := DataSourceID(SourceDB, "Data Source=SQLPROD;Initial Catalog=Sales")
	b := DataSourceID(SourceDB, "data source=sqlprod;initial catalog=sales")
	c := DataSourceID(SourceFile, "Data Source=SQLPROD;Initial Catalog=Sales")

	if a != b {
		t.Errorf("locator normalization should be case-insensitive: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different kinds must not intern together: both %q", a)
	}
	if !strings.HasPrefix(a, "src:") {
		t.Errorf("DataSourceID should start with 'src:': got %q", a)
	}
}

func TestDataSourceID_CollapsesWhitespace(t *testing.T) {
	a := DataSourceID(SourceDataset, "CUSTOMER.INPUT.MASTER")
	b := DataSourceID(SourceDataset, "  CUSTOMER.INPUT.MASTER  ")

	if a != b {
		t.Errorf("DSN whitespace should collapse: %q vs %q", a, b)
	}
}

func TestDataEntityID_StripsSchemaForTables(t *testing.T) {
	plain := DataEntityID(EntityTable, "Customer")
	schema := DataEntityID(EntityTable, "dbo.Customer")
	full := DataEntityID(EntityTable, "SalesDB.dbo.Customer")

	if plain != schema || schema != full {
		t.Errorf("schema qualifiers should strip consistently: %q, %q, %q", plain, schema, full)
	}
}

func TestDataEntityID_KeepsDatasetDots(t *testing.T) {
	// A dotted dataset name is one identifier, not a qualified table.
	ds := DataEntityID(EntityDataset, "CUSTOMER.INPUT.MASTER")
	tbl := DataEntityID(EntityTable, "CUSTOMER.INPUT.MASTER")

	if ds == tbl {
		t.Errorf("dataset dots must not strip like table schemas: both %q", ds)
	}
}

func TestDataEntityID_CaseInsensitive(t *testing.T) {
	a := DataEntityID(EntityTable, "CUSTMAST")
	b := DataEntityID(EntityTable, "custmast")

	if a != b {
		t.Errorf("entity names should intern case-insensitively: %q vs %q", a, b)
	}
}

func TestNormalizeEntityName_SchemaSplit(t *testing.T) {
	tests := []struct {
		name       string
		entityType EntityType
		in         string
		schema     string
		normalized string
	}{
		{"bare table", EntityTable, "Customer", "", "customer"},
		{"schema.table", EntityTable, "dbo.Customer", "dbo", "customer"},
		{"db.schema.table", EntityTable, "SalesDB.dbo.Customer", "dbo", "customer"},
		{"dataset keeps dots", EntityDataset, "PROD.DAILY.EXTRACT", "", "prod.daily.extract"},
		{"record plain", EntityRecord, "CUSTOMER-RECORD", "", "customer-record"},
		{"whitespace collapse", EntityTable, "  Customer   Staging ", "", "customer staging"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			schema, norm := NormalizeEntityName(tt.entityType, tt.in)
			if schema != tt.schema || norm != tt.normalized {
				t.Errorf("NormalizeEntityName(%q) = (%q, %q), want (%q, %q)",
					tt.in, schema, norm, tt.schema, tt.normalized)
			}
		})
	}
}

func TestContentHash_StableAndDistinct(t *testing.T) {
	a := ContentHash([]byte("IDENTIFICATION DIVISION."))
	b := ContentHash([]byte("IDENTIFICATION DIVISION."))
	c := ContentHash([]byte("DATA DIVISION."))

	if a != b {
		t.Errorf("ContentHash should be stable: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("ContentHash should differ for different bytes: both %q", a)
	}
	if len(a) != 16 {
		t.Errorf("ContentHash should be 16 hex chars: got %d (%q)", len(a), a)
	}
}
