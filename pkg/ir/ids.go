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

package ir

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// DocumentID generates a deterministic Document ID from the source path.
// Strategy: hash the normalized path so identity follows the file location.
// The content hash is deliberately excluded: re-ingesting a changed file
// must resolve to the same Document node so the builder can replace its
// owned subgraph instead of accumulating duplicates.
func DocumentID(path string) string {
	return fmt.Sprintf("doc:%s", shortHash(NormalizePath(path)))
}

// ComponentID scopes a component's local name under its document.
func ComponentID(documentID, localName string) string {
	return documentID + "/" + localName
}

// ParameterID scopes a variable under its document and namespace.
// Namespace defaults to "default" when the format has none.
func ParameterID(documentID, namespace, name string) string {
	if namespace == "" {
		namespace = "default"
	}
	return documentID + "/var/" + namespace + "." + name
}

// DataSourceID generates the interned ID for a connection/endpoint.
// Two documents referencing the same (kind, locator) pair share one node.
func DataSourceID(kind SourceKind, locator string) string {
	return fmt.Sprintf("src:%s", shortHash(string(kind)+"|"+NormalizeLocator(locator)))
}

// DataEntityID generates the interned ID for a logical data container.
// Identity is the normalized name only: schema qualifiers are stripped so
// "dbo.Customer" and "Customer" resolve to the same entity, and the entity
// type is excluded so a dataset and a table with one name share lineage.
func DataEntityID(entityType EntityType, name string) string {
	_, norm := NormalizeEntityName(entityType, name)
	return fmt.Sprintf("ent:%s", shortHash(norm))
}

// NormalizePath normalizes a file path for consistent ID generation:
// cleaned, forward slashes, lowercase drive prefixes left alone. Relative
// paths are kept relative; callers pass absolute paths for ingestion.
func NormalizePath(path string) string {
	if len(path) >= 2 && path[0:2] == "./" {
		path = path[2:]
	}
	path = filepath.Clean(path)
	return filepath.ToSlash(path)
}

// NormalizeLocator canonicalizes a connection string, DSN, or path:
// lowercase with internal whitespace collapsed to single spaces.
func NormalizeLocator(locator string) string {
	return strings.Join(strings.Fields(strings.ToLower(locator)), " ")
}

// NormalizeEntityName canonicalizes an entity name for interning.
//
// Table names strip their schema/database qualifiers ("db.schema.tbl" and
// "schema.tbl" both normalize to "tbl"), returning the stripped qualifier
// for display. Dataset, record, sheet, and range names keep their full
// dotted form: "CUSTOMER.INPUT.MASTER" is one dataset, not a qualified
// table.
func NormalizeEntityName(entityType EntityType, name string) (schema, normalized string) {
	normalized = strings.Join(strings.Fields(strings.ToLower(name)), " ")
	if entityType != EntityTable {
		return "", normalized
	}
	parts := strings.Split(normalized, ".")
	switch len(parts) {
	case 2:
		return parts[0], parts[1]
	case 3:
		return parts[1], parts[2]
	default:
		return "", normalized
	}
}

// ContentHash computes the document change-detection hash over raw file
// bytes. xxhash is not cryptographic; it only needs to be fast and stable.
func ContentHash(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// shortHash returns the first 16 bytes of a sha256, hex-encoded, keeping
// IDs manageable while avoiding collisions in practice.
func shortHash(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:16])
}
