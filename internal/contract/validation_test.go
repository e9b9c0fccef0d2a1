// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package contract

import (
	"strings"
	"testing"

	"github.com/kraklabs/traceai/internal/errors"
)

func TestRequireName(t *testing.T) {
	if err := RequireName("entity", "CUSTMAST"); err != nil {
		t.Fatalf("valid name rejected: %v", err)
	}
	if err := RequireName("entity", ""); err == nil {
		t.Fatal("empty name accepted")
	}
	long := strings.Repeat("x", DefaultMaxNameBytes+1)
	err := RequireName("entity", long)
	if err == nil {
		t.Fatal("oversized name accepted")
	}
	if err.Kind != errors.KindInvalidArgument {
		t.Errorf("kind = %s, want InvalidArgument", err.Kind)
	}
	if err.Fields["entity"] == "" {
		t.Error("missing field-level detail")
	}
}

func TestBoundsAllowZero(t *testing.T) {
	if err := CheckK(0); err != nil {
		t.Errorf("CheckK(0): %v", err)
	}
	if err := CheckDepth(0); err != nil {
		t.Errorf("CheckDepth(0): %v", err)
	}
	if err := CheckLimit(0); err != nil {
		t.Errorf("CheckLimit(0): %v", err)
	}
}

func TestBoundsRejectOutOfRange(t *testing.T) {
	if err := CheckK(-1); err == nil {
		t.Error("negative k accepted")
	}
	if err := CheckK(DefaultMaxK + 1); err == nil {
		t.Error("oversized k accepted")
	}
	if err := CheckDepth(DefaultMaxDepth + 1); err == nil {
		t.Error("oversized depth accepted")
	}
	if err := CheckLimit(DefaultMaxLimit + 1); err == nil {
		t.Error("oversized limit accepted")
	}
}

func TestEnvOverride(t *testing.T) {
	t.Setenv("TRACEAI_MAX_K", "3")
	if err := CheckK(3); err != nil {
		t.Errorf("k at override bound rejected: %v", err)
	}
	if err := CheckK(4); err == nil {
		t.Error("k beyond override bound accepted")
	}

	t.Setenv("TRACEAI_MAX_K", "garbage")
	if err := CheckK(DefaultMaxK); err != nil {
		t.Errorf("unparsable override must fall back to default: %v", err)
	}
}
