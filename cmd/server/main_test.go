package main

import (
	"testing"

	"basreng/backend/internal/config"
)

func TestValidateConfigRejectsWeakValues(t *testing.T) {
	err := validateConfig(config.Config{AuthSecret: "short", BranchCode: "CAB01"})
	if err == nil {
		t.Fatalf("expected short auth secret to be rejected")
	}
}

func TestValidateConfigRejectsBadBranch(t *testing.T) {
	for _, branch := range []string{"", "c", "cab01", "CAB-01", "ABCDEFGHIJKLM"} {
		err := validateConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", BranchCode: branch})
		if err == nil {
			t.Fatalf("expected branch %q to be rejected", branch)
		}
	}
}

func TestValidateConfigAcceptsStrongValues(t *testing.T) {
	err := validateConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef", BranchCode: "CAB01"})
	if err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
