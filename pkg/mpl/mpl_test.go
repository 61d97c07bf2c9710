package mpl

import (
	"os"
	"path/filepath"
	"testing"
)

const simplePolicy = `
mpl_version: "1.0"
name: "simple-policy"
version: "1.0.0"

rules:
  - name: "block-admin"
    conditions:
      - field: "request.path"
        operator: "starts_with"
        value: "/admin"
    actions:
      - type: "deny"
        message: "admin path blocked"
`

func writePolicy(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write policy: %v", err)
	}
	return path
}

// TestParseAndValidate tests the high-level API
func TestParseAndValidate(t *testing.T) {
	policy, err := ParseAndValidate(writePolicy(t, simplePolicy))
	if err != nil {
		t.Fatalf("ParseAndValidate() failed: %v", err)
	}

	if policy.Name != "simple-policy" {
		t.Errorf("Policy name = %q, want %q", policy.Name, "simple-policy")
	}
}

// TestParseAndValidateBytes tests parsing from bytes
func TestParseAndValidateBytes(t *testing.T) {
	yaml := []byte(`
mpl_version: "1.0"
name: "test-policy"
version: "1.0.0"

rules:
  - name: "test-rule"
    conditions:
      - field: "request.method"
        operator: "=="
        value: "GET"
    actions:
      - type: "allow"
`)

	policy, err := ParseAndValidateBytes(yaml, "memory://test")
	if err != nil {
		t.Fatalf("ParseAndValidateBytes() failed: %v", err)
	}

	if policy.Name != "test-policy" {
		t.Errorf("Policy name = %q, want %q", policy.Name, "test-policy")
	}
}

// TestParseAndValidateRejectsUnknownAction ensures validation runs
func TestParseAndValidateRejectsUnknownAction(t *testing.T) {
	yaml := []byte(`
mpl_version: "1.0"
name: "bad-policy"
version: "1.0.0"

rules:
  - name: "bad-rule"
    actions:
      - type: "teleport"
`)

	if _, err := ParseAndValidateBytes(yaml, "memory://bad"); err == nil {
		t.Fatal("expected validation failure for unknown action type")
	}
}

// BenchmarkParse benchmarks policy parsing
func BenchmarkParse(b *testing.B) {
	path := filepath.Join(b.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(simplePolicy), 0644); err != nil {
		b.Fatalf("write policy: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := Parse(path)
		if err != nil {
			b.Fatal(err)
		}
	}
}

// BenchmarkParseAndValidate benchmarks parsing + validation
func BenchmarkParseAndValidate(b *testing.B) {
	path := filepath.Join(b.TempDir(), "policy.yaml")
	if err := os.WriteFile(path, []byte(simplePolicy), 0644); err != nil {
		b.Fatalf("write policy: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, err := ParseAndValidate(path)
		if err != nil {
			b.Fatal(err)
		}
	}
}
