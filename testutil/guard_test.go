package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestTransitiveDependencyViolations(t *testing.T) {
	orig := goListDeps
	goListDeps = func(pattern string) ([]byte, error) {
		return []byte("fmt\nlensforge/pkg/domain\nlensforge/internal/blob\n\n"), nil
	}
	defer func() { goListDeps = orig }()

	viols, _, err := transitiveDependencyViolations("./...", StorageImportForbidden)
	if err != nil {
		t.Fatalf("transitiveDependencyViolations: %v", err)
	}
	if len(viols) != 1 || viols[0] != "lensforge/internal/blob" {
		t.Fatalf("violations = %v", viols)
	}

	viols, _, err = transitiveDependencyViolations("./...", InternalImportForbidden)
	if err != nil {
		t.Fatalf("transitiveDependencyViolations: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("violations = %v", viols)
	}
}

func TestDirectImportViolations(t *testing.T) {
	dir := t.TempDir()
	src := `package demo

import (
	"fmt"

	"lensforge/plugins/standard"
)

var _ = fmt.Sprint(standard.New())
`
	if err := os.WriteFile(filepath.Join(dir, "demo.go"), []byte(src), 0o644); err != nil {
		t.Fatalf("write source: %v", err)
	}
	// test files are exempt from the scan
	if err := os.WriteFile(filepath.Join(dir, "demo_test.go"), []byte("package demo\n\nimport _ \"lensforge/internal/blob\"\n"), 0o644); err != nil {
		t.Fatalf("write test source: %v", err)
	}

	viols, err := directImportViolations(dir, ModelSuiteImportForbidden)
	if err != nil {
		t.Fatalf("directImportViolations: %v", err)
	}
	if len(viols) != 1 {
		t.Fatalf("violations = %v", viols)
	}

	viols, err = directImportViolations(dir, StorageImportForbidden)
	if err != nil {
		t.Fatalf("directImportViolations: %v", err)
	}
	if len(viols) != 0 {
		t.Fatalf("unexpected violations = %v", viols)
	}
}

func TestForbiddenPredicates(t *testing.T) {
	cases := []struct {
		path      string
		predicate func(string) bool
		want      bool
	}{
		{"lensforge/internal/pipeline", InternalImportForbidden, true},
		{"lensforge/pkg/domain", InternalImportForbidden, false},
		{"lensforge/internal/catalog", StorageImportForbidden, true},
		{"lensforge/internal/blob", StorageImportForbidden, true},
		{"lensforge/internal/config", StorageImportForbidden, false},
		{"lensforge/plugins/standard", ModelSuiteImportForbidden, true},
		{"lensforge/internal/raytrace", ModelSuiteImportForbidden, true},
		{"lensforge/internal/drizzle", ModelSuiteImportForbidden, true},
		{"lensforge/internal/sampling", ModelSuiteImportForbidden, false},
	}
	for _, tc := range cases {
		if got := tc.predicate(tc.path); got != tc.want {
			t.Fatalf("predicate(%s) = %v, want %v", tc.path, got, tc.want)
		}
	}
}
