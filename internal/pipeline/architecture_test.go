package pipeline_test

import (
	"testing"

	"golang.org/x/tools/go/packages"

	"lensforge/testutil"
)

// The pipeline orchestrates sampling and rendering behind the popapi
// boundary: concrete engines, resamplers, and model suites arrive through
// constructor injection, and artifact storage stays in the dataset layer.
func TestPipelineImportsNoConcreteImplementations(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.ModelSuiteImportForbidden,
		"pipeline must depend on popapi interfaces, not concrete models")
	testutil.AssertNoDirectImports(t, ".", testutil.StorageImportForbidden,
		"pipeline must not know where artifacts land")
}

func TestPipelineTransitiveDependencies(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping package-graph load in short mode")
	}
	cfg := &packages.Config{Mode: packages.NeedName | packages.NeedDeps | packages.NeedImports}
	pkgs, err := packages.Load(cfg, ".")
	if err != nil {
		t.Fatalf("load package graph: %v", err)
	}
	if packages.PrintErrors(pkgs) > 0 {
		t.Fatal("package graph has errors")
	}
	seen := make(map[string]bool)
	var walk func(p *packages.Package)
	walk = func(p *packages.Package) {
		if seen[p.PkgPath] {
			return
		}
		seen[p.PkgPath] = true
		if testutil.StorageImportForbidden(p.PkgPath) || testutil.ModelSuiteImportForbidden(p.PkgPath) {
			t.Errorf("pipeline transitively depends on %s", p.PkgPath)
		}
		for _, imp := range p.Imports {
			walk(imp)
		}
	}
	for _, p := range pkgs {
		walk(p)
	}
}
