package popapi_test

import (
	"testing"

	"lensforge/testutil"
)

// Third-party model suites import popapi to register adapters; the contract
// surface must not pull the pipeline in behind them.
func TestPopAPIImportsNoInternalPackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"pkg/popapi must stay free of internal packages")
}
