package domain_test

import (
	"testing"

	"lensforge/testutil"
)

// The domain package is the shared vocabulary; anything may import it, so it
// must import nothing from the implementation side.
func TestDomainImportsNoInternalPackages(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.InternalImportForbidden,
		"pkg/domain must stay free of internal packages")
}
