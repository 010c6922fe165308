package core

import (
	"testing"

	"github.com/ditar94/LabAid-sub000/testutil"
)

// The engine depends on storage backends through domain.PersistentStore and on
// caching through the CapacityCache interface. Artifact handling, cache
// clients and process wiring all sit above it.
func TestCoreStaysBelowInfrastructure(t *testing.T) {
	testutil.AssertNoDirectImports(t, ".", testutil.AnyPrefixForbidden(
		"github.com/ditar94/LabAid-sub000/internal/audit",
		"github.com/ditar94/LabAid-sub000/internal/blob",
		"github.com/ditar94/LabAid-sub000/internal/config",
		"github.com/ditar94/LabAid-sub000/internal/infra/blob",
		"github.com/ditar94/LabAid-sub000/internal/infra/cache",
		"github.com/ditar94/LabAid-sub000/internal/logging",
	), "core must not import artifact, cache client or wiring packages")
}
