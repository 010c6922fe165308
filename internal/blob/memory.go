package blob

import (
	memorystore "github.com/ditar94/LabAid-sub000/internal/infra/blob/memory"
)

// NewMemory returns an in-memory Store suitable for tests.
func NewMemory() Store { return memorystore.New() }
