package blob

import (
	"github.com/ditar94/LabAid-sub000/internal/infra/blob/fs"
)

// NewFilesystem constructs a filesystem-backed Store rooted at the provided
// path (default "archives" when empty).
func NewFilesystem(root string) (Store, error) {
	return fs.New(root)
}
