package device

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dualive/capture/pkg/media"
	"github.com/dualive/capture/pkg/os"
)

// Ownership hands out exclusive device access across processes
// with lock files in a shared directory.
type Ownership struct {
	dir string
}

func NewOwnership(dir string) *Ownership { return &Ownership{dir: dir} }

var idReplacer = strings.NewReplacer(":", "_", "/", "_", "\\", "_")

// Acquire takes the device or fails with media.ErrDeviceBusy
// when someone else holds it.
func (o *Ownership) Acquire(id string) (release func() error, err error) {
	lock, err := os.NewFileLock(filepath.Join(o.dir, idReplacer.Replace(id)+".lock"))
	if err != nil {
		return nil, fmt.Errorf("device lock: %w", err)
	}
	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("device lock: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %v is held by another owner", media.ErrDeviceBusy, id)
	}
	return lock.Unlock, nil
}
