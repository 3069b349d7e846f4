// Package staging holds dumped program binaries on disk for the duration of a single scan.
package staging

import (
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/spf13/afero"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

const fileSuffix = "_program_dump.so"

// Stager writes program binaries into a staging directory.
type Stager struct {
	fs  afero.Fs
	dir string
}

// New returns a Stager backed by fs. An empty dir means the OS temp directory.
func New(fs afero.Fs, dir string) *Stager {
	if dir == "" {
		dir = os.TempDir()
	}
	return &Stager{fs: fs, dir: dir}
}

// NewOS returns a Stager on the real filesystem.
func NewOS(dir string) *Stager {
	return New(afero.NewOsFs(), dir)
}

// Stage writes bin to a uniquely named file and returns a handle to it.
func (s *Stager) Stage(program address.Address, bin *types.ProgramBinary) (*Artifact, error) {
	if bin == nil {
		return nil, errors.New("nil program binary")
	}
	if err := s.fs.MkdirAll(s.dir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create staging directory: %w", err)
	}

	f, err := afero.TempFile(s.fs, s.dir, program.String()+"_*"+fileSuffix)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging file: %w", err)
	}
	path := f.Name()

	if _, err := f.Write(bin.Data); err != nil {
		f.Close()
		s.fs.Remove(path)
		return nil, fmt.Errorf("failed to write staging file: %w", err)
	}
	if err := f.Close(); err != nil {
		s.fs.Remove(path)
		return nil, fmt.Errorf("failed to close staging file: %w", err)
	}

	return &Artifact{fs: s.fs, path: path, size: len(bin.Data)}, nil
}

// Artifact is one staged binary. It is owned by a single pipeline run.
type Artifact struct {
	fs      afero.Fs
	path    string
	size    int
	mu      sync.Mutex
	removed bool
}

// Path returns the location of the staged file.
func (a *Artifact) Path() string {
	return a.path
}

// Size returns the number of bytes written when the artifact was staged.
func (a *Artifact) Size() int {
	return a.size
}

// Read returns the staged bytes.
func (a *Artifact) Read() ([]byte, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.removed {
		return nil, fmt.Errorf("artifact %s already removed", a.path)
	}
	data, err := afero.ReadFile(a.fs, a.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read staging file: %w", err)
	}
	return data, nil
}

// Remove deletes the staged file. Calling it more than once is safe.
func (a *Artifact) Remove() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.removed {
		return nil
	}
	if err := a.fs.Remove(a.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove staging file: %w", err)
	}
	a.removed = true
	return nil
}
