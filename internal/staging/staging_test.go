package staging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/types"
)

var testProgram = address.MustParse("whirLbMiicVdio4qvUfM5KAg6Ct8VwpYzGff3uctyCc")

func stagedFiles(t *testing.T, fs afero.Fs, dir string) []string {
	t.Helper()
	entries, err := afero.ReadDir(fs, dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestStageWritesAndReads(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/stage")

	bin := &types.ProgramBinary{Program: testProgram, Data: []byte("\x7fELF anchor:idl")}
	art, err := s.Stage(testProgram, bin)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(art.Path(), "/stage/"+testProgram.String()+"_"))
	assert.True(t, strings.HasSuffix(art.Path(), "_program_dump.so"))
	assert.Equal(t, len(bin.Data), art.Size())

	data, err := art.Read()
	require.NoError(t, err)
	assert.Equal(t, bin.Data, data)
}

func TestStageUniqueNames(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/stage")
	bin := &types.ProgramBinary{Data: []byte{1, 2, 3}}

	a1, err := s.Stage(testProgram, bin)
	require.NoError(t, err)
	a2, err := s.Stage(testProgram, bin)
	require.NoError(t, err)

	assert.NotEqual(t, a1.Path(), a2.Path())
	assert.Len(t, stagedFiles(t, fs, "/stage"), 2)
}

func TestRemoveIsIdempotent(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/stage")

	art, err := s.Stage(testProgram, &types.ProgramBinary{Data: []byte("x")})
	require.NoError(t, err)

	require.NoError(t, art.Remove())
	require.NoError(t, art.Remove())

	exists, err := afero.Exists(fs, art.Path())
	require.NoError(t, err)
	assert.False(t, exists)
	assert.Empty(t, stagedFiles(t, fs, "/stage"))

	_, err = art.Read()
	assert.Error(t, err)
}

func TestStageEmptyBinary(t *testing.T) {
	fs := afero.NewMemMapFs()
	s := New(fs, "/stage")

	art, err := s.Stage(testProgram, &types.ProgramBinary{})
	require.NoError(t, err)
	defer art.Remove()

	data, err := art.Read()
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestStageNilBinary(t *testing.T) {
	s := New(afero.NewMemMapFs(), "/stage")
	_, err := s.Stage(testProgram, nil)
	assert.Error(t, err)
}

func TestStageReadOnlyFs(t *testing.T) {
	s := New(afero.NewReadOnlyFs(afero.NewMemMapFs()), "/stage")
	_, err := s.Stage(testProgram, &types.ProgramBinary{Data: []byte("x")})
	assert.Error(t, err)
}

func TestNewDefaultsToTempDir(t *testing.T) {
	s := New(afero.NewMemMapFs(), "")
	art, err := s.Stage(testProgram, &types.ProgramBinary{Data: []byte("x")})
	require.NoError(t, err)
	assert.Equal(t, filepath.Clean(os.TempDir()), filepath.Dir(art.Path()))
}

func TestNewOSStagesInDir(t *testing.T) {
	dir := t.TempDir()
	s := NewOS(dir)

	art, err := s.Stage(testProgram, &types.ProgramBinary{Data: []byte("on disk")})
	require.NoError(t, err)
	assert.Len(t, stagedFiles(t, afero.NewOsFs(), dir), 1)

	require.NoError(t, art.Remove())
	assert.Empty(t, stagedFiles(t, afero.NewOsFs(), dir))
}
