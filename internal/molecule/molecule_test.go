package molecule

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestInferFileFormat(t *testing.T) {
	tests := []struct {
		files   []string
		want    string
		wantErr bool
	}{
		{files: []string{"ala.prm7", "ala.rst7"}, want: "PRM7,RST7"},
		{files: []string{"ala.parm7", "ala.crd"}, want: "PRM7,RST"},
		{files: []string{"x.top", "x.gro"}, want: "GroTop,Gro87"},
		{files: []string{"x.PSF", "x.pdb"}, want: "PSF,PDB"},
		{files: []string{"x.xyz"}, wantErr: true},
		{files: nil, wantErr: true},
	}
	for _, tt := range tests {
		got, err := InferFileFormat(tt.files)
		if tt.wantErr {
			assert.Error(t, err, tt.files)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestLoadSystem(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ala.prm7"), "topology")
	writeFile(t, filepath.Join(dir, "ala.rst7"), "coords")

	t.Run("explicit fileformat", func(t *testing.T) {
		path := filepath.Join(dir, "explicit.yaml")
		writeFile(t, path, `name: alanine
fileformat: PRM7,RST
files: [ala.prm7, ala.rst7]
properties:
  charge: "0"
`)
		sys, err := LoadSystem(path)
		require.NoError(t, err)
		assert.Equal(t, "alanine", sys.Name)
		assert.Equal(t, "PRM7,RST", sys.FileFormat())
		assert.Equal(t, []string{filepath.Join(dir, "ala.prm7"), filepath.Join(dir, "ala.rst7")}, sys.Files)
		charge, ok := sys.Property("charge")
		assert.True(t, ok)
		assert.Equal(t, "0", charge)
	})

	t.Run("inferred fileformat and name", func(t *testing.T) {
		path := filepath.Join(dir, "inferred.yaml")
		writeFile(t, path, "files: [ala.prm7, ala.rst7]\n")
		sys, err := LoadSystem(path)
		require.NoError(t, err)
		assert.Equal(t, "inferred", sys.Name)
		assert.Equal(t, "PRM7,RST7", sys.FileFormat())

		top, ok := sys.FileWithExtension("PRM7")
		assert.True(t, ok)
		assert.Equal(t, filepath.Join(dir, "ala.prm7"), top)
	})

	t.Run("no files", func(t *testing.T) {
		path := filepath.Join(dir, "empty.yaml")
		writeFile(t, path, "name: empty\n")
		_, err := LoadSystem(path)
		assert.Error(t, err)
	})
}

func TestNilSystemProperty(t *testing.T) {
	var sys *System
	_, ok := sys.Property(FileFormatProperty)
	assert.False(t, ok)
	assert.Equal(t, "", sys.FileFormat())
}

func TestMoleculeIdentity(t *testing.T) {
	a := &Molecule{Name: "lig", Format: "PDB", Data: []byte("ATOM"), Properties: map[string]string{"a": "1", "b": "2"}}
	b := &Molecule{Name: "lig", Format: "PDB", Data: []byte("ATOM"), Properties: map[string]string{"b": "2", "a": "1"}}
	c := &Molecule{Name: "lig", Format: "PDB", Data: []byte("HETATM"), Properties: map[string]string{"a": "1", "b": "2"}}

	assert.True(t, bytes.Equal(a.Identity(), b.Identity()))
	assert.False(t, bytes.Equal(a.Identity(), c.Identity()))
}

func TestLoadMoleculeAndWrite(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "benzene.pdb"), "HETATM    1  C1  BNZ")
	path := filepath.Join(dir, "benzene.yaml")
	writeFile(t, path, "file: benzene.pdb\nproperties:\n  charge: \"0\"\n")

	mol, err := LoadMolecule(path)
	require.NoError(t, err)
	assert.Equal(t, "benzene", mol.Name)
	assert.Equal(t, "PDB", mol.Format)
	assert.Equal(t, ".pdb", mol.Extension())
	assert.Equal(t, "0", mol.Properties["charge"])

	out := t.TempDir()
	written, err := mol.WriteFile(out, "input")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "input.pdb"), written)

	data, err := os.ReadFile(written)
	require.NoError(t, err)
	assert.Equal(t, "HETATM    1  C1  BNZ", string(data))
}
