package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rcookie777/pizza-api/pkg/measurement"
)

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, 5, c.Len())
	assert.Equal(t, "extreme_pizza", c.IDs()[0])

	e, ok := c.Get("night_hawk")
	require.True(t, ok)
	assert.Equal(t, "Night Hawk Brewery & Pizza", e.Name)
	assert.False(t, c.Contains("dominos"))
}

func TestNew_Rejects(t *testing.T) {
	_, err := New(nil)
	require.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = New([]measurement.Establishment{{ID: "a"}, {ID: "a"}})
	require.ErrorIs(t, err, ErrDuplicateID)

	_, err = New([]measurement.Establishment{{Name: "no id"}})
	require.ErrorIs(t, err, measurement.ErrEmptyID)
}

func TestIDsIsCopy(t *testing.T) {
	c := Default()
	ids := c.IDs()
	ids[0] = "mutated"
	assert.Equal(t, "extreme_pizza", c.IDs()[0])
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	content := `establishments:
  - id: slice_joint
    name: Slice Joint
    address: 1 Main St
  - id: pie_hole
    name: Pie Hole
    address: 2 Main St
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"slice_joint", "pie_hole"}, c.IDs())
	assert.Len(t, c.All(), 2)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
