package presets

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	tmp, err := os.CreateTemp("", "presets-*.db")
	require.NoError(t, err)
	tmp.Close()
	t.Cleanup(func() { os.Remove(tmp.Name()) })

	s, err := Open(tmp.Name())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSaveAndGet(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("sunset", "#FF8800", []int{0, 1, 2}))

	got, err := s.Get("sunset")
	require.NoError(t, err)
	assert.Equal(t, "sunset", got.Name)
	assert.Equal(t, "#FF8800", got.Pattern)
	assert.Equal(t, []int{0, 1, 2}, got.Lamps)
}

func TestSaveUpserts(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Save("alert", "#FF0000;", []int{0}))
	require.NoError(t, s.Save("alert", "#00FF00;", []int{0, 1}))

	got, err := s.Get("alert")
	require.NoError(t, err)
	assert.Equal(t, "#00FF00;", got.Pattern)
	assert.Equal(t, []int{0, 1}, got.Lamps)
}

func TestGetUnknownReturnsErrNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("b", "#000000", nil))
	require.NoError(t, s.Save("a", "#FFFFFF", nil))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "a", list[0].Name)
	assert.Equal(t, "b", list[1].Name)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Save("temp", "#123456", []int{3}))

	removed, err := s.Delete("temp")
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = s.Delete("temp")
	require.NoError(t, err)
	assert.False(t, removed)
}
