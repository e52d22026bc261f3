package groupcache

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepo struct {
	members map[string][]string
	calls   int
}

func (f *fakeRepo) Members(groupID string) ([]string, error) {
	f.calls++
	return f.members[groupID], nil
}

func TestAddAndListExcludesSelf(t *testing.T) {
	c := New(nil)
	c.AddMany("g1", []string{"a", "b", "c"})

	out, err := c.List("g1", "b")
	require.NoError(t, err)
	sort.Strings(out)
	assert.Equal(t, []string{"a", "c"}, out)
}

func TestRemoveAndRemoveMany(t *testing.T) {
	c := New(nil)
	c.AddMany("g1", []string{"a", "b", "c"})
	c.Remove("g1", "a")
	c.RemoveMany("g1", []string{"b"})

	out, err := c.List("g1", "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, out)
}

func TestRemoveAllDropsGroup(t *testing.T) {
	c := New(nil)
	c.AddMany("g1", []string{"a", "b"})
	c.RemoveAll("g1")

	out, err := c.List("g1", "")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestListFallsBackToRepositoryOnMiss(t *testing.T) {
	repo := &fakeRepo{members: map[string][]string{"g2": {"x", "y"}}}
	c := New(repo)

	out, err := c.List("g2", "")
	require.NoError(t, err)
	sort.Strings(out)
	assert.Equal(t, []string{"x", "y"}, out)
	assert.Equal(t, 1, repo.calls)

	// Second call hits the now-populated cache, not the repository again.
	_, err = c.List("g2", "")
	require.NoError(t, err)
	assert.Equal(t, 1, repo.calls)
}

func TestListWithoutRepositoryOnMissReturnsEmpty(t *testing.T) {
	c := New(nil)
	out, err := c.List("unknown", "")
	require.NoError(t, err)
	assert.Empty(t, out)
}
