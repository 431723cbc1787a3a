package roster

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestRegisterPreservesOrder(t *testing.T) {
	r := New()

	for _, id := range []string{"c1", "c2", "c3"} {
		_, err := r.Register(id, "user-"+id)
		require.NoError(t, err)
	}

	assert.Equal(t, []ConnectedUser{
		{ID: "c1", Username: "user-c1"},
		{ID: "c2", Username: "user-c2"},
		{ID: "c3", Username: "user-c3"},
	}, r.Snapshot())
	assert.Equal(t, 3, r.Len())
}

func TestRegisterDuplicateUsernames(t *testing.T) {
	r := New()

	a, err := r.Register("c1", "sam")
	require.NoError(t, err)
	b, err := r.Register("c2", "sam")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, r.Snapshot(), 2)
}

func TestRegisterDuplicateConnection(t *testing.T) {
	r := New()

	_, err := r.Register("c1", "alice")
	require.NoError(t, err)

	_, err = r.Register("c1", "mallory")
	require.ErrorIs(t, err, ErrDuplicateConnection)

	assert.Equal(t, []ConnectedUser{{ID: "c1", Username: "alice"}}, r.Snapshot())
}

func TestRenameKeepsPosition(t *testing.T) {
	r := New()
	_, _ = r.Register("c1", "alice")
	_, _ = r.Register("c2", "bob")

	user, ok := r.Rename("c1", "alicia")
	require.True(t, ok)
	assert.Equal(t, ConnectedUser{ID: "c1", Username: "alicia"}, user)

	assert.Equal(t, []ConnectedUser{
		{ID: "c1", Username: "alicia"},
		{ID: "c2", Username: "bob"},
	}, r.Snapshot())

	_, ok = r.Rename("missing", "x")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
}

func TestRemove(t *testing.T) {
	r := New()
	_, _ = r.Register("c1", "alice")
	_, _ = r.Register("c2", "bob")
	_, _ = r.Register("c3", "carol")

	removed, ok := r.Remove("c2")
	require.True(t, ok)
	assert.Equal(t, "bob", removed.Username)

	assert.Equal(t, []ConnectedUser{
		{ID: "c1", Username: "alice"},
		{ID: "c3", Username: "carol"},
	}, r.Snapshot())

	_, ok = r.Remove("c2")
	assert.False(t, ok, "second removal must be a no-op")

	_, ok = r.Remove("never-registered")
	assert.False(t, ok)
	assert.Equal(t, 2, r.Len())
}

func TestSnapshotIsACopy(t *testing.T) {
	r := New()
	assert.NotNil(t, r.Snapshot())
	assert.Empty(t, r.Snapshot())

	_, _ = r.Register("c1", "alice")
	snap := r.Snapshot()
	snap[0].Username = "changed"
	_, _ = r.Register("c2", "bob")

	assert.Len(t, snap, 1)
	user, ok := r.Get("c1")
	require.True(t, ok)
	assert.Equal(t, "alice", user.Username)
}

func TestConcurrentRegisterAndRemove(t *testing.T) {
	const connections = 200
	r := New()

	var g errgroup.Group
	for i := 0; i < connections; i++ {
		i := i
		id := fmt.Sprintf("c%03d", i)
		g.Go(func() error {
			if _, err := r.Register(id, "user"); err != nil {
				return err
			}
			_ = r.Snapshot()
			if i%2 == 0 {
				if _, ok := r.Remove(id); !ok {
					return fmt.Errorf("remove %s: not found", id)
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	snap := r.Snapshot()
	require.Len(t, snap, connections/2)

	ids := make([]string, 0, len(snap))
	seen := make(map[string]bool)
	for _, u := range snap {
		assert.False(t, seen[u.ID], "duplicate entry %s", u.ID)
		seen[u.ID] = true
		ids = append(ids, u.ID)
	}
	sort.Strings(ids)
	for i, id := range ids {
		assert.Equal(t, fmt.Sprintf("c%03d", 2*i+1), id)
	}
}
