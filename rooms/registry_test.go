package rooms

import (
	"codecollab-server/core"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id string) core.Member {
	return core.Member{ID: id, Name: "name-" + id}
}

func TestEnsureRoom_CreatesWithDefaults(t *testing.T) {
	reg := NewRegistry("")

	snap, err := reg.EnsureRoom("R1")
	require.NoError(t, err)
	assert.Equal(t, "R1", snap.RoomID)
	assert.Equal(t, "", snap.Text)
	assert.Equal(t, core.DefaultLanguage, snap.Language)
	assert.Empty(t, snap.Members)
	assert.Empty(t, snap.Files)

	_, err = reg.EnsureRoom("R1")
	require.NoError(t, err)
	assert.Len(t, reg.Rooms(), 1)
}

func TestEnsureRoom_EmptyID(t *testing.T) {
	reg := NewRegistry("go")
	_, err := reg.EnsureRoom("")
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
}

func TestJoin_DuplicateIsNoop(t *testing.T) {
	reg := NewRegistry("")

	_, err := reg.Join("R1", member("a"), nil)
	require.NoError(t, err)
	snap, err := reg.Join("R1", member("a"), nil)
	require.NoError(t, err)

	assert.Equal(t, []core.Member{member("a")}, snap.Members)
}

func TestJoin_RejectsMissingArguments(t *testing.T) {
	reg := NewRegistry("")

	_, err := reg.Join("", member("a"), nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)

	_, err = reg.Join("R1", core.Member{ID: "a"}, nil)
	assert.ErrorIs(t, err, core.ErrInvalidArgument)
	assert.Empty(t, reg.Rooms())
}

func TestJoin_SameNameDifferentMembers(t *testing.T) {
	reg := NewRegistry("")

	_, err := reg.Join("R1", core.Member{ID: "1", Name: "alice"}, nil)
	require.NoError(t, err)
	snap, err := reg.Join("R1", core.Member{ID: "2", Name: "alice"}, nil)
	require.NoError(t, err)

	assert.Len(t, snap.Members, 2)
	assert.Equal(t, []string{"alice", "alice"}, snap.Names())
}

func TestMembership_TracksJoinsAndLeaves(t *testing.T) {
	reg := NewRegistry("")
	steps := []struct {
		join bool
		id   string
		want []string
	}{
		{true, "a", []string{"a"}},
		{true, "b", []string{"a", "b"}},
		{true, "c", []string{"a", "b", "c"}},
		{false, "b", []string{"a", "c"}},
		{false, "zzz", []string{"a", "c"}},
		{true, "b", []string{"a", "c", "b"}},
		{false, "a", []string{"c", "b"}},
	}

	for i, step := range steps {
		if step.join {
			_, err := reg.Join("R1", member(step.id), nil)
			require.NoError(t, err)
		} else {
			reg.Leave("R1", step.id, nil)
		}

		snap, ok := reg.Snapshot("R1")
		require.True(t, ok, "step %d", i)
		ids := make([]string, 0, len(snap.Members))
		for _, m := range snap.Members {
			ids = append(ids, m.ID)
		}
		assert.Equal(t, step.want, ids, "step %d", i)
	}
}

func TestLeave_LastMemberDestroysRoom(t *testing.T) {
	reg := NewRegistry("")

	_, err := reg.Join("R1", member("a"), nil)
	require.NoError(t, err)
	require.NoError(t, reg.ApplyEdit("R1", "hello", nil))
	require.NoError(t, reg.ApplyLanguageChange("R1", "go", nil))

	remaining, destroyed := reg.Leave("R1", "a", nil)
	assert.True(t, destroyed)
	assert.Empty(t, remaining)

	_, ok := reg.Snapshot("R1")
	assert.False(t, ok)

	snap, err := reg.Join("R1", member("b"), nil)
	require.NoError(t, err)
	assert.Equal(t, "", snap.Text)
	assert.Equal(t, core.DefaultLanguage, snap.Language)
}

func TestLeave_UnknownRoomIsNoop(t *testing.T) {
	reg := NewRegistry("")
	called := false

	remaining, destroyed := reg.Leave("nope", "a", func(core.Snapshot) { called = true })
	assert.Nil(t, remaining)
	assert.False(t, destroyed)
	assert.False(t, called)
}

func TestApplyEdit_LastWriterWins(t *testing.T) {
	reg := NewRegistry("")

	_, err := reg.Join("R1", member("a"), nil)
	require.NoError(t, err)
	require.NoError(t, reg.ApplyEdit("R1", "abc", nil))
	require.NoError(t, reg.ApplyEdit("R1", "xyz", nil))

	snap, err := reg.Join("R1", member("late"), nil)
	require.NoError(t, err)
	assert.Equal(t, "xyz", snap.Text)
}

func TestApplyEdit_MissingRoom(t *testing.T) {
	reg := NewRegistry("")
	assert.ErrorIs(t, reg.ApplyEdit("R1", "abc", nil), core.ErrRoomNotFound)
	assert.ErrorIs(t, reg.ApplyLanguageChange("R1", "go", nil), core.ErrRoomNotFound)
	assert.Empty(t, reg.Rooms())
}

func TestApplyLanguageChange_Empty(t *testing.T) {
	reg := NewRegistry("")
	_, err := reg.Join("R1", member("a"), nil)
	require.NoError(t, err)

	assert.ErrorIs(t, reg.ApplyLanguageChange("R1", "", nil), core.ErrInvalidArgument)
}

func TestAppendFile(t *testing.T) {
	reg := NewRegistry("")
	file := core.File{ID: "f1", Name: "a.txt", MimeType: "text/plain", Size: 3, Content: []byte("abc")}

	err := reg.AppendFile("R1", file, nil)
	assert.ErrorIs(t, err, core.ErrRoomNotFound)

	_, err = reg.Join("R1", member("a"), nil)
	require.NoError(t, err)
	require.NoError(t, reg.AppendFile("R1", file, nil))

	got, ok := reg.File("R1", "f1")
	require.True(t, ok)
	assert.Equal(t, []byte("abc"), got.Content)

	_, ok = reg.File("R1", "missing")
	assert.False(t, ok)
}

func TestAppendFile_EnsuredRoomWithoutMembers(t *testing.T) {
	reg := NewRegistry("")
	_, err := reg.EnsureRoom("R1")
	require.NoError(t, err)

	err = reg.AppendFile("R1", core.File{ID: "f1"}, nil)
	assert.ErrorIs(t, err, core.ErrRoomNotFound)

	snap, ok := reg.Snapshot("R1")
	require.True(t, ok)
	assert.Empty(t, snap.Files)
}

func TestPrune(t *testing.T) {
	reg := NewRegistry("")
	_, err := reg.EnsureRoom("empty")
	require.NoError(t, err)
	_, err = reg.Join("busy", member("a"), nil)
	require.NoError(t, err)

	assert.Equal(t, 1, reg.Prune())
	assert.Equal(t, []core.RoomSummary{{ID: "busy", Members: 1}}, reg.Rooms())
}

func TestCommit_RunsWithPostMutationSnapshot(t *testing.T) {
	reg := NewRegistry("")
	var seen []string

	_, err := reg.Join("R1", member("a"), func(s core.Snapshot) {
		seen = append(seen, fmt.Sprintf("join:%d", len(s.Members)))
	})
	require.NoError(t, err)
	require.NoError(t, reg.ApplyEdit("R1", "abc", func(s core.Snapshot) {
		seen = append(seen, "edit:"+s.Text)
	}))
	reg.Leave("R1", "a", func(s core.Snapshot) {
		seen = append(seen, fmt.Sprintf("leave:%d", len(s.Members)))
	})

	assert.Equal(t, []string{"join:1", "edit:abc", "leave:0"}, seen)
}

func TestConcurrentJoinLeave(t *testing.T) {
	reg := NewRegistry("")
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			roomID := fmt.Sprintf("room-%d", i%5)
			id := fmt.Sprintf("m-%d", i)
			_, err := reg.Join(roomID, member(id), nil)
			assert.NoError(t, err)
			_ = reg.ApplyEdit(roomID, id, nil)
			if i%2 == 0 {
				reg.Leave(roomID, id, nil)
			}
		}(i)
	}
	wg.Wait()

	total := 0
	for _, s := range reg.Rooms() {
		total += s.Members
	}
	assert.Equal(t, 25, total)
}

func TestCommit_OrderMatchesAcceptOrder(t *testing.T) {
	reg := NewRegistry("")
	_, err := reg.Join("R1", member("a"), nil)
	require.NoError(t, err)

	var (
		mu    sync.Mutex
		order []string
		wg    sync.WaitGroup
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			text := fmt.Sprintf("v%d", i)
			_ = reg.ApplyEdit("R1", text, func(s core.Snapshot) {
				mu.Lock()
				order = append(order, s.Text)
				mu.Unlock()
			})
		}(i)
	}
	wg.Wait()

	snap, ok := reg.Snapshot("R1")
	require.True(t, ok)
	require.Len(t, order, 20)
	assert.Equal(t, snap.Text, order[len(order)-1])
}
