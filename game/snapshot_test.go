package game

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshot(t *testing.T) {
	t.Parallel()

	t.Run("captures players and turn state", func(t *testing.T) {
		t.Parallel()
		f := newFixture(singleRepo(Challenge{Text: "{Player} drinks.", Sips: 1}))
		room := buildRoom(t, f.life, "alice", "bob")
		room.Players[1].Penalties = []Penalty{{Text: "whisper", Rounds: 2}}
		startGame(t, f, room)
		f.life.DropConnection(connFor("bob"))

		snap := room.Snapshot()

		assert.Equal(t, room.ID, snap.ID)
		assert.Equal(t, StatusPlaying, snap.Status)
		assert.Equal(t, 1, snap.Round)
		require.NotNil(t, snap.Turn)
		assert.Equal(t, "alice drinks.", snap.Turn.Text)

		require.Len(t, snap.Players, 2)
		assert.True(t, snap.Players[0].Admin)
		assert.True(t, snap.Players[0].Online)
		assert.False(t, snap.Players[1].Online)
		assert.Equal(t, []Penalty{{Text: "whisper", Rounds: 2}}, snap.Players[1].Penalties)
	})

	t.Run("penalties are copied, not shared", func(t *testing.T) {
		t.Parallel()
		life := NewLifecycle(NewRegistry())
		room := buildRoom(t, life, "alice")
		room.Players[0].Penalties = []Penalty{{Text: "whisper", Rounds: 3}}

		snap := room.Snapshot()
		room.Players[0].Penalties[0].Rounds = 1

		assert.Equal(t, 3, snap.Players[0].Penalties[0].Rounds)
	})

	t.Run("waiting room has no turn", func(t *testing.T) {
		t.Parallel()
		life := NewLifecycle(NewRegistry())
		room := buildRoom(t, life, "alice")

		snap := room.Snapshot()
		assert.Nil(t, snap.Turn)
		assert.Zero(t, snap.Round)
	})
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()

	f := newFixture(singleRepo(Challenge{Text: "{Player} drinks {sips}.", Sips: 2}))
	room := buildRoom(t, f.life, "alice", "bob")
	room.Players[1].Penalties = []Penalty{{Text: "rhyme", Rounds: 1}}
	startGame(t, f, room)

	snap := room.Snapshot()

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var decoded RoomSnapshot
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, snap, decoded)
}

func TestRestore(t *testing.T) {
	t.Parallel()

	t.Run("rebinds the connection and returns the room", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry()
		life := NewLifecycle(reg)
		room := buildRoom(t, life, "alice", "bob")
		bob := room.Players[1]

		life.DropConnection(connFor("bob"))
		require.Empty(t, bob.ConnID)

		snap, err := Restore(reg, bob.ID, "conn-bob-2")
		require.NoError(t, err)

		assert.Equal(t, room.ID, snap.ID)
		assert.Equal(t, "conn-bob-2", bob.ConnID)
		assert.True(t, snap.Players[1].Online)
	})

	t.Run("supersedes a live connection", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry()
		life := NewLifecycle(reg)
		room := buildRoom(t, life, "alice")
		alice := room.Players[0]

		_, err := Restore(reg, alice.ID, "conn-alice-2")
		require.NoError(t, err)
		assert.Equal(t, "conn-alice-2", alice.ConnID)
	})

	t.Run("unknown player", func(t *testing.T) {
		t.Parallel()
		reg := NewRegistry()
		life := NewLifecycle(reg)
		buildRoom(t, life, "alice")

		_, err := Restore(reg, "no-such-id", "conn-x")
		assert.ErrorIs(t, err, ErrPlayerNotFound)
	})
}
