package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRoom_Validate(t *testing.T) {
	cases := []struct {
		name string
		in   NewRoom
		ok   bool
	}{
		{"ok", NewRoom{Name: "a", Max: 1}, true},
		{"blank name", NewRoom{Name: "  ", Max: 2}, false},
		{"zero max", NewRoom{Name: "a"}, false},
		{"negative max", NewRoom{Name: "a", Max: -1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.in.Validate()
			if tc.ok {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, ErrInvalidRoom)
		})
	}
}

func TestSnapshotOf(t *testing.T) {
	r := &Room{ID: "r1", Name: "zen", Password: "pw", Max: 2, Count: 2, State: RoomOpen, CreatorID: 9, CreatorNickname: "yu"}
	assert.True(t, r.IsFull())
	assert.True(t, r.HasPassword())

	snap := SnapshotOf(r, nil)
	b, err := json.Marshal(snap)
	require.NoError(t, err)
	assert.JSONEq(t, `{"roomId":"r1","roomName":"zen","roomMax":2,"roomCount":2,"roomState":"OPEN",
		"hasPassword":true,"userId":9,"userNickname":"yu","pose":[]}`, string(b))
	assert.NotContains(t, string(b), "pw")
}
