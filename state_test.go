package lsmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func allStates() []LevelState {
	return []LevelState{StateABC, StateACB, StateBAC, StateBCA, StateCAB, StateCBA}
}

func TestLevelStateRolesArePermutations(t *testing.T) {
	for _, s := range allStates() {
		seen := map[uint8]bool{}
		for _, r := range []Role{RolePrev, RoleNext, RolePending} {
			slot := s.Slot(r)
			require.Less(t, slot, uint8(TablesPerLevel), "state %s role %s", s, r)
			seen[slot] = true
		}
		require.Len(t, seen, TablesPerLevel, "state %s", s)
	}
}

func TestLevelStateRotations(t *testing.T) {
	for _, s := range allStates() {
		self := s.RotateSelf()
		require.True(t, self.Valid())
		require.Equal(t, s.Slot(RolePrev), self.Slot(RoleNext), "state %s", s)
		require.Equal(t, s.Slot(RoleNext), self.Slot(RolePrev), "state %s", s)
		require.Equal(t, s.Slot(RolePending), self.Slot(RolePending), "state %s", s)
		require.Equal(t, s, self.RotateSelf())

		recv := s.RotateReceive()
		require.True(t, recv.Valid())
		require.Equal(t, s.Slot(RolePrev), recv.Slot(RolePrev), "state %s", s)
		require.Equal(t, s.Slot(RoleNext), recv.Slot(RolePending), "state %s", s)
		require.Equal(t, s.Slot(RolePending), recv.Slot(RoleNext), "state %s", s)
		require.Equal(t, s, recv.RotateReceive())
	}
	require.Equal(t, StateNil, StateNil.RotateSelf())
	require.Equal(t, StateNil, StateNil.RotateReceive())
	require.Equal(t, StateNil, LevelState(42).RotateSelf())
}

func TestLevelStateString(t *testing.T) {
	require.Equal(t, "nil", StateNil.String())
	require.Equal(t, "ABC", StateABC.String())
	require.Equal(t, "CAB", StateCAB.String())
	require.Equal(t, "invalid(9)", LevelState(9).String())
}

func TestLevelStatesEncode(t *testing.T) {
	var ls levelStates
	require.Empty(t, ls.encode())

	ls.set(1, StateACB)
	ls.set(2, StateBAC)
	ls.set(3, StateCBA)
	buf := ls.encode()
	require.Equal(t, []byte{byte(StateACB), byte(StateBAC), byte(StateCBA)}, buf)

	got, err := decodeLevelStates(buf)
	require.NoError(t, err)
	require.Equal(t, ls, got)
	require.Equal(t, StateNil, got.get(0))
	require.Equal(t, StateNil, got.get(LevelMax))
}

func TestDecodeLevelStatesIncompatible(t *testing.T) {
	tests := []struct {
		name string
		buf  []byte
	}{
		{"too long", make([]byte, LevelMax)},
		{"nil entry", []byte{byte(StateABC), byte(StateNil), 0}},
		{"out of range", []byte{byte(stateCount)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeLevelStates(tt.buf)
			require.Error(t, err)
			require.True(t, IsIncompatible(err), "got %v", err)
		})
	}
}
