package lsmdb

import "fmt"

// LevelState records which of a level's three tables plays the prev, next
// and pending role. The six non-nil values are the permutations of the
// slots A, B, C onto (prev, next, pending); rotating roles never moves data.
type LevelState uint8

const (
	// StateNil marks a level that has never received data
	StateNil LevelState = iota
	StateABC
	StateACB
	StateBAC
	StateBCA
	StateCAB
	StateCBA

	stateCount
)

// Role is the job a table does within its level.
type Role uint8

const (
	RolePrev Role = iota
	RoleNext
	RolePending
)

func (r Role) String() string {
	switch r {
	case RolePrev:
		return "prev"
	case RoleNext:
		return "next"
	case RolePending:
		return "pending"
	}
	return "unknown"
}

// roleSlots[state] = slot of (prev, next, pending). StateNil uses the
// first permutation; its tables are empty.
var roleSlots = [stateCount][3]uint8{
	StateNil: {0, 1, 2},
	StateABC: {0, 1, 2},
	StateACB: {0, 2, 1},
	StateBAC: {1, 0, 2},
	StateBCA: {1, 2, 0},
	StateCAB: {2, 0, 1},
	StateCBA: {2, 1, 0},
}

// swap prev and next
var rotateSelf = [stateCount]LevelState{
	StateNil: StateNil,
	StateABC: StateBAC,
	StateBAC: StateABC,
	StateACB: StateCAB,
	StateCAB: StateACB,
	StateBCA: StateCBA,
	StateCBA: StateBCA,
}

// swap next and pending
var rotateReceive = [stateCount]LevelState{
	StateNil: StateNil,
	StateABC: StateACB,
	StateACB: StateABC,
	StateBAC: StateBCA,
	StateBCA: StateBAC,
	StateCAB: StateCBA,
	StateCBA: StateCAB,
}

// Valid reports whether s is one of the six permutations.
func (s LevelState) Valid() bool {
	return s > StateNil && s < stateCount
}

// Slot returns the slot (0, 1 or 2) holding role r.
func (s LevelState) Slot(r Role) uint8 {
	if s >= stateCount || r > RolePending {
		return 0
	}
	return roleSlots[s][r]
}

// RotateSelf swaps prev and next. It is applied to a level whose prev
// table has just been merged away: the old next becomes the merge source.
func (s LevelState) RotateSelf() LevelState {
	if s >= stateCount {
		return StateNil
	}
	return rotateSelf[s]
}

// RotateReceive swaps next and pending. It is applied to a level that just
// received a completed merge: the filled pending table becomes readable.
func (s LevelState) RotateReceive() LevelState {
	if s >= stateCount {
		return StateNil
	}
	return rotateReceive[s]
}

func (s LevelState) String() string {
	if s == StateNil {
		return "nil"
	}
	if !s.Valid() {
		return fmt.Sprintf("invalid(%d)", uint8(s))
	}
	slots := roleSlots[s]
	return string([]byte{'A' + slots[0], 'A' + slots[1], 'A' + slots[2]})
}

// levelStates holds the state of levels 1..LevelMax-1; index 0 is level 1.
type levelStates [LevelMax - 1]LevelState

func (ls *levelStates) get(level int) LevelState {
	if level < 1 || level >= LevelMax {
		return StateNil
	}
	return ls[level-1]
}

func (ls *levelStates) set(level int, s LevelState) {
	ls[level-1] = s
}

// encode stores the states up to the last non-nil level. Levels gain data
// top down, so the non-nil states always form a prefix.
func (ls *levelStates) encode() []byte {
	n := len(ls)
	for n > 0 && ls[n-1] == StateNil {
		n--
	}
	buf := make([]byte, n)
	for i := 0; i < n; i++ {
		buf[i] = byte(ls[i])
	}
	return buf
}

func decodeLevelStates(buf []byte) (levelStates, error) {
	var ls levelStates
	if len(buf) > len(ls) {
		return ls, errorf(ErrIncompatible, "level state vector has %d entries, max %d", len(buf), len(ls))
	}
	for i, b := range buf {
		s := LevelState(b)
		if !s.Valid() {
			return ls, errorf(ErrIncompatible, "level %d has invalid state %d", i+1, b)
		}
		ls[i] = s
	}
	return ls, nil
}
