package lsmdb

// Layout constants. Changing any of these changes the on-disk table layout.
const (
	// LevelMax is the number of levels including the level-0 write table
	LevelMax = 10

	// TablesPerLevel is the number of physical tables per level >= 1
	TablesPerLevel = 3

	// CursorsPerLevel is the number of readable tables per level >= 1
	CursorsPerLevel = 2

	// MaxCursors bounds the sub-cursors held by a fan-out cursor
	MaxCursors = LevelMax * CursorsPerLevel

	// tableCount is the write table, the metadata table and every level table
	tableCount = 2 + (LevelMax-1)*TablesPerLevel
)

// Autocompaction defaults.
const (
	// DefaultLevelBase is the level-0 entry count that triggers a drain,
	// and the level-1 target size
	DefaultLevelBase = 5000

	// DefaultLevelGrowth is the size ratio between adjacent levels
	DefaultLevelGrowth = 10

	// DefaultMergeBatch is the write count between paced merge steps
	DefaultMergeBatch = 20000
)

// Table and metadata names.
const (
	writeTableName = "lsm.write"
	metaTableName  = "lsm.meta"

	// DataDirMode is the permission used when creating the store directory
	DataDirMode = 0755
)

var (
	formatKey  = []byte("format")
	levelsKey  = []byte("levels")
	writtenKey = []byte("written")
)

// Transaction flags
const (
	// TxnReadWrite is the default read-write transaction
	TxnReadWrite uint = 0

	// TxnReadOnly creates a read-only transaction
	TxnReadOnly uint = 0x20000
)

// Put flags
const (
	// Upsert is the default insert-or-update mode
	Upsert uint = 0

	// NoOverwrite returns ErrKeyExist if the key is visible at any level
	NoOverwrite uint = 0x10
)

// Cursor operations accepted by Cursor.Get
const (
	// First positions at the first key
	First uint = iota
	// Last positions at the last key
	Last
	// Next moves to the next key
	Next
	// Prev moves to the previous key
	Prev
	// Set positions at exactly the specified key
	Set
	// SetKey is Set returning the key
	SetKey
	// SetRange positions at the first key >= specified
	SetRange
	// GetCurrent returns the current key-value
	GetCurrent
)

// CursorOp names a Cursor.Get operation.
type CursorOp = uint

// Direction orders a fan-out cursor scan.
type Direction int

const (
	// Exact is only meaningful for Seek: match the key exactly
	Exact Direction = 0
	// Forward scans in ascending key order
	Forward Direction = 1
	// Backward scans in descending key order
	Backward Direction = -1
)

func (d Direction) String() string {
	switch d {
	case Forward:
		return "forward"
	case Backward:
		return "backward"
	case Exact:
		return "exact"
	}
	return "invalid"
}
