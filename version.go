package lsmdb

import "fmt"

// Version constants
const (
	// Major is the major version number
	Major = 0

	// Minor is the minor version number
	Minor = 1

	// Patch is the patch version number
	Patch = 0
)

// FormatVersion identifies the table layout and level-state encoding.
// Stores written with a different layout fail to open with ErrIncompatible.
const FormatVersion = 1

// Version returns the version string of lsmdb.
func Version() string {
	return fmt.Sprintf("lsmdb %d.%d.%d (format %d, %d levels)", Major, Minor, Patch, FormatVersion, LevelMax)
}
