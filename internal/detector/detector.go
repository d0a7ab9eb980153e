package detector

import "github.com/loykin/tabguard/internal/process"

// Identifier resolves the browser's own renderer ids (as reported by the extension)
// to operating-system pids. Implementations may check a command line flag, a pid file,
// or anything else the browser exposes. It must be safe for concurrent use.
type Identifier interface {
	// Resolve scans the table for processes of the given browser executable and
	// returns renderer id -> pid for every process it could identify.
	Resolve(table process.Table, browser string) map[int64]int32
	// Describe returns a human-readable description of the identification method.
	Describe() string
}
