package ids

import "github.com/oklog/ulid/v2"

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Queued actions and tap messages are identified with these so log lines,
// hook payloads, and debug dumps can be correlated across one dispatch
// lifecycle.
//
// IDs are strictly increasing within a process: the package-level entropy
// source is monotonic per millisecond and safe for concurrent use.
func CreateULID() string {
	return ulid.Make().String()
}
