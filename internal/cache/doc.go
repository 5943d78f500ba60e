// Package cache owns the on-disk artifact directory behind the loader. Each
// artifact is a single file named <baseName>_<unixMillis><ext> directly under
// the storage root; the newest timestamp per base name is the current artifact.
// Writes go through a temp file + rename so that an interrupted download never
// shows up in the index, and Refresh rebuilds the in-memory index from disk.
package cache
