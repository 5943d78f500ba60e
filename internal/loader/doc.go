// Package loader is the public entry point of the cache-backed fetch layer:
// it decides when a region must be refreshed from the remote endpoints and
// hands back the cached artifact together with its creation timestamp.
package loader
