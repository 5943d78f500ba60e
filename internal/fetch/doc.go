// Package fetch downloads a region's payload from an ordered list of remote
// endpoints and hands the first complete response to the cache directory.
package fetch
