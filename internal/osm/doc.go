// Package osm holds the two collaborators the loader is parameterized with
// for OpenStreetMap data: BoundingBox, which renders a region into a cache base
// name and an Overpass query fragment, and Reader, a forward-only XML stream
// over a cached Overpass response.
package osm
