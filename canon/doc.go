// Package canon gives blocks identities that are comparable across traces.
//
// Module ids are local to one trace, so two traces of the same program may
// number the same library differently. A module's identity is its path, and
// a block's identity is (module identity, canonical offset). The canonical
// offset re-bases the block onto the first module in the trace that carries
// the same path, which folds the segments of a segmented module into one
// offset space.
//
// Paths are keyed internally by their xxHash64; a collision tracker turns
// the astronomically rare case of two paths sharing a key into an error
// instead of silently merging them.
package canon
