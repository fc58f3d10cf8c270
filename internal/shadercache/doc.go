// Package shadercache keeps the SPIR-V compiled from recently used WGSL
// sources.
//
// Compiling WGSL with naga dominates shader module creation, and
// applications tend to create modules from the same few sources over and
// over. A Cache maps a source to its words with least-recently-used
// eviction:
//
//	c := shadercache.New(64)
//	words, err := c.Compile(src, compile)
//
// Failed compilations are not cached. Callers must not modify the words a
// Cache returns.
package shadercache
