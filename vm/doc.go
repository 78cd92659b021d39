// Package vm implements the execution-context model that hot reload
// operates on.
//
// This package contains:
//   - A dense class-id table with a permanent core range
//   - Classes and libraries whose identity is stable while their shape can
//     be swapped
//   - Functions with tiered code (lazy-compile stub, unoptimized, optimized)
//   - Per-call-site inline caches and the megamorphic cache table
//   - The mutator stack with lazy deoptimization
//   - A heap with typed iteration over its function population
//   - A definition loader standing in for the embedder's library loader
package vm
