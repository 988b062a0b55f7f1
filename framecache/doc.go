// Package framecache is the multi-frame spatial cache at the heart of the
// annotator: it places many frames' point clouds in non-overlapping regions
// of one shared render space, manages each frame's multi-part asynchronous
// load as a single lifecycle object (a World), bounds resource usage with a
// distance-based eviction policy, and keeps the sensor, vehicle-world and
// render coordinate frames consistent via a per-scene reference pose.
//
// A World is created on cache miss and immediately starts four independent
// loads (points, annotations, camera images, vehicle pose). When all four
// settle, the world computes its transforms exactly once and, if it was
// requested for display in the meantime, attaches itself to the render
// space. The Cache owns the offset-cell allocator, the per-scene reference
// poses and the eviction, purge and look-ahead policies; no other component
// mutates that shared state.
package framecache
