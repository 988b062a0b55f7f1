// Package pointcloud defines the point container the frame cache loads lidar
// sweeps into, along with a PCD reader for the annotation backend's payloads.
//
// The implementation is a sparse map keyed by position; it favors simplicity
// over density since a cached frame is written once and then only read.
package pointcloud

import (
	"math"

	"github.com/golang/geo/r3"
)

// MetaData is aggregate information about the points in a cloud, maintained
// incrementally as points are added.
type MetaData struct {
	HasColor bool
	HasValue bool

	MinX, MaxX float64
	MinY, MaxY float64
	MinZ, MaxZ float64
}

// PointCloud is a general purpose container of points.
type PointCloud interface {
	// Size returns the number of points in the cloud.
	Size() int

	// MetaData returns the bounds and channel information of the cloud.
	MetaData() MetaData

	// Set places the given point in the cloud.
	Set(p r3.Vector, d Data) error

	// At returns the data for the point at the given position and whether
	// such a point exists.
	At(x, y, z float64) (Data, bool)

	// Iterate calls fn for every point in the cloud until fn returns false.
	Iterate(fn func(p r3.Vector, d Data) bool)
}

// NewMetaData returns MetaData with bounds ready for merging.
func NewMetaData() MetaData {
	return MetaData{
		MinX: math.MaxFloat64, MaxX: -math.MaxFloat64,
		MinY: math.MaxFloat64, MaxY: -math.MaxFloat64,
		MinZ: math.MaxFloat64, MaxZ: -math.MaxFloat64,
	}
}

// Merge folds a new point into the aggregate metadata.
func (meta *MetaData) Merge(p r3.Vector, d Data) {
	if d != nil {
		if d.HasColor() {
			meta.HasColor = true
		}
		if d.HasValue() {
			meta.HasValue = true
		}
	}
	meta.MinX = math.Min(meta.MinX, p.X)
	meta.MaxX = math.Max(meta.MaxX, p.X)
	meta.MinY = math.Min(meta.MinY, p.Y)
	meta.MaxY = math.Max(meta.MaxY, p.Y)
	meta.MinZ = math.Min(meta.MinZ, p.Z)
	meta.MaxZ = math.Max(meta.MaxZ, p.Z)
}

// Center returns the center of the cloud's axis-aligned bounds.
func (meta *MetaData) Center() r3.Vector {
	return r3.Vector{
		X: (meta.MinX + meta.MaxX) / 2,
		Y: (meta.MinY + meta.MaxY) / 2,
		Z: (meta.MinZ + meta.MaxZ) / 2,
	}
}
