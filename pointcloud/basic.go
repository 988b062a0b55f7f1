package pointcloud

import (
	"github.com/golang/geo/r3"
)

// basicPointCloud is the map-backed implementation of the PointCloud
// interface. Points are keyed by exact position; the insertion order is kept
// so iteration is deterministic.
type basicPointCloud struct {
	points   []pointAndData
	indexMap map[r3.Vector]int
	meta     MetaData
}

type pointAndData struct {
	p r3.Vector
	d Data
}

// New returns an empty PointCloud.
func New() PointCloud {
	return NewWithPrealloc(0)
}

// NewWithPrealloc returns an empty PointCloud with capacity for size points.
func NewWithPrealloc(size int) PointCloud {
	return &basicPointCloud{
		points:   make([]pointAndData, 0, size),
		indexMap: make(map[r3.Vector]int, size),
		meta:     NewMetaData(),
	}
}

func (cloud *basicPointCloud) Size() int {
	return len(cloud.points)
}

func (cloud *basicPointCloud) MetaData() MetaData {
	return cloud.meta
}

func (cloud *basicPointCloud) At(x, y, z float64) (Data, bool) {
	i, ok := cloud.indexMap[r3.Vector{X: x, Y: y, Z: z}]
	if !ok {
		return nil, false
	}
	return cloud.points[i].d, true
}

func (cloud *basicPointCloud) Set(p r3.Vector, d Data) error {
	if i, ok := cloud.indexMap[p]; ok {
		cloud.points[i].d = d
		return nil
	}
	cloud.indexMap[p] = len(cloud.points)
	cloud.points = append(cloud.points, pointAndData{p: p, d: d})
	cloud.meta.Merge(p, d)
	return nil
}

func (cloud *basicPointCloud) Iterate(fn func(p r3.Vector, d Data) bool) {
	for _, pd := range cloud.points {
		if !fn(pd.p, pd.d) {
			return
		}
	}
}
