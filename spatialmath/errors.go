package spatialmath

import "github.com/pkg/errors"

func newBadGeometryDimensionsError(kind string, dims interface{}) error {
	return errors.Errorf("invalid dimensions %v for %s, dimensions must not be negative", dims, kind)
}

func newInvertedBoundsError(min, max interface{}) error {
	return errors.Errorf("invalid bounding box, min %v exceeds max %v", min, max)
}
