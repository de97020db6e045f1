package octree

import (
	"fmt"
	"strings"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"go.viam.com/cloudquery/spatialmath"
)

// Location types understood by LocationConfig.
const (
	LocationTypeAll          = "all"
	LocationTypeAABB         = "aabb"
	LocationTypeFrustum      = "frustum"
	LocationTypeOBB          = "obb"
	LocationTypeOrientedBeam = "oriented_beam"
)

// IteratorConfig describes how a BatchIterator runs.
type IteratorConfig struct {
	BatchSize       int `json:"batch_size"`
	Workers         int `json:"workers"`
	ChannelCapacity int `json:"channel_capacity"`
}

// Validate ensures all parts of the config are valid.
func (cfg *IteratorConfig) Validate(path string) error {
	if cfg.BatchSize < 0 {
		return goutils.NewConfigValidationError(path, errors.New("batch_size cannot be negative"))
	}
	if cfg.Workers < 0 {
		return goutils.NewConfigValidationError(path, errors.New("workers cannot be negative"))
	}
	if cfg.ChannelCapacity < 0 {
		return goutils.NewConfigValidationError(path, errors.New("channel_capacity cannot be negative"))
	}
	return nil
}

// PoseConfig is the serialized form of a spatialmath.Pose.
type PoseConfig struct {
	Translation []float64         `json:"translation"`
	Orientation *spatialmath.R4AA `json:"orientation,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *PoseConfig) Validate(path string) error {
	if len(cfg.Translation) != 0 && len(cfg.Translation) != 3 {
		return goutils.NewConfigValidationError(path,
			errors.Errorf("translation must have 3 components, got %d", len(cfg.Translation)))
	}
	return nil
}

// Pose converts the config into a pose. A missing orientation is the identity rotation.
func (cfg *PoseConfig) Pose() spatialmath.Pose {
	var pt r3.Vector
	if len(cfg.Translation) == 3 {
		pt = r3.Vector{X: cfg.Translation[0], Y: cfg.Translation[1], Z: cfg.Translation[2]}
	}
	if cfg.Orientation == nil {
		return spatialmath.NewPoseFromPoint(pt)
	}
	return spatialmath.NewPose(pt, cfg.Orientation)
}

// LocationConfig is the serialized form of a PointLocation. Which fields are read depends on Type.
type LocationConfig struct {
	Type        string      `json:"type"`
	Min         []float64   `json:"min,omitempty"`
	Max         []float64   `json:"max,omitempty"`
	Matrix      []float64   `json:"matrix,omitempty"`
	Pose        *PoseConfig `json:"pose,omitempty"`
	HalfExtents []float64   `json:"half_extents,omitempty"`
}

// Validate ensures all parts of the config are valid.
func (cfg *LocationConfig) Validate(path string) error {
	switch strings.ToLower(cfg.Type) {
	case "", LocationTypeAll:
	case LocationTypeAABB:
		if len(cfg.Min) != 3 {
			return goutils.NewConfigValidationFieldRequiredError(path, "min")
		}
		if len(cfg.Max) != 3 {
			return goutils.NewConfigValidationFieldRequiredError(path, "max")
		}
	case LocationTypeFrustum:
		if len(cfg.Matrix) != 16 {
			return goutils.NewConfigValidationError(path,
				errors.Errorf("matrix must have 16 column-major entries, got %d", len(cfg.Matrix)))
		}
	case LocationTypeOBB, LocationTypeOrientedBeam:
		want := 3
		if strings.EqualFold(cfg.Type, LocationTypeOrientedBeam) {
			want = 2
		}
		if len(cfg.HalfExtents) != want {
			return goutils.NewConfigValidationError(path,
				errors.Errorf("half_extents of %s must have %d entries, got %d", cfg.Type, want, len(cfg.HalfExtents)))
		}
		if cfg.Pose != nil {
			if err := cfg.Pose.Validate(fmt.Sprintf("%s.%s", path, "pose")); err != nil {
				return err
			}
		}
	default:
		return goutils.NewConfigValidationError(path, errors.Errorf("unknown location type %q", cfg.Type))
	}
	return nil
}

// PointLocation converts the config into the location it describes.
func (cfg *LocationConfig) PointLocation() (PointLocation, error) {
	switch strings.ToLower(cfg.Type) {
	case "", LocationTypeAll:
		return AllPoints{}, nil
	case LocationTypeAABB:
		box, err := spatialmath.NewAABB(toVector(cfg.Min), toVector(cfg.Max))
		if err != nil {
			return nil, err
		}
		return AABBLocation{Box: box}, nil
	case LocationTypeFrustum:
		var m mgl64.Mat4
		copy(m[:], cfg.Matrix)
		return FrustumLocation{Matrix: m}, nil
	case LocationTypeOBB:
		obb, err := spatialmath.NewOBB(cfg.pose(), toVector(cfg.HalfExtents))
		if err != nil {
			return nil, err
		}
		return OBBLocation{Box: obb}, nil
	case LocationTypeOrientedBeam:
		beam, err := spatialmath.NewOrientedBeam(cfg.pose(), [2]float64{cfg.HalfExtents[0], cfg.HalfExtents[1]})
		if err != nil {
			return nil, err
		}
		return OrientedBeamLocation{Beam: beam}, nil
	default:
		return nil, NewUnsupportedLocationError(cfg.Type)
	}
}

func (cfg *LocationConfig) pose() spatialmath.Pose {
	if cfg.Pose == nil {
		return spatialmath.NewZeroPose()
	}
	return cfg.Pose.Pose()
}

// QueryConfig is the serialized form of a PointQuery.
type QueryConfig struct {
	Location        LocationConfig `json:"location"`
	GlobalFromLocal *PoseConfig    `json:"global_from_local,omitempty"`
	Iterator        IteratorConfig `json:"iterator"`
}

// Validate ensures all parts of the config are valid.
func (cfg *QueryConfig) Validate(path string) error {
	if err := cfg.Location.Validate(fmt.Sprintf("%s.%s", path, "location")); err != nil {
		return err
	}
	if cfg.GlobalFromLocal != nil {
		if err := cfg.GlobalFromLocal.Validate(fmt.Sprintf("%s.%s", path, "global_from_local")); err != nil {
			return err
		}
	}
	return cfg.Iterator.Validate(fmt.Sprintf("%s.%s", path, "iterator"))
}

// PointQuery converts the config into a query.
func (cfg *QueryConfig) PointQuery() (*PointQuery, error) {
	loc, err := cfg.Location.PointLocation()
	if err != nil {
		return nil, err
	}
	query := NewPointQuery(loc)
	if cfg.GlobalFromLocal != nil {
		query.GlobalFromLocal = cfg.GlobalFromLocal.Pose()
	}
	return query, nil
}

// DecodeQueryConfig decodes and validates a query from generic attributes, e.g. unmarshaled JSON.
func DecodeQueryConfig(attributes map[string]interface{}) (*QueryConfig, error) {
	var conf QueryConfig
	var md mapstructure.Metadata
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "json",
		Result:           &conf,
		Metadata:         &md,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := decoder.Decode(attributes); err != nil {
		return nil, errors.Wrap(err, "decoding query")
	}
	if len(md.Unused) != 0 {
		return nil, errors.Errorf("unknown query attributes %v", md.Unused)
	}
	if err := conf.Validate("query"); err != nil {
		return nil, err
	}
	return &conf, nil
}

func toVector(v []float64) r3.Vector {
	return r3.Vector{X: v[0], Y: v[1], Z: v[2]}
}
