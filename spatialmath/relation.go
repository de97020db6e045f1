package spatialmath

// Relation describes how a query volume relates to a bounding box.
type Relation uint8

const (
	// Outside means the box and the volume share no points.
	Outside = Relation(iota)
	// Intersecting means the box may be partially covered; points must be tested individually.
	Intersecting
	// Inside means the box is fully covered by the volume.
	Inside
)

func (r Relation) String() string {
	switch r {
	case Outside:
		return "outside"
	case Intersecting:
		return "intersecting"
	case Inside:
		return "inside"
	default:
		return "unknown"
	}
}
