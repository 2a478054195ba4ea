package itinerary

// SafetyClass is the exposure category of a path segment
type SafetyClass string

// Safety classes, ordered from safest infrastructure to most exposed
const (
	ClassBike   SafetyClass = "bike"
	ClassPath   SafetyClass = "path"
	ClassDanger SafetyClass = "danger"
	ClassMedium SafetyClass = "medium_traffic"
	ClassLow    SafetyClass = "low_traffic"
)

// Classes lists every safety class in display order
var Classes = []SafetyClass{ClassBike, ClassPath, ClassLow, ClassMedium, ClassDanger}

// unsafeWeights are the meters-of-exposure multipliers used by UnsafeScore
var unsafeWeights = map[SafetyClass]float64{
	ClassBike:   0,
	ClassPath:   0,
	ClassDanger: 10,
	ClassMedium: 1,
	ClassLow:    0.1,
}

// UnsafeWeight returns the exposure multiplier of a class
func UnsafeWeight(c SafetyClass) float64 {
	return unsafeWeights[c]
}

// IsUnsafe reports whether the class counts towards unsafe distance
func (c SafetyClass) IsUnsafe() bool {
	return c == ClassDanger || c == ClassMedium
}

var (
	cyclewayLanes = set("lane", "opposite", "opposite_lane", "track", "opposite_track", "share_busway", "share_lane")
	pavedSurfaces = set("paved", "asphalt", "concrete", "paving_stones")
	fairSurfaces  = set("fine_gravel", "cobblestone")
	pathHighways  = set("track", "road", "path", "footway")
	majorHighways = set("trunk", "trunk_link", "primary", "primary_link")
	minorHighways = set("secondary", "secondary_link")
	bikeAllowed   = set("yes", "permissive")
)

func set(values ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(values))
	for _, v := range values {
		m[v] = struct{}{}
	}
	return m
}

// Classify maps an OSM tag set to its safety class. The first matching rule wins.
func Classify(tags map[string]string) SafetyClass {
	is := func(key, value string) bool {
		v, ok := tags[key]
		return ok && v == value
	}
	in := func(key string, values map[string]struct{}) bool {
		v, ok := tags[key]
		if !ok {
			return false
		}
		_, found := values[v]
		return found
	}

	protected := is("bicycle_road", "yes") ||
		is("bicycle", "designated") ||
		is("highway", "cycleway") ||
		in("cycleway", cyclewayLanes) ||
		in("cycleway:right", cyclewayLanes) ||
		in("cycleway:left", cyclewayLanes)
	if protected {
		return ClassBike
	}

	surface, hasSurface := tags["surface"]
	paved := in("surface", pavedSurfaces)
	unpaved := hasSurface && !paved && surface != "" && !in("surface", fairSurfaces)
	bikePermitted := in("bicycle", bikeAllowed)
	probablyGood := paved || (!unpaved && (bikePermitted || is("highway", "footway")))

	switch {
	case in("highway", pathHighways) && !probablyGood:
		return ClassPath
	case in("highway", majorHighways):
		return ClassDanger
	case in("highway", minorHighways):
		return ClassMedium
	default:
		return ClassLow
	}
}
