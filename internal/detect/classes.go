// Package detect holds the detection record shared by the model,
// annotation, dedup, and materializer packages, plus the bit-exact class
// identifier table the rest of the pipeline keys off of.
package detect

import "github.com/technosupport/vms-worker/internal/geometry"

// Class identifiers, bit-exact with the detector's output contract.
const (
	ClassHardhat      = 0
	ClassMask         = 1
	ClassNoHardhat    = 2
	ClassNoMask       = 3
	ClassNoSafetyVest = 4
	ClassPerson       = 5
	ClassSafetyCone   = 6
	ClassSafetyVest   = 7
	ClassMachinery    = 8
	ClassUtilityPole  = 9
	ClassVehicle      = 10

	// ClassZoneBreach is not produced by the model; it is the reserved
	// synthetic class id the deduplicator and materializer use when
	// keying a zone-mode violation.
	ClassZoneBreach = -1
)

var classNames = map[int]string{
	ClassHardhat:      "Hardhat",
	ClassMask:         "Mask",
	ClassNoHardhat:    "NO-Hardhat",
	ClassNoMask:       "NO-Mask",
	ClassNoSafetyVest: "NO-Safety Vest",
	ClassPerson:       "Person",
	ClassSafetyCone:   "Safety Cone",
	ClassSafetyVest:   "Safety Vest",
	ClassMachinery:    "Machinery",
	ClassUtilityPole:  "Utility Pole",
	ClassVehicle:      "Vehicle",
}

// ClassName returns the human-readable label for a class id, or "" if the
// id is outside the known table.
func ClassName(id int) string {
	return classNames[id]
}

// Detection is a transient per-frame record produced by the model.
type Detection struct {
	Box        geometry.Box
	ClassID    int
	ClassName  string
	Confidence float64
}
