// Package toolchain describes the compiler families kiln can drive.
package toolchain

// Family identifies a compiler family. Its string form is what
// IF COMPILER conditions in proj.kiln match against.
type Family string

const (
	GNU   Family = "gnu"
	Clang Family = "clang"
	MSVC  Family = "msvc"
)

// Descriptor names the executables used to compile, link and archive
// with one compiler family.
type Descriptor struct {
	Family Family
	CC     string
	CXX    string
	LD     string
	AR     string
}

var families = map[Family]Descriptor{
	GNU:   {Family: GNU, CC: "gcc", CXX: "g++", LD: "g++", AR: "ar"},
	Clang: {Family: Clang, CC: "clang", CXX: "clang++", LD: "clang++", AR: "ar"},
	MSVC:  {Family: MSVC, CC: "cl", CXX: "cl", LD: "link", AR: "lib"},
}

// ByFamily returns the stock descriptor for a family.
func ByFamily(f Family) (Descriptor, bool) {
	d, ok := families[f]
	return d, ok
}

// Families lists the supported families in detection preference order.
func Families() []Family {
	return []Family{GNU, Clang, MSVC}
}
