package classify

import (
	"strings"

	"github.com/nsyy/eye-pacs/constants"
)

const (
	SlugComprehensive  = "comprehensive-exam"
	SlugDryEye1        = "dry-eye-analysis-1"
	SlugDryEye2        = "dry-eye-analysis-2"
	SlugDryEye3        = "dry-eye-analysis-3"
	SlugRefractionFour = "refraction-four-map"
	SlugRefractionSix  = "refraction-six-map"
	SlugBiomechanics   = "biomechanics"
	SlugFundusPhoto    = "fundus-photo"
	SlugEndothelial    = "endothelial-cell-report"
	SlugTopography     = "topography-map"
	SlugTopography1    = "topography-map-1"
)

func prefix(p string) func(string) bool {
	return func(name string) bool { return strings.HasPrefix(name, p) }
}

// numbered matches "<n>.pdf" or "<n>r"/"<n>l" in either case.
func numbered(n string, extra ...string) func(string) bool {
	return func(name string) bool {
		if name == n+".pdf" {
			return true
		}
		for _, side := range []string{"r", "l", "R", "L"} {
			if strings.HasPrefix(name, n+side) {
				return true
			}
		}
		for _, sub := range extra {
			if strings.Contains(name, sub) {
				return true
			}
		}
		return false
	}
}

// PrimaryRules is the first chain, first match wins.
func PrimaryRules() []Rule {
	return []Rule{
		{Name: "comprehensive", Match: prefix("0"), Type: constants.TypeComprehensive, Slug: SlugComprehensive, Machine: constants.MachineTopography},
		{Name: "dry-eye-1", Match: prefix("1."), Type: constants.TypeDryEye1, Slug: SlugDryEye1, Machine: constants.MachineTopography},
		{Name: "dry-eye-2", Match: prefix("2"), Type: constants.TypeDryEye2, Slug: SlugDryEye2, Machine: constants.MachineTopography},
		{Name: "dry-eye-3", Match: prefix("3"), Type: constants.TypeDryEye3, Slug: SlugDryEye3, Machine: constants.MachineTopography},
		{Name: "refraction-four", Match: numbered("4", "4 Maps Refr"), Type: constants.TypeRefractionFour, Slug: SlugRefractionFour, Machine: constants.MachineAnteriorSegment},
		{Name: "refraction-six", Match: numbered("5"), Type: constants.TypeRefractionSix, Slug: SlugRefractionSix, Machine: constants.MachineAnteriorSegment},
		{Name: "biomechanics", Match: numbered("6"), Type: constants.TypeBiomechanics, Slug: SlugBiomechanics, Machine: constants.MachineTonometer},
		{Name: "fundus-photo", Match: prefix("7"), Type: constants.TypeFundusPhoto, Slug: SlugFundusPhoto, Machine: constants.MachineFundusCamera},
	}
}

// SecondaryRules is evaluated after the primary chain regardless of its
// outcome; a match replaces the primary result.
func SecondaryRules() []Rule {
	return []Rule{
		{Name: "endothelial", Match: prefix("8"), Type: constants.TypeEndothelial, Slug: SlugEndothelial, Machine: constants.MachineEndothelial},
		{Name: "topography", Match: prefix("9"), Type: constants.TypeTopography, Slug: SlugTopography, Machine: constants.MachineMedmont},
		{Name: "topography-1", Match: prefix("10"), Type: constants.TypeTopography1, Slug: SlugTopography1, Machine: constants.MachineMedmont},
	}
}

// archivedTypePrefixes are the type names that older archives and manual
// uploads use as basename prefix. Longer names sort before their prefixes.
var archivedTypePrefixes = []constants.ReportType{
	constants.TypeEndothelial,
	constants.TypeRefractionFour,
	constants.TypeTopography1,
	constants.TypeTopography,
}

// TypeForArchivedName recovers the report type from an archived basename.
// Slugs written by Classify are checked first, then the type names used as
// prefixes, then an OD or OS marker anywhere in the name, which identifies a
// Master700 export. Anything else is classified afresh.
func TypeForArchivedName(name string) constants.ReportType {
	if strings.HasPrefix(name, constants.Master700Prefix+"_") {
		return constants.TypeMaster700
	}
	for _, r := range append(PrimaryRules(), SecondaryRules()...) {
		if strings.HasPrefix(name, r.Slug+"_") {
			return r.Type
		}
	}
	for _, t := range archivedTypePrefixes {
		if strings.HasPrefix(name, string(t)) {
			return t
		}
	}
	if strings.Contains(name, "OD") || strings.Contains(name, "OS") {
		return constants.TypeMaster700
	}
	return New().Classify(name).ReportType
}
