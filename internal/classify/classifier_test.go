package classify

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nsyy/eye-pacs/constants"
)

var fixed = time.Date(2025, 3, 28, 10, 46, 45, 0, time.Local)

func newTestClassifier() *Classifier {
	return New(WithClock(func() time.Time { return fixed }))
}

func TestClassifyRules(t *testing.T) {
	cases := []struct {
		file    string
		typ     constants.ReportType
		slug    string
		machine string
	}{
		{"0-eye-surface.pdf", constants.TypeComprehensive, SlugComprehensive, constants.MachineTopography},
		{"1.pdf", constants.TypeDryEye1, SlugDryEye1, constants.MachineTopography},
		{"1.tear-film.pdf", constants.TypeDryEye1, SlugDryEye1, constants.MachineTopography},
		{"2 meibography.pdf", constants.TypeDryEye2, SlugDryEye2, constants.MachineTopography},
		{"3.pdf", constants.TypeDryEye3, SlugDryEye3, constants.MachineTopography},
		{"4.pdf", constants.TypeRefractionFour, SlugRefractionFour, constants.MachineAnteriorSegment},
		{"4r.pdf", constants.TypeRefractionFour, SlugRefractionFour, constants.MachineAnteriorSegment},
		{"4L zhou.pdf", constants.TypeRefractionFour, SlugRefractionFour, constants.MachineAnteriorSegment},
		{"OD 4 Maps Refr.pdf", constants.TypeRefractionFour, SlugRefractionFour, constants.MachineAnteriorSegment},
		{"5.pdf", constants.TypeRefractionSix, SlugRefractionSix, constants.MachineAnteriorSegment},
		{"5R.pdf", constants.TypeRefractionSix, SlugRefractionSix, constants.MachineAnteriorSegment},
		{"6.pdf", constants.TypeBiomechanics, SlugBiomechanics, constants.MachineTonometer},
		{"6l-corvis.pdf", constants.TypeBiomechanics, SlugBiomechanics, constants.MachineTonometer},
		{"7 fundus.pdf", constants.TypeFundusPhoto, SlugFundusPhoto, constants.MachineFundusCamera},
		{"8.pdf", constants.TypeEndothelial, SlugEndothelial, constants.MachineEndothelial},
		{"9 medmont.pdf", constants.TypeTopography, SlugTopography, constants.MachineMedmont},
		{"10.pdf", constants.TypeTopography1, SlugTopography1, constants.MachineMedmont},
	}
	c := newTestClassifier()
	for _, tc := range cases {
		t.Run(tc.file, func(t *testing.T) {
			res := c.Classify("roomA/" + tc.file)
			assert.Equal(t, tc.typ, res.ReportType)
			assert.Equal(t, tc.machine, res.Machine)
			ext := tc.file[len(tc.file)-4:]
			assert.Equal(t, tc.slug+"_20250328104645"+ext, res.Basename)
		})
	}
}

func TestClassifyMatchesOnlyBaseName(t *testing.T) {
	res := newTestClassifier().Classify("4 Maps Refr/patient.pdf")
	assert.Equal(t, constants.TypeUnregistered, res.ReportType)
	assert.Equal(t, "patient_20250328104645.pdf", res.Basename)
}

func TestClassifyCaseSensitivePrefixes(t *testing.T) {
	c := newTestClassifier()
	assert.Equal(t, constants.TypeUnregistered, c.Classify("4x.pdf").ReportType)
	assert.Equal(t, constants.TypeUnregistered, c.Classify("45.pdf").ReportType)
	assert.Equal(t, constants.TypeUnregistered, c.Classify("4 maps refr.pdf").ReportType)

	upper := c.Classify("4.PDF")
	assert.Equal(t, constants.TypeUnregistered, upper.ReportType)
	assert.Equal(t, "4_20250328104645.PDF", upper.Basename)
}

func TestClassifyUnregistered(t *testing.T) {
	res := newTestClassifier().Classify("scan-export.pdf")
	assert.Equal(t, Result{
		ReportType: constants.TypeUnregistered,
		Basename:   "scan-export_20250328104645.pdf",
		Machine:    constants.MachineUnregistered,
	}, res)
}

func TestClassifyNonPDFStamped(t *testing.T) {
	res := newTestClassifier().Classify("roomA/4.txt")
	assert.Equal(t, constants.TypeUnregistered, res.ReportType)
	assert.Equal(t, "4_20250328104645.txt", res.Basename)

	res = newTestClassifier().Classify("roomA/README")
	assert.Equal(t, "README_20250328104645", res.Basename)
}

func TestClassifySecondaryChainOverridesPrimary(t *testing.T) {
	// "8 4 Maps Refr" satisfies the refraction substring rule and the
	// endothelial prefix rule; the second chain wins.
	res := newTestClassifier().Classify("8 4 Maps Refr.pdf")
	assert.Equal(t, constants.TypeEndothelial, res.ReportType)
	assert.Equal(t, constants.MachineEndothelial, res.Machine)
}

func TestClassifyMaster700Override(t *testing.T) {
	c := newTestClassifier()

	res := c.Classify("2025021003_OS_2025-02-10_18-26-12.pdf")
	assert.Equal(t, constants.TypeMaster700, res.ReportType)
	assert.Equal(t, "Master700_2025021003_OS_2025-02-10_18-26-12.pdf", res.Basename)
	assert.Equal(t, constants.MachineMaster700, res.Machine)

	// also satisfies the "0" primary rule; the override still wins
	res = c.Classify("0123456789_OD_a_b.pdf")
	assert.Equal(t, constants.TypeMaster700, res.ReportType)
	assert.Equal(t, "Master700_0123456789_OD_a_b.pdf", res.Basename)
	assert.Equal(t, constants.MachineMaster700, res.Machine)

	// also satisfies the secondary "8" rule
	res = c.Classify("8000000000_OS_x_y.pdf")
	assert.Equal(t, constants.MachineMaster700, res.Machine)
}

func TestIsMaster700Stem(t *testing.T) {
	assert.True(t, IsMaster700Stem("2025021003_OS_2025-02-10_18-26-12"))
	assert.False(t, IsMaster700Stem("2025021003_OS_2025-02-10"))
	assert.False(t, IsMaster700Stem("202502100_OS_a_b"))
	assert.False(t, IsMaster700Stem("2025021003-OS-a-b"))
	assert.False(t, IsMaster700Stem("a_b_c_d_e"))
}

func TestClassifyIgnoresContent(t *testing.T) {
	c := newTestClassifier()
	a := c.Classify("x/4r-a.pdf")
	b := c.Classify("y/z/4r-a.pdf")
	assert.Equal(t, a, b)
}

func TestTypeForArchivedName(t *testing.T) {
	assert.Equal(t, constants.TypeRefractionFour, TypeForArchivedName("refraction-four-map_20250328104645.pdf"))
	assert.Equal(t, constants.TypeTopography1, TypeForArchivedName("topography-map-1_20250328104645.pdf"))
	assert.Equal(t, constants.TypeTopography, TypeForArchivedName("topography-map_20250328104645.pdf"))
	assert.Equal(t, constants.TypeEndothelial, TypeForArchivedName("endothelial-cell-report_20250328104645.pdf"))
	assert.Equal(t, constants.TypeMaster700, TypeForArchivedName("Master700_2025021003_OS_2025-02-10_18-26-12.pdf"))
	assert.Equal(t, constants.TypeEndothelial, TypeForArchivedName("8 uploaded.pdf"))
	assert.Equal(t, constants.TypeUnregistered, TypeForArchivedName("misc.pdf"))
}

func TestTypeForArchivedNameLegacyNames(t *testing.T) {
	cases := []struct {
		name string
		typ  constants.ReportType
	}{
		{"角膜内皮细胞报告_20250210182612.pdf", constants.TypeEndothelial},
		{"屈光四图_20250210182612.pdf", constants.TypeRefractionFour},
		{"角膜地形图_20250210182612.pdf", constants.TypeTopography},
		{"角膜地形图1_20250210182612.pdf", constants.TypeTopography1},
		{"bi_qianxi_2025021003_OS_2025-02-10__18-26-12.pdf", constants.TypeMaster700},
		{"OD_2025-02-10.pdf", constants.TypeMaster700},
		// a type name wins over an eye marker later in the name
		{"屈光四图_OD.pdf", constants.TypeRefractionFour},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.typ, TypeForArchivedName(tc.name))
		})
	}
}
