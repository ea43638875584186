package sr

import (
	"os"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadFixture(t *testing.T) []byte {
	t.Helper()
	raw, err := os.ReadFile("testdata/ob_report.json")
	require.NoError(t, err)
	return raw
}

func TestExtractJSON_ObstetricReport(t *testing.T) {
	got := ExtractJSON(loadFixture(t), DefaultTargets())

	want := Result{
		"LMP":                             "20240101",
		"Biparietal Diameter":             "48.2",
		"Head Circumference":              "176.4",
		"Abdominal Circumference":         "154.0",
		"Femur Length":                    "34.5",
		"AMNIOTIC FLUID INDEX LEN q1":     "2",
		"AMNIOTIC FLUID INDEX LEN q2":     "5",
		"AMNIOTIC FLUID INDEX LEN q3":     "3",
		"AMNIOTIC FLUID INDEX LEN q4":     "1",
		"Single Largest Vertical Pocket":  "5.0",
		"Middle Cerebral Artery":          "1.62",
		"Ductus Venosus":                  "0.71",
		"Pulsatility Index":               "0.71",
		"Left Uterine Pulsatility Index":  "1.20",
		"Right Uterine Pulsatility Index": "1.40",
		"Uterine":                         "1.3",
		"PatientName":                     "DOE^JANE",
		"PatientID":                       "MRN-0042",
		"PatientBirthDate":                "19900215",
	}
	assert.Equal(t, want, got)
}

func TestExtract_Idempotent(t *testing.T) {
	doc, err := Decode(loadFixture(t))
	require.NoError(t, err)

	first := Extract(doc, DefaultTargets())
	second := Extract(doc, DefaultTargets())
	assert.Equal(t, first, second)

	first["Femur Length"] = "0"
	assert.Equal(t, "34.5", Extract(doc, DefaultTargets())["Femur Length"])
}

func TestExtract_Concurrent(t *testing.T) {
	doc, err := Decode(loadFixture(t))
	require.NoError(t, err)
	want := Extract(doc, DefaultTargets())

	var wg sync.WaitGroup
	results := make([]Result, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = Extract(doc, DefaultTargets())
		}(i)
	}
	wg.Wait()

	for _, got := range results {
		assert.Equal(t, want, got)
	}
}

func TestExtract_NilDocument(t *testing.T) {
	assert.Empty(t, Extract(nil, DefaultTargets()))
	assert.Empty(t, Extract(&Document{}, DefaultTargets()))
}

func TestExtract_DemographicsDefaultEmpty(t *testing.T) {
	got := Extract(document(nil, numItem("Femur Length", "34.5")), DefaultTargets())

	assert.Equal(t, Result{
		"Femur Length":      "34.5",
		KeyPatientName:      "",
		KeyPatientID:        "",
		KeyPatientBirthDate: "",
	}, got)
}

func TestExtract_QuadrantsDeriveLargestPocket(t *testing.T) {
	doc := document(nil, containerItem("Amniotic Fluid",
		numItem(QuadrantKey(1), "2"),
		numItem(QuadrantKey(2), "5"),
		numItem(QuadrantKey(3), "3"),
		numItem(QuadrantKey(4), "1"),
	))

	got := Extract(doc, DefaultTargets())
	assert.Equal(t, "5.0", got[KeySingleLargestVerticalPocket])
}

func TestExtract_QuadrantsNotTargeted(t *testing.T) {
	doc := document(nil, numItem(QuadrantKey(1), "2"))

	got := Extract(doc, NewTargetSet("Femur Length"))
	assert.NotContains(t, got, KeySingleLargestVerticalPocket)
}

func TestExtractJSON_Malformed(t *testing.T) {
	for _, raw := range []string{``, `[]`, `"report"`, `42`, `{"0040,a730":`, `null`,
		`{"0010,0010": {"Name": "PatientName", "Type": "String", "Value": "X"}} trailing`,
	} {
		assert.Empty(t, ExtractJSON([]byte(raw), DefaultTargets()), "input %q", raw)
	}
}
