package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCleanText(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "Pomme, crue", "Pomme, crue"},
		{"trims whitespace", "  Beurre doux \n", "Beurre doux"},
		{"empty", "", ""},
		{"whitespace only", "   \t", ""},
		{"missing sentinel", "missing", ""},
		{"missing with padding", "  missing  ", ""},
		{"missing inside text kept", "missing data", "missing data"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, CleanText(tc.in))
		})
	}
}

func TestParseNumber(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want float64
		ok   bool
	}{
		{"decimal comma", "12,5", 12.5, true},
		{"decimal point", "3.14", 3.14, true},
		{"integer", "42", 42, true},
		{"padded", " 0,5 ", 0.5, true},
		{"dash sentinel", "-", 0, false},
		{"traces sentinel", "traces", 0, false},
		{"empty", "", 0, false},
		{"garbage", "< 0,5 est.", 0, false},
		{"uppercase traces not sentinel", "Traces", 0, false}, // fails ParseFloat, still absent
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := ParseNumber(tc.in)
			assert.Equal(t, tc.ok, ok)
			if tc.ok {
				assert.InDelta(t, tc.want, got, 1e-9)
			}
		})
	}
}

func TestExtractUnit(t *testing.T) {
	assert.Equal(t, "mg/100g", ExtractUnit("Calcium (mg/100g)", ""))
	assert.Equal(t, "mg/100g", ExtractUnit("", "Vitamin C (mg/100 g)"))
	assert.Equal(t, "kcal/100g", ExtractUnit("Energie (kcal/100g)", "Energy (kcal/100g)"))
	assert.Equal(t, "", ExtractUnit("Energy", ""))
	assert.Equal(t, "", ExtractUnit("Ratio (g/portion)", ""))
}

func TestExtractUnitPrefersFrench(t *testing.T) {
	got := ExtractUnit("Sodium (mg/100g)", "Sodium (g/100g)")
	assert.Equal(t, "mg/100g", got)
}
