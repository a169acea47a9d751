package core

import (
	"testing"

	"github.com/peterldowns/testy/check"
)

func TestFormatUnits(t *testing.T) {
	check.Equal(t, "0", FormatUnits(0))
	check.Equal(t, "0.05", FormatUnits(500))
	check.Equal(t, "1", FormatUnits(10_000))
	check.Equal(t, "123.4567", FormatUnits(1_234_567))
}

func TestParseUnits(t *testing.T) {
	got, err := ParseUnits("1")
	check.Nil(t, err)
	check.Equal(t, uint64(10_000), got)

	got, err = ParseUnits("123.4567")
	check.Nil(t, err)
	check.Equal(t, uint64(1_234_567), got)

	got, err = ParseUnits("0")
	check.Nil(t, err)
	check.Equal(t, uint64(0), got)
}

func TestParseUnits_Rejections(t *testing.T) {
	for _, s := range []string{
		"not-a-number",
		"-1",
		"0.00001", // more decimal places than the wire precision
		"99999999999999999999999999",
	} {
		_, err := ParseUnits(s)
		check.NotNil(t, err)
	}
}

func TestUnitsRoundTrip(t *testing.T) {
	for _, units := range []uint64{0, 1, 500, 10_000, 1_234_567, 1 << 40} {
		parsed, err := ParseUnits(FormatUnits(units))
		check.Nil(t, err)
		check.Equal(t, units, parsed)
	}
}
