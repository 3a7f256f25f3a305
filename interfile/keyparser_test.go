package interfile

import (
	"os"
	"strings"
	"testing"
)

func TestStandardiseKeyword(t *testing.T) {
	cases := []struct {
		in       string
		expected string
	}{
		{"!INTERFILE", "interfile"},
		{"Number_of rings", "number of rings"},
		{"  segment   span\t", "segment span"},
		{"matrix size [1]", "matrix size [1]"},
		{"matrix size[1]", "matrix size [1]"},
		{"___", ""},
		{"scaling factor (mm/pixel) [2]", "scaling factor (mm/pixel) [2]"},
	}

	for _, tc := range cases {
		if got := StandardiseKeyword(tc.in); got != tc.expected {
			t.Fatalf("StandardiseKeyword(%q): expected %q, got %q", tc.in, tc.expected, got)
		}
	}
}

func TestKeyParserValuesAndLists(t *testing.T) {
	var (
		name    string
		count   int
		radius  float64
		fwhm    []float64
		repeats []int
	)

	kp := &KeyParser{}
	kp.AddStartKey("!TEST PARAMETERS")
	kp.AddKey("name of data file", &name)
	kp.AddKey("number of rings", &count)
	kp.AddKey("cut radius in mm", &radius)
	kp.AddKey("convolution FHWM XYZ in mm", &fwhm)
	kp.AddKey("crystal repeat numbers YZ", &repeats)
	kp.AddStopKey("!END OF TEST PARAMETERS")

	input := strings.Join([]string{
		"!TEST PARAMETERS :=",
		"; a comment line",
		"name of data file := data.s",
		"Number_of Rings := 12",
		"cut radius in mm := 3.25",
		"convolution FHWM XYZ in mm := {2.0, 2.0, 3.5}",
		"crystal repeat numbers YZ := 4",
		"unknown keyword := ignored",
		"!END OF TEST PARAMETERS :=",
	}, "\n")

	if err := kp.ParseReader(strings.NewReader(input), "test"); err != nil {
		t.Fatalf("ParseReader: %v", err)
	}

	if name != "data.s" {
		t.Fatalf("name: got %q", name)
	}
	if count != 12 {
		t.Fatalf("count: got %d", count)
	}
	if radius != 3.25 {
		t.Fatalf("radius: got %v", radius)
	}
	if len(fwhm) != 3 || fwhm[0] != 2 || fwhm[1] != 2 || fwhm[2] != 3.5 {
		t.Fatalf("fwhm: got %v", fwhm)
	}
	// A bare value is a one-element list
	if len(repeats) != 1 || repeats[0] != 4 {
		t.Fatalf("repeats: got %v", repeats)
	}
}

func TestKeyParserRequiresStartKey(t *testing.T) {
	var count int

	kp := &KeyParser{}
	kp.AddStartKey("!TEST PARAMETERS")
	kp.AddKey("number of rings", &count)
	kp.AddStopKey("!END OF TEST PARAMETERS")

	input := "number of rings := 12\n"
	if err := kp.ParseReader(strings.NewReader(input), "test"); err == nil {
		t.Fatal("expected an error for data before the start keyword")
	}
}

func TestKeyParserEnvironmentSubstitution(t *testing.T) {
	t.Setenv("FIR_TEST_DATA", "payload.s")

	var name string

	kp := &KeyParser{}
	kp.AddStartKey("!TEST PARAMETERS")
	kp.AddKey("name of data file", &name)
	kp.AddStopKey("!END OF TEST PARAMETERS")

	input := strings.Join([]string{
		"!TEST PARAMETERS :=",
		"name of data file := ${FIR_TEST_DATA}",
		"!END OF TEST PARAMETERS :=",
	}, "\n")

	if err := kp.ParseReader(strings.NewReader(input), "test"); err != nil {
		t.Fatalf("ParseReader: %v", err)
	}

	if name != "payload.s" {
		t.Fatalf("expected the substituted value, got %q", name)
	}
}

func TestKeyParserMissingFile(t *testing.T) {
	kp := &KeyParser{}
	kp.AddStartKey("!TEST PARAMETERS")

	if err := kp.Parse("/nonexistent/path/file.hs", ""); err == nil {
		t.Fatal("expected an error for a missing file")
	}

	if _, err := os.Stat("/nonexistent/path/file.hs"); err == nil {
		t.Fatal("fixture path unexpectedly exists")
	}
}
