package domain

import "testing"

func TestParseCategory(t *testing.T) {
	t.Parallel()

	cases := []struct {
		raw  string
		want Category
		ok   bool
	}{
		{"crime", CategoryCrime, true},
		{"  Crime  ", CategoryCrime, true},
		{`"infrastructure"`, CategoryInfrastructure, true},
		{"'hazard'", CategoryHazard, true},
		{"social.", CategorySocial, true},
		{"HAZARD", CategoryHazard, true},
		{`"Social".`, CategorySocial, true},
		{"DISCARD", "", false},
		{"discard.", "", false},
		{"", "", false},
		{"politics", "", false},
		{"crime and more words", "", false},
	}

	for _, tc := range cases {
		got, ok := ParseCategory(tc.raw)
		if ok != tc.ok {
			t.Fatalf("ParseCategory(%q) ok = %v, want %v", tc.raw, ok, tc.ok)
		}
		if got != tc.want {
			t.Fatalf("ParseCategory(%q) = %q, want %q", tc.raw, got, tc.want)
		}
	}
}

func TestCategoryValid(t *testing.T) {
	t.Parallel()

	for _, c := range Categories {
		if !c.Valid() {
			t.Fatalf("category %q should be valid", c)
		}
	}
	if Category("unknown").Valid() {
		t.Fatal("unknown category should not be valid")
	}
}
