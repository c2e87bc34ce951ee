package domain_test

import (
	"testing"

	"bidline/internal/domain"
)

func TestAgencyMatches(t *testing.T) {
	cases := []struct {
		agency, target string
		want           bool
	}{
		{"Department of Veterans Affairs", "VA", true},
		{"VA", "Department of Veterans Affairs", true},
		{"Department of Defense", "DoD", true},
		{"Department of Homeland Security", "DHS", true},
		{"Dept of Health and Human Services", "HHS", true},
		{"General Services Administration", "GSA", true},
		{"Department of Veterans Affairs", "veterans affairs", true},
		{"Securities and Exchange Commission", "VA", false},
		{"", "VA", false},
		{"Department of Veterans Affairs", "", false},
	}
	for _, c := range cases {
		if got := domain.AgencyMatches(c.agency, c.target); got != c.want {
			t.Errorf("AgencyMatches(%q, %q) = %v, want %v", c.agency, c.target, got, c.want)
		}
	}
}
