package models

import "testing"

func TestIsTransitionAllowed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from, to ApplicationStatus
		want     bool
	}{
		{StatusPending, StatusSent, true},
		{StatusPending, StatusRejected, true},
		{StatusSent, StatusResponded, true},
		{StatusSent, StatusRejected, true},
		{StatusPending, StatusResponded, false},
		{StatusSent, StatusPending, false},
		{StatusResponded, StatusRejected, false},
		{StatusRejected, StatusSent, false},
	}

	for _, tt := range tests {
		if got := IsTransitionAllowed(tt.from, tt.to); got != tt.want {
			t.Fatalf("%s -> %s: expected %v, got %v", tt.from, tt.to, tt.want, got)
		}
	}
}

func TestParseStatus(t *testing.T) {
	t.Parallel()

	if st, err := ParseStatus("sent"); err != nil || st != StatusSent {
		t.Fatalf("unexpected result: %q %v", st, err)
	}
	if _, err := ParseStatus("interview"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestTierForYears(t *testing.T) {
	t.Parallel()

	years := func(v int) *int { return &v }

	tests := []struct {
		name  string
		years *int
		want  ExperienceTier
	}{
		{"unknown", nil, ""},
		{"no experience", years(0), TierJunior},
		{"one year", years(1), TierMiddle},
		{"three years", years(3), TierMiddle},
		{"four years", years(4), TierSenior},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TierForYears(tt.years); got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestUserDisplayName(t *testing.T) {
	t.Parallel()

	u := &User{Email: "ivan.petrov@example.com"}
	if got := u.DisplayName(); got != "ivan.petrov" {
		t.Fatalf("unexpected display name: %q", got)
	}

	u.FullName = "Ivan Petrov"
	if got := u.DisplayName(); got != "Ivan Petrov" {
		t.Fatalf("unexpected display name: %q", got)
	}
}

func TestPostingScoringText(t *testing.T) {
	t.Parallel()

	p := &Posting{Title: "Go Developer", Requirements: "Go, SQL"}
	if got := p.ScoringText(); got != "Go Developer\nGo, SQL" {
		t.Fatalf("unexpected scoring text: %q", got)
	}

	p.Description = "  Build services  "
	if got := p.ScoringText(); got != "Build services" {
		t.Fatalf("unexpected scoring text: %q", got)
	}
}
