package models

type ExperienceTier string

const (
	TierJunior ExperienceTier = "junior"
	TierMiddle ExperienceTier = "middle"
	TierSenior ExperienceTier = "senior"
)

// TierForYears maps years of experience to a tier. Nil years yields an empty tier.
func TierForYears(years *int) ExperienceTier {
	if years == nil {
		return ""
	}
	switch {
	case *years < 1:
		return TierJunior
	case *years <= 3:
		return TierMiddle
	default:
		return TierSenior
	}
}
