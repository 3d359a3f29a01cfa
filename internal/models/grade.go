package models

// Grade is the letter health grade of a report.
type Grade string

const (
	GradeAPlus Grade = "A+"
	GradeA     Grade = "A"
	GradeB     Grade = "B"
	GradeC     Grade = "C"
	GradeD     Grade = "D"
)

// CalculateGrade maps critical and alert counts to a letter grade:
// more than 2 critical is D, any critical is C, more than 5 alerts is B,
// any alert is A, otherwise A+.
func CalculateGrade(critical, alert int) Grade {
	switch {
	case critical > 2:
		return GradeD
	case critical > 0:
		return GradeC
	case alert > 5:
		return GradeB
	case alert > 0:
		return GradeA
	}
	return GradeAPlus
}

// Rank orders grades from worst (0) to best (4). Unknown grades rank -1.
func (g Grade) Rank() int {
	switch g {
	case GradeD:
		return 0
	case GradeC:
		return 1
	case GradeB:
		return 2
	case GradeA:
		return 3
	case GradeAPlus:
		return 4
	}
	return -1
}

// GradeMessage returns the one-line verdict for a grade.
func GradeMessage(g Grade) string {
	switch g {
	case GradeD:
		return "several critical findings, treat the site as compromised until proven otherwise"
	case GradeC:
		return "critical finding present, investigate immediately"
	case GradeB:
		return "many alerts, review configuration hygiene"
	case GradeA:
		return "a few alerts, nothing critical"
	case GradeAPlus:
		return "no alerts or critical findings"
	}
	return "unknown grade"
}
