package aggregate

import (
	"sort"
	"strings"

	"github.com/noah-isme/coaching-console/internal/models"
)

// Summary selections default to the console's dashboard sizes.
const (
	DefaultLowAttendanceThreshold = 75
	DefaultSummaryLimit           = 5
)

// UnassignedClass names the group of students without a class label.
const UnassignedClass = "Unassigned"

// FeeDistribution counts students per fee status.
type FeeDistribution struct {
	Paid    int `json:"paid"`
	Pending int `json:"pending"`
	Partial int `json:"partial"`
}

// FeeSummary totals the fee columns of a student set.
type FeeSummary struct {
	Students       int     `json:"students"`
	TotalFees      float64 `json:"total_fees"`
	Collected      float64 `json:"collected"`
	Outstanding    float64 `json:"outstanding"`
	CollectionRate int     `json:"collection_rate"`
}

// GroupByClass derives one Class per normalised class label. Numeric classes come first
// in ascending order, followed by the remaining labels in order of first appearance.
func GroupByClass(students []models.Student) []models.Class {
	index := make(map[string]int)
	var classes []models.Class
	for _, s := range students {
		key := s.Class.Key()
		if i, ok := index[key]; ok {
			classes[i].StudentCount++
			continue
		}
		name := strings.TrimSpace(string(s.Class))
		if key == "" {
			name = UnassignedClass
		} else if _, numeric := s.Class.Number(); numeric {
			name = key
		}
		index[key] = len(classes)
		classes = append(classes, models.Class{ID: key, Name: name, StudentCount: 1})
	}

	sort.SliceStable(classes, func(i, j int) bool {
		a, aNumeric := models.ClassLabel(classes[i].ID).Number()
		b, bNumeric := models.ClassLabel(classes[j].ID).Number()
		switch {
		case aNumeric && bNumeric:
			return a < b
		case aNumeric != bNumeric:
			return aNumeric
		default:
			return false
		}
	})
	return classes
}

// EffectiveFeeStatus returns the student's fee status, treating unknown values as Pending.
func EffectiveFeeStatus(s models.Student) models.FeeStatus {
	if s.FeeStatus.Valid() {
		return s.FeeStatus
	}
	return models.FeeStatusPending
}

// DeriveFeeStatus is the convention used when a record is written: fully paid, nothing
// paid, or in between.
func DeriveFeeStatus(totalFees, paidFees float64) models.FeeStatus {
	switch {
	case paidFees >= totalFees:
		return models.FeeStatusPaid
	case paidFees <= 0:
		return models.FeeStatusPending
	default:
		return models.FeeStatusPartial
	}
}

// FeeStatusDistribution counts students by fee status. Unknown or missing statuses are
// counted as Pending.
func FeeStatusDistribution(students []models.Student) FeeDistribution {
	var dist FeeDistribution
	for _, s := range students {
		switch EffectiveFeeStatus(s) {
		case models.FeeStatusPaid:
			dist.Paid++
		case models.FeeStatusPartial:
			dist.Partial++
		default:
			dist.Pending++
		}
	}
	return dist
}

// SummarizeFees totals fees as stored; overpayments are not clamped.
func SummarizeFees(students []models.Student) FeeSummary {
	summary := FeeSummary{Students: len(students)}
	for _, s := range students {
		summary.TotalFees += s.TotalFees
		summary.Collected += s.PaidFees
		summary.Outstanding += s.Outstanding()
	}
	if summary.TotalFees > 0 {
		summary.CollectionRate = roundPercent(summary.Collected / summary.TotalFees * 100)
	}
	return summary
}

// LowAttendance returns the students whose attendance is below threshold, lowest
// first, capped at limit. Non-positive arguments use the dashboard defaults.
func LowAttendance(students []models.Student, threshold, limit int) []models.Student {
	if threshold <= 0 {
		threshold = DefaultLowAttendanceThreshold
	}
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	var out []models.Student
	for _, s := range students {
		if s.AttendancePercentage < threshold {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].AttendancePercentage < out[j].AttendancePercentage
	})
	return capAt(out, limit)
}

// PendingFees returns students whose fee status is not Paid, largest outstanding amount
// first, capped at limit.
func PendingFees(students []models.Student, limit int) []models.Student {
	if limit <= 0 {
		limit = DefaultSummaryLimit
	}
	var out []models.Student
	for _, s := range students {
		if EffectiveFeeStatus(s) != models.FeeStatusPaid {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Outstanding() > out[j].Outstanding()
	})
	return capAt(out, limit)
}

func capAt(students []models.Student, limit int) []models.Student {
	if len(students) > limit {
		return students[:limit]
	}
	return students
}
