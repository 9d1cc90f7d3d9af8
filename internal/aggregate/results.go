package aggregate

import (
	"math"
	"sort"

	"github.com/noah-isme/coaching-console/internal/models"
)

// Grades in descending order with their lower bounds.
var gradeBands = []struct {
	grade string
	min   float64
}{
	{"A+", 90},
	{"A", 80},
	{"B", 70},
	{"C", 60},
	{"D", 50},
	{"F", 0},
}

// GradeCount is one bucket of a grade distribution.
type GradeCount struct {
	Grade string `json:"grade"`
	Count int    `json:"count"`
}

// SubjectCount is the number of tests held for a subject.
type SubjectCount struct {
	Subject string `json:"subject"`
	Tests   int    `json:"tests"`
}

// TestAverage summarises the results of one test.
type TestAverage struct {
	TestID            string  `json:"test_id"`
	Name              string  `json:"name"`
	Subject           string  `json:"subject"`
	Results           int     `json:"results"`
	AveragePercentage float64 `json:"average_percentage"`
}

// ResultPercentage returns marks/total as a percentage with two decimals.
func ResultPercentage(marks, total float64) float64 {
	if total <= 0 {
		return 0
	}
	return math.Round(marks/total*10000) / 100
}

// GradeFor maps a percentage onto a letter grade.
func GradeFor(percentage float64) string {
	for _, band := range gradeBands {
		if percentage >= band.min {
			return band.grade
		}
	}
	return gradeBands[len(gradeBands)-1].grade
}

// GradeDistribution counts results per grade, best grade first. Empty grades are kept.
func GradeDistribution(results []models.TestResult) []GradeCount {
	counts := make(map[string]int, len(gradeBands))
	for _, r := range results {
		counts[GradeFor(r.Percentage)]++
	}
	out := make([]GradeCount, 0, len(gradeBands))
	for _, band := range gradeBands {
		out = append(out, GradeCount{Grade: band.grade, Count: counts[band.grade]})
	}
	return out
}

// SubjectDistribution counts tests per subject, most frequent first.
func SubjectDistribution(tests []models.Test) []SubjectCount {
	index := make(map[string]int)
	var out []SubjectCount
	for _, t := range tests {
		if i, ok := index[t.Subject]; ok {
			out[i].Tests++
			continue
		}
		index[t.Subject] = len(out)
		out = append(out, SubjectCount{Subject: t.Subject, Tests: 1})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Tests != out[j].Tests {
			return out[i].Tests > out[j].Tests
		}
		return out[i].Subject < out[j].Subject
	})
	return out
}

// TestAverages averages result percentages per test, keeping the order of tests.
func TestAverages(tests []models.Test, results []models.TestResult) []TestAverage {
	type acc struct {
		n   int
		sum float64
	}
	byTest := make(map[string]*acc, len(tests))
	for _, r := range results {
		a, ok := byTest[r.TestID]
		if !ok {
			a = &acc{}
			byTest[r.TestID] = a
		}
		a.n++
		a.sum += r.Percentage
	}
	out := make([]TestAverage, 0, len(tests))
	for _, t := range tests {
		avg := TestAverage{TestID: t.ID, Name: t.Name, Subject: t.Subject}
		if a, ok := byTest[t.ID]; ok && a.n > 0 {
			avg.Results = a.n
			avg.AveragePercentage = math.Round(a.sum/float64(a.n)*100) / 100
		}
		out = append(out, avg)
	}
	return out
}

func roundPercent(v float64) int {
	return int(math.Floor(v + 0.5))
}
