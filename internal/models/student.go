package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"
)

// FeeStatus is the fee settlement state stored on a student record.
type FeeStatus string

const (
	FeeStatusPaid    FeeStatus = "Paid"
	FeeStatusPending FeeStatus = "Pending"
	FeeStatusPartial FeeStatus = "Partial"
)

// Valid returns true when the status is a supported value.
func (s FeeStatus) Valid() bool {
	switch s {
	case FeeStatusPaid, FeeStatusPending, FeeStatusPartial:
		return true
	default:
		return false
	}
}

// ClassLabel is the ordinal group label of a student. Stored data carries it either as
// text ("Class 10", "10th") or as a bare number.
type ClassLabel string

// Key returns the normalised grouping key, so "Class 10", "10th", "10" and 10 coincide.
// Non-numeric labels are kept as written: "Class A" and "A" stay separate groups.
func (c ClassLabel) Key() string {
	label := strings.TrimSpace(string(c))
	if n, ok := ordinal(label); ok {
		return strconv.Itoa(n)
	}
	if len(label) > 5 && strings.EqualFold(label[:5], "class") && unicode.IsSpace(rune(label[5])) {
		if n, ok := ordinal(strings.TrimSpace(label[5:])); ok {
			return strconv.Itoa(n)
		}
	}
	return label
}

// ordinal parses "10" or "10th".
func ordinal(label string) (int, bool) {
	if n, err := strconv.Atoi(label); err == nil {
		return n, true
	}
	lower := strings.ToLower(label)
	for _, suffix := range []string{"st", "nd", "rd", "th"} {
		if strings.HasSuffix(lower, suffix) {
			n, err := strconv.Atoi(label[:len(label)-len(suffix)])
			return n, err == nil
		}
	}
	return 0, false
}

// Number returns the numeric class when the key parses as an integer.
func (c ClassLabel) Number() (int, bool) {
	n, err := strconv.Atoi(c.Key())
	if err != nil {
		return 0, false
	}
	return n, true
}

// UnmarshalJSON accepts both JSON strings and numbers.
func (c *ClassLabel) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ClassLabel(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("class label: %w", err)
	}
	*c = ClassLabel(n.String())
	return nil
}

// Scan implements sql.Scanner for text and integer columns.
func (c *ClassLabel) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*c = ""
	case string:
		*c = ClassLabel(v)
	case []byte:
		*c = ClassLabel(string(v))
	case int64:
		*c = ClassLabel(strconv.FormatInt(v, 10))
	case float64:
		*c = ClassLabel(strconv.FormatFloat(v, 'f', -1, 64))
	default:
		return fmt.Errorf("unsupported class label type %T", src)
	}
	return nil
}

// Value implements driver.Valuer.
func (c ClassLabel) Value() (driver.Value, error) {
	return string(c), nil
}

// Student represents a learner registered in the institute.
type Student struct {
	ID                   string     `db:"id" json:"id"`
	Name                 string     `db:"name" json:"name"`
	Class                ClassLabel `db:"class" json:"class"`
	FatherName           string     `db:"father_name" json:"father_name"`
	MotherName           string     `db:"mother_name" json:"mother_name"`
	ContactNumber        string     `db:"contact_number" json:"contact_number"`
	AlternateContact     string     `db:"alternate_contact" json:"alternate_contact"`
	Address              string     `db:"address" json:"address"`
	TotalFees            float64    `db:"total_fees" json:"total_fees"`
	PaidFees             float64    `db:"paid_fees" json:"paid_fees"`
	FeeStatus            FeeStatus  `db:"fee_status" json:"fee_status"`
	AttendancePercentage int        `db:"attendance_percentage" json:"attendance_percentage"`
	JoinDate             time.Time  `db:"join_date" json:"join_date"`
	CreatedAt            time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt            time.Time  `db:"updated_at" json:"updated_at"`
}

// Outstanding returns the unpaid fee amount as stored; negative values are surfaced as-is.
func (s Student) Outstanding() float64 {
	return s.TotalFees - s.PaidFees
}

// StudentPatch carries the fields an update may change. Nil fields are left untouched.
type StudentPatch struct {
	Name             *string     `json:"name,omitempty" validate:"omitempty,min=1,max=120"`
	Class            *ClassLabel `json:"class,omitempty" validate:"omitempty,min=1"`
	FatherName       *string     `json:"father_name,omitempty"`
	MotherName       *string     `json:"mother_name,omitempty"`
	ContactNumber    *string     `json:"contact_number,omitempty" validate:"omitempty,max=20"`
	AlternateContact *string     `json:"alternate_contact,omitempty" validate:"omitempty,max=20"`
	Address          *string     `json:"address,omitempty"`
	TotalFees        *float64    `json:"total_fees,omitempty" validate:"omitempty,gte=0"`
	PaidFees         *float64    `json:"paid_fees,omitempty" validate:"omitempty,gte=0"`
	FeeStatus        *FeeStatus  `json:"fee_status,omitempty" validate:"omitempty,oneof=Paid Pending Partial"`
}

// StudentInput is the payload for registering a student. An empty FeeStatus is derived
// from the fee amounts.
type StudentInput struct {
	Name             string     `json:"name" validate:"required,max=120"`
	Class            ClassLabel `json:"class" validate:"required"`
	FatherName       string     `json:"father_name"`
	MotherName       string     `json:"mother_name"`
	ContactNumber    string     `json:"contact_number" validate:"omitempty,max=20"`
	AlternateContact string     `json:"alternate_contact" validate:"omitempty,max=20"`
	Address          string     `json:"address"`
	TotalFees        float64    `json:"total_fees" validate:"gte=0"`
	PaidFees         float64    `json:"paid_fees" validate:"gte=0"`
	FeeStatus        FeeStatus  `json:"fee_status" validate:"omitempty,oneof=Paid Pending Partial"`
	JoinDate         time.Time  `json:"join_date"`
}

// Empty reports whether the patch changes nothing.
func (p StudentPatch) Empty() bool {
	return p.Name == nil && p.Class == nil && p.FatherName == nil && p.MotherName == nil &&
		p.ContactNumber == nil && p.AlternateContact == nil && p.Address == nil &&
		p.TotalFees == nil && p.PaidFees == nil && p.FeeStatus == nil
}

// Class is a view over students sharing a class label; it is never persisted.
type Class struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	StudentCount int    `json:"student_count"`
}
