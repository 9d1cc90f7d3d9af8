package export

import (
	"fmt"
	"time"
)

// Align positions a column's cell text.
type Align string

const (
	AlignLeft   Align = "L"
	AlignCenter Align = "C"
	AlignRight  Align = "R"
)

// Column describes one exported field. Width is a relative weight; zero counts as one.
type Column struct {
	Key   string
	Label string
	Align Align
	Width float64
}

func (c Column) label() string {
	if c.Label != "" {
		return c.Label
	}
	return c.Key
}

func (c Column) weight() float64 {
	if c.Width <= 0 {
		return 1
	}
	return c.Width
}

// Dataset is a titled table keyed by column.
type Dataset struct {
	Title       string
	Columns     []Column
	Rows        []map[string]string
	GeneratedAt time.Time
}

func (d Dataset) validate(format string) error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("%s requires at least one column", format)
	}
	return nil
}

func (d Dataset) record(row map[string]string) []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = row[col.Key]
	}
	return out
}
