package service

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/coaching-console/internal/aggregate"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
	"github.com/noah-isme/coaching-console/pkg/export"
)

// ExportFormat selects the rendering of an export.
type ExportFormat string

const (
	ExportCSV ExportFormat = "csv"
	ExportPDF ExportFormat = "pdf"
)

// ParseExportFormat accepts csv or pdf in any case.
func ParseExportFormat(raw string) (ExportFormat, error) {
	switch ExportFormat(strings.ToLower(strings.TrimSpace(raw))) {
	case ExportCSV, "":
		return ExportCSV, nil
	case ExportPDF:
		return ExportPDF, nil
	}
	return "", appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "unsupported export format"),
		map[string]string{"format": "oneof=csv pdf"})
}

// ExportFile is a rendered export ready to be served.
type ExportFile struct {
	Filename    string
	ContentType string
	Data        []byte
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ExportService renders the dashboard selections as downloadable files. Exports use the
// full selection rather than the dashboard's capped lists.
type ExportService struct {
	students  rosterReader
	csv       csvRenderer
	pdf       pdfRenderer
	threshold int
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers use the pkg/export defaults.
func NewExportService(students rosterReader, threshold int, logger *zap.Logger, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if threshold <= 0 {
		threshold = aggregate.DefaultLowAttendanceThreshold
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{students: students, csv: csv, pdf: pdf, threshold: threshold, logger: logger, now: time.Now}
}

// LowAttendance exports every student below the attendance threshold, lowest first.
func (s *ExportService) LowAttendance(ctx context.Context, format ExportFormat) (*ExportFile, error) {
	roster, err := s.students.List(ctx)
	if err != nil {
		return nil, err
	}
	selected := aggregate.LowAttendance(roster.Data, s.threshold, len(roster.Data))
	rows := make([]map[string]string, 0, len(selected))
	for _, st := range selected {
		rows = append(rows, map[string]string{
			"name":       st.Name,
			"class":      string(st.Class),
			"contact":    st.ContactNumber,
			"attendance": strconv.Itoa(st.AttendancePercentage) + "%",
		})
	}
	data := export.Dataset{
		Title: fmt.Sprintf("Students below %d%% attendance", s.threshold),
		Columns: []export.Column{
			{Key: "name", Label: "Name", Width: 2},
			{Key: "class", Label: "Class"},
			{Key: "contact", Label: "Contact", Width: 1.5},
			{Key: "attendance", Label: "Attendance", Align: export.AlignRight},
		},
		Rows: rows,
	}
	return s.render(data, "low-attendance", format)
}

// PendingFees exports every student with an unpaid balance, largest balance first.
func (s *ExportService) PendingFees(ctx context.Context, format ExportFormat) (*ExportFile, error) {
	roster, err := s.students.List(ctx)
	if err != nil {
		return nil, err
	}
	selected := aggregate.PendingFees(roster.Data, len(roster.Data))
	rows := make([]map[string]string, 0, len(selected))
	for _, st := range selected {
		rows = append(rows, map[string]string{
			"name":        st.Name,
			"class":       string(st.Class),
			"status":      string(aggregate.EffectiveFeeStatus(st)),
			"total":       money(st.TotalFees),
			"paid":        money(st.PaidFees),
			"outstanding": money(st.Outstanding()),
			"contact":     st.ContactNumber,
		})
	}
	data := export.Dataset{
		Title: "Pending fees",
		Columns: []export.Column{
			{Key: "name", Label: "Name", Width: 2},
			{Key: "class", Label: "Class"},
			{Key: "status", Label: "Status"},
			{Key: "total", Label: "Total", Align: export.AlignRight},
			{Key: "paid", Label: "Paid", Align: export.AlignRight},
			{Key: "outstanding", Label: "Outstanding", Align: export.AlignRight},
			{Key: "contact", Label: "Contact", Width: 1.5},
		},
		Rows: rows,
	}
	return s.render(data, "pending-fees", format)
}

func (s *ExportService) render(data export.Dataset, name string, format ExportFormat) (*ExportFile, error) {
	now := s.now().UTC()
	data.GeneratedAt = now
	filename := fmt.Sprintf("%s-%s.%s", name, now.Format("20060102"), format)

	var (
		out         []byte
		err         error
		contentType string
	)
	switch format {
	case ExportCSV:
		out, err = s.csv.Render(data)
		contentType = "text/csv"
	case ExportPDF:
		out, err = s.pdf.Render(data)
		contentType = "application/pdf"
	default:
		_, err = ParseExportFormat(string(format))
		return nil, err
	}
	if err != nil {
		s.logger.Error("failed to render export", zap.String("export", name), zap.String("format", string(format)), zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	s.logger.Info("export rendered", zap.String("file", filename), zap.Int("rows", len(data.Rows)))
	return &ExportFile{Filename: filename, ContentType: contentType, Data: out}, nil
}

func money(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
