package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/coaching-console/internal/models"
	"github.com/noah-isme/coaching-console/internal/questionbank"
	"github.com/noah-isme/coaching-console/internal/service"
	appErrors "github.com/noah-isme/coaching-console/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func perform(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

type fakeStudents struct {
	view    service.View[[]models.Student]
	created models.StudentInput
	err     error
}

func (f *fakeStudents) List(ctx context.Context) (service.View[[]models.Student], error) {
	return f.view, f.err
}

func (f *fakeStudents) Get(ctx context.Context, id string) (service.View[models.Student], error) {
	for _, s := range f.view.Data {
		if s.ID == id {
			return service.View[models.Student]{Data: s}, nil
		}
	}
	return service.View[models.Student]{}, appErrors.Clone(appErrors.ErrNotFound, "student not found")
}

func (f *fakeStudents) Classes(ctx context.Context) (service.View[[]models.Class], error) {
	return service.View[[]models.Class]{}, nil
}

func (f *fakeStudents) Create(ctx context.Context, input models.StudentInput) (*models.Student, error) {
	f.created = input
	if f.err != nil {
		return nil, f.err
	}
	return &models.Student{ID: "new", Name: input.Name}, nil
}

func (f *fakeStudents) Update(ctx context.Context, id string, patch models.StudentPatch) (*models.Student, error) {
	return &models.Student{ID: id}, nil
}

func (f *fakeStudents) Delete(ctx context.Context, id string) error { return nil }

func TestStudentHandlerListCarriesFreshness(t *testing.T) {
	students := &fakeStudents{view: service.View[[]models.Student]{
		Data:      []models.Student{{ID: "s1", Name: "Asha"}},
		Stale:     true,
		Error:     appErrors.Clone(appErrors.ErrNetwork, "offline"),
		UpdatedAt: time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}}
	h := NewStudentHandler(students)
	r := gin.New()
	r.GET("/students", h.List)
	r.GET("/students/:id", h.Get)

	w, env := perform(t, r, http.MethodGet, "/students", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, env.Meta["stale"])
	assert.Equal(t, "2024-03-01T09:00:00Z", env.Meta["updated_at"])
	assert.NotNil(t, env.Meta["refresh_error"])

	w, env = perform(t, r, http.MethodGet, "/students/s9", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestStudentHandlerCreate(t *testing.T) {
	students := &fakeStudents{}
	h := NewStudentHandler(students)
	r := gin.New()
	r.POST("/students", h.Create)

	w, _ := perform(t, r, http.MethodPost, "/students", map[string]interface{}{"name": "Asha", "class": 10, "total_fees": 500})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, models.ClassLabel("10"), students.created.Class)

	students.err = appErrors.WithFields(appErrors.Clone(appErrors.ErrValidation, "invalid student payload"), map[string]string{"name": "required"})
	w, env := perform(t, r, http.MethodPost, "/students", map[string]interface{}{"class": "9"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "required", env.Error.Fields["name"])
}

type fakeAttendance struct {
	period models.DateRange
	day    time.Time
	marks  []models.AttendanceMark
}

func (f *fakeAttendance) ForStudent(ctx context.Context, studentID string, period models.DateRange) (service.View[service.StudentAttendance], error) {
	f.period = period
	return service.View[service.StudentAttendance]{Data: service.StudentAttendance{StudentID: studentID}}, nil
}

func (f *fakeAttendance) ForDay(ctx context.Context, day time.Time) (service.View[service.DayAttendance], error) {
	f.day = day
	return service.View[service.DayAttendance]{}, nil
}

func (f *fakeAttendance) Mark(ctx context.Context, day time.Time, marks []models.AttendanceMark) ([]models.AttendanceRecord, error) {
	f.day, f.marks = day, marks
	return nil, nil
}

func TestAttendanceHandlerParsesDates(t *testing.T) {
	att := &fakeAttendance{}
	h := NewAttendanceHandler(att)
	r := gin.New()
	r.GET("/students/:id/attendance", h.ForStudent)
	r.GET("/attendance", h.ForDay)
	r.POST("/attendance", h.Mark)

	w, _ := perform(t, r, http.MethodGet, "/students/s1/attendance?from=2024-03-01&to=2024-03-31", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC), att.period.To)

	w, env := perform(t, r, http.MethodGet, "/students/s1/attendance?from=03/01/2024", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "datetime=2006-01-02", env.Error.Fields["from"])

	w, env = perform(t, r, http.MethodGet, "/attendance", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "required", env.Error.Fields["date"])

	w, _ = perform(t, r, http.MethodPost, "/attendance", map[string]interface{}{
		"date":  "2024-03-05",
		"marks": []map[string]string{{"student_id": "s1", "status": "Present"}},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), att.day)
	require.Len(t, att.marks, 1)
	assert.Equal(t, models.AttendanceStatusPresent, att.marks[0].Status)
}

type fakeExports struct{ format service.ExportFormat }

func (f *fakeExports) LowAttendance(ctx context.Context, format service.ExportFormat) (*service.ExportFile, error) {
	f.format = format
	return &service.ExportFile{Filename: "low.csv", ContentType: "text/csv", Data: []byte("Name\n")}, nil
}

func (f *fakeExports) PendingFees(ctx context.Context, format service.ExportFormat) (*service.ExportFile, error) {
	f.format = format
	return &service.ExportFile{Filename: "fees.pdf", ContentType: "application/pdf", Data: []byte("%PDF")}, nil
}

func TestExportHandler(t *testing.T) {
	exports := &fakeExports{}
	h := NewExportHandler(exports)
	r := gin.New()
	r.GET("/exports/low-attendance", h.LowAttendance)
	r.GET("/exports/pending-fees", h.PendingFees)

	w, _ := perform(t, r, http.MethodGet, "/exports/pending-fees?format=pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.ExportPDF, exports.format)
	assert.Equal(t, `attachment; filename="fees.pdf"`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))

	w, env := perform(t, r, http.MethodGet, "/exports/low-attendance?format=xlsx", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "oneof=csv pdf", env.Error.Fields["format"])
}

type fakeBank struct {
	path     service.QuestionBankPath
	favorite *bool
}

func (f *fakeBank) Browse(ctx context.Context, path service.QuestionBankPath) (questionbank.Snapshot, error) {
	f.path = path
	return questionbank.Snapshot{Subjects: []models.Subject{{ID: "phys"}}}, nil
}

func (f *fakeBank) SetFavorite(ctx context.Context, topicID, questionID string, favorite bool) (models.Question, error) {
	f.favorite = &favorite
	return models.Question{ID: questionID, TopicID: topicID, IsFavorite: favorite}, nil
}

func TestQuestionBankHandler(t *testing.T) {
	bank := &fakeBank{}
	h := NewQuestionBankHandler(bank)
	r := gin.New()
	r.GET("/question-bank", h.Browse)
	r.PUT("/question-bank/topics/:topicId/questions/:id/favorite", h.SetFavorite)

	w, _ := perform(t, r, http.MethodGet, "/question-bank?class_id=c10&subject_id=phys", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c10", bank.path.ClassID)
	assert.Equal(t, "phys", bank.path.SubjectID)

	w, env := perform(t, r, http.MethodPut, "/question-bank/topics/speed/questions/q1/favorite", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "required", env.Error.Fields["favorite"])
	assert.Nil(t, bank.favorite)

	w, _ = perform(t, r, http.MethodPut, "/question-bank/topics/speed/questions/q1/favorite", map[string]bool{"favorite": false})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, bank.favorite)
	assert.False(t, *bank.favorite)
}

type fakePreferences struct {
	values map[string]interface{}
}

func (f *fakePreferences) Get(ctx context.Context, key string, dest interface{}) bool {
	v, ok := f.values[key]
	if !ok {
		return false
	}
	raw, _ := json.Marshal(v)
	return json.Unmarshal(raw, dest) == nil
}

func (f *fakePreferences) Set(ctx context.Context, key string, value interface{}) {
	f.values[key] = value
}

func (f *fakePreferences) Reset(ctx context.Context) { f.values = map[string]interface{}{} }

func TestPreferenceHandler(t *testing.T) {
	prefs := &fakePreferences{values: map[string]interface{}{}}
	h := NewPreferenceHandler(prefs)
	r := gin.New()
	r.GET("/preferences/:key", h.Get)
	r.PUT("/preferences/:key", h.Set)

	w, _ := perform(t, r, http.MethodGet, "/preferences/theme", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, _ = perform(t, r, http.MethodPut, "/preferences/theme", map[string]string{"value": "dark"})
	require.Equal(t, http.StatusNoContent, w.Code)

	w, env := perform(t, r, http.MethodGet, "/preferences/theme", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"key":"theme","value":"dark"}`, string(env.Data))
}

func TestRespondViewPropagatesError(t *testing.T) {
	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		respondView(c, service.View[int]{}, appErrors.Clone(appErrors.ErrUnauthorized, "sign in"))
	})
	w, env := perform(t, r, http.MethodGet, "/x", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", env.Error.Code)
}

type fakeDashboard struct {
	view service.View[service.DashboardSummary]
}

func (f fakeDashboard) Summary(ctx context.Context) (service.View[service.DashboardSummary], error) {
	return f.view, nil
}

func TestDashboardHandlerSummary(t *testing.T) {
	h := NewDashboardHandler(fakeDashboard{view: service.View[service.DashboardSummary]{
		Data:     service.DashboardSummary{TotalStudents: 3, TotalClasses: 2},
		Fetching: true,
	}})
	r := gin.New()
	r.GET("/dashboard", h.Summary)

	w, env := perform(t, r, http.MethodGet, "/dashboard", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Server-Timing"), "summary;dur=")
	assert.Equal(t, true, env.Meta["fetching"])

	var summary service.DashboardSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.Equal(t, 3, summary.TotalStudents)
	assert.Equal(t, 2, summary.TotalClasses)
}
