package mutation

// Operation names a kind of remote write.
type Operation string

const (
	OpCreateStudent            Operation = "createStudent"
	OpUpdateStudent            Operation = "updateStudent"
	OpDeleteStudent            Operation = "deleteStudent"
	OpUpsertAttendance         Operation = "upsertAttendance"
	OpSyncAttendancePercentage Operation = "syncAttendancePercentage"
	OpCreateTest               Operation = "createTest"
	OpRecordResult             Operation = "recordResult"
	OpSetQuestionFavorite      Operation = "setQuestionFavorite"
)

// DefaultInvalidations lists the cache keys each console write makes stale. Favorites
// are patched in place and invalidate nothing.
var DefaultInvalidations = map[Operation][]string{
	OpCreateStudent:            {"students"},
	OpUpdateStudent:            {"students", "student:{id}"},
	OpDeleteStudent:            {"students", "student:{id}", "attendance:{id}:*", "student_results:{id}"},
	OpUpsertAttendance:         {"attendance:{studentId}:*", "attendance_day:{date}"},
	OpSyncAttendancePercentage: {"students", "student:{id}"},
	OpCreateTest:               {"tests"},
	OpRecordResult:             {"test_results:{testId}", "student_results:{studentId}"},
	OpSetQuestionFavorite:      {},
}
