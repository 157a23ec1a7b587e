package progression

// NoticeKind .
type NoticeKind string

const (
	NoticeCompleted NoticeKind = "completed"
	NoticeUnlocked  NoticeKind = "unlocked"
	NoticeError     NoticeKind = "error"
)

// Notice learner-visible outcome of a progression event
type Notice struct {
	Kind     NoticeKind `json:"kind"`
	CourseID string     `json:"course_id"`
	LessonID string     `json:"lesson_id"`
	Message  string     `json:"message"`
}

// Notifier receives notices, it is called without the session lock held
type Notifier func(Notice)
