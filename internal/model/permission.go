package model

// Permission represents a capability code carried in a user's token.
type Permission string

const (
	// PermissionQuizAttempt allows starting and continuing attempts.
	PermissionQuizAttempt Permission = "quiz:attempt"

	// PermissionQuizPreview allows preview attempts, which bypass attempt limits and never count.
	PermissionQuizPreview Permission = "quiz:preview"

	// PermissionQuizIgnoreTimeLimits exempts the user from the quiz time limit.
	PermissionQuizIgnoreTimeLimits Permission = "quiz:ignoretimelimits"

	// PermissionQuizManage allows repaginating quizzes, purging attempts and running the sweep.
	PermissionQuizManage Permission = "quiz:manage"
)

// AllPermissions is a slice of all available permissions.
var AllPermissions = []Permission{
	PermissionQuizAttempt,
	PermissionQuizPreview,
	PermissionQuizIgnoreTimeLimits,
	PermissionQuizManage,
}
