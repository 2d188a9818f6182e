package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTokenRequired ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid  ErrCode = "TOKEN_INVALID"
	ErrTokenExpired  ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden        ErrCode = "FORBIDDEN"
	ErrPermissionDenied ErrCode = "PERMISSION_DENIED"
	ErrNotYourAttempt   ErrCode = "NOT_YOUR_ATTEMPT"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound     ErrCode = "NOT_FOUND"
	ErrQuizNotFound ErrCode = "QUIZ_NOT_FOUND"
	ErrConflict     ErrCode = "CONFLICT"

	// ─── Quiz access ───────────────────────────────────────────────────
	ErrQuizNotAvailable ErrCode = "QUIZ_NOT_AVAILABLE"
	ErrWrongPassword    ErrCode = "WRONG_PASSWORD"
	ErrQuizHasAttempts  ErrCode = "QUIZ_HAS_ATTEMPTS"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptNotFound    ErrCode = "ATTEMPT_NOT_FOUND"
	ErrAttemptFinished    ErrCode = "ATTEMPT_FINISHED"
	ErrAttemptInProgress  ErrCode = "ATTEMPT_IN_PROGRESS"
	ErrPageNotAccessible  ErrCode = "PAGE_NOT_ACCESSIBLE"
	ErrQuestionBlocked    ErrCode = "QUESTION_BLOCKED"
	ErrRedoNotAllowed     ErrCode = "REDO_NOT_ALLOWED"
	ErrQuestionNotDone    ErrCode = "QUESTION_NOT_FINISHED"
	ErrNoRandomQuestions  ErrCode = "NOT_ENOUGH_RANDOM_QUESTIONS"
	ErrNotPreview         ErrCode = "NOT_A_PREVIEW"
	ErrNoQuestions        ErrCode = "NO_QUESTIONS"
	ErrInvalidSlot        ErrCode = "INVALID_SLOT"
	ErrBuildOnLastMissing ErrCode = "NO_PREVIOUS_ATTEMPT"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrPermissionDenied:
		return "Izin ditolak."
	case ErrNotYourAttempt:
		return "Percobaan kuis ini bukan milik Anda."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validasi gagal. Silakan periksa masukan Anda."
	case ErrInvalidID:
		return "Format ID tidak valid."
	case ErrInvalidPayload:
		return "Payload permintaan tidak valid."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Sumber daya tidak ditemukan."
	case ErrQuizNotFound:
		return "Kuis tidak ditemukan."
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Quiz access ───────────────────────────────────────────────────
	case ErrQuizNotAvailable:
		return "Kuis ini saat ini tidak tersedia untuk Anda."
	case ErrWrongPassword:
		return "Kata sandi kuis salah."
	case ErrQuizHasAttempts:
		return "Kuis ini sudah memiliki percobaan sehingga tata letaknya tidak dapat diubah."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrAttemptNotFound:
		return "Percobaan kuis tidak ditemukan."
	case ErrAttemptFinished:
		return "Percobaan kuis ini sudah selesai."
	case ErrAttemptInProgress:
		return "Percobaan kuis lain sedang dimulai. Silakan coba lagi."
	case ErrPageNotAccessible:
		return "Halaman ini tidak dapat diakses."
	case ErrQuestionBlocked:
		return "Selesaikan pertanyaan sebelumnya terlebih dahulu."
	case ErrRedoNotAllowed:
		return "Pertanyaan ini tidak dapat diulang."
	case ErrQuestionNotDone:
		return "Pertanyaan ini belum selesai."
	case ErrNoRandomQuestions:
		return "Bank soal tidak memiliki cukup pertanyaan acak."
	case ErrNotPreview:
		return "Percobaan ini bukan pratinjau."
	case ErrNoQuestions:
		return "Kuis ini tidak memiliki pertanyaan."
	case ErrInvalidSlot:
		return "Nomor slot tidak valid."
	case ErrBuildOnLastMissing:
		return "Percobaan sebelumnya tidak ditemukan."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Terlalu banyak permintaan. Silakan coba lagi nanti."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
