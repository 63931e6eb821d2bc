package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionActive      ErrCode = "SESSION_ALREADY_ACTIVE"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrTokenExpired       ErrCode = "TOKEN_EXPIRED"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrForbidden         ErrCode = "FORBIDDEN"
	ErrStudentAccessOnly ErrCode = "STUDENT_ACCESS_ONLY"
	ErrTeacherAccessOnly ErrCode = "TEACHER_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam lifecycle ────────────────────────────────────────────────
	ErrExamNotAvailable  ErrCode = "EXAM_NOT_AVAILABLE"
	ErrInvalidEntryToken ErrCode = "INVALID_ENTRY_TOKEN"
	ErrExamNotPublished  ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotDraft      ErrCode = "EXAM_NOT_DRAFT"
	ErrNotExamAuthor     ErrCode = "NOT_EXAM_AUTHOR"
	ErrNoQuestions       ErrCode = "NO_QUESTIONS"

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	ErrAttemptFinished     ErrCode = "ATTEMPT_FINISHED"
	ErrAttemptDisqualified ErrCode = "ATTEMPT_DISQUALIFIED"
	ErrNoActiveAttempt     ErrCode = "NO_ACTIVE_ATTEMPT"
	ErrAnswerMismatch      ErrCode = "ANSWER_TYPE_MISMATCH"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Email/NISN atau kata sandi salah."
	case ErrSessionActive:
		return "Anda sudah login di perangkat lain."
	case ErrSessionInvalidated:
		return "Sesi Anda telah berakhir. Silakan login kembali."
	case ErrTokenRequired:
		return "Token autentikasi diperlukan."
	case ErrTokenInvalid:
		return "Token autentikasi tidak valid."
	case ErrTokenExpired:
		return "Token autentikasi telah kedaluwarsa."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "Anda tidak memiliki izin untuk mengakses sumber daya ini."
	case ErrStudentAccessOnly:
		return "Sumber daya ini terbatas untuk siswa."
	case ErrTeacherAccessOnly:
		return "Sumber daya ini terbatas untuk guru."

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
	case ErrConflict:
		return "Sumber daya sudah ada."

	// ─── Exam lifecycle ────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "Ujian ini saat ini tidak tersedia."
	case ErrInvalidEntryToken:
		return "Token masuk ujian tidak valid."
	case ErrExamNotPublished:
		return "Ujian ini belum dipublikasikan."
	case ErrExamNotDraft:
		return "Ujian ini tidak dalam status DRAFT."
	case ErrNotExamAuthor:
		return "Anda bukan pembuat ujian ini."
	case ErrNoQuestions:
		return "Ujian ini tidak memiliki pertanyaan."

	// ─── Attempt lifecycle ─────────────────────────────────────────────
	case ErrAttemptFinished:
		return "Ujian Anda sudah selesai dan tidak dapat diubah."
	case ErrAttemptDisqualified:
		return "Anda telah didiskualifikasi dari ujian ini."
	case ErrNoActiveAttempt:
		return "Tidak ada ujian yang sedang berlangsung."
	case ErrAnswerMismatch:
		return "Format jawaban tidak sesuai dengan jenis pertanyaan."

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
