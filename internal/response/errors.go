package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound        ErrCode = "NOT_FOUND"
	ErrSessionNotFound ErrCode = "SESSION_NOT_FOUND"
	ErrPolicyNotFound  ErrCode = "POLICY_NOT_FOUND"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrInvalidTransition ErrCode = "INVALID_TRANSITION"
	ErrSessionExpired    ErrCode = "SESSION_EXPIRED"
	ErrQuizNotStartable  ErrCode = "QUIZ_NOT_STARTABLE"
	ErrQuizNotOpen       ErrCode = "QUIZ_WINDOW_NOT_OPEN"
	ErrQuizClosed        ErrCode = "QUIZ_WINDOW_CLOSED"

	// ─── Scoring ───────────────────────────────────────────────────────
	ErrPolicyMismatch ErrCode = "POLICY_MISMATCH"
	ErrInvalidPolicy  ErrCode = "INVALID_POLICY"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
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
	case ErrSessionNotFound:
		return "Sesi kuis tidak ditemukan."
	case ErrPolicyNotFound:
		return "Kebijakan penilaian tidak ditemukan."

	// ─── Session lifecycle ─────────────────────────────────────────────
	case ErrInvalidTransition:
		return "Tindakan ini tidak diperbolehkan pada status sesi saat ini."
	case ErrSessionExpired:
		return "Waktu sesi kuis telah habis."
	case ErrQuizNotStartable:
		return "Kuis ini saat ini tidak tersedia."
	case ErrQuizNotOpen:
		return "Kuis ini belum dibuka."
	case ErrQuizClosed:
		return "Kuis ini sudah ditutup."

	// ─── Scoring ───────────────────────────────────────────────────────
	case ErrPolicyMismatch:
		return "Kebijakan penilaian tidak sesuai dengan kuis ini."
	case ErrInvalidPolicy:
		return "Konfigurasi kebijakan penilaian tidak valid."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "Terjadi kesalahan server internal."
	default:
		return "Terjadi kesalahan yang tidak terduga."
	}
}
