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
	ErrStaffAccessOnly   ErrCode = "STAFF_ACCESS_ONLY"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Resources ─────────────────────────────────────────────────────
	ErrNotFound ErrCode = "NOT_FOUND"
	ErrConflict ErrCode = "CONFLICT"

	// ─── Exam sessions ─────────────────────────────────────────────────
	ErrExamNotAvailable        ErrCode = "EXAM_NOT_AVAILABLE"
	ErrExamNotPublished        ErrCode = "EXAM_NOT_PUBLISHED"
	ErrExamNotDraft            ErrCode = "EXAM_NOT_DRAFT"
	ErrNoQuestions             ErrCode = "NO_QUESTIONS"
	ErrSessionNotFound         ErrCode = "SESSION_NOT_FOUND"
	ErrSessionExpired          ErrCode = "SESSION_EXPIRED"
	ErrSessionAlreadySubmitted ErrCode = "SESSION_ALREADY_SUBMITTED"
	ErrUnknownQuestion         ErrCode = "UNKNOWN_QUESTION"
	ErrInvalidOption           ErrCode = "INVALID_OPTION"

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
		return "Email or password is incorrect."
	case ErrSessionActive:
		return "You are already logged in on another device."
	case ErrSessionInvalidated:
		return "Your session has ended. Please log in again."
	case ErrTokenRequired:
		return "An authentication token is required."
	case ErrTokenInvalid:
		return "The authentication token is invalid."
	case ErrTokenExpired:
		return "The authentication token has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrForbidden:
		return "You do not have permission to access this resource."
	case ErrStudentAccessOnly:
		return "This resource is restricted to students."
	case ErrStaffAccessOnly:
		return "This resource is restricted to academy staff."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid ID format."
	case ErrInvalidPayload:
		return "Invalid request payload."

	// ─── Resources ─────────────────────────────────────────────────────
	case ErrNotFound:
		return "Resource not found."
	case ErrConflict:
		return "Resource already exists."

	// ─── Exam sessions ─────────────────────────────────────────────────
	case ErrExamNotAvailable:
		return "This exam is not currently available."
	case ErrExamNotPublished:
		return "This exam has not been published."
	case ErrExamNotDraft:
		return "This exam is not in DRAFT status."
	case ErrNoQuestions:
		return "This exam has no questions."
	case ErrSessionNotFound:
		return "No exam session found. Start the exam first."
	case ErrSessionExpired:
		return "The exam window has closed. Your answers have been auto-submitted."
	case ErrSessionAlreadySubmitted:
		return "This exam attempt has already been submitted."
	case ErrUnknownQuestion:
		return "The question does not belong to this exam."
	case ErrInvalidOption:
		return "The selected option index is not valid for this question."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
