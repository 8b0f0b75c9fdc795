package errors

import "fmt"

// ErrCode identifies which subsystem or invariant produced an error
type ErrCode string

const (
	ErrCodeNotFound   ErrCode = "NOT_FOUND"
	ErrCodeUniqueness ErrCode = "UNIQUENESS"
	ErrCodeInvariant  ErrCode = "INVARIANT"
	ErrCodeDirectory  ErrCode = "DIRECTORY"
	ErrCodeConfigGen  ErrCode = "CONFIG_GENERATION"
	ErrCodeTracker    ErrCode = "TRACKER"
	ErrCodeRepository ErrCode = "REPOSITORY"
	ErrCodeCommand    ErrCode = "COMMAND"
)

// AppError represents an application error
type AppError struct {
	Code    ErrCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(resource string) *AppError {
	return &AppError{
		Code:    ErrCodeNotFound,
		Message: fmt.Sprintf("%s not found", resource),
	}
}

// NewUniquenessError creates a new uniqueness violation error
func NewUniquenessError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeUniqueness,
		Message: message,
	}
}

// NewInvariantError creates a new invariant violation error
func NewInvariantError(message string) *AppError {
	return &AppError{
		Code:    ErrCodeInvariant,
		Message: message,
	}
}

// NewDirectoryError creates a new directory store error
func NewDirectoryError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeDirectory,
		Message: message,
		Err:     err,
	}
}

// NewConfigGenError creates a new config generation error
func NewConfigGenError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeConfigGen,
		Message: message,
		Err:     err,
	}
}

// NewTrackerError creates a new issue tracker error
func NewTrackerError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeTracker,
		Message: message,
		Err:     err,
	}
}

// NewRepositoryError creates a new repository materialization error
func NewRepositoryError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeRepository,
		Message: message,
		Err:     err,
	}
}

// NewCommandError creates a new external command error
func NewCommandError(message string, err error) *AppError {
	return &AppError{
		Code:    ErrCodeCommand,
		Message: message,
		Err:     err,
	}
}

func hasCode(err error, code ErrCode) bool {
	if appErr, ok := err.(*AppError); ok {
		return appErr.Code == code
	}
	return false
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return hasCode(err, ErrCodeNotFound)
}

// IsUniqueness checks if the error is a uniqueness violation
func IsUniqueness(err error) bool {
	return hasCode(err, ErrCodeUniqueness)
}

// IsInvariant checks if the error is an invariant violation
func IsInvariant(err error) bool {
	return hasCode(err, ErrCodeInvariant)
}

// IsCommand checks if the error is an external command failure
func IsCommand(err error) bool {
	return hasCode(err, ErrCodeCommand)
}
