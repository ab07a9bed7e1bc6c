package common

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")

	// verification attempt taxonomy
	ErrUnsupportedMedia = errors.New("unsupported media type")
	ErrDecode           = errors.New("document decode failed")
	ErrRecognition      = errors.New("text recognition failed")
	ErrUnauthenticated  = errors.New("no active session")
)

// Error codes carried by AppError.Code.
const (
	CodeUnsupportedMedia = "UNSUPPORTED_MEDIA"
	CodeDecode           = "DECODE_ERROR"
	CodeRecognition      = "RECOGNITION_ERROR"
	CodeUnauthenticated  = "UNAUTHENTICATED"
	CodeConfig           = "CONFIG_ERROR"
	CodeMissingDocument  = "MISSING_DOCUMENT"
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// UnsupportedMediaError reports a document that is neither an image nor a PDF.
func UnsupportedMediaError(mediaType string) error {
	return NewAppError(CodeUnsupportedMedia, fmt.Sprintf("cannot extract text from %q", mediaType), ErrUnsupportedMedia)
}

// DecodeError reports a malformed PDF.
func DecodeError(err error) error {
	return NewAppError(CodeDecode, errMessage(err), ErrDecode)
}

// RecognitionError reports an image the OCR engine could not process.
func RecognitionError(err error) error {
	return NewAppError(CodeRecognition, errMessage(err), ErrRecognition)
}

// UnauthenticatedError reports a verification attempt without a session.
func UnauthenticatedError() error {
	return NewAppError(CodeUnauthenticated, "Please login to verify certificates", ErrUnauthenticated)
}

// MissingDocumentError reports an attempt started without a file.
func MissingDocumentError() error {
	return NewAppError(CodeMissingDocument, "Please upload a certificate first", ErrInvalidInput)
}

func errMessage(err error) string {
	if err == nil {
		return "unknown cause"
	}
	return err.Error()
}

// HTTPStatus maps an attempt error onto an HTTP status code.
func HTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrDecode), errors.Is(err, ErrRecognition):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// ToGRPC maps an attempt error onto a gRPC status error.
func ToGRPC(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, ErrUnsupportedMedia), errors.Is(err, ErrInvalidInput):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, ErrDecode), errors.Is(err, ErrRecognition):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrUnauthenticated):
		return status.Error(codes.Unauthenticated, err.Error())
	case errors.Is(err, ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// gRPC error helpers
func InvalidArgumentError(message string) error {
	return status.Error(codes.InvalidArgument, message)
}

func InvalidArgumentErrorf(format string, args ...interface{}) error {
	return InvalidArgumentError(fmt.Sprintf(format, args...))
}
