// Package ferrors defines the structured error taxonomy shared by every
// component of the fabric: the tracker, the peer server, and the OS
// bookkeeping layer all surface failures as a *FabricError so the wire
// layer can translate them into a single ERROR frame shape.
package ferrors

import "fmt"

// Code identifies a taxonomy entry from spec §7.
type Code string

const (
	CodeCodec           Code = "CODEC_ERROR"
	CodeUnknownMessage  Code = "UNKNOWN_MESSAGE_TYPE"
	CodeValidation      Code = "VALIDATION_ERROR"
	CodeNotFound        Code = "NOT_FOUND"
	CodeUnauthorized    Code = "UNAUTHORIZED"
	CodeQuotaExceeded   Code = "QUOTA_EXCEEDED"
	CodeNoPeersAvail    Code = "NO_PEERS_AVAILABLE"
	CodeOwnershipConfl  Code = "OWNERSHIP_CONFLICT"
	CodeUnsafeState     Code = "UNSAFE_STATE"
	CodeExecutionError  Code = "EXECUTION_ERROR"
	CodeTimeout         Code = "TIMEOUT"
	CodeIOError         Code = "IO_ERROR"
	CodeOwnedForbidden  Code = "OWNED_FILE_FORBIDDEN"
	CodeProgramError    Code = "PROGRAM_ERROR"
	CodeFunctionMissing Code = "FUNCTION_NOT_FOUND"
	CodeNotCallable     Code = "NOT_CALLABLE"
	CodeInternal        Code = "INTERNAL_ERROR"
)

// FabricError is a structured error carrying a machine-readable code, a
// human message, retry guidance, and an optional wrapped cause.
type FabricError struct {
	Code      Code
	Message   string
	Retryable bool
	Cause     error
}

func (e *FabricError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *FabricError) Unwrap() error { return e.Cause }

// WithCause attaches an underlying error and returns the receiver.
func (e *FabricError) WithCause(err error) *FabricError {
	e.Cause = err
	return e
}

func new(code Code, retryable bool, format string, args ...interface{}) *FabricError {
	return &FabricError{Code: code, Message: fmt.Sprintf(format, args...), Retryable: retryable}
}

func Codec(format string, args ...interface{}) *FabricError {
	return new(CodeCodec, false, format, args...)
}

func UnknownMessage(msgType string) *FabricError {
	return new(CodeUnknownMessage, false, "unknown message type %q", msgType)
}

func Validation(format string, args ...interface{}) *FabricError {
	return new(CodeValidation, false, format, args...)
}

func NotFound(format string, args ...interface{}) *FabricError {
	return new(CodeNotFound, false, format, args...)
}

func Unauthorized(format string, args ...interface{}) *FabricError {
	return new(CodeUnauthorized, false, format, args...)
}

func QuotaExceeded(format string, args ...interface{}) *FabricError {
	return new(CodeQuotaExceeded, true, format, args...)
}

func NoPeersAvailable() *FabricError {
	return new(CodeNoPeersAvail, true, "no peers available")
}

func OwnershipConflict(filename string) *FabricError {
	return new(CodeOwnershipConfl, false, "file %q already owned by another peer", filename)
}

func UnsafeState(format string, args ...interface{}) *FabricError {
	return new(CodeUnsafeState, false, format, args...)
}

func ExecutionError(format string, args ...interface{}) *FabricError {
	return new(CodeExecutionError, true, format, args...)
}

func Timeout(format string, args ...interface{}) *FabricError {
	return new(CodeTimeout, true, format, args...)
}

func IOError(format string, args ...interface{}) *FabricError {
	return new(CodeIOError, true, format, args...)
}

func OwnedFileForbidden(filename string) *FabricError {
	return new(CodeOwnedForbidden, false, "filename %q is owner-custodied, use owned-file retrieval", filename)
}

func ProgramError(format string, args ...interface{}) *FabricError {
	return new(CodeProgramError, false, format, args...)
}

func FunctionNotFound(name string) *FabricError {
	return new(CodeFunctionMissing, false, "function %q not found", name)
}

func NotCallable(name string) *FabricError {
	return new(CodeNotCallable, false, "%q is not callable", name)
}

func Internal(format string, args ...interface{}) *FabricError {
	return new(CodeInternal, true, format, args...)
}

// FromWire reconstructs a *FabricError from an ERROR frame's code and
// message, for a client that needs to inspect what a remote peer or
// tracker reported rather than only its string form.
func FromWire(code, message string) *FabricError {
	return &FabricError{Code: Code(code), Message: message}
}

// AsFabricError normalizes any error into a *FabricError, wrapping
// unrecognized errors as an internal error so nothing escapes a
// connection boundary untyped.
func AsFabricError(err error) *FabricError {
	if err == nil {
		return nil
	}
	if fe, ok := err.(*FabricError); ok {
		return fe
	}
	return Internal("%s", err.Error())
}
