// Package errors provides domain-specific error types for the extension host.
// All error types support error unwrapping via errors.As() and errors.Is().
package errors

import (
	stdErrors "errors"
	"fmt"

	"github.com/reglet-dev/exthost/domain/entities"
)

// ErrorDetail is an alias to entities.ErrorDetail for convenience.
type ErrorDetail = entities.ErrorDetail

// DetailedError is an interface for custom error types that can convert themselves
// to a structured ErrorDetail, which is the form guests receive over the ABI.
type DetailedError interface {
	error
	ToErrorDetail() *entities.ErrorDetail
}

// ToErrorDetail converts a Go error to our structured ErrorDetail.
func ToErrorDetail(err error) *entities.ErrorDetail {
	if err == nil {
		return nil
	}

	var e *entities.ErrorDetail
	if stdErrors.As(err, &e) {
		return e
	}

	var de DetailedError
	if stdErrors.As(err, &de) {
		return de.ToErrorDetail()
	}

	return &entities.ErrorDetail{
		Message: err.Error(),
		Type:    "internal",
	}
}

var (
	// ErrMissingVersion is returned when a binary carries no version marker section.
	ErrMissingVersion = stdErrors.New("missing version")

	// ErrExtensionUnavailable is the dispatch fault: the extension queue is
	// closed or the guest answered with something that is not a result envelope.
	ErrExtensionUnavailable = stdErrors.New("extension unavailable")

	// ErrOperationUnsupported is returned for operations the loaded interface
	// version (or the guest's export list) does not provide.
	ErrOperationUnsupported = stdErrors.New("operation not supported by extension")

	// ErrEpochDeadline is the cancellation cause used when a call overruns its epoch deadline.
	ErrEpochDeadline = stdErrors.New("epoch deadline exceeded")

	// ErrInvalidHandle is returned when a guest passes a resource handle the host never minted.
	ErrInvalidHandle = stdErrors.New("invalid resource handle")
)

// LoadPhase names the load step that failed.
type LoadPhase string

const (
	PhaseVersion     LoadPhase = "version"
	PhaseCompile     LoadPhase = "compile"
	PhaseInstantiate LoadPhase = "instantiate"
)

// LoadError is a load-time fatal error. The extension never becomes callable.
type LoadError struct {
	Err       error
	Extension string
	Phase     LoadPhase
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load extension %s: %s: %v", e.Extension, e.Phase, e.Err)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *LoadError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "load", Code: string(e.Phase)}
}

// InvalidVersionError reports a version marker whose payload cannot be decoded.
type InvalidVersionError struct {
	Extension string
	Raw       []byte
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version: extension %s has invalid zed:api-version section: %v", e.Extension, e.Raw)
}

// ToErrorDetail implements DetailedError.
func (e *InvalidVersionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "load", Code: "invalid_version"}
}

// UnsupportedVersionError reports a well-formed version outside the host's supported range.
type UnsupportedVersionError struct {
	Extension string
	Version   entities.SemanticVersion
	Min       entities.SemanticVersion
	Max       entities.SemanticVersion
}

func (e *UnsupportedVersionError) Error() string {
	return fmt.Sprintf("extension %s uses unsupported api version %s (supported: %s to %s)",
		e.Extension, e.Version, e.Min, e.Max)
}

// ToErrorDetail implements DetailedError.
func (e *UnsupportedVersionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "load", Code: "unsupported_version"}
}

// CapabilityError represents a capability check failure.
type CapabilityError struct {
	Extension string
	Kind      string // e.g. "process:exec"
	Target    string // the concrete operation that was denied
	Reason    string
}

func (e *CapabilityError) Error() string {
	msg := fmt.Sprintf("capability %s denied for extension %s", e.Kind, e.Extension)
	if e.Target != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Target)
	}
	if e.Reason != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Reason)
	}
	return msg
}

// ToErrorDetail implements DetailedError.
func (e *CapabilityError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "capability", Code: "CAPABILITY_DENIED"}
}

// ExtensionError is an application-level failure signaled by the guest itself.
// It is propagated to callers unchanged.
type ExtensionError struct {
	Extension string
	Code      string
	Message   string
}

func (e *ExtensionError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("extension %s: %s [%s]", e.Extension, e.Message, e.Code)
	}
	return fmt.Sprintf("extension %s: %s", e.Extension, e.Message)
}

// ToErrorDetail implements DetailedError.
func (e *ExtensionError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Message, Type: "extension", Code: e.Code}
}

// MalformedResponseError is a guest response that is not a valid result envelope.
// It matches ErrExtensionUnavailable.
type MalformedResponseError struct {
	Err       error
	Extension string
	Operation string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("extension %s returned a malformed response for %s: %v", e.Extension, e.Operation, e.Err)
}

func (e *MalformedResponseError) Unwrap() []error {
	return []error{ErrExtensionUnavailable, e.Err}
}

// ToErrorDetail implements DetailedError.
func (e *MalformedResponseError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "malformed_response"}
}

// InterruptedError reports a guest call aborted by epoch interruption.
// Only the call fails; the extension keeps serving its queue.
type InterruptedError struct {
	Extension string
	Operation string
	Epoch     uint64
}

func (e *InterruptedError) Error() string {
	return fmt.Sprintf("extension %s: %s interrupted at epoch %d", e.Extension, e.Operation, e.Epoch)
}

func (e *InterruptedError) Unwrap() error {
	return ErrEpochDeadline
}

// ToErrorDetail implements DetailedError.
func (e *InterruptedError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "timeout", Code: "epoch_interrupt", IsTimeout: true}
}

// TrapError reports a guest call that aborted without producing a result,
// such as an unreachable instruction or an out-of-bounds access.
type TrapError struct {
	Err       error
	Extension string
	Operation string
}

func (e *TrapError) Error() string {
	return fmt.Sprintf("extension %s: %s trapped: %v", e.Extension, e.Operation, e.Err)
}

func (e *TrapError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *TrapError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "internal", Code: "trap"}
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Err   error
	Field string
}

func (e *ConfigError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("config validation failed for field '%s': %v", e.Field, e.Err)
	}
	return fmt.Sprintf("config validation failed: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ConfigError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "config", Code: e.Field}
}

// ExecError represents a command execution error.
type ExecError struct {
	Err      error
	Command  string
	Stderr   string
	ExitCode int
}

func (e *ExecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to execute '%s': %v", e.Command, e.Err)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("command '%s' exited with code %d: %s", e.Command, e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("command '%s' exited with code %d", e.Command, e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *ExecError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "exec", Code: fmt.Sprintf("exit_%d", e.ExitCode)}
}

// DownloadError represents a failed download_file request.
type DownloadError struct {
	Err        error
	URL        string
	StatusCode int
}

func (e *DownloadError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("download %s failed with status %d: %v", e.URL, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("download %s failed: %v", e.URL, e.Err)
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *DownloadError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "network", Code: fmt.Sprintf("http_%d", e.StatusCode)}
}

// SchemaError represents a schema generation or validation error.
type SchemaError struct {
	Err  error
	Type string
}

func (e *SchemaError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("schema error for type %s: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("schema error: %v", e.Err)
}

func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ToErrorDetail implements DetailedError.
func (e *SchemaError) ToErrorDetail() *entities.ErrorDetail {
	return &entities.ErrorDetail{Message: e.Error(), Type: "validation", Code: "schema"}
}
