package errors

import (
	"fmt"
)

// ErrorCode represents stable error codes for all failure modes
type ErrorCode string

const (
	// ConnectionFailed indicates the transport could not be established or
	// the initial handshake failed; terminal for that snapshot
	ConnectionFailed ErrorCode = "CONNECTION_FAILED"
	// CapabilityCallFailed indicates a declared capability's list call failed
	CapabilityCallFailed ErrorCode = "CAPABILITY_CALL_FAILED"
	// MethodNotImplemented indicates the server declared a capability but
	// does not implement the corresponding method
	MethodNotImplemented ErrorCode = "METHOD_NOT_IMPLEMENTED"
	// EnvPrepFailed indicates the comparison environment could not be prepared
	EnvPrepFailed ErrorCode = "ENV_PREP_FAILED"
	// BuildFailed indicates a build/install command failed in an environment
	BuildFailed ErrorCode = "BUILD_FAILED"
	// ProcessExited indicates a server process exited before it could be probed
	ProcessExited ErrorCode = "PROCESS_EXITED"
	// GitUnavailable indicates git operations cannot be performed
	GitUnavailable ErrorCode = "GIT_UNAVAILABLE"
	// ConfigInvalid indicates the drift configuration failed validation
	ConfigInvalid ErrorCode = "CONFIG_INVALID"
	// StoreUnavailable indicates the baseline store could not be opened or read
	StoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	// InternalError indicates unexpected error
	InternalError ErrorCode = "INTERNAL_ERROR"
)

// FixActionType represents the type of fix action
type FixActionType string

const (
	// RunCommand suggests running a command
	RunCommand FixActionType = "run-command"
	// OpenDocs suggests opening documentation
	OpenDocs FixActionType = "open-docs"
)

// FixAction represents a suggested fix for an error
type FixAction struct {
	Type        FixActionType `json:"type"`
	Command     string        `json:"command,omitempty"`
	Safe        bool          `json:"safe,omitempty"`
	Description string        `json:"description,omitempty"`
	URL         string        `json:"url,omitempty"`
}

// DriftError represents an mcpdrift error with code, message, and suggestions
type DriftError struct {
	Code           ErrorCode   `json:"code"`
	Message        string      `json:"message"`
	Details        interface{} `json:"details,omitempty"`
	SuggestedFixes []FixAction `json:"suggestedFixes,omitempty"`
	cause          error       // Underlying error (not exported to JSON)
}

// New creates a new DriftError
func New(code ErrorCode, message string, cause error) *DriftError {
	return &DriftError{
		Code:           code,
		Message:        message,
		cause:          cause,
		SuggestedFixes: GetSuggestedFixes(code),
	}
}

// Error implements the error interface
func (e *DriftError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DriftError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *DriftError) WithDetails(details interface{}) *DriftError {
	e.Details = details
	return e
}

// ErrorActions maps error codes to suggested fix actions
var ErrorActions = map[ErrorCode][]FixAction{
	ConnectionFailed: {
		{
			Type:        RunCommand,
			Command:     "mcpdrift snapshot --name=<config>",
			Safe:        true,
			Description: "Probe the server in isolation to inspect the connection failure",
		},
	},
	GitUnavailable: {
		{
			Type:        RunCommand,
			Command:     "git status",
			Safe:        true,
			Description: "Check that the working directory is a valid git repository",
		},
	},
	EnvPrepFailed: {
		{
			Type:        RunCommand,
			Command:     "git worktree list",
			Safe:        true,
			Description: "Check for stale worktrees holding the comparison ref",
		},
	},
	ConfigInvalid: {
		{
			Type:        RunCommand,
			Command:     "mcpdrift init",
			Safe:        false,
			Description: "Write a fresh default configuration to .mcpdrift/config.yaml",
		},
	},
}

// GetSuggestedFixes returns suggested fixes for an error code
func GetSuggestedFixes(code ErrorCode) []FixAction {
	if fixes, ok := ErrorActions[code]; ok {
		return fixes
	}
	return nil
}
