package tls

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// TLSErrorType represents different categories of TLS errors
type TLSErrorType string

const (
	// Resolution errors
	ErrorTypeInvalidTargetURI      TLSErrorType = "invalid_target_uri"
	ErrorTypeInvalidServerName     TLSErrorType = "invalid_server_name"
	ErrorTypeConnectorConstruction TLSErrorType = "connector_construction"

	// Configuration errors
	ErrorTypeConfigValidation TLSErrorType = "config_validation"
	ErrorTypeConfigMissing    TLSErrorType = "config_missing"

	// Certificate errors
	ErrorTypeCertificateParsing TLSErrorType = "certificate_parsing"

	// File system errors
	ErrorTypeFileNotFound TLSErrorType = "file_not_found"
)

// Sentinels for errors.Is. A *TLSError matches the sentinel of its Type.
var (
	ErrInvalidTargetURI      = &TLSError{Type: ErrorTypeInvalidTargetURI, Message: "invalid target URI"}
	ErrInvalidServerName     = &TLSError{Type: ErrorTypeInvalidServerName, Message: "invalid server name"}
	ErrConnectorConstruction = &TLSError{Type: ErrorTypeConnectorConstruction, Message: "connector construction failed"}
)

// TLSError represents a structured TLS error with context
type TLSError struct {
	Type        TLSErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Suggestions []string
}

// Error implements the error interface
func (e *TLSError) Error() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("[%s]", string(e.Type)))
	parts = append(parts, e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for key := range e.Context {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		contextParts := make([]string, 0, len(keys))
		for _, key := range keys {
			contextParts = append(contextParts, fmt.Sprintf("%s=%v", key, e.Context[key]))
		}
		parts = append(parts, fmt.Sprintf("context: %s", strings.Join(contextParts, ", ")))
	}

	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("cause: %v", e.Cause))
	}

	return strings.Join(parts, " | ")
}

// Unwrap returns the underlying error for error unwrapping
func (e *TLSError) Unwrap() error {
	return e.Cause
}

// Is matches any *TLSError of the same Type.
func (e *TLSError) Is(target error) bool {
	var other *TLSError
	if !errors.As(target, &other) {
		return false
	}
	return other.Type == e.Type
}

// WithContext adds context information to the error
func (e *TLSError) WithContext(key string, value interface{}) *TLSError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithSuggestion adds a suggestion for resolving the error
func (e *TLSError) WithSuggestion(suggestion string) *TLSError {
	e.Suggestions = append(e.Suggestions, suggestion)
	return e
}

// GetDetailedMessage returns a detailed error message with suggestions
func (e *TLSError) GetDetailedMessage() string {
	message := e.Error()

	if len(e.Suggestions) > 0 {
		message += "\n\nSuggestions:"
		for i, suggestion := range e.Suggestions {
			message += fmt.Sprintf("\n  %d. %s", i+1, suggestion)
		}
	}

	return message
}

// NewTLSError creates a new TLS error with the specified type and message
func NewTLSError(errorType TLSErrorType, message string) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Context: make(map[string]interface{}),
	}
}

// NewTLSErrorWithCause creates a new TLS error with an underlying cause
func NewTLSErrorWithCause(errorType TLSErrorType, message string, cause error) *TLSError {
	return &TLSError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// Resolution error constructors
func NewInvalidTargetURIError(target string) *TLSError {
	return NewTLSError(ErrorTypeInvalidTargetURI, "target URI has no host to derive a server name from").
		WithContext("target", target).
		WithSuggestion("Include a host in the target URI, e.g. https://service.example.com:443").
		WithSuggestion("Or pin the server name with WithDomainName when dialing by address")
}

func NewInvalidServerNameError(name string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeInvalidServerName, fmt.Sprintf("%q is not a valid TLS server name", name), cause).
		WithContext("server_name", name).
		WithSuggestion("Use a DNS name such as api.example.com or an IP literal such as 10.0.0.1")
}

func NewConnectorConstructionError(serverName string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeConnectorConstruction, "failed to build TLS connector", cause).
		WithContext("server_name", serverName).
		WithSuggestion("Check that the CA certificate and client identity are PEM encoded").
		WithSuggestion("Ensure the client certificate and private key match")
}

// Configuration error constructors
func NewConfigValidationError(field string, value interface{}, reason string) *TLSError {
	return NewTLSError(ErrorTypeConfigValidation, fmt.Sprintf("invalid configuration field '%s'", field)).
		WithContext("field", field).
		WithContext("value", value).
		WithContext("reason", reason).
		WithSuggestion(fmt.Sprintf("Check the '%s' field in your TLS configuration", field))
}

func NewConfigMissingError(field string) *TLSError {
	return NewTLSError(ErrorTypeConfigMissing, fmt.Sprintf("required configuration field '%s' is missing", field)).
		WithContext("field", field).
		WithSuggestion(fmt.Sprintf("Add the '%s' field to your TLS configuration", field))
}

// Certificate error constructors
func NewCertificateParsingError(source string, cause error) *TLSError {
	return NewTLSErrorWithCause(ErrorTypeCertificateParsing, "failed to parse PEM material", cause).
		WithContext("source", source).
		WithSuggestion("Verify the data contains PEM blocks (-----BEGIN CERTIFICATE-----)")
}

func NewFileNotFoundError(filePath string) *TLSError {
	return NewTLSError(ErrorTypeFileNotFound, fmt.Sprintf("file not found: %s", filePath)).
		WithContext("file_path", filePath).
		WithSuggestion("Verify the file path is correct")
}

func errorType(err error) (TLSErrorType, bool) {
	var tlsErr *TLSError
	if errors.As(err, &tlsErr) {
		return tlsErr.Type, true
	}
	return "", false
}

// Error classification helpers
func IsResolutionError(err error) bool {
	switch t, _ := errorType(err); t {
	case ErrorTypeInvalidTargetURI, ErrorTypeInvalidServerName, ErrorTypeConnectorConstruction:
		return true
	}
	return false
}

func IsConfigurationError(err error) bool {
	switch t, _ := errorType(err); t {
	case ErrorTypeConfigValidation, ErrorTypeConfigMissing:
		return true
	}
	return false
}

func IsCertificateError(err error) bool {
	t, _ := errorType(err)
	return t == ErrorTypeCertificateParsing
}

// GetRecoverySuggestions returns the suggestions attached to a TLS error.
func GetRecoverySuggestions(err error) []string {
	var tlsErr *TLSError
	if errors.As(err, &tlsErr) {
		return tlsErr.Suggestions
	}
	return []string{"Verify TLS configuration is correct"}
}
