package main

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrGenerationInvalid is returned when generated chart markup fails the structural check
	ErrGenerationInvalid = errors.New("generated code is incorrect")

	// ErrMalformedResponse is returned when an endpoint answers with an unexpected body
	ErrMalformedResponse = errors.New("malformed completion response")

	// ErrUnsupportedExpression is returned for transform code outside the accepted grammar
	ErrUnsupportedExpression = errors.New("unsupported expression")

	// ErrColumnNotFound is returned when an expression or option names a missing column
	ErrColumnNotFound = errors.New("column not found")

	// ErrBudgetExceeded is returned when the session completion-call budget is spent
	ErrBudgetExceeded = errors.New("completion call budget exceeded")

	// ErrInvalidCeiling is returned for a generation loop configured with fewer than one call
	ErrInvalidCeiling = errors.New("generation ceiling must be at least 1")
)

// ErrorKind classifies failures of session operations
type ErrorKind int

const (
	KindEndpoint          ErrorKind = iota // network, timeout or malformed response
	KindGenerationInvalid                  // chart markup failed validation
	KindTransform                          // generated transform failed to evaluate
	KindRejected                           // guard flagged the instruction or the code
)

func (k ErrorKind) String() string {
	switch k {
	case KindEndpoint:
		return "endpoint"
	case KindGenerationInvalid:
		return "generation-invalid"
	case KindTransform:
		return "transform"
	case KindRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// OperationError is returned by session operations. Op names the
// originating operation ("data", "plot"), Code carries the generated
// snippet when one exists.
type OperationError struct {
	Op   string
	Kind ErrorKind
	Code string
	Err  error
}

func (e *OperationError) Error() string {
	if e.Kind == KindTransform {
		return fmt.Sprintf("Error with code %s --- %v", e.Code, e.Err)
	}
	return fmt.Sprintf("An error occurred in %s: %v", e.Op, e.Err)
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

// UserError represents an error that should be displayed to the user with helpful context
type UserError struct {
	Message    string
	Cause      error
	Suggestion string
}

func (e *UserError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *UserError) Unwrap() error {
	return e.Cause
}

// FormatUserError formats an error for user display with colors and suggestions
func FormatUserError(err error) string {
	var sb strings.Builder

	var userErr *UserError
	if errors.As(err, &userErr) {
		sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", userErr.Message))
		if userErr.Cause != nil {
			sb.WriteString(fmt.Sprintf("       Cause: %v\n", userErr.Cause))
		}
		if userErr.Suggestion != "" {
			sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", userErr.Suggestion))
		}
		return sb.String()
	}

	errStr := err.Error()
	sb.WriteString(fmt.Sprintf("\033[91mError:\033[0m %s\n", errStr))
	if suggestion := getSuggestionForError(errStr); suggestion != "" {
		sb.WriteString(fmt.Sprintf("\n\033[93mSuggestion:\033[0m %s\n", suggestion))
	}

	return sb.String()
}

// getSuggestionForError returns a helpful suggestion based on error content
func getSuggestionForError(errStr string) string {
	errLower := strings.ToLower(errStr)

	if strings.Contains(errLower, "status 401") || strings.Contains(errLower, "status 403") ||
		strings.Contains(errLower, "unauthorized") || strings.Contains(errLower, "invalid token") {
		return "Check the API token in your secret file (default secret.txt) or DATAPILOT_API_TOKEN."
	}

	if strings.Contains(errLower, "status 429") || strings.Contains(errLower, "rate limit") ||
		strings.Contains(errLower, "throttl") {
		return "You're being rate-limited. Wait a moment, or set DATAPILOT_RATE_LIMIT to pace requests."
	}

	if strings.Contains(errLower, "status 503") || strings.Contains(errLower, "currently loading") {
		return "The model is still loading on the inference endpoint. Try again in a minute."
	}

	if strings.Contains(errLower, "no valid credential") ||
		strings.Contains(errLower, "unable to sign request") ||
		strings.Contains(errLower, "security token") {
		return "Check your AWS credentials. Run 'aws configure' or set AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY environment variables."
	}

	if strings.Contains(errLower, "timeout") || strings.Contains(errLower, "deadline exceeded") {
		return "The completion endpoint timed out. Try again, or raise DATAPILOT_TIMEOUT."
	}

	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "network") {
		return "Check your network connection and DATAPILOT_ENDPOINT."
	}

	if strings.Contains(errLower, "no such file") {
		return "Run datapilot from the directory holding the data files, or point DATAPILOT_*_PATH at them."
	}

	return ""
}

// ErrMissingSecret creates an error for a provider that needs a token but has none
func ErrMissingSecret(path string, cause error) *UserError {
	return &UserError{
		Message: fmt.Sprintf("No API token found in %s", path),
		Cause:   cause,
		Suggestion: `Provide a token:
       1. Write it to ` + path + `
       2. Or set DATAPILOT_API_TOKEN`,
	}
}

// ErrAWSConfig creates an error for AWS configuration issues
func ErrAWSConfig(cause error) *UserError {
	return &UserError{
		Message: "Failed to initialize AWS configuration",
		Cause:   cause,
		Suggestion: `Check your AWS credentials:
       1. Run 'aws configure' to set up credentials
       2. Or set environment variables:
          export AWS_ACCESS_KEY_ID=your_key
          export AWS_SECRET_ACCESS_KEY=your_secret
          export AWS_REGION=us-east-1`,
	}
}

// ErrBedrockInvoke creates an error for Bedrock API issues
func ErrBedrockInvoke(cause error) *UserError {
	return &UserError{
		Message: "Failed to call Bedrock API",
		Cause:   cause,
		Suggestion: `Possible issues:
       1. Check AWS credentials and region
       2. Verify Bedrock access is enabled in your AWS account
       3. Check IAM permissions for bedrock:InvokeModel
       4. Try a different model with DATAPILOT_MODEL`,
	}
}

// ErrWorkspaceLoad creates an error for a data or corpus file that could not be read
func ErrWorkspaceLoad(what, path string, cause error) *UserError {
	return &UserError{
		Message:    fmt.Sprintf("Failed to load %s from %s", what, path),
		Cause:      cause,
		Suggestion: "Check the file exists and is readable, or point DATAPILOT_*_PATH at it.",
	}
}
