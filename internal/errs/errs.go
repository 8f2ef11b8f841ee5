// Package errs defines the error kinds surfaced by the classification API.
//
// Every kind carries a stable opaque code (E1, E2, ...) that is the only part of a
// failure ever returned to a caller. The cause is kept for server-side logging.
package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is an error kind with a stable code.
type Error struct {
	Tag        string
	Code       string
	Message    string
	HTTPStatus int
}

func (e *Error) Error() string {
	return e.Message
}

// Error kinds. Codes E1-E15 match the codes clients already know.
var (
	ErrParseJSON            = newError("ParseJsonError", "E1", "Failed to parse JSON", http.StatusInternalServerError)
	ErrServiceAccountSchema = newError("GcpServiceAccountSchemaError", "E2", "GCP Service Account schema is invalid", http.StatusInternalServerError)
	ErrAccessToken          = newError("GoogleAccessTokenError", "E3", "Failed to get Google Access Token", http.StatusInternalServerError)
	ErrVisionAPI            = newError("GoogleVisionApiError", "E4", "Google Vision API request failed", http.StatusInternalServerError)
	ErrVisionResponse       = newError("VisionAPIResponseValidationError", "E5", "Google Vision API response validation failed", http.StatusInternalServerError)
	ErrEmbeddingAPI         = newError("ProxyAPIError", "E6", "Proxy API request failed", http.StatusInternalServerError)
	ErrClassStore           = newError("ClassAndLabelAndEmbeddingsTableError", "E7", "ClassAndLabelAndEmbeddings table operation failed", http.StatusInternalServerError)
	ErrEncode               = newError("BtoAError", "E8", "Failed to convert Blob to ArrayBuffer", http.StatusInternalServerError)
	ErrImportKey            = newError("ImportKeyError", "E9", "Failed to import cryptographic key", http.StatusInternalServerError)
	ErrSignPrivateKey       = newError("SignGooglePrivateKeyError", "E10", "Failed to sign with Google private key", http.StatusInternalServerError)
	ErrTokenAPIRequest      = newError("GoogleTokenApiRequestError", "E11", "Google Token API request failed", http.StatusInternalServerError)
	ErrDecode               = newError("AtobError", "E12", "Failed to decode base64 string", http.StatusInternalServerError)
	ErrTokenAPIResponse     = newError("GoogleTokenApiResponseValidationError", "E13", "Google Token API response validation failed", http.StatusInternalServerError)
	ErrRequestTimestamp     = newError("RequestTimestampValidationError", "E14", "Request timestamp validation failed", http.StatusInternalServerError)
	ErrResponseTimestamp    = newError("ResponseTimestampValidationError", "E15", "Response timestamp validation failed", http.StatusInternalServerError)
	ErrClassNotFound        = newError("ClassNotFoundError", "E16", "Class not found", http.StatusNotFound)
	ErrAmbiguousClass       = newError("AmbiguousClassError", "E17", "More than one class matched", http.StatusInternalServerError)
	ErrEmbeddingDimension   = newError("EmbeddingDimensionError", "E18", "Embedding dimension mismatch", http.StatusInternalServerError)
	ErrRateLimitStore       = newError("RateLimitStoreError", "E19", "RateLimit table operation failed", http.StatusInternalServerError)
	ErrAnalysisLogStore     = newError("AnalysisLogTableError", "E20", "AIAnalysisLog table operation failed", http.StatusInternalServerError)
	ErrInvalidRequest       = newError("RequestValidationError", "E21", "Request validation failed", http.StatusBadRequest)
	ErrUnknown              = newError("UnknownError", "E0", "An unexpected error occurred", http.StatusInternalServerError)
)

var kinds = []*Error{
	ErrParseJSON, ErrServiceAccountSchema, ErrAccessToken, ErrVisionAPI, ErrVisionResponse,
	ErrEmbeddingAPI, ErrClassStore, ErrEncode, ErrImportKey, ErrSignPrivateKey,
	ErrTokenAPIRequest, ErrDecode, ErrTokenAPIResponse, ErrRequestTimestamp, ErrResponseTimestamp,
	ErrClassNotFound, ErrAmbiguousClass, ErrEmbeddingDimension, ErrRateLimitStore,
	ErrAnalysisLogStore, ErrInvalidRequest,
}

func newError(tag, code, message string, status int) *Error {
	return &Error{Tag: tag, Code: code, Message: message, HTTPStatus: status}
}

// Failure binds an error kind to the underlying cause.
type Failure struct {
	Kind  *Error
	Cause error
}

func (f *Failure) Error() string {
	if f.Cause == nil {
		return f.Kind.Message
	}
	return fmt.Sprintf("%s: %v", f.Kind.Message, f.Cause)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (f *Failure) Unwrap() []error {
	if f.Cause == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Cause}
}

// Wrap tags cause with kind. A nil cause still yields a usable error.
func Wrap(kind *Error, cause error) error {
	return &Failure{Kind: kind, Cause: cause}
}

// Wrapf tags a formatted cause with kind.
func Wrapf(kind *Error, format string, args ...any) error {
	return &Failure{Kind: kind, Cause: fmt.Errorf(format, args...)}
}

// KindOf returns the first known kind found in err's chain, or ErrUnknown.
func KindOf(err error) *Error {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f.Kind
	}
	for _, k := range kinds {
		if errors.Is(err, k) {
			return k
		}
	}
	return ErrUnknown
}

// CodeOf returns the stable code for err.
func CodeOf(err error) string {
	if k := KindOf(err); k != nil {
		return k.Code
	}
	return ""
}

// MessageForCode returns the human-readable message recorded in the audit log for code.
func MessageForCode(code string) string {
	for _, k := range kinds {
		if k.Code == code {
			return k.Message
		}
	}
	return ErrUnknown.Message
}

// Ensure tags err with kind unless err already carries a known kind.
func Ensure(kind *Error, err error) error {
	if err == nil {
		return nil
	}
	if k := KindOf(err); k != ErrUnknown {
		return err
	}
	return Wrap(kind, err)
}
