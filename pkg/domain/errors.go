package domain

import "fmt"

// ValidationError reports a client-supplied value or field that failed
// validation. Field may carry positional context such as a line or element
// index.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NotFoundError is returned when an entity lookup fails. Bulk lookups carry
// every missing id in IDs. Lookups filtered by an access context report
// missing and invisible records identically.
type NotFoundError struct {
	Entity EntityType
	ID     int64
	IDs    []int64
}

func (e NotFoundError) Error() string {
	if len(e.IDs) > 0 {
		return fmt.Sprintf("%s ids %v not found", e.Entity, e.IDs)
	}
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// Integrity violation messages surfaced to clients. The codes follow the
// PostgreSQL SQLSTATE values for foreign key and unique violations.
const (
	IntegrityCodeForeignKey = "23503"
	IntegrityCodeDuplicate  = "23505"

	IntegrityMessageForeignKey = "Object with this ID not found or not available"
	IntegrityMessageDuplicate  = "An entry already exists for the given permission and object."
)

// ConflictError reports an integrity violation such as a duplicate key or a
// dangling reference.
type ConflictError struct {
	Code    string
	Message string
}

func (e ConflictError) Error() string {
	return e.Message
}

// NewForeignKeyConflict builds the conflict returned for dangling references.
func NewForeignKeyConflict() ConflictError {
	return ConflictError{Code: IntegrityCodeForeignKey, Message: IntegrityMessageForeignKey}
}

// NewDuplicateConflict builds the conflict returned for duplicate entries.
func NewDuplicateConflict() ConflictError {
	return ConflictError{Code: IntegrityCodeDuplicate, Message: IntegrityMessageDuplicate}
}

// ConfigurationError reports a server-side misconfiguration, such as a KPI
// carrying a value type the codec does not implement. It is never caused by
// client input.
type ConfigurationError struct {
	Message string
}

func (e ConfigurationError) Error() string {
	return e.Message
}

// AuthorizationError reports a caller that lacks the permissions required for
// an operation.
type AuthorizationError struct {
	Message string
}

func (e AuthorizationError) Error() string {
	if e.Message == "" {
		return "caller lacks required permissions"
	}
	return e.Message
}
