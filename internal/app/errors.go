package app

import "fmt"

// DomainError is the error currency between the service layer and the HTTP
// handlers. Status is the HTTP status the handler emits; Code is one of the
// stable machine codes clients switch on: FORBIDDEN, NOT_FOUND,
// VALIDATION_ERROR, TRANSIENT, DATA_INTEGRITY, ATTACHMENTS_UNAVAILABLE.
// Details carries optional structured context, such as the offending folder
// id on an integrity failure.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}
