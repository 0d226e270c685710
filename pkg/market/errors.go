package market

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the market services.
var (
	ErrItemNotFound           = errors.New("item not found")
	ErrNoActorSelected        = errors.New("no actor selected")
	ErrEmptyBasket            = errors.New("empty basket")
	ErrDuplicateUniqueItem    = errors.New("duplicate unique item")
	ErrLineNotFound           = errors.New("basket line not found")
	ErrRequestNotFound        = errors.New("purchase request not found")
	ErrRequestNotPending      = errors.New("purchase request not pending")
	ErrInsufficientFunds      = errors.New("insufficient funds")
	ErrInsufficientKarma      = errors.New("insufficient karma")
	ErrLedgerEntryExists      = errors.New("ledger entry already exists")
	ErrPartialMaterialization = errors.New("partial materialization")
	ErrCapabilityDenied       = errors.New("capability denied")
	ErrInvalidUserID          = errors.New("invalid user id")
	ErrInvalidActorID         = errors.New("invalid actor id")
	ErrInvalidCatalogID       = errors.New("invalid catalog id")
	ErrInvalidLineID          = errors.New("invalid line id")
	ErrInvalidRequestID       = errors.New("invalid request id")
	ErrInvalidRating          = errors.New("invalid rating")
	ErrInvalidQuantity        = errors.New("invalid quantity")
	ErrInvalidAvailability    = errors.New("invalid availability")
	ErrInvalidAmount          = errors.New("invalid amount")
	ErrInvalidItemType        = errors.New("invalid item type")
	ErrInvalidRequestState    = errors.New("invalid request state")
	ErrInvalidUpdateField     = errors.New("invalid update field")
	ErrInvalidServiceConfig   = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
