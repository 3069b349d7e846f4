package ledger

import (
	"errors"
	"fmt"

	"github.com/CodeMonkeyCybersecurity/idlscan/pkg/address"
)

var (
	ErrAccountNotFound   = errors.New("account not found")
	ErrNotExecutable     = errors.New("account is not executable")
	ErrUnsupportedLoader = errors.New("account is owned by an unsupported loader")
	ErrMalformedProgram  = errors.New("malformed program account")
)

// RetrievalError reports that the executable bytes of a program could not be obtained.
type RetrievalError struct {
	Program address.Address
	Err     error
}

func (e *RetrievalError) Error() string {
	return fmt.Sprintf("retrieve program %s: %v", e.Program, e.Err)
}

func (e *RetrievalError) Unwrap() error {
	return e.Err
}

// QueryError reports a transport or protocol failure while looking up an account.
// A missing account is not a QueryError.
type QueryError struct {
	Address address.Address
	Err     error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("query account %s: %v", e.Address, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}
