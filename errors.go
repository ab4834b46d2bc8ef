package gosm

import (
	"database/sql"
	"fmt"

	"github.com/pkg/errors"
)

/*
Error codes. You probably shouldn't use this directly; instead, use the `Err`
variables with `errors.Is`.
*/
type ErrCode string

const (
	ErrCodeUnknown              ErrCode = ""
	ErrCodeConfiguration        ErrCode = "ErrConfiguration"
	ErrCodeConnection           ErrCode = "ErrConnection"
	ErrCodeNoSuchStatement      ErrCode = "ErrNoSuchStatement"
	ErrCodeNotFound             ErrCode = "ErrNotFound"
	ErrCodeInstantiation        ErrCode = "ErrInstantiation"
	ErrCodeSessionClosed        ErrCode = "ErrSessionClosed"
	ErrCodeExecution            ErrCode = "ErrExecution"
	ErrCodeInvalidParameter     ErrCode = "ErrInvalidParameter"
	ErrCodeUnsupportedParameter ErrCode = "ErrUnsupportedParameter"
)

/*
Use blank error variables to detect error types:

	if errors.Is(err, gosm.ErrNotFound) {
		// Handle specific error.
	}

Note that errors returned by Gosm can't be compared via `==` because they may
include additional details about the circumstances. When compared by
`errors.Is`, they compare `.Cause` and fall back on `.Code`.

`ErrNotFound` wraps `sql.ErrNoRows`, so `errors.Is(err, sql.ErrNoRows)` also
works.
*/
var (
	ErrConfiguration        Err = Err{Code: ErrCodeConfiguration, Cause: errors.New(`invalid configuration`)}
	ErrConnection           Err = Err{Code: ErrCodeConnection, Cause: errors.New(`failed to connect`)}
	ErrNoSuchStatement      Err = Err{Code: ErrCodeNoSuchStatement, Cause: errors.New(`statement is not registered`)}
	ErrNotFound             Err = Err{Code: ErrCodeNotFound, Cause: sql.ErrNoRows}
	ErrInstantiation        Err = Err{Code: ErrCodeInstantiation, Cause: errors.New(`result type can't be instantiated`)}
	ErrSessionClosed        Err = Err{Code: ErrCodeSessionClosed, Cause: errors.New(`session is closed`)}
	ErrExecution            Err = Err{Code: ErrCodeExecution, Cause: errors.New(`statement execution failed`)}
	ErrInvalidParameter     Err = Err{Code: ErrCodeInvalidParameter, Cause: errors.New(`invalid parameter`)}
	ErrUnsupportedParameter Err = Err{Code: ErrCodeUnsupportedParameter, Cause: errors.New(`unsupported parameter`)}
)

// Describes a Gosm error.
type Err struct {
	Code  ErrCode
	While string
	Cause error
}

// Implement `error`.
func (self Err) Error() string {
	if self == (Err{}) {
		return ""
	}
	msg := `SQL mapping error`
	if self.Code != ErrCodeUnknown {
		msg += fmt.Sprintf(` %s`, self.Code)
	}
	if self.While != "" {
		msg += fmt.Sprintf(` while %v`, self.While)
	}
	if self.Cause != nil {
		msg += `: ` + self.Cause.Error()
	}
	return msg
}

// Implement a hidden interface in "errors".
func (self Err) Is(other error) bool {
	if self.Cause != nil && errors.Is(self.Cause, other) {
		return true
	}
	err, ok := other.(Err)
	return ok && err.Code == self.Code
}

// Implement a hidden interface in "errors".
func (self Err) Unwrap() error {
	return self.Cause
}

/*
Allows `%+v` to print the stack trace recorded by "github.com/pkg/errors" when
the cause carries one.
*/
func (self Err) Format(state fmt.State, verb rune) {
	if verb == 'v' && state.Flag('+') && self.Cause != nil {
		fmt.Fprintf(state, `%s: %+v`, self.withoutCause().Error(), self.Cause)
		return
	}
	fmt.Fprint(state, self.Error())
}

func (self Err) withoutCause() Err {
	self.Cause = nil
	return self
}

func (self Err) while(while string) Err {
	self.While = while
	return self
}

func (self Err) because(cause error) Err {
	self.Cause = cause
	return self
}

func (self Err) becausef(format string, args ...interface{}) Err {
	self.Cause = errors.Errorf(format, args...)
	return self
}
