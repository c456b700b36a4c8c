package dkim

import "fmt"

// Class is the closed set of authentication-result classifications a
// dkim.Error carries, independent of whether the failure is permanent
// or transient.
type Class string

const (
	ClassNone      Class = "none"
	ClassPass      Class = "pass"
	ClassFail      Class = "fail"
	ClassPolicy    Class = "policy"
	ClassNeutral   Class = "neutral"
	ClassTempError Class = "temperror"
	ClassPermError Class = "permerror"
)

// Error is the error type returned by Signer and Verifier. Every
// failure is either Permanent (the default classification is
// permerror, but body/header verification mismatches are classified
// fail so callers can render dkim=fail rather than dkim=permerror) or
// Transient (classified temperror), never both.
type Error struct {
	Class     Class
	Transient bool
	Reason    string
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("dkim: %s: %s: %v", e.Class, e.Reason, e.Err)
	}
	return fmt.Sprintf("dkim: %s: %s", e.Class, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// Permanent reports whether retrying the same input would not help.
func (e *Error) Permanent() bool { return !e.Transient }

// Temporary reports whether the caller may usefully retry later.
func (e *Error) Temporary() bool { return e.Transient }

func permErr(class Class, reason string, err error) *Error {
	return &Error{Class: class, Reason: reason, Err: err}
}

func tempErr(reason string, err error) *Error {
	return &Error{Class: ClassTempError, Transient: true, Reason: reason, Err: err}
}
