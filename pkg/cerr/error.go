package cerr

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
)

type Error struct {
	Code  Code
	Msg   string // returned to the caller together with the code
	Err   error  // underlying error, kept for logs only
	Stack string
}

func NewError(code Code, msg string, underlying error) *Error {
	err := &Error{
		Code: code,
		Msg:  msg,
		Err:  underlying,
	}
	if code == Internal || code == Unknown || code == DataLoss {
		stackTrace := make([]byte, 2048)
		n := runtime.Stack(stackTrace, false)
		err.Stack = string(stackTrace[0:n])
	}
	return err
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Code.String(), e.Msg)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code.String(), e.Msg, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

type httpError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteHTTP renders err as a JSON error response. Unrecognized errors are
// reported as Unknown without leaking the underlying message.
func WriteHTTP(rw http.ResponseWriter, err error) {
	var cerr *Error
	if !errors.As(err, &cerr) {
		cerr = NewError(Unknown, "unknown error", err)
	}
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(cerr.Code.HTTPCode())
	_ = json.NewEncoder(rw).Encode(httpError{
		Code:    cerr.Code.String(),
		Message: cerr.Msg,
	})
}

func CodeOf(err error) Code {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Code
	}
	return Unknown
}
