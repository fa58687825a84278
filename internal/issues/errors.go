package issues

import (
	"errors"
	"fmt"
)

// Payload messages. Consumers match on these strings, so they never change.
const (
	MsgRequiredFieldMissing = "required field(s) missing"
	MsgCouldNotSave         = "could not save"
	MsgMissingID            = "missing _id"
	MsgNoUpdateFields       = "no update field(s) sent"
	MsgCouldNotUpdate       = "could not update"
	MsgCouldNotDelete       = "could not delete"
	MsgUpdated              = "successfully updated"
	MsgDeleted              = "successfully deleted"
	MsgCouldNotFind         = "could not find"
)

// Failure kinds.
var (
	ErrMissingRequiredField = errors.New("missing required field")
	ErrStorageWrite         = errors.New("storage write failure")
	ErrMissingID            = errors.New("missing id")
	ErrNoUpdateFields       = errors.New("no update fields")
	ErrRecordNotFound       = errors.New("record not found")
)

// Result is the JSON payload returned for every outcome except a successful
// create or list.
type Result struct {
	Result string `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
	ID     string `json:"_id,omitempty"`
}

// Failure is an operation error carrying the payload shown to the caller.
type Failure struct {
	Kind    error
	Message string
	ID      string
	Err     error
}

func (f *Failure) Error() string {
	msg := f.Message
	if f.ID != "" {
		msg = fmt.Sprintf("%s (%s)", msg, f.ID)
	}
	if f.Err != nil {
		msg += ": " + f.Err.Error()
	}
	return msg
}

func (f *Failure) Unwrap() []error {
	if f.Err == nil {
		return []error{f.Kind}
	}
	return []error{f.Kind, f.Err}
}

// Payload returns the wire form of the failure.
func (f *Failure) Payload() Result {
	return Result{Error: f.Message, ID: f.ID}
}

func fail(kind error, msg, id string, cause error) *Failure {
	return &Failure{Kind: kind, Message: msg, ID: id, Err: cause}
}

// PayloadFor converts any error returned by Service into its wire payload.
func PayloadFor(err error) Result {
	var f *Failure
	if errors.As(err, &f) {
		return f.Payload()
	}
	return Result{Error: err.Error()}
}
