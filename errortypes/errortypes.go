package errortypes

// Defines numeric codes for well-known errors.
const (
	UnknownErrorCode = 999
	TimeoutErrorCode = iota
	BadInputErrorCode
	StoreErrorCode
)

// BadInput should be used when returning errors which are caused by bad input
// from the caller: a scan payload with no scan id, an unparseable body, a
// collector too old to trust. It should _not_ be used for server-side issues,
// and never for a single malformed event inside an otherwise valid payload --
// those are dropped locally and are not errors.
type BadInput struct {
	Message string
}

func (err *BadInput) Error() string {
	return err.Message
}

func (err *BadInput) Code() int {
	return BadInputErrorCode
}

// Timeout flags that a downstream dependency failed to answer before the
// deadline expired.
type Timeout struct {
	Message string
}

func (err *Timeout) Error() string {
	return err.Message
}

func (err *Timeout) Code() int {
	return TimeoutErrorCode
}

// StoreError flags a persistence failure. Audit results are still returned to
// the caller when the store fails; the error is logged and surfaced here for
// metrics only.
type StoreError struct {
	Message string
}

func (err *StoreError) Error() string {
	return err.Message
}

func (err *StoreError) Code() int {
	return StoreErrorCode
}

// ReadCode returns the error code, or UnknownErrorCode if the error does not
// carry one.
func ReadCode(err error) int {
	type coder interface {
		Code() int
	}
	if c, ok := err.(coder); ok {
		return c.Code()
	}
	return UnknownErrorCode
}
