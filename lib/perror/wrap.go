package perror

// Wrap converts a plain error into an Error. If err already is one (possibly
// wrapped), it is returned as is.
func Wrap(err error) Error {
	if err == nil {
		return nil
	}
	if perr, ok := err.(Error); ok {
		return perr
	}
	return New(
		FATAL,
		InternalError,
		err.Error(),
	)
}

// ToError converts an Error back into a plain error.
func ToError(err Error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(error); ok {
		return e
	}
	return New(err.Severity(), err.Code(), err.Message(), err.Extra()...).(error)
}
