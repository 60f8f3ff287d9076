package perror

// Error is a postgres-flavored error, carrying everything needed to build an
// ErrorResponse on the wire.
type Error interface {
	Severity() Severity
	Code() Code
	Message() string
	Extra() []ExtraField
}
