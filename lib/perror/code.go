package perror

// Code is a SQLSTATE error code.
// See https://www.postgresql.org/docs/current/errcodes-appendix.html
type Code string

const (
	SuccessfulCompletion Code = "00000"

	// connection exceptions
	ConnectionException                           Code = "08000"
	ConnectionDoesNotExist                        Code = "08003"
	ConnectionFailure                             Code = "08006"
	SqlclientUnableToEstablishSqlconnection       Code = "08001"
	SqlserverRejectedEstablishmentOfSqlconnection Code = "08004"
	ProtocolViolation                             Code = "08P01"

	FeatureNotSupported Code = "0A000"

	InvalidAuthorizationSpecification Code = "28000"
	InvalidPassword                   Code = "28P01"

	ActiveSqlTransaction Code = "25001"

	InvalidCatalogName Code = "3D000"

	OperatorIntervention Code = "57000"
	QueryCanceled        Code = "57014"
	AdminShutdown        Code = "57P01"
	CrashShutdown        Code = "57P02"
	CannotConnectNow     Code = "57P03"

	TooManyConnections         Code = "53300"
	ConfigurationLimitExceeded Code = "53400"

	SyntaxError   Code = "42601"
	InternalError Code = "XX000"
)
