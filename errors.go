package scriptrel

import "errors"

// Sentinel errors for the failure classes of a release run.
// Packages wrap these with context (subsystem, tier, file) so callers can
// branch with errors.Is while users still see which step failed.
var (
	// ErrConfiguration is returned when a required setting is missing or invalid.
	// Raised before any database or file mutation happens.
	ErrConfiguration = errors.New("scriptrel: invalid configuration")

	// ErrConnection is returned when a database is unreachable or rejects the
	// credentials. Fatal for the tier, but other subsystems still run.
	ErrConnection = errors.New("scriptrel: database connection failed")

	// ErrQuery is returned when the version control table cannot be read.
	// Nothing has been executed yet when this happens.
	ErrQuery = errors.New("scriptrel: control query failed")

	// ErrExecution is returned when a statement fails inside a script
	// transaction. The failing script is rolled back, earlier ones stay applied.
	ErrExecution = errors.New("scriptrel: script execution failed")

	// ErrFormat is returned when a file name or script id does not follow
	// the NNNN.0.<Letter><Initials> grammar.
	ErrFormat = errors.New("scriptrel: malformed script name")

	// ErrFilesystem is returned when a backup, restore or publish copy fails.
	ErrFilesystem = errors.New("scriptrel: filesystem operation failed")
)

// IsConfigurationErr returns true if err is or wraps ErrConfiguration.
func IsConfigurationErr(err error) bool {
	return errors.Is(err, ErrConfiguration)
}

// IsConnectionErr returns true if err is or wraps ErrConnection.
func IsConnectionErr(err error) bool {
	return errors.Is(err, ErrConnection)
}

// IsQueryErr returns true if err is or wraps ErrQuery.
func IsQueryErr(err error) bool {
	return errors.Is(err, ErrQuery)
}

// IsExecutionErr returns true if err is or wraps ErrExecution.
func IsExecutionErr(err error) bool {
	return errors.Is(err, ErrExecution)
}

// IsFormatErr returns true if err is or wraps ErrFormat.
func IsFormatErr(err error) bool {
	return errors.Is(err, ErrFormat)
}

// IsFilesystemErr returns true if err is or wraps ErrFilesystem.
func IsFilesystemErr(err error) bool {
	return errors.Is(err, ErrFilesystem)
}

// PostgreSQL SQLSTATE classes and codes that mean the database could not be
// reached or refused the session.
const (
	pgClassConnection    = "08" // connection_exception
	pgClassAuthorization = "28" // invalid_authorization_specification
	pgInvalidCatalogName = "3D000"
)
