// Package appinfo provides application identity constants.
// These are used across packages for consistent naming.
package appinfo

const (
	// AppName is the display name of the application.
	AppName = "sms900"

	// ConfigFileName is the default configuration file name, relative to the working directory.
	ConfigFileName = "config.json"

	// DatabaseFileName is the default SQLite database file name.
	DatabaseFileName = "sms900.db"

	// LockFileSuffix is appended to the database path to form the single instance lock file.
	LockFileSuffix = ".lock"

	// GlobalIndexFileName is the name of the media index covering every stored MMS.
	GlobalIndexFileName = "mms.html"

	// LocalIndexFileName is the name of the per-message media index.
	LocalIndexFileName = "index.html"
)
