package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrConfiguration marks an invocation that cannot start: missing or
// unreadable credentials, a missing backup path or an invalid setting.
var ErrConfiguration = errors.New("configuration error")

// MaxRequestCount caps the number of store requests in flight.
const MaxRequestCount = 3

// Supported store backends.
const (
	BackendFirestore = "firestore"
	BackendDynamoDB  = "dynamodb"
)

// Flag names shared by the backup and restore commands.
const (
	FlagAccountCredentials = "accountCredentials"
	FlagBackupPath         = "backupPath"
	FlagPrettyPrint        = "prettyPrint"
	FlagStartPath          = "databaseStartPath"
	FlagRequestCountLimit  = "requestCountLimit"
	FlagExcludeCollections = "excludeCollections"
	FlagBackend            = "backend"
	FlagDynamoTable        = "dynamoTable"
	FlagRequestsPerSecond  = "requestsPerSecond"
	FlagMetricsFile        = "metricsFile"
	FlagDryRun             = "dry-run"
	FlagLogLevel           = "log-level"
)

// Options is one backup or restore invocation.
type Options struct {
	// CredentialsFile is the path to a JSON credential blob.
	CredentialsFile string

	// Credentials is an in-memory credential object; it takes precedence
	// over CredentialsFile when both are set.
	Credentials map[string]any

	// BackupPath is the root of the file tree written by backup and read by
	// restore.
	BackupPath string

	// StartPath scopes the traversal; empty means the database root.
	StartPath string

	PrettyPrint        bool
	RequestCountLimit  int
	ExcludeCollections []string

	Backend           string
	DynamoTable       string
	RequestsPerSecond float64
	MetricsFile       string
	DryRun            bool
	LogLevel          string
}

// DefaultOptions returns the built-in defaults.
func DefaultOptions() Options {
	return Options{
		RequestCountLimit: 1,
		Backend:           BackendFirestore,
		LogLevel:          "<root>=INFO",
	}
}

// Validate reports the first problem that prevents the run from starting.
// It checks that the credential file exists but does not parse it.
func (o *Options) Validate() error {
	if o.Credentials == nil {
		if o.CredentialsFile == "" {
			return fmt.Errorf("%w: account credentials are required (--%s)", ErrConfiguration, FlagAccountCredentials)
		}
		info, err := os.Stat(o.CredentialsFile)
		if err != nil {
			return fmt.Errorf("%w: account credentials file %q: %v", ErrConfiguration, o.CredentialsFile, err)
		}
		if info.IsDir() {
			return fmt.Errorf("%w: account credentials file %q is a directory", ErrConfiguration, o.CredentialsFile)
		}
	}

	if strings.TrimSpace(o.BackupPath) == "" {
		return fmt.Errorf("%w: backup path is required (--%s)", ErrConfiguration, FlagBackupPath)
	}

	if o.RequestCountLimit < 1 {
		return fmt.Errorf("%w: --%s must be at least 1, got %d", ErrConfiguration, FlagRequestCountLimit, o.RequestCountLimit)
	}
	if o.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: --%s must not be negative", ErrConfiguration, FlagRequestsPerSecond)
	}

	switch o.Backend {
	case BackendFirestore:
	case BackendDynamoDB:
		if o.DynamoTable == "" {
			return fmt.Errorf("%w: --%s is required for the %s backend", ErrConfiguration, FlagDynamoTable, BackendDynamoDB)
		}
	default:
		return fmt.Errorf("%w: unknown backend %q (want %s or %s)", ErrConfiguration, o.Backend, BackendFirestore, BackendDynamoDB)
	}

	for _, id := range o.ExcludeCollections {
		if id == "" || strings.Contains(id, "/") {
			return fmt.Errorf("%w: invalid excluded collection id %q", ErrConfiguration, id)
		}
	}

	return nil
}

// EffectiveRequestLimit maps a requested limit to the number of requests
// actually allowed in flight.
func EffectiveRequestLimit(n int) int {
	if n <= 1 {
		return 1
	}
	return min(n, MaxRequestCount)
}

// LoadCredentials returns the configured credentials.
func (o *Options) LoadCredentials() (*Credentials, error) {
	if o.Credentials != nil {
		return CredentialsFromMap(o.Credentials)
	}
	return ReadCredentialsFile(o.CredentialsFile)
}
