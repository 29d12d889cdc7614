package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

// File is the content of config.yaml. Every field is optional; zero values
// leave the built-in default in place.
type File struct {
	Backend            string   `yaml:"backend"`
	RequestCountLimit  int      `yaml:"requestCountLimit"`
	RequestsPerSecond  float64  `yaml:"requestsPerSecond"`
	PrettyPrint        *bool    `yaml:"prettyPrint"`
	ExcludeCollections []string `yaml:"excludeCollections"`
	MetricsFile        string   `yaml:"metricsFile"`
	Logging            string   `yaml:"logging"`

	DynamoDB DynamoDBFile `yaml:"dynamodb"`
}

// DynamoDBFile holds the DynamoDB backend defaults.
type DynamoDBFile struct {
	Table string `yaml:"table"`
}

// LoadFile reads the defaults file at path. A missing file is not an error
// and yields an empty File.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return &File{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrConfiguration, path, err)
	}
	return &f, nil
}

// Apply copies the defaults from f into opts. set reports whether a flag was
// given explicitly on the command line; explicit flags are left alone.
func (f *File) Apply(opts *Options, set func(flag string) bool) {
	if f == nil {
		return
	}
	if f.Backend != "" && !set(FlagBackend) {
		opts.Backend = f.Backend
	}
	if f.RequestCountLimit != 0 && !set(FlagRequestCountLimit) {
		opts.RequestCountLimit = f.RequestCountLimit
	}
	if f.RequestsPerSecond != 0 && !set(FlagRequestsPerSecond) {
		opts.RequestsPerSecond = f.RequestsPerSecond
	}
	if f.PrettyPrint != nil && !set(FlagPrettyPrint) {
		opts.PrettyPrint = *f.PrettyPrint
	}
	if len(f.ExcludeCollections) > 0 && !set(FlagExcludeCollections) {
		opts.ExcludeCollections = append([]string(nil), f.ExcludeCollections...)
	}
	if f.MetricsFile != "" && !set(FlagMetricsFile) {
		opts.MetricsFile = f.MetricsFile
	}
	if f.Logging != "" && !set(FlagLogLevel) {
		opts.LogLevel = f.Logging
	}
	if f.DynamoDB.Table != "" && !set(FlagDynamoTable) {
		opts.DynamoTable = f.DynamoDB.Table
	}
}
