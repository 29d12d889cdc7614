package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Credentials is a JSON credential blob. The Firestore backend passes it on as
// a service account; the DynamoDB backend reads individual keys from it.
type Credentials struct {
	raw    []byte
	fields map[string]any
}

// ReadCredentialsFile loads credentials from a JSON file.
func ReadCredentialsFile(path string) (*Credentials, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: reading credentials: %v", ErrConfiguration, err)
	}
	return parseCredentials(data)
}

// CredentialsFromMap builds credentials from an in-memory object.
func CredentialsFromMap(m map[string]any) (*Credentials, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("%w: encoding credentials: %v", ErrConfiguration, err)
	}
	return parseCredentials(data)
}

func parseCredentials(data []byte) (*Credentials, error) {
	var fields map[string]any
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("%w: credentials are not a JSON object: %v", ErrConfiguration, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: credentials are empty", ErrConfiguration)
	}
	return &Credentials{raw: data, fields: fields}, nil
}

// JSON returns the credential blob as read.
func (c *Credentials) JSON() []byte {
	return c.raw
}

// String returns the string value stored under key, or "".
func (c *Credentials) String(key string) string {
	s, _ := c.fields[key].(string)
	return s
}

// ProjectID returns the service account's project_id.
func (c *Credentials) ProjectID() (string, error) {
	id := c.String("project_id")
	if id == "" {
		return "", fmt.Errorf("%w: credentials have no project_id", ErrConfiguration)
	}
	return id, nil
}
