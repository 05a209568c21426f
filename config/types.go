package config

import (
	"fmt"
	"strings"
	"time"

	"go.yaml.in/yaml/v3"
)

const (
	ConfigFileEnvVar  = "REMOTABLE_CONFIG"
	DefaultConfigPath = "~/.remotable/config.yaml"
	FormatJSON        = "json"
	DefaultTimeout    = 30 * time.Second
)

type Config struct {
	Remote  Remote       `yaml:"remote"`
	Store   Store        `yaml:"store"`
	Records []RecordType `yaml:"records"`
}

type Remote struct {
	BaseURL        string            `yaml:"base-url"`
	Format         string            `yaml:"format,omitempty"`
	Timeout        time.Duration     `yaml:"timeout,omitempty"`
	RateLimit      float64           `yaml:"rate-limit,omitempty"`
	Burst          int               `yaml:"burst,omitempty"`
	DefaultHeaders map[string]string `yaml:"default-headers,omitempty"`
	Auth           *HTTPAuth         `yaml:"auth,omitempty"`
	TLS            *TLS              `yaml:"tls,omitempty"`
}

type HTTPAuth struct {
	BasicAuth    *BasicAuth       `yaml:"basic-auth,omitempty"`
	BearerToken  *BearerTokenAuth `yaml:"bearer-token,omitempty"`
	CustomHeader *HeaderTokenAuth `yaml:"custom-header,omitempty"`
}

type BasicAuth struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BearerTokenAuth struct {
	Token string `yaml:"token"`
}

type HeaderTokenAuth struct {
	Header string `yaml:"header"`
	Token  string `yaml:"token"`
}

type TLS struct {
	CACertFile         string `yaml:"ca-cert-file,omitempty"`
	ClientCertFile     string `yaml:"client-cert-file,omitempty"`
	ClientKeyFile      string `yaml:"client-key-file,omitempty"`
	InsecureSkipVerify bool   `yaml:"insecure-skip-verify,omitempty"`
}

type Store struct {
	SQLite *SQLiteStore `yaml:"sqlite,omitempty"`
}

type SQLiteStore struct {
	DSN string `yaml:"dsn"`
}

// RecordType declares one locally cached record type and the remote
// resource it mirrors.
type RecordType struct {
	Name       string        `yaml:"name"`
	Table      string        `yaml:"table,omitempty"`
	Endpoint   string        `yaml:"endpoint"`
	TTL        time.Duration `yaml:"ttl,omitempty"`
	Attributes []Attribute   `yaml:"attributes"`
	Identity   *Attribute    `yaml:"identity,omitempty"`
	RemoteKey  *RemoteKey    `yaml:"remote-key,omitempty"`
	FetchWith  []FetchPath   `yaml:"fetch-with,omitempty"`
	Outbound   []string      `yaml:"outbound,omitempty"`
	ListJQ     string        `yaml:"list-jq,omitempty"`
}

// Attribute maps a remote field onto a local column. In YAML a plain string
// maps a field onto the column of the same name.
type Attribute struct {
	Remote string `yaml:"remote"`
	Local  string `yaml:"local"`
}

type RemoteKey struct {
	Attributes []string `yaml:"attributes"`
	Path       string   `yaml:"path,omitempty"`
}

type FetchPath struct {
	Attribute string `yaml:"attribute"`
	Path      string `yaml:"path,omitempty"`
}

func (a *Attribute) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		name := strings.TrimSpace(node.Value)
		a.Remote = name
		a.Local = name
		return nil
	}

	type plain Attribute
	var decoded plain
	if err := node.Decode(&decoded); err != nil {
		return err
	}
	if strings.TrimSpace(decoded.Local) == "" {
		decoded.Local = decoded.Remote
	}
	*a = Attribute(decoded)
	return nil
}

func (a Attribute) MarshalYAML() (any, error) {
	if a.Remote == a.Local {
		return a.Remote, nil
	}
	type plain Attribute
	return plain(a), nil
}

func (r RecordType) String() string {
	return fmt.Sprintf("%s (%s)", r.Name, r.Endpoint)
}

// Record returns the declared record type called name.
func (c Config) Record(name string) (RecordType, bool) {
	for _, recordType := range c.Records {
		if recordType.Name == name {
			return recordType, true
		}
	}
	return RecordType{}, false
}

func (c Config) RecordNames() []string {
	names := make([]string, 0, len(c.Records))
	for _, recordType := range c.Records {
		names = append(names, recordType.Name)
	}
	return names
}
