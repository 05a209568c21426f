package file

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/crmarques/remotable/config"
)

func applyConfigDefaults(cfg config.Config) config.Config {
	cfg.Remote.BaseURL = strings.TrimSpace(cfg.Remote.BaseURL)
	cfg.Remote.Format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(cfg.Remote.Format), "."))
	if cfg.Remote.Format == "" {
		cfg.Remote.Format = config.FormatJSON
	}
	if cfg.Remote.Timeout == 0 {
		cfg.Remote.Timeout = config.DefaultTimeout
	}
	if cfg.Remote.RateLimit > 0 && cfg.Remote.Burst == 0 {
		cfg.Remote.Burst = 1
	}

	records := make([]config.RecordType, len(cfg.Records))
	for idx, recordType := range cfg.Records {
		recordType.Name = strings.TrimSpace(recordType.Name)
		recordType.Table = strings.TrimSpace(recordType.Table)
		if recordType.Table == "" {
			recordType.Table = recordType.Name
		}
		recordType.Endpoint = strings.Trim(strings.TrimSpace(recordType.Endpoint), "/")
		records[idx] = recordType
	}
	cfg.Records = records
	return cfg
}

func validateConfig(cfg config.Config) error {
	if err := validateRemote(cfg.Remote); err != nil {
		return err
	}
	if err := validateStore(cfg.Store); err != nil {
		return err
	}
	return validateRecords(cfg.Records)
}

func validateRemote(remote config.Remote) error {
	if remote.BaseURL == "" {
		return validationError("remote.base-url is required", nil)
	}
	parsed, err := url.Parse(remote.BaseURL)
	if err != nil {
		return validationError("remote.base-url is invalid", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return validationError("remote.base-url must use http or https", nil)
	}
	if parsed.Host == "" {
		return validationError("remote.base-url host is required", nil)
	}
	if remote.Timeout < 0 {
		return validationError("remote.timeout must not be negative", nil)
	}
	if remote.RateLimit < 0 {
		return validationError("remote.rate-limit must not be negative", nil)
	}
	if remote.Burst < 0 {
		return validationError("remote.burst must not be negative", nil)
	}
	if remote.TLS != nil {
		clientCert := strings.TrimSpace(remote.TLS.ClientCertFile)
		clientKey := strings.TrimSpace(remote.TLS.ClientKeyFile)
		if (clientCert == "") != (clientKey == "") {
			return validationError("remote.tls requires both client-cert-file and client-key-file", nil)
		}
	}
	return validateAuth(remote.Auth)
}

func validateAuth(auth *config.HTTPAuth) error {
	if auth == nil {
		return nil
	}

	if countSet(auth.BasicAuth != nil, auth.BearerToken != nil, auth.CustomHeader != nil) != 1 {
		return validationError("remote.auth must define exactly one of basic-auth, bearer-token, custom-header", nil)
	}
	if auth.BasicAuth != nil && (auth.BasicAuth.Username == "" || auth.BasicAuth.Password == "") {
		return validationError("remote.auth.basic-auth requires username and password", nil)
	}
	if auth.BearerToken != nil && auth.BearerToken.Token == "" {
		return validationError("remote.auth.bearer-token.token is required", nil)
	}
	if auth.CustomHeader != nil && (auth.CustomHeader.Header == "" || auth.CustomHeader.Token == "") {
		return validationError("remote.auth.custom-header requires header and token", nil)
	}
	return nil
}

func validateStore(storeConfig config.Store) error {
	if storeConfig.SQLite == nil {
		return validationError("store must define sqlite", nil)
	}
	if strings.TrimSpace(storeConfig.SQLite.DSN) == "" {
		return validationError("store.sqlite.dsn is required", nil)
	}
	return nil
}

func validateRecords(records []config.RecordType) error {
	if len(records) == 0 {
		return validationError("records must declare at least one record type", nil)
	}

	names := map[string]struct{}{}
	tables := map[string]string{}
	for idx, recordType := range records {
		scope := fmt.Sprintf("records[%d]", idx)
		if recordType.Name == "" {
			return validationError(scope+".name is required", nil)
		}
		scope = fmt.Sprintf("records[%s]", recordType.Name)
		if _, exists := names[recordType.Name]; exists {
			return validationError(fmt.Sprintf("duplicate record type name %q", recordType.Name), nil)
		}
		names[recordType.Name] = struct{}{}

		if owner, exists := tables[recordType.Table]; exists {
			return validationError(fmt.Sprintf("%s.table %q is already used by %q", scope, recordType.Table, owner), nil)
		}
		tables[recordType.Table] = recordType.Name

		if recordType.Endpoint == "" {
			return validationError(scope+".endpoint is required", nil)
		}
		if recordType.TTL < 0 {
			return validationError(scope+".ttl must not be negative", nil)
		}
		if len(recordType.Attributes) == 0 && recordType.Identity == nil {
			return validationError(scope+".attributes must not be empty", nil)
		}
		for attrIdx, attribute := range recordType.Attributes {
			if strings.TrimSpace(attribute.Remote) == "" || strings.TrimSpace(attribute.Local) == "" {
				return validationError(fmt.Sprintf("%s.attributes[%d] requires remote and local names", scope, attrIdx), nil)
			}
		}
		if recordType.Identity != nil && (recordType.Identity.Remote == "" || recordType.Identity.Local == "") {
			return validationError(scope+".identity requires remote and local names", nil)
		}
		if recordType.RemoteKey != nil && len(recordType.RemoteKey.Attributes) == 0 {
			return validationError(scope+".remote-key.attributes must not be empty", nil)
		}
		if recordType.Identity == nil && recordType.RemoteKey == nil {
			return validationError(scope+" requires identity or remote-key", nil)
		}
		for fetchIdx, fetchPath := range recordType.FetchWith {
			if strings.TrimSpace(fetchPath.Attribute) == "" {
				return validationError(fmt.Sprintf("%s.fetch-with[%d].attribute is required", scope, fetchIdx), nil)
			}
		}
	}
	return nil
}

func countSet(values ...bool) int {
	count := 0
	for _, value := range values {
		if value {
			count++
		}
	}
	return count
}
