package descriptor

import (
	"fmt"
	"strings"
	"time"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/freshness"
	"github.com/crmarques/remotable/mapping"
	"github.com/crmarques/remotable/record"
	"github.com/crmarques/remotable/remotepath"
)

type RemoteKey struct {
	Attributes []string
	Path       string
}

// Descriptor is the immutable remote configuration of one record type.
type Descriptor struct {
	name       string
	table      string
	endpoint   string
	format     string
	mapper     *mapping.Mapper
	remoteKey  *RemoteKey
	fetchPaths map[string]string
	ttl        time.Duration
	listJQ     string
}

type Builder struct {
	descriptor Descriptor
	errs       []string
}

func NewBuilder(name string) *Builder {
	return &Builder{descriptor: Descriptor{
		name:       strings.TrimSpace(name),
		fetchPaths: map[string]string{},
		ttl:        freshness.DefaultTTL,
	}}
}

func (b *Builder) Table(table string) *Builder {
	b.descriptor.table = strings.TrimSpace(table)
	return b
}

// Endpoint sets the collection path of the remote resource, relative to the
// gateway base URL (for example "accounts").
func (b *Builder) Endpoint(endpoint string) *Builder {
	b.descriptor.endpoint = strings.Trim(strings.TrimSpace(endpoint), "/")
	return b
}

// Format sets the extension appended to every remote path ("json").
func (b *Builder) Format(format string) *Builder {
	b.descriptor.format = strings.TrimPrefix(strings.TrimSpace(format), ".")
	return b
}

func (b *Builder) Mapper(mapper *mapping.Mapper) *Builder {
	b.descriptor.mapper = mapper
	return b
}

// RemoteKey declares the local attributes used to address the remote
// resource when no remote identifier is cached. A composite key requires a
// path template.
func (b *Builder) RemoteKey(attributes []string, path string) *Builder {
	trimmed := make([]string, 0, len(attributes))
	for _, attribute := range attributes {
		if attribute = strings.TrimSpace(attribute); attribute != "" {
			trimmed = append(trimmed, attribute)
		}
	}
	if len(trimmed) == 0 {
		b.errs = append(b.errs, "remote key requires at least one attribute")
		return b
	}
	b.descriptor.remoteKey = &RemoteKey{Attributes: trimmed, Path: strings.Trim(strings.TrimSpace(path), "/")}
	return b
}

// FetchWith registers attribute as a remote lookup attribute. An empty path
// uses the default by_<attribute>/:<attribute> template.
func (b *Builder) FetchWith(attribute string, path string) *Builder {
	attribute = strings.TrimSpace(attribute)
	if attribute == "" {
		b.errs = append(b.errs, "fetch-with requires an attribute")
		return b
	}
	path = strings.Trim(strings.TrimSpace(path), "/")
	if path == "" {
		path = remotepath.DefaultFetchTemplate(attribute)
	}
	b.descriptor.fetchPaths[attribute] = path
	return b
}

func (b *Builder) TTL(ttl time.Duration) *Builder {
	if ttl > 0 {
		b.descriptor.ttl = ttl
	}
	return b
}

// ListJQ sets a jq expression that reduces a list response to an array.
func (b *Builder) ListJQ(expression string) *Builder {
	b.descriptor.listJQ = strings.TrimSpace(expression)
	return b
}

func (b *Builder) Build() (*Descriptor, error) {
	descriptor := b.descriptor
	errs := append([]string(nil), b.errs...)

	if descriptor.name == "" {
		errs = append(errs, "record type name is required")
	}
	if descriptor.table == "" {
		descriptor.table = descriptor.name
	}
	if descriptor.endpoint == "" {
		errs = append(errs, "remote endpoint is required")
	}
	if descriptor.mapper == nil {
		errs = append(errs, "attribute mapping is required")
	}
	if len(errs) > 0 {
		return nil, configurationError(fmt.Sprintf("record type %q: %s", descriptor.name, strings.Join(errs, "; ")))
	}

	if descriptor.remoteKey != nil {
		key := *descriptor.remoteKey
		key.Attributes = append([]string(nil), key.Attributes...)
		for _, attribute := range key.Attributes {
			if _, mapped := descriptor.mapper.RemoteName(attribute); !mapped {
				errs = append(errs, fmt.Sprintf("remote key attribute %q is not mapped", attribute))
			}
		}
		if key.Path == "" {
			if len(key.Attributes) > 1 {
				errs = append(errs, "composite remote key requires a path template")
			} else {
				key.Path = remotepath.DefaultFetchTemplate(key.Attributes[0])
			}
		}
		if err := checkPlaceholders(key.Path, key.Attributes); err != nil {
			errs = append(errs, err.Error())
		}
		descriptor.remoteKey = &key
	}
	if descriptor.remoteKey == nil && descriptor.mapper.IdentityLocal() == "" {
		errs = append(errs, "either an identity mapping or a remote key is required")
	}

	fetchPaths := make(map[string]string, len(descriptor.fetchPaths))
	for attribute, path := range descriptor.fetchPaths {
		if _, mapped := descriptor.mapper.RemoteName(attribute); !mapped {
			errs = append(errs, fmt.Sprintf("fetch-with attribute %q is not mapped", attribute))
		}
		if err := checkPlaceholders(path, []string{attribute}); err != nil {
			errs = append(errs, err.Error())
		}
		fetchPaths[attribute] = path
	}
	descriptor.fetchPaths = fetchPaths

	if len(errs) > 0 {
		return nil, configurationError(fmt.Sprintf("record type %q: %s", descriptor.name, strings.Join(errs, "; ")))
	}
	return &descriptor, nil
}

func (d *Descriptor) Name() string              { return d.name }
func (d *Descriptor) Table() string             { return d.table }
func (d *Descriptor) Endpoint() string          { return d.endpoint }
func (d *Descriptor) Format() string            { return d.format }
func (d *Descriptor) Mapper() *mapping.Mapper   { return d.mapper }
func (d *Descriptor) TTL() time.Duration        { return d.ttl }
func (d *Descriptor) ListJQ() string            { return d.listJQ }
func (d *Descriptor) IdentityAttribute() string { return d.mapper.IdentityLocal() }

func (d *Descriptor) RemoteKey() (RemoteKey, bool) {
	if d.remoteKey == nil {
		return RemoteKey{}, false
	}
	return RemoteKey{Attributes: append([]string(nil), d.remoteKey.Attributes...), Path: d.remoteKey.Path}, true
}

// UniqueKeys lists the local attribute sets that identify at most one row.
func (d *Descriptor) UniqueKeys() [][]string {
	var keys [][]string
	if identity := d.mapper.IdentityLocal(); identity != "" {
		keys = append(keys, []string{identity})
	}
	if d.remoteKey != nil {
		keys = append(keys, append([]string(nil), d.remoteKey.Attributes...))
	}
	return keys
}

func (d *Descriptor) CollectionPath() string {
	return remotepath.Expand(d.endpoint, "", d.format)
}

func (d *Descriptor) MemberPath(remoteID any) (string, error) {
	rendered, err := remotepath.ForSimpleKey(":id", "id", remoteID)
	if err != nil {
		return "", err
	}
	return remotepath.Expand(d.endpoint, rendered, d.format), nil
}

// FetchPath returns the lookup path for a single attribute value: the
// configured fetch-with template, the single-attribute remote key template, or
// the default by_<attribute> template.
func (d *Descriptor) FetchPath(attribute string, value any) (string, error) {
	template, configured := d.fetchPaths[attribute]
	if !configured && d.remoteKey != nil && len(d.remoteKey.Attributes) == 1 && d.remoteKey.Attributes[0] == attribute {
		template = d.remoteKey.Path
		configured = true
	}
	if !configured {
		template = remotepath.DefaultFetchTemplate(attribute)
	}

	rendered, err := remotepath.ForSimpleKey(template, attribute, value)
	if err != nil {
		return "", err
	}
	return remotepath.Expand(d.endpoint, rendered, d.format), nil
}

func (d *Descriptor) KeyPath(values []any) (string, error) {
	if d.remoteKey == nil {
		return "", configurationError(fmt.Sprintf("record type %q has no remote key", d.name))
	}
	rendered, err := remotepath.ForCompositeKey(d.remoteKey.Path, d.remoteKey.Attributes, values)
	if err != nil {
		return "", err
	}
	return remotepath.Expand(d.endpoint, rendered, d.format), nil
}

// HasRemoteIdentity reports whether rec caches a remote identifier.
func (d *Descriptor) HasRemoteIdentity(rec *record.Record) bool {
	identity := d.mapper.IdentityLocal()
	return identity != "" && rec.Has(identity)
}

// HasRemoteKey reports whether every remote key attribute of rec is set.
func (d *Descriptor) HasRemoteKey(rec *record.Record) bool {
	if d.remoteKey == nil {
		return false
	}
	for _, attribute := range d.remoteKey.Attributes {
		if !rec.Has(attribute) {
			return false
		}
	}
	return true
}

// IdentityPath addresses the remote resource backing rec. With a remote key
// declared, the key path is used; otherwise the member path of the cached
// remote identifier. A stored record is addressed by the values it was last
// written with, so renaming a key attribute updates the old resource.
func (d *Descriptor) IdentityPath(rec *record.Record) (string, error) {
	if d.HasRemoteKey(rec) {
		values := make([]any, len(d.remoteKey.Attributes))
		for idx, attribute := range d.remoteKey.Attributes {
			values[idx] = addressValue(rec, attribute)
		}
		return d.KeyPath(values)
	}
	if d.HasRemoteIdentity(rec) {
		return d.MemberPath(addressValue(rec, d.mapper.IdentityLocal()))
	}
	return "", faults.NewTypedError(
		faults.ValidationError,
		fmt.Sprintf("%s record has neither a remote identifier nor a remote key", d.name),
		nil,
	)
}

// LookupAttributes returns the local attributes that locate rec in storage,
// preferring the remote identifier.
func (d *Descriptor) LookupAttributes(rec *record.Record) map[string]any {
	if d.HasRemoteIdentity(rec) {
		identity := d.mapper.IdentityLocal()
		return map[string]any{identity: rec.Get(identity)}
	}
	if d.HasRemoteKey(rec) {
		lookup := make(map[string]any, len(d.remoteKey.Attributes))
		for _, attribute := range d.remoteKey.Attributes {
			lookup[attribute] = rec.Get(attribute)
		}
		return lookup
	}
	return nil
}

func addressValue(rec *record.Record, attribute string) any {
	if rec.Persisted() {
		if value, ok := rec.Original(attribute); ok {
			return value
		}
	}
	return rec.Get(attribute)
}

func checkPlaceholders(template string, attributes []string) error {
	allowed := make(map[string]struct{}, len(attributes))
	for _, attribute := range attributes {
		allowed[attribute] = struct{}{}
	}
	for _, placeholder := range remotepath.Placeholders(template) {
		if _, ok := allowed[placeholder]; !ok {
			return fmt.Errorf("path template %q references unknown attribute %q", template, placeholder)
		}
	}
	return nil
}

func configurationError(message string) error {
	return faults.NewTypedError(faults.ConfigurationError, message, nil)
}
