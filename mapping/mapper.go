package mapping

import (
	"fmt"
	"sort"
	"strings"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/record"
	"github.com/crmarques/remotable/remote"
)

// Attribute pairs a remote field name with the local attribute it feeds.
type Attribute struct {
	Remote string
	Local  string
}

// Mapper translates between local attribute names and remote field names.
// It is immutable once built and safe for concurrent use.
type Mapper struct {
	attributes    []Attribute
	identity      *Attribute
	remoteToLocal map[string]string
	localToRemote map[string]string
	outbound      map[string]struct{}
}

type Builder struct {
	attributes []Attribute
	identity   *Attribute
	outbound   []string
	errs       []string
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Attr declares attributes that share the same name locally and remotely.
func (b *Builder) Attr(names ...string) *Builder {
	for _, name := range names {
		b.Map(name, name)
	}
	return b
}

func (b *Builder) Map(remoteName string, localName string) *Builder {
	remoteName = strings.TrimSpace(remoteName)
	localName = strings.TrimSpace(localName)
	if remoteName == "" || localName == "" {
		b.errs = append(b.errs, "attribute mapping requires remote and local names")
		return b
	}
	b.attributes = append(b.attributes, Attribute{Remote: remoteName, Local: localName})
	return b
}

// Identity declares the remote identifier field and the local attribute that
// caches it.
func (b *Builder) Identity(remoteName string, localName string) *Builder {
	remoteName = strings.TrimSpace(remoteName)
	localName = strings.TrimSpace(localName)
	if remoteName == "" || localName == "" {
		b.errs = append(b.errs, "identity mapping requires remote and local names")
		return b
	}
	if b.identity != nil {
		b.errs = append(b.errs, "identity mapping declared more than once")
		return b
	}
	b.identity = &Attribute{Remote: remoteName, Local: localName}
	return b
}

// Outbound restricts the local attributes sent to the remote source. Without
// it every mapped attribute except the identity is sent.
func (b *Builder) Outbound(localNames ...string) *Builder {
	b.outbound = append(b.outbound, localNames...)
	return b
}

func (b *Builder) Build() (*Mapper, error) {
	if len(b.errs) > 0 {
		return nil, configurationError(strings.Join(b.errs, "; "))
	}

	mapper := &Mapper{
		attributes:    append([]Attribute(nil), b.attributes...),
		remoteToLocal: map[string]string{},
		localToRemote: map[string]string{},
	}

	all := append([]Attribute(nil), b.attributes...)
	if b.identity != nil {
		identity := *b.identity
		mapper.identity = &identity
		all = append(all, identity)
	}
	if len(all) == 0 {
		return nil, configurationError("attribute mapping is empty")
	}

	for _, attribute := range all {
		if _, exists := mapper.remoteToLocal[attribute.Remote]; exists {
			return nil, configurationError(fmt.Sprintf("remote field %q is mapped more than once", attribute.Remote))
		}
		if _, exists := mapper.localToRemote[attribute.Local]; exists {
			return nil, configurationError(fmt.Sprintf("local attribute %q is mapped more than once", attribute.Local))
		}
		mapper.remoteToLocal[attribute.Remote] = attribute.Local
		mapper.localToRemote[attribute.Local] = attribute.Remote
	}

	if len(b.outbound) > 0 {
		mapper.outbound = make(map[string]struct{}, len(b.outbound))
		for _, localName := range b.outbound {
			localName = strings.TrimSpace(localName)
			if _, mapped := mapper.localToRemote[localName]; !mapped {
				return nil, configurationError(fmt.Sprintf("outbound attribute %q is not mapped", localName))
			}
			mapper.outbound[localName] = struct{}{}
		}
	}

	return mapper, nil
}

// Attributes lists the non-identity mappings in declaration order.
func (m *Mapper) Attributes() []Attribute {
	return append([]Attribute(nil), m.attributes...)
}

func (m *Mapper) Identity() (Attribute, bool) {
	if m.identity == nil {
		return Attribute{}, false
	}
	return *m.identity, true
}

func (m *Mapper) IdentityLocal() string {
	if m.identity == nil {
		return ""
	}
	return m.identity.Local
}

func (m *Mapper) LocalName(remoteName string) (string, bool) {
	localName, found := m.remoteToLocal[remoteName]
	return localName, found
}

func (m *Mapper) RemoteName(localName string) (string, bool) {
	remoteName, found := m.localToRemote[localName]
	return remoteName, found
}

// LocalAttributes lists every mapped local attribute, identity included.
func (m *Mapper) LocalAttributes() []string {
	names := make([]string, 0, len(m.attributes)+1)
	for _, attribute := range m.attributes {
		names = append(names, attribute.Local)
	}
	if m.identity != nil {
		names = append(names, m.identity.Local)
	}
	return names
}

func (m *Mapper) isOutbound(attribute Attribute) bool {
	if m.outbound == nil {
		return true
	}
	_, found := m.outbound[attribute.Local]
	return found
}

// ToRemotePayload builds the full outbound payload for rec.
func (m *Mapper) ToRemotePayload(rec *record.Record) remote.Payload {
	payload := remote.Payload{}
	values := rec.Attributes()
	for _, attribute := range m.attributes {
		if !m.isOutbound(attribute) {
			continue
		}
		value, exists := values[attribute.Local]
		if !exists {
			continue
		}
		payload[attribute.Remote] = value
	}
	return payload
}

// ChangedPayload builds an outbound payload limited to changed attributes.
func (m *Mapper) ChangedPayload(rec *record.Record) remote.Payload {
	payload := remote.Payload{}
	for _, attribute := range m.attributes {
		if !m.isOutbound(attribute) || !rec.AttributeChanged(attribute.Local) {
			continue
		}
		payload[attribute.Remote] = rec.Get(attribute.Local)
	}
	return payload
}

func (m *Mapper) AnyRemoteChanges(rec *record.Record) bool {
	for _, attribute := range m.attributes {
		if m.isOutbound(attribute) && rec.AttributeChanged(attribute.Local) {
			return true
		}
	}
	return false
}

// MergeFromRemote copies every mapped field present in payload onto rec.
// Fields absent from payload leave the local value untouched.
func (m *Mapper) MergeFromRemote(rec *record.Record, payload remote.Payload) {
	for remoteName, localName := range m.remoteToLocal {
		value, exists := payload[remoteName]
		if !exists {
			continue
		}
		rec.Set(localName, value)
	}
}

// MapErrors re-keys remote field errors by local attribute name. Errors on
// unmapped fields are collected under faults.BaseField.
func (m *Mapper) MapErrors(remoteErrors faults.FieldErrors) faults.FieldErrors {
	remoteNames := make([]string, 0, len(remoteErrors))
	for remoteName := range remoteErrors {
		remoteNames = append(remoteNames, remoteName)
	}
	sort.Strings(remoteNames)

	mapped := faults.FieldErrors{}
	for _, remoteName := range remoteNames {
		localName, found := m.remoteToLocal[remoteName]
		if !found {
			localName = faults.BaseField
		}
		mapped.Add(localName, remoteErrors[remoteName]...)
	}
	return mapped
}

func configurationError(message string) error {
	return faults.NewTypedError(faults.ConfigurationError, message, nil)
}
