package core

import (
	"fmt"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/descriptor"
	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/mapping"
	"github.com/crmarques/remotable/store"
)

// BuildDescriptor compiles one configured record type. format is the
// remote path extension shared by every record type.
func BuildDescriptor(recordType config.RecordType, format string) (*descriptor.Descriptor, error) {
	mapperBuilder := mapping.NewBuilder()
	for _, attribute := range recordType.Attributes {
		mapperBuilder.Map(attribute.Remote, attribute.Local)
	}
	if recordType.Identity != nil {
		mapperBuilder.Identity(recordType.Identity.Remote, recordType.Identity.Local)
	}
	if len(recordType.Outbound) > 0 {
		mapperBuilder.Outbound(recordType.Outbound...)
	}
	mapper, err := mapperBuilder.Build()
	if err != nil {
		return nil, faults.NewTypedError(
			faults.ConfigurationError,
			fmt.Sprintf("record type %q has an invalid attribute mapping", recordType.Name),
			err,
		)
	}

	if format == "" {
		format = config.FormatJSON
	}
	builder := descriptor.NewBuilder(recordType.Name).
		Table(recordType.Table).
		Endpoint(recordType.Endpoint).
		Format(format).
		Mapper(mapper).
		TTL(recordType.TTL).
		ListJQ(recordType.ListJQ)
	if recordType.RemoteKey != nil {
		builder.RemoteKey(recordType.RemoteKey.Attributes, recordType.RemoteKey.Path)
	}
	for _, fetchPath := range recordType.FetchWith {
		builder.FetchWith(fetchPath.Attribute, fetchPath.Path)
	}
	return builder.Build()
}

func BuildDescriptors(cfg config.Config) ([]*descriptor.Descriptor, error) {
	descriptors := make([]*descriptor.Descriptor, 0, len(cfg.Records))
	for _, recordType := range cfg.Records {
		desc, err := BuildDescriptor(recordType, cfg.Remote.Format)
		if err != nil {
			return nil, err
		}
		descriptors = append(descriptors, desc)
	}
	return descriptors, nil
}

// TableSpecFor derives the local table of desc: one column per mapped
// attribute and a unique index per remote identity.
func TableSpecFor(desc *descriptor.Descriptor) store.TableSpec {
	return store.TableSpec{
		Name:       desc.Table(),
		RecordType: desc.Name(),
		Columns:    desc.Mapper().LocalAttributes(),
		UniqueKeys: desc.UniqueKeys(),
	}
}
