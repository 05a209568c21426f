package record

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/internal/cli/common"
	"github.com/crmarques/remotable/reconciler"
	recorddomain "github.com/crmarques/remotable/record"
	"github.com/spf13/cobra"
)

// view is the printable form of one record.
type view struct {
	Type            string             `json:"type" yaml:"type"`
	ID              int64              `json:"id" yaml:"id"`
	Attributes      map[string]any     `json:"attributes" yaml:"attributes"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	RemoteUpdatedAt *time.Time         `json:"remote_updated_at,omitempty" yaml:"remote_updated_at,omitempty"`
	Errors          faults.FieldErrors `json:"errors,omitempty" yaml:"errors,omitempty"`
}

type syncSummary struct {
	RecordType string `json:"record_type" yaml:"record_type"`
	Records    []view `json:"records" yaml:"records"`
}

func NewCommands(deps common.CommandDependencies, globalFlags *common.GlobalFlags) []*cobra.Command {
	return []*cobra.Command{
		newFindCommand(deps, globalFlags),
		newFindIDCommand(deps, globalFlags),
		newFindKeyCommand(deps, globalFlags),
		newSyncCommand(deps, globalFlags),
		newSaveCommand(deps, globalFlags),
		newDestroyCommand(deps, globalFlags),
	}
}

type lookupFlags struct {
	force     bool
	rawString bool
}

func bindLookupFlags(command *cobra.Command, flags *lookupFlags) {
	command.Flags().BoolVar(&flags.force, "force", false, "fetch from the remote resource even when the local copy is fresh")
	command.Flags().BoolVar(&flags.rawString, "string", false, "treat lookup values as strings instead of YAML scalars")
}

func (f lookupFlags) value(raw string) any {
	if f.rawString {
		return raw
	}
	return common.ParseScalar(raw)
}

func (f lookupFlags) options() []reconciler.FindOption {
	if f.force {
		return []reconciler.FindOption{reconciler.Force()}
	}
	return nil
}

func newFindCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var flags lookupFlags

	command := &cobra.Command{
		Use:   "find <record-type> <attribute> <value>",
		Short: "Find a record by attribute, fetching it when the local copy is stale",
		Example: `  remotable find tenant slug acme
  remotable find tenant name "Acme Church" --force`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, recordReconciler, err := common.RequireReconciler(cmd.Context(), deps, globalFlags, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			rec, err := recordReconciler.MustFindBy(cmd.Context(), args[1], flags.value(args[2]), flags.options()...)
			if err != nil {
				return err
			}
			return writeRecord(cmd, globalFlags, rec)
		},
	}
	bindLookupFlags(command, &flags)
	return command
}

func newFindIDCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var flags lookupFlags

	command := &cobra.Command{
		Use:   "find-id <record-type> <remote-id>",
		Short: "Find a record by its remote identifier",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, recordReconciler, err := common.RequireReconciler(cmd.Context(), deps, globalFlags, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			rec, err := recordReconciler.FindByRemoteID(cmd.Context(), flags.value(args[1]), flags.options()...)
			if err != nil {
				return err
			}
			if rec == nil {
				return common.NotFoundError(fmt.Sprintf("%s with remote id %s not found", args[0], args[1]))
			}
			return writeRecord(cmd, globalFlags, rec)
		},
	}
	bindLookupFlags(command, &flags)
	return command
}

func newFindKeyCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var flags lookupFlags

	command := &cobra.Command{
		Use:   "find-key <record-type> <value>...",
		Short: "Find a record by the values of its remote key, in key order",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, recordReconciler, err := common.RequireReconciler(cmd.Context(), deps, globalFlags, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			values := make([]any, 0, len(args)-1)
			for _, raw := range args[1:] {
				values = append(values, flags.value(raw))
			}
			rec, err := recordReconciler.FindByKey(cmd.Context(), values, flags.options()...)
			if err != nil {
				return err
			}
			if rec == nil {
				return common.NotFoundError(fmt.Sprintf("%s with key %v not found", args[0], args[1:]))
			}
			return writeRecord(cmd, globalFlags, rec)
		},
	}
	bindLookupFlags(command, &flags)
	return command
}

func newSyncCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var metricsFile string

	command := &cobra.Command{
		Use:   "sync [record-type]...",
		Short: "Fetch remote collections and merge them into the local cache",
		Long:  "Fetch the remote collection of each record type (every configured type when none is given) and create or update the local rows. Local rows missing from a collection are kept.",
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := common.OpenSession(cmd.Context(), deps, globalFlags)
			if err != nil {
				return err
			}
			defer session.Close()

			recordTypes := args
			if len(recordTypes) == 0 {
				recordTypes = session.RecordTypes()
			}

			summaries := make([]syncSummary, 0, len(recordTypes))
			for _, recordType := range recordTypes {
				recordReconciler, err := session.Reconciler(recordType)
				if err != nil {
					return err
				}
				records, err := recordReconciler.AllByRemote(cmd.Context())
				if err != nil {
					return err
				}
				summary := syncSummary{RecordType: recordType, Records: make([]view, 0, len(records))}
				for _, rec := range records {
					summary.Records = append(summary.Records, toView(rec))
				}
				summaries = append(summaries, summary)
			}

			if metricsFile != "" {
				if err := session.WriteMetrics(metricsFile); err != nil {
					return err
				}
			}

			return common.WriteOutput(cmd, common.ResolveOutputFormat(globalFlags), summaries, func(w io.Writer, items []syncSummary) error {
				for _, item := range items {
					if _, err := fmt.Fprintf(w, "%s: %d records\n", item.RecordType, len(item.Records)); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}
	command.Flags().StringVar(&metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile after syncing")
	return command
}

func newSaveCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var (
		inputFlags common.InputFlags
		where      []string
	)

	command := &cobra.Command{
		Use:   "save <record-type>",
		Short: "Create or update a record remotely, then locally",
		Example: `  remotable save tenant --set slug=acme,name=Acme
  remotable save tenant --where slug=acme --set name="Acme Church"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attributes, err := common.DecodeAttributes(cmd, inputFlags)
			if err != nil {
				return err
			}

			session, recordReconciler, err := common.RequireReconciler(cmd.Context(), deps, globalFlags, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			rec := recordReconciler.New()
			if len(where) > 0 {
				rec, err = findExisting(cmd, recordReconciler, where)
				if err != nil {
					return err
				}
			}
			rec.Assign(attributes)

			if err := recordReconciler.Save(cmd.Context(), rec); err != nil {
				return err
			}
			return writeRecord(cmd, globalFlags, rec)
		},
	}
	common.BindInputFlags(command, &inputFlags)
	command.Flags().StringArrayVar(&where, "where", nil, "update the record matching attribute=value instead of creating one")
	return command
}

func newDestroyCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	var flags lookupFlags

	command := &cobra.Command{
		Use:   "destroy <record-type> <attribute> <value>",
		Short: "Destroy a record remotely, then locally",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			session, recordReconciler, err := common.RequireReconciler(cmd.Context(), deps, globalFlags, args[0])
			if err != nil {
				return err
			}
			defer session.Close()

			rec, err := recordReconciler.MustFindBy(cmd.Context(), args[1], flags.value(args[2]), flags.options()...)
			if err != nil {
				return err
			}
			if err := recordReconciler.Destroy(cmd.Context(), rec); err != nil {
				return err
			}
			return common.WriteText(cmd, common.ResolveOutputFormat(globalFlags), fmt.Sprintf("destroyed %s #%d", args[0], rec.ID))
		},
	}
	bindLookupFlags(command, &flags)
	return command
}

func findExisting(cmd *cobra.Command, recordReconciler reconciler.Reconciler, where []string) (*recorddomain.Record, error) {
	lookup := map[string]any{}
	for _, raw := range where {
		if err := common.ApplyAssignments(lookup, raw); err != nil {
			return nil, err
		}
	}
	if len(lookup) != 1 {
		return nil, common.ValidationError("flag --where requires exactly one attribute=value", nil)
	}
	for attribute, value := range lookup {
		return recordReconciler.MustFindBy(cmd.Context(), attribute, value)
	}
	return nil, nil
}

func writeRecord(cmd *cobra.Command, globalFlags *common.GlobalFlags, rec *recorddomain.Record) error {
	return common.WriteOutput(cmd, common.ResolveOutputFormat(globalFlags), toView(rec), renderView)
}

func toView(rec *recorddomain.Record) view {
	return view{
		Type:            rec.Type,
		ID:              rec.ID,
		Attributes:      rec.Attributes(),
		ExpiresAt:       rec.ExpiresAt,
		RemoteUpdatedAt: rec.RemoteUpdatedAt,
		Errors:          rec.Errors,
	}
}

func renderView(w io.Writer, item view) error {
	if _, err := fmt.Fprintf(w, "%s #%d\n", item.Type, item.ID); err != nil {
		return err
	}
	names := make([]string, 0, len(item.Attributes))
	for name := range item.Attributes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if _, err := fmt.Fprintf(w, "  %s: %v\n", name, item.Attributes[name]); err != nil {
			return err
		}
	}
	if item.ExpiresAt != nil {
		if _, err := fmt.Fprintf(w, "  (expires %s)\n", item.ExpiresAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return nil
}
