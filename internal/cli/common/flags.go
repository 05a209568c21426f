package common

import "github.com/spf13/cobra"

type GlobalFlags struct {
	ConfigPath string
	Debug      bool
	NoSync     bool
	NoStatus   bool
	NoColor    bool
	Output     string
}

type InputFlags struct {
	Payload string
	Format  string
	Set     []string
}

func BindGlobalFlags(command *cobra.Command, flags *GlobalFlags) {
	command.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "configuration file (defaults to $REMOTABLE_CONFIG, then ~/.remotable/config.yaml)")
	command.PersistentFlags().BoolVarP(&flags.Debug, "debug", "d", false, "enable debug output")
	command.PersistentFlags().BoolVar(&flags.NoSync, "no-sync", false, "work on the local cache only, without remote calls")
	command.PersistentFlags().BoolVarP(&flags.NoStatus, "no-status", "n", false, "hide status output")
	command.PersistentFlags().BoolVar(&flags.NoColor, "no-color", false, "disable color output")
	command.PersistentFlags().StringVarP(&flags.Output, "output", "o", OutputAuto, "output format: auto|text|json|yaml")
	RegisterOutputFlagCompletion(command)
}

// BindInputFlags registers the attribute input flags of write commands.
func BindInputFlags(command *cobra.Command, flags *InputFlags) {
	command.Flags().StringVarP(&flags.Payload, "payload", "f", "", "attributes file path (use '-' to read object from stdin)")
	command.Flags().StringVarP(&flags.Format, "format", "i", OutputJSON, "input format: json|yaml")
	command.Flags().StringArrayVarP(&flags.Set, "set", "s", nil, "attribute assignments: name=value[,name=value]")
	_ = command.RegisterFlagCompletionFunc("format", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{OutputJSON, OutputYAML}, cobra.ShellCompDirectiveNoFileComp
	})
}

func RegisterOutputFlagCompletion(command *cobra.Command) {
	_ = command.RegisterFlagCompletionFunc("output", func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
		return []string{OutputAuto, OutputText, OutputJSON, OutputYAML}, cobra.ShellCompDirectiveNoFileComp
	})
}
