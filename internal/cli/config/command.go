package config

import (
	"fmt"
	"io"
	"strings"

	configdomain "github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/internal/cli/common"
	"github.com/spf13/cobra"
)

const redactedValue = "<redacted>"

func NewCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Inspect the remotable configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	command.AddCommand(
		newCheckCommand(deps, globalFlags),
		newShowCommand(deps, globalFlags),
		newPathCommand(deps, globalFlags),
	)
	return command
}

func newCheckCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Load and validate the configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := common.RequireLoader(deps)
			if err != nil {
				return err
			}
			cfg, err := loader.Load(cmd.Context(), globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return common.WriteText(cmd, common.OutputText, fmt.Sprintf(
				"configuration is valid: %d record types (%s)",
				len(cfg.Records),
				strings.Join(cfg.RecordNames(), ", "),
			))
		},
	}
}

func newShowCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the loaded configuration with credentials redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := common.RequireLoader(deps)
			if err != nil {
				return err
			}
			cfg, err := loader.Load(cmd.Context(), globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return common.WriteOutput(cmd, common.OutputYAML, redact(cfg), func(w io.Writer, value configdomain.Config) error {
				encoded, err := common.MarshalYAML(value)
				if err != nil {
					return err
				}
				_, err = w.Write(encoded)
				return err
			})
		},
	}
}

func newPathCommand(deps common.CommandDependencies, globalFlags *common.GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the resolved configuration file path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			loader, err := common.RequireLoader(deps)
			if err != nil {
				return err
			}
			path, err := loader.ResolvePath(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return common.WriteText(cmd, common.OutputText, path)
		},
	}
}

func redact(cfg configdomain.Config) configdomain.Config {
	auth := cfg.Remote.Auth
	if auth == nil {
		return cfg
	}

	redacted := *auth
	if redacted.BasicAuth != nil {
		basic := *redacted.BasicAuth
		basic.Password = redactedValue
		redacted.BasicAuth = &basic
	}
	if redacted.BearerToken != nil {
		redacted.BearerToken = &configdomain.BearerTokenAuth{Token: redactedValue}
	}
	if redacted.CustomHeader != nil {
		header := *redacted.CustomHeader
		header.Token = redactedValue
		redacted.CustomHeader = &header
	}
	cfg.Remote.Auth = &redacted
	return cfg
}
