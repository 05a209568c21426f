package main

import (
	"context"
	"os"

	"github.com/crmarques/remotable/core"
	"github.com/crmarques/remotable/internal/cli"
)

func main() {
	if err := cli.Execute(newDependencies()); err != nil {
		os.Exit(exitCodeForError(err))
	}
}

func newDependencies() cli.Dependencies {
	return cli.Dependencies{
		Loader: core.NewConfigLoader(),
		Open:   openSession,
	}
}

func openSession(ctx context.Context, configPath string) (cli.Session, error) {
	remotable, err := core.NewRemotable(ctx, core.BootstrapConfig{ConfigPath: configPath})
	if err != nil {
		return nil, err
	}
	return remotable, nil
}

func exitCodeForError(err error) int {
	return cli.ExitCodeForError(err)
}
