package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/crmarques/remotable/config"
	"github.com/crmarques/remotable/faults"
	"github.com/crmarques/remotable/internal/cli/commandmeta"
	"github.com/crmarques/remotable/internal/cli/common"
	"github.com/spf13/cobra"
)

// Session is the runtime a command works against; core.Remotable is the
// production implementation.
type Session = common.Session

type Dependencies struct {
	Open   func(ctx context.Context, configPath string) (Session, error)
	Loader config.Loader
}

func (d Dependencies) commandDependencies() common.CommandDependencies {
	return common.CommandDependencies{
		Open:   d.Open,
		Loader: d.Loader,
	}
}

func Execute(deps Dependencies) error {
	root := NewRootCommand(deps)
	command, err := root.ExecuteC()
	reportExecution(root.ErrOrStderr(), command, err)
	return err
}

// reportExecution writes the final stderr line. Mutating commands end with an
// [OK] or [ERROR] status unless --no-status is set; anything else only prints
// its error.
func reportExecution(w io.Writer, command *cobra.Command, err error) {
	if !emitsStatus(command) {
		if err != nil {
			_, _ = fmt.Fprintln(w, strings.TrimSpace(err.Error()))
		}
		return
	}
	if err != nil {
		_, _ = fmt.Fprintf(w, "[ERROR] command execution failed: %s.\n", strings.TrimSpace(err.Error()))
		return
	}
	_, _ = fmt.Fprintln(w, "[OK] command executed successfully.")
}

func emitsStatus(command *cobra.Command) bool {
	if command == nil || !commandmeta.EmitsExecutionStatusPath(command.CommandPath()) {
		return false
	}
	if help, _ := command.Flags().GetBool("help"); help {
		return false
	}
	noStatus, _ := command.Flags().GetBool("no-status")
	return !noStatus
}

func ExitCodeForError(err error) int {
	if err == nil {
		return 0
	}

	var typedErr *faults.TypedError
	if !errors.As(err, &typedErr) {
		return 1
	}

	switch typedErr.Category {
	case faults.ValidationError, faults.ConfigurationError:
		return 2
	case faults.NotFoundError:
		return 3
	case faults.AuthError:
		return 4
	case faults.ConflictError:
		return 5
	case faults.TransportError:
		return 6
	case faults.TimeoutError:
		return 7
	case faults.UnavailableError:
		return 8
	default:
		return 1
	}
}
