package main

import (
	"database/sql"
	"io"
	"os"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/featureswitch"
)

var (
	isTerminalFunc = func(w io.Writer) bool { // mockable
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd()))
	}

	errHelp = errors.New("help provided")
)

type commandLine struct {
	conf       *core.Config
	db         *sql.DB // nil when storage is in memory
	ruleSvc    *featureswitch.Service
	validate   *validator.Validate
	translator ut.Translator
	out        io.Writer
}

func (cli *commandLine) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "admin",
		Short:         "Masomo admin CLI: migrations, restriction rules and gate checks",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Usage()
			return errHelp
		},
	}
	root.SetOut(cli.out)
	root.SetErr(cli.out)

	root.AddCommand(cli.migrateCmd(), cli.rulesCmd(), cli.gateCmd())
	return root
}

// run executes args (program name included) and returns errHelp when usage was printed instead.
func (cli *commandLine) run(args []string) error {
	root := cli.rootCmd()
	if len(args) > 1 {
		root.SetArgs(args[1:])
	} else {
		root.SetArgs([]string{})
	}
	return root.Execute()
}

// usageErr prints cmd's usage and returns errHelp.
func usageErr(cmd *cobra.Command) error {
	_ = cmd.Usage()
	return errHelp
}
