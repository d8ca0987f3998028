package main

import (
	"context"
	"log"
	"os"

	"github.com/spf13/cobra"

	"pkt.systems/psi"
	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

func main() {
	psi.Run(submain)
}

func submain(ctx context.Context) int {
	logger := pslog.LoggerFromEnv(
		pslog.WithEnvWriter(os.Stderr),
		pslog.WithEnvOptions(pslog.Options{Mode: pslog.ModeConsole}),
	)
	ctx = pslog.ContextWithLogger(ctx, logger)
	log.SetOutput(pslog.LogLogger(logger).Writer())
	log.SetFlags(0)

	root := newRootCmd()
	root.SetArgs(os.Args[1:])

	if err := root.ExecuteContext(ctx); err != nil {
		pslog.Ctx(ctx).With("err", err).Error("sshtabs command failed")
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	var cfgPath string
	var noBanner bool
	var theme string
	root := &cobra.Command{
		Use:           "sshtabs",
		Short:         "Tabbed SSH sessions in one terminal",
		SilenceErrors: true,
		SilenceUsage:  true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), tuiFlags{
				cfgPath:  cfgPath,
				noBanner: noBanner,
				theme:    theme,
			})
		},
	}
	root.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	root.Flags().BoolVar(&noBanner, "no-banner", false, "skip the startup banner")
	root.Flags().StringVar(&theme, "theme", "", "override ui.theme ("+schema.ThemeList()+")")

	root.AddCommand(newProfilesCmd())
	root.AddCommand(newKeysCmd())
	root.AddCommand(newConfigCmd())
	root.AddCommand(newVersionCmd())

	return root
}
