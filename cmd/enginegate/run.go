package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aretw0/enginegate/internal/cli"
	"github.com/aretw0/enginegate/internal/presentation/tui"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run [name...]",
	Short: "Run one engine session per name, one after another",
	Long: `Launches the engine once per name. Sessions are admitted one at a time: each waits
for the previous engine to hang up. Inbound frames are printed as "<name> > <payload>".`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		sends, _ := cmd.Flags().GetStringArray("send")
		engineArgs, _ := cmd.Flags().GetStringArray("arg")
		demo, _ := cmd.Flags().GetBool("demo")
		preemptible, _ := cmd.Flags().GetBool("preemptible")
		preempt, _ := cmd.Flags().GetBool("preempt")
		quiet, _ := cmd.Flags().GetBool("quiet")
		if status, _ := cmd.Flags().GetString("status"); status != "" {
			cfg.StatusAddr = status
		}

		if len(args) == 0 {
			args = []string{"engine"}
		}
		jobs := make([]cli.Job, 0, len(args))
		for _, name := range args {
			jobs = append(jobs, cli.Job{
				Name:        name,
				Args:        engineArgs,
				Handshake:   sends,
				Demo:        demo,
				Preemptible: preemptible,
				Preempt:     preempt,
			})
		}

		out := cmd.OutOrStdout()
		if !quiet && tui.IsTerminal(out) {
			tui.PrintBanner(out)
		}

		backends, err := cli.NewBackends(cfg)
		if err != nil {
			return err
		}
		defer backends.Close()

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()

		runner := &cli.Runner{
			Config:    cfg,
			Out:       out,
			Presenter: tui.NewPresenter(os.Stderr),
			Backends:  backends,
			Logger:    logger,
			OnListen: func(addr string) {
				if !quiet {
					fmt.Fprintf(cmd.ErrOrStderr(), ">>> Status server on http://%s\n", addr)
				}
			},
		}
		err = runner.Run(ctx, jobs)
		if ctx.Interrupted() && errors.Is(err, ctx.Err()) {
			if !quiet {
				fmt.Fprintf(cmd.ErrOrStderr(), ">>> Interrupted (%s)\n", strings.ToUpper(ctx.Signal().String()))
			}
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringArrayP("send", "s", nil, "Message sent to the engine once it connects (repeatable)")
	runCmd.Flags().StringArray("arg", nil, "Extra engine argument after the port (repeatable)")
	runCmd.Flags().Bool("demo", false, "Record everything sent to the engine and save it as a demo")
	runCmd.Flags().Bool("preemptible", false, "Waiting sessions may be replaced by a preempting one")
	runCmd.Flags().Bool("preempt", false, "Replace a waiting preemptible session instead of queueing behind it")
	runCmd.Flags().String("status", "", "Serve the status API on this address (overrides status_addr)")
	runCmd.Flags().BoolP("quiet", "q", false, "Suppress banner and system messages")
}
