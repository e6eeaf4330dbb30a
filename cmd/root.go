// cmd/root.go
package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/misim/misim/sim"
)

var (
	architecturePath string
	experimentPath   string
	scenarioPath     string
	seed             int64
	progressBar      bool
	reportDir        string
	logLevel         string
)

var rootCmd = &cobra.Command{
	Use:   "misim",
	Short: "Discrete-event simulator for microservice architectures",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a simulation from an architecture description and an experiment or scenario",
	RunE: func(cmd *cobra.Command, args []string) error {
		level, err := logrus.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("invalid log level %q: %w", logLevel, err)
		}
		logrus.SetLevel(level)

		if architecturePath == "" {
			return fmt.Errorf("--architecture is required")
		}
		if experimentPath == "" && scenarioPath == "" {
			return fmt.Errorf("one of --experiment or --scenario is required")
		}

		af, err := LoadArchitecture(architecturePath)
		if err != nil {
			return err
		}

		experimentFile := experimentPath
		if experimentFile == "" {
			experimentFile = scenarioPath
		}
		ef, err := LoadExperiment(experimentFile)
		if err != nil {
			return err
		}
		if ef.Seed == 0 {
			ef.Seed = seed
		}

		sink := NewReportSink()
		ctx := sim.NewContext(ef.Duration, ef.Seed, sink)

		cl, net, err := BuildCluster(ctx, af)
		if err != nil {
			return err
		}
		if _, err := BuildExperiment(ctx, ef, cl, net); err != nil {
			return err
		}

		if progressBar {
			logrus.Info("progress bar rendering is out of core scope; ticks are logged at Debug level")
		}

		ctx.Run(nil)

		logrus.Infof("simulation complete: %d datapoints recorded over %.2f ticks", sink.Len(), ctx.Now())
		_ = reportDir // report directory preparation is out of core scope (§1)
		return nil
	},
}

// Execute runs the root command, exiting non-zero on parsing or
// simulation error (§6 CLI surface contract).
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	runCmd.Flags().StringVar(&architecturePath, "architecture", "", "path to the architecture description file")
	runCmd.Flags().StringVar(&experimentPath, "experiment", "", "path to the experiment description file")
	runCmd.Flags().StringVar(&scenarioPath, "scenario", "", "path to the ATAM scenario description file")
	runCmd.Flags().Int64Var(&seed, "seed", 1, "random seed for load-balancer/chaos/retry/workload RNG streams")
	runCmd.Flags().BoolVar(&progressBar, "progress-bar", false, "render a progress bar (out of core scope; stubbed)")
	runCmd.Flags().StringVar(&reportDir, "report-dir", "./reports", "report base directory (out of core scope; stubbed)")
	runCmd.Flags().StringVar(&logLevel, "log", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(runCmd)
}
