package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"

	cli "go.dedis.ch/mupol/cmd"
	"go.dedis.ch/mupol/plaintext"
)

func main() {
	var level string

	command := &cobra.Command{
		Use:   "mupol",
		Short: "Secure assignment of transport orders to freighters",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			lvl, err := zerolog.ParseLevel(level)
			if err != nil {
				return err
			}
			zerolog.SetGlobalLevel(lvl)
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
			return nil
		},
		SilenceUsage: true,
	}
	command.PersistentFlags().StringVar(&level, "log-level", "error", "Log level (trace, debug, info, warn, error)")

	addSimulateCmd(command)
	addPartyCmd(command)
	addProfileCmd(command)
	addGenerateCmd(command)

	err := command.ExecuteContext(context.Background())
	if err != nil {
		os.Exit(1)
	}
}

// addSimulateCmd runs every party of a problem in this process
func addSimulateCmd(command *cobra.Command) {
	var problemPath, settingsPath string
	var check bool

	simulateCmd := &cobra.Command{
		Use:   "simulate",
		Short: "Run all parties in one process",
		Long:  "Run all parties of a problem in one process over an in-memory transport and print every party's output",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			problem, err := loadOrGenerate(problemPath)
			if err != nil {
				return err
			}

			settings := cli.Settings{}
			if settingsPath != "" {
				settings, err = cli.LoadSettings(settingsPath)
				if err != nil {
					return err
				}
			}

			sim, err := cli.Simulate(cmd.Context(), problem, settings)
			if err != nil {
				return err
			}

			for _, out := range sim.Outputs {
				fmt.Println(out)
			}
			fmt.Printf("%d rounds in %s\n", sim.Runs[0].Rounds, sim.Duration.Round(time.Millisecond))

			if check {
				err = sim.Check(problem)
				if err != nil {
					return err
				}
				fmt.Println("output matches the plaintext solution")
			}

			return nil
		},
	}

	simulateCmd.Flags().StringVarP(&problemPath, "problem", "p", "", "Problem file, a default random problem if empty")
	simulateCmd.Flags().StringVarP(&settingsPath, "settings", "s", "", "Settings file")
	simulateCmd.Flags().BoolVar(&check, "check", false, "Compare the output with the plaintext solution")

	command.AddCommand(simulateCmd)
}

// addPartyCmd runs one party over UDP
func addPartyCmd(command *cobra.Command) {
	var settingsPath, problemPath string
	var opts cli.PartyOptions

	partyCmd := &cobra.Command{
		Use:   "party",
		Short: "Start one party",
		Long:  "Start one party over UDP. Every party of the run must use the same settings, problem layout and run ID",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var err error

			opts.Settings, err = cli.LoadSettings(settingsPath)
			if err != nil {
				return err
			}

			if problemPath != "" {
				problem, err := plaintext.LoadProblem(problemPath)
				if err != nil {
					return err
				}
				if opts.RunID == "" {
					return xerrors.Errorf("a run ID is needed to solve %s", problemPath)
				}
				opts.Problem = &problem
			}

			return cli.StartParty(opts)
		},
	}

	partyCmd.Flags().StringVarP(&settingsPath, "settings", "s", "settings.yaml", "Settings file")
	partyCmd.Flags().IntVarP(&opts.Index, "index", "i", 0, "Index of this party")
	partyCmd.Flags().StringVarP(&problemPath, "problem", "p", "", "Problem to solve once started")
	partyCmd.Flags().StringVarP(&opts.RunID, "run", "r", "", "Run ID of the problem")
	partyCmd.Flags().StringVar(&opts.HTTP, "http", "", "Serve the outputs on this address")
	partyCmd.Flags().BoolVar(&opts.Interactive, "interactive", false, "Prompt for actions")

	command.AddCommand(partyCmd)
}

// addProfileCmd runs the scalability sweep
func addProfileCmd(command *cobra.Command) {
	var configPath string

	profileCmd := &cobra.Command{
		Use:   "profile",
		Short: "Measure runs of growing size",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := cli.DefaultProfileConfig
			if configPath != "" {
				buf, err := os.ReadFile(configPath)
				if err != nil {
					return err
				}
				err = yaml.Unmarshal(buf, &conf)
				if err != nil {
					return err
				}
			}

			_, err := cli.Profile(cmd.Context(), conf, os.Stdout)
			return err
		},
	}

	profileCmd.Flags().StringVarP(&configPath, "config", "c", "", "Sweep configuration file")

	command.AddCommand(profileCmd)
}

// addGenerateCmd writes a random problem
func addGenerateCmd(command *cobra.Command) {
	var configPath, out string

	generateCmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a random problem",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			conf := plaintext.DefaultGeneratorConfig
			if configPath != "" {
				var err error
				conf, err = cli.LoadGeneratorConfig(configPath)
				if err != nil {
					return err
				}
			}

			_, err := cli.Generate(conf, out)
			return err
		},
	}

	generateCmd.Flags().StringVarP(&configPath, "config", "c", "", "Generator configuration file")
	generateCmd.Flags().StringVarP(&out, "out", "o", "problem.yaml", "Output file")

	command.AddCommand(generateCmd)
}

func loadOrGenerate(path string) (plaintext.Problem, error) {
	if path != "" {
		return plaintext.LoadProblem(path)
	}

	g, err := plaintext.NewGenerator(plaintext.DefaultGeneratorConfig)
	if err != nil {
		return plaintext.Problem{}, err
	}
	return g.Problem(), nil
}
