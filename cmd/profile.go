package cmd

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/plaintext"
	"golang.org/x/xerrors"
)

// ProfileConfig is a scalability sweep: one simulated run per combination of
// number of orders and number of trucks per freighter.
type ProfileConfig struct {
	Orders    []int                     `yaml:"orders"`
	Trucks    []int                     `yaml:"trucks"`
	Problem   plaintext.GeneratorConfig `yaml:"problem"`
	Settings  Settings                  `yaml:"settings"`
	CheckRuns bool                      `yaml:"check"`
}

// DefaultProfileConfig is a sweep that completes in a few seconds.
var DefaultProfileConfig = ProfileConfig{
	Orders:   []int{1, 2, 4},
	Trucks:   []int{1, 2},
	Problem:  plaintext.DefaultGeneratorConfig,
	Settings: Settings{BitLength: 16, RoundTimeout: 30 * time.Second},
}

// ProfileResult is the measurement of one run of the sweep.
type ProfileResult struct {
	Orders   int
	Trucks   int
	Rounds   uint64
	Duration time.Duration
}

// Profile runs the sweep and writes a table of the results to w.
func Profile(ctx context.Context, conf ProfileConfig, w io.Writer) ([]ProfileResult, error) {
	results := []ProfileResult{}

	for _, orders := range conf.Orders {
		for _, trucks := range conf.Trucks {
			gen := conf.Problem
			gen.Orders = orders
			gen.MinTrucks = trucks
			gen.MaxTrucks = trucks

			generator, err := plaintext.NewGenerator(gen)
			if err != nil {
				return results, err
			}
			problem := generator.Problem()

			log.Debug().Msgf("profiling %d orders and %d trucks per freighter", orders, trucks)

			sim, err := Simulate(ctx, problem, conf.Settings)
			if err != nil {
				return results, xerrors.Errorf("run with %d orders and %d trucks failed: %w", orders, trucks, err)
			}

			if conf.CheckRuns {
				err = sim.Check(problem)
				if err != nil {
					return results, err
				}
			}

			results = append(results, ProfileResult{
				Orders:   orders,
				Trucks:   trucks,
				Rounds:   sim.Runs[0].Rounds,
				Duration: sim.Duration,
			})
		}
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "orders\ttrucks\trounds\tduration")
	for _, r := range results {
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\n", r.Orders, r.Trucks, r.Rounds, r.Duration.Round(time.Millisecond))
	}

	return results, tw.Flush()
}
