package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/rs/xid"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/types"
)

// -----------------------------------------------------------------------------
// Party CMD Prompt

var actionOpts = []string{
	"🚚 Solve a problem",
	"🐋 Show runs",
	"🐙 Show an output",
	"🍃 Exit",
}

var actions = map[string]func(*partyProcess) error{
	actionOpts[0]: solveProblem,
	actionOpts[1]: showRuns,
	actionOpts[2]: showOutput,
	actionOpts[3]: exitParty,
}

// -----------------------------------------------------------------------------
// Perform actions

func performActions(p *partyProcess) {
	prompt := &survey.Select{
		Message: "What do you want to do ?",
		Options: actionOpts,
	}

	var action string
	for {
		err := survey.AskOne(prompt, &action)
		if err != nil {
			printError(err)
			return
		}

		method := actions[action]
		err = method(p)
		if err != nil {
			printError(err)
		}
	}
}

// -----------------------------------------------------------------------------
// CMD Actions

func solveProblem(p *partyProcess) error {
	path, err := ask("Problem file:", "problem.yaml")
	if err != nil {
		return err
	}

	problem, err := plaintext.LoadProblem(path)
	if err != nil {
		return err
	}

	// every party must enter the same run ID
	runID, err := ask("Run ID:", xid.New().String())
	if err != nil {
		return err
	}

	return p.solve(context.Background(), runID, problem)
}

func showRuns(p *partyProcess) error {
	runs := p.party.Runs()
	if len(runs) == 0 {
		fmt.Println("no run yet")
		return nil
	}

	for _, r := range runs {
		state := "running"
		if r.Done {
			state = "done"
		}
		fmt.Printf("%s  %-9s %-7s %5d rounds", r.RunID, r.Phase, state, r.Rounds)
		if r.Error != "" {
			fmt.Printf("  %s", r.Class)
		}
		fmt.Println()
	}

	return nil
}

func showOutput(p *partyProcess) error {
	keys := p.party.Outputs().Keys()
	if len(keys) == 0 {
		fmt.Println("no output yet")
		return nil
	}

	var runID string
	err := survey.AskOne(&survey.Select{Message: "Run:", Options: keys}, &runID)
	if err != nil {
		return err
	}

	out, _ := p.party.Outputs().Get(runID)
	printOutput(out)

	return nil
}

func exitParty(p *partyProcess) error {
	p.stop()

	fmt.Println("bye 👋")
	os.Exit(0)
	return nil
}

func printOutput(out types.RevealedOutput) {
	b := new(strings.Builder)

	for _, o := range out.Orders {
		fmt.Fprintf(b, "order %d -> freighter %d", o.Index, o.Freighter)
		if o.Details != nil {
			fmt.Fprintf(b, " (%d -> %d, volume %d)", o.Details.Origin, o.Details.Destination, o.Details.Volume)
		}
		b.WriteString("\n")
	}
	for _, d := range out.Drives {
		fmt.Fprintf(b, "iteration %d: freighter %d drives empty", d.Iteration, d.Freighter)
		if d.Route != nil {
			fmt.Fprintf(b, " %d -> %d", d.Route.From, d.Route.To)
		}
		b.WriteString("\n")
	}

	fmt.Print(b.String())
}
