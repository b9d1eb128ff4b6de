package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AlecAivazis/survey/v2"
	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/httpserver"
	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/peer/impl"
	"go.dedis.ch/mupol/plaintext"
	"go.dedis.ch/mupol/transport/udp"
	"golang.org/x/xerrors"
)

// PartyOptions describes how a party process runs.
type PartyOptions struct {
	Settings Settings
	Index    int

	// Problem and RunID, when set, are solved right after the party starts.
	Problem *plaintext.Problem
	RunID   string

	// HTTP is the address the outputs are served on. Empty disables it.
	HTTP string

	Interactive bool
}

// partyProcess is a running party with its optional HTTP server.
type partyProcess struct {
	index  int
	party  peer.Party
	server *httpserver.Server
}

// StartParty runs one party over UDP until it is interrupted, or until its
// work is done when it neither serves HTTP nor is interactive.
func StartParty(opts PartyOptions) error {
	if opts.Index < 0 || opts.Index >= len(opts.Settings.Parties) {
		return xerrors.Errorf("%w: party index %d out of [0, %d)",
			peer.ErrInvalidConfiguration, opts.Index, len(opts.Settings.Parties))
	}

	socket, err := udp.NewUDP().CreateSocket(opts.Settings.Parties[opts.Index])
	if err != nil {
		return xerrors.Errorf("failed to create socket: %v", err)
	}
	defer socket.Close()

	party, err := impl.NewParty(opts.Settings.Configuration(opts.Index, socket),
		impl.WithAuditors(opts.Settings.Auditors...))
	if err != nil {
		return err
	}

	p := &partyProcess{index: opts.Index, party: party}

	if opts.HTTP != "" {
		p.server, err = httpserver.Start(opts.HTTP, party)
		if err != nil {
			p.stop()
			return err
		}
	}

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-c
		p.stop()
		os.Exit(1)
	}()

	fmt.Println("##########################################")
	fmt.Println("######       Starting a party       ######")
	fmt.Println("##########################################")
	fmt.Printf("Party %d of %d running on address: %s\n", opts.Index, len(opts.Settings.Parties), socket.GetAddress())
	fmt.Println()

	if opts.Problem != nil {
		err = p.solve(context.Background(), opts.RunID, *opts.Problem)
		if err != nil {
			printError(err)
		}
	}

	switch {
	case opts.Interactive:
		performActions(p)
	case p.server != nil:
		select {}
	}

	p.stop()
	return err
}

func (p *partyProcess) solve(ctx context.Context, runID string, problem plaintext.Problem) error {
	start := time.Now()

	out, err := p.party.Solve(ctx, runID, problem.Layout(), problem.InputOf(p.index))
	if err != nil {
		return err
	}

	fmt.Printf("Run %s done in %s\n", runID, time.Since(start).Round(time.Millisecond))
	printOutput(out)

	return nil
}

func (p *partyProcess) stop() {
	if p.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		err := p.server.Stop(ctx)
		if err != nil {
			log.Err(err).Msg("failed to stop the http server")
		}
	}

	err := p.party.Stop()
	if err != nil {
		log.Err(err).Msg("failed to stop the party")
	}
}

// -----------------------------------------------------------------------------
// Utils

func printError(err error) {
	fmt.Println("~~ERROR~~")
	fmt.Println(err)
}

func ask(message string, def string) (string, error) {
	var res string
	prompt := &survey.Input{Message: message, Default: def}
	err := survey.AskOne(prompt, &res, survey.WithValidator(survey.Required))
	return res, err
}
