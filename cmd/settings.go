package cmd

import (
	"os"
	"time"

	"go.dedis.ch/mupol/peer"
	"go.dedis.ch/mupol/transport"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// Settings are the public parameters every party of a deployment shares.
//
//	parties:
//	  - 127.0.0.1:4000
//	  - 127.0.0.1:4001
//	  - 127.0.0.1:4002
//	bit_length: 16
//	round_timeout: 10s
//	auditors: [0]
//
// A threshold of -1 selects t = 0, an absent one (n-1)/2.
type Settings struct {
	Parties             []string      `yaml:"parties"`
	Threshold           int           `yaml:"threshold,omitempty"`
	BitLength           uint          `yaml:"bit_length,omitempty"`
	StatisticalSecurity uint          `yaml:"statistical_security,omitempty"`
	RoundTimeout        time.Duration `yaml:"round_timeout,omitempty"`
	Auditors            []int         `yaml:"auditors,omitempty"`
}

// LoadSettings reads settings from a yaml file.
func LoadSettings(path string) (Settings, error) {
	var s Settings

	buf, err := os.ReadFile(path)
	if err != nil {
		return s, xerrors.Errorf("failed to read settings: %v", err)
	}

	err = yaml.Unmarshal(buf, &s)
	if err != nil {
		return s, xerrors.Errorf("failed to parse settings %s: %v", path, err)
	}

	return s, nil
}

// Save writes the settings to a yaml file.
func (s Settings) Save(path string) error {
	buf, err := yaml.Marshal(s)
	if err != nil {
		return xerrors.Errorf("failed to marshal settings: %v", err)
	}

	err = os.WriteFile(path, buf, 0o644)
	if err != nil {
		return xerrors.Errorf("failed to write settings: %v", err)
	}

	return nil
}

// Configuration returns the configuration of the party with the given index,
// using socket as its endpoint.
func (s Settings) Configuration(index int, socket transport.Socket) peer.Configuration {
	return peer.Configuration{
		Socket:              socket,
		Index:               index,
		Parties:             s.Parties,
		Threshold:           s.Threshold,
		BitLength:           s.BitLength,
		StatisticalSecurity: s.StatisticalSecurity,
		RoundTimeout:        s.RoundTimeout,
	}
}
