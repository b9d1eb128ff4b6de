package cmd

import (
	"os"

	"github.com/rs/zerolog/log"
	"go.dedis.ch/mupol/plaintext"
	"golang.org/x/xerrors"
	"gopkg.in/yaml.v3"
)

// LoadGeneratorConfig reads a generator configuration from a yaml file.
// Missing fields keep the values of plaintext.DefaultGeneratorConfig.
func LoadGeneratorConfig(path string) (plaintext.GeneratorConfig, error) {
	conf := plaintext.DefaultGeneratorConfig

	buf, err := os.ReadFile(path)
	if err != nil {
		return conf, xerrors.Errorf("failed to read generator config: %v", err)
	}

	err = yaml.Unmarshal(buf, &conf)
	if err != nil {
		return conf, xerrors.Errorf("failed to parse generator config %s: %v", path, err)
	}

	return conf, nil
}

// Generate writes a random problem to path.
func Generate(conf plaintext.GeneratorConfig, path string) (plaintext.Problem, error) {
	generator, err := plaintext.NewGenerator(conf)
	if err != nil {
		return plaintext.Problem{}, err
	}

	problem := generator.Problem()

	err = problem.Save(path)
	if err != nil {
		return problem, err
	}

	log.Info().Msgf("wrote a problem with %d parties, %d trucks and %d orders to %s",
		problem.Parties, len(problem.Trucks), len(problem.Orders), path)

	return problem, nil
}
