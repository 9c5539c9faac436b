// Command gradectl runs the grading pipeline from the command line against the
// same database, document store and generation backend as the API server.
package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/app"
	"github.com/noah-isme/gema-grader/internal/config"
)

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	cmd := newRootCommand(func() (*backend, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, err
		}
		container, err := app.New(cfg, logger)
		if err != nil {
			return nil, err
		}
		return &backend{
			grading:     container.Grading,
			submissions: container.Submissions,
			close:       container.Close,
		}, nil
	})

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
