package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cameroncuttingedge/tic_tac_toe_lobby/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// initializeLogger points the global logger at stdout, and additionally at cfg.File when one
// is set. The returned func releases the file.
func initializeLogger(cfg config.Log, stdout io.Writer) (func() error, error) {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("parse log level %q: %w", cfg.Level, err)
	}
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	var console io.Writer = stdout
	if cfg.Pretty {
		console = zerolog.ConsoleWriter{Out: stdout, TimeFormat: "15:04:05"}
	}

	closeLog := func() error { return nil }
	out := console
	if cfg.File != "" {
		runLogFile, err := os.OpenFile(
			cfg.File,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY,
			0664,
		)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(runLogFile, console)
		closeLog = runLogFile.Close
	}

	log.Logger = zerolog.New(out).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)
	return closeLog, nil
}
