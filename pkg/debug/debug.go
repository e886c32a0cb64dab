// Package debug configures the console logger used by the CLI.
package debug

import (
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// NewLogger builds a console logger writing to out. When verbose is true the
// level drops to debug.
func NewLogger(out io.Writer, verbose bool) zerolog.Logger {
	level := zerolog.InfoLevel
	if verbose {
		level = zerolog.DebugLevel
	}

	writer := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.Kitchen,
		FormatFieldName: func(i any) string {
			name, _ := i.(string)
			return color.New(color.Faint).Sprint(name) + "="
		},
	}

	return zerolog.New(writer).Level(level).With().Timestamp().Logger()
}
