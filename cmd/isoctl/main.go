package main

import (
	"encoding/hex"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	iso8583 "github.com/mkadit/go-iso8583"
)

var (
	packagerPath string
	logLevel     string

	logger zerolog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "isoctl",
	Short: "Encode and decode ISO 8583 messages",
	Long: `isoctl packs and unpacks ISO 8583 messages using a packager definition
(JSON or TOML). Without --packager the ISO 8583:1987 layout is used.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := zerolog.ParseLevel(logLevel)
		if err != nil {
			return fmt.Errorf("log level: %w", err)
		}
		output := zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		}
		logger = zerolog.New(output).Level(level).With().Timestamp().Str("app", "isoctl").Logger()
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&packagerPath, "packager", "p", "", "packager definition (.json or .toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug|info|warn|error")
	rootCmd.AddCommand(decodeCmd, encodeCmd, splitCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadPackager() (*iso8583.CompiledPackager, error) {
	opts := []iso8583.FormatterOption{iso8583.WithLogger(logger)}
	if packagerPath == "" {
		return iso8583.NewCompiledPackager(iso8583.DefaultPackagerConfig(), opts...)
	}
	return iso8583.LoadPackagerFile(packagerPath, opts...)
}

func decodeHexArg(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("--hex: %w", err)
	}
	return data, nil
}
