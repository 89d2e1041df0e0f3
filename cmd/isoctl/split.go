package main

import (
	"bytes"
	"context"
	"fmt"

	"github.com/spf13/cobra"

	iso8583 "github.com/mkadit/go-iso8583"
)

var (
	splitHex   string
	splitChunk int
)

var splitCmd = &cobra.Command{
	Use:   "split",
	Short: "Feed a byte stream in small chunks and show each message as it completes",
	Long: `split decodes a stream of one or more messages (framed as the packager
says) while handing the decoder only --chunk bytes at a time. Run with
--log-level debug to see where parsing suspends.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if splitHex == "" {
			return fmt.Errorf("--hex is required")
		}
		if splitChunk <= 0 {
			return fmt.Errorf("--chunk must be positive")
		}
		data, err := decodeHexArg(splitHex)
		if err != nil {
			return err
		}
		cp, err := loadPackager()
		if err != nil {
			return err
		}

		p := iso8583.NewPackagerProcessor(cp,
			iso8583.WithReadSize(splitChunk),
			iso8583.WithProcessorLogger(logger),
			iso8583.WithErrorHandler(func(err error) {
				logger.Warn().Err(err).Msg("message skipped")
			}),
		)

		out := make(chan *iso8583.Message)
		done := make(chan error, 1)
		go func() {
			done <- p.ProcessStream(cmd.Context(), bytes.NewReader(data), out)
			close(out)
		}()

		count := 0
		for msg := range out {
			count++
			fmt.Fprintf(cmd.OutOrStdout(), "message %d (MTI %s)\n", count, msg.MTI())
			printMessage(cmd.OutOrStdout(), cp, msg)
		}
		if err := <-done; err != nil && err != context.Canceled {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d message(s) in %d byte chunks\n", count, splitChunk)
		return nil
	},
}

func init() {
	splitCmd.Flags().StringVar(&splitHex, "hex", "", "stream bytes in hex")
	splitCmd.Flags().IntVar(&splitChunk, "chunk", 1, "bytes handed to the decoder per read")
}
