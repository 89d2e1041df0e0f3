package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	iso8583 "github.com/mkadit/go-iso8583"
)

var decodeHex string

var decodeCmd = &cobra.Command{
	Use:   "decode",
	Short: "Decode one message given in hex",
	RunE: func(cmd *cobra.Command, args []string) error {
		if decodeHex == "" {
			return fmt.Errorf("--hex is required")
		}
		data, err := decodeHexArg(decodeHex)
		if err != nil {
			return err
		}
		cp, err := loadPackager()
		if err != nil {
			return err
		}

		msg, err := iso8583.NewPackagerProcessor(cp, iso8583.WithProcessorLogger(logger)).Process(data)
		if err != nil {
			return err
		}
		logger.Debug().Object("message", msg).Msg("decoded")
		printMessage(cmd.OutOrStdout(), cp, msg)
		return nil
	},
}

func init() {
	decodeCmd.Flags().StringVar(&decodeHex, "hex", "", "message bytes in hex, framing included")
}

func printMessage(w io.Writer, cp *iso8583.CompiledPackager, msg *iso8583.Message) {
	if h := msg.Header(); h != nil {
		fmt.Fprintf(w, "header  %q\n", h.String())
	}
	mf := cp.Formatter()
	for _, n := range msg.GetPresentFields() {
		f, _ := msg.GetField(n)
		desc := ""
		if ff, ok := mf.FieldFormatter(n); ok {
			desc = ff.Description()
		}
		fmt.Fprintf(w, "%4d  %-32s %s\n", n, desc, f.String())
	}

	tlvs, err := cp.TLVs(msg)
	if err != nil {
		return
	}
	for _, tlv := range tlvs {
		fmt.Fprintf(w, "      tag %X len %d value %X\n", tlv.Tag, tlv.Length, tlv.Value)
	}
}
