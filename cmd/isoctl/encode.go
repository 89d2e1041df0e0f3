package main

import (
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	iso8583 "github.com/mkadit/go-iso8583"
)

var (
	encodeMTI    string
	encodeFields []string
)

var encodeCmd = &cobra.Command{
	Use:   "encode",
	Short: "Encode a message and print it in hex",
	Example: `  isoctl encode --mti 0800 --field 7=1018123000 --field 11=000001 --field 70=301`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cp, err := loadPackager()
		if err != nil {
			return err
		}
		mf := cp.Formatter()

		msg := iso8583.NewMessage(iso8583.WithFormatter(mf))
		if err := msg.SetMTI(encodeMTI); err != nil {
			return fmt.Errorf("--mti %q: %w", encodeMTI, err)
		}
		for _, arg := range encodeFields {
			n, value, err := parseFieldArg(arg)
			if err != nil {
				return err
			}
			ff, ok := mf.FieldFormatter(n)
			if !ok {
				return fmt.Errorf("field %d: %w", n, iso8583.ErrFieldNotConfigured)
			}
			if _, binary := ff.(*iso8583.BinaryFieldFormatter); binary {
				raw, err := hex.DecodeString(value)
				if err != nil {
					return fmt.Errorf("field %d: binary values are given in hex: %w", n, err)
				}
				if err := msg.SetField(n, raw); err != nil {
					return err
				}
				continue
			}
			if err := msg.SetField(n, value); err != nil {
				return err
			}
		}

		payload, err := mf.FormatBytes(msg)
		if err != nil {
			return err
		}
		framed, err := iso8583.FrameMessage(payload, cp.LengthIndicator())
		if err != nil {
			return err
		}
		logger.Debug().Int("bytes", len(framed)).Msg("encoded")
		fmt.Fprintln(cmd.OutOrStdout(), strings.ToUpper(hex.EncodeToString(framed)))
		return nil
	},
}

func init() {
	encodeCmd.Flags().StringVar(&encodeMTI, "mti", "0800", "message type indicator")
	encodeCmd.Flags().StringArrayVarP(&encodeFields, "field", "f", nil, "field as number=value, repeatable")
}

func parseFieldArg(arg string) (int, string, error) {
	num, value, ok := strings.Cut(arg, "=")
	if !ok {
		return 0, "", fmt.Errorf("--field %q: expected number=value", arg)
	}
	n, err := strconv.Atoi(strings.TrimSpace(num))
	if err != nil {
		return 0, "", fmt.Errorf("--field %q: %w", arg, err)
	}
	return n, value, nil
}
