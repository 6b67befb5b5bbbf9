package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/wkalt/pbcore/sink"
	"github.com/wkalt/pbcore/wire"
)

var decodeCmd = &cobra.Command{
	Use:   "decode [file]",
	Short: "decode a raw protobuf message against the built-in demonstration schema",
	Run: func(cmd *cobra.Command, args []string) {
		if len(args) != 1 {
			bailf("usage: pbdump decode [file]")
		}
		data, err := os.ReadFile(args[0])
		if err != nil {
			bailf("failed to read %s: %v", args[0], err)
		}

		h, err := buildDemoHandlers()
		if err != nil {
			bailf("failed to build demonstration schema: %v", err)
		}

		d, err := wire.New(sink.New(h, nil))
		if err != nil {
			bailf("failed to start decoder: %v", err)
		}
		n, err := d.PutBuffer(data)
		if err != nil {
			bailf("decode failed after %d/%d bytes: %v", n, len(data), err)
		}
		if err := d.EndOfStream(); err != nil {
			bailf("decode failed at end of stream: %v", err)
		}
		fmt.Printf("decoded %d bytes cleanly\n", n)
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
}
