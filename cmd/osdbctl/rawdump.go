package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jonahharris/osdb-backplane-sub001/internal/client"
)

var (
	rawDumpOut       string
	rawDumpBlockSize int
)

var rawDumpCmd = &cobra.Command{
	Use:   "raw-dump <filename>",
	Short: "Dump a physical data file via RAWDATAFILE for replication bootstrap",
	Long: `raw-dump connects to a running osdbd instance and requests one
physical file (sys.dt0 or "<schema>.dt0") verbatim via the RAWDATAFILE
wire command, writing the streamed bytes to stdout or --out. This is
the whole-file bootstrap transfer a replica catching up from nothing
uses, exposed here for inspection and manual replication setup.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		filename := args[0]

		out := os.Stdout
		if rawDumpOut != "" {
			f, err := os.Create(rawDumpOut)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
			defer func() { _ = f.Close() }()
			out = f
		}

		conn, err := client.Dial(resolveSocketPath(), dbName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = conn.Close() }()

		if err := conn.DumpRawDataFile(filename, uint32(rawDumpBlockSize), out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rawDumpCmd.Flags().StringVar(&rawDumpOut, "out", "", "output file path (default: stdout)")
	rawDumpCmd.Flags().IntVar(&rawDumpBlockSize, "block-size", 64*1024, "chunk size the server streams RAWDATA packets in")
}
