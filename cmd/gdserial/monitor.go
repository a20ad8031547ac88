package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/SujithChristopher/gdserial"
	"github.com/SujithChristopher/gdserial/internal/tui"
)

// monitorCmd represents the monitor command
var monitorCmd = &cobra.Command{
	Use:   "monitor <port> [port...]",
	Short: "Monitor one or more serial ports with a live display",
	Long: `Monitor serial ports through the multi-port manager.

Each port gets a background reader; incoming data and disconnect notices
stream into a shared viewport tagged by port. Keys: i to type a line,
enter to send it to the active port, tab to switch the active port,
c to clear, q to quit.

Example usage:
  gdserial monitor /dev/ttyUSB0
  gdserial monitor /dev/ttyUSB0 /dev/ttyACM0 --baud 115200`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		opts, err := portOptions()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		manager := gdserial.NewManager()
		manager.SetLogger(log.Logger)
		defer manager.CloseAll()

		var opened []string
		for _, port := range args {
			if err := manager.OpenPort(port, opts...); err != nil {
				fmt.Fprintf(os.Stderr, "Error opening %s: %v\n", port, err)
				continue
			}
			opened = append(opened, port)
		}
		if len(opened) == 0 {
			fmt.Fprintln(os.Stderr, "No ports could be opened")
			os.Exit(1)
		}

		if err := tui.Run(manager, opened); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	rootCmd.AddCommand(monitorCmd)
}
