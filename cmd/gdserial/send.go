package main

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/SujithChristopher/gdserial"
)

var (
	sendOKStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	sendErrStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send [data] <port>",
	Short: "Send data to a serial port",
	Long: `Send data to a serial port.

Data can be provided as a command line argument or piped via stdin:

  gdserial send "AT+GMR" /dev/ttyUSB0 --newline
  echo "test" | gdserial send /dev/ttyUSB0`,
	Args: cobra.RangeArgs(1, 2),
	Run: func(cmd *cobra.Command, args []string) {
		port := args[len(args)-1]

		var data string
		if len(args) == 2 {
			data = args[0]
		} else {
			stdin, err := io.ReadAll(os.Stdin)
			if err != nil {
				fmt.Fprintln(os.Stderr, sendErrStyle.Render(fmt.Sprintf("✗ reading stdin: %v", err)))
				os.Exit(1)
			}
			data = string(stdin)
		}

		newline, _ := cmd.Flags().GetBool("newline")
		if err := sendToPort(port, data, newline); err != nil {
			fmt.Fprintln(os.Stderr, sendErrStyle.Render(fmt.Sprintf("✗ %v", err)))
			os.Exit(1)
		}
		fmt.Println(sendOKStyle.Render(fmt.Sprintf("✓ sent %d byte(s) to %s", len(data), port)))
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)

	sendCmd.Flags().BoolP("newline", "n", false, "Append a newline to the data")
}

func sendToPort(port, data string, newline bool) error {
	opts, err := portOptions()
	if err != nil {
		return err
	}

	h, err := gdserial.New(port, opts...)
	if err != nil {
		return err
	}
	if err := h.Open(); err != nil {
		return err
	}
	defer h.Close()

	if newline {
		return h.WriteLine(data)
	}
	return h.WriteString(data)
}
