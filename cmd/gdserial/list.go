package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
	"github.com/evertras/bubble-table/table"
	"github.com/spf13/cobra"

	"github.com/SujithChristopher/gdserial"
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available serial ports",
	Long: `List all available serial ports on the system.

Each port is shown with its attachment type (USB, PCI, Bluetooth or
Unknown) and a device name. For USB adapters the device name comes from
the USB descriptors, falling back to VID/PID identification.`,
	Run: func(cmd *cobra.Command, args []string) {
		ports, err := gdserial.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error listing ports: %v\n", err)
			os.Exit(1)
		}

		if len(ports) == 0 {
			fmt.Println("No serial ports found")
			return
		}

		tableFormat, _ := cmd.Flags().GetBool("table")
		if tableFormat {
			renderPortTable(ports)
			return
		}
		for _, p := range ports {
			fmt.Println(p.Name)
		}
	},
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().BoolP("table", "T", false, "Display output in a styled table format")
}

// renderPortTable renders the port list as a styled static table
func renderPortTable(ports []gdserial.PortInfo) {
	fmt.Printf("Found %d serial port(s):\n\n", len(ports))

	columns := []table.Column{
		table.NewColumn("port", "Port", 20),
		table.NewColumn("type", "Type", 12),
		table.NewColumn("device", "Device", 36),
	}

	rows := make([]table.Row, 0, len(ports))
	for _, p := range ports {
		rows = append(rows, table.NewRow(table.RowData{
			"port":   p.Name,
			"type":   p.Type.String(),
			"device": p.Device,
		}))
	}

	tbl := table.New(columns).
		WithRows(rows).
		BorderRounded().
		WithBaseStyle(lipgloss.NewStyle().Align(lipgloss.Left))

	fmt.Println(tbl.View())
}
