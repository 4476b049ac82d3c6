package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/spf13/cobra"
)

var ctlCmd = &cobra.Command{
	Use:   "ctl",
	Short: "Control playback on a running server",
}

func controlCommand(action, short string) *cobra.Command {
	return &cobra.Command{
		Use:   action,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			var resp map[string]interface{}
			if err := c.doJSON("POST", "/api/control/"+action, nil, &resp); err != nil {
				return err
			}
			if clk, ok := resp["clock"]; ok {
				fmt.Printf("✅ %s (clock %v)\n", action, clk)
				return nil
			}
			fmt.Printf("✅ %s\n", action)
			return nil
		},
	}
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show pool and scheduler counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var stats engine.Stats
		if err := c.doJSON("GET", "/api/stats", nil, &stats); err != nil {
			return err
		}
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(stats)
	},
}

func init() {
	rootCmd.AddCommand(ctlCmd)
	ctlCmd.AddCommand(controlCommand("flush", "Drop every queued frame"))
	ctlCmd.AddCommand(controlCommand("pause", "Stop the presentation clock"))
	ctlCmd.AddCommand(controlCommand("resume", "Restart the presentation clock"))
	ctlCmd.AddCommand(controlCommand("step", "Pause and show exactly one frame"))
	ctlCmd.AddCommand(statsCmd)
}
