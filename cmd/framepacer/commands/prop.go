package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/bryanchriswhite/FramePacer/internal/engine"
	"github.com/spf13/cobra"
)

var propCmd = &cobra.Command{
	Use:   "prop",
	Short: "Read and change engine properties",
	Long: `Read and change the properties of a running server: crop margins,
picture controls, the discard depth and the read-only pool counters.`,
}

var propListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all properties",
	Example: `  # List properties in table format (default)
  framepacer prop list

  # List properties in JSON format
  framepacer prop list --format json`,
	RunE: runPropList,
}

var propGetCmd = &cobra.Command{
	Use:     "get NAME",
	Short:   "Get a property value",
	Example: `  framepacer prop get buffers_free`,
	Args:    cobra.ExactArgs(1),
	RunE:    runPropGet,
}

var propSetCmd = &cobra.Command{
	Use:   "set NAME VALUE",
	Short: "Set a property value",
	Example: `  # Crop 8 pixels off the left edge
  framepacer prop set crop_left 8

  # Picture controls take 0-65535
  framepacer prop set brightness 40000`,
	Args: cobra.ExactArgs(2),
	RunE: runPropSet,
}

var propFormat string

func init() {
	rootCmd.AddCommand(propCmd)
	propCmd.AddCommand(propListCmd)
	propCmd.AddCommand(propGetCmd)
	propCmd.AddCommand(propSetCmd)

	propListCmd.Flags().StringVarP(&propFormat, "format", "f", "table", "output format (table or json)")
}

func runPropList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}
	var props []engine.PropertyInfo
	if err := c.doJSON("GET", "/api/properties", nil, &props); err != nil {
		return err
	}

	switch propFormat {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(props)
	case "table":
		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "NAME\tVALUE\tACCESS")
		for _, p := range props {
			access := "rw"
			switch {
			case !p.Supported:
				access = "unsupported"
			case p.ReadOnly:
				access = "ro"
			}
			fmt.Fprintf(w, "%s\t%d\t%s\n", p.Name, p.Value, access)
		}
		return w.Flush()
	default:
		return fmt.Errorf("unsupported format: %s (use 'table' or 'json')", propFormat)
	}
}

func runPropGet(cmd *cobra.Command, args []string) error {
	name, err := engine.ParseProperty(args[0])
	if err != nil {
		return err
	}
	c, err := newClient()
	if err != nil {
		return err
	}
	var pv struct {
		Value int `json:"value"`
	}
	if err := c.doJSON("GET", "/api/properties/"+string(name), nil, &pv); err != nil {
		return err
	}
	fmt.Println(pv.Value)
	return nil
}

func runPropSet(cmd *cobra.Command, args []string) error {
	name, err := engine.ParseProperty(args[0])
	if err != nil {
		return err
	}
	if name.ReadOnly() {
		return fmt.Errorf("%s is read-only", name)
	}
	value, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid value: %s", args[1])
	}

	c, err := newClient()
	if err != nil {
		return err
	}
	var pv struct {
		Value int `json:"value"`
	}
	if err := c.doJSON("PUT", "/api/properties/"+string(name), map[string]int{"value": value}, &pv); err != nil {
		return err
	}
	fmt.Printf("✅ %s = %d\n", name, pv.Value)
	return nil
}
