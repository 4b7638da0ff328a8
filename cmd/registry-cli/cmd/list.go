package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List packages in the local index",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	rootCmd.AddCommand(listCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	c, err := newClient()
	if err != nil {
		return err
	}

	var names []string
	if _, err := c.doJSON(http.MethodGet, packagesPath(), nil, &names, http.StatusOK); err != nil {
		return err
	}

	if len(names) == 0 {
		fmt.Println("No packages found.")
		return nil
	}

	fmt.Println("Packages:")
	for _, name := range names {
		fmt.Printf("  - %s\n", name)
	}
	return nil
}
