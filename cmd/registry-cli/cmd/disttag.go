package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"
)

var distTagCmd = &cobra.Command{
	Use:   "dist-tag <package> <tag> <version>",
	Short: "Point a dist-tag at a published version",
	Args:  cobra.ExactArgs(3),
	RunE:  runDistTag,
}

func init() {
	rootCmd.AddCommand(distTagCmd)
}

func runDistTag(cmd *cobra.Command, args []string) error {
	pkg, tag, version := args[0], args[1], args[2]

	c, err := newClient()
	if err != nil {
		return err
	}

	var tags map[string]string
	if _, err := c.doJSON(http.MethodPut, distTagPath(pkg, tag), version, &tags, http.StatusOK); err != nil {
		return err
	}
	fmt.Printf("%s@%s -> %s\n", pkg, tag, tags[tag])
	return nil
}
