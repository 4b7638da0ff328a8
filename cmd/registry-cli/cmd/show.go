package cmd

import (
	"fmt"
	"net/http"
	"sort"

	"github.com/spf13/cobra"

	"github.com/foundry/npmstore/internal/core/models"
)

var showCmd = &cobra.Command{
	Use:   "show <package>",
	Short: "Show versions and dist-tags of a package",
	Args:  cobra.ExactArgs(1),
	RunE:  runShow,
}

func init() {
	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, args []string) error {
	pkg := args[0]

	c, err := newClient()
	if err != nil {
		return err
	}

	var m models.Manifest
	if _, err := c.doJSON(http.MethodGet, packagePath(pkg), nil, &m, http.StatusOK); err != nil {
		return err
	}

	fmt.Printf("%s\n", m.Name)
	if m.Revision != "" {
		fmt.Printf("  Revision: %s\n", m.Revision)
	}

	tags := make([]string, 0, len(m.DistTags))
	for tag := range m.DistTags {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	fmt.Println("  Dist-tags:")
	for _, tag := range tags {
		fmt.Printf("    %s: %s\n", tag, m.DistTags[tag])
	}

	versions := make([]string, 0, len(m.Versions))
	for v := range m.Versions {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	fmt.Println("  Versions:")
	for _, v := range versions {
		fmt.Printf("    - %s\n", v)
	}
	return nil
}
