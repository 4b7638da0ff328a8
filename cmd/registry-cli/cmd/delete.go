package cmd

import (
	"fmt"
	"net/http"

	"github.com/spf13/cobra"

	"github.com/foundry/npmstore/internal/core/models"
)

var deleteCmd = &cobra.Command{
	Use:   "delete <package> [version]",
	Short: "Delete a version, or a whole package's document",
	Long: "With a version, delete that version's tarball and drop the version, and any " +
		"dist-tag pointing at it, from the package document. Without one, delete the " +
		"package document and drop the package from the local index.",
	Args: cobra.RangeArgs(1, 2),
	RunE: runDelete,
}

func init() {
	rootCmd.AddCommand(deleteCmd)
}

func runDelete(cmd *cobra.Command, args []string) error {
	pkg := args[0]

	c, err := newClient()
	if err != nil {
		return err
	}

	if len(args) == 1 {
		if _, err := c.doJSON(http.MethodDelete, packagePath(pkg), nil, nil, http.StatusOK); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", pkg)
		return nil
	}

	version := args[1]
	status, tarErr := c.doJSON(http.MethodDelete, tarballPath(pkg, tarballName(pkg, version)), nil, nil, http.StatusOK)
	if tarErr != nil && status != http.StatusNotFound {
		return tarErr
	}
	// A missing tarball still leaves the document to clean up.
	found, err := forgetVersion(c, pkg, version)
	if err != nil {
		return err
	}
	if tarErr != nil && !found {
		return tarErr
	}
	fmt.Printf("Deleted %s@%s\n", pkg, version)
	return nil
}

// forgetVersion removes version and the dist-tags naming it from the package
// document. It reports whether the document listed the version.
func forgetVersion(c *client, pkg, version string) (bool, error) {
	var m models.Manifest
	if _, err := c.doJSON(http.MethodGet, packagePath(pkg), nil, &m, http.StatusOK); err != nil {
		return false, err
	}
	if _, ok := m.Versions[version]; !ok {
		return false, nil
	}

	delete(m.Versions, version)
	for tag, v := range m.DistTags {
		if v == version {
			delete(m.DistTags, tag)
		}
	}
	delete(m.Attachments, tarballName(pkg, version))

	if _, err := c.doJSON(http.MethodPost, packagePath(pkg), &m, nil, http.StatusOK); err != nil {
		return true, err
	}
	return true, nil
}
