package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/foundry/npmstore/internal/core/models"
	"github.com/foundry/npmstore/internal/util/hashing"
)

var pushCmd = &cobra.Command{
	Use:   "push <package> <version> <file>",
	Short: "Publish a tarball",
	Long:  "Upload a package tarball and record the version in the package document.",
	Args:  cobra.ExactArgs(3),
	RunE:  runPush,
}

func init() {
	pushCmd.Flags().String("tag", "latest", "dist-tag to point at the pushed version")
	rootCmd.AddCommand(pushCmd)
}

func runPush(cmd *cobra.Command, args []string) error {
	pkg, version, filePath := args[0], args[1], args[2]
	tag, _ := cmd.Flags().GetString("tag")

	c, err := newClient()
	if err != nil {
		return err
	}

	file, err := os.Open(filePath)
	if err != nil {
		return fmt.Errorf("opening file: %w", err)
	}
	defer file.Close()

	digests, err := hashing.ComputeDigests(file)
	if err != nil {
		return err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding file: %w", err)
	}

	name := tarballName(pkg, version)
	pr := &progressReader{reader: file, total: digests.Size, label: "Uploading"}

	start := time.Now()
	resp, err := c.do(http.MethodPut, tarballPath(pkg, name), pr, digests.Size)
	fmt.Fprintln(os.Stderr) // newline after progress
	if err != nil {
		return fmt.Errorf("uploading: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("%s", formatHTTPError(resp))
	}

	entry, err := json.Marshal(map[string]any{
		"name":    pkg,
		"version": version,
		"dist": map[string]string{
			"shasum":    digests.Shasum,
			"integrity": digests.Integrity,
			"tarball":   strings.TrimRight(c.server, "/") + tarballPath(pkg, name),
		},
	})
	if err != nil {
		return fmt.Errorf("encoding version: %w", err)
	}

	if err := recordVersion(c, pkg, version, tag, entry); err != nil {
		return err
	}

	fmt.Printf("Pushed %s@%s (%s)\n", pkg, version, tag)
	fmt.Printf("  Shasum:    %s\n", digests.Shasum)
	fmt.Printf("  Integrity: %s\n", digests.Integrity)
	fmt.Printf("  Size:      %s\n", formatBytes(digests.Size))
	fmt.Printf("  Duration:  %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}

// recordVersion creates the package document, or adds the version to an
// existing one.
func recordVersion(c *client, pkg, version, tag string, entry json.RawMessage) error {
	m := models.NewManifest(pkg)
	m.Versions[version] = entry
	m.DistTags[tag] = version
	status, err := c.doJSON(http.MethodPut, packagePath(pkg), m, nil, http.StatusCreated)
	if err == nil {
		return nil
	}
	if status != http.StatusConflict {
		return err
	}

	var existing models.Manifest
	if _, err := c.doJSON(http.MethodGet, packagePath(pkg), nil, &existing, http.StatusOK); err != nil {
		return err
	}
	if existing.Versions == nil {
		existing.Versions = map[string]json.RawMessage{}
	}
	if existing.DistTags == nil {
		existing.DistTags = map[string]string{}
	}
	existing.Versions[version] = entry
	existing.DistTags[tag] = version

	_, err = c.doJSON(http.MethodPost, packagePath(pkg), existing, nil, http.StatusOK)
	return err
}
