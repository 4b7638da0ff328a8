package cmd

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var pullCmd = &cobra.Command{
	Use:   "pull <package> <version>",
	Short: "Download a tarball",
	Args:  cobra.ExactArgs(2),
	RunE:  runPull,
}

func init() {
	pullCmd.Flags().StringP("output", "o", "", "output file path (default: the tarball name)")
	rootCmd.AddCommand(pullCmd)
}

func runPull(cmd *cobra.Command, args []string) error {
	pkg, version := args[0], args[1]
	name := tarballName(pkg, version)

	output, _ := cmd.Flags().GetString("output")
	if output == "" {
		output = name
	}

	c, err := newClient()
	if err != nil {
		return err
	}

	resp, err := c.do(http.MethodGet, tarballPath(pkg, name), nil, 0)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s", formatHTTPError(resp))
	}

	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmpOutput := output + ".part"
	file, err := os.Create(tmpOutput)
	if err != nil {
		return fmt.Errorf("creating output file: %w", err)
	}
	success := false
	defer func() {
		file.Close()
		if !success {
			_ = os.Remove(tmpOutput)
		}
	}()

	pw := &progressWriter{writer: file, total: resp.ContentLength, label: "Downloading"}

	start := time.Now()
	n, err := io.Copy(pw, resp.Body)
	fmt.Fprintln(os.Stderr) // newline after progress
	if err != nil {
		return fmt.Errorf("downloading: %w", err)
	}
	if resp.ContentLength >= 0 && n != resp.ContentLength {
		return fmt.Errorf("short download: got %d of %d bytes", n, resp.ContentLength)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("closing downloaded file: %w", err)
	}
	if err := os.Rename(tmpOutput, output); err != nil {
		return fmt.Errorf("finalizing output file: %w", err)
	}
	success = true

	fmt.Printf("Pulled %s@%s -> %s\n", pkg, version, output)
	fmt.Printf("  Size:     %s\n", formatBytes(n))
	fmt.Printf("  Duration: %v\n", time.Since(start).Round(time.Millisecond))
	return nil
}
