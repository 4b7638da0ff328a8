package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"strings"
)

// client talks to the server's /api/v1 surface.
type client struct {
	server string
	token  string
}

func (c *client) do(method, rawPath string, body io.Reader, contentLength int64) (*http.Response, error) {
	req, err := http.NewRequest(method, strings.TrimRight(c.server, "/")+rawPath, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.ContentLength = contentLength
	}
	return http.DefaultClient.Do(req)
}

// doJSON sends v as the body and decodes a successful response into out.
func (c *client) doJSON(method, rawPath string, v, out any, want int) (int, error) {
	var body io.Reader
	var n int64
	if v != nil {
		data, err := json.Marshal(v)
		if err != nil {
			return 0, fmt.Errorf("encoding request: %w", err)
		}
		body = bytes.NewReader(data)
		n = int64(len(data))
	}

	resp, err := c.do(method, rawPath, body, n)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return resp.StatusCode, fmt.Errorf("%s", formatHTTPError(resp))
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decoding response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

// tarballName follows the npm convention: scoped packages drop the scope.
func tarballName(pkg, version string) string {
	return path.Base(pkg) + "-" + version + ".tgz"
}

func packagesPath() string {
	return "/api/v1/packages"
}

func packagePath(pkg string) string {
	return packagesPath() + "/" + url.PathEscape(pkg)
}

func tarballPath(pkg, file string) string {
	return packagePath(pkg) + "/-/" + url.PathEscape(file)
}

func distTagPath(pkg, tag string) string {
	return packagePath(pkg) + "/dist-tags/" + url.PathEscape(tag)
}

// progressReader wraps a reader and prints progress.
type progressReader struct {
	reader  io.Reader
	total   int64
	current int64
	label   string
}

func (pr *progressReader) Read(p []byte) (int, error) {
	n, err := pr.reader.Read(p)
	pr.current += int64(n)
	printProgress(pr.label, pr.current, pr.total)
	return n, err
}

// progressWriter wraps a writer and prints progress.
type progressWriter struct {
	writer  io.Writer
	total   int64
	current int64
	label   string
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.current += int64(n)
	printProgress(pw.label, pw.current, pw.total)
	return n, err
}

func printProgress(label string, current, total int64) {
	if total <= 0 {
		fmt.Fprintf(os.Stderr, "\r%s: %s", label, formatBytes(current))
		return
	}
	pct := float64(current) / float64(total) * 100
	barLen := 30
	filled := int(pct / 100 * float64(barLen))
	bar := strings.Repeat("=", filled) + strings.Repeat(" ", barLen-filled)
	fmt.Fprintf(os.Stderr, "\r%s: [%s] %.1f%% %s/%s", label, bar, pct, formatBytes(current), formatBytes(total))
}

func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(b)/float64(div), "KMGTPE"[exp])
}

func formatHTTPError(resp *http.Response) string {
	body, _ := io.ReadAll(resp.Body)
	if len(body) == 0 {
		return fmt.Sprintf("error (%d): %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	}

	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Message != "" {
		return fmt.Sprintf("error (%d): %s", resp.StatusCode, payload.Message)
	}
	return fmt.Sprintf("error (%d): %s", resp.StatusCode, strings.TrimSpace(string(body)))
}
