// Package tika provides a client for an Apache Tika server, used to
// extract text and page counts from PDF documents.
package tika

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"strconv"

	"partychat-go/internal/config"
)

// Client is a client for a Tika server.
type Client struct {
	serverURL string
	client    *http.Client
}

// NewClient creates a new Tika client instance.
func NewClient(cfg config.TikaConfig) *Client {
	return &Client{serverURL: cfg.ServerURL, client: &http.Client{}}
}

// ExtractText sends the file to Tika and returns the extracted plain text.
// The MIME type is inferred from the file name.
func (c *Client) ExtractText(fileReader io.Reader, fileName string) (string, error) {
	contentType := detectMimeType(fileName)

	req, err := http.NewRequest("PUT", c.serverURL+"/tika", fileReader)
	if err != nil {
		return "", fmt.Errorf("failed to create tika request: %w", err)
	}

	req.Header.Set("Accept", "text/plain")
	req.Header.Set("Content-Type", contentType)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call tika: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("tika returned error [%d]: %s", resp.StatusCode, string(body))
	}

	buf := new(bytes.Buffer)
	if _, err := io.Copy(buf, resp.Body); err != nil {
		return "", fmt.Errorf("failed to read tika response: %w", err)
	}

	return buf.String(), nil
}

// PageCount asks Tika's /meta endpoint for the document's page count.
// Returns 0 when the metadata does not carry one.
func (c *Client) PageCount(fileReader io.Reader, fileName string) (int, error) {
	req, err := http.NewRequest("PUT", c.serverURL+"/meta", fileReader)
	if err != nil {
		return 0, fmt.Errorf("failed to create tika meta request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", detectMimeType(fileName))

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to call tika meta: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return 0, fmt.Errorf("tika meta returned error [%d]: %s", resp.StatusCode, string(body))
	}

	var meta map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return 0, fmt.Errorf("failed to decode tika metadata: %w", err)
	}

	for _, key := range []string{"xmpTPg:NPages", "meta:page-count", "Page-Count"} {
		if v, ok := meta[key]; ok {
			switch n := v.(type) {
			case string:
				if pages, err := strconv.Atoi(n); err == nil {
					return pages, nil
				}
			case float64:
				return int(n), nil
			}
		}
	}
	return 0, nil
}

// detectMimeType infers the Content-Type from the file extension.
func detectMimeType(fileName string) string {
	ext := filepath.Ext(fileName)
	if ext == "" {
		return "application/octet-stream"
	}
	mimeType := mime.TypeByExtension(ext)
	if mimeType == "" {
		return "application/octet-stream"
	}
	return mimeType
}
