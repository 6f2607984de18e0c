// Package askdbctl implements the askdbctl command: a thin client for
// driving the API from a terminal.
package askdbctl

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

type Options struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("askdbctl", flag.ContinueOnError)
	fs.SetOutput(stderr)

	baseURL := fs.String("base-url", firstNonEmpty(defaults.BaseURL, "http://localhost:8080"), "AskDB API base URL")
	apiKey := fs.String("api-key", defaults.APIKey, "API key for authenticated requests")
	timeout := fs.Duration("timeout", durationOr(defaults.Timeout, 30*time.Second), "HTTP timeout (e.g. 30s)")
	dsn := fs.String("dsn", "", "Postgres DSN for create-session (instead of a file upload)")
	limit := fs.Int("limit", 0, "Max turns for the history command (0 = all)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() < 1 {
		writeUsage(stderr)
		return 2
	}

	client := defaults.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: *timeout}
	}

	c := &commandContext{
		ctx:     ctx,
		client:  client,
		baseURL: strings.TrimRight(*baseURL, "/"),
		apiKey:  strings.TrimSpace(*apiKey),
		stdout:  stdout,
		stderr:  stderr,
	}

	command := strings.TrimSpace(fs.Arg(0))
	switch command {
	case "health":
		return c.simple(http.MethodGet, "/v1/health", nil, "")
	case "ready":
		return c.simple(http.MethodGet, "/v1/ready", nil, "")
	case "create-session":
		if *dsn != "" {
			body, _ := json.Marshal(map[string]string{"dsn": *dsn})
			return c.simple(http.MethodPost, "/v1/sessions", bytes.NewReader(body), "application/json")
		}
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "create-session requires a database file (or -dsn)")
			return 2
		}
		return c.createSessionFromFile(fs.Arg(1))
	case "schema":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "schema requires a session id")
			return 2
		}
		return c.simple(http.MethodGet, "/v1/sessions/"+fs.Arg(1)+"/schema", nil, "")
	case "ask":
		if fs.NArg() < 3 {
			_, _ = fmt.Fprintln(stderr, "ask requires a session id and a question")
			return 2
		}
		question := strings.Join(fs.Args()[2:], " ")
		body, _ := json.Marshal(map[string]string{"question": question})
		return c.simple(http.MethodPost, "/v1/sessions/"+fs.Arg(1)+"/ask", bytes.NewReader(body), "application/json")
	case "history":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "history requires a session id")
			return 2
		}
		path := "/v1/sessions/" + fs.Arg(1) + "/history"
		if *limit > 0 {
			path = fmt.Sprintf("%s?limit=%d", path, *limit)
		}
		return c.simple(http.MethodGet, path, nil, "")
	case "clear":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "clear requires a session id")
			return 2
		}
		return c.simple(http.MethodPost, "/v1/sessions/"+fs.Arg(1)+"/clear", nil, "")
	case "delete-session":
		if fs.NArg() < 2 {
			_, _ = fmt.Fprintln(stderr, "delete-session requires a session id")
			return 2
		}
		return c.simple(http.MethodDelete, "/v1/sessions/"+fs.Arg(1), nil, "")
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n\n", command)
		writeUsage(stderr)
		return 2
	}
}

type commandContext struct {
	ctx     context.Context
	client  *http.Client
	baseURL string
	apiKey  string
	stdout  io.Writer
	stderr  io.Writer
}

func (c *commandContext) simple(method, path string, body io.Reader, contentType string) int {
	code, responseBody, err := c.doRequest(method, c.baseURL+path, body, contentType)
	if err != nil {
		_, _ = fmt.Fprintf(c.stderr, "request failed: %v\n", err)
		return 1
	}
	return c.render(code, responseBody)
}

func (c *commandContext) createSessionFromFile(path string) int {
	file, err := os.Open(path)
	if err != nil {
		_, _ = fmt.Fprintf(c.stderr, "open database file: %v\n", err)
		return 1
	}
	defer func() { _ = file.Close() }()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("database", filepath.Base(path))
	if err == nil {
		_, err = io.Copy(part, file)
	}
	if err == nil {
		err = writer.Close()
	}
	if err != nil {
		_, _ = fmt.Fprintf(c.stderr, "build upload: %v\n", err)
		return 1
	}

	code, responseBody, err := c.doRequest(http.MethodPost, c.baseURL+"/v1/sessions", &buf, writer.FormDataContentType())
	if err != nil {
		_, _ = fmt.Fprintf(c.stderr, "request failed: %v\n", err)
		return 1
	}
	return c.render(code, responseBody)
}

func (c *commandContext) doRequest(method, url string, body io.Reader, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(c.ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, responseBody, nil
}

func (c *commandContext) render(code int, responseBody []byte) int {
	if code >= 400 {
		_, _ = fmt.Fprintf(c.stderr, "http %d: %s\n", code, strings.TrimSpace(string(responseBody)))
		return 1
	}
	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(c.stdout, pretty)
		return 0
	}
	if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(c.stdout, string(responseBody))
	}
	return 0
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func writeUsage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: askdbctl [flags] <command> [args]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "commands:")
	_, _ = fmt.Fprintln(w, "  health                      GET /v1/health")
	_, _ = fmt.Fprintln(w, "  ready                       GET /v1/ready")
	_, _ = fmt.Fprintln(w, "  create-session <file>       POST /v1/sessions (multipart upload; or -dsn)")
	_, _ = fmt.Fprintln(w, "  schema <session>            GET /v1/sessions/{session}/schema")
	_, _ = fmt.Fprintln(w, "  ask <session> <question>    POST /v1/sessions/{session}/ask")
	_, _ = fmt.Fprintln(w, "  history <session>           GET /v1/sessions/{session}/history (-limit)")
	_, _ = fmt.Fprintln(w, "  clear <session>             POST /v1/sessions/{session}/clear")
	_, _ = fmt.Fprintln(w, "  delete-session <session>    DELETE /v1/sessions/{session}")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	_, _ = fmt.Fprintln(w, "  -base-url, -api-key, -timeout, -dsn, -limit")
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if strings.TrimSpace(value) != "" {
			return value
		}
	}
	return ""
}

func durationOr(value, fallback time.Duration) time.Duration {
	if value > 0 {
		return value
	}
	return fallback
}
