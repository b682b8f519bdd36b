// signinctl is the operator CLI for the sign-in gateway admin API.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type client struct {
	BaseURL   string
	APIKey    string
	OutFormat string // "json" | "text"
	HTTP      *http.Client
}

func (c *client) do(method, path string, body []byte) (int, []byte, error) {
	url := strings.TrimRight(c.BaseURL, "/") + path
	req, err := http.NewRequest(method, url, bytes.NewReader(body))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("X-Admin-API-Key", c.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b, nil
}

func (c *client) print(status int, body []byte) {
	if c.OutFormat == "json" {
		var v any
		if json.Unmarshal(body, &v) == nil {
			p, _ := json.MarshalIndent(v, "", "  ")
			fmt.Println(string(p))
			return
		}
	}
	if len(body) > 0 {
		fmt.Println(string(body))
	} else {
		fmt.Printf("status=%d\n", status)
	}
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func main() {
	var (
		baseURL = envOr("SIGNIN_GATEWAY_URL", "http://localhost:8080")
		apiKey  = envOr("SIGNIN_ADMIN_KEY", "")
		out     = envOr("SIGNIN_OUT", "text")
	)

	root := &cobra.Command{
		Use:   "signinctl",
		Short: "Operator CLI for the sign-in gateway (/v1/admin)",
	}

	root.PersistentFlags().StringVar(&baseURL, "url", baseURL, "gateway base URL (env SIGNIN_GATEWAY_URL)")
	root.PersistentFlags().StringVar(&apiKey, "admin-api-key", apiKey, "admin API key (env SIGNIN_ADMIN_KEY)")
	root.PersistentFlags().StringVar(&out, "out", out, "output format: json|text")

	cl := &client{HTTP: &http.Client{Timeout: 30 * time.Second}}
	root.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		cl.BaseURL = baseURL
		cl.APIKey = apiKey
		cl.OutFormat = out
	}

	healthCmd := &cobra.Command{
		Use:   "health",
		Short: "Check gateway readiness",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/readyz", nil)
			if err != nil {
				return err
			}
			if status/100 != 2 {
				return fmt.Errorf("not ready: status=%d body=%s", status, string(body))
			}
			if cl.OutFormat == "text" {
				fmt.Println("ok")
				return nil
			}
			cl.print(status, body)
			return nil
		},
	}

	sessionCmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or clear sign-in sessions",
	}

	requireKey := func(cmd *cobra.Command, args []string) error {
		if apiKey == "" {
			return fmt.Errorf("admin API key required (flag --admin-api-key or env SIGNIN_ADMIN_KEY)")
		}
		return nil
	}

	sessionGetCmd := &cobra.Command{
		Use:     "get <session-id>",
		Short:   "Show a session's flow state",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireKey,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("GET", "/v1/admin/session/"+args[0], nil)
			if err != nil {
				return err
			}
			if status == http.StatusUnauthorized {
				return fmt.Errorf("unauthorized: check the admin API key")
			}
			cl.print(status, body)
			return nil
		},
	}

	sessionClearCmd := &cobra.Command{
		Use:     "clear <session-id>",
		Short:   "Force-terminate a session",
		Args:    cobra.ExactArgs(1),
		PreRunE: requireKey,
		RunE: func(cmd *cobra.Command, args []string) error {
			status, body, err := cl.do("DELETE", "/v1/admin/session/"+args[0], nil)
			if err != nil {
				return err
			}
			if status == http.StatusUnauthorized {
				return fmt.Errorf("unauthorized: check the admin API key")
			}
			if status == http.StatusNoContent {
				fmt.Println("cleared")
				return nil
			}
			cl.print(status, body)
			return nil
		},
	}

	sessionCmd.AddCommand(sessionGetCmd, sessionClearCmd)
	root.AddCommand(healthCmd, sessionCmd)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
