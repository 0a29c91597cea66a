// Command smoke runs a post-deploy smoke check against a running API
// instance: health, login, and the authenticated endpoints each role is
// expected to reach. It exits non-zero when any critical check fails.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"
	"time"
)

type check struct {
	Name     string
	Method   string
	Path     string
	Token    string
	Body     interface{}
	Expect   int
	Critical bool
}

type result struct {
	Check    check
	Status   int
	Duration time.Duration
	Error    error
}

func main() {
	var (
		base     string
		prefix   string
		username string
		password string
		role     string
		timeout  time.Duration
	)

	flag.StringVar(&base, "base", "http://localhost:8080", "API base URL")
	flag.StringVar(&prefix, "prefix", "/api/v1", "API route prefix")
	flag.StringVar(&username, "username", "", "login username")
	flag.StringVar(&password, "password", "", "login password")
	flag.StringVar(&role, "role", "admin", "login role")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "HTTP client timeout")
	flag.Parse()

	client := &http.Client{Timeout: timeout}
	base = strings.TrimRight(base, "/")

	checks := []check{
		{Name: "health", Method: http.MethodGet, Path: "/health", Expect: http.StatusOK, Critical: true},
		{Name: "metrics", Method: http.MethodGet, Path: "/metrics", Expect: http.StatusOK},
	}

	var token string
	if username != "" {
		var err error
		token, err = login(client, base+prefix, username, password, role)
		if err != nil {
			log.Fatalf("login failed: %v", err)
		}
		checks = append(checks,
			check{Name: "me", Method: http.MethodGet, Path: prefix + "/auth/me", Token: token, Expect: http.StatusOK, Critical: true},
			check{Name: "courses", Method: http.MethodGet, Path: prefix + "/courses", Token: token, Expect: http.StatusOK, Critical: true},
		)
	}

	var breaking, soft int
	var results []result
	for _, c := range checks {
		res := run(client, base, c)
		if res.Error != nil || res.Status != c.Expect {
			if c.Critical {
				breaking++
			} else {
				soft++
			}
		}
		results = append(results, res)
	}

	printReport(results)
	fmt.Printf("Critical failures: %d, soft failures: %d\n", breaking, soft)
	if breaking > 0 {
		os.Exit(1)
	}
}

func login(client *http.Client, apiBase, username, password, role string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"username": username,
		"password": password,
		"role":     role,
	})
	if err != nil {
		return "", err
	}
	resp, err := client.Post(apiBase+"/auth/login", "application/json", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var envelope struct {
		Data struct {
			AccessToken string `json:"access_token"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if envelope.Data.AccessToken == "" {
		return "", fmt.Errorf("login response carries no token")
	}
	return envelope.Data.AccessToken, nil
}

func run(client *http.Client, base string, c check) result {
	res := result{Check: c}

	req, err := http.NewRequest(c.Method, base+c.Path, nil)
	if err != nil {
		res.Error = err
		return res
	}
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}

	start := time.Now()
	resp, err := client.Do(req)
	res.Duration = time.Since(start)
	if err != nil {
		res.Error = err
		return res
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	res.Status = resp.StatusCode
	return res
}

func printReport(results []result) {
	for _, res := range results {
		status := "ok"
		detail := fmt.Sprintf("%d in %s", res.Status, res.Duration.Round(time.Millisecond))
		if res.Error != nil {
			status = "FAIL"
			detail = res.Error.Error()
		} else if res.Status != res.Check.Expect {
			status = "FAIL"
			detail = fmt.Sprintf("got %d, want %d", res.Status, res.Check.Expect)
		}
		fmt.Printf("%-8s %-7s %-35s %s\n", status, res.Check.Method, res.Check.Path, detail)
	}
}
