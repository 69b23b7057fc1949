package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"dartcam/internal/auth"
)

func usage() {
	fmt.Fprintf(os.Stderr, `%s is a command line client for the dartcam API.

Usage:
    %s [-url URL] [-timeout SECONDS] [-token TOKEN] [-verbose] COMMAND [ARGS]

Commands:
    %s

Additional flags:
`, os.Args[0], os.Args[0], strings.ReplaceAll(usageCommands(), "\n", "\n    "))
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, `
Example:
    %s
`, strings.ReplaceAll(usageExamples(), "\n", "\n    "))
}

func usageCommands() string {
	return strings.Join([]string{
		"login USER PASSWORD       obtain a token",
		"status                    show engine status",
		"start | stop              control acquisition",
		"calibrate                 run a manual calibration",
		"settings [key=value ...]  show or change settings",
		"hits [LIMIT] [GAME]       list recent hits",
		"calibrations [LIMIT]      list applied calibrations",
		"hash-password PASSWORD    print a bcrypt hash for AUTH_PASSWORD",
	}, "\n")
}

func usageExamples() string {
	return strings.Join([]string{
		os.Args[0] + " -url http://dartcam.local:8080 status",
		os.Args[0] + " settings game=ladder lens_strength=0.08",
		os.Args[0] + " hits 20 tons",
	}, "\n")
}

func main() {
	var (
		urlF     = flag.String("url", envOr("DARTCAM_URL", "http://localhost:8080"), "Server URL")
		tokenF   = flag.String("token", os.Getenv("DARTCAM_TOKEN"), "Bearer token")
		timeoutF = flag.Int("timeout", 40, "Request timeout in seconds")
		verboseF = flag.Bool("verbose", false, "Print request and response details")
		vF       = flag.Bool("v", false, "Print request and response details")
	)
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(1)
	}

	c := newClient(*urlF, *tokenF, time.Duration(*timeoutF)*time.Second, *verboseF || *vF)
	data, err := run(c, args[0], args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(1)
	}
	if data != nil {
		m, _ := json.MarshalIndent(data, "", "    ")
		fmt.Println(string(m))
	}
}

func run(c *client, cmd string, args []string) (any, error) {
	var out any
	switch cmd {
	case "login":
		if len(args) != 2 {
			return nil, fmt.Errorf("usage: login USER PASSWORD")
		}
		return out, c.do("POST", "/api/v1/auth/login", map[string]string{"username": args[0], "password": args[1]}, &out)
	case "status":
		return out, c.do("GET", "/api/v1/status", nil, &out)
	case "start":
		return out, c.do("POST", "/api/v1/camera/start", nil, &out)
	case "stop":
		return out, c.do("POST", "/api/v1/camera/stop", nil, &out)
	case "calibrate":
		return out, c.do("POST", "/api/v1/calibrate", nil, &out)
	case "settings":
		if len(args) == 0 {
			return out, c.do("GET", "/api/v1/settings", nil, &out)
		}
		body, err := parseSettings(args)
		if err != nil {
			return nil, err
		}
		return out, c.do("PUT", "/api/v1/settings", body, &out)
	case "hits":
		path := "/api/v1/hits?limit=" + argOr(args, 0, "20")
		if len(args) > 1 {
			path += "&game=" + args[1]
		}
		return out, c.do("GET", path, nil, &out)
	case "calibrations":
		return out, c.do("GET", "/api/v1/calibrations?limit="+argOr(args, 0, "10"), nil, &out)
	case "hash-password":
		if len(args) != 1 {
			return nil, fmt.Errorf("usage: hash-password PASSWORD")
		}
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return nil, err
		}
		fmt.Println(hash)
		return nil, nil
	}
	return nil, fmt.Errorf("unknown command %q", cmd)
}

// parseSettings turns key=value pairs into a settings body. Numbers stay
// numbers; anything else is sent as a string.
func parseSettings(args []string) (map[string]any, error) {
	body := make(map[string]any, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid setting %q, want key=value", a)
		}
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			body[k] = f
		} else {
			body[k] = v
		}
	}
	return body, nil
}

func argOr(args []string, i int, def string) string {
	if i < len(args) {
		return args[i]
	}
	return def
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
