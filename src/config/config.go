package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

var (
	// DefaultPort is the default port to expose the API server.
	DefaultPort int = 8080

	// DefaultGithubAPIURL is the public GitHub REST API endpoint.
	DefaultGithubAPIURL = "https://api.github.com"

	// DefaultHTTPTimeout bounds every outbound GitHub request.
	DefaultHTTPTimeout = 30 * time.Second
)

type Config struct {
	Port           int           // Port that exposes the API server.
	GithubAPIURL   string        // GithubAPIURL is the base URL of the GitHub REST API.
	HTTPTimeout    time.Duration // HTTPTimeout is the timeout for outbound GitHub requests.
	LogLevel       string        // LogLevel is the level of logging for the application.
	EmailName      string        // Name on email license delivery.
	EmailFrom      string        // From address for email license delivery.
	SendgridAPIKey string        // SendgridAPIKey is for sending emails. Empty disables license mail.
}

// New builds a Config from the environment. Every value has a default; the
// GitHub token is never read here because it arrives per request in the
// Authorization header.
func New() (Config, error) {
	port, err := strconv.Atoi(getEnvWithDefault("GISTLICK_PORT", strconv.Itoa(DefaultPort)))
	if err != nil {
		return Config{}, fmt.Errorf("GISTLICK_PORT must be a number: %w", err)
	}

	timeoutSecs, err := strconv.Atoi(getEnvWithDefault("GISTLICK_HTTP_TIMEOUT", "30"))
	if err != nil {
		return Config{}, fmt.Errorf("GISTLICK_HTTP_TIMEOUT must be a number of seconds: %w", err)
	}

	return Config{
		Port:           port,
		GithubAPIURL:   getEnvWithDefault("GISTLICK_GITHUB_API_URL", DefaultGithubAPIURL),
		HTTPTimeout:    time.Duration(timeoutSecs) * time.Second,
		LogLevel:       getEnvWithDefault("GISTLICK_LOG_LEVEL", "info"),
		EmailName:      getEnvWithDefault("EMAIL_NAME", "GistLick"),
		EmailFrom:      getEnvWithDefault("EMAIL_FROM", "noreply@example.com"),
		SendgridAPIKey: os.Getenv("SENDGRID_API_KEY"),
	}, nil
}

func getEnvWithDefault(name string, def string) string {
	res, found := os.LookupEnv(name)
	if !found {
		return def
	}
	return res
}
