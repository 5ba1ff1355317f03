package cmd

import (
	"fmt"
	"io"
	"sort"

	"github.com/joho/godotenv"

	"github.com/livereview/prchat/internal/aiconnectors"
	"github.com/livereview/prchat/internal/config"
	"github.com/livereview/prchat/internal/database"
)

// ConfigCheckResult holds the result of configuration validation
type ConfigCheckResult struct {
	Missing  []string          // Required settings that are missing
	Present  map[string]string // Settings that are set (masked values)
	Warnings []string          // Non-fatal warnings
}

// CheckRequiredConfig reports which secrets and connection settings the
// loaded configuration carries.
func CheckRequiredConfig(cfg *config.Config) *ConfigCheckResult {
	result := &ConfigCheckResult{
		Missing:  []string{},
		Present:  make(map[string]string),
		Warnings: []string{},
	}

	check := func(name, value string, required bool) {
		switch {
		case value != "":
			result.Present[name] = maskSecret(value)
		case required:
			result.Missing = append(result.Missing, name)
		}
	}

	check("auth.jwt_secret", cfg.Auth.JWTSecret, true)
	provider, _ := aiconnectors.ParseProvider(cfg.LLM.Provider)
	check("llm.api_key", cfg.LLM.APIKey, provider != aiconnectors.ProviderOllama)

	dbURL, err := database.ResolveURL(cfg.Database.URL)
	switch {
	case err == nil:
		result.Present["database.url"] = maskSecret(dbURL)
	case cfg.Context.FixturesPath != "":
		result.Warnings = append(result.Warnings, "no database configured; sessions will be kept in memory")
	default:
		result.Missing = append(result.Missing, "database.url")
	}

	if cfg.Jobs.Enabled && err != nil {
		result.Warnings = append(result.Warnings, "jobs.enabled has no effect without a database")
	}
	return result
}

// PrintConfigCheck prints the configuration check results
func PrintConfigCheck(w io.Writer, result *ConfigCheckResult) {
	fmt.Fprintln(w, "=== Configuration Check ===")

	if len(result.Missing) > 0 {
		fmt.Fprintln(w, red("Missing required settings:"))
		for _, v := range result.Missing {
			fmt.Fprintf(w, "   - %s\n", v)
		}
		fmt.Fprintln(w)
	}

	if len(result.Present) > 0 {
		fmt.Fprintln(w, green("Configured settings:"))
		keys := make([]string, 0, len(result.Present))
		for k := range result.Present {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Fprintf(w, "   - %s = %s\n", k, result.Present[k])
		}
		fmt.Fprintln(w)
	}

	for _, warn := range result.Warnings {
		fmt.Fprintf(w, "%s %s\n", yellow("Warning:"), warn)
	}

	if len(result.Missing) == 0 {
		fmt.Fprintln(w, green("All required configuration is present"))
	}

	fmt.Fprintln(w, "============================")
}

// maskSecret masks a secret value for display, showing only first and last 2 chars
func maskSecret(value string) string {
	if len(value) <= 8 {
		return "****"
	}
	return value[:2] + "****" + value[len(value)-2:]
}

// LoadEnvFile loads environment variables from a file, overwriting existing ones.
func LoadEnvFile(filename string) error {
	return godotenv.Overload(filename)
}
