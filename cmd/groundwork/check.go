package main

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/groundwork-ai/groundwork/pkg/health"
)

// CheckCmd probes the services of a health configuration file and
// prints a per-service report.
type CheckCmd struct {
	Services string `short:"s" required:"" help:"Path to the services YAML file." type:"path"`
	Profile  string `help:"Performance profile (fast, standard, slow)." default:"standard"`
	Timeout  int    `help:"Overall deadline in seconds." default:"120"`
}

func (c *CheckCmd) Run(cli *CLI) error {
	file, err := health.LoadServicesFile(c.Services)
	if err != nil {
		return err
	}
	profile := c.Profile
	if file.Profile != "" {
		profile = file.Profile
	}
	overall := time.Duration(c.Timeout) * time.Second
	if file.MaxTotalTimeoutSeconds > 0 {
		overall = time.Duration(file.MaxTotalTimeoutSeconds) * time.Second
	}

	checker := health.NewChecker(health.WithProfile(profile))
	report := checker.CheckAll(context.Background(), file.Services, overall)

	names := make([]string, 0, len(report.Results))
	for name := range report.Results {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		result := report.Results[name]
		status := "ok"
		if !result.Healthy {
			status = "FAIL"
		}
		fmt.Printf("%-24s %-6s %8s  attempts=%d", name, status,
			result.ResponseTime.Round(time.Millisecond), result.Attempts)
		if result.Error != "" {
			fmt.Printf("  %s", result.Error)
		}
		fmt.Println()
	}
	if report.TimeoutExceeded {
		fmt.Printf("overall deadline of %s exceeded\n", overall)
	}

	if !report.Healthy() {
		return fmt.Errorf("%d service(s) unhealthy", countUnhealthy(report))
	}
	fmt.Printf("all %d services healthy in %s\n", len(report.Results), report.Elapsed.Round(time.Millisecond))
	return nil
}

func countUnhealthy(report *health.Report) int {
	n := 0
	for _, result := range report.Results {
		if !result.Healthy {
			n++
		}
	}
	return n
}
