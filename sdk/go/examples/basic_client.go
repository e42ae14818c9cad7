package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	orbicheck "github.com/orbicheck/orbicheck/sdk/go"
)

func main() {
	var (
		baseURL = flag.String("base", "http://localhost:8080", "OrbiCheck base URL")
		tenant  = flag.String("tenant", "local", "Tenant id (header value)")
		apiKey  = flag.String("key", "", "API key (Bearer credential)")
		email   = flag.String("email", "shopper@example.com", "Email address to validate")
		timeout = flag.Duration("timeout", 10*time.Second, "Request timeout")
	)
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	c := orbicheck.NewClient(*baseURL)

	opts := []orbicheck.RequestOption{orbicheck.WithTenant(*tenant)}
	if *apiKey != "" {
		opts = append(opts, orbicheck.WithAPIKey(*apiKey))
	}

	fmt.Println("== OrbiCheck basic client ==")
	fmt.Println("base:", c.BaseURL)
	fmt.Println("tenant:", *tenant)

	result, err := c.ValidateEmail(ctx, *email, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "validate/email error:", err)
		os.Exit(1)
	}
	fmt.Println("\n/v1/validate/email:")
	fmt.Println(string(result))

	catalog, err := c.RulesCatalog(ctx, opts...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "rules/catalog error:", err)
		os.Exit(1)
	}
	fmt.Println("\n/v1/rules/catalog:")
	fmt.Println(string(catalog))
}
