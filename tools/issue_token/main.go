// issue_token mints a bearer token for local development and manual testing.
//
// Usage:
//
//	go run ./tools/issue_token -user=alice -role=admin
//
// The signing secret is read from TOKEN_SECRET.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/patrickwarner/pollwatch/internal/config"
	"github.com/patrickwarner/pollwatch/internal/models"
	"github.com/patrickwarner/pollwatch/internal/token"
)

func main() {
	var (
		user = flag.String("user", "", "user id carried by the token")
		role = flag.String("role", "", "role claim, e.g. admin")
	)
	flag.Parse()

	cfg := config.Load()
	if cfg.TokenSecret == "" {
		fmt.Fprintln(os.Stderr, "TOKEN_SECRET must be set")
		os.Exit(1)
	}
	if *user == "" {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		flag.Usage()
		os.Exit(1)
	}
	if *role != "" && *role != models.RoleAdmin {
		fmt.Fprintf(os.Stderr, "Warning: role %q grants no extra permissions\n", *role)
	}

	tok, err := token.Generate(*user, *role, []byte(cfg.TokenSecret))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(tok)
}
