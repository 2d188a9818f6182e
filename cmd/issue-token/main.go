package main

import (
	"flag"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/stemsi/exstem-quiz/internal/config"
	"github.com/stemsi/exstem-quiz/internal/model"
	"github.com/stemsi/exstem-quiz/internal/service"
)

// issue-token signs a JWT for a user. Tokens normally come from the host
// platform; this is for operators and local testing.
func main() {
	userID := flag.Int("user", 0, "User ID")
	perms := flag.String("permissions", string(model.PermissionQuizAttempt), "Comma-separated capabilities")
	flag.Parse()

	if *userID <= 0 {
		fmt.Fprintln(os.Stderr, "Error: -user is required")
		os.Exit(2)
	}

	var codes []string
	for _, p := range strings.Split(*perms, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if !slices.Contains(model.AllPermissions, model.Permission(p)) {
			fmt.Fprintf(os.Stderr, "Error: unknown permission %q\n", p)
			os.Exit(2)
		}
		codes = append(codes, p)
	}

	token, err := service.NewAuthService(config.Load()).GenerateToken(*userID, codes)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(token)
}
