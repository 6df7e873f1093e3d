package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"school-bus/internal/cli"
)

func main() {
	var (
		userID   = flag.String("user-id", "", "ID of the crew member (subject)")
		schoolID = flag.String("school-id", "", "School the token is scoped to")
		role     = flag.String("role", "DRIVER", "User role: DRIVER | SUPERVISOR | ADMIN")
		secret   = flag.String("secret", "", "JWT HMAC secret (HS256)")
	)
	flag.Parse()

	if *userID == "" || *schoolID == "" || *secret == "" {
		fmt.Fprintln(os.Stderr, "usage: key --user-id=<id> --school-id=<id> --role=DRIVER --secret='<secret>'")
		os.Exit(2)
	}

	token, claims, err := cli.GenerateUserToken(*secret, *userID, *schoolID, *role)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println("TOKEN:")
	fmt.Println(token)
	fmt.Println("\nCLAIMS:")
	fmt.Printf("  sub:    %s\n", claims.Subject)
	fmt.Printf("  school: %s\n", claims.SchoolID)
	fmt.Printf("  role:   %s\n", claims.Role)
	fmt.Printf("  iat:    %s\n", claims.IssuedAt.Time.UTC().Format(time.RFC3339))
	fmt.Printf("  exp:    %s\n", claims.ExpiresAt.Time.UTC().Format(time.RFC3339))
}
