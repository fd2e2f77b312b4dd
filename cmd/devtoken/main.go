// Command devtoken mints access tokens and webhook token hashes for local
// development.  Tokens are signed with JWT_SECRET exactly like the ones the
// identity service issues.
//
//	devtoken -user 42                 # prints a CUSTOMER bearer token
//	devtoken -hash my-webhook-secret  # prints PAYMENT_WEBHOOK_TOKEN_HASH
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/iliyamo/cinema-seat-locking/internal/config"
	"github.com/iliyamo/cinema-seat-locking/internal/utils"
)

func main() {
	user := flag.Uint64("user", 1, "user id to put in the sub claim")
	role := flag.String("role", "CUSTOMER", "role claim")
	ttl := flag.Duration("ttl", time.Hour, "token lifetime")
	hash := flag.String("hash", "", "print the bcrypt hash of this webhook token instead of a JWT")
	flag.Parse()

	if err := config.LoadDotEnv(); err != nil {
		log.Fatalf("load .env: %v", err)
	}

	if *hash != "" {
		h, err := utils.HashSecret(*hash, 0)
		if err != nil {
			log.Fatalf("hash: %v", err)
		}
		fmt.Println(h)
		return
	}

	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		log.Fatal("JWT_SECRET is not set")
	}
	tok, err := utils.NewAccessToken(secret, *user, *role, *ttl)
	if err != nil {
		log.Fatalf("sign: %v", err)
	}
	fmt.Println(tok.Token)
}
