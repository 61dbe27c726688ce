// Command encrypt-token seals a binding store token for use as
// NOTEGATE_STORE_TOKEN_ENCRYPTED. The passphrase is read from the
// environment so that neither secret lands in shell history.
package main

import (
	"flag"
	"fmt"
	"os"

	"notegate/internal/security"
)

func main() {
	token := flag.String("token", "", "store token to encrypt (defaults to TOKEN env var)")
	flag.Parse()

	value := *token
	if value == "" {
		value = os.Getenv("TOKEN")
	}
	passphrase := os.Getenv("PASSPHRASE")

	if value == "" || passphrase == "" {
		fmt.Fprintln(os.Stderr, "usage: TOKEN=... PASSPHRASE=... encrypt-token")
		os.Exit(2)
	}

	blob, err := security.EncryptToken(value, passphrase)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encryption failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(blob)
}
