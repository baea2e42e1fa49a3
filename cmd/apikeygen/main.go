// apikeygen prints a fresh API key and the digest to store in the users
// table. With an argument or stdin input it digests an existing key instead.
package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/oakmoor/casetrail/internal/platform/auth"
)

func main() {
	key, err := readOrGenerateKey()
	if err != nil {
		fmt.Fprintf(os.Stderr, "obtain key: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("key:    %s\ndigest: %s\n", key, auth.KeyDigest(key))
}

func readOrGenerateKey() (string, error) {
	if len(os.Args) > 1 && strings.TrimSpace(os.Args[1]) != "" {
		return strings.TrimSpace(os.Args[1]), nil
	}
	info, err := os.Stdin.Stat()
	if err != nil {
		return "", err
	}
	if info.Mode()&os.ModeCharDevice != 0 {
		return auth.NewKey()
	}
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil && len(line) == 0 {
		return "", err
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return auth.NewKey()
	}
	return key, nil
}
