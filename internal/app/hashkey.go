package app

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"horse.fit/themedup/internal/auth"
)

func runHashKey(args []string) int {
	fs := flag.NewFlagSet("hash-key", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	fromStdin := fs.Bool("stdin", false, "Read the key to hash from stdin instead of generating one")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	key, generated, err := resolveAPIKey(*fromStdin, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to obtain API key: %v\n", err)
		return 1
	}

	hash, err := auth.HashAPIKey(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to hash API key: %v\n", err)
		return 1
	}

	if generated {
		fmt.Printf("API_KEY=%s\n", key)
	}
	fmt.Printf("API_KEY_HASH=%s\n", hash)
	return 0
}

func resolveAPIKey(fromStdin bool, stdin io.Reader) (string, bool, error) {
	if !fromStdin {
		key, err := auth.GenerateAPIKey()
		return key, true, err
	}

	line, err := bufio.NewReader(stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", false, fmt.Errorf("read stdin: %w", err)
	}
	key := strings.TrimSpace(line)
	if key == "" {
		return "", false, fmt.Errorf("stdin did not contain a key")
	}
	return key, false, nil
}
