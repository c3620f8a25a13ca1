package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"corpus-obfuscator/internal/pipeline"
)

// resolvePath returns the first of candidates that exists (as a directory
// when dir is set, as a file otherwise). When none does, the user is asked
// on in until an existing path or an empty answer is given.
func resolvePath(in *bufio.Reader, out io.Writer, what string, dir bool, candidates ...string) (string, error) {
	for _, c := range candidates {
		if c != "" && pathExists(c, dir) {
			return c, nil
		}
	}
	for {
		fmt.Fprintf(out, "%s not found. Enter path (empty to abort): ", what)
		line, err := in.ReadString('\n')
		answer := strings.TrimSpace(line)
		if answer == "" {
			return "", fmt.Errorf("%w: %s", pipeline.ErrMissingInput, what)
		}
		if pathExists(answer, dir) {
			return answer, nil
		}
		fmt.Fprintf(out, "%s does not exist.\n", answer)
		if err != nil {
			return "", fmt.Errorf("%w: %s", pipeline.ErrMissingInput, what)
		}
	}
}

func pathExists(p string, dir bool) bool {
	info, err := os.Stat(p)
	if err != nil {
		return false
	}
	return info.IsDir() == dir
}
