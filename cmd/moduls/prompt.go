package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/layer-3/moduls/adapters/wallet"
	"github.com/urfave/cli/v2"
)

func approver(c *cli.Context) wallet.Approver {
	if c.Bool("yes") {
		return wallet.AutoApprove
	}
	return terminalApprover(os.Stdin, os.Stderr)
}

// terminalApprover shows the message and asks for confirmation. Anything
// but y or yes declines.
func terminalApprover(in io.Reader, out io.Writer) wallet.Approver {
	reader := bufio.NewReader(in)

	return func(ctx context.Context, message string) (bool, error) {
		fmt.Fprintf(out, "\n%s\n\nSign this message? [y/N] ", message)

		answer := make(chan string, 1)
		failed := make(chan error, 1)
		go func() {
			line, err := reader.ReadString('\n')
			if err != nil && line == "" {
				failed <- err
				return
			}
			answer <- line
		}()

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case err := <-failed:
			return false, fmt.Errorf("failed to read answer: %w", err)
		case line := <-answer:
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "y", "yes":
				return true, nil
			default:
				return false, nil
			}
		}
	}
}
