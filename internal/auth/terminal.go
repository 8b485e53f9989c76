package auth

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/juju/errors"
	"golang.org/x/oauth2"
	"golang.org/x/term"
)

// TerminalCompleter drives the consent flow over the controlling
// terminal: it prints the provider's authorization URL and reads the
// verification code back from stdin.
type TerminalCompleter struct {
	In  *os.File
	Out io.Writer
}

// NewTerminalCompleter returns a completer bound to stdin/stdout.
func NewTerminalCompleter() *TerminalCompleter {
	return &TerminalCompleter{In: os.Stdin, Out: os.Stdout}
}

// Complete implements Completer. It refuses to run when stdin is not a
// terminal, so headless runs fail fast instead of hanging on a prompt.
func (c *TerminalCompleter) Complete(ctx context.Context, cfg *oauth2.Config) (*oauth2.Token, error) {
	if !term.IsTerminal(int(c.In.Fd())) {
		return nil, errors.NewUnauthorized(nil, "consent requires an interactive terminal")
	}
	url := cfg.AuthCodeURL("state-token", oauth2.AccessTypeOffline)
	fmt.Fprintf(c.Out, "Open the link in your browser, authorize the app, then paste the code here:\n%v\n> ", url)

	var code string
	if _, err := fmt.Fscan(c.In, &code); err != nil {
		return nil, errors.Annotate(err, "read authorization code")
	}
	tok, err := cfg.Exchange(ctx, code)
	if err != nil {
		return nil, errors.NewUnauthorized(err, "exchange authorization code")
	}
	return tok, nil
}
