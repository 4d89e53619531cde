package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// prompter asks for missing credentials before any output UI starts.
type prompter struct {
	in  *bufio.Reader
	out io.Writer
	// readPassword reads without echo. Nil falls back to a plain line.
	readPassword func() (string, error)
}

func newTerminalPrompter() *prompter {
	p := &prompter{in: bufio.NewReader(os.Stdin), out: os.Stderr}
	if fd := int(os.Stdin.Fd()); term.IsTerminal(fd) {
		p.readPassword = func() (string, error) {
			b, err := term.ReadPassword(fd)
			fmt.Fprintln(p.out)
			return string(b), err
		}
	}
	return p
}

func (p *prompter) line(label string) (string, error) {
	fmt.Fprintf(p.out, "%s: ", label)
	s, err := p.in.ReadString('\n')
	if err != nil && (err != io.EOF || s == "") {
		return "", fmt.Errorf("failed to read %s: %w", strings.ToLower(label), err)
	}
	return strings.TrimSpace(s), nil
}

func (p *prompter) password(label string) (string, error) {
	if p.readPassword == nil {
		return p.line(label)
	}
	fmt.Fprintf(p.out, "%s: ", label)
	return p.readPassword()
}

// fill prompts for the fields inv still needs.
func (p *prompter) fill(inv *invocation) error {
	var err error
	switch inv.cmd.name {
	case "login":
		if inv.creds.Username == "" {
			if inv.creds.Username, err = p.line("Username"); err != nil {
				return err
			}
		}
		if inv.creds.Password == "" {
			if inv.creds.Password, err = p.password("Password"); err != nil {
				return err
			}
		}

	case "signup":
		if inv.signup.Username == "" {
			if inv.signup.Username, err = p.line("Username"); err != nil {
				return err
			}
		}
		if inv.signup.Email == "" {
			if inv.signup.Email, err = p.line("Email"); err != nil {
				return err
			}
		}
		if inv.signup.Password1 != "" {
			// given by flag or env, there is nobody to confirm it
			inv.signup.Password2 = inv.signup.Password1
			return nil
		}
		if inv.signup.Password1, err = p.password("Password"); err != nil {
			return err
		}
		if inv.signup.Password2 == "" {
			if inv.signup.Password2, err = p.password("Confirm password"); err != nil {
				return err
			}
		}
	}
	return nil
}
