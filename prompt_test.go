package main

import (
	"bufio"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPrompter(input string) *prompter {
	return &prompter{in: bufio.NewReader(strings.NewReader(input)), out: io.Discard}
}

func TestPrompter_LoginFillsMissingFields(t *testing.T) {
	inv := &invocation{cmd: lookupCommand("login")}
	inv.creds.Username = "alice"

	require.NoError(t, testPrompter("s3cret\n").fill(inv))
	assert.Equal(t, "alice", inv.creds.Username)
	assert.Equal(t, "s3cret", inv.creds.Password)
}

func TestPrompter_SignupAsksForConfirmation(t *testing.T) {
	inv := &invocation{cmd: lookupCommand("signup")}

	require.NoError(t, testPrompter("alice\nalice@example.com\npw-one\npw-two").fill(inv))
	assert.Equal(t, "alice", inv.signup.Username)
	assert.Equal(t, "alice@example.com", inv.signup.Email)
	assert.Equal(t, "pw-one", inv.signup.Password1)
	assert.Equal(t, "pw-two", inv.signup.Password2, "mismatch is left for validation")
}

func TestPrompter_SignupPasswordFromFlag(t *testing.T) {
	inv := &invocation{cmd: lookupCommand("signup")}
	inv.signup.Username = "alice"
	inv.signup.Email = "alice@example.com"
	inv.signup.Password1 = "from-env"

	require.NoError(t, testPrompter("").fill(inv))
	assert.Equal(t, "from-env", inv.signup.Password2)
}

func TestPrompter_UsesPasswordReader(t *testing.T) {
	p := testPrompter("alice\n")
	p.readPassword = func() (string, error) { return "hidden", nil }

	inv := &invocation{cmd: lookupCommand("login")}
	require.NoError(t, p.fill(inv))
	assert.Equal(t, "hidden", inv.creds.Password)
}

func TestPrompter_EOF(t *testing.T) {
	inv := &invocation{cmd: lookupCommand("login")}
	assert.Error(t, testPrompter("").fill(inv))
}

func TestPrompter_OtherCommandsDoNotPrompt(t *testing.T) {
	inv := &invocation{cmd: lookupCommand("temperature")}
	assert.NoError(t, testPrompter("").fill(inv))
}
