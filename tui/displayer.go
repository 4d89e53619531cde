package tui

import (
	"fmt"
	"io"

	tea "charm.land/bubbletea/v2"
)

// Displayer abstracts all output of the session and data commands.
type Displayer interface {
	Banner(apiURL string)
	Restoring()
	Restored(username string)
	AutoLoginFailed(err error)
	Working(label string)
	SignedIn(username string)
	SignedOut()
	FormError(err error)
	AccessRejected()
	SessionRefreshed()
	SessionExpired(err error)
	GlobalError(text string)
	LoginRequired()
	Result(title, body string)
	Fatal(err error)
}

// PlainDisplayer writes plain text. Status lines go to w, results to out.
// Used when stderr is not a TTY (pipes, CI, SSH without pty).
type PlainDisplayer struct {
	w   io.Writer
	out io.Writer
}

// NewPlainDisplayer creates a PlainDisplayer.
func NewPlainDisplayer(w, out io.Writer) *PlainDisplayer {
	return &PlainDisplayer{w: w, out: out}
}

func (p *PlainDisplayer) Banner(apiURL string) {
	fmt.Fprintf(p.w, "=== Climate Data CLI (%s) ===\n", apiURL)
	fmt.Fprintln(p.w)
}

func (p *PlainDisplayer) Restoring() {
	fmt.Fprintln(p.w, "Checking saved session...")
}

func (p *PlainDisplayer) Restored(username string) {
	if username == "" {
		fmt.Fprintln(p.w, "Not logged in.")
		return
	}
	fmt.Fprintf(p.w, "Logged in as %s\n", username)
}

func (p *PlainDisplayer) AutoLoginFailed(err error) {
	fmt.Fprintf(p.w, "Could not resume saved session: %v\n", err)
}

func (p *PlainDisplayer) Working(label string) {
	fmt.Fprintf(p.w, "%s...\n", label)
}

func (p *PlainDisplayer) SignedIn(username string) {
	fmt.Fprintf(p.w, "Welcome, %s!\n", username)
}

func (p *PlainDisplayer) SignedOut() {
	fmt.Fprintln(p.w, "Logged out.")
}

func (p *PlainDisplayer) FormError(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

func (p *PlainDisplayer) AccessRejected() {
	fmt.Fprintln(p.w, "Session expired (401), refreshing...")
}

func (p *PlainDisplayer) SessionRefreshed() {
	fmt.Fprintln(p.w, "Session refreshed, retrying request...")
}

func (p *PlainDisplayer) SessionExpired(err error) {
	fmt.Fprintf(p.w, "Session could not be refreshed: %v\n", err)
	fmt.Fprintln(p.w, "Please log in again.")
}

func (p *PlainDisplayer) GlobalError(text string) {
	if text == "" {
		return
	}
	fmt.Fprintf(p.w, "!! %s\n", text)
}

func (p *PlainDisplayer) LoginRequired() {
	fmt.Fprintln(p.w, "You must be logged in. Run: climate login")
}

func (p *PlainDisplayer) Result(title, body string) {
	if title != "" {
		fmt.Fprintln(p.out, title)
	}
	fmt.Fprintln(p.out, body)
}

func (p *PlainDisplayer) Fatal(err error) {
	fmt.Fprintf(p.w, "Error: %v\n", err)
}

// NoopDisplayer is a no-op implementation used in tests.
type NoopDisplayer struct{}

func (NoopDisplayer) Banner(_ string)         {}
func (NoopDisplayer) Restoring()              {}
func (NoopDisplayer) Restored(_ string)       {}
func (NoopDisplayer) AutoLoginFailed(_ error) {}
func (NoopDisplayer) Working(_ string)        {}
func (NoopDisplayer) SignedIn(_ string)       {}
func (NoopDisplayer) SignedOut()              {}
func (NoopDisplayer) FormError(_ error)       {}
func (NoopDisplayer) AccessRejected()         {}
func (NoopDisplayer) SessionRefreshed()       {}
func (NoopDisplayer) SessionExpired(_ error)  {}
func (NoopDisplayer) GlobalError(_ string)    {}
func (NoopDisplayer) LoginRequired()          {}
func (NoopDisplayer) Result(_, _ string)      {}
func (NoopDisplayer) Fatal(_ error)           {}

// ProgramDisplayer sends BubbleTea messages to a running tea.Program.
type ProgramDisplayer struct {
	p *tea.Program
}

// NewProgramDisplayer creates a ProgramDisplayer that sends messages to p.
func NewProgramDisplayer(p *tea.Program) *ProgramDisplayer {
	return &ProgramDisplayer{p: p}
}

func (t *ProgramDisplayer) Banner(apiURL string) {
	t.p.Send(MsgBanner{APIURL: apiURL})
}

func (t *ProgramDisplayer) Restoring() {
	t.p.Send(MsgRestoring{})
}

func (t *ProgramDisplayer) Restored(username string) {
	t.p.Send(MsgRestored{Username: username})
}

func (t *ProgramDisplayer) AutoLoginFailed(err error) {
	t.p.Send(MsgAutoLoginFailed{Err: err})
}

func (t *ProgramDisplayer) Working(label string) {
	t.p.Send(MsgWorking{Label: label})
}

func (t *ProgramDisplayer) SignedIn(username string) {
	t.p.Send(MsgSignedIn{Username: username})
}

func (t *ProgramDisplayer) SignedOut() {
	t.p.Send(MsgSignedOut{})
}

func (t *ProgramDisplayer) FormError(err error) {
	t.p.Send(MsgFormError{Err: err})
}

func (t *ProgramDisplayer) AccessRejected() {
	t.p.Send(MsgAccessRejected{})
}

func (t *ProgramDisplayer) SessionRefreshed() {
	t.p.Send(MsgSessionRefreshed{})
}

func (t *ProgramDisplayer) SessionExpired(err error) {
	t.p.Send(MsgSessionExpired{Err: err})
}

func (t *ProgramDisplayer) GlobalError(text string) {
	t.p.Send(MsgGlobalError{Text: text})
}

func (t *ProgramDisplayer) LoginRequired() {
	t.p.Send(MsgLoginRequired{})
}

func (t *ProgramDisplayer) Result(title, body string) {
	t.p.Send(MsgResult{Title: title, Body: body})
}

func (t *ProgramDisplayer) Fatal(err error) {
	t.p.Send(MsgFatal{Err: err})
}
