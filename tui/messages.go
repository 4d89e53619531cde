package tui

// MsgBanner signals that the title should be displayed.
type MsgBanner struct{ APIURL string }

// MsgRestoring signals that the saved session is being checked.
type MsgRestoring struct{}

// MsgRestored signals that restore finished. Username is empty when anonymous.
type MsgRestored struct{ Username string }

// MsgAutoLoginFailed signals that a saved session could not be resumed.
type MsgAutoLoginFailed struct{ Err error }

// MsgWorking signals that a long-running step has started.
type MsgWorking struct{ Label string }

// MsgSignedIn signals a successful login or signup.
type MsgSignedIn struct{ Username string }

// MsgSignedOut signals that the local session was cleared.
type MsgSignedOut struct{}

// MsgFormError carries an error that belongs next to the form that caused it.
type MsgFormError struct{ Err error }

// MsgAccessRejected signals that the server answered 401 and a refresh started.
type MsgAccessRejected struct{}

// MsgSessionRefreshed signals that the refresh succeeded and the request is replayed.
type MsgSessionRefreshed struct{}

// MsgSessionExpired signals that the refresh failed and the session ended.
type MsgSessionExpired struct{ Err error }

// MsgGlobalError sets the error banner. An empty Text hides it.
type MsgGlobalError struct{ Text string }

// MsgLoginRequired signals that the command needs a signed-in user.
type MsgLoginRequired struct{}

// MsgResult carries rendered command output.
type MsgResult struct {
	Title string
	Body  string
}

// MsgFatal signals an error that ends the command.
type MsgFatal struct{ Err error }
