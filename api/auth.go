package api

import (
	"context"
	"net/http"
)

// Credentials is the login form.
type Credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// SignupForm is the registration form.
type SignupForm struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password1 string `json:"password1"`
	Password2 string `json:"password2"`
}

// User is the account returned by the auth endpoints.
type User struct {
	PK        int    `json:"pk"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// AuthResponse is returned by login and registration. With HTTP-only JWT
// cookies the access token may be blank; User is then the confirmation.
type AuthResponse struct {
	Access string `json:"access"`
	User   *User  `json:"user"`
}

// Confirmed reports whether the server acknowledged a session.
func (r AuthResponse) Confirmed() bool {
	return r.Access != "" || (r.User != nil && r.User.Username != "")
}

// Login posts credentials; the server answers with session cookies.
func (c *Client) Login(ctx context.Context, creds Credentials) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.r.do(ctx, http.MethodPost, PathLogin, creds, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Logout asks the server to end the session and expire its cookies.
func (c *Client) Logout(ctx context.Context) (string, error) {
	var resp struct {
		Detail string `json:"detail"`
	}
	if err := c.r.do(ctx, http.MethodPost, PathLogout, struct{}{}, &resp); err != nil {
		return "", err
	}
	return resp.Detail, nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, form SignupForm) (*AuthResponse, error) {
	var resp AuthResponse
	if err := c.r.do(ctx, http.MethodPost, PathRegistration, form, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CurrentUser returns the signed-in account.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var u User
	if err := c.r.do(ctx, http.MethodGet, PathUser, nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}
