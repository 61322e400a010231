// Package endpoint is the catalog of logical API calls.
//
// Every call is a typed request value whose Path selects the endpoint; the
// value itself is the JSON body. The set is closed: only this package can
// implement Endpoint.
package endpoint

// Endpoint is a typed request for one logical API path
type Endpoint interface {
	Path() string
	endpoint()
}

// Ping checks the API is reachable
type Ping struct{}

func (*Ping) Path() string { return "/ping" }
func (*Ping) endpoint()    {}

// GetMe returns the identity of the current session, or null when anonymous
type GetMe struct{}

func (*GetMe) Path() string { return "/user/me" }
func (*GetMe) endpoint()    {}

// GetUsers returns the users with the given ids; unknown ids are omitted
type GetUsers struct {
	Users []string `json:"users"`
}

func (*GetUsers) Path() string { return "/user/get" }
func (*GetUsers) endpoint()    {}

// Login starts an authenticated session and returns its identity
type Login struct {
	Email string `json:"email"`
	Pwd   string `json:"pwd"`
}

func (*Login) Path() string { return "/user/login" }
func (*Login) endpoint()    {}

// Logout ends the current session
type Logout struct{}

func (*Logout) Path() string { return "/user/logout" }
func (*Logout) endpoint()    {}

// Register creates a new account pending activation
type Register struct {
	Alias      *string `json:"alias,omitempty"`
	Handle     *string `json:"handle,omitempty"`
	Email      string  `json:"email"`
	Pwd        string  `json:"pwd"`
	ConfirmPwd string  `json:"confirmPwd"`
}

func (*Register) Path() string { return "/user/register" }
func (*Register) endpoint()    {}

// ResendActivateLink re-sends the activation email
type ResendActivateLink struct {
	Email string `json:"email"`
}

func (*ResendActivateLink) Path() string { return "/user/resendActivateLink" }
func (*ResendActivateLink) endpoint()    {}

// Activate confirms an account with the emailed code
type Activate struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (*Activate) Path() string { return "/user/activate" }
func (*Activate) endpoint()    {}

// ChangeEmail starts an email change for the current user
type ChangeEmail struct {
	NewEmail string `json:"newEmail"`
}

func (*ChangeEmail) Path() string { return "/user/changeEmail" }
func (*ChangeEmail) endpoint()    {}

// ResendChangeEmailLink re-sends the confirmation for a pending email change
type ResendChangeEmailLink struct{}

func (*ResendChangeEmailLink) Path() string { return "/user/resendChangeEmailLink" }
func (*ResendChangeEmailLink) endpoint()    {}

// ConfirmChangeEmail completes an email change with the emailed code
type ConfirmChangeEmail struct {
	Me   string `json:"me"`
	Code string `json:"code"`
}

func (*ConfirmChangeEmail) Path() string { return "/user/confirmChangeEmail" }
func (*ConfirmChangeEmail) endpoint()    {}

// ResetPwd emails a new password to the account
type ResetPwd struct {
	Email string `json:"email"`
}

func (*ResetPwd) Path() string { return "/user/resetPwd" }
func (*ResetPwd) endpoint()    {}

// SetPwd changes the current user's password
type SetPwd struct {
	CurrentPwd    string `json:"currentPwd"`
	NewPwd        string `json:"newPwd"`
	ConfirmNewPwd string `json:"confirmNewPwd"`
}

func (*SetPwd) Path() string { return "/user/setPwd" }
func (*SetPwd) endpoint()    {}

// SetHandle changes the current user's handle
type SetHandle struct {
	Handle string `json:"handle"`
}

func (*SetHandle) Path() string { return "/user/setHandle" }
func (*SetHandle) endpoint()    {}

// SetAlias changes the current user's alias; nil clears it
type SetAlias struct {
	Alias *string `json:"alias"`
}

func (*SetAlias) Path() string { return "/user/setAlias" }
func (*SetAlias) endpoint()    {}

// SetAvatar replaces the current user's avatar. The image travels as a raw
// upload body, not as JSON, so it can not be part of a batch.
type SetAvatar struct{}

func (*SetAvatar) Path() string { return "/user/setAvatar" }
func (*SetAvatar) endpoint()    {}

// SetFCMEnabled toggles push notifications for the current user
type SetFCMEnabled struct {
	Val bool `json:"val"`
}

func (*SetFCMEnabled) Path() string { return "/user/setFCMEnabled" }
func (*SetFCMEnabled) endpoint()    {}

// Delete removes the current user's account
type Delete struct {
	Pwd string `json:"pwd"`
}

func (*Delete) Path() string { return "/user/delete" }
func (*Delete) endpoint()    {}
