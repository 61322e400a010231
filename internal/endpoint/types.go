package endpoint

// User is the public view of an account
type User struct {
	ID        string  `json:"id"`
	Handle    *string `json:"handle,omitempty"`
	Alias     *string `json:"alias,omitempty"`
	HasAvatar *bool   `json:"hasAvatar,omitempty"`
}

// Me is the identity of the current session
type Me struct {
	User
	FcmEnabled *bool `json:"fcmEnabled,omitempty"`
}

// Field names patched on cached identities after self-mutations
const (
	FieldHandle     = "handle"
	FieldAlias      = "alias"
	FieldHasAvatar  = "hasAvatar"
	FieldFcmEnabled = "fcmEnabled"
)
