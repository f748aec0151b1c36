package users

// CreateInput is the payload of an account creation.
type CreateInput struct {
	Username string `json:"username" validate:"required,min=3"`
	Password string `json:"password" validate:"required,min=6"`
	IsAdmin  bool   `json:"is_admin"`
}

// UpdateInput is the payload of an account update. A nil IsAdmin keeps the
// current flag; an empty NewPassword keeps the current password.
type UpdateInput struct {
	Username    string `json:"username" validate:"required,min=3"`
	IsAdmin     *bool  `json:"is_admin"`
	NewPassword string `json:"new_password" validate:"omitempty,min=6"`
}
