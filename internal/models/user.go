package models

// User is the authenticated caller, taken from a verified session token
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}
