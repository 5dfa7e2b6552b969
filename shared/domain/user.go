package domain

// User is the identity carried by a verified bearer token.
type User struct {
	Id    UserId
	Email string
	Admin bool
}
