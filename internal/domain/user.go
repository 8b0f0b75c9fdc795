package domain

import (
	"golang.org/x/crypto/bcrypt"
)

// User represents a forge identity record
type User struct {
	UID          string `json:"uid"`
	Name         string `json:"name"`
	Surname      string `json:"surname"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Locked       bool   `json:"locked"`
}

// NewUser creates a user with a freshly hashed password credential
func NewUser(uid, name, surname, email, password string) (*User, error) {
	u := &User{
		UID:     uid,
		Name:    name,
		Surname: surname,
		Email:   email,
	}
	if err := u.SetPassword(password); err != nil {
		return nil, err
	}
	return u, nil
}

// SetPassword hashes the plaintext password and stores the digest.
// The plaintext is never persisted.
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// CheckPassword verifies a plaintext password against the stored digest
func (u *User) CheckPassword(password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) == nil
}

// FullName returns the user's display name
func (u *User) FullName() string {
	if u.Surname == "" {
		return u.Name
	}
	return u.Name + " " + u.Surname
}
