package domain

import "time"

// SessionTTL is how long an admin session stays valid after login.
const SessionTTL = 24 * time.Hour

// Admin is an entry of the admin directory.
type Admin struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	Name         string `json:"name"`
	Role         string `json:"role"`
	PasswordHash string `json:"-"`
}

// AdminSession is the token handed to an admin after login. It is passed
// explicitly into every admin operation.
type AdminSession struct {
	Token     string    `json:"token"`
	AdminID   string    `json:"adminId"`
	Email     string    `json:"email"`
	LoginTime time.Time `json:"loginTime"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s AdminSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
