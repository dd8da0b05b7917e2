package domain

import "time"

// OAuthPasswordSentinel se guarda como password en cuentas creadas vía GitHub.
// Nunca es un hash bcrypt válido, por lo que ninguna contraseña local coincide.
const OAuthPasswordSentinel = "github_sso"

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// OAuthOnly indica que la cuenta no tiene contraseña local.
func (u User) OAuthOnly() bool {
	return u.PasswordHash == OAuthPasswordSentinel
}
