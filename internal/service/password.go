package service

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrPasswordTooLong: bcrypt solo usa los primeros 72 bytes.
var ErrPasswordTooLong = errors.New("password too long")

const passwordCost = bcrypt.DefaultCost

// HashPassword genera un hash bcrypt con sal aleatoria.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), passwordCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", ErrPasswordTooLong
		}
		return "", err
	}
	return string(hash), nil
}

// CheckPassword compara plain contra digest. Devuelve false ante cualquier
// digest mal formado, incluido el sentinel de cuentas OAuth.
func CheckPassword(plain, digest string) bool {
	if digest == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(plain)) == nil
}
