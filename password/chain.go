package password

import "errors"

// ErrUnknownFormat is returned when a stored credential matches no supported format.
var ErrUnknownFormat = errors.New("unknown credential format")

// Chain hashes with argon2id and verifies any supported stored format.
type Chain struct {
	primary *Argon2
	bcrypt  *Bcrypt
	legacy  LegacySHA256
}

// NewChain builds a Chain around primary. bcryptCost only affects upgrade
// decisions for stored bcrypt hashes.
func NewChain(primary *Argon2, bcryptCost int) *Chain {
	return &Chain{
		primary: primary,
		bcrypt:  NewBcrypt(bcryptCost),
	}
}

// Hash returns a PHC argon2id hash. The salt is embedded, so the returned
// salt column value is always empty.
func (c *Chain) Hash(password string) (string, string, error) {
	hash, err := c.primary.Hash(password)
	if err != nil {
		return "", "", err
	}
	return hash, "", nil
}

// Verify checks password against a stored hash and optional salt.
func (c *Chain) Verify(password, hash, salt string) (bool, error) {
	switch {
	case IsArgon2Hash(hash):
		return c.primary.Verify(password, hash)
	case IsBcryptHash(hash):
		return c.bcrypt.Verify(password, hash)
	case salt != "":
		return c.legacy.Verify(password, hash, salt)
	default:
		return false, ErrUnknownFormat
	}
}

// NeedsUpgrade reports whether a verified credential should be re-hashed with
// the primary parameters.
func (c *Chain) NeedsUpgrade(hash, salt string) bool {
	if !IsArgon2Hash(hash) {
		return true
	}
	up, err := c.primary.NeedsUpgrade(hash)
	return err == nil && up
}
