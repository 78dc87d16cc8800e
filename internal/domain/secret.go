package domain

// SecretSource yields the pre-provisioned archive passphrase.
type SecretSource interface {
	Passphrase() (string, error)
}
