package domain

// Account holds the at-rest key material of an issuer.
type Account struct {
	IssuerAddress     string `db:"issuer_address"`
	Keyfile           []byte `db:"keyfile"`
	EncryptedPassword string `db:"eoa_password"`
}
