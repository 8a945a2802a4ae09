package network

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"

	"golang.org/x/crypto/ssh"
)

// GenerateTestKeys writes a host key, a client key and an authorized_keys
// file that trusts the client key.
func GenerateTestKeys(hostKeyPath, clientKeyPath, authKeysPath string) error {
	if err := writeRSAKey(hostKeyPath); err != nil {
		return err
	}

	clientKey, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	if err := writePEM(clientKeyPath, clientKey); err != nil {
		return err
	}

	sshPubKey, err := ssh.NewPublicKey(&clientKey.PublicKey)
	if err != nil {
		return err
	}
	return os.WriteFile(authKeysPath, ssh.MarshalAuthorizedKey(sshPubKey), 0600)
}

func writeRSAKey(path string) error {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return err
	}
	return writePEM(path, key)
}

func writePEM(path string, key *rsa.PrivateKey) error {
	block := &pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	}
	return os.WriteFile(path, pem.EncodeToMemory(block), 0600)
}
