// Package pgp holds the operator's OpenPGP keypair and produces cleartext
// signatures over canonical messages.
//
// Two key flavours are supported: "ecc" (Ed25519 signing key with an X25519
// subkey) and "rsa" (3072 bit). The private key file is armored; when a
// passphrase is configured the serialized key is wrapped in a symmetrically
// encrypted OpenPGP message instead.
package pgp

import (
	"bytes"
	"crypto"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
	"github.com/ProtonMail/go-crypto/openpgp/clearsign"
	"github.com/ProtonMail/go-crypto/openpgp/packet"

	"github.com/collapsinghierarchy/repsync/model"
)

type Algorithm string

const (
	ECC Algorithm = "ecc"
	RSA Algorithm = "rsa"

	rsaBits     = 3072
	messageType = "PGP MESSAGE"

	privateKeyPerm = 0600
	publicKeyPerm  = 0644
)

var (
	ErrNoKey         = fmt.Errorf("%w: signing key not found (run init)", model.ErrConfiguration)
	ErrKeyExists     = fmt.Errorf("%w: key files already exist", model.ErrConfiguration)
	ErrNoUserID      = fmt.Errorf("%w: at least one user id is required", model.ErrConfiguration)
	ErrBadPassphrase = fmt.Errorf("%w: wrong or missing passphrase", model.ErrConfiguration)
	ErrUnknownAlgo   = fmt.Errorf("%w: unknown key algorithm", model.ErrConfiguration)
	ErrNotSigned     = errors.New("no cleartext signature found")
)

// UserID is the identity bound into the key's self-signatures.
type UserID struct {
	Name    string
	Comment string
	Email   string
}

// ParseAlgorithm maps the CLI argument to an Algorithm; empty means ECC.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(strings.ToLower(s)) {
	case "", ECC:
		return ECC, nil
	case RSA:
		return RSA, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAlgo, s)
}

// Keyring wraps a decrypted OpenPGP entity.
type Keyring struct {
	entity *openpgp.Entity
	cfg    *packet.Config
}

func newConfig() *packet.Config {
	return &packet.Config{DefaultHash: crypto.SHA256}
}

func generateConfig(algo Algorithm) (*packet.Config, error) {
	cfg := newConfig()
	switch algo {
	case ECC:
		cfg.Algorithm = packet.PubKeyAlgoEdDSA
		cfg.Curve = packet.Curve25519
	case RSA:
		cfg.Algorithm = packet.PubKeyAlgoRSA
		cfg.RSABits = rsaBits
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgo, algo)
	}
	return cfg, nil
}

// Generate creates a fresh keypair for ids. The first id is the primary one.
func Generate(algo Algorithm, ids []UserID) (*Keyring, error) {
	if len(ids) == 0 {
		return nil, ErrNoUserID
	}
	cfg, err := generateConfig(algo)
	if err != nil {
		return nil, err
	}

	e, err := openpgp.NewEntity(ids[0].Name, ids[0].Comment, ids[0].Email, cfg)
	if err != nil {
		return nil, fmt.Errorf("%w: generate %s key: %v", model.ErrConfiguration, algo, err)
	}
	for _, id := range ids[1:] {
		if err := e.AddUserId(id.Name, id.Comment, id.Email, cfg); err != nil {
			return nil, fmt.Errorf("%w: add user id %q: %v", model.ErrConfiguration, id.Name, err)
		}
	}
	return &Keyring{entity: e, cfg: newConfig()}, nil
}

// Save writes the private and public key files. Existing files are only
// replaced when force is set.
func (k *Keyring) Save(privPath, pubPath, passphrase string, force bool) error {
	if !force {
		for _, p := range []string{privPath, pubPath} {
			if _, err := os.Stat(p); err == nil {
				return fmt.Errorf("%w: %s", ErrKeyExists, p)
			}
		}
	}

	var priv bytes.Buffer
	if err := k.writePrivate(&priv, passphrase); err != nil {
		return err
	}
	pub, err := k.PublicKey()
	if err != nil {
		return err
	}

	if err := writeFile(privPath, priv.Bytes(), privateKeyPerm); err != nil {
		return fmt.Errorf("write private key: %w", err)
	}
	if err := writeFile(pubPath, []byte(pub), publicKeyPerm); err != nil {
		return fmt.Errorf("write public key: %w", err)
	}
	return nil
}

func (k *Keyring) writePrivate(w io.Writer, passphrase string) error {
	if passphrase == "" {
		aw, err := armor.Encode(w, openpgp.PrivateKeyType, nil)
		if err != nil {
			return err
		}
		if err := k.entity.SerializePrivate(aw, k.cfg); err != nil {
			return fmt.Errorf("serialize private key: %w", err)
		}
		return aw.Close()
	}

	aw, err := armor.Encode(w, messageType, nil)
	if err != nil {
		return err
	}
	pw, err := openpgp.SymmetricallyEncrypt(aw, []byte(passphrase), &openpgp.FileHints{IsBinary: true}, k.cfg)
	if err != nil {
		return fmt.Errorf("encrypt private key: %w", err)
	}
	if err := k.entity.SerializePrivate(pw, k.cfg); err != nil {
		return fmt.Errorf("serialize private key: %w", err)
	}
	if err := pw.Close(); err != nil {
		return err
	}
	return aw.Close()
}

func writeFile(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Load reads the private key file written by Save.
func Load(privPath, passphrase string) (*Keyring, error) {
	f, err := os.Open(privPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoKey, privPath)
	}
	if err != nil {
		return nil, fmt.Errorf("open private key: %w", err)
	}
	defer f.Close()

	block, err := armor.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", model.ErrConfiguration, privPath, err)
	}

	cfg := newConfig()
	var (
		body      io.Reader
		encrypted bool
	)
	switch block.Type {
	case openpgp.PrivateKeyType:
		body = block.Body
	case messageType:
		encrypted = true
		if passphrase == "" {
			return nil, ErrBadPassphrase
		}
		md, err := openpgp.ReadMessage(block.Body, openpgp.EntityList{}, passphrasePrompt(passphrase), cfg)
		if err != nil {
			return nil, ErrBadPassphrase
		}
		body = md.UnverifiedBody
	default:
		return nil, fmt.Errorf("%w: unexpected armor type %q in %s", model.ErrConfiguration, block.Type, privPath)
	}

	el, err := openpgp.ReadKeyRing(body)
	if err != nil && encrypted {
		// a wrong passphrase can get past the session key check and only
		// fail the integrity check at the end of the stream
		return nil, ErrBadPassphrase
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read key ring: %v", model.ErrConfiguration, err)
	}
	if len(el) == 0 || el[0].PrivateKey == nil {
		return nil, fmt.Errorf("%w: %s holds no private key", ErrNoKey, privPath)
	}
	e := el[0]
	if e.PrivateKey.Encrypted {
		if err := e.PrivateKey.Decrypt([]byte(passphrase)); err != nil {
			return nil, ErrBadPassphrase
		}
	}
	return &Keyring{entity: e, cfg: cfg}, nil
}

// passphrasePrompt answers the first symmetric prompt only; ReadMessage keeps
// asking on a wrong passphrase.
func passphrasePrompt(passphrase string) openpgp.PromptFunction {
	asked := false
	return func(_ []openpgp.Key, symmetric bool) ([]byte, error) {
		if asked || !symmetric {
			return nil, ErrBadPassphrase
		}
		asked = true
		return []byte(passphrase), nil
	}
}

// ClearSign returns text wrapped in an OpenPGP cleartext signature.
func (k *Keyring) ClearSign(text string) (string, error) {
	var buf bytes.Buffer
	w, err := clearsign.Encode(&buf, k.entity.PrivateKey, k.cfg)
	if err != nil {
		return "", fmt.Errorf("clearsign: %w", err)
	}
	if _, err := io.WriteString(w, text); err != nil {
		w.Close()
		return "", fmt.Errorf("clearsign: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("clearsign: %w", err)
	}
	return buf.String(), nil
}

// PublicKey returns the armored public key block.
func (k *Keyring) PublicKey() (string, error) {
	var buf bytes.Buffer
	aw, err := armor.Encode(&buf, openpgp.PublicKeyType, nil)
	if err != nil {
		return "", err
	}
	if err := k.entity.Serialize(aw); err != nil {
		return "", fmt.Errorf("serialize public key: %w", err)
	}
	if err := aw.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// PublicKeyAlgorithm reports the algorithm of the primary key.
func (k *Keyring) PublicKeyAlgorithm() packet.PublicKeyAlgorithm {
	return k.entity.PrimaryKey.PubKeyAlgo
}

func (k *Keyring) Fingerprint() string {
	return fmt.Sprintf("%X", k.entity.PrimaryKey.Fingerprint)
}

// ReadPublicKeys parses an armored public key block.
func ReadPublicKeys(armored string) (openpgp.EntityList, error) {
	return openpgp.ReadArmoredKeyRing(strings.NewReader(armored))
}

// Verify checks a cleartext-signed document against keys and returns the
// signed text together with the signing entity.
func Verify(keys openpgp.EntityList, signed []byte) (string, *openpgp.Entity, error) {
	b, _ := clearsign.Decode(signed)
	if b == nil {
		return "", nil, ErrNotSigned
	}
	signer, err := b.VerifySignature(keys, nil)
	if err != nil {
		return "", nil, fmt.Errorf("check signature: %w", err)
	}
	return string(b.Plaintext), signer, nil
}
