package pgp_test

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp/packet"
	"github.com/stretchr/testify/require"

	"github.com/collapsinghierarchy/repsync/message"
	"github.com/collapsinghierarchy/repsync/model"
	pgp "github.com/collapsinghierarchy/repsync/pkc/pgp"
)

var testIDs = []pgp.UserID{{Name: "Survival Server", Email: "ops@example.org"}}

func TestParseAlgorithm(t *testing.T) {
	for in, want := range map[string]pgp.Algorithm{"": pgp.ECC, "ecc": pgp.ECC, "RSA": pgp.RSA} {
		got, err := pgp.ParseAlgorithm(in)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	_, err := pgp.ParseAlgorithm("dsa")
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestClearSignVerify(t *testing.T) {
	for _, algo := range []pgp.Algorithm{pgp.ECC, pgp.RSA} {
		t.Run(string(algo), func(t *testing.T) {
			kr, err := pgp.Generate(algo, testIDs)
			require.NoError(t, err)

			pub, err := kr.PublicKey()
			require.NoError(t, err)
			require.Contains(t, pub, "BEGIN PGP PUBLIC KEY BLOCK")

			msg := message.ForRegistration("lobby-1").Add("extra", "- dashed value")
			signed, err := kr.ClearSign(msg.Encode())
			require.NoError(t, err)
			require.True(t, strings.HasPrefix(signed, "-----BEGIN PGP SIGNED MESSAGE-----"))

			keys, err := pgp.ReadPublicKeys(pub)
			require.NoError(t, err)

			text, signer, err := pgp.Verify(keys, []byte(signed))
			require.NoError(t, err)
			require.Equal(t, kr.Fingerprint(), fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint))

			got, err := message.Parse(text)
			require.NoError(t, err)
			require.Equal(t, msg, got)
		})
	}
}

func TestGenerate_KeyTypes(t *testing.T) {
	cases := map[pgp.Algorithm]packet.PublicKeyAlgorithm{
		pgp.ECC: packet.PubKeyAlgoEdDSA,
		pgp.RSA: packet.PubKeyAlgoRSA,
	}
	for algo, want := range cases {
		t.Run(string(algo), func(t *testing.T) {
			kr, err := pgp.Generate(algo, append(testIDs, pgp.UserID{Name: "Creative Server"}))
			require.NoError(t, err)
			require.Equal(t, want, kr.PublicKeyAlgorithm())

			pub, err := kr.PublicKey()
			require.NoError(t, err)
			keys, err := pgp.ReadPublicKeys(pub)
			require.NoError(t, err)
			require.Len(t, keys, 1)
			require.Equal(t, want, keys[0].PrimaryKey.PubKeyAlgo)
			require.Len(t, keys[0].Identities, 2)
			require.NotEmpty(t, keys[0].Subkeys)
		})
	}
}

func TestVerify_WrongKey(t *testing.T) {
	kr, err := pgp.Generate(pgp.ECC, testIDs)
	require.NoError(t, err)
	other, err := pgp.Generate(pgp.ECC, testIDs)
	require.NoError(t, err)

	signed, err := kr.ClearSign("name: lobby\n")
	require.NoError(t, err)

	otherPub, err := other.PublicKey()
	require.NoError(t, err)
	keys, err := pgp.ReadPublicKeys(otherPub)
	require.NoError(t, err)

	_, _, err = pgp.Verify(keys, []byte(signed))
	require.Error(t, err)

	_, _, err = pgp.Verify(keys, []byte("name: lobby\n"))
	require.ErrorIs(t, err, pgp.ErrNotSigned)
}

func TestSaveLoad(t *testing.T) {
	for _, pass := range []string{"", "correct horse"} {
		dir := t.TempDir()
		priv := filepath.Join(dir, "private.key")
		pub := filepath.Join(dir, "public.key")

		kr, err := pgp.Generate(pgp.ECC, testIDs)
		require.NoError(t, err)
		require.NoError(t, kr.Save(priv, pub, pass, false))

		info, err := os.Stat(priv)
		require.NoError(t, err)
		require.Equal(t, os.FileMode(0600), info.Mode().Perm())

		loaded, err := pgp.Load(priv, pass)
		require.NoError(t, err)
		require.Equal(t, kr.Fingerprint(), loaded.Fingerprint())

		// a signature from the reloaded key verifies against the saved public key
		pubData, err := os.ReadFile(pub)
		require.NoError(t, err)
		keys, err := pgp.ReadPublicKeys(string(pubData))
		require.NoError(t, err)
		signed, err := loaded.ClearSign("name: lobby\n")
		require.NoError(t, err)
		_, _, err = pgp.Verify(keys, []byte(signed))
		require.NoError(t, err)
	}
}

func TestLoad_Passphrase(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "private.key")
	pub := filepath.Join(dir, "public.key")

	kr, err := pgp.Generate(pgp.ECC, testIDs)
	require.NoError(t, err)
	require.NoError(t, kr.Save(priv, pub, "s3cret", false))

	data, err := os.ReadFile(priv)
	require.NoError(t, err)
	require.Contains(t, string(data), "BEGIN PGP MESSAGE")

	_, err = pgp.Load(priv, "wrong")
	require.ErrorIs(t, err, pgp.ErrBadPassphrase)

	_, err = pgp.Load(priv, "")
	require.ErrorIs(t, err, pgp.ErrBadPassphrase)
}

func TestSave_RefusesOverwrite(t *testing.T) {
	dir := t.TempDir()
	priv := filepath.Join(dir, "private.key")
	pub := filepath.Join(dir, "public.key")

	kr, err := pgp.Generate(pgp.ECC, testIDs)
	require.NoError(t, err)
	require.NoError(t, kr.Save(priv, pub, "", false))
	require.ErrorIs(t, kr.Save(priv, pub, "", false), pgp.ErrKeyExists)
	require.NoError(t, kr.Save(priv, pub, "", true))
}

func TestLoad_Missing(t *testing.T) {
	_, err := pgp.Load(filepath.Join(t.TempDir(), "nope.key"), "")
	require.ErrorIs(t, err, pgp.ErrNoKey)
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestGenerate_NoUserID(t *testing.T) {
	_, err := pgp.Generate(pgp.ECC, nil)
	require.ErrorIs(t, err, pgp.ErrNoUserID)
}
