package keyring

import (
	"context"
	"errors"
	"fmt"

	"ephemsg/internal/crypto"
	"ephemsg/internal/utils/log"

	"go.uber.org/zap"
)

// LocalStore holds the device-local key pair. ErrNoKey means no pair has
// ever been stored on this device.
type LocalStore interface {
	Load() (crypto.KeyPair, error)
	Save(crypto.KeyPair) error
}

var ErrNoKey = errors.New("keyring: no local key")

// Directory is the server-side view the keyring needs: the user's public
// key and wrapped backup, plus the ability to replace them.
type Directory interface {
	// Backup returns (publicKey, encryptedPrivateKey, iv). Empty strings
	// mean the server holds nothing for that field.
	Backup(ctx context.Context, phone string) (pub, blob, iv string, err error)
	// UploadBackup replaces the advertised public key and wrapped private
	// key. Concurrent uploads are last-write-wins.
	UploadBackup(ctx context.Context, phone, pub, blob, iv string) error
}

// Load drives the key lifecycle for one user-device pairing:
//
//	no local key, server backup   -> unwrap with password, adopt
//	no local key, no/bad backup   -> generate fresh pair, wrap, upload
//	local key present             -> use it; re-upload if the directory
//	                                 advertises a different public key
//
// Generating a fresh pair orphans messages encrypted under any previous
// key; that is accepted and not recoverable.
func Load(ctx context.Context, store LocalStore, dir Directory, phone, password string) (crypto.KeyPair, error) {
	kp, err := store.Load()
	switch {
	case err == nil:
		return reconcile(ctx, dir, phone, password, kp)
	case !errors.Is(err, ErrNoKey):
		return crypto.KeyPair{}, fmt.Errorf("load local key: %w", err)
	}

	pub, blob, iv, err := dir.Backup(ctx, phone)
	if err != nil {
		return crypto.KeyPair{}, fmt.Errorf("fetch backup: %w", err)
	}

	if blob != "" && iv != "" {
		priv, err := crypto.UnwrapPrivateKey(blob, iv, password)
		if err == nil {
			// trust the advertised public key only now that the
			// password opened the backup
			kp = crypto.KeyPair{PublicKey: pub, PrivateKey: priv}
			if err := store.Save(kp); err != nil {
				return crypto.KeyPair{}, fmt.Errorf("save restored key: %w", err)
			}
			return kp, nil
		}
		if !errors.Is(err, crypto.ErrDecryptionFailed) {
			return crypto.KeyPair{}, fmt.Errorf("unwrap backup: %w", err)
		}
		log.Warn("key backup did not open, generating a new pair", zap.String("phone", phone))
	}

	return provision(ctx, store, dir, phone, password)
}

func provision(ctx context.Context, store LocalStore, dir Directory, phone, password string) (crypto.KeyPair, error) {
	kp, err := crypto.GenerateKeyPair()
	if err != nil {
		return crypto.KeyPair{}, err
	}
	if err := store.Save(kp); err != nil {
		return crypto.KeyPair{}, fmt.Errorf("save generated key: %w", err)
	}
	if err := upload(ctx, dir, phone, password, kp); err != nil {
		return crypto.KeyPair{}, err
	}
	return kp, nil
}

// reconcile keeps the invariant that the public key advertised to peers
// matches the private key in local use.
func reconcile(ctx context.Context, dir Directory, phone, password string, kp crypto.KeyPair) (crypto.KeyPair, error) {
	pub, _, _, err := dir.Backup(ctx, phone)
	if err != nil {
		return crypto.KeyPair{}, fmt.Errorf("fetch backup: %w", err)
	}
	if pub != kp.PublicKey {
		log.Info("advertised public key out of date, re-uploading", zap.String("phone", phone))
		if err := upload(ctx, dir, phone, password, kp); err != nil {
			return crypto.KeyPair{}, err
		}
	}
	return kp, nil
}

func upload(ctx context.Context, dir Directory, phone, password string, kp crypto.KeyPair) error {
	blob, iv, err := crypto.WrapPrivateKey(kp.PrivateKey, password)
	if err != nil {
		return fmt.Errorf("wrap private key: %w", err)
	}
	if err := dir.UploadBackup(ctx, phone, kp.PublicKey, blob, iv); err != nil {
		return fmt.Errorf("upload backup: %w", err)
	}
	return nil
}
