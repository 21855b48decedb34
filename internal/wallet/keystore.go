package wallet

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Klingon-tech/night-consolidator/internal/log"
	"github.com/Klingon-tech/night-consolidator/pkg/types"
)

// Wallet errors.
var (
	ErrAuthentication = errors.New("failed to decrypt wallet, incorrect password?")
	ErrWalletNotFound = errors.New("wallet not found")
	ErrWalletExists   = errors.New("wallet already exists")
)

const keystoreVersion = 1

// keystoreFile is the on-disk JSON format for an encrypted wallet.
type keystoreFile struct {
	Version   int            `json:"version"`
	CreatedAt time.Time      `json:"created_at"`
	HRP       string         `json:"hrp"`
	Mnemonic  *Sealed        `json:"mnemonic"`
	Addresses []AddressEntry `json:"addresses"`
}

// Keystore manages encrypted wallet files in one directory.
type Keystore struct {
	path string
	hrp  string
}

// NewKeystore creates a keystore that reads/writes to the given directory.
// The directory is created if it doesn't exist. Addresses of new wallets use hrp.
func NewKeystore(path, hrp string) (*Keystore, error) {
	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, fmt.Errorf("create keystore dir: %w", err)
	}
	if hrp == "" {
		hrp = types.MainnetHRP
	}
	return &Keystore{path: path, hrp: hrp}, nil
}

func (ks *Keystore) walletPath(name string) string {
	return filepath.Join(ks.path, name+".wallet")
}

// Exists reports whether a wallet with this name is on disk.
func (ks *Keystore) Exists(name string) bool {
	_, err := os.Stat(ks.walletPath(name))
	return err == nil
}

// Create encrypts mnemonic under password and derives the first count
// addresses. The mnemonic must be a valid BIP-39 phrase.
func (ks *Keystore) Create(name, mnemonic string, password []byte, count int, params EncryptionParams) ([]AddressEntry, error) {
	if name == "" {
		return nil, fmt.Errorf("wallet name is required")
	}
	if ks.Exists(name) {
		return nil, fmt.Errorf("%w: %q", ErrWalletExists, name)
	}
	if count < 1 {
		return nil, fmt.Errorf("address count must be at least 1, got %d", count)
	}

	master, err := masterFromMnemonic(mnemonic)
	if err != nil {
		return nil, err
	}
	entries, err := deriveEntries(master, ks.hrp, 0, count)
	if err != nil {
		return nil, err
	}

	sealed, err := Seal([]byte(NormalizeMnemonic(mnemonic)), password, params)
	if err != nil {
		return nil, fmt.Errorf("encrypt mnemonic: %w", err)
	}

	kf := keystoreFile{
		Version:   keystoreVersion,
		CreatedAt: time.Now().UTC(),
		HRP:       ks.hrp,
		Mnemonic:  sealed,
		Addresses: entries,
	}
	if err := ks.writeFile(ks.walletPath(name), &kf); err != nil {
		return nil, err
	}
	log.Wallet.Info().Str("wallet", name).Int("addresses", count).Msg("Wallet created")
	return entries, nil
}

// Load decrypts a wallet and returns its mnemonic.
func (ks *Keystore) Load(name string, password []byte) (string, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return "", err
	}
	plain, err := kf.Mnemonic.Open(password)
	if err != nil {
		return "", err
	}
	defer zero(plain)
	return string(plain), nil
}

// Addresses returns the derived addresses stored in the wallet file,
// ordered by index. No password is required.
func (ks *Keystore) Addresses(name string) ([]AddressEntry, error) {
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	out := append([]AddressEntry(nil), kf.Addresses...)
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// Derive appends count more addresses after the highest stored index.
func (ks *Keystore) Derive(name string, password []byte, count int) ([]AddressEntry, error) {
	if count < 1 {
		return nil, fmt.Errorf("address count must be at least 1, got %d", count)
	}
	kf, err := ks.readFile(name)
	if err != nil {
		return nil, err
	}
	plain, err := kf.Mnemonic.Open(password)
	if err != nil {
		return nil, err
	}
	defer zero(plain)

	master, err := masterFromMnemonic(string(plain))
	if err != nil {
		return nil, err
	}
	next := 0
	for _, a := range kf.Addresses {
		if a.Index >= next {
			next = a.Index + 1
		}
	}
	added, err := deriveEntries(master, kf.HRP, next, count)
	if err != nil {
		return nil, err
	}
	kf.Addresses = append(kf.Addresses, added...)
	if err := ks.writeFile(ks.walletPath(name), kf); err != nil {
		return nil, err
	}
	log.Wallet.Info().Str("wallet", name).Int("from", next).Int("count", count).Msg("Derived addresses")
	return added, nil
}

// List returns the names of all wallet files in the keystore.
func (ks *Keystore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.path)
	if err != nil {
		return nil, fmt.Errorf("read keystore dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if ext := filepath.Ext(name); ext == ".wallet" {
			names = append(names, name[:len(name)-len(ext)])
		}
	}
	return names, nil
}

// Delete removes a wallet file.
func (ks *Keystore) Delete(name string) error {
	if !ks.Exists(name) {
		return fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	return os.Remove(ks.walletPath(name))
}

func masterFromMnemonic(mnemonic string) (*HDKey, error) {
	seed, err := SeedFromMnemonic(mnemonic, "")
	if err != nil {
		return nil, err
	}
	defer zero(seed)
	return NewMasterKey(seed)
}

// writeFile replaces the wallet file atomically.
func (ks *Keystore) writeFile(path string, kf *keystoreFile) error {
	data, err := json.MarshalIndent(kf, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal wallet: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write wallet: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write wallet: %w", err)
	}
	return nil
}

func (ks *Keystore) readFile(name string) (*keystoreFile, error) {
	data, err := os.ReadFile(ks.walletPath(name))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %q", ErrWalletNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("read wallet: %w", err)
	}
	var kf keystoreFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("parse wallet: %w", err)
	}
	if kf.Version != keystoreVersion {
		return nil, fmt.Errorf("unsupported wallet version: %d", kf.Version)
	}
	if kf.Mnemonic == nil {
		return nil, fmt.Errorf("wallet %q has no encrypted mnemonic", name)
	}
	if kf.HRP == "" {
		kf.HRP = types.MainnetHRP
	}
	return &kf, nil
}
