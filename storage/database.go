package storage

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/gagliardetto/solana-go"
)

const (
	walletFileName = "wallets.json"
	configDirName  = "config"
)

// WalletStorage provides access to the JSON-based wallet profile store.
type WalletStorage struct {
	path string
}

// NewWalletStorage opens and initializes the JSON-based storage.
func NewWalletStorage() (*WalletStorage, error) {
	dbPath, err := getDBPath()
	if err != nil {
		return nil, fmt.Errorf("could not get db path: %w", err)
	}

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("could not create db directory: %w", err)
	}

	db := &WalletStorage{path: dbPath}

	// Initialize with an empty store if it doesn't exist.
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		if err := db.write(walletFile{}); err != nil {
			return nil, fmt.Errorf("could not create wallet file: %w", err)
		}
	}

	return db, nil
}

// GetAllWalletNames lists the stored profile names, sorted.
func (db *WalletStorage) GetAllWalletNames() ([]string, error) {
	wallets, err := db.read()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(wallets))
	for name := range wallets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// GetWallet retrieves the private key for a named profile.
func (db *WalletStorage) GetWallet(name string) (solana.PrivateKey, error) {
	wallets, err := db.read()
	if err != nil {
		return nil, err
	}

	encoded, ok := wallets[name]
	if !ok {
		return nil, fmt.Errorf("no wallet found for profile %q", name)
	}

	privateKeyBytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("could not decode private key: %w", err)
	}
	if len(privateKeyBytes) != solana.PrivateKeyLength {
		return nil, fmt.Errorf("invalid private key length in wallet file: expected %d, got %d", solana.PrivateKeyLength, len(privateKeyBytes))
	}

	return solana.PrivateKey(privateKeyBytes), nil
}

// SaveWallet stores a private key under a profile name, overwriting any
// existing key for that name.
func (db *WalletStorage) SaveWallet(name string, privateKey solana.PrivateKey) error {
	wallets, err := db.read()
	if err != nil {
		return err
	}

	wallets[name] = base64.StdEncoding.EncodeToString(privateKey[:])
	return db.write(wallets)
}

// HasWallet reports whether a profile exists.
func (db *WalletStorage) HasWallet(name string) bool {
	wallets, err := db.read()
	if err != nil {
		return false
	}
	_, ok := wallets[name]
	return ok
}

func (db *WalletStorage) read() (walletFile, error) {
	data, err := os.ReadFile(db.path)
	if err != nil {
		return nil, fmt.Errorf("could not read wallet file: %w", err)
	}

	wallets := walletFile{}
	if len(data) == 0 {
		return wallets, nil
	}
	if err := json.Unmarshal(data, &wallets); err != nil {
		return nil, fmt.Errorf("could not parse wallet file: %w", err)
	}
	return wallets, nil
}

func (db *WalletStorage) write(wallets walletFile) error {
	data, err := json.Marshal(wallets)
	if err != nil {
		return fmt.Errorf("could not marshal wallet data: %w", err)
	}
	if err := os.WriteFile(db.path, data, 0600); err != nil {
		return fmt.Errorf("could not write wallet file: %w", err)
	}
	return nil
}

// getDBPath returns the path for the wallet file relative to the current
// working directory.
func getDBPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("could not get current working directory: %w", err)
	}
	return filepath.Join(cwd, configDirName, walletFileName), nil
}

// Close closes the wallet storage (for interface compatibility). Since
// this is a JSON file implementation, there's no actual connection to
// close.
func (db *WalletStorage) Close() error {
	return nil
}
