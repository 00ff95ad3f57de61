package wallet

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	apperrors "github.com/ledgermart/ledgermart/pkg/errors"
)

const identityFileSuffix = ".id"

// Identity is an X.509 credential bound to one organization. The wallet
// owns the only durable copy; callers hold it transiently to open gateway
// sessions.
type Identity struct {
	Label       string `json:"label"`
	MSPID       string `json:"mspId"`
	Certificate string `json:"certificate"`
	PrivateKey  string `json:"privateKey"`
}

// FileSystemWallet stores one JSON record per identity label under a root
// directory. It survives process restarts and serializes writes to the
// same label.
type FileSystemWallet struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewFileSystemWallet opens (creating if necessary) a wallet rooted at dir.
func NewFileSystemWallet(dir string) (*FileSystemWallet, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, apperrors.NewConfigError("failed to create wallet directory", err, map[string]interface{}{
			"path": dir,
		})
	}
	return &FileSystemWallet{
		root:  dir,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

func (w *FileSystemWallet) labelLock(label string) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	lock, ok := w.locks[label]
	if !ok {
		lock = &sync.Mutex{}
		w.locks[label] = lock
	}
	return lock
}

func (w *FileSystemWallet) pathFor(label string) string {
	return filepath.Join(w.root, label+identityFileSuffix)
}

// Get returns the identity stored under label.
func (w *FileSystemWallet) Get(label string) (*Identity, error) {
	lock := w.labelLock(label)
	lock.Lock()
	defer lock.Unlock()

	data, err := os.ReadFile(w.pathFor(label))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperrors.NewNotFoundError("identity not found in wallet", map[string]interface{}{
				"label": label,
			})
		}
		return nil, apperrors.NewConfigError("failed to read wallet entry", err, map[string]interface{}{
			"label": label,
		})
	}

	var id Identity
	if err := json.Unmarshal(data, &id); err != nil {
		return nil, apperrors.NewConfigError("wallet entry is corrupt", err, map[string]interface{}{
			"label": label,
		})
	}
	return &id, nil
}

// Put stores id under label, fully replacing any previous entry. The
// record is written to a temporary file and renamed into place so a
// concurrent Get observes either the old identity or the new one, never a
// partial write mixing the two.
func (w *FileSystemWallet) Put(label string, id *Identity) error {
	if label == "" {
		return apperrors.NewValidationError("wallet label must not be empty", nil)
	}
	id.Label = label

	lock := w.labelLock(label)
	lock.Lock()
	defer lock.Unlock()

	data, err := json.MarshalIndent(id, "", "  ")
	if err != nil {
		return apperrors.NewInternalError("failed to encode identity", err, nil)
	}

	tmp, err := os.CreateTemp(w.root, label+".tmp-*")
	if err != nil {
		return apperrors.NewConfigError("failed to create wallet temp file", err, map[string]interface{}{
			"label": label,
		})
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return apperrors.NewConfigError("failed to write wallet entry", err, map[string]interface{}{
			"label": label,
		})
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return apperrors.NewConfigError("failed to close wallet temp file", err, map[string]interface{}{
			"label": label,
		})
	}
	if err := os.Rename(tmpName, w.pathFor(label)); err != nil {
		os.Remove(tmpName)
		return apperrors.NewConfigError("failed to replace wallet entry", err, map[string]interface{}{
			"label": label,
		})
	}
	return nil
}

// Remove deletes the identity stored under label. Removing a label that
// does not exist is not an error.
func (w *FileSystemWallet) Remove(label string) error {
	lock := w.labelLock(label)
	lock.Lock()
	defer lock.Unlock()

	err := os.Remove(w.pathFor(label))
	if err != nil && !os.IsNotExist(err) {
		return apperrors.NewConfigError("failed to remove wallet entry", err, map[string]interface{}{
			"label": label,
		})
	}
	return nil
}

// Exists reports whether an identity is stored under label.
func (w *FileSystemWallet) Exists(label string) bool {
	_, err := os.Stat(w.pathFor(label))
	return err == nil
}

// List returns the labels of every identity in the wallet.
func (w *FileSystemWallet) List() ([]string, error) {
	entries, err := os.ReadDir(w.root)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to list wallet directory", err, map[string]interface{}{
			"path": w.root,
		})
	}
	var labels []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, identityFileSuffix) {
			continue
		}
		labels = append(labels, strings.TrimSuffix(name, identityFileSuffix))
	}
	return labels, nil
}

// Path returns the wallet root directory.
func (w *FileSystemWallet) Path() string {
	return w.root
}

// String implements fmt.Stringer without leaking key material.
func (id *Identity) String() string {
	return fmt.Sprintf("identity %s (msp %s)", id.Label, id.MSPID)
}
