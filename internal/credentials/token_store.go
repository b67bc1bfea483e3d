package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"golang.org/x/oauth2"
)

// TokenStore persists the authorization token between sessions.
type TokenStore interface {
	// Load returns the stored token, or (nil, nil) when none was saved yet.
	Load() (*oauth2.Token, error)

	// Save overwrites the stored token.
	Save(tok *oauth2.Token) error
}

// FileTokenStore keeps the token as a JSON document on local disk.
type FileTokenStore struct {
	path string
}

// NewFileTokenStore creates a store backed by the file at path.
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{path: path}
}

// Path returns the token file location.
func (s *FileTokenStore) Path() string {
	return s.path
}

// Load implements TokenStore.
func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FileTokenStore.Load: reading %q: %w", s.path, err)
	}

	var tok oauth2.Token
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, fmt.Errorf("FileTokenStore.Load: decoding %q: %w", s.path, err)
	}
	return &tok, nil
}

// Save implements TokenStore. The file is replaced atomically so a crash
// mid-write never leaves a truncated token behind.
func (s *FileTokenStore) Save(tok *oauth2.Token) error {
	if tok == nil {
		return fmt.Errorf("FileTokenStore.Save: nil token")
	}

	data, err := json.Marshal(tok)
	if err != nil {
		return fmt.Errorf("FileTokenStore.Save: encoding token: %w", err)
	}

	if err := writeFileAtomic(s.path, data, 0o600); err != nil {
		return fmt.Errorf("FileTokenStore.Save: %w", err)
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing %q: %w", path, err)
	}
	return nil
}

var _ TokenStore = (*FileTokenStore)(nil)
