// Package credfile 负责 bili_credentials.json 的读写。
package credfile

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"bili_passport/internal/model"
)

// ErrNotFound 表示凭证文件不存在，通常意味着还没登录过。
var ErrNotFound = errors.New("credential file not found")

type Store struct {
	Path string
}

func New(path string) *Store {
	return &Store{Path: path}
}

// Save 原子写入：先写同目录临时文件再 rename，权限 0600。
func (s *Store) Save(cred model.Credential) error {
	path := strings.TrimSpace(s.Path)
	if path == "" {
		return errors.New("credential path is empty")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(cred); err != nil {
		return fmt.Errorf("encode credential: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create credential dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp credential file: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if err := tmp.Chmod(0o600); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("chmod credential file: %w", err)
	}
	if _, err := tmp.Write(buf.Bytes()); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("write credential file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("sync credential file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close credential file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("rename credential file: %w", err)
	}
	return nil
}

func (s *Store) Load() (model.Credential, error) {
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return model.Credential{}, fmt.Errorf("%w: %s", ErrNotFound, s.Path)
		}
		return model.Credential{}, err
	}
	var cred model.Credential
	if err := json.Unmarshal(b, &cred); err != nil {
		return model.Credential{}, fmt.Errorf("parse credential file %s: %w", s.Path, err)
	}
	if cred.Cookies == nil {
		cred.Cookies = map[string]string{}
	}
	return cred, nil
}
