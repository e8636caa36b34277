package blob

import (
	"errors"
	"os"
	"path/filepath"

	pebble "github.com/cockroachdb/pebble"
)

var ErrBlobNotFound = errors.New("blob not found")

const keyPrefix = "blob:"

// Store 把上传的图片内容存进本地 pebble
type Store struct {
	db *pebble.DB
}

// Open 打开 dir 下的 pebble 库；opts 为空时用默认配置
func Open(dir string, opts *pebble.Options) (*Store, error) {
	if opts == nil {
		opts = &pebble.Options{}
		if err := os.MkdirAll(filepath.Clean(dir), 0700); err != nil {
			return nil, err
		}
	}
	db, err := pebble.Open(dir, opts)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func Key(id string) string { return keyPrefix + id }

func (s *Store) Put(key string, data []byte) error {
	return s.db.Set([]byte(key), data, pebble.Sync)
}

func (s *Store) Get(key string) ([]byte, error) {
	v, closer, err := s.db.Get([]byte(key))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	defer closer.Close()
	// closer 关闭后 v 不再有效，拷贝一份
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (s *Store) Delete(key string) error {
	return s.db.Delete([]byte(key), pebble.Sync)
}
