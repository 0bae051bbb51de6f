package jwt

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dropDatabas3/melody/internal/util/atomicwrite"
)

// KeySource entrega las claves ordenadas: actual primero, luego deprecadas
// de la más nueva a la más vieja.
type KeySource interface {
	LoadKeys(ctx context.Context) ([]*SigningKey, error)
}

// Rotator es implementado por las fuentes que el CLI puede rotar.
type Rotator interface {
	// Rotate instala priv como actual y pasa la actual a deprecada.
	Rotate(ctx context.Context, priv *rsa.PrivateKey) error
	// PurgeDeprecated elimina las claves deprecadas (fin de la ventana).
	PurgeDeprecated(ctx context.Context) error
}

// ---- StaticSource ----

// StaticSource es una fuente en memoria; se puede reemplazar en caliente.
type StaticSource struct {
	mu   sync.RWMutex
	keys []*SigningKey
}

func NewStaticSource(keys ...*SigningKey) *StaticSource {
	return &StaticSource{keys: keys}
}

func (s *StaticSource) LoadKeys(context.Context) ([]*SigningKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*SigningKey(nil), s.keys...), nil
}

func (s *StaticSource) Rotate(_ context.Context, priv *rsa.PrivateKey) error {
	next, err := NewSigningKey(priv, KeyCurrent)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	old := make([]*SigningKey, 0, len(s.keys)+1)
	old = append(old, next)
	for _, k := range s.keys {
		dk := *k
		dk.Status = KeyDeprecated
		old = append(old, &dk)
	}
	s.keys = old
	return nil
}

func (s *StaticSource) PurgeDeprecated(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.keys) > 1 {
		s.keys = s.keys[:1]
	}
	return nil
}

// ---- FileSource ----

const (
	currentFile      = "current.pem"
	deprecatedPrefix = "deprecated-"
)

// FileSource lee Dir/current.pem y Dir/deprecated-*.pem. El sufijo de las
// deprecadas es un timestamp, así el orden lexicográfico inverso es de la
// más nueva a la más vieja.
type FileSource struct {
	Dir string
	now func() time.Time
}

func NewFileSource(dir string) *FileSource {
	return &FileSource{Dir: dir, now: time.Now}
}

func (s *FileSource) LoadKeys(context.Context) ([]*SigningKey, error) {
	cur, err := s.read(filepath.Join(s.Dir, currentFile), KeyCurrent)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNoSigningKey
		}
		return nil, err
	}
	out := []*SigningKey{cur}

	names, err := s.deprecatedFiles()
	if err != nil {
		return nil, err
	}
	for _, n := range names {
		k, err := s.read(filepath.Join(s.Dir, n), KeyDeprecated)
		if err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, nil
}

func (s *FileSource) read(path string, status KeyStatus) (*SigningKey, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	priv, err := ParsePrivatePEM(b)
	if err != nil {
		return nil, fmt.Errorf("jwt: %s: %w", path, err)
	}
	return NewSigningKey(priv, status)
}

func (s *FileSource) deprecatedFiles() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		n := e.Name()
		if !e.IsDir() && strings.HasPrefix(n, deprecatedPrefix) && strings.HasSuffix(n, ".pem") {
			names = append(names, n)
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))
	return names, nil
}

// Init escribe current.pem si no existe. Retorna true si generó una clave.
func (s *FileSource) Init(bits int) (bool, error) {
	path := filepath.Join(s.Dir, currentFile)
	if _, err := os.Stat(path); err == nil {
		return false, nil
	}
	priv, err := GenerateRSA(bits)
	if err != nil {
		return false, err
	}
	return true, s.writeCurrent(priv)
}

func (s *FileSource) writeCurrent(priv *rsa.PrivateKey) error {
	b, err := EncodePrivatePEM(priv)
	if err != nil {
		return err
	}
	return atomicwrite.WriteFile(filepath.Join(s.Dir, currentFile), b, 0o600, 0o700)
}

func (s *FileSource) Rotate(_ context.Context, priv *rsa.PrivateKey) error {
	cur := filepath.Join(s.Dir, currentFile)
	if _, err := os.Stat(cur); err == nil {
		name := deprecatedPrefix + s.now().UTC().Format("20060102T150405.000000000") + ".pem"
		if err := os.Rename(cur, filepath.Join(s.Dir, name)); err != nil {
			return err
		}
	}
	return s.writeCurrent(priv)
}

func (s *FileSource) PurgeDeprecated(context.Context) error {
	names, err := s.deprecatedFiles()
	if err != nil {
		return err
	}
	for _, n := range names {
		if err := os.Remove(filepath.Join(s.Dir, n)); err != nil {
			return err
		}
	}
	return nil
}
