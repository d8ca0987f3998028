// Package profiles persists saved connection profiles as YAML.
package profiles

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
	"pkt.systems/pslog"
	"pkt.systems/sshtabs/schema"
)

// Sealer encrypts secrets before they reach disk.
type Sealer interface {
	Seal(owner, secret string) (string, error)
	Open(owner, sealed string) (string, error)
}

type fileRecord struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	Username    string `yaml:"username"`
	KeyPath     string `yaml:"key_path,omitempty"`
	PasswordEnc string `yaml:"password_enc,omitempty"`
	Password    string `yaml:"password,omitempty"`
}

type fileSnapshot struct {
	Profiles []fileRecord `yaml:"profiles"`
}

// Store is the durable, ordered table of saved profiles.
type Store struct {
	mu       sync.Mutex
	path     string
	sealer   Sealer
	log      pslog.Logger
	profiles []schema.Profile
	loadErr  error
	// locked holds sealed passwords that could not be opened; they are
	// written back unchanged until the password is replaced.
	locked map[schema.ProfileID]string
}

// Open loads the profile file at path. A missing file yields an empty store;
// an unreadable or corrupt file also yields an empty store and the failure is
// reported through LoadErr.
func Open(path string, sealer Sealer, logger pslog.Logger) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("profiles path is required")
	}
	if logger != nil {
		logger = logger.With("profiles_path", path)
	}
	s := &Store{path: path, sealer: sealer, log: logger, locked: make(map[schema.ProfileID]string)}
	profiles, err := s.load()
	if err != nil {
		s.loadErr = err
		if s.log != nil {
			s.log.Warn("profiles load failed", "err", err)
		}
		profiles = nil
	}
	s.profiles = profiles
	return s, nil
}

// LoadErr returns the error encountered while loading, if any.
func (s *Store) LoadErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadErr
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// List returns the profiles in insertion order.
func (s *Store) List() []schema.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schema.Profile, len(s.profiles))
	copy(out, s.profiles)
	return out
}

// Len returns the number of profiles.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.profiles)
}

// Get returns the profile with the given id.
func (s *Store) Get(id schema.ProfileID) (schema.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return schema.Profile{}, schema.ErrProfileNotFound
	}
	return s.profiles[idx], nil
}

// Add validates, assigns an id and appends the profile. When persisting fails
// the profile stays in memory and the returned error wraps ErrConfigPersist.
func (s *Store) Add(profile schema.Profile) (schema.Profile, error) {
	normalized, err := schema.NormalizeProfile(profile)
	if err != nil {
		return schema.Profile{}, err
	}
	normalized.ID = schema.ProfileID(uuid.NewString())
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles = append(s.profiles, normalized)
	if s.log != nil {
		s.log.Info("profiles add", "profile", normalized.ID, "host", normalized.Addr())
	}
	return normalized, s.saveLocked()
}

// Update applies fields to the profile with the given id.
func (s *Store) Update(id schema.ProfileID, fields schema.ProfileFields) (schema.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return schema.Profile{}, schema.ErrProfileNotFound
	}
	updated, err := schema.NormalizeProfile(fields.Apply(s.profiles[idx]))
	if err != nil {
		return schema.Profile{}, err
	}
	updated.ID = id
	s.profiles[idx] = updated
	if fields.Password != nil && *fields.Password != "" {
		delete(s.locked, id)
	}
	if s.log != nil {
		s.log.Info("profiles update", "profile", id)
	}
	return updated, s.saveLocked()
}

// Remove deletes the profile with the given id.
func (s *Store) Remove(id schema.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexLocked(id)
	if idx < 0 {
		return schema.ErrProfileNotFound
	}
	s.profiles = append(s.profiles[:idx], s.profiles[idx+1:]...)
	delete(s.locked, id)
	if s.log != nil {
		s.log.Info("profiles remove", "profile", id)
	}
	return s.saveLocked()
}

func (s *Store) indexLocked(id schema.ProfileID) int {
	for i, p := range s.profiles {
		if p.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) load() ([]schema.Profile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			if s.log != nil {
				s.log.Debug("profiles load miss")
			}
			return nil, nil
		}
		return nil, err
	}
	var snapshot fileSnapshot
	if err := yaml.Unmarshal(data, &snapshot); err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.path, err)
	}
	out := make([]schema.Profile, 0, len(snapshot.Profiles))
	for _, rec := range snapshot.Profiles {
		profile := schema.Profile{
			ID:       schema.ProfileID(rec.ID),
			Name:     rec.Name,
			Host:     rec.Host,
			Port:     rec.Port,
			Username: rec.Username,
			Credential: schema.Credential{
				KeyPath:  rec.KeyPath,
				Password: rec.Password,
			},
		}
		if profile.ID == "" {
			profile.ID = schema.ProfileID(uuid.NewString())
		}
		if rec.PasswordEnc != "" {
			if s.sealer == nil {
				s.locked[profile.ID] = rec.PasswordEnc
				if s.log != nil {
					s.log.Warn("profiles password skipped", "profile", profile.ID, "reason", "no vault")
				}
			} else if plain, err := s.sealer.Open(string(profile.ID), rec.PasswordEnc); err != nil {
				s.locked[profile.ID] = rec.PasswordEnc
				if s.log != nil {
					s.log.Warn("profiles password open failed", "profile", profile.ID, "err", err)
				}
			} else {
				profile.Credential.Password = plain
			}
		}
		normalized, err := schema.NormalizeProfile(profile)
		if err != nil {
			if s.log != nil {
				s.log.Warn("profiles entry skipped", "profile", profile.ID, "err", err)
			}
			continue
		}
		out = append(out, normalized)
	}
	if s.log != nil {
		s.log.Debug("profiles load ok", "count", len(out))
	}
	return out, nil
}

func (s *Store) encode() ([]byte, error) {
	snapshot := fileSnapshot{Profiles: make([]fileRecord, 0, len(s.profiles))}
	for _, p := range s.profiles {
		rec := fileRecord{
			ID:       string(p.ID),
			Name:     p.Name,
			Host:     p.Host,
			Port:     p.Port,
			Username: p.Username,
			KeyPath:  p.Credential.KeyPath,
		}
		if p.Credential.Password != "" {
			if s.sealer != nil {
				sealed, err := s.sealer.Seal(string(p.ID), p.Credential.Password)
				if err != nil {
					return nil, err
				}
				rec.PasswordEnc = sealed
			} else {
				rec.Password = p.Credential.Password
			}
		} else if sealed, ok := s.locked[p.ID]; ok {
			rec.PasswordEnc = sealed
		}
		snapshot.Profiles = append(snapshot.Profiles, rec)
	}
	return yaml.Marshal(snapshot)
}

func (s *Store) saveLocked() error {
	if err := s.writeLocked(); err != nil {
		if s.log != nil {
			s.log.Warn("profiles save failed", "err", err)
		}
		return fmt.Errorf("%w: %v", schema.ErrConfigPersist, err)
	}
	if s.log != nil {
		s.log.Trace("profiles save ok", "count", len(s.profiles))
	}
	return nil
}

func (s *Store) writeLocked() error {
	data, err := s.encode()
	if err != nil {
		return err
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "profiles-*.yaml")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.path)
}
