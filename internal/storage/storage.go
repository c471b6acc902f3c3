package storage

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog"

	"party-rsvp/internal/models"
)

// ErrWriteDenied is returned by Save when the artifact cannot be written
// because of missing permissions or a read-only filesystem.
var ErrWriteDenied = errors.New("guest file is not writable")

// ErrWriteFailed is returned by Save for any other write failure. The file
// on disk is left as it was and a later Save may succeed.
var ErrWriteFailed = errors.New("failed to write guest file")

// Storage reads and writes the guest list as a single JSON object keyed by
// user id.
type Storage struct {
	file string
	log  zerolog.Logger
}

// NewStorage creates a new storage instance
func NewStorage(filePath string, logger zerolog.Logger) *Storage {
	return &Storage{
		file: filePath,
		log:  logger.With().Str("component", "Storage").Str("file", filePath).Logger(),
	}
}

// Path returns the artifact location.
func (s *Storage) Path() string {
	return s.file
}

// Load reads the guest list. A missing, unreadable or malformed file yields
// an empty list; Load never fails.
func (s *Storage) Load() map[models.UserID]models.Guest {
	guests := make(map[models.UserID]models.Guest)

	data, err := os.ReadFile(s.file)
	if errors.Is(err, fs.ErrNotExist) {
		s.log.Debug().Msg("Guest file not found, starting empty")
		return guests
	}
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to read guest file, starting empty")
		return guests
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return guests
	}

	var raw map[string]models.Guest
	if err := json.Unmarshal(data, &raw); err != nil {
		s.log.Error().Err(err).Msg("Guest file is corrupt, starting empty")
		return guests
	}

	for key, g := range raw {
		if key == "" {
			s.log.Warn().Msg("Dropping guest entry with empty user id")
			continue
		}
		if g.Status != models.StatusAttending {
			s.log.Warn().Str("user", key).Str("status", string(g.Status)).Msg("Dropping guest entry with unknown status")
			continue
		}
		if g.Dress != nil && !g.Dress.Valid() {
			s.log.Warn().Str("user", key).Str("dress", string(*g.Dress)).Msg("Clearing unknown dress code")
			g.Dress = nil
		}
		g.UserID = models.UserID(key)
		guests[g.UserID] = g
	}
	return guests
}

// Save overwrites the artifact with the full guest list. The data goes to a
// temporary file in the same directory which is then renamed into place, so
// readers never observe a partial write.
//
// Permission failures are returned wrapped in ErrWriteDenied. Any other
// failure is returned wrapped in ErrWriteFailed.
func (s *Storage) Save(guests map[models.UserID]models.Guest) error {
	err := s.write(guests)
	if err == nil {
		return nil
	}
	if isAccessDenied(err) {
		s.log.WithLevel(zerolog.FatalLevel).Err(err).Msg("Cannot write guest file")
		return fmt.Errorf("%w: %w", ErrWriteDenied, err)
	}
	s.log.Error().Err(err).Msg("Failed to save guests")
	return fmt.Errorf("%w: %w", ErrWriteFailed, err)
}

func (s *Storage) write(guests map[models.UserID]models.Guest) error {
	data, err := Marshal(guests)
	if err != nil {
		return fmt.Errorf("failed to marshal data: %w", err)
	}

	// Ensure directory exists
	dir := filepath.Dir(s.file)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.file)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set permissions: %w", err)
	}
	if err := os.Rename(tmpPath, s.file); err != nil {
		return fmt.Errorf("failed to replace guest file: %w", err)
	}
	committed = true
	return nil
}

// Marshal encodes guests in the artifact format. Keys come out sorted and
// non-ASCII text is written as-is.
func Marshal(guests map[models.UserID]models.Guest) ([]byte, error) {
	out := make(map[string]models.Guest, len(guests))
	for id, g := range guests {
		out[string(id)] = g
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAccessDenied(err error) bool {
	return errors.Is(err, fs.ErrPermission) || errors.Is(err, syscall.EROFS)
}
