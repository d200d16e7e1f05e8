package snapshot

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cuemby/keel/pkg/types"
	"github.com/rs/zerolog"
)

// DefaultMaxRetained is the default cap on retained snapshot directories.
const DefaultMaxRetained = 1

// Entry is one listed snapshot directory.
type Entry struct {
	Name     string
	Position types.LogPosition
	Path     string
}

// Manager enumerates, names, retains, and deletes snapshot directories
// under a single root directory.
type Manager struct {
	rootDir string
	prefix  string
	log     zerolog.Logger
}

// New constructs a Manager rooted at rootDir, naming directories
// "<prefix>.<index>.<term>".
func New(rootDir, prefix string, log zerolog.Logger) *Manager {
	return &Manager{rootDir: rootDir, prefix: prefix, log: log}
}

// Name returns the directory name for pos.
func (m *Manager) Name(pos types.LogPosition) string {
	return fmt.Sprintf("%s.%d.%d", m.prefix, pos.Index, pos.Term)
}

// Path returns the full directory path for pos.
func (m *Manager) Path(pos types.LogPosition) string {
	return filepath.Join(m.rootDir, m.Name(pos))
}

// parse decodes a directory name back into a LogPosition, rejecting
// anything that doesn't match "<prefix>.<non-negative decimal>.<non-negative decimal>".
func (m *Manager) parse(name string) (types.LogPosition, bool) {
	prefixDot := m.prefix + "."
	if !strings.HasPrefix(name, prefixDot) {
		return types.LogPosition{}, false
	}
	rest := strings.TrimPrefix(name, prefixDot)
	parts := strings.SplitN(rest, ".", 2)
	if len(parts) != 2 {
		return types.LogPosition{}, false
	}
	index, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return types.LogPosition{}, false
	}
	term, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return types.LogPosition{}, false
	}
	return types.LogPosition{Index: index, Term: term}, true
}

// List enumerates valid snapshot directories under rootDir, sorted
// ascending by (index, term). Invalid names are logged and ignored.
func (m *Manager) List() ([]Entry, error) {
	dirEntries, err := os.ReadDir(m.rootDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list snapshot root %s: %w", m.rootDir, err)
	}

	var entries []Entry
	for _, de := range dirEntries {
		if !de.IsDir() {
			continue
		}
		pos, ok := m.parse(de.Name())
		if !ok {
			m.log.Warn().Str("name", de.Name()).Msg("ignoring invalid snapshot directory name")
			continue
		}
		entries = append(entries, Entry{
			Name:     de.Name(),
			Position: pos,
			Path:     filepath.Join(m.rootDir, de.Name()),
		})
	}

	sort.Slice(entries, func(i, j int) bool {
		a, b := entries[i].Position, entries[j].Position
		if a.Index != b.Index {
			return a.Index < b.Index
		}
		return a.Term < b.Term
	})
	return entries, nil
}

// Find locates the snapshot directory for an exact position, if any.
func (m *Manager) Find(pos types.LogPosition) (Entry, bool, error) {
	entries, err := m.List()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.Position == pos {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// Retain enforces maxRetained by deleting the lowest-sorted excess
// directories. It is run before snapshot creation so a create under tight
// disk budget can still succeed.
func (m *Manager) Retain(maxRetained int) error {
	entries, err := m.List()
	if err != nil {
		return err
	}
	excess := len(entries) - maxRetained
	if excess <= 0 {
		return nil
	}
	for _, e := range entries[:excess] {
		m.deletePath(e.Path)
	}
	return nil
}

// Delete removes the named snapshot directory. Best-effort: errors are
// logged, never returned, matching the fire-and-forget nature of a
// delete_snapshot request.
func (m *Manager) Delete(name string) {
	m.deletePath(filepath.Join(m.rootDir, name))
}

func (m *Manager) deletePath(path string) {
	if err := os.RemoveAll(path); err != nil {
		m.log.Error().Err(err).Str("path", path).Msg("failed to delete snapshot directory")
		return
	}
	m.log.Info().Str("path", path).Msg("deleted snapshot directory")
}
