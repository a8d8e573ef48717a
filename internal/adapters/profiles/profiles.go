// Package profiles serves decorative player profiles from a JSON or YAML file.
package profiles

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/okian/tally/internal/domain/model"
)

// MaxDescriptionLength is the number of characters kept from a description.
const MaxDescriptionLength = 60

// ErrInvalidFile marks a profiles file that is not a mapping of names to profiles.
var ErrInvalidFile = errors.New("invalid profiles file")

type fileProfile struct {
	Nickname    string `json:"nickname" yaml:"nickname"`
	Birthday    string `json:"birthday" yaml:"birthday"`
	Description string `json:"description" yaml:"description"`
}

// Directory reads profiles from path, re-reading the file when it changes.
// An empty path or a missing file yields no profiles.
type Directory struct {
	path string

	mu      sync.Mutex
	modTime time.Time
	size    int64
	cached  map[string]fileProfile
}

// New returns a Directory backed by path.
func New(path string) *Directory {
	return &Directory{path: path}
}

// All returns every profile with Age computed against today.
func (d *Directory) All(_ context.Context, today model.Date) (map[string]model.PlayerProfile, error) {
	raw, err := d.load()
	if err != nil {
		return nil, err
	}

	out := make(map[string]model.PlayerProfile, len(raw))
	for name, p := range raw {
		out[name] = model.PlayerProfile{
			Nickname:    p.Nickname,
			Birthday:    p.Birthday,
			Age:         Age(p.Birthday, today),
			Description: p.Description,
		}
	}
	return out, nil
}

func (d *Directory) load() (map[string]fileProfile, error) {
	if d.path == "" {
		return map[string]fileProfile{}, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	info, err := os.Stat(d.path)
	if errors.Is(err, fs.ErrNotExist) {
		d.cached, d.modTime, d.size = nil, time.Time{}, 0
		return map[string]fileProfile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat profiles: %w", err)
	}
	if d.cached != nil && info.ModTime().Equal(d.modTime) && info.Size() == d.size {
		return d.cached, nil
	}

	b, err := os.ReadFile(d.path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	parsed, err := parse(b)
	if err != nil {
		return nil, err
	}
	d.cached, d.modTime, d.size = parsed, info.ModTime(), info.Size()
	return parsed, nil
}

// parse decodes a JSON or YAML profiles document. Entries that are not
// objects are skipped and long descriptions are cut to MaxDescriptionLength
// characters.
func parse(b []byte) (map[string]fileProfile, error) {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) == 0 {
		return map[string]fileProfile{}, nil
	}

	var (
		out map[string]fileProfile
		err error
	)
	if trimmed[0] == '{' {
		out, err = parseJSON(trimmed)
	} else {
		out, err = parseYAML(trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFile, err)
	}
	for name, p := range out {
		p.Description = truncate(p.Description, MaxDescriptionLength)
		out[name] = p
	}
	return out, nil
}

func parseJSON(b []byte) (map[string]fileProfile, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]fileProfile, len(doc))
	for name, raw := range doc {
		if len(raw) == 0 || raw[0] != '{' {
			continue
		}
		var p fileProfile
		if err := json.Unmarshal(raw, &p); err != nil {
			continue
		}
		out[name] = p
	}
	return out, nil
}

func parseYAML(b []byte) (map[string]fileProfile, error) {
	var doc map[string]yaml.Node
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, err
	}
	out := make(map[string]fileProfile, len(doc))
	for name, node := range doc {
		if node.Kind != yaml.MappingNode {
			continue
		}
		var p fileProfile
		if err := node.Decode(&p); err != nil {
			continue
		}
		out[name] = p
	}
	return out, nil
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return strings.TrimRight(string([]rune(s)[:n]), " \t\r\n")
}

// Age returns the whole years between birthday (YYYY-MM-DD) and today, or nil
// when birthday is empty, malformed or in the future.
func Age(birthday string, today model.Date) *int {
	if birthday == "" {
		return nil
	}
	born, err := model.ParseDate(birthday)
	if err != nil || born.After(today) {
		return nil
	}
	age := today.Year - born.Year
	if today.Month < born.Month || (today.Month == born.Month && today.Day < born.Day) {
		age--
	}
	return &age
}
