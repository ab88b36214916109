package manifest

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/tqbf/patchup/pkg/patcherr"
	"github.com/tqbf/patchup/pkg/paths"
)

const (
	FileName = "changes.txt"
	FilesDir = "files"
	// DeltaExt is appended to a changed path to name its delta inside
	// FilesDir.
	DeltaExt = ".patch"
)

const (
	PrefixAdded   = '+'
	PrefixRemoved = '-'
	PrefixChanged = '*'
)

type Manifest struct {
	Added   []string
	Removed []string
	Changed []string

	// Unknown holds lines whose prefix is not one of +, - or *. They are
	// not applied.
	Unknown []string
}

func (m *Manifest) Total() int {
	return len(m.Added) + len(m.Removed) + len(m.Changed)
}

func (m *Manifest) Empty() bool {
	return m.Total() == 0
}

func Encode(added, removed, changed []string) []byte {
	var b bytes.Buffer
	writeSection(&b, PrefixAdded, added)
	writeSection(&b, PrefixRemoved, removed)
	writeSection(&b, PrefixChanged, changed)
	return b.Bytes()
}

func writeSection(b *bytes.Buffer, prefix byte, list []string) {
	for _, p := range list {
		b.WriteByte(prefix)
		b.WriteString(p)
		b.WriteByte('\n')
	}
}

func (m *Manifest) Encode() []byte {
	return Encode(m.Added, m.Removed, m.Changed)
}

func Decode(data []byte) (*Manifest, error) {
	m := &Manifest{}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for scanner.Scan() {
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if len(line) < 2 {
			continue
		}
		name := paths.Normalize(line[1:])
		switch line[0] {
		case PrefixAdded:
			m.Added = append(m.Added, name)
		case PrefixRemoved:
			m.Removed = append(m.Removed, name)
		case PrefixChanged:
			m.Changed = append(m.Changed, name)
		default:
			m.Unknown = append(m.Unknown, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindManifestInvalid, "read manifest",
		)
	}
	return m, nil
}

// Validate checks that every path stays inside the install root and
// that no path is listed under more than one category.
func (m *Manifest) Validate() error {
	seen := make(map[string]byte, m.Total())
	check := func(prefix byte, list []string) error {
		for _, p := range list {
			if err := paths.ValidateRelPath(p); err != nil {
				return patcherr.Wrap(
					err, patcherr.KindManifestInvalid,
					"validate manifest",
				).WithPath(p)
			}
			if prev, dup := seen[p]; dup {
				return patcherr.New(
					patcherr.KindManifestInvalid,
					"validate manifest",
					"listed as %c and %c", prev, prefix,
				).WithPath(p)
			}
			seen[p] = prefix
		}
		return nil
	}
	if err := check(PrefixAdded, m.Added); err != nil {
		return err
	}
	if err := check(PrefixRemoved, m.Removed); err != nil {
		return err
	}
	if err := check(PrefixChanged, m.Changed); err != nil {
		return err
	}

	// An added file and a changed file's delta share files/.
	for _, p := range m.Changed {
		payload := p + DeltaExt
		if seen[payload] == PrefixAdded {
			return patcherr.New(
				patcherr.KindManifestInvalid,
				"validate manifest",
				"added %q collides with delta for %q", payload, p,
			).WithPath(payload)
		}
	}
	return nil
}

func ReadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, patcherr.Wrap(
			err, patcherr.KindManifestInvalid, "read manifest",
		)
	}
	return Decode(data)
}

func WriteFile(path string, m *Manifest) error {
	if err := os.WriteFile(path, m.Encode(), 0644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
