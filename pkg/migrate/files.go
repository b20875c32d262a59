package migrate

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"text/template"
	"time"

	"github.com/pressly/goose/v3"
)

const (
	versionLayout = "20060102150405"
	markerUp      = "-- +goose Up"
	markerDown    = "-- +goose Down"
)

var (
	slugRe     = regexp.MustCompile(`[^a-z0-9]+`)
	filenameRe = regexp.MustCompile(`^\d{14}_[a-z0-9_]+\.sql$`)

	skeleton = template.Must(template.New("migration").Parse(`-- {{.Slug}} ({{.Version}})

-- +goose Up
-- +goose StatementBegin
SELECT 'up {{.Slug}}';
-- +goose StatementEnd

-- +goose Down
-- +goose StatementBegin
SELECT 'down {{.Slug}}';
-- +goose StatementEnd
`))
)

type migrationFile struct {
	Version int64
	Name    string
}

func slug(name string) string {
	return strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
}

// CreateSQLMigration writes <dir>/<YYYYMMDDHHMMSS>_<slug>.sql and returns its
// path. It never overwrites an existing file.
func CreateSQLMigration(dir, name string) (string, error) {
	if dir == "" {
		return "", errors.New("dir is required")
	}
	s := slug(name)
	if s == "" {
		return "", fmt.Errorf("name %q has no usable characters", name)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create dir %q: %w", dir, err)
	}

	version := time.Now().UTC().Format(versionLayout)
	var buf bytes.Buffer
	if err := skeleton.Execute(&buf, map[string]string{"Slug": s, "Version": version}); err != nil {
		return "", fmt.Errorf("render migration: %w", err)
	}

	path := filepath.Join(dir, version+"_"+s+".sql")
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("migration already exists: %s", path)
		}
		return "", fmt.Errorf("create %q: %w", path, err)
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		_ = f.Close()
		return "", fmt.Errorf("write %q: %w", path, err)
	}
	return path, f.Close()
}

// scanFS lists the .sql migrations at the root of fsys ordered by version.
func scanFS(fsys fs.FS) ([]migrationFile, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("read migrations: %w", err)
	}

	var files []migrationFile
	byVersion := map[int64]string{}
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || path.Ext(name) != ".sql" {
			continue
		}
		if !filenameRe.MatchString(name) {
			return nil, fmt.Errorf("invalid migration filename %q (expected YYYYMMDDHHMMSS_name.sql)", name)
		}
		version, err := goose.NumericComponent(name)
		if err != nil {
			return nil, fmt.Errorf("migration %q: %w", name, err)
		}
		if prev, dup := byVersion[version]; dup {
			return nil, fmt.Errorf("duplicate migration version %d in %q and %q", version, prev, name)
		}
		byVersion[version] = name
		files = append(files, migrationFile{Version: version, Name: name})
	}

	slices.SortFunc(files, func(a, b migrationFile) int { return cmp.Compare(a.Version, b.Version) })
	return files, nil
}

// ValidateDir runs ValidateFS over a directory on disk.
func ValidateDir(dir string) error {
	if dir == "" {
		return errors.New("dir is required")
	}
	if err := ValidateFS(os.DirFS(dir)); err != nil {
		return fmt.Errorf("%s: %w", dir, err)
	}
	return nil
}

// ValidateFS checks filenames, version uniqueness and that every file
// declares both goose directions.
func ValidateFS(fsys fs.FS) error {
	files, err := scanFS(fsys)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return errors.New("no migrations found")
	}
	for _, f := range files {
		body, err := fs.ReadFile(fsys, f.Name)
		if err != nil {
			return fmt.Errorf("read %q: %w", f.Name, err)
		}
		for _, marker := range []string{markerUp, markerDown} {
			if !bytes.Contains(body, []byte(marker)) {
				return fmt.Errorf("migration %q missing %q", f.Name, marker)
			}
		}
	}
	return nil
}
