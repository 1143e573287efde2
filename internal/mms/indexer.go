package mms

import (
	"bytes"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/graaaaa/sms900/internal/appinfo"
)

// Index file names.
const (
	LocalIndexName  = appinfo.LocalIndexFileName
	GlobalIndexName = appinfo.GlobalIndexFileName

	ctimeLayout = "2006-01-02 15:04:05"
)

var (
	imageExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".gif": true}
	textExts  = map[string]bool{".txt": true}
)

type indexFile struct {
	Name    string
	RelPath string
}

type indexEntry struct {
	RelPath  string
	Ctime    string
	modTime  time.Time
	Images   []indexFile
	Texts    [][]string
	AllFiles []indexFile
}

// Indexer renders HTML indexes for stored messages.
type Indexer struct {
	root   string
	local  *template.Template
	global *template.Template
	logger *slog.Logger
}

// NewIndexer parses the local-index.html and global-index.html templates
// from templates.
func NewIndexer(root string, templates fs.FS, logger *slog.Logger) (*Indexer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	local, err := template.ParseFS(templates, "local-index.html")
	if err != nil {
		return nil, fmt.Errorf("parse local index template: %w", err)
	}
	global, err := template.ParseFS(templates, "global-index.html")
	if err != nil {
		return nil, fmt.Errorf("parse global index template: %w", err)
	}
	return &Indexer{root: root, local: local, global: global, logger: logger}, nil
}

// GenerateLocalIndex writes index.html into the message directory dir.
func (ix *Indexer) GenerateLocalIndex(dir string) error {
	entry, err := ix.scan(dir, "")
	if err != nil {
		return err
	}
	return ix.render(ix.local, entry, filepath.Join(dir, LocalIndexName))
}

// GenerateGlobalIndex writes mms.html listing every message, newest first.
func (ix *Indexer) GenerateGlobalIndex() error {
	dirs, err := os.ReadDir(ix.root)
	if err != nil {
		return fmt.Errorf("read media root: %w", err)
	}

	var all []*indexEntry
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		entry, err := ix.scan(filepath.Join(ix.root, d.Name()), d.Name())
		if err != nil {
			ix.logger.Warn("skipping media directory", "dir", d.Name(), "error", err)
			continue
		}
		if len(entry.AllFiles) == 0 {
			continue
		}
		all = append(all, entry)
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].modTime.After(all[j].modTime) })

	return ix.render(ix.global, struct{ All []*indexEntry }{all}, filepath.Join(ix.root, GlobalIndexName))
}

// ReindexAll regenerates every local index and the global index. It
// returns the number of message directories indexed.
func (ix *Indexer) ReindexAll() (int, error) {
	if err := os.MkdirAll(ix.root, 0o755); err != nil {
		return 0, fmt.Errorf("create media root: %w", err)
	}
	dirs, err := os.ReadDir(ix.root)
	if err != nil {
		return 0, fmt.Errorf("read media root: %w", err)
	}

	n := 0
	for _, d := range dirs {
		if !d.IsDir() {
			continue
		}
		if err := ix.GenerateLocalIndex(filepath.Join(ix.root, d.Name())); err != nil {
			return n, err
		}
		n++
	}
	if err := ix.GenerateGlobalIndex(); err != nil {
		return n, err
	}
	ix.logger.Info("media reindexed", "directories", n)
	return n, nil
}

func (ix *Indexer) scan(dir, prefix string) (*indexEntry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", dir, err)
	}

	entry := &indexEntry{RelPath: prefix}
	for _, f := range files {
		if !f.Type().IsRegular() || f.Name() == LocalIndexName {
			continue
		}
		info, err := f.Info()
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", f.Name(), err)
		}
		if entry.Ctime == "" {
			entry.modTime = info.ModTime()
			entry.Ctime = entry.modTime.Format(ctimeLayout)
		}

		file := indexFile{Name: f.Name(), RelPath: f.Name()}
		if prefix != "" {
			file.RelPath = path.Join(prefix, f.Name())
		}
		entry.AllFiles = append(entry.AllFiles, file)

		ext := strings.ToLower(filepath.Ext(f.Name()))
		switch {
		case imageExts[ext]:
			entry.Images = append(entry.Images, file)
		case textExts[ext]:
			data, err := os.ReadFile(filepath.Join(dir, f.Name()))
			if err != nil {
				ix.logger.Warn("failed to read text file", "file", f.Name(), "error", err)
				continue
			}
			entry.Texts = append(entry.Texts, strings.Split(strings.TrimRight(string(data), "\n"), "\n"))
		}
	}
	return entry, nil
}

func (ix *Indexer) render(t *template.Template, data any, dst string) error {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s: %w", filepath.Base(dst), err)
	}
	if err := os.WriteFile(dst, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
