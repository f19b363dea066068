// Package archive reads the collector's output tree: line-delimited index
// manifests, extracted document text, and media transcripts. The tree is
// strictly read-only from the pipeline's perspective.
package archive

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// SourceKind classifies an archive file.
type SourceKind string

const (
	KindDocument   SourceKind = "document"
	KindTranscript SourceKind = "transcript"
)

// IndexRecord is one line of a collector manifest (JSONL).
type IndexRecord struct {
	Path        string    `json:"path"`
	Title       string    `json:"title,omitempty"`
	URL         string    `json:"url,omitempty"`
	Kind        string    `json:"kind,omitempty"`
	RetrievedAt time.Time `json:"retrievedAt,omitempty"`
	Summary     string    `json:"summary,omitempty"`
}

// Source is one loaded archive file plus its manifest metadata.
type Source struct {
	// Path is relative to the archive root.
	Path string

	Kind    SourceKind
	Content string

	// Hash is the hex sha256 of the file contents. Fingerprints are built
	// from these, never from paths or mtimes.
	Hash string

	Title       string
	URL         string
	Summary     string
	RetrievedAt time.Time
}

// Tree is a loaded archive: every source plus the manifest records that
// described them, ordered by path for determinism.
type Tree struct {
	Root    string
	Sources []Source
	Records []IndexRecord
}

// readConcurrency bounds parallel file reads during Load.
const readConcurrency = 8

// Load scans root for manifests and content files and reads them all.
// Manifest metadata is joined onto sources by relative path. File reads run
// concurrently and are fully joined before Load returns.
func Load(ctx context.Context, root string) (*Tree, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("archive: resolve root %s: %w", root, err)
	}

	var contentPaths []string
	var manifestPaths []string

	err = filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch {
		case strings.HasSuffix(path, ".jsonl"):
			manifestPaths = append(manifestPaths, path)
		case strings.HasSuffix(path, ".txt"), strings.HasSuffix(path, ".md"):
			contentPaths = append(contentPaths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("archive: walk %s: %w", absRoot, err)
	}

	if len(contentPaths) == 0 {
		return nil, fmt.Errorf("archive: no readable sources under %s", absRoot)
	}

	// Manifests are small; read them serially.
	var records []IndexRecord
	for _, p := range manifestPaths {
		recs, err := readManifest(p)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	byPath := make(map[string]IndexRecord, len(records))
	for _, rec := range records {
		byPath[filepath.ToSlash(rec.Path)] = rec
	}

	sources := make([]Source, len(contentPaths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(readConcurrency)

	for i, p := range contentPaths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			src, err := loadSource(absRoot, p, byPath)
			if err != nil {
				return err
			}
			sources[i] = *src
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(sources, func(i, j int) bool { return sources[i].Path < sources[j].Path })

	return &Tree{Root: absRoot, Sources: sources, Records: records}, nil
}

// loadSource reads one content file and attaches manifest metadata.
func loadSource(root, path string, byPath map[string]IndexRecord) (*Source, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("archive: read %s: %w", path, err)
	}

	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, fmt.Errorf("archive: relativize %s: %w", path, err)
	}
	rel = filepath.ToSlash(rel)

	src := Source{
		Path:    rel,
		Kind:    kindForPath(rel),
		Content: string(data),
		Hash:    HashBytes(data),
	}

	if rec, ok := byPath[rel]; ok {
		src.Title = rec.Title
		src.URL = rec.URL
		src.Summary = rec.Summary
		src.RetrievedAt = rec.RetrievedAt
		if rec.Kind == string(KindTranscript) {
			src.Kind = KindTranscript
		}
	}

	return &src, nil
}

// kindForPath classifies a source by its location in the tree. Transcript
// files live under a "transcripts" directory by collector convention.
func kindForPath(rel string) SourceKind {
	for _, part := range strings.Split(rel, "/") {
		if part == "transcripts" {
			return KindTranscript
		}
	}
	return KindDocument
}

// readManifest parses one JSONL manifest. Blank lines are skipped; a
// malformed line fails the load rather than silently dropping metadata.
func readManifest(path string) ([]IndexRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open manifest %s: %w", path, err)
	}
	defer f.Close()

	var records []IndexRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var rec IndexRecord
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			return nil, fmt.Errorf("archive: manifest %s line %d: %w", path, lineNo, err)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("archive: scan manifest %s: %w", path, err)
	}
	return records, nil
}

// HashBytes returns the hex sha256 of data.
func HashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentHashes returns (path, hash) pairs for every source, ordered by
// path. This is the archive's contribution to stage fingerprints.
func (t *Tree) ContentHashes() []string {
	pairs := make([]string, 0, len(t.Sources))
	for _, s := range t.Sources {
		pairs = append(pairs, s.Path+"="+s.Hash)
	}
	return pairs
}
