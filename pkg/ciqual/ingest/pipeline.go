// Package ingest rebuilds the local Ciqual store from the upstream
// ANSES XML distribution: download, extract, parse, normalize and load
// the four datasets as one all-or-nothing transaction.
package ingest

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strconv"

	"go.uber.org/zap"

	"github.com/zzgael/ciqual-mcp/pkg/ciqual/config"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/internalerr"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/normalize"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/store"
	"github.com/zzgael/ciqual-mcp/pkg/ciqual/xmlreader"
)

// Expected archive members, 2020 distribution. The food-group file is
// the only optional one.
const (
	nutrientFile    = "const_2020_07_07.xml"
	foodFile        = "alim_2020_07_07.xml"
	compositionFile = "compo_2020_07_07.xml"
	groupFile       = "alim_grp_2020_07_07.xml"
)

var requiredFiles = []string{nutrientFile, foodFile, compositionFile}

// Pipeline rebuilds the store from the upstream archive. It is a
// single sequential operation; callers must not run two pipelines
// against the same store path concurrently.
type Pipeline struct {
	cfg    config.Config
	logger *zap.Logger
}

// NewPipeline creates a pipeline with the given configuration and logger.
func NewPipeline(cfg config.Config, logger *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, logger: logger}
}

// Run performs the full ingestion. When force is false and a fresh
// store already exists, it returns immediately. On any failure the
// previously existing store (if any) is left untouched and queryable.
func (p *Pipeline) Run(ctx context.Context, force bool) error {
	if !force && !IsStale(p.cfg.DBPath, p.cfg.MaxAge()) {
		p.logger.Info("store is up to date, skipping ingestion", zap.String("path", p.cfg.DBPath))
		return nil
	}

	scratch, err := os.MkdirTemp("", "ciqual-*")
	if err != nil {
		return fmt.Errorf("create scratch dir: %w", err)
	}
	defer os.RemoveAll(scratch)

	p.logger.Info("downloading Ciqual data", zap.String("url", p.cfg.ArchiveURL))
	archivePath := filepath.Join(scratch, "ciqual.zip")
	if err := p.download(ctx, archivePath); err != nil {
		return err
	}

	p.logger.Info("extracting data files")
	if err := extract(archivePath, scratch); err != nil {
		return err
	}

	s, err := store.Open(ctx, p.cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer s.Close()

	counts, err := s.Load(ctx, p.cfg.BatchSize, func(l *store.Loader) error {
		if err := p.loadNutrients(l, filepath.Join(scratch, nutrientFile)); err != nil {
			return err
		}
		if err := p.loadFoodGroups(l, filepath.Join(scratch, groupFile)); err != nil {
			return err
		}
		if err := p.loadFoods(l, filepath.Join(scratch, foodFile)); err != nil {
			return err
		}
		if err := p.loadComposition(l, filepath.Join(scratch, compositionFile)); err != nil {
			return err
		}
		p.logger.Info("building full-text search index")
		return l.RebuildSearchIndex()
	})
	if err != nil {
		return err
	}

	p.logger.Info("ingestion complete",
		zap.Int64("foods", counts.Foods),
		zap.Int64("nutrients", counts.Nutrients),
		zap.Int64("compositions", counts.Compositions))
	return nil
}

func (p *Pipeline) download(ctx context.Context, dest string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ArchiveURL, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrDownloadFailed, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrDownloadFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: HTTP %d from %s", internalerr.ErrDownloadFailed, resp.StatusCode, p.cfg.ArchiveURL)
	}

	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrDownloadFailed, err)
	}
	defer f.Close()

	if _, err := io.Copy(f, resp.Body); err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrDownloadFailed, err)
	}
	return nil
}

// extract unpacks the known dataset members into dir. Member paths are
// flattened to their base name, so archive layout cannot escape dir.
func extract(archivePath, dir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return fmt.Errorf("%w: %v", internalerr.ErrExtractionFailed, err)
	}
	defer r.Close()

	known := map[string]bool{
		nutrientFile:    true,
		foodFile:        true,
		compositionFile: true,
		groupFile:       true,
	}

	for _, member := range r.File {
		name := path.Base(member.Name)
		if !known[name] {
			continue
		}
		if err := extractMember(member, filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("%w: %s: %v", internalerr.ErrExtractionFailed, name, err)
		}
	}

	for _, name := range requiredFiles {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			return fmt.Errorf("%w: archive is missing %s", internalerr.ErrExtractionFailed, name)
		}
	}
	return nil
}

func extractMember(member *zip.File, dest string) error {
	src, err := member.Open()
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, src)
	return err
}

func (p *Pipeline) loadNutrients(l *store.Loader, path string) error {
	p.logger.Info("loading nutrients")
	records, err := xmlreader.ReadFile(path, "CONST")
	if err != nil {
		return err
	}

	skipped := 0
	for _, rec := range records {
		code, ok := recordCode(rec, "const_code")
		if !ok {
			skipped++
			continue
		}
		nameFr := normalize.CleanText(text(rec, "const_nom_fr"))
		nameEng := normalize.CleanText(text(rec, "const_nom_eng"))
		unit := normalize.ExtractUnit(nameFr, nameEng)
		if err := l.UpsertNutrient(code, nameFr, nameEng, unit); err != nil {
			return err
		}
	}
	if skipped > 0 {
		p.logger.Debug("skipped nutrient records without a code", zap.Int("count", skipped))
	}
	return nil
}

// loadFoodGroups is an optional phase: an absent source file is
// skipped silently.
func (p *Pipeline) loadFoodGroups(l *store.Loader, path string) error {
	if _, err := os.Stat(path); err != nil {
		p.logger.Debug("food group file absent, skipping", zap.String("path", path))
		return nil
	}

	p.logger.Info("loading food groups")
	records, err := xmlreader.ReadFile(path, "ALIM_GRP")
	if err != nil {
		return err
	}

	for _, rec := range records {
		code := normalize.CleanText(text(rec, "alim_grp_code"))
		if code == "" {
			continue
		}
		nameFr := normalize.CleanText(text(rec, "alim_grp_nom_fr"))
		nameEng := normalize.CleanText(text(rec, "alim_grp_nom_eng"))
		if err := l.UpsertFoodGroup(code, nameFr, nameEng); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) loadFoods(l *store.Loader, path string) error {
	p.logger.Info("loading foods")
	records, err := xmlreader.ReadFile(path, "ALIM")
	if err != nil {
		return err
	}

	loaded := 0
	for _, rec := range records {
		code, ok := recordCode(rec, "alim_code")
		if !ok {
			continue
		}
		nameFr := normalize.CleanText(text(rec, "alim_nom_fr"))
		nameEng := normalize.CleanText(text(rec, "alim_nom_eng"))
		groupCode := normalize.CleanText(text(rec, "alim_grp_code"))
		if err := l.UpsertFood(code, nameFr, nameEng, groupCode); err != nil {
			return err
		}
		loaded++
	}
	p.logger.Info("loaded foods", zap.Int("count", loaded))
	return nil
}

func (p *Pipeline) loadComposition(l *store.Loader, path string) error {
	p.logger.Info("loading nutritional composition data")
	records, err := xmlreader.ReadFile(path, "COMPO")
	if err != nil {
		return err
	}

	loaded, skipped := 0, 0
	for _, rec := range records {
		foodCode, okFood := recordCode(rec, "alim_code")
		nutrientCode, okNutrient := recordCode(rec, "const_code")
		if !okFood || !okNutrient {
			skipped++
			continue
		}
		// A composition row only exists when a numeric value was
		// obtainable; "-" and "traces" rows are dropped, not nulled.
		value, ok := normalize.ParseNumber(text(rec, "teneur"))
		if !ok {
			skipped++
			continue
		}
		confidence := normalize.CleanText(text(rec, "code_confiance"))
		if err := l.AddComposition(foodCode, nutrientCode, value, confidence); err != nil {
			return err
		}
		loaded++
	}
	p.logger.Info("loaded composition values", zap.Int("count", loaded), zap.Int("skipped", skipped))
	return nil
}

func text(rec xmlreader.Record, tag string) string {
	v, _ := rec.Text(tag)
	return v
}

// recordCode extracts an integer identifier field; false when the
// field is absent, empty or non-numeric.
func recordCode(rec xmlreader.Record, tag string) (int64, bool) {
	raw := normalize.CleanText(text(rec, tag))
	if raw == "" {
		return 0, false
	}
	code, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false
	}
	return code, true
}
