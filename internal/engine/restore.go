package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/danieljhkim/docsnap/internal/codec"
	"github.com/danieljhkim/docsnap/internal/config"
	"github.com/danieljhkim/docsnap/internal/executor"
	"github.com/danieljhkim/docsnap/internal/fsops"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

// Restore writes the documents of a backup tree back to the store.
//
// The tree is scanned and filtered up front. Each selected file is then read,
// decoded with references bound to the destination store, and set at the
// document path given by its directory. The first failure stops the run; the
// documents already set stay set.
func (e *Engine) Restore(ctx context.Context, req *RestoreRequest) (*RestoreResult, error) {
	scope, err := storepath.Parse(req.StartPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStartPath, err)
	}

	result := &RestoreResult{
		RunID:     e.newID(),
		StartedAt: e.clock.Now(),
		DryRun:    req.DryRun,
	}
	logger.Infof("restore %s: reading %s for %q", result.RunID, req.BackupPath, scope)

	tree, err := fsops.Scan(e.fs, req.BackupPath)
	if err != nil {
		return nil, e.finish(OpRestore, result.StartedAt, fmt.Errorf("failed to scan backup: %w", err))
	}

	sel := &restoreSelection{
		engine:   e,
		root:     req.BackupPath,
		scope:    scope,
		excluded: excludeSet(req.ExcludeCollections),
	}
	sel.collect(tree, storepath.Root)
	result.Skipped = sel.skipped

	var t tally
	limit := config.EffectiveRequestLimit(req.RequestCountLimit)
	err = executor.Run(ctx, sel.files, limit, func(ctx context.Context, f documentFile) error {
		return e.restoreDocument(ctx, f, req, &t)
	})
	if err != nil {
		return nil, e.finish(OpRestore, result.StartedAt, err)
	}

	result.Paths = t.sortedPaths()
	result.Documents = len(result.Paths)
	result.DroppedFields = t.dropped
	result.Duration = e.clock.Now().Sub(result.StartedAt)
	_ = e.finish(OpRestore, result.StartedAt, nil)

	logger.Infof("restore %s: %d documents written, %d files skipped, %d fields dropped",
		result.RunID, result.Documents, result.Skipped, result.DroppedFields)
	return result, nil
}

// restoreDocument is the work item for one file: read, decode, set.
func (e *Engine) restoreDocument(ctx context.Context, f documentFile, req *RestoreRequest, t *tally) error {
	data, err := e.fs.ReadFile(f.file)
	if err != nil {
		e.metrics.document(OpRestore, OutcomeFailed)
		return fmt.Errorf("failed to read %s: %w", f.file, err)
	}

	tagged, err := codec.Unmarshal(data)
	if err != nil {
		e.metrics.document(OpRestore, OutcomeFailed)
		return fmt.Errorf("%w: %s: %v", ErrInvalidBackup, f.file, err)
	}

	native, dropped := codec.Decode(tagged, e.store)
	if !req.DryRun {
		if err := e.store.Set(ctx, f.doc, native); err != nil {
			e.metrics.document(OpRestore, OutcomeFailed)
			return fmt.Errorf("failed to write %s: %w", f.doc, err)
		}
		e.metrics.document(OpRestore, OutcomeWritten)
		e.metrics.droppedFields(OpRestore, len(dropped))
	}

	t.done(f.doc.String(), len(dropped))
	logger.Debugf("restored %s from %s", f.doc, f.file)
	return nil
}

// documentFile pairs a body file with the document it restores.
type documentFile struct {
	file string
	doc  storepath.Path
}

// restoreSelection walks a scanned tree and keeps the document files inside
// the restore scope.
type restoreSelection struct {
	engine   *Engine
	root     string
	scope    storepath.Path
	excluded map[string]bool
	files    []documentFile
	skipped  int
}

func (s *restoreSelection) collect(dir fsops.Dir, at storepath.Path) {
	for _, child := range dir.Children {
		switch n := child.(type) {
		case fsops.File:
			s.collectFile(n, at)
		case fsops.Dir:
			if err := s.engine.fs.ValidateIdentifier(n.Name); err != nil {
				s.skip(n.FullPath, err)
				continue
			}
			sub := at.Child(n.Name)
			if s.pruned(sub) {
				continue
			}
			s.collect(n, sub)
		}
	}
}

func (s *restoreSelection) collectFile(f fsops.File, at storepath.Path) {
	if strings.HasPrefix(f.Name, fsops.TempPrefix) || filepath.Ext(f.Name) != storepath.DocumentFileExt {
		return
	}

	doc, err := storepath.FromDocumentFile(f.FullPath, s.root)
	if err != nil {
		s.skip(f.FullPath, err)
		return
	}
	if f.Name != doc.ID()+storepath.DocumentFileExt {
		s.skip(f.FullPath, fmt.Errorf("file name does not match document %q", doc))
		return
	}
	if !doc.Equal(at) {
		s.skip(f.FullPath, fmt.Errorf("file maps to %q, expected %q", doc, at))
		return
	}
	if !doc.HasPrefix(s.scope) {
		return
	}
	s.files = append(s.files, documentFile{file: f.FullPath, doc: doc})
}

// pruned reports whether nothing at or below p can be restored.
func (s *restoreSelection) pruned(p storepath.Path) bool {
	if !p.HasPrefix(s.scope) && !s.scope.HasPrefix(p) {
		return true
	}
	if p.IsCollection() && s.excluded[p.ID()] {
		logger.Debugf("excluding %s", p)
		return true
	}
	return false
}

func (s *restoreSelection) skip(path string, err error) {
	logger.Warningf("skipping %s: %v", path, err)
	s.engine.metrics.document(OpRestore, OutcomeSkipped)
	s.skipped++
}
