package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/danieljhkim/docsnap/internal/codec"
	"github.com/danieljhkim/docsnap/internal/config"
	"github.com/danieljhkim/docsnap/internal/docstore"
	"github.com/danieljhkim/docsnap/internal/executor"
	"github.com/danieljhkim/docsnap/internal/storepath"
)

// Backup copies every document reachable from the start path into a tree of
// tagged JSON files under req.BackupPath.
//
// The hierarchy is enumerated depth first before any document is read; the
// read-encode-write of each document then runs through the executor. The first
// failure stops the run and leaves the files already written in place.
func (e *Engine) Backup(ctx context.Context, req *BackupRequest) (*BackupResult, error) {
	start, err := storepath.Parse(req.StartPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidStartPath, err)
	}

	result := &BackupResult{
		RunID:     e.newID(),
		StartedAt: e.clock.Now(),
		DryRun:    req.DryRun,
	}
	logger.Infof("backup %s: walking %q into %s", result.RunID, start, req.BackupPath)

	w := &backupWalker{engine: e, excluded: excludeSet(req.ExcludeCollections)}
	docs, err := w.enumerate(ctx, start)
	if err != nil {
		return nil, e.finish(OpBackup, result.StartedAt, err)
	}
	result.Skipped = w.skipped

	var t tally
	if req.DryRun {
		for _, doc := range docs {
			t.done(doc.String(), 0)
		}
	} else {
		if err := e.fs.MkdirAll(req.BackupPath, 0755); err != nil {
			return nil, e.finish(OpBackup, result.StartedAt, fmt.Errorf("failed to create backup directory: %w", err))
		}
		limit := config.EffectiveRequestLimit(req.RequestCountLimit)
		err = executor.Run(ctx, docs, limit, func(ctx context.Context, doc storepath.Path) error {
			return e.backupDocument(ctx, doc, req, &t)
		})
		if err != nil {
			return nil, e.finish(OpBackup, result.StartedAt, err)
		}
	}

	result.Paths = t.sortedPaths()
	result.Documents = len(result.Paths)
	result.Missing = t.missing
	result.DroppedFields = t.dropped
	result.Duration = e.clock.Now().Sub(result.StartedAt)
	_ = e.finish(OpBackup, result.StartedAt, nil)

	logger.Infof("backup %s: %d documents written, %d without data, %d fields dropped",
		result.RunID, result.Documents, result.Missing, result.DroppedFields)
	return result, nil
}

// backupDocument is the work item for one document: read, encode, write.
func (e *Engine) backupDocument(ctx context.Context, doc storepath.Path, req *BackupRequest, t *tally) error {
	data, err := e.store.Get(ctx, doc)
	if errors.Is(err, docstore.ErrNotFound) {
		logger.Debugf("%s has no data of its own", doc)
		e.metrics.document(OpBackup, OutcomeMissing)
		t.miss()
		return nil
	}
	if err != nil {
		e.metrics.document(OpBackup, OutcomeFailed)
		return fmt.Errorf("failed to read %s: %w", doc, err)
	}

	tagged, dropped := codec.Encode(data)
	body, err := codec.Marshal(tagged, req.PrettyPrint)
	if err != nil {
		e.metrics.document(OpBackup, OutcomeFailed)
		return fmt.Errorf("failed to encode %s: %w", doc, err)
	}

	file := storepath.DocumentFile(doc, req.BackupPath)
	if err := e.fs.AtomicWrite(file, body, 0644); err != nil {
		e.metrics.document(OpBackup, OutcomeFailed)
		return fmt.Errorf("failed to write %s: %w", file, err)
	}

	e.metrics.document(OpBackup, OutcomeWritten)
	e.metrics.droppedFields(OpBackup, len(dropped))
	t.done(doc.String(), len(dropped))
	logger.Debugf("wrote %s", file)
	return nil
}

// backupWalker enumerates the document paths below a start path.
type backupWalker struct {
	engine   *Engine
	excluded map[string]bool
	docs     []storepath.Path
	skipped  int
}

func (w *backupWalker) enumerate(ctx context.Context, start storepath.Path) ([]storepath.Path, error) {
	for _, id := range start.CollectionIDs() {
		if w.excluded[id] {
			logger.Infof("start path %q lies in excluded collection %q", start, id)
			return nil, nil
		}
	}

	var err error
	switch {
	case start.IsRoot():
		err = w.walkChildren(ctx, start)
	case start.IsCollection():
		err = w.walkCollection(ctx, start)
	default:
		w.docs = append(w.docs, start)
		err = w.walkChildren(ctx, start)
	}
	if err != nil {
		return nil, err
	}
	return w.docs, nil
}

// walkChildren visits the sub-collections of parent, which is the root or a
// document.
func (w *backupWalker) walkChildren(ctx context.Context, parent storepath.Path) error {
	ids, err := w.engine.store.ListCollections(ctx, parent)
	if err != nil {
		return fmt.Errorf("failed to list collections of %q: %w", parent, err)
	}
	for _, id := range ids {
		if w.excluded[id] {
			logger.Debugf("excluding %s", parent.Child(id))
			continue
		}
		if !w.usable(parent, id) {
			continue
		}
		if err := w.walkCollection(ctx, parent.Child(id)); err != nil {
			return err
		}
	}
	return nil
}

func (w *backupWalker) walkCollection(ctx context.Context, collection storepath.Path) error {
	ids, err := w.engine.store.ListDocuments(ctx, collection)
	if err != nil {
		return fmt.Errorf("failed to list documents of %q: %w", collection, err)
	}
	for _, id := range ids {
		if !w.usable(collection, id) {
			continue
		}
		doc := collection.Child(id)
		w.docs = append(w.docs, doc)
		if err := w.walkChildren(ctx, doc); err != nil {
			return err
		}
	}
	return nil
}

// usable reports whether id can name a directory. Unusable ids are skipped
// together with everything below them.
func (w *backupWalker) usable(parent storepath.Path, id string) bool {
	if err := w.engine.fs.ValidateIdentifier(id); err != nil {
		logger.Warningf("skipping %q under %q: %v", id, parent, err)
		w.engine.metrics.document(OpBackup, OutcomeSkipped)
		w.skipped++
		return false
	}
	return true
}
