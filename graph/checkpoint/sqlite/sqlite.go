//
// Tencent is pleased to support the open source community by making trpc-agent-go available.
//
// Copyright (C) 2025 Tencent.  All rights reserved.
//
// trpc-agent-go is licensed under the Apache License Version 2.0.
//
//

// Package sqlite provides SQLite-based checkpoint storage implementation
// for graph execution state persistence and recovery.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"trpc.group/trpc-go/trpc-graph-go/graph"
)

const (
	sqliteCreateCheckpoints = "CREATE TABLE IF NOT EXISTS checkpoints (" +
		"lineage_id TEXT NOT NULL, " +
		"checkpoint_ns TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"parent_checkpoint_id TEXT, " +
		"ts INTEGER NOT NULL, " +
		"checkpoint_json BLOB NOT NULL, " +
		"metadata_json BLOB NOT NULL, " +
		"PRIMARY KEY (lineage_id, checkpoint_ns, checkpoint_id)" +
		")"

	sqliteCreateWrites = "CREATE TABLE IF NOT EXISTS checkpoint_writes (" +
		"lineage_id TEXT NOT NULL, " +
		"checkpoint_ns TEXT NOT NULL, " +
		"checkpoint_id TEXT NOT NULL, " +
		"task_id TEXT NOT NULL, " +
		"idx INTEGER NOT NULL, " +
		"channel TEXT NOT NULL, " +
		"value_json BLOB NOT NULL, " +
		"seq INTEGER NOT NULL, " +
		"PRIMARY KEY (lineage_id, checkpoint_ns, checkpoint_id, task_id, idx)" +
		")"

	sqliteInsertCheckpoint = "INSERT OR REPLACE INTO checkpoints (" +
		"lineage_id, checkpoint_ns, checkpoint_id, parent_checkpoint_id, ts, " +
		"checkpoint_json, metadata_json) VALUES (?, ?, ?, ?, ?, ?, ?)"

	sqliteSelectLatest = "SELECT checkpoint_id, parent_checkpoint_id, checkpoint_json, metadata_json " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? " +
		"ORDER BY ts DESC, rowid DESC LIMIT 1"

	sqliteSelectByID = "SELECT checkpoint_id, parent_checkpoint_id, checkpoint_json, metadata_json " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? LIMIT 1"

	sqliteSelectList = "SELECT checkpoint_id, parent_checkpoint_id, checkpoint_json, metadata_json " +
		"FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? AND ts < ? " +
		"ORDER BY ts DESC, rowid DESC"

	sqliteSelectTS = "SELECT ts FROM checkpoints " +
		"WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? LIMIT 1"

	sqliteSelectIDsOverLimit = "SELECT checkpoint_id FROM checkpoints " +
		"WHERE lineage_id = ? AND checkpoint_ns = ? ORDER BY ts DESC, rowid DESC LIMIT -1 OFFSET ?"

	sqliteNextWriteIdx = "SELECT COALESCE(MAX(idx) + 1, 0) FROM checkpoint_writes " +
		"WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? AND task_id = ?"

	sqliteInsertWrite = "INSERT OR REPLACE INTO checkpoint_writes (" +
		"lineage_id, checkpoint_ns, checkpoint_id, task_id, idx, channel, value_json, seq) " +
		"VALUES (?, ?, ?, ?, ?, ?, ?, ?)"

	sqliteSelectWrites = "SELECT task_id, channel, value_json, seq FROM checkpoint_writes " +
		"WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ? ORDER BY rowid"

	sqliteDeleteCheckpoint    = "DELETE FROM checkpoints WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?"
	sqliteDeleteWrites        = "DELETE FROM checkpoint_writes WHERE lineage_id = ? AND checkpoint_ns = ? AND checkpoint_id = ?"
	sqliteDeleteLineageCkpts  = "DELETE FROM checkpoints WHERE lineage_id = ?"
	sqliteDeleteLineageWrites = "DELETE FROM checkpoint_writes WHERE lineage_id = ?"
)

// maxTS sorts after every stored timestamp.
const maxTS = int64(^uint64(0) >> 1)

// Saver is a SQLite-backed implementation of CheckpointSaver.
// It expects an initialized *sql.DB and will create the required schema.
// Checkpoints and metadata are stored as JSON blobs.
type Saver struct {
	db                       *sql.DB
	maxCheckpointsPerLineage int
}

// NewSaver creates a new saver using the provided DB.
// The DB must use a SQLite driver. The constructor creates tables if needed.
func NewSaver(db *sql.DB) (*Saver, error) {
	if db == nil {
		return nil, errors.New("db is nil")
	}
	if _, err := db.Exec(sqliteCreateCheckpoints); err != nil {
		return nil, fmt.Errorf("create checkpoints table: %w", err)
	}
	if _, err := db.Exec(sqliteCreateWrites); err != nil {
		return nil, fmt.Errorf("create writes table: %w", err)
	}
	return &Saver{db: db}, nil
}

// WithMaxCheckpointsPerLineage bounds the checkpoints kept per lineage and
// namespace. Zero keeps everything.
func (s *Saver) WithMaxCheckpointsPerLineage(max int) *Saver {
	s.maxCheckpointsPerLineage = max
	return s
}

// GetTuple returns the checkpoint tuple for the given config, nil when
// nothing is stored.
func (s *Saver) GetTuple(ctx context.Context, config *graph.CheckpointConfig) (*graph.CheckpointTuple, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	var row *sql.Row
	if config.CheckpointID == "" {
		row = s.db.QueryRowContext(ctx, sqliteSelectLatest, config.LineageID, config.Namespace)
	} else {
		row = s.db.QueryRowContext(ctx, sqliteSelectByID, config.LineageID, config.Namespace, config.CheckpointID)
	}
	tuple, err := s.scanTuple(config, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadWrites(ctx, tuple); err != nil {
		return nil, err
	}
	return tuple, nil
}

// List returns checkpoints for the lineage and namespace, newest first.
func (s *Saver) List(
	ctx context.Context,
	config *graph.CheckpointConfig,
	filter *graph.CheckpointFilter,
) ([]*graph.CheckpointTuple, error) {
	if err := validate(config); err != nil {
		return nil, err
	}
	before := maxTS
	if filter != nil && filter.Before != nil && filter.Before.CheckpointID != "" {
		row := s.db.QueryRowContext(ctx, sqliteSelectTS, config.LineageID, config.Namespace, filter.Before.CheckpointID)
		if err := row.Scan(&before); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, nil
			}
			return nil, fmt.Errorf("select before ts: %w", err)
		}
	}

	rows, err := s.db.QueryContext(ctx, sqliteSelectList, config.LineageID, config.Namespace, before)
	if err != nil {
		return nil, fmt.Errorf("select checkpoints: %w", err)
	}
	defer rows.Close()

	var results []*graph.CheckpointTuple
	for rows.Next() {
		tuple, err := s.scanTuple(config, rows)
		if err != nil {
			return nil, err
		}
		if !matchesMetadataFilter(tuple, filter) {
			continue
		}
		results = append(results, tuple)
		if filter != nil && filter.Limit > 0 && len(results) == filter.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iter checkpoints: %w", err)
	}
	rows.Close()

	for _, tuple := range results {
		if err := s.loadWrites(ctx, tuple); err != nil {
			return nil, err
		}
	}
	return results, nil
}

// Put stores a checkpoint and its pending writes in a single transaction.
func (s *Saver) Put(ctx context.Context, req graph.PutRequest) (*graph.CheckpointConfig, error) {
	if err := validate(req.Config); err != nil {
		return nil, err
	}
	if req.Checkpoint == nil {
		return nil, graph.ErrCheckpointRequired
	}
	checkpointJSON, err := json.Marshal(req.Checkpoint)
	if err != nil {
		return nil, fmt.Errorf("marshal checkpoint: %w", err)
	}
	metadataJSON, err := json.Marshal(req.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	lineageID, namespace, checkpointID := req.Config.LineageID, req.Config.Namespace, req.Checkpoint.ID

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	// Use UnixNano for better precision in ordering.
	ts := req.Checkpoint.Timestamp.UnixNano()
	if req.Checkpoint.Timestamp.IsZero() {
		ts = time.Now().UTC().UnixNano()
	}
	if _, err := tx.ExecContext(ctx, sqliteInsertCheckpoint,
		lineageID, namespace, checkpointID, req.Checkpoint.ParentCheckpointID,
		ts, checkpointJSON, metadataJSON,
	); err != nil {
		return nil, fmt.Errorf("insert checkpoint: %w", err)
	}
	if _, err := tx.ExecContext(ctx, sqliteDeleteWrites, lineageID, namespace, checkpointID); err != nil {
		return nil, fmt.Errorf("reset writes: %w", err)
	}
	cfg := graph.NewCheckpointConfig(lineageID).WithNamespace(namespace).WithCheckpointID(checkpointID)
	if err := insertWrites(ctx, tx, cfg, "", req.PendingWrites); err != nil {
		return nil, err
	}
	if err := s.cleanup(ctx, tx, lineageID, namespace); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return cfg, nil
}

// PutWrites appends the writes of a task to a stored checkpoint.
func (s *Saver) PutWrites(ctx context.Context, req graph.PutWritesRequest) error {
	if req.Config == nil {
		return graph.ErrConfigRequired
	}
	if req.Config.LineageID == "" || req.Config.CheckpointID == "" {
		return graph.ErrLineageIDAndCheckpointIDRequired
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	var ts int64
	row := tx.QueryRowContext(ctx, sqliteSelectTS, req.Config.LineageID, req.Config.Namespace, req.Config.CheckpointID)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return graph.ErrCheckpointNotFound
		}
		return fmt.Errorf("select checkpoint: %w", err)
	}
	if err := insertWrites(ctx, tx, req.Config, req.TaskID, req.Writes); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// DeleteLineage deletes all checkpoints and writes for the lineage.
func (s *Saver) DeleteLineage(ctx context.Context, lineageID string) error {
	if lineageID == "" {
		return graph.ErrLineageIDRequired
	}
	if _, err := s.db.ExecContext(ctx, sqliteDeleteLineageCkpts, lineageID); err != nil {
		return fmt.Errorf("delete checkpoints: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, sqliteDeleteLineageWrites, lineageID); err != nil {
		return fmt.Errorf("delete writes: %w", err)
	}
	return nil
}

// Close closes the underlying DB.
func (s *Saver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func validate(config *graph.CheckpointConfig) error {
	if config == nil {
		return graph.ErrConfigRequired
	}
	if config.LineageID == "" {
		return graph.ErrLineageIDRequired
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func (s *Saver) scanTuple(config *graph.CheckpointConfig, row scanner) (*graph.CheckpointTuple, error) {
	var (
		checkpointID   string
		parentID       sql.NullString
		checkpointJSON []byte
		metadataJSON   []byte
	)
	if err := row.Scan(&checkpointID, &parentID, &checkpointJSON, &metadataJSON); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan checkpoint: %w", err)
	}
	var ckpt graph.Checkpoint
	if err := json.Unmarshal(checkpointJSON, &ckpt); err != nil {
		return nil, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	var meta *graph.CheckpointMetadata
	if err := json.Unmarshal(metadataJSON, &meta); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	tuple := &graph.CheckpointTuple{
		Config: graph.NewCheckpointConfig(config.LineageID).
			WithNamespace(config.Namespace).
			WithCheckpointID(checkpointID),
		Checkpoint: &ckpt,
		Metadata:   meta,
	}
	if parentID.Valid && parentID.String != "" {
		tuple.ParentConfig = graph.NewCheckpointConfig(config.LineageID).
			WithNamespace(config.Namespace).
			WithCheckpointID(parentID.String)
	}
	return tuple, nil
}

func (s *Saver) loadWrites(ctx context.Context, tuple *graph.CheckpointTuple) error {
	rows, err := s.db.QueryContext(ctx, sqliteSelectWrites,
		tuple.Config.LineageID, tuple.Config.Namespace, tuple.Config.CheckpointID)
	if err != nil {
		return fmt.Errorf("select writes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			w         graph.PendingWrite
			valueJSON []byte
		)
		if err := rows.Scan(&w.TaskID, &w.Channel, &valueJSON, &w.Sequence); err != nil {
			return fmt.Errorf("scan write: %w", err)
		}
		if err := json.Unmarshal(valueJSON, &w.Value); err != nil {
			return fmt.Errorf("unmarshal write value: %w", err)
		}
		tuple.PendingWrites = append(tuple.PendingWrites, w)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iter writes: %w", err)
	}
	return nil
}

func insertWrites(
	ctx context.Context,
	tx *sql.Tx,
	cfg *graph.CheckpointConfig,
	taskID string,
	writes []graph.PendingWrite,
) error {
	next := make(map[string]int)
	for _, w := range writes {
		if w.TaskID == "" {
			w.TaskID = taskID
		}
		idx, ok := next[w.TaskID]
		if !ok {
			row := tx.QueryRowContext(ctx, sqliteNextWriteIdx, cfg.LineageID, cfg.Namespace, cfg.CheckpointID, w.TaskID)
			if err := row.Scan(&idx); err != nil {
				return fmt.Errorf("select write index: %w", err)
			}
		}
		next[w.TaskID] = idx + 1

		valueJSON, err := json.Marshal(w.StorableValue())
		if err != nil {
			return fmt.Errorf("marshal write value: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqliteInsertWrite,
			cfg.LineageID, cfg.Namespace, cfg.CheckpointID, w.TaskID, idx, w.Channel, valueJSON, w.Sequence,
		); err != nil {
			return fmt.Errorf("insert write: %w", err)
		}
	}
	return nil
}

// cleanup removes the oldest checkpoints beyond the configured maximum.
func (s *Saver) cleanup(ctx context.Context, tx *sql.Tx, lineageID, namespace string) error {
	if s.maxCheckpointsPerLineage <= 0 {
		return nil
	}
	rows, err := tx.QueryContext(ctx, sqliteSelectIDsOverLimit, lineageID, namespace, s.maxCheckpointsPerLineage)
	if err != nil {
		return fmt.Errorf("select old checkpoints: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return fmt.Errorf("scan old checkpoint: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iter old checkpoints: %w", err)
	}
	for _, id := range ids {
		if _, err := tx.ExecContext(ctx, sqliteDeleteCheckpoint, lineageID, namespace, id); err != nil {
			return fmt.Errorf("delete old checkpoint: %w", err)
		}
		if _, err := tx.ExecContext(ctx, sqliteDeleteWrites, lineageID, namespace, id); err != nil {
			return fmt.Errorf("delete old writes: %w", err)
		}
	}
	return nil
}

func matchesMetadataFilter(tuple *graph.CheckpointTuple, filter *graph.CheckpointFilter) bool {
	if filter == nil {
		return true
	}
	for key, value := range filter.Metadata {
		if tuple.Metadata == nil || tuple.Metadata.Extra[key] != value {
			return false
		}
	}
	return true
}

var _ graph.CheckpointSaver = (*Saver)(nil)
