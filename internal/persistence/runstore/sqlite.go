package runstore

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Store is a sqlite-backed sink for run metadata and collected series.
// Writes are queued onto a single writer goroutine so sampling never
// blocks the simulation loop; Close drains the queue.
type Store struct {
	db *sql.DB

	ch   chan req
	wg   sync.WaitGroup
	once sync.Once

	closed atomic.Bool
}

type reqKind int

const (
	reqRun reqKind = iota + 1
	reqModelSample
	reqAgentSample
	reqFlush
)

type req struct {
	kind  reqKind
	run   RunRow
	model ModelSampleRow
	agent AgentSampleRow
	flush chan struct{}
}

type RunRow struct {
	RunID      string
	ParamsJSON string
	Seed       int64
	CreatedAt  string
}

type ModelSampleRow struct {
	RunID string
	Step  uint64
	Name  string
	Value float64
}

type AgentSampleRow struct {
	RunID     string
	Step      uint64
	AgentID   int
	Wealth    int
	IdleSteps int
}

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{
		db: db,
		// High buffer: per-agent sampling is bursty for large populations.
		ch: make(chan req, 65536),
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.loop()
	}()
	return s, nil
}

func initPragmas(db *sql.DB) error {
	// WAL suits the append-only sampling workload.
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			params_json TEXT NOT NULL,
			seed INTEGER NOT NULL,
			created_at TEXT NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS model_samples (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			name TEXT NOT NULL,
			value REAL NOT NULL,
			PRIMARY KEY (run_id, step, name)
		);`,
		`CREATE TABLE IF NOT EXISTS agent_samples (
			run_id TEXT NOT NULL,
			step INTEGER NOT NULL,
			agent_id INTEGER NOT NULL,
			wealth INTEGER NOT NULL,
			idle_steps INTEGER NOT NULL,
			PRIMARY KEY (run_id, step, agent_id)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_model_samples_name ON model_samples(run_id, name, step);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error {
	var err error
	s.once.Do(func() {
		s.closed.Store(true)
		close(s.ch)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}

// InsertRun records run metadata. CreatedAt defaults to now.
func (s *Store) InsertRun(row RunRow) {
	if s == nil || s.closed.Load() {
		return
	}
	if row.CreatedAt == "" {
		row.CreatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	}
	s.ch <- req{kind: reqRun, run: row}
}

func (s *Store) AddModelSample(row ModelSampleRow) {
	if s == nil || s.closed.Load() {
		return
	}
	s.ch <- req{kind: reqModelSample, model: row}
}

func (s *Store) AddAgentSample(row AgentSampleRow) {
	if s == nil || s.closed.Load() {
		return
	}
	s.ch <- req{kind: reqAgentSample, agent: row}
}

func (s *Store) loop() {
	insertRun, _ := s.db.Prepare(`INSERT OR REPLACE INTO runs(run_id,params_json,seed,created_at) VALUES(?,?,?,?)`)
	insertModel, _ := s.db.Prepare(`INSERT OR REPLACE INTO model_samples(run_id,step,name,value) VALUES(?,?,?,?)`)
	insertAgent, _ := s.db.Prepare(`INSERT OR REPLACE INTO agent_samples(run_id,step,agent_id,wealth,idle_steps) VALUES(?,?,?,?,?)`)
	defer func() {
		if insertRun != nil {
			_ = insertRun.Close()
		}
		if insertModel != nil {
			_ = insertModel.Close()
		}
		if insertAgent != nil {
			_ = insertAgent.Close()
		}
	}()

	ctx := context.Background()
	var (
		tx          *sql.Tx
		opCount     int
		lastCommit  = time.Now()
		commitEvery = 2000
		commitWait  = time.Second
	)
	begin := func() {
		if tx != nil {
			return
		}
		txx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			time.Sleep(50 * time.Millisecond)
			return
		}
		tx = txx
		opCount = 0
		lastCommit = time.Now()
	}
	commit := func() {
		if tx == nil {
			return
		}
		_ = tx.Commit()
		tx = nil
	}

	for r := range s.ch {
		if r.kind == reqFlush {
			commit()
			close(r.flush)
			continue
		}
		begin()
		if tx == nil {
			continue
		}
		var err error
		switch r.kind {
		case reqRun:
			_, err = tx.Stmt(insertRun).Exec(r.run.RunID, r.run.ParamsJSON, r.run.Seed, r.run.CreatedAt)
		case reqModelSample:
			_, err = tx.Stmt(insertModel).Exec(r.model.RunID, int64(r.model.Step), r.model.Name, r.model.Value)
		case reqAgentSample:
			_, err = tx.Stmt(insertAgent).Exec(r.agent.RunID, int64(r.agent.Step), r.agent.AgentID, r.agent.Wealth, r.agent.IdleSteps)
		}
		if err != nil {
			_ = tx.Rollback()
			tx = nil
			continue
		}
		opCount++
		if opCount >= commitEvery || time.Since(lastCommit) >= commitWait {
			commit()
			lastCommit = time.Now()
		}
	}
	commit()
}

// Flush blocks until every queued write has been committed.
func (s *Store) Flush() {
	if s == nil || s.closed.Load() {
		return
	}
	done := make(chan struct{})
	s.ch <- req{kind: reqFlush, flush: done}
	<-done
}

// CountModelSamples reports the rows stored for one metric of one run.
func (s *Store) CountModelSamples(runID, name string) (int, error) {
	var n int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM model_samples WHERE run_id=? AND name=?`, runID, name).Scan(&n)
	return n, err
}

// ModelSeries returns (step, value) pairs for one metric in step order.
func (s *Store) ModelSeries(runID, name string) ([]ModelSampleRow, error) {
	rows, err := s.db.Query(`SELECT step, value FROM model_samples WHERE run_id=? AND name=? ORDER BY step`, runID, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ModelSampleRow
	for rows.Next() {
		r := ModelSampleRow{RunID: runID, Name: name}
		var step int64
		if err := rows.Scan(&step, &r.Value); err != nil {
			return nil, err
		}
		r.Step = uint64(step)
		out = append(out, r)
	}
	return out, rows.Err()
}
