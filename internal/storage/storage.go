// Package storage provides persistent decode-record storage and querying
// functionality.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/geekxflood/common/config"
	"github.com/geekxflood/proteus/internal/types"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// StorageConfig holds configuration for the record storage system
type StorageConfig struct {
	DatabaseType     string        `json:"database_type"`
	ConnectionString string        `json:"connection_string"`
	MaxConnections   int           `json:"max_connections"`
	RetentionDays    int           `json:"retention_days"`
	BatchSize        int           `json:"batch_size"`
	FlushInterval    time.Duration `json:"flush_interval"`
	EnableIndexes    bool          `json:"enable_indexes"`
}

// DefaultStorageConfig returns a default storage configuration
func DefaultStorageConfig() *StorageConfig {
	return &StorageConfig{
		DatabaseType:     "sqlite3",
		ConnectionString: "./proteus_records.db",
		MaxConnections:   10,
		RetentionDays:    30,
		BatchSize:        100,
		FlushInterval:    5 * time.Second,
		EnableIndexes:    true,
	}
}

// RecordQuery represents query parameters for searching decode records
type RecordQuery struct {
	StartTime *time.Time `json:"start_time,omitempty"`
	EndTime   *time.Time `json:"end_time,omitempty"`
	Source    string     `json:"source,omitempty"`
	Transport string     `json:"transport,omitempty"`
	RootType  string     `json:"root_type,omitempty"`
	Status    string     `json:"status,omitempty"`
	Limit     int        `json:"limit,omitempty"`
	Offset    int        `json:"offset,omitempty"`
	OrderBy   string     `json:"order_by,omitempty"`
	OrderDesc bool       `json:"order_desc,omitempty"`
}

// StorageStats tracks storage statistics
type StorageStats struct {
	TotalRecords    int64            `json:"total_records"`
	RecordsToday    int64            `json:"records_today"`
	FailedRecords   int64            `json:"failed_records"`
	OldestRecord    *time.Time       `json:"oldest_record,omitempty"`
	NewestRecord    *time.Time       `json:"newest_record,omitempty"`
	AveragePerDay   float64          `json:"average_per_day"`
	TypeBreakdown   map[string]int64 `json:"type_breakdown"`
	StatusBreakdown map[string]int64 `json:"status_breakdown"`
}

// Storage provides persistent decode-record storage
type Storage struct {
	config     *StorageConfig
	db         *sql.DB
	batchQueue []*types.DecodeRecord
	mu         sync.RWMutex
	ctx        context.Context
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewStorage creates a new record storage instance
func NewStorage(cfg config.Provider) (*Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("configuration provider cannot be nil")
	}

	storageConfig := DefaultStorageConfig()

	if dbType, err := cfg.GetString("storage.database_type", storageConfig.DatabaseType); err == nil {
		storageConfig.DatabaseType = dbType
	}

	if connStr, err := cfg.GetString("storage.connection_string", storageConfig.ConnectionString); err == nil {
		storageConfig.ConnectionString = connStr
	}

	if maxConn, err := cfg.GetInt("storage.max_connections", storageConfig.MaxConnections); err == nil {
		storageConfig.MaxConnections = maxConn
	}

	if retention, err := cfg.GetInt("storage.retention_days", storageConfig.RetentionDays); err == nil {
		storageConfig.RetentionDays = retention
	}

	if batchSize, err := cfg.GetInt("storage.batch_size", storageConfig.BatchSize); err == nil {
		storageConfig.BatchSize = batchSize
	}

	if flushInterval, err := cfg.GetDuration("storage.flush_interval", storageConfig.FlushInterval); err == nil {
		storageConfig.FlushInterval = flushInterval
	}

	db, err := sql.Open(storageConfig.DatabaseType, storageConfig.ConnectionString)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(storageConfig.MaxConnections)
	db.SetMaxIdleConns(storageConfig.MaxConnections / 2)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	storage := &Storage{
		config:     storageConfig,
		db:         db,
		batchQueue: make([]*types.DecodeRecord, 0, storageConfig.BatchSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	if err := storage.initSchema(); err != nil {
		storage.Close()
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	storage.wg.Add(2)
	go storage.batchWorker()
	go storage.cleanupWorker()

	return storage, nil
}

// initSchema creates the database tables and indexes
func (s *Storage) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		source TEXT NOT NULL,
		transport TEXT NOT NULL,
		size_bytes INTEGER NOT NULL,
		root_class TEXT,
		root_type TEXT,
		node_count INTEGER DEFAULT 0,
		max_depth INTEGER DEFAULT 0,
		indefinite BOOLEAN DEFAULT FALSE,
		status TEXT NOT NULL,
		error TEXT,
		tree_json TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create records table: %w", err)
	}

	if s.config.EnableIndexes {
		indexes := []string{
			"CREATE INDEX IF NOT EXISTS idx_records_timestamp ON records(timestamp);",
			"CREATE INDEX IF NOT EXISTS idx_records_source ON records(source);",
			"CREATE INDEX IF NOT EXISTS idx_records_root_type ON records(root_type);",
			"CREATE INDEX IF NOT EXISTS idx_records_status ON records(status);",
			"CREATE INDEX IF NOT EXISTS idx_records_transport ON records(transport);",
		}

		for _, idx := range indexes {
			if _, err := s.db.Exec(idx); err != nil {
				return fmt.Errorf("failed to create index: %w", err)
			}
		}
	}

	return nil
}

// StoreRecord queues a record for batched insertion. The batch is flushed
// when full and on the flush interval.
func (s *Storage) StoreRecord(record *types.DecodeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.batchQueue = append(s.batchQueue, record)

	if len(s.batchQueue) >= s.config.BatchSize {
		return s.flushBatch()
	}

	return nil
}

// StoreRecordImmediate stores a record immediately and returns its ID
func (s *Storage) StoreRecordImmediate(record *types.DecodeRecord) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(`
		INSERT INTO records (
			timestamp, source, transport, size_bytes, root_class, root_type,
			node_count, max_depth, indefinite, status, error, tree_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, record.Timestamp, record.Source, record.Transport, record.SizeBytes,
		record.RootClass, record.RootType, record.NodeCount, record.MaxDepth,
		record.Indefinite, record.Status, record.Error, record.TreeJSON)

	if err != nil {
		return 0, fmt.Errorf("failed to insert record: %w", err)
	}

	recordID, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID: %w", err)
	}

	return recordID, nil
}

// flushBatch flushes the current batch to database. Caller must hold s.mu.
func (s *Storage) flushBatch() error {
	if len(s.batchQueue) == 0 {
		return nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT INTO records (
			timestamp, source, transport, size_bytes, root_class, root_type,
			node_count, max_depth, indefinite, status, error, tree_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, record := range s.batchQueue {
		_, err := stmt.Exec(
			record.Timestamp, record.Source, record.Transport, record.SizeBytes,
			record.RootClass, record.RootType, record.NodeCount, record.MaxDepth,
			record.Indefinite, record.Status, record.Error, record.TreeJSON,
		)
		if err != nil {
			return fmt.Errorf("failed to execute statement: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	s.batchQueue = s.batchQueue[:0]
	return nil
}

// batchWorker periodically flushes batched records
func (s *Storage) batchWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			s.mu.Lock()
			s.flushBatch()
			s.mu.Unlock()
			return
		case <-ticker.C:
			s.mu.Lock()
			if len(s.batchQueue) > 0 {
				s.flushBatch()
			}
			s.mu.Unlock()
		}
	}
}

// cleanupWorker periodically removes old records based on retention policy
func (s *Storage) cleanupWorker() {
	defer s.wg.Done()

	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

// cleanup removes records older than the retention period
func (s *Storage) cleanup() {
	cutoff := time.Now().AddDate(0, 0, -s.config.RetentionDays)
	s.db.Exec("DELETE FROM records WHERE timestamp < ?", cutoff)
}

// QueryRecords queries decode records based on the provided criteria
func (s *Storage) QueryRecords(query *RecordQuery) ([]*types.DecodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sqlQuery := "SELECT id, timestamp, source, transport, size_bytes, root_class, root_type, node_count, max_depth, indefinite, status, error, tree_json, created_at FROM records WHERE 1=1"
	args := []interface{}{}

	if query.StartTime != nil {
		sqlQuery += " AND timestamp >= ?"
		args = append(args, *query.StartTime)
	}

	if query.EndTime != nil {
		sqlQuery += " AND timestamp <= ?"
		args = append(args, *query.EndTime)
	}

	if query.Source != "" {
		sqlQuery += " AND source = ?"
		args = append(args, query.Source)
	}

	if query.Transport != "" {
		sqlQuery += " AND transport = ?"
		args = append(args, query.Transport)
	}

	if query.RootType != "" {
		sqlQuery += " AND root_type = ?"
		args = append(args, query.RootType)
	}

	if query.Status != "" {
		sqlQuery += " AND status = ?"
		args = append(args, query.Status)
	}

	orderBy := "timestamp"
	switch query.OrderBy {
	case "", "timestamp":
	case "source", "root_type", "size_bytes", "node_count", "id":
		orderBy = query.OrderBy
	default:
		return nil, fmt.Errorf("unsupported order_by column: %s", query.OrderBy)
	}

	if query.OrderDesc {
		sqlQuery += fmt.Sprintf(" ORDER BY %s DESC", orderBy)
	} else {
		sqlQuery += fmt.Sprintf(" ORDER BY %s ASC", orderBy)
	}

	if query.Limit > 0 {
		sqlQuery += " LIMIT ?"
		args = append(args, query.Limit)
	}

	if query.Offset > 0 {
		sqlQuery += " OFFSET ?"
		args = append(args, query.Offset)
	}

	rows, err := s.db.Query(sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*types.DecodeRecord
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// GetRecord retrieves a single record by ID
func (s *Storage) GetRecord(id int64) (*types.DecodeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT id, timestamp, source, transport, size_bytes, root_class, root_type, node_count, max_depth, indefinite, status, error, tree_json, created_at FROM records WHERE id = ?", id)
	record, err := scanRecord(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("record not found")
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}

	return record, nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row scanner) (*types.DecodeRecord, error) {
	record := &types.DecodeRecord{}
	var errText, treeJSON sql.NullString
	err := row.Scan(
		&record.ID, &record.Timestamp, &record.Source, &record.Transport,
		&record.SizeBytes, &record.RootClass, &record.RootType,
		&record.NodeCount, &record.MaxDepth, &record.Indefinite,
		&record.Status, &errText, &treeJSON, &record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	record.Error = errText.String
	record.TreeJSON = treeJSON.String
	return record, nil
}

// GetStats returns storage statistics
func (s *Storage) GetStats() (*StorageStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &StorageStats{
		TypeBreakdown:   make(map[string]int64),
		StatusBreakdown: make(map[string]int64),
	}

	err := s.db.QueryRow("SELECT COUNT(*) FROM records").Scan(&stats.TotalRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to get total records: %w", err)
	}

	today := time.Now().Truncate(24 * time.Hour)
	err = s.db.QueryRow("SELECT COUNT(*) FROM records WHERE timestamp >= ?", today).Scan(&stats.RecordsToday)
	if err != nil {
		return nil, fmt.Errorf("failed to get records today: %w", err)
	}

	err = s.db.QueryRow("SELECT COUNT(*) FROM records WHERE status = ?", types.StatusError).Scan(&stats.FailedRecords)
	if err != nil {
		return nil, fmt.Errorf("failed to get failed records: %w", err)
	}

	var oldestTime, newestTime sql.NullTime
	err = s.db.QueryRow("SELECT MIN(timestamp), MAX(timestamp) FROM records").Scan(&oldestTime, &newestTime)
	if err == nil {
		if oldestTime.Valid {
			stats.OldestRecord = &oldestTime.Time
		}
		if newestTime.Valid {
			stats.NewestRecord = &newestTime.Time
		}
	}

	if stats.OldestRecord != nil && stats.NewestRecord != nil {
		days := stats.NewestRecord.Sub(*stats.OldestRecord).Hours() / 24
		if days > 0 {
			stats.AveragePerDay = float64(stats.TotalRecords) / days
		}
	}

	rows, err := s.db.Query("SELECT root_type, COUNT(*) FROM records WHERE root_type != '' GROUP BY root_type")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var rootType string
			var count int64
			if err := rows.Scan(&rootType, &count); err == nil {
				stats.TypeBreakdown[rootType] = count
			}
		}
	}

	srows, err := s.db.Query("SELECT status, COUNT(*) FROM records GROUP BY status")
	if err == nil {
		defer srows.Close()
		for srows.Next() {
			var status string
			var count int64
			if err := srows.Scan(&status, &count); err == nil {
				stats.StatusBreakdown[status] = count
			}
		}
	}

	return stats, nil
}

// Flush forces any queued records to be written out.
func (s *Storage) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flushBatch()
}

// Close closes the storage system
func (s *Storage) Close() error {
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.flushBatch()
	s.mu.Unlock()

	return s.db.Close()
}
