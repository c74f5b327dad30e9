package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"

	apperrors "stock-advisor/internal/errors"
	"stock-advisor/internal/logging"
	"stock-advisor/internal/models"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite3"
	DriverPostgres = "postgres"
)

// SQLStore implements RecommendationStore on SQLite or PostgreSQL.
type SQLStore struct {
	db     *sql.DB
	driver string
	locks  *keyedMutex
	logger zerolog.Logger
}

// Open opens a store for driver and dsn. For SQLite the dsn is a file path.
func Open(driver, dsn string, logger zerolog.Logger) (*SQLStore, error) {
	switch driver {
	case DriverSQLite, "sqlite", "":
		return NewSQLiteStore(dsn, logger)
	case DriverPostgres, "postgresql":
		return NewPostgresStore(dsn, logger)
	default:
		return nil, fmt.Errorf("unsupported store driver %q: %w", driver, apperrors.ErrConfigInvalid)
	}
}

// NewSQLiteStore creates a new SQLite-based store.
func NewSQLiteStore(dbPath string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := sql.Open(DriverSQLite, dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStore(db, DriverSQLite, logger)
}

// NewPostgresStore creates a new PostgreSQL-based store.
func NewPostgresStore(dsn string, logger zerolog.Logger) (*SQLStore, error) {
	db, err := sql.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	return newSQLStore(db, DriverPostgres, logger)
}

func newSQLStore(db *sql.DB, driver string, logger zerolog.Logger) (*SQLStore, error) {
	s := &SQLStore{
		db:     db,
		driver: driver,
		locks:  newKeyedMutex(),
		logger: logger.With().Str("component", "store").Str("driver", driver).Logger(),
	}
	if err := s.initSchema(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

// initSchema creates the recommendations table and its indexes.
func (s *SQLStore) initSchema(ctx context.Context) error {
	real, ts := "REAL", "TIMESTAMP"
	if s.driver == DriverPostgres {
		real, ts = "DOUBLE PRECISION", "TIMESTAMPTZ"
	}

	statements := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS recommendations (
			id TEXT PRIMARY KEY,
			symbol TEXT NOT NULL,
			recommended_price %[1]s NOT NULL,
			current_price %[1]s NOT NULL,
			target_price %[1]s NOT NULL DEFAULT 0,
			stop_loss %[1]s NOT NULL DEFAULT 0,
			confidence %[1]s NOT NULL,
			ai_signal TEXT NOT NULL,
			technical_analysis TEXT NOT NULL DEFAULT '[]',
			fundamental_analysis TEXT NOT NULL DEFAULT '[]',
			risks TEXT NOT NULL DEFAULT '[]',
			opportunities TEXT NOT NULL DEFAULT '[]',
			status TEXT NOT NULL DEFAULT 'active',
			created_at %[2]s NOT NULL,
			updated_at %[2]s NOT NULL
		)`, real, ts),
		`CREATE INDEX IF NOT EXISTS idx_recommendations_status ON recommendations(status)`,
		`CREATE INDEX IF NOT EXISTS idx_recommendations_symbol ON recommendations(symbol)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders as $n for PostgreSQL.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	return rebindDollar(query)
}

func rebindDollar(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

const selectColumns = `SELECT id, symbol, recommended_price, current_price, target_price, stop_loss,
	confidence, ai_signal, technical_analysis, fundamental_analysis, risks, opportunities,
	status, created_at, updated_at FROM recommendations`

// Create inserts a new active recommendation.
func (s *SQLStore) Create(ctx context.Context, rec *models.Recommendation) error {
	if err := rec.Validate(); err != nil {
		return err
	}

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	rec.Symbol = strings.ToUpper(strings.TrimSpace(rec.Symbol))
	rec.Status = models.StatusActive
	rec.CreatedAt = now
	rec.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, s.rebind(`
		INSERT INTO recommendations (id, symbol, recommended_price, current_price, target_price, stop_loss,
			confidence, ai_signal, technical_analysis, fundamental_analysis, risks, opportunities,
			status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), rec.ID, rec.Symbol, rec.RecommendedPrice, rec.CurrentPrice, rec.TargetPrice, rec.StopLoss,
		rec.Confidence, rec.AISignal, encodeList(rec.TechnicalAnalysis), encodeList(rec.FundamentalAnalysis),
		encodeList(rec.Risks), encodeList(rec.Opportunities), string(rec.Status), rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return apperrors.Persistence("create recommendation", err)
	}

	logging.LogRecommendation(s.logger, rec.ID, rec.Symbol, rec.RecommendedPrice, rec.TargetPrice, rec.StopLoss)
	return nil
}

// Get retrieves one recommendation by id.
func (s *SQLStore) Get(ctx context.Context, id string) (*models.Recommendation, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(selectColumns+" WHERE id = ?"), id)
	rec, err := scanRecommendation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("recommendation %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get recommendation: %w", err)
	}
	return rec, nil
}

// List retrieves recommendations, newest first.
func (s *SQLStore) List(ctx context.Context, filter ListFilter) ([]models.Recommendation, error) {
	query := selectColumns + " WHERE 1=1"
	args := []interface{}{}

	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, string(filter.Status))
	}
	if filter.Symbol != "" {
		query += " AND symbol = ?"
		args = append(args, strings.ToUpper(filter.Symbol))
	}

	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query recommendations: %w", err)
	}
	defer rows.Close()

	var recs []models.Recommendation
	for rows.Next() {
		rec, err := scanRecommendation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan recommendation: %w", err)
		}
		recs = append(recs, *rec)
	}
	return recs, rows.Err()
}

// RefreshPrice updates the current price on a record of any status.
func (s *SQLStore) RefreshPrice(ctx context.Context, id string, price float64) (*models.Recommendation, error) {
	if !(price > 0) {
		return nil, apperrors.NewValidationError("current_price", price, "must be positive")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	result, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE recommendations SET current_price = ?, updated_at = ? WHERE id = ?
	`), price, time.Now().UTC(), id)
	if err != nil {
		return nil, apperrors.Persistence("refresh price", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return nil, fmt.Errorf("recommendation %s: %w", id, apperrors.ErrNotFound)
	}
	return s.Get(ctx, id)
}

// UpdateStatus records price and applies the explicit or derived status.
func (s *SQLStore) UpdateStatus(ctx context.Context, id string, price float64, status *models.RecommendationStatus) (*models.Recommendation, error) {
	if !(price > 0) {
		return nil, apperrors.NewValidationError("current_price", price, "must be positive")
	}

	unlock := s.locks.Lock(id)
	defer unlock()

	rec, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	previous := rec.Status
	if status != nil {
		if err := rec.Transition(*status); err != nil {
			return nil, err
		}
	} else {
		rec.Status = rec.DeriveStatus(price)
	}
	rec.CurrentPrice = price
	rec.UpdatedAt = time.Now().UTC()

	_, err = s.db.ExecContext(ctx, s.rebind(`
		UPDATE recommendations SET current_price = ?, status = ?, updated_at = ? WHERE id = ?
	`), rec.CurrentPrice, string(rec.Status), rec.UpdatedAt, id)
	if err != nil {
		return nil, apperrors.Persistence("update status", err)
	}

	if rec.Status != previous {
		logging.LogStatusChange(s.logger, rec.ID, rec.Symbol, string(previous), string(rec.Status), price)
	}
	return rec, nil
}

// ComputePerformance derives metrics from every stored recommendation.
func (s *SQLStore) ComputePerformance(ctx context.Context) (models.PerformanceMetrics, error) {
	recs, err := s.List(ctx, ListFilter{})
	if err != nil {
		return models.PerformanceMetrics{}, err
	}
	return models.ComputePerformance(recs), nil
}

// ActiveSymbols returns the distinct symbols with active recommendations.
func (s *SQLStore) ActiveSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT DISTINCT symbol FROM recommendations WHERE status = ? ORDER BY symbol
	`), string(models.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query active symbols: %w", err)
	}
	defer rows.Close()

	var symbols []string
	for rows.Next() {
		var symbol string
		if err := rows.Scan(&symbol); err != nil {
			return nil, fmt.Errorf("failed to scan symbol: %w", err)
		}
		symbols = append(symbols, symbol)
	}
	return symbols, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecommendation(row scanner) (*models.Recommendation, error) {
	var r models.Recommendation
	var status, technical, fundamental, risks, opportunities string

	if err := row.Scan(&r.ID, &r.Symbol, &r.RecommendedPrice, &r.CurrentPrice, &r.TargetPrice, &r.StopLoss,
		&r.Confidence, &r.AISignal, &technical, &fundamental, &risks, &opportunities,
		&status, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}

	r.Status = models.RecommendationStatus(status)
	r.TechnicalAnalysis = decodeList(technical)
	r.FundamentalAnalysis = decodeList(fundamental)
	r.Risks = decodeList(risks)
	r.Opportunities = decodeList(opportunities)
	return &r, nil
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, _ := json.Marshal(items)
	return string(data)
}

func decodeList(data string) []string {
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil || len(items) == 0 {
		return nil
	}
	return items
}
