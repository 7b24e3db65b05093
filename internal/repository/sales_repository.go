package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"momentum-peaks/internal/models"
	"momentum-peaks/pkg/database"
	"momentum-peaks/pkg/logging"
	"momentum-peaks/pkg/metrics"
)

// SalesRepository provides data access for daily actuals and fiscal summaries
type SalesRepository interface {
	// Daily record operations
	UpsertDailyRecord(ctx context.Context, rec *models.DailyRecord) error
	UpsertDailyRecordsBatch(ctx context.Context, recs []*models.DailyRecord) error
	GetDailyRecords(ctx context.Context, filter RecordFilter) ([]*models.DailyRecord, int, error)
	ListHistory(ctx context.Context, venueID, channelID string, before time.Time) ([]models.DailyRecord, error)
	DeleteDailyRecord(ctx context.Context, venueID, channelID string, date time.Time) error

	// Summary operations
	CalculateFiscalYearSummary(ctx context.Context, venueID string, fiscalYear int, start, end time.Time) (*models.FiscalYearSummary, error)
	UpsertSummary(ctx context.Context, summary *models.FiscalYearSummary) error
	DeleteSummary(ctx context.Context, venueID string, fiscalYear int) (bool, error)
	GetSummaries(ctx context.Context, filter SummaryFilter) ([]*models.FiscalYearSummary, int, error)

	// Utility operations
	HealthCheck(ctx context.Context) error
}

// RecordFilter defines filters for querying daily records
type RecordFilter struct {
	VenueID   *string
	ChannelID *string
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// SummaryFilter defines filters for querying fiscal summaries
type SummaryFilter struct {
	VenueID    *string
	FiscalYear *int
	Limit      int
	Offset     int
}

const recordColumns = `id, venue_id, channel_id, record_date,
		       actual_sales, actual_customer_count, food_sales, drink_sales,
		       created_at, updated_at`

const upsertRecordSQL = `
		INSERT INTO daily_records (
			venue_id, channel_id, record_date,
			actual_sales, actual_customer_count, food_sales, drink_sales,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (venue_id, channel_id, record_date) DO UPDATE SET
			actual_sales = EXCLUDED.actual_sales,
			actual_customer_count = EXCLUDED.actual_customer_count,
			food_sales = EXCLUDED.food_sales,
			drink_sales = EXCLUDED.drink_sales,
			updated_at = EXCLUDED.updated_at
	`

// salesRepository implements SalesRepository
type salesRepository struct {
	db      *database.PostgresDB
	logger  *logging.StructuredLogger
	metrics *metrics.Collector
}

// NewSalesRepository creates a new sales repository
func NewSalesRepository(db *database.PostgresDB, logger *logging.StructuredLogger, metricsCollector *metrics.Collector) SalesRepository {
	return &salesRepository{
		db:      db,
		logger:  logger,
		metrics: metricsCollector,
	}
}

// prepare normalizes the venue ID and stamps timestamps before a write
func prepare(rec *models.DailyRecord) {
	rec.VenueID = strings.ToUpper(strings.TrimSpace(rec.VenueID))
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
}

func recordArgs(rec *models.DailyRecord) []interface{} {
	return []interface{}{
		rec.VenueID,
		rec.ChannelID,
		rec.Date,
		rec.ActualSales,
		rec.ActualCustomerCount,
		rec.FoodSales,
		rec.DrinkSales,
		rec.CreatedAt,
		rec.UpdatedAt,
	}
}

// UpsertDailyRecord inserts a day's actuals or corrects the existing row for the same date
func (r *salesRepository) UpsertDailyRecord(ctx context.Context, rec *models.DailyRecord) error {
	prepare(rec)
	if err := rec.Validate(); err != nil {
		return err
	}

	err := r.db.DB().QueryRowContext(ctx, upsertRecordSQL+" RETURNING id", recordArgs(rec)...).Scan(&rec.ID)
	if err != nil {
		r.metrics.RecordDBError("upsert_record")
		return fmt.Errorf("failed to upsert daily record: %w", err)
	}

	r.logger.Debug(ctx, "[REPO_UPSERT_RECORD] Daily record stored", logging.Fields{
		"venue_id":   rec.VenueID,
		"channel_id": rec.ChannelID,
		"date":       rec.Date.Format("2006-01-02"),
	})

	return nil
}

// UpsertDailyRecordsBatch upserts multiple records in a single transaction
func (r *salesRepository) UpsertDailyRecordsBatch(ctx context.Context, recs []*models.DailyRecord) error {
	if len(recs) == 0 {
		return nil
	}

	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.IngestionBatchSize.Observe(float64(len(recs)))
		r.logger.Debug(ctx, "[REPO_BATCH_UPSERT] Batch upsert completed", logging.Fields{
			"count":       len(recs),
			"duration_ms": duration.Milliseconds(),
		})
	}()

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertRecordSQL)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer stmt.Close()

	for _, rec := range recs {
		prepare(rec)
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("record %s/%s %s: %w", rec.VenueID, rec.ChannelID, rec.Date.Format("2006-01-02"), err)
		}
		if _, err := stmt.ExecContext(ctx, recordArgs(rec)...); err != nil {
			r.metrics.RecordDBError("batch_upsert")
			return fmt.Errorf("failed to upsert daily record: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	r.metrics.IngestionRecordsTotal.Add(float64(len(recs)))

	return nil
}

// buildRecordQuery renders the filtered record query and its arguments, without ordering or paging
func buildRecordQuery(filter RecordFilter) (string, []interface{}) {
	var b strings.Builder
	b.WriteString("SELECT " + recordColumns + "\n\t\tFROM daily_records\n\t\tWHERE 1=1")

	args := []interface{}{}
	argNum := 1
	add := func(clause string, v interface{}) {
		fmt.Fprintf(&b, " AND %s $%d", clause, argNum)
		args = append(args, v)
		argNum++
	}

	if filter.VenueID != nil {
		add("venue_id =", strings.ToUpper(*filter.VenueID))
	}
	if filter.ChannelID != nil {
		add("channel_id =", *filter.ChannelID)
	}
	if filter.StartDate != nil {
		add("record_date >=", *filter.StartDate)
	}
	if filter.EndDate != nil {
		add("record_date <=", *filter.EndDate)
	}

	return b.String(), args
}

// GetDailyRecords retrieves daily records with filtering and pagination
func (r *salesRepository) GetDailyRecords(ctx context.Context, filter RecordFilter) ([]*models.DailyRecord, int, error) {
	query, args := buildRecordQuery(filter)
	argNum := len(args) + 1

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_records", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count daily records: %w", err)
	}

	query += " ORDER BY record_date DESC, venue_id, channel_id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var records []*models.DailyRecord
	if err := r.db.SelectContext(ctx, "get_records", &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get daily records: %w", err)
	}

	return records, totalCount, nil
}

// ListHistory returns every row of venueID dated strictly before before, oldest
// first. An empty channelID returns venue totals and all channel rows; otherwise
// only that channel's rows.
func (r *salesRepository) ListHistory(ctx context.Context, venueID, channelID string, before time.Time) ([]models.DailyRecord, error) {
	query := "SELECT " + recordColumns + `
		FROM daily_records
		WHERE venue_id = $1 AND record_date < $2`
	args := []interface{}{strings.ToUpper(venueID), before}
	if channelID != "" {
		query += " AND channel_id = $3"
		args = append(args, channelID)
	}
	query += " ORDER BY record_date, channel_id"

	var records []models.DailyRecord
	if err := r.db.SelectContext(ctx, "list_history", &records, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// DeleteDailyRecord removes one record as an explicit correction
func (r *salesRepository) DeleteDailyRecord(ctx context.Context, venueID, channelID string, date time.Time) error {
	query := `
		DELETE FROM daily_records
		WHERE venue_id = $1 AND channel_id = $2 AND record_date = $3
	`

	res, err := r.db.ExecContext(ctx, "delete_record", query, strings.ToUpper(venueID), channelID, date)
	if err != nil {
		return fmt.Errorf("failed to delete daily record: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete daily record: %w", err)
	}
	if n == 0 {
		return &models.NotFoundError{
			Resource: "daily_record",
			ID:       fmt.Sprintf("%s:%s:%s", venueID, channelID, date.Format("2006-01-02")),
		}
	}

	r.logger.Info(ctx, "[REPO_DELETE_RECORD] Daily record deleted", logging.Fields{
		"venue_id":   venueID,
		"channel_id": channelID,
		"date":       date.Format("2006-01-02"),
	})
	return nil
}

// fiscalSummarySQL folds each day to venue totals the same way
// models.AggregateDaily does: the venue-total row wins, otherwise channel rows are summed.
const fiscalSummarySQL = `
		WITH per_day AS (
			SELECT record_date,
			       COALESCE(MAX(actual_sales) FILTER (WHERE channel_id = ''),
			                SUM(actual_sales) FILTER (WHERE channel_id <> '')) AS sales,
			       COALESCE(MAX(actual_customer_count) FILTER (WHERE channel_id = ''),
			                SUM(actual_customer_count) FILTER (WHERE channel_id <> '')) AS customers
			FROM daily_records
			WHERE venue_id = $1 AND record_date >= $2 AND record_date < $3
			GROUP BY record_date
		)
		SELECT COALESCE(SUM(sales), 0) AS total_sales,
		       COALESCE(SUM(customers), 0) AS total_customers,
		       COUNT(*) FILTER (WHERE sales > 0) AS sales_days
		FROM per_day
	`

// CalculateFiscalYearSummary totals a venue's actuals over [start, end)
func (r *salesRepository) CalculateFiscalYearSummary(ctx context.Context, venueID string, fiscalYear int, start, end time.Time) (*models.FiscalYearSummary, error) {
	timer := time.Now()
	defer func() {
		duration := time.Since(timer)
		r.metrics.SummaryCalculationDuration.Observe(duration.Seconds())
		r.logger.Debug(ctx, "[REPO_CALC_SUMMARY] Fiscal summary calculated", logging.Fields{
			"venue_id":    venueID,
			"fiscal_year": fiscalYear,
			"duration_ms": duration.Milliseconds(),
		})
	}()

	var result struct {
		TotalSales     int64 `db:"total_sales"`
		TotalCustomers int64 `db:"total_customers"`
		SalesDays      int   `db:"sales_days"`
	}

	if err := r.db.GetContext(ctx, "calculate_summary", &result, fiscalSummarySQL, strings.ToUpper(venueID), start, end); err != nil {
		return nil, fmt.Errorf("failed to calculate fiscal summary: %w", err)
	}

	now := time.Now().UTC()
	summary := &models.FiscalYearSummary{
		VenueID:        strings.ToUpper(venueID),
		FiscalYear:     fiscalYear,
		TotalSales:     result.TotalSales,
		TotalCustomers: result.TotalCustomers,
		SalesDays:      result.SalesDays,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	summary.ComputeAverageSpend()

	return summary, nil
}

// UpsertSummary creates or updates a fiscal summary
func (r *salesRepository) UpsertSummary(ctx context.Context, summary *models.FiscalYearSummary) error {
	query := `
		INSERT INTO fiscal_year_summaries (
			venue_id, fiscal_year,
			total_sales, total_customers, sales_days, average_spend,
			created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (venue_id, fiscal_year) DO UPDATE SET
			total_sales = EXCLUDED.total_sales,
			total_customers = EXCLUDED.total_customers,
			sales_days = EXCLUDED.sales_days,
			average_spend = EXCLUDED.average_spend,
			updated_at = EXCLUDED.updated_at
		RETURNING id
	`

	err := r.db.DB().QueryRowContext(ctx, query,
		summary.VenueID,
		summary.FiscalYear,
		summary.TotalSales,
		summary.TotalCustomers,
		summary.SalesDays,
		summary.AverageSpend,
		summary.CreatedAt,
		summary.UpdatedAt,
	).Scan(&summary.ID)

	if err != nil {
		r.metrics.RecordDBError("upsert_summary")
		return fmt.Errorf("failed to upsert fiscal summary: %w", err)
	}

	return nil
}

// DeleteSummary drops a stored fiscal summary and reports whether one existed
func (r *salesRepository) DeleteSummary(ctx context.Context, venueID string, fiscalYear int) (bool, error) {
	query := `DELETE FROM fiscal_year_summaries WHERE venue_id = $1 AND fiscal_year = $2`

	res, err := r.db.ExecContext(ctx, "delete_summary", query, strings.ToUpper(venueID), fiscalYear)
	if err != nil {
		r.metrics.RecordDBError("delete_summary")
		return false, fmt.Errorf("failed to delete fiscal summary: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete fiscal summary: %w", err)
	}
	return n > 0, nil
}

// GetSummaries retrieves fiscal summaries with filtering and pagination
func (r *salesRepository) GetSummaries(ctx context.Context, filter SummaryFilter) ([]*models.FiscalYearSummary, int, error) {
	query := `
		SELECT id, venue_id, fiscal_year,
		       total_sales, total_customers, sales_days, average_spend,
		       created_at, updated_at
		FROM fiscal_year_summaries
		WHERE 1=1
	`
	args := []interface{}{}
	argNum := 1

	if filter.VenueID != nil {
		query += fmt.Sprintf(" AND venue_id = $%d", argNum)
		args = append(args, strings.ToUpper(*filter.VenueID))
		argNum++
	}

	if filter.FiscalYear != nil {
		query += fmt.Sprintf(" AND fiscal_year = $%d", argNum)
		args = append(args, *filter.FiscalYear)
		argNum++
	}

	countQuery := "SELECT COUNT(*) FROM (" + query + ") AS count_query"
	var totalCount int
	if err := r.db.GetContext(ctx, "count_summaries", &totalCount, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count fiscal summaries: %w", err)
	}

	query += " ORDER BY fiscal_year DESC, venue_id"
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argNum, argNum+1)
	args = append(args, filter.Limit, filter.Offset)

	var summaries []*models.FiscalYearSummary
	if err := r.db.SelectContext(ctx, "get_summaries", &summaries, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to get fiscal summaries: %w", err)
	}

	return summaries, totalCount, nil
}

// HealthCheck performs a repository health check
func (r *salesRepository) HealthCheck(ctx context.Context) error {
	return r.db.HealthCheck(ctx)
}

// IsNotFound reports whether err is (or wraps) a *models.NotFoundError
func IsNotFound(err error) bool {
	var nf *models.NotFoundError
	return errors.As(err, &nf)
}
