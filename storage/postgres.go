package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"homewatch/models"
)

// uniqueViolation is the PostgreSQL SQLSTATE for a unique constraint hit.
const uniqueViolation = "23505"

// PostgresStore persists users, searches, listings and run logs in
// PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db}
	if err := ps.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

// NewPostgresStoreWithDB wraps an already open handle without migrating.
func NewPostgresStoreWithDB(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (ps *PostgresStore) migrate() error {
	_, err := ps.db.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id          TEXT        PRIMARY KEY,
			external_id TEXT        UNIQUE NOT NULL,
			name        TEXT        NOT NULL DEFAULT '',
			email       TEXT        NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS searches (
			id              TEXT          PRIMARY KEY,
			user_id         TEXT          NOT NULL REFERENCES users(id),
			name            TEXT          NOT NULL DEFAULT '',
			min_price       NUMERIC(12,2),
			max_price       NUMERIC(12,2) NOT NULL,
			min_bedrooms    INT           NOT NULL DEFAULT 0,
			min_bathrooms   NUMERIC(4,1)  NOT NULL DEFAULT 0,
			locations       TEXT[]        NOT NULL,
			is_active       BOOLEAN       NOT NULL DEFAULT TRUE,
			notify_on_new   BOOLEAN       NOT NULL DEFAULT TRUE,
			last_checked_at TIMESTAMPTZ,
			created_at      TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS listings (
			id                  TEXT          PRIMARY KEY,
			address             TEXT          NOT NULL,
			city                TEXT          NOT NULL DEFAULT '',
			state               VARCHAR(10)   NOT NULL DEFAULT '',
			zip_code            VARCHAR(10)   NOT NULL DEFAULT '',
			price               NUMERIC(12,2) NOT NULL DEFAULT 0,
			bedrooms            INT           NOT NULL DEFAULT 0,
			bathrooms           NUMERIC(4,1)  NOT NULL DEFAULT 0,
			square_feet         INT,
			property_type       VARCHAR(20)   NOT NULL DEFAULT 'Unknown',
			url                 TEXT          UNIQUE NOT NULL,
			image_url           TEXT          NOT NULL DEFAULT '',
			source              VARCHAR(50)   NOT NULL,
			is_notified         BOOLEAN       NOT NULL DEFAULT FALSE,
			notification_status VARCHAR(20)   NOT NULL DEFAULT 'pending',
			created_at          TIMESTAMPTZ   NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS search_listings (
			search_id  TEXT NOT NULL REFERENCES searches(id),
			listing_id TEXT NOT NULL REFERENCES listings(id),
			PRIMARY KEY (search_id, listing_id)
		);

		CREATE TABLE IF NOT EXISTS search_runs (
			id            BIGSERIAL   PRIMARY KEY,
			search_id     TEXT        NOT NULL REFERENCES searches(id),
			source        VARCHAR(50) NOT NULL,
			status        VARCHAR(20) NOT NULL,
			start_time    TIMESTAMPTZ,
			end_time      TIMESTAMPTZ,
			items_found   INT         NOT NULL DEFAULT 0,
			new_items     INT         NOT NULL DEFAULT 0,
			error_message TEXT        NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS notification_attempts (
			id            BIGSERIAL   PRIMARY KEY,
			user_id       TEXT        NOT NULL,
			listing_id    TEXT        NOT NULL,
			status        VARCHAR(20) NOT NULL,
			error_message TEXT        NOT NULL DEFAULT '',
			created_at    TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_listings_zip        ON listings(zip_code);
		CREATE INDEX IF NOT EXISTS idx_listings_price      ON listings(price);
		CREATE INDEX IF NOT EXISTS idx_searches_active     ON searches(is_active);
		CREATE INDEX IF NOT EXISTS idx_search_runs_search  ON search_runs(search_id);
	`)
	return err
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

// isUniqueViolation reports whether err is a PostgreSQL unique violation.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func (ps *PostgresStore) FindUserByExternalID(ctx context.Context, externalID string) (*models.User, error) {
	u := &models.User{}
	err := ps.db.QueryRowContext(ctx, `
		SELECT id, external_id, name, email, created_at
		FROM users
		WHERE external_id = $1
	`, externalID).Scan(&u.ID, &u.ExternalID, &u.Name, &u.Email, &u.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find user: %w", err)
	}
	return u, nil
}

func (ps *PostgresStore) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	err := ps.db.QueryRowContext(ctx, `
		INSERT INTO users (id, external_id, name, email)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at
	`, u.ID, u.ExternalID, u.Name, u.Email).Scan(&u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("postgres: create user: %w", err)
	}
	return nil
}

func (ps *PostgresStore) CreateSearch(ctx context.Context, s *models.Search) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	var minPrice sql.NullFloat64
	if s.Criteria.MinPrice != nil {
		minPrice = sql.NullFloat64{Float64: *s.Criteria.MinPrice, Valid: true}
	}
	err := ps.db.QueryRowContext(ctx, `
		INSERT INTO searches (id, user_id, name, min_price, max_price, min_bedrooms, min_bathrooms,
		                      locations, is_active, notify_on_new)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`, s.ID, s.UserID, s.Name, minPrice, s.Criteria.MaxPrice, s.Criteria.MinBedrooms,
		s.Criteria.MinBathrooms, pq.Array(s.Criteria.Locations), s.IsActive, s.NotifyOnNew,
	).Scan(&s.CreatedAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("postgres: create search: %w", err)
	}
	return nil
}

func (ps *PostgresStore) FindSearchByID(ctx context.Context, id string) (*models.Search, error) {
	s := &models.Search{Owner: &models.User{}}
	var (
		minPrice    sql.NullFloat64
		lastChecked sql.NullTime
	)
	err := ps.db.QueryRowContext(ctx, `
		SELECT s.id, s.user_id, s.name, s.min_price, s.max_price, s.min_bedrooms, s.min_bathrooms,
		       s.locations, s.is_active, s.notify_on_new, s.last_checked_at, s.created_at,
		       u.id, u.external_id, u.name, u.email, u.created_at
		FROM searches s
		JOIN users u ON u.id = s.user_id
		WHERE s.id = $1
	`, id).Scan(
		&s.ID, &s.UserID, &s.Name, &minPrice, &s.Criteria.MaxPrice, &s.Criteria.MinBedrooms,
		&s.Criteria.MinBathrooms, pq.Array(&s.Criteria.Locations), &s.IsActive, &s.NotifyOnNew,
		&lastChecked, &s.CreatedAt,
		&s.Owner.ID, &s.Owner.ExternalID, &s.Owner.Name, &s.Owner.Email, &s.Owner.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find search: %w", err)
	}
	if minPrice.Valid {
		v := minPrice.Float64
		s.Criteria.MinPrice = &v
	}
	if lastChecked.Valid {
		t := lastChecked.Time
		s.LastCheckedAt = &t
	}
	return s, nil
}

func (ps *PostgresStore) ListActiveSearchIDs(ctx context.Context) ([]string, error) {
	rows, err := ps.db.QueryContext(ctx, `SELECT id FROM searches WHERE is_active ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active searches: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan search id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (ps *PostgresStore) UpdateSearchLastChecked(ctx context.Context, id string, at time.Time) error {
	res, err := ps.db.ExecContext(ctx, `UPDATE searches SET last_checked_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("postgres: update last checked: %w", err)
	}
	return expectOneRow(res)
}

const listingColumns = `l.id, l.address, l.city, l.state, l.zip_code, l.price, l.bedrooms, l.bathrooms,
	l.square_feet, l.property_type, l.url, l.image_url, l.source, l.is_notified,
	l.notification_status, l.created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*models.Listing, error) {
	l := &models.Listing{}
	var sqft sql.NullInt64
	if err := row.Scan(
		&l.ID, &l.Address, &l.City, &l.State, &l.ZipCode, &l.Price, &l.Bedrooms, &l.Bathrooms,
		&sqft, &l.PropertyType, &l.URL, &l.ImageURL, &l.Source, &l.IsNotified,
		&l.NotificationStatus, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	if sqft.Valid {
		n := int(sqft.Int64)
		l.SquareFeet = &n
	}
	return l, nil
}

func (ps *PostgresStore) FindListingByURL(ctx context.Context, url string) (*models.Listing, error) {
	row := ps.db.QueryRowContext(ctx, `SELECT `+listingColumns+` FROM listings l WHERE l.url = $1`, url)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: find listing: %w", err)
	}
	return l, nil
}

// CreateListing inserts the listing and its search link in one
// transaction. The UNIQUE constraint on url is the authoritative guard
// against two runs inserting the same listing.
func (ps *PostgresStore) CreateListing(ctx context.Context, l *models.Listing, searchID string) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.NewString()
	var sqft sql.NullInt64
	if l.SquareFeet != nil {
		sqft = sql.NullInt64{Int64: int64(*l.SquareFeet), Valid: true}
	}
	status := l.NotificationStatus
	if status == "" {
		status = models.NotificationPending
	}

	var createdAt time.Time
	err = tx.QueryRowContext(ctx, `
		INSERT INTO listings (id, address, city, state, zip_code, price, bedrooms, bathrooms,
		                      square_feet, property_type, url, image_url, source, is_notified,
		                      notification_status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at
	`, id, l.Address, l.City, l.State, l.ZipCode, l.Price, l.Bedrooms, l.Bathrooms,
		sqft, string(l.PropertyType), l.URL, l.ImageURL, l.Source, l.IsNotified, string(status),
	).Scan(&createdAt)
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("postgres: insert listing: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO search_listings (search_id, listing_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, searchID, id); err != nil {
		return fmt.Errorf("postgres: link listing: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit listing: %w", err)
	}
	l.ID, l.CreatedAt, l.NotificationStatus = id, createdAt, status
	return nil
}

func (ps *PostgresStore) UpdateListingNotification(ctx context.Context, listingID string, notified bool, status models.NotificationStatus) error {
	res, err := ps.db.ExecContext(ctx, `
		UPDATE listings SET is_notified = $2, notification_status = $3 WHERE id = $1
	`, listingID, notified, string(status))
	if err != nil {
		return fmt.Errorf("postgres: update notification: %w", err)
	}
	return expectOneRow(res)
}

// ListingsBySearch retrieves the listings linked to a search, cheapest
// first. Used by the export command.
func (ps *PostgresStore) ListingsBySearch(ctx context.Context, searchID string) ([]*models.Listing, error) {
	rows, err := ps.db.QueryContext(ctx, `
		SELECT `+listingColumns+`
		FROM listings l
		JOIN search_listings sl ON sl.listing_id = l.id
		WHERE sl.search_id = $1
		ORDER BY l.price, l.id
	`, searchID)
	if err != nil {
		return nil, fmt.Errorf("postgres: listings by search: %w", err)
	}
	defer rows.Close()

	var listings []*models.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan row: %w", err)
		}
		listings = append(listings, l)
	}
	return listings, rows.Err()
}

func (ps *PostgresStore) CreateSearchRun(ctx context.Context, run *models.SearchRun) error {
	err := ps.db.QueryRowContext(ctx, `
		INSERT INTO search_runs (search_id, source, status, start_time)
		VALUES ($1, $2, $3, $4)
		RETURNING id
	`, run.SearchID, run.Source, string(run.Status), run.StartTime).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("postgres: create run: %w", err)
	}
	return nil
}

func (ps *PostgresStore) UpdateSearchRun(ctx context.Context, run *models.SearchRun) error {
	res, err := ps.db.ExecContext(ctx, `
		UPDATE search_runs
		SET status = $2, end_time = $3, items_found = $4, new_items = $5, error_message = $6
		WHERE id = $1
	`, run.ID, string(run.Status), run.EndTime, run.ItemsFound, run.NewItems, run.ErrorMessage)
	if err != nil {
		return fmt.Errorf("postgres: update run: %w", err)
	}
	return expectOneRow(res)
}

func (ps *PostgresStore) CreateNotificationAttempt(ctx context.Context, a *models.NotificationAttempt) error {
	if a.Timestamp.IsZero() {
		a.Timestamp = time.Now()
	}
	err := ps.db.QueryRowContext(ctx, `
		INSERT INTO notification_attempts (user_id, listing_id, status, error_message, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`, a.UserID, a.ListingID, string(a.Status), a.ErrorMessage, a.Timestamp).Scan(&a.ID)
	if err != nil {
		return fmt.Errorf("postgres: create notification attempt: %w", err)
	}
	return nil
}

// TryLockSearch takes a session-level advisory lock keyed by the search id
// on a dedicated connection. The lock lives until release runs.
func (ps *PostgresStore) TryLockSearch(ctx context.Context, searchID string) (func(), bool, error) {
	conn, err := ps.db.Conn(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("postgres: lock conn: %w", err)
	}

	var ok bool
	if err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock(hashtext($1))`, searchID).Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, false, fmt.Errorf("postgres: advisory lock: %w", err)
	}
	if !ok {
		_ = conn.Close()
		return nil, false, nil
	}

	release := func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, searchID)
		_ = conn.Close()
	}
	return release, true, nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
