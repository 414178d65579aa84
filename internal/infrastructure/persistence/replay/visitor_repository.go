// Package replay provides the concrete SQL-based implementations of
// the replay domain repositories (Visitor, Session).
package replay

import (
	"database/sql"
	"time"

	"github.com/sessionstory/sessionstory-go/internal/domain/replay"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/observability/logging"
	"github.com/sessionstory/sessionstory-go/internal/infrastructure/persistence/database"
	"github.com/sessionstory/sessionstory-go/pkg/config"
)

// SQLVisitorRepository is the SQL-based implementation of the VisitorRepository.
type SQLVisitorRepository struct {
	db     *database.DB
	logger *logging.ChanneledLogger
}

// NewSQLVisitorRepository creates a new instance of the repository.
func NewSQLVisitorRepository(db *database.DB, logger *logging.ChanneledLogger) *SQLVisitorRepository {
	return &SQLVisitorRepository{
		db:     db,
		logger: logger,
	}
}

// FindByFingerprint retrieves a Visitor by its unique fingerprint.
func (r *SQLVisitorRepository) FindByFingerprint(fingerprint string) (*replay.Visitor, error) {
	const query = `
		SELECT id, fingerprint, ip, country, region, city, latitude, longitude, timezone, isp, org, asn, created_at
		FROM visitors
		WHERE fingerprint = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading visitor by fingerprint", "fingerprint", fingerprint)

	row := r.db.QueryRow(query, fingerprint)
	visitor, err := r.scanVisitor(row)
	if err != nil {
		r.logger.Database().Error("Failed to load visitor by fingerprint", "error", err.Error(), "fingerprint", fingerprint)
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("SELECT ... FROM visitors WHERE fingerprint = ?", duration, "system")
	}
	return visitor, nil
}

// FindByID retrieves a Visitor by its unique identifier.
func (r *SQLVisitorRepository) FindByID(id string) (*replay.Visitor, error) {
	const query = `
		SELECT id, fingerprint, ip, country, region, city, latitude, longitude, timezone, isp, org, asn, created_at
		FROM visitors
		WHERE id = ?`

	start := time.Now()
	r.logger.Database().Debug("Loading visitor by ID", "id", id)

	row := r.db.QueryRow(query, id)
	visitor, err := r.scanVisitor(row)
	if err != nil {
		r.logger.Database().Error("Failed to load visitor by ID", "error", err.Error(), "id", id)
		return nil, err
	}

	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("SELECT ... FROM visitors WHERE id = ?", duration, "system")
	}
	return visitor, nil
}

// Create saves a new Visitor to the database.
func (r *SQLVisitorRepository) Create(visitor *replay.Visitor) error {
	const query = `
		INSERT INTO visitors (id, fingerprint, ip, country, region, city, latitude, longitude, timezone, isp, org, asn, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	start := time.Now()
	r.logger.Database().Debug("Executing visitor insert", "id", visitor.ID, "fingerprint", visitor.Fingerprint)

	_, err := r.db.Exec(
		query,
		visitor.ID,
		visitor.Fingerprint,
		visitor.IP,
		visitor.Country,
		visitor.Region,
		visitor.City,
		visitor.Latitude,
		visitor.Longitude,
		visitor.Timezone,
		visitor.ISP,
		visitor.Org,
		visitor.ASN,
		database.FormatTime(visitor.CreatedAt),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			r.logger.Database().Debug("Visitor already exists", "fingerprint", visitor.Fingerprint)
		} else {
			r.logger.Database().Error("Visitor insert failed", "error", err.Error(), "fingerprint", visitor.Fingerprint)
		}
		return err
	}

	r.logger.Database().Info("Visitor insert completed", "id", visitor.ID, "fingerprint", visitor.Fingerprint, "duration", time.Since(start))
	duration := time.Since(start)
	if duration > config.SlowQueryThreshold {
		r.logger.LogSlowQuery("INSERT INTO visitors ...", duration, "system")
	}
	return nil
}

// scanVisitor is a helper function to scan a sql.Row into a Visitor struct.
func (r *SQLVisitorRepository) scanVisitor(row *sql.Row) (*replay.Visitor, error) {
	var visitor replay.Visitor
	var country, region, city, latitude, longitude, timezone, isp, org, asn sql.NullString
	var createdAtStr string

	err := row.Scan(
		&visitor.ID,
		&visitor.Fingerprint,
		&visitor.IP,
		&country,
		&region,
		&city,
		&latitude,
		&longitude,
		&timezone,
		&isp,
		&org,
		&asn,
		&createdAtStr,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // Not found
		}
		return nil, err
	}

	visitor.Country = country.String
	visitor.Region = region.String
	visitor.City = city.String
	visitor.Latitude = latitude.String
	visitor.Longitude = longitude.String
	visitor.Timezone = timezone.String
	visitor.ISP = isp.String
	visitor.Org = org.String
	visitor.ASN = asn.String

	visitor.CreatedAt, err = database.ParseTime(createdAtStr)
	if err != nil {
		return nil, err
	}

	return &visitor, nil
}
