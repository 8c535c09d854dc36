// Package postgres provides PostgreSQL implementation of incidents repository.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/bissquit/incident-console/internal/domain"
	"github.com/bissquit/incident-console/internal/incidents"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/query"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// querier is an interface for database operations that both *pgxpool.Pool and pgx.Tx implement.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type scanner interface {
	Scan(dest ...any) error
}

const incidentColumns = `
	id, title, description, level, scope, status,
	safety_compliance, security_privacy, data_quality, psd2_impact,
	started_at, detected_at, time_format,
	detection_source, incident_type, incident_commander, reporting_org,
	estimated_time_to_mitigation, first_detected_in, additional_subscribers,
	safety_compliance_document_url, send_email_notifications,
	l5_confirmation, mitigation_policy_acknowledgment,
	impacted_locations, impacted_parties, impacted_areas, impacted_assets,
	postmortem, resolved_at, created_by, created_at, updated_at`

// orderingColumns maps API ordering fields to SQL columns.
var orderingColumns = map[string]string{
	"created_at":  "created_at",
	"started_at":  "started_at",
	"detected_at": "detected_at",
	"level":       "level",
	"scope":       "scope",
}

// Repository implements incidents.Repository using PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

// NewRepository creates a new PostgreSQL repository.
func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

// Create inserts an incident together with its related documents.
func (r *Repository) Create(ctx context.Context, inc *domain.Incident) error {
	postmortem, err := marshalPostmortem(inc.Postmortem)
	if err != nil {
		return err
	}

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	q := `
		INSERT INTO incidents (
			title, description, level, scope, status,
			safety_compliance, security_privacy, data_quality, psd2_impact,
			started_at, detected_at, time_format,
			detection_source, incident_type, incident_commander, reporting_org,
			estimated_time_to_mitigation, first_detected_in, additional_subscribers,
			safety_compliance_document_url, send_email_notifications,
			l5_confirmation, mitigation_policy_acknowledgment,
			impacted_locations, impacted_parties, impacted_areas, impacted_assets,
			postmortem, resolved_at, created_by
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
			$11, $12, $13, $14, $15, $16, $17, $18, $19, $20,
			$21, $22, $23, $24, $25, $26, $27, $28, $29, $30
		)
		RETURNING id, created_at, updated_at
	`
	err = tx.QueryRow(ctx, q,
		inc.Title,
		inc.Description,
		inc.Level,
		inc.Scope,
		inc.Status,
		inc.SafetyCompliance,
		inc.SecurityPrivacy,
		inc.DataQuality,
		inc.PSD2Impact,
		inc.StartedAt,
		inc.DetectedAt,
		inc.TimeFormat,
		inc.DetectionSource,
		inc.IncidentType,
		inc.IncidentCommander,
		inc.ReportingOrg,
		inc.EstimatedTimeToMitigation,
		inc.FirstDetectedIn,
		inc.AdditionalSubscribers,
		inc.SafetyComplianceDocURL,
		inc.SendEmailNotifications,
		inc.L5Confirmation,
		inc.MitigationPolicyAcknowledgment,
		nonNil(inc.ImpactedLocations),
		nonNil(inc.ImpactedParties),
		nonNil(inc.ImpactedAreas),
		nonNil(inc.ImpactedAssets),
		postmortem,
		inc.ResolvedAt,
		inc.CreatedBy,
	).Scan(&inc.ID, &inc.CreatedAt, &inc.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}

	for i := range inc.RelatedDocuments {
		if err := insertDocument(ctx, tx, inc.ID, &inc.RelatedDocuments[i]); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Get retrieves an incident with its documents and updates.
func (r *Repository) Get(ctx context.Context, id string) (*domain.Incident, error) {
	inc, err := scanIncident(r.db.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("get incident: %w", err)
	}

	if inc.RelatedDocuments, err = listDocuments(ctx, r.db, id); err != nil {
		return nil, err
	}
	if inc.Updates, err = r.ListUpdates(ctx, id); err != nil {
		return nil, err
	}
	return inc, nil
}

// List retrieves a page of incidents matching the filter and the total count.
// Documents and updates are not loaded.
func (r *Repository) List(ctx context.Context, filter incidents.ListFilter) ([]*domain.Incident, int, error) {
	where, args := buildWhere(filter.Filters)

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM incidents`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count incidents: %w", err)
	}

	q := `SELECT ` + incidentColumns + ` FROM incidents` + where + orderBy(filter.OrderingOrDefault())
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		q += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		q += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list incidents: %w", err)
	}
	defer rows.Close()

	items := make([]*domain.Incident, 0)
	for rows.Next() {
		inc, err := scanIncident(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan incident: %w", err)
		}
		inc.RelatedDocuments = make([]domain.Document, 0)
		inc.Updates = make([]domain.Update, 0)
		items = append(items, inc)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate incidents: %w", err)
	}

	return items, total, nil
}

// Statistics counts incidents matching the filter per level, scope and status.
func (r *Repository) Statistics(ctx context.Context, filter query.Filters) (*incidents.Statistics, error) {
	where, args := buildWhere(filter)
	q := `SELECT level, scope, status, COUNT(*) FROM incidents` + where + ` GROUP BY level, scope, status`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("incident statistics: %w", err)
	}
	defer rows.Close()

	stats := &incidents.Statistics{
		ByLevel:  make(map[string]int),
		ByScope:  make(map[string]int),
		ByStatus: make(map[string]int),
	}
	for rows.Next() {
		var (
			level  domain.Level
			scope  domain.Scope
			status domain.Status
			count  int
		)
		if err := rows.Scan(&level, &scope, &status, &count); err != nil {
			return nil, fmt.Errorf("scan statistics: %w", err)
		}

		stats.TotalIncidents += count
		if level != "" {
			stats.ByLevel[string(level)] += count
		}
		if scope != "" {
			stats.ByScope[string(scope)] += count
		}
		stats.ByStatus[string(status)] += count

		if level == domain.LevelL5 && scope == domain.ScopeHigh {
			stats.L5HighIncidents += count
		}
		if domain.NeedsMitigationPolicyAck(level, scope) {
			stats.CriticalIncidents += count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate statistics: %w", err)
	}

	return stats, nil
}

// Update locks the incident row, applies fn and writes the result back.
func (r *Repository) Update(ctx context.Context, id string, fn incidents.MutateFunc) (*domain.Incident, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer rollback(ctx, tx)

	inc, err := scanIncident(tx.QueryRow(ctx, `SELECT `+incidentColumns+` FROM incidents WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, incidents.ErrIncidentNotFound
		}
		return nil, fmt.Errorf("lock incident: %w", err)
	}

	if err := fn(inc); err != nil {
		return nil, err
	}

	if err := updateIncident(ctx, tx, inc); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transaction: %w", err)
	}

	return r.Get(ctx, id)
}

// CreateUpdate inserts an incident update.
func (r *Repository) CreateUpdate(ctx context.Context, update *domain.Update) error {
	q := `
		INSERT INTO incident_updates (incident_id, content, author, update_type)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := r.db.QueryRow(ctx, q,
		update.IncidentID,
		update.Content,
		update.Author,
		update.UpdateType,
	).Scan(&update.ID, &update.CreatedAt)
	if err != nil {
		if isForeignKeyViolation(err) {
			return incidents.ErrIncidentNotFound
		}
		return fmt.Errorf("create update: %w", err)
	}
	return nil
}

// ListUpdates returns the updates of an incident, newest first.
func (r *Repository) ListUpdates(ctx context.Context, incidentID string) ([]domain.Update, error) {
	q := `
		SELECT id, incident_id, content, author, update_type, created_at
		FROM incident_updates
		WHERE incident_id = $1
		ORDER BY created_at DESC, id
	`
	rows, err := r.db.Query(ctx, q, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list updates: %w", err)
	}
	defer rows.Close()

	updates := make([]domain.Update, 0)
	for rows.Next() {
		var u domain.Update
		if err := rows.Scan(&u.ID, &u.IncidentID, &u.Content, &u.Author, &u.UpdateType, &u.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan update: %w", err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate updates: %w", err)
	}
	return updates, nil
}

// CreateDocument links a document to an incident.
func (r *Repository) CreateDocument(ctx context.Context, incidentID string, doc *domain.Document) error {
	if err := insertDocument(ctx, r.db, incidentID, doc); err != nil {
		if isForeignKeyViolation(err) {
			return incidents.ErrIncidentNotFound
		}
		return err
	}
	return nil
}

func insertDocument(ctx context.Context, q querier, incidentID string, doc *domain.Document) error {
	err := q.QueryRow(ctx, `
		INSERT INTO incident_documents (incident_id, title, url)
		VALUES ($1, $2, $3)
		RETURNING id, created_at
	`, incidentID, doc.Title, doc.URL).Scan(&doc.ID, &doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("create document: %w", err)
	}
	return nil
}

func listDocuments(ctx context.Context, q querier, incidentID string) ([]domain.Document, error) {
	rows, err := q.Query(ctx, `
		SELECT id, title, url, created_at
		FROM incident_documents
		WHERE incident_id = $1
		ORDER BY created_at, id
	`, incidentID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	docs := make([]domain.Document, 0)
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.URL, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate documents: %w", err)
	}
	return docs, nil
}

func updateIncident(ctx context.Context, q querier, inc *domain.Incident) error {
	postmortem, err := marshalPostmortem(inc.Postmortem)
	if err != nil {
		return err
	}

	_, err = q.Exec(ctx, `
		UPDATE incidents SET
			title = $2, description = $3, level = $4, scope = $5, status = $6,
			safety_compliance = $7, security_privacy = $8, data_quality = $9, psd2_impact = $10,
			started_at = $11, detected_at = $12, time_format = $13,
			detection_source = $14, incident_type = $15, incident_commander = $16, reporting_org = $17,
			estimated_time_to_mitigation = $18, first_detected_in = $19, additional_subscribers = $20,
			safety_compliance_document_url = $21, send_email_notifications = $22,
			l5_confirmation = $23, mitigation_policy_acknowledgment = $24,
			impacted_locations = $25, impacted_parties = $26, impacted_areas = $27, impacted_assets = $28,
			postmortem = $29, resolved_at = $30, updated_at = NOW()
		WHERE id = $1
	`,
		inc.ID,
		inc.Title,
		inc.Description,
		inc.Level,
		inc.Scope,
		inc.Status,
		inc.SafetyCompliance,
		inc.SecurityPrivacy,
		inc.DataQuality,
		inc.PSD2Impact,
		inc.StartedAt,
		inc.DetectedAt,
		inc.TimeFormat,
		inc.DetectionSource,
		inc.IncidentType,
		inc.IncidentCommander,
		inc.ReportingOrg,
		inc.EstimatedTimeToMitigation,
		inc.FirstDetectedIn,
		inc.AdditionalSubscribers,
		inc.SafetyComplianceDocURL,
		inc.SendEmailNotifications,
		inc.L5Confirmation,
		inc.MitigationPolicyAcknowledgment,
		nonNil(inc.ImpactedLocations),
		nonNil(inc.ImpactedParties),
		nonNil(inc.ImpactedAreas),
		nonNil(inc.ImpactedAssets),
		postmortem,
		inc.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("update incident: %w", err)
	}
	return nil
}

func scanIncident(row scanner) (*domain.Incident, error) {
	var (
		inc        domain.Incident
		postmortem []byte
	)
	err := row.Scan(
		&inc.ID,
		&inc.Title,
		&inc.Description,
		&inc.Level,
		&inc.Scope,
		&inc.Status,
		&inc.SafetyCompliance,
		&inc.SecurityPrivacy,
		&inc.DataQuality,
		&inc.PSD2Impact,
		&inc.StartedAt,
		&inc.DetectedAt,
		&inc.TimeFormat,
		&inc.DetectionSource,
		&inc.IncidentType,
		&inc.IncidentCommander,
		&inc.ReportingOrg,
		&inc.EstimatedTimeToMitigation,
		&inc.FirstDetectedIn,
		&inc.AdditionalSubscribers,
		&inc.SafetyComplianceDocURL,
		&inc.SendEmailNotifications,
		&inc.L5Confirmation,
		&inc.MitigationPolicyAcknowledgment,
		&inc.ImpactedLocations,
		&inc.ImpactedParties,
		&inc.ImpactedAreas,
		&inc.ImpactedAssets,
		&postmortem,
		&inc.ResolvedAt,
		&inc.CreatedBy,
		&inc.CreatedAt,
		&inc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if postmortem != nil {
		var pm domain.Postmortem
		if err := json.Unmarshal(postmortem, &pm); err != nil {
			return nil, fmt.Errorf("decode postmortem: %w", err)
		}
		inc.Postmortem = &pm
	}
	return &inc, nil
}

// buildWhere translates filters to a WHERE clause with positional arguments.
// Scalar filters match any of the values; array filters match on overlap.
func buildWhere(f query.Filters) (string, []any) {
	var (
		conds []string
		args  []any
	)

	if f.Search != "" {
		args = append(args, "%"+escapeLike(f.Search)+"%")
		n := len(args)
		conds = append(conds, fmt.Sprintf(
			"(title ILIKE $%[1]d OR description ILIKE $%[1]d OR incident_commander ILIKE $%[1]d OR reporting_org ILIKE $%[1]d)", n))
	}

	scalar := []struct {
		column string
		values []string
	}{
		{"status", f.Status},
		{"incident_type", f.IncidentType},
		{"detection_source", f.DetectionSource},
		{"reporting_org", f.ReportingOrg},
		{"incident_commander", f.IncidentCommander},
		{"level", f.Level},
		{"scope", f.Scope},
	}
	for _, s := range scalar {
		if len(s.values) == 0 {
			continue
		}
		args = append(args, s.values)
		conds = append(conds, fmt.Sprintf("%s = ANY($%d)", s.column, len(args)))
	}

	array := []struct {
		column string
		values []string
	}{
		{"impacted_locations", f.ImpactedLocations},
		{"impacted_parties", f.ImpactedParties},
		{"impacted_areas", f.ImpactedAreas},
		{"impacted_assets", f.ImpactedAssets},
	}
	for _, a := range array {
		if len(a.values) == 0 {
			continue
		}
		args = append(args, a.values)
		conds = append(conds, fmt.Sprintf("%s && $%d::text[]", a.column, len(args)))
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func orderBy(ordering string) string {
	direction := "ASC"
	if strings.HasPrefix(ordering, "-") {
		direction = "DESC"
		ordering = ordering[1:]
	}
	column, ok := orderingColumns[ordering]
	if !ok {
		column, direction = "created_at", "DESC"
	}
	return fmt.Sprintf(" ORDER BY %s %s, id %s", column, direction, direction)
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func marshalPostmortem(pm *domain.Postmortem) ([]byte, error) {
	if pm == nil {
		return nil, nil
	}
	data, err := json.Marshal(pm)
	if err != nil {
		return nil, fmt.Errorf("encode postmortem: %w", err)
	}
	return data, nil
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}

func isForeignKeyViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23503"
}

func rollback(ctx context.Context, tx pgx.Tx) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		ctxlog.FromContext(ctx).Error("failed to rollback transaction", "error", err)
	}
}
