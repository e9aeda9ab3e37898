// Package assessment persists users and their PHQ-9 screening responses.
package assessment

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"harmoni/internal/models"
	"harmoni/internal/observability"
	"harmoni/internal/service/screening"
	"harmoni/internal/storage"
)

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Identity identifies the caller. Key is the opaque value derived by the
// request middleware; Email and Username are optional profile details.
type Identity struct {
	Key      string
	Email    string
	Username string
}

// Submission is an unscored questionnaire.
type Submission struct {
	Scores     []int
	Impairment *models.FunctionalImpairment
	Notes      string
}

// HealthReport summarises connectivity and row counts.
type HealthReport struct {
	Connected     bool   `json:"connected"`
	UserCount     int64  `json:"totalUsers"`
	ResponseCount int64  `json:"totalResponses"`
	HighRiskCount int64  `json:"highRiskResponses"`
	Error         string `json:"error,omitempty"`
}

// Service handles user identity and screening persistence.
type Service struct {
	db      *sql.DB
	driver  string
	logger  *zap.Logger
	metrics *observability.Collector
	now     func() time.Time
}

// NewService builds a new assessment service for the given driver.
func NewService(db *sql.DB, driver string, logger *zap.Logger, metrics *observability.Collector) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:      db,
		driver:  driver,
		logger:  logger,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Service) q(query string) string {
	return storage.Rebind(s.driver, query)
}

// UpsertUser returns the user for id.Key, creating it on first sight and
// filling in email or username when newly supplied.
func (s *Service) UpsertUser(ctx context.Context, id Identity) (*models.User, error) {
	key := strings.TrimSpace(id.Key)
	if key == "" {
		return nil, errors.New("identity is required")
	}
	email := strings.TrimSpace(id.Email)
	username := strings.TrimSpace(id.Username)

	user, err := s.userByIdentity(ctx, key)
	switch {
	case err == nil:
		return s.refreshProfile(ctx, user, email, username)
	case !errors.Is(err, sql.ErrNoRows):
		return nil, err
	}

	now := s.now().UTC()
	user = &models.User{
		ID:        uuid.NewString(),
		Identity:  key,
		Email:     email,
		Username:  username,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err = s.db.ExecContext(ctx,
		s.q(`INSERT INTO users (id, identity, email, username, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`),
		user.ID, user.Identity, nullString(email), nullString(username), now, now,
	)
	if err != nil {
		if storage.IsUniqueViolation(err) {
			// Another request created it first.
			return s.userByIdentity(ctx, key)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

func (s *Service) refreshProfile(ctx context.Context, user *models.User, email, username string) (*models.User, error) {
	changed := false
	if email != "" && email != user.Email {
		user.Email = email
		changed = true
	}
	if username != "" && username != user.Username {
		user.Username = username
		changed = true
	}
	if !changed {
		return user, nil
	}
	user.UpdatedAt = s.now().UTC()
	if _, err := s.db.ExecContext(ctx,
		s.q(`UPDATE users SET email = ?, username = ?, updated_at = ? WHERE id = ?`),
		nullString(user.Email), nullString(user.Username), user.UpdatedAt, user.ID,
	); err != nil {
		return nil, fmt.Errorf("update user: %w", err)
	}
	return user, nil
}

func (s *Service) userByIdentity(ctx context.Context, key string) (*models.User, error) {
	var (
		user            models.User
		email, username sql.NullString
	)
	err := s.db.QueryRowContext(ctx,
		s.q(`SELECT id, identity, email, username, created_at, updated_at FROM users WHERE identity = ?`), key,
	).Scan(&user.ID, &user.Identity, &email, &username, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	user.Email = email.String
	user.Username = username.String
	return &user, nil
}

// CreateResponse scores and stores a submission for userID.
func (s *Service) CreateResponse(ctx context.Context, userID string, sub Submission) (*models.ScreeningResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, errors.New("user_id is required")
	}
	result, err := screening.Score(sub.Scores)
	if err != nil {
		return nil, err
	}

	resp := &models.ScreeningResponse{
		ID:                   uuid.NewString(),
		UserID:               userID,
		Scores:               result.Scores,
		FunctionalImpairment: sub.Impairment,
		TotalScore:           result.TotalScore,
		Severity:             result.Severity,
		RiskLevel:            result.RiskLevel,
		SuicidalIdeation:     result.SuicidalIdeation,
		FlaggedForReview:     result.FlaggedForReview,
		Notes:                strings.TrimSpace(sub.Notes),
		CreatedAt:            s.now().UTC(),
	}

	var impairment sql.NullString
	if resp.FunctionalImpairment != nil {
		impairment = sql.NullString{String: string(*resp.FunctionalImpairment), Valid: true}
	}
	sc := resp.Scores
	_, err = s.db.ExecContext(ctx, s.q(`INSERT INTO screening_responses (
			id, user_id, q1, q2, q3, q4, q5, q6, q7, q8, q9,
			functional_impairment, total_score, severity, risk_level,
			suicidal_ideation, flagged_for_review, notes, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		resp.ID, resp.UserID, sc[0], sc[1], sc[2], sc[3], sc[4], sc[5], sc[6], sc[7], sc[8],
		impairment, resp.TotalScore, string(resp.Severity), string(resp.RiskLevel),
		resp.SuicidalIdeation, resp.FlaggedForReview, nullString(resp.Notes), resp.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("create screening response: %w", err)
	}

	s.metrics.RecordScreening(string(resp.Severity), string(resp.RiskLevel))
	if resp.FlaggedForReview || resp.SuicidalIdeation {
		s.logger.Warn("high-risk screening submitted",
			zap.String("response_id", resp.ID),
			zap.String("user_id", userID),
			zap.String("risk_level", string(resp.RiskLevel)),
			zap.Bool("suicidal_ideation", resp.SuicidalIdeation),
		)
	}
	return resp, nil
}

const responseColumns = `id, user_id, q1, q2, q3, q4, q5, q6, q7, q8, q9,
	functional_impairment, total_score, severity, risk_level,
	suicidal_ideation, flagged_for_review, notes, review_notes, reviewed_by, reviewed_at, created_at`

// GetResponse loads one response by id. Missing rows yield sql.ErrNoRows.
func (s *Service) GetResponse(ctx context.Context, id string) (*models.ScreeningResponse, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+responseColumns+` FROM screening_responses WHERE id = ?`), id)
	return scanResponse(row)
}

// LatestForUser returns the newest response or sql.ErrNoRows.
func (s *Service) LatestForUser(ctx context.Context, userID string) (*models.ScreeningResponse, error) {
	row := s.db.QueryRowContext(ctx,
		s.q(`SELECT `+responseColumns+` FROM screening_responses WHERE user_id = ? ORDER BY created_at DESC LIMIT 1`),
		userID,
	)
	return scanResponse(row)
}

// ListForUser returns up to limit responses, newest first.
func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]*models.ScreeningResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+responseColumns+` FROM screening_responses WHERE user_id = ? ORDER BY created_at DESC LIMIT ?`),
		userID, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list screening responses: %w", err)
	}
	return collectResponses(rows)
}

// ListHighRisk returns responses with HIGH or CRITICAL risk, or any
// self-harm indication, newest first.
func (s *Service) ListHighRisk(ctx context.Context, limit int) ([]*models.ScreeningResponse, error) {
	rows, err := s.db.QueryContext(ctx,
		s.q(`SELECT `+responseColumns+` FROM screening_responses
			WHERE risk_level IN (?, ?) OR suicidal_ideation = ?
			ORDER BY created_at DESC LIMIT ?`),
		string(models.RiskHigh), string(models.RiskCritical), true, normalizeLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("list high-risk responses: %w", err)
	}
	return collectResponses(rows)
}

// Review annotates a response and clears its review flag.
func (s *Service) Review(ctx context.Context, id, reviewer, notes string) (*models.ScreeningResponse, error) {
	reviewer = strings.TrimSpace(reviewer)
	if reviewer == "" {
		return nil, errors.New("reviewer is required")
	}
	res, err := s.db.ExecContext(ctx,
		s.q(`UPDATE screening_responses SET review_notes = ?, reviewed_by = ?, reviewed_at = ?, flagged_for_review = ? WHERE id = ?`),
		nullString(strings.TrimSpace(notes)), reviewer, s.now().UTC(), false, id,
	)
	if err != nil {
		return nil, fmt.Errorf("review screening response: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return nil, sql.ErrNoRows
	}
	return s.GetResponse(ctx, id)
}

// Health probes connectivity and gathers aggregate counts.
func (s *Service) Health(ctx context.Context) HealthReport {
	var report HealthReport
	if _, err := s.db.ExecContext(ctx, `SELECT 1`); err != nil {
		report.Error = err.Error()
		return report
	}
	report.Connected = true

	counts := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&report.UserCount, `SELECT COUNT(*) FROM users`, nil},
		{&report.ResponseCount, `SELECT COUNT(*) FROM screening_responses`, nil},
		{&report.HighRiskCount, `SELECT COUNT(*) FROM screening_responses WHERE risk_level IN (?, ?)`,
			[]any{string(models.RiskHigh), string(models.RiskCritical)}},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, s.q(c.query), c.args...).Scan(c.dest); err != nil {
			report.Error = fmt.Sprintf("count: %v", err)
			return report
		}
	}
	return report
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResponse(row rowScanner) (*models.ScreeningResponse, error) {
	var (
		r                                   models.ScreeningResponse
		severity, risk                      string
		impairment, notes, review, reviewer sql.NullString
		reviewedAt                          sql.NullTime
	)
	err := row.Scan(
		&r.ID, &r.UserID,
		&r.Scores[0], &r.Scores[1], &r.Scores[2], &r.Scores[3], &r.Scores[4],
		&r.Scores[5], &r.Scores[6], &r.Scores[7], &r.Scores[8],
		&impairment, &r.TotalScore, &severity, &risk,
		&r.SuicidalIdeation, &r.FlaggedForReview, &notes, &review, &reviewer, &reviewedAt, &r.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan screening response: %w", err)
	}
	r.Severity = models.Severity(severity)
	r.RiskLevel = models.RiskLevel(risk)
	if impairment.Valid && impairment.String != "" {
		v := models.FunctionalImpairment(impairment.String)
		r.FunctionalImpairment = &v
	}
	r.Notes = notes.String
	r.ReviewNotes = review.String
	r.ReviewedBy = reviewer.String
	if reviewedAt.Valid {
		t := reviewedAt.Time
		r.ReviewedAt = &t
	}
	return &r, nil
}

func collectResponses(rows *sql.Rows) ([]*models.ScreeningResponse, error) {
	defer rows.Close()
	out := make([]*models.ScreeningResponse, 0)
	for rows.Next() {
		r, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func normalizeLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}

func nullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}
