package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shenikar/civic_issue_reporter/internal/models"
	"github.com/shenikar/civic_issue_reporter/internal/service"
)

type IssueRepository struct {
	db *pgxpool.Pool
}

func NewIssueRepository(db *pgxpool.Pool) service.IssueRepository {
	return &IssueRepository{
		db: db,
	}
}

const issueColumns = `
	id,
	title,
	description,
	category,
	lat,
	lng,
	address,
	ward_id,
	photo_url,
	photo_geo_lat,
	photo_geo_lng,
	user_id,
	status,
	upvotes,
	downvotes,
	verification_threshold,
	comments,
	contributions,
	created_at,
	updated_at,
	resolved_at`

// Create создает новую запись об обращении в бд
func (r *IssueRepository) Create(ctx context.Context, issue *models.Issue) error {
	comments, contributions, err := marshalThreads(issue)
	if err != nil {
		return err
	}
	geoLat, geoLng := photoGeo(issue)

	query := `
		INSERT INTO issues (` + issueColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17::jsonb, $18::jsonb, $19, $20, $21);
	`
	_, err = r.db.Exec(ctx, query,
		issue.ID,
		issue.Title,
		issue.Description,
		issue.Category,
		issue.Location.Lat,
		issue.Location.Lng,
		issue.Address,
		issue.WardID,
		issue.PhotoURL,
		geoLat,
		geoLng,
		issue.UserID,
		issue.Status,
		issue.Upvotes,
		issue.Downvotes,
		issue.VerificationThreshold,
		comments,
		contributions,
		issue.CreatedAt,
		issue.UpdatedAt,
		issue.ResolvedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create issue: %w", err)
	}
	return nil
}

// GetByID возвращает обращение по его UUID
func (r *IssueRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Issue, error) {
	query := `SELECT ` + issueColumns + ` FROM issues WHERE id = $1;`
	issue, err := scanIssue(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("issue with id %s: %w", id, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get issue by id: %w", err)
	}
	return issue, nil
}

func (r *IssueRepository) Update(ctx context.Context, issue *models.Issue) error {
	comments, contributions, err := marshalThreads(issue)
	if err != nil {
		return err
	}

	query := `
		UPDATE issues SET
			status = $1,
			upvotes = $2,
			downvotes = $3,
			comments = $4::jsonb,
			contributions = $5::jsonb,
			updated_at = $6,
			resolved_at = $7
		WHERE id = $8;
	`
	cmdTag, err := r.db.Exec(ctx, query,
		issue.Status,
		issue.Upvotes,
		issue.Downvotes,
		comments,
		contributions,
		issue.UpdatedAt,
		issue.ResolvedAt,
		issue.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update issue: %w", err)
	}

	// RowsAffected() == 0 - обращения с таким id нет
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("issue with id %s not found for update: %w", issue.ID, service.ErrNotFound)
	}
	return nil
}

// List возвращает обращения, подходящие под фильтр, новые первыми
func (r *IssueRepository) List(ctx context.Context, filter models.IssueFilter) ([]*models.Issue, error) {
	var (
		where []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status = $%d", filter.Status)
	}
	if filter.Category != "" {
		add("category = $%d", filter.Category)
	}
	if filter.WardID != "" {
		add("ward_id = $%d", filter.WardID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		add("(title ILIKE $%[1]d OR address ILIKE $%[1]d)", "%"+q+"%")
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC;"

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	issues := make([]*models.Issue, 0)
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		issues = append(issues, issue)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return issues, nil
}

// RecordVote сохраняет голос и возвращает предыдущий одним запросом
func (r *IssueRepository) RecordVote(ctx context.Context, targetID uuid.UUID, userID string, vote int) (int, error) {
	query := `
		WITH prev AS (
			SELECT vote FROM votes WHERE target_id = $1 AND user_id = $2
		), upsert AS (
			INSERT INTO votes (target_id, user_id, vote)
			VALUES ($1, $2, $3)
			ON CONFLICT (target_id, user_id) DO UPDATE SET vote = EXCLUDED.vote
		)
		SELECT COALESCE((SELECT vote FROM prev), 0);
	`
	var prev int
	if err := r.db.QueryRow(ctx, query, targetID, userID, vote).Scan(&prev); err != nil {
		return 0, fmt.Errorf("failed to record vote: %w", err)
	}
	return prev, nil
}

func scanIssue(row pgx.Row) (*models.Issue, error) {
	var (
		issue                 models.Issue
		geoLat, geoLng        *float64
		comments, contributed []byte
	)
	err := row.Scan(
		&issue.ID,
		&issue.Title,
		&issue.Description,
		&issue.Category,
		&issue.Location.Lat,
		&issue.Location.Lng,
		&issue.Address,
		&issue.WardID,
		&issue.PhotoURL,
		&geoLat,
		&geoLng,
		&issue.UserID,
		&issue.Status,
		&issue.Upvotes,
		&issue.Downvotes,
		&issue.VerificationThreshold,
		&comments,
		&contributed,
		&issue.CreatedAt,
		&issue.UpdatedAt,
		&issue.ResolvedAt,
	)
	if err != nil {
		return nil, err
	}
	if geoLat != nil && geoLng != nil {
		issue.PhotoGeoTag = &models.GeoPoint{Lat: *geoLat, Lng: *geoLng}
	}
	if err := json.Unmarshal(comments, &issue.Comments); err != nil {
		return nil, fmt.Errorf("failed to unmarshal comments: %w", err)
	}
	if len(contributed) > 0 {
		if err := json.Unmarshal(contributed, &issue.Contributions); err != nil {
			return nil, fmt.Errorf("failed to unmarshal contributions: %w", err)
		}
	}
	if issue.Comments == nil {
		issue.Comments = []models.Comment{}
	}
	return &issue, nil
}

func marshalThreads(issue *models.Issue) (string, string, error) {
	comments := issue.Comments
	if comments == nil {
		comments = []models.Comment{}
	}
	c, err := json.Marshal(comments)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal comments: %w", err)
	}
	contributions := issue.Contributions
	if contributions == nil {
		contributions = []models.Contribution{}
	}
	k, err := json.Marshal(contributions)
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal contributions: %w", err)
	}
	return string(c), string(k), nil
}

func photoGeo(issue *models.Issue) (*float64, *float64) {
	if issue.PhotoGeoTag == nil {
		return nil, nil
	}
	lat, lng := issue.PhotoGeoTag.Lat, issue.PhotoGeoTag.Lng
	return &lat, &lng
}
