package service

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/pixelvault/vault/cmd/vault/models"
	"github.com/pixelvault/vault/common/apperr"
	"github.com/pixelvault/vault/common/logger"
)

// ImageSearcher is the query surface of the metadata store.
type ImageSearcher interface {
	ListByOwner(ctx context.Context, owner string) ([]*models.ImageRecord, error)
	Search(ctx context.Context, owner, query string) ([]*models.ImageRecord, error)
}

// SearchService answers owner-scoped queries. The text query matches
// tags exactly (case-insensitive) or the description as a substring;
// an optional filter expression refines results further in-process.
type SearchService struct {
	repo ImageSearcher
	env  *cel.Env
	log  *logger.Logger
}

func NewSearchService(repo ImageSearcher, log *logger.Logger) (*SearchService, error) {
	env, err := cel.NewEnv(
		cel.Variable("tags", cel.ListType(cel.StringType)),
		cel.Variable("description", cel.StringType),
		cel.Variable("file_name", cel.StringType),
		cel.Variable("file_size", cel.IntType),
		cel.Variable("mime_type", cel.StringType),
		cel.Variable("is_featured", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to build filter environment: %w", err)
	}
	return &SearchService{repo: repo, env: env, log: log}, nil
}

// Search runs the text query, then the optional filter expression.
// An empty query lists everything the owner has.
func (s *SearchService) Search(ctx context.Context, owner, query, filter string) ([]*models.ImageRecord, error) {
	if owner == "" {
		return nil, apperr.Validation("owner is required")
	}

	var (
		records []*models.ImageRecord
		err     error
	)
	if query == "" {
		records, err = s.repo.ListByOwner(ctx, owner)
	} else {
		records, err = s.repo.Search(ctx, owner, query)
	}
	if err != nil {
		return nil, err
	}

	if filter == "" {
		return records, nil
	}
	return s.applyFilter(records, filter)
}

func (s *SearchService) applyFilter(records []*models.ImageRecord, filter string) ([]*models.ImageRecord, error) {
	ast, issues := s.env.Compile(filter)
	if issues != nil && issues.Err() != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid filter expression: %v", issues.Err()))
	}
	if !ast.OutputType().IsExactType(cel.BoolType) {
		return nil, apperr.Validation("filter expression must evaluate to a boolean")
	}

	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, apperr.Validation(fmt.Sprintf("invalid filter expression: %v", err))
	}

	matched := make([]*models.ImageRecord, 0, len(records))
	for _, rec := range records {
		out, _, err := prg.Eval(map[string]any{
			"tags":        rec.Tags,
			"description": rec.DescriptionText(),
			"file_name":   rec.FileName,
			"file_size":   rec.FileSize,
			"mime_type":   rec.MimeType,
			"is_featured": rec.IsFeatured,
		})
		if err != nil {
			// Evaluation errors exclude the record rather than failing
			// the whole query.
			s.log.Debug("filter evaluation error", "image_id", rec.ID, "error", err)
			continue
		}
		if keep, ok := out.Value().(bool); ok && keep {
			matched = append(matched, rec)
		}
	}
	return matched, nil
}
