package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/bizbooks/approvalflow/pkg/models"
	"github.com/bizbooks/approvalflow/pkg/persistence"
)

// TemplateRepository stores one JSON document per template under
// <root>/templates.
type TemplateRepository struct {
	persistence *Persistence
}

func (r *TemplateRepository) dir() string {
	return filepath.Join(r.persistence.root, "templates")
}

func (r *TemplateRepository) path(id string) string {
	return filepath.Join(r.dir(), id+".json")
}

func (r *TemplateRepository) Save(_ context.Context, template *models.WorkflowTemplate) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.persistence.writeDocument(r.path(template.ID), template)
}

func (r *TemplateRepository) GetByID(_ context.Context, id string) (*models.WorkflowTemplate, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	return r.load(id)
}

func (r *TemplateRepository) load(id string) (*models.WorkflowTemplate, error) {
	var template models.WorkflowTemplate

	found, err := r.persistence.readDocument(r.path(id), &template)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, fmt.Errorf("%w: %s", persistence.ErrTemplateNotFound, id)
	}

	template.SortSteps()

	return &template, nil
}

func (r *TemplateRepository) loadAll() ([]*models.WorkflowTemplate, error) {
	paths, err := r.persistence.listDocuments(r.dir())
	if err != nil {
		return nil, err
	}

	templates := make([]*models.WorkflowTemplate, 0, len(paths))

	for _, path := range paths {
		var template models.WorkflowTemplate

		found, err := r.persistence.readDocument(path, &template)
		if err != nil {
			return nil, err
		}

		if found {
			template.SortSteps()
			templates = append(templates, &template)
		}
	}

	return templates, nil
}

func (r *TemplateRepository) GetActiveDefault(_ context.Context, companyID, activityType string) (*models.WorkflowTemplate, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	templates, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	for _, template := range templates {
		if template.CompanyID == companyID && template.ActivityType == activityType &&
			template.Active && template.Default {
			return template, nil
		}
	}

	return nil, fmt.Errorf("%w: no active default for company %s, activity type %q",
		persistence.ErrTemplateNotFound, companyID, activityType)
}

func (r *TemplateRepository) List(_ context.Context, companyID, activityType string) ([]*models.WorkflowTemplate, error) {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	templates, err := r.loadAll()
	if err != nil {
		return nil, err
	}

	matches := make([]*models.WorkflowTemplate, 0, len(templates))

	for _, template := range templates {
		if template.CompanyID != companyID {
			continue
		}

		if activityType != "" && template.ActivityType != activityType {
			continue
		}

		matches = append(matches, template)
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].CreatedAt.Before(matches[j].CreatedAt)
	})

	return matches, nil
}

// SetDefault clears the previous default of the pair and marks the given
// template, under the persistence lock so readers never observe two defaults.
func (r *TemplateRepository) SetDefault(_ context.Context, companyID, activityType, templateID string) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	target, err := r.load(templateID)
	if err != nil {
		return err
	}

	if target.CompanyID != companyID || target.ActivityType != activityType {
		return fmt.Errorf("%w: %s does not belong to company %s, activity type %q",
			persistence.ErrTemplateNotFound, templateID, companyID, activityType)
	}

	templates, err := r.loadAll()
	if err != nil {
		return err
	}

	for _, template := range templates {
		if template.CompanyID != companyID || template.ActivityType != activityType {
			continue
		}

		wantDefault := template.ID == templateID
		if template.Default == wantDefault {
			continue
		}

		template.Default = wantDefault

		err = r.persistence.writeDocument(r.path(template.ID), template)
		if err != nil {
			return err
		}
	}

	return nil
}

func (r *TemplateRepository) Delete(_ context.Context, id string) error {
	r.persistence.mu.Lock()
	defer r.persistence.mu.Unlock()

	err := os.Remove(r.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", persistence.ErrTemplateNotFound, id)
		}

		return fmt.Errorf("failed to delete template %s: %w", id, err)
	}

	return nil
}
