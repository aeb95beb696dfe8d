package handler

import (
	"strings"
	"time"

	"cradle/internal/family/models"
	dErrors "cradle/pkg/domain-errors"
)

// maxBatch bounds POST /activities/batch.
const maxBatch = 500

// GuardianRequest is the body of POST /guardians.
type GuardianRequest struct {
	ID    string `json:"id,omitempty"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

func (r *GuardianRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	r.Email = strings.TrimSpace(r.Email)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func (r *GuardianRequest) Document() *models.Guardian {
	return &models.Guardian{Base: models.Base{ID: r.ID}, Name: r.Name, Email: r.Email}
}

// DependentRequest is the body of POST /dependents. The guardian id is
// resolved by the unit of work, not here.
type DependentRequest struct {
	ID         string    `json:"id,omitempty"`
	GuardianID string    `json:"guardianId"`
	Name       string    `json:"name"`
	BirthDate  time.Time `json:"birthDate,omitempty"`
}

func (r *DependentRequest) Validate() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeValidation, "name is required")
	}
	return nil
}

func (r *DependentRequest) Document() *models.Dependent {
	return &models.Dependent{
		Base:       models.Base{ID: r.ID},
		GuardianID: strings.TrimSpace(r.GuardianID),
		Name:       r.Name,
		BirthDate:  r.BirthDate.UTC(),
	}
}

// ActivityRequest is the body of POST /activities.
type ActivityRequest struct {
	ID          string              `json:"id,omitempty"`
	DependentID string              `json:"dependentId"`
	Kind        models.ActivityKind `json:"kind"`
	Phase       models.Phase        `json:"phase,omitempty"`
	Timestamp   time.Time           `json:"timestamp"`
	Note        string              `json:"note,omitempty"`
	Value       *float64            `json:"value,omitempty"`
}

func (r *ActivityRequest) Validate() error {
	return r.Document().Validate()
}

func (r *ActivityRequest) Document() *models.ActivityRecord {
	return &models.ActivityRecord{
		Base:        models.Base{ID: r.ID},
		DependentID: strings.TrimSpace(r.DependentID),
		Kind:        r.Kind,
		Phase:       r.Phase,
		Timestamp:   r.Timestamp.UTC(),
		Note:        r.Note,
		Value:       r.Value,
	}
}

// ActivityBatchRequest is the body of POST /activities/batch.
type ActivityBatchRequest struct {
	Activities []ActivityRequest `json:"activities"`
}

func (r *ActivityBatchRequest) Validate() error {
	if len(r.Activities) == 0 {
		return dErrors.New(dErrors.CodeValidation, "activities must not be empty")
	}
	if len(r.Activities) > maxBatch {
		return dErrors.New(dErrors.CodeValidation, "too many activities in one batch")
	}
	for i := range r.Activities {
		if err := r.Activities[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

func (r *ActivityBatchRequest) Documents() []models.Document {
	docs := make([]models.Document, len(r.Activities))
	for i := range r.Activities {
		docs[i] = r.Activities[i].Document()
	}
	return docs
}
