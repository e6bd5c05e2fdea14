package campaign

import (
	"context"
	"errors"
	"fmt"

	"github.com/foxzi/recupero/internal/models"
)

// ErrPersonNotFound is returned for an unknown person id
var ErrPersonNotFound = errors.New("person not found")

// PersonReader loads a single person
type PersonReader interface {
	GetByID(ctx context.Context, id string) (*models.Person, error)
}

// CallReader lists the voice calls recorded for a person
type CallReader interface {
	ListByPerson(ctx context.Context, personID string) ([]models.Call, error)
}

// PersonDetail is a person with its contact history
type PersonDetail struct {
	*models.Person
	Commitment *string       `json:"fecha_compromiso"`
	Calls      []models.Call `json:"llamadas"`
}

// PersonService reads person detail for the admin API
type PersonService struct {
	persons PersonReader
	calls   CallReader
}

// NewPersonService creates a new person service
func NewPersonService(persons PersonReader, calls CallReader) *PersonService {
	return &PersonService{persons: persons, calls: calls}
}

// Detail returns the person and its calls, newest first
func (s *PersonService) Detail(ctx context.Context, id string) (*PersonDetail, error) {
	p, err := s.persons.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrPersonNotFound, id)
	}

	calls, err := s.calls.ListByPerson(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	if calls == nil {
		calls = []models.Call{}
	}

	detail := &PersonDetail{Person: p, Calls: calls}
	if p.CommitmentDate.Valid {
		detail.Commitment = &p.CommitmentDate.String
	}
	return detail, nil
}
