package appointment

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Directory serves doctor profiles and their ratings.
type Directory struct {
	*runtime
}

func (d *Directory) DoctorProfile(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return d.store.GetDoctorByID(ctx, id)
}

// ListDoctors returns doctors ordered by name, optionally narrowed to one specialty (case-insensitive).
func (d *Directory) ListDoctors(ctx context.Context, specialty string) ([]Doctor, error) {
	out, err := d.store.ListDoctors(ctx, strings.TrimSpace(specialty))
	if err != nil {
		return nil, fmt.Errorf("list doctors: %w", err)
	}
	return out, nil
}

// RatingsForDoctor returns the doctor's ratings, newest first.
func (d *Directory) RatingsForDoctor(ctx context.Context, doctorID uuid.UUID) ([]DoctorRating, error) {
	if _, err := d.store.GetDoctorByID(ctx, doctorID); err != nil {
		return nil, err
	}
	out, err := d.store.ListRatingsByDoctor(ctx, doctorID)
	if err != nil {
		return nil, fmt.Errorf("list ratings: %w", err)
	}
	return out, nil
}

func (d *Directory) RegisterDoctor(ctx context.Context, nd NewDoctor) (*Doctor, error) {
	nd.Name = strings.TrimSpace(nd.Name)
	nd.Specialty = strings.TrimSpace(nd.Specialty)
	if nd.Name == "" || nd.Specialty == "" {
		return nil, fmt.Errorf("%w: name and specialty are required", ErrInvalidArgument)
	}
	if nd.ExperienceYears != nil && (*nd.ExperienceYears < 0 || *nd.ExperienceYears > 60) {
		return nil, fmt.Errorf("%w: experience must be between 0 and 60 years", ErrInvalidArgument)
	}
	if nd.ConsultationPrice != nil && *nd.ConsultationPrice < 0 {
		return nil, fmt.Errorf("%w: consultation price must not be negative", ErrInvalidArgument)
	}
	return d.store.CreateDoctor(ctx, nd)
}

func (d *Directory) RegisterPatient(ctx context.Context, np NewPatient) (*Patient, error) {
	np.Name = strings.TrimSpace(np.Name)
	if np.Name == "" {
		return nil, fmt.Errorf("%w: name is required", ErrInvalidArgument)
	}
	return d.store.CreatePatient(ctx, np)
}
