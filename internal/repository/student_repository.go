package repository

import (
	"context"

	"github.com/jmoiron/sqlx"

	"github.com/campuskit/ums-api/internal/models"
)

// StudentRepository reads the student directory. Student CRUD lives in the
// surrounding application; this subsystem only validates references.
type StudentRepository struct {
	db *sqlx.DB
}

// NewStudentRepository constructs the repository.
func NewStudentRepository(db *sqlx.DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// FindByID returns a student by ID.
func (r *StudentRepository) FindByID(ctx context.Context, id string) (*models.Student, error) {
	const query = `SELECT id, registration_no, full_name, program, active, created_at FROM students WHERE id = $1`
	var student models.Student
	if err := r.db.GetContext(ctx, &student, query, id); err != nil {
		return nil, err
	}
	return &student, nil
}
