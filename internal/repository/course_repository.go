package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"coursepilot/internal/model"
)

// CourseRepository is read-only here; course CRUD is owned by another
// service.
type CourseRepository struct {
	db *gorm.DB
}

func NewCourseRepository(db *gorm.DB) *CourseRepository {
	return &CourseRepository{db: db}
}

func (r *CourseRepository) GetByID(id uint) (*model.Course, error) {
	var course model.Course
	if err := r.db.First(&course, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("get course failed: %w", err)
	}
	return &course, nil
}
