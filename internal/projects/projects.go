// Package projects holds the project records the sweep iterates over.
package projects

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// ProjectNotFoundError represents an error when a project is not found
type ProjectNotFoundError struct {
	ID uint
}

func (e *ProjectNotFoundError) Error() string {
	return fmt.Sprintf("project not found: %d", e.ID)
}

// Project represents a tracked site or application. Rollups are computed
// per project per calendar day.
type Project struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"not null" json:"name"`
	Domain    string    `gorm:"unique;not null" json:"domain"` // Base domain, e.g., "example.com"
	Active    bool      `gorm:"not null;default:true" json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// ListActive returns all projects the daily sweep should process.
func ListActive(db *gorm.DB) ([]Project, error) {
	var active []Project
	if err := db.Where("active = ?", true).Order("id asc").Find(&active).Error; err != nil {
		return nil, fmt.Errorf("failed to list active projects: %w", err)
	}
	return active, nil
}

// GetByID retrieves a single project.
func GetByID(db *gorm.DB, id uint) (*Project, error) {
	var project Project
	if err := db.First(&project, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, &ProjectNotFoundError{ID: id}
		}
		return nil, err
	}
	return &project, nil
}
