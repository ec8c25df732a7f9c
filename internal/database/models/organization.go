package models

type Organization struct {
	Base
	Name         string `gorm:"not null" json:"name"`
	Slug         string `gorm:"uniqueIndex;not null" json:"slug"`
	Plan         string `gorm:"default:'free'" json:"plan"` // free, pro, enterprise
	MaxEmployees int    `gorm:"default:25" json:"max_employees"`

	// Relationships
	Users    []User    `gorm:"foreignKey:OrganizationID" json:"-"`
	Teams    []Team    `gorm:"foreignKey:OrganizationID" json:"-"`
	Projects []Project `gorm:"foreignKey:OrganizationID" json:"-"`
}

func (Organization) TableName() string {
	return "organizations"
}
