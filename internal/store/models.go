package store

import "time"

type Space struct {
	ID        string
	Name      string
	CreatedAt time.Time
}

type Project struct {
	ID              string
	SpaceID         string
	Name            string
	DefaultLanguage string
	Languages       []string
	CreatedAt       time.Time
}

type Branch struct {
	ID        string
	ProjectID string
	Name      string
	IsDefault bool
	CreatedAt time.Time
}
