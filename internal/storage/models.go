package storage

import (
	"time"
)

// Config keys.
const (
	KeyToken   = "token"
	KeyBalance = "balancepp"
)

// Simulation states.
const (
	SimulationPending   = 0
	SimulationProcessed = 1
)

// ConfigEntry is a named scalar setting.
type ConfigEntry struct {
	Name      string `gorm:"primaryKey"`
	Value     string
	UpdatedAt time.Time
}

func (ConfigEntry) TableName() string {
	return "config"
}

// Simulation is a pending outgoing payment, identified by the internal
// reference the payer puts in the PayPal note.
type Simulation struct {
	ID        uint   `gorm:"primaryKey;autoIncrement"`
	Reference string `gorm:"type:varchar(32);not null;uniqueIndex"`
	Statut    int    `gorm:"not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Simulation) TableName() string {
	return "simulations"
}

// ProcessedEmail records a message whose payment has been accounted for.
type ProcessedEmail struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	MessageID   string `gorm:"type:varchar(255);not null;uniqueIndex"`
	Kind        string `gorm:"type:varchar(16)"`
	Amount      string
	ProcessedAt time.Time
}

func (ProcessedEmail) TableName() string {
	return "processed_emails"
}

// SimulationResult reports the outcome of a simulation transition.
type SimulationResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}
