package database

import "time"

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null;size:64" json:"username"`
	PasswordHash string    `gorm:"not null" json:"-"`
	Role         string    `gorm:"not null;default:user" json:"role"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// Host is a saved Docker host the admin can connect to without retyping
// credentials. The SSH password is stored fernet-encrypted.
type Host struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:64" json:"name"`
	Address     string    `gorm:"not null" json:"address"`
	Username    string    `gorm:"not null" json:"username"`
	PasswordEnc string    `json:"-"`
	Container   string    `json:"container"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

type Setting struct {
	Key       string    `gorm:"primaryKey" json:"key"`
	Value     string    `gorm:"not null" json:"value"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AuditEntry records who ran which container action where.
type AuditEntry struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username  string    `gorm:"not null;index" json:"username"`
	Host      string    `gorm:"not null" json:"host"`
	Container string    `gorm:"not null" json:"container"`
	Action    string    `gorm:"not null" json:"action"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
