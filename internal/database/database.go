package database

import (
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jkeevk/aimlul-admin/internal/auth"
	"github.com/jkeevk/aimlul-admin/internal/config"
)

var DB *gorm.DB

func Init() error {
	dbPath := config.Cfg.DatabasePath
	if dbPath == "" {
		dbPath = filepath.Join(config.Cfg.DataPath, "admin.db")
	}
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create db directory: %w", err)
		}
	}

	var err error
	DB, err = gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("get sql.DB: %w", err)
	}
	if _, err := sqlDB.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return fmt.Errorf("set WAL mode: %w", err)
	}

	if err := DB.AutoMigrate(&User{}, &Host{}, &Setting{}, &AuditEntry{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func Close() {
	if DB == nil {
		return
	}
	if sqlDB, err := DB.DB(); err == nil {
		sqlDB.Close()
	}
}

// SeedAdmin creates the admin account from config on first run. Existing
// users are never modified.
func SeedAdmin(username, password string) error {
	var count int64
	if err := DB.Model(&User{}).Count(&count).Error; err != nil {
		return fmt.Errorf("count users: %w", err)
	}
	if count > 0 {
		return nil
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}
	user := User{Username: username, PasswordHash: hash, Role: "admin"}
	if err := DB.Create(&user).Error; err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("Seeded admin user %q", username)
	return nil
}

func GetUserByID(id uint) (*User, error) {
	var user User
	if err := DB.First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetUserByUsername(username string) (*User, error) {
	var user User
	if err := DB.Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetFirstAdmin() (*User, error) {
	var user User
	if err := DB.Where("role = ?", "admin").First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func GetSetting(key string) (string, error) {
	var setting Setting
	if err := DB.First(&setting, "key = ?", key).Error; err != nil {
		return "", err
	}
	return setting.Value, nil
}

func SetSetting(key, value string) error {
	setting := Setting{Key: key, Value: value}
	return DB.Save(&setting).Error
}

func ListHosts() ([]Host, error) {
	var hosts []Host
	if err := DB.Order("name").Find(&hosts).Error; err != nil {
		return nil, err
	}
	return hosts, nil
}

func GetHostByID(id uint) (*Host, error) {
	var host Host
	if err := DB.First(&host, id).Error; err != nil {
		return nil, err
	}
	return &host, nil
}

func GetHostByName(name string) (*Host, error) {
	var host Host
	if err := DB.Where("name = ?", name).First(&host).Error; err != nil {
		return nil, err
	}
	return &host, nil
}

func SaveHost(host *Host) error {
	return DB.Save(host).Error
}

func DeleteHost(id uint) error {
	res := DB.Delete(&Host{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// AddAudit records a container action. Best effort: failures are logged,
// never surfaced to the caller.
func AddAudit(username, host, container, action string) {
	if DB == nil {
		return
	}
	entry := AuditEntry{Username: username, Host: host, Container: container, Action: action}
	if err := DB.Create(&entry).Error; err != nil {
		log.Printf("[audit] record action: %v", err)
	}
}

// PruneAuditEntries deletes audit entries older than maxAge and returns
// how many were removed.
func PruneAuditEntries(maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge)
	res := DB.Where("created_at < ?", cutoff).Delete(&AuditEntry{})
	return res.RowsAffected, res.Error
}

// IsNotFound reports whether err is a missing-record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
