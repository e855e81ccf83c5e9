package storage

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	mysqldrv "github.com/go-sql-driver/mysql"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ankityadav/uptimed/internal/config"
)

// Database implements Gateway on top of gorm.
type Database struct {
	db *gorm.DB
}

var _ Gateway = (*Database)(nil)

func Open(cfg config.DatabaseConfig) (*Database, error) {
	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	if cfg.Driver == "sqlite" {
		// sqlite serializes writers anyway; one connection avoids SQLITE_BUSY.
		sqlDB.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	return &Database{db: db}, nil
}

func dialectorFor(cfg config.DatabaseConfig) (gorm.Dialector, error) {
	dsn, err := withPassword(cfg.Driver, cfg.DSN, cfg.Password)
	if err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case "postgres":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite":
		if !strings.HasPrefix(dsn, "file:") && dsn != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dsn), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		return sqlite.Open(dsn), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// withPassword merges a separately supplied credential into the DSN so the
// secret can live in its own environment variable.
func withPassword(driver, dsn, password string) (string, error) {
	if password == "" {
		return dsn, nil
	}

	switch driver {
	case "postgres":
		if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
			u, err := url.Parse(dsn)
			if err != nil {
				return "", fmt.Errorf("invalid postgres dsn: %w", err)
			}
			var name string
			if u.User != nil {
				name = u.User.Username()
			}
			u.User = url.UserPassword(name, password)
			return u.String(), nil
		}
		escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(password)
		return dsn + " password='" + escaped + "'", nil
	case "mysql":
		c, err := mysqldrv.ParseDSN(dsn)
		if err != nil {
			return "", fmt.Errorf("invalid mysql dsn: %w", err)
		}
		c.Passwd = password
		return c.FormatDSN(), nil
	default:
		return dsn, nil
	}
}

// Migrate creates the tables this service touches. Hosted deployments
// usually own the schema elsewhere and never call it.
func (d *Database) Migrate() error {
	if err := d.db.AutoMigrate(&Target{}, &CheckResult{}, &Incident{}, &User{}); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (d *Database) ListActiveTargets(ctx context.Context) ([]Target, error) {
	var targets []Target
	err := d.db.WithContext(ctx).Where("is_active = ?", true).Order("created_at asc").Find(&targets).Error
	if err != nil {
		return nil, fmt.Errorf("list active targets: %w", err)
	}
	return targets, nil
}

func (d *Database) FetchTargetByID(ctx context.Context, id string) (*Target, error) {
	var t Target
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("target %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch target %s: %w", id, err)
	}
	return &t, nil
}

func (d *Database) ListTargetStamps(ctx context.Context) (map[string]time.Time, error) {
	var targets []Target
	err := d.db.WithContext(ctx).Select("id", "updated_at").Find(&targets).Error
	if err != nil {
		return nil, fmt.Errorf("list target stamps: %w", err)
	}
	stamps := make(map[string]time.Time, len(targets))
	for _, t := range targets {
		stamps[t.ID] = t.UpdatedAt
	}
	return stamps, nil
}

func (d *Database) InsertCheckResult(ctx context.Context, result *CheckResult) error {
	if err := d.db.WithContext(ctx).Create(result).Error; err != nil {
		return fmt.Errorf("insert check result for %s: %w", result.MonitorID, err)
	}
	return nil
}

// RecentCheckResults returns the newest results for a target, newest first.
func (d *Database) RecentCheckResults(ctx context.Context, targetID string, limit int) ([]CheckResult, error) {
	var results []CheckResult
	err := d.db.WithContext(ctx).
		Where("monitor_id = ?", targetID).
		Order("checked_at desc").
		Limit(limit).
		Find(&results).Error
	return results, err
}

func (d *Database) FindOpenIncidents(ctx context.Context, targetID string, kind Outcome) ([]Incident, error) {
	q := d.db.WithContext(ctx).
		Where("monitor_id = ? AND status = ? AND resolved_at IS NULL", targetID, IncidentActive)
	if kind != "" {
		q = q.Where("type = ?", kind)
	}

	var incidents []Incident
	if err := q.Order("started_at desc").Find(&incidents).Error; err != nil {
		return nil, fmt.Errorf("find open incidents for %s: %w", targetID, err)
	}
	return incidents, nil
}

func (d *Database) InsertIncident(ctx context.Context, incident *Incident) error {
	if err := d.db.WithContext(ctx).Create(incident).Error; err != nil {
		return fmt.Errorf("insert incident for %s: %w", incident.MonitorID, err)
	}
	return nil
}

// UpdateIncident applies fields to one incident. A resolution only matches
// an unresolved row and last_notified_at only moves forward; an update that
// matches nothing returns ErrNotFound.
func (d *Database) UpdateIncident(ctx context.Context, id string, fields IncidentUpdate) error {
	cols := fields.columns()
	if len(cols) == 0 {
		return nil
	}

	q := d.db.WithContext(ctx).Model(&Incident{}).Where("id = ?", id)
	if fields.ResolvedAt != nil {
		q = q.Where("resolved_at IS NULL")
	}
	if fields.LastNotifiedAt != nil {
		q = q.Where("(last_notified_at IS NULL OR last_notified_at < ?)", *fields.LastNotifiedAt)
	}

	res := q.Updates(cols)
	if res.Error != nil {
		return fmt.Errorf("update incident %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("update incident %s: %w", id, ErrNotFound)
	}
	return nil
}

func (d *Database) GetIncident(ctx context.Context, id string) (*Incident, error) {
	var i Incident
	err := d.db.WithContext(ctx).Where("id = ?", id).First(&i).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	return &i, err
}

func (d *Database) ListIncidents(ctx context.Context, targetID string) ([]Incident, error) {
	var incidents []Incident
	err := d.db.WithContext(ctx).
		Where("monitor_id = ?", targetID).
		Order("started_at asc").
		Find(&incidents).Error
	return incidents, err
}

func (d *Database) FetchOwnerEmail(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", fmt.Errorf("owner email: %w", ErrNotFound)
	}
	var u User
	err := d.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && u.Email == "") {
		return "", fmt.Errorf("owner email for user %s: %w", userID, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("fetch owner email for user %s: %w", userID, err)
	}
	return u.Email, nil
}

// CreateTarget and CreateUser exist for local installs and tests; hosted
// deployments populate these tables from the dashboard.
func (d *Database) CreateTarget(ctx context.Context, t *Target) error {
	return d.db.WithContext(ctx).Create(t).Error
}

func (d *Database) SaveTarget(ctx context.Context, t *Target) error {
	return d.db.WithContext(ctx).Save(t).Error
}

func (d *Database) DeleteTarget(ctx context.Context, id string) error {
	return d.db.WithContext(ctx).Delete(&Target{}, "id = ?", id).Error
}

func (d *Database) CreateUser(ctx context.Context, u *User) error {
	return d.db.WithContext(ctx).Create(u).Error
}
