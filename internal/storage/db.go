package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mendoc/paypal-listener/internal/domain"
)

// ErrNotFound is returned when a config key does not exist.
var ErrNotFound = errors.New("not found")

// Store persists configuration values, simulations and processed messages.
type Store struct {
	db *gorm.DB
}

// Open connects to the SQLite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("Open: connecting to database: %w", err)
	}
	if err := db.AutoMigrate(&ConfigEntry{}, &Simulation{}, &ProcessedEmail{}); err != nil {
		return nil, fmt.Errorf("Open: migrating schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("Close: getting sql.DB: %w", err)
	}
	return sqlDB.Close()
}

// GetConfig returns the value stored under name.
func (s *Store) GetConfig(ctx context.Context, name string) (string, error) {
	var entry ConfigEntry
	err := s.db.WithContext(ctx).Where("name = ?", name).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("GetConfig: %s: %w", name, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("GetConfig: reading %s: %w", name, err)
	}
	return entry.Value, nil
}

// SetConfig creates or overwrites a config value.
func (s *Store) SetConfig(ctx context.Context, name, value string) error {
	if err := upsertConfig(s.db.WithContext(ctx), name, value); err != nil {
		return fmt.Errorf("SetConfig: %w", err)
	}
	return nil
}

func upsertConfig(tx *gorm.DB, name, value string) error {
	entry := ConfigEntry{Name: name, Value: value, UpdatedAt: time.Now()}
	err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("writing %s: %w", name, err)
	}
	return nil
}

// Token returns the stored OAuth refresh token, empty when none was saved.
func (s *Store) Token(ctx context.Context) (string, error) {
	v, err := s.GetConfig(ctx, KeyToken)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}

// SetToken replaces the stored OAuth refresh token.
func (s *Store) SetToken(ctx context.Context, token string) error {
	return s.SetConfig(ctx, KeyToken, token)
}

// Balance returns the running PayPal balance, zero when never written.
func (s *Store) Balance(ctx context.Context) (decimal.Decimal, error) {
	v, err := s.GetConfig(ctx, KeyBalance)
	if errors.Is(err, ErrNotFound) {
		return decimal.Zero, nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	bal, err := domain.ParseBalance(v)
	if err != nil {
		return decimal.Zero, fmt.Errorf("Balance: %w", err)
	}
	return bal, nil
}

// SetBalance stores the balance with two decimals.
func (s *Store) SetBalance(ctx context.Context, balance decimal.Decimal) error {
	return s.SetConfig(ctx, KeyBalance, balance.StringFixed(2))
}

// CreateSimulation registers a pending simulation.
func (s *Store) CreateSimulation(ctx context.Context, reference string) error {
	sim := Simulation{Reference: reference, Statut: SimulationPending}
	if err := s.db.WithContext(ctx).Create(&sim).Error; err != nil {
		return fmt.Errorf("CreateSimulation: inserting %s: %w", reference, err)
	}
	return nil
}

// MarkSimulationProcessed moves a pending simulation to processed. It only
// succeeds from the pending state; a missing or already processed reference
// yields Success false. Only database failures are returned as errors.
func (s *Store) MarkSimulationProcessed(ctx context.Context, reference string) (SimulationResult, error) {
	res := s.db.WithContext(ctx).Model(&Simulation{}).
		Where("reference = ? AND statut = ?", reference, SimulationPending).
		Updates(map[string]interface{}{"statut": SimulationProcessed, "updated_at": time.Now()})
	if res.Error != nil {
		return SimulationResult{Message: "Erreur lors de la mise à jour."},
			fmt.Errorf("MarkSimulationProcessed: updating %s: %w", reference, res.Error)
	}

	switch res.RowsAffected {
	case 1:
		return SimulationResult{Success: true, Message: "Transaction marquée comme traitée."}, nil
	case 0:
		return SimulationResult{Message: "Transaction non trouvée ou déjà traitée."}, nil
	default:
		return SimulationResult{Message: "Erreur inattendue lors de la mise à jour."}, nil
	}
}

// SimulationStatus returns the status of a simulation.
func (s *Store) SimulationStatus(ctx context.Context, reference string) (int, error) {
	var sim Simulation
	err := s.db.WithContext(ctx).Where("reference = ?", reference).Take(&sim).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("SimulationStatus: %s: %w", reference, ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("SimulationStatus: reading %s: %w", reference, err)
	}
	return sim.Statut, nil
}

// ClaimMessage records that a message's payment is being accounted for.
// It returns false when the message was already claimed.
func (s *Store) ClaimMessage(ctx context.Context, rec *domain.PaymentRecord) (bool, error) {
	claimed, err := claim(s.db.WithContext(ctx), rec)
	if err != nil {
		return false, fmt.Errorf("ClaimMessage: %w", err)
	}
	return claimed, nil
}

// ApplyRecords claims every record's message and adds the signed amounts of
// the newly claimed ones to the balance, in one transaction. Records whose
// message was claimed before are left out of fresh.
func (s *Store) ApplyRecords(ctx context.Context, records []*domain.PaymentRecord) (fresh []*domain.PaymentRecord, balance decimal.Decimal, err error) {
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		fresh = fresh[:0]
		for _, rec := range records {
			ok, err := claim(tx, rec)
			if err != nil {
				return err
			}
			if ok {
				fresh = append(fresh, rec)
			}
		}

		var entry ConfigEntry
		err := tx.Where("name = ?", KeyBalance).Take(&entry).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("reading balance: %w", err)
		}
		current, err := domain.ParseBalance(entry.Value)
		if err != nil {
			return fmt.Errorf("parsing balance %q: %w", entry.Value, err)
		}

		balance = current.Add(domain.SumRecords(fresh))
		if len(fresh) == 0 {
			return nil
		}
		return upsertConfig(tx, KeyBalance, balance.StringFixed(2))
	})
	if err != nil {
		return nil, decimal.Zero, fmt.Errorf("ApplyRecords: %w", err)
	}
	return fresh, balance, nil
}

func claim(tx *gorm.DB, rec *domain.PaymentRecord) (bool, error) {
	row := ProcessedEmail{
		MessageID:   rec.MessageID,
		Kind:        string(rec.Kind()),
		Amount:      domain.Value(rec.Amount, ""),
		ProcessedAt: time.Now(),
	}
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return false, fmt.Errorf("claiming %s: %w", rec.MessageID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
