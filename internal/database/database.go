package database

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSessionExists   = errors.New("session already exists")
)

type Database struct {
	db *gorm.DB
}

// Models

// UserSession is one Telegram user's custodial account. Secret columns
// hold vault envelopes, never plaintext.
type UserSession struct {
	UserID              int64  `gorm:"primaryKey;autoIncrement:false"`
	WalletAddress       string `gorm:"index"`
	EncryptedPrivateKey string
	EncryptedAPIKey     string
	EncryptedAPISecret  string
	IsInitialized       bool
	ConversationState   string          `gorm:"type:text"`
	Language            string          `gorm:"default:en"`
	TotalVolume         decimal.Decimal `gorm:"type:decimal(30,8);default:0"`
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

type Trade struct {
	ID        uint            `gorm:"primaryKey;autoIncrement"`
	UserID    int64           `gorm:"index"`
	Symbol    string          `gorm:"index"`
	Side      string          // "long", "short" or "close"
	SizeUSDT  decimal.Decimal `gorm:"type:decimal(30,8)"`
	Quantity  decimal.Decimal `gorm:"type:decimal(30,8)"`
	Leverage  int
	OrderID   string
	Status    string
	CreatedAt time.Time
}

func New(dsn string) (*Database, error) {
	var db *gorm.DB
	var err error

	// Check if this is a PostgreSQL connection string
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		db, err = gorm.Open(postgres.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		log.Info().Msg("Database connected (PostgreSQL)")
	} else {
		// SQLite fallback
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
		db, err = gorm.Open(sqlite.Open(dsn), &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		})
		if err != nil {
			return nil, err
		}
		// SQLite allows one writer at a time
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
		log.Info().Str("path", dsn).Msg("Database initialized (SQLite)")
	}

	if err := db.AutoMigrate(&UserSession{}, &Trade{}); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (d *Database) Close() error {
	sqlDB, err := d.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Session operations

func (d *Database) GetSession(ctx context.Context, userID int64) (*UserSession, error) {
	var s UserSession
	err := d.db.WithContext(ctx).First(&s, "user_id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// CreateSession inserts a new session. The wallet of an existing user is
// never replaced.
func (d *Database) CreateSession(ctx context.Context, s *UserSession) error {
	if s.Language == "" {
		s.Language = "en"
	}
	res := d.db.WithContext(ctx).Where("user_id = ?", s.UserID).FirstOrCreate(s)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionExists
	}
	return nil
}

// CompleteSession fills the wallet and credential columns of a session
// that exists but was never initialized. An initialized session is left
// untouched and ErrSessionExists is returned.
func (d *Database) CompleteSession(ctx context.Context, s *UserSession) error {
	res := d.db.WithContext(ctx).Model(&UserSession{}).
		Where("user_id = ? AND is_initialized = ?", s.UserID, false).
		Updates(map[string]interface{}{
			"wallet_address":        s.WalletAddress,
			"encrypted_private_key": s.EncryptedPrivateKey,
			"encrypted_api_key":     s.EncryptedAPIKey,
			"encrypted_api_secret":  s.EncryptedAPISecret,
			"is_initialized":        true,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}
	if _, err := d.GetSession(ctx, s.UserID); err != nil {
		return err
	}
	return ErrSessionExists
}

// SaveFlow stores the encoded conversation state; "" clears it.
func (d *Database) SaveFlow(ctx context.Context, userID int64, encoded string) error {
	return d.update(ctx, userID, "conversation_state", encoded)
}

func (d *Database) SetLanguage(ctx context.Context, userID int64, lang string) error {
	return d.update(ctx, userID, "language", lang)
}

// AddVolume increments the user's traded volume in a single statement.
func (d *Database) AddVolume(ctx context.Context, userID int64, amount decimal.Decimal) error {
	return d.update(ctx, userID, "total_volume", gorm.Expr("total_volume + ?", amount))
}

func (d *Database) update(ctx context.Context, userID int64, column string, value interface{}) error {
	res := d.db.WithContext(ctx).Model(&UserSession{}).Where("user_id = ?", userID).Update(column, value)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// Trade operations

func (d *Database) SaveTrade(ctx context.Context, trade *Trade) error {
	return d.db.WithContext(ctx).Create(trade).Error
}

func (d *Database) RecentTrades(ctx context.Context, userID int64, limit int) ([]Trade, error) {
	var trades []Trade
	err := d.db.WithContext(ctx).Where("user_id = ?", userID).Order("created_at DESC, id DESC").Limit(limit).Find(&trades).Error
	return trades, err
}

// Stats summarizes the store for the operator tooling.
type Stats struct {
	Users       int64
	Initialized int64
	Trades      int64
	Volume      decimal.Decimal
}

func (d *Database) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := d.db.WithContext(ctx)
	if err := db.Model(&UserSession{}).Count(&st.Users).Error; err != nil {
		return st, err
	}
	if err := db.Model(&UserSession{}).Where("is_initialized = ?", true).Count(&st.Initialized).Error; err != nil {
		return st, err
	}
	if err := db.Model(&Trade{}).Count(&st.Trades).Error; err != nil {
		return st, err
	}
	err := db.Model(&UserSession{}).Select("COALESCE(SUM(total_volume), 0)").Row().Scan(&st.Volume)
	return st, err
}
