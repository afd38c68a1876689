package dbtest

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/muhammadshahms/shoe-shop/internal/models"
)

// New opens a migrated in-memory sqlite database. A single connection is
// used so that every test sees the same memory database and concurrent
// transactions are serialised the way row locks serialise them on postgres.
func New(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("failed to connect to in-memory db: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to get sql.DB: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(models.All()...); err != nil {
		t.Fatalf("failed to migrate tables: %v", err)
	}

	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// Postgres returns a gorm handle on the postgres dialector that never
// connects. Use it with ToSQL to inspect the SQL a query renders; sqlite
// drops row locking clauses.
func Postgres(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN: "host=localhost user=shop dbname=shop sslmode=disable",
	}), &gorm.Config{DryRun: true, DisableAutomaticPing: true})
	if err != nil {
		t.Fatalf("failed to open postgres dialector: %v", err)
	}
	return db
}

func Product(t *testing.T, db *gorm.DB, id uint, name, price string, quantity uint) models.Product {
	t.Helper()

	p := models.Product{
		ID:       id,
		Name:     name,
		Price:    decimal.RequireFromString(price),
		Quantity: quantity,
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("failed to create product: %v", err)
	}
	return p
}

func Quantity(t *testing.T, db *gorm.DB, id uint) uint {
	t.Helper()

	var p models.Product
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("failed to load product %d: %v", id, err)
	}
	return p.Quantity
}

func Count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()

	var n int64
	if err := db.Model(model).Count(&n).Error; err != nil {
		t.Fatalf("failed to count: %v", err)
	}
	return n
}
