package database_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tauhid97k/school-management-sub000/internal/config"
	"github.com/tauhid97k/school-management-sub000/internal/database"
)

func TestDSN(t *testing.T) {
	cfg := config.Config{
		DBUser: "app",
		DBPass: "s3cret",
		DBHost: "db.internal",
		DBPort: "3306",
		DBName: "school",
	}
	require.Equal(t,
		"app:s3cret@tcp(db.internal:3306)/school?charset=utf8mb4&parseTime=true&loc=UTC",
		database.DSN(cfg))
}

func TestDSNWithoutPassword(t *testing.T) {
	cfg := config.Config{
		DBUser: "app",
		DBHost: "localhost",
		DBPort: "3306",
		DBName: "school",
	}
	require.Equal(t,
		"app@tcp(localhost:3306)/school?charset=utf8mb4&parseTime=true&loc=UTC",
		database.DSN(cfg))
}
