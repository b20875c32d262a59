package dbtest

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/posledger-backend/pkg/db/models"
)

func TestOpenIsQuietAndIsolated(t *testing.T) {
	first := Open(t)
	second := Open(t)

	assert.Equal(t, gormlogger.Discard, first.DB().Config.Logger)

	store := SeedStore(t, first, "Harbor")
	err := second.DB().Take(&models.Store{}, "id = ?", store.ID).Error
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound), "got %v", err)

	err = first.DB().Take(&models.Store{}, "id = ?", uuid.New()).Error
	require.True(t, errors.Is(err, gorm.ErrRecordNotFound), "got %v", err)
}
