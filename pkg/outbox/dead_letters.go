package outbox

import (
	"errors"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/angelmondragon/posledger-backend/pkg/db/models"
)

const maxDeadLetterMessage = 1024

// DeadLetters writes rows the publisher gave up on. Inserts always run in the
// publisher's claiming transaction.
type DeadLetters struct{}

func NewDeadLetters() DeadLetters {
	return DeadLetters{}
}

func (DeadLetters) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	if tx == nil {
		return errors.New("transaction required")
	}
	if entry.ErrorMessage != nil {
		msg := clip(*entry.ErrorMessage, maxDeadLetterMessage)
		entry.ErrorMessage = &msg
	}
	return tx.Create(&entry).Error
}

// clip shortens s to at most n bytes without splitting a UTF-8 sequence.
func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	s = s[:n]
	for len(s) > 0 && !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
