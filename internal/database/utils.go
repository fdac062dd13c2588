package database

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

func UpdateVideoSessionStatus(ctx context.Context, txn *gorm.DB, conversationID, status string) error {
	updates := map[string]any{"status": status, "updated_at": time.Now().UTC()}

	if err := txn.WithContext(ctx).Model(&VideoSession{}).
		Where("conversation_id = ?", conversationID).
		Updates(updates).Error; err != nil {
		slog.Error("error updating video session status", "conversation_id", conversationID, "status", status, "error", err)
		return err
	}
	return nil
}
