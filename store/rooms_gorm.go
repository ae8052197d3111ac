package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"game-room-engine/models"
)

type GormRooms struct {
	db *gorm.DB
}

func NewGormRooms(db *gorm.DB) *GormRooms {
	return &GormRooms{db: db}
}

// SaveRoom upserts the room and replaces its participant rows.
func (r *GormRooms) SaveRoom(ctx context.Context, room *models.GameRoom) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Save(room).Error; err != nil {
			return err
		}
		if err := tx.Where("room_id = ?", room.ID).Delete(&models.GameParticipant{}).Error; err != nil {
			return err
		}
		if len(room.Participants) == 0 {
			return nil
		}
		for i := range room.Participants {
			room.Participants[i].RoomID = room.ID
			if room.Participants[i].ID == "" {
				room.Participants[i].ID = uuid.NewString()
			}
		}
		return tx.Create(&room.Participants).Error
	})
}

func (r *GormRooms) GetRoom(ctx context.Context, id string) (*models.GameRoom, error) {
	var room models.GameRoom
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("seat") }).
		Where("id = ?", id).
		First(&room).Error
	if err != nil {
		return nil, notFound(err, "room "+id)
	}
	return &room, nil
}

func (r *GormRooms) AppendMove(ctx context.Context, m *models.MoveRecord) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Create(m).Error
}

func (r *GormRooms) Moves(ctx context.Context, roomID string) ([]models.MoveRecord, error) {
	var out []models.MoveRecord
	err := r.db.WithContext(ctx).
		Where("room_id = ?", roomID).
		Order("version, created_at").
		Find(&out).Error
	return out, err
}

func (r *GormRooms) PendingArchives(ctx context.Context, limit int) ([]models.GameRoom, error) {
	var out []models.GameRoom
	err := r.db.WithContext(ctx).
		Where("status IN ? AND archived_at IS NULL", []string{models.RoomFinished, models.RoomCancelled}).
		Order("finished_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (r *GormRooms) MarkArchived(ctx context.Context, roomID, url string, at time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.GameRoom{}).
		Where("id = ?", roomID).
		Updates(map[string]any{"archived_at": at, "archive_url": url})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return notFound(gorm.ErrRecordNotFound, "room "+roomID)
	}
	return nil
}

func (r *GormRooms) FinishedRooms(ctx context.Context, since time.Time, limit int) ([]models.GameRoom, error) {
	var out []models.GameRoom
	err := r.db.WithContext(ctx).
		Preload("Participants", func(db *gorm.DB) *gorm.DB { return db.Order("seat") }).
		Where("status = ? AND tournament_id IS NULL AND finished_at > ?", models.RoomFinished, since).
		Order("finished_at").
		Limit(limit).
		Find(&out).Error
	return out, err
}
