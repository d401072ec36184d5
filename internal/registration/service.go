package registration

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"podium/internal/competition"
	"podium/internal/queue"
	"podium/internal/tasks"
)

var (
	ErrNotFound          = errors.New("competition not found")
	ErrDeadlineExceeded  = errors.New("registration deadline has passed")
	ErrCapacityExceeded  = errors.New("competition is full")
	ErrAlreadyRegistered = errors.New("already registered for this competition")
)

const (
	MsgRegistered = "Registration successful"
	MsgReplayed   = "Registration already exists (idempotent)"
)

type Result struct {
	RegistrationID string `json:"registrationId"`
	Message        string `json:"message"`
	Replayed       bool   `json:"-"`
}

type Service struct {
	DB    *gorm.DB
	Queue *queue.Repo
	Log   zerolog.Logger

	Now func() time.Time
}

func NewService(db *gorm.DB, q *queue.Repo, log zerolog.Logger) *Service {
	return &Service{DB: db, Queue: q, Log: log.With().Str("comp", "admission").Logger()}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Register admits userID into competitionID.
//
// A request carrying an idempotency key that already produced a
// registration returns that registration without touching anything.
// Otherwise the competition row is locked FOR UPDATE and the capacity
// count, duplicate check and insert all happen under that one lock, so
// concurrent callers for the last slot are serialized and the committed
// count never exceeds capacity. The confirmation task is written in the
// same transaction: a committed registration always has its task.
func (s *Service) Register(ctx context.Context, userID, competitionID, idemKey string) (Result, error) {
	idemKey = strings.TrimSpace(idemKey)
	db := s.DB.WithContext(ctx)

	if idemKey != "" {
		existing, err := s.findByKey(db, idemKey)
		if err != nil {
			return Result{}, err
		}
		if existing != nil {
			return replayed(existing.ID), nil
		}
	}

	var comp competition.Competition
	if err := db.Where("id = ?", competitionID).Take(&comp).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{}, ErrNotFound
		}
		return Result{}, fmt.Errorf("load competition: %w", err)
	}

	// fast-path rejection, no lock taken
	if !comp.RegistrationOpen(s.now()) {
		return Result{}, ErrDeadlineExceeded
	}

	var reg *Registration
	var replay bool
	err := db.Transaction(func(tx *gorm.DB) error {
		var locked competition.Competition
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Select("id", "capacity").
			Where("id = ?", competitionID).
			Take(&locked).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return fmt.Errorf("lock competition: %w", err)
		}

		// same-key requests that raced past the first lookup meet here
		if idemKey != "" {
			existing, err := s.findByKey(tx, idemKey)
			if err != nil {
				return err
			}
			if existing != nil {
				reg, replay = existing, true
				return nil
			}
		}

		var count int64
		if err := tx.Model(&Registration{}).Where("competition_id = ?", competitionID).Count(&count).Error; err != nil {
			return fmt.Errorf("count registrations: %w", err)
		}
		if count >= int64(locked.Capacity) {
			return ErrCapacityExceeded
		}

		var dup int64
		if err := tx.Model(&Registration{}).
			Where("competition_id = ? AND user_id = ?", competitionID, userID).
			Count(&dup).Error; err != nil {
			return fmt.Errorf("check duplicate: %w", err)
		}
		if dup > 0 {
			return ErrAlreadyRegistered
		}

		now := s.now()
		r := Registration{
			CompetitionID: competitionID,
			UserID:        userID,
			Status:        StatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if idemKey != "" {
			r.IdempotencyKey = &idemKey
		}
		if err := tx.Omit(clause.Associations).Create(&r).Error; err != nil {
			return fmt.Errorf("insert registration: %w", err)
		}

		task, err := tasks.NewConfirmation(tasks.Confirmation{
			RegistrationID: r.ID,
			UserID:         userID,
			CompetitionID:  competitionID,
		})
		if err != nil {
			return err
		}
		if err := s.Queue.EnqueueTx(tx, &task); err != nil {
			return err
		}

		reg = &r
		return nil
	})
	if err != nil {
		if isDomainErr(err) {
			return Result{}, err
		}
		// a unique violation on the key means another request with the
		// same key committed first; answer with its registration
		if idemKey != "" {
			if existing, lookupErr := s.findByKey(db, idemKey); lookupErr == nil && existing != nil {
				return replayed(existing.ID), nil
			}
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return Result{}, ErrAlreadyRegistered
		}
		return Result{}, fmt.Errorf("register: %w", err)
	}

	if replay {
		return replayed(reg.ID), nil
	}

	s.Log.Info().
		Str("registration", reg.ID).
		Str("competition", competitionID).
		Str("user", userID).
		Msg("registration admitted")
	return Result{RegistrationID: reg.ID, Message: MsgRegistered}, nil
}

func (s *Service) findByKey(db *gorm.DB, key string) (*Registration, error) {
	var r Registration
	err := db.Where("idempotency_key = ?", key).Take(&r).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup idempotency key: %w", err)
	}
	return &r, nil
}

func replayed(id string) Result {
	return Result{RegistrationID: id, Message: MsgReplayed, Replayed: true}
}

func isDomainErr(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrDeadlineExceeded) ||
		errors.Is(err, ErrCapacityExceeded) ||
		errors.Is(err, ErrAlreadyRegistered)
}

// Get loads a registration with its user and competition.
func (s *Service) Get(ctx context.Context, id string) (*Registration, error) {
	var r Registration
	err := s.DB.WithContext(ctx).
		Preload("User").
		Preload("Competition").
		Where("id = ?", id).
		Take(&r).Error
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// Confirm moves a registration to CONFIRMED. Setting it again is a no-op.
func (s *Service) Confirm(ctx context.Context, id string) error {
	return s.DB.WithContext(ctx).Model(&Registration{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": StatusConfirmed, "updated_at": s.now()}).Error
}
