package statestore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/BlazeeWear/TrackFaro/internal/models"
	"github.com/pkg/errors"
)

// KeyValue — минимальный контракт бэкенда (Firebase RTDB или Postgres):
// Read возвращает (raw, found, err), Write замещает значение целиком,
// Patch делает merge верхнего уровня.
type KeyValue interface {
	Read(ctx context.Context, path string) (json.RawMessage, bool, error)
	Write(ctx context.Context, path string, value any) error
	Patch(ctx context.Context, path string, value any) error
}

// Store хранит состояние отгрузок поверх KeyValue.
// Все операции идемпотентны: повторный вызов с теми же аргументами
// не меняет записанное состояние.
type Store struct {
	kv KeyValue
}

func New(kv KeyValue) *Store {
	return &Store{kv: kv}
}

func path(code string) string {
	return "tracking/" + code
}

// Get читает запись по трек-коду. (nil, false, nil) если записи нет.
func (s *Store) Get(ctx context.Context, code string) (*models.ShipmentRecord, bool, error) {
	raw, ok, err := s.kv.Read(ctx, path(code))
	if err != nil {
		return nil, false, errors.Wrap(err, "read shipment record")
	}
	if !ok {
		return nil, false, nil
	}

	var rec models.ShipmentRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, false, errors.Wrap(err, "unmarshal shipment record")
	}
	return &rec, true, nil
}

// SaveNew создаёт запись, если её ещё нет. Существующая запись никогда
// не перезаписывается, чтобы created_at оставался стабильным якорем.
// true — запись есть (создана сейчас или раньше).
func (s *Store) SaveNew(ctx context.Context, code string, carrier models.Carrier, createdAt time.Time) (bool, error) {
	_, ok, err := s.Get(ctx, code)
	if err != nil {
		return false, err
	}
	if ok {
		return true, nil
	}

	if createdAt.IsZero() {
		createdAt = time.Now()
	}
	rec := models.ShipmentRecord{
		TrackingCode:    code,
		Carrier:         carrier,
		CreatedAt:       createdAt,
		HasRealTracking: false,
	}
	if err := s.kv.Write(ctx, path(code), rec); err != nil {
		return false, errors.Wrap(err, "write shipment record")
	}
	return true, nil
}

// CreationDate возвращает created_at записи; нулевое время, если записи нет.
func (s *Store) CreationDate(ctx context.Context, code string) (time.Time, error) {
	rec, ok, err := s.Get(ctx, code)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return rec.CreatedAt, nil
}

// AppendFictitious дописывает фиктивное сообщение.
// Возвращает false без ошибки, если запись уже защёлкнута реальным
// трекингом. Повторная запись того же текста — no-op с true.
func (s *Store) AppendFictitious(ctx context.Context, code, message string, scheduledAt time.Time) (bool, error) {
	rec, ok, err := s.Get(ctx, code)
	if err != nil {
		return false, err
	}
	if !ok || rec.HasRealTracking {
		return false, nil
	}
	for _, u := range rec.FakeUpdates {
		if u.Message == message {
			return true, nil
		}
	}

	updates := append(rec.FakeUpdates, models.FakeUpdate{
		Message:     message,
		ScheduledAt: scheduledAt,
		EmittedAt:   time.Now(),
	})
	err = s.kv.Patch(ctx, path(code), map[string]any{"fake_updates": updates})
	if err != nil {
		return false, errors.Wrap(err, "patch fake_updates")
	}
	return true, nil
}

// MarkRealTracking защёлкивает has_real_tracking. Обратного пути нет.
func (s *Store) MarkRealTracking(ctx context.Context, code string) error {
	rec, ok, err := s.Get(ctx, code)
	if err != nil {
		return err
	}
	if !ok || rec.HasRealTracking {
		return nil
	}
	err = s.kv.Patch(ctx, path(code), map[string]any{"has_real_tracking": true})
	return errors.Wrap(err, "patch has_real_tracking")
}

// LastNotified возвращает статус последнего разосланного уведомления
// по коду. Пустая строка — уведомлений ещё не было (или записи нет).
func (s *Store) LastNotified(ctx context.Context, code string) (string, error) {
	rec, ok, err := s.Get(ctx, code)
	if err != nil || !ok {
		return "", err
	}
	return rec.NotifiedStatus, nil
}

// MarkNotified фиксирует статус, о котором уже уведомили. Повторный
// вызов с тем же статусом — no-op по смыслу (значение не меняется).
func (s *Store) MarkNotified(ctx context.Context, code, status string) error {
	err := s.kv.Patch(ctx, path(code), map[string]any{"notified_status": status})
	return errors.Wrap(err, "patch notified_status")
}

// ListFictitious возвращает записанные фиктивные сообщения.
// После защёлки has_real_tracking список пуст: история фиктивных
// сообщений покупателю больше не показывается.
func (s *Store) ListFictitious(ctx context.Context, code string) ([]models.FakeUpdate, error) {
	rec, ok, err := s.Get(ctx, code)
	if err != nil || !ok {
		return nil, err
	}
	if rec.HasRealTracking {
		return nil, nil
	}
	return rec.FakeUpdates, nil
}
