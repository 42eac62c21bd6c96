package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/crmnexus/internal/logger"
	"github.com/crmnexus/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const attendanceCols = `id, user_id, date, check_in, check_out, status`

type AttendanceRepository struct {
	pool *pgxpool.Pool
}

func NewAttendanceRepository(pool *pgxpool.Pool) *AttendanceRepository {
	return &AttendanceRepository{pool: pool}
}

func scanAttendance(s interface{ Scan(dest ...any) error }, a *model.Attendance) error {
	return s.Scan(&a.ID, &a.UserID, &a.Date, &a.CheckIn, &a.CheckOut, &a.Status)
}

// CheckIn создаёт запись за день или возвращает существующую
// (повторный check-in за тот же день не перезаписывает первую отметку).
func (r *AttendanceRepository) CheckIn(ctx context.Context, a *model.Attendance) error {
	defer logger.DeferLogDuration("attendance.CheckIn", time.Now())()
	_, err := r.pool.Exec(ctx,
		`INSERT INTO attendance (id, user_id, date, check_in, check_out, status)
		 VALUES ($1, $2, $3, $4, NULL, $5)
		 ON CONFLICT (user_id, date) DO NOTHING`,
		a.ID, a.UserID, a.Date, a.CheckIn, a.Status,
	)
	if err != nil {
		return fmt.Errorf("attendanceRepo.CheckIn: %w", err)
	}
	return nil
}

// CheckOut проставляет время ухода в сегодняшней записи.
func (r *AttendanceRepository) CheckOut(ctx context.Context, userID string, date, t time.Time) error {
	defer logger.DeferLogDuration("attendance.CheckOut", time.Now())()
	tag, err := r.pool.Exec(ctx,
		`UPDATE attendance SET check_out = $1 WHERE user_id = $2 AND date = $3`,
		t, userID, date,
	)
	if err != nil {
		return fmt.Errorf("attendanceRepo.CheckOut: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *AttendanceRepository) GetForDay(ctx context.Context, userID string, date time.Time) (*model.Attendance, error) {
	defer logger.DeferLogDuration("attendance.GetForDay", time.Now())()
	a := &model.Attendance{}
	row := r.pool.QueryRow(ctx,
		`SELECT `+attendanceCols+` FROM attendance WHERE user_id = $1 AND date = $2`, userID, date)
	if err := scanAttendance(row, a); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("attendanceRepo.GetForDay: %w", err)
	}
	return a, nil
}

// ListRange — записи пользователя за интервал дат (табель за месяц).
func (r *AttendanceRepository) ListRange(ctx context.Context, userID string, from, to time.Time) ([]model.Attendance, error) {
	defer logger.DeferLogDuration("attendance.ListRange", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+attendanceCols+` FROM attendance
		 WHERE user_id = $1 AND date >= $2 AND date < $3
		 ORDER BY date ASC`, userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("attendanceRepo.ListRange query: %w", err)
	}
	defer rows.Close()
	records := make([]model.Attendance, 0, 31)
	for rows.Next() {
		var a model.Attendance
		if err := scanAttendance(rows, &a); err != nil {
			return nil, fmt.Errorf("attendanceRepo.ListRange scan: %w", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attendanceRepo.ListRange rows: %w", err)
	}
	return records, nil
}

// ListForDay — все отметившиеся за день (сводка для менеджера).
func (r *AttendanceRepository) ListForDay(ctx context.Context, date time.Time) ([]model.Attendance, error) {
	defer logger.DeferLogDuration("attendance.ListForDay", time.Now())()
	rows, err := r.pool.Query(ctx,
		`SELECT `+attendanceCols+` FROM attendance WHERE date = $1 ORDER BY check_in ASC`, date,
	)
	if err != nil {
		return nil, fmt.Errorf("attendanceRepo.ListForDay query: %w", err)
	}
	defer rows.Close()
	records := make([]model.Attendance, 0, 32)
	for rows.Next() {
		var a model.Attendance
		if err := scanAttendance(rows, &a); err != nil {
			return nil, fmt.Errorf("attendanceRepo.ListForDay scan: %w", err)
		}
		records = append(records, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("attendanceRepo.ListForDay rows: %w", err)
	}
	return records, nil
}
