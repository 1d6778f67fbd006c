package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/classquiz/internal/gradebook"
	"github.com/mind-engage/classquiz/internal/quiz"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	now    func() time.Time
}

func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

// ---- results ----

const resultColumns = `quiz_id,student_id,student_name,quiz_title,class_code,answers_json,
	correct,total,percentage,points,max_points,submitted_at,time_taken,violations,
	auto_submitted,reason,released,released_at`

func (s *SQLStore) FindResult(ctx context.Context, quizID, studentID string) (quiz.Result, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+resultColumns+` FROM results WHERE quiz_id=$1 AND student_id=$2`, quizID, studentID)
	r, err := scanResult(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return quiz.Result{}, fmt.Errorf("result %s/%s: %w", quizID, studentID, ErrNotFound)
		}
		return quiz.Result{}, err
	}
	return r, nil
}

// UpsertResult overwrites the (quiz, student) row. Release state is carried
// over from the incoming value so a re-save never hides a released score.
func (s *SQLStore) UpsertResult(ctx context.Context, r quiz.Result) error {
	aj, err := json.Marshal(r.Answers)
	if err != nil {
		return err
	}
	var sc quiz.Score
	if r.Score != nil {
		sc = *r.Score
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO results (`+resultColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (quiz_id, student_id) DO UPDATE SET
			student_name=EXCLUDED.student_name, quiz_title=EXCLUDED.quiz_title, class_code=EXCLUDED.class_code,
			answers_json=EXCLUDED.answers_json, correct=EXCLUDED.correct, total=EXCLUDED.total,
			percentage=EXCLUDED.percentage, points=EXCLUDED.points, max_points=EXCLUDED.max_points,
			submitted_at=EXCLUDED.submitted_at, time_taken=EXCLUDED.time_taken, violations=EXCLUDED.violations,
			auto_submitted=EXCLUDED.auto_submitted, reason=EXCLUDED.reason,
			released=EXCLUDED.released, released_at=EXCLUDED.released_at`,
		r.QuizID, r.StudentID, r.StudentName, r.QuizTitle, quiz.NormalizeCode(r.ClassCode), string(aj),
		sc.Correct, sc.Total, sc.Percentage, sc.Points, sc.MaxPoints, r.SubmittedAt.Unix(), r.TimeTaken, r.Violations,
		r.AutoSubmitted, string(r.Reason), r.Released, nullUnix(r.ReleasedAt))
	return err
}

func (s *SQLStore) ListResults(ctx context.Context, f ResultFilter) ([]quiz.Result, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, col+"=$"+strconv.Itoa(len(args)))
	}
	if f.QuizID != "" {
		add("quiz_id", f.QuizID)
	}
	if f.StudentID != "" {
		add("student_id", f.StudentID)
	}
	if f.ClassCode != "" {
		add("class_code", quiz.NormalizeCode(f.ClassCode))
	}
	q := `SELECT ` + resultColumns + ` FROM results`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY submitted_at DESC, student_id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []quiz.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) ReleaseQuiz(ctx context.Context, quizID string, at time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE results SET released=$1, released_at=$2
		WHERE quiz_id=$3 AND released=$4`, true, at.Unix(), quizID, false)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLStore) ReleaseResult(ctx context.Context, quizID, studentID string, at time.Time) (quiz.Result, error) {
	if _, err := s.db.ExecContext(ctx, `UPDATE results SET released=$1, released_at=$2
		WHERE quiz_id=$3 AND student_id=$4 AND released=$5`, true, at.Unix(), quizID, studentID, false); err != nil {
		return quiz.Result{}, err
	}
	return s.FindResult(ctx, quizID, studentID)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanResult(row rowScanner) (quiz.Result, error) {
	var (
		r          quiz.Result
		sc         quiz.Score
		aj, reason string
		submitted  int64
		releasedAt sql.NullInt64
	)
	if err := row.Scan(&r.QuizID, &r.StudentID, &r.StudentName, &r.QuizTitle, &r.ClassCode, &aj,
		&sc.Correct, &sc.Total, &sc.Percentage, &sc.Points, &sc.MaxPoints, &submitted, &r.TimeTaken, &r.Violations,
		&r.AutoSubmitted, &reason, &r.Released, &releasedAt); err != nil {
		return quiz.Result{}, err
	}
	if err := json.Unmarshal([]byte(aj), &r.Answers); err != nil || r.Answers == nil {
		r.Answers = map[int]string{}
	}
	r.Score = &sc
	r.Reason = quiz.SubmitReason(reason)
	r.SubmittedAt = time.Unix(submitted, 0).UTC()
	r.ReleasedAt = fromNullUnix(releasedAt)
	return r, nil
}

// ---- classes ----

func (s *SQLStore) classExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM classes WHERE code=$1`, code).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

func (s *SQLStore) CreateClass(ctx context.Context, c quiz.Class) (quiz.Class, error) {
	if c.Code == "" {
		code, err := uniqueClassCode(func(code string) (bool, error) { return s.classExists(ctx, code) })
		if err != nil {
			return quiz.Class{}, err
		}
		c.Code = code
	}
	c.Code = quiz.NormalizeCode(c.Code)
	if c.CreatedAt.IsZero() {
		c.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO classes (code,name,schedule,instructor,description,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7) ON CONFLICT (code) DO NOTHING`,
		c.Code, c.Name, c.Schedule, c.Instructor, c.Description, c.CreatedBy, c.CreatedAt.Unix())
	if err != nil {
		return quiz.Class{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return quiz.Class{}, fmt.Errorf("class %s: %w", c.Code, ErrConflict)
	}
	return c, nil
}

const classColumns = `code,name,schedule,instructor,description,created_by,created_at`

func scanClass(row rowScanner) (quiz.Class, error) {
	var (
		c       quiz.Class
		created int64
	)
	if err := row.Scan(&c.Code, &c.Name, &c.Schedule, &c.Instructor, &c.Description, &c.CreatedBy, &created); err != nil {
		return quiz.Class{}, err
	}
	c.CreatedAt = time.Unix(created, 0).UTC()
	return c, nil
}

func (s *SQLStore) GetClassByCode(ctx context.Context, code string) (quiz.Class, error) {
	c, err := scanClass(s.db.QueryRowContext(ctx, `SELECT `+classColumns+` FROM classes WHERE code=$1`, quiz.NormalizeCode(code)))
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.Class{}, fmt.Errorf("class %s: %w", code, ErrNotFound)
	}
	return c, err
}

func (s *SQLStore) queryClasses(ctx context.Context, q string, args ...any) ([]quiz.Class, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []quiz.Class{}
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListClasses(ctx context.Context, createdBy string) ([]quiz.Class, error) {
	if createdBy == "" {
		return s.queryClasses(ctx, `SELECT `+classColumns+` FROM classes ORDER BY code`)
	}
	return s.queryClasses(ctx, `SELECT `+classColumns+` FROM classes WHERE created_by=$1 ORDER BY code`, createdBy)
}

func (s *SQLStore) CountClasses(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM classes`).Scan(&n)
	return n, err
}

// DeleteClass relies on ON DELETE CASCADE for enrollments and quizzes.
func (s *SQLStore) DeleteClass(ctx context.Context, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM classes WHERE code=$1`, quiz.NormalizeCode(code))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("class %s: %w", code, ErrNotFound)
	}
	return nil
}

// ---- enrollments ----

func (s *SQLStore) Enroll(ctx context.Context, studentID, code string) (quiz.Class, error) {
	c, err := s.GetClassByCode(ctx, code)
	if err != nil {
		return quiz.Class{}, err
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO enrollments (student_id,class_code,joined_at) VALUES ($1,$2,$3)
		ON CONFLICT (student_id, class_code) DO NOTHING`, studentID, c.Code, s.now().Unix())
	if err != nil {
		return quiz.Class{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return c, fmt.Errorf("enrollment %s: %w", c.Code, ErrConflict)
	}
	return c, nil
}

func (s *SQLStore) Unenroll(ctx context.Context, studentID, code string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM enrollments WHERE student_id=$1 AND class_code=$2`,
		studentID, quiz.NormalizeCode(code))
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("enrollment %s: %w", code, ErrNotFound)
	}
	return nil
}

func (s *SQLStore) EnrolledClasses(ctx context.Context, studentID string) ([]quiz.Class, error) {
	return s.queryClasses(ctx, `SELECT c.code,c.name,c.schedule,c.instructor,c.description,c.created_by,c.created_at
		FROM classes c JOIN enrollments e ON e.class_code = c.code
		WHERE e.student_id=$1 ORDER BY c.code`, studentID)
}

func (s *SQLStore) IsEnrolled(ctx context.Context, studentID, code string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM enrollments WHERE student_id=$1 AND class_code=$2`,
		studentID, quiz.NormalizeCode(code)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// ---- quizzes ----

const quizColumns = `id,title,instructions,questions_json,points,timer_minutes,due_at,topic,
	close_after_due,status,class_code,created_by,created_at`

func (s *SQLStore) PutQuiz(ctx context.Context, q quiz.Quiz) (quiz.Quiz, error) {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if prev, err := s.GetQuiz(ctx, q.ID); err == nil {
		q.CreatedAt = prev.CreatedAt
		if q.ClassCode == "" {
			q.ClassCode, q.Status = prev.ClassCode, prev.Status
		}
	} else if !errors.Is(err, ErrNotFound) {
		return quiz.Quiz{}, err
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = s.now()
	}
	if q.Status == "" {
		q.Status = quiz.StatusDraft
	}
	q.ClassCode = quiz.NormalizeCode(q.ClassCode)
	if q.ClassCode != "" {
		ok, err := s.classExists(ctx, q.ClassCode)
		if err != nil {
			return quiz.Quiz{}, err
		}
		if !ok {
			return quiz.Quiz{}, fmt.Errorf("class %s: %w", q.ClassCode, ErrNotFound)
		}
	}
	qj, err := json.Marshal(q.Questions)
	if err != nil {
		return quiz.Quiz{}, err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (`+quizColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, instructions=EXCLUDED.instructions,
			questions_json=EXCLUDED.questions_json, points=EXCLUDED.points, timer_minutes=EXCLUDED.timer_minutes,
			due_at=EXCLUDED.due_at, topic=EXCLUDED.topic, close_after_due=EXCLUDED.close_after_due,
			status=EXCLUDED.status, class_code=EXCLUDED.class_code`,
		q.ID, q.Title, q.Instructions, string(qj), nullInt(q.Points), nullInt(q.TimerMinutes), nullUnix(q.DueAt),
		q.Topic, q.CloseAfterDue, string(q.Status), nullString(q.ClassCode), q.CreatedBy, q.CreatedAt.Unix())
	if err != nil {
		return quiz.Quiz{}, err
	}
	return q, nil
}

func scanQuiz(row rowScanner) (quiz.Quiz, error) {
	var (
		q             quiz.Quiz
		qj, status    string
		points, timer sql.NullInt64
		due           sql.NullInt64
		classCode     sql.NullString
		created       int64
	)
	if err := row.Scan(&q.ID, &q.Title, &q.Instructions, &qj, &points, &timer, &due, &q.Topic,
		&q.CloseAfterDue, &status, &classCode, &q.CreatedBy, &created); err != nil {
		return quiz.Quiz{}, err
	}
	if err := json.Unmarshal([]byte(qj), &q.Questions); err != nil {
		return quiz.Quiz{}, err
	}
	q.Points = fromNullInt(points)
	q.TimerMinutes = fromNullInt(timer)
	q.DueAt = fromNullUnix(due)
	q.Status = quiz.Status(status)
	q.ClassCode = classCode.String
	q.CreatedAt = time.Unix(created, 0).UTC()
	return q, nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (quiz.Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizColumns+` FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	return q, err
}

func (s *SQLStore) ListQuizzes(ctx context.Context, f QuizFilter) ([]quiz.Quiz, error) {
	var (
		where []string
		args  []any
	)
	add := func(col string, v any) {
		args = append(args, v)
		where = append(where, col+"=$"+strconv.Itoa(len(args)))
	}
	if f.ClassCode != "" {
		add("class_code", quiz.NormalizeCode(f.ClassCode))
	}
	if f.Status != "" {
		add("status", string(f.Status))
	}
	if f.CreatedBy != "" {
		add("created_by", f.CreatedBy)
	}
	q := `SELECT ` + quizColumns + ` FROM quizzes`
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []quiz.Quiz{}
	for rows.Next() {
		qz, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, qz)
	}
	return out, rows.Err()
}

func (s *SQLStore) ListAssignedQuizzes(ctx context.Context, classCode string) ([]quiz.Quiz, error) {
	return s.ListQuizzes(ctx, QuizFilter{ClassCode: classCode, Status: quiz.StatusAssigned})
}

func (s *SQLStore) AssignQuiz(ctx context.Context, quizID, classCode string) (quiz.Quiz, error) {
	code := quiz.NormalizeCode(classCode)
	ok, err := s.classExists(ctx, code)
	if err != nil {
		return quiz.Quiz{}, err
	}
	if !ok {
		return quiz.Quiz{}, fmt.Errorf("class %s: %w", classCode, ErrNotFound)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET class_code=$1, status=$2 WHERE id=$3`,
		code, string(quiz.StatusAssigned), quizID)
	if err != nil {
		return quiz.Quiz{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, ErrNotFound)
	}
	return s.GetQuiz(ctx, quizID)
}

func (s *SQLStore) UnassignQuiz(ctx context.Context, quizID string) (quiz.Quiz, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE quizzes SET class_code=NULL, status=$1 WHERE id=$2`,
		string(quiz.StatusDraft), quizID)
	if err != nil {
		return quiz.Quiz{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return quiz.Quiz{}, fmt.Errorf("quiz %s: %w", quizID, ErrNotFound)
	}
	return s.GetQuiz(ctx, quizID)
}

func (s *SQLStore) DeleteQuiz(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM quizzes WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("quiz %s: %w", id, ErrNotFound)
	}
	return nil
}

// ---- gradebook line items ----

func (s *SQLStore) FindLineItem(ctx context.Context, quizID string) (gradebook.GradebookLineItem, error) {
	var li gradebook.GradebookLineItem
	err := s.db.QueryRowContext(ctx, `SELECT quiz_id,label,score_max,line_item_url
		FROM gradebook_line_items WHERE quiz_id=$1`, quizID).Scan(&li.QuizID, &li.Label, &li.ScoreMax, &li.LineItemURL)
	if errors.Is(err, sql.ErrNoRows) {
		return gradebook.GradebookLineItem{}, fmt.Errorf("line item %s: %w", quizID, ErrNotFound)
	}
	return li, err
}

func (s *SQLStore) UpsertLineItem(ctx context.Context, li gradebook.GradebookLineItem) (gradebook.GradebookLineItem, error) {
	_, err := s.db.ExecContext(ctx, `INSERT INTO gradebook_line_items (quiz_id,label,score_max,line_item_url)
		VALUES ($1,$2,$3,$4)
		ON CONFLICT (quiz_id) DO UPDATE SET label=EXCLUDED.label, score_max=EXCLUDED.score_max,
			line_item_url=EXCLUDED.line_item_url`,
		li.QuizID, li.Label, li.ScoreMax, li.LineItemURL)
	if err != nil {
		return gradebook.GradebookLineItem{}, err
	}
	return li, nil
}

// ---- null helpers ----

func nullInt(p *int) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*p), Valid: true}
}

func fromNullInt(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	v := int(n.Int64)
	return &v
}

func nullUnix(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.Unix(), Valid: true}
}

func fromNullUnix(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(n.Int64, 0).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
