package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/punchamoorthee/hostelops/internal/domain"
	"github.com/shopspring/decimal"
)

const (
	pgUniqueViolation      = "23505"
	pgForeignKeyViolation  = "23503"
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"

	oneActivePerStudent = "allocations_one_active_per_student"
)

type PostgresStore struct {
	Db          *pgxpool.Pool
	lockTimeout time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to Postgres. lockTimeout bounds every row-lock wait
// inside WithinTx; zero leaves the server default.
func NewPostgresStore(ctx context.Context, connString string, maxConns int32, lockTimeout time.Duration) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database config: %w", err)
	}
	if maxConns > 0 {
		config.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresStore{Db: pool, lockTimeout: lockTimeout}, nil
}

func (s *PostgresStore) Close() {
	s.Db.Close()
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.Db.Ping(ctx)
}

// classify maps driver errors onto the domain taxonomy. Context errors
// pass through untouched.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var known interface{ Reason() domain.Reason }
	if errors.As(err, &known) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable:
			return &domain.ConflictError{Code: domain.ReasonLockTimeout, Err: err}
		case pgSerializationFailure, pgDeadlockDetected:
			return &domain.ConflictError{Code: domain.ReasonSerializationFailure, Err: err}
		case pgUniqueViolation:
			if pgErr.ConstraintName == oneActivePerStudent {
				return &domain.DenyError{Code: domain.ReasonAlreadyAllocated}
			}
			return &domain.ValidationError{Field: columnOf(pgErr), Message: "already exists"}
		case pgForeignKeyViolation:
			return &domain.ValidationError{Field: columnOf(pgErr), Message: "references a missing row"}
		}
	}
	return &domain.StoreError{Op: op, Err: err}
}

func columnOf(pgErr *pgconn.PgError) string {
	if pgErr.ColumnName != "" {
		return pgErr.ColumnName
	}
	return pgErr.ConstraintName
}

// WithinTx implements AllocationStore using a READ COMMITTED transaction.
// Row locks come from SELECT ... FOR UPDATE in the Tx methods.
func (s *PostgresStore) WithinTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.Db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin", err)
	}
	defer tx.Rollback(ctx)

	if s.lockTimeout > 0 {
		ms := fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, "SELECT set_config('lock_timeout', $1, true)", ms); err != nil {
			return classify("set lock_timeout", err)
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		return classify("tx", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (s *PostgresStore) FindActiveAllocation(ctx context.Context, allocationID, studentID int64) (*domain.Allocation, error) {
	q := selectAllocation + " WHERE status = 'ACTIVE' AND "
	arg := studentID
	if allocationID != 0 {
		q += "id = $1"
		arg = allocationID
	} else {
		q += "student_id = $1"
	}
	a, err := scanAllocation(s.Db.QueryRow(ctx, q, arg))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find active allocation", err)
	}
	return a, nil
}

type pgTx struct {
	tx pgx.Tx
}

const (
	selectRoom       = "SELECT id, hostel_id, room_number, capacity, occupied, status, created_at FROM rooms"
	selectStudent    = "SELECT id, user_id, reg_number, first_name, last_name, gender, created_at FROM students"
	selectHostel     = "SELECT id, name, gender, total_rooms, fee_amount::text, created_at FROM hostels"
	selectAllocation = "SELECT id, student_id, room_id, status, allocated_at, vacated_at FROM allocations"
	selectPayment    = "SELECT id, student_id, hostel_id, amount::text, payment_option, status, reference, created_at FROM payments"
)

func scanRoom(row pgx.Row) (*domain.Room, error) {
	var r domain.Room
	if err := row.Scan(&r.ID, &r.HostelID, &r.RoomNumber, &r.Capacity, &r.Occupied, &r.Status, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func scanStudent(row pgx.Row) (*domain.Student, error) {
	var s domain.Student
	if err := row.Scan(&s.ID, &s.UserID, &s.RegNumber, &s.FirstName, &s.LastName, &s.Gender, &s.CreatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func scanHostel(row pgx.Row) (*domain.Hostel, error) {
	var h domain.Hostel
	var fee string
	if err := row.Scan(&h.ID, &h.Name, &h.Gender, &h.TotalRooms, &fee, &h.CreatedAt); err != nil {
		return nil, err
	}
	amount, err := decimal.NewFromString(fee)
	if err != nil {
		return nil, fmt.Errorf("hostel %d fee: %w", h.ID, err)
	}
	h.FeeAmount = amount
	return &h, nil
}

func scanAllocation(row pgx.Row) (*domain.Allocation, error) {
	var a domain.Allocation
	if err := row.Scan(&a.ID, &a.StudentID, &a.RoomID, &a.Status, &a.AllocatedAt, &a.VacatedAt); err != nil {
		return nil, err
	}
	return &a, nil
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var amount string
	var reference *string
	if err := row.Scan(&p.ID, &p.StudentID, &p.HostelID, &amount, &p.Option, &p.Status, &reference, &p.CreatedAt); err != nil {
		return nil, err
	}
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return nil, fmt.Errorf("payment %d amount: %w", p.ID, err)
	}
	p.Amount = d
	if reference != nil {
		p.Reference = *reference
	}
	return &p, nil
}

// optional turns pgx.ErrNoRows into a nil result.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return v, err
}

func (t *pgTx) LockRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	return optional(scanRoom(t.tx.QueryRow(ctx, selectRoom+" WHERE id = $1 FOR UPDATE", roomID)))
}

func (t *pgTx) LockStudent(ctx context.Context, studentID int64) (*domain.Student, error) {
	return optional(scanStudent(t.tx.QueryRow(ctx, selectStudent+" WHERE id = $1 FOR UPDATE", studentID)))
}

func (t *pgTx) GetHostel(ctx context.Context, hostelID int64) (*domain.Hostel, error) {
	return optional(scanHostel(t.tx.QueryRow(ctx, selectHostel+" WHERE id = $1", hostelID)))
}

func (t *pgTx) HasPaidPayment(ctx context.Context, studentID, hostelID int64) (bool, error) {
	return hasPaidPayment(ctx, t.tx, studentID, hostelID)
}

func (t *pgTx) ActiveAllocationForStudent(ctx context.Context, studentID int64) (*domain.Allocation, error) {
	return optional(scanAllocation(t.tx.QueryRow(ctx,
		selectAllocation+" WHERE student_id = $1 AND status = 'ACTIVE' FOR UPDATE", studentID)))
}

func (t *pgTx) ActiveAllocationByID(ctx context.Context, allocationID int64) (*domain.Allocation, error) {
	return optional(scanAllocation(t.tx.QueryRow(ctx,
		selectAllocation+" WHERE id = $1 AND status = 'ACTIVE' FOR UPDATE", allocationID)))
}

func (t *pgTx) InsertAllocation(ctx context.Context, a *domain.Allocation) error {
	return t.tx.QueryRow(ctx,
		`INSERT INTO allocations (student_id, room_id, status, allocated_at)
		 VALUES ($1, $2, $3, $4) RETURNING id`,
		a.StudentID, a.RoomID, a.Status, a.AllocatedAt).Scan(&a.ID)
}

func (t *pgTx) VacateAllocation(ctx context.Context, allocationID int64, at time.Time) error {
	tag, err := t.tx.Exec(ctx,
		"UPDATE allocations SET status = 'VACATED', vacated_at = $2 WHERE id = $1 AND status = 'ACTIVE'",
		allocationID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return domain.NotFound(domain.ReasonAllocationNotFound, allocationID)
	}
	return nil
}

func (t *pgTx) SetOccupancy(ctx context.Context, roomID int64, occupied int, status domain.RoomStatus) error {
	tag, err := t.tx.Exec(ctx, "UPDATE rooms SET occupied = $2, status = $3 WHERE id = $1", roomID, occupied, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() != 1 {
		return domain.NotFound(domain.ReasonRoomNotFound, roomID)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func hasPaidPayment(ctx context.Context, q querier, studentID, hostelID int64) (bool, error) {
	var ok bool
	err := q.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM payments WHERE student_id = $1 AND hostel_id = $2 AND status = 'PAID')",
		studentID, hostelID).Scan(&ok)
	return ok, err
}

// Payments

func (s *PostgresStore) HasPaidPayment(ctx context.Context, studentID, hostelID int64) (bool, error) {
	ok, err := hasPaidPayment(ctx, s.Db, studentID, hostelID)
	return ok, classify("has paid payment", err)
}

func (s *PostgresStore) CreatePayment(ctx context.Context, p *domain.Payment) error {
	var reference *string
	if p.Reference != "" {
		reference = &p.Reference
	}
	err := s.Db.QueryRow(ctx,
		`INSERT INTO payments (student_id, hostel_id, amount, payment_option, status, reference)
		 VALUES ($1, $2, $3::numeric, $4, $5, $6) RETURNING id, created_at`,
		p.StudentID, p.HostelID, p.Amount.StringFixed(2), p.Option, p.Status, reference).Scan(&p.ID, &p.CreatedAt)
	return classify("create payment", err)
}

func (s *PostgresStore) GetPayment(ctx context.Context, id int64) (*domain.Payment, error) {
	p, err := scanPayment(s.Db.QueryRow(ctx, selectPayment+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonPaymentNotFound, id)
	}
	return p, classify("get payment", err)
}

// MarkPaymentPaid only matches PENDING rows. No row back means the payment
// is either missing or already settled; a plain read tells which.
func (s *PostgresStore) MarkPaymentPaid(ctx context.Context, id int64) (*domain.Payment, bool, error) {
	p, err := scanPayment(s.Db.QueryRow(ctx,
		`UPDATE payments SET status = 'PAID' WHERE id = $1 AND status = 'PENDING'
		 RETURNING id, student_id, hostel_id, amount::text, payment_option, status, reference, created_at`, id))
	if err == nil {
		return p, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, classify("mark payment paid", err)
	}
	current, err := s.GetPayment(ctx, id)
	if err != nil {
		return nil, false, err
	}
	return current, false, nil
}

func (s *PostgresStore) DeletePendingPayment(ctx context.Context, id int64) error {
	var status domain.PaymentStatus
	err := s.Db.QueryRow(ctx, "DELETE FROM payments WHERE id = $1 AND status = 'PENDING' RETURNING status", id).Scan(&status)
	if err == nil {
		return nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return classify("delete payment", err)
	}
	if _, err := s.GetPayment(ctx, id); err != nil {
		return err
	}
	return &domain.DenyError{Code: domain.ReasonPaymentSettled}
}

func (s *PostgresStore) listPayments(ctx context.Context, op, where string, args ...any) ([]domain.Payment, error) {
	rows, err := s.Db.Query(ctx, selectPayment+where+" ORDER BY created_at DESC, id DESC", args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	payments := []domain.Payment{}
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		payments = append(payments, *p)
	}
	return payments, classify(op, rows.Err())
}

func (s *PostgresStore) ListPayments(ctx context.Context) ([]domain.Payment, error) {
	return s.listPayments(ctx, "list payments", "")
}

func (s *PostgresStore) PaymentsForStudent(ctx context.Context, studentID int64) ([]domain.Payment, error) {
	return s.listPayments(ctx, "student payments", " WHERE student_id = $1", studentID)
}

func (s *PostgresStore) LatestPaymentForStudent(ctx context.Context, studentID int64) (*domain.Payment, error) {
	p, err := optional(scanPayment(s.Db.QueryRow(ctx,
		selectPayment+" WHERE student_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1", studentID)))
	return p, classify("latest payment", err)
}

// Directory

func (s *PostgresStore) GetStudent(ctx context.Context, id int64) (*domain.Student, error) {
	st, err := scanStudent(s.Db.QueryRow(ctx, selectStudent+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonStudentNotFound, id)
	}
	return st, classify("get student", err)
}

func (s *PostgresStore) GetStudentByUserID(ctx context.Context, userID int64) (*domain.Student, error) {
	st, err := scanStudent(s.Db.QueryRow(ctx, selectStudent+" WHERE user_id = $1", userID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonStudentNotFound, userID)
	}
	return st, classify("get student by user", err)
}

func (s *PostgresStore) GetHostel(ctx context.Context, id int64) (*domain.Hostel, error) {
	h, err := scanHostel(s.Db.QueryRow(ctx, selectHostel+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonHostelNotFound, id)
	}
	return h, classify("get hostel", err)
}

func (s *PostgresStore) GetRoom(ctx context.Context, id int64) (*domain.Room, error) {
	r, err := scanRoom(s.Db.QueryRow(ctx, selectRoom+" WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.NotFound(domain.ReasonRoomNotFound, id)
	}
	return r, classify("get room", err)
}

func (s *PostgresStore) ListStudents(ctx context.Context) ([]domain.Student, error) {
	rows, err := s.Db.Query(ctx, selectStudent+" ORDER BY id")
	if err != nil {
		return nil, classify("list students", err)
	}
	defer rows.Close()

	students := []domain.Student{}
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, classify("list students", err)
		}
		students = append(students, *st)
	}
	return students, classify("list students", rows.Err())
}

func (s *PostgresStore) ListHostels(ctx context.Context) ([]domain.Hostel, error) {
	rows, err := s.Db.Query(ctx, selectHostel+" ORDER BY id")
	if err != nil {
		return nil, classify("list hostels", err)
	}
	defer rows.Close()

	hostels := []domain.Hostel{}
	for rows.Next() {
		h, err := scanHostel(rows)
		if err != nil {
			return nil, classify("list hostels", err)
		}
		hostels = append(hostels, *h)
	}
	return hostels, classify("list hostels", rows.Err())
}

func (s *PostgresStore) ListRooms(ctx context.Context, f domain.RoomFilter) ([]domain.RoomView, error) {
	var (
		conds []string
		args  []any
	)
	if f.HostelID != 0 {
		args = append(args, f.HostelID)
		conds = append(conds, fmt.Sprintf("r.hostel_id = $%d", len(args)))
	}
	if f.AvailableOnly {
		conds = append(conds, "r.status = 'AVAILABLE'")
	}
	q := `SELECT r.id, r.hostel_id, r.room_number, r.capacity, r.occupied, r.status, r.created_at, h.name, h.gender
		FROM rooms r JOIN hostels h ON h.id = r.hostel_id`
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	rows, err := s.Db.Query(ctx, q+" ORDER BY r.hostel_id, r.room_number", args...)
	if err != nil {
		return nil, classify("list rooms", err)
	}
	defer rows.Close()

	out := []domain.RoomView{}
	for rows.Next() {
		var v domain.RoomView
		if err := rows.Scan(&v.ID, &v.HostelID, &v.RoomNumber, &v.Capacity, &v.Occupied, &v.Status, &v.CreatedAt,
			&v.HostelName, &v.HostelGender); err != nil {
			return nil, classify("list rooms", err)
		}
		out = append(out, v)
	}
	return out, classify("list rooms", rows.Err())
}

const selectAllocationView = `
	SELECT a.id, a.student_id, a.room_id, a.status, a.allocated_at, a.vacated_at,
	       r.room_number, r.hostel_id, h.name, s.reg_number
	FROM allocations a
	JOIN rooms r ON r.id = a.room_id
	JOIN hostels h ON h.id = r.hostel_id
	JOIN students s ON s.id = a.student_id`

func scanAllocationView(row pgx.Row) (*domain.AllocationView, error) {
	var v domain.AllocationView
	err := row.Scan(&v.ID, &v.StudentID, &v.RoomID, &v.Status, &v.AllocatedAt, &v.VacatedAt,
		&v.RoomNumber, &v.HostelID, &v.HostelName, &v.RegNumber)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (s *PostgresStore) ActiveAllocationView(ctx context.Context, studentID int64) (*domain.AllocationView, error) {
	v, err := optional(scanAllocationView(s.Db.QueryRow(ctx,
		selectAllocationView+" WHERE a.student_id = $1 AND a.status = 'ACTIVE'", studentID)))
	return v, classify("active allocation", err)
}

func (s *PostgresStore) ListAllocations(ctx context.Context, f domain.AllocationFilter) ([]domain.AllocationView, error) {
	var (
		conds []string
		args  []any
	)
	if f.HostelID != 0 {
		args = append(args, f.HostelID)
		conds = append(conds, fmt.Sprintf("r.hostel_id = $%d", len(args)))
	}
	if f.RoomID != 0 {
		args = append(args, f.RoomID)
		conds = append(conds, fmt.Sprintf("a.room_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("a.status = $%d", len(args)))
	}
	q := selectAllocationView
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	return s.queryAllocationViews(ctx, "list allocations", q+" ORDER BY a.id DESC", args...)
}

func (s *PostgresStore) StudentAllocations(ctx context.Context, studentID int64) ([]domain.AllocationView, error) {
	return s.queryAllocationViews(ctx, "student allocations",
		selectAllocationView+" WHERE a.student_id = $1 ORDER BY a.id DESC", studentID)
}

func (s *PostgresStore) queryAllocationViews(ctx context.Context, op, q string, args ...any) ([]domain.AllocationView, error) {
	rows, err := s.Db.Query(ctx, q, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	views := []domain.AllocationView{}
	for rows.Next() {
		v, err := scanAllocationView(rows)
		if err != nil {
			return nil, classify(op, err)
		}
		views = append(views, *v)
	}
	return views, classify(op, rows.Err())
}

func (s *PostgresStore) Summary(ctx context.Context) (domain.Summary, error) {
	var sum domain.Summary
	err := s.Db.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM hostels),
			(SELECT COUNT(*) FROM rooms),
			(SELECT COUNT(*) FROM allocations WHERE status = 'ACTIVE'),
			(SELECT COUNT(*) FROM rooms WHERE status = 'AVAILABLE')`).
		Scan(&sum.TotalHostels, &sum.TotalRooms, &sum.ActiveAllocations, &sum.AvailableRooms)
	return sum, classify("summary", err)
}

// Admin

func (s *PostgresStore) CreateHostel(ctx context.Context, h *domain.Hostel) error {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO hostels (name, gender, total_rooms, fee_amount)
		 VALUES ($1, $2, $3, $4::numeric) RETURNING id, created_at`,
		h.Name, h.Gender, h.TotalRooms, h.FeeAmount.StringFixed(2)).Scan(&h.ID, &h.CreatedAt)
	return classify("create hostel", err)
}

// CreateRoom always starts a room empty.
func (s *PostgresStore) CreateRoom(ctx context.Context, r *domain.Room) error {
	r.Occupied = 0
	r.Status = domain.RoomAvailable
	err := s.Db.QueryRow(ctx,
		`INSERT INTO rooms (hostel_id, room_number, capacity, occupied, status)
		 VALUES ($1, $2, $3, 0, 'AVAILABLE') RETURNING id, created_at`,
		r.HostelID, r.RoomNumber, r.Capacity).Scan(&r.ID, &r.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
		return domain.NotFound(domain.ReasonHostelNotFound, r.HostelID)
	}
	return classify("create room", err)
}

func (s *PostgresStore) CreateStudent(ctx context.Context, st *domain.Student) error {
	err := s.Db.QueryRow(ctx,
		`INSERT INTO students (user_id, reg_number, first_name, last_name, gender)
		 VALUES ($1, $2, $3, $4, $5) RETURNING id, created_at`,
		st.UserID, st.RegNumber, st.FirstName, st.LastName, st.Gender).Scan(&st.ID, &st.CreatedAt)
	return classify("create student", err)
}
