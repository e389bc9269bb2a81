package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/punchamoorthee/hostelops/internal/domain"
)

// MemoryStore keeps all state in process. It serializes same-room and
// same-student units with a per-key lock map and stages writes until
// commit, so it only suits single-instance deployments and tests.
type MemoryStore struct {
	mu          sync.RWMutex
	hostels     map[int64]domain.Hostel
	rooms       map[int64]domain.Room
	students    map[int64]domain.Student
	allocations map[int64]domain.Allocation
	payments    map[int64]domain.Payment
	lastID      int64

	locks       *keyLocks
	lockTimeout time.Duration
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		hostels:     make(map[int64]domain.Hostel),
		rooms:       make(map[int64]domain.Room),
		students:    make(map[int64]domain.Student),
		allocations: make(map[int64]domain.Allocation),
		payments:    make(map[int64]domain.Payment),
		locks:       newKeyLocks(),
		lockTimeout: lockTimeout,
	}
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() {}

// nextID must be called with s.mu held for writing.
func (s *MemoryStore) nextID() int64 {
	s.lastID++
	return s.lastID
}

// WithinTx implements AllocationStore.
func (s *MemoryStore) WithinTx(ctx context.Context, fn func(tx Tx) error) (err error) {
	tx := &memTx{
		store:     s,
		vacated:   make(map[int64]time.Time),
		occupancy: make(map[int64]domain.Room),
	}
	defer func() {
		if p := recover(); p != nil {
			tx.release()
			panic(p)
		}
	}()
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Same backstop as the partial unique index in Postgres.
	for _, a := range tx.inserted {
		for _, existing := range s.allocations {
			if existing.StudentID == a.StudentID && existing.Status == domain.AllocationActive {
				if _, leaving := tx.vacated[existing.ID]; !leaving {
					return &domain.DenyError{Code: domain.ReasonAlreadyAllocated}
				}
			}
		}
	}
	for id := range tx.vacated {
		if a, ok := s.allocations[id]; !ok || a.Status != domain.AllocationActive {
			return domain.NotFound(domain.ReasonAllocationNotFound, id)
		}
	}
	for id, r := range tx.occupancy {
		if r.Occupied < 0 || r.Occupied > r.Capacity {
			return &domain.StoreError{Op: "commit", Err: fmt.Errorf("room %d: occupied %d outside 0..%d", id, r.Occupied, r.Capacity)}
		}
	}

	for id, at := range tx.vacated {
		a := s.allocations[id]
		vacatedAt := at
		a.Status = domain.AllocationVacated
		a.VacatedAt = &vacatedAt
		s.allocations[id] = a
	}
	for _, a := range tx.inserted {
		a.ID = s.nextID()
		s.allocations[a.ID] = *a
	}
	for id, r := range tx.occupancy {
		s.rooms[id] = r
	}
	return nil
}

// FindActiveAllocation implements AllocationStore.
func (s *MemoryStore) FindActiveAllocation(_ context.Context, allocationID, studentID int64) (*domain.Allocation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.allocations {
		if a.Status != domain.AllocationActive {
			continue
		}
		if (allocationID != 0 && a.ID == allocationID) || (allocationID == 0 && a.StudentID == studentID) {
			found := a
			return &found, nil
		}
	}
	return nil, nil
}

type memTx struct {
	store    *MemoryStore
	held     []func()
	inserted []*domain.Allocation
	vacated  map[int64]time.Time
	// occupancy holds staged room rows keyed by id.
	occupancy map[int64]domain.Room
}

func (t *memTx) release() {
	for i := len(t.held) - 1; i >= 0; i-- {
		t.held[i]()
	}
	t.held = nil
}

func (t *memTx) lock(ctx context.Context, key string) error {
	release, err := t.store.locks.acquire(ctx, key, t.store.lockTimeout)
	if err != nil {
		return err
	}
	t.held = append(t.held, release)
	return nil
}

func (t *memTx) LockRoom(ctx context.Context, roomID int64) (*domain.Room, error) {
	if err := t.lock(ctx, fmt.Sprintf("room:%d", roomID)); err != nil {
		return nil, err
	}
	if r, ok := t.occupancy[roomID]; ok {
		return &r, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.rooms[roomID]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (t *memTx) LockStudent(ctx context.Context, studentID int64) (*domain.Student, error) {
	if err := t.lock(ctx, fmt.Sprintf("student:%d", studentID)); err != nil {
		return nil, err
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	st, ok := t.store.students[studentID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (t *memTx) GetHostel(_ context.Context, hostelID int64) (*domain.Hostel, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	h, ok := t.store.hostels[hostelID]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (t *memTx) HasPaidPayment(ctx context.Context, studentID, hostelID int64) (bool, error) {
	return t.store.HasPaidPayment(ctx, studentID, hostelID)
}

func (t *memTx) ActiveAllocationForStudent(_ context.Context, studentID int64) (*domain.Allocation, error) {
	for _, a := range t.inserted {
		if a.StudentID == studentID {
			found := *a
			return &found, nil
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for _, a := range t.store.allocations {
		if a.StudentID != studentID || a.Status != domain.AllocationActive {
			continue
		}
		if _, gone := t.vacated[a.ID]; gone {
			continue
		}
		found := a
		return &found, nil
	}
	return nil, nil
}

func (t *memTx) ActiveAllocationByID(_ context.Context, allocationID int64) (*domain.Allocation, error) {
	if _, gone := t.vacated[allocationID]; gone {
		return nil, nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	a, ok := t.store.allocations[allocationID]
	if !ok || a.Status != domain.AllocationActive {
		return nil, nil
	}
	return &a, nil
}

// InsertAllocation stages a; its ID is assigned at commit.
func (t *memTx) InsertAllocation(_ context.Context, a *domain.Allocation) error {
	t.inserted = append(t.inserted, a)
	return nil
}

func (t *memTx) VacateAllocation(ctx context.Context, allocationID int64, at time.Time) error {
	a, err := t.ActiveAllocationByID(ctx, allocationID)
	if err != nil {
		return err
	}
	if a == nil {
		return domain.NotFound(domain.ReasonAllocationNotFound, allocationID)
	}
	t.vacated[allocationID] = at
	return nil
}

func (t *memTx) SetOccupancy(_ context.Context, roomID int64, occupied int, status domain.RoomStatus) error {
	r, ok := t.occupancy[roomID]
	if !ok {
		t.store.mu.RLock()
		r, ok = t.store.rooms[roomID]
		t.store.mu.RUnlock()
		if !ok {
			return domain.NotFound(domain.ReasonRoomNotFound, roomID)
		}
	}
	r.Occupied = occupied
	r.Status = status
	t.occupancy[roomID] = r
	return nil
}

// Payments

func (s *MemoryStore) HasPaidPayment(_ context.Context, studentID, hostelID int64) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.payments {
		if p.StudentID == studentID && p.Status == domain.PaymentPaid && p.HostelID != nil && *p.HostelID == hostelID {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) CreatePayment(_ context.Context, p *domain.Payment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextID()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	s.payments[p.ID] = *p
	return nil
}

func (s *MemoryStore) GetPayment(_ context.Context, id int64) (*domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonPaymentNotFound, id)
	}
	return &p, nil
}

func (s *MemoryStore) MarkPaymentPaid(_ context.Context, id int64) (*domain.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return nil, false, domain.NotFound(domain.ReasonPaymentNotFound, id)
	}
	if p.Status != domain.PaymentPending {
		return &p, false, nil
	}
	p.Status = domain.PaymentPaid
	s.payments[id] = p
	return &p, true, nil
}

func (s *MemoryStore) DeletePendingPayment(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payments[id]
	if !ok {
		return domain.NotFound(domain.ReasonPaymentNotFound, id)
	}
	if p.Status != domain.PaymentPending {
		return &domain.DenyError{Code: domain.ReasonPaymentSettled}
	}
	delete(s.payments, id)
	return nil
}

func (s *MemoryStore) ListPayments(context.Context) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Payment, 0, len(s.payments))
	for _, p := range s.payments {
		out = append(out, p)
	}
	sortPaymentsNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) PaymentsForStudent(_ context.Context, studentID int64) ([]domain.Payment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Payment
	for _, p := range s.payments {
		if p.StudentID == studentID {
			out = append(out, p)
		}
	}
	sortPaymentsNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) LatestPaymentForStudent(ctx context.Context, studentID int64) (*domain.Payment, error) {
	payments, err := s.PaymentsForStudent(ctx, studentID)
	if err != nil || len(payments) == 0 {
		return nil, err
	}
	return &payments[0], nil
}

// IDs are monotonic, so they break ties between equal timestamps.
func sortPaymentsNewestFirst(p []domain.Payment) {
	sort.Slice(p, func(i, j int) bool {
		if !p[i].CreatedAt.Equal(p[j].CreatedAt) {
			return p[i].CreatedAt.After(p[j].CreatedAt)
		}
		return p[i].ID > p[j].ID
	})
}

// Directory

func (s *MemoryStore) GetStudent(_ context.Context, id int64) (*domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.students[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonStudentNotFound, id)
	}
	return &st, nil
}

func (s *MemoryStore) GetStudentByUserID(_ context.Context, userID int64) (*domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, st := range s.students {
		if st.UserID == userID {
			found := st
			return &found, nil
		}
	}
	return nil, domain.NotFound(domain.ReasonStudentNotFound, userID)
}

func (s *MemoryStore) GetHostel(_ context.Context, id int64) (*domain.Hostel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.hostels[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonHostelNotFound, id)
	}
	return &h, nil
}

func (s *MemoryStore) GetRoom(_ context.Context, id int64) (*domain.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return nil, domain.NotFound(domain.ReasonRoomNotFound, id)
	}
	return &r, nil
}

func (s *MemoryStore) ListStudents(context.Context) ([]domain.Student, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Student, 0, len(s.students))
	for _, st := range s.students {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListHostels(context.Context) ([]domain.Hostel, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Hostel, 0, len(s.hostels))
	for _, h := range s.hostels {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) ListRooms(_ context.Context, f domain.RoomFilter) ([]domain.RoomView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.RoomView{}
	for _, r := range s.rooms {
		if f.HostelID != 0 && r.HostelID != f.HostelID {
			continue
		}
		if f.AvailableOnly && r.Status != domain.RoomAvailable {
			continue
		}
		v := domain.RoomView{Room: r}
		if h, ok := s.hostels[r.HostelID]; ok {
			v.HostelName = h.Name
			v.HostelGender = h.Gender
		}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].HostelID != out[j].HostelID {
			return out[i].HostelID < out[j].HostelID
		}
		return out[i].RoomNumber < out[j].RoomNumber
	})
	return out, nil
}

// view must be called with s.mu held.
func (s *MemoryStore) view(a domain.Allocation) domain.AllocationView {
	v := domain.AllocationView{Allocation: a}
	if r, ok := s.rooms[a.RoomID]; ok {
		v.RoomNumber = r.RoomNumber
		v.HostelID = r.HostelID
		if h, ok := s.hostels[r.HostelID]; ok {
			v.HostelName = h.Name
		}
	}
	if st, ok := s.students[a.StudentID]; ok {
		v.RegNumber = st.RegNumber
	}
	return v
}

func (s *MemoryStore) ActiveAllocationView(_ context.Context, studentID int64) (*domain.AllocationView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.allocations {
		if a.StudentID == studentID && a.Status == domain.AllocationActive {
			v := s.view(a)
			return &v, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) ListAllocations(_ context.Context, f domain.AllocationFilter) ([]domain.AllocationView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []domain.AllocationView{}
	for _, a := range s.allocations {
		if f.Status != "" && a.Status != f.Status {
			continue
		}
		if f.RoomID != 0 && a.RoomID != f.RoomID {
			continue
		}
		v := s.view(a)
		if f.HostelID != 0 && v.HostelID != f.HostelID {
			continue
		}
		out = append(out, v)
	}
	sortViewsNewestFirst(out)
	return out, nil
}

func (s *MemoryStore) StudentAllocations(ctx context.Context, studentID int64) ([]domain.AllocationView, error) {
	all, err := s.ListAllocations(ctx, domain.AllocationFilter{})
	if err != nil {
		return nil, err
	}
	out := []domain.AllocationView{}
	for _, v := range all {
		if v.StudentID == studentID {
			out = append(out, v)
		}
	}
	return out, nil
}

func sortViewsNewestFirst(v []domain.AllocationView) {
	sort.Slice(v, func(i, j int) bool { return v[i].ID > v[j].ID })
}

func (s *MemoryStore) Summary(context.Context) (domain.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := domain.Summary{TotalHostels: len(s.hostels), TotalRooms: len(s.rooms)}
	for _, r := range s.rooms {
		if r.Status == domain.RoomAvailable {
			sum.AvailableRooms++
		}
	}
	for _, a := range s.allocations {
		if a.Status == domain.AllocationActive {
			sum.ActiveAllocations++
		}
	}
	return sum, nil
}

// Admin

func (s *MemoryStore) CreateHostel(_ context.Context, h *domain.Hostel) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.hostels {
		if existing.Name == h.Name {
			return &domain.ValidationError{Field: "name", Message: "hostel name already exists"}
		}
	}
	h.ID = s.nextID()
	h.CreatedAt = time.Now()
	s.hostels[h.ID] = *h
	return nil
}

func (s *MemoryStore) CreateRoom(_ context.Context, r *domain.Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hostels[r.HostelID]; !ok {
		return domain.NotFound(domain.ReasonHostelNotFound, r.HostelID)
	}
	r.ID = s.nextID()
	r.Occupied = 0
	r.Status = domain.RoomAvailable
	r.CreatedAt = time.Now()
	s.rooms[r.ID] = *r
	return nil
}

func (s *MemoryStore) CreateStudent(_ context.Context, st *domain.Student) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.students {
		if existing.UserID == st.UserID {
			return &domain.ValidationError{Field: "user_id", Message: "already exists"}
		}
		if existing.RegNumber == st.RegNumber {
			return &domain.ValidationError{Field: "reg_number", Message: "already exists"}
		}
	}
	st.ID = s.nextID()
	st.CreatedAt = time.Now()
	s.students[st.ID] = *st
	return nil
}
