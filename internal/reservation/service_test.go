package reservation

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oakshelf/library-lending-backend/internal/book"
	"github.com/oakshelf/library-lending-backend/internal/notify"
	"github.com/oakshelf/library-lending-backend/internal/user"
)

// ==== In-memory fakes ====

type memState struct {
	books        map[string]*BookStock
	reservations map[string]*Reservation
	seq          int
}

func (s *memState) clone() *memState {
	cp := &memState{
		books:        make(map[string]*BookStock, len(s.books)),
		reservations: make(map[string]*Reservation, len(s.reservations)),
		seq:          s.seq,
	}
	for id, b := range s.books {
		bc := *b
		cp.books[id] = &bc
	}
	for id, r := range s.reservations {
		rc := *r
		cp.reservations[id] = &rc
	}
	return cp
}

// memRepo is an in-memory Repository. InTx serializes callers with a mutex
// and restores a snapshot when fn fails, mirroring the per-book row lock and
// transaction rollback of the pgx implementation.
type memRepo struct {
	mu    sync.Mutex
	state *memState
}

func newMemRepo() *memRepo {
	return &memRepo{state: &memState{
		books:        make(map[string]*BookStock),
		reservations: make(map[string]*Reservation),
	}}
}

func (m *memRepo) addBook(b BookStock) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.books[b.ID] = &b
}

func (m *memRepo) InTx(_ context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.state.clone()
	if err := fn(&txRepo{state: m.state}); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

// Direct (non-transactional) calls take the same mutex so they serialize
// with transactions.
func (m *memRepo) direct() *txRepo { return &txRepo{state: m.state} }

func (m *memRepo) Create(ctx context.Context, res *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().Create(ctx, res)
}

func (m *memRepo) GetByID(ctx context.Context, id string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().GetByID(ctx, id)
}

func (m *memRepo) Update(ctx context.Context, res *Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().Update(ctx, res)
}

func (m *memRepo) List(ctx context.Context, filter Filter) ([]*Reservation, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().List(ctx, filter)
}

func (m *memRepo) HasActive(ctx context.Context, bookID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().HasActive(ctx, bookID, userID)
}

func (m *memRepo) LockBook(ctx context.Context, bookID string) (*BookStock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().LockBook(ctx, bookID)
}

func (m *memRepo) ReserveUnit(ctx context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().ReserveUnit(ctx, bookID)
}

func (m *memRepo) ReleaseUnit(ctx context.Context, bookID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().ReleaseUnit(ctx, bookID)
}

func (m *memRepo) CountWaitlisted(ctx context.Context, bookID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().CountWaitlisted(ctx, bookID)
}

func (m *memRepo) WaitlistHead(ctx context.Context, bookID string) (*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().WaitlistHead(ctx, bookID)
}

func (m *memRepo) ListWaitlist(ctx context.Context, bookID string) ([]*Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().ListWaitlist(ctx, bookID)
}

func (m *memRepo) ShiftWaitlistAfter(ctx context.Context, bookID string, position int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.direct().ShiftWaitlistAfter(ctx, bookID, position)
}

func (m *memRepo) availableUnits(bookID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.books[bookID].AvailableUnits
}

// txRepo is the transaction-bound view. It holds no mutex; the surrounding
// InTx (or direct wrapper) already does.
type txRepo struct {
	state *memState
}

func (t *txRepo) InTx(_ context.Context, fn func(Repository) error) error {
	return fn(t)
}

func (t *txRepo) Create(_ context.Context, res *Reservation) error {
	for _, other := range t.state.reservations {
		if other.BookID == res.BookID && other.UserID == res.UserID && !other.Status.IsTerminal() {
			return ErrDuplicateActive
		}
	}
	t.state.seq++
	res.ID = fmt.Sprintf("res-%d", t.state.seq)
	res.CreatedAt = time.Now().UTC()
	res.UpdatedAt = res.CreatedAt
	cp := *res
	t.state.reservations[res.ID] = &cp
	return nil
}

func (t *txRepo) GetByID(_ context.Context, id string) (*Reservation, error) {
	r, ok := t.state.reservations[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (t *txRepo) Update(_ context.Context, res *Reservation) error {
	if _, ok := t.state.reservations[res.ID]; !ok {
		return ErrNotFound
	}
	res.UpdatedAt = time.Now().UTC()
	cp := *res
	t.state.reservations[res.ID] = &cp
	return nil
}

func (t *txRepo) List(_ context.Context, filter Filter) ([]*Reservation, int, error) {
	var out []*Reservation
	for _, r := range t.state.reservations {
		if filter.UserID != "" && r.UserID != filter.UserID {
			continue
		}
		if filter.BookID != "" && r.BookID != filter.BookID {
			continue
		}
		if filter.Status != "" && string(r.Status) != filter.Status {
			continue
		}
		cp := *r
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, len(out), nil
}

func (t *txRepo) HasActive(_ context.Context, bookID, userID string) (bool, error) {
	for _, r := range t.state.reservations {
		if r.BookID == bookID && r.UserID == userID && !r.Status.IsTerminal() {
			return true, nil
		}
	}
	return false, nil
}

func (t *txRepo) LockBook(_ context.Context, bookID string) (*BookStock, error) {
	b, ok := t.state.books[bookID]
	if !ok {
		return nil, ErrBookNotFound
	}
	cp := *b
	return &cp, nil
}

func (t *txRepo) ReserveUnit(_ context.Context, bookID string) error {
	b, ok := t.state.books[bookID]
	if !ok {
		return ErrBookNotFound
	}
	if b.AvailableUnits <= 0 {
		return ErrNoUnits
	}
	b.AvailableUnits--
	return nil
}

func (t *txRepo) ReleaseUnit(_ context.Context, bookID string) error {
	b, ok := t.state.books[bookID]
	if !ok {
		return ErrBookNotFound
	}
	if b.AvailableUnits >= b.TotalUnits {
		return ErrInventoryDrift
	}
	b.AvailableUnits++
	return nil
}

func (t *txRepo) CountWaitlisted(_ context.Context, bookID string) (int, error) {
	n := 0
	for _, r := range t.state.reservations {
		if r.BookID == bookID && r.Status == StatusWaitlisted {
			n++
		}
	}
	return n, nil
}

func (t *txRepo) WaitlistHead(ctx context.Context, bookID string) (*Reservation, error) {
	list, err := t.ListWaitlist(ctx, bookID)
	if err != nil || len(list) == 0 {
		return nil, err
	}
	return list[0], nil
}

func (t *txRepo) ListWaitlist(_ context.Context, bookID string) ([]*Reservation, error) {
	var out []*Reservation
	for _, r := range t.state.reservations {
		if r.BookID == bookID && r.Status == StatusWaitlisted {
			cp := *r
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return *out[i].WaitlistPosition < *out[j].WaitlistPosition
	})
	return out, nil
}

func (t *txRepo) ShiftWaitlistAfter(_ context.Context, bookID string, position int) error {
	for _, r := range t.state.reservations {
		if r.BookID == bookID && r.Status == StatusWaitlisted &&
			r.WaitlistPosition != nil && *r.WaitlistPosition > position {
			p := *r.WaitlistPosition - 1
			r.WaitlistPosition = &p
		}
	}
	return nil
}

type memUsers struct {
	users map[string]*user.User
}

func (d *memUsers) GetByID(_ context.Context, id string) (*user.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, user.ErrNotFound
	}
	return u, nil
}

type recordNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (n *recordNotifier) Deliver(_ context.Context, msg notify.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.msgs = append(n.msgs, msg)
}

func (n *recordNotifier) all() []notify.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notify.Message(nil), n.msgs...)
}

// ==== Fixtures ====

const (
	bookSingle  = "book-single"  // 1 physical copy
	bookDigital = "book-digital" // download only
	bookHybrid  = "book-hybrid"  // 2 copies plus a file
	bookClosed  = "book-closed"  // inactive

	memberA   = "user-a"
	memberB   = "user-b"
	memberC   = "user-c"
	librarian = "user-staff"
	disabled  = "user-disabled"
)

func newFixture() (*memRepo, *recordNotifier, Service) {
	repo := newMemRepo()

	fileKey := "assets/ab/archive.epub"
	repo.addBook(BookStock{
		ID: bookSingle, Title: "The Dispossessed", Kind: book.KindPhysical,
		Active: true, TotalUnits: 1, AvailableUnits: 1, LoanDays: 14,
	})
	repo.addBook(BookStock{
		ID: bookDigital, Title: "Permutation City", Kind: book.KindDigital,
		Active: true, LoanDays: 14, FileKey: &fileKey,
	})
	repo.addBook(BookStock{
		ID: bookHybrid, Title: "Blindsight", Kind: book.KindHybrid,
		Active: true, TotalUnits: 2, AvailableUnits: 2, LoanDays: 7, FileKey: &fileKey,
	})
	repo.addBook(BookStock{
		ID: bookClosed, Title: "Withdrawn Title", Kind: book.KindPhysical,
		Active: false, TotalUnits: 1, AvailableUnits: 1, LoanDays: 14,
	})

	notifier := &recordNotifier{}
	return repo, notifier, NewService(repo, fixtureUsers(), notifier)
}

func fixtureUsers() *memUsers {
	return &memUsers{users: map[string]*user.User{
		memberA:   {ID: memberA, Email: "a@lib.test", Role: user.RoleMember, IsActive: true},
		memberB:   {ID: memberB, Email: "b@lib.test", Role: user.RoleMember, IsActive: true},
		memberC:   {ID: memberC, Email: "c@lib.test", Role: user.RoleMember, IsActive: true},
		librarian: {ID: librarian, Email: "staff@lib.test", Role: user.RoleLibrarian, IsActive: true},
		disabled:  {ID: disabled, Email: "gone@lib.test", Role: user.RoleLibrarian, IsActive: false},
	}}
}

func mustCreate(t *testing.T, svc Service, bookID, userID string, kind RequestKind) *Reservation {
	t.Helper()
	res, err := svc.Create(context.Background(), CreateRequest{
		BookID: bookID, UserID: userID, Kind: string(kind),
	})
	require.NoError(t, err)
	return res
}

// ==== Lifecycle ====

func TestBorrowLifecycle(t *testing.T) {
	ctx := context.Background()
	repo, notifier, svc := newFixture()

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	assert.Equal(t, StatusPending, res.Status)
	assert.Nil(t, res.WaitlistPosition)
	// Admission never consumes a unit.
	assert.Equal(t, 1, repo.availableUnits(bookSingle))

	res, err := svc.Approve(ctx, librarian, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, res.Status)
	require.NotNil(t, res.ApprovedBy)
	assert.Equal(t, librarian, *res.ApprovedBy)
	// Approval holds no unit either.
	assert.Equal(t, 1, repo.availableUnits(bookSingle))

	res, err = svc.Issue(ctx, librarian, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, res.Status)
	assert.Equal(t, 0, repo.availableUnits(bookSingle))
	require.NotNil(t, res.DueAt)
	wantDue := time.Now().UTC().AddDate(0, 0, 14)
	assert.WithinDuration(t, wantDue, *res.DueAt, time.Minute)

	res, err = svc.Return(ctx, librarian, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, res.Status)
	assert.Equal(t, 1, repo.availableUnits(bookSingle))

	events := []notify.Event{}
	for _, m := range notifier.all() {
		events = append(events, m.Event)
	}
	// Approved and issued notify the requester; return with an empty
	// waitlist notifies nobody.
	assert.Equal(t, []notify.Event{notify.EventApproved, notify.EventIssued}, events)
}

func TestDownloadLifecycle(t *testing.T) {
	ctx := context.Background()
	_, notifier, svc := newFixture()

	res := mustCreate(t, svc, bookDigital, memberA, KindDownload)
	assert.Equal(t, StatusPending, res.Status)

	res, err := svc.Approve(ctx, librarian, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, res.Status)

	msgs := notifier.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, notify.EventApproved, msgs[0].Event)
	// Approval of a download carries the file reference.
	require.NotNil(t, msgs[0].FileKey)
	assert.Equal(t, "assets/ab/archive.epub", *msgs[0].FileKey)

	// Downloads are never issued.
	_, err = svc.Issue(ctx, librarian, res.ID)
	assert.ErrorIs(t, err, ErrKindMismatch)
}

func TestCreateValidation(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newFixture()

	t.Run("unknown kind", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{BookID: bookSingle, UserID: memberA, Kind: "lease"})
		assert.ErrorIs(t, err, ErrKindMismatch)
	})

	t.Run("inactive book", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{BookID: bookClosed, UserID: memberA, Kind: "borrow"})
		assert.ErrorIs(t, err, ErrBookInactive)
	})

	t.Run("unknown book", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{BookID: "missing", UserID: memberA, Kind: "borrow"})
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("borrow of a digital-only title", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{BookID: bookDigital, UserID: memberA, Kind: "borrow"})
		assert.ErrorIs(t, err, ErrNoPhysicalCopies)
	})

	t.Run("download of a physical-only title", func(t *testing.T) {
		_, err := svc.Create(ctx, CreateRequest{BookID: bookSingle, UserID: memberA, Kind: "download"})
		assert.ErrorIs(t, err, ErrNoDigitalFile)
	})

	t.Run("duplicate active claim", func(t *testing.T) {
		mustCreate(t, svc, bookHybrid, memberA, KindBorrow)
		_, err := svc.Create(ctx, CreateRequest{BookID: bookHybrid, UserID: memberA, Kind: "borrow"})
		assert.ErrorIs(t, err, ErrDuplicateActive)

		// A different kind is still the same (book, user) claim.
		_, err = svc.Create(ctx, CreateRequest{BookID: bookHybrid, UserID: memberA, Kind: "download"})
		assert.ErrorIs(t, err, ErrDuplicateActive)
	})

	t.Run("terminal claim frees the slot", func(t *testing.T) {
		res := mustCreate(t, svc, bookSingle, memberB, KindBorrow)
		require.NoError(t, svc.Cancel(ctx, memberB, res.ID))

		res = mustCreate(t, svc, bookSingle, memberB, KindBorrow)
		assert.Equal(t, StatusPending, res.Status)
	})
}

// ==== Transitions ====

func TestInvalidTransitions(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newFixture()

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)

	t.Run("issue before approval", func(t *testing.T) {
		_, err := svc.Issue(ctx, librarian, res.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("return before issue", func(t *testing.T) {
		_, err := svc.Return(ctx, librarian, res.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	_, err := svc.Approve(ctx, librarian, res.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, res.ID)
	require.NoError(t, err)

	t.Run("reject after issue", func(t *testing.T) {
		_, err := svc.Reject(ctx, librarian, res.ID, "too late")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("approve after issue", func(t *testing.T) {
		_, err := svc.Approve(ctx, librarian, res.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("cancel after issue", func(t *testing.T) {
		err := svc.Cancel(ctx, memberA, res.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})

	t.Run("double return", func(t *testing.T) {
		_, err := svc.Return(ctx, librarian, res.ID)
		require.NoError(t, err)
		_, err = svc.Return(ctx, librarian, res.ID)
		assert.ErrorIs(t, err, ErrInvalidTransition)
	})
}

func TestRejectFromApproved(t *testing.T) {
	ctx := context.Background()
	repo, notifier, svc := newFixture()

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, res.ID)
	require.NoError(t, err)

	res, err = svc.Reject(ctx, librarian, res.ID, "damaged copy")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, res.Status)
	require.NotNil(t, res.RejectReason)
	assert.Equal(t, "damaged copy", *res.RejectReason)
	// Nothing was issued, so nothing comes back to the pool.
	assert.Equal(t, 1, repo.availableUnits(bookSingle))

	msgs := notifier.all()
	require.Len(t, msgs, 2)
	assert.Equal(t, notify.EventRejected, msgs[1].Event)
	require.NotNil(t, msgs[1].Reason)
	assert.Equal(t, "damaged copy", *msgs[1].Reason)
}

func TestApproverGate(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newFixture()

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)

	t.Run("member cannot approve", func(t *testing.T) {
		_, err := svc.Approve(ctx, memberB, res.ID)
		assert.ErrorIs(t, err, ErrApproverRequired)
	})

	t.Run("disabled librarian cannot approve", func(t *testing.T) {
		_, err := svc.Approve(ctx, disabled, res.ID)
		assert.ErrorIs(t, err, ErrApproverRequired)
	})

	t.Run("unknown approver", func(t *testing.T) {
		_, err := svc.Approve(ctx, "ghost", res.ID)
		assert.ErrorIs(t, err, ErrApproverRequired)
	})

	t.Run("only requester cancels", func(t *testing.T) {
		err := svc.Cancel(ctx, memberB, res.ID)
		assert.ErrorIs(t, err, ErrNotRequester)
	})
}

// ==== Waitlist ====

func waitlistPositions(t *testing.T, svc Service, bookID string) []int {
	t.Helper()
	list, err := svc.ListWaitlist(context.Background(), bookID)
	require.NoError(t, err)
	out := make([]int, len(list))
	for i, r := range list {
		require.NotNil(t, r.WaitlistPosition)
		out[i] = *r.WaitlistPosition
	}
	return out
}

func TestWaitlistFlow(t *testing.T) {
	ctx := context.Background()
	repo, notifier, svc := newFixture()

	// A takes the only copy through the full path.
	resA := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, resA.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, resA.ID)
	require.NoError(t, err)
	require.Equal(t, 0, repo.availableUnits(bookSingle))

	// B and C join the queue in order.
	resB := mustCreate(t, svc, bookSingle, memberB, KindBorrow)
	require.Equal(t, StatusWaitlisted, resB.Status)
	require.NotNil(t, resB.WaitlistPosition)
	assert.Equal(t, 1, *resB.WaitlistPosition)

	resC := mustCreate(t, svc, bookSingle, memberC, KindBorrow)
	require.NotNil(t, resC.WaitlistPosition)
	assert.Equal(t, 2, *resC.WaitlistPosition)
	assert.Equal(t, []int{1, 2}, waitlistPositions(t, svc, bookSingle))

	// B leaves; C renumbers to the head but is not promoted.
	require.NoError(t, svc.Cancel(ctx, memberB, resB.ID))
	assert.Equal(t, []int{1}, waitlistPositions(t, svc, bookSingle))

	resC, err = svc.GetByID(ctx, resC.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusWaitlisted, resC.Status)
	assert.Equal(t, 1, *resC.WaitlistPosition)

	// A returns: the unit comes back first, then C is promoted to pending
	// without claiming it.
	_, err = svc.Return(ctx, librarian, resA.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.availableUnits(bookSingle))

	resC, err = svc.GetByID(ctx, resC.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, resC.Status)
	assert.Nil(t, resC.WaitlistPosition)
	assert.NotNil(t, resC.NotifiedAt)
	assert.Empty(t, waitlistPositions(t, svc, bookSingle))

	// Promotion notified C, and only C.
	msgs := notifier.all()
	last := msgs[len(msgs)-1]
	assert.Equal(t, notify.EventWaitlistPromoted, last.Event)
	assert.Equal(t, memberC, last.UserID)
	assert.Equal(t, resC.ID, last.ReservationID)
}

func TestWaitlistMidQueueCancelRenumbers(t *testing.T) {
	ctx := context.Background()
	_, _, svc := newFixture()

	// Drain the pool.
	held := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, held.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, held.ID)
	require.NoError(t, err)

	resB := mustCreate(t, svc, bookSingle, memberB, KindBorrow)
	resC := mustCreate(t, svc, bookSingle, memberC, KindBorrow)
	resD := mustCreate(t, svc, bookSingle, "user-d", KindBorrow)
	require.Equal(t, []int{1, 2, 3}, waitlistPositions(t, svc, bookSingle))

	// Cancelling the middle entry closes the gap behind it.
	require.NoError(t, svc.Cancel(ctx, memberC, resC.ID))
	assert.Equal(t, []int{1, 2}, waitlistPositions(t, svc, bookSingle))

	resB, err = svc.GetByID(ctx, resB.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, *resB.WaitlistPosition)

	resD, err = svc.GetByID(ctx, resD.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, *resD.WaitlistPosition)
}

func TestReturnWithEmptyWaitlist(t *testing.T) {
	ctx := context.Background()
	repo, notifier, svc := newFixture()

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, res.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, res.ID)
	require.NoError(t, err)

	before := len(notifier.all())
	_, err = svc.Return(ctx, librarian, res.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, repo.availableUnits(bookSingle))
	// Nobody to promote, nobody to notify.
	assert.Len(t, notifier.all(), before)
}

// ==== Inventory ====

func TestIssueExhaustedPool(t *testing.T) {
	ctx := context.Background()
	repo, _, svc := newFixture()

	// Two approved claims on the hybrid title's two copies.
	resA := mustCreate(t, svc, bookHybrid, memberA, KindBorrow)
	resB := mustCreate(t, svc, bookHybrid, memberB, KindBorrow)
	for _, id := range []string{resA.ID, resB.ID} {
		_, err := svc.Approve(ctx, librarian, id)
		require.NoError(t, err)
	}

	_, err := svc.Issue(ctx, librarian, resA.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, resB.ID)
	require.NoError(t, err)
	require.Equal(t, 0, repo.availableUnits(bookHybrid))

	// A third approved claim cannot be issued while the pool is empty,
	// and the failed issue leaves the reservation approved.
	resC := mustCreate(t, svc, bookHybrid, memberC, KindBorrow)
	require.Equal(t, StatusWaitlisted, resC.Status)

	_, err = svc.Return(ctx, librarian, resA.ID)
	require.NoError(t, err)

	resC, err = svc.GetByID(ctx, resC.ID)
	require.NoError(t, err)
	require.Equal(t, StatusPending, resC.Status)
	_, err = svc.Approve(ctx, librarian, resC.ID)
	require.NoError(t, err)

	// B's copy is still out; C and a re-request from A would contest the
	// single free unit. Simulate the loss by issuing twice.
	_, err = svc.Issue(ctx, librarian, resC.ID)
	require.NoError(t, err)
	require.Equal(t, 0, repo.availableUnits(bookHybrid))

	resD := mustCreate(t, svc, bookHybrid, "user-d", KindBorrow)
	assert.Equal(t, StatusWaitlisted, resD.Status)
}

func TestFailedIssueRollsBack(t *testing.T) {
	ctx := context.Background()
	repo, _, svc := newFixture()

	resA := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, resA.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, resA.ID)
	require.NoError(t, err)

	// An issue attempt against an empty pool must report ErrNoUnits and
	// change nothing.
	resB := mustCreate(t, svc, bookHybrid, memberB, KindBorrow)
	_, err = svc.Approve(ctx, librarian, resB.ID)
	require.NoError(t, err)

	repo.mu.Lock()
	repo.state.books[bookHybrid].AvailableUnits = 0
	repo.mu.Unlock()

	_, err = svc.Issue(ctx, librarian, resB.ID)
	assert.ErrorIs(t, err, ErrNoUnits)

	got, err := svc.GetByID(ctx, resB.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, got.Status)
	assert.Nil(t, got.DueAt)
}

func TestConcurrentIssueOfLastCopy(t *testing.T) {
	ctx := context.Background()
	repo, _, svc := newFixture()

	resA := mustCreate(t, svc, bookHybrid, memberA, KindBorrow)
	resB := mustCreate(t, svc, bookHybrid, memberB, KindBorrow)
	for _, id := range []string{resA.ID, resB.ID} {
		_, err := svc.Approve(ctx, librarian, id)
		require.NoError(t, err)
	}

	repo.mu.Lock()
	repo.state.books[bookHybrid].AvailableUnits = 1
	repo.state.books[bookHybrid].TotalUnits = 1
	repo.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, id := range []string{resA.ID, resB.ID} {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			_, errs[i] = svc.Issue(ctx, librarian, id)
		}(i, id)
	}
	wg.Wait()

	// Exactly one side wins the last copy.
	if errs[0] == nil {
		assert.ErrorIs(t, errs[1], ErrNoUnits)
	} else {
		assert.ErrorIs(t, errs[0], ErrNoUnits)
		assert.NoError(t, errs[1])
	}
	assert.Equal(t, 0, repo.availableUnits(bookHybrid))
}

func TestReleaseAtCapacityIsDrift(t *testing.T) {
	ctx := context.Background()
	repo, _, svc := newFixture()

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, res.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, res.ID)
	require.NoError(t, err)

	// Force the counter back to capacity behind the service's back. The
	// return must surface the inconsistency instead of clamping it.
	repo.mu.Lock()
	repo.state.books[bookSingle].AvailableUnits = 1
	repo.mu.Unlock()

	_, err = svc.Return(ctx, librarian, res.ID)
	assert.ErrorIs(t, err, ErrInventoryDrift)

	// The failed transaction left the reservation issued.
	got, err := svc.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, got.Status)
}

// lockHookRepo wraps a Repository and fires a one-shot callback right before
// the book lock is taken inside a transaction, standing in for a competing
// transaction that committed first.
type lockHookRepo struct {
	Repository
	onLock func()
}

func (r *lockHookRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	return r.Repository.InTx(ctx, func(tx Repository) error {
		return fn(&lockHookTx{Repository: tx, parent: r})
	})
}

type lockHookTx struct {
	Repository
	parent *lockHookRepo
}

func (t *lockHookTx) LockBook(ctx context.Context, bookID string) (*BookStock, error) {
	if t.parent.onLock != nil {
		hook := t.parent.onLock
		t.parent.onLock = nil
		hook()
	}
	return t.Repository.LockBook(ctx, bookID)
}

func TestApproveLosesRaceWithCancel(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newFixture()
	hooked := &lockHookRepo{Repository: repo}
	svc := NewService(hooked, fixtureUsers(), &recordNotifier{})

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	require.Equal(t, StatusPending, res.Status)

	// The requester's cancel lands between the approver's first read and
	// the book lock. Approve must see it and refuse, never resurrect the
	// cancelled claim.
	hooked.onLock = func() {
		now := time.Now().UTC()
		stored := repo.state.reservations[res.ID]
		stored.Status = StatusCancelled
		stored.CancelledAt = &now
	}

	_, err := svc.Approve(ctx, librarian, res.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.NotEqual(t, StatusApproved, got.Status)
}

func TestRejectLosesRaceWithIssue(t *testing.T) {
	ctx := context.Background()
	repo, _, _ := newFixture()
	hooked := &lockHookRepo{Repository: repo}
	svc := NewService(hooked, fixtureUsers(), &recordNotifier{})

	res := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, res.ID)
	require.NoError(t, err)

	// Another approver's issue lands between reject's first read and the
	// book lock. Reject must refuse, or the unit the issue claimed would
	// leak.
	hooked.onLock = func() {
		now := time.Now().UTC()
		stored := repo.state.reservations[res.ID]
		stored.Status = StatusIssued
		stored.IssuedAt = &now
		repo.state.books[bookSingle].AvailableUnits--
	}

	_, err = svc.Reject(ctx, librarian, res.ID, "lost copy")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	got, err := svc.GetByID(ctx, res.ID)
	require.NoError(t, err)
	assert.NotEqual(t, StatusRejected, got.Status)
}

func TestCorruptWaitlistAborts(t *testing.T) {
	ctx := context.Background()
	repo, _, svc := newFixture()

	resA := mustCreate(t, svc, bookSingle, memberA, KindBorrow)
	_, err := svc.Approve(ctx, librarian, resA.ID)
	require.NoError(t, err)
	_, err = svc.Issue(ctx, librarian, resA.ID)
	require.NoError(t, err)

	resB := mustCreate(t, svc, bookSingle, memberB, KindBorrow)
	require.Equal(t, StatusWaitlisted, resB.Status)

	// Break contiguity: the head no longer sits at position 1.
	repo.mu.Lock()
	p := 2
	repo.state.reservations[resB.ID].WaitlistPosition = &p
	repo.mu.Unlock()

	_, err = svc.Return(ctx, librarian, resA.ID)
	assert.ErrorIs(t, err, ErrWaitlistCorrupt)

	// Rollback keeps the loan issued and the queue untouched.
	got, err := svc.GetByID(ctx, resA.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, got.Status)
}
